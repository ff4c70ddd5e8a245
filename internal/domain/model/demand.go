// Package model contains domain models passed between layers.
package model

import "strings"

// DemandLevel is the ordinal 3-class label predicted by both engines.
type DemandLevel string

// Demand levels, ordered LOW < MEDIUM < HIGH.
const (
	LevelLow    DemandLevel = "LOW"
	LevelMedium DemandLevel = "MEDIUM"
	LevelHigh   DemandLevel = "HIGH"
)

// Levels returns all demand levels in ordinal order. The slice is shared
// with classifier class indexing: index in this slice == class index.
func Levels() []DemandLevel {
	return []DemandLevel{LevelLow, LevelMedium, LevelHigh}
}

// ParseLevel maps a raw label to a DemandLevel. Unknown labels are rejected
// so dataset loading can drop them with a count.
func ParseLevel(s string) (DemandLevel, bool) {
	switch DemandLevel(strings.ToUpper(strings.TrimSpace(s))) {
	case LevelLow:
		return LevelLow, true
	case LevelMedium:
		return LevelMedium, true
	case LevelHigh:
		return LevelHigh, true
	default:
		return "", false
	}
}

// Index returns the ordinal class index of the level, or -1 for unknown.
func (l DemandLevel) Index() int {
	switch l {
	case LevelLow:
		return 0
	case LevelMedium:
		return 1
	case LevelHigh:
		return 2
	default:
		return -1
	}
}

// Valid reports whether the level is one of the three known classes.
func (l DemandLevel) Valid() bool {
	return l.Index() >= 0
}
