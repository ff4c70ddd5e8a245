package dataset

import (
	"errors"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	// ErrLoad covers unreadable or structurally corrupt sources and datasets
	// that end up with zero usable feature columns. Fatal to a training
	// invocation, never partially recovered.
	ErrLoad = errors.New("dataset load failed")
)
