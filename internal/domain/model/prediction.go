package model

import (
	"fmt"
	"time"
)

// EngineTag identifies which engine actually produced a prediction. It must
// always reflect observed behavior, never configured intent: when the
// orchestrator falls back to rules, results carry EngineRules even though
// the learned engine was configured.
type EngineTag string

// EngineRules tags results from the deterministic rule engine.
const EngineRules EngineTag = "rules_v1"

// ForestEngine builds the tag for a learned-forest prediction from the
// model version that served it.
func ForestEngine(version string) EngineTag {
	const short = 8
	if len(version) > short {
		version = version[:short]
	}
	return EngineTag(fmt.Sprintf("ml_forest_%s", version))
}

// PredictionResult is the shared output contract of both engines.
type PredictionResult struct {
	Level       DemandLevel
	Score       float64 // confidence in [0,100]
	Engine      EngineTag
	Rationale   string
	Explanation *ExplanationRecord // learned engine only, when requested
}

// Impact marks the direction a feature pushed a prediction.
type Impact string

const (
	ImpactPositive Impact = "positive"
	ImpactNegative Impact = "negative"
)

// ExplanationFactor is one contributing feature of an explanation.
type ExplanationFactor struct {
	Feature      string
	ReadableName string
	Impact       Impact
	Strength     float64
}

// ExplanationRecord carries the ordered top factors plus a rendered
// human-readable sentence.
type ExplanationRecord struct {
	TopFactors []ExplanationFactor
	Text       string
	Confidence float64
}

// Trigger values for recalculation audit records.
const (
	TriggerAPI       = "api"
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
)

// RecalculationAudit records one full repredict run so every historical run
// is attributable.
type RecalculationAudit struct {
	ID            string
	StartedAt     time.Time
	Duration      time.Duration
	Trigger       string
	Engine        EngineTag
	HorizonMonths int
	PairCount     int
	FailureCount  int
	Params        map[string]string
}

// PredictionLogEntry is one append-only monitoring record. Write-once, used
// for offline drift analysis, never mutated. The wire format is versioned
// independently of internal code (SchemaVersion).
type PredictionLogEntry struct {
	SchemaVersion int           `json:"schema_version"`
	Timestamp     time.Time     `json:"timestamp"`
	JobRoleID     string        `json:"job_role_id"`
	SkillID       string        `json:"skill_id"`
	HorizonMonths int           `json:"horizon_months"`
	Level         DemandLevel   `json:"predicted_level"`
	Score         float64       `json:"score"`
	Engine        EngineTag     `json:"engine"`
	ModelVersion  string        `json:"model_version,omitempty"`
	Features      FeatureRecord `json:"feature_snapshot"`
}
