package model

import (
	"time"
)

// RunStatus is the lifecycle state of a training run.
type RunStatus string

const (
	RunRunning   RunStatus = "RUNNING"
	RunCompleted RunStatus = "COMPLETED"
	RunFailed    RunStatus = "FAILED"
)

// ClassMetrics are per-class evaluation results. A class absent from the
// test split reports zeros with Support 0, never a division error.
type ClassMetrics struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// Metrics are the evaluation results of a fitted pipeline on held-out data.
type Metrics struct {
	Accuracy   float64                      `json:"accuracy"`
	F1Macro    float64                      `json:"f1_macro"`
	F1Weighted float64                      `json:"f1_weighted"`
	PerClass   map[DemandLevel]ClassMetrics `json:"per_class"`
}

// Hyperparameters configure the forest classifier.
type Hyperparameters struct {
	NumTrees    int   `json:"n_estimators"`
	MaxDepth    int   `json:"max_depth"`
	MinLeafSize int   `json:"min_leaf_size"`
	Seed        int64 `json:"seed"`
}

// DefaultHyperparameters returns the documented operating defaults.
func DefaultHyperparameters() Hyperparameters {
	return Hyperparameters{
		NumTrees:    100,
		MaxDepth:    12,
		MinLeafSize: 2,
		Seed:        42,
	}
}

// FeatureWeight is one entry of a feature-importance ranking, aggregated to
// raw (pre-encoding) feature names.
type FeatureWeight struct {
	Feature string  `json:"feature"`
	Weight  float64 `json:"weight"`
}

// TrainingRun is the bookkeeping record of one training invocation. Created
// at training start, finalized at success or failure; the failure path still
// persists a record for audit.
type TrainingRun struct {
	ID                string
	Version           string
	StartedAt         time.Time
	Duration          time.Duration
	Dataset           string
	Hyperparameters   Hyperparameters
	Metrics           *Metrics
	FeatureImportance []FeatureWeight
	Status            RunStatus
	ErrorMessage      string
	Notes             string
}

// Stage is the lifecycle stage of a model version. Exactly one version may
// hold StageProduction at a time.
type Stage string

const (
	StageStaging    Stage = "staging"
	StageProduction Stage = "production"
	StageArchived   Stage = "archived"
)

// ModelVersion tracks one trained artifact and its recorded metric.
type ModelVersion struct {
	VersionID        string
	ArtifactLocation string
	F1Weighted       float64
	Metrics          *Metrics
	Stage            Stage
	CreatedAt        time.Time
	PromotedAt       *time.Time
}
