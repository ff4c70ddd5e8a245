// Package rules implements the deterministic demand-scoring engine.
//
// It is the system's fallback of last resort: a pure weighted combination of
// three signals with no side effects and no failure modes for well-typed
// input. Out-of-range inputs are clamped, never rejected.
package rules

import (
	"fmt"
	"math"

	"github.com/talentops/skillcast/internal/domain/model"
)

// Default scoring configuration constants. Weights and thresholds are
// documented operating values, configurable per deployment.
const (
	defaultTrendWeight    = 0.5
	defaultUsageWeight    = 0.3
	defaultTrainingWeight = 0.2

	defaultMediumThreshold = 0.4
	defaultHighThreshold   = 0.7

	// defaultMaxTrainingRequests normalizes the raw request count into [0,1]
	// so it is comparable with the other inputs before weighting.
	defaultMaxTrainingRequests = 50

	maxScoreValue = 100
)

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithWeights sets the trend/usage/training weights. Non-positive or
// non-normalized weight sets are ignored and the defaults kept.
func WithWeights(trend, usage, training float64) Option {
	return func(e *Engine) {
		sum := trend + usage + training
		if trend >= 0 && usage >= 0 && training >= 0 && sum > 0.999 && sum < 1.001 {
			e.trendWeight = trend
			e.usageWeight = usage
			e.trainingWeight = training
		}
	}
}

// WithThresholds sets the LOW/MEDIUM and MEDIUM/HIGH cut points.
func WithThresholds(medium, high float64) Option {
	return func(e *Engine) {
		if medium > 0 && high < 1 && medium < high {
			e.mediumThreshold = medium
			e.highThreshold = high
		}
	}
}

// WithMaxTrainingRequests sets the expected maximum used to normalize the
// training-request count.
func WithMaxTrainingRequests(maxRequests float64) Option {
	return func(e *Engine) {
		if maxRequests > 0 {
			e.maxTrainingRequests = maxRequests
		}
	}
}

// Engine is the rule-based predictor. Stateless and safe for concurrent use.
type Engine struct {
	trendWeight    float64
	usageWeight    float64
	trainingWeight float64

	mediumThreshold float64
	highThreshold   float64

	maxTrainingRequests float64
}

// New creates a rule engine with configuration options.
func New(opts ...Option) *Engine {
	e := &Engine{
		trendWeight:         defaultTrendWeight,
		usageWeight:         defaultUsageWeight,
		trainingWeight:      defaultTrainingWeight,
		mediumThreshold:     defaultMediumThreshold,
		highThreshold:       defaultHighThreshold,
		maxTrainingRequests: defaultMaxTrainingRequests,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Score maps the three numeric signals to a demand level and a confidence
// score in [0,100]. Deterministic; monotonic non-decreasing in each input.
func (e *Engine) Score(trendScore, internalUsage, trainingRequests float64) (model.DemandLevel, float64) {
	trend := clamp01(trendScore)
	usage := clamp01(internalUsage)
	training := clamp01(trainingRequests / e.maxTrainingRequests)

	composite := trend*e.trendWeight + usage*e.usageWeight + training*e.trainingWeight

	level := model.LevelLow
	switch {
	case composite >= e.highThreshold:
		level = model.LevelHigh
	case composite >= e.mediumThreshold:
		level = model.LevelMedium
	}

	score := math.Max(0, math.Min(maxScoreValue, composite*maxScoreValue))
	return level, score
}

// Predict evaluates a full feature record through the rule formula. Only the
// three rule inputs participate; the remaining features are ignored.
func (e *Engine) Predict(rec model.FeatureRecord) model.PredictionResult {
	level, score := e.Score(rec.TrendScore, rec.InternalUsage, rec.TrainingRequests)
	return model.PredictionResult{
		Level:  level,
		Score:  score,
		Engine: model.EngineRules,
		Rationale: fmt.Sprintf("composite %.2f = trend*%.2g + usage*%.2g + training*%.2g",
			score/maxScoreValue, e.trendWeight, e.usageWeight, e.trainingWeight),
	}
}

// Terms exposes the formula inputs with their weights, for the
// formula-only explainer.
func (e *Engine) Terms() []model.FeatureWeight {
	return []model.FeatureWeight{
		{Feature: model.ColTrendScore, Weight: e.trendWeight},
		{Feature: model.ColInternalUsage, Weight: e.usageWeight},
		{Feature: model.ColTrainingRequests, Weight: e.trainingWeight},
	}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
