// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Keep fields unexported where possible and use functional options.
// - Provide New(...Option) initializer to build a Config with defaults.
// - External errors must be wrapped via this package's error helpers.
package config

import (
	"runtime"
)

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// MetricsAddr configures the Prometheus metrics listen address, e.g. ":9090".
	MetricsAddr string `koanf:"metrics_addr"`

	// UseLearnedModel selects the learned engine when true; the rule engine
	// remains the fallback either way.
	UseLearnedModel bool `koanf:"use_learned_model"`

	// ModelPath is the filesystem path of the serialized model artifact used
	// when no registry-managed production version exists.
	ModelPath string `koanf:"model_path"`

	// RegistryPath is the SQLite file holding training runs and model versions.
	RegistryPath string `koanf:"registry_path"`

	// MonitoringEnabled toggles the append-only prediction log.
	MonitoringEnabled bool `koanf:"monitoring_enabled"`

	// MonitoringPath is the JSONL file the prediction log appends to.
	MonitoringPath string `koanf:"monitoring_path"`

	// TestSplit is the held-out fraction for training evaluation.
	TestSplit float64 `koanf:"test_split"`

	// BatchWorkerCount sets the number of prediction workers for recalculation.
	BatchWorkerCount int `koanf:"batch_worker_count"`

	// JobQueueSize bounds the in-memory recalculation job queue.
	JobQueueSize int `koanf:"job_queue_size"`

	// Rule engine weights. Defaults are documented operating values, not
	// invariants; they must sum to 1.
	RuleTrendWeight    float64 `koanf:"rule_trend_weight"`
	RuleUsageWeight    float64 `koanf:"rule_usage_weight"`
	RuleTrainingWeight float64 `koanf:"rule_training_weight"`

	// Rule engine thresholds splitting the composite score into
	// LOW / MEDIUM / HIGH.
	RuleMediumThreshold float64 `koanf:"rule_medium_threshold"`
	RuleHighThreshold   float64 `koanf:"rule_high_threshold"`

	// RuleMaxTrainingRequests normalizes the raw training-request count into
	// [0,1] before weighting.
	RuleMaxTrainingRequests float64 `koanf:"rule_max_training_requests"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:                "info",
		MetricsAddr:             ":9090",
		UseLearnedModel:         true,
		ModelPath:               "data/model.bin",
		RegistryPath:            "data/registry.db",
		MonitoringEnabled:       true,
		MonitoringPath:          "data/predictions.jsonl",
		TestSplit:               0.2,
		BatchWorkerCount:        runtime.NumCPU() * 2,
		JobQueueSize:            10_000,
		RuleTrendWeight:         0.5,
		RuleUsageWeight:         0.3,
		RuleTrainingWeight:      0.2,
		RuleMediumThreshold:     0.4,
		RuleHighThreshold:       0.7,
		RuleMaxTrainingRequests: 50,
	}
}
