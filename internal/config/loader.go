package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):.
//  1. defaults (New())
//  2. file (YAML) if SKILLCAST_CONFIG is set
//  3. env (prefix SKILLCAST_)
func Load(ctx context.Context) (*Config, error) {
	// Start with defaults
	base := New()

	k := koanf.New(".")

	// Load from file if provided
	if path := os.Getenv("SKILLCAST_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
		}
	}

	// Environment variables: SKILLCAST_MODEL_PATH, SKILLCAST_TEST_SPLIT, ...
	// Map env keys like SKILLCAST_MODEL_PATH -> model_path (flat keys).
	// Preserve underscores to match koanf tags on the struct.
	envProvider := env.Provider("SKILLCAST_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "skillcast_")
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	// Unmarshal into a copy
	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate rejects configurations the engines cannot run with.
func (c *Config) validate() error {
	if c.TestSplit <= 0 || c.TestSplit >= 1 {
		return fmt.Errorf("%w: test_split must be in (0,1), got %v", ErrInvalidConfig, c.TestSplit)
	}
	sum := c.RuleTrendWeight + c.RuleUsageWeight + c.RuleTrainingWeight
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("%w: rule weights must sum to 1, got %v", ErrInvalidConfig, sum)
	}
	if c.RuleTrendWeight < 0 || c.RuleUsageWeight < 0 || c.RuleTrainingWeight < 0 {
		return fmt.Errorf("%w: rule weights must be non-negative", ErrInvalidConfig)
	}
	if c.RuleMediumThreshold <= 0 || c.RuleHighThreshold >= 1 || c.RuleMediumThreshold >= c.RuleHighThreshold {
		return fmt.Errorf("%w: thresholds must satisfy 0 < medium < high < 1, got %v / %v",
			ErrInvalidConfig, c.RuleMediumThreshold, c.RuleHighThreshold)
	}
	if c.RuleMaxTrainingRequests <= 0 {
		return fmt.Errorf("%w: rule_max_training_requests must be positive", ErrInvalidConfig)
	}
	if c.BatchWorkerCount <= 0 {
		return fmt.Errorf("%w: batch_worker_count must be positive", ErrInvalidConfig)
	}
	return nil
}

// Provider hands out the current configuration on demand. Orchestration
// entry points read through a Provider rather than holding a Config so
// operators can flip use_learned_model without a restart.
type Provider func(ctx context.Context) (*Config, error)

// Static wraps a fixed Config, for tests and one-shot CLI invocations.
func Static(cfg *Config) Provider {
	return func(context.Context) (*Config, error) { return cfg, nil }
}

// FromEnvironment re-reads configuration layers on every call.
func FromEnvironment() Provider {
	return Load
}
