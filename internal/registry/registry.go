// Package registry owns the model version lifecycle: recording freshly
// trained versions and deciding promotion to production.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/talentops/skillcast/internal/adapters/repository"
	"github.com/talentops/skillcast/internal/domain/model"
	"github.com/talentops/skillcast/internal/ml/predictor"
	"github.com/talentops/skillcast/pkg/logger"
	"github.com/talentops/skillcast/pkg/metrics"
)

// ErrPromotion is the failure kind for promotion state transitions. Callers
// recover from it locally; a completed training run is never lost to it.
var ErrPromotion = errors.New("promotion failed")

// Registry gates which trained version serves production traffic.
type Registry struct {
	store *repository.Store
	log   logger.Logger
	now   func() time.Time
}

// Option applies a configuration option to the Registry.
type Option func(*Registry)

// WithLogger sets a custom logger.
func WithLogger(log logger.Logger) Option {
	return func(r *Registry) {
		if log != nil {
			r.log = log
		}
	}
}

// WithClock overrides the promotion timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// New wires a Registry over the store.
func New(store *repository.Store, opts ...Option) *Registry {
	r := &Registry{
		store: store,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = logger.Get().Named("registry")
	}
	return r
}

// Register records a trained version in staging.
func (r *Registry) Register(ctx context.Context, v model.ModelVersion) error {
	v.Stage = model.StageStaging
	if v.CreatedAt.IsZero() {
		v.CreatedAt = r.now()
	}
	if err := r.store.InsertModelVersion(ctx, v); err != nil {
		return fmt.Errorf("%w: %w", ErrPromotion, err)
	}
	return nil
}

// EvaluateAndPromote applies the promotion gate to a registered version.
// The first version ever registered promotes unconditionally; afterwards a
// candidate must strictly beat the production weighted F1. Returns whether
// the candidate now holds production.
func (r *Registry) EvaluateAndPromote(ctx context.Context, candidate model.ModelVersion) (bool, error) {
	production, err := r.store.ProductionVersion(ctx)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		// Bootstrap case.
		if perr := r.promote(ctx, candidate.VersionID); perr != nil {
			return false, perr
		}
		r.log.Info(ctx, "bootstrap promotion",
			logger.String("version", candidate.VersionID),
			logger.Float64("f1_weighted", candidate.F1Weighted),
		)
		return true, nil
	case err != nil:
		return false, fmt.Errorf("%w: reading production version: %w", ErrPromotion, err)
	}

	if candidate.F1Weighted <= production.F1Weighted {
		r.log.Info(ctx, "candidate not promoted, metric did not improve",
			logger.String("candidate", candidate.VersionID),
			logger.Float64("candidate_f1_weighted", candidate.F1Weighted),
			logger.String("production", production.VersionID),
			logger.Float64("production_f1_weighted", production.F1Weighted),
		)
		return false, nil
	}

	if err := r.promote(ctx, candidate.VersionID); err != nil {
		return false, err
	}
	r.log.Info(ctx, "candidate promoted to production",
		logger.String("version", candidate.VersionID),
		logger.Float64("f1_weighted", candidate.F1Weighted),
		logger.String("replaced", production.VersionID),
	)
	return true, nil
}

func (r *Registry) promote(ctx context.Context, versionID string) error {
	if err := r.store.PromoteModelVersion(ctx, versionID, r.now()); err != nil {
		metrics.RecordPromotionFailure()
		return fmt.Errorf("%w: %s: %w", ErrPromotion, versionID, err)
	}
	metrics.RecordPromotion()
	return nil
}

// Production returns the version currently holding production stage.
func (r *Registry) Production(ctx context.Context) (model.ModelVersion, error) {
	return r.store.ProductionVersion(ctx)
}

// Current implements predictor.ArtifactSource: the predictor loads whatever
// artifact production points at.
func (r *Registry) Current(ctx context.Context) (string, string, error) {
	production, err := r.store.ProductionVersion(ctx)
	if errors.Is(err, repository.ErrNotFound) {
		return "", "", predictor.ErrNoArtifact
	}
	if err != nil {
		return "", "", err
	}
	return production.ArtifactLocation, production.VersionID, nil
}
