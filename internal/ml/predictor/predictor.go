// Package predictor wraps the serialized pipeline behind a lazily-loaded,
// concurrency-safe holder.
//
// The holder is injectable rather than a module-level singleton: call sites
// receive a *Predictor and the artifact source is an interface, so tests and
// alternate deployments can swap either. The artifact loads exactly once;
// concurrent first access blocks briefly instead of racing duplicate loads.
// Reload after a promotion is an explicit operation, never implicit.
package predictor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/talentops/skillcast/internal/domain/model"
	"github.com/talentops/skillcast/internal/ml/pipeline"
	"github.com/talentops/skillcast/pkg/logger"
	"github.com/talentops/skillcast/pkg/metrics"
)

// ErrModelUnavailable is returned by PredictLevel when no artifact is
// loaded. The orchestrator always checks Available first and treats this as
// a signal to fall back to rules; it must never escape the orchestrator.
var ErrModelUnavailable = errors.New("learned model unavailable")

// ErrNoArtifact is reported by artifact sources that have nothing to serve.
var ErrNoArtifact = errors.New("no model artifact")

// ArtifactSource resolves the current production artifact.
type ArtifactSource interface {
	// Current returns the artifact location and its version identifier.
	Current(ctx context.Context) (location, version string, err error)
}

// FixedSource serves an artifact from a configured path, for deployments
// without a registry. The version is the fixed label "local".
type FixedSource struct {
	Path string
}

// Current implements ArtifactSource.
func (s FixedSource) Current(context.Context) (string, string, error) {
	if s.Path == "" {
		return "", "", ErrNoArtifact
	}
	return s.Path, "local", nil
}

type loadedModel struct {
	pipe    *pipeline.Pipeline
	version string
}

// Option applies a configuration option to the Predictor.
type Option func(*Predictor)

// WithLogger sets a custom logger.
func WithLogger(log logger.Logger) Option {
	return func(p *Predictor) {
		if log != nil {
			p.log = log
		}
	}
}

// Predictor is the learned-model engine.
type Predictor struct {
	source ArtifactSource
	log    logger.Logger

	mu        sync.Mutex // guards load attempts
	attempted bool
	state     atomic.Pointer[loadedModel]
}

// New creates a predictor over the given artifact source. Nothing is loaded
// until the first Available or Reload call.
func New(source ArtifactSource, opts ...Option) *Predictor {
	p := &Predictor{source: source}
	for _, opt := range opts {
		opt(p)
	}
	if p.log == nil {
		p.log = logger.Get().Named("predictor")
	}
	return p
}

// Available reports whether the learned model is loaded and serving,
// attempting the lazy load on first call. Load failures are logged as
// warnings, never raised: the predictor simply reports unavailable.
func (p *Predictor) Available(ctx context.Context) bool {
	p.ensureLoaded(ctx)
	return p.state.Load() != nil
}

// ensureLoaded performs the double-checked, load-once initialization. A
// failed attempt is cached until an explicit Reload so callers do not hammer
// a broken artifact path on every prediction.
func (p *Predictor) ensureLoaded(ctx context.Context) {
	if p.state.Load() != nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state.Load() != nil || p.attempted {
		return
	}
	p.attempted = true

	location, version, err := p.source.Current(ctx)
	if err != nil {
		p.log.Warn(ctx, "no model artifact to load; learned engine unavailable",
			logger.Error(err),
		)
		metrics.RecordModelLoadFailure()
		return
	}

	pipe, err := pipeline.Load(location)
	if err != nil {
		p.log.Warn(ctx, "model artifact failed to load; learned engine unavailable",
			logger.String("location", location),
			logger.String("version", version),
			logger.Error(err),
		)
		metrics.RecordModelLoadFailure()
		return
	}

	p.state.Store(&loadedModel{pipe: pipe, version: version})
	metrics.UpdateModelLoaded(true)
	p.log.Info(ctx, "model artifact loaded",
		logger.String("location", location),
		logger.String("version", version),
	)
}

// PredictLevel runs the pipeline's class-probability output for the record,
// returning the argmax class and its probability mass scaled to [0,100].
// Returns ErrModelUnavailable when no artifact is loaded.
func (p *Predictor) PredictLevel(_ context.Context, rec model.FeatureRecord) (model.DemandLevel, float64, error) {
	st := p.state.Load()
	if st == nil {
		return "", 0, ErrModelUnavailable
	}
	level, score := st.pipe.PredictLevel(rec)
	return level, score, nil
}

// Engine returns the tag naming the loaded model version, or the empty tag
// when nothing is loaded.
func (p *Predictor) Engine() model.EngineTag {
	st := p.state.Load()
	if st == nil {
		return ""
	}
	return model.ForestEngine(st.version)
}

// Version returns the loaded model version id, or empty.
func (p *Predictor) Version() string {
	st := p.state.Load()
	if st == nil {
		return ""
	}
	return st.version
}

// Pipeline exposes the loaded pipeline for attribution. Nil when unloaded.
// The returned pipeline is read-only.
func (p *Predictor) Pipeline() *pipeline.Pipeline {
	st := p.state.Load()
	if st == nil {
		return nil
	}
	return st.pipe
}

// Reload invalidates the cached artifact and loads the current one. This is
// the explicit post-promotion hook; a running process never hot-swaps
// without it.
func (p *Predictor) Reload(ctx context.Context) error {
	p.mu.Lock()
	p.state.Store(nil)
	p.attempted = false
	p.mu.Unlock()
	metrics.RecordModelReload()

	p.ensureLoaded(ctx)
	if p.state.Load() == nil {
		metrics.UpdateModelLoaded(false)
		return ErrModelUnavailable
	}
	return nil
}
