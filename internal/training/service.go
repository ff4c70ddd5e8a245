// Package training runs the offline train-evaluate-promote workflow.
package training

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/talentops/skillcast/internal/adapters/repository"
	"github.com/talentops/skillcast/internal/dataset"
	"github.com/talentops/skillcast/internal/domain/model"
	"github.com/talentops/skillcast/internal/ml/pipeline"
	"github.com/talentops/skillcast/internal/registry"
	"github.com/talentops/skillcast/pkg/logger"
	"github.com/talentops/skillcast/pkg/metrics"
)

// Invocation describes one training request.
type Invocation struct {
	DatasetPath     string
	TestSplit       float64
	Hyperparameters model.Hyperparameters
	VersionLabel    string
	Notes           string
}

// Result reports a completed run.
type Result struct {
	Run      model.TrainingRun
	Version  model.ModelVersion
	Promoted bool
}

// Service orchestrates the training workflow. Not designed for concurrent
// invocation against the same model directory: two simultaneous runs with
// the same version label race on the artifact write.
type Service struct {
	loader   *dataset.Loader
	store    *repository.Store
	registry *registry.Registry
	log      logger.Logger
	modelDir string
	now      func() time.Time
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger.
func WithLogger(log logger.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithModelDir sets the directory trained artifacts are written to.
func WithModelDir(dir string) Option {
	return func(s *Service) {
		if dir != "" {
			s.modelDir = dir
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService wires the training workflow over its collaborators.
func NewService(loader *dataset.Loader, store *repository.Store, reg *registry.Registry, opts ...Option) *Service {
	s := &Service{
		loader:   loader,
		store:    store,
		registry: reg,
		modelDir: "data/models",
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Get().Named("training")
	}
	return s
}

// LoadData reads the dataset and produces a stratified train/test split.
func (s *Service) LoadData(ctx context.Context, path string, testSplit float64, seed int64) (train, test *dataset.Dataset, err error) {
	ds, err := s.loader.LoadFile(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	metrics.UpdateDatasetRows(len(ds.Rows))
	return StratifiedSplit(ds, testSplit, seed)
}

// Train executes the full workflow: load, split, fit, evaluate, persist the
// artifact, record the run, and hand the version to the promotion gate.
// Failures persist a FAILED run before returning; a promotion outage never
// fails the run itself.
func (s *Service) Train(ctx context.Context, inv Invocation) (Result, error) {
	started := s.now()
	run := model.TrainingRun{
		ID:              uuid.NewString(),
		Version:         s.versionLabel(inv, started),
		StartedAt:       started,
		Dataset:         inv.DatasetPath,
		Hyperparameters: inv.Hyperparameters,
		Status:          model.RunRunning,
		Notes:           inv.Notes,
	}
	s.log.Info(ctx, "training run started",
		logger.String("run_id", run.ID),
		logger.String("version", run.Version),
		logger.String("dataset", inv.DatasetPath),
	)

	train, test, err := s.LoadData(ctx, inv.DatasetPath, inv.TestSplit, inv.Hyperparameters.Seed)
	if err != nil {
		return Result{}, s.failRun(ctx, run, err)
	}

	pipe, err := s.fit(ctx, train, inv.Hyperparameters)
	if err != nil {
		return Result{}, s.failRun(ctx, run, err)
	}

	evaluated := Evaluate(pipe, test)
	run.Metrics = &evaluated
	run.FeatureImportance = pipe.ImportanceByFeature()

	artifactPath := filepath.Join(s.modelDir, run.Version+".gob")
	if err := pipe.Save(artifactPath); err != nil {
		return Result{}, s.failRun(ctx, run, fmt.Errorf("%w: saving artifact: %w", ErrTrain, err))
	}

	run.Status = model.RunCompleted
	run.Duration = s.now().Sub(started)
	if err := s.store.SaveTrainingRun(ctx, run); err != nil {
		return Result{}, fmt.Errorf("%w: recording run: %w", ErrTrain, err)
	}
	metrics.RecordTrainingRun(string(model.RunCompleted))
	metrics.RecordTrainingDuration(run.Duration.Seconds())

	version := model.ModelVersion{
		VersionID:        run.Version,
		ArtifactLocation: artifactPath,
		F1Weighted:       evaluated.F1Weighted,
		Metrics:          &evaluated,
		CreatedAt:        s.now(),
	}
	promoted := s.tryPromote(ctx, version)

	s.log.Info(ctx, "training run completed",
		logger.String("run_id", run.ID),
		logger.String("version", run.Version),
		logger.Float64("accuracy", evaluated.Accuracy),
		logger.Float64("f1_weighted", evaluated.F1Weighted),
		logger.Bool("promoted", promoted),
		logger.Duration("duration", run.Duration),
	)
	return Result{Run: run, Version: version, Promoted: promoted}, nil
}

// fit grows the pipeline, honoring a caller-imposed deadline. A timeout
// surfaces as ErrTrain; the fitting goroutine finishes in the background
// and its result is discarded.
func (s *Service) fit(ctx context.Context, train *dataset.Dataset, hp model.Hyperparameters) (*pipeline.Pipeline, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTrain, err)
	}

	type fitOutcome struct {
		pipe *pipeline.Pipeline
		err  error
	}
	done := make(chan fitOutcome, 1)
	go func() {
		pipe, err := pipeline.Fit(train, hp)
		done <- fitOutcome{pipe: pipe, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrTrain, ctx.Err())
	case outcome := <-done:
		if outcome.err != nil {
			return nil, fmt.Errorf("%w: %w", ErrTrain, outcome.err)
		}
		return outcome.pipe, nil
	}
}

// SaveFailedTrainingRun persists a FAILED run so training failures stay
// queryable instead of living only in console output.
func (s *Service) SaveFailedTrainingRun(ctx context.Context, run model.TrainingRun, cause error) error {
	run.Status = model.RunFailed
	run.ErrorMessage = cause.Error()
	run.Duration = s.now().Sub(run.StartedAt)
	run.Metrics = nil
	metrics.RecordTrainingRun(string(model.RunFailed))
	return s.store.SaveTrainingRun(ctx, run)
}

// FailedRuns lists persisted failures newest-first.
func (s *Service) FailedRuns(ctx context.Context) ([]model.TrainingRun, error) {
	return s.store.ListTrainingRuns(ctx, model.RunFailed)
}

func (s *Service) failRun(ctx context.Context, run model.TrainingRun, cause error) error {
	s.log.Error(ctx, "training run failed",
		logger.String("run_id", run.ID),
		logger.Error(cause),
	)
	if err := s.SaveFailedTrainingRun(ctx, run, cause); err != nil {
		s.log.Error(ctx, "failed run could not be persisted",
			logger.String("run_id", run.ID),
			logger.Error(err),
		)
	}
	return cause
}

// tryPromote registers the version and applies the promotion gate. A
// promotion infrastructure failure is logged and absorbed: the training run
// already recorded COMPLETED and must never be lost to a registry outage.
func (s *Service) tryPromote(ctx context.Context, version model.ModelVersion) bool {
	if s.registry == nil {
		return false
	}
	if err := s.registry.Register(ctx, version); err != nil {
		s.log.Error(ctx, "model version registration failed, run remains completed",
			logger.String("version", version.VersionID),
			logger.Error(err),
		)
		return false
	}
	promoted, err := s.registry.EvaluateAndPromote(ctx, version)
	if err != nil {
		s.log.Error(ctx, "promotion failed, run remains completed",
			logger.String("version", version.VersionID),
			logger.Error(err),
		)
		return false
	}
	return promoted
}

func (s *Service) versionLabel(inv Invocation, started time.Time) string {
	if inv.VersionLabel != "" {
		return inv.VersionLabel
	}
	return fmt.Sprintf("%s-%s", started.UTC().Format("20060102T150405"), uuid.NewString()[:8])
}
