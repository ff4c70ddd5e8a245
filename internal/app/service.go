// Package service orchestrates the prediction flow: feature assembly,
// engine selection, explanation, persistence and monitoring.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"

	jobqueue "github.com/talentops/skillcast/internal/adapters/mq/queue"
	workerpool "github.com/talentops/skillcast/internal/adapters/mq/worker"
	"github.com/talentops/skillcast/internal/adapters/repository"
	"github.com/talentops/skillcast/internal/config"
	"github.com/talentops/skillcast/internal/domain/model"
	"github.com/talentops/skillcast/internal/domain/rules"
	"github.com/talentops/skillcast/internal/features"
	"github.com/talentops/skillcast/internal/ml/explain"
	"github.com/talentops/skillcast/internal/ml/pipeline"
	"github.com/talentops/skillcast/internal/ml/predictor"
	"github.com/talentops/skillcast/internal/monitor"
	"github.com/talentops/skillcast/pkg/logger"
	"github.com/talentops/skillcast/pkg/metrics"
)

// ErrPredict is the failure kind for prediction requests that cannot even
// reach an engine, such as unknown entities. Engine unavailability is never
// surfaced through it.
var ErrPredict = errors.New("prediction failed")

// EngineChoice is one engine selection decision, made once per request or
// once per batch.
type EngineChoice struct {
	UseLearned bool
	Fallback   bool // learned was configured but unavailable
}

// SelectEngine decides which engine serves a request. Pure: config and
// availability in, choice out. The fallback flag is only set when the
// learned engine was asked for and could not serve, so callers can warn
// exactly once per decision.
func SelectEngine(cfg *config.Config, learnedAvailable bool) EngineChoice {
	if !cfg.UseLearnedModel {
		return EngineChoice{}
	}
	if !learnedAvailable {
		return EngineChoice{Fallback: true}
	}
	return EngineChoice{UseLearned: true}
}

// BatchItem is one row of a batch prediction outcome. Err is set when that
// row failed; other rows are unaffected.
type BatchItem struct {
	Pair   features.Pair
	Result model.PredictionResult
	Err    error
}

// Service is the prediction orchestrator.
type Service struct {
	configProvider config.Provider
	builder        *features.Builder
	provider       features.DataProvider
	ruleEngine     *rules.Engine
	learned        *predictor.Predictor
	store          *repository.Store
	sink           monitor.Sink
	log            logger.Logger

	workerCount int
	queueSize   int
	now         func() time.Time
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

// WithWorkerCount sets the number of recalculation workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize bounds the recalculation job queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithMonitorSink sets the prediction log sink.
func WithMonitorSink(sink monitor.Sink) Option {
	return func(s *Service) {
		if sink != nil {
			s.sink = sink
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

// New wires the orchestrator over its collaborators. The store may be nil
// for deployments that do not persist predictions.
func New(
	configProvider config.Provider,
	dataProvider features.DataProvider,
	builder *features.Builder,
	ruleEngine *rules.Engine,
	learned *predictor.Predictor,
	store *repository.Store,
	opts ...Option,
) *Service {
	s := &Service{
		configProvider: configProvider,
		provider:       dataProvider,
		builder:        builder,
		ruleEngine:     ruleEngine,
		learned:        learned,
		store:          store,
		sink:           monitor.NopSink{},
		workerCount:    runtime.NumCPU() * 2,
		queueSize:      10_000,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Get().Named("orchestrator")
	}
	return s
}

// Predict forecasts demand for one (job role, skill) pair. The result always
// carries a rationale; an explanation is attached only when requested, in the
// variant matching the engine that ran. ML unavailability never fails the
// request.
func (s *Service) Predict(ctx context.Context, jobRoleID, skillID string, horizonMonths int, withExplanation bool) (model.PredictionResult, error) {
	cfg, err := s.configProvider(ctx)
	if err != nil {
		return model.PredictionResult{}, fmt.Errorf("%w: reading configuration: %w", ErrPredict, err)
	}

	choice := SelectEngine(cfg, s.learned.Available(ctx))
	if choice.Fallback {
		s.warnFallback(ctx)
	}
	return s.predictOne(ctx, cfg, choice, jobRoleID, skillID, horizonMonths, withExplanation)
}

// predictOne runs one prediction under an already-made engine choice.
func (s *Service) predictOne(ctx context.Context, cfg *config.Config, choice EngineChoice, jobRoleID, skillID string, horizonMonths int, withExplanation bool) (model.PredictionResult, error) {
	start := s.now()

	rec, err := s.builder.Build(ctx, jobRoleID, skillID, horizonMonths)
	if err != nil {
		metrics.RecordPredictionError()
		return model.PredictionResult{}, fmt.Errorf("%w: %w", ErrPredict, err)
	}

	result := s.runEngine(ctx, choice, rec)
	if withExplanation {
		// Attribution only applies to the engine that actually ran: a
		// rules result explains itself with the formula terms.
		var pipe *pipeline.Pipeline
		if result.Engine != model.EngineRules {
			pipe = s.learned.Pipeline()
		}
		record := explain.Select(pipe, s.ruleEngine).Explain(ctx, rec, result)
		result.Explanation = &record
	}

	metrics.RecordPrediction(string(result.Engine))
	metrics.RecordPredictionLatency(float64(s.now().Sub(start).Milliseconds()))

	s.persist(ctx, cfg, jobRoleID, skillID, horizonMonths, rec, result)
	return result, nil
}

// runEngine executes the chosen engine. A race where the learned model
// becomes unavailable between selection and execution degrades to rules; the
// engine tag always names what actually ran.
func (s *Service) runEngine(ctx context.Context, choice EngineChoice, rec model.FeatureRecord) model.PredictionResult {
	if choice.UseLearned {
		level, score, err := s.learned.PredictLevel(ctx, rec)
		if err == nil {
			return model.PredictionResult{
				Level:     level,
				Score:     score,
				Engine:    s.learned.Engine(),
				Rationale: fmt.Sprintf("classifier confidence %.1f%% for %s", score, level),
			}
		}
		s.warnFallback(ctx)
	}
	return s.ruleEngine.Predict(rec)
}

func (s *Service) warnFallback(ctx context.Context) {
	metrics.RecordEngineFallback()
	s.log.Warn(ctx, "learned model unavailable, serving rule engine",
		logger.String("fallback_engine", string(model.EngineRules)),
	)
}

func (s *Service) persist(ctx context.Context, cfg *config.Config, jobRoleID, skillID string, horizonMonths int, rec model.FeatureRecord, result model.PredictionResult) {
	if s.store != nil {
		if err := s.store.UpsertPrediction(ctx, jobRoleID, skillID, horizonMonths, result, s.learned.Version()); err != nil {
			s.log.Error(ctx, "prediction could not be persisted",
				logger.String("job_role_id", jobRoleID),
				logger.String("skill_id", skillID),
				logger.Error(err),
			)
		}
	}

	if !cfg.MonitoringEnabled {
		return
	}
	entry := model.PredictionLogEntry{
		JobRoleID:     jobRoleID,
		SkillID:       skillID,
		HorizonMonths: horizonMonths,
		Level:         result.Level,
		Score:         result.Score,
		Engine:        result.Engine,
		ModelVersion:  s.learned.Version(),
		Features:      rec,
	}
	if err := s.sink.Record(ctx, entry); err != nil {
		s.log.Error(ctx, "monitoring record dropped", logger.Error(err))
	}
}

// BatchPredict forecasts many pairs under a single engine selection
// decision: one configuration read, one availability check, at most one
// fallback warning. Per-row failures land in their BatchItem; the batch
// itself only fails when configuration cannot be read.
func (s *Service) BatchPredict(ctx context.Context, pairs []features.Pair, horizonMonths int) ([]BatchItem, error) {
	cfg, err := s.configProvider(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: reading configuration: %w", ErrPredict, err)
	}

	choice := SelectEngine(cfg, s.learned.Available(ctx))
	if choice.Fallback {
		s.warnFallback(ctx)
	}
	metrics.RecordBatchSize(len(pairs))

	items := make([]BatchItem, len(pairs))
	for i, pair := range pairs {
		result, perr := s.predictOne(ctx, cfg, choice, pair.JobRoleID, pair.SkillID, horizonMonths, false)
		items[i] = BatchItem{Pair: pair, Result: result, Err: perr}
	}
	return items, nil
}

// RecalculateAll re-predicts every known (job role, skill) pair through the
// worker pool and records an audit row naming the trigger, the engine that
// served the run and the failure count.
func (s *Service) RecalculateAll(ctx context.Context, trigger string, horizonMonths int, params map[string]string) (model.RecalculationAudit, error) {
	cfg, err := s.configProvider(ctx)
	if err != nil {
		return model.RecalculationAudit{}, fmt.Errorf("%w: reading configuration: %w", ErrPredict, err)
	}

	pairs, err := s.provider.Pairs(ctx)
	if err != nil {
		return model.RecalculationAudit{}, fmt.Errorf("%w: enumerating pairs: %w", ErrPredict, err)
	}

	choice := SelectEngine(cfg, s.learned.Available(ctx))
	if choice.Fallback {
		s.warnFallback(ctx)
	}

	started := s.now()
	engine := model.EngineRules
	if choice.UseLearned {
		engine = s.learned.Engine()
	}

	q := jobqueue.NewInMemoryQueue(
		jobqueue.WithCapacity(s.queueSize),
		jobqueue.WithBufferSize(s.queueSize),
	)

	failures := make(chan struct{}, len(pairs))
	pool := workerpool.NewPool(q, workerpool.ProcessorFunc(func(ctx context.Context, job jobqueue.Job) error {
		_, perr := s.predictOne(ctx, cfg, choice, job.JobRoleID, job.SkillID, job.HorizonMonths, false)
		if perr != nil {
			failures <- struct{}{}
			return perr
		}
		return nil
	}), s.workerCount, workerpool.WithLogger(s.log))

	pool.Start(ctx)
	for _, pair := range pairs {
		job := jobqueue.Job{JobRoleID: pair.JobRoleID, SkillID: pair.SkillID, HorizonMonths: horizonMonths}
		if !q.Enqueue(ctx, job) {
			failures <- struct{}{}
		}
	}
	_ = q.Close()
	pool.Wait()
	close(failures)

	failureCount := 0
	for range failures {
		failureCount++
	}

	audit := model.RecalculationAudit{
		ID:            uuid.NewString(),
		StartedAt:     started,
		Duration:      s.now().Sub(started),
		Trigger:       trigger,
		Engine:        engine,
		HorizonMonths: horizonMonths,
		PairCount:     len(pairs),
		FailureCount:  failureCount,
		Params:        params,
	}
	if s.store != nil {
		if err := s.store.SaveRecalculationAudit(ctx, audit); err != nil {
			s.log.Error(ctx, "recalculation audit could not be persisted", logger.Error(err))
		}
	}

	s.log.Info(ctx, "recalculation finished",
		logger.String("trigger", trigger),
		logger.String("engine", string(engine)),
		logger.Int("pairs", len(pairs)),
		logger.Int("failures", failureCount),
		logger.Duration("duration", audit.Duration),
	)
	return audit, nil
}

// ReloadModel invalidates the cached artifact and loads the current
// production one, the explicit post-promotion hook.
func (s *Service) ReloadModel(ctx context.Context) error {
	return s.learned.Reload(ctx)
}
