package service_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/talentops/skillcast/internal/adapters/repository"
	service "github.com/talentops/skillcast/internal/app"
	"github.com/talentops/skillcast/internal/config"
	"github.com/talentops/skillcast/internal/dataset"
	"github.com/talentops/skillcast/internal/domain/model"
	"github.com/talentops/skillcast/internal/domain/rules"
	"github.com/talentops/skillcast/internal/features"
	"github.com/talentops/skillcast/internal/ml/pipeline"
	"github.com/talentops/skillcast/internal/ml/predictor"
	"github.com/talentops/skillcast/internal/monitor"
	"github.com/talentops/skillcast/pkg/logger"
)

func initLogger(t *testing.T) {
	t.Helper()
	if err := logger.Init(); err != nil {
		t.Fatalf("initializing logger: %v", err)
	}
}

// trainedArtifact fits a small classifier on banded data and saves it.
func trainedArtifact(t *testing.T, dir string) string {
	t.Helper()

	ds := &dataset.Dataset{
		CategoricalColumns: model.CategoricalColumns(),
		NumericColumns:     model.NumericColumns(),
		LabelColumn:        model.ColLabel,
	}
	bands := []struct {
		label model.DemandLevel
		value float64
	}{
		{model.LevelLow, 0.1},
		{model.LevelMedium, 0.5},
		{model.LevelHigh, 0.9},
	}
	for _, band := range bands {
		for i := 0; i < 20; i++ {
			jitter := 0.004 * float64(i%10)
			ds.Rows = append(ds.Rows, dataset.Row{
				Categorical: map[string]string{
					model.ColJobRoleName:   "Data Scientist",
					model.ColSkillName:     "Go",
					model.ColSkillCategory: "tech",
					model.ColJobDepartment: "Engineering",
				},
				Numeric: map[string]float64{
					model.ColTrendScore:        band.value + jitter,
					model.ColInternalUsage:     band.value + jitter,
					model.ColTrainingRequests:  band.value * 50,
					model.ColScarcityIndex:     1 - band.value,
					model.ColHiringDifficulty:  band.value,
					model.ColAvgSalaryK:        50 + band.value*30,
					model.ColEconomicIndicator: 100,
				},
				Label: band.label,
			})
		}
	}

	hp := model.DefaultHyperparameters()
	hp.NumTrees = 20
	hp.MaxDepth = 6
	pipe, err := pipeline.Fit(ds, hp)
	if err != nil {
		t.Fatalf("fitting pipeline: %v", err)
	}

	path := filepath.Join(dir, "model.gob")
	if err := pipe.Save(path); err != nil {
		t.Fatalf("saving artifact: %v", err)
	}
	return path
}

func seededProvider() *features.MemoryProvider {
	p := features.NewMemoryProvider()
	roles := []features.JobRole{
		{ID: "role-ds", Name: "Data Scientist", Department: "Analytics", Sector: "tech"},
		{ID: "role-be", Name: "Backend Engineer", Department: "Engineering", Sector: "tech"},
	}
	skills := []features.Skill{
		{ID: "skill-go", Name: "Go", Category: "programming"},
		{ID: "skill-sql", Name: "SQL", Category: "data"},
	}
	for _, role := range roles {
		p.AddJobRole(role)
	}
	for _, skill := range skills {
		p.AddSkill(skill)
	}
	p.AddMarketTrend(features.MarketTrend{Sector: "tech", Year: 2027, TrendScore: 0.9, HiringDifficulty: 0.7, AvgSalaryK: 75, EconomicIndicator: 105})
	for _, role := range roles {
		for _, skill := range skills {
			p.SetUsageSignal(role.ID, skill.ID, features.UsageSignal{InternalUsage: 0.8, TrainingRequests: 40, Availability: 0.2})
		}
	}
	return p
}

type fixture struct {
	svc      *service.Service
	store    *repository.Store
	provider *features.MemoryProvider
	cfg      *config.Config
}

func newFixture(t *testing.T, artifactPath string, useLearned bool) fixture {
	t.Helper()
	initLogger(t)

	cfg := config.New()
	cfg.UseLearnedModel = useLearned
	cfg.MonitoringEnabled = true

	store, err := repository.Open(filepath.Join(t.TempDir(), "app.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	sink, err := monitor.NewFileSink(filepath.Join(t.TempDir(), "predictions.jsonl"))
	if err != nil {
		t.Fatalf("opening sink: %v", err)
	}
	t.Cleanup(func() { _ = sink.Close() })

	provider := seededProvider()
	log := logger.Named("app-test")
	svc := service.New(
		config.Static(cfg),
		provider,
		features.NewBuilder(provider, log),
		rules.New(),
		predictor.New(predictor.FixedSource{Path: artifactPath}, predictor.WithLogger(log)),
		store,
		service.WithLogger(log),
		service.WithMonitorSink(sink),
		service.WithWorkerCount(2),
	)
	return fixture{svc: svc, store: store, provider: provider, cfg: cfg}
}

func TestSelectEngine(t *testing.T) {
	convey.Convey("Given the engine selection function", t, func() {
		cfg := config.New()

		convey.Convey("When the learned model is disabled", func() {
			cfg.UseLearnedModel = false
			choice := service.SelectEngine(cfg, true)

			convey.Convey("Then rules serve without a fallback", func() {
				convey.So(choice.UseLearned, convey.ShouldBeFalse)
				convey.So(choice.Fallback, convey.ShouldBeFalse)
			})
		})

		convey.Convey("When enabled and available", func() {
			cfg.UseLearnedModel = true
			choice := service.SelectEngine(cfg, true)

			convey.So(choice.UseLearned, convey.ShouldBeTrue)
			convey.So(choice.Fallback, convey.ShouldBeFalse)
		})

		convey.Convey("When enabled but unavailable", func() {
			cfg.UseLearnedModel = true
			choice := service.SelectEngine(cfg, false)

			convey.Convey("Then rules serve and the decision is flagged", func() {
				convey.So(choice.UseLearned, convey.ShouldBeFalse)
				convey.So(choice.Fallback, convey.ShouldBeTrue)
			})
		})
	})
}

func TestPredictWithLearnedModel(t *testing.T) {
	convey.Convey("Given an orchestrator with a loaded model", t, func() {
		f := newFixture(t, trainedArtifact(t, t.TempDir()), true)
		ctx := context.Background()

		convey.Convey("When predicting a high-demand pair", func() {
			result, err := f.svc.Predict(ctx, "role-ds", "skill-go", 12, false)

			convey.Convey("Then the learned engine serves with a forest tag", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(string(result.Engine), convey.ShouldStartWith, "ml_forest_")
				convey.So(result.Level.Valid(), convey.ShouldBeTrue)
				convey.So(result.Score, convey.ShouldBeBetweenOrEqual, 0, 100)
				convey.So(result.Rationale, convey.ShouldNotBeEmpty)
			})

			convey.Convey("Then the prediction is persisted", func() {
				convey.So(err, convey.ShouldBeNil)
				n, cerr := f.store.CountPredictions(ctx)
				convey.So(cerr, convey.ShouldBeNil)
				convey.So(n, convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When an explanation is requested", func() {
			result, err := f.svc.Predict(ctx, "role-ds", "skill-go", 12, true)

			convey.Convey("Then attribution factors accompany the result", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(result.Explanation, convey.ShouldNotBeNil)
				convey.So(len(result.Explanation.TopFactors), convey.ShouldBeBetweenOrEqual, 1, 2)
				convey.So(result.Explanation.Text, convey.ShouldNotBeEmpty)
			})
		})

		convey.Convey("When the role is unknown", func() {
			_, err := f.svc.Predict(ctx, "role-ghost", "skill-go", 12, false)

			convey.Convey("Then the request fails before any engine runs", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "role-ghost")
			})
		})
	})
}

func TestFallbackToRules(t *testing.T) {
	convey.Convey("Given a configured learned model whose artifact is missing", t, func() {
		f := newFixture(t, filepath.Join(t.TempDir(), "missing.gob"), true)
		ctx := context.Background()

		convey.Convey("When a single prediction runs", func() {
			result, err := f.svc.Predict(ctx, "role-ds", "skill-go", 12, false)

			convey.Convey("Then rules serve and the tag says so", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(result.Engine, convey.ShouldEqual, model.EngineRules)
				convey.So(result.Rationale, convey.ShouldNotBeEmpty)
			})
		})

		convey.Convey("When a batch runs", func() {
			pairs := []features.Pair{
				{JobRoleID: "role-ds", SkillID: "skill-go"},
				{JobRoleID: "role-ds", SkillID: "skill-sql"},
				{JobRoleID: "role-be", SkillID: "skill-go"},
			}
			items, err := f.svc.BatchPredict(ctx, pairs, 12)

			convey.Convey("Then every row carries the rules tag", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(items, convey.ShouldHaveLength, 3)
				for _, item := range items {
					convey.So(item.Err, convey.ShouldBeNil)
					convey.So(item.Result.Engine, convey.ShouldEqual, model.EngineRules)
				}
			})
		})
	})
}

func TestRulesPreferredByConfig(t *testing.T) {
	convey.Convey("Given a loaded model with the learned engine disabled", t, func() {
		f := newFixture(t, trainedArtifact(t, t.TempDir()), false)
		ctx := context.Background()

		convey.Convey("When predicting", func() {
			result, err := f.svc.Predict(ctx, "role-ds", "skill-go", 12, true)

			convey.Convey("Then rules serve with a formula-only explanation", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(result.Engine, convey.ShouldEqual, model.EngineRules)
				convey.So(result.Explanation, convey.ShouldNotBeNil)
				for _, factor := range result.Explanation.TopFactors {
					convey.So(factor.Feature, convey.ShouldBeIn,
						model.ColTrendScore, model.ColInternalUsage, model.ColTrainingRequests)
				}
			})
		})
	})
}

func TestBatchPartialFailure(t *testing.T) {
	convey.Convey("Given a batch including an unknown skill", t, func() {
		f := newFixture(t, trainedArtifact(t, t.TempDir()), true)
		ctx := context.Background()

		pairs := []features.Pair{
			{JobRoleID: "role-ds", SkillID: "skill-go"},
			{JobRoleID: "role-ds", SkillID: "skill-ghost"},
			{JobRoleID: "role-be", SkillID: "skill-sql"},
		}

		convey.Convey("When the batch runs", func() {
			items, err := f.svc.BatchPredict(ctx, pairs, 12)

			convey.Convey("Then only the broken row fails", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(items[0].Err, convey.ShouldBeNil)
				convey.So(items[1].Err, convey.ShouldNotBeNil)
				convey.So(items[2].Err, convey.ShouldBeNil)
			})
		})
	})
}

func TestRecalculateAll(t *testing.T) {
	convey.Convey("Given an orchestrator over four known pairs", t, func() {
		f := newFixture(t, trainedArtifact(t, t.TempDir()), true)
		ctx := context.Background()

		convey.Convey("When a manual recalculation runs", func() {
			audit, err := f.svc.RecalculateAll(ctx, model.TriggerManual, 12, map[string]string{"reason": "refresh"})

			convey.Convey("Then the audit names trigger, engine and counts", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(audit.Trigger, convey.ShouldEqual, model.TriggerManual)
				convey.So(strings.HasPrefix(string(audit.Engine), "ml_forest_"), convey.ShouldBeTrue)
				convey.So(audit.PairCount, convey.ShouldEqual, 4)
				convey.So(audit.FailureCount, convey.ShouldEqual, 0)
			})

			convey.Convey("Then every pair has a stored prediction and the audit persists", func() {
				convey.So(err, convey.ShouldBeNil)

				n, cerr := f.store.CountPredictions(ctx)
				convey.So(cerr, convey.ShouldBeNil)
				convey.So(n, convey.ShouldEqual, 4)

				audits, aerr := f.store.ListRecalculationAudits(ctx)
				convey.So(aerr, convey.ShouldBeNil)
				convey.So(audits, convey.ShouldHaveLength, 1)
				convey.So(audits[0].PairCount, convey.ShouldEqual, 4)
			})
		})
	})
}
