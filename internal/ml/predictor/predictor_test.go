package predictor_test

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/talentops/skillcast/internal/dataset"
	model "github.com/talentops/skillcast/internal/domain/model"
	"github.com/talentops/skillcast/internal/ml/pipeline"
	"github.com/talentops/skillcast/internal/ml/predictor"
	"github.com/talentops/skillcast/pkg/logger"
)

func fittedArtifact(t *testing.T) string {
	t.Helper()
	rng := rand.New(rand.NewSource(9))
	rows := make([]dataset.Row, 0, 150)
	for i := 0; i < 150; i++ {
		class := i % 3
		rows = append(rows, dataset.Row{
			Categorical: map[string]string{model.ColJobDepartment: "Engineering"},
			Numeric: map[string]float64{
				model.ColTrendScore:    (float64(class) + rng.Float64()) / 3,
				model.ColInternalUsage: rng.Float64(),
			},
			Label: model.Levels()[class],
		})
	}
	ds := &dataset.Dataset{
		Rows:               rows,
		CategoricalColumns: []string{model.ColJobDepartment},
		NumericColumns:     []string{model.ColTrendScore, model.ColInternalUsage},
	}
	hp := model.DefaultHyperparameters()
	hp.NumTrees = 10
	p, err := pipeline.Fit(ds, hp)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	path := filepath.Join(t.TempDir(), "model.bin")
	if err := p.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	return path
}

// countingSource counts Current calls to observe load-once semantics.
type countingSource struct {
	mu    sync.Mutex
	calls int
	path  string
}

func (s *countingSource) Current(context.Context) (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.path == "" {
		return "", "", predictor.ErrNoArtifact
	}
	return s.path, "v-test", nil
}

func TestPredictor(t *testing.T) {
	if err := logger.Init(); err != nil {
		t.Fatalf("logger init: %v", err)
	}
	ctx := context.Background()

	Convey("Given a predictor over a valid artifact", t, func() {
		path := fittedArtifact(t)
		source := &countingSource{path: path}
		p := predictor.New(source, predictor.WithLogger(logger.Named("predictor-test")))

		Convey("When checking availability", func() {
			So(p.Available(ctx), ShouldBeTrue)

			Convey("Then predictions should work", func() {
				level, score, err := p.PredictLevel(ctx, model.FeatureRecord{
					TrendScore:    0.9,
					JobDepartment: "Engineering",
				})
				So(err, ShouldBeNil)
				So(level.Valid(), ShouldBeTrue)
				So(score, ShouldBeGreaterThanOrEqualTo, 0)
				So(score, ShouldBeLessThanOrEqualTo, 100)
			})

			Convey("And the engine tag should name the loaded version", func() {
				So(p.Engine(), ShouldEqual, model.EngineTag("ml_forest_v-test"))
				So(p.Version(), ShouldEqual, "v-test")
				So(p.Pipeline(), ShouldNotBeNil)
			})
		})

		Convey("When many goroutines race the first access", func() {
			var wg sync.WaitGroup
			for i := 0; i < 32; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_ = p.Available(ctx)
				}()
			}
			wg.Wait()

			Convey("Then the artifact should load exactly once", func() {
				So(source.calls, ShouldEqual, 1)
				So(p.Available(ctx), ShouldBeTrue)
			})
		})

		Convey("When reloading explicitly", func() {
			So(p.Available(ctx), ShouldBeTrue)
			err := p.Reload(ctx)

			Convey("Then the artifact should be read again", func() {
				So(err, ShouldBeNil)
				So(source.calls, ShouldEqual, 2)
				So(p.Available(ctx), ShouldBeTrue)
			})
		})
	})

	Convey("Given a predictor with no artifact to serve", t, func() {
		source := &countingSource{}
		p := predictor.New(source, predictor.WithLogger(logger.Named("predictor-test")))

		Convey("When checking availability", func() {
			available := p.Available(ctx)

			Convey("Then it should report unavailable without raising", func() {
				So(available, ShouldBeFalse)
				So(p.Engine(), ShouldEqual, model.EngineTag(""))
				So(p.Pipeline(), ShouldBeNil)
			})

			Convey("And the failed attempt should be cached until Reload", func() {
				_ = p.Available(ctx)
				_ = p.Available(ctx)
				So(source.calls, ShouldEqual, 1)
			})
		})

		Convey("When predicting anyway", func() {
			_, _, err := p.PredictLevel(ctx, model.FeatureRecord{})

			Convey("Then it should fail with ErrModelUnavailable", func() {
				So(err, ShouldWrap, predictor.ErrModelUnavailable)
			})
		})

		Convey("When the artifact appears later and Reload is called", func() {
			So(p.Available(ctx), ShouldBeFalse)
			source.mu.Lock()
			source.path = fittedArtifact(t)
			source.mu.Unlock()

			err := p.Reload(ctx)

			Convey("Then the predictor should become available", func() {
				So(err, ShouldBeNil)
				So(p.Available(ctx), ShouldBeTrue)
			})
		})
	})

	Convey("Given a predictor over a corrupt artifact", t, func() {
		dir := t.TempDir()
		bad := filepath.Join(dir, "model.bin")
		So(os.WriteFile(bad, []byte("garbage"), 0o644), ShouldBeNil)

		p := predictor.New(predictor.FixedSource{Path: bad},
			predictor.WithLogger(logger.Named("predictor-test")))

		Convey("When checking availability", func() {
			Convey("Then load failure should be swallowed as unavailable", func() {
				So(p.Available(ctx), ShouldBeFalse)
			})
		})
	})
}
