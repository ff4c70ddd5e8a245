package registry_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/talentops/skillcast/internal/adapters/repository"
	"github.com/talentops/skillcast/internal/domain/model"
	"github.com/talentops/skillcast/internal/ml/predictor"
	"github.com/talentops/skillcast/internal/registry"
	"github.com/talentops/skillcast/pkg/logger"
)

func newTestRegistry(t *testing.T) (*registry.Registry, *repository.Store) {
	t.Helper()
	if err := logger.Init(); err != nil {
		t.Fatalf("initializing logger: %v", err)
	}
	store, err := repository.Open(filepath.Join(t.TempDir(), "registry.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	base := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	tick := 0
	clock := func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}
	return registry.New(store,
		registry.WithLogger(logger.Named("registry-test")),
		registry.WithClock(clock),
	), store
}

func version(id string, f1 float64) model.ModelVersion {
	return model.ModelVersion{
		VersionID:        id,
		ArtifactLocation: "models/" + id + ".gob",
		F1Weighted:       f1,
	}
}

func TestPromotionGate(t *testing.T) {
	convey.Convey("Given an empty registry", t, func() {
		reg, store := newTestRegistry(t)
		ctx := context.Background()

		convey.Convey("When the first version is registered and evaluated", func() {
			v1 := version("v1", 0.8)
			convey.So(reg.Register(ctx, v1), convey.ShouldBeNil)
			promoted, err := reg.EvaluateAndPromote(ctx, v1)

			convey.Convey("Then it promotes unconditionally", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(promoted, convey.ShouldBeTrue)

				prod, perr := reg.Production(ctx)
				convey.So(perr, convey.ShouldBeNil)
				convey.So(prod.VersionID, convey.ShouldEqual, "v1")
				convey.So(prod.Stage, convey.ShouldEqual, model.StageProduction)
			})

			convey.Convey("And a weaker candidate arrives", func() {
				v2 := version("v2", 0.8)
				convey.So(reg.Register(ctx, v2), convey.ShouldBeNil)
				promoted, err := reg.EvaluateAndPromote(ctx, v2)

				convey.Convey("Then an equal metric does not promote", func() {
					convey.So(err, convey.ShouldBeNil)
					convey.So(promoted, convey.ShouldBeFalse)

					prod, perr := reg.Production(ctx)
					convey.So(perr, convey.ShouldBeNil)
					convey.So(prod.VersionID, convey.ShouldEqual, "v1")
				})
			})

			convey.Convey("And a strictly better candidate arrives", func() {
				v3 := version("v3", 0.86)
				convey.So(reg.Register(ctx, v3), convey.ShouldBeNil)
				promoted, err := reg.EvaluateAndPromote(ctx, v3)

				convey.Convey("Then it takes production and v1 is archived", func() {
					convey.So(err, convey.ShouldBeNil)
					convey.So(promoted, convey.ShouldBeTrue)

					prod, perr := reg.Production(ctx)
					convey.So(perr, convey.ShouldBeNil)
					convey.So(prod.VersionID, convey.ShouldEqual, "v3")

					old, gerr := store.GetModelVersion(ctx, "v1")
					convey.So(gerr, convey.ShouldBeNil)
					convey.So(old.Stage, convey.ShouldEqual, model.StageArchived)
				})
			})
		})

		convey.Convey("When promoting a version that was never registered", func() {
			_, err := reg.EvaluateAndPromote(ctx, version("ghost", 0.99))

			convey.Convey("Then ErrPromotion surfaces", func() {
				convey.So(errors.Is(err, registry.ErrPromotion), convey.ShouldBeTrue)
			})
		})
	})
}

func TestArtifactSource(t *testing.T) {
	convey.Convey("Given a registry acting as an artifact source", t, func() {
		reg, _ := newTestRegistry(t)
		ctx := context.Background()

		var source predictor.ArtifactSource = reg

		convey.Convey("When no version holds production", func() {
			_, _, err := source.Current(ctx)

			convey.Convey("Then it reports no artifact", func() {
				convey.So(errors.Is(err, predictor.ErrNoArtifact), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When a version is promoted", func() {
			v1 := version("v1", 0.8)
			convey.So(reg.Register(ctx, v1), convey.ShouldBeNil)
			_, err := reg.EvaluateAndPromote(ctx, v1)
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then the source serves its artifact and version", func() {
				location, versionID, cerr := source.Current(ctx)
				convey.So(cerr, convey.ShouldBeNil)
				convey.So(location, convey.ShouldEqual, "models/v1.gob")
				convey.So(versionID, convey.ShouldEqual, "v1")
			})
		})
	})
}
