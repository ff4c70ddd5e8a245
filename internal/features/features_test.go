package features

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/talentops/skillcast/pkg/logger"
)

func testLogger(t *testing.T) logger.Logger {
	t.Helper()
	if err := logger.Init(); err != nil {
		t.Fatalf("initializing logger: %v", err)
	}
	return logger.Named("features-test")
}

func seededProvider() *MemoryProvider {
	p := NewMemoryProvider()
	p.AddJobRole(JobRole{ID: "role-ds", Name: "Data Scientist", Department: "Analytics", Sector: "tech"})
	p.AddSkill(Skill{ID: "skill-go", Name: "Go", Category: "programming"})
	p.AddMarketTrend(MarketTrend{Sector: "tech", Year: 2026, TrendScore: 0.6, HiringDifficulty: 0.5, AvgSalaryK: 70, EconomicIndicator: 104})
	p.AddMarketTrend(MarketTrend{Sector: "tech", Year: 2027, TrendScore: 0.85, HiringDifficulty: 0.7, AvgSalaryK: 78, EconomicIndicator: 108})
	p.SetUsageSignal("role-ds", "skill-go", UsageSignal{InternalUsage: 0.3, TrainingRequests: 14, Availability: 0.5})
	return p
}

func fixedClock() func() time.Time {
	return func() time.Time {
		return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	}
}

func TestBuild(t *testing.T) {
	convey.Convey("Given a builder over a seeded snapshot", t, func() {
		builder := NewBuilder(seededProvider(), testLogger(t), WithClock(fixedClock()))
		ctx := context.Background()

		convey.Convey("When building for a 12 month horizon", func() {
			rec, err := builder.Build(ctx, "role-ds", "skill-go", 12)

			convey.Convey("Then the record carries entity names and the 2027 trend", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(rec.JobRoleName, convey.ShouldEqual, "Data Scientist")
				convey.So(rec.SkillName, convey.ShouldEqual, "Go")
				convey.So(rec.SkillCategory, convey.ShouldEqual, "programming")
				convey.So(rec.JobDepartment, convey.ShouldEqual, "Analytics")
				convey.So(rec.TrendScore, convey.ShouldEqual, 0.85)
				convey.So(rec.AvgSalaryK, convey.ShouldEqual, 78)
			})

			convey.Convey("Then usage signals flow through unchanged", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(rec.InternalUsage, convey.ShouldEqual, 0.3)
				convey.So(rec.TrainingRequests, convey.ShouldEqual, 14)
			})

			convey.Convey("Then scarcity reflects usage and availability", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(rec.ScarcityIndex, convey.ShouldAlmostEqual, 1-0.6*0.3-0.4*0.5, 1e-12)
			})
		})

		convey.Convey("When building for a short horizon", func() {
			rec, err := builder.Build(ctx, "role-ds", "skill-go", 3)

			convey.Convey("Then the closer 2026 trend wins", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(rec.TrendScore, convey.ShouldEqual, 0.6)
			})
		})

		convey.Convey("When rebuilt against the same snapshot", func() {
			first, err1 := builder.Build(ctx, "role-ds", "skill-go", 12)
			second, err2 := builder.Build(ctx, "role-ds", "skill-go", 12)

			convey.Convey("Then the records are identical", func() {
				convey.So(err1, convey.ShouldBeNil)
				convey.So(err2, convey.ShouldBeNil)
				convey.So(second, convey.ShouldResemble, first)
			})
		})
	})
}

func TestBuildDegradation(t *testing.T) {
	convey.Convey("Given a snapshot with gaps", t, func() {
		provider := NewMemoryProvider()
		provider.AddJobRole(JobRole{ID: "role-pm", Name: "Product Manager", Department: "Product", Sector: "media"})
		provider.AddSkill(Skill{ID: "skill-sql", Name: "SQL", Category: "data"})
		builder := NewBuilder(provider, testLogger(t), WithClock(fixedClock()))
		ctx := context.Background()

		convey.Convey("When no trend exists for the sector", func() {
			rec, err := builder.Build(ctx, "role-pm", "skill-sql", 6)

			convey.Convey("Then neutral market defaults are used", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(rec.TrendScore, convey.ShouldEqual, 0.5)
				convey.So(rec.HiringDifficulty, convey.ShouldEqual, 0.5)
				convey.So(rec.EconomicIndicator, convey.ShouldEqual, 100)
			})
		})

		convey.Convey("When no usage signal exists for the pair", func() {
			rec, err := builder.Build(ctx, "role-pm", "skill-sql", 6)

			convey.Convey("Then usage degrades to zero and scarcity peaks", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(rec.InternalUsage, convey.ShouldEqual, 0)
				convey.So(rec.TrainingRequests, convey.ShouldEqual, 0)
				convey.So(rec.ScarcityIndex, convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When the job role is unknown", func() {
			_, err := builder.Build(ctx, "role-ghost", "skill-sql", 6)

			convey.Convey("Then the build fails with ErrBuild", func() {
				convey.So(errors.Is(err, ErrBuild), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the skill is unknown", func() {
			_, err := builder.Build(ctx, "role-pm", "skill-ghost", 6)

			convey.Convey("Then the build fails with ErrBuild", func() {
				convey.So(errors.Is(err, ErrBuild), convey.ShouldBeTrue)
			})
		})
	})
}

func TestScarcityIndex(t *testing.T) {
	convey.Convey("Given the scarcity formula", t, func() {
		convey.Convey("When usage and availability are both full", func() {
			convey.So(ScarcityIndex(1, 1), convey.ShouldEqual, 0)
		})

		convey.Convey("When both are zero", func() {
			convey.So(ScarcityIndex(0, 0), convey.ShouldEqual, 1)
		})

		convey.Convey("When inputs exceed their range", func() {
			convey.So(ScarcityIndex(4, -3), convey.ShouldAlmostEqual, 0.4, 1e-12)
		})
	})
}

func TestMemoryProviderPairs(t *testing.T) {
	convey.Convey("Given two roles and two skills", t, func() {
		provider := NewMemoryProvider()
		provider.AddJobRole(JobRole{ID: "role-b"})
		provider.AddJobRole(JobRole{ID: "role-a"})
		provider.AddSkill(Skill{ID: "skill-2"})
		provider.AddSkill(Skill{ID: "skill-1"})

		convey.Convey("When pairs are enumerated", func() {
			pairs, err := provider.Pairs(context.Background())

			convey.Convey("Then the cross product comes back sorted", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(pairs, convey.ShouldResemble, []Pair{
					{JobRoleID: "role-a", SkillID: "skill-1"},
					{JobRoleID: "role-a", SkillID: "skill-2"},
					{JobRoleID: "role-b", SkillID: "skill-1"},
					{JobRoleID: "role-b", SkillID: "skill-2"},
				})
			})
		})
	})
}
