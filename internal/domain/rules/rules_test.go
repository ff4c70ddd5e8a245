package rules_test

import (
	"math"
	"testing"

	model "github.com/talentops/skillcast/internal/domain/model"
	rules "github.com/talentops/skillcast/internal/domain/rules"
	. "github.com/smartystreets/goconvey/convey"
)

func TestEngineScore(t *testing.T) {
	Convey("Given a rule engine with default weights", t, func() {
		engine := rules.New()

		Convey("When all signals are at their maximum", func() {
			level, score := engine.Score(1.0, 1.0, 1000)

			Convey("Then it should predict HIGH with a full score", func() {
				So(level, ShouldEqual, model.LevelHigh)
				So(score, ShouldEqual, 100.0)
			})
		})

		Convey("When all signals are zero", func() {
			level, score := engine.Score(0, 0, 0)

			Convey("Then it should predict LOW with a zero score", func() {
				So(level, ShouldEqual, model.LevelLow)
				So(score, ShouldEqual, 0.0)
			})
		})

		Convey("When the composite lands between the thresholds", func() {
			// 0.5*0.5 + 0.3*0.5 + 0.2*0 = 0.4 exactly at the medium cut
			level, score := engine.Score(0.5, 0.5, 0)

			Convey("Then it should predict MEDIUM", func() {
				So(level, ShouldEqual, model.LevelMedium)
				So(score, ShouldAlmostEqual, 40.0, 1e-9)
			})
		})

		Convey("When training requests exceed the expected maximum", func() {
			_, capped := engine.Score(0, 0, 50)
			_, beyond := engine.Score(0, 0, 5000)

			Convey("Then the normalized term should saturate", func() {
				So(beyond, ShouldAlmostEqual, capped, 1e-9)
				So(capped, ShouldAlmostEqual, 20.0, 1e-9)
			})
		})

		Convey("When inputs are out of range", func() {
			Convey("Then negative inputs should clamp to zero, not fail", func() {
				level, score := engine.Score(-3, -1, -10)
				So(level, ShouldEqual, model.LevelLow)
				So(score, ShouldEqual, 0.0)
			})

			Convey("Then oversized inputs should clamp to the maximum", func() {
				level, score := engine.Score(42, 17, 1e9)
				So(level, ShouldEqual, model.LevelHigh)
				So(score, ShouldEqual, 100.0)
			})

			Convey("Then NaN inputs should be treated as zero", func() {
				level, score := engine.Score(math.NaN(), math.NaN(), math.NaN())
				So(level, ShouldEqual, model.LevelLow)
				So(score, ShouldEqual, 0.0)
				So(math.IsNaN(score), ShouldBeFalse)
			})
		})

		Convey("When sweeping each input with others held constant", func() {
			Convey("Then the score should be monotonic non-decreasing", func() {
				prev := -1.0
				for v := 0.0; v <= 1.0; v += 0.05 {
					_, s := engine.Score(v, 0.5, 10)
					So(s, ShouldBeGreaterThanOrEqualTo, prev)
					prev = s
				}

				prev = -1.0
				for v := 0.0; v <= 1.0; v += 0.05 {
					_, s := engine.Score(0.5, v, 10)
					So(s, ShouldBeGreaterThanOrEqualTo, prev)
					prev = s
				}

				prev = -1.0
				for v := 0.0; v <= 60; v += 3 {
					_, s := engine.Score(0.5, 0.5, v)
					So(s, ShouldBeGreaterThanOrEqualTo, prev)
					prev = s
				}
			})
		})

		Convey("When scoring the full input grid", func() {
			Convey("Then every result should be a valid level and score", func() {
				for trend := 0.0; trend <= 1.0; trend += 0.25 {
					for usage := 0.0; usage <= 1.0; usage += 0.25 {
						for req := 0.0; req <= 100; req += 25 {
							level, score := engine.Score(trend, usage, req)
							So(level.Valid(), ShouldBeTrue)
							So(score, ShouldBeGreaterThanOrEqualTo, 0)
							So(score, ShouldBeLessThanOrEqualTo, 100)
						}
					}
				}
			})
		})
	})
}

func TestEngineOptions(t *testing.T) {
	Convey("Given a rule engine with custom configuration", t, func() {
		engine := rules.New(
			rules.WithWeights(0.6, 0.2, 0.2),
			rules.WithThresholds(0.5, 0.8),
			rules.WithMaxTrainingRequests(10),
		)

		Convey("When scoring with the custom weights", func() {
			// 0.6*1 + 0.2*0 + 0.2*1 = 0.8 with requests saturating at 10
			level, score := engine.Score(1.0, 0, 10)

			Convey("Then the custom thresholds should apply", func() {
				So(level, ShouldEqual, model.LevelHigh)
				So(score, ShouldAlmostEqual, 80.0, 1e-9)
			})
		})

		Convey("When invalid options are supplied", func() {
			bad := rules.New(
				rules.WithWeights(0.9, 0.9, 0.9),
				rules.WithThresholds(0.8, 0.2),
				rules.WithMaxTrainingRequests(-1),
			)

			Convey("Then defaults should be kept", func() {
				level, score := bad.Score(1.0, 1.0, 1000)
				So(level, ShouldEqual, model.LevelHigh)
				So(score, ShouldEqual, 100.0)
			})
		})
	})
}

func TestEnginePredict(t *testing.T) {
	Convey("Given a rule engine", t, func() {
		engine := rules.New()

		Convey("When predicting from a feature record", func() {
			rec := model.FeatureRecord{
				TrendScore:       0.9,
				InternalUsage:    0.8,
				TrainingRequests: 40,
				// the remaining features must not influence the formula
				ScarcityIndex:    0.99,
				HiringDifficulty: 0.99,
				AvgSalaryK:       250,
			}
			result := engine.Predict(rec)

			Convey("Then the result should carry the rules engine tag", func() {
				So(result.Engine, ShouldEqual, model.EngineRules)
				So(result.Level, ShouldEqual, model.LevelHigh)
				So(result.Score, ShouldBeGreaterThan, 70)
			})

			Convey("And only the three formula inputs should matter", func() {
				same := engine.Predict(model.FeatureRecord{
					TrendScore:       0.9,
					InternalUsage:    0.8,
					TrainingRequests: 40,
				})
				So(same.Score, ShouldAlmostEqual, result.Score, 1e-9)
				So(same.Level, ShouldEqual, result.Level)
			})
		})

		Convey("When reading the formula terms", func() {
			terms := engine.Terms()

			Convey("Then the documented weights should be exposed in order", func() {
				So(len(terms), ShouldEqual, 3)
				So(terms[0].Feature, ShouldEqual, model.ColTrendScore)
				So(terms[0].Weight, ShouldEqual, 0.5)
				So(terms[1].Feature, ShouldEqual, model.ColInternalUsage)
				So(terms[1].Weight, ShouldEqual, 0.3)
				So(terms[2].Feature, ShouldEqual, model.ColTrainingRequests)
				So(terms[2].Weight, ShouldEqual, 0.2)
			})
		})
	})
}
