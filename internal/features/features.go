// Package features assembles model-ready feature records for (job role,
// skill) pairs from external domain data.
package features

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/talentops/skillcast/internal/domain/model"
	"github.com/talentops/skillcast/pkg/logger"
)

// ErrBuild is the failure kind for feature assembly. The zero-value usage
// signal is a valid degraded input and does not trigger it; only missing
// identities do.
var ErrBuild = errors.New("feature build failed")

// JobRole is the organizational role a demand question is asked about.
type JobRole struct {
	ID         string
	Name       string
	Department string
	Sector     string
}

// Skill is the competency being forecast.
type Skill struct {
	ID       string
	Name     string
	Category string
}

// MarketTrend is one external market observation for a sector and year.
type MarketTrend struct {
	Sector            string
	Year              int
	TrendScore        float64
	HiringDifficulty  float64
	AvgSalaryK        float64
	EconomicIndicator float64
}

// UsageSignal aggregates organizational signals for a (role, skill) pair.
// Usage and Availability live in [0,1]; TrainingRequests is a raw count.
type UsageSignal struct {
	InternalUsage    float64
	TrainingRequests int
	Availability     float64
}

// Pair identifies one (job role, skill) combination to forecast.
type Pair struct {
	JobRoleID string
	SkillID   string
}

// DataProvider is the queryable external data source the builder consumes.
// Implementations must be deterministic for a fixed data snapshot.
type DataProvider interface {
	JobRole(ctx context.Context, id string) (JobRole, error)
	Skill(ctx context.Context, id string) (Skill, error)
	MarketTrends(ctx context.Context, sector string) ([]MarketTrend, error)
	UsageSignal(ctx context.Context, jobRoleID, skillID string) (UsageSignal, error)
	Pairs(ctx context.Context) ([]Pair, error)
}

// Builder turns a (role, skill) identity plus a horizon into a FeatureRecord.
type Builder struct {
	provider DataProvider
	log      logger.Logger
	now      func() time.Time
}

// Option customizes a Builder.
type Option func(*Builder)

// WithClock overrides the time source used to anchor year proximity.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) {
		if now != nil {
			b.now = now
		}
	}
}

// NewBuilder wires a Builder over the provider.
func NewBuilder(provider DataProvider, log logger.Logger, opts ...Option) *Builder {
	if log == nil {
		log = logger.Get().Named("features")
	}
	b := &Builder{
		provider: provider,
		log:      log,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build assembles the feature record for one pair at the given horizon.
func (b *Builder) Build(ctx context.Context, jobRoleID, skillID string, horizonMonths int) (model.FeatureRecord, error) {
	role, err := b.provider.JobRole(ctx, jobRoleID)
	if err != nil {
		return model.FeatureRecord{}, fmt.Errorf("%w: job role %s: %w", ErrBuild, jobRoleID, err)
	}
	skill, err := b.provider.Skill(ctx, skillID)
	if err != nil {
		return model.FeatureRecord{}, fmt.Errorf("%w: skill %s: %w", ErrBuild, skillID, err)
	}

	trend := b.resolveTrend(ctx, role.Sector, horizonMonths)

	signal, err := b.provider.UsageSignal(ctx, jobRoleID, skillID)
	if err != nil {
		// Missing signals degrade to zeros rather than failing the
		// prediction; the pair simply looks unused internally.
		b.log.Warn(ctx, "usage signal unavailable, assuming zero usage",
			logger.String("job_role_id", jobRoleID),
			logger.String("skill_id", skillID),
			logger.Error(err),
		)
		signal = UsageSignal{}
	}

	return model.FeatureRecord{
		JobRoleName:   role.Name,
		SkillName:     skill.Name,
		SkillCategory: skill.Category,
		JobDepartment: role.Department,

		TrendScore:        clamp01(trend.TrendScore),
		InternalUsage:     clamp01(signal.InternalUsage),
		TrainingRequests:  float64(max(signal.TrainingRequests, 0)),
		ScarcityIndex:     ScarcityIndex(signal.InternalUsage, signal.Availability),
		HiringDifficulty:  clamp01(trend.HiringDifficulty),
		AvgSalaryK:        trend.AvgSalaryK,
		EconomicIndicator: trend.EconomicIndicator,
	}, nil
}

// resolveTrend picks the market trend closest to the horizon's target year
// for the role's sector. Absent trends degrade to a neutral observation.
func (b *Builder) resolveTrend(ctx context.Context, sector string, horizonMonths int) MarketTrend {
	trends, err := b.provider.MarketTrends(ctx, sector)
	if err != nil || len(trends) == 0 {
		b.log.Warn(ctx, "no market trend for sector, using neutral defaults",
			logger.String("sector", sector),
		)
		return neutralTrend(sector)
	}

	target := b.targetYear(horizonMonths)
	best := trends[0]
	bestDist := yearDistance(best.Year, target)
	for _, t := range trends[1:] {
		d := yearDistance(t.Year, target)
		// Ties resolve to the later observation so forecasts prefer
		// fresher market data.
		if d < bestDist || (d == bestDist && t.Year > best.Year) {
			best, bestDist = t, d
		}
	}
	return best
}

func (b *Builder) targetYear(horizonMonths int) int {
	return b.now().AddDate(0, horizonMonths, 0).Year()
}

func yearDistance(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}

func neutralTrend(sector string) MarketTrend {
	return MarketTrend{
		Sector:            sector,
		TrendScore:        0.5,
		HiringDifficulty:  0.5,
		AvgSalaryK:        50,
		EconomicIndicator: 100,
	}
}

// ScarcityIndex derives scarcity from internal usage and market availability.
// Low usage and low availability both raise scarcity; the result is clamped
// to [0,1].
func ScarcityIndex(internalUsage, availability float64) float64 {
	const usageWeight, availabilityWeight = 0.6, 0.4
	scarcity := 1 - usageWeight*clamp01(internalUsage) - availabilityWeight*clamp01(availability)
	return clamp01(scarcity)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(1, math.Max(0, v))
}
