// Package datagen produces synthetic labeled datasets for training
// experiments and local development.
//
// Labels follow the rule engine's composite formula with controlled noise,
// so generated data is learnable but not trivially separable.
package datagen

import (
	"context"
	"encoding/csv"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"

	"github.com/talentops/skillcast/internal/domain/model"
	"github.com/talentops/skillcast/internal/domain/rules"
)

// Config controls generation.
type Config struct {
	Rows      int
	Seed      int64
	NoiseStd  float64 // gaussian noise added to the composite before labeling
	LabelFlip float64 // fraction of rows whose label is randomly reassigned
}

// DefaultConfig returns sensible generation defaults.
func DefaultConfig() Config {
	return Config{
		Rows:      2000,
		Seed:      42,
		NoiseStd:  0.05,
		LabelFlip: 0.02,
	}
}

var (
	roleNames = []string{
		"Data Scientist", "Backend Engineer", "Frontend Engineer", "Product Manager",
		"DevOps Engineer", "Data Engineer", "QA Engineer", "Security Analyst",
	}
	skillNames = []string{
		"Go", "Python", "SQL", "Kubernetes", "React", "Terraform",
		"Spark", "Rust", "TensorFlow", "PostgreSQL",
	}
	skillCategories = []string{"programming", "data", "infrastructure", "security"}
	departments     = []string{"Engineering", "Analytics", "Product", "Platform"}
)

// Generator produces synthetic feature rows.
type Generator struct {
	cfg   Config
	rng   *rand.Rand
	rules *rules.Engine
}

// New creates a generator. The rule engine defines the label structure the
// classifier is expected to recover.
func New(cfg Config, ruleEngine *rules.Engine) *Generator {
	if cfg.Rows < 1 {
		cfg.Rows = DefaultConfig().Rows
	}
	if ruleEngine == nil {
		ruleEngine = rules.New()
	}
	return &Generator{
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(cfg.Seed)),
		rules: ruleEngine,
	}
}

// Row generates one labeled record.
func (g *Generator) Row() (model.FeatureRecord, model.DemandLevel) {
	trend := g.rng.Float64()
	usage := g.rng.Float64()
	requests := float64(g.rng.Intn(51))

	rec := model.FeatureRecord{
		JobRoleName:   roleNames[g.rng.Intn(len(roleNames))],
		SkillName:     skillNames[g.rng.Intn(len(skillNames))],
		SkillCategory: skillCategories[g.rng.Intn(len(skillCategories))],
		JobDepartment: departments[g.rng.Intn(len(departments))],

		TrendScore:        trend,
		InternalUsage:     usage,
		TrainingRequests:  requests,
		ScarcityIndex:     clamp01(1 - 0.6*usage - 0.4*g.rng.Float64()),
		HiringDifficulty:  clamp01(trend*0.7 + g.rng.Float64()*0.3),
		AvgSalaryK:        40 + trend*50 + g.rng.Float64()*10,
		EconomicIndicator: 95 + g.rng.Float64()*15,
	}

	noisy := rec
	noisy.TrendScore = clamp01(trend + g.rng.NormFloat64()*g.cfg.NoiseStd)
	label := g.rules.Predict(noisy).Level

	if g.rng.Float64() < g.cfg.LabelFlip {
		levels := model.Levels()
		label = levels[g.rng.Intn(len(levels))]
	}
	return rec, label
}

// WriteCSV generates cfg.Rows labeled rows into a dataset file the loader
// accepts.
func (g *Generator) WriteCSV(_ context.Context, path string) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	w := csv.NewWriter(file)
	header := append(append([]string{}, model.CategoricalColumns()...), model.NumericColumns()...)
	header = append(header, model.ColLabel)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for i := 0; i < g.cfg.Rows; i++ {
		rec, label := g.Row()
		row := make([]string, 0, len(header))
		for _, col := range model.CategoricalColumns() {
			row = append(row, rec.CategoricalValue(col))
		}
		for _, col := range model.NumericColumns() {
			row = append(row, strconv.FormatFloat(rec.NumericValue(col), 'f', 4, 64))
		}
		row = append(row, string(label))
		if err := w.Write(row); err != nil {
			return fmt.Errorf("writing row %d: %w", i, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flushing %s: %w", path, err)
	}
	return nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
