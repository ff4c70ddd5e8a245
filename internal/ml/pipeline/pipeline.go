// Package pipeline bundles preprocessing and the forest classifier into one
// serializable unit: the model artifact.
//
// Categorical columns are one-hot encoded, numeric columns standardized.
// Construction degrades gracefully to numeric-only or categorical-only
// subsets when one group is empty. The fitted artifact also carries
// per-feature baselines (mean / mode) so attribution can occlude features
// without access to the training data.
package pipeline

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/talentops/skillcast/internal/dataset"
	"github.com/talentops/skillcast/internal/domain/model"
	"github.com/talentops/skillcast/internal/ml/forest"
)

// FormatVersion is bumped on incompatible artifact layout changes. Load
// rejects artifacts with a different version.
const FormatVersion = 1

// Sentinel error kinds for this package.
var (
	ErrFit      = errors.New("pipeline fit failed")
	ErrArtifact = errors.New("model artifact invalid")
)

// Baselines are the reference values attribution occludes features with.
type Baselines struct {
	NumericMean     map[string]float64
	CategoricalMode map[string]string
}

// Pipeline is a fitted preprocessing+classifier unit. All fields are
// exported for gob; treat a loaded pipeline as read-only.
type Pipeline struct {
	Version            int
	TrainedAt          time.Time
	Hyper              model.Hyperparameters
	CategoricalColumns []string
	Categories         map[string][]string // sorted distinct values per column
	NumericColumns     []string
	Mean               []float64 // aligned with NumericColumns
	Std                []float64
	Classes            []model.DemandLevel
	Forest             *forest.Forest
	Base               Baselines
}

// Fit builds the preprocessing stages from the dataset and grows the forest
// on the encoded matrix.
func Fit(ds *dataset.Dataset, hp model.Hyperparameters) (*Pipeline, error) {
	if ds == nil || len(ds.Rows) == 0 {
		return nil, fmt.Errorf("%w: empty dataset", ErrFit)
	}
	if len(ds.CategoricalColumns)+len(ds.NumericColumns) == 0 {
		return nil, fmt.Errorf("%w: no feature columns", ErrFit)
	}

	p := &Pipeline{
		Version:            FormatVersion,
		TrainedAt:          time.Now().UTC(),
		Hyper:              hp,
		CategoricalColumns: append([]string(nil), ds.CategoricalColumns...),
		NumericColumns:     append([]string(nil), ds.NumericColumns...),
		Categories:         make(map[string][]string, len(ds.CategoricalColumns)),
		Classes:            model.Levels(),
		Base: Baselines{
			NumericMean:     make(map[string]float64, len(ds.NumericColumns)),
			CategoricalMode: make(map[string]string, len(ds.CategoricalColumns)),
		},
	}

	p.fitCategories(ds)
	p.fitScaler(ds)

	x := make([][]float64, len(ds.Rows))
	y := make([]int, len(ds.Rows))
	for i, row := range ds.Rows {
		x[i] = p.transformRow(row)
		y[i] = row.Label.Index()
	}

	fitted, err := forest.Fit(x, y, forest.Config{
		NumTrees:    hp.NumTrees,
		MaxDepth:    hp.MaxDepth,
		MinLeafSize: hp.MinLeafSize,
		NumClasses:  len(p.Classes),
		Seed:        hp.Seed,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFit, err)
	}
	p.Forest = fitted
	return p, nil
}

func (p *Pipeline) fitCategories(ds *dataset.Dataset) {
	for _, col := range p.CategoricalColumns {
		freq := make(map[string]int)
		for _, row := range ds.Rows {
			freq[row.Categorical[col]]++
		}
		values := make([]string, 0, len(freq))
		for v := range freq {
			values = append(values, v)
		}
		sort.Strings(values)
		p.Categories[col] = values

		// Mode baseline; ties resolve to the lexicographically smallest value.
		best, bestCount := "", -1
		for _, v := range values {
			if freq[v] > bestCount {
				best, bestCount = v, freq[v]
			}
		}
		p.Base.CategoricalMode[col] = best
	}
}

func (p *Pipeline) fitScaler(ds *dataset.Dataset) {
	n := float64(len(ds.Rows))
	p.Mean = make([]float64, len(p.NumericColumns))
	p.Std = make([]float64, len(p.NumericColumns))
	for j, col := range p.NumericColumns {
		mean := 0.0
		for _, row := range ds.Rows {
			mean += row.Numeric[col]
		}
		mean /= n

		variance := 0.0
		for _, row := range ds.Rows {
			d := row.Numeric[col] - mean
			variance += d * d
		}
		std := math.Sqrt(variance / n)
		if std == 0 {
			std = 1 // constant column: pass through centered
		}

		p.Mean[j] = mean
		p.Std[j] = std
		p.Base.NumericMean[col] = mean
	}
}

// Width returns the encoded feature vector width.
func (p *Pipeline) Width() int {
	w := len(p.NumericColumns)
	for _, col := range p.CategoricalColumns {
		w += len(p.Categories[col])
	}
	return w
}

// transformRow encodes a training row: scaled numerics first, then one-hot
// groups per categorical column.
func (p *Pipeline) transformRow(row dataset.Row) []float64 {
	out := make([]float64, 0, p.Width())
	for j, col := range p.NumericColumns {
		out = append(out, (row.Numeric[col]-p.Mean[j])/p.Std[j])
	}
	for _, col := range p.CategoricalColumns {
		out = append(out, p.oneHot(col, row.Categorical[col])...)
	}
	return out
}

// Transform encodes a prediction-time feature record with the same layout.
// Categorical values unseen at fit time encode to an all-zero group.
func (p *Pipeline) Transform(rec model.FeatureRecord) []float64 {
	out := make([]float64, 0, p.Width())
	for j, col := range p.NumericColumns {
		out = append(out, (rec.NumericValue(col)-p.Mean[j])/p.Std[j])
	}
	for _, col := range p.CategoricalColumns {
		out = append(out, p.oneHot(col, rec.CategoricalValue(col))...)
	}
	return out
}

func (p *Pipeline) oneHot(col, value string) []float64 {
	values := p.Categories[col]
	group := make([]float64, len(values))
	i := sort.SearchStrings(values, value)
	if i < len(values) && values[i] == value {
		group[i] = 1
	}
	return group
}

// PredictProba runs the full pipeline and returns the class distribution
// aligned with Classes.
func (p *Pipeline) PredictProba(rec model.FeatureRecord) []float64 {
	return p.Forest.PredictProba(p.Transform(rec))
}

// PredictLevel returns the argmax class and its probability mass scaled to
// [0,100].
func (p *Pipeline) PredictLevel(rec model.FeatureRecord) (model.DemandLevel, float64) {
	probs := p.PredictProba(rec)
	best := 0
	for c := 1; c < len(probs); c++ {
		if probs[c] > probs[best] {
			best = c
		}
	}
	return p.Classes[best], probs[best] * 100
}

// PredictRow classifies one dataset row, for evaluation on held-out splits.
func (p *Pipeline) PredictRow(row dataset.Row) (model.DemandLevel, float64) {
	probs := p.Forest.PredictProba(p.transformRow(row))
	best := 0
	for c := 1; c < len(probs); c++ {
		if probs[c] > probs[best] {
			best = c
		}
	}
	return p.Classes[best], probs[best] * 100
}

// HasBaselines reports whether the artifact carries occlusion baselines,
// the capability the attribution explainer requires.
func (p *Pipeline) HasBaselines() bool {
	return len(p.Base.NumericMean) > 0 || len(p.Base.CategoricalMode) > 0
}

// EncodedFeatureNames returns one name per encoded column, e.g.
// "trend_score" or "job_department=Engineering".
func (p *Pipeline) EncodedFeatureNames() []string {
	names := make([]string, 0, p.Width())
	names = append(names, p.NumericColumns...)
	for _, col := range p.CategoricalColumns {
		for _, v := range p.Categories[col] {
			names = append(names, fmt.Sprintf("%s=%s", col, v))
		}
	}
	return names
}

// sourceFeatures maps each encoded column index back to its raw feature.
func (p *Pipeline) sourceFeatures() []string {
	src := make([]string, 0, p.Width())
	src = append(src, p.NumericColumns...)
	for _, col := range p.CategoricalColumns {
		for range p.Categories[col] {
			src = append(src, col)
		}
	}
	return src
}

// ImportanceByFeature aggregates the forest's encoded-column importances
// back to raw feature names, ranked descending. Returns an empty ranking
// when the model exposes no importances.
func (p *Pipeline) ImportanceByFeature() []model.FeatureWeight {
	if p.Forest == nil {
		return nil
	}
	encoded := p.Forest.FeatureImportances()
	src := p.sourceFeatures()
	if len(encoded) != len(src) {
		// Encoded/raw mismatch: fall back to trimming to the shorter side
		// rather than failing; importances are advisory.
		n := len(encoded)
		if len(src) < n {
			n = len(src)
		}
		encoded = encoded[:n]
		src = src[:n]
	}

	byFeature := make(map[string]float64)
	total := 0.0
	for i, w := range encoded {
		byFeature[src[i]] += w
		total += w
	}
	if total == 0 {
		return nil
	}

	ranked := make([]model.FeatureWeight, 0, len(byFeature))
	for f, w := range byFeature {
		ranked = append(ranked, model.FeatureWeight{Feature: f, Weight: w})
	}
	sort.Slice(ranked, func(a, b int) bool {
		if ranked[a].Weight != ranked[b].Weight {
			return ranked[a].Weight > ranked[b].Weight
		}
		return ranked[a].Feature < ranked[b].Feature
	})
	return ranked
}
