// Package explain renders human-readable rationales for predictions.
//
// Two explainer variants share one interface, selected by a capability probe
// at construction time rather than scattered runtime checks:
//
//   - AttributionExplainer computes per-feature attribution for the specific
//     prediction by occluding each feature with the artifact's training
//     baseline and measuring the probability delta.
//   - FormulaOnlyExplainer has no attribution; it reports the rule engine's
//     formula terms. It is the degraded fallback and never fails.
package explain

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/talentops/skillcast/internal/domain/model"
	"github.com/talentops/skillcast/internal/domain/rules"
	"github.com/talentops/skillcast/internal/ml/pipeline"
	"github.com/talentops/skillcast/pkg/metrics"
)

// maxTopFactors bounds the factors named in the rendered sentence.
const maxTopFactors = 2

// readableNames maps raw feature names to business terms for rendering.
var readableNames = map[string]string{ //nolint:gochecknoglobals // fixed translation table
	model.ColTrendScore:        "tendance marché",
	model.ColInternalUsage:     "usage interne",
	model.ColTrainingRequests:  "demandes de formation",
	model.ColScarcityIndex:     "rareté des compétences",
	model.ColHiringDifficulty:  "difficulté de recrutement",
	model.ColAvgSalaryK:        "salaire moyen",
	model.ColEconomicIndicator: "indicateur économique",
	model.ColJobRoleName:       "intitulé du poste",
	model.ColSkillName:         "compétence",
	model.ColSkillCategory:     "catégorie de compétence",
	model.ColJobDepartment:     "département",
}

// ReadableName translates a raw feature name, falling back to the raw name.
func ReadableName(feature string) string {
	if name, ok := readableNames[feature]; ok {
		return name
	}
	return feature
}

// Explainer produces an ExplanationRecord for one prediction. Stateless:
// the caller owns the returned record.
type Explainer interface {
	Explain(ctx context.Context, rec model.FeatureRecord, prediction model.PredictionResult) model.ExplanationRecord
}

// Select probes the loaded pipeline's capabilities and returns the richest
// explainer it supports. A nil pipeline or one without baselines degrades to
// the formula-only variant.
func Select(pipe *pipeline.Pipeline, ruleEngine *rules.Engine) Explainer {
	if pipe != nil && pipe.HasBaselines() {
		return &AttributionExplainer{pipe: pipe}
	}
	return &FormulaOnlyExplainer{ruleEngine: ruleEngine}
}

// AttributionExplainer computes baseline-occlusion attribution against the
// pipeline that produced the prediction.
type AttributionExplainer struct {
	pipe *pipeline.Pipeline
}

// Explain measures, for each feature, how much replacing it with its
// training baseline moves the predicted class probability. Positive impact
// means the observed value pushes the prediction up relative to baseline.
// Deterministic: ties in magnitude order by feature name.
func (e *AttributionExplainer) Explain(_ context.Context, rec model.FeatureRecord, prediction model.PredictionResult) model.ExplanationRecord {
	classIdx := prediction.Level.Index()
	if classIdx < 0 {
		classIdx = 0
	}
	origin := e.pipe.PredictProba(rec)[classIdx]

	factors := make([]model.ExplanationFactor, 0, len(e.pipe.NumericColumns)+len(e.pipe.CategoricalColumns))

	for _, col := range e.pipe.NumericColumns {
		baseline, ok := e.pipe.Base.NumericMean[col]
		if !ok {
			continue
		}
		occluded := e.pipe.PredictProba(rec.WithNumericValue(col, baseline))[classIdx]
		factors = append(factors, factor(col, origin-occluded))
	}
	for _, col := range e.pipe.CategoricalColumns {
		baseline, ok := e.pipe.Base.CategoricalMode[col]
		if !ok {
			continue
		}
		occluded := e.pipe.PredictProba(rec.WithCategoricalValue(col, baseline))[classIdx]
		factors = append(factors, factor(col, origin-occluded))
	}

	sort.SliceStable(factors, func(a, b int) bool {
		if factors[a].Strength != factors[b].Strength {
			return factors[a].Strength > factors[b].Strength
		}
		return factors[a].Feature < factors[b].Feature
	})

	metrics.RecordExplanation("attribution")
	return model.ExplanationRecord{
		TopFactors: factors,
		Text:       renderText(prediction.Level, positiveLeaders(factors)),
		Confidence: prediction.Score / 100,
	}
}

// FormulaOnlyExplainer reports the rule formula terms. Used when attribution
// is impossible: rule-engine predictions, or artifacts without baselines.
type FormulaOnlyExplainer struct {
	ruleEngine *rules.Engine
}

// Explain lists the formula inputs weighted as configured. Strength is the
// configured weight, not a per-prediction attribution.
func (e *FormulaOnlyExplainer) Explain(_ context.Context, _ model.FeatureRecord, prediction model.PredictionResult) model.ExplanationRecord {
	terms := e.ruleEngine.Terms()
	factors := make([]model.ExplanationFactor, 0, len(terms))
	for _, term := range terms {
		factors = append(factors, model.ExplanationFactor{
			Feature:      term.Feature,
			ReadableName: ReadableName(term.Feature),
			Impact:       model.ImpactPositive,
			Strength:     term.Weight,
		})
	}
	sort.SliceStable(factors, func(a, b int) bool {
		if factors[a].Strength != factors[b].Strength {
			return factors[a].Strength > factors[b].Strength
		}
		return factors[a].Feature < factors[b].Feature
	})

	metrics.RecordExplanation("formula")
	return model.ExplanationRecord{
		TopFactors: factors,
		Text:       renderText(prediction.Level, positiveLeaders(factors)),
		Confidence: prediction.Score / 100,
	}
}

func factor(feature string, attribution float64) model.ExplanationFactor {
	impact := model.ImpactPositive
	if attribution < 0 {
		impact = model.ImpactNegative
	}
	strength := attribution
	if strength < 0 {
		strength = -strength
	}
	return model.ExplanationFactor{
		Feature:      feature,
		ReadableName: ReadableName(feature),
		Impact:       impact,
		Strength:     strength,
	}
}

// positiveLeaders returns the readable names of the strongest positive
// contributors, at most maxTopFactors.
func positiveLeaders(factors []model.ExplanationFactor) []string {
	var names []string
	for _, f := range factors {
		if f.Impact != model.ImpactPositive || f.Strength == 0 {
			continue
		}
		names = append(names, f.ReadableName)
		if len(names) == maxTopFactors {
			break
		}
	}
	return names
}

func renderText(level model.DemandLevel, leaders []string) string {
	need := map[model.DemandLevel]string{
		model.LevelLow:    "faible",
		model.LevelMedium: "modéré",
		model.LevelHigh:   "fort",
	}[level]
	if need == "" {
		need = "indéterminé"
	}
	if len(leaders) == 0 {
		return fmt.Sprintf("Besoin %s prévu pour cette compétence.", need)
	}
	return fmt.Sprintf("Besoin %s prévu, porté principalement par %s.", need, strings.Join(leaders, " et "))
}
