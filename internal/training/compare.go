package training

import (
	"github.com/talentops/skillcast/internal/dataset"
	"github.com/talentops/skillcast/internal/domain/model"
	"github.com/talentops/skillcast/internal/domain/rules"
	"github.com/talentops/skillcast/internal/ml/pipeline"
)

// ComparisonReport contrasts the two engines over one labeled dataset. The
// learned model is scored on rows it may have trained on, so ModelAccuracy
// here is an in-sample figure and not generalization evidence; held-out
// metrics live on the TrainingRun.
type ComparisonReport struct {
	Rows          int                       `json:"rows"`
	Agreement     int                       `json:"agreement"`
	AgreementRate float64                   `json:"agreement_rate"`
	RuleAccuracy  float64                   `json:"rule_accuracy"`
	ModelAccuracy float64                   `json:"model_accuracy"`
	Disagreements map[model.DemandLevel]int `json:"disagreements_by_label"`
	InSample      bool                      `json:"in_sample"`
}

// CompareWithRules predicts every labeled row with both engines and reports
// where they agree and how each tracks the labels.
func CompareWithRules(pipe *pipeline.Pipeline, ruleEngine *rules.Engine, ds *dataset.Dataset) ComparisonReport {
	report := ComparisonReport{
		Rows:          len(ds.Rows),
		Disagreements: make(map[model.DemandLevel]int),
		InSample:      true,
	}
	if len(ds.Rows) == 0 {
		return report
	}

	ruleCorrect, modelCorrect := 0, 0
	for _, row := range ds.Rows {
		ruleLevel, _ := ruleEngine.Score(
			row.Numeric[model.ColTrendScore],
			row.Numeric[model.ColInternalUsage],
			row.Numeric[model.ColTrainingRequests],
		)
		modelLevel, _ := pipe.PredictRow(row)

		if ruleLevel == modelLevel {
			report.Agreement++
		} else {
			report.Disagreements[row.Label]++
		}
		if ruleLevel == row.Label {
			ruleCorrect++
		}
		if modelLevel == row.Label {
			modelCorrect++
		}
	}

	n := float64(len(ds.Rows))
	report.AgreementRate = float64(report.Agreement) / n
	report.RuleAccuracy = float64(ruleCorrect) / n
	report.ModelAccuracy = float64(modelCorrect) / n
	return report
}
