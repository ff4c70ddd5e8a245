package training

import (
	"github.com/talentops/skillcast/internal/dataset"
	"github.com/talentops/skillcast/internal/domain/model"
	"github.com/talentops/skillcast/internal/ml/pipeline"
)

// Evaluate scores a fitted pipeline on held-out rows. Per-class metrics
// cover every demand level; a level absent from the test set reports zeros
// with Support 0, never a division error. Macro F1 averages across all
// levels, weighted F1 weights by support.
func Evaluate(pipe *pipeline.Pipeline, test *dataset.Dataset) model.Metrics {
	levels := model.Levels()
	truePos := make([]int, len(levels))
	falsePos := make([]int, len(levels))
	falseNeg := make([]int, len(levels))
	support := make([]int, len(levels))

	correct := 0
	for _, row := range test.Rows {
		predicted, _ := pipe.PredictRow(row)
		actual := row.Label
		support[actual.Index()]++
		if predicted == actual {
			correct++
			truePos[actual.Index()]++
		} else {
			falsePos[predicted.Index()]++
			falseNeg[actual.Index()]++
		}
	}

	metrics := model.Metrics{
		PerClass: make(map[model.DemandLevel]model.ClassMetrics, len(levels)),
	}
	if len(test.Rows) > 0 {
		metrics.Accuracy = float64(correct) / float64(len(test.Rows))
	}

	totalSupport := 0
	for _, level := range levels {
		i := level.Index()
		precision := ratio(truePos[i], truePos[i]+falsePos[i])
		recall := ratio(truePos[i], truePos[i]+falseNeg[i])
		f1 := 0.0
		if precision+recall > 0 {
			f1 = 2 * precision * recall / (precision + recall)
		}

		metrics.PerClass[level] = model.ClassMetrics{
			Precision: precision,
			Recall:    recall,
			F1:        f1,
			Support:   support[i],
		}
		metrics.F1Macro += f1 / float64(len(levels))
		metrics.F1Weighted += f1 * float64(support[i])
		totalSupport += support[i]
	}
	if totalSupport > 0 {
		metrics.F1Weighted /= float64(totalSupport)
	}
	return metrics
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
