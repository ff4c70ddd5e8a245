package training

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/talentops/skillcast/internal/dataset"
	"github.com/talentops/skillcast/internal/domain/model"
)

// StratifiedSplit partitions rows into train and test sets preserving class
// proportions. Deterministic for a fixed seed. Every class must be able to
// appear in both partitions, so a class with fewer than two rows fails with
// dataset.ErrLoad: a model evaluated on a class it never trained on (or
// trained on a class it is never tested on) produces misleading metrics.
func StratifiedSplit(ds *dataset.Dataset, testSplit float64, seed int64) (train, test *dataset.Dataset, err error) {
	if testSplit <= 0 || testSplit >= 1 {
		return nil, nil, fmt.Errorf("%w: test split %.2f outside (0,1)", dataset.ErrLoad, testSplit)
	}

	byClass := make(map[model.DemandLevel][]int)
	for i, row := range ds.Rows {
		byClass[row.Label] = append(byClass[row.Label], i)
	}

	classes := make([]model.DemandLevel, 0, len(byClass))
	for level := range byClass {
		classes = append(classes, level)
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i].Index() < classes[j].Index() })

	rng := rand.New(rand.NewSource(seed))
	var trainIdx, testIdx []int
	for _, level := range classes {
		indices := byClass[level]
		if len(indices) < 2 {
			return nil, nil, fmt.Errorf("%w: class %s has %d row(s), need at least 2 to appear in both split partitions",
				dataset.ErrLoad, level, len(indices))
		}

		shuffled := append([]int(nil), indices...)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})

		n := int(math.Round(testSplit * float64(len(shuffled))))
		// Both partitions keep at least one row per class.
		if n < 1 {
			n = 1
		}
		if n >= len(shuffled) {
			n = len(shuffled) - 1
		}
		testIdx = append(testIdx, shuffled[:n]...)
		trainIdx = append(trainIdx, shuffled[n:]...)
	}

	sort.Ints(trainIdx)
	sort.Ints(testIdx)
	return subset(ds, trainIdx), subset(ds, testIdx), nil
}

func subset(ds *dataset.Dataset, indices []int) *dataset.Dataset {
	rows := make([]dataset.Row, len(indices))
	for i, idx := range indices {
		rows[i] = ds.Rows[idx]
	}
	return &dataset.Dataset{
		Rows:               rows,
		CategoricalColumns: ds.CategoricalColumns,
		NumericColumns:     ds.NumericColumns,
		LabelColumn:        ds.LabelColumn,
		Source:             ds.Source,
	}
}
