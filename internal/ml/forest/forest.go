// Package forest implements a class-weighted random forest classifier over
// dense numeric feature vectors.
//
// Trees are CART-style with Gini impurity, grown on bootstrap samples with a
// random feature subset per split. Class weights are balanced
// (n / (k * count_c)) so minority classes are not drowned out. Fitting is
// deterministic for a fixed seed.
package forest

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// Default growth limits.
const (
	defaultNumTrees    = 100
	defaultMaxDepth    = 12
	defaultMinLeafSize = 2
)

// Config controls forest growth.
type Config struct {
	NumTrees    int
	MaxDepth    int
	MinLeafSize int
	NumClasses  int
	Seed        int64
}

// ErrFit covers invalid training input (empty set, ragged rows, labels out
// of range).
var ErrFit = errors.New("forest fit failed")

// Node is one tree node. Exported fields so gob can serialize trees.
type Node struct {
	Feature   int
	Threshold float64
	Left      *Node
	Right     *Node
	Probs     []float64 // class distribution at leaves, nil for internal nodes
}

// Tree is a single fitted decision tree.
type Tree struct {
	Root *Node
}

// Forest is the fitted ensemble.
type Forest struct {
	Trees       []*Tree
	NumClasses  int
	NumFeatures int
	Importances []float64 // normalized mean decrease in impurity, per feature
}

// Fit grows a forest on the given matrix. Labels must be in [0, NumClasses).
func Fit(x [][]float64, y []int, cfg Config) (*Forest, error) {
	if len(x) == 0 || len(x) != len(y) {
		return nil, fmt.Errorf("%w: need matching non-empty x/y, got %d/%d rows", ErrFit, len(x), len(y))
	}
	if cfg.NumClasses < 2 {
		return nil, fmt.Errorf("%w: need at least 2 classes, got %d", ErrFit, cfg.NumClasses)
	}
	numFeatures := len(x[0])
	if numFeatures == 0 {
		return nil, fmt.Errorf("%w: zero-width feature matrix", ErrFit)
	}
	for i, row := range x {
		if len(row) != numFeatures {
			return nil, fmt.Errorf("%w: ragged row %d: %d features, want %d", ErrFit, i, len(row), numFeatures)
		}
	}
	for i, label := range y {
		if label < 0 || label >= cfg.NumClasses {
			return nil, fmt.Errorf("%w: label %d out of range at row %d", ErrFit, label, i)
		}
	}

	if cfg.NumTrees <= 0 {
		cfg.NumTrees = defaultNumTrees
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = defaultMaxDepth
	}
	if cfg.MinLeafSize <= 0 {
		cfg.MinLeafSize = defaultMinLeafSize
	}

	weights := balancedClassWeights(y, cfg.NumClasses)

	rng := rand.New(rand.NewSource(cfg.Seed)) //nolint:gosec // deterministic seed for reproducible training
	mtry := int(math.Max(1, math.Round(math.Sqrt(float64(numFeatures)))))

	f := &Forest{
		Trees:       make([]*Tree, 0, cfg.NumTrees),
		NumClasses:  cfg.NumClasses,
		NumFeatures: numFeatures,
		Importances: make([]float64, numFeatures),
	}

	for t := 0; t < cfg.NumTrees; t++ {
		g := &grower{
			x:           x,
			y:           y,
			classWeight: weights,
			numClasses:  cfg.NumClasses,
			maxDepth:    cfg.MaxDepth,
			minLeaf:     cfg.MinLeafSize,
			mtry:        mtry,
			rng:         rand.New(rand.NewSource(rng.Int63())), //nolint:gosec // derived deterministic stream per tree
			importances: make([]float64, numFeatures),
		}

		// Bootstrap sample with replacement.
		idx := make([]int, len(x))
		for i := range idx {
			idx[i] = g.rng.Intn(len(x))
		}

		root := g.grow(idx, 0)
		f.Trees = append(f.Trees, &Tree{Root: root})
		for j := range f.Importances {
			f.Importances[j] += g.importances[j]
		}
	}

	normalize(f.Importances)
	return f, nil
}

// PredictProba returns the averaged class distribution over all trees.
func (f *Forest) PredictProba(x []float64) []float64 {
	probs := make([]float64, f.NumClasses)
	if len(f.Trees) == 0 {
		return probs
	}
	for _, tree := range f.Trees {
		leaf := tree.Root
		for leaf.Probs == nil {
			if x[leaf.Feature] <= leaf.Threshold {
				leaf = leaf.Left
			} else {
				leaf = leaf.Right
			}
		}
		for c, p := range leaf.Probs {
			probs[c] += p
		}
	}
	for c := range probs {
		probs[c] /= float64(len(f.Trees))
	}
	return probs
}

// Predict returns the argmax class of PredictProba. Ties resolve to the
// lowest class index for determinism.
func (f *Forest) Predict(x []float64) int {
	probs := f.PredictProba(x)
	best := 0
	for c := 1; c < len(probs); c++ {
		if probs[c] > probs[best] {
			best = c
		}
	}
	return best
}

// FeatureImportances returns the normalized per-feature mean decrease in
// impurity. The slice sums to 1 unless the forest never split.
func (f *Forest) FeatureImportances() []float64 {
	out := make([]float64, len(f.Importances))
	copy(out, f.Importances)
	return out
}

// grower holds per-tree growth state.
type grower struct {
	x           [][]float64
	y           []int
	classWeight []float64
	numClasses  int
	maxDepth    int
	minLeaf     int
	mtry        int
	rng         *rand.Rand
	importances []float64
}

func (g *grower) grow(idx []int, depth int) *Node {
	counts := g.weightedCounts(idx)
	total := sum(counts)
	impurity := gini(counts, total)

	if depth >= g.maxDepth || len(idx) < 2*g.minLeaf || impurity == 0 {
		return g.leaf(counts, total)
	}

	feat, thr, gain, left, right := g.bestSplit(idx, counts, total, impurity)
	if gain <= 0 {
		return g.leaf(counts, total)
	}

	g.importances[feat] += gain

	return &Node{
		Feature:   feat,
		Threshold: thr,
		Left:      g.grow(left, depth+1),
		Right:     g.grow(right, depth+1),
	}
}

func (g *grower) leaf(counts []float64, total float64) *Node {
	probs := make([]float64, g.numClasses)
	if total > 0 {
		for c, w := range counts {
			probs[c] = w / total
		}
	}
	return &Node{Probs: probs}
}

// bestSplit scans a random feature subset for the weighted-Gini-optimal
// threshold. Features are scanned in ascending index order so results are
// stable for a fixed rng stream.
func (g *grower) bestSplit(idx []int, parentCounts []float64, parentTotal, parentImpurity float64) (feat int, thr float64, gain float64, left, right []int) {
	features := g.sampleFeatures()
	gain = -1

	type pair struct {
		v float64
		i int
	}
	pairs := make([]pair, len(idx))

	for _, f := range features {
		for k, i := range idx {
			pairs[k] = pair{v: g.x[i][f], i: i}
		}
		sort.Slice(pairs, func(a, b int) bool {
			if pairs[a].v != pairs[b].v {
				return pairs[a].v < pairs[b].v
			}
			return pairs[a].i < pairs[b].i
		})

		leftCounts := make([]float64, g.numClasses)
		leftTotal := 0.0
		for k := 0; k < len(pairs)-1; k++ {
			w := g.classWeight[g.y[pairs[k].i]]
			leftCounts[g.y[pairs[k].i]] += w
			leftTotal += w

			if pairs[k+1].v == pairs[k].v {
				continue
			}
			if k+1 < g.minLeaf || len(pairs)-k-1 < g.minLeaf {
				continue
			}

			rightTotal := parentTotal - leftTotal
			childImpurity := 0.0
			if parentTotal > 0 {
				rightCounts := make([]float64, g.numClasses)
				for c := range rightCounts {
					rightCounts[c] = parentCounts[c] - leftCounts[c]
				}
				childImpurity = (leftTotal*gini(leftCounts, leftTotal) +
					rightTotal*gini(rightCounts, rightTotal)) / parentTotal
			}

			candidate := (parentImpurity - childImpurity) * parentTotal
			if candidate > gain {
				gain = candidate
				feat = f
				thr = (pairs[k].v + pairs[k+1].v) / 2
			}
		}
	}

	if gain <= 0 {
		return 0, 0, 0, nil, nil
	}

	for _, i := range idx {
		if g.x[i][feat] <= thr {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return feat, thr, gain, left, right
}

// sampleFeatures draws mtry distinct feature indices, returned sorted.
func (g *grower) sampleFeatures() []int {
	d := len(g.x[0])
	if g.mtry >= d {
		all := make([]int, d)
		for i := range all {
			all[i] = i
		}
		return all
	}
	perm := g.rng.Perm(d)[:g.mtry]
	sort.Ints(perm)
	return perm
}

func (g *grower) weightedCounts(idx []int) []float64 {
	counts := make([]float64, g.numClasses)
	for _, i := range idx {
		counts[g.y[i]] += g.classWeight[g.y[i]]
	}
	return counts
}

// balancedClassWeights gives each present class weight n/(k*count_c), the
// standard "balanced" scheme. Absent classes get weight 0.
func balancedClassWeights(y []int, numClasses int) []float64 {
	counts := make([]int, numClasses)
	present := 0
	for _, label := range y {
		if counts[label] == 0 {
			present++
		}
		counts[label]++
	}
	weights := make([]float64, numClasses)
	for c, n := range counts {
		if n > 0 {
			weights[c] = float64(len(y)) / (float64(present) * float64(n))
		}
	}
	return weights
}

func gini(counts []float64, total float64) float64 {
	if total <= 0 {
		return 0
	}
	impurity := 1.0
	for _, w := range counts {
		p := w / total
		impurity -= p * p
	}
	return impurity
}

func sum(vs []float64) float64 {
	s := 0.0
	for _, v := range vs {
		s += v
	}
	return s
}

func normalize(vs []float64) {
	s := sum(vs)
	if s <= 0 {
		return
	}
	for i := range vs {
		vs[i] /= s
	}
}
