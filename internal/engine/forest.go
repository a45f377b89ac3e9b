package engine

import (
	"math"
	"math/rand"
	"sort"
)

// IsolationForest is an unsupervised outlier detector. Anomalous points
// isolate in fewer random splits, giving them shorter average path
// lengths across the ensemble.
//
// Decision values follow the usual convention: the offset is set at the
// contamination quantile of the training scores, so roughly that fraction
// of training points lands below zero and lower values mean more
// anomalous.
type IsolationForest struct {
	trees         []*isoTree
	subsampleSize int
	offset        float64
	fitted        bool
}

type isoTree struct {
	root *isoNode
}

type isoNode struct {
	left, right *isoNode
	splitDim    int
	splitVal    float64
	// size is the number of samples at an external node; the expected
	// path length of an unbuilt subtree stands in for its depth.
	size int
}

// IsolationForestConfig controls ensemble construction.
type IsolationForestConfig struct {
	Trees         int
	SubsampleSize int
	Contamination float64
	Seed          int64
}

// NewIsolationForest creates an unfitted forest.
func NewIsolationForest(cfg IsolationForestConfig) *IsolationForest {
	if cfg.Trees <= 0 {
		cfg.Trees = 100
	}
	if cfg.SubsampleSize <= 0 {
		cfg.SubsampleSize = 256
	}
	return &IsolationForest{
		trees:         make([]*isoTree, 0, cfg.Trees),
		subsampleSize: cfg.SubsampleSize,
	}
}

// Fit builds the ensemble on the given samples and calibrates the offset
// so that the configured contamination fraction of training points scores
// below zero.
func (f *IsolationForest) Fit(samples [][]float64, contamination float64, rng *rand.Rand) {
	n := len(samples)
	if n == 0 {
		return
	}
	sub := f.subsampleSize
	if sub > n {
		sub = n
	}
	maxDepth := int(math.Ceil(math.Log2(float64(sub))))

	trees := cap(f.trees)
	f.trees = f.trees[:0]
	for t := 0; t < trees; t++ {
		idx := rng.Perm(n)[:sub]
		batch := make([][]float64, sub)
		for i, j := range idx {
			batch[i] = samples[j]
		}
		f.trees = append(f.trees, &isoTree{root: buildIsoNode(batch, 0, maxDepth, rng)})
	}
	f.fitted = true

	// Calibrate the offset at the contamination quantile.
	scores := make([]float64, n)
	for i, s := range samples {
		scores[i] = f.rawScore(s)
	}
	f.offset = quantile(scores, contamination)
}

func buildIsoNode(samples [][]float64, depth, maxDepth int, rng *rand.Rand) *isoNode {
	n := len(samples)
	if n <= 1 || depth >= maxDepth {
		return &isoNode{size: n}
	}

	dims := len(samples[0])
	dim := rng.Intn(dims)

	lo, hi := samples[0][dim], samples[0][dim]
	for _, s := range samples[1:] {
		if s[dim] < lo {
			lo = s[dim]
		}
		if s[dim] > hi {
			hi = s[dim]
		}
	}
	if lo == hi {
		return &isoNode{size: n}
	}

	split := lo + rng.Float64()*(hi-lo)
	var left, right [][]float64
	for _, s := range samples {
		if s[dim] < split {
			left = append(left, s)
		} else {
			right = append(right, s)
		}
	}
	return &isoNode{
		splitDim: dim,
		splitVal: split,
		left:     buildIsoNode(left, depth+1, maxDepth, rng),
		right:    buildIsoNode(right, depth+1, maxDepth, rng),
	}
}

// Decision returns the calibrated decision value for a point. Lower (more
// negative) means more anomalous; training points below the contamination
// quantile score negative.
func (f *IsolationForest) Decision(point []float64) float64 {
	return f.rawScore(point) - f.offset
}

// Fitted reports whether the forest has been trained.
func (f *IsolationForest) Fitted() bool {
	return f.fitted
}

// rawScore is the negated anomaly score -s(x, n) in (-1, 0); higher means
// more normal.
func (f *IsolationForest) rawScore(point []float64) float64 {
	if len(f.trees) == 0 {
		return 0
	}
	total := 0.0
	for _, t := range f.trees {
		total += t.pathLength(point)
	}
	avg := total / float64(len(f.trees))
	return -math.Pow(2, -avg/avgPathLength(f.subsampleSize))
}

func (t *isoTree) pathLength(point []float64) float64 {
	depth := 0.0
	node := t.root
	for node.left != nil {
		if point[node.splitDim] < node.splitVal {
			node = node.left
		} else {
			node = node.right
		}
		depth++
	}
	return depth + avgPathLength(node.size)
}

// avgPathLength is c(n), the expected path length of an unsuccessful BST
// search over n points, used both to terminate truncated branches and to
// normalize scores.
func avgPathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	fn := float64(n)
	// harmonic number approximation H(n-1) ~ ln(n-1) + Euler-Mascheroni
	h := math.Log(fn-1) + 0.5772156649
	return 2*h - 2*(fn-1)/fn
}

// quantile returns the q-th quantile of values using nearest-rank on a
// sorted copy.
func quantile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	rank := int(q * float64(len(sorted)))
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	if rank < 0 {
		rank = 0
	}
	return sorted[rank]
}
