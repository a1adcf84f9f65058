package learn

import (
	"math/rand/v2"
	"sort"
)

const leaf = -1

// Tree is a fitted binary classification tree in flat-array form. Node 0 is
// the root. For an internal node n, rows with x[Feature[n]] <= Threshold[n]
// go to Left[n], the rest to Right[n]. Leaves have Feature -1 and carry the
// weighted class distribution in Value.
type Tree struct {
	Feature   []int       `json:"feature"`
	Threshold []float64   `json:"threshold"`
	Left      []int       `json:"left"`
	Right     []int       `json:"right"`
	Value     [][]float64 `json:"value"`
}

// TreeParams bound tree growth.
type TreeParams struct {
	MaxDepth        int `json:"max_depth"`
	MinSamplesSplit int `json:"min_samples_split"`
	MinSamplesLeaf  int `json:"min_samples_leaf"`
	MaxFeatures     int `json:"max_features"`
}

// Predict returns the class distribution of the leaf reached by x.
func (t *Tree) Predict(x []float64) []float64 {
	n := 0
	for t.Feature[n] != leaf {
		if x[t.Feature[n]] <= t.Threshold[n] {
			n = t.Left[n]
		} else {
			n = t.Right[n]
		}
	}
	return t.Value[n]
}

// NodeCount returns the number of nodes.
func (t *Tree) NodeCount() int { return len(t.Feature) }

type treeBuilder struct {
	x          [][]float64
	y          []int
	w          []float64
	classes    int
	params     TreeParams
	rng        *rand.Rand
	tree       *Tree
	importance []float64
	features   []int
}

// growTree fits a tree on the rows in idx using per-row weights w. Rows with
// zero weight must not be in idx.
func growTree(x [][]float64, y []int, w []float64, idx []int, classes int, p TreeParams, rng *rand.Rand) (*Tree, []float64) {
	d := len(x[0])
	b := &treeBuilder{
		x: x, y: y, w: w,
		classes:    classes,
		params:     p,
		rng:        rng,
		tree:       &Tree{},
		importance: make([]float64, d),
		features:   make([]int, d),
	}
	for j := range b.features {
		b.features[j] = j
	}
	b.build(idx, 0)

	var total float64
	for _, v := range b.importance {
		total += v
	}
	if total > 0 {
		for j := range b.importance {
			b.importance[j] /= total
		}
	}
	return b.tree, b.importance
}

func (b *treeBuilder) addNode() int {
	t := b.tree
	t.Feature = append(t.Feature, leaf)
	t.Threshold = append(t.Threshold, 0)
	t.Left = append(t.Left, leaf)
	t.Right = append(t.Right, leaf)
	t.Value = append(t.Value, nil)
	return len(t.Feature) - 1
}

func (b *treeBuilder) counts(idx []int) ([]float64, float64) {
	c := make([]float64, b.classes)
	var total float64
	for _, i := range idx {
		c[b.y[i]] += b.w[i]
		total += b.w[i]
	}
	return c, total
}

func gini(c []float64, total float64) float64 {
	if total <= 0 {
		return 0
	}
	g := 1.0
	for _, v := range c {
		p := v / total
		g -= p * p
	}
	return g
}

type split struct {
	feature   int
	threshold float64
	pos       int
	score     float64 // weighted child impurity, lower is better
}

func (b *treeBuilder) build(idx []int, depth int) int {
	node := b.addNode()
	c, total := b.counts(idx)
	impurity := gini(c, total)

	dist := make([]float64, len(c))
	for k, v := range c {
		if total > 0 {
			dist[k] = v / total
		}
	}
	b.tree.Value[node] = dist

	if depth >= b.params.MaxDepth || len(idx) < b.params.MinSamplesSplit ||
		len(idx) < 2*b.params.MinSamplesLeaf || impurity <= 0 {
		return node
	}

	best, ok := b.bestSplit(idx)
	if !ok {
		return node
	}

	sortByFeature(b.x, idx, best.feature)
	left := append([]int(nil), idx[:best.pos]...)
	right := append([]int(nil), idx[best.pos:]...)

	lc, lw := b.counts(left)
	rc, rw := b.counts(right)
	b.importance[best.feature] += total*impurity - lw*gini(lc, lw) - rw*gini(rc, rw)

	b.tree.Feature[node] = best.feature
	b.tree.Threshold[node] = best.threshold
	l := b.build(left, depth+1)
	r := b.build(right, depth+1)
	b.tree.Left[node] = l
	b.tree.Right[node] = r
	return node
}

// bestSplit scans a random subset of MaxFeatures features and returns the
// split with the lowest weighted child gini.
func (b *treeBuilder) bestSplit(idx []int) (split, bool) {
	best := split{score: -1}
	found := false
	order := append([]int(nil), idx...)

	// Partial Fisher-Yates over the feature list.
	k := b.params.MaxFeatures
	if k <= 0 || k > len(b.features) {
		k = len(b.features)
	}
	for f := 0; f < k; f++ {
		r := f + b.rng.IntN(len(b.features)-f)
		b.features[f], b.features[r] = b.features[r], b.features[f]
	}

	left := make([]float64, b.classes)
	right := make([]float64, b.classes)
	minLeaf := b.params.MinSamplesLeaf

	for _, feat := range b.features[:k] {
		sortByFeature(b.x, order, feat)
		if b.x[order[0]][feat] == b.x[order[len(order)-1]][feat] {
			continue
		}
		for c := range left {
			left[c] = 0
		}
		rightTotal := 0.0
		for c := range right {
			right[c] = 0
		}
		for _, i := range order {
			right[b.y[i]] += b.w[i]
			rightTotal += b.w[i]
		}
		leftTotal := 0.0

		for pos := 1; pos < len(order); pos++ {
			i := order[pos-1]
			left[b.y[i]] += b.w[i]
			right[b.y[i]] -= b.w[i]
			leftTotal += b.w[i]
			rightTotal -= b.w[i]

			lo, hi := b.x[i][feat], b.x[order[pos]][feat]
			if lo == hi || pos < minLeaf || len(order)-pos < minLeaf {
				continue
			}
			score := leftTotal*gini(left, leftTotal) + rightTotal*gini(right, rightTotal)
			if !found || score < best.score {
				threshold := lo + (hi-lo)/2
				if threshold >= hi {
					threshold = lo
				}
				best = split{feature: feat, threshold: threshold, pos: pos, score: score}
				found = true
			}
		}
	}
	return best, found
}

// sortByFeature orders idx by x[.][feat], breaking ties by row index so the
// result does not depend on the incoming order.
func sortByFeature(x [][]float64, idx []int, feat int) {
	sort.Slice(idx, func(a, c int) bool {
		va, vc := x[idx[a]][feat], x[idx[c]][feat]
		if va != vc {
			return va < vc
		}
		return idx[a] < idx[c]
	})
}
