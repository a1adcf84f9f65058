package learn

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
)

// ForestParams configure a random forest.
type ForestParams struct {
	Trees           int   `json:"trees"`
	MaxDepth        int   `json:"max_depth"`
	MinSamplesSplit int   `json:"min_samples_split"`
	MinSamplesLeaf  int   `json:"min_samples_leaf"`
	MaxFeatures     int   `json:"max_features"` // 0 means sqrt(n_features)
	Seed            int64 `json:"seed"`
	Workers         int   `json:"-"`
}

// DefaultForestParams returns 100 trees of depth at most 15, with splits of
// at least 10 rows, leaves of at least 5, and seed 42.
func DefaultForestParams() ForestParams {
	return ForestParams{
		Trees:           100,
		MaxDepth:        15,
		MinSamplesSplit: 10,
		MinSamplesLeaf:  5,
		Seed:            42,
	}
}

// Forest is a fitted random forest classifier. Classes holds the distinct
// training labels in ascending order; probability vectors follow that order.
type Forest struct {
	Classes    []int        `json:"classes"`
	NFeatures  int          `json:"n_features"`
	Params     ForestParams `json:"params"`
	Trees      []*Tree      `json:"trees"`
	Importance []float64    `json:"importance"`
}

// FitForest trains a forest on x and labels y. Each tree sees a bootstrap
// sample; rows are weighted by n / (k * n_class) so every class carries equal
// total weight. Trees are fitted in parallel but each draws from its own
// seeded generator, so the result is deterministic for a given seed.
func FitForest(ctx context.Context, x [][]float64, y []int, p ForestParams) (*Forest, error) {
	if len(x) == 0 {
		return nil, ErrEmptyTrainingSet
	}
	if len(x) != len(y) {
		return nil, fmt.Errorf("%w: %d rows, %d labels", ErrDimensionMismatch, len(x), len(y))
	}
	d := len(x[0])
	for i, r := range x {
		if len(r) != d {
			return nil, fmt.Errorf("%w: row %d has %d columns, want %d", ErrDimensionMismatch, i, len(r), d)
		}
	}
	if p.Trees <= 0 {
		p.Trees = DefaultForestParams().Trees
	}
	if p.MaxFeatures <= 0 {
		p.MaxFeatures = int(math.Max(1, math.Floor(math.Sqrt(float64(d)))))
	}

	classes, encoded := encodeLabels(y)
	classWeight := balancedWeights(encoded, len(classes))

	f := &Forest{
		Classes:   classes,
		NFeatures: d,
		Params:    p,
		Trees:     make([]*Tree, p.Trees),
	}
	importances := make([][]float64, p.Trees)
	tp := TreeParams{
		MaxDepth:        p.MaxDepth,
		MinSamplesSplit: p.MinSamplesSplit,
		MinSamplesLeaf:  p.MinSamplesLeaf,
		MaxFeatures:     p.MaxFeatures,
	}
	if tp.MaxDepth <= 0 {
		tp.MaxDepth = math.MaxInt32
	}
	if tp.MinSamplesSplit < 2 {
		tp.MinSamplesSplit = 2
	}
	if tp.MinSamplesLeaf < 1 {
		tp.MinSamplesLeaf = 1
	}

	workers := p.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for t := 0; t < p.Trees; t++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewPCG(uint64(p.Seed), uint64(t)))
			w, idx := bootstrap(len(x), encoded, classWeight, rng)
			f.Trees[t], importances[t] = growTree(x, encoded, w, idx, len(classes), tp, rng)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	f.Importance = make([]float64, d)
	for _, imp := range importances {
		floats.Add(f.Importance, imp)
	}
	if s := floats.Sum(f.Importance); s > 0 {
		floats.Scale(1/s, f.Importance)
	}
	return f, nil
}

// PredictProba averages the leaf distributions of every tree.
func (f *Forest) PredictProba(x []float64) ([]float64, error) {
	if f == nil || len(f.Trees) == 0 {
		return nil, ErrNotFitted
	}
	if len(x) != f.NFeatures {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(x), f.NFeatures)
	}
	proba := make([]float64, len(f.Classes))
	for _, t := range f.Trees {
		floats.Add(proba, t.Predict(x))
	}
	floats.Scale(1/float64(len(f.Trees)), proba)
	return proba, nil
}

// Predict returns the most probable class label and its probability. Ties go
// to the smaller label.
func (f *Forest) Predict(x []float64) (int, float64, error) {
	proba, err := f.PredictProba(x)
	if err != nil {
		return 0, 0, err
	}
	best := 0
	for k := 1; k < len(proba); k++ {
		if proba[k] > proba[best] {
			best = k
		}
	}
	return f.Classes[best], proba[best], nil
}

// PredictAll returns labels for every row.
func (f *Forest) PredictAll(rows [][]float64) ([]int, error) {
	out := make([]int, len(rows))
	for i, r := range rows {
		label, _, err := f.Predict(r)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = label
	}
	return out, nil
}

// Validate checks structural consistency of a deserialized forest.
func (f *Forest) Validate() error {
	if f == nil || len(f.Trees) == 0 || len(f.Classes) == 0 {
		return ErrNotFitted
	}
	if len(f.Importance) != 0 && len(f.Importance) != f.NFeatures {
		return fmt.Errorf("%w: importance has %d entries, want %d", ErrDimensionMismatch, len(f.Importance), f.NFeatures)
	}
	for ti, t := range f.Trees {
		n := len(t.Feature)
		if n == 0 || len(t.Threshold) != n || len(t.Left) != n || len(t.Right) != n || len(t.Value) != n {
			return fmt.Errorf("%w: tree %d is malformed", ErrNotFitted, ti)
		}
		for node := 0; node < n; node++ {
			if t.Feature[node] == leaf {
				if len(t.Value[node]) != len(f.Classes) {
					return fmt.Errorf("%w: tree %d leaf %d has %d classes", ErrDimensionMismatch, ti, node, len(t.Value[node]))
				}
				continue
			}
			if t.Feature[node] < 0 || t.Feature[node] >= f.NFeatures ||
				t.Left[node] <= node || t.Left[node] >= n || t.Right[node] <= node || t.Right[node] >= n {
				return fmt.Errorf("%w: tree %d node %d has invalid links", ErrNotFitted, ti, node)
			}
		}
	}
	return nil
}

// encodeLabels maps labels to dense indexes in ascending label order.
func encodeLabels(y []int) ([]int, []int) {
	seen := map[int]struct{}{}
	for _, v := range y {
		seen[v] = struct{}{}
	}
	classes := make([]int, 0, len(seen))
	for v := range seen {
		classes = append(classes, v)
	}
	sort.Ints(classes)
	index := make(map[int]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}
	encoded := make([]int, len(y))
	for i, v := range y {
		encoded[i] = index[v]
	}
	return classes, encoded
}

// balancedWeights returns n / (k * n_c) per class index.
func balancedWeights(encoded []int, k int) []float64 {
	counts := make([]float64, k)
	for _, c := range encoded {
		counts[c]++
	}
	w := make([]float64, k)
	n := float64(len(encoded))
	for c, cnt := range counts {
		if cnt > 0 {
			w[c] = n / (float64(k) * cnt)
		}
	}
	return w
}

// bootstrap draws n rows with replacement. It returns per-row weights
// (draw count times class weight) and the distinct drawn rows.
func bootstrap(n int, y []int, classWeight []float64, rng *rand.Rand) ([]float64, []int) {
	draws := make([]int, n)
	for i := 0; i < n; i++ {
		draws[rng.IntN(n)]++
	}
	w := make([]float64, n)
	idx := make([]int, 0, n)
	for i, c := range draws {
		if c == 0 {
			continue
		}
		w[i] = float64(c) * classWeight[y[i]]
		idx = append(idx, i)
	}
	return w, idx
}
