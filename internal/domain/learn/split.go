package learn

import (
	"math"
	"math/rand/v2"
	"sort"
)

// StratifiedSplit partitions row indexes into train and test sets so each
// label keeps roughly testFraction of its rows in test. Every label keeps at
// least one row in train; a label with a single row goes to train only.
// Both returned slices are sorted.
func StratifiedSplit(y []int, testFraction float64, seed int64) (train, test []int) {
	byClass := map[int][]int{}
	for i, label := range y {
		byClass[label] = append(byClass[label], i)
	}
	labels := make([]int, 0, len(byClass))
	for label := range byClass {
		labels = append(labels, label)
	}
	sort.Ints(labels)

	rng := rand.New(rand.NewPCG(uint64(seed), 0x5eed))
	for _, label := range labels {
		rows := byClass[label]
		rng.Shuffle(len(rows), func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })
		nTest := int(math.Round(float64(len(rows)) * testFraction))
		if nTest >= len(rows) {
			nTest = len(rows) - 1
		}
		if nTest < 0 {
			nTest = 0
		}
		test = append(test, rows[:nTest]...)
		train = append(train, rows[nTest:]...)
	}
	sort.Ints(train)
	sort.Ints(test)
	return train, test
}

// Rows selects rows of x by index.
func Rows(x [][]float64, idx []int) [][]float64 {
	out := make([][]float64, len(idx))
	for i, j := range idx {
		out[i] = x[j]
	}
	return out
}

// Labels selects entries of y by index.
func Labels(y []int, idx []int) []int {
	out := make([]int, len(idx))
	for i, j := range idx {
		out[i] = y[j]
	}
	return out
}
