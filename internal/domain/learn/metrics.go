package learn

import "sort"

// ClassReport holds per-class precision, recall, F1 and support.
type ClassReport struct {
	Label     int     `json:"label"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1_score"`
	Support   int     `json:"support"`
}

// Report is a held-out classification evaluation. Precision, Recall and F1
// are support-weighted averages; an undefined ratio counts as 0.
type Report struct {
	Accuracy  float64       `json:"accuracy"`
	Precision float64       `json:"precision"`
	Recall    float64       `json:"recall"`
	F1        float64       `json:"f1_score"`
	Support   int           `json:"support"`
	Classes   []ClassReport `json:"classes"`
	Labels    []int         `json:"labels"`
	Confusion [][]int       `json:"confusion"` // [true][predicted] in Labels order
}

// Evaluate compares predictions with ground truth. Labels are the union of
// both slices in ascending order.
func Evaluate(truth, pred []int) Report {
	set := map[int]struct{}{}
	for _, v := range truth {
		set[v] = struct{}{}
	}
	for _, v := range pred {
		set[v] = struct{}{}
	}
	labels := make([]int, 0, len(set))
	for v := range set {
		labels = append(labels, v)
	}
	sort.Ints(labels)
	pos := make(map[int]int, len(labels))
	for i, l := range labels {
		pos[l] = i
	}

	r := Report{Labels: labels, Support: len(truth), Confusion: make([][]int, len(labels))}
	for i := range r.Confusion {
		r.Confusion[i] = make([]int, len(labels))
	}
	correct := 0
	for i := range truth {
		r.Confusion[pos[truth[i]]][pos[pred[i]]]++
		if truth[i] == pred[i] {
			correct++
		}
	}
	if len(truth) == 0 {
		return r
	}
	r.Accuracy = float64(correct) / float64(len(truth))

	for k, label := range labels {
		tp := r.Confusion[k][k]
		var predicted, actual int
		for j := range labels {
			predicted += r.Confusion[j][k]
			actual += r.Confusion[k][j]
		}
		c := ClassReport{Label: label, Support: actual}
		c.Precision = ratio(tp, predicted)
		c.Recall = ratio(tp, actual)
		if c.Precision+c.Recall > 0 {
			c.F1 = 2 * c.Precision * c.Recall / (c.Precision + c.Recall)
		}
		r.Classes = append(r.Classes, c)

		w := float64(actual) / float64(len(truth))
		r.Precision += w * c.Precision
		r.Recall += w * c.Recall
		r.F1 += w * c.F1
	}
	return r
}

func ratio(a, b int) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}
