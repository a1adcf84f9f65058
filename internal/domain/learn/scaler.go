// Package learn holds the estimators used by training and prediction: a
// standard scaler, a CART decision tree, and a random forest classifier with
// balanced class weights. Every fitted estimator is a plain value with
// exported fields so it serializes losslessly.
package learn

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Scaler standardizes each column to zero mean and unit population variance.
type Scaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// FitScaler computes column statistics over rows. A constant column gets scale 1.
func FitScaler(rows [][]float64) (*Scaler, error) {
	if len(rows) == 0 {
		return nil, ErrEmptyTrainingSet
	}
	d := len(rows[0])
	s := &Scaler{Mean: make([]float64, d), Scale: make([]float64, d)}
	col := make([]float64, len(rows))
	for j := 0; j < d; j++ {
		for i, r := range rows {
			if len(r) != d {
				return nil, fmt.Errorf("%w: row %d has %d columns, want %d", ErrDimensionMismatch, i, len(r), d)
			}
			col[i] = r[j]
		}
		mean, variance := stat.PopMeanVariance(col, nil)
		s.Mean[j] = mean
		s.Scale[j] = 1
		if variance > 0 {
			s.Scale[j] = math.Sqrt(variance)
		}
	}
	return s, nil
}

// Dim returns the number of columns the scaler was fitted on.
func (s *Scaler) Dim() int { return len(s.Mean) }

// Transform returns a standardized copy of row.
func (s *Scaler) Transform(row []float64) ([]float64, error) {
	if s == nil || len(s.Mean) == 0 {
		return nil, ErrNotFitted
	}
	if len(row) != len(s.Mean) {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(row), len(s.Mean))
	}
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = (v - s.Mean[j]) / s.Scale[j]
	}
	return out, nil
}

// TransformAll standardizes every row.
func (s *Scaler) TransformAll(rows [][]float64) ([][]float64, error) {
	out := make([][]float64, len(rows))
	for i, r := range rows {
		t, err := s.Transform(r)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = t
	}
	return out, nil
}
