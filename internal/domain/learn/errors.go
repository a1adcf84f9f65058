package learn

import "errors"

// Sentinel errors for model fitting and scoring.
var (
	ErrEmptyTrainingSet  = errors.New("empty training set")
	ErrNotFitted         = errors.New("estimator is not fitted")
	ErrDimensionMismatch = errors.New("feature dimension mismatch")
)
