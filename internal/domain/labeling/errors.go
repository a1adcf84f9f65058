package labeling

import "errors"

// ErrTooFewRecords marks a checkpoint skipped for having fewer records than
// the configured minimum. It is a per-checkpoint skip, not a job failure.
var ErrTooFewRecords = errors.New("too few observations for checkpoint")
