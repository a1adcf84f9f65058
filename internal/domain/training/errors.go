package training

import (
	"errors"
	"fmt"
)

// Sentinel errors for training.
var (
	ErrInsufficientData = errors.New("no eligible training samples")
	ErrInvalidArtifact  = errors.New("invalid model artifact")
)

// Training stages reported on failure.
const (
	StagePrepare  = "prepare"
	StageFit      = "fit"
	StageEvaluate = "evaluate"
	StageSave     = "save"
)

// StageError tags a training failure with the stage it happened in.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("training failed at %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Stage returns the stage recorded in err, or "" if err carries none.
func Stage(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

func stageErr(stage string, err error) error {
	if err == nil {
		return nil
	}
	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	return &StageError{Stage: stage, Err: err}
}
