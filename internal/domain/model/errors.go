package model

import "errors"

// Sentinel error kinds for enum parsing at storage and transport boundaries.
var (
	ErrUnknownStatus         = errors.New("unknown status")
	ErrUnknownCheckpointType = errors.New("unknown checkpoint type")
	ErrUnknownSource         = errors.New("unknown source")
)

// ErrCheckpointNotFound is returned by any collaborator asked about a checkpoint it does not know.
var ErrCheckpointNotFound = errors.New("checkpoint not found")
