package repository

import (
	"errors"

	"github.com/okian/passwatch/internal/domain/model"
)

// Sentinel kinds for repository errors.
var (
	ErrNotFound     = model.ErrCheckpointNotFound
	ErrInvalidRange = errors.New("invalid time range")
	ErrInvalidInput = errors.New("invalid record")
)
