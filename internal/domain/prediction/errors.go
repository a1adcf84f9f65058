package prediction

import (
	"errors"

	"github.com/okian/passwatch/internal/domain/model"
)

// Sentinel errors for prediction.
var (
	ErrModelNotTrained    = errors.New("model not trained")
	ErrCheckpointNotFound = model.ErrCheckpointNotFound
)
