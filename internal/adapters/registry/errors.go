package registry

import (
	"errors"
	"fmt"
)

// Sentinel errors for the artifact registry.
var (
	ErrArtifactNotFound = errors.New("artifact not found")
	ErrArtifactCorrupt  = errors.New("artifact corrupt")
	ErrInvalidVersion   = errors.New("invalid artifact version")

	// ErrVersionExists is an ErrInvalidVersion for a version already saved.
	ErrVersionExists = fmt.Errorf("%w: version already exists", ErrInvalidVersion)
)
