package simulate

import (
	"github.com/okian/passwatch/internal/adapters/repository"
	"github.com/okian/passwatch/internal/domain/model"
)

// Checkpoints returns the seeded checkpoint set the server also starts with.
func Checkpoints() []model.CheckpointMeta {
	return repository.SeedCheckpoints()
}
