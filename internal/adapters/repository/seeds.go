package repository

import (
	"context"
	"fmt"

	"github.com/okian/passwatch/internal/domain/model"
)

// SeedCheckpoints returns the default checkpoint set with real coordinates.
func SeedCheckpoints() []model.CheckpointMeta {
	return []model.CheckpointMeta{
		{ID: 1, Name: "Qalandiya", Type: model.CheckpointPermanent, Latitude: 31.8653, Longitude: 35.2045, Active: true},
		{ID: 2, Name: "Bethlehem 300", Type: model.CheckpointPermanent, Latitude: 31.7167, Longitude: 35.2072, Active: true},
		{ID: 3, Name: "Huwwara", Type: model.CheckpointPermanent, Latitude: 32.1872, Longitude: 35.2806, Active: true},
		{ID: 4, Name: "Jaba", Type: model.CheckpointPermanent, Latitude: 31.8747, Longitude: 35.2742, Active: true},
		{ID: 5, Name: "Container", Type: model.CheckpointPermanent, Latitude: 31.7019, Longitude: 35.1789, Active: true},
		{ID: 6, Name: "Tunnels", Type: model.CheckpointPermanent, Latitude: 31.7258, Longitude: 35.1867, Active: true},
		{ID: 7, Name: "Za'tara", Type: model.CheckpointPermanent, Latitude: 32.0972, Longitude: 35.2119, Active: true},
		{ID: 8, Name: "Beit El", Type: model.CheckpointPermanent, Latitude: 31.9372, Longitude: 35.2228, Active: true},
	}
}

// Seed writes cps into s when it holds no active checkpoint yet and returns
// how many were written. A populated store is left alone.
func Seed(ctx context.Context, s Store, cps ...model.CheckpointMeta) (int, error) {
	existing, err := s.Checkpoints(ctx)
	if err != nil {
		return 0, fmt.Errorf("seed: %w", err)
	}
	if len(existing) > 0 {
		return 0, nil
	}
	for _, cp := range cps {
		if err := s.UpsertCheckpoint(ctx, cp); err != nil {
			return 0, fmt.Errorf("seed checkpoint %d: %w", cp.ID, err)
		}
	}
	return len(cps), nil
}
