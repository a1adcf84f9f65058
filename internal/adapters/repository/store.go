// Package repository holds the storage collaborators that feed feature
// extraction: status observations, social signals and checkpoint metadata.
//
// All time ranges are half-open: [from, to).
package repository

import (
	"context"
	"time"

	"github.com/okian/passwatch/internal/domain/model"
)

// DataSummary describes how much observation history is stored.
type DataSummary struct {
	Checkpoints  int
	Observations int
	Signals      int
	Oldest       time.Time
	Newest       time.Time
}

// Span returns the time covered by the stored observations.
func (d DataSummary) Span() time.Duration {
	if d.Observations == 0 {
		return 0
	}
	return d.Newest.Sub(d.Oldest)
}

// Reader exposes the read queries the core needs.
type Reader interface {
	// Observations returns records for a checkpoint with from <= ts < to, ordered by timestamp.
	Observations(ctx context.Context, checkpointID int64, from, to time.Time) ([]model.StatusObservation, error)
	// Signals returns matched mentions for a checkpoint with from <= posted_at < to, ordered by posted_at.
	Signals(ctx context.Context, checkpointID int64, from, to time.Time) ([]model.SocialSignal, error)
	// Checkpoint returns metadata by id. Returns ErrNotFound if unknown.
	Checkpoint(ctx context.Context, id int64) (model.CheckpointMeta, error)
	// Checkpoints returns active checkpoints ordered by id.
	Checkpoints(ctx context.Context) ([]model.CheckpointMeta, error)
	// Summary reports record counts and the observation time span.
	Summary(ctx context.Context) (DataSummary, error)
}

// Writer appends new evidence. Records are immutable once written.
type Writer interface {
	AppendObservation(ctx context.Context, obs model.StatusObservation) error
	AppendSignal(ctx context.Context, sig model.SocialSignal) error
	UpsertCheckpoint(ctx context.Context, cp model.CheckpointMeta) error
}

// Store is a readable and writable repository.
type Store interface {
	Reader
	Writer
	Close() error
}
