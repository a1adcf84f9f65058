package repository

import (
	"github.com/okian/passwatch/internal/domain/dedupe"
	"github.com/okian/passwatch/internal/domain/model"
	"github.com/okian/passwatch/pkg/logger"
)

// Option applies a configuration option to the MemoryStore.
type Option func(*MemoryStore)

// WithLogger sets a custom logger for the store.
func WithLogger(l logger.Logger) Option {
	return func(s *MemoryStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithCheckpoints seeds the store with checkpoint metadata.
func WithCheckpoints(cps ...model.CheckpointMeta) Option {
	return func(s *MemoryStore) {
		for _, cp := range cps {
			s.checkpoints[cp.ID] = cp
		}
	}
}

// WithDeduper replaces the SourceID tracker used to drop repeated signals.
func WithDeduper(d dedupe.Deduper) Option {
	return func(s *MemoryStore) {
		if d != nil {
			s.seen = d
		}
	}
}
