package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/okian/passwatch/internal/domain/dedupe"
	"github.com/okian/passwatch/internal/domain/model"
	"github.com/okian/passwatch/pkg/logger"
	"github.com/okian/passwatch/pkg/metrics"
)

// MemoryStore is an in-memory Store. Per-checkpoint series are kept sorted by
// time so range reads are two binary searches plus a copy.
//
// Reads copy out under the read lock: a caller always sees a consistent
// snapshot, and a concurrent append with ts >= to cannot appear in it.
type MemoryStore struct {
	mu sync.RWMutex

	checkpoints  map[int64]model.CheckpointMeta
	observations map[int64][]model.StatusObservation
	signals      map[int64][]model.SocialSignal
	unmatched    int
	seen         dedupe.Deduper

	logger logger.Logger
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		checkpoints:  make(map[int64]model.CheckpointMeta),
		observations: make(map[int64][]model.StatusObservation),
		signals:      make(map[int64][]model.SocialSignal),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Named("memstore")
	}
	if s.seen == nil {
		s.seen = dedupe.NewInMemoryDeduper()
	}
	return s
}

// UpsertCheckpoint creates or replaces checkpoint metadata.
func (s *MemoryStore) UpsertCheckpoint(_ context.Context, cp model.CheckpointMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[cp.ID] = cp
	return nil
}

// AppendObservation inserts a status observation keeping the series ordered.
// Equal timestamps keep insertion order.
func (s *MemoryStore) AppendObservation(ctx context.Context, obs model.StatusObservation) error {
	if !obs.Status.Valid() {
		return fmt.Errorf("%w: status %d", ErrInvalidInput, obs.Status)
	}
	if obs.Timestamp.IsZero() {
		return fmt.Errorf("%w: missing timestamp", ErrInvalidInput)
	}
	start := time.Now()
	defer func() { metrics.RecordRepositoryUpdateLatency(msSince(start)) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	series := s.observations[obs.CheckpointID]
	i := sort.Search(len(series), func(i int) bool { return series[i].Timestamp.After(obs.Timestamp) })
	series = append(series, model.StatusObservation{})
	copy(series[i+1:], series[i:])
	series[i] = obs
	s.observations[obs.CheckpointID] = series
	return nil
}

// AppendSignal inserts a social signal. Unmatched signals are counted but not
// indexed since no checkpoint query can reach them. A signal whose SourceID
// was already stored is dropped silently.
func (s *MemoryStore) AppendSignal(ctx context.Context, sig model.SocialSignal) error {
	if sig.PostedAt.IsZero() {
		return fmt.Errorf("%w: missing posted_at", ErrInvalidInput)
	}
	if sig.SourceID != "" && s.seen.SeenAndRecord(ctx, sig.SourceID) {
		s.logger.Debug(ctx, "duplicate signal dropped", logger.String("source_id", sig.SourceID))
		return nil
	}
	start := time.Now()
	defer func() { metrics.RecordRepositoryUpdateLatency(msSince(start)) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if sig.CheckpointID == nil {
		s.unmatched++
		return nil
	}
	id := *sig.CheckpointID
	series := s.signals[id]
	i := sort.Search(len(series), func(i int) bool { return series[i].PostedAt.After(sig.PostedAt) })
	series = append(series, model.SocialSignal{})
	copy(series[i+1:], series[i:])
	series[i] = sig
	s.signals[id] = series
	return nil
}

// Observations returns observations with from <= ts < to.
func (s *MemoryStore) Observations(ctx context.Context, checkpointID int64, from, to time.Time) ([]model.StatusObservation, error) {
	if err := checkRange(from, to); err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() { metrics.RecordRepositoryQueryLatency(msSince(start)) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	series := s.observations[checkpointID]
	lo := sort.Search(len(series), func(i int) bool { return !series[i].Timestamp.Before(from) })
	hi := sort.Search(len(series), func(i int) bool { return !series[i].Timestamp.Before(to) })
	if lo >= hi {
		return nil, ctx.Err()
	}
	out := make([]model.StatusObservation, hi-lo)
	copy(out, series[lo:hi])
	return out, ctx.Err()
}

// Signals returns matched signals with from <= posted_at < to.
func (s *MemoryStore) Signals(ctx context.Context, checkpointID int64, from, to time.Time) ([]model.SocialSignal, error) {
	if err := checkRange(from, to); err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() { metrics.RecordRepositoryQueryLatency(msSince(start)) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	series := s.signals[checkpointID]
	lo := sort.Search(len(series), func(i int) bool { return !series[i].PostedAt.Before(from) })
	hi := sort.Search(len(series), func(i int) bool { return !series[i].PostedAt.Before(to) })
	if lo >= hi {
		return nil, ctx.Err()
	}
	out := make([]model.SocialSignal, hi-lo)
	copy(out, series[lo:hi])
	return out, ctx.Err()
}

// Checkpoint returns metadata by id.
func (s *MemoryStore) Checkpoint(_ context.Context, id int64) (model.CheckpointMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp, ok := s.checkpoints[id]
	if !ok {
		return model.CheckpointMeta{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return cp, nil
}

// Checkpoints returns active checkpoints ordered by id.
func (s *MemoryStore) Checkpoints(_ context.Context) ([]model.CheckpointMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.CheckpointMeta, 0, len(s.checkpoints))
	for _, cp := range s.checkpoints {
		if cp.Active {
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Summary reports record counts and the observation span.
func (s *MemoryStore) Summary(_ context.Context) (DataSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := DataSummary{Checkpoints: len(s.checkpoints), Signals: s.unmatched}
	for _, series := range s.signals {
		sum.Signals += len(series)
	}
	for _, series := range s.observations {
		if len(series) == 0 {
			continue
		}
		sum.Observations += len(series)
		first, last := series[0].Timestamp, series[len(series)-1].Timestamp
		if sum.Oldest.IsZero() || first.Before(sum.Oldest) {
			sum.Oldest = first
		}
		if last.After(sum.Newest) {
			sum.Newest = last
		}
	}
	metrics.UpdateRepositoryRecordsTotal(sum.Observations + sum.Signals)
	return sum, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }

func checkRange(from, to time.Time) error {
	if to.Before(from) {
		return fmt.Errorf("%w: %s is before %s", ErrInvalidRange, to.Format(time.RFC3339), from.Format(time.RFC3339))
	}
	return nil
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000
}
