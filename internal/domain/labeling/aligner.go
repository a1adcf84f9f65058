// Package labeling derives future-status labels from a checkpoint's own
// observation sequence.
package labeling

import (
	"fmt"
	"sort"
	"time"

	"github.com/okian/passwatch/internal/domain/model"
)

// DefaultMinRecords is the minimum number of records a checkpoint needs to take part in training.
const DefaultMinRecords = 10

// Sample is an anchor observation with both resolved horizon labels.
type Sample struct {
	Anchor model.StatusObservation
	Short  model.Status
	Long   model.Status
}

// Stats counts what happened to each anchor.
type Stats struct {
	Records    int
	Anchors    int
	Labeled    int
	Unresolved int // no record at or after a target
	Stale      int // resolving record beyond the max gap
}

// Dropped returns the number of anchors without both labels.
func (s Stats) Dropped() int { return s.Unresolved + s.Stale }

// Aligner resolves labels for one checkpoint at a time. It holds no state
// between calls and is safe for concurrent use.
type Aligner struct {
	minRecords int
	maxGap     map[model.Horizon]time.Duration
}

// Option configures an Aligner.
type Option func(*Aligner)

// WithMinRecords sets the per-checkpoint minimum record count.
func WithMinRecords(n int) Option {
	return func(a *Aligner) {
		if n > 0 {
			a.minRecords = n
		}
	}
}

// WithMaxGap bounds how far after the horizon target the resolving record may
// lie. Zero removes the bound.
func WithMaxGap(h model.Horizon, d time.Duration) Option {
	return func(a *Aligner) {
		if d >= 0 {
			a.maxGap[h] = d
		}
	}
}

// NewAligner returns an aligner with the default minimum and no gap bound.
func NewAligner(opts ...Option) *Aligner {
	a := &Aligner{
		minRecords: DefaultMinRecords,
		maxGap:     map[model.Horizon]time.Duration{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// MinRecords returns the configured minimum.
func (a *Aligner) MinRecords() int { return a.minRecords }

// Align labels every record that has a successor. For a record at t the
// short-term label is the status of the earliest later record with timestamp
// >= t+2h, and likewise t+18h for the long-term label. Anchors missing either
// label are dropped.
//
// records must belong to one checkpoint; they need not be sorted. Returns
// ErrTooFewRecords when len(records) is below the minimum.
func (a *Aligner) Align(records []model.StatusObservation) ([]Sample, Stats, error) {
	stats := Stats{Records: len(records)}
	if len(records) < a.minRecords {
		return nil, stats, fmt.Errorf("%w: %d < %d", ErrTooFewRecords, len(records), a.minRecords)
	}

	seq := make([]model.StatusObservation, len(records))
	copy(seq, records)
	sort.SliceStable(seq, func(i, j int) bool { return seq[i].Timestamp.Before(seq[j].Timestamp) })

	samples := make([]Sample, 0, len(seq))
	for i := 0; i < len(seq)-1; i++ {
		stats.Anchors++
		short, okShort, staleShort := a.resolve(seq, i, model.HorizonShort)
		long, okLong, staleLong := a.resolve(seq, i, model.HorizonLong)
		switch {
		case okShort && okLong:
			samples = append(samples, Sample{Anchor: seq[i], Short: short, Long: long})
			stats.Labeled++
		case staleShort || staleLong:
			stats.Stale++
		default:
			stats.Unresolved++
		}
	}
	return samples, stats, nil
}

// resolve finds the label for anchor i at horizon h. stale is set when a
// record exists but lies past the gap bound.
func (a *Aligner) resolve(seq []model.StatusObservation, i int, h model.Horizon) (status model.Status, ok, stale bool) {
	target := seq[i].Timestamp.Add(h.Offset())
	rest := seq[i+1:]
	j := sort.Search(len(rest), func(k int) bool { return !rest[k].Timestamp.Before(target) })
	if j == len(rest) {
		return model.StatusUnknown, false, false
	}
	if gap := a.maxGap[h]; gap > 0 && rest[j].Timestamp.Sub(target) > gap {
		return model.StatusUnknown, false, true
	}
	return rest[j].Status, true, false
}
