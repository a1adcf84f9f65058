package features

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/passwatch/internal/domain/model"
)

// Neutral values returned when a history window or a conditioning subset is empty.
const (
	NeutralRate         = 0.5
	NoHistoryHoursSince = 999.0
	recentClosuresShort = 3
	recentClosuresLong  = 7
)

// ObservationReader reads status observations for one checkpoint in [from, to).
type ObservationReader interface {
	Observations(ctx context.Context, checkpointID int64, from, to time.Time) ([]model.StatusObservation, error)
}

// HistoricalAnalyzer computes windowed statistics over past status observations.
type HistoricalAnalyzer struct {
	reader   ObservationReader
	lookback time.Duration
}

// NewHistoricalAnalyzer returns an analyzer over a lookback of whole days.
func NewHistoricalAnalyzer(r ObservationReader, lookback time.Duration) (*HistoricalAnalyzer, error) {
	if lookback < day || lookback%day != 0 {
		return nil, fmt.Errorf("%w: historical lookback %s must be a positive number of days", ErrInvalidWindow, lookback)
	}
	return &HistoricalAnalyzer{reader: r, lookback: lookback}, nil
}

// Lookback returns the analysis window.
func (a *HistoricalAnalyzer) Lookback() time.Duration { return a.lookback }

// Build analyzes observations in [ref-lookback, ref).
func (a *HistoricalAnalyzer) Build(ctx context.Context, checkpointID int64, ref time.Time) (Map, error) {
	history, err := a.reader.Observations(ctx, checkpointID, ref.Add(-a.lookback), ref)
	if err != nil {
		return nil, fmt.Errorf("read observations for checkpoint %d: %w", checkpointID, err)
	}
	return a.analyze(history, ref), nil
}

// Empty returns the neutral-prior map.
func (a *HistoricalAnalyzer) Empty() Map {
	return Map{
		"historical_closure_rate":  NeutralRate,
		"historical_open_rate":     NeutralRate,
		"total_historical_records": 0,
		"closure_rate_same_hour":   NeutralRate,
		"closure_rate_same_dow":    NeutralRate,
		"closure_rate_weekend":     NeutralRate,
		"closures_last_7_days":     0,
		"closures_last_3_days":     0,
		"hours_since_last_status":  NoHistoryHoursSince,
		"last_status_was_closed":   0,
		"last_status_was_open":     0,
		"last_status_was_partial":  0,
	}
}

type rate struct{ hit, total int }

func (r *rate) add(hit bool) {
	r.total++
	if hit {
		r.hit++
	}
}

func (r rate) value() float64 {
	if r.total == 0 {
		return NeutralRate
	}
	return float64(r.hit) / float64(r.total)
}

func (a *HistoricalAnalyzer) analyze(history []model.StatusObservation, ref time.Time) Map {
	start := ref.Add(-a.lookback)
	ref = ref.UTC()
	refHour, refDow := ref.Hour(), weekday(ref)
	shortCut := ref.Add(-recentClosuresShort * day)
	longCut := ref.Add(-recentClosuresLong * day)

	var (
		closed, open             rate
		sameHour, sameDow, wkend rate
		closed3, closed7         int
		latest                   *model.StatusObservation
	)
	for i := range history {
		h := &history[i]
		if !h.Timestamp.Before(ref) || h.Timestamp.Before(start) {
			continue
		}
		ts := h.Timestamp.UTC()
		isClosed := h.Status == model.StatusClosed
		closed.add(isClosed)
		open.add(h.Status == model.StatusOpen)
		if ts.Hour() == refHour {
			sameHour.add(isClosed)
		}
		if weekday(ts) == refDow {
			sameDow.add(isClosed)
		}
		if weekday(ts) >= 5 {
			wkend.add(isClosed)
		}
		if isClosed && !ts.Before(shortCut) {
			closed3++
		}
		if isClosed && !ts.Before(longCut) {
			closed7++
		}
		// Ties keep the later entry in storage order.
		if latest == nil || !h.Timestamp.Before(latest.Timestamp) {
			latest = h
		}
	}
	if latest == nil {
		return a.Empty()
	}

	return Map{
		"historical_closure_rate":  closed.value(),
		"historical_open_rate":     open.value(),
		"total_historical_records": float64(closed.total),
		"closure_rate_same_hour":   sameHour.value(),
		"closure_rate_same_dow":    sameDow.value(),
		"closure_rate_weekend":     wkend.value(),
		"closures_last_7_days":     float64(closed7),
		"closures_last_3_days":     float64(closed3),
		"hours_since_last_status":  ref.Sub(latest.Timestamp).Hours(),
		"last_status_was_closed":   flag(latest.Status == model.StatusClosed),
		"last_status_was_open":     flag(latest.Status == model.StatusOpen),
		"last_status_was_partial":  flag(latest.Status == model.StatusPartial),
	}
}
