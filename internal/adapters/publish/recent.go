package publish

import (
	"context"
	"sync"
	"time"

	"github.com/okian/passwatch/internal/domain/model"
)

// RecentPrediction is a served prediction with the time it was served.
type RecentPrediction struct {
	model.PredictionResult
	CreatedAt time.Time `json:"created_at"`
}

// Recent keeps the last served predictions in a fixed-size ring.
type Recent struct {
	mu   sync.RWMutex
	buf  []RecentPrediction
	next int
	full bool
	now  func() time.Time
}

// NewRecent creates a ring holding up to size predictions. A non-positive
// size keeps nothing.
func NewRecent(size int, now func() time.Time) *Recent {
	if size < 0 {
		size = 0
	}
	if now == nil {
		now = time.Now
	}
	return &Recent{buf: make([]RecentPrediction, size), now: now}
}

// RecordPrediction stores res, evicting the oldest entry when full.
func (r *Recent) RecordPrediction(_ context.Context, res model.PredictionResult) error {
	if len(r.buf) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = RecentPrediction{PredictionResult: res, CreatedAt: r.now().UTC()}
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
	return nil
}

// List returns up to limit predictions served at or after since, newest
// first. A non-positive limit returns every match.
func (r *Recent) List(since time.Time, limit int) []RecentPrediction {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := r.next
	if r.full {
		n = len(r.buf)
	}
	out := make([]RecentPrediction, 0, n)
	for i := 0; i < n; i++ {
		p := r.buf[(r.next-1-i+len(r.buf))%len(r.buf)]
		if p.CreatedAt.Before(since) {
			break
		}
		out = append(out, p)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
