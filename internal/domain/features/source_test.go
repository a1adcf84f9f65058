package features_test

import (
	"context"
	"time"

	"github.com/okian/passwatch/internal/domain/model"
)

// fakeSource filters by [from, to) unless lax is set, in which case it returns
// every record so the builders' own window checks are exercised.
type fakeSource struct {
	observations []model.StatusObservation
	signals      []model.SocialSignal
	checkpoints  map[int64]model.CheckpointMeta
	lax          bool
	err          error
}

func (f *fakeSource) Observations(_ context.Context, id int64, from, to time.Time) ([]model.StatusObservation, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []model.StatusObservation
	for _, o := range f.observations {
		if o.CheckpointID != id {
			continue
		}
		if f.lax || (!o.Timestamp.Before(from) && o.Timestamp.Before(to)) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeSource) Signals(_ context.Context, id int64, from, to time.Time) ([]model.SocialSignal, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []model.SocialSignal
	for _, s := range f.signals {
		if s.CheckpointID == nil || *s.CheckpointID != id {
			continue
		}
		if f.lax || (!s.PostedAt.Before(from) && s.PostedAt.Before(to)) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSource) Checkpoint(_ context.Context, id int64) (model.CheckpointMeta, error) {
	cp, ok := f.checkpoints[id]
	if !ok {
		return model.CheckpointMeta{}, model.ErrCheckpointNotFound
	}
	return cp, nil
}

func ptr[T any](v T) *T { return &v }

func signal(id int64, at time.Time, sentiment, confidence *float64, status *model.Status, src model.Source) model.SocialSignal {
	return model.SocialSignal{
		CheckpointID:   ptr(id),
		PostedAt:       at,
		SentimentScore: sentiment,
		Confidence:     confidence,
		InferredStatus: status,
		Source:         src,
	}
}
