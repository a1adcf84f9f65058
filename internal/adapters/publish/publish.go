// Package publish hands prediction results to downstream consumers.
package publish

import (
	"context"
	"errors"

	"github.com/okian/passwatch/internal/domain/model"
	"github.com/okian/passwatch/pkg/logger"
	"github.com/okian/passwatch/pkg/metrics"
)

// Sink receives every served prediction.
type Sink interface {
	RecordPrediction(ctx context.Context, res model.PredictionResult) error
}

type namedSink struct {
	name string
	sink Sink
}

// Fanout delivers a prediction to several sinks. A failing sink is logged and
// counted; it does not stop delivery to the others.
type Fanout struct {
	sinks  []namedSink
	logger logger.Logger
}

// Option configures a Fanout.
type Option func(*Fanout)

// WithSink adds a named sink.
func WithSink(name string, s Sink) Option {
	return func(f *Fanout) {
		if s != nil {
			f.sinks = append(f.sinks, namedSink{name: name, sink: s})
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(f *Fanout) {
		if l != nil {
			f.logger = l
		}
	}
}

// NewFanout creates a fanout over the given sinks.
func NewFanout(opts ...Option) *Fanout {
	f := &Fanout{}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = logger.Named("publish")
	}
	return f
}

// Len returns the number of sinks.
func (f *Fanout) Len() int { return len(f.sinks) }

// RecordPrediction delivers res to every sink and joins their errors.
func (f *Fanout) RecordPrediction(ctx context.Context, res model.PredictionResult) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.sink.RecordPrediction(ctx, res); err != nil {
			metrics.RecordSinkError(s.name)
			f.logger.Warn(ctx, "prediction sink failed",
				logger.String("sink", s.name),
				logger.Int64("checkpoint_id", res.CheckpointID),
				logger.Error(err),
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
