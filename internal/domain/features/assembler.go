// Package features builds the numeric evidence for one (checkpoint, reference
// time) pair. Every windowed builder reads only records strictly before the
// reference time.
package features

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/passwatch/internal/domain/model"
	"github.com/okian/passwatch/pkg/logger"
	"github.com/okian/passwatch/pkg/metrics"
)

// CheckpointReader looks up static checkpoint metadata.
type CheckpointReader interface {
	Checkpoint(ctx context.Context, id int64) (model.CheckpointMeta, error)
}

// Source is everything the assembler reads.
type Source interface {
	SignalReader
	ObservationReader
	CheckpointReader
}

// Window holds the lookbacks a model was trained with. Serving must reuse them.
type Window struct {
	SocialLookback     time.Duration `json:"social_lookback"`
	HistoricalLookback time.Duration `json:"historical_lookback"`
}

// DefaultWindow returns the 24 hour social and 30 day historical lookbacks.
func DefaultWindow() Window {
	return Window{SocialLookback: 24 * time.Hour, HistoricalLookback: 30 * day}
}

// Assembler composes the temporal, social, historical and static builders.
type Assembler struct {
	checkpoints CheckpointReader
	temporal    *TemporalBuilder
	social      *SocialAggregator
	historical  *HistoricalAnalyzer
	window      Window
	calendar    *Calendar
	logger      logger.Logger
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithCalendar sets the holiday calendar used by the temporal builder.
func WithCalendar(cal *Calendar) Option {
	return func(a *Assembler) {
		if cal != nil {
			a.calendar = cal
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(a *Assembler) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewAssembler wires the builders over src with window w.
func NewAssembler(src Source, w Window, opts ...Option) (*Assembler, error) {
	a := &Assembler{checkpoints: src, window: w}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = logger.Named("features")
	}

	social, err := NewSocialAggregator(src, w.SocialLookback)
	if err != nil {
		return nil, err
	}
	historical, err := NewHistoricalAnalyzer(src, w.HistoricalLookback)
	if err != nil {
		return nil, err
	}
	a.social = social
	a.historical = historical
	a.temporal = NewTemporalBuilder(a.calendar)
	return a, nil
}

// Window returns the lookbacks in use.
func (a *Assembler) Window() Window { return a.window }

// Calendar returns the holiday calendar of the temporal builder.
func (a *Assembler) Calendar() *Calendar { return a.temporal.calendar }

// Build looks up the checkpoint and assembles its feature map as of ref.
func (a *Assembler) Build(ctx context.Context, checkpointID int64, ref time.Time) (Map, error) {
	cp, err := a.checkpoints.Checkpoint(ctx, checkpointID)
	if err != nil {
		return nil, fmt.Errorf("checkpoint %d: %w", checkpointID, err)
	}
	return a.BuildFor(ctx, cp, ref)
}

// BuildFor assembles the feature map for a known checkpoint. The social and
// historical reads run concurrently; either failing fails the whole build.
func (a *Assembler) BuildFor(ctx context.Context, cp model.CheckpointMeta, ref time.Time) (Map, error) {
	var social, historical Map

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		start := time.Now()
		defer observe("social", start)
		var err error
		social, err = a.social.Build(gctx, cp.ID, ref)
		return err
	})
	g.Go(func() error {
		start := time.Now()
		defer observe("historical", start)
		var err error
		historical, err = a.historical.Build(gctx, cp.ID, ref)
		return err
	})

	start := time.Now()
	out := a.temporal.Build(ref)
	observe("temporal", start)

	if err := g.Wait(); err != nil {
		a.logger.Debug(ctx, "feature build failed",
			logger.Int64("checkpoint_id", cp.ID),
			logger.Time("reference_time", ref),
			logger.Error(err),
		)
		return nil, err
	}
	out.Merge(social).Merge(historical).Merge(Static(cp))
	return out, nil
}

// Static returns the one-hot checkpoint type and location features.
func Static(cp model.CheckpointMeta) Map {
	return Map{
		"is_permanent_checkpoint": flag(cp.Type == model.CheckpointPermanent),
		"is_flying_checkpoint":    flag(cp.Type == model.CheckpointFlying),
		"is_temporary_checkpoint": flag(cp.Type == model.CheckpointTemporary),
		"is_barrier_checkpoint":   flag(cp.Type == model.CheckpointBarrier),
		"checkpoint_latitude":     cp.Latitude,
		"checkpoint_longitude":    cp.Longitude,
	}
}

func observe(builder string, start time.Time) {
	metrics.RecordFeatureBuildLatency(builder, float64(time.Since(start).Microseconds())/1000)
}
