package simulate

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/okian/passwatch/internal/adapters/repository"
	"github.com/okian/passwatch/internal/domain/model"
	"github.com/okian/passwatch/pkg/logger"
)

// Pattern is the ground-truth status of cp at ts. Every checkpoint closes on
// Friday midday; even ids close for a morning rush that starts later the
// larger id%3 is, odd ids are only partially open then; ids divisible by
// four run partial in the evening.
func Pattern(cp model.CheckpointMeta, ts time.Time) model.Status {
	ts = ts.UTC()
	h := ts.Hour()
	if ts.Weekday() == time.Friday && h >= 11 && h < 14 {
		return model.StatusClosed
	}
	rush := 6 + int(cp.ID%3)
	if h >= rush && h < rush+3 {
		if cp.ID%2 == 0 {
			return model.StatusClosed
		}
		return model.StatusPartial
	}
	if cp.ID%4 == 0 && h >= 17 && h < 19 {
		return model.StatusPartial
	}
	return model.StatusOpen
}

// Generator produces noisy observations and social signals around Pattern.
type Generator struct {
	cfg    Config
	rng    *rand.Rand
	logger logger.Logger
}

// NewGenerator creates a generator seeded from cfg.Seed.
func NewGenerator(cfg Config) *Generator {
	return &Generator{
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		logger: logger.Named("simulate"),
	}
}

// Generate writes the checkpoints and their synthetic history to w.
func (g *Generator) Generate(ctx context.Context, w repository.Writer, cps []model.CheckpointMeta) (Stats, error) {
	stats := Stats{Checkpoints: len(cps)}
	g.logger.Info(ctx, "generating synthetic history",
		logger.Int("checkpoints", len(cps)),
		logger.Time("start", g.cfg.Start),
		logger.Int("days", g.cfg.Days),
	)

	for _, cp := range cps {
		if err := w.UpsertCheckpoint(ctx, cp); err != nil {
			return stats, fmt.Errorf("checkpoint %d: %w", cp.ID, err)
		}
	}

	end := g.cfg.End()
	for _, cp := range cps {
		for ts := g.cfg.Start; ts.Before(end); ts = ts.Add(g.cfg.Step) {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			if err := w.AppendObservation(ctx, g.observation(cp, ts)); err != nil {
				return stats, fmt.Errorf("observation %d@%s: %w", cp.ID, ts.Format(time.RFC3339), err)
			}
			stats.Observations++
		}
		for hour := g.cfg.Start; hour.Before(end); hour = hour.Add(time.Hour) {
			for i := 0; i < g.signalCount(); i++ {
				if err := w.AppendSignal(ctx, g.signal(cp, hour)); err != nil {
					return stats, fmt.Errorf("signal %d@%s: %w", cp.ID, hour.Format(time.RFC3339), err)
				}
				stats.Signals++
			}
		}
	}

	// Mentions that never matched a checkpoint still arrive.
	for day := 0; day < g.cfg.Days; day++ {
		sig := g.signal(model.CheckpointMeta{}, g.cfg.Start.AddDate(0, 0, day).Add(12*time.Hour))
		sig.CheckpointID = nil
		if err := w.AppendSignal(ctx, sig); err != nil {
			return stats, err
		}
		stats.UnmatchedSignals++
	}

	g.logger.Info(ctx, "synthetic history generated",
		logger.Int("observations", stats.Observations),
		logger.Int("signals", stats.Signals),
		logger.Int("unmatched", stats.UnmatchedSignals),
	)
	return stats, nil
}

func (g *Generator) observation(cp model.CheckpointMeta, ts time.Time) model.StatusObservation {
	status := Pattern(cp, ts)
	if g.rng.Float64() < g.cfg.Noise {
		status = g.otherStatus(status)
	}
	obs := model.StatusObservation{
		CheckpointID: cp.ID,
		Status:       status,
		Timestamp:    ts,
		Confidence:   0.6 + 0.4*g.rng.Float64(),
		Source:       g.source(),
	}
	if obs.Source == model.SourceManual {
		obs.Verified = true
		obs.Confidence = 1
	}
	return obs
}

func (g *Generator) signal(cp model.CheckpointMeta, hour time.Time) model.SocialSignal {
	postedAt := hour.Add(time.Duration(g.rng.Intn(60)) * time.Minute)
	truth := Pattern(cp, postedAt)

	var sentiment float64
	switch truth {
	case model.StatusClosed:
		sentiment = -0.6
	case model.StatusPartial:
		sentiment = -0.2
	default:
		sentiment = 0.4
	}
	sentiment = clamp(sentiment+0.3*(g.rng.Float64()-0.5), -1, 1)
	confidence := 0.5 + 0.5*g.rng.Float64()
	likes := g.rng.Int63n(200)
	shares := g.rng.Int63n(40)
	comments := g.rng.Int63n(25)
	id := cp.ID

	sig := model.SocialSignal{
		SourceID:       uuid.NewString(),
		CheckpointID:   &id,
		Source:         model.SocialSources()[g.rng.Intn(len(model.SocialSources()))],
		PostedAt:       postedAt,
		SentimentScore: &sentiment,
		Confidence:     &confidence,
		Likes:          &likes,
		Shares:         &shares,
		Comments:       &comments,
	}
	if g.rng.Float64() < 0.8 {
		inferred := truth
		sig.InferredStatus = &inferred
	}
	return sig
}

// signalCount draws how many mentions arrive in one hour.
func (g *Generator) signalCount() int {
	n := 0
	for p := g.cfg.SignalRate; p > 0 && g.rng.Float64() < p; p /= 2 {
		n++
	}
	return n
}

func (g *Generator) source() model.Source {
	if g.rng.Float64() < 0.1 {
		return model.SourceManual
	}
	social := model.SocialSources()
	return social[g.rng.Intn(len(social))]
}

func (g *Generator) otherStatus(s model.Status) model.Status {
	choices := []model.Status{model.StatusOpen, model.StatusClosed, model.StatusPartial}
	for {
		c := choices[g.rng.Intn(len(choices))]
		if c != s {
			return c
		}
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
