package simulate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/passwatch/internal/adapters/repository"
	app "github.com/okian/passwatch/internal/app"
	"github.com/okian/passwatch/internal/config"
	"github.com/okian/passwatch/internal/domain/model"
	"github.com/okian/passwatch/pkg/logger"
)

// Evaluation constants.
const (
	holdout       = 48 * time.Hour
	predictEvery  = 3 * time.Hour
	minSimDays    = 4
	versionPrefix = "sim_"
)

// ErrInvalidConfig is returned for simulation settings that cannot produce a
// trainable history.
var ErrInvalidConfig = errors.New("invalid simulation config")

// Run executes the complete simulation and returns its statistics.
func Run(ctx context.Context, cfg Config) (Stats, error) {
	if err := validate(cfg); err != nil {
		return Stats{}, err
	}
	if cfg.BaseURL != "" {
		return runRemote(ctx, cfg)
	}
	return runLocal(ctx, cfg, config.New())
}

func validate(cfg Config) error {
	switch {
	case cfg.Days < minSimDays:
		return fmt.Errorf("%w: days must be at least %d", ErrInvalidConfig, minSimDays)
	case cfg.Step <= 0:
		return fmt.Errorf("%w: step must be positive", ErrInvalidConfig)
	case cfg.Noise < 0 || cfg.Noise >= 1:
		return fmt.Errorf("%w: noise must be in [0, 1)", ErrInvalidConfig)
	case cfg.Start.IsZero():
		return fmt.Errorf("%w: missing start", ErrInvalidConfig)
	}
	return nil
}

// runLocal seeds an in-memory store, trains on everything before the holdout
// and scores predictions made inside it.
func runLocal(ctx context.Context, cfg Config, appCfg *config.Config) (Stats, error) {
	log := logger.Named("simulate")
	started := time.Now()

	store := repository.NewMemoryStore()
	var w repository.Writer = store
	if cfg.OutputFile != "" {
		hw, err := newHistoryWriter(store, cfg.OutputFile)
		if err != nil {
			return Stats{}, err
		}
		defer func() { _ = hw.Close() }()
		w = hw
	}

	cps := Checkpoints()
	stats, err := NewGenerator(cfg).Generate(ctx, w, cps)
	if err != nil {
		return stats, fmt.Errorf("history generation failed: %w", err)
	}
	stats.StartTime = started

	appCfg.ModelDir = cfg.ModelDir
	appCfg.LoadLatestOnStart = false
	appCfg.TrainSchedule = ""
	end := cfg.End()
	svc := app.New(
		app.WithConfig(appCfg),
		app.WithStore(store),
		app.WithClock(func() time.Time { return end }),
		app.WithLogger(log.Named("service")),
	)
	if err := svc.Start(ctx); err != nil {
		return stats, err
	}
	defer svc.Stop()

	cutoff := end.Add(-holdout)
	job, err := svc.TrainNow(ctx, model.TrainingRequest{
		Start:   cfg.Start,
		End:     cutoff,
		Version: fmt.Sprintf("%s%d", versionPrefix, time.Now().UnixNano()),
	})
	if err != nil {
		return stats, fmt.Errorf("training failed: %w", err)
	}
	log.Info(ctx, "model trained",
		logger.String("version", job.Version),
		logger.Int("samples", job.NumSamples),
		logger.Float64("short_accuracy", job.Metrics[model.HorizonShort].Accuracy),
		logger.Float64("long_accuracy", job.Metrics[model.HorizonLong].Accuracy),
	)

	var problems []error
	for ref := cutoff; !ref.After(end.Add(-model.HorizonLong.Offset())); ref = ref.Add(predictEvery) {
		for _, cp := range cps {
			res, err := svc.Predict(ctx, cp.ID, ref)
			if err != nil {
				return stats, fmt.Errorf("predict %d@%s: %w", cp.ID, ref.Format(time.RFC3339), err)
			}
			if err := verifyPrediction(res, cp.ID, ref); err != nil {
				problems = append(problems, err)
			}
			score(&stats, cp, res)
			if cfg.Verbose {
				logPrediction(ctx, log, res)
			}
		}
	}

	finish(ctx, log, &stats)
	return stats, errors.Join(problems...)
}

func logPrediction(ctx context.Context, log logger.Logger, res model.PredictionResult) {
	log.Info(ctx, "prediction",
		logger.Int64("checkpoint_id", res.CheckpointID),
		logger.Time("ref", res.ReferenceTime),
		logger.String("short", res.ShortTerm.Status.String()),
		logger.Float64("short_confidence", res.ShortTerm.Confidence),
		logger.String("long", res.LongTerm.Status.String()),
		logger.Float64("long_confidence", res.LongTerm.Confidence),
	)
}

// finish stamps the end time and logs the final statistics.
func finish(ctx context.Context, log logger.Logger, stats *Stats) {
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	log.Info(ctx, "final statistics",
		logger.Int("checkpoints", stats.Checkpoints),
		logger.Int("observations", stats.Observations),
		logger.Int("signals", stats.Signals),
		logger.Int("predictions", stats.Predictions),
		logger.Float64("short_accuracy", stats.ShortAccuracy()),
		logger.Float64("long_accuracy", stats.LongAccuracy()),
		logger.Duration("duration", stats.Duration),
	)
}
