// Command train runs one dual-horizon training job against the configured
// store, saves the artifact and exits.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/passwatch/internal/adapters/repository"
	app "github.com/okian/passwatch/internal/app"
	"github.com/okian/passwatch/internal/config"
	"github.com/okian/passwatch/internal/domain/model"
	"github.com/okian/passwatch/pkg/logger"
)

const dateLayout = "2006-01-02"

// ErrNotEnoughData is returned when the store holds too little history to train on.
var ErrNotEnoughData = errors.New("not enough training data")

func main() {
	var (
		start      = flag.String("start", "", "Training range start (YYYY-MM-DD or RFC3339). Defaults to end minus training_lookback_days")
		end        = flag.String("end", "", "Training range end, exclusive (YYYY-MM-DD or RFC3339). Defaults to now")
		version    = flag.String("version", "", "Artifact version. Defaults to the training timestamp")
		minSamples = flag.Int("min-samples", 0, "Minimum records per checkpoint. Defaults to min_samples_per_checkpoint")
		force      = flag.Bool("force", false, "Train even when the stored history is below min_training_records or min_training_span_days")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *start, *end, *version, *minSamples, *force); err != nil {
		os.Stderr.WriteString("training failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func run(ctx context.Context, start, end, version string, minSamples int, force bool) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		return err
	}
	_ = logger.SetLevelString(cfg.LogLevel)
	log := logger.Named("train")

	req, err := buildRequest(start, end, version, minSamples)
	if err != nil {
		return err
	}

	// A batch run never schedules and never serves.
	cfg.TrainSchedule = ""
	cfg.LoadLatestOnStart = false

	svc, err := app.FromConfig(ctx, cfg, log.Named("service"))
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer svc.Stop()

	sum, err := svc.Store().Summary(ctx)
	if err != nil {
		return fmt.Errorf("data summary: %w", err)
	}
	log.Info(ctx, "data available",
		logger.Int("checkpoints", sum.Checkpoints),
		logger.Int("observations", sum.Observations),
		logger.Int("signals", sum.Signals),
		logger.Time("oldest", sum.Oldest),
		logger.Time("newest", sum.Newest),
		logger.Duration("span", sum.Span()),
	)
	if err := checkData(sum, cfg); err != nil {
		if !force || sum.Observations == 0 {
			return err
		}
		log.Warn(ctx, "training below data minimums", logger.Error(err))
	}

	job, err := svc.TrainNow(ctx, req)
	if err != nil {
		return err
	}
	for _, h := range []model.Horizon{model.HorizonShort, model.HorizonLong} {
		m := job.Metrics[h]
		log.Info(ctx, "held-out metrics",
			logger.String("horizon", string(h)),
			logger.Float64("accuracy", m.Accuracy),
			logger.Float64("f1", m.F1Score),
			logger.Int("test_size", m.TestSize),
		)
	}
	log.Info(ctx, "model saved",
		logger.String("version", job.Version),
		logger.String("path", job.ArtifactPath),
		logger.Int("samples", job.NumSamples),
	)
	return nil
}

// checkData enforces the configured minimum record count and time span.
func checkData(sum repository.DataSummary, cfg *config.Config) error {
	switch {
	case sum.Observations == 0:
		return fmt.Errorf("%w: no status observations in store %q", ErrNotEnoughData, cfg.Store)
	case sum.Span() < cfg.MinTrainingSpan():
		return fmt.Errorf("%w: history spans %s, need %d days", ErrNotEnoughData,
			sum.Span().Round(time.Hour), cfg.MinTrainingSpanDays)
	case sum.Observations < cfg.MinTrainingRecords:
		return fmt.Errorf("%w: %d observations, need %d", ErrNotEnoughData,
			sum.Observations, cfg.MinTrainingRecords)
	}
	return nil
}

func buildRequest(start, end, version string, minSamples int) (model.TrainingRequest, error) {
	req := model.TrainingRequest{Version: version, MinSamplesPerCheckpoint: minSamples}
	var err error
	if req.Start, err = parseDate(start); err != nil {
		return req, fmt.Errorf("invalid -start: %w", err)
	}
	if req.End, err = parseDate(end); err != nil {
		return req, fmt.Errorf("invalid -end: %w", err)
	}
	return req, nil
}

// parseDate accepts a calendar date or an RFC3339 instant; empty is zero.
func parseDate(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(dateLayout, v); err == nil {
		return t.UTC(), nil
	}
	return time.Parse(time.RFC3339, v)
}
