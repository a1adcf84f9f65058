// Package training prepares labeled feature matrices and fits the two
// horizon classifiers.
package training

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/passwatch/internal/domain/features"
	"github.com/okian/passwatch/internal/domain/labeling"
	"github.com/okian/passwatch/internal/domain/learn"
	"github.com/okian/passwatch/internal/domain/model"
	"github.com/okian/passwatch/pkg/logger"
	"github.com/okian/passwatch/pkg/metrics"
)

// VersionLayout formats generated artifact versions.
const VersionLayout = "20060102_150405"

// DefaultTestFraction is the share of each class held out for evaluation.
const DefaultTestFraction = 0.2

// Source lists checkpoints and their observation history.
type Source interface {
	Checkpoints(ctx context.Context) ([]model.CheckpointMeta, error)
	Observations(ctx context.Context, checkpointID int64, from, to time.Time) ([]model.StatusObservation, error)
}

// Dataset is the unscaled training matrix with both label columns.
type Dataset struct {
	Names       []string
	X           [][]float64
	Short       []int
	Long        []int
	Checkpoints []int64
	Anchors     []time.Time
}

// Len returns the number of rows.
func (d *Dataset) Len() int { return len(d.X) }

// PrepareStats summarizes one preparation pass.
type PrepareStats struct {
	Checkpoints int
	Skipped     int
	Records     int
	Samples     int
	Unresolved  int
	Stale       int
}

// Trainer fits dual-horizon artifacts.
type Trainer struct {
	source       Source
	assembler    *features.Assembler
	params       learn.ForestParams
	testFraction float64
	workers      int
	maxGapShort  time.Duration
	maxGapLong   time.Duration
	now          func() time.Time
	logger       logger.Logger
}

// Option configures a Trainer.
type Option func(*Trainer)

// WithForestParams sets the hyperparameters shared by both classifiers.
func WithForestParams(p learn.ForestParams) Option {
	return func(t *Trainer) { t.params = p }
}

// WithTestFraction sets the held-out share per class.
func WithTestFraction(f float64) Option {
	return func(t *Trainer) {
		if f > 0 && f < 1 {
			t.testFraction = f
		}
	}
}

// WithWorkers bounds per-checkpoint extraction concurrency.
func WithWorkers(n int) Option {
	return func(t *Trainer) {
		if n > 0 {
			t.workers = n
		}
	}
}

// WithMaxGap bounds label staleness per horizon. Zero disables the bound.
func WithMaxGap(short, long time.Duration) Option {
	return func(t *Trainer) {
		t.maxGapShort = short
		t.maxGapLong = long
	}
}

// WithClock overrides the time source used for trained_at and versions.
func WithClock(now func() time.Time) Option {
	return func(t *Trainer) {
		if now != nil {
			t.now = now
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(t *Trainer) {
		if l != nil {
			t.logger = l
		}
	}
}

// NewTrainer creates a trainer reading from src and extracting features with asm.
func NewTrainer(src Source, asm *features.Assembler, opts ...Option) *Trainer {
	t := &Trainer{
		source:       src,
		assembler:    asm,
		params:       learn.DefaultForestParams(),
		testFraction: DefaultTestFraction,
		workers:      runtime.NumCPU(),
		maxGapShort:  time.Hour,
		maxGapLong:   6 * time.Hour,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = logger.Named("trainer")
	}
	return t
}

// Train prepares [req.Start, req.End) and fits a new artifact. Failures are
// *StageError values; zero eligible samples is ErrInsufficientData.
func (t *Trainer) Train(ctx context.Context, req model.TrainingRequest) (*Artifact, error) {
	start := time.Now()
	ds, _, err := t.Prepare(ctx, req.Start, req.End, req.MinSamplesPerCheckpoint)
	if err != nil {
		metrics.RecordTrainingRun("failed")
		return nil, stageErr(StagePrepare, err)
	}
	art, err := t.Fit(ctx, ds, req.Version)
	if err != nil {
		metrics.RecordTrainingRun("failed")
		return nil, err
	}
	metrics.RecordTrainingRun("completed")
	metrics.RecordTrainingDuration(time.Since(start))
	return art, nil
}

type checkpointRows struct {
	maps    []features.Map
	samples []labeling.Sample
	stats   labeling.Stats
	skipped bool
}

// Prepare builds the training matrix from every active checkpoint.
// Checkpoints with fewer than minSamples observations in range are skipped.
// Checkpoints are processed concurrently; rows keep checkpoint order.
func (t *Trainer) Prepare(ctx context.Context, from, to time.Time, minSamples int) (*Dataset, PrepareStats, error) {
	var stats PrepareStats
	if !from.Before(to) {
		return nil, stats, fmt.Errorf("empty training range [%s, %s)", from.Format(time.RFC3339), to.Format(time.RFC3339))
	}
	if minSamples <= 0 {
		minSamples = labeling.DefaultMinRecords
	}
	aligner := labeling.NewAligner(
		labeling.WithMinRecords(minSamples),
		labeling.WithMaxGap(model.HorizonShort, t.maxGapShort),
		labeling.WithMaxGap(model.HorizonLong, t.maxGapLong),
	)

	cps, err := t.source.Checkpoints(ctx)
	if err != nil {
		return nil, stats, fmt.Errorf("list checkpoints: %w", err)
	}
	stats.Checkpoints = len(cps)

	results := make([]checkpointRows, len(cps))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.workers)
	for i, cp := range cps {
		g.Go(func() error {
			rows, err := t.prepareCheckpoint(gctx, aligner, cp, from, to)
			if err != nil {
				return fmt.Errorf("checkpoint %d: %w", cp.ID, err)
			}
			results[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, stats, err
	}

	var maps []features.Map
	ds := &Dataset{}
	for i, r := range results {
		stats.Records += r.stats.Records
		if r.skipped {
			stats.Skipped++
			t.logger.Info(ctx, "skipping checkpoint with too few observations",
				logger.Int64("checkpoint_id", cps[i].ID),
				logger.Int("records", r.stats.Records),
				logger.Int("min_samples", minSamples),
			)
			continue
		}
		stats.Unresolved += r.stats.Unresolved
		stats.Stale += r.stats.Stale
		for j, s := range r.samples {
			maps = append(maps, r.maps[j])
			ds.Short = append(ds.Short, int(s.Short))
			ds.Long = append(ds.Long, int(s.Long))
			ds.Checkpoints = append(ds.Checkpoints, cps[i].ID)
			ds.Anchors = append(ds.Anchors, s.Anchor.Timestamp)
		}
	}
	stats.Samples = len(maps)

	metrics.RecordTrainingSkippedCheckpoints(stats.Skipped)
	metrics.RecordTrainingDroppedLabels("unresolved", stats.Unresolved)
	metrics.RecordTrainingDroppedLabels("stale", stats.Stale)
	metrics.UpdateTrainingSamples(stats.Samples)
	t.logger.Info(ctx, "training data prepared",
		logger.Int("checkpoints", stats.Checkpoints),
		logger.Int("skipped", stats.Skipped),
		logger.Int("records", stats.Records),
		logger.Int("samples", stats.Samples),
		logger.Int("dropped_unresolved", stats.Unresolved),
		logger.Int("dropped_stale", stats.Stale),
	)

	if stats.Samples == 0 {
		return nil, stats, ErrInsufficientData
	}
	ds.Names = features.Names(maps...)
	ds.X = make([][]float64, len(maps))
	for i, m := range maps {
		ds.X[i] = m.Densify(ds.Names)
	}
	return ds, stats, nil
}

func (t *Trainer) prepareCheckpoint(ctx context.Context, aligner *labeling.Aligner, cp model.CheckpointMeta, from, to time.Time) (checkpointRows, error) {
	obs, err := t.source.Observations(ctx, cp.ID, from, to)
	if err != nil {
		return checkpointRows{}, err
	}
	samples, stats, err := aligner.Align(obs)
	if errors.Is(err, labeling.ErrTooFewRecords) {
		return checkpointRows{stats: stats, skipped: true}, nil
	}
	if err != nil {
		return checkpointRows{}, err
	}
	rows := checkpointRows{samples: samples, stats: stats, maps: make([]features.Map, len(samples))}
	for i, s := range samples {
		m, err := t.assembler.BuildFor(ctx, cp, s.Anchor.Timestamp)
		if err != nil {
			return checkpointRows{}, err
		}
		rows.maps[i] = m
	}
	return rows, nil
}

// Fit splits, scales and trains both horizons on ds. An empty version is
// replaced by the training time in VersionLayout.
func (t *Trainer) Fit(ctx context.Context, ds *Dataset, version string) (*Artifact, error) {
	if ds == nil || ds.Len() == 0 {
		return nil, stageErr(StagePrepare, ErrInsufficientData)
	}
	trainedAt := t.now().UTC()
	if version == "" {
		version = trainedAt.Format(VersionLayout)
	}

	trainShort, testShort := learn.StratifiedSplit(ds.Short, t.testFraction, t.params.Seed)
	trainLong, testLong := learn.StratifiedSplit(ds.Long, t.testFraction, t.params.Seed)

	scaler, err := learn.FitScaler(learn.Rows(ds.X, scalerRows(trainShort, trainLong)))
	if err != nil {
		return nil, stageErr(StageFit, err)
	}
	x, err := scaler.TransformAll(ds.X)
	if err != nil {
		return nil, stageErr(StageFit, err)
	}

	art := &Artifact{
		Version:      version,
		TrainedAt:    trainedAt,
		FeatureNames: ds.Names,
		Scaler:       scaler,
		Window:       t.assembler.Window(),
		Holidays:     t.assembler.Calendar().Dates(),
		Samples:      ds.Len(),
		Metrics:      make(map[model.Horizon]model.HorizonMetrics, 2),
		Reports:      make(map[model.Horizon]learn.Report, 2),
	}

	for _, h := range []struct {
		horizon     model.Horizon
		labels      []int
		train, test []int
		dst         **learn.Forest
	}{
		{model.HorizonShort, ds.Short, trainShort, testShort, &art.ShortTerm},
		{model.HorizonLong, ds.Long, trainLong, testLong, &art.LongTerm},
	} {
		forest, err := learn.FitForest(ctx, learn.Rows(x, h.train), learn.Labels(h.labels, h.train), t.params)
		if err != nil {
			return nil, stageErr(StageFit, fmt.Errorf("%s: %w", h.horizon, err))
		}
		*h.dst = forest

		pred, err := forest.PredictAll(learn.Rows(x, h.test))
		if err != nil {
			return nil, stageErr(StageEvaluate, fmt.Errorf("%s: %w", h.horizon, err))
		}
		report := learn.Evaluate(learn.Labels(h.labels, h.test), pred)
		art.Reports[h.horizon] = report
		art.Metrics[h.horizon] = model.HorizonMetrics{
			Accuracy:  report.Accuracy,
			Precision: report.Precision,
			Recall:    report.Recall,
			F1Score:   report.F1,
			TestSize:  len(h.test),
			TrainSize: len(h.train),
		}
		metrics.UpdateTrainingAccuracy(string(h.horizon), report.Accuracy)

		fields := []logger.Field{
			logger.String("horizon", string(h.horizon)),
			logger.Int("train_size", len(h.train)),
			logger.Int("test_size", len(h.test)),
			logger.Float64("accuracy", report.Accuracy),
			logger.Float64("f1", report.F1),
		}
		if top := art.TopFeatures(h.horizon, 5); len(top) > 0 {
			fields = append(fields, logger.Any("top_features", top))
		}
		t.logger.Info(ctx, "horizon trained", fields...)
	}

	if err := art.Validate(); err != nil {
		return nil, stageErr(StageFit, err)
	}
	return art, nil
}

// scalerRows returns the rows in both training partitions, falling back to
// the short-term partition when the overlap is too small to fit on.
func scalerRows(short, long []int) []int {
	inLong := make(map[int]struct{}, len(long))
	for _, i := range long {
		inLong[i] = struct{}{}
	}
	both := make([]int, 0, len(short))
	for _, i := range short {
		if _, ok := inLong[i]; ok {
			both = append(both, i)
		}
	}
	if len(both) < 2 {
		return short
	}
	return both
}
