// Package service wires storage, feature extraction, training, the model
// registry and prediction into the process the HTTP API and binaries use.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/passwatch/internal/adapters/mq/queue"
	"github.com/okian/passwatch/internal/adapters/mq/worker"
	"github.com/okian/passwatch/internal/adapters/publish"
	"github.com/okian/passwatch/internal/adapters/registry"
	"github.com/okian/passwatch/internal/adapters/repository"
	"github.com/okian/passwatch/internal/config"
	"github.com/okian/passwatch/internal/domain/features"
	"github.com/okian/passwatch/internal/domain/learn"
	"github.com/okian/passwatch/internal/domain/model"
	"github.com/okian/passwatch/internal/domain/prediction"
	"github.com/okian/passwatch/internal/domain/training"
	"github.com/okian/passwatch/pkg/logger"
	"github.com/okian/passwatch/pkg/metrics"
)

const workerShutdownTimeout = 30 * time.Second

// Sentinel errors for the service.
var (
	ErrNotStarted     = errors.New("service not started")
	ErrInvalidRequest = errors.New("invalid training request")
	ErrInvalidQuery   = errors.New("invalid query")
)

// Read window defaults.
const (
	defaultReadWindow  = 24 * time.Hour
	defaultSignalLimit = 50
	defaultRecentLimit = 100
	maxReadWindow      = 90 * 24 * time.Hour
)

// ModelInfo describes the serving model and what the registry holds.
type ModelInfo struct {
	Loaded    bool                                   `json:"loaded"`
	Version   string                                 `json:"version,omitempty"`
	TrainedAt *time.Time                             `json:"trained_at,omitempty"`
	Features  int                                    `json:"features"`
	Samples   int                                    `json:"samples"`
	Window    *features.Window                       `json:"window,omitempty"`
	Metrics   map[model.Horizon]model.HorizonMetrics `json:"metrics,omitempty"`
	Latest    string                                 `json:"latest,omitempty"`
	Available []string                               `json:"available_versions"`
}

type sinkOption struct {
	name string
	sink publish.Sink
}

// Service owns every long-lived handle of the process.
type Service struct {
	mu sync.RWMutex

	cfg         *config.Config
	store       repository.Store
	sinks       []sinkOption
	jobRecorder JobRecorder
	now         func() time.Time

	registry  *registry.Registry
	predictor *prediction.Service
	trainer   *training.Trainer
	fanout    *publish.Fanout
	recent    *publish.Recent
	jobs      *jobTracker
	queue     *queue.InMemoryQueue
	worker    *worker.Worker
	scheduler *scheduler
	cancel    context.CancelFunc

	closers []func() error
	started bool
	logger  logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig sets the configuration. Defaults to config.New().
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithStore sets the repository. Defaults to an empty memory store.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithSink adds a named prediction sink.
func WithSink(name string, sink publish.Sink) Option {
	return func(s *Service) {
		if sink != nil {
			s.sinks = append(s.sinks, sinkOption{name: name, sink: sink})
		}
	}
}

// WithJobRecorder persists training job transitions.
func WithJobRecorder(rec JobRecorder) Option {
	return func(s *Service) { s.jobRecorder = rec }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service. Nothing runs until Start.
func New(opts ...Option) *Service {
	s := &Service{
		cfg: config.New(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		s.store = repository.NewMemoryStore()
	}
	if s.logger == nil {
		s.logger = logger.Named("service")
	}
	return s
}

// Start builds the components, starts the training worker and scheduler, and
// loads the latest artifact if configured to.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting passwatch service...")

	dates, err := s.cfg.HolidayDates()
	if err != nil {
		return err
	}
	cal := features.NewCalendar(dates...)
	window := features.Window{SocialLookback: s.cfg.SocialLookback(), HistoricalLookback: s.cfg.HistoricalLookback()}
	asm, err := features.NewAssembler(s.store, window, features.WithCalendar(cal))
	if err != nil {
		return fmt.Errorf("feature assembler: %w", err)
	}
	reg, err := registry.New(s.cfg.ModelDir)
	if err != nil {
		return err
	}

	s.registry = reg
	s.trainer = training.NewTrainer(s.store, asm,
		training.WithForestParams(learn.ForestParams{
			Trees:           s.cfg.ForestTrees,
			MaxDepth:        s.cfg.ForestMaxDepth,
			MinSamplesSplit: s.cfg.ForestMinSamplesSplit,
			MinSamplesLeaf:  s.cfg.ForestMinSamplesLeaf,
			Seed:            s.cfg.ForestSeed,
			Workers:         runtime.NumCPU(),
		}),
		training.WithTestFraction(s.cfg.TestFraction),
		training.WithWorkers(s.cfg.ExtractionWorkers),
		training.WithMaxGap(s.cfg.LabelMaxGapShort(), s.cfg.LabelMaxGapLong()),
		training.WithClock(s.now),
	)
	s.predictor = prediction.NewService(s.store, prediction.WithCalendar(cal), prediction.WithClock(s.now))

	s.recent = publish.NewRecent(s.cfg.RecentPredictions, s.now)
	fanoutOpts := make([]publish.Option, 0, len(s.sinks)+1)
	fanoutOpts = append(fanoutOpts, publish.WithSink("recent", s.recent))
	for _, so := range s.sinks {
		fanoutOpts = append(fanoutOpts, publish.WithSink(so.name, so.sink))
	}
	s.fanout = publish.NewFanout(fanoutOpts...)

	s.jobs = newJobTracker(s.jobRecorder, s.now)
	s.jobs.onError = func(ctx context.Context, job model.TrainingJob, err error) {
		metrics.RecordErrorByComponent("jobs", "record_failed")
		s.logger.Warn(ctx, "failed to record training job", logger.String("job_id", job.ID), logger.Error(err))
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.cfg.TrainQueueSize))
	s.worker = worker.New(s.queue, worker.HandlerFunc(s.runJob), worker.WithName("training-worker"))
	go s.worker.Run(runCtx)

	if s.cfg.LoadLatestOnStart {
		if _, err := s.loadModel(ctx, registry.Latest); err != nil {
			if errors.Is(err, registry.ErrArtifactNotFound) {
				s.logger.Info(ctx, "no saved model yet; predictions unavailable until training completes")
			} else {
				s.logger.Warn(ctx, "failed to load latest model", logger.Error(err))
			}
		}
	}

	if s.cfg.TrainSchedule != "" {
		s.scheduler = newScheduler(runCtx, s.logger.Named("scheduler"))
		if err := s.scheduler.add(s.cfg.TrainSchedule, func(ctx context.Context) {
			if _, err := s.SubmitTraining(ctx, model.TrainingRequest{}); err != nil {
				s.logger.Warn(ctx, "scheduled training not queued", logger.Error(err))
			}
		}); err != nil {
			cancel()
			return fmt.Errorf("%w: train_schedule: %v", config.ErrInvalidConfig, err)
		}
		s.scheduler.start()
	}

	s.started = true
	s.logger.Info(ctx, "passwatch service started",
		logger.String("model_dir", s.cfg.ModelDir),
		logger.Int("queue_size", s.cfg.TrainQueueSize),
		logger.Int("sinks", s.fanout.Len()),
		logger.String("train_schedule", s.cfg.TrainSchedule),
	)
	return nil
}

// Stop shuts down the scheduler and worker and closes the store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping passwatch service...")

	if s.scheduler != nil {
		s.scheduler.stop()
	}
	_ = s.queue.Close()
	sctx, cancel := context.WithTimeout(ctx, workerShutdownTimeout)
	if err := s.worker.Shutdown(sctx); err != nil {
		s.logger.Warn(ctx, "training worker did not stop in time", logger.Error(err))
	}
	cancel()
	s.cancel()
	if n := s.jobs.abandon(ctx); n > 0 {
		s.logger.Warn(ctx, "pending training jobs abandoned", logger.Int("jobs", n))
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn(ctx, "store close failed", logger.Error(err))
	}
	for _, closeFn := range s.closers {
		if err := closeFn(); err != nil {
			s.logger.Warn(ctx, "sink close failed", logger.Error(err))
		}
	}
	s.started = false
	s.logger.Info(ctx, "passwatch service stopped")
}

func (s *Service) isStarted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// Store returns the repository the service reads from.
func (s *Service) Store() repository.Store { return s.store }

// Predict serves a prediction and hands it to the configured sinks. Sink
// failures are logged and do not fail the request.
func (s *Service) Predict(ctx context.Context, checkpointID int64, ref time.Time) (model.PredictionResult, error) {
	if !s.isStarted() {
		return model.PredictionResult{}, ErrNotStarted
	}
	res, err := s.predictor.Predict(ctx, checkpointID, ref)
	if err != nil {
		return model.PredictionResult{}, err
	}
	if s.fanout.Len() > 0 {
		_ = s.fanout.RecordPrediction(ctx, res)
	}
	return res, nil
}

// ReportStatus records a verified manual observation. A zero at means now.
func (s *Service) ReportStatus(ctx context.Context, checkpointID int64, status model.Status, at time.Time, notes string) (model.StatusObservation, error) {
	if _, err := s.store.Checkpoint(ctx, checkpointID); err != nil {
		return model.StatusObservation{}, err
	}
	if at.IsZero() {
		at = s.now()
	}
	obs := model.StatusObservation{
		CheckpointID: checkpointID,
		Status:       status,
		Timestamp:    at.UTC(),
		Confidence:   1.0,
		Source:       model.SourceManual,
		Verified:     true,
		Notes:        notes,
	}
	if err := s.store.AppendObservation(ctx, obs); err != nil {
		return model.StatusObservation{}, err
	}
	s.logger.Info(ctx, "manual status reported",
		logger.Int64("checkpoint_id", checkpointID),
		logger.String("status", status.String()),
	)
	return obs, nil
}

// Checkpoints lists active checkpoints.
func (s *Service) Checkpoints(ctx context.Context) ([]model.CheckpointMeta, error) {
	return s.store.Checkpoints(ctx)
}

// Checkpoint returns one checkpoint, active or not.
func (s *Service) Checkpoint(ctx context.Context, id int64) (model.CheckpointMeta, error) {
	return s.store.Checkpoint(ctx, id)
}

// UpsertCheckpoint registers or replaces checkpoint metadata.
func (s *Service) UpsertCheckpoint(ctx context.Context, cp model.CheckpointMeta) error {
	switch {
	case cp.ID <= 0:
		return fmt.Errorf("%w: checkpoint id must be positive", repository.ErrInvalidInput)
	case cp.Name == "":
		return fmt.Errorf("%w: checkpoint name must not be empty", repository.ErrInvalidInput)
	case cp.Latitude < -90 || cp.Latitude > 90 || cp.Longitude < -180 || cp.Longitude > 180:
		return fmt.Errorf("%w: coordinates out of range", repository.ErrInvalidInput)
	}
	if err := s.store.UpsertCheckpoint(ctx, cp); err != nil {
		return err
	}
	s.logger.Info(ctx, "checkpoint upserted", logger.Int64("checkpoint_id", cp.ID), logger.String("name", cp.Name))
	return nil
}

// History returns a checkpoint's observations from the last window, newest
// first. A zero window means 24 hours.
func (s *Service) History(ctx context.Context, checkpointID int64, window time.Duration) ([]model.StatusObservation, error) {
	from, to, err := s.readRange(window)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.Checkpoint(ctx, checkpointID); err != nil {
		return nil, err
	}
	obs, err := s.store.Observations(ctx, checkpointID, from, to)
	if err != nil {
		return nil, err
	}
	slices.Reverse(obs)
	return obs, nil
}

// SocialSignals returns up to limit matched mentions from the last window,
// newest first. Zero window and limit mean 24 hours and 50.
func (s *Service) SocialSignals(ctx context.Context, checkpointID int64, window time.Duration, limit int) ([]model.SocialSignal, error) {
	from, to, err := s.readRange(window)
	if err != nil {
		return nil, err
	}
	if limit < 0 {
		return nil, fmt.Errorf("%w: limit must not be negative", ErrInvalidQuery)
	}
	if limit == 0 {
		limit = defaultSignalLimit
	}
	if _, err := s.store.Checkpoint(ctx, checkpointID); err != nil {
		return nil, err
	}
	sigs, err := s.store.Signals(ctx, checkpointID, from, to)
	if err != nil {
		return nil, err
	}
	slices.Reverse(sigs)
	if len(sigs) > limit {
		sigs = sigs[:limit]
	}
	return sigs, nil
}

// RecentPredictions returns up to limit predictions served in the last
// window, newest first. Zero window and limit mean 24 hours and 100.
func (s *Service) RecentPredictions(_ context.Context, window time.Duration, limit int) ([]publish.RecentPrediction, error) {
	if !s.isStarted() {
		return nil, ErrNotStarted
	}
	from, _, err := s.readRange(window)
	if err != nil {
		return nil, err
	}
	if limit < 0 {
		return nil, fmt.Errorf("%w: limit must not be negative", ErrInvalidQuery)
	}
	if limit == 0 {
		limit = defaultRecentLimit
	}
	return s.recent.List(from, limit), nil
}

// readRange turns a lookback window into [now-window, now].
func (s *Service) readRange(window time.Duration) (time.Time, time.Time, error) {
	if window == 0 {
		window = defaultReadWindow
	}
	if window < 0 || window > maxReadWindow {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: window must be within 90 days", ErrInvalidQuery)
	}
	// Half-open store ranges; shift by 1ns to keep now inclusive.
	to := s.now().UTC().Add(time.Nanosecond)
	return to.Add(-window - time.Nanosecond), to, nil
}

func (s *Service) normalize(req model.TrainingRequest) (model.TrainingRequest, error) {
	if req.End.IsZero() {
		req.End = s.now().UTC()
	}
	if req.Start.IsZero() {
		req.Start = req.End.Add(-s.cfg.TrainingLookback())
	}
	if !req.Start.Before(req.End) {
		return req, fmt.Errorf("%w: start must be before end", ErrInvalidRequest)
	}
	if req.MinSamplesPerCheckpoint <= 0 {
		req.MinSamplesPerCheckpoint = s.cfg.MinSamplesPerCheckpoint
	}
	if req.Version != "" {
		if err := registry.ValidateVersion(req.Version); err != nil {
			return req, err
		}
	}
	req.JobID = uuid.NewString()
	return req, nil
}

// SubmitTraining queues a training run and returns its job record. Zero
// start/end default to the configured lookback ending now.
func (s *Service) SubmitTraining(ctx context.Context, req model.TrainingRequest) (model.TrainingJob, error) {
	if !s.isStarted() {
		return model.TrainingJob{}, ErrNotStarted
	}
	req, err := s.normalize(req)
	if err != nil {
		return model.TrainingJob{}, err
	}
	job := s.jobs.queue(ctx, req)
	if err := s.queue.Enqueue(ctx, req); err != nil {
		_, _ = s.jobs.fail(ctx, job.ID, stageQueue, err)
		return model.TrainingJob{}, err
	}
	s.logger.Info(ctx, "training queued",
		logger.String("job_id", job.ID),
		logger.Time("start", req.Start),
		logger.Time("end", req.End),
	)
	return job, nil
}

// TrainNow runs a training job synchronously on the caller's goroutine.
func (s *Service) TrainNow(ctx context.Context, req model.TrainingRequest) (model.TrainingJob, error) {
	if !s.isStarted() {
		return model.TrainingJob{}, ErrNotStarted
	}
	req, err := s.normalize(req)
	if err != nil {
		return model.TrainingJob{}, err
	}
	s.jobs.queue(ctx, req)
	runErr := s.runJob(ctx, req)
	job, err := s.jobs.get(req.JobID)
	if err != nil {
		return model.TrainingJob{}, err
	}
	return job, runErr
}

// runJob trains, saves and swaps in a new artifact. Any failure leaves the
// serving model untouched.
func (s *Service) runJob(ctx context.Context, req model.TrainingRequest) error {
	if _, err := s.jobs.start(ctx, req.JobID); err != nil {
		return err
	}
	s.logger.Info(ctx, "training started", logger.String("job_id", req.JobID))

	art, err := s.trainer.Train(ctx, req)
	if err != nil {
		stage := training.Stage(err)
		_, _ = s.jobs.fail(ctx, req.JobID, stage, err)
		s.logger.Error(ctx, "training failed",
			logger.String("job_id", req.JobID),
			logger.String("stage", stage),
			logger.Error(err),
		)
		return err
	}
	// Generated versions may repeat within a second; explicit ones must not.
	save := s.registry.Save
	if req.Version == "" {
		save = s.registry.SaveUnique
	}
	path, err := save(ctx, art)
	if err == nil {
		err = s.predictor.Swap(art)
	}
	if err != nil {
		_, _ = s.jobs.fail(ctx, req.JobID, training.StageSave, err)
		s.logger.Error(ctx, "saving trained model failed", logger.String("job_id", req.JobID), logger.Error(err))
		return &training.StageError{Stage: training.StageSave, Err: err}
	}

	_, err = s.jobs.complete(ctx, req.JobID, func(j *model.TrainingJob) {
		j.Version = art.Version
		j.NumSamples = art.Samples
		j.Metrics = art.Metrics
		j.ArtifactPath = path
	})
	s.logger.Info(ctx, "training completed",
		logger.String("job_id", req.JobID),
		logger.String("version", art.Version),
		logger.Int("samples", art.Samples),
	)
	return err
}

// Job returns a training job by id.
func (s *Service) Job(_ context.Context, id string) (model.TrainingJob, error) {
	if !s.isStarted() {
		return model.TrainingJob{}, ErrNotStarted
	}
	return s.jobs.get(id)
}

// Jobs lists training jobs newest first.
func (s *Service) Jobs(_ context.Context) []model.TrainingJob {
	if !s.isStarted() {
		return nil
	}
	return s.jobs.list()
}

// LoadModel loads a stored version, or the latest, and swaps it in.
func (s *Service) LoadModel(ctx context.Context, version string) (string, error) {
	if !s.isStarted() {
		return "", ErrNotStarted
	}
	return s.loadModel(ctx, version)
}

func (s *Service) loadModel(ctx context.Context, version string) (string, error) {
	art, err := s.registry.Load(ctx, version)
	if err != nil {
		return "", err
	}
	if err := s.predictor.Swap(art); err != nil {
		return "", err
	}
	return art.Version, nil
}

// ModelReady reports whether predictions can be served.
func (s *Service) ModelReady() bool {
	return s.isStarted() && s.predictor.Ready()
}

// ModelInfo reports the serving model and the stored versions.
func (s *Service) ModelInfo(_ context.Context) (ModelInfo, error) {
	if !s.isStarted() {
		return ModelInfo{}, ErrNotStarted
	}
	info := ModelInfo{}
	if art, ok := s.predictor.Current(); ok {
		trainedAt := art.TrainedAt
		window := art.Window
		info.Loaded = true
		info.Version = art.Version
		info.TrainedAt = &trainedAt
		info.Features = len(art.FeatureNames)
		info.Samples = art.Samples
		info.Window = &window
		info.Metrics = art.Metrics
	}
	available, err := s.registry.List()
	if err != nil {
		return ModelInfo{}, err
	}
	info.Available = available
	if latest, err := s.registry.LatestVersion(); err == nil {
		info.Latest = latest
	}
	return info, nil
}

// Importance returns the top n features of the serving model for h.
func (s *Service) Importance(_ context.Context, h model.Horizon, n int) ([]training.FeatureImportance, error) {
	if !s.isStarted() {
		return nil, ErrNotStarted
	}
	art, ok := s.predictor.Current()
	if !ok {
		return nil, prediction.ErrModelNotTrained
	}
	return art.TopFeatures(h, n), nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ctx := context.Background()

	stats := map[string]interface{}{
		"started": s.started,
	}
	if !s.started {
		return stats
	}
	stats["queueLength"] = s.queue.Len(ctx)
	stats["modelLoaded"] = s.predictor.Ready()
	if art, ok := s.predictor.Current(); ok {
		stats["modelVersion"] = art.Version
	}
	jobs := map[string]int{}
	for status, n := range s.jobs.counts() {
		jobs[string(status)] = n
	}
	stats["jobs"] = jobs
	if sum, err := s.store.Summary(ctx); err == nil {
		stats["checkpoints"] = sum.Checkpoints
		stats["observations"] = sum.Observations
		stats["signals"] = sum.Signals
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	metrics.UpdateSystemMemoryUsage(mem.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
	return stats
}
