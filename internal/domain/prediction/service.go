// Package prediction serves dual-horizon status predictions from a loaded
// artifact.
package prediction

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/okian/passwatch/internal/domain/features"
	"github.com/okian/passwatch/internal/domain/model"
	"github.com/okian/passwatch/internal/domain/training"
	"github.com/okian/passwatch/pkg/logger"
	"github.com/okian/passwatch/pkg/metrics"
)

// ready is the loaded state. It is immutable once published.
type ready struct {
	artifact  *training.Artifact
	assembler *features.Assembler
}

// Service predicts with the current artifact. It starts unloaded; Swap moves
// it to ready. Each request reads the state once, so a concurrent swap never
// mixes parts of two artifacts.
type Service struct {
	source   features.Source
	calendar *features.Calendar
	state    atomic.Pointer[ready]
	now      func() time.Time
	logger   logger.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithCalendar sets the holiday calendar for artifacts that do not carry
// their own.
func WithCalendar(cal *features.Calendar) Option {
	return func(s *Service) { s.calendar = cal }
}

// WithClock overrides the time source for predictions without a reference time.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates an unloaded service reading from src.
func NewService(src features.Source, opts ...Option) *Service {
	s := &Service{source: src, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Named("prediction")
	}
	return s
}

// Swap validates art and makes it the serving model.
func (s *Service) Swap(art *training.Artifact) error {
	if err := art.Validate(); err != nil {
		return err
	}
	cal := s.calendar
	if art.Holidays != nil {
		cal = features.NewCalendar(art.Holidays...)
	}
	asm, err := features.NewAssembler(s.source, art.Window, features.WithCalendar(cal))
	if err != nil {
		return fmt.Errorf("artifact window: %w", err)
	}
	prev := s.state.Swap(&ready{artifact: art, assembler: asm})
	metrics.UpdateModelLoaded(art.Version)

	fields := []logger.Field{
		logger.String("version", art.Version),
		logger.Time("trained_at", art.TrainedAt),
		logger.Int("features", len(art.FeatureNames)),
	}
	if prev != nil {
		fields = append(fields, logger.String("previous_version", prev.artifact.Version))
	}
	s.logger.Info(context.Background(), "model swapped", fields...)
	return nil
}

// Current returns the serving artifact, if any.
func (s *Service) Current() (*training.Artifact, bool) {
	st := s.state.Load()
	if st == nil {
		return nil, false
	}
	return st.artifact, true
}

// Ready reports whether a model is loaded.
func (s *Service) Ready() bool { return s.state.Load() != nil }

// Predict assembles features for the checkpoint as of ref and classifies them
// with both horizons. A zero ref means now.
func (s *Service) Predict(ctx context.Context, checkpointID int64, ref time.Time) (model.PredictionResult, error) {
	st := s.state.Load()
	if st == nil {
		metrics.RecordPredictionError("not_trained")
		return model.PredictionResult{}, ErrModelNotTrained
	}
	if ref.IsZero() {
		ref = s.now()
	}
	start := time.Now()
	defer func() { metrics.RecordPredictionLatency(float64(time.Since(start).Microseconds()) / 1000) }()

	fm, err := st.assembler.Build(ctx, checkpointID, ref)
	if err != nil {
		reason := "features"
		if errors.Is(err, ErrCheckpointNotFound) {
			reason = "not_found"
		}
		metrics.RecordPredictionError(reason)
		return model.PredictionResult{}, err
	}
	return s.classify(st.artifact, checkpointID, ref, fm)
}

// PredictMap classifies an already assembled feature map.
func (s *Service) PredictMap(checkpointID int64, ref time.Time, fm features.Map) (model.PredictionResult, error) {
	st := s.state.Load()
	if st == nil {
		metrics.RecordPredictionError("not_trained")
		return model.PredictionResult{}, ErrModelNotTrained
	}
	return s.classify(st.artifact, checkpointID, ref, fm)
}

func (s *Service) classify(art *training.Artifact, checkpointID int64, ref time.Time, fm features.Map) (model.PredictionResult, error) {
	row, err := fm.Reindex(art.FeatureNames)
	if err != nil {
		metrics.RecordPredictionError("feature_mismatch")
		return model.PredictionResult{}, err
	}
	scaled, err := art.Scaler.Transform(row)
	if err != nil {
		metrics.RecordPredictionError("scaler")
		return model.PredictionResult{}, err
	}

	res := model.PredictionResult{CheckpointID: checkpointID, ReferenceTime: ref, ModelVersion: art.Version}
	for _, h := range []model.Horizon{model.HorizonShort, model.HorizonLong} {
		label, conf, err := art.Classifier(h).Predict(scaled)
		if err != nil {
			metrics.RecordPredictionError("classifier")
			return model.PredictionResult{}, fmt.Errorf("%s: %w", h, err)
		}
		status := model.Status(label)
		if !status.Valid() {
			metrics.RecordPredictionError("classifier")
			return model.PredictionResult{}, fmt.Errorf("%s: %w: %d", h, model.ErrUnknownStatus, label)
		}
		p := model.HorizonPrediction{
			Status:        status,
			Confidence:    conf,
			PredictionFor: ref.Add(h.Offset()),
			HorizonHours:  h.Hours(),
		}
		if h == model.HorizonLong {
			res.LongTerm = p
		} else {
			res.ShortTerm = p
		}
		metrics.RecordPrediction(string(h), status.String())
	}
	return res, nil
}
