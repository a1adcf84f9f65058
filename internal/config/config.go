// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Keys are flat snake_case so env vars map onto them directly.
// - New() returns defaults; Load layers a YAML file and env vars on top.
// - Durations are stored as integer units named in the key.
package config

import (
	"fmt"
	"runtime"
	"time"
)

// Storage backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// HolidayLayout is the date layout of configured holidays.
const HolidayLayout = "2006-01-02"

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// Store selects the repository backend: memory or postgres.
	Store string `koanf:"store"`

	// DatabaseDSN is the Postgres connection string used when Store is postgres.
	DatabaseDSN string `koanf:"database_dsn"`

	// RedisURL enables the Redis prediction sink. Empty disables it.
	RedisURL string `koanf:"redis_url"`

	// RedisChannel is where every prediction is published.
	RedisChannel string `koanf:"redis_channel"`

	// PredictionCacheTTLSec bounds how long the latest prediction per checkpoint stays cached.
	PredictionCacheTTLSec int `koanf:"prediction_cache_ttl_sec"`

	// SeedCheckpoints writes the default checkpoint set into an empty store at startup.
	SeedCheckpoints bool `koanf:"seed_checkpoints"`

	// RecentPredictions bounds the in-process buffer behind /predictions/recent.
	RecentPredictions int `koanf:"recent_predictions"`

	// ModelDir holds versioned model artifacts.
	ModelDir string `koanf:"model_dir"`

	// LoadLatestOnStart loads the latest artifact, if any, when the service starts.
	LoadLatestOnStart bool `koanf:"load_latest_on_start"`

	// SocialLookbackHours is the social aggregation window L.
	SocialLookbackHours int `koanf:"social_lookback_hours"`

	// HistoricalLookbackDays is the historical pattern window D.
	HistoricalLookbackDays int `koanf:"historical_lookback_days"`

	MinSamplesPerCheckpoint int `koanf:"min_samples_per_checkpoint"`
	TrainingLookbackDays    int `koanf:"training_lookback_days"`

	// MinTrainingRecords and MinTrainingSpanDays gate cmd/train on how much
	// observation history is stored.
	MinTrainingRecords  int `koanf:"min_training_records"`
	MinTrainingSpanDays int `koanf:"min_training_span_days"`

	// TrainSchedule is a cron spec (seconds field included) for periodic retraining. Empty disables it.
	TrainSchedule string `koanf:"train_schedule"`

	// TrainQueueSize bounds pending training requests.
	TrainQueueSize int `koanf:"train_queue_size"`

	// ExtractionWorkers bounds per-checkpoint concurrency while preparing training data.
	ExtractionWorkers int `koanf:"extraction_workers"`

	// LabelMaxGapShortMin and LabelMaxGapLongMin bound how late a resolving
	// observation may be after the horizon target. Zero disables the bound.
	LabelMaxGapShortMin int `koanf:"label_max_gap_short_min"`
	LabelMaxGapLongMin  int `koanf:"label_max_gap_long_min"`

	// Forest hyperparameters.
	ForestTrees           int   `koanf:"forest_trees"`
	ForestMaxDepth        int   `koanf:"forest_max_depth"`
	ForestMinSamplesSplit int   `koanf:"forest_min_samples_split"`
	ForestMinSamplesLeaf  int   `koanf:"forest_min_samples_leaf"`
	ForestSeed            int64 `koanf:"forest_seed"`

	// TestFraction is the held-out share of the stratified split.
	TestFraction float64 `koanf:"test_fraction"`

	// Holidays lists public holiday dates as YYYY-MM-DD.
	Holidays []string `koanf:"holidays"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:                "info",
		LogFormat:               "text",
		Addr:                    ":9080",
		Store:                   StoreMemory,
		RedisChannel:            "passwatch:predictions",
		PredictionCacheTTLSec:   3600,
		SeedCheckpoints:         true,
		RecentPredictions:       500,
		ModelDir:                "models",
		LoadLatestOnStart:       true,
		SocialLookbackHours:     24,
		HistoricalLookbackDays:  30,
		MinSamplesPerCheckpoint: 10,
		TrainingLookbackDays:    30,
		MinTrainingRecords:      100,
		MinTrainingSpanDays:     7,
		TrainQueueSize:          16,
		ExtractionWorkers:       runtime.NumCPU(),
		LabelMaxGapShortMin:     60,
		LabelMaxGapLongMin:      360,
		ForestTrees:             100,
		ForestMaxDepth:          15,
		ForestMinSamplesSplit:   10,
		ForestMinSamplesLeaf:    5,
		ForestSeed:              42,
		TestFraction:            0.2,
		Holidays: []string{
			"2025-03-31", "2025-06-07", "2025-11-15",
			"2026-03-20", "2026-05-27", "2026-11-15",
		},
	}
}

// Validate checks value ranges. Every failure wraps ErrInvalidConfig.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.Store != StoreMemory && c.Store != StorePostgres:
		return fmt.Errorf("%w: unknown store %q", ErrInvalidConfig, c.Store)
	case c.Store == StorePostgres && c.DatabaseDSN == "":
		return fmt.Errorf("%w: database_dsn is required for the postgres store", ErrInvalidConfig)
	case c.ModelDir == "":
		return fmt.Errorf("%w: model_dir must not be empty", ErrInvalidConfig)
	case c.SocialLookbackHours < 7:
		return fmt.Errorf("%w: social_lookback_hours must be at least 7", ErrInvalidConfig)
	case c.HistoricalLookbackDays <= 0:
		return fmt.Errorf("%w: historical_lookback_days must be positive", ErrInvalidConfig)
	case c.TrainingLookbackDays <= 0:
		return fmt.Errorf("%w: training_lookback_days must be positive", ErrInvalidConfig)
	case c.MinSamplesPerCheckpoint < 2:
		return fmt.Errorf("%w: min_samples_per_checkpoint must be at least 2", ErrInvalidConfig)
	case c.TrainQueueSize <= 0:
		return fmt.Errorf("%w: train_queue_size must be positive", ErrInvalidConfig)
	case c.ExtractionWorkers <= 0:
		return fmt.Errorf("%w: extraction_workers must be positive", ErrInvalidConfig)
	case c.LabelMaxGapShortMin < 0 || c.LabelMaxGapLongMin < 0:
		return fmt.Errorf("%w: label gaps must not be negative", ErrInvalidConfig)
	case c.ForestTrees <= 0 || c.ForestMaxDepth <= 0:
		return fmt.Errorf("%w: forest_trees and forest_max_depth must be positive", ErrInvalidConfig)
	case c.ForestMinSamplesSplit < 2 || c.ForestMinSamplesLeaf < 1:
		return fmt.Errorf("%w: forest split/leaf minimums out of range", ErrInvalidConfig)
	case c.TestFraction <= 0 || c.TestFraction >= 1:
		return fmt.Errorf("%w: test_fraction must be in (0, 1)", ErrInvalidConfig)
	case c.MinTrainingRecords < 0 || c.MinTrainingSpanDays < 0:
		return fmt.Errorf("%w: training data minimums must not be negative", ErrInvalidConfig)
	case c.RecentPredictions < 0:
		return fmt.Errorf("%w: recent_predictions must not be negative", ErrInvalidConfig)
	case c.PredictionCacheTTLSec < 0:
		return fmt.Errorf("%w: prediction_cache_ttl_sec must not be negative", ErrInvalidConfig)
	}
	if _, err := c.HolidayDates(); err != nil {
		return err
	}
	return nil
}

// HolidayDates parses Holidays as UTC midnights.
func (c *Config) HolidayDates() ([]time.Time, error) {
	out := make([]time.Time, 0, len(c.Holidays))
	for _, h := range c.Holidays {
		d, err := time.ParseInLocation(HolidayLayout, h, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("%w: holiday %q: %v", ErrInvalidConfig, h, err)
		}
		out = append(out, d)
	}
	return out, nil
}

// SocialLookback returns the social aggregation window.
func (c *Config) SocialLookback() time.Duration {
	return time.Duration(c.SocialLookbackHours) * time.Hour
}

// HistoricalLookback returns the historical pattern window.
func (c *Config) HistoricalLookback() time.Duration {
	return time.Duration(c.HistoricalLookbackDays) * 24 * time.Hour
}

// TrainingLookback returns how far back a default training run reaches.
func (c *Config) TrainingLookback() time.Duration {
	return time.Duration(c.TrainingLookbackDays) * 24 * time.Hour
}

// MinTrainingSpan returns the observation span cmd/train requires.
func (c *Config) MinTrainingSpan() time.Duration {
	return time.Duration(c.MinTrainingSpanDays) * 24 * time.Hour
}

// LabelMaxGapShort returns the short horizon label gap bound.
func (c *Config) LabelMaxGapShort() time.Duration {
	return time.Duration(c.LabelMaxGapShortMin) * time.Minute
}

// LabelMaxGapLong returns the long horizon label gap bound.
func (c *Config) LabelMaxGapLong() time.Duration {
	return time.Duration(c.LabelMaxGapLongMin) * time.Minute
}

// PredictionCacheTTL returns how long cached predictions live.
func (c *Config) PredictionCacheTTL() time.Duration {
	return time.Duration(c.PredictionCacheTTLSec) * time.Second
}
