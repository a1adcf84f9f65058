package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okian/passwatch/internal/domain/model"
	"github.com/okian/passwatch/pkg/logger"
	"github.com/okian/passwatch/pkg/metrics"
)

const schema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	id          BIGINT PRIMARY KEY,
	name        TEXT NOT NULL,
	type        TEXT NOT NULL,
	latitude    DOUBLE PRECISION NOT NULL,
	longitude   DOUBLE PRECISION NOT NULL,
	active      BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS checkpoint_status (
	id            BIGSERIAL PRIMARY KEY,
	checkpoint_id BIGINT NOT NULL,
	status        TEXT NOT NULL,
	ts            TIMESTAMPTZ NOT NULL,
	confidence    DOUBLE PRECISION NOT NULL,
	source        TEXT NOT NULL,
	verified      BOOLEAN NOT NULL DEFAULT FALSE,
	notes         TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS checkpoint_status_cp_ts ON checkpoint_status (checkpoint_id, ts);

CREATE TABLE IF NOT EXISTS social_signals (
	id              BIGSERIAL PRIMARY KEY,
	source_id       TEXT NOT NULL,
	checkpoint_id   BIGINT,
	source          TEXT NOT NULL,
	posted_at       TIMESTAMPTZ NOT NULL,
	sentiment_score DOUBLE PRECISION,
	inferred_status TEXT,
	confidence      DOUBLE PRECISION,
	likes           BIGINT,
	shares          BIGINT,
	comments        BIGINT
);
CREATE INDEX IF NOT EXISTS social_signals_cp_posted ON social_signals (checkpoint_id, posted_at);
CREATE UNIQUE INDEX IF NOT EXISTS social_signals_source_id ON social_signals (source_id) WHERE source_id <> '';

CREATE TABLE IF NOT EXISTS predictions (
	id               BIGSERIAL PRIMARY KEY,
	checkpoint_id    BIGINT NOT NULL,
	model_name       TEXT NOT NULL,
	model_version    TEXT NOT NULL,
	reference_time   TIMESTAMPTZ NOT NULL,
	prediction_for   TIMESTAMPTZ NOT NULL,
	horizon_hours    INT NOT NULL,
	predicted_status TEXT NOT NULL,
	confidence       DOUBLE PRECISION NOT NULL
);

CREATE TABLE IF NOT EXISTS training_jobs (
	id            TEXT PRIMARY KEY,
	model_name    TEXT NOT NULL,
	version       TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	stage         TEXT NOT NULL DEFAULT '',
	error         TEXT NOT NULL DEFAULT '',
	train_start   TIMESTAMPTZ NOT NULL,
	train_end     TIMESTAMPTZ NOT NULL,
	num_samples   INT NOT NULL DEFAULT 0,
	metrics       JSONB,
	artifact_path TEXT NOT NULL DEFAULT '',
	queued_at     TIMESTAMPTZ NOT NULL,
	started_at    TIMESTAMPTZ,
	completed_at  TIMESTAMPTZ
);
`

// PostgresOption configures a PostgresStore.
type PostgresOption func(*PostgresStore)

// WithPostgresLogger sets a custom logger for the Postgres store.
func WithPostgresLogger(l logger.Logger) PostgresOption {
	return func(s *PostgresStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// PostgresStore is a Store backed by a pgx connection pool. It also records
// predictions and training jobs.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger logger.Logger
}

// NewPostgresStore connects to dsn and verifies the connection.
func NewPostgresStore(ctx context.Context, dsn string, opts ...PostgresOption) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	s := &PostgresStore{pool: pool}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Named("postgres")
	}
	return s, nil
}

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	s.logger.Info(ctx, "schema ready")
	return nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// UpsertCheckpoint creates or replaces checkpoint metadata.
func (s *PostgresStore) UpsertCheckpoint(ctx context.Context, cp model.CheckpointMeta) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO checkpoints (id, name, type, latitude, longitude, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, type = EXCLUDED.type,
			latitude = EXCLUDED.latitude, longitude = EXCLUDED.longitude,
			active = EXCLUDED.active
	`, cp.ID, cp.Name, cp.Type.String(), cp.Latitude, cp.Longitude, cp.Active)
	if err != nil {
		return fmt.Errorf("upsert checkpoint %d: %w", cp.ID, err)
	}
	return nil
}

// AppendObservation inserts a status observation.
func (s *PostgresStore) AppendObservation(ctx context.Context, obs model.StatusObservation) error {
	if !obs.Status.Valid() {
		return fmt.Errorf("%w: status %d", ErrInvalidInput, obs.Status)
	}
	if obs.Timestamp.IsZero() {
		return fmt.Errorf("%w: missing timestamp", ErrInvalidInput)
	}
	start := time.Now()
	defer func() { metrics.RecordRepositoryUpdateLatency(msSince(start)) }()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO checkpoint_status (checkpoint_id, status, ts, confidence, source, verified, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, obs.CheckpointID, obs.Status.String(), obs.Timestamp.UTC(), obs.Confidence, obs.Source.String(), obs.Verified, obs.Notes)
	if err != nil {
		return fmt.Errorf("insert observation: %w", err)
	}
	return nil
}

// AppendSignal inserts a social signal. Repeated source ids are ignored.
func (s *PostgresStore) AppendSignal(ctx context.Context, sig model.SocialSignal) error {
	if sig.PostedAt.IsZero() {
		return fmt.Errorf("%w: missing posted_at", ErrInvalidInput)
	}
	start := time.Now()
	defer func() { metrics.RecordRepositoryUpdateLatency(msSince(start)) }()

	var inferred *string
	if sig.InferredStatus != nil {
		v := sig.InferredStatus.String()
		inferred = &v
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO social_signals (source_id, checkpoint_id, source, posted_at, sentiment_score,
			inferred_status, confidence, likes, shares, comments)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (source_id) WHERE source_id <> '' DO NOTHING
	`, sig.SourceID, sig.CheckpointID, sig.Source.String(), sig.PostedAt.UTC(), sig.SentimentScore,
		inferred, sig.Confidence, sig.Likes, sig.Shares, sig.Comments)
	if err != nil {
		return fmt.Errorf("insert signal: %w", err)
	}
	return nil
}

// Observations returns observations with from <= ts < to, ordered by ts.
func (s *PostgresStore) Observations(ctx context.Context, checkpointID int64, from, to time.Time) ([]model.StatusObservation, error) {
	if err := checkRange(from, to); err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() { metrics.RecordRepositoryQueryLatency(msSince(start)) }()

	rows, err := s.pool.Query(ctx, `
		SELECT status, ts, confidence, source, verified, notes
		FROM checkpoint_status
		WHERE checkpoint_id = $1 AND ts >= $2 AND ts < $3
		ORDER BY ts, id
	`, checkpointID, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("query observations: %w", err)
	}
	defer rows.Close()

	var out []model.StatusObservation
	for rows.Next() {
		var (
			status, source string
			obs            = model.StatusObservation{CheckpointID: checkpointID}
		)
		if err := rows.Scan(&status, &obs.Timestamp, &obs.Confidence, &source, &obs.Verified, &obs.Notes); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		if obs.Status, err = model.ParseStatus(status); err != nil {
			return nil, err
		}
		if obs.Source, err = model.ParseSource(source); err != nil {
			return nil, err
		}
		out = append(out, obs)
	}
	return out, rows.Err()
}

// Signals returns matched signals with from <= posted_at < to, ordered by posted_at.
func (s *PostgresStore) Signals(ctx context.Context, checkpointID int64, from, to time.Time) ([]model.SocialSignal, error) {
	if err := checkRange(from, to); err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() { metrics.RecordRepositoryQueryLatency(msSince(start)) }()

	rows, err := s.pool.Query(ctx, `
		SELECT source_id, source, posted_at, sentiment_score, inferred_status, confidence, likes, shares, comments
		FROM social_signals
		WHERE checkpoint_id = $1 AND posted_at >= $2 AND posted_at < $3
		ORDER BY posted_at, id
	`, checkpointID, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("query signals: %w", err)
	}
	defer rows.Close()

	var out []model.SocialSignal
	for rows.Next() {
		var (
			source   string
			inferred *string
			id       = checkpointID
			sig      = model.SocialSignal{CheckpointID: &id}
		)
		if err := rows.Scan(&sig.SourceID, &source, &sig.PostedAt, &sig.SentimentScore, &inferred,
			&sig.Confidence, &sig.Likes, &sig.Shares, &sig.Comments); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		if sig.Source, err = model.ParseSource(source); err != nil {
			return nil, err
		}
		if inferred != nil {
			st, err := model.ParseStatus(*inferred)
			if err != nil {
				return nil, err
			}
			sig.InferredStatus = &st
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}

// Checkpoint returns metadata by id.
func (s *PostgresStore) Checkpoint(ctx context.Context, id int64) (model.CheckpointMeta, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, type, latitude, longitude, active FROM checkpoints WHERE id = $1
	`, id)
	cp, err := scanCheckpoint(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.CheckpointMeta{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return cp, err
}

// Checkpoints returns active checkpoints ordered by id.
func (s *PostgresStore) Checkpoints(ctx context.Context) ([]model.CheckpointMeta, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, type, latitude, longitude, active FROM checkpoints WHERE active ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("query checkpoints: %w", err)
	}
	defer rows.Close()

	var out []model.CheckpointMeta
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

// Summary reports record counts and the observation span.
func (s *PostgresStore) Summary(ctx context.Context) (DataSummary, error) {
	var (
		sum            DataSummary
		oldest, newest *time.Time
	)
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM checkpoints),
			(SELECT COUNT(*) FROM checkpoint_status),
			(SELECT COUNT(*) FROM social_signals),
			(SELECT MIN(ts) FROM checkpoint_status),
			(SELECT MAX(ts) FROM checkpoint_status)
	`).Scan(&sum.Checkpoints, &sum.Observations, &sum.Signals, &oldest, &newest)
	if err != nil {
		return DataSummary{}, fmt.Errorf("summary: %w", err)
	}
	if oldest != nil {
		sum.Oldest = oldest.UTC()
	}
	if newest != nil {
		sum.Newest = newest.UTC()
	}
	metrics.UpdateRepositoryRecordsTotal(sum.Observations + sum.Signals)
	return sum, nil
}

// RecordPrediction stores one row per horizon.
func (s *PostgresStore) RecordPrediction(ctx context.Context, res model.PredictionResult) error {
	batch := &pgx.Batch{}
	for _, h := range []model.Horizon{model.HorizonShort, model.HorizonLong} {
		p := res.Horizon(h)
		batch.Queue(`
			INSERT INTO predictions (checkpoint_id, model_name, model_version, reference_time,
				prediction_for, horizon_hours, predicted_status, confidence)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, res.CheckpointID, h.ModelName(), res.ModelVersion, res.ReferenceTime.UTC(),
			p.PredictionFor.UTC(), p.HorizonHours, p.Status.String(), p.Confidence)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert predictions: %w", err)
	}
	return nil
}

// SaveTrainingJob inserts or updates a training job row.
func (s *PostgresStore) SaveTrainingJob(ctx context.Context, job model.TrainingJob) error {
	var metricsJSON []byte
	if len(job.Metrics) > 0 {
		b, err := json.Marshal(job.Metrics)
		if err != nil {
			return fmt.Errorf("encode job metrics: %w", err)
		}
		metricsJSON = b
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO training_jobs (id, model_name, version, status, stage, error, train_start, train_end,
			num_samples, metrics, artifact_path, queued_at, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			version = EXCLUDED.version, status = EXCLUDED.status, stage = EXCLUDED.stage,
			error = EXCLUDED.error, num_samples = EXCLUDED.num_samples, metrics = EXCLUDED.metrics,
			artifact_path = EXCLUDED.artifact_path, started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at
	`, job.ID, job.ModelName, job.Version, string(job.Status), job.Stage, job.Error, job.Start.UTC(), job.End.UTC(),
		job.NumSamples, metricsJSON, job.ArtifactPath, job.QueuedAt.UTC(), job.StartedAt, job.CompletedAt)
	if err != nil {
		return fmt.Errorf("save training job %s: %w", job.ID, err)
	}
	return nil
}

func scanCheckpoint(row pgx.Row) (model.CheckpointMeta, error) {
	var (
		cp  model.CheckpointMeta
		typ string
	)
	if err := row.Scan(&cp.ID, &cp.Name, &typ, &cp.Latitude, &cp.Longitude, &cp.Active); err != nil {
		return model.CheckpointMeta{}, err
	}
	t, err := model.ParseCheckpointType(typ)
	if err != nil {
		return model.CheckpointMeta{}, err
	}
	cp.Type = t
	return cp, nil
}
