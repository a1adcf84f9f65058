package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/passwatch/internal/domain/model"
)

// ErrNoCachedPrediction is returned when no prediction is cached for a checkpoint.
var ErrNoCachedPrediction = errors.New("no cached prediction")

const keyPrefix = "passwatch:prediction:"

// RedisSink publishes each prediction on a channel and caches the latest one
// per checkpoint.
type RedisSink struct {
	client  *redis.Client
	channel string
	ttl     time.Duration
}

// NewRedisSink connects to url and verifies the connection.
func NewRedisSink(ctx context.Context, url, channel string, ttl time.Duration) (*RedisSink, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisSink{client: client, channel: channel, ttl: ttl}, nil
}

// Key returns the cache key for a checkpoint.
func Key(checkpointID int64) string {
	return keyPrefix + strconv.FormatInt(checkpointID, 10)
}

// RecordPrediction publishes and caches res.
func (r *RedisSink) RecordPrediction(ctx context.Context, res model.PredictionResult) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode prediction: %w", err)
	}
	pipe := r.client.TxPipeline()
	pipe.Publish(ctx, r.channel, data)
	pipe.Set(ctx, Key(res.CheckpointID), data, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Cached returns the last prediction stored for a checkpoint.
func (r *RedisSink) Cached(ctx context.Context, checkpointID int64) (model.PredictionResult, error) {
	data, err := r.client.Get(ctx, Key(checkpointID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.PredictionResult{}, ErrNoCachedPrediction
	}
	if err != nil {
		return model.PredictionResult{}, fmt.Errorf("redis get: %w", err)
	}
	var res model.PredictionResult
	if err := json.Unmarshal(data, &res); err != nil {
		return model.PredictionResult{}, fmt.Errorf("decode cached prediction: %w", err)
	}
	return res, nil
}

// Subscribe returns a subscription to the prediction channel.
func (r *RedisSink) Subscribe(ctx context.Context) *redis.PubSub {
	return r.client.Subscribe(ctx, r.channel)
}

// Close releases the client.
func (r *RedisSink) Close() error { return r.client.Close() }
