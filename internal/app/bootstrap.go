package service

import (
	"context"
	"fmt"

	"github.com/okian/passwatch/internal/adapters/publish"
	"github.com/okian/passwatch/internal/adapters/repository"
	"github.com/okian/passwatch/internal/config"
	"github.com/okian/passwatch/pkg/logger"
)

// FromConfig opens the configured backends and returns an unstarted Service
// over them. With the postgres store, predictions and training jobs are also
// recorded there; a non-empty redis_url adds the Redis sink. With
// seed_checkpoints set, an empty store receives the default checkpoint set.
// On error every backend opened so far is closed again.
func FromConfig(ctx context.Context, cfg *config.Config, l logger.Logger, opts ...Option) (*Service, error) {
	if l == nil {
		l = logger.Named("service")
	}
	store, storeOpts, err := openStore(ctx, cfg, l)
	if err != nil {
		return nil, err
	}
	return assemble(ctx, cfg, l, store, append(storeOpts, opts...)...)
}

func openStore(ctx context.Context, cfg *config.Config, l logger.Logger) (repository.Store, []Option, error) {
	if cfg.Store != config.StorePostgres {
		return repository.NewMemoryStore(repository.WithLogger(l.Named("memstore"))), nil, nil
	}
	pg, err := repository.NewPostgresStore(ctx, cfg.DatabaseDSN, repository.WithPostgresLogger(l.Named("postgres")))
	if err != nil {
		return nil, nil, err
	}
	if err := pg.Migrate(ctx); err != nil {
		_ = pg.Close()
		return nil, nil, err
	}
	return pg, []Option{WithSink("postgres", pg), WithJobRecorder(pg)}, nil
}

// assemble seeds store, opens the optional sinks and builds the Service.
// store is closed if any step fails.
func assemble(ctx context.Context, cfg *config.Config, l logger.Logger, store repository.Store, opts ...Option) (*Service, error) {
	if cfg.SeedCheckpoints {
		n, err := repository.Seed(ctx, store, repository.SeedCheckpoints()...)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		if n > 0 {
			l.Info(ctx, "seeded default checkpoints", logger.Int("checkpoints", n))
		}
	}

	base := []Option{WithConfig(cfg), WithLogger(l), WithStore(store)}
	var closers []func() error
	if cfg.RedisURL != "" {
		rs, err := publish.NewRedisSink(ctx, cfg.RedisURL, cfg.RedisChannel, cfg.PredictionCacheTTL())
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("redis sink: %w", err)
		}
		base = append(base, WithSink("redis", rs))
		closers = append(closers, rs.Close)
	}

	svc := New(append(base, opts...)...)
	svc.closers = closers
	return svc, nil
}
