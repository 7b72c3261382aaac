package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"refnet/internal/network/store"
	"refnet/internal/platform/config"
	"refnet/internal/platform/postgres"
	"refnet/internal/platform/redis"
	"refnet/internal/ratelimit"
)

const defaultConnectTimeout = 10 * time.Second

// backend is the opened projection store plus whatever it shares with the
// rest of the process.
type backend struct {
	store store.Store
	redis *goredis.Client
	close func()
}

// openBackend connects the configured store. close is never nil.
func openBackend(ctx context.Context, cfg config.Server, log *slog.Logger) (backend, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultConnectTimeout)
		defer cancel()
	}

	switch cfg.Backend {
	case config.BackendRedis:
		rc, err := redis.New(ctx, cfg.Redis)
		if err != nil {
			return backend{close: func() {}}, err
		}
		log.InfoContext(ctx, "using redis projection store")
		return backend{
			store: store.NewRedis(rc.Client),
			redis: rc.Client,
			close: func() { _ = rc.Close() },
		}, nil

	case config.BackendPostgres:
		db, err := postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return backend{close: func() {}}, err
		}
		pg := store.NewPostgres(db)
		if err := pg.Migrate(ctx); err != nil {
			_ = db.Close()
			return backend{close: func() {}}, fmt.Errorf("migrate: %w", err)
		}
		log.InfoContext(ctx, "using postgres projection store")
		return backend{store: pg, close: func() { _ = db.Close() }}, nil

	default:
		log.InfoContext(ctx, "using in-memory projection store")
		return backend{store: store.NewInMemory(), close: func() {}}, nil
	}
}

// limitStore shares join windows through Redis when the projections live
// there. The in-memory store comes with a sweeper to run alongside it.
func (b backend) limitStore(window time.Duration) (ratelimit.Store, func(context.Context) error) {
	if b.redis != nil {
		return ratelimit.NewRedis(b.redis, ""), nil
	}
	mem := ratelimit.NewInMemory()
	return mem, func(ctx context.Context) error { return mem.Run(ctx, window) }
}
