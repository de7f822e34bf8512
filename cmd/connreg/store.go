package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-redis/redis/v8"

	"github.com/soochol/connreg/internal/cachemanager"
	"github.com/soochol/connreg/internal/config"
	"github.com/soochol/connreg/internal/connreg"
	"github.com/soochol/connreg/internal/db"
	"github.com/soochol/connreg/internal/repository"
	"github.com/soochol/connreg/internal/services"
)

// openRepository builds the configured backend, optionally wrapped in the
// record cache. The returned close func releases the backend.
func openRepository(ctx context.Context, cfg *config.Config) (repository.ConnectionRepository, func() error, error) {
	var (
		repo    repository.ConnectionRepository
		closeFn = func() error { return nil }
	)

	switch cfg.Database.Driver {
	case config.DriverMemory:
		slog.Info("using in-memory connection store")
		repo = repository.NewMemoryConnectionRepository()

	case config.DriverRedis:
		var client *redis.Client
		err := services.Retry(ctx, services.DefaultRetryPolicy, "dial redis", func(ctx context.Context) error {
			var err error
			client, err = repository.DialRedis(ctx, cfg.Database.URL)
			return err
		})
		if err != nil {
			return nil, nil, err
		}
		slog.Info("using redis connection store", "prefix", cfg.Database.RedisPrefix)
		repo = repository.NewRedisConnectionRepository(client, cfg.Database.RedisPrefix)
		closeFn = client.Close

	default:
		dialect, err := db.ParseDialect(cfg.Database.Driver)
		if err != nil {
			return nil, nil, err
		}
		var database *db.DB
		err = services.Retry(ctx, services.DefaultRetryPolicy, "open database", func(ctx context.Context) error {
			var err error
			database, err = db.New(ctx, dialect, cfg.Database.URL)
			return err
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open database: %w", err)
		}
		if err := database.Migrate(ctx); err != nil {
			database.Close()
			return nil, nil, fmt.Errorf("migrate database: %w", err)
		}
		slog.Info("using sql connection store", "dialect", database.Dialect())
		repo = repository.NewSQLConnectionRepository(database)
		closeFn = database.Close
	}

	if cfg.Cache.Enabled {
		cache := cachemanager.NewInMemoryCacheManager[*connreg.Connection]("connections", cfg.Cache.TTL, cfg.Cache.CleanupInterval)
		repo = repository.NewCachedConnectionRepository(repo, cache, cfg.Cache.TTL)
	}
	return repo, closeFn, nil
}

// withService opens the store, runs fn against a service over it and closes
// the store afterwards.
func (a *app) withService(ctx context.Context, fn func(*services.ConnectionService) error) error {
	repo, closeFn, err := openRepository(ctx, a.cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	svc := services.NewConnectionService(repo, services.ConnectionServiceOptions{
		StrictUpdate: a.cfg.Registry.StrictUpdate,
	})
	return fn(svc)
}
