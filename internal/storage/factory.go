package storage

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/makkenzo/keybind/internal/config"
	"github.com/makkenzo/keybind/internal/domain/license"
	"github.com/makkenzo/keybind/internal/storage/filestore"
	"github.com/makkenzo/keybind/internal/storage/memstorage"
	"github.com/makkenzo/keybind/internal/storage/postgres"
	"github.com/makkenzo/keybind/internal/storage/redis"
	"github.com/makkenzo/keybind/internal/storage/rest"
)

// Backend is an opened store together with the resources it owns.
type Backend struct {
	Name  string
	Store license.Store
	// Redis is set when the redis backend is in use so other components can share the client.
	Redis   *goredis.Client
	closers []func()
}

func (b *Backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// Open connects the configured backend and wraps it in a GuardedStore.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Backend, error) {
	b := &Backend{Name: cfg.Store.Backend}
	var inner license.Store

	switch cfg.Store.Backend {
	case config.StoreMemory:
		inner = memstorage.NewLicenseStore()

	case config.StoreFile:
		fs, err := filestore.NewLicenseStore(cfg.Store.FilePath, logger)
		if err != nil {
			return nil, err
		}
		inner = fs

	case config.StorePostgres:
		pool, err := postgres.NewPgxPool(ctx, &cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, pool.Close)
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			b.Close()
			return nil, err
		}
		inner = postgres.NewLicenseRepository(pool, logger)

	case config.StoreRedis:
		client, err := redis.NewRedisClient(ctx, &cfg.Redis, logger)
		if err != nil {
			return nil, err
		}
		b.Redis = client
		b.closers = append(b.closers, func() { _ = client.Close() })
		inner = redis.NewLicenseStore(client, cfg.Redis.KeyPrefix, logger)

	case config.StoreREST:
		inner = rest.NewLicenseStore(&cfg.REST, cfg.Store.Timeout, logger)

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	b.Store = NewGuardedStore(inner, cfg.Store.Timeout, logger)
	logger.Info("License store ready", zap.String("backend", b.Name))
	return b, nil
}
