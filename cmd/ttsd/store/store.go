// Package store selects the snapshot storage backend from configuration.
package store

import (
	"fmt"
	"log/slog"

	"github.com/HatiCode/mastercurve/cmd/ttsd/config"
	"github.com/HatiCode/mastercurve/pkg/storage"
)

// New returns the configured backend. Backends that hold resources also
// implement io.Closer.
func New(cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	switch cfg.Storage {
	case "redis":
		logger.Info("using redis storage", "addr", cfg.RedisAddr, "db", cfg.RedisDB, "ttl", cfg.RedisTTL)
		s, err := storage.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisTTL)
		if err != nil {
			return nil, fmt.Errorf("redis storage: %w", err)
		}
		return s, nil
	case "memory", "":
		if cfg.SnapshotTTL > 0 {
			logger.Info("using in-memory storage", "ttl", cfg.SnapshotTTL)
			return &closingMemoryStore{storage.NewMemoryStoreWithTTL(cfg.SnapshotTTL, cfg.SnapshotTTL/2)}, nil
		}
		logger.Info("using in-memory storage")
		return storage.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage)
	}
}

// closingMemoryStore stops the TTL janitor on Close.
type closingMemoryStore struct {
	*storage.MemoryStore
}

func (c *closingMemoryStore) Close() error {
	c.Stop()
	return nil
}
