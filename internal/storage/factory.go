package storage

import (
	"fmt"
	"time"

	"lily/config"
)

// NewStore creates a MetadataStore for the configured backend. recordTTL
// only applies to Redis, zero meaning records never expire.
func NewStore(cfg *config.StorageConfig, recordTTL time.Duration) (MetadataStore, error) {
	switch cfg.Type {
	case "memory", "":
		return NewMemoryStore(), nil
	case "redis":
		return NewRedisStore(&cfg.Redis, recordTTL)
	case "postgres":
		return NewPostgresStore(cfg.Postgres.DSN)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
