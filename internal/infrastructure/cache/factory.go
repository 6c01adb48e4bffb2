package cache

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/erp/ingest/internal/domain/ingest"
	"github.com/erp/ingest/internal/infrastructure/config"
)

// Backend names accepted by ingest.cache_backend
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendDatabase = "database"
)

// MappingCacheFactory creates mapping caches based on configuration
type MappingCacheFactory struct {
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
	database              ingest.MappingCacheStore
}

// MappingCacheFactoryOption is a functional option for configuring the factory
type MappingCacheFactoryOption func(*MappingCacheFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) MappingCacheFactoryOption {
	return func(f *MappingCacheFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether Redis failures fall back to memory.
// Default is true.
func WithInMemoryFallback(allow bool) MappingCacheFactoryOption {
	return func(f *MappingCacheFactory) {
		f.allowInMemoryFallback = allow
	}
}

// WithDatabaseStore supplies the store used for the database backend
func WithDatabaseStore(store ingest.MappingCacheStore) MappingCacheFactoryOption {
	return func(f *MappingCacheFactory) {
		f.database = store
	}
}

// NewMappingCacheFactory creates a new factory
func NewMappingCacheFactory(cfg config.RedisConfig, opts ...MappingCacheFactoryOption) *MappingCacheFactory {
	f := &MappingCacheFactory{
		redisConfig:           cfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Create builds the cache for backend
func (f *MappingCacheFactory) Create(backend string) (ingest.MappingCacheStore, error) {
	switch backend {
	case "", BackendMemory:
		f.logger.Info("using in-memory mapping cache")
		return NewInMemoryMappingCache(), nil
	case BackendDatabase:
		if f.database == nil {
			return nil, fmt.Errorf("database mapping cache requested but no store configured")
		}
		f.logger.Info("using database mapping cache")
		return f.database, nil
	case BackendRedis:
		store, err := NewRedisMappingCache(RedisConfig{
			Addr:     f.redisConfig.Addr(),
			Password: f.redisConfig.Password,
			DB:       f.redisConfig.DB,
		})
		if err == nil {
			f.logger.Info("using Redis mapping cache", zap.String("addr", f.redisConfig.Addr()))
			return store, nil
		}
		if !f.allowInMemoryFallback {
			return nil, fmt.Errorf("redis required for mapping cache but unavailable: %w", err)
		}
		f.logger.Warn("Redis unavailable, falling back to in-memory mapping cache. "+
			"Learned mappings will not be shared between instances.",
			zap.Error(err),
		)
		return NewInMemoryMappingCache(), nil
	default:
		return nil, fmt.Errorf("unknown mapping cache backend %q", backend)
	}
}
