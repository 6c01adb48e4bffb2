package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/erp/ingest/internal/domain/ingest"
)

const defaultRedisKeyPrefix = "ingest:mapping:"

// upsertIfHigher writes the hash only when the stored confidence is lower.
// KEYS[1] hash key; ARGV confidence, strategy, updated_at (unix seconds).
var upsertIfHigher = redis.NewScript(`
local current = redis.call("HGET", KEYS[1], "confidence")
if current and tonumber(current) >= tonumber(ARGV[1]) then
  return 0
end
redis.call("HSET", KEYS[1], "confidence", ARGV[1], "strategy", ARGV[2], "updated_at", ARGV[3])
return 1
`)

// RedisMappingCache stores accepted mappings in Redis hashes so several
// instances share what was learned.
type RedisMappingCache struct {
	client    redis.UniversalClient
	keyPrefix string
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisMappingCache connects to Redis and verifies the connection
func NewRedisMappingCache(cfg RedisConfig) (*RedisMappingCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisMappingCacheWithClient(client, ""), nil
}

// NewRedisMappingCacheWithClient wraps an existing client
func NewRedisMappingCacheWithClient(client redis.UniversalClient, keyPrefix string) *RedisMappingCache {
	if keyPrefix == "" {
		keyPrefix = defaultRedisKeyPrefix
	}
	return &RedisMappingCache{client: client, keyPrefix: keyPrefix}
}

func (c *RedisMappingCache) key(source, target string) string {
	return c.keyPrefix + normalizeSource(source) + "|" + target
}

// Lookup reads every pair in one pipelined round trip
func (c *RedisMappingCache) Lookup(ctx context.Context, sourceFields, targetFields []string) (map[ingest.MappingPair]float64, error) {
	out := make(map[ingest.MappingPair]float64)
	if len(sourceFields) == 0 || len(targetFields) == 0 {
		return out, nil
	}

	n := len(sourceFields) * len(targetFields)
	pairs := make([]ingest.MappingPair, 0, n)
	cmds := make([]*redis.StringCmd, 0, n)
	pipe := c.client.Pipeline()
	for _, source := range sourceFields {
		for _, target := range targetFields {
			pairs = append(pairs, ingest.MappingPair{SourceField: source, TargetField: target})
			cmds = append(cmds, pipe.HGet(ctx, c.key(source, target), "confidence"))
		}
	}
	// Misses surface as redis.Nil on their own command
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis lookup mappings: %w", err)
	}

	for i, cmd := range cmds {
		v, err := cmd.Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("redis lookup mappings: %w", err)
		}
		confidence, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("redis mapping confidence %q: %w", v, err)
		}
		out[pairs[i]] = confidence
	}
	return out, nil
}

// Upsert stores m unless Redis already holds an equal or higher confidence
func (c *RedisMappingCache) Upsert(ctx context.Context, m ingest.CachedMapping) error {
	if err := checkMapping(m); err != nil {
		return err
	}
	updated := m.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	err := upsertIfHigher.Run(ctx, c.client,
		[]string{c.key(m.SourceField, m.TargetField)},
		strconv.FormatFloat(m.Confidence, 'f', -1, 64), m.Strategy, updated.Unix(),
	).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis upsert mapping: %w", err)
	}
	return nil
}

// Ping checks the connection
func (c *RedisMappingCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis client
func (c *RedisMappingCache) Close() error {
	return c.client.Close()
}

var _ ingest.MappingCacheStore = (*RedisMappingCache)(nil)
