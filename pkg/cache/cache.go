// Package cache provides an optional redis-backed cache of enrichment
// results keyed by a digest of a caller-supplied identity string. The
// batch manager passes each record's serialized form as its identity,
// so only byte-identical records share an entry. A record whose output
// is cached does not need to be resubmitted; the batch manager merges
// cached and fresh results back into input order.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

// Prometheus metrics for cache operations.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "enrich_cache_hits_total",
		Help: "Total result cache hits",
	})

	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "enrich_cache_misses_total",
		Help: "Total result cache misses",
	})

	cacheErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enrich_cache_errors_total",
		Help: "Total result cache errors by operation",
	}, []string{"operation"})
)

// ErrCacheMiss indicates the requested record has no cached result.
var ErrCacheMiss = errors.New("cache miss")

// DefaultTTL bounds how long a cached result is considered fresh.
const DefaultTTL = 24 * time.Hour

// keyPrefix namespaces result keys in a shared redis.
const keyPrefix = "enrich:result:"

// Key derives the deterministic cache key for a record identity.
func Key(identity string) string {
	digest := sha256.Sum256([]byte(identity))
	return keyPrefix + hex.EncodeToString(digest[:])
}

// ResultCache stores enrichment outputs by record identity with a TTL.
type ResultCache struct {
	redis *redis.Client
	ttl   time.Duration
}

// New creates a result cache over the given redis client. A non-positive
// ttl falls back to DefaultTTL.
func New(redisClient *redis.Client, ttl time.Duration) *ResultCache {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ResultCache{redis: redisClient, ttl: ttl}
}

// Get retrieves the cached result for one record. Returns ErrCacheMiss
// when absent.
func (c *ResultCache) Get(ctx context.Context, identity string) (json.RawMessage, error) {
	data, err := c.redis.Get(ctx, Key(identity)).Bytes()
	if err != nil {
		if err == redis.Nil {
			cacheMissesTotal.Inc()
			return nil, ErrCacheMiss
		}
		cacheErrorsTotal.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}
	cacheHitsTotal.Inc()
	return json.RawMessage(data), nil
}

// GetMulti retrieves cached results for many records in one round trip.
// The returned map contains only hits.
func (c *ResultCache) GetMulti(ctx context.Context, identities []string) (map[string]json.RawMessage, error) {
	if len(identities) == 0 {
		return map[string]json.RawMessage{}, nil
	}

	keys := make([]string, len(identities))
	for i, identity := range identities {
		keys[i] = Key(identity)
	}

	values, err := c.redis.MGet(ctx, keys...).Result()
	if err != nil {
		cacheErrorsTotal.WithLabelValues("mget").Inc()
		return nil, fmt.Errorf("redis mget: %w", err)
	}

	hits := make(map[string]json.RawMessage)
	for i, value := range values {
		if value == nil {
			cacheMissesTotal.Inc()
			continue
		}
		raw, ok := value.(string)
		if !ok {
			cacheMissesTotal.Inc()
			continue
		}
		cacheHitsTotal.Inc()
		hits[identities[i]] = json.RawMessage(raw)
	}
	return hits, nil
}

// Set stores one result under its record identity with the configured TTL.
func (c *ResultCache) Set(ctx context.Context, identity string, output json.RawMessage) error {
	if err := c.redis.Set(ctx, Key(identity), []byte(output), c.ttl).Err(); err != nil {
		cacheErrorsTotal.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// SetMulti stores many results in one pipeline.
func (c *ResultCache) SetMulti(ctx context.Context, outputs map[string]json.RawMessage) error {
	if len(outputs) == 0 {
		return nil
	}

	pipe := c.redis.Pipeline()
	for identity, output := range outputs {
		pipe.Set(ctx, Key(identity), []byte(output), c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		cacheErrorsTotal.WithLabelValues("set").Inc()
		return fmt.Errorf("redis pipeline set: %w", err)
	}
	return nil
}

// Delete removes the cached result for one record.
func (c *ResultCache) Delete(ctx context.Context, identity string) error {
	if err := c.redis.Del(ctx, Key(identity)).Err(); err != nil {
		cacheErrorsTotal.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
