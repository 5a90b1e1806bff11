package lookup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/solatis/editcheck/internal/core/logging"
)

// DefaultCacheTTL is how long an answer is remembered.
const DefaultCacheTTL = 24 * time.Hour

const cacheKeyPrefix = "editcheck:lookup:"

// RedisCommands is the subset of the go-redis client the cache uses.
type RedisCommands interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

type cacheEntry struct {
	Exists    bool      `msgpack:"e"`
	CheckedAt time.Time `msgpack:"t"`
}

// RedisCache memoizes answers from next in Redis. Cache failures are logged
// and the query falls through to next.
type RedisCache struct {
	client RedisCommands
	next   Service
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisCache wraps next. A zero ttl uses DefaultCacheTTL; a nil logger
// discards.
func NewRedisCache(client RedisCommands, next Service, ttl time.Duration, logger *slog.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &RedisCache{client: client, next: next, ttl: ttl, logger: logger}
}

// NewRedisClient parses a redis:// URL and verifies the server answers.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// Exists implements Service.
func (c *RedisCache) Exists(ctx context.Context, q Query) (bool, error) {
	if err := q.Validate(); err != nil {
		return false, err
	}
	key := cacheKeyPrefix + q.CacheKey()

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var entry cacheEntry
		if err := msgpack.Unmarshal(raw, &entry); err == nil {
			return entry.Exists, nil
		}
		c.logger.Warn("discarding corrupt lookup cache entry", "key", key)
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn("lookup cache unavailable", "key", key, "error", err)
	}

	exists, err := c.next.Exists(ctx, q)
	if err != nil {
		return false, err
	}

	payload, err := msgpack.Marshal(cacheEntry{Exists: exists, CheckedAt: time.Now().UTC()})
	if err == nil {
		err = c.client.Set(ctx, key, payload, c.ttl).Err()
	}
	if err != nil {
		c.logger.Warn("failed to store lookup cache entry", "key", key, "error", err)
	}
	return exists, nil
}
