package embedding

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nextlevelbuilder/pgclaw/internal/vector"
)

const (
	redisKeyPrefix = "pgclaw:emb:"
	redisTTL       = 24 * time.Hour
)

// RedisCache is an optional embedding hot cache shared across sidecar
// instances. Cache failures are treated as misses; the store of record is
// never Redis.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to the Redis URL and verifies reachability.
func NewRedisCache(ctx context.Context, url string) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return &RedisCache{client: client}, nil
}

// Get returns the cached vector for key, or false on miss or error.
func (c *RedisCache) Get(ctx context.Context, key string) ([]float32, bool) {
	lit, err := c.client.Get(ctx, redisKeyPrefix+key).Result()
	if err != nil {
		return nil, false
	}
	vec, err := vector.Decode(lit)
	if err != nil {
		return nil, false
	}
	return vec, true
}

// Put stores a vector under key with a TTL. Errors are ignored.
func (c *RedisCache) Put(ctx context.Context, key string, vec []float32) {
	c.client.Set(ctx, redisKeyPrefix+key, vector.Encode(vec), redisTTL)
}

// Close releases the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
