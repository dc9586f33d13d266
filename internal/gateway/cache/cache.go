package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/santridigital/kreator-gateway/internal/shared/redis"
)

// Cache stores supporting-AI responses in redis, keyed by a hash of the
// operation and its inputs. A nil cache or disabled cache is always a miss.
type Cache struct {
	redis   *redis.Client
	enabled bool
	ttl     time.Duration
}

// New creates a cache instance over redis.
func New(redisClient *redis.Client, enabled bool, ttl time.Duration) *Cache {
	return &Cache{redis: redisClient, enabled: enabled, ttl: ttl}
}

// cacheKey generates a deterministic key from the operation and its inputs.
func cacheKey(op string, inputs []string) string {
	keyData := op + ":" + strings.Join(inputs, ":")
	hash := sha256.Sum256([]byte(keyData))
	return "cache:assistant:" + hex.EncodeToString(hash[:])
}

// Get retrieves a cached response for the operation and inputs.
func (c *Cache) Get(ctx context.Context, op string, inputs ...string) (string, bool) {
	if c == nil || !c.enabled || c.redis == nil {
		return "", false
	}
	val, err := c.redis.Get(ctx, cacheKey(op, inputs))
	if err != nil {
		return "", false
	}
	return val, true
}

// Set stores a response. Failures are silent; the cache is best-effort.
func (c *Cache) Set(ctx context.Context, op, value string, inputs ...string) {
	if c == nil || !c.enabled || c.redis == nil {
		return
	}
	_ = c.redis.Set(ctx, cacheKey(op, inputs), value, c.ttl)
}
