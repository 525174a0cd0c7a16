// internal/matcher/cache.go
package matcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"intent-gateway/internal/common/database"
	"intent-gateway/internal/common/logger"

	"github.com/redis/go-redis/v9"
)

// VectorCache persists template embeddings across restarts so an unchanged
// library never re-embeds. Keys include a content hash, so editing a template
// naturally invalidates its cached vector.
type VectorCache struct {
	redis  *database.RedisClient
	ttl    time.Duration
	logger logger.Logger
}

// NewVectorCache creates a redis-backed vector cache. A zero ttl means no
// expiry.
func NewVectorCache(client *database.RedisClient, ttl time.Duration, log logger.Logger) *VectorCache {
	return &VectorCache{
		redis:  client,
		ttl:    ttl,
		logger: log.WithFields(map[string]interface{}{"component": "vector-cache"}),
	}
}

// Key derives the cache key for a template id and its embedding text.
func (c *VectorCache) Key(templateID, embeddingText string) string {
	sum := sha256.Sum256([]byte(embeddingText))
	return fmt.Sprintf("intent:vec:%s:%s", templateID, hex.EncodeToString(sum[:8]))
}

// Get returns the cached vector, or nil on miss. Cache errors degrade to a
// miss; the caller re-embeds.
func (c *VectorCache) Get(ctx context.Context, key string) []float64 {
	raw, err := c.redis.Get(ctx, key)
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("Vector cache read failed", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
		}
		return nil
	}

	var vec []float64
	if err := json.Unmarshal([]byte(raw), &vec); err != nil {
		c.logger.Warn("Vector cache entry corrupt, discarding", map[string]interface{}{
			"key": key,
		})
		return nil
	}
	return vec
}

// Put stores a vector. Failures are logged and ignored.
func (c *VectorCache) Put(ctx context.Context, key string, vec []float64) {
	raw, err := json.Marshal(vec)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, string(raw), c.ttl); err != nil {
		c.logger.Warn("Vector cache write failed", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
	}
}
