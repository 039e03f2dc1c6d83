// Package cache provides the Redis-backed read cache.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"stockledger/internal/domain/inventory"
	"stockledger/pkg/logger"
)

const recordKeyPrefix = "stockledger:record:"

// RecordCache caches committed inventory records in Redis. Every failure
// degrades to a cache miss so Redis outages never break reads.
type RecordCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRecordCache creates the cache. A zero ttl defaults to 30 seconds;
// the engine invalidates on every write, so the TTL only bounds staleness
// from writes by other service instances.
func NewRecordCache(client *redis.Client, ttl time.Duration) *RecordCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RecordCache{client: client, ttl: ttl}
}

// Get returns a cached record, or (nil, false) on miss or error.
func (c *RecordCache) Get(ctx context.Context, productID string) (*inventory.Record, bool) {
	data, err := c.client.Get(ctx, recordKeyPrefix+productID).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Debug(ctx, "cache get failed", "product_id", productID, "error", err)
		}
		return nil, false
	}

	var rec inventory.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		logger.Warn(ctx, "cache entry corrupt, dropping", "product_id", productID, "error", err)
		c.Invalidate(ctx, productID)
		return nil, false
	}
	return &rec, true
}

// Set stores a record snapshot.
func (c *RecordCache) Set(ctx context.Context, rec *inventory.Record) {
	data, err := json.Marshal(rec)
	if err != nil {
		logger.Warn(ctx, "cache marshal failed", "product_id", rec.ProductID, "error", err)
		return
	}
	if err := c.client.Set(ctx, recordKeyPrefix+rec.ProductID, data, c.ttl).Err(); err != nil {
		logger.Debug(ctx, "cache set failed", "product_id", rec.ProductID, "error", err)
	}
}

// Invalidate drops the cached record after a write.
func (c *RecordCache) Invalidate(ctx context.Context, productID string) {
	if err := c.client.Del(ctx, recordKeyPrefix+productID).Err(); err != nil {
		logger.Debug(ctx, "cache invalidate failed", "product_id", productID, "error", err)
	}
}

var _ inventory.RecordCache = (*RecordCache)(nil)
