package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// SummaryCache keeps per-product availability aggregates in Redis.
// Concurrent misses for the same product are collapsed with singleflight
// so the database sees one query per key. A nil *SummaryCache is valid
// and passes every call straight through.
type SummaryCache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewSummaryCache builds SummaryCache.
func NewSummaryCache(client *redis.Client, ttl time.Duration) *SummaryCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &SummaryCache{client: client, ttl: ttl}
}

func summaryKey(productID int64) string {
	return fmt.Sprintf("roastledger:product:%d:summary", productID)
}

// Get returns the cached summary or loads and stores it on a miss.
func (c *SummaryCache) Get(ctx context.Context, productID int64, load func(ctx context.Context) (ProductSummary, error)) (ProductSummary, error) {
	if c == nil || c.client == nil {
		return load(ctx)
	}

	key := summaryKey(productID)
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var sum ProductSummary
		if jsonErr := json.Unmarshal(raw, &sum); jsonErr == nil {
			return sum, nil
		}
		// Corrupt entry, fall through to reload.
	} else if !errors.Is(err, redis.Nil) {
		return load(ctx)
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		sum, err := load(ctx)
		if err != nil {
			return ProductSummary{}, err
		}
		if encoded, err := json.Marshal(sum); err == nil {
			c.client.Set(ctx, key, encoded, c.ttl)
		}
		return sum, nil
	})
	if err != nil {
		return ProductSummary{}, err
	}
	return v.(ProductSummary), nil
}

// Invalidate drops the cached entry after a stock mutation.
func (c *SummaryCache) Invalidate(ctx context.Context, productID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, summaryKey(productID)).Err()
}
