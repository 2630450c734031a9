package stock

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/aegisfm/aegisfm/internal/shared"
)

// ViewCache caches aggregated stock views in Redis. Every posted movement
// bumps a per-company version counter, so stale views age out without
// explicit key tracking. Concurrent rebuilds of the same view collapse into
// one database query via singleflight.
type ViewCache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewViewCache constructs ViewCache. A nil client disables caching.
func NewViewCache(client *redis.Client, ttl time.Duration) *ViewCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ViewCache{client: client, ttl: ttl}
}

// Get returns the cached view for the scope, rebuilding it through load on a
// miss.
func (c *ViewCache) Get(ctx context.Context, companyID int64, scope string, load func(context.Context) ([]View, error)) ([]View, error) {
	if c == nil || c.client == nil {
		return load(ctx)
	}
	version, err := c.client.Get(ctx, shared.StockViewVersionKey(companyID)).Int64()
	if err != nil && err != redis.Nil {
		return load(ctx)
	}
	key := fmt.Sprintf("stock:%d:view:%s:v%d", companyID, scope, version)
	if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var views []View
		if err := json.Unmarshal(raw, &views); err == nil {
			return views, nil
		}
	}
	result, err, _ := c.group.Do(key, func() (any, error) {
		views, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if raw, err := json.Marshal(views); err == nil {
			_ = c.client.Set(ctx, key, raw, c.ttl).Err()
		}
		return views, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]View), nil
}

// Bump invalidates every cached view of the company by advancing its version.
func (c *ViewCache) Bump(ctx context.Context, companyID int64) {
	if c == nil || c.client == nil {
		return
	}
	_ = c.client.Incr(ctx, shared.StockViewVersionKey(companyID)).Err()
}
