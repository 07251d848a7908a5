package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"course-subscription/internal/domain"
	"course-subscription/internal/domain/model"
	"course-subscription/internal/domain/ports/repository"
	"course-subscription/internal/infra/metrics"
)

var _ repository.EntitlementCache = (*EntitlementCache)(nil)

// EntitlementCache keeps one JSON value per user plus a TTL-less copy of the
// last known free-tier size.
type EntitlementCache struct {
	client RedisClient
	ttl    time.Duration
}

func NewEntitlementCache(client RedisClient, ttl time.Duration) *EntitlementCache {
	return &EntitlementCache{client: client, ttl: ttl}
}

func entitlementKey(userRef string) string { return "entitlement:" + userRef }
func lastFreeKey(userRef string) string    { return "lastfree:" + userRef }

func (c *EntitlementCache) Get(ctx context.Context, userRef string) (*model.Entitlement, error) {
	data, err := c.client.Get(ctx, entitlementKey(userRef))
	if errors.Is(err, redis.Nil) {
		metrics.IncCacheRequest("entitlement", "miss")
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var e model.Entitlement
	if err := json.Unmarshal([]byte(data), &e); err != nil {
		// corrupt entry behaves as a miss
		_ = c.client.Del(ctx, entitlementKey(userRef))
		metrics.IncCacheRequest("entitlement", "miss")
		return nil, domain.ErrNotFound
	}
	metrics.IncCacheRequest("entitlement", "hit")
	return &e, nil
}

func (c *EntitlementCache) Put(ctx context.Context, userRef string, e *model.Entitlement) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, entitlementKey(userRef), data, c.ttl); err != nil {
		return err
	}
	return c.client.Set(ctx, lastFreeKey(userRef), e.MaxFreeModules, 0)
}

func (c *EntitlementCache) Invalidate(ctx context.Context, userRef string) error {
	return c.client.Del(ctx, entitlementKey(userRef))
}

func (c *EntitlementCache) LastMaxFree(ctx context.Context, userRef string) (int, bool) {
	v, err := c.client.Get(ctx, lastFreeKey(userRef))
	if err != nil {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
