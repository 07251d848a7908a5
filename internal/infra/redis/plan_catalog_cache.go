package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"course-subscription/internal/domain"
	"course-subscription/internal/domain/model"
	"course-subscription/internal/domain/ports/adapter"
	"course-subscription/internal/domain/ports/repository"
	"course-subscription/internal/infra/metrics"
)

var _ repository.PlanCatalog = (*PlanCatalogCache)(nil)

const planListKey = "plans:all"

// PlanCatalogCache serves the plan list from Redis and falls back to the gateway.
type PlanCatalogCache struct {
	inner  adapter.PaymentGateway
	cache  RedisClient
	ttl    time.Duration
	logger *zerolog.Logger
}

func NewPlanCatalogCache(inner adapter.PaymentGateway, cache RedisClient, ttl time.Duration, logger *zerolog.Logger) *PlanCatalogCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &PlanCatalogCache{inner: inner, cache: cache, ttl: ttl, logger: logger}
}

func (d *PlanCatalogCache) ListAll(ctx context.Context) ([]*model.SubscriptionPlan, error) {
	val, err := d.cache.Get(ctx, planListKey)
	if err == nil {
		var plans []*model.SubscriptionPlan
		if json.Unmarshal([]byte(val), &plans) == nil {
			metrics.IncCacheRequest("plan_list", "hit")
			return plans, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		d.logger.Warn().Err(err).Msg("plan cache read failed")
	}

	metrics.IncCacheRequest("plan_list", "miss")
	plans, err := d.inner.ListPlans(ctx)
	if err != nil {
		return nil, err
	}
	if len(plans) > 0 {
		b, _ := json.Marshal(plans)
		if err := d.cache.Set(ctx, planListKey, b, d.ttl); err != nil {
			d.logger.Warn().Err(err).Msg("plan cache write failed")
		}
	}
	return plans, nil
}

func (d *PlanCatalogCache) FindByID(ctx context.Context, id string) (*model.SubscriptionPlan, error) {
	plans, err := d.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range plans {
		if p.UID == id {
			return p, nil
		}
	}
	return nil, domain.ErrNotFound
}

// Invalidate drops the cached list so the next read hits the gateway.
func (d *PlanCatalogCache) Invalidate(ctx context.Context) error {
	return d.cache.Del(ctx, planListKey)
}
