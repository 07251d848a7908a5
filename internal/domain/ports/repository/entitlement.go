package repository

import (
	"context"
	"time"

	"course-subscription/internal/domain/model"
)

// EntitlementCache holds the last entitlement fetched per user. Put replaces
// the whole value; there are no partial writes.
type EntitlementCache interface {
	Get(ctx context.Context, userRef string) (*model.Entitlement, error) // domain.ErrNotFound on miss
	Put(ctx context.Context, userRef string, e *model.Entitlement) error
	Invalidate(ctx context.Context, userRef string) error
	// LastMaxFree survives invalidation so fail-closed answers keep the free tier.
	LastMaxFree(ctx context.Context, userRef string) (int, bool)
}

// Locker guards checkout creation per user+plan across instances.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}
