package repository

import (
	"context"

	"course-subscription/internal/domain/model"
)

// PlanCatalog is the read side of the plan catalog.
type PlanCatalog interface {
	ListAll(ctx context.Context) ([]*model.SubscriptionPlan, error)
	FindByID(ctx context.Context, id string) (*model.SubscriptionPlan, error)
}
