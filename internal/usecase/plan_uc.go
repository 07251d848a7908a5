package usecase

import (
	"context"
	"strings"

	"course-subscription/internal/domain"
	"course-subscription/internal/domain/model"
	"course-subscription/internal/domain/ports/repository"
)

// PlanUseCase reads the plan catalog.
type PlanUseCase struct {
	plans repository.PlanCatalog
}

func NewPlanUseCase(plans repository.PlanCatalog) *PlanUseCase {
	return &PlanUseCase{plans: plans}
}

func (uc *PlanUseCase) List(ctx context.Context) ([]*model.SubscriptionPlan, error) {
	return uc.plans.ListAll(ctx)
}

func (uc *PlanUseCase) Get(ctx context.Context, id string) (*model.SubscriptionPlan, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.NewValidationError("plan_id", "plan is required")
	}
	return uc.plans.FindByID(ctx, id)
}
