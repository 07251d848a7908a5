package model

import (
	"course-subscription/internal/domain"
)

// SubscriptionPlan is immutable catalog data. DurationDays == 0 means lifetime.
type SubscriptionPlan struct {
	UID          string   `json:"uid"`
	PlanName     string   `json:"plan_name"`
	Price        int64    `json:"price"`
	Currency     string   `json:"currency"`
	DurationDays int      `json:"duration_days"`
	Features     []string `json:"features"`
}

func (p *SubscriptionPlan) IsZero() bool { return p == nil || p.UID == "" }

func (p *SubscriptionPlan) Lifetime() bool { return p != nil && p.DurationDays == 0 }

// NewSubscriptionPlan validates and constructs a plan.
func NewSubscriptionPlan(uid, name string, price int64, durationDays int, features []string) (*SubscriptionPlan, error) {
	if uid == "" || name == "" || price <= 0 || durationDays < 0 {
		return nil, domain.ErrInvalidArgument
	}
	return &SubscriptionPlan{
		UID:          uid,
		PlanName:     name,
		Price:        price,
		DurationDays: durationDays,
		Features:     append([]string(nil), features...),
	}, nil
}
