package model

import (
	"math"
	"time"
)

const day = 24 * time.Hour

// Subscription is derived from the latest completed order; it is never
// persisted on its own. Active and DaysRemaining depend on the read time.
type Subscription struct {
	OrderRef string     `json:"order_ref"`
	PlanRef  string     `json:"plan_ref"`
	PlanName string     `json:"plan_name"`
	StartAt  time.Time  `json:"start_at"`
	EndAt    *time.Time `json:"end_at,omitempty"` // nil = unlimited
}

// Active holds iff now is inside [StartAt, EndAt], or now >= StartAt without an end.
func (s *Subscription) Active(now time.Time) bool {
	if s == nil || now.Before(s.StartAt) {
		return false
	}
	return s.EndAt == nil || !now.After(*s.EndAt)
}

// DaysRemaining is ceil((EndAt-now)/1 day) floored at 0, or nil for unlimited plans.
func (s *Subscription) DaysRemaining(now time.Time) *int {
	if s == nil || s.EndAt == nil {
		return nil
	}
	left := s.EndAt.Sub(now)
	n := 0
	if left > 0 {
		n = int(math.Ceil(float64(left) / float64(day)))
	}
	return &n
}

// SubscriptionInfo is the read-time projection handed to views.
type SubscriptionInfo struct {
	Subscription
	IsActive      bool `json:"active"`
	DaysRemaining *int `json:"days_remaining"`
}

func (s *Subscription) At(now time.Time) *SubscriptionInfo {
	if s == nil {
		return nil
	}
	return &SubscriptionInfo{
		Subscription:  *s,
		IsActive:      s.Active(now),
		DaysRemaining: s.DaysRemaining(now),
	}
}
