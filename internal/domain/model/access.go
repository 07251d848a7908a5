package model

import "time"

// DefaultMaxFreeModules applies when the server never told us otherwise.
const DefaultMaxFreeModules = 2

// Entitlement is the cached server answer to "what may this account see".
type Entitlement struct {
	HasAccess         bool          `json:"has_access"`
	CanViewAllModules bool          `json:"can_view_all_modules"`
	MaxFreeModules    int           `json:"max_free_modules"`
	Subscription      *Subscription `json:"subscription,omitempty"`
	FetchedAt         time.Time     `json:"fetched_at"`
}

// Fresh reports whether the entitlement is younger than the freshness window.
func (e *Entitlement) Fresh(now time.Time, window time.Duration) bool {
	return e != nil && now.Sub(e.FetchedAt) < window
}

// AccessSummary is the whole-account decision handed to views. Never persisted.
type AccessSummary struct {
	HasAccess         bool              `json:"has_access"`
	CanViewAllModules bool              `json:"can_view_all_modules"`
	MaxFreeModules    int               `json:"max_free_modules"`
	SubscriptionInfo  *SubscriptionInfo `json:"subscription_info"`
	Error             string            `json:"error,omitempty"`
}

// Decide projects the entitlement at read time. A subscription whose window
// has closed since the last fetch no longer grants access.
func (e *Entitlement) Decide(now time.Time) AccessSummary {
	out := AccessSummary{
		HasAccess:         e.HasAccess,
		CanViewAllModules: e.CanViewAllModules,
		MaxFreeModules:    e.MaxFreeModules,
		SubscriptionInfo:  e.Subscription.At(now),
	}
	if out.MaxFreeModules < 0 {
		out.MaxFreeModules = 0
	}
	if e.Subscription != nil && !e.Subscription.Active(now) {
		out.HasAccess = false
		out.CanViewAllModules = false
	}
	return out
}

// FailClosed is the decision used whenever the entitlement cannot be determined.
func FailClosed(maxFree int, msg string) AccessSummary {
	if maxFree < 0 {
		maxFree = DefaultMaxFreeModules
	}
	return AccessSummary{
		HasAccess:         false,
		CanViewAllModules: false,
		MaxFreeModules:    maxFree,
		SubscriptionInfo:  nil,
		Error:             msg,
	}
}

// ModuleAccess answers a point query for one module.
type ModuleAccess struct {
	CanAccess bool   `json:"can_access"`
	Reason    string `json:"reason,omitempty"` // server-authored, shown verbatim
	Error     string `json:"error,omitempty"`
}

// CanOpenModule is the single free-tier rule shared by list and detail views.
func CanOpenModule(index, maxFree int, granted bool) bool {
	return (index >= 0 && index < maxFree) || granted
}
