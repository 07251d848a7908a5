package model

import (
	"strings"
	"time"

	"course-subscription/internal/domain"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"   // accepted by gateway; awaiting settlement
	PaymentStatusCompleted PaymentStatus = "completed" // settled
	PaymentStatusCancelled PaymentStatus = "cancelled" // user/admin cancel or gateway expiry
	PaymentStatusFailed    PaymentStatus = "failed"    // settlement failed
)

// ParsePaymentStatus case-normalizes a gateway status string.
// Synonyms seen across gateways ("PAID", "CANCELED") map onto the four states.
func ParsePaymentStatus(s string) (PaymentStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending", "processing":
		return PaymentStatusPending, nil
	case "completed", "paid", "succeeded":
		return PaymentStatusCompleted, nil
	case "cancelled", "canceled", "expired":
		return PaymentStatusCancelled, nil
	case "failed":
		return PaymentStatusFailed, nil
	}
	return "", domain.ErrInvalidArgument
}

func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusCancelled || s == PaymentStatusFailed
}

// PaymentOrder is one external transaction attempt. Gateway-assigned fields are
// only ever copied from gateway responses.
type PaymentOrder struct {
	UID                string        `json:"uid"`
	OrderCode          int64         `json:"order_code"` // gateway idempotency/lookup key
	UserRef            string        `json:"user_ref"`
	PlanRef            string        `json:"plan_ref"`
	PlanName           string        `json:"plan_name,omitempty"`
	Description        string        `json:"description,omitempty"`
	Amount             int64         `json:"amount"` // minor units
	Currency           string        `json:"currency"`
	Status             PaymentStatus `json:"status"`
	CheckoutURL        string        `json:"checkout_url"`
	QRCode             string        `json:"qr_code"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
	PaidAt             *time.Time    `json:"paid_at,omitempty"`
	CancellationReason *string       `json:"cancellation_reason,omitempty"`
}

// StatusUpdate is what a status read returns.
type StatusUpdate struct {
	Status             PaymentStatus
	PaidAt             *time.Time
	CancellationReason *string
}

// Apply moves the order along Pending -> {Completed, Cancelled, Failed}.
// It reports whether anything changed. Terminal orders never change again.
func (o *PaymentOrder) Apply(u StatusUpdate, now time.Time) (bool, error) {
	if o.Status == u.Status {
		return false, nil
	}
	if o.Status.IsTerminal() {
		return false, domain.ErrOrderTerminal
	}
	if o.Status != PaymentStatusPending || !u.Status.IsTerminal() {
		return false, domain.ErrInvalidTransition
	}
	o.Status = u.Status
	o.UpdatedAt = now
	if u.PaidAt != nil {
		o.PaidAt = u.PaidAt
	}
	if u.CancellationReason != nil {
		o.CancellationReason = u.CancellationReason
	}
	return true, nil
}

// Invoice is a server-produced document, passed through untouched.
type Invoice struct {
	OrderCode   int64
	ContentType string
	Filename    string
	Body        []byte
}
