package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"

	"course-subscription/internal/domain/model"
)

// flexInt64 accepts 123, "123" and 123.0; the backend is not consistent.
type flexInt64 int64

func (f *flexInt64) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		*f = 0
		return nil
	}
	n, err := cast.ToInt64E(string(b))
	if err != nil {
		d, derr := decimal.NewFromString(string(b))
		if derr != nil {
			return fmt.Errorf("order code %q: %w", b, err)
		}
		if n, err = wholeUnits("order code", d); err != nil {
			return err
		}
	}
	*f = flexInt64(n)
	return nil
}

// wholeUnits converts a wire value already expressed in minor units. A
// fractional value is rejected rather than rounded.
func wholeUnits(field string, d decimal.Decimal) (int64, error) {
	if !d.Equal(d.Truncate(0)) {
		return 0, fmt.Errorf("%s %s is not a whole number of minor units", field, d.String())
	}
	return d.IntPart(), nil
}

type intentDTO struct {
	OrderCode   flexInt64       `json:"orderCode"`
	CheckoutURL string          `json:"checkoutUrl"`
	QRCode      string          `json:"qrCode"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Status      string          `json:"status"`
	PlanName    string          `json:"planName"`
	Description string          `json:"description"`
}

type statusDTO struct {
	Status             string     `json:"status"`
	PaidAt             *time.Time `json:"paidAt"`
	CancellationReason *string    `json:"cancellationReason"`
}

type orderDTO struct {
	UID                string          `json:"uid"`
	OrderCode          flexInt64       `json:"orderCode"`
	UserID             string          `json:"userId"`
	PlanID             string          `json:"planId"`
	PlanName           string          `json:"planName"`
	Description        string          `json:"description"`
	Amount             decimal.Decimal `json:"amount"`
	Currency           string          `json:"currency"`
	Status             string          `json:"status"`
	CheckoutURL        string          `json:"checkoutUrl"`
	QRCode             string          `json:"qrCode"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
	PaidAt             *time.Time      `json:"paidAt"`
	CancellationReason *string         `json:"cancellationReason"`
}

func (d orderDTO) toModel() (*model.PaymentOrder, error) {
	st, err := model.ParsePaymentStatus(d.Status)
	if err != nil {
		return nil, fmt.Errorf("order %d: unknown status %q", d.OrderCode, d.Status)
	}
	amount, err := wholeUnits("amount", d.Amount)
	if err != nil {
		return nil, fmt.Errorf("order %d: %w", d.OrderCode, err)
	}
	return &model.PaymentOrder{
		UID:                d.UID,
		OrderCode:          int64(d.OrderCode),
		UserRef:            d.UserID,
		PlanRef:            d.PlanID,
		PlanName:           d.PlanName,
		Description:        d.Description,
		Amount:             amount,
		Currency:           d.Currency,
		Status:             st,
		CheckoutURL:        d.CheckoutURL,
		QRCode:             d.QRCode,
		CreatedAt:          d.CreatedAt,
		UpdatedAt:          d.UpdatedAt,
		PaidAt:             d.PaidAt,
		CancellationReason: d.CancellationReason,
	}, nil
}

type planDTO struct {
	UID          string          `json:"uid"`
	PlanName     string          `json:"planName"`
	Price        decimal.Decimal `json:"price"`
	Currency     string          `json:"currency"`
	DurationDays any             `json:"durationDays"`
	Features     []string        `json:"features"`
}

func (d planDTO) toModel() (*model.SubscriptionPlan, error) {
	price, err := wholeUnits("price", d.Price)
	if err != nil {
		return nil, fmt.Errorf("plan %s: %w", d.UID, err)
	}
	return &model.SubscriptionPlan{
		UID:          d.UID,
		PlanName:     d.PlanName,
		Price:        price,
		Currency:     d.Currency,
		DurationDays: cast.ToInt(d.DurationDays),
		Features:     d.Features,
	}, nil
}

type subscriptionDTO struct {
	OrderID   string     `json:"orderId"`
	PlanID    string     `json:"planId"`
	PlanName  string     `json:"planName"`
	StartDate time.Time  `json:"startDate"`
	EndDate   *time.Time `json:"endDate"`
}

type accessDTO struct {
	HasAccess         bool             `json:"hasAccess"`
	CanViewAllModules bool             `json:"canViewAllModules"`
	MaxFreeModules    *int             `json:"maxFreeModules"`
	SubscriptionInfo  *subscriptionDTO `json:"subscriptionInfo"`
}

func (d accessDTO) toModel() *model.Entitlement {
	e := &model.Entitlement{
		HasAccess:         d.HasAccess,
		CanViewAllModules: d.CanViewAllModules,
		MaxFreeModules:    model.DefaultMaxFreeModules,
	}
	if d.MaxFreeModules != nil {
		e.MaxFreeModules = *d.MaxFreeModules
	}
	if s := d.SubscriptionInfo; s != nil {
		e.Subscription = &model.Subscription{
			OrderRef: s.OrderID,
			PlanRef:  s.PlanID,
			PlanName: s.PlanName,
			StartAt:  s.StartDate,
			EndAt:    s.EndDate,
		}
	}
	return e
}

type moduleDTO struct {
	OrderIndex int             `json:"orderIndex"`
	Title      string          `json:"title"`
	Content    json.RawMessage `json:"content"`
}

func (d moduleDTO) toModel(courseRef string) *model.Module {
	return &model.Module{CourseRef: courseRef, OrderIndex: d.OrderIndex, Title: d.Title, Content: d.Content}
}
