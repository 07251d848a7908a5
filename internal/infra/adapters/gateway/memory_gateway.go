package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"course-subscription/internal/domain"
	"course-subscription/internal/domain/model"
	"course-subscription/internal/domain/ports/adapter"
)

var (
	_ adapter.PaymentGateway     = (*MemoryGateway)(nil)
	_ adapter.EntitlementGateway = (*MemoryGateway)(nil)
	_ adapter.IdentityProvider   = (*MemoryGateway)(nil)
	_ adapter.ContentCatalog     = (*MemoryGateway)(nil)
)

// MemoryGateway is an in-process backend for local runs. Orders settle after a
// configurable number of status reads; Settle forces a terminal status.
type MemoryGateway struct {
	mu          sync.Mutex
	seq         int64
	settleAfter int
	now         func() time.Time
	plans       map[string]*model.SubscriptionPlan
	orders      map[int64]*model.PaymentOrder
	reads       map[int64]int
	modules     int
	freeModules int
}

// NewMemoryGateway seeds two plans and a five-module demo course.
// settleAfter <= 0 keeps orders pending until Settle is called.
func NewMemoryGateway(settleAfter int) *MemoryGateway {
	g := &MemoryGateway{
		seq:         100000,
		settleAfter: settleAfter,
		now:         time.Now,
		plans:       make(map[string]*model.SubscriptionPlan),
		orders:      make(map[int64]*model.PaymentOrder),
		reads:       make(map[int64]int),
		modules:     5,
		freeModules: model.DefaultMaxFreeModules,
	}
	for _, p := range []*model.SubscriptionPlan{
		{UID: "monthly", PlanName: "Monthly", Price: 99000, Currency: "VND", DurationDays: 30, Features: []string{"all modules"}},
		{UID: "lifetime", PlanName: "Lifetime", Price: 990000, Currency: "VND", Features: []string{"all modules", "future courses"}},
	} {
		g.plans[p.UID] = p
	}
	return g
}

func (g *MemoryGateway) CreatePaymentIntent(_ context.Context, cred model.Credential, userRef, planRef string) (*adapter.CreateIntentResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if cred.IsZero() {
		return nil, &domain.GatewayError{Op: "create_payment_intent", StatusCode: 401, Message: "unauthenticated"}
	}
	p, ok := g.plans[planRef]
	if !ok {
		return nil, &domain.GatewayError{Op: "create_payment_intent", StatusCode: 404, Message: "plan not found"}
	}
	g.seq++
	now := g.now()
	o := &model.PaymentOrder{
		UID:         uuid.NewString(),
		OrderCode:   g.seq,
		UserRef:     userRef,
		PlanRef:     p.UID,
		PlanName:    p.PlanName,
		Description: "Subscription " + p.PlanName,
		Amount:      p.Price,
		Currency:    p.Currency,
		Status:      model.PaymentStatusPending,
		CheckoutURL: fmt.Sprintf("https://pay.local/checkout/%d", g.seq),
		QRCode:      fmt.Sprintf("QR-%d-%d", g.seq, p.Price),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	g.orders[o.OrderCode] = o
	return &adapter.CreateIntentResult{
		OrderCode:   o.OrderCode,
		CheckoutURL: o.CheckoutURL,
		QRCode:      o.QRCode,
		Amount:      o.Amount,
		Currency:    o.Currency,
		Status:      o.Status,
		PlanName:    o.PlanName,
		Description: o.Description,
	}, nil
}

func (g *MemoryGateway) GetPaymentStatus(_ context.Context, _ model.Credential, orderCode int64) (*model.StatusUpdate, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	o, ok := g.orders[orderCode]
	if !ok {
		return nil, &domain.GatewayError{Op: "get_payment_status", StatusCode: 404, Message: "order not found"}
	}
	g.reads[orderCode]++
	if o.Status == model.PaymentStatusPending && g.settleAfter > 0 && g.reads[orderCode] >= g.settleAfter {
		g.settleLocked(o, model.PaymentStatusCompleted, "")
	}
	return &model.StatusUpdate{Status: o.Status, PaidAt: o.PaidAt, CancellationReason: o.CancellationReason}, nil
}

// Settle forces an order into a terminal status.
func (g *MemoryGateway) Settle(orderCode int64, status model.PaymentStatus, reason string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	o, ok := g.orders[orderCode]
	if !ok {
		return domain.ErrNotFound
	}
	if o.Status.IsTerminal() {
		return domain.ErrOrderTerminal
	}
	g.settleLocked(o, status, reason)
	return nil
}

func (g *MemoryGateway) settleLocked(o *model.PaymentOrder, status model.PaymentStatus, reason string) {
	now := g.now()
	o.Status = status
	o.UpdatedAt = now
	switch status {
	case model.PaymentStatusCompleted:
		o.PaidAt = &now
	case model.PaymentStatusCancelled, model.PaymentStatusFailed:
		if reason != "" {
			o.CancellationReason = &reason
		}
	}
}

func (g *MemoryGateway) CancelPayment(_ context.Context, _ model.Credential, orderCode int64, reason string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	o, ok := g.orders[orderCode]
	if !ok {
		return &domain.GatewayError{Op: "cancel_payment", StatusCode: 404, Message: "order not found"}
	}
	if o.Status != model.PaymentStatusPending {
		return &domain.GatewayError{Op: "cancel_payment", StatusCode: 409, Message: "order is no longer pending"}
	}
	g.settleLocked(o, model.PaymentStatusCancelled, reason)
	return nil
}

func (g *MemoryGateway) GetPaymentHistory(_ context.Context, _ model.Credential, userRef string) ([]*model.PaymentOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []*model.PaymentOrder
	for _, o := range g.orders {
		if o.UserRef == userRef {
			cp := *o
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderCode > out[j].OrderCode })
	return out, nil
}

func (g *MemoryGateway) GetInvoice(_ context.Context, _ model.Credential, orderCode int64) (*model.Invoice, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	o, ok := g.orders[orderCode]
	if !ok {
		return nil, &domain.GatewayError{Op: "get_invoice", StatusCode: 404, Message: "order not found"}
	}
	if o.Status != model.PaymentStatusCompleted {
		return nil, &domain.GatewayError{Op: "get_invoice", StatusCode: 409, Message: "invoice is available after payment"}
	}
	body := fmt.Sprintf("INVOICE %d\nplan: %s\namount: %d %s\n", o.OrderCode, o.PlanName, o.Amount, o.Currency)
	return &model.Invoice{
		OrderCode:   orderCode,
		ContentType: "text/plain; charset=utf-8",
		Filename:    fmt.Sprintf("invoice-%d.txt", orderCode),
		Body:        []byte(body),
	}, nil
}

func (g *MemoryGateway) ListPlans(context.Context) ([]*model.SubscriptionPlan, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*model.SubscriptionPlan, 0, len(g.plans))
	for _, p := range g.plans {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	return out, nil
}

func (g *MemoryGateway) Me(_ context.Context, cred model.Credential) (*model.Identity, error) {
	if cred.IsZero() {
		return nil, &domain.GatewayError{Op: "me", StatusCode: 401, Message: "unauthenticated"}
	}
	return &model.Identity{UserRef: cred.UserRef, Email: cred.UserRef + "@local", Name: cred.UserRef}, nil
}

// CheckAccess derives the entitlement from the caller's latest completed order.
func (g *MemoryGateway) CheckAccess(_ context.Context, cred model.Credential) (*model.Entitlement, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e := &model.Entitlement{MaxFreeModules: g.freeModules}
	sub := g.subscriptionLocked(cred.UserRef)
	if sub != nil {
		e.Subscription = sub
		e.HasAccess = sub.Active(g.now())
		e.CanViewAllModules = e.HasAccess
	}
	return e, nil
}

func (g *MemoryGateway) subscriptionLocked(userRef string) *model.Subscription {
	var last *model.PaymentOrder
	for _, o := range g.orders {
		if o.UserRef != userRef || o.Status != model.PaymentStatusCompleted || o.PaidAt == nil {
			continue
		}
		if last == nil || o.PaidAt.After(*last.PaidAt) {
			last = o
		}
	}
	if last == nil {
		return nil
	}
	s := &model.Subscription{OrderRef: last.UID, PlanRef: last.PlanRef, PlanName: last.PlanName, StartAt: *last.PaidAt}
	if p := g.plans[last.PlanRef]; p != nil && !p.Lifetime() {
		end := last.PaidAt.Add(time.Duration(p.DurationDays) * 24 * time.Hour)
		s.EndAt = &end
	}
	return s
}

func (g *MemoryGateway) CheckModuleAccess(_ context.Context, cred model.Credential, _ string, moduleIndex int) (*model.ModuleAccess, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	sub := g.subscriptionLocked(cred.UserRef)
	if sub.Active(g.now()) || (moduleIndex >= 0 && moduleIndex < g.freeModules) {
		return &model.ModuleAccess{CanAccess: true}, nil
	}
	return &model.ModuleAccess{CanAccess: false, Reason: "This module requires an active subscription."}, nil
}

func (g *MemoryGateway) ListModules(_ context.Context, _ model.Credential, courseRef string) ([]*model.Module, error) {
	out := make([]*model.Module, 0, g.modules)
	for i := 0; i < g.modules; i++ {
		out = append(out, g.module(courseRef, i))
	}
	return out, nil
}

func (g *MemoryGateway) GetModule(_ context.Context, _ model.Credential, courseRef string, index int) (*model.Module, error) {
	if index < 0 || index >= g.modules {
		return nil, &domain.GatewayError{Op: "get_module", StatusCode: 404, Message: "module not found"}
	}
	return g.module(courseRef, index), nil
}

func (g *MemoryGateway) module(courseRef string, i int) *model.Module {
	content, _ := json.Marshal(map[string]string{"body": fmt.Sprintf("Lesson %d of %s", i+1, courseRef)})
	return &model.Module{CourseRef: courseRef, OrderIndex: i, Title: fmt.Sprintf("Module %d", i+1), Content: content}
}
