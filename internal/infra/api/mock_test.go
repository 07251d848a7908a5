package api_test

import (
	"context"
	"sync"
	"time"

	"course-subscription/internal/domain/model"
	"course-subscription/internal/usecase"
)

type mockSettlement struct {
	mu sync.Mutex

	CreateFunc   func(ctx context.Context, cred model.Credential, planRef string) (*model.CheckoutView, error)
	ViewFunc     func(ctx context.Context, cred model.Credential, orderCode int64) (*model.CheckoutView, error)
	CheckNowFunc func(ctx context.Context, cred model.Credential, orderCode int64) (*model.CheckoutView, error)
	HistoryFunc  func(ctx context.Context, cred model.Credential) ([]*model.PaymentOrder, error)
	InvoiceFunc  func(ctx context.Context, cred model.Credential, orderCode int64) (*model.Invoice, error)

	cancels   []string
	teardowns []int64
	lastCred  model.Credential
}

var _ usecase.SettlementUseCase = (*mockSettlement)(nil)

func (m *mockSettlement) seen(cred model.Credential) {
	m.mu.Lock()
	m.lastCred = cred
	m.mu.Unlock()
}

func (m *mockSettlement) Create(ctx context.Context, cred model.Credential, planRef string) (*model.CheckoutView, error) {
	m.seen(cred)
	return m.CreateFunc(ctx, cred, planRef)
}

func (m *mockSettlement) View(ctx context.Context, cred model.Credential, orderCode int64) (*model.CheckoutView, error) {
	m.seen(cred)
	return m.ViewFunc(ctx, cred, orderCode)
}

func (m *mockSettlement) CheckNow(ctx context.Context, cred model.Credential, orderCode int64) (*model.CheckoutView, error) {
	m.seen(cred)
	return m.CheckNowFunc(ctx, cred, orderCode)
}

func (m *mockSettlement) Cancel(ctx context.Context, cred model.Credential, orderCode int64, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancels = append(m.cancels, reason)
}

func (m *mockSettlement) Teardown(cred model.Credential, orderCode int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teardowns = append(m.teardowns, orderCode)
}

func (m *mockSettlement) History(ctx context.Context, cred model.Credential) ([]*model.PaymentOrder, error) {
	return m.HistoryFunc(ctx, cred)
}

func (m *mockSettlement) Invoice(ctx context.Context, cred model.Credential, orderCode int64) (*model.Invoice, error) {
	return m.InvoiceFunc(ctx, cred, orderCode)
}

func (m *mockSettlement) Reconcile(ctx context.Context, o *model.PaymentOrder) (bool, error) {
	return false, nil
}

func (m *mockSettlement) Shutdown() {}

type mockAccess struct {
	summary model.AccessSummary
	module  model.ModuleAccess
	err     error
}

var _ usecase.AccessUseCase = (*mockAccess)(nil)

func (m *mockAccess) CheckAccess(ctx context.Context, cred model.Credential) model.AccessSummary {
	return m.summary
}

func (m *mockAccess) CheckModuleAccess(ctx context.Context, cred model.Credential, courseRef string, moduleIndex int) model.ModuleAccess {
	return m.module
}

func (m *mockAccess) Refresh(ctx context.Context, cred model.Credential) (model.AccessSummary, error) {
	return m.summary, m.err
}

func (m *mockAccess) Invalidate(ctx context.Context, userRef string) error { return nil }

type mockContent struct {
	ModuleListFunc   func(ctx context.Context, cred model.Credential, courseRef string) (*model.ModuleListView, error)
	ModuleDetailFunc func(ctx context.Context, cred model.Credential, courseRef string, index int) (*model.ModuleDetailView, error)
}

var _ usecase.ContentUseCase = (*mockContent)(nil)

func (m *mockContent) ModuleList(ctx context.Context, cred model.Credential, courseRef string) (*model.ModuleListView, error) {
	return m.ModuleListFunc(ctx, cred, courseRef)
}

func (m *mockContent) ModuleDetail(ctx context.Context, cred model.Credential, courseRef string, index int) (*model.ModuleDetailView, error) {
	return m.ModuleDetailFunc(ctx, cred, courseRef, index)
}

type mockPlans struct {
	plans []*model.SubscriptionPlan
	err   error
}

func (m *mockPlans) List(ctx context.Context) ([]*model.SubscriptionPlan, error) {
	return m.plans, m.err
}

type mockLimiter struct {
	mu    sync.Mutex
	count map[string]int
	err   error
}

func (l *mockLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.count == nil {
		l.count = map[string]int{}
	}
	l.count[key]++
	return l.count[key] <= limit, nil
}
