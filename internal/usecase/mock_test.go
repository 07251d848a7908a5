package usecase_test

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"course-subscription/internal/domain"
	"course-subscription/internal/domain/model"
	"course-subscription/internal/domain/ports/adapter"
	"course-subscription/internal/domain/ports/repository"
	"course-subscription/internal/infra/worker"
)

// ---- Gateway (all four ports) ----

type MockGateway struct {
	mu sync.Mutex

	CreatePaymentIntentFunc func(ctx context.Context, cred model.Credential, userRef, planRef string) (*adapter.CreateIntentResult, error)
	GetPaymentStatusFunc    func(ctx context.Context, cred model.Credential, orderCode int64) (*model.StatusUpdate, error)
	CancelPaymentFunc       func(ctx context.Context, cred model.Credential, orderCode int64, reason string) error
	GetPaymentHistoryFunc   func(ctx context.Context, cred model.Credential, userRef string) ([]*model.PaymentOrder, error)
	GetInvoiceFunc          func(ctx context.Context, cred model.Credential, orderCode int64) (*model.Invoice, error)
	ListPlansFunc           func(ctx context.Context) ([]*model.SubscriptionPlan, error)
	MeFunc                  func(ctx context.Context, cred model.Credential) (*model.Identity, error)
	CheckAccessFunc         func(ctx context.Context, cred model.Credential) (*model.Entitlement, error)
	CheckModuleAccessFunc   func(ctx context.Context, cred model.Credential, courseRef string, moduleIndex int) (*model.ModuleAccess, error)
	ListModulesFunc         func(ctx context.Context, cred model.Credential, courseRef string) ([]*model.Module, error)
	GetModuleFunc           func(ctx context.Context, cred model.Credential, courseRef string, index int) (*model.Module, error)

	calls         map[string]int
	cancelReasons []string
}

var (
	_ adapter.PaymentGateway     = (*MockGateway)(nil)
	_ adapter.EntitlementGateway = (*MockGateway)(nil)
	_ adapter.IdentityProvider   = (*MockGateway)(nil)
	_ adapter.ContentCatalog     = (*MockGateway)(nil)
)

func NewMockGateway() *MockGateway {
	return &MockGateway{calls: make(map[string]int)}
}

func (m *MockGateway) hit(name string) {
	m.mu.Lock()
	m.calls[name]++
	m.mu.Unlock()
}

func (m *MockGateway) Calls(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[name]
}

func (m *MockGateway) CancelReasons() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.cancelReasons...)
}

func (m *MockGateway) CreatePaymentIntent(ctx context.Context, cred model.Credential, userRef, planRef string) (*adapter.CreateIntentResult, error) {
	m.hit("CreatePaymentIntent")
	if m.CreatePaymentIntentFunc != nil {
		return m.CreatePaymentIntentFunc(ctx, cred, userRef, planRef)
	}
	return &adapter.CreateIntentResult{OrderCode: 1, Amount: 1000, Currency: "VND", Status: model.PaymentStatusPending}, nil
}

func (m *MockGateway) GetPaymentStatus(ctx context.Context, cred model.Credential, orderCode int64) (*model.StatusUpdate, error) {
	m.hit("GetPaymentStatus")
	if m.GetPaymentStatusFunc != nil {
		return m.GetPaymentStatusFunc(ctx, cred, orderCode)
	}
	return &model.StatusUpdate{Status: model.PaymentStatusPending}, nil
}

func (m *MockGateway) CancelPayment(ctx context.Context, cred model.Credential, orderCode int64, reason string) error {
	m.hit("CancelPayment")
	m.mu.Lock()
	m.cancelReasons = append(m.cancelReasons, reason)
	m.mu.Unlock()
	if m.CancelPaymentFunc != nil {
		return m.CancelPaymentFunc(ctx, cred, orderCode, reason)
	}
	return nil
}

func (m *MockGateway) GetPaymentHistory(ctx context.Context, cred model.Credential, userRef string) ([]*model.PaymentOrder, error) {
	m.hit("GetPaymentHistory")
	if m.GetPaymentHistoryFunc != nil {
		return m.GetPaymentHistoryFunc(ctx, cred, userRef)
	}
	return nil, nil
}

func (m *MockGateway) GetInvoice(ctx context.Context, cred model.Credential, orderCode int64) (*model.Invoice, error) {
	m.hit("GetInvoice")
	if m.GetInvoiceFunc != nil {
		return m.GetInvoiceFunc(ctx, cred, orderCode)
	}
	return &model.Invoice{OrderCode: orderCode, ContentType: "application/pdf", Body: []byte("%PDF")}, nil
}

func (m *MockGateway) ListPlans(ctx context.Context) ([]*model.SubscriptionPlan, error) {
	m.hit("ListPlans")
	if m.ListPlansFunc != nil {
		return m.ListPlansFunc(ctx)
	}
	return nil, nil
}

func (m *MockGateway) Me(ctx context.Context, cred model.Credential) (*model.Identity, error) {
	m.hit("Me")
	if m.MeFunc != nil {
		return m.MeFunc(ctx, cred)
	}
	return &model.Identity{UserRef: cred.UserRef}, nil
}

func (m *MockGateway) CheckAccess(ctx context.Context, cred model.Credential) (*model.Entitlement, error) {
	m.hit("CheckAccess")
	if m.CheckAccessFunc != nil {
		return m.CheckAccessFunc(ctx, cred)
	}
	return &model.Entitlement{MaxFreeModules: model.DefaultMaxFreeModules}, nil
}

func (m *MockGateway) CheckModuleAccess(ctx context.Context, cred model.Credential, courseRef string, moduleIndex int) (*model.ModuleAccess, error) {
	m.hit("CheckModuleAccess")
	if m.CheckModuleAccessFunc != nil {
		return m.CheckModuleAccessFunc(ctx, cred, courseRef, moduleIndex)
	}
	return &model.ModuleAccess{CanAccess: false, Reason: "Upgrade to continue"}, nil
}

func (m *MockGateway) ListModules(ctx context.Context, cred model.Credential, courseRef string) ([]*model.Module, error) {
	m.hit("ListModules")
	if m.ListModulesFunc != nil {
		return m.ListModulesFunc(ctx, cred, courseRef)
	}
	return nil, nil
}

func (m *MockGateway) GetModule(ctx context.Context, cred model.Credential, courseRef string, index int) (*model.Module, error) {
	m.hit("GetModule")
	if m.GetModuleFunc != nil {
		return m.GetModuleFunc(ctx, cred, courseRef, index)
	}
	return &model.Module{CourseRef: courseRef, OrderIndex: index, Title: "m"}, nil
}

// ---- In-memory order ledger ----

type MockOrderRepo struct {
	mu      sync.Mutex
	orders  map[int64]*model.PaymentOrder
	SaveErr error
}

var _ repository.PaymentOrderRepository = (*MockOrderRepo)(nil)

func NewMockOrderRepo() *MockOrderRepo {
	return &MockOrderRepo{orders: make(map[int64]*model.PaymentOrder)}
}

func (r *MockOrderRepo) Save(ctx context.Context, tx repository.Tx, o *model.PaymentOrder) error {
	if r.SaveErr != nil {
		return r.SaveErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *o
	r.orders[o.OrderCode] = &cp
	return nil
}

func (r *MockOrderRepo) FindByOrderCode(ctx context.Context, tx repository.Tx, orderCode int64) (*model.PaymentOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderCode]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (r *MockOrderRepo) FindPending(ctx context.Context, tx repository.Tx, userRef, planRef string, since time.Time) (*model.PaymentOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best *model.PaymentOrder
	for _, o := range r.orders {
		if o.UserRef != userRef || o.PlanRef != planRef || o.Status != model.PaymentStatusPending || o.CreatedAt.Before(since) {
			continue
		}
		if best == nil || o.CreatedAt.After(best.CreatedAt) {
			best = o
		}
	}
	if best == nil {
		return nil, domain.ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func (r *MockOrderRepo) UpdateStatusIfPending(ctx context.Context, tx repository.Tx, orderCode int64, u model.StatusUpdate) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderCode]
	if !ok || o.Status != model.PaymentStatusPending {
		return false, nil
	}
	o.Status = u.Status
	if u.PaidAt != nil {
		o.PaidAt = u.PaidAt
	}
	if u.CancellationReason != nil {
		o.CancellationReason = u.CancellationReason
	}
	return true, nil
}

func (r *MockOrderRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.PaymentOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.PaymentOrder
	for _, o := range r.orders {
		if o.Status == model.PaymentStatusPending && o.CreatedAt.Before(olderThan) {
			cp := *o
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MockOrderRepo) ListByUser(ctx context.Context, tx repository.Tx, userRef string, limit int) ([]*model.PaymentOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.PaymentOrder
	for _, o := range r.orders {
		if o.UserRef == userRef {
			cp := *o
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MockOrderRepo) Status(orderCode int64) model.PaymentStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.orders[orderCode]; ok {
		return o.Status
	}
	return ""
}

type mockTxManager struct{}

var _ repository.TransactionManager = (*mockTxManager)(nil)

func (m *mockTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, nil)
}

// ---- In-memory entitlement cache ----

type MockEntitlementCache struct {
	mu          sync.Mutex
	entries     map[string]model.Entitlement
	lastFree    map[string]int
	invalidated int
}

var _ repository.EntitlementCache = (*MockEntitlementCache)(nil)

func NewMockEntitlementCache() *MockEntitlementCache {
	return &MockEntitlementCache{entries: map[string]model.Entitlement{}, lastFree: map[string]int{}}
}

func (c *MockEntitlementCache) Get(ctx context.Context, userRef string) (*model.Entitlement, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[userRef]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &e, nil
}

func (c *MockEntitlementCache) Put(ctx context.Context, userRef string, e *model.Entitlement) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[userRef] = *e
	c.lastFree[userRef] = e.MaxFreeModules
	return nil
}

func (c *MockEntitlementCache) Invalidate(ctx context.Context, userRef string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userRef)
	c.invalidated++
	return nil
}

func (c *MockEntitlementCache) LastMaxFree(ctx context.Context, userRef string) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.lastFree[userRef]
	return n, ok
}

func (c *MockEntitlementCache) Invalidations() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.invalidated
}

// ---- Plan catalog ----

type MockPlanCatalog struct {
	plans map[string]*model.SubscriptionPlan
	Err   error
}

var _ repository.PlanCatalog = (*MockPlanCatalog)(nil)

func NewMockPlanCatalog(plans ...*model.SubscriptionPlan) *MockPlanCatalog {
	m := &MockPlanCatalog{plans: map[string]*model.SubscriptionPlan{}}
	for _, p := range plans {
		m.plans[p.UID] = p
	}
	return m
}

func (m *MockPlanCatalog) ListAll(ctx context.Context) ([]*model.SubscriptionPlan, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	var out []*model.SubscriptionPlan
	for _, p := range m.plans {
		out = append(out, p)
	}
	return out, nil
}

func (m *MockPlanCatalog) FindByID(ctx context.Context, id string) (*model.SubscriptionPlan, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	p, ok := m.plans[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

// ---- In-memory Locker ----

type MockLocker struct {
	mu   sync.Mutex
	held map[string]string
}

var _ repository.Locker = (*MockLocker)(nil)

func NewMockLocker() *MockLocker {
	return &MockLocker{held: map[string]string{}}
}

func (l *MockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return "", domain.ErrLockBusy
	}
	tok := uuid.NewString()
	l.held[key] = tok
	return tok, nil
}

func (l *MockLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
	}
	return nil
}

// ---- Task submitter ----

// syncSubmitter runs tasks inline so tests can observe their effects.
// FailNext rejects that many submissions the way a saturated pool does.
type syncSubmitter struct {
	mu       sync.Mutex
	names    []string
	FailNext int
}

func (s *syncSubmitter) Submit(task worker.Task) error {
	s.mu.Lock()
	if s.FailNext > 0 {
		s.FailNext--
		s.mu.Unlock()
		return worker.ErrQueueFull
	}
	s.names = append(s.names, task.Name)
	s.mu.Unlock()
	_ = task.Run(context.Background())
	return nil
}

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}
