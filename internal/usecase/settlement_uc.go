package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"course-subscription/internal/domain"
	"course-subscription/internal/domain/model"
	"course-subscription/internal/domain/ports/adapter"
	"course-subscription/internal/domain/ports/repository"
	"course-subscription/internal/infra/logging"
	"course-subscription/internal/infra/metrics"
	"course-subscription/internal/infra/worker"
)

var _ SettlementUseCase = (*settlementUC)(nil)

// ReasonNavigatedAway is sent when a checkout view goes away while pending.
const ReasonNavigatedAway = "User navigated away"

// SettlementUseCase drives payment intents from creation to a terminal status.
type SettlementUseCase interface {
	Create(ctx context.Context, cred model.Credential, planRef string) (*model.CheckoutView, error)
	View(ctx context.Context, cred model.Credential, orderCode int64) (*model.CheckoutView, error)
	CheckNow(ctx context.Context, cred model.Credential, orderCode int64) (*model.CheckoutView, error)
	// Cancel is fire-and-forget; repeated calls for the same order do nothing.
	Cancel(ctx context.Context, cred model.Credential, orderCode int64, reason string)
	// Teardown releases the poller and cancels remotely when still pending. It never blocks.
	Teardown(cred model.Credential, orderCode int64)
	History(ctx context.Context, cred model.Credential) ([]*model.PaymentOrder, error)
	Invoice(ctx context.Context, cred model.Credential, orderCode int64) (*model.Invoice, error)
	// Reconcile re-reads a ledger order that no live checkout is watching.
	Reconcile(ctx context.Context, o *model.PaymentOrder) (bool, error)
	Shutdown()
}

// Submitter queues background work.
type Submitter interface {
	Submit(task worker.Task) error
}

// historyFallbackLimit caps the ledger rows served when the gateway is unreachable.
const historyFallbackLimit = 50

type SettlementOptions struct {
	PollInterval time.Duration
	PollCeiling  time.Duration
	LockTTL      time.Duration
	Currency     string // used when the gateway omits one
	Dev          bool
}

// checkoutSession is one live checkout view: the order it shows and its poller.
type checkoutSession struct {
	mu     sync.Mutex
	cred   model.Credential
	order  model.PaymentOrder
	poller *Poller
}

func (s *checkoutSession) snapshot() (model.PaymentOrder, *Poller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order, s.poller
}

type settlementUC struct {
	gateway  adapter.PaymentGateway
	identity adapter.IdentityProvider
	orders   repository.PaymentOrderRepository
	txm      repository.TransactionManager
	plans    repository.PlanCatalog
	locker   repository.Locker
	access   AccessUseCase
	tasks    Submitter
	opts     SettlementOptions
	now      func() time.Time
	log      *zerolog.Logger

	// base outlives requests; pollers and background cancels run under it
	base context.Context

	mu        sync.Mutex
	sessions  map[int64]*checkoutSession
	cancelled map[int64]struct{}
}

func NewSettlementUseCase(
	base context.Context,
	gateway adapter.PaymentGateway,
	identity adapter.IdentityProvider,
	orders repository.PaymentOrderRepository,
	txm repository.TransactionManager,
	plans repository.PlanCatalog,
	locker repository.Locker,
	access AccessUseCase,
	tasks Submitter,
	opts SettlementOptions,
	logger *zerolog.Logger,
) *settlementUC {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 3 * time.Second
	}
	if opts.PollCeiling <= 0 {
		opts.PollCeiling = 5 * time.Minute
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 30 * time.Second
	}
	l := logger.With().Str("component", "SettlementUC").Logger()
	return &settlementUC{
		gateway:   gateway,
		identity:  identity,
		orders:    orders,
		txm:       txm,
		plans:     plans,
		locker:    locker,
		access:    access,
		tasks:     tasks,
		opts:      opts,
		now:       time.Now,
		log:       &l,
		base:      base,
		sessions:  make(map[int64]*checkoutSession),
		cancelled: make(map[int64]struct{}),
	}
}

func checkoutLockKey(userRef, planRef string) string {
	return "checkout:" + userRef + ":" + planRef
}

func (u *settlementUC) Create(ctx context.Context, cred model.Credential, planRef string) (*model.CheckoutView, error) {
	defer logging.TraceDuration(u.log, "SettlementUC.Create")()

	planRef = strings.TrimSpace(planRef)
	if cred.IsZero() {
		return nil, domain.NewValidationError("user", "a signed-in user is required")
	}
	if planRef == "" {
		return nil, domain.NewValidationError("plan_id", "a plan must be selected")
	}
	ctx = logging.WithUserID(ctx, cred.UserRef)
	log := logging.With(ctx, u.log)

	if _, err := u.plans.FindByID(ctx, planRef); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NewValidationError("plan_id", "unknown plan")
		}
		// the gateway has the final word on the plan
		log.Warn().Err(err).Str("plan_ref", planRef).Msg("plan catalog unavailable")
	}

	ident, err := u.identity.Me(ctx, cred)
	if err != nil {
		return nil, err
	}
	if ident.UserRef != "" && ident.UserRef != cred.UserRef {
		return nil, domain.NewValidationError("user", "signed-in identity does not match the request")
	}

	key := checkoutLockKey(cred.UserRef, planRef)
	token, err := u.locker.TryLock(ctx, key, u.opts.LockTTL)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := u.locker.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
			log.Warn().Err(err).Msg("checkout unlock failed")
		}
	}()

	if v, ok := u.resumePending(ctx, cred, planRef); ok {
		return v, nil
	}

	res, err := u.gateway.CreatePaymentIntent(ctx, cred, cred.UserRef, planRef)
	if err != nil {
		metrics.IncPayment("rejected")
		return nil, err
	}

	now := u.now()
	currency := res.Currency
	if currency == "" {
		currency = u.opts.Currency
	}
	o := model.PaymentOrder{
		UID:         uuid.NewString(),
		OrderCode:   res.OrderCode,
		UserRef:     cred.UserRef,
		PlanRef:     planRef,
		PlanName:    res.PlanName,
		Description: res.Description,
		Amount:      res.Amount,
		Currency:    currency,
		Status:      res.Status,
		CheckoutURL: res.CheckoutURL,
		QRCode:      res.QRCode,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := u.orders.Save(ctx, repository.NoTX, &o); err != nil {
		// the gateway already owns the order; a missing ledger row is recoverable
		log.Error().Err(err).Int64("order_code", o.OrderCode).Msg("ledger save failed")
	}
	metrics.IncPayment(string(o.Status))
	log.Info().
		Int64("order_code", o.OrderCode).
		Int64("amount", o.Amount).
		Str("checkout_url", logging.Redact(o.CheckoutURL, u.opts.Dev)).
		Msg("payment intent created")

	sess := u.open(cred, o)
	return u.viewOf(sess), nil
}

// resumePending returns the live pending order for user+plan, if any, instead
// of creating a second one.
func (u *settlementUC) resumePending(ctx context.Context, cred model.Credential, planRef string) (*model.CheckoutView, bool) {
	since := u.now().Add(-u.opts.PollCeiling)
	o, err := u.orders.FindPending(ctx, repository.NoTX, cred.UserRef, planRef, since)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			logging.With(ctx, u.log).Warn().Err(err).Msg("pending lookup failed")
		}
		return nil, false
	}
	u.mu.Lock()
	_, wasCancelled := u.cancelled[o.OrderCode]
	u.mu.Unlock()
	if wasCancelled {
		return nil, false
	}
	logging.With(ctx, u.log).Info().Int64("order_code", o.OrderCode).Msg("resuming pending checkout")
	return u.viewOf(u.open(cred, *o)), true
}

// open returns the session for the order, starting its poller if the order is
// pending. One poller per order code.
func (u *settlementUC) open(cred model.Credential, o model.PaymentOrder) *checkoutSession {
	u.mu.Lock()
	if s, ok := u.sessions[o.OrderCode]; ok {
		u.mu.Unlock()
		s.mu.Lock()
		s.cred = cred
		s.mu.Unlock()
		return s
	}
	s := &checkoutSession{cred: cred, order: o}
	u.sessions[o.OrderCode] = s
	u.mu.Unlock()

	if o.Status.IsTerminal() {
		return s
	}
	code := o.OrderCode
	p := NewPoller(code, u.opts.PollInterval, u.opts.PollCeiling,
		func(ctx context.Context) (*model.StatusUpdate, error) {
			s.mu.Lock()
			c := s.cred
			s.mu.Unlock()
			return u.gateway.GetPaymentStatus(ctx, c, code)
		},
		func(ctx context.Context, st model.StatusUpdate) {
			u.settle(context.WithoutCancel(ctx), s, st)
		},
		u.log,
	)
	s.mu.Lock()
	s.poller = p
	s.mu.Unlock()
	p.Start(logging.WithOrderCode(u.base, code))
	return s
}

func (u *settlementUC) session(cred model.Credential, orderCode int64) (*checkoutSession, bool) {
	u.mu.Lock()
	s, ok := u.sessions[orderCode]
	u.mu.Unlock()
	if !ok {
		return nil, false
	}
	o, _ := s.snapshot()
	if o.UserRef != cred.UserRef {
		return nil, false
	}
	return s, true
}

// lookup finds the order in a live session or the ledger, scoped to the caller.
func (u *settlementUC) lookup(ctx context.Context, cred model.Credential, orderCode int64) (*checkoutSession, *model.PaymentOrder, error) {
	if cred.IsZero() {
		return nil, nil, domain.NewValidationError("user", "a signed-in user is required")
	}
	if orderCode <= 0 {
		return nil, nil, domain.NewValidationError("order_code", "order code must be positive")
	}
	if s, ok := u.session(cred, orderCode); ok {
		o, _ := s.snapshot()
		return s, &o, nil
	}
	o, err := u.orders.FindByOrderCode(ctx, repository.NoTX, orderCode)
	if err != nil {
		return nil, nil, err
	}
	if o.UserRef != cred.UserRef {
		return nil, nil, domain.ErrNotFound
	}
	return nil, o, nil
}

func (u *settlementUC) View(ctx context.Context, cred model.Credential, orderCode int64) (*model.CheckoutView, error) {
	defer logging.TraceDuration(u.log, "SettlementUC.View")()
	s, o, err := u.lookup(ctx, cred, orderCode)
	if err != nil {
		return nil, err
	}
	if s != nil {
		return u.viewOf(s), nil
	}
	v := model.NewCheckoutView(*o, false, false)
	return &v, nil
}

func (u *settlementUC) CheckNow(ctx context.Context, cred model.Credential, orderCode int64) (*model.CheckoutView, error) {
	defer logging.TraceDuration(u.log, "SettlementUC.CheckNow")()
	ctx = logging.WithOrderCode(logging.WithUserID(ctx, cred.UserRef), orderCode)

	s, o, err := u.lookup(ctx, cred, orderCode)
	if err != nil {
		return nil, err
	}
	if o.Status.IsTerminal() {
		if s != nil {
			return u.viewOf(s), nil
		}
		v := model.NewCheckoutView(*o, false, false)
		return &v, nil
	}

	st, err := u.gateway.GetPaymentStatus(ctx, cred, orderCode)
	if err != nil {
		return nil, err
	}
	if s == nil {
		// ledger rows are settled through a detached session that is never registered
		s = &checkoutSession{cred: cred, order: *o}
	}
	if st.Status.IsTerminal() {
		u.settle(ctx, s, *st)
	}
	return u.viewOf(s), nil
}

// settle applies a terminal status once and releases the poller. On completion
// the entitlement is refreshed. The session is dropped once the ledger holds
// the terminal row; View reads it from there.
func (u *settlementUC) settle(ctx context.Context, s *checkoutSession, st model.StatusUpdate) {
	s.mu.Lock()
	changed, err := s.order.Apply(st, u.now())
	o, cred, p := s.order, s.cred, s.poller
	s.mu.Unlock()
	if p != nil && (changed || o.Status.IsTerminal()) {
		p.Stop()
	}

	log := logging.With(logging.WithOrderCode(ctx, o.OrderCode), u.log)
	if err != nil {
		log.Warn().Err(err).Str("from", string(o.Status)).Str("to", string(st.Status)).Msg("ignored status transition")
		return
	}
	if !changed {
		return
	}

	recorded := u.record(ctx, o, st)
	u.clearCancelMark(o.OrderCode)

	metrics.IncPayment(string(st.Status))
	log.Info().Str("status", string(st.Status)).Msg("payment settled")

	if st.Status == model.PaymentStatusCompleted {
		metrics.AddPaymentRevenue(o.Currency, o.Amount)
		if _, err := u.access.Refresh(ctx, cred); err != nil {
			log.Warn().Err(err).Msg("entitlement refresh after payment failed")
		}
	}
	if recorded {
		u.evict(o.OrderCode, s)
	}
}

// record writes the terminal order to the ledger, inserting the row when the
// save at creation was lost. It reports whether the ledger now holds the order.
func (u *settlementUC) record(ctx context.Context, o model.PaymentOrder, st model.StatusUpdate) bool {
	log := logging.With(logging.WithOrderCode(ctx, o.OrderCode), u.log)
	updated, err := u.orders.UpdateStatusIfPending(ctx, repository.NoTX, o.OrderCode, st)
	if err != nil {
		log.Error().Err(err).Msg("ledger status update failed")
		return false
	}
	if updated {
		return true
	}
	_, err = u.orders.FindByOrderCode(ctx, repository.NoTX, o.OrderCode)
	if errors.Is(err, domain.ErrNotFound) {
		err = u.orders.Save(ctx, repository.NoTX, &o)
	}
	if err != nil {
		log.Error().Err(err).Msg("ledger row missing for settled order")
		return false
	}
	return true
}

// evict drops the registered session for code when it is still s.
func (u *settlementUC) evict(code int64, s *checkoutSession) {
	u.mu.Lock()
	if u.sessions[code] == s {
		delete(u.sessions, code)
	}
	u.mu.Unlock()
}

func (u *settlementUC) clearCancelMark(code int64) {
	u.mu.Lock()
	delete(u.cancelled, code)
	u.mu.Unlock()
}

func (u *settlementUC) Cancel(ctx context.Context, cred model.Credential, orderCode int64, reason string) {
	defer logging.TraceDuration(u.log, "SettlementUC.Cancel")()
	log := logging.With(logging.WithOrderCode(ctx, orderCode), u.log)

	s, o, err := u.lookup(ctx, cred, orderCode)
	if err != nil {
		metrics.IncPaymentCancel("skipped")
		log.Debug().Err(err).Msg("cancel skipped: order not found")
		return
	}
	if o.Status.IsTerminal() {
		metrics.IncPaymentCancel("skipped")
		return
	}
	u.mu.Lock()
	if _, done := u.cancelled[orderCode]; done {
		u.mu.Unlock()
		metrics.IncPaymentCancel("skipped")
		return
	}
	u.cancelled[orderCode] = struct{}{}
	u.mu.Unlock()

	if strings.TrimSpace(reason) == "" {
		reason = "Cancelled by user"
	}
	task := worker.Task{Name: "payment_cancel", Run: func(ctx context.Context) error {
		return u.cancelRemote(ctx, s, cred, orderCode, reason)
	}}
	if err := u.tasks.Submit(task); err != nil {
		// nothing was sent; a later Cancel may try again
		u.clearCancelMark(orderCode)
		metrics.IncPaymentCancel("error")
		log.Warn().Err(err).Msg("cancel not queued")
	}
}

func (u *settlementUC) cancelRemote(ctx context.Context, s *checkoutSession, cred model.Credential, orderCode int64, reason string) error {
	if err := u.gateway.CancelPayment(ctx, cred, orderCode, reason); err != nil {
		metrics.IncPaymentCancel("error")
		return err
	}
	metrics.IncPaymentCancel("sent")

	// read back what the gateway recorded rather than assuming it
	st, err := u.gateway.GetPaymentStatus(ctx, cred, orderCode)
	if err != nil || !st.Status.IsTerminal() {
		return nil
	}
	if s != nil {
		u.settle(ctx, s, *st)
		return nil
	}
	if _, err := u.orders.UpdateStatusIfPending(ctx, repository.NoTX, orderCode, *st); err != nil {
		return err
	}
	u.clearCancelMark(orderCode)
	return nil
}

func (u *settlementUC) Teardown(cred model.Credential, orderCode int64) {
	s, ok := u.session(cred, orderCode)
	if !ok {
		return
	}
	u.mu.Lock()
	delete(u.sessions, orderCode)
	u.mu.Unlock()

	o, p := s.snapshot()
	if p != nil {
		p.Stop()
	}
	if o.Status != model.PaymentStatusPending {
		return
	}

	u.mu.Lock()
	_, done := u.cancelled[orderCode]
	if !done {
		u.cancelled[orderCode] = struct{}{}
	}
	u.mu.Unlock()
	if done {
		return
	}
	task := worker.Task{Name: "payment_cancel", Run: func(ctx context.Context) error {
		if p != nil {
			select {
			case <-p.Done():
			case <-ctx.Done():
				u.clearCancelMark(orderCode)
				return ctx.Err()
			}
		}
		// a poll in flight during Stop may have settled the order
		if o, _ := s.snapshot(); o.Status.IsTerminal() {
			u.clearCancelMark(orderCode)
			metrics.IncPaymentCancel("skipped")
			return nil
		}
		return u.cancelRemote(ctx, nil, cred, orderCode, ReasonNavigatedAway)
	}}
	if err := u.tasks.Submit(task); err != nil {
		u.clearCancelMark(orderCode)
		metrics.IncPaymentCancel("error")
		u.log.Warn().Err(err).Int64("order_code", orderCode).Msg("teardown cancel not queued")
	}
}

func (u *settlementUC) History(ctx context.Context, cred model.Credential) ([]*model.PaymentOrder, error) {
	defer logging.TraceDuration(u.log, "SettlementUC.History")()
	if cred.IsZero() {
		return nil, domain.NewValidationError("user", "a signed-in user is required")
	}
	orders, err := u.gateway.GetPaymentHistory(ctx, cred, cred.UserRef)
	var te *domain.TransportError
	if err == nil || !errors.As(err, &te) {
		return orders, err
	}
	// unreachable gateway: serve what the ledger recorded
	log := logging.With(logging.WithUserID(ctx, cred.UserRef), u.log)
	local, lerr := u.orders.ListByUser(ctx, repository.NoTX, cred.UserRef, historyFallbackLimit)
	if lerr != nil {
		log.Warn().Err(lerr).Msg("ledger history unavailable")
		return nil, err
	}
	log.Warn().Err(err).Int("orders", len(local)).Msg("gateway history unavailable; serving ledger")
	return local, nil
}

func (u *settlementUC) Invoice(ctx context.Context, cred model.Credential, orderCode int64) (*model.Invoice, error) {
	defer logging.TraceDuration(u.log, "SettlementUC.Invoice")()
	if cred.IsZero() {
		return nil, domain.NewValidationError("user", "a signed-in user is required")
	}
	if orderCode <= 0 {
		return nil, domain.NewValidationError("order_code", "order code must be positive")
	}
	return u.gateway.GetInvoice(ctx, cred, orderCode)
}

// Reconcile reads the status with the service credential. Orders watched by a
// live poller are left alone.
func (u *settlementUC) Reconcile(ctx context.Context, o *model.PaymentOrder) (bool, error) {
	u.mu.Lock()
	s, live := u.sessions[o.OrderCode]
	u.mu.Unlock()
	if live {
		if _, p := s.snapshot(); p != nil && p.Running() {
			return false, nil
		}
	}

	svc := model.Credential{UserRef: o.UserRef}
	st, err := u.gateway.GetPaymentStatus(ctx, svc, o.OrderCode)
	if err != nil {
		return false, err
	}
	if !st.Status.IsTerminal() {
		if live {
			// no poller watches it any more; the ledger row stays for View
			u.evict(o.OrderCode, s)
		}
		return false, nil
	}
	if live {
		u.settle(ctx, s, *st)
		return true, nil
	}

	// the row lock keeps concurrent reconcilers from double-counting a settlement
	changed := false
	err = u.txm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		cur, err := u.orders.FindByOrderCode(ctx, tx, o.OrderCode)
		if err != nil {
			return err
		}
		if cur.Status != model.PaymentStatusPending {
			return nil
		}
		changed, err = u.orders.UpdateStatusIfPending(ctx, tx, o.OrderCode, *st)
		return err
	})
	if err != nil || !changed {
		return false, err
	}
	metrics.IncPayment(string(st.Status))
	if st.Status == model.PaymentStatusCompleted {
		metrics.AddPaymentRevenue(o.Currency, o.Amount)
		// no user token here; drop the cache so the next read refetches
		if err := u.access.Invalidate(ctx, o.UserRef); err != nil {
			u.log.Warn().Err(err).Str("user_ref", o.UserRef).Msg("entitlement invalidate failed")
		}
	}
	return true, nil
}

// Shutdown stops every poller and waits for them to exit.
func (u *settlementUC) Shutdown() {
	u.mu.Lock()
	var pollers []*Poller
	for _, s := range u.sessions {
		if _, p := s.snapshot(); p != nil {
			pollers = append(pollers, p)
		}
	}
	u.mu.Unlock()
	for _, p := range pollers {
		p.Stop()
		<-p.Done()
	}
}

func (u *settlementUC) viewOf(s *checkoutSession) *model.CheckoutView {
	o, p := s.snapshot()
	polling, timedOut := false, false
	if p != nil {
		polling = p.Running() && !o.Status.IsTerminal()
		timedOut = p.TimedOut()
	}
	v := model.NewCheckoutView(o, polling, timedOut)
	return &v
}
