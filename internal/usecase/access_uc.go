package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"course-subscription/internal/domain"
	"course-subscription/internal/domain/model"
	"course-subscription/internal/domain/ports/adapter"
	"course-subscription/internal/domain/ports/repository"
	"course-subscription/internal/infra/logging"
	"course-subscription/internal/infra/metrics"
)

var _ AccessUseCase = (*accessUC)(nil)

// AccessUseCase resolves what an account may see. Every read path fails closed.
type AccessUseCase interface {
	CheckAccess(ctx context.Context, cred model.Credential) model.AccessSummary
	CheckModuleAccess(ctx context.Context, cred model.Credential, courseRef string, moduleIndex int) model.ModuleAccess
	// Refresh replaces the cached entitlement with a fresh server answer.
	Refresh(ctx context.Context, cred model.Credential) (model.AccessSummary, error)
	// Invalidate drops the cached entitlement when no caller credential is at hand.
	Invalidate(ctx context.Context, userRef string) error
}

type AccessOptions struct {
	Freshness             time.Duration
	DefaultMaxFreeModules int
}

type accessUC struct {
	gateway adapter.EntitlementGateway
	cache   repository.EntitlementCache
	opts    AccessOptions
	now     func() time.Time
	log     *zerolog.Logger
}

func NewAccessUseCase(gateway adapter.EntitlementGateway, cache repository.EntitlementCache, opts AccessOptions, logger *zerolog.Logger) *accessUC {
	if opts.Freshness <= 0 {
		opts.Freshness = 30 * time.Second
	}
	if opts.DefaultMaxFreeModules <= 0 {
		opts.DefaultMaxFreeModules = model.DefaultMaxFreeModules
	}
	l := logger.With().Str("component", "AccessUC").Logger()
	return &accessUC{gateway: gateway, cache: cache, opts: opts, now: time.Now, log: &l}
}

func (u *accessUC) CheckAccess(ctx context.Context, cred model.Credential) model.AccessSummary {
	defer logging.TraceDuration(u.log, "AccessUC.CheckAccess")()

	if cred.IsZero() {
		metrics.IncAccessDecision("account", "fail_closed")
		return model.FailClosed(u.opts.DefaultMaxFreeModules, domain.UserMessage(domain.ErrUnauthenticated))
	}

	now := u.now()
	e, err := u.cache.Get(ctx, cred.UserRef)
	switch {
	case err == nil && e.Fresh(now, u.opts.Freshness):
		s := e.Decide(now)
		metrics.IncAccessDecision("account", grantLabel(s.HasAccess))
		return s
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		logging.With(ctx, u.log).Warn().Err(err).Msg("entitlement cache read failed")
	}

	s, err := u.Refresh(ctx, cred)
	if err != nil {
		return s
	}
	metrics.IncAccessDecision("account", grantLabel(s.HasAccess))
	return s
}

func (u *accessUC) Refresh(ctx context.Context, cred model.Credential) (model.AccessSummary, error) {
	defer logging.TraceDuration(u.log, "AccessUC.Refresh")()

	if cred.IsZero() {
		return u.failClosed(ctx, "", domain.ErrUnauthenticated), domain.ErrUnauthenticated
	}

	e, err := u.gateway.CheckAccess(ctx, cred)
	if err != nil {
		// nothing stale may outlive a failed refresh
		if ierr := u.cache.Invalidate(ctx, cred.UserRef); ierr != nil {
			logging.With(ctx, u.log).Warn().Err(ierr).Msg("entitlement invalidate failed")
		}
		logging.With(ctx, u.log).Warn().Err(err).Str("user_ref", cred.UserRef).Msg("entitlement check failed; denying")
		return u.failClosed(ctx, cred.UserRef, err), err
	}

	now := u.now()
	e.FetchedAt = now
	if e.MaxFreeModules < 0 {
		e.MaxFreeModules = 0
	}
	if err := u.cache.Put(ctx, cred.UserRef, e); err != nil {
		logging.With(ctx, u.log).Warn().Err(err).Msg("entitlement cache write failed")
	}
	return e.Decide(now), nil
}

func (u *accessUC) Invalidate(ctx context.Context, userRef string) error {
	return u.cache.Invalidate(ctx, userRef)
}

// CheckModuleAccess applies the free-tier rule locally and asks the server only
// for a denial reason, or when the server may know about a newer grant.
func (u *accessUC) CheckModuleAccess(ctx context.Context, cred model.Credential, courseRef string, moduleIndex int) model.ModuleAccess {
	defer logging.TraceDuration(u.log, "AccessUC.CheckModuleAccess")()

	s := u.CheckAccess(ctx, cred)
	if model.CanOpenModule(moduleIndex, s.MaxFreeModules, s.HasAccess) {
		metrics.IncAccessDecision("module", moduleLabel(moduleIndex, s.MaxFreeModules))
		return model.ModuleAccess{CanAccess: true}
	}
	if s.Error != "" {
		metrics.IncAccessDecision("module", "fail_closed")
		return model.ModuleAccess{CanAccess: false, Error: s.Error}
	}

	srv, err := u.gateway.CheckModuleAccess(ctx, cred, courseRef, moduleIndex)
	if err != nil {
		metrics.IncAccessDecision("module", "fail_closed")
		return model.ModuleAccess{CanAccess: false, Error: domain.UserMessage(err)}
	}
	if srv.CanAccess {
		// the server knows of a grant our cached entitlement predates
		fresh, err := u.Refresh(ctx, cred)
		if err != nil || !model.CanOpenModule(moduleIndex, fresh.MaxFreeModules, fresh.HasAccess) {
			metrics.IncAccessDecision("module", "denied")
			return model.ModuleAccess{CanAccess: false, Reason: srv.Reason, Error: fresh.Error}
		}
		metrics.IncAccessDecision("module", "granted")
		return model.ModuleAccess{CanAccess: true}
	}
	metrics.IncAccessDecision("module", "denied")
	return model.ModuleAccess{CanAccess: false, Reason: srv.Reason}
}

func (u *accessUC) failClosed(ctx context.Context, userRef string, cause error) model.AccessSummary {
	metrics.IncAccessDecision("account", "fail_closed")
	maxFree := u.opts.DefaultMaxFreeModules
	if userRef != "" {
		if n, ok := u.cache.LastMaxFree(ctx, userRef); ok {
			maxFree = n
		}
	}
	return model.FailClosed(maxFree, domain.UserMessage(cause))
}

func grantLabel(granted bool) string {
	if granted {
		return "granted"
	}
	return "denied"
}

func moduleLabel(index, maxFree int) string {
	if index >= 0 && index < maxFree {
		return "free"
	}
	return "granted"
}
