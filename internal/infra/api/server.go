package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"course-subscription/internal/domain/model"
	"course-subscription/internal/usecase"
)

// Limiter is a fixed-window rate limiter keyed by caller and action.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// PlanLister reads the plan catalog.
type PlanLister interface {
	List(ctx context.Context) ([]*model.SubscriptionPlan, error)
}

type Options struct {
	Port              int
	RequestTimeout    time.Duration
	CheckoutPerMinute int
}

// Server exposes settlement, access and content operations to the views.
type Server struct {
	settlement usecase.SettlementUseCase
	access     usecase.AccessUseCase
	content    usecase.ContentUseCase
	plans      PlanLister
	auth       *Authenticator
	limiter    Limiter
	opts       Options
	log        *zerolog.Logger

	srv *http.Server
}

func NewServer(
	settlement usecase.SettlementUseCase,
	access usecase.AccessUseCase,
	content usecase.ContentUseCase,
	plans PlanLister,
	auth *Authenticator,
	limiter Limiter,
	opts Options,
	logger *zerolog.Logger,
) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Second
	}
	l := logger.With().Str("component", "HTTPServer").Logger()
	return &Server{
		settlement: settlement,
		access:     access,
		content:    content,
		plans:      plans,
		auth:       auth,
		limiter:    limiter,
		opts:       opts,
		log:        &l,
	}
}

// Routes builds the router. Everything under /api/v1 needs a bearer token.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID(), Recover(s.log), RequestLog(s.log))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(Timeout(s.opts.RequestTimeout), s.auth.Middleware)

		r.Get("/plans", s.listPlans)

		r.Post("/checkout", s.createCheckout)
		r.Get("/checkout/{orderCode}", s.viewCheckout)
		r.Post("/checkout/{orderCode}/check", s.checkNow)
		r.Post("/checkout/{orderCode}/cancel", s.cancelCheckout)
		r.Delete("/checkout/{orderCode}", s.teardownCheckout)

		r.Get("/payments/history", s.paymentHistory)
		r.Get("/payments/{orderCode}/invoice", s.invoice)

		r.Get("/access", s.checkAccess)
		r.Post("/access/refresh", s.refreshAccess)

		r.Get("/courses/{courseRef}/modules", s.moduleList)
		r.Get("/courses/{courseRef}/modules/{index}", s.moduleDetail)
	})
	return r
}

// Start blocks until the listener stops. http.ErrServerClosed is not an error.
func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.opts.Port),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info().Int("port", s.opts.Port).Msg("HTTP server listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
