package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cast"

	"course-subscription/internal/domain"
	"course-subscription/internal/domain/model"
	"course-subscription/internal/infra/logging"
	red "course-subscription/internal/infra/redis"
)

const maxBodyBytes = 1 << 16

type checkoutRequest struct {
	PlanID string `json:"plan_id"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// decodeBody accepts an empty body as the zero value.
func decodeBody(r *http.Request, dst any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst)
	if err != nil && !errors.Is(err, io.EOF) {
		return domain.NewValidationError("body", "request body is not valid JSON")
	}
	return nil
}

func orderCodeParam(r *http.Request) (int64, error) {
	code, err := cast.ToInt64E(chi.URLParam(r, "orderCode"))
	if err != nil || code <= 0 {
		return 0, domain.NewValidationError("order_code", "order code must be a positive number")
	}
	return code, nil
}

func (s *Server) listPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := s.plans.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Items []*model.SubscriptionPlan `json:"items"`
	}{Items: plans})
}

func (s *Server) createCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cred, err := CredentialFrom(ctx)
	if err != nil {
		writeError(w, domain.ErrUnauthenticated)
		return
	}
	var req checkoutRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if s.limiter != nil && s.opts.CheckoutPerMinute > 0 {
		ok, err := s.limiter.Allow(ctx, red.UserActionKey(cred.UserRef, "checkout"), s.opts.CheckoutPerMinute, time.Minute)
		if err != nil {
			// limiter outage must not block payments
			logging.With(ctx, s.log).Warn().Err(err).Msg("checkout rate limiter unavailable")
		} else if !ok {
			writeError(w, errRateLimited)
			return
		}
	}

	view, err := s.settlement.Create(ctx, cred, req.PlanID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (s *Server) viewCheckout(w http.ResponseWriter, r *http.Request) {
	cred, _ := CredentialFrom(r.Context())
	code, err := orderCodeParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	view, err := s.settlement.View(r.Context(), cred, code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) checkNow(w http.ResponseWriter, r *http.Request) {
	cred, _ := CredentialFrom(r.Context())
	code, err := orderCodeParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	view, err := s.settlement.CheckNow(r.Context(), cred, code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) cancelCheckout(w http.ResponseWriter, r *http.Request) {
	cred, _ := CredentialFrom(r.Context())
	code, err := orderCodeParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req cancelRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.settlement.Cancel(r.Context(), cred, code, req.Reason)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) teardownCheckout(w http.ResponseWriter, r *http.Request) {
	cred, _ := CredentialFrom(r.Context())
	code, err := orderCodeParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	s.settlement.Teardown(cred, code)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) paymentHistory(w http.ResponseWriter, r *http.Request) {
	cred, _ := CredentialFrom(r.Context())
	orders, err := s.settlement.History(r.Context(), cred)
	if err != nil {
		writeError(w, err)
		return
	}
	if orders == nil {
		orders = []*model.PaymentOrder{}
	}
	writeJSON(w, http.StatusOK, struct {
		Items []*model.PaymentOrder `json:"items"`
	}{Items: orders})
}

func (s *Server) invoice(w http.ResponseWriter, r *http.Request) {
	cred, _ := CredentialFrom(r.Context())
	code, err := orderCodeParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	inv, err := s.settlement.Invoice(r.Context(), cred, code)
	if err != nil {
		writeError(w, err)
		return
	}
	ct := inv.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	if inv.Filename != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", inv.Filename))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(inv.Body)
}

func (s *Server) checkAccess(w http.ResponseWriter, r *http.Request) {
	cred, _ := CredentialFrom(r.Context())
	writeJSON(w, http.StatusOK, s.access.CheckAccess(r.Context(), cred))
}

// refreshAccess returns the fail-closed summary alongside 200 so views can
// render it; the error text travels in the summary.
func (s *Server) refreshAccess(w http.ResponseWriter, r *http.Request) {
	cred, _ := CredentialFrom(r.Context())
	summary, _ := s.access.Refresh(r.Context(), cred)
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) moduleList(w http.ResponseWriter, r *http.Request) {
	cred, _ := CredentialFrom(r.Context())
	view, err := s.content.ModuleList(r.Context(), cred, chi.URLParam(r, "courseRef"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) moduleDetail(w http.ResponseWriter, r *http.Request) {
	cred, _ := CredentialFrom(r.Context())
	index, err := cast.ToIntE(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, domain.NewValidationError("index", "module index must be a number"))
		return
	}
	view, err := s.content.ModuleDetail(r.Context(), cred, chi.URLParam(r, "courseRef"), index)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
