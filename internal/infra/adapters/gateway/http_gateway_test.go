package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"course-subscription/internal/domain"
	"course-subscription/internal/domain/model"
)

var testCred = model.Credential{UserRef: "u-1", Token: "tok-1"}

func newTestGateway(t *testing.T, h http.HandlerFunc) *HTTPGateway {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	g, err := NewHTTPGateway(srv.URL, "svc-key", 2*time.Second)
	require.NoError(t, err)
	return g
}

func writeEnvelope(w http.ResponseWriter, code int, success bool, msg string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": success, "message": msg, "data": data})
}

func TestNewHTTPGateway_RejectsBadURL(t *testing.T) {
	_, err := NewHTTPGateway("not a url", "", time.Second)
	assert.Error(t, err)
}

func TestCreatePaymentIntent(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/payments/create", r.URL.Path)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "u-1", body["userId"])
		assert.Equal(t, "plan-1", body["planId"])

		writeEnvelope(w, http.StatusOK, true, "", map[string]any{
			"orderCode":   "424242",
			"checkoutUrl": "https://pay/424242",
			"qrCode":      "QR",
			"amount":      "99000.00",
			"currency":    "VND",
			"status":      "PENDING",
			"planName":    "Monthly",
		})
	})

	res, err := g.CreatePaymentIntent(context.Background(), testCred, "u-1", "plan-1")
	require.NoError(t, err)
	assert.Equal(t, int64(424242), res.OrderCode)
	assert.Equal(t, int64(99000), res.Amount)
	assert.Equal(t, model.PaymentStatusPending, res.Status)
	assert.Equal(t, "https://pay/424242", res.CheckoutURL)
}

func TestCreatePaymentIntent_MissingOrderCode(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, true, "", map[string]any{"checkoutUrl": "x"})
	})
	_, err := g.CreatePaymentIntent(context.Background(), testCred, "u-1", "plan-1")
	var te *domain.TransportError
	assert.ErrorAs(t, err, &te)
}

func TestGetPaymentStatus_Synonyms(t *testing.T) {
	paid := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payments/77/status", r.URL.Path)
		writeEnvelope(w, http.StatusOK, true, "", map[string]any{"status": "PAID", "paidAt": paid})
	})
	u, err := g.GetPaymentStatus(context.Background(), testCred, 77)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusCompleted, u.Status)
	require.NotNil(t, u.PaidAt)
	assert.True(t, paid.Equal(*u.PaidAt))
}

func TestGetPaymentStatus_UnknownStatusIsTransportError(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, true, "", map[string]any{"status": "weird"})
	})
	_, err := g.GetPaymentStatus(context.Background(), testCred, 1)
	var te *domain.TransportError
	assert.ErrorAs(t, err, &te)
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		handler   http.HandlerFunc
		gateway   bool
		status    int
		message   string
		notFound  bool
		transport bool
	}{
		{
			name: "non-2xx with envelope message",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeEnvelope(w, http.StatusUnprocessableEntity, false, "plan is inactive", nil)
			},
			gateway: true, status: 422, message: "plan is inactive",
		},
		{
			name: "404 unwraps to not found",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "missing", http.StatusNotFound)
			},
			gateway: true, status: 404, message: "missing", notFound: true,
		},
		{
			name: "2xx with success=false",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeEnvelope(w, http.StatusOK, false, "already cancelled", nil)
			},
			gateway: true, status: 200, message: "already cancelled",
		},
		{
			name: "garbled body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, "<html>")
			},
			transport: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGateway(t, tt.handler)
			_, err := g.GetPaymentStatus(context.Background(), testCred, 9)
			require.Error(t, err)
			if tt.gateway {
				var ge *domain.GatewayError
				require.ErrorAs(t, err, &ge)
				assert.Equal(t, tt.status, ge.StatusCode)
				assert.Equal(t, tt.message, ge.Message)
			}
			if tt.transport {
				var te *domain.TransportError
				assert.ErrorAs(t, err, &te)
			}
			assert.Equal(t, tt.notFound, errors.Is(err, domain.ErrNotFound))
		})
	}
}

func TestTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	g, err := NewHTTPGateway(url, "", time.Second)
	require.NoError(t, err)
	_, err = g.GetPaymentStatus(context.Background(), testCred, 1)
	var te *domain.TransportError
	require.ErrorAs(t, err, &te)
	assert.True(t, domain.Retryable(err))
}

func TestCancelPayment_SendsReason(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payments/5/cancel", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "User navigated away", body["cancellationReason"])
		writeEnvelope(w, http.StatusOK, true, "cancelled", nil)
	})
	assert.NoError(t, g.CancelPayment(context.Background(), testCred, 5, "User navigated away"))
}

func TestListPlans_UsesServiceKey(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		assert.Equal(t, "svc-key", r.Header.Get("X-API-Key"))
		writeEnvelope(w, http.StatusOK, true, "", []map[string]any{
			{"uid": "p1", "planName": "Monthly", "price": 99000, "currency": "VND", "durationDays": "30"},
			{"uid": "p2", "planName": "Lifetime", "price": "990000", "currency": "VND", "durationDays": nil},
		})
	})
	plans, err := g.ListPlans(context.Background())
	require.NoError(t, err)
	require.Len(t, plans, 2)
	assert.Equal(t, 30, plans[0].DurationDays)
	assert.True(t, plans[1].Lifetime())
	assert.Equal(t, int64(990000), plans[1].Price)
}

func TestCheckAccess(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, true, "", map[string]any{
			"hasAccess":         true,
			"canViewAllModules": true,
			"maxFreeModules":    3,
			"subscriptionInfo": map[string]any{
				"orderId":   "o-1",
				"planId":    "p1",
				"planName":  "Monthly",
				"startDate": "2026-01-01T00:00:00Z",
				"endDate":   "2026-01-31T00:00:00Z",
			},
		})
	})
	e, err := g.CheckAccess(context.Background(), testCred)
	require.NoError(t, err)
	assert.True(t, e.HasAccess)
	assert.Equal(t, 3, e.MaxFreeModules)
	require.NotNil(t, e.Subscription)
	require.NotNil(t, e.Subscription.EndAt)
	assert.Equal(t, "Monthly", e.Subscription.PlanName)
}

func TestCheckAccess_DefaultsMaxFree(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, true, "", map[string]any{"hasAccess": false})
	})
	e, err := g.CheckAccess(context.Background(), testCred)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultMaxFreeModules, e.MaxFreeModules)
	assert.Nil(t, e.Subscription)
}

func TestCheckModuleAccess_Query(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "c-1", r.URL.Query().Get("courseId"))
		assert.Equal(t, "4", r.URL.Query().Get("moduleIndex"))
		writeEnvelope(w, http.StatusOK, true, "", map[string]any{"canAccess": false, "reason": "Subscribe to unlock"})
	})
	a, err := g.CheckModuleAccess(context.Background(), testCred, "c-1", 4)
	require.NoError(t, err)
	assert.False(t, a.CanAccess)
	assert.Equal(t, "Subscribe to unlock", a.Reason)
}

func TestGetInvoice_PassesBodyThrough(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4"))
	})
	inv, err := g.GetInvoice(context.Background(), testCred, 12)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", inv.ContentType)
	assert.Equal(t, []byte("%PDF-1.4"), inv.Body)
}

func TestMemoryGateway_SettlesAfterReads(t *testing.T) {
	g := NewMemoryGateway(2)
	ctx := context.Background()
	res, err := g.CreatePaymentIntent(ctx, testCred, "u-1", "monthly")
	require.NoError(t, err)

	u, err := g.GetPaymentStatus(ctx, testCred, res.OrderCode)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusPending, u.Status)

	u, err = g.GetPaymentStatus(ctx, testCred, res.OrderCode)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusCompleted, u.Status)

	e, err := g.CheckAccess(ctx, testCred)
	require.NoError(t, err)
	assert.True(t, e.HasAccess)

	err = g.CancelPayment(ctx, testCred, res.OrderCode, "late")
	var ge *domain.GatewayError
	assert.ErrorAs(t, err, &ge)
}
