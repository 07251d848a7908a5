// File: internal/infra/adapters/gateway/http_gateway.go
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"course-subscription/internal/domain"
	"course-subscription/internal/domain/model"
	"course-subscription/internal/domain/ports/adapter"
	"course-subscription/internal/infra/logging"
)

var (
	_ adapter.PaymentGateway     = (*HTTPGateway)(nil)
	_ adapter.EntitlementGateway = (*HTTPGateway)(nil)
	_ adapter.IdentityProvider   = (*HTTPGateway)(nil)
	_ adapter.ContentCatalog     = (*HTTPGateway)(nil)
)

const maxErrorBody = 64 << 10

// HTTPGateway is a thin REST client for the plan/order backend. It carries no
// business rules: it encodes requests, decodes the {success,message,data}
// envelope and classifies failures.
type HTTPGateway struct {
	baseURL string
	apiKey  string
	client  *http.Client
	tracer  trace.Tracer
}

func NewHTTPGateway(baseURL, apiKey string, timeout time.Duration) (*HTTPGateway, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid gateway base url %q", baseURL)
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		tracer:  otel.Tracer("course-subscription/gateway"),
	}, nil
}

type envelope struct {
	Success *bool           `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// call performs one request. out may be nil when the response body is ignored.
func (g *HTTPGateway) call(ctx context.Context, op, method, path string, cred *model.Credential, body any, out any) (err error) {
	ctx, span := g.tracer.Start(ctx, "gateway."+op, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(attribute.String("http.method", method), attribute.String("gateway.path", path))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	resp, err := g.send(ctx, op, method, path, cred, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return g.rejection(op, resp)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if errors.Is(err, io.EOF) && out == nil {
			return nil
		}
		return &domain.TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	if env.Success != nil && !*env.Success {
		return &domain.GatewayError{Op: op, StatusCode: resp.StatusCode, Message: env.Message}
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &domain.TransportError{Op: op, Err: fmt.Errorf("decode data: %w", err)}
	}
	return nil
}

func (g *HTTPGateway) send(ctx context.Context, op, method, path string, cred *model.Credential, body any) (*http.Response, error) {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s request: %w", op, err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, rdr)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", ulid.Make().String())
	if tid := logging.TraceIDFrom(ctx); tid != "" {
		req.Header.Set("X-Correlation-ID", tid)
	}
	if cred != nil && cred.Token != "" {
		req.Header.Set("Authorization", "Bearer "+cred.Token)
	} else if g.apiKey != "" {
		req.Header.Set("X-API-Key", g.apiKey)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, &domain.TransportError{Op: op, Err: err}
	}
	return resp, nil
}

// rejection turns a non-2xx answer into a GatewayError carrying the server message.
func (g *HTTPGateway) rejection(op string, resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var env envelope
	msg := ""
	if json.Unmarshal(b, &env) == nil {
		msg = env.Message
	}
	if msg == "" {
		msg = strings.TrimSpace(string(b))
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &domain.GatewayError{Op: op, StatusCode: resp.StatusCode, Message: msg}
}

// ---- payments ----

func (g *HTTPGateway) CreatePaymentIntent(ctx context.Context, cred model.Credential, userRef, planRef string) (*adapter.CreateIntentResult, error) {
	req := map[string]string{"userId": userRef, "planId": planRef}
	var out intentDTO
	if err := g.call(ctx, "create_payment_intent", http.MethodPost, "/payments/create", &cred, req, &out); err != nil {
		return nil, err
	}
	if out.OrderCode <= 0 {
		return nil, &domain.TransportError{Op: "create_payment_intent", Err: errors.New("response carries no order code")}
	}
	status := model.PaymentStatusPending
	if out.Status != "" {
		s, err := model.ParsePaymentStatus(out.Status)
		if err != nil {
			return nil, &domain.TransportError{Op: "create_payment_intent", Err: fmt.Errorf("unknown status %q", out.Status)}
		}
		status = s
	}
	amount, err := wholeUnits("amount", out.Amount)
	if err != nil {
		return nil, &domain.TransportError{Op: "create_payment_intent", Err: err}
	}
	return &adapter.CreateIntentResult{
		OrderCode:   int64(out.OrderCode),
		CheckoutURL: out.CheckoutURL,
		QRCode:      out.QRCode,
		Amount:      amount,
		Currency:    out.Currency,
		Status:      status,
		PlanName:    out.PlanName,
		Description: out.Description,
	}, nil
}

func (g *HTTPGateway) GetPaymentStatus(ctx context.Context, cred model.Credential, orderCode int64) (*model.StatusUpdate, error) {
	var out statusDTO
	path := "/payments/" + strconv.FormatInt(orderCode, 10) + "/status"
	if err := g.call(ctx, "get_payment_status", http.MethodGet, path, &cred, nil, &out); err != nil {
		return nil, err
	}
	s, err := model.ParsePaymentStatus(out.Status)
	if err != nil {
		return nil, &domain.TransportError{Op: "get_payment_status", Err: fmt.Errorf("unknown status %q", out.Status)}
	}
	return &model.StatusUpdate{Status: s, PaidAt: out.PaidAt, CancellationReason: out.CancellationReason}, nil
}

func (g *HTTPGateway) CancelPayment(ctx context.Context, cred model.Credential, orderCode int64, reason string) error {
	path := "/payments/" + strconv.FormatInt(orderCode, 10) + "/cancel"
	return g.call(ctx, "cancel_payment", http.MethodPost, path, &cred, map[string]string{"cancellationReason": reason}, nil)
}

func (g *HTTPGateway) GetPaymentHistory(ctx context.Context, cred model.Credential, userRef string) ([]*model.PaymentOrder, error) {
	var out []orderDTO
	path := "/payments/history?userId=" + url.QueryEscape(userRef)
	if err := g.call(ctx, "get_payment_history", http.MethodGet, path, &cred, nil, &out); err != nil {
		return nil, err
	}
	orders := make([]*model.PaymentOrder, 0, len(out))
	for _, d := range out {
		o, err := d.toModel()
		if err != nil {
			return nil, &domain.TransportError{Op: "get_payment_history", Err: err}
		}
		orders = append(orders, o)
	}
	return orders, nil
}

// GetInvoice returns the server-produced document as-is.
func (g *HTTPGateway) GetInvoice(ctx context.Context, cred model.Credential, orderCode int64) (*model.Invoice, error) {
	const op = "get_invoice"
	ctx, span := g.tracer.Start(ctx, "gateway."+op, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	resp, err := g.send(ctx, op, http.MethodGet, "/payments/"+strconv.FormatInt(orderCode, 10)+"/invoice", &cred, nil)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := g.rejection(op, resp)
		span.RecordError(err)
		return nil, err
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.TransportError{Op: op, Err: err}
	}
	inv := &model.Invoice{
		OrderCode:   orderCode,
		ContentType: resp.Header.Get("Content-Type"),
		Filename:    fmt.Sprintf("invoice-%d", orderCode),
		Body:        body,
	}
	if inv.ContentType == "" {
		inv.ContentType = "application/octet-stream"
	}
	return inv, nil
}

func (g *HTTPGateway) ListPlans(ctx context.Context) ([]*model.SubscriptionPlan, error) {
	var out []planDTO
	if err := g.call(ctx, "list_plans", http.MethodGet, "/subscription-plans", nil, nil, &out); err != nil {
		return nil, err
	}
	plans := make([]*model.SubscriptionPlan, 0, len(out))
	for _, d := range out {
		p, err := d.toModel()
		if err != nil {
			return nil, &domain.TransportError{Op: "list_plans", Err: err}
		}
		plans = append(plans, p)
	}
	return plans, nil
}

// ---- identity ----

func (g *HTTPGateway) Me(ctx context.Context, cred model.Credential) (*model.Identity, error) {
	var out struct {
		UID      string `json:"uid"`
		Email    string `json:"email"`
		FullName string `json:"fullName"`
	}
	if err := g.call(ctx, "me", http.MethodGet, "/auth/me", &cred, nil, &out); err != nil {
		return nil, err
	}
	return &model.Identity{UserRef: out.UID, Email: out.Email, Name: out.FullName}, nil
}

// ---- entitlement ----

func (g *HTTPGateway) CheckAccess(ctx context.Context, cred model.Credential) (*model.Entitlement, error) {
	var out accessDTO
	if err := g.call(ctx, "check_access", http.MethodGet, "/subscriptions/check-access", &cred, nil, &out); err != nil {
		return nil, err
	}
	return out.toModel(), nil
}

func (g *HTTPGateway) CheckModuleAccess(ctx context.Context, cred model.Credential, courseRef string, moduleIndex int) (*model.ModuleAccess, error) {
	q := url.Values{}
	q.Set("courseId", courseRef)
	q.Set("moduleIndex", strconv.Itoa(moduleIndex))
	var out struct {
		CanAccess bool   `json:"canAccess"`
		Reason    string `json:"reason"`
	}
	if err := g.call(ctx, "check_module_access", http.MethodGet, "/subscriptions/check-module-access?"+q.Encode(), &cred, nil, &out); err != nil {
		return nil, err
	}
	return &model.ModuleAccess{CanAccess: out.CanAccess, Reason: out.Reason}, nil
}

// ---- content ----

func (g *HTTPGateway) ListModules(ctx context.Context, cred model.Credential, courseRef string) ([]*model.Module, error) {
	var out []moduleDTO
	if err := g.call(ctx, "list_modules", http.MethodGet, "/courses/"+url.PathEscape(courseRef)+"/modules", &cred, nil, &out); err != nil {
		return nil, err
	}
	mods := make([]*model.Module, 0, len(out))
	for _, m := range out {
		mods = append(mods, m.toModel(courseRef))
	}
	return mods, nil
}

func (g *HTTPGateway) GetModule(ctx context.Context, cred model.Credential, courseRef string, index int) (*model.Module, error) {
	var out moduleDTO
	path := "/courses/" + url.PathEscape(courseRef) + "/modules/" + strconv.Itoa(index)
	if err := g.call(ctx, "get_module", http.MethodGet, path, &cred, nil, &out); err != nil {
		return nil, err
	}
	return out.toModel(courseRef), nil
}
