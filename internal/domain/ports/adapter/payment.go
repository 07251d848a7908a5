package adapter

import (
	"context"

	"course-subscription/internal/domain/model"
)

// CreateIntentResult is the checkout artifact returned by the gateway.
type CreateIntentResult struct {
	OrderCode   int64
	CheckoutURL string
	QRCode      string
	Amount      int64
	Currency    string
	Status      model.PaymentStatus
	PlanName    string
	Description string
}

// PaymentGateway is the hex port for the external Plan/Order Data Gateway.
// Implementations are pure transport: no business rules. Failures are
// *domain.TransportError when no response arrived and *domain.GatewayError
// when the server rejected the request.
type PaymentGateway interface {
	CreatePaymentIntent(ctx context.Context, cred model.Credential, userRef, planRef string) (*CreateIntentResult, error)
	GetPaymentStatus(ctx context.Context, cred model.Credential, orderCode int64) (*model.StatusUpdate, error)
	CancelPayment(ctx context.Context, cred model.Credential, orderCode int64, reason string) error
	GetPaymentHistory(ctx context.Context, cred model.Credential, userRef string) ([]*model.PaymentOrder, error)
	GetInvoice(ctx context.Context, cred model.Credential, orderCode int64) (*model.Invoice, error)
	ListPlans(ctx context.Context) ([]*model.SubscriptionPlan, error)
}

// EntitlementGateway answers the server-side access questions.
type EntitlementGateway interface {
	CheckAccess(ctx context.Context, cred model.Credential) (*model.Entitlement, error)
	CheckModuleAccess(ctx context.Context, cred model.Credential, courseRef string, moduleIndex int) (*model.ModuleAccess, error)
}

// IdentityProvider refreshes the caller identity from the server.
type IdentityProvider interface {
	Me(ctx context.Context, cred model.Credential) (*model.Identity, error)
}

// ContentCatalog is the out-of-scope content service, consumed for module
// count, index and opaque payload only.
type ContentCatalog interface {
	ListModules(ctx context.Context, cred model.Credential, courseRef string) ([]*model.Module, error)
	GetModule(ctx context.Context, cred model.Credential, courseRef string, index int) (*model.Module, error)
}
