package repository

import (
	"context"
	"time"

	"course-subscription/internal/domain/model"
)

// PaymentOrderRepository is the local ledger of intents the gateway accepted.
// Rows mirror gateway state; they are never the source of truth for it.
type PaymentOrderRepository interface {
	Save(ctx context.Context, tx Tx, o *model.PaymentOrder) error
	FindByOrderCode(ctx context.Context, tx Tx, orderCode int64) (*model.PaymentOrder, error)
	// FindPending returns the newest pending order for user+plan created after since, or domain.ErrNotFound.
	FindPending(ctx context.Context, tx Tx, userRef, planRef string, since time.Time) (*model.PaymentOrder, error)
	// UpdateStatusIfPending writes a terminal status only when the row is still pending.
	UpdateStatusIfPending(ctx context.Context, tx Tx, orderCode int64, u model.StatusUpdate) (bool, error)
	ListPendingOlderThan(ctx context.Context, tx Tx, olderThan time.Time, limit int) ([]*model.PaymentOrder, error)
	ListByUser(ctx context.Context, tx Tx, userRef string, limit int) ([]*model.PaymentOrder, error)
}
