package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"course-subscription/internal/domain/model"
	"course-subscription/internal/domain/ports/repository"
)

// OrderReconciler settles one ledger order against the gateway.
type OrderReconciler interface {
	Reconcile(ctx context.Context, o *model.PaymentOrder) (bool, error)
}

// PaymentReconciler scans the ledger for pending orders that no checkout view
// is watching any more and asks the gateway for their final status. This covers
// views closed before settlement and process restarts mid-poll.
type PaymentReconciler struct {
	uc         OrderReconciler
	orders     repository.PaymentOrderRepository
	staleAfter time.Duration // how old a pending order must be to re-check
	batch      int
	log        *zerolog.Logger
}

func NewPaymentReconciler(uc OrderReconciler, orders repository.PaymentOrderRepository, staleAfter time.Duration, batch int, logger *zerolog.Logger) *PaymentReconciler {
	if staleAfter <= 0 {
		staleAfter = 10 * time.Minute
	}
	if batch <= 0 {
		batch = 200
	}
	l := logger.With().Str("component", "PaymentReconciler").Logger()
	return &PaymentReconciler{uc: uc, orders: orders, staleAfter: staleAfter, batch: batch, log: &l}
}

func (w *PaymentReconciler) Name() string { return "payment_reconcile" }

// RunOnce returns how many orders reached a terminal status. A failing order
// does not stop the scan.
func (w *PaymentReconciler) RunOnce(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-w.staleAfter)
	pending, err := w.orders.ListPendingOlderThan(ctx, repository.NoTX, cutoff, w.batch)
	if err != nil {
		return 0, err
	}
	settled := 0
	for _, o := range pending {
		if ctx.Err() != nil {
			return settled, ctx.Err()
		}
		changed, err := w.uc.Reconcile(ctx, o)
		if err != nil {
			w.log.Warn().Err(err).Int64("order_code", o.OrderCode).Msg("reconcile failed")
			continue
		}
		if changed {
			settled++
			w.log.Info().Int64("order_code", o.OrderCode).Msg("order reconciled")
		}
	}
	return settled, nil
}
