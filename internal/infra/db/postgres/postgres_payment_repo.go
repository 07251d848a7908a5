package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"course-subscription/internal/domain"
	"course-subscription/internal/domain/model"
	"course-subscription/internal/domain/ports/repository"
)

var _ repository.PaymentOrderRepository = (*paymentOrderRepo)(nil)

type paymentOrderRepo struct{ pool *pgxpool.Pool }

func NewPaymentOrderRepo(pool *pgxpool.Pool) *paymentOrderRepo {
	return &paymentOrderRepo{pool: pool}
}

const orderColumns = `id, order_code, user_ref, plan_ref, plan_name, description, amount, currency, status,
  checkout_url, qr_code, created_at, updated_at, paid_at, cancellation_reason`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row scanner) (*model.PaymentOrder, error) {
	o := new(model.PaymentOrder)
	var status string
	err := row.Scan(&o.UID, &o.OrderCode, &o.UserRef, &o.PlanRef, &o.PlanName, &o.Description, &o.Amount, &o.Currency, &status,
		&o.CheckoutURL, &o.QRCode, &o.CreatedAt, &o.UpdatedAt, &o.PaidAt, &o.CancellationReason)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	o.Status = model.PaymentStatus(status)
	return o, nil
}

// Save inserts the order or refreshes the gateway-owned fields of an existing row.
// A terminal row keeps its status.
func (r *paymentOrderRepo) Save(ctx context.Context, tx repository.Tx, o *model.PaymentOrder) error {
	const q = `
INSERT INTO payment_orders (` + orderColumns + `) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15
) ON CONFLICT (order_code) DO UPDATE SET
  plan_name=$5, description=$6, amount=$7, currency=$8,
  status=CASE WHEN payment_orders.status='pending' THEN $9 ELSE payment_orders.status END,
  checkout_url=$10, qr_code=$11, updated_at=$13,
  paid_at=COALESCE(payment_orders.paid_at, $14),
  cancellation_reason=COALESCE(payment_orders.cancellation_reason, $15);`

	_, err := execSQL(ctx, r.pool, tx, q, o.UID, o.OrderCode, o.UserRef, o.PlanRef, o.PlanName, o.Description, o.Amount, o.Currency,
		string(o.Status), o.CheckoutURL, o.QRCode, o.CreatedAt, o.UpdatedAt, o.PaidAt, o.CancellationReason)
	return mapErr(err)
}

func (r *paymentOrderRepo) FindByOrderCode(ctx context.Context, tx repository.Tx, orderCode int64) (*model.PaymentOrder, error) {
	q := `SELECT ` + orderColumns + ` FROM payment_orders WHERE order_code=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	row, err := pickRow(ctx, r.pool, tx, q+";", orderCode)
	if err != nil {
		return nil, err
	}
	return scanOrder(row)
}

func (r *paymentOrderRepo) FindPending(ctx context.Context, tx repository.Tx, userRef, planRef string, since time.Time) (*model.PaymentOrder, error) {
	const q = `SELECT ` + orderColumns + ` FROM payment_orders
WHERE user_ref=$1 AND plan_ref=$2 AND status='pending' AND created_at >= $3
ORDER BY created_at DESC LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, userRef, planRef, since)
	if err != nil {
		return nil, err
	}
	return scanOrder(row)
}

// UpdateStatusIfPending reports false when the row was already terminal or is missing.
func (r *paymentOrderRepo) UpdateStatusIfPending(ctx context.Context, tx repository.Tx, orderCode int64, u model.StatusUpdate) (bool, error) {
	const q = `
UPDATE payment_orders
   SET status = $2,
       paid_at = COALESCE($3, paid_at),
       cancellation_reason = COALESCE($4, cancellation_reason),
       updated_at = NOW()
 WHERE order_code = $1
   AND status = 'pending';`

	cmd, err := execSQL(ctx, r.pool, tx, q, orderCode, string(u.Status), u.PaidAt, u.CancellationReason)
	if err != nil {
		return false, mapErr(err)
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *paymentOrderRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.PaymentOrder, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + orderColumns + ` FROM payment_orders
WHERE status='pending' AND created_at < $1 ORDER BY created_at ASC LIMIT $2;`
	return r.list(ctx, tx, q, olderThan, limit)
}

func (r *paymentOrderRepo) ListByUser(ctx context.Context, tx repository.Tx, userRef string, limit int) ([]*model.PaymentOrder, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `SELECT ` + orderColumns + ` FROM payment_orders
WHERE user_ref=$1 ORDER BY created_at DESC LIMIT $2;`
	return r.list(ctx, tx, q, userRef, limit)
}

func (r *paymentOrderRepo) list(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.PaymentOrder, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []*model.PaymentOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if rows.Err() != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}
