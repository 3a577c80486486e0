package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"collective-ledger/internal/domain"
	"collective-ledger/internal/domain/model"
	"collective-ledger/internal/domain/ports/repository"
)

// Compile-time check
var _ repository.OrderRepository = (*orderRepo)(nil)

type orderRepo struct {
	pool *pgxpool.Pool
}

func NewOrderRepo(pool *pgxpool.Pool) *orderRepo {
	return &orderRepo{pool: pool}
}

// Orders are read with their subscription joined in; s.* columns are NULL
// for one-time orders.
const orderSelect = `SELECT
	o.id, o.from_account_id, o.to_account_id, o.created_by_account_id, o.amount,
	o.platform_tip_amount, o.currency, o.status, o.interval, o.payment_service,
	o.payment_token, o.description, o.created_at, o.updated_at,
	s.id, s.is_active, s.next_charge_date, s.next_period_start, s.billing_day, s.charge_retry_count,
	s.last_charge_attempt_at, s.last_failure_reason, s.deactivated_at, s.deactivation_reason,
	s.created_at, s.updated_at
FROM orders o
LEFT JOIN subscriptions s ON s.order_id = o.id`

func (r *orderRepo) Create(ctx context.Context, tx repository.Tx, o *model.Order) error {
	if o == nil {
		return domain.ErrInvalidArgument
	}
	now := time.Now()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = o.CreatedAt
	if o.Status == "" {
		o.Status = model.OrderStatusNew
	}
	row, err := pickRow(ctx, r.pool, tx, `
INSERT INTO orders (from_account_id, to_account_id, created_by_account_id, amount,
	platform_tip_amount, currency, status, interval, payment_service, payment_token,
	description, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
RETURNING id;`,
		o.FromAccountID, o.ToAccountID, o.CreatedByAccountID, o.Amount,
		o.PlatformTipAmount, o.Currency, o.Status, o.Interval, o.PaymentMethod.Service, o.PaymentMethod.Token,
		o.Description, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if err := row.Scan(&o.ID); err != nil {
		return mapWriteErr(err)
	}
	return nil
}

func (r *orderRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.Order, error) {
	q := forUpdate(orderSelect+` WHERE o.id=$1`, tx, "o")
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	o, err := scanOrder(row)
	if err != nil {
		return nil, mapReadErr(err, domain.ErrOrderNotFound)
	}
	return o, nil
}

func (r *orderRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id int64, status model.OrderStatus) error {
	cmd, err := execSQL(ctx, r.pool, tx, `UPDATE orders SET status=$2, updated_at=NOW() WHERE id=$1;`, id, status)
	if err != nil {
		return mapWriteErr(err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func (r *orderRepo) FindDue(ctx context.Context, tx repository.Tx, now time.Time, afterID int64, limit int) ([]*model.Order, error) {
	return r.list(ctx, tx, orderSelect+`
WHERE s.is_active AND s.next_charge_date <= $1 AND o.id > $2
ORDER BY o.id LIMIT $3;`, now, afterID, limit)
}

func (r *orderRepo) ListRecurringByAccount(ctx context.Context, tx repository.Tx, accountID int64) ([]*model.Order, error) {
	return r.list(ctx, tx, orderSelect+`
WHERE s.is_active AND (o.to_account_id=$1 OR o.from_account_id=$1)
ORDER BY o.id;`, accountID)
}

func (r *orderRepo) list(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.Order, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, o)
	}
	if rows.Err() != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func scanOrder(row pgx.Row) (*model.Order, error) {
	var (
		o model.Order

		// subscription side of the LEFT JOIN
		subID                      *int64
		isActive                   *bool
		retryCount, billingDay     *int
		failureReason, deactReason *string
		nextCharge, nextPeriod     *time.Time
		lastAttempt, deactivated   *time.Time
		subCreated, subUpdated     *time.Time
	)
	if err := row.Scan(
		&o.ID, &o.FromAccountID, &o.ToAccountID, &o.CreatedByAccountID, &o.Amount,
		&o.PlatformTipAmount, &o.Currency, &o.Status, &o.Interval, &o.PaymentMethod.Service,
		&o.PaymentMethod.Token, &o.Description, &o.CreatedAt, &o.UpdatedAt,
		&subID, &isActive, &nextCharge, &nextPeriod, &billingDay, &retryCount,
		&lastAttempt, &failureReason, &deactivated, &deactReason,
		&subCreated, &subUpdated,
	); err != nil {
		return nil, err
	}
	if subID != nil {
		o.Subscription = &model.Subscription{
			ID:                  *subID,
			OrderID:             o.ID,
			Interval:            o.Interval,
			IsActive:            deref(isActive),
			NextChargeDate:      nextCharge,
			NextPeriodStart:     nextPeriod,
			BillingDay:          deref(billingDay),
			ChargeRetryCount:    deref(retryCount),
			LastChargeAttemptAt: lastAttempt,
			LastFailureReason:   deref(failureReason),
			DeactivatedAt:       deactivated,
			DeactivationReason:  deref(deactReason),
			CreatedAt:           deref(subCreated),
			UpdatedAt:           deref(subUpdated),
		}
	}
	return &o, nil
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
