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
var _ repository.SubscriptionRepository = (*subscriptionRepo)(nil)

type subscriptionRepo struct {
	pool *pgxpool.Pool
}

func NewSubscriptionRepo(pool *pgxpool.Pool) *subscriptionRepo {
	return &subscriptionRepo{pool: pool}
}

const subscriptionColumns = `id, order_id, interval, is_active, next_charge_date, next_period_start,
	billing_day, charge_retry_count, last_charge_attempt_at, last_failure_reason, deactivated_at,
	deactivation_reason, created_at, updated_at`

func (r *subscriptionRepo) Create(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	if s == nil || s.OrderID == 0 {
		return domain.ErrInvalidArgument
	}
	now := time.Now()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = now
	}
	if s.BillingDay == 0 && s.NextPeriodStart != nil {
		s.BillingDay = s.NextPeriodStart.Day()
	}
	row, err := pickRow(ctx, r.pool, tx, `
INSERT INTO subscriptions (order_id, interval, is_active, next_charge_date, next_period_start,
	billing_day, charge_retry_count, last_charge_attempt_at, last_failure_reason, deactivated_at,
	deactivation_reason, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
RETURNING id;`,
		s.OrderID, s.Interval, s.IsActive, s.NextChargeDate, s.NextPeriodStart,
		s.BillingDay, s.ChargeRetryCount, s.LastChargeAttemptAt, s.LastFailureReason, s.DeactivatedAt,
		s.DeactivationReason, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if err := row.Scan(&s.ID); err != nil {
		return mapWriteErr(err)
	}
	return nil
}

func (r *subscriptionRepo) FindByOrderID(ctx context.Context, tx repository.Tx, orderID int64) (*model.Subscription, error) {
	q := forUpdate(`SELECT `+subscriptionColumns+` FROM subscriptions WHERE order_id=$1`, tx, "")
	row, err := pickRow(ctx, r.pool, tx, q, orderID)
	if err != nil {
		return nil, err
	}
	s, err := scanSubscription(row)
	if err != nil {
		return nil, mapReadErr(err, domain.ErrSubscriptionNotFound)
	}
	return s, nil
}

func (r *subscriptionRepo) Save(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	if s == nil || s.ID == 0 {
		return domain.ErrInvalidArgument
	}
	s.UpdatedAt = time.Now()
	cmd, err := execSQL(ctx, r.pool, tx, `
UPDATE subscriptions SET
	is_active=$2, next_charge_date=$3, next_period_start=$4, charge_retry_count=$5,
	last_charge_attempt_at=$6, last_failure_reason=$7, deactivated_at=$8,
	deactivation_reason=$9, updated_at=$10
WHERE id=$1;`,
		s.ID, s.IsActive, s.NextChargeDate, s.NextPeriodStart, s.ChargeRetryCount,
		s.LastChargeAttemptAt, s.LastFailureReason, s.DeactivatedAt,
		s.DeactivationReason, s.UpdatedAt,
	)
	if err != nil {
		return mapWriteErr(err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrSubscriptionNotFound
	}
	return nil
}

// CountByState derives the billing state the same way model.Subscription.State does.
func (r *subscriptionRepo) CountByState(ctx context.Context, tx repository.Tx) (map[model.BillingState]int, error) {
	rows, err := queryRows(ctx, r.pool, tx, `
SELECT CASE
	WHEN NOT is_active THEN 'DEACTIVATED'
	WHEN charge_retry_count > 0 THEN 'PAST_DUE'
	ELSE 'ACTIVE'
END AS state, COUNT(*)
FROM subscriptions GROUP BY 1;`)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	out := map[model.BillingState]int{}
	for rows.Next() {
		var (
			state string
			n     int
		)
		if err := rows.Scan(&state, &n); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out[model.BillingState(state)] = n
	}
	if rows.Err() != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func scanSubscription(row pgx.Row) (*model.Subscription, error) {
	var s model.Subscription
	if err := row.Scan(
		&s.ID, &s.OrderID, &s.Interval, &s.IsActive, &s.NextChargeDate, &s.NextPeriodStart,
		&s.BillingDay, &s.ChargeRetryCount, &s.LastChargeAttemptAt, &s.LastFailureReason, &s.DeactivatedAt,
		&s.DeactivationReason, &s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &s, nil
}
