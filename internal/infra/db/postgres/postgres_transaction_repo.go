package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"

	"collective-ledger/internal/domain"
	"collective-ledger/internal/domain/model"
	"collective-ledger/internal/domain/ports/repository"
)

// Compile-time check
var _ repository.TransactionRepository = (*transactionRepo)(nil)

type transactionRepo struct {
	pool *pgxpool.Pool
}

func NewTransactionRepo(pool *pgxpool.Pool) *transactionRepo {
	return &transactionRepo{pool: pool}
}

const transactionColumns = `id, transaction_group::text, type, kind, description,
	amount, currency, host_currency, host_currency_fx_rate::text, amount_in_host_currency,
	net_amount_in_collective_currency, host_fee_in_host_currency, platform_fee_in_host_currency,
	payment_processor_fee_in_host_currency, is_refund, refund_transaction_id, order_id, expense_id,
	from_collective_id, collective_id, host_collective_id, processor_charge_id, created_at, deleted_at`

func (r *transactionRepo) Insert(ctx context.Context, tx repository.Tx, t *model.Transaction) error {
	if t == nil {
		return domain.ErrInvalidArgument
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	row, err := pickRow(ctx, r.pool, tx, `
INSERT INTO transactions (
	transaction_group, type, kind, description, amount, currency, host_currency,
	host_currency_fx_rate, amount_in_host_currency, net_amount_in_collective_currency,
	host_fee_in_host_currency, platform_fee_in_host_currency, payment_processor_fee_in_host_currency,
	is_refund, refund_transaction_id, order_id, expense_id, from_collective_id, collective_id,
	host_collective_id, processor_charge_id, created_at
) VALUES ($1::uuid,$2,$3,$4,$5,$6,$7,$8::numeric,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
RETURNING id;`,
		t.TransactionGroup.String(), t.Type, t.Kind, t.Description, t.Amount, t.Currency, t.HostCurrency,
		t.HostCurrencyFxRate.String(), t.AmountInHostCurrency, t.NetAmountInCollectiveCurrency,
		t.HostFeeInHostCurrency, t.PlatformFeeInHostCurrency, t.PaymentProcessorFeeInHostCurrency,
		t.IsRefund, t.RefundTransactionID, t.OrderID, t.ExpenseID, t.FromCollectiveID, t.CollectiveID,
		t.HostCollectiveID, t.ProcessorChargeID, t.CreatedAt,
	)
	if err != nil {
		return err
	}
	if err := row.Scan(&t.ID); err != nil {
		return mapWriteErr(err)
	}
	return nil
}

func (r *transactionRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.Transaction, error) {
	q := forUpdate(`SELECT `+transactionColumns+` FROM transactions WHERE id=$1`, tx, "")
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	t, err := scanTransaction(row)
	if err != nil {
		return nil, mapReadErr(err, domain.ErrTransactionNotFound)
	}
	return t, nil
}

func (r *transactionRepo) FindByGroup(ctx context.Context, tx repository.Tx, group uuid.UUID) ([]*model.Transaction, error) {
	return r.list(ctx, tx, `SELECT `+transactionColumns+` FROM transactions
WHERE transaction_group=$1::uuid ORDER BY id;`, group.String())
}

func (r *transactionRepo) FindByChargeID(ctx context.Context, tx repository.Tx, chargeID string, kind model.TransactionKind) (*model.Transaction, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+transactionColumns+` FROM transactions
WHERE processor_charge_id=$1 AND kind=$2 AND type='CREDIT' AND NOT is_refund AND deleted_at IS NULL
ORDER BY id LIMIT 1;`, chargeID, kind)
	if err != nil {
		return nil, err
	}
	t, err := scanTransaction(row)
	if err != nil {
		return nil, mapReadErr(err, domain.ErrNotFound)
	}
	return t, nil
}

func (r *transactionRepo) FindByOrder(ctx context.Context, tx repository.Tx, orderID int64) ([]*model.Transaction, error) {
	return r.list(ctx, tx, `SELECT `+transactionColumns+` FROM transactions
WHERE order_id=$1 ORDER BY id;`, orderID)
}

func (r *transactionRepo) List(ctx context.Context, tx repository.Tx, f model.TransactionQuery) ([]*model.Transaction, error) {
	var (
		where = []string{"collective_id=$1"}
		args  = []interface{}{f.AccountID}
	)
	add := func(cond string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if !f.IncludeDeleted {
		where = append(where, "deleted_at IS NULL")
	}
	if f.HostID != nil {
		add("host_collective_id=$%d", *f.HostID)
	}
	if f.From != nil {
		add("created_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("created_at <= $%d", *f.To)
	}
	if f.Type != "" {
		add("type=$%d", f.Type)
	}
	if f.Kind != "" {
		add("kind=$%d", f.Kind)
	}
	q := `SELECT ` + transactionColumns + ` FROM transactions WHERE ` + strings.Join(where, " AND ") + ` ORDER BY created_at, id`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		q += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return r.list(ctx, tx, q+";", args...)
}

func (r *transactionRepo) SetRefundTransactionID(ctx context.Context, tx repository.Tx, id, refundID int64) error {
	cmd, err := execSQL(ctx, r.pool, tx, `UPDATE transactions SET refund_transaction_id=$2 WHERE id=$1;`, id, refundID)
	if err != nil {
		return mapWriteErr(err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrTransactionNotFound
	}
	return nil
}

func (r *transactionRepo) SoftDeleteGroup(ctx context.Context, tx repository.Tx, group uuid.UUID, at time.Time) (int64, error) {
	cmd, err := execSQL(ctx, r.pool, tx, `
UPDATE transactions SET deleted_at=$2 WHERE transaction_group=$1::uuid AND deleted_at IS NULL;`, group.String(), at)
	if err != nil {
		return 0, mapWriteErr(err)
	}
	return cmd.RowsAffected(), nil
}

func (r *transactionRepo) SumNet(ctx context.Context, tx repository.Tx, accountID int64, asOf *time.Time) (int64, error) {
	row, err := pickRow(ctx, r.pool, tx, `
SELECT COALESCE(SUM(net_amount_in_collective_currency), 0)::bigint FROM transactions
WHERE collective_id=$1 AND deleted_at IS NULL AND ($2::timestamptz IS NULL OR created_at <= $2);`, accountID, asOf)
	if err != nil {
		return 0, err
	}
	var sum int64
	if err := row.Scan(&sum); err != nil {
		return 0, mapReadErr(err, domain.ErrReadDatabaseRow)
	}
	return sum, nil
}

func (r *transactionRepo) SumByHost(ctx context.Context, tx repository.Tx, accountID int64, asOf *time.Time) ([]model.HostBalance, error) {
	rows, err := queryRows(ctx, r.pool, tx, `
SELECT host_collective_id, host_currency, MIN(currency),
	COALESCE(SUM(net_amount_in_collective_currency), 0)::bigint,
	COALESCE(SUM(amount_in_host_currency + host_fee_in_host_currency + platform_fee_in_host_currency
		+ payment_processor_fee_in_host_currency), 0)::bigint
FROM transactions
WHERE collective_id=$1 AND deleted_at IS NULL AND ($2::timestamptz IS NULL OR created_at <= $2)
GROUP BY host_collective_id, host_currency
ORDER BY MIN(id);`, accountID, asOf)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []model.HostBalance
	for rows.Next() {
		var hb model.HostBalance
		if err := rows.Scan(&hb.HostCollectiveID, &hb.HostCurrency, &hb.Currency, &hb.Net, &hb.NetInHost); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, hb)
	}
	if rows.Err() != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func (r *transactionRepo) list(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.Transaction, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, t)
	}
	if rows.Err() != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func scanTransaction(row pgx.Row) (*model.Transaction, error) {
	var (
		t             model.Transaction
		group, fxRate string
	)
	if err := row.Scan(
		&t.ID, &group, &t.Type, &t.Kind, &t.Description,
		&t.Amount, &t.Currency, &t.HostCurrency, &fxRate, &t.AmountInHostCurrency,
		&t.NetAmountInCollectiveCurrency, &t.HostFeeInHostCurrency, &t.PlatformFeeInHostCurrency,
		&t.PaymentProcessorFeeInHostCurrency, &t.IsRefund, &t.RefundTransactionID, &t.OrderID, &t.ExpenseID,
		&t.FromCollectiveID, &t.CollectiveID, &t.HostCollectiveID, &t.ProcessorChargeID, &t.CreatedAt, &t.DeletedAt,
	); err != nil {
		return nil, err
	}
	var err error
	if t.TransactionGroup, err = uuid.Parse(group); err != nil {
		return nil, err
	}
	if t.HostCurrencyFxRate, err = decimal.NewFromString(fxRate); err != nil {
		return nil, err
	}
	return &t, nil
}
