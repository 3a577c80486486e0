package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"

	"collective-ledger/internal/domain"
	"collective-ledger/internal/domain/model"
	"collective-ledger/internal/domain/ports/adapter"
	"collective-ledger/internal/domain/ports/repository"
)

// Compile-time check
var (
	_ repository.AccountRepository = (*accountRepo)(nil)
	_ adapter.AccountDirectory     = (*accountRepo)(nil)
)

type accountRepo struct {
	pool *pgxpool.Pool
}

func NewAccountRepo(pool *pgxpool.Pool) *accountRepo {
	return &accountRepo{pool: pool}
}

// GetAccount serves the account directory port from the accounts table.
func (r *accountRepo) GetAccount(ctx context.Context, id int64) (*model.Account, error) {
	return r.FindByID(ctx, nil, id)
}

func (r *accountRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.Account, error) {
	row, err := pickRow(ctx, r.pool, tx, `
SELECT a.id, a.name, a.currency, a.host_id, a.host_fee_percent::text, a.platform_fee_percent::text,
	a.processor_connected_at,
	COALESCE(ARRAY(SELECT admin_account_id FROM account_admins WHERE account_id=a.id ORDER BY admin_account_id), '{}')
FROM accounts a WHERE a.id=$1;`, id)
	if err != nil {
		return nil, err
	}
	var (
		a                    model.Account
		hostFee, platformFee string
	)
	if err := row.Scan(&a.ID, &a.Name, &a.Currency, &a.HostID, &hostFee, &platformFee,
		&a.ProcessorConnectedAt, &a.AdminIDs); err != nil {
		return nil, mapReadErr(err, domain.ErrAccountNotFound)
	}
	if a.HostFeePercent, err = decimal.NewFromString(hostFee); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	if a.PlatformFeePercent, err = decimal.NewFromString(platformFee); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return &a, nil
}

func (r *accountRepo) Save(ctx context.Context, tx repository.Tx, a *model.Account) error {
	if a == nil || len(a.Currency) != 3 {
		return domain.ErrInvalidArgument
	}
	if a.ID == 0 {
		row, err := pickRow(ctx, r.pool, tx, `
INSERT INTO accounts (name, currency, host_id, host_fee_percent, platform_fee_percent, processor_connected_at)
VALUES ($1,$2,$3,$4::numeric,$5::numeric,$6)
RETURNING id;`,
			a.Name, a.Currency, a.HostID, a.HostFeePercent.String(), a.PlatformFeePercent.String(), a.ProcessorConnectedAt)
		if err != nil {
			return err
		}
		if err := row.Scan(&a.ID); err != nil {
			return mapWriteErr(err)
		}
		return nil
	}
	_, err := execSQL(ctx, r.pool, tx, `
INSERT INTO accounts (id, name, currency, host_id, host_fee_percent, platform_fee_percent, processor_connected_at)
VALUES ($1,$2,$3,$4,$5::numeric,$6::numeric,$7)
ON CONFLICT (id) DO UPDATE SET
	name=EXCLUDED.name,
	currency=EXCLUDED.currency,
	host_id=EXCLUDED.host_id,
	host_fee_percent=EXCLUDED.host_fee_percent,
	platform_fee_percent=EXCLUDED.platform_fee_percent,
	processor_connected_at=EXCLUDED.processor_connected_at,
	updated_at=NOW();`,
		a.ID, a.Name, a.Currency, a.HostID, a.HostFeePercent.String(), a.PlatformFeePercent.String(), a.ProcessorConnectedAt)
	return mapWriteErr(err)
}

func (r *accountRepo) AddAdmin(ctx context.Context, tx repository.Tx, accountID, adminID int64) error {
	_, err := execSQL(ctx, r.pool, tx, `
INSERT INTO account_admins (account_id, admin_account_id) VALUES ($1,$2)
ON CONFLICT DO NOTHING;`, accountID, adminID)
	return mapWriteErr(err)
}
