// File: internal/usecase/ledger_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"collective-ledger/internal/domain"
	"collective-ledger/internal/domain/model"
	"collective-ledger/internal/domain/money"
	"collective-ledger/internal/domain/ports/adapter"
	"collective-ledger/internal/domain/ports/repository"
	"collective-ledger/internal/infra/logging"
	"collective-ledger/internal/infra/metrics"
)

// Compile-time check
var _ LedgerUseCase = (*ledgerUC)(nil)

// LedgerUseCase is the only write path into the transactions table.
type LedgerUseCase interface {
	// Record validates and stores one CREDIT/DEBIT pair. With a nil tx it
	// opens its own transaction.
	Record(ctx context.Context, tx repository.Tx, p RecordInput) (*model.TransactionPair, error)

	Get(ctx context.Context, id int64) (*model.Transaction, error)
	ListByAccount(ctx context.Context, q model.TransactionQuery) ([]*model.Transaction, error)
	ListByOrder(ctx context.Context, orderID int64) ([]*model.Transaction, error)
	ListByGroup(ctx context.Context, group uuid.UUID) ([]*model.Transaction, error)
	// SoftDeleteGroup hides every row of a group from balances. Platform
	// operators only.
	SoftDeleteGroup(ctx context.Context, actor model.Actor, group uuid.UUID) (int64, error)
}

// RecordInput describes one money movement from FromAccountID to ToAccountID.
// Host ids, host currency and rate are resolved from the directory and the
// rate provider when left empty.
type RecordInput struct {
	Entry             model.Entry
	Group             uuid.UUID
	FromAccountID     int64
	ToAccountID       int64
	FromHostID        *int64
	ToHostID          *int64
	Currency          string
	HostCurrency      string
	FxRate            decimal.Decimal
	Description       string
	ProcessorChargeID string
	IsRefund          bool
	CreatedAt         time.Time
}

const defaultListLimit = 100

type ledgerUC struct {
	txs       repository.TransactionRepository
	tm        repository.TransactionManager
	directory adapter.AccountDirectory
	fx        adapter.FxRateProvider
	notify    *Notifier
	log       *zerolog.Logger
}

func NewLedgerUseCase(
	txs repository.TransactionRepository,
	tm repository.TransactionManager,
	directory adapter.AccountDirectory,
	fx adapter.FxRateProvider,
	notify *Notifier,
	logger *zerolog.Logger,
) *ledgerUC {
	l := logger.With().Str("component", "LedgerUC").Logger()
	return &ledgerUC{txs: txs, tm: tm, directory: directory, fx: fx, notify: notify, log: &l}
}

func (u *ledgerUC) Record(ctx context.Context, tx repository.Tx, in RecordInput) (*model.TransactionPair, error) {
	defer logging.TraceDuration(u.log, "LedgerUC.Record")()

	if tx == nil {
		var pair *model.TransactionPair
		err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
			var err error
			pair, err = u.Record(ctx, tx, in)
			return err
		})
		return pair, err
	}

	spec, err := u.resolve(ctx, in)
	if err != nil {
		return nil, err
	}
	pair, err := model.NewPair(in.Entry, spec)
	if err != nil {
		return nil, err
	}
	if err := pair.Validate(); err != nil {
		u.reportViolation(ctx, in, err)
		return nil, err
	}

	if err := u.txs.Insert(ctx, tx, pair.Credit); err != nil {
		return nil, fmt.Errorf("insert credit: %w", err)
	}
	if err := u.txs.Insert(ctx, tx, pair.Debit); err != nil {
		return nil, fmt.Errorf("insert debit: %w", err)
	}
	metrics.IncLedgerPair(string(pair.Credit.Kind), pair.Credit.IsRefund)
	return pair, nil
}

// resolve fills host ids, host currency and rate, and rejects rows that
// would move a hosted account's money outside its host.
func (u *ledgerUC) resolve(ctx context.Context, in RecordInput) (model.PairSpec, error) {
	if in.Entry == nil {
		return model.PairSpec{}, fmt.Errorf("%w: entry is required", domain.ErrInvalidArgument)
	}
	if r, ok := in.Entry.(model.ReversalEntry); ok && r.Original == nil {
		return model.PairSpec{}, fmt.Errorf("%w: reversal without original", domain.ErrInvalidArgument)
	}
	if in.FromAccountID == 0 || in.ToAccountID == 0 {
		return model.PairSpec{}, fmt.Errorf("%w: both accounts are required", domain.ErrInvalidArgument)
	}

	to, err := u.directory.GetAccount(ctx, in.ToAccountID)
	if err != nil {
		return model.PairSpec{}, err
	}
	from := to
	if in.FromAccountID != in.ToAccountID {
		if from, err = u.directory.GetAccount(ctx, in.FromAccountID); err != nil {
			return model.PairSpec{}, err
		}
	}
	toHost, err := hostFor(to, in.ToHostID)
	if err != nil {
		return model.PairSpec{}, err
	}
	fromHost, err := hostFor(from, in.FromHostID)
	if err != nil {
		return model.PairSpec{}, err
	}

	currency := in.Currency
	if currency == "" {
		currency = to.Currency
	}
	hostCurrency := in.HostCurrency
	if hostCurrency == "" {
		hostCurrency = to.Currency
		if toHost != nil {
			host, err := u.directory.GetAccount(ctx, *toHost)
			if err != nil {
				return model.PairSpec{}, err
			}
			hostCurrency = host.Currency
		}
	}

	createdAt := in.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	rate := in.FxRate
	if rate.IsZero() {
		if rate, err = u.rate(ctx, currency, hostCurrency, createdAt); err != nil {
			return model.PairSpec{}, err
		}
	}

	return model.PairSpec{
		Group:             in.Group,
		FromAccountID:     in.FromAccountID,
		ToAccountID:       in.ToAccountID,
		FromHostID:        fromHost,
		ToHostID:          toHost,
		Currency:          currency,
		HostCurrency:      hostCurrency,
		FxRate:            rate,
		Description:       in.Description,
		ProcessorChargeID: in.ProcessorChargeID,
		IsRefund:          in.IsRefund,
		CreatedAt:         createdAt,
	}, nil
}

func (u *ledgerUC) rate(ctx context.Context, from, to string, at time.Time) (decimal.Decimal, error) {
	if from == to {
		return money.One, nil
	}
	return u.fx.Rate(ctx, from, to, at)
}

// hostFor returns the host a row for acc must carry. A requested host that
// differs from the account's own host is rejected.
func hostFor(acc *model.Account, requested *int64) (*int64, error) {
	if !acc.IsHosted() {
		return requested, nil
	}
	if requested != nil && *requested != *acc.HostID {
		return nil, fmt.Errorf("%w: account %d is hosted by %d, not %d", domain.ErrInvalidArgument, acc.ID, *acc.HostID, *requested)
	}
	h := *acc.HostID
	return &h, nil
}

func (u *ledgerUC) reportViolation(ctx context.Context, in RecordInput, err error) {
	kind := string(in.Entry.Kind())
	metrics.IncInvariantViolation(kind)
	logging.With(ctx, u.log).Error().Err(err).
		Str("kind", kind).
		Int64("from", in.FromAccountID).
		Int64("to", in.ToAccountID).
		Str("charge_id", in.ProcessorChargeID).
		Msg("ledger write blocked")
	u.notify.emit(adapter.EventLedgerAlert, map[string]any{
		"error":     err.Error(),
		"kind":      kind,
		"from":      in.FromAccountID,
		"to":        in.ToAccountID,
		"charge_id": in.ProcessorChargeID,
	})
}

func (u *ledgerUC) Get(ctx context.Context, id int64) (*model.Transaction, error) {
	t, err := u.txs.FindByID(ctx, repository.NoTX, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrTransactionNotFound
	}
	return t, err
}

func (u *ledgerUC) ListByAccount(ctx context.Context, q model.TransactionQuery) ([]*model.Transaction, error) {
	if q.AccountID == 0 {
		return nil, fmt.Errorf("%w: account is required", domain.ErrInvalidArgument)
	}
	if q.Type != "" && q.Type != model.TransactionTypeCredit && q.Type != model.TransactionTypeDebit {
		return nil, fmt.Errorf("%w: type %q", domain.ErrInvalidArgument, q.Type)
	}
	if q.Kind != "" && !q.Kind.Valid() {
		return nil, fmt.Errorf("%w: kind %q", domain.ErrInvalidArgument, q.Kind)
	}
	if q.From != nil && q.To != nil && q.From.After(*q.To) {
		return nil, fmt.Errorf("%w: empty date range", domain.ErrInvalidArgument)
	}
	if q.Limit <= 0 || q.Limit > 1000 {
		q.Limit = defaultListLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return u.txs.List(ctx, repository.NoTX, q)
}

func (u *ledgerUC) ListByOrder(ctx context.Context, orderID int64) ([]*model.Transaction, error) {
	return u.txs.FindByOrder(ctx, repository.NoTX, orderID)
}

func (u *ledgerUC) ListByGroup(ctx context.Context, group uuid.UUID) ([]*model.Transaction, error) {
	rows, err := u.txs.FindByGroup(ctx, repository.NoTX, group)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, domain.ErrTransactionNotFound
	}
	return rows, nil
}

func (u *ledgerUC) SoftDeleteGroup(ctx context.Context, actor model.Actor, group uuid.UUID) (int64, error) {
	if !actor.Operator {
		return 0, domain.ErrNotAuthorized
	}
	n, err := u.txs.SoftDeleteGroup(ctx, repository.NoTX, group, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, domain.ErrTransactionNotFound
	}
	logging.With(ctx, u.log).Warn().Str("group", group.String()).Int64("rows", n).Msg("transaction group soft-deleted")
	return n, nil
}
