// File: internal/usecase/balance_uc.go
package usecase

import (
	"context"
	"fmt"
	"strconv"
	"time"

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
var _ BalanceUseCase = (*balanceUC)(nil)

type BalanceUseCase interface {
	// GetBalance sums the account's non-deleted rows created at or before
	// asOf (nil = now).
	GetBalance(ctx context.Context, actor model.Actor, accountID int64, asOf *time.Time) (*model.Balance, error)
	BalancesByHost(ctx context.Context, actor model.Actor, accountID int64, asOf *time.Time) ([]model.HostBalance, error)
	// CreateCarryforward closes the period ending at endOfPeriod and reopens
	// it with the same balance. It returns nil when the balance is zero.
	CreateCarryforward(ctx context.Context, actor model.Actor, accountID int64, endOfPeriod time.Time) (*model.Carryforward, error)
}

const warnMultiHost = "multi_host"

type balanceUC struct {
	txs       repository.TransactionRepository
	tm        repository.TransactionManager
	ledger    LedgerUseCase
	directory adapter.AccountDirectory
	log       *zerolog.Logger
}

func NewBalanceUseCase(
	txs repository.TransactionRepository,
	tm repository.TransactionManager,
	ledger LedgerUseCase,
	directory adapter.AccountDirectory,
	logger *zerolog.Logger,
) *balanceUC {
	l := logger.With().Str("component", "BalanceUC").Logger()
	return &balanceUC{txs: txs, tm: tm, ledger: ledger, directory: directory, log: &l}
}

func (u *balanceUC) GetBalance(ctx context.Context, actor model.Actor, accountID int64, asOf *time.Time) (*model.Balance, error) {
	acc, err := u.authorize(ctx, actor, accountID)
	if err != nil {
		return nil, err
	}
	sum, err := u.txs.SumNet(ctx, repository.NoTX, accountID, asOf)
	if err != nil {
		return nil, err
	}
	at := time.Now().UTC()
	if asOf != nil {
		at = *asOf
	}
	return &model.Balance{AccountID: accountID, Amount: sum, Currency: acc.Currency, AsOf: at}, nil
}

func (u *balanceUC) BalancesByHost(ctx context.Context, actor model.Actor, accountID int64, asOf *time.Time) ([]model.HostBalance, error) {
	if _, err := u.authorize(ctx, actor, accountID); err != nil {
		return nil, err
	}
	return u.txs.SumByHost(ctx, repository.NoTX, accountID, asOf)
}

func (u *balanceUC) CreateCarryforward(ctx context.Context, actor model.Actor, accountID int64, endOfPeriod time.Time) (*model.Carryforward, error) {
	defer logging.TraceDuration(u.log, "BalanceUC.CreateCarryforward")()
	log := logging.With(ctx, u.log).With().Int64("account_id", accountID).Logger()

	if endOfPeriod.IsZero() {
		return nil, fmt.Errorf("%w: end of period is required", domain.ErrInvalidArgument)
	}
	acc, err := u.authorize(ctx, actor, accountID)
	if err != nil {
		return nil, err
	}

	var out *model.Carryforward
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := u.tm.AdvisoryLock(ctx, tx, "carryforward:"+strconv.FormatInt(accountID, 10)); err != nil {
			return err
		}
		groups, err := u.txs.SumByHost(ctx, tx, accountID, &endOfPeriod)
		if err != nil {
			return err
		}

		var (
			total   int64
			carried *model.HostBalance
			nonZero int
		)
		for i := range groups {
			g := &groups[i]
			total += g.Net
			if g.Net == 0 {
				continue
			}
			nonZero++
			if carried == nil || money.Abs(g.Net) > money.Abs(carried.Net) {
				carried = g
			}
		}
		if total == 0 || carried == nil {
			return nil
		}

		out = &model.Carryforward{Balance: carried.Net}
		if nonZero > 1 {
			out.Warning = warnMultiHost
			log.Warn().Int("groups", nonZero).Int64("carried", carried.Net).Int64("total", total).
				Msg("balance spread over several hosts, only the largest part is carried forward")
		}

		fx := money.One
		if carried.NetInHost != carried.Net {
			fx = decimal.NewFromInt(carried.NetInHost).Div(decimal.NewFromInt(carried.Net))
		}
		currency := carried.Currency
		if currency == "" {
			currency = acc.Currency
		}
		pair, err := u.ledger.Record(ctx, tx, RecordInput{
			Entry: model.CarryforwardEntry{
				Balance:       carried.Net,
				BalanceInHost: carried.NetInHost,
				ClosedAt:      endOfPeriod,
			},
			FromAccountID: accountID,
			ToAccountID:   accountID,
			FromHostID:    carried.HostCollectiveID,
			ToHostID:      carried.HostCollectiveID,
			Currency:      currency,
			HostCurrency:  carried.HostCurrency,
			FxRate:        fx,
			Description:   "Balance carryforward " + endOfPeriod.UTC().Format("2006-01-02"),
			CreatedAt:     endOfPeriod,
		})
		if err != nil {
			return err
		}
		out.Closing, out.Opening = pair.Debit, pair.Credit
		return nil
	})
	if err != nil {
		metrics.IncCarryforward("error")
		return nil, err
	}
	if out == nil {
		metrics.IncCarryforward("zero")
		log.Info().Msg("zero balance, nothing to carry forward")
		return nil, nil
	}
	result := "ok"
	if out.Warning != "" {
		result = out.Warning
	}
	metrics.IncCarryforward(result)
	log.Info().Int64("balance", out.Balance).Str("group", out.Opening.TransactionGroup.String()).Msg("balance carried forward")
	return out, nil
}

// authorize allows admins of the account's host, admins of the account
// itself and platform operators.
func (u *balanceUC) authorize(ctx context.Context, actor model.Actor, accountID int64) (*model.Account, error) {
	acc, err := u.directory.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if actor.CanAdminister(acc) {
		return acc, nil
	}
	if acc.IsHosted() {
		host, err := u.directory.GetAccount(ctx, *acc.HostID)
		if err != nil {
			return nil, err
		}
		if actor.CanAdminister(host) {
			return acc, nil
		}
	}
	return nil, domain.ErrNotAuthorized
}
