// File: internal/usecase/refund_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"collective-ledger/internal/domain"
	"collective-ledger/internal/domain/model"
	"collective-ledger/internal/domain/ports/adapter"
	"collective-ledger/internal/domain/ports/repository"
	"collective-ledger/internal/infra/logging"
	"collective-ledger/internal/infra/metrics"
)

// Compile-time check
var _ RefundUseCase = (*refundUC)(nil)

type RefundUseCase interface {
	// Refund reverses the money movement transactionID belongs to, including
	// the fee-only pairs recorded with it.
	Refund(ctx context.Context, actor model.Actor, transactionID int64) (*RefundOutcome, error)
}

// RefundOutcome lists every pair written by a refund.
type RefundOutcome struct {
	Reversal *model.TransactionPair
	// Cover moves the kept processor fee from the host to the collective;
	// nil when the processor fee was refunded.
	Cover             *model.TransactionPair
	FeeReversals      []*model.TransactionPair
	ProcessorRefundID string
	FeeRefunded       bool
}

const (
	refundPolicyFullFee = "full_fee"
	refundPolicyNoFee   = "no_fee"
)

type refundUC struct {
	txs       repository.TransactionRepository
	tm        repository.TransactionManager
	ledger    LedgerUseCase
	directory adapter.AccountDirectory
	processor adapter.PaymentProcessor
	notify    *Notifier
	// hosts that connected their processor before cutoff get fee refunds
	// when the processor does not report the fee outcome
	cutoff time.Time
	log    *zerolog.Logger
}

func NewRefundUseCase(
	txs repository.TransactionRepository,
	tm repository.TransactionManager,
	ledger LedgerUseCase,
	directory adapter.AccountDirectory,
	processor adapter.PaymentProcessor,
	notify *Notifier,
	feeRefundCutoff time.Time,
	logger *zerolog.Logger,
) *refundUC {
	l := logger.With().Str("component", "RefundUC").Logger()
	return &refundUC{
		txs:       txs,
		tm:        tm,
		ledger:    ledger,
		directory: directory,
		processor: processor,
		notify:    notify,
		cutoff:    feeRefundCutoff,
		log:       &l,
	}
}

func (u *refundUC) Refund(ctx context.Context, actor model.Actor, transactionID int64) (*RefundOutcome, error) {
	defer logging.TraceDuration(u.log, "RefundUC.Refund")()
	log := logging.With(ctx, u.log).With().Int64("transaction_id", transactionID).Logger()

	var (
		out        *RefundOutcome
		moneyMoved bool
	)
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		credit, debit, err := u.lockOriginal(ctx, tx, transactionID)
		if err != nil {
			return err
		}
		if credit.IsRefund {
			return fmt.Errorf("%w: transaction %d is itself a refund", domain.ErrInvalidArgument, credit.ID)
		}
		if credit.IsRefunded() || debit.IsRefunded() {
			return domain.ErrAlreadyRefunded
		}
		if credit.IsDeleted() {
			return domain.ErrTransactionNotFound
		}

		host, err := u.authorize(ctx, actor, credit)
		if err != nil {
			return err
		}

		out = &RefundOutcome{FeeRefunded: true}
		if credit.ProcessorChargeID != "" && !credit.Kind.IsFeeOnly() {
			res, err := u.processor.Refund(ctx, credit.ProcessorChargeID)
			if err != nil {
				return fmt.Errorf("processor refund %s: %w", credit.ProcessorChargeID, err)
			}
			moneyMoved = true
			out.ProcessorRefundID = res.ID
			out.FeeRefunded = u.feeRefunded(res, host)
		}

		return u.writeReversal(ctx, tx, credit, debit, out)
	})

	if err != nil {
		if moneyMoved {
			metrics.IncUnrecordedMovement("refund")
			log.Error().Err(err).Str("refund_id", out.ProcessorRefundID).Msg("processor refunded but ledger write failed")
			return nil, &domain.MoneyMovedError{Operation: "refund", ProcessorID: out.ProcessorRefundID, Err: err}
		}
		return nil, err
	}

	policy := refundPolicyFullFee
	if !out.FeeRefunded {
		policy = refundPolicyNoFee
	}
	metrics.IncRefund(policy, "ok")
	log.Info().Str("policy", policy).Str("group", out.Reversal.Group().String()).Msg("transaction refunded")
	u.notify.emit(adapter.EventRefundProcessed, map[string]any{
		"transaction_id": transactionID,
		"refund_id":      out.Reversal.Credit.ID,
		"policy":         policy,
		"amount":         out.Reversal.Credit.NetAmountInCollectiveCurrency,
		"currency":       out.Reversal.Credit.Currency,
	})
	return out, nil
}

// lockOriginal loads and locks both rows of the pair transactionID belongs to.
// A fee-only row of a charge resolves to the charge's primary pair: the
// processor refunds the whole charge, so its fee pairs are reversed with it.
func (u *refundUC) lockOriginal(ctx context.Context, tx repository.Tx, transactionID int64) (credit, debit *model.Transaction, err error) {
	t, err := u.txs.FindByID(ctx, tx, transactionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil, domain.ErrTransactionNotFound
		}
		return nil, nil, err
	}
	rows, err := u.txs.FindByGroup(ctx, tx, t.TransactionGroup)
	if err != nil {
		return nil, nil, err
	}
	kind := t.Kind
	if kind.IsFeeOnly() && !t.IsRefund {
		for _, r := range rows {
			if !r.IsRefund && !r.Kind.IsFeeOnly() {
				kind = r.Kind
				break
			}
		}
	}
	for _, r := range rows {
		if r.Kind != kind || r.IsRefund != t.IsRefund {
			continue
		}
		if r.Type == model.TransactionTypeCredit {
			credit = r
		} else {
			debit = r
		}
	}
	if credit == nil || debit == nil {
		return nil, nil, fmt.Errorf("%w: pair of transaction %d is incomplete", domain.ErrTransactionNotFound, transactionID)
	}
	// t itself is already locked
	for _, r := range []*model.Transaction{credit, debit} {
		if r.ID == t.ID {
			continue
		}
		if _, err := u.txs.FindByID(ctx, tx, r.ID); err != nil {
			return nil, nil, err
		}
	}
	return credit, debit, nil
}

// authorize allows admins of the host that received the money, the payer and
// admins of the payer. It returns the host account, if any.
func (u *refundUC) authorize(ctx context.Context, actor model.Actor, credit *model.Transaction) (*model.Account, error) {
	var host *model.Account
	if credit.HostCollectiveID != nil {
		h, err := u.directory.GetAccount(ctx, *credit.HostCollectiveID)
		if err != nil {
			return nil, err
		}
		host = h
	}
	if actor.Operator || actor.System {
		return host, nil
	}
	if host != nil && actor.CanAdminister(host) {
		return host, nil
	}
	payer, err := u.directory.GetAccount(ctx, credit.FromCollectiveID)
	if err != nil {
		return nil, err
	}
	if actor.CanAdminister(payer) {
		return host, nil
	}
	return nil, domain.ErrNotAuthorized
}

// feeRefunded decides whether the processor fee comes back with the refund.
// The processor's answer wins; without one, hosts connected before the
// cutoff are treated as full-fee refunds.
func (u *refundUC) feeRefunded(res adapter.RefundResult, host *model.Account) bool {
	if res.FeeRefunded != nil {
		return *res.FeeRefunded
	}
	if host == nil || host.ProcessorConnectedAt == nil {
		return false
	}
	return host.ProcessorConnectedAt.Before(u.cutoff)
}

func (u *refundUC) writeReversal(ctx context.Context, tx repository.Tx, credit, debit *model.Transaction, out *RefundOutcome) error {
	now := time.Now().UTC()
	group := uuid.New()
	desc := fmt.Sprintf("Refund of %q", credit.Description)

	reversal, err := u.ledger.Record(ctx, tx, RecordInput{
		Entry:             model.ReversalEntry{Original: credit, RefundProcessorFee: out.FeeRefunded},
		Group:             group,
		FromAccountID:     credit.CollectiveID,
		ToAccountID:       credit.FromCollectiveID,
		FromHostID:        credit.HostCollectiveID,
		ToHostID:          debit.HostCollectiveID,
		Currency:          credit.Currency,
		HostCurrency:      credit.HostCurrency,
		FxRate:            credit.HostCurrencyFxRate,
		Description:       desc,
		ProcessorChargeID: credit.ProcessorChargeID,
		IsRefund:          true,
		CreatedAt:         now,
	})
	if err != nil {
		return err
	}
	out.Reversal = reversal
	if err := u.link(ctx, tx, credit, debit, reversal); err != nil {
		return err
	}

	// The processor kept its fee: the host covers it so the collective ends
	// where it started, and carries the fee as a liability.
	if !out.FeeRefunded && credit.PaymentProcessorFeeInHostCurrency != 0 && credit.HostCollectiveID != nil {
		cover := reversal.Credit.Amount - credit.NetAmountInCollectiveCurrency
		if cover > 0 {
			hostID := *credit.HostCollectiveID
			out.Cover, err = u.ledger.Record(ctx, tx, RecordInput{
				Entry:         model.FeeEntry{FeeKind: model.KindPaymentProcessorCover, OrderID: credit.OrderID, Amount: cover},
				Group:         group,
				FromAccountID: hostID,
				ToAccountID:   credit.CollectiveID,
				FromHostID:    &hostID,
				ToHostID:      credit.HostCollectiveID,
				Currency:      credit.Currency,
				HostCurrency:  credit.HostCurrency,
				FxRate:        credit.HostCurrencyFxRate,
				Description:   "Cover of payment processor fee for " + desc,
				IsRefund:      true,
				CreatedAt:     now,
			})
			if err != nil {
				return err
			}
		}
	}

	if credit.Kind.IsFeeOnly() {
		return nil
	}
	rows, err := u.txs.FindByGroup(ctx, tx, credit.TransactionGroup)
	if err != nil {
		return err
	}
	for _, p := range model.PairsFromRows(rows) {
		c := p.Credit
		if !c.Kind.IsFeeOnly() || c.IsRefund || c.IsRefunded() || c.IsDeleted() {
			continue
		}
		rev, err := u.ledger.Record(ctx, tx, RecordInput{
			Entry:         model.FeeEntry{FeeKind: c.Kind, OrderID: c.OrderID, Amount: c.Amount, AmountInHost: c.AmountInHostCurrency},
			Group:         group,
			FromAccountID: c.CollectiveID,
			ToAccountID:   c.FromCollectiveID,
			FromHostID:    c.HostCollectiveID,
			ToHostID:      p.Debit.HostCollectiveID,
			Currency:      c.Currency,
			HostCurrency:  c.HostCurrency,
			FxRate:        c.HostCurrencyFxRate,
			Description:   "Refund of " + string(c.Kind),
			IsRefund:      true,
			CreatedAt:     now,
		})
		if err != nil {
			return err
		}
		if err := u.link(ctx, tx, c, p.Debit, rev); err != nil {
			return err
		}
		out.FeeReversals = append(out.FeeReversals, rev)
	}
	return nil
}

// link sets refundTransactionId on the original rows and their reversals,
// pairing rows that affect the same account.
func (u *refundUC) link(ctx context.Context, tx repository.Tx, credit, debit *model.Transaction, rev *model.TransactionPair) error {
	links := [][2]*model.Transaction{
		{credit, rev.Debit},
		{rev.Debit, credit},
		{debit, rev.Credit},
		{rev.Credit, debit},
	}
	for _, l := range links {
		if err := u.txs.SetRefundTransactionID(ctx, tx, l[0].ID, l[1].ID); err != nil {
			return err
		}
		id := l[1].ID
		l[0].RefundTransactionID = &id
	}
	return nil
}
