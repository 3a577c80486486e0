package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"collective-ledger/internal/domain"
	"collective-ledger/internal/domain/money"
)

// Entry is the kind-specific part of a ledger write. The set of variants is
// closed: ContributionEntry, ExpenseEntry, FeeEntry, CarryforwardEntry and
// ReversalEntry. Each one computes the CREDIT side figures; the DEBIT side
// is derived from them by NewPair.
type Entry interface {
	Kind() TransactionKind
	credit(fx decimal.Decimal) figures
	annotate(t *Transaction)
}

// figures are the amounts of one row. Fees are in host currency and
// already signed.
type figures struct {
	amount       int64
	amountInHost int64
	hostFee      int64
	platformFee  int64
	processorFee int64
	net          int64
}

func (f figures) fees() int64 { return f.hostFee + f.platformFee + f.processorFee }

// debit derives the counterpart row: what one side receives the other pays.
// Fees keep their sign so the ledger equation holds on both sides.
func (f figures) debit() figures {
	return figures{
		amount:       -f.net,
		amountInHost: -(f.amountInHost + f.fees()),
		hostFee:      f.hostFee,
		platformFee:  f.platformFee,
		processorFee: f.processorFee,
		net:          -f.amount,
	}
}

// ContributionEntry records money paid into an account (CONTRIBUTION) or
// added by its host (ADDED_FUNDS). Fees are magnitudes in host currency;
// they are stored as deductions.
type ContributionEntry struct {
	AddedFunds   bool
	OrderID      *int64
	Amount       int64
	HostFee      int64
	PlatformFee  int64
	ProcessorFee int64
}

func (e ContributionEntry) Kind() TransactionKind {
	if e.AddedFunds {
		return KindAddedFunds
	}
	return KindContribution
}

func (e ContributionEntry) credit(fx decimal.Decimal) figures {
	f := figures{
		amount:       e.Amount,
		amountInHost: money.ToHost(e.Amount, fx),
		hostFee:      money.AsFee(e.HostFee),
		platformFee:  money.AsFee(e.PlatformFee),
		processorFee: money.AsFee(e.ProcessorFee),
	}
	f.net = money.FromHost(f.amountInHost+f.fees(), fx)
	return f
}

func (e ContributionEntry) annotate(t *Transaction) { t.OrderID = e.OrderID }

// ExpenseEntry records an expense paid out of a collective to the payee.
type ExpenseEntry struct {
	ExpenseID    int64
	Amount       int64
	ProcessorFee int64
}

func (e ExpenseEntry) Kind() TransactionKind { return KindExpense }

func (e ExpenseEntry) credit(fx decimal.Decimal) figures {
	f := figures{
		amount:       e.Amount,
		amountInHost: money.ToHost(e.Amount, fx),
		processorFee: money.AsFee(e.ProcessorFee),
	}
	f.net = money.FromHost(f.amountInHost+f.fees(), fx)
	return f
}

func (e ExpenseEntry) annotate(t *Transaction) {
	id := e.ExpenseID
	t.ExpenseID = &id
}

// FeeEntry moves a fee between two accounts: HOST_FEE, HOST_FEE_SHARE,
// PLATFORM_TIP or PAYMENT_PROCESSOR_COVER. It carries no fees itself.
type FeeEntry struct {
	FeeKind TransactionKind
	OrderID *int64
	Amount  int64
	// AmountInHost pins the host currency amount when it is known exactly;
	// when zero it is derived from Amount.
	AmountInHost int64
}

func (e FeeEntry) Kind() TransactionKind { return e.FeeKind }

func (e FeeEntry) credit(fx decimal.Decimal) figures {
	inHost := e.AmountInHost
	if inHost == 0 {
		inHost = money.ToHost(e.Amount, fx)
	}
	return figures{amount: e.Amount, amountInHost: inHost, net: e.Amount}
}

func (e FeeEntry) annotate(t *Transaction) { t.OrderID = e.OrderID }

// CarryforwardEntry closes a period on an account and reopens it with the
// same balance. Both sides live on the same account: the DEBIT closes at
// ClosedAt, the CREDIT opens one millisecond later.
type CarryforwardEntry struct {
	Balance       int64 // collective currency
	BalanceInHost int64
	ClosedAt      time.Time
}

// OpeningOffset separates the closing and opening rows of a carryforward.
const OpeningOffset = time.Millisecond

func (e CarryforwardEntry) Kind() TransactionKind { return KindBalanceCarryforward }

func (e CarryforwardEntry) credit(decimal.Decimal) figures {
	return figures{amount: e.Balance, amountInHost: e.BalanceInHost, net: e.Balance}
}

func (e CarryforwardEntry) annotate(*Transaction) {}

// ReversalEntry undoes the CREDIT row Original. The reversal credits the
// original payer with what it paid and hands the fees back, except the
// processor fee when the processor kept it.
type ReversalEntry struct {
	Original           *Transaction
	RefundProcessorFee bool
}

func (e ReversalEntry) Kind() TransactionKind { return e.Original.Kind }

func (e ReversalEntry) credit(fx decimal.Decimal) figures {
	o := e.Original
	f := figures{
		hostFee:     -o.HostFeeInHostCurrency,
		platformFee: -o.PlatformFeeInHostCurrency,
		net:         o.Amount,
	}
	if e.RefundProcessorFee {
		f.processorFee = -o.PaymentProcessorFeeInHostCurrency
	}
	f.amountInHost = o.AmountInHostCurrency - f.fees()
	f.amount = money.FromHost(f.amountInHost, fx)
	return f
}

func (e ReversalEntry) annotate(t *Transaction) {
	t.OrderID = e.Original.OrderID
	t.ExpenseID = e.Original.ExpenseID
	t.ProcessorChargeID = e.Original.ProcessorChargeID
}

// PairSpec is everything needed to build a pair besides the entry.
type PairSpec struct {
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

// NewPair builds both rows for e. The CREDIT row lands on ToAccountID, the
// DEBIT row on FromAccountID.
func NewPair(e Entry, s PairSpec) (*TransactionPair, error) {
	if e == nil || !e.Kind().Valid() {
		return nil, fmt.Errorf("%w: unknown transaction kind", domain.ErrInvalidArgument)
	}
	if !s.FxRate.IsPositive() {
		return nil, fmt.Errorf("%w: fx rate must be positive", domain.ErrInvalidArgument)
	}
	if s.Group == uuid.Nil {
		s.Group = uuid.New()
	}
	cf := e.credit(s.FxRate)
	df := cf.debit()

	credit := s.row(e, TransactionTypeCredit, cf)
	credit.FromCollectiveID = s.FromAccountID
	credit.CollectiveID = s.ToAccountID
	credit.HostCollectiveID = s.ToHostID

	debit := s.row(e, TransactionTypeDebit, df)
	debit.FromCollectiveID = s.ToAccountID
	debit.CollectiveID = s.FromAccountID
	debit.HostCollectiveID = s.FromHostID

	if c, ok := e.(CarryforwardEntry); ok {
		debit.CreatedAt = c.ClosedAt
		credit.CreatedAt = c.ClosedAt.Add(OpeningOffset)
	}
	return &TransactionPair{Credit: credit, Debit: debit}, nil
}

func (s PairSpec) row(e Entry, typ TransactionType, f figures) *Transaction {
	t := &Transaction{
		TransactionGroup:                  s.Group,
		Type:                              typ,
		Kind:                              e.Kind(),
		Description:                       s.Description,
		Amount:                            f.amount,
		Currency:                          s.Currency,
		HostCurrency:                      s.HostCurrency,
		HostCurrencyFxRate:                s.FxRate,
		AmountInHostCurrency:              f.amountInHost,
		NetAmountInCollectiveCurrency:     f.net,
		HostFeeInHostCurrency:             f.hostFee,
		PlatformFeeInHostCurrency:         f.platformFee,
		PaymentProcessorFeeInHostCurrency: f.processorFee,
		IsRefund:                          s.IsRefund,
		ProcessorChargeID:                 s.ProcessorChargeID,
		CreatedAt:                         s.CreatedAt,
	}
	e.annotate(t)
	return t
}
