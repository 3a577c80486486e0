package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"collective-ledger/internal/domain"
	"collective-ledger/internal/domain/money"
)

type TransactionType string

const (
	TransactionTypeCredit TransactionType = "CREDIT"
	TransactionTypeDebit  TransactionType = "DEBIT"
)

type TransactionKind string

const (
	KindContribution          TransactionKind = "CONTRIBUTION"
	KindAddedFunds            TransactionKind = "ADDED_FUNDS"
	KindHostFee               TransactionKind = "HOST_FEE"
	KindHostFeeShare          TransactionKind = "HOST_FEE_SHARE"
	KindPlatformTip           TransactionKind = "PLATFORM_TIP"
	KindPaymentProcessorCover TransactionKind = "PAYMENT_PROCESSOR_COVER"
	KindExpense               TransactionKind = "EXPENSE"
	KindBalanceCarryforward   TransactionKind = "BALANCE_CARRYFORWARD"
)

// IsFeeOnly reports whether rows of this kind move a fee between accounts
// without fee decomposition of their own.
func (k TransactionKind) IsFeeOnly() bool {
	switch k {
	case KindHostFee, KindHostFeeShare, KindPlatformTip, KindPaymentProcessorCover:
		return true
	}
	return false
}

func (k TransactionKind) Valid() bool {
	switch k {
	case KindContribution, KindAddedFunds, KindHostFee, KindHostFeeShare, KindPlatformTip,
		KindPaymentProcessorCover, KindExpense, KindBalanceCarryforward:
		return true
	}
	return false
}

// Transaction is one side of a double-entry pair. Amount and
// NetAmountInCollectiveCurrency are in Currency; every other amount is in
// HostCurrency minor units.
type Transaction struct {
	ID               int64
	TransactionGroup uuid.UUID
	Type             TransactionType
	Kind             TransactionKind
	Description      string

	Amount                        int64
	Currency                      string
	HostCurrency                  string
	HostCurrencyFxRate            decimal.Decimal
	AmountInHostCurrency          int64
	NetAmountInCollectiveCurrency int64

	HostFeeInHostCurrency             int64
	PlatformFeeInHostCurrency         int64
	PaymentProcessorFeeInHostCurrency int64

	IsRefund            bool
	RefundTransactionID *int64

	OrderID          *int64
	ExpenseID        *int64
	FromCollectiveID int64
	CollectiveID     int64 // the account whose balance this row affects
	HostCollectiveID *int64

	ProcessorChargeID string

	CreatedAt time.Time
	DeletedAt *time.Time
}

// Fees is the sum of the three fee columns.
func (t *Transaction) Fees() int64 {
	return t.HostFeeInHostCurrency + t.PlatformFeeInHostCurrency + t.PaymentProcessorFeeInHostCurrency
}

// CheckInvariant verifies
//
//	amountInHost + hostFee + platformFee + processorFee == net * fxRate
//
// within the rounding tolerance of the row's rate.
func (t *Transaction) CheckInvariant() error {
	fx := t.HostCurrencyFxRate
	if !fx.IsPositive() {
		return &domain.InvariantViolationError{Side: string(t.Type), Kind: string(t.Kind)}
	}
	left := t.AmountInHostCurrency + t.Fees()
	right := decimal.NewFromInt(t.NetAmountInCollectiveCurrency).Mul(fx)
	if decimal.NewFromInt(left).Sub(right).Abs().GreaterThan(money.Tolerance(fx)) {
		return &domain.InvariantViolationError{
			Side:     string(t.Type),
			Kind:     string(t.Kind),
			Expected: right.Round(0).IntPart(),
			Actual:   left,
		}
	}
	return nil
}

func (t *Transaction) IsRefunded() bool { return t.RefundTransactionID != nil }

func (t *Transaction) IsDeleted() bool { return t.DeletedAt != nil }

// TransactionPair is the CREDIT and DEBIT sides of one money movement.
type TransactionPair struct {
	Credit *Transaction
	Debit  *Transaction
}

func (p *TransactionPair) Group() uuid.UUID { return p.Credit.TransactionGroup }

// Validate checks the ledger equation on both sides.
func (p *TransactionPair) Validate() error {
	if err := p.Credit.CheckInvariant(); err != nil {
		return err
	}
	return p.Debit.CheckInvariant()
}

// PairsFromRows groups rows sharing a transaction group and kind into pairs.
// Rows without a counterpart are ignored.
func PairsFromRows(rows []*Transaction) []*TransactionPair {
	type key struct {
		kind     TransactionKind
		isRefund bool
	}
	var (
		order []key
		byKey = map[key]*TransactionPair{}
	)
	for _, r := range rows {
		k := key{r.Kind, r.IsRefund}
		p, ok := byKey[k]
		if !ok {
			p = &TransactionPair{}
			byKey[k] = p
			order = append(order, k)
		}
		if r.Type == TransactionTypeCredit {
			p.Credit = r
		} else {
			p.Debit = r
		}
	}
	out := make([]*TransactionPair, 0, len(order))
	for _, k := range order {
		if p := byKey[k]; p.Credit != nil && p.Debit != nil {
			out = append(out, p)
		}
	}
	return out
}

// TransactionQuery filters ledger reads.
type TransactionQuery struct {
	AccountID      int64
	HostID         *int64
	From           *time.Time
	To             *time.Time
	Type           TransactionType
	Kind           TransactionKind
	IncludeDeleted bool
	Limit          int
	Offset         int
}

// Balance is an account's balance in its own currency.
type Balance struct {
	AccountID int64     `json:"account_id"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
	AsOf      time.Time `json:"as_of"`
}

// HostBalance is the part of an account's balance held under one host and
// host currency.
type HostBalance struct {
	HostCollectiveID *int64
	HostCurrency     string
	Currency         string
	Net              int64 // collective currency
	NetInHost        int64 // host currency: amountInHost + fees
}

// Carryforward is the result of closing a fiscal period.
type Carryforward struct {
	Closing *Transaction
	Opening *Transaction
	Balance int64
	// Warning is set when the balance was spread over several hosts and only
	// the largest part was carried.
	Warning string
}
