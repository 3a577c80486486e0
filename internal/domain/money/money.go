// Package money holds minor-unit amounts and the currency conversion rules
// shared by every ledger entry.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"collective-ledger/internal/domain"
)

// Money is an amount in minor units (cents) of Currency.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func New(amount int64, currency string) Money {
	return Money{Amount: amount, Currency: strings.ToUpper(currency)}
}

func (m Money) Add(o Money) (Money, error) {
	if m.Currency != o.Currency {
		return Money{}, fmt.Errorf("%w: %s vs %s", domain.ErrCurrencyMismatch, m.Currency, o.Currency)
	}
	return Money{Amount: m.Amount + o.Amount, Currency: m.Currency}, nil
}

func (m Money) Sub(o Money) (Money, error) {
	return m.Add(o.Neg())
}

func (m Money) Neg() Money { return Money{Amount: -m.Amount, Currency: m.Currency} }

func (m Money) IsZero() bool { return m.Amount == 0 }

func (m Money) String() string {
	return fmt.Sprintf("%s %s", decimal.New(m.Amount, -2).StringFixed(2), m.Currency)
}

// One is the identity FX rate used when collective and host share a currency.
var One = decimal.NewFromInt(1)

// ToHost converts an amount in the collective currency into host currency
// minor units, rounding half away from zero.
func ToHost(amount int64, fx decimal.Decimal) int64 {
	return decimal.NewFromInt(amount).Mul(fx).Round(0).IntPart()
}

// FromHost converts a host currency amount back into the collective
// currency, rounding half away from zero.
func FromHost(amountInHost int64, fx decimal.Decimal) int64 {
	if fx.IsZero() {
		return 0
	}
	return decimal.NewFromInt(amountInHost).Div(fx).Round(0).IntPart()
}

// PercentOf returns percent% of amount, rounded half away from zero.
func PercentOf(amount int64, percent decimal.Decimal) int64 {
	return decimal.NewFromInt(amount).Mul(percent).Div(decimal.NewFromInt(100)).Round(0).IntPart()
}

// AsFee returns v as a fee deduction: always zero or negative.
func AsFee(v int64) int64 {
	if v > 0 {
		return -v
	}
	return v
}

// Abs returns |v|.
func Abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// Tolerance is the largest rounding drift allowed between the host side and
// the collective side of a row at rate fx: half a minor unit of whichever
// currency is coarser, in host units. At fx == 1 both sides are integers,
// so any non-zero difference exceeds it.
func Tolerance(fx decimal.Decimal) decimal.Decimal {
	return decimal.Max(fx.Abs(), One).Div(decimal.NewFromInt(2))
}

// ParseRate parses a decimal FX rate and rejects non-positive values.
func ParseRate(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: rate %q", domain.ErrInvalidArgument, s)
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: rate %q must be positive", domain.ErrInvalidArgument, s)
	}
	return d, nil
}
