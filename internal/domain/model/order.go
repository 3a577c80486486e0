package model

import (
	"fmt"
	"strings"
	"time"

	"collective-ledger/internal/domain"
)

type OrderStatus string

const (
	OrderStatusNew       OrderStatus = "NEW"
	OrderStatusPaid      OrderStatus = "PAID"      // one-time order charged
	OrderStatusActive    OrderStatus = "ACTIVE"    // recurring order charged at least once
	OrderStatusPaused    OrderStatus = "PAUSED"    // recurring contributions suspended by an admin
	OrderStatusCancelled OrderStatus = "CANCELLED" // terminal
	OrderStatusError     OrderStatus = "ERROR"     // retries exhausted
)

type Interval string

const (
	IntervalNone  Interval = ""
	IntervalMonth Interval = "month"
	IntervalYear  Interval = "year"
)

func ParseInterval(s string) (Interval, error) {
	switch Interval(strings.ToLower(strings.TrimSpace(s))) {
	case IntervalNone:
		return IntervalNone, nil
	case IntervalMonth:
		return IntervalMonth, nil
	case IntervalYear:
		return IntervalYear, nil
	}
	return IntervalNone, fmt.Errorf("%w: interval %q", domain.ErrInvalidArgument, s)
}

// Next returns t advanced by one interval, on billingDay of the target month
// or on its last day when the month is shorter. billingDay <= 0 keeps t's day.
func (i Interval) Next(t time.Time, billingDay int) time.Time {
	if billingDay <= 0 {
		billingDay = t.Day()
	}
	y, m := t.Year(), t.Month()
	if i == IntervalYear {
		y++
	} else {
		m++
	}
	first := time.Date(y, m, 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := first.AddDate(0, 1, -1).Day(); billingDay > last {
		billingDay = last
	}
	return first.AddDate(0, 0, billingDay-1)
}

// PaymentMethod is the stored instrument charged for an order.
type PaymentMethod struct {
	Service string // processor name, e.g. "stripe"
	Token   string // processor-side reference
}

// Order is a backer's intent to pay a collective, once or on an interval.
type Order struct {
	ID                 int64
	FromAccountID      int64
	ToAccountID        int64
	CreatedByAccountID int64
	Amount             int64 // minor units of Currency, excluding the platform tip
	PlatformTipAmount  int64
	Currency           string
	Status             OrderStatus
	Interval           Interval
	PaymentMethod      PaymentMethod
	Description        string
	CreatedAt          time.Time
	UpdatedAt          time.Time

	Subscription *Subscription // nil for one-time orders
}

// TotalAmount is what the processor charges.
func (o *Order) TotalAmount() int64 { return o.Amount + o.PlatformTipAmount }

func (o *Order) IsRecurring() bool { return o.Interval != IntervalNone }

// StatusAfterCharge is the status an order moves to after a successful charge.
func (o *Order) StatusAfterCharge() OrderStatus {
	if o.IsRecurring() {
		return OrderStatusActive
	}
	return OrderStatusPaid
}

// CanTransition reports whether status may move to next.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	if s == next {
		return true
	}
	switch s {
	case OrderStatusCancelled:
		return false
	case OrderStatusNew:
		return true
	case OrderStatusActive, OrderStatusPaused, OrderStatusError:
		return next != OrderStatusNew && next != OrderStatusPaid
	case OrderStatusPaid:
		return next == OrderStatusCancelled
	}
	return false
}

// Validate checks the fields a caller supplies when creating an order.
func (o *Order) Validate() error {
	switch {
	case o.Amount <= 0:
		return fmt.Errorf("%w: amount must be positive", domain.ErrInvalidArgument)
	case o.PlatformTipAmount < 0:
		return fmt.Errorf("%w: platform tip must not be negative", domain.ErrInvalidArgument)
	case len(o.Currency) != 3:
		return fmt.Errorf("%w: currency %q", domain.ErrInvalidArgument, o.Currency)
	case o.FromAccountID == 0 || o.ToAccountID == 0:
		return fmt.Errorf("%w: from and to accounts are required", domain.ErrInvalidArgument)
	case o.FromAccountID == o.ToAccountID:
		return fmt.Errorf("%w: an account cannot contribute to itself", domain.ErrInvalidArgument)
	case o.PaymentMethod.Service == "":
		return fmt.Errorf("%w: payment method is required", domain.ErrInvalidArgument)
	}
	return nil
}
