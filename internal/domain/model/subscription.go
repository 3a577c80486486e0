package model

import (
	"time"
)

// BillingState is derived from a subscription's fields; it is not stored.
type BillingState string

const (
	BillingStateActive      BillingState = "ACTIVE"
	BillingStatePastDue     BillingState = "PAST_DUE"
	BillingStateDeactivated BillingState = "DEACTIVATED"
)

// Subscription is the billing state of a recurring order.
type Subscription struct {
	ID                  int64
	OrderID             int64
	Interval            Interval
	IsActive            bool
	NextChargeDate      *time.Time
	NextPeriodStart     *time.Time
	ChargeRetryCount    int
	BillingDay          int // day of month periods start on, 1..31
	LastChargeAttemptAt *time.Time
	LastFailureReason   string
	DeactivatedAt       *time.Time
	DeactivationReason  string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// NewSubscription returns an active subscription due at now.
func NewSubscription(orderID int64, interval Interval, now time.Time) *Subscription {
	due := now
	return &Subscription{
		OrderID:         orderID,
		Interval:        interval,
		IsActive:        true,
		NextChargeDate:  &due,
		NextPeriodStart: &due,
		BillingDay:      now.Day(),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func (s *Subscription) State() BillingState {
	switch {
	case !s.IsActive:
		return BillingStateDeactivated
	case s.ChargeRetryCount > 0:
		return BillingStatePastDue
	default:
		return BillingStateActive
	}
}

// IsDue reports whether the subscription should be charged at now.
func (s *Subscription) IsDue(now time.Time) bool {
	return s.IsActive && s.NextChargeDate != nil && !s.NextChargeDate.After(now)
}

// Advance moves the subscription to its next billing period after a
// successful charge. Periods that are already in the past are skipped so a
// late charge does not cause a burst of immediate re-charges.
func (s *Subscription) Advance(now time.Time) {
	start := now
	if s.NextPeriodStart != nil {
		start = *s.NextPeriodStart
	}
	next := s.Interval.Next(start, s.BillingDay)
	for !next.After(now) {
		next = s.Interval.Next(next, s.BillingDay)
	}
	s.NextPeriodStart = &next
	due := next
	s.NextChargeDate = &due
	s.ChargeRetryCount = 0
	s.LastFailureReason = ""
	s.LastChargeAttemptAt = &now
	s.UpdatedAt = now
}

// RecordFailure registers a declined charge and schedules the next attempt
// at retryAt. Once the retry count exceeds maxRetries the subscription is
// deactivated instead; the return value reports that case.
func (s *Subscription) RecordFailure(now time.Time, reason string, retryAt time.Time, maxRetries int) bool {
	s.ChargeRetryCount++
	s.LastFailureReason = reason
	s.LastChargeAttemptAt = &now
	s.UpdatedAt = now
	if s.ChargeRetryCount > maxRetries {
		s.Deactivate(now, DeactivationRetriesExhausted)
		return true
	}
	s.NextChargeDate = &retryAt
	return false
}

// DeactivationRetriesExhausted is the reason recorded when billing gives up.
const DeactivationRetriesExhausted = "retries_exhausted"

// Deactivate stops billing. It is idempotent.
func (s *Subscription) Deactivate(now time.Time, reason string) {
	if !s.IsActive {
		return
	}
	s.IsActive = false
	s.DeactivatedAt = &now
	s.DeactivationReason = reason
	s.UpdatedAt = now
}
