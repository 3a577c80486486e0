package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is a collective, host, organization or individual as seen by the
// ledger. Profile data lives in the account directory; only the fields that
// drive money movement are carried here.
type Account struct {
	ID       int64
	Name     string
	Currency string // ISO 4217, e.g. "USD"
	// HostID is the fiscal host holding this account's money, nil for
	// independent accounts and for hosts themselves.
	HostID             *int64
	HostFeePercent     decimal.Decimal
	PlatformFeePercent decimal.Decimal
	// ProcessorConnectedAt is when the host connected its payment processor
	// account; it drives the legacy refund fee policy.
	ProcessorConnectedAt *time.Time
	// AdminIDs are the accounts allowed to administer this one.
	AdminIDs []int64
}

// IsHosted reports whether the account's money is held by a fiscal host.
func (a *Account) IsHosted() bool { return a.HostID != nil }

// HasAdmin reports whether accountID administers a.
func (a *Account) HasAdmin(accountID int64) bool {
	if a.ID == accountID {
		return true
	}
	for _, id := range a.AdminIDs {
		if id == accountID {
			return true
		}
	}
	return false
}

// Actor is the authenticated caller of an administrative or API operation.
type Actor struct {
	AccountID int64
	// AdminOf lists accounts (hosts, collectives, organizations) the actor
	// administers.
	AdminOf  []int64
	Operator bool // platform operator
	System   bool // scheduler and other internal callers
}

// SystemActor is used by background jobs.
var SystemActor = Actor{System: true, Operator: true}

func (a Actor) IsAdminOf(accountID int64) bool {
	if a.AccountID == accountID {
		return true
	}
	for _, id := range a.AdminOf {
		if id == accountID {
			return true
		}
	}
	return false
}

// CanAdminister reports whether the actor may act on behalf of acc, either
// directly or through the directory's admin list.
func (a Actor) CanAdminister(acc *Account) bool {
	if a.Operator {
		return true
	}
	if acc == nil {
		return false
	}
	return a.IsAdminOf(acc.ID) || acc.HasAdmin(a.AccountID)
}
