package adapter

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"collective-ledger/internal/domain/model"
)

// AccountDirectory resolves accounts (collectives, hosts, individuals) by id.
// It returns domain.ErrAccountNotFound for unknown ids.
type AccountDirectory interface {
	GetAccount(ctx context.Context, id int64) (*model.Account, error)
}

// FxRateProvider returns how many units of to one unit of from is worth at.
type FxRateProvider interface {
	Rate(ctx context.Context, from, to string, at time.Time) (decimal.Decimal, error)
}
