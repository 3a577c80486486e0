package repository

import (
	"context"

	"collective-ledger/internal/domain/model"
)

// AccountRepository stores the money-relevant part of accounts and their
// admin lists. FindByID returns domain.ErrAccountNotFound for unknown ids.
type AccountRepository interface {
	FindByID(ctx context.Context, tx Tx, id int64) (*model.Account, error)
	// Save inserts a (ID == 0) or updates an account.
	Save(ctx context.Context, tx Tx, a *model.Account) error
	AddAdmin(ctx context.Context, tx Tx, accountID, adminID int64) error
}
