package repository

import (
	"context"
	"time"

	"collective-ledger/internal/domain/model"
)

// OrderRepository is the port for orders. Reads populate Subscription when
// the order is recurring.
type OrderRepository interface {
	Create(ctx context.Context, tx Tx, o *model.Order) error
	FindByID(ctx context.Context, tx Tx, id int64) (*model.Order, error)
	UpdateStatus(ctx context.Context, tx Tx, id int64, status model.OrderStatus) error
	// FindDue returns up to limit orders with an active subscription whose
	// next charge date is at or before now, with id > afterID, ordered by id.
	FindDue(ctx context.Context, tx Tx, now time.Time, afterID int64, limit int) ([]*model.Order, error)
	// ListRecurringByAccount returns orders paying to or from accountID that
	// still have an active subscription.
	ListRecurringByAccount(ctx context.Context, tx Tx, accountID int64) ([]*model.Order, error)
}
