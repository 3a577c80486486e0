package repository

import (
	"context"

	"collective-ledger/internal/domain/model"
)

// SubscriptionRepository is the port for the billing state of recurring orders.
type SubscriptionRepository interface {
	Create(ctx context.Context, tx Tx, s *model.Subscription) error
	// FindByOrderID locks the row when called inside a transaction.
	FindByOrderID(ctx context.Context, tx Tx, orderID int64) (*model.Subscription, error)
	Save(ctx context.Context, tx Tx, s *model.Subscription) error
	CountByState(ctx context.Context, tx Tx) (map[model.BillingState]int, error)
}
