package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"collective-ledger/internal/domain/model"
)

// TransactionRepository is the port for ledger rows. Rows are append-only;
// the only mutations are the refund back-reference and soft delete.
type TransactionRepository interface {
	// Insert stores t and sets its ID.
	Insert(ctx context.Context, tx Tx, t *model.Transaction) error
	// FindByID locks the row when called inside a transaction.
	FindByID(ctx context.Context, tx Tx, id int64) (*model.Transaction, error)
	FindByGroup(ctx context.Context, tx Tx, group uuid.UUID) ([]*model.Transaction, error)
	// FindByChargeID returns the non-refund CREDIT row of kind recorded for a
	// processor charge, or domain.ErrNotFound.
	FindByChargeID(ctx context.Context, tx Tx, chargeID string, kind model.TransactionKind) (*model.Transaction, error)
	FindByOrder(ctx context.Context, tx Tx, orderID int64) ([]*model.Transaction, error)
	List(ctx context.Context, tx Tx, q model.TransactionQuery) ([]*model.Transaction, error)

	SetRefundTransactionID(ctx context.Context, tx Tx, id, refundID int64) error
	SoftDeleteGroup(ctx context.Context, tx Tx, group uuid.UUID, at time.Time) (int64, error)

	// SumNet returns the balance of accountID: the sum of net amounts of its
	// non-deleted rows created at or before asOf (nil = now).
	SumNet(ctx context.Context, tx Tx, accountID int64, asOf *time.Time) (int64, error)
	// SumByHost returns the same balance split by host and host currency.
	SumByHost(ctx context.Context, tx Tx, accountID int64, asOf *time.Time) ([]model.HostBalance, error)
}
