package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

var NoTX interface{}

// TransactionManager executes a function within a database transaction,
// passing the underlying handle via tx.
//
// Repositories detect a tx handle and switch to SELECT ... FOR UPDATE and
// tx-bound Exec/Query. They MUST accept a nil tx (non-transactional path).
//
// tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
//	sub, err := subs.FindByOrderID(ctx, tx, orderID) // row locked until commit
//	...
//	return err
// })
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
	// AdvisoryLock takes a transaction-scoped lock on key; it is released at
	// commit or rollback.
	AdvisoryLock(ctx context.Context, tx Tx, key string) error
}
