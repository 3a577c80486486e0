package postgres

import (
	"context"
	"fmt"
	"time"

	"collective-ledger/internal/domain"
	"collective-ledger/internal/domain/model"
	"collective-ledger/internal/domain/ports/repository"
)

// TokenCipher seals payment method tokens; *security.EncryptionService
// implements it.
type TokenCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(sealed string) (string, error)
}

var _ repository.OrderRepository = (*sealedOrderRepo)(nil)

// sealedOrderRepo stores payment method tokens encrypted and hands them back
// in clear. Tokens written before encryption was enabled are returned as is.
type sealedOrderRepo struct {
	inner    repository.OrderRepository
	cipher   TokenCipher
	isSealed func(string) bool
}

func NewSealedOrderRepo(inner repository.OrderRepository, cipher TokenCipher, isSealed func(string) bool) *sealedOrderRepo {
	return &sealedOrderRepo{inner: inner, cipher: cipher, isSealed: isSealed}
}

func (r *sealedOrderRepo) Create(ctx context.Context, tx repository.Tx, o *model.Order) error {
	if o == nil {
		return domain.ErrInvalidArgument
	}
	clear := o.PaymentMethod.Token
	sealed, err := r.cipher.Encrypt(clear)
	if err != nil {
		return fmt.Errorf("%w: seal payment token: %v", domain.ErrOperationFailed, err)
	}
	o.PaymentMethod.Token = sealed
	err = r.inner.Create(ctx, tx, o)
	o.PaymentMethod.Token = clear
	return err
}

func (r *sealedOrderRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.Order, error) {
	o, err := r.inner.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := r.open(o); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *sealedOrderRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id int64, status model.OrderStatus) error {
	return r.inner.UpdateStatus(ctx, tx, id, status)
}

func (r *sealedOrderRepo) FindDue(ctx context.Context, tx repository.Tx, now time.Time, afterID int64, limit int) ([]*model.Order, error) {
	return r.openAll(r.inner.FindDue(ctx, tx, now, afterID, limit))
}

func (r *sealedOrderRepo) ListRecurringByAccount(ctx context.Context, tx repository.Tx, accountID int64) ([]*model.Order, error) {
	return r.openAll(r.inner.ListRecurringByAccount(ctx, tx, accountID))
}

func (r *sealedOrderRepo) openAll(orders []*model.Order, err error) ([]*model.Order, error) {
	if err != nil {
		return nil, err
	}
	for _, o := range orders {
		if err := r.open(o); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (r *sealedOrderRepo) open(o *model.Order) error {
	if !r.isSealed(o.PaymentMethod.Token) {
		return nil
	}
	clear, err := r.cipher.Decrypt(o.PaymentMethod.Token)
	if err != nil {
		return fmt.Errorf("%w: order %d payment token: %v", domain.ErrReadDatabaseRow, o.ID, err)
	}
	o.PaymentMethod.Token = clear
	return nil
}
