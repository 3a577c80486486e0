//go:build !integration

package postgres

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collective-ledger/internal/domain"
	"collective-ledger/internal/domain/model"
	"collective-ledger/internal/infra/security"
)

func newSealed(t *testing.T) (*sealedOrderRepo, *mockInnerOrderRepo) {
	t.Helper()
	svc, err := security.NewEncryptionService(base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef")))
	require.NoError(t, err)
	inner := &mockInnerOrderRepo{}
	return NewSealedOrderRepo(inner, svc, security.IsSealed), inner
}

func TestSealedOrderRepo(t *testing.T) {
	ctx := context.Background()

	t.Run("should store the token sealed and read it back in clear", func(t *testing.T) {
		repo, inner := newSealed(t)
		o := &model.Order{Amount: 500, Currency: "USD", PaymentMethod: model.PaymentMethod{Service: "stripe", Token: "pm_card_visa"}}

		require.NoError(t, repo.Create(ctx, nil, o))

		assert.Equal(t, "pm_card_visa", o.PaymentMethod.Token)
		stored := inner.stored[o.ID].PaymentMethod.Token
		assert.True(t, security.IsSealed(stored))
		assert.NotContains(t, stored, "pm_card_visa")

		got, err := repo.FindByID(ctx, nil, o.ID)
		require.NoError(t, err)
		assert.Equal(t, "pm_card_visa", got.PaymentMethod.Token)

		due, err := repo.FindDue(ctx, nil, time.Now(), 0, 10)
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, "pm_card_visa", due[0].PaymentMethod.Token)
	})

	t.Run("should pass through tokens stored before encryption", func(t *testing.T) {
		repo, inner := newSealed(t)
		require.NoError(t, inner.Create(ctx, nil, &model.Order{PaymentMethod: model.PaymentMethod{Token: "pm_legacy"}}))

		got, err := repo.FindByID(ctx, nil, 1)
		require.NoError(t, err)
		assert.Equal(t, "pm_legacy", got.PaymentMethod.Token)
	})

	t.Run("should fail reads of tokens it cannot open", func(t *testing.T) {
		repo, inner := newSealed(t)
		require.NoError(t, inner.Create(ctx, nil, &model.Order{PaymentMethod: model.PaymentMethod{Token: "enc:v1:AAAA"}}))

		_, err := repo.FindByID(ctx, nil, 1)
		assert.ErrorIs(t, err, domain.ErrReadDatabaseRow)
		_, err = repo.ListRecurringByAccount(ctx, nil, 1)
		assert.ErrorIs(t, err, domain.ErrReadDatabaseRow)
	})

	t.Run("should forward not found", func(t *testing.T) {
		repo, _ := newSealed(t)
		_, err := repo.FindByID(ctx, nil, 9)
		assert.ErrorIs(t, err, domain.ErrOrderNotFound)
	})
}
