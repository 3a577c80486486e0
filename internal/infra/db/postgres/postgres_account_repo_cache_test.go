//go:build !integration

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collective-ledger/internal/domain"
	"collective-ledger/internal/domain/model"
	"collective-ledger/internal/domain/ports/repository"
)

func TestAccountRepoCacheDecorator(t *testing.T) {
	ctx := context.Background()
	logger := zerolog.Nop()
	hostID := int64(10)
	acc := &model.Account{
		ID:             20,
		Name:           "Webpack",
		Currency:       "USD",
		HostID:         &hostID,
		HostFeePercent: decimal.RequireFromString("7.5"),
		AdminIDs:       []int64{100},
	}
	accJSON, _ := json.Marshal(acc)

	t.Run("should serve a cache hit without touching the database", func(t *testing.T) {
		cache := &mockRedisClient{
			GetFunc: func(ctx context.Context, key string) (string, error) {
				assert.Equal(t, "account:20", key)
				return string(accJSON), nil
			},
		}
		inner := &mockInnerAccountRepo{
			FindByIDFunc: func(ctx context.Context, tx repository.Tx, id int64) (*model.Account, error) {
				t.Fatal("inner repository should not be called on a cache hit")
				return nil, nil
			},
		}
		d := NewAccountRepoCacheDecorator(inner, cache, time.Minute, &logger)

		got, err := d.GetAccount(ctx, 20)

		require.NoError(t, err)
		assert.Equal(t, "Webpack", got.Name)
		assert.Equal(t, hostID, *got.HostID)
		assert.True(t, got.HostFeePercent.Equal(acc.HostFeePercent))
		assert.True(t, got.HasAdmin(100))
	})

	t.Run("should load and store on a miss", func(t *testing.T) {
		var stored []string
		cache := &mockRedisClient{
			SetFunc: func(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
				stored = append(stored, key)
				assert.Equal(t, time.Minute, ttl)
				return nil
			},
		}
		calls := 0
		inner := &mockInnerAccountRepo{
			FindByIDFunc: func(ctx context.Context, tx repository.Tx, id int64) (*model.Account, error) {
				calls++
				return acc, nil
			},
		}
		d := NewAccountRepoCacheDecorator(inner, cache, time.Minute, &logger)

		got, err := d.GetAccount(ctx, 20)

		require.NoError(t, err)
		assert.Equal(t, acc, got)
		assert.Equal(t, 1, calls)
		assert.Equal(t, []string{"account:20"}, stored)
	})

	t.Run("should fall through to the database when redis fails", func(t *testing.T) {
		cache := &mockRedisClient{
			GetFunc: func(ctx context.Context, key string) (string, error) {
				return "", errors.New("connection refused")
			},
		}
		inner := &mockInnerAccountRepo{
			FindByIDFunc: func(ctx context.Context, tx repository.Tx, id int64) (*model.Account, error) {
				return nil, domain.ErrAccountNotFound
			},
		}
		d := NewAccountRepoCacheDecorator(inner, cache, time.Minute, &logger)

		_, err := d.GetAccount(ctx, 404)
		assert.ErrorIs(t, err, domain.ErrAccountNotFound)
	})

	t.Run("should bypass the cache inside a transaction", func(t *testing.T) {
		cache := &mockRedisClient{
			GetFunc: func(ctx context.Context, key string) (string, error) {
				t.Fatal("cache must not be read inside a transaction")
				return "", nil
			},
		}
		inner := &mockInnerAccountRepo{
			FindByIDFunc: func(ctx context.Context, tx repository.Tx, id int64) (*model.Account, error) {
				return acc, nil
			},
		}
		d := NewAccountRepoCacheDecorator(inner, cache, time.Minute, &logger)

		_, err := d.FindByID(ctx, struct{}{}, 20)
		assert.NoError(t, err)
	})

	t.Run("should invalidate after writes", func(t *testing.T) {
		var deleted []string
		cache := &mockRedisClient{
			DelFunc: func(ctx context.Context, keys ...string) error {
				deleted = append(deleted, keys...)
				return nil
			},
		}
		inner := &mockInnerAccountRepo{
			SaveFunc:     func(ctx context.Context, tx repository.Tx, a *model.Account) error { return nil },
			AddAdminFunc: func(ctx context.Context, tx repository.Tx, accountID, adminID int64) error { return nil },
		}
		d := NewAccountRepoCacheDecorator(inner, cache, time.Minute, &logger)

		require.NoError(t, d.Save(ctx, nil, acc))
		require.NoError(t, d.AddAdmin(ctx, nil, 10, 100))

		assert.Equal(t, []string{"account:20", "account:10"}, deleted)
	})
}
