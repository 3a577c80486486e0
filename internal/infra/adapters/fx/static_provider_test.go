//go:build !integration

package fx

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collective-ledger/internal/domain"
)

func TestStaticProvider(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	p, err := NewStaticProvider(map[string]string{"EUR/USD": "1.1", "usd/gbp": "0.8"})
	require.NoError(t, err)

	t.Run("should return configured, inverse and identity rates", func(t *testing.T) {
		r, err := p.Rate(ctx, "EUR", "USD", now)
		require.NoError(t, err)
		assert.True(t, r.Equal(decimal.RequireFromString("1.1")))

		r, err = p.Rate(ctx, "GBP", "USD", now)
		require.NoError(t, err)
		assert.True(t, r.Equal(decimal.RequireFromString("1.25")))

		r, err = p.Rate(ctx, "usd", "USD", now)
		require.NoError(t, err)
		assert.True(t, r.Equal(decimal.NewFromInt(1)))
	})

	t.Run("should cross through USD", func(t *testing.T) {
		r, err := p.Rate(ctx, "EUR", "GBP", now)
		require.NoError(t, err)
		assert.True(t, r.Equal(decimal.RequireFromString("0.88")))
	})

	t.Run("should report unknown pairs", func(t *testing.T) {
		_, err := p.Rate(ctx, "JPY", "EUR", now)
		assert.ErrorIs(t, err, domain.ErrFxRateUnavailable)
	})

	t.Run("should reject a malformed table", func(t *testing.T) {
		_, err := NewStaticProvider(map[string]string{"EURUSD": "1.1"})
		assert.Error(t, err)
		_, err = NewStaticProvider(map[string]string{"EUR/USD": "-1"})
		assert.Error(t, err)
	})
}
