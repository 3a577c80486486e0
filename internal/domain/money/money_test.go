//go:build !integration

package money_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collective-ledger/internal/domain"
	"collective-ledger/internal/domain/money"
)

func TestMoney_Add(t *testing.T) {
	t.Run("should add amounts of the same currency", func(t *testing.T) {
		got, err := money.New(1500, "usd").Add(money.New(250, "USD"))
		require.NoError(t, err)
		assert.Equal(t, money.Money{Amount: 1750, Currency: "USD"}, got)
	})

	t.Run("should reject mixed currencies", func(t *testing.T) {
		_, err := money.New(1500, "USD").Add(money.New(250, "EUR"))
		assert.True(t, errors.Is(err, domain.ErrCurrencyMismatch))
	})

	t.Run("should format minor units", func(t *testing.T) {
		assert.Equal(t, "-17.50 EUR", money.New(-1750, "EUR").String())
	})
}

func TestConversions(t *testing.T) {
	fx := decimal.RequireFromString("1.1")

	t.Run("should round half away from zero", func(t *testing.T) {
		assert.Equal(t, int64(2), money.ToHost(5, decimal.RequireFromString("0.3")))   // 1.5
		assert.Equal(t, int64(-2), money.ToHost(-5, decimal.RequireFromString("0.3"))) // -1.5
		assert.Equal(t, int64(4341), money.FromHost(4775, fx))
	})

	t.Run("should return zero for a zero rate", func(t *testing.T) {
		assert.Equal(t, int64(0), money.FromHost(100, decimal.Zero))
	})

	t.Run("should compute percentage fees", func(t *testing.T) {
		assert.Equal(t, int64(500), money.PercentOf(5000, decimal.NewFromInt(10)))
		assert.Equal(t, int64(13), money.PercentOf(250, decimal.RequireFromString("5.1")))
	})

	t.Run("should always store fees as deductions", func(t *testing.T) {
		assert.Equal(t, int64(-175), money.AsFee(175))
		assert.Equal(t, int64(-175), money.AsFee(-175))
		assert.Equal(t, int64(0), money.AsFee(0))
	})

	t.Run("should tolerate nothing at parity", func(t *testing.T) {
		assert.True(t, money.Tolerance(money.One).LessThan(decimal.NewFromInt(1)))
		assert.True(t, money.Tolerance(fx).Equal(decimal.RequireFromString("0.55")))
		assert.True(t, money.Tolerance(decimal.RequireFromString("0.3")).Equal(decimal.RequireFromString("0.5")))
	})
}

func TestParseRate(t *testing.T) {
	r, err := money.ParseRate(" 0.92 ")
	require.NoError(t, err)
	assert.True(t, r.Equal(decimal.RequireFromString("0.92")))

	for _, bad := range []string{"", "abc", "0", "-1.2"} {
		_, err := money.ParseRate(bad)
		assert.ErrorIs(t, err, domain.ErrInvalidArgument, bad)
	}
}
