package inventory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perkline/perkline/internal/domain/money"
)

func testBatch(t *testing.T) Batch {
	t.Helper()
	regular, err := money.Parse("78.4", money.TokenDecimals)
	require.NoError(t, err)
	discounted, err := money.Parse("39.2", money.TokenDecimals)
	require.NoError(t, err)
	return Batch{
		ID:             1,
		CostFiat:       money.Fiat(28),
		MarginBps:      4000,
		RegularRate:    regular,
		DiscountedRate: discounted,
		TotalStock:     100,
		RemainingStock: 60,
		Active:         true,
	}
}

func TestTokensRequired(t *testing.T) {
	b := testBatch(t)

	tests := []struct {
		name       string
		qty        int64
		discounted bool
		want       string
	}{
		{name: "single regular", qty: 1, discounted: false, want: "78.4"},
		{name: "single discounted", qty: 1, discounted: true, want: "39.2"},
		{name: "multiple regular", qty: 3, discounted: false, want: "235.2"},
		{name: "zero quantity", qty: 0, discounted: false, want: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := b.TokensRequired(tt.qty, tt.discounted)
			assert.Equal(t, tt.want, money.Format(got, money.TokenDecimals))
		})
	}
}

func TestTokensRequiredNilRate(t *testing.T) {
	var b Batch
	assert.Equal(t, "0", b.TokensRequired(5, false).String())
}

func TestRedeemable(t *testing.T) {
	tests := []struct {
		name      string
		remaining int64
		active    bool
		qty       int64
		want      error
	}{
		{name: "enough stock", remaining: 60, active: true, qty: 30, want: nil},
		{name: "exactly the remaining stock", remaining: 30, active: true, qty: 30, want: nil},
		{name: "more than remaining", remaining: 30, active: true, qty: 31, want: ErrInsufficientStock},
		{name: "exhausted and auto-deactivated", remaining: 0, active: false, qty: 1, want: ErrInsufficientStock},
		{name: "deactivated with stock left", remaining: 60, active: false, qty: 30, want: ErrNotActive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := testBatch(t)
			b.RemainingStock = tt.remaining
			b.Active = tt.active
			assert.ErrorIs(t, b.Redeemable(tt.qty), tt.want)
		})
	}
}

func TestCanAdjustTo(t *testing.T) {
	b := testBatch(t)
	assert.Equal(t, int64(40), b.Redeemed())

	assert.True(t, b.CanAdjustTo(40), "down to exactly the redeemed amount")
	assert.True(t, b.CanAdjustTo(200))
	assert.False(t, b.CanAdjustTo(39), "below what was already redeemed")
	assert.False(t, b.CanAdjustTo(0))
}
