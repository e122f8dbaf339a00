package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perkline/perkline/internal/domain/money"
)

func testLegacyBatch(t *testing.T) LegacyBatch {
	t.Helper()
	rate, err := money.Parse("78.4", money.TokenDecimals)
	require.NoError(t, err)
	return LegacyBatch{
		ID:             1,
		CostFiat:       money.Fiat(28),
		Rate:           rate,
		TotalUnits:     30,
		RemainingUnits: 30,
		Active:         true,
	}
}

func TestLegacyBatchRedeemable(t *testing.T) {
	tests := []struct {
		name      string
		remaining int64
		active    bool
		units     int64
		want      error
	}{
		{name: "enough units", remaining: 30, active: true, units: 30, want: nil},
		{name: "more than remaining", remaining: 30, active: true, units: 31, want: ErrInsufficientStock},
		{name: "exhausted and auto-deactivated", remaining: 0, active: false, units: 1, want: ErrInsufficientStock},
		{name: "deactivated with units left", remaining: 30, active: false, units: 1, want: ErrNotActive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := testLegacyBatch(t)
			b.RemainingUnits = tt.remaining
			b.Active = tt.active
			assert.ErrorIs(t, b.Redeemable(tt.units), tt.want)
		})
	}
}

func TestTokensFor(t *testing.T) {
	b := testLegacyBatch(t)
	assert.Equal(t, "78.4", money.Format(b.TokensFor(1), money.TokenDecimals))
	assert.Equal(t, "235.2", money.Format(b.TokensFor(3), money.TokenDecimals))

	var zero LegacyBatch
	assert.Equal(t, "0", zero.TokensFor(5).String())
}
