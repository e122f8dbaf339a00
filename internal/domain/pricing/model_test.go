package pricing

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perkline/perkline/internal/domain/money"
)

func TestComputeRate(t *testing.T) {
	tests := []struct {
		name      string
		costFiat  string // 6dp
		marginBps int64
		rate      string // 6dp
		want      string // 18dp, formatted
		wantErr   error
	}{
		{
			// 28 fiat, 40% margin, 0.5 fiat/token -> 78.4 tokens
			name: "margin and rate applied", costFiat: "28", marginBps: 4000, rate: "0.5", want: "78.4",
		},
		{
			name: "zero margin", costFiat: "10", marginBps: 0, rate: "1", want: "10",
		},
		{
			name: "full margin doubles", costFiat: "10", marginBps: 10000, rate: "1", want: "20",
		},
		{
			// 1.000001 * 1.5 = 1.5000015 floors at the margin step to 1.500001
			name: "margin step floors", costFiat: "1.000001", marginBps: 5000, rate: "1", want: "1.500001",
		},
		{
			name: "zero cost rejected", costFiat: "0", marginBps: 0, rate: "1", wantErr: ErrInvalidInput,
		},
		{
			name: "zero rate rejected", costFiat: "10", marginBps: 0, rate: "0", wantErr: ErrInvalidInput,
		},
		{
			name: "margin above denominator rejected", costFiat: "10", marginBps: 10001, rate: "1", wantErr: ErrInvalidMargin,
		},
		{
			name: "negative margin rejected", costFiat: "10", marginBps: -1, rate: "1", wantErr: ErrInvalidMargin,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cost, err := money.Parse(tt.costFiat, money.FiatDecimals)
			require.NoError(t, err)
			rate, err := money.Parse(tt.rate, money.FiatDecimals)
			require.NoError(t, err)

			got, err := ComputeRate(cost, tt.marginBps, rate)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, money.Format(got, money.TokenDecimals))
		})
	}
}

func TestDiscount(t *testing.T) {
	// halving floors on odd amounts
	assert.Equal(t, "3", Discount(big.NewInt(7)).String())
	assert.Equal(t, "0", Discount(big.NewInt(1)).String())
	assert.Equal(t, "0", Discount(nil).String())

	regular, err := money.Parse("78.4", money.TokenDecimals)
	require.NoError(t, err)
	assert.Equal(t, "39.2", money.Format(Discount(regular), money.TokenDecimals))
}

func TestBoundsContains(t *testing.T) {
	closed := Bounds{Min: big.NewInt(10), Max: big.NewInt(100)}
	assert.True(t, closed.Contains(big.NewInt(10)))
	assert.True(t, closed.Contains(big.NewInt(100)))
	assert.False(t, closed.Contains(big.NewInt(9)))
	assert.False(t, closed.Contains(big.NewInt(101)))
	assert.False(t, closed.Contains(nil))

	open := Bounds{}
	assert.True(t, open.Contains(big.NewInt(1)))

	halfOpen := Bounds{Min: big.NewInt(10)}
	assert.False(t, halfOpen.Contains(big.NewInt(9)))
	assert.True(t, halfOpen.Contains(big.NewInt(1_000_000_000)))
}
