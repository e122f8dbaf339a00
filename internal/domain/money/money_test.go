package money

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		decimals int
		want     string
		wantErr  bool
	}{
		{name: "whole tokens", in: "100", decimals: 18, want: "100000000000000000000"},
		{name: "fractional tokens", in: "78.4", decimals: 18, want: "78400000000000000000"},
		{name: "fiat with cents", in: "28.5", decimals: 6, want: "28500000"},
		{name: "zero", in: "0", decimals: 6, want: "0"},
		{name: "negative", in: "-1.5", decimals: 6, want: "-1500000"},
		{name: "leading dot", in: ".25", decimals: 6, want: "250000"},
		{name: "too many fractional digits", in: "1.1234567", decimals: 6, wantErr: true},
		{name: "empty", in: "", decimals: 6, wantErr: true},
		{name: "garbage", in: "12a4", decimals: 6, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.in, tt.decimals)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		decimals int
		want     string
	}{
		{name: "whole", in: "100000000000000000000", decimals: 18, want: "100"},
		{name: "trailing zeros trimmed", in: "78400000000000000000", decimals: 18, want: "78.4"},
		{name: "sub-unit", in: "250000", decimals: 6, want: "0.25"},
		{name: "negative", in: "-1500000", decimals: 6, want: "-1.5"},
		{name: "zero", in: "0", decimals: 6, want: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := FromNumeric(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, Format(v, tt.decimals))
		})
	}
}

func TestParseFormatRoundTrip(t *testing.T) {
	v, err := Parse("39.2", 18)
	require.NoError(t, err)
	assert.Equal(t, "39.2", Format(v, 18))
}

func TestMulDivFloors(t *testing.T) {
	// 7*3/2 = 10.5 -> 10
	got := MulDiv(big.NewInt(7), big.NewInt(3), big.NewInt(2))
	assert.Equal(t, int64(10), got.Int64())

	// negative numerators floor toward zero with Quo (truncated division);
	// amounts in the engine are never negative on this path.
	got = MulDiv(big.NewInt(-7), big.NewInt(3), big.NewInt(2))
	assert.Equal(t, int64(-10), got.Int64())
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, "5000000000000000000", Tokens(5).String())
	assert.Equal(t, "28000000", Fiat(28).String())
	assert.True(t, Positive(big.NewInt(1)))
	assert.False(t, Positive(big.NewInt(0)))
	assert.False(t, Positive(nil))
}
