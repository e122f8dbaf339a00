package money

import (
	"fmt"
	"math/big"
	"strings"
)

// Token amounts carry 18 fractional digits, fiat/stable amounts carry 6.
// Both are stored as scaled integers (numeric(78,0) in Postgres) and moved
// around as *big.Int; all conversions floor.
const (
	TokenDecimals = 18
	FiatDecimals  = 6

	// BpsDenom is the basis-point denominator: 10000 bps == 100%.
	BpsDenom = 10_000
)

var (
	TokenUnit = pow10(TokenDecimals)
	FiatUnit  = pow10(FiatDecimals)
)

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// Tokens returns whole*10^18.
func Tokens(whole int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(whole), TokenUnit)
}

// Fiat returns whole*10^6.
func Fiat(whole int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(whole), FiatUnit)
}

// Parse converts a decimal string like "78.4" into an integer scaled by
// 10^decimals. Fractional digits beyond the scale are rejected rather than
// silently truncated.
func Parse(s string, decimals int) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("money: empty amount")
	}
	neg := false
	if s[0] == '-' {
		neg = true
		s = s[1:]
	}
	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > decimals {
		return nil, fmt.Errorf("money: %q has more than %d fractional digits", s, decimals)
	}
	frac += strings.Repeat("0", decimals-len(frac))
	v, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, fmt.Errorf("money: invalid amount %q", s)
	}
	if neg {
		v.Neg(v)
	}
	return v, nil
}

// Format renders a scaled integer back as a decimal string, trimming
// trailing zeros from the fractional part.
func Format(v *big.Int, decimals int) string {
	if v == nil {
		return "0"
	}
	abs := new(big.Int).Abs(v)
	q, r := new(big.Int).QuoRem(abs, pow10(decimals), new(big.Int))
	out := q.String()
	if r.Sign() != 0 {
		frac := fmt.Sprintf("%0*s", decimals, r.String())
		frac = strings.TrimRight(frac, "0")
		out += "." + frac
	}
	if v.Sign() < 0 {
		out = "-" + out
	}
	return out
}

// FromNumeric parses the text form of a numeric(78,0) column.
func FromNumeric(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return nil, fmt.Errorf("money: invalid numeric %q", s)
	}
	return v, nil
}

// Numeric renders a value for a $n::numeric parameter.
func Numeric(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// MulDiv returns a*b/den with floor division. den must be nonzero.
func MulDiv(a, b, den *big.Int) *big.Int {
	out := new(big.Int).Mul(a, b)
	return out.Quo(out, den)
}

// Positive reports whether v is a strictly positive amount.
func Positive(v *big.Int) bool {
	return v != nil && v.Sign() > 0
}
