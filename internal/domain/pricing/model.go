package pricing

import (
	"errors"
	"math/big"
	"time"

	"github.com/perkline/perkline/internal/domain/money"
)

var (
	ErrInvalidInput   = errors.New("pricing: invalid input")
	ErrUnknownProduct = errors.New("pricing: unknown product type")
	ErrInvalidMargin  = errors.New("pricing: margin exceeds 10000 bps")
	ErrOutOfBounds    = errors.New("pricing: exchange rate out of bounds")
)

// ProductType holds the per-product margin applied on top of the
// manufacturing cost.
type ProductType struct {
	ID        int64
	Name      string
	MarginBps int64
	CreatedAt time.Time
}

// ExchangeRate is the single global price of one token unit in
// stable-currency units (6dp). Every update records who and when.
type ExchangeRate struct {
	Value     *big.Int
	UpdatedBy string
	UpdatedAt time.Time
}

// Bounds limit admissible exchange-rate values, inclusive. A nil end leaves
// that side open.
type Bounds struct {
	Min *big.Int
	Max *big.Int
}

func (b Bounds) Contains(v *big.Int) bool {
	if v == nil {
		return false
	}
	if b.Min != nil && v.Cmp(b.Min) < 0 {
		return false
	}
	if b.Max != nil && v.Cmp(b.Max) > 0 {
		return false
	}
	return true
}

// ComputeRate converts a fiat manufacturing cost (6dp) plus a margin into
// the token quantity (18dp) required to cover it at the given exchange rate
// (6dp per token unit):
//
//	tokenQty = fiatCost * (10000 + marginBps) / 10000 * 10^18 / rate
//
// All divisions floor. The result is a pure function of its arguments;
// after a rate change callers must recompute explicitly.
func ComputeRate(fiatCost *big.Int, marginBps int64, rate *big.Int) (*big.Int, error) {
	if !money.Positive(fiatCost) {
		return nil, ErrInvalidInput
	}
	if marginBps < 0 || marginBps > money.BpsDenom {
		return nil, ErrInvalidMargin
	}
	if !money.Positive(rate) {
		return nil, ErrInvalidInput
	}
	withMargin := new(big.Int).Mul(fiatCost, big.NewInt(money.BpsDenom+marginBps))
	withMargin.Quo(withMargin, big.NewInt(money.BpsDenom))
	den := rate
	return money.MulDiv(withMargin, money.TokenUnit, den), nil
}

// Discount halves a regular rate with floor division.
func Discount(regular *big.Int) *big.Int {
	if regular == nil {
		return new(big.Int)
	}
	return new(big.Int).Quo(regular, big.NewInt(2))
}
