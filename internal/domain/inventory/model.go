package inventory

import (
	"errors"
	"math/big"
	"time"
)

var (
	ErrInvalidInput       = errors.New("inventory: invalid input")
	ErrInvalidBatch       = errors.New("inventory: invalid batch id")
	ErrNotActive          = errors.New("inventory: batch not active")
	ErrAlreadyActive      = errors.New("inventory: batch already active")
	ErrInsufficientStock  = errors.New("inventory: insufficient stock")
	ErrMarginTooHigh      = errors.New("inventory: margin exceeds 10000 bps")
	ErrInvalidRange       = errors.New("inventory: invalid id range")
	ErrStockBelowRedeemed = errors.New("inventory: new total below redeemed amount")
)

// Batch is one unit of stock with its own redemption pricing, fixed from
// the pricing engine when the batch is created or repriced. id, productType
// and code are immutable after creation; batches are deactivated, never
// deleted.
type Batch struct {
	ID             int64
	ProductType    int64
	CostFiat       *big.Int // 6dp manufacturing cost
	MarginBps      int64
	RegularRate    *big.Int // 18dp tokens per unit
	DiscountedRate *big.Int // 18dp
	TotalStock     int64
	RemainingStock int64
	Code           string
	LabRef         string
	Active         bool
	CreatedAt      time.Time
	DeactivatedAt  *time.Time
}

// Redeemed is the number of units already taken out of the batch.
func (b Batch) Redeemed() int64 {
	return b.TotalStock - b.RemainingStock
}

// TokensRequired prices a redemption of qty units against the batch.
func (b Batch) TokensRequired(qty int64, discounted bool) *big.Int {
	rate := b.RegularRate
	if discounted {
		rate = b.DiscountedRate
	}
	if rate == nil {
		return new(big.Int)
	}
	return new(big.Int).Mul(rate, big.NewInt(qty))
}

// CanAdjustTo reports whether total stock may be set to newTotal: the total
// can never shrink below what has already been redeemed.
func (b Batch) CanAdjustTo(newTotal int64) bool {
	return newTotal >= b.Redeemed()
}

// Redeemable checks the preconditions for taking qty units out of the batch.
// Stock is checked before the active flag: a batch that emptied out (and was
// auto-deactivated by depletion) reports insufficient stock, while a batch an
// admin switched off with stock remaining reports inactivity.
func (b Batch) Redeemable(qty int64) error {
	if b.RemainingStock < qty {
		return ErrInsufficientStock
	}
	if !b.Active {
		return ErrNotActive
	}
	return nil
}

// Redemption is one append-only depletion record.
type Redemption struct {
	ID         int64
	Account    string
	BatchID    int64
	Quantity   int64
	Discounted bool
	Tokens     *big.Int
	At         time.Time
}
