package token

import (
	"errors"
	"math/big"
	"time"
)

var (
	ErrInvalidInput        = errors.New("token: invalid input")
	ErrInsufficientBalance = errors.New("token: insufficient balance")
	ErrNotFound            = errors.New("token: batch not found")
	ErrNotActive           = errors.New("token: batch not active")
	ErrInsufficientStock   = errors.New("token: insufficient batch inventory")
)

// LegacyBatch is this ledger's own inventory record backing circulating
// tokens. It is deliberately independent of the inventory ledger's batches
// and the two are never reconciled; divergence between them is an accepted
// property of the source system.
type LegacyBatch struct {
	ID             int64
	ProductType    int64
	CostFiat       *big.Int // 6dp
	Rate           *big.Int // 18dp tokens per unit, fixed at creation
	TotalUnits     int64
	RemainingUnits int64
	Code           string
	Active         bool
	CreatedAt      time.Time
	DeactivatedAt  *time.Time
}

// Redeemable checks the preconditions for spending units from the batch.
// Stock runs first so an exhausted, auto-deactivated batch reports
// insufficient inventory rather than inactivity.
func (b LegacyBatch) Redeemable(units int64) error {
	if b.RemainingUnits < units {
		return ErrInsufficientStock
	}
	if !b.Active {
		return ErrNotActive
	}
	return nil
}

// TokensFor prices a redemption of units against the batch's fixed rate.
func (b LegacyBatch) TokensFor(units int64) *big.Int {
	if b.Rate == nil {
		return new(big.Int)
	}
	return new(big.Int).Mul(b.Rate, big.NewInt(units))
}

// Redemption is one append-only record of the token-ledger redemption path.
type Redemption struct {
	ID      int64
	Account string
	BatchID int64
	Units   int64
	Tokens  *big.Int
	At      time.Time
}
