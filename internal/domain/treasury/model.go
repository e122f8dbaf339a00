package treasury

import (
	"errors"
	"math/big"
	"time"
)

var (
	ErrInvalidInput        = errors.New("treasury: invalid input")
	ErrUnknownBucket       = errors.New("treasury: unknown bucket")
	ErrExceedsAllocation   = errors.New("treasury: amount exceeds unspent allocation")
	ErrInsufficientBalance = errors.New("treasury: insufficient balance")
	ErrCallerNotAuthorized = errors.New("treasury: caller not authorized")
)

type Currency string

const (
	CurrencyToken  Currency = "token"  // 18dp
	CurrencyStable Currency = "stable" // 6dp
)

type Bucket string

const (
	BucketRewards    Bucket = "rewards"
	BucketMarketing  Bucket = "marketing"
	BucketLiquidity  Bucket = "liquidity"
	BucketTeam       Bucket = "team"
	BucketOperations Bucket = "operations"
)

// bucketCurrency fixes each allocation bucket to one currency: rewards and
// liquidity are paid in tokens, the rest in stable currency.
var bucketCurrency = map[Bucket]Currency{
	BucketRewards:    CurrencyToken,
	BucketLiquidity:  CurrencyToken,
	BucketMarketing:  CurrencyStable,
	BucketTeam:       CurrencyStable,
	BucketOperations: CurrencyStable,
}

func BucketCurrency(b Bucket) (Currency, bool) {
	c, ok := bucketCurrency[b]
	return c, ok
}

func Buckets() []Bucket {
	return []Bucket{BucketRewards, BucketMarketing, BucketLiquidity, BucketTeam, BucketOperations}
}

// State is the treasury's single durable record: actual holdings plus
// cumulative revenue counters. Balances must never be driven negative by a
// spend.
type State struct {
	TokenBalance      *big.Int
	StableBalance     *big.Int
	RevenueMembership *big.Int
	RevenueSale       *big.Int
	RevenueProduct    *big.Int
	UpdatedAt         time.Time
}

func (s State) Balance(c Currency) *big.Int {
	if c == CurrencyToken {
		return s.TokenBalance
	}
	return s.StableBalance
}

// BucketState carries the cumulative allocated and spent counters for one
// bucket. Invariant: Spent <= Allocated at all times.
type BucketState struct {
	Bucket    Bucket
	Currency  Currency
	Allocated *big.Int
	Spent     *big.Int
}

// Outstanding is the reserved-but-unspent portion of the bucket.
func (b BucketState) Outstanding() *big.Int {
	return new(big.Int).Sub(b.Allocated, b.Spent)
}

// Unallocated computes how much of a currency's balance is free to reserve:
// the on-hand balance minus every bucket's outstanding reservation in that
// currency.
func Unallocated(s State, buckets []BucketState, c Currency) *big.Int {
	out := new(big.Int).Set(s.Balance(c))
	for _, b := range buckets {
		if b.Currency == c {
			out.Sub(out, b.Outstanding())
		}
	}
	return out
}

// ProductPurchase is one append-only audit entry of an off-band product
// sale. Funds never move through the treasury for these.
type ProductPurchase struct {
	ID      int64
	OrderID int64
	Caller  string
	Amount  *big.Int // 6dp
	Payload []byte   // opaque encrypted order details, at most 500 bytes
	At      time.Time
}

// MaxPurchasePayload bounds the opaque payload size.
const MaxPurchasePayload = 500
