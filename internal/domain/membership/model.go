package membership

import (
	"errors"
	"math/big"
	"time"
)

var (
	ErrInvalidInput = errors.New("membership: invalid input")
	ErrNotFound     = errors.New("membership: no record for account")
	ErrNotEntitled  = errors.New("membership: account not currently entitled")
)

// Record is the one time-bound entitlement per account. The stored Active
// flag can go stale after expiry; Entitled is the only authoritative check.
// Records are never deleted.
type Record struct {
	Account      string
	PurchaseDate time.Time
	ExpiryDate   time.Time
	RenewalCount int64
	Active       bool
}

// Entitled is the authoritative entitlement predicate: the stored flag
// alone is insufficient because nothing clears it at the expiry instant.
func (r Record) Entitled(now time.Time) bool {
	return r.Active && r.ExpiryDate.After(now)
}

// Stale reports an expired record still flagged active, i.e. one a sweep
// would fix.
func (r Record) Stale(now time.Time) bool {
	return r.Active && !r.ExpiryDate.After(now)
}

// PlanPurchase computes the record state after a purchase at now. A renewal
// (still entitled) extends from the old expiry; anything else starts fresh
// from now and resets the renewal count.
func PlanPurchase(existing *Record, account string, now time.Time, duration time.Duration) (rec Record, isRenewal bool) {
	if existing != nil && existing.Entitled(now) {
		rec = *existing
		rec.ExpiryDate = existing.ExpiryDate.Add(duration)
		rec.RenewalCount = existing.RenewalCount + 1
		rec.PurchaseDate = now
		rec.Active = true
		return rec, true
	}
	return Record{
		Account:      account,
		PurchaseDate: now,
		ExpiryDate:   now.Add(duration),
		RenewalCount: 0,
		Active:       true,
	}, false
}

// PlanExtend computes the expiry after an admin extension: expired records
// restart relative to now, live ones stack on top of the old expiry.
func PlanExtend(r Record, now time.Time, days int64) time.Time {
	ext := time.Duration(days) * 24 * time.Hour
	if !r.ExpiryDate.After(now) {
		return now.Add(ext)
	}
	return r.ExpiryDate.Add(ext)
}

// Params are the admin-tunable economics of the registry.
type Params struct {
	Cost     *big.Int // 18dp token cost per purchase/renewal
	Duration time.Duration
}

// Stats are the registry's global counters. ActiveCount is maintained by
// purchase/revoke/sweep and floor-clamped at zero; it can temporarily
// overstate membership until a sweep runs.
type Stats struct {
	EverJoined  int64
	ActiveCount int64
	Revenue     *big.Int // 18dp cumulative token revenue
}
