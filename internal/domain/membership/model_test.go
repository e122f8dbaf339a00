package membership

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const year = 365 * 24 * time.Hour

func TestEntitledAndStale(t *testing.T) {
	tests := []struct {
		name     string
		rec      Record
		entitled bool
		stale    bool
	}{
		{
			name:     "live membership",
			rec:      Record{Active: true, ExpiryDate: base.Add(time.Hour)},
			entitled: true,
		},
		{
			name:  "expired but still flagged active",
			rec:   Record{Active: true, ExpiryDate: base.Add(-time.Hour)},
			stale: true,
		},
		{
			name:  "expiring exactly now",
			rec:   Record{Active: true, ExpiryDate: base},
			stale: true,
		},
		{
			name: "revoked",
			rec:  Record{Active: false, ExpiryDate: base.Add(time.Hour)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.entitled, tt.rec.Entitled(base))
			assert.Equal(t, tt.stale, tt.rec.Stale(base))
		})
	}
}

func TestPlanPurchaseFresh(t *testing.T) {
	rec, renewal := PlanPurchase(nil, "alice", base, year)
	assert.False(t, renewal)
	assert.Equal(t, "alice", rec.Account)
	assert.Equal(t, base, rec.PurchaseDate)
	assert.Equal(t, base.Add(year), rec.ExpiryDate)
	assert.Equal(t, int64(0), rec.RenewalCount)
	assert.True(t, rec.Active)
}

func TestPlanPurchaseRenewalExtendsFromOldExpiry(t *testing.T) {
	existing := &Record{
		Account:      "alice",
		PurchaseDate: base.Add(-30 * 24 * time.Hour),
		ExpiryDate:   base.Add(90 * 24 * time.Hour),
		RenewalCount: 2,
		Active:       true,
	}

	rec, renewal := PlanPurchase(existing, "alice", base, year)
	assert.True(t, renewal)
	// remaining time is kept, never clipped to now+duration
	assert.Equal(t, existing.ExpiryDate.Add(year), rec.ExpiryDate)
	assert.Equal(t, int64(3), rec.RenewalCount)
	assert.Equal(t, base, rec.PurchaseDate)
}

func TestPlanPurchaseAfterExpiryStartsFresh(t *testing.T) {
	existing := &Record{
		Account:      "alice",
		ExpiryDate:   base.Add(-time.Hour),
		RenewalCount: 5,
		Active:       true,
	}

	rec, renewal := PlanPurchase(existing, "alice", base, year)
	assert.False(t, renewal)
	assert.Equal(t, base.Add(year), rec.ExpiryDate)
	assert.Equal(t, int64(0), rec.RenewalCount, "lapsed membership resets the streak")
}

func TestPlanExtend(t *testing.T) {
	live := Record{Active: true, ExpiryDate: base.Add(10 * 24 * time.Hour)}
	assert.Equal(t, live.ExpiryDate.Add(30*24*time.Hour), PlanExtend(live, base, 30))

	expired := Record{Active: true, ExpiryDate: base.Add(-10 * 24 * time.Hour)}
	assert.Equal(t, base.Add(30*24*time.Hour), PlanExtend(expired, base, 30))
}
