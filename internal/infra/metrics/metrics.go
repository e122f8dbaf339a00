package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ExchangeRateUpdates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "perkline_exchange_rate_updates_total",
		Help: "Number of accepted exchange-rate updates.",
	})

	Redemptions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "perkline_redemptions_total",
		Help: "Recorded redemptions by path (inventory or token).",
	}, []string{"path"})

	MembershipPurchases = promauto.NewCounter(prometheus.CounterOpts{
		Name: "perkline_membership_purchases_total",
		Help: "Membership purchases including renewals.",
	})

	ActiveMembers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "perkline_active_members",
		Help: "Active membership counter as tracked by the registry.",
	})

	TreasurySpends = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "perkline_treasury_spends_total",
		Help: "Treasury spends by allocation bucket.",
	}, []string{"bucket"})
)
