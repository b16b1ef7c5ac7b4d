package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "jup_claim_build_info",
			Help: "Build information of jup-claim",
		},
		[]string{"version", "commit", "date"},
	)

	ClaimOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jup_claim_outcomes_total",
			Help: "Total number of wallets by terminal claim state",
		},
		[]string{"state"},
	)

	ClaimAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jup_claim_attempts_total",
			Help: "Total number of claim submit attempts",
		},
		[]string{"result"},
	)

	WalletDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "jup_claim_wallet_duration_seconds",
			Help:    "Time from proof fetch to terminal state per wallet",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 0.1s to ~410s
		},
	)

	DistributorCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jup_claim_distributor_cache_total",
			Help: "Distributor resolver cache lookups",
		},
		[]string{"result"},
	)
)
