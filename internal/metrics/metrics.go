package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var workflowBuckets = []float64{
	0.05, // 50ms
	0.1,  // 100ms
	0.25, // 250ms
	0.5,  // 500ms
	1.0,  // 1s
	2.5,  // 2.5s
	5.0,  // 5s
	10.0, // 10s
	30.0, // 30s
}

var (
	// ClaimAccountDuration tracks the latency of claim_account workflows
	ClaimAccountDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "infestor_claim_account_duration_seconds",
			Help:    "Duration of claim_account workflows in seconds",
			Buckets: workflowBuckets,
		},
		[]string{"outcome"},
	)

	// CreateAccountDuration tracks the latency of create_claimed_account workflows
	CreateAccountDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "infestor_create_account_duration_seconds",
			Help:    "Duration of create_claimed_account workflows in seconds",
			Buckets: workflowBuckets,
		},
		[]string{"outcome"},
	)

	// GiftCodeRedemptions counts web redemption attempts by outcome
	GiftCodeRedemptions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "infestor_gift_code_redemptions_total",
			Help: "Gift code redemption attempts",
		},
		[]string{"outcome"},
	)

	// GiftCodesIssued counts gift codes inserted into the store
	GiftCodesIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "infestor_gift_codes_issued_total",
			Help: "Gift codes added to the store",
		},
		[]string{"source"}, // operator, reputation, admin_rpc
	)
)

// RecordClaimAccountDuration records the duration of a claim_account workflow
func RecordClaimAccountDuration(outcome string, duration float64) {
	ClaimAccountDuration.WithLabelValues(outcome).Observe(duration)
}

// RecordCreateAccountDuration records the duration of a create_claimed_account workflow
func RecordCreateAccountDuration(outcome string, duration float64) {
	CreateAccountDuration.WithLabelValues(outcome).Observe(duration)
}

// RecordRedemption counts one redemption attempt
func RecordRedemption(outcome string) {
	GiftCodeRedemptions.WithLabelValues(outcome).Inc()
}

// RecordGiftCodesIssued counts n newly stored gift codes
func RecordGiftCodesIssued(source string, n int) {
	GiftCodesIssued.WithLabelValues(source).Add(float64(n))
}
