package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Billing sweep metrics
	billingSweepsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "billing_sweeps_total",
		Help: "Total number of billing sweeps executed",
	})

	billingSweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "billing_sweep_duration_seconds",
		Help:    "Duration of a full billing sweep",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
	})

	billingSubscriptionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_subscriptions_processed_total",
		Help: "Subscriptions processed by the billing sweep, by outcome",
	}, []string{
		"outcome", // charged, failed, suspended, skipped
		"cycle",   // monthly, yearly, test
	})

	// Charge metrics
	chargeAmountTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_charge_amount_total",
		Help: "Total charged amount in KRW, by outcome",
	}, []string{"outcome", "cycle"})

	chargeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "billing_charge_duration_seconds",
		Help:    "Gateway round-trip time for a single charge attempt",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"outcome"})

	// Checkout confirm metrics
	confirmsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_confirms_total",
		Help: "Checkout confirmations, by result",
	}, []string{
		"result", // confirmed, already_processed, declined, error
	})
)

// RecordSweep records one completed billing sweep.
func RecordSweep(duration time.Duration) {
	billingSweepsTotal.Inc()
	billingSweepDuration.Observe(duration.Seconds())
}

// RecordSubscriptionOutcome records the outcome of one swept subscription.
func RecordSubscriptionOutcome(outcome, cycle string, amount int64) {
	billingSubscriptionsTotal.WithLabelValues(outcome, cycle).Inc()
	if amount > 0 {
		chargeAmountTotal.WithLabelValues(outcome, cycle).Add(float64(amount))
	}
}

// RecordChargeDuration records the gateway round-trip for a charge attempt.
func RecordChargeDuration(outcome string, duration time.Duration) {
	chargeDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordConfirm records the result of a checkout confirmation.
func RecordConfirm(result string) {
	confirmsTotal.WithLabelValues(result).Inc()
}
