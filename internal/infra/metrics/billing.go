package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"collective-ledger/internal/domain/model"
)

func init() {
	register(
		chargesTotal,
		chargedAmountTotal,
		billingRunDuration,
		billingRunsTotal,
		subscriptionsByState,
	)
}

var (
	chargesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_charges_total",
			Help: "Recurring charge attempts by processor and outcome.",
		},
		[]string{"processor", "status"},
	)

	chargedAmountTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_charged_amount_total",
			Help: "Successfully charged amount in minor units, by currency.",
		},
		[]string{"currency"},
	)

	billingRunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "billing_run_duration_seconds",
			Help:    "Wall time of a billing run.",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 300, 900, 1800},
		},
	)

	billingRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_runs_total",
			Help: "Billing runs by result.",
		},
		[]string{"result"}, // 'completed', 'locked', 'failed'
	)

	subscriptionsByState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "subscriptions_total",
			Help: "Current number of subscriptions by billing state.",
		},
		[]string{"state"},
	)
)

func IncCharge(processor string, status model.ItemStatus) {
	chargesTotal.WithLabelValues(norm(processor), norm(string(status))).Inc()
}

func AddChargedAmount(currency string, amount int64) {
	chargedAmountTotal.WithLabelValues(norm(currency)).Add(float64(amount))
}

func ObserveBillingRun(result string, d time.Duration) {
	billingRunsTotal.WithLabelValues(norm(result)).Inc()
	if d > 0 {
		billingRunDuration.Observe(d.Seconds())
	}
}

func SetSubscriptionsByState(counts map[model.BillingState]int) {
	for _, s := range []model.BillingState{model.BillingStateActive, model.BillingStatePastDue, model.BillingStateDeactivated} {
		subscriptionsByState.WithLabelValues(norm(string(s))).Set(float64(counts[s]))
	}
}
