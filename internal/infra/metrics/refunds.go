package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(refundsTotal) }

var refundsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "refunds_total",
		Help: "Refunds processed, by fee policy and outcome.",
	},
	[]string{"policy", "status"}, // policy: 'full_fee', 'no_fee'
)

func IncRefund(policy, status string) {
	refundsTotal.WithLabelValues(norm(policy), norm(status)).Inc()
}
