package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		ledgerPairsTotal,
		ledgerInvariantViolationsTotal,
		ledgerUnrecordedMovementsTotal,
		ledgerCarryforwardsTotal,
	)
}

var (
	ledgerPairsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_pairs_recorded_total",
			Help: "Transaction pairs written to the ledger, by kind and refund flag.",
		},
		[]string{"kind", "refund"},
	)

	ledgerInvariantViolationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_invariant_violations_total",
			Help: "Ledger writes blocked because a row broke the amount/fee equation.",
		},
		[]string{"kind"},
	)

	ledgerUnrecordedMovementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_unrecorded_money_movements_total",
			Help: "Processor operations that succeeded but whose ledger write failed. Must stay at zero.",
		},
		[]string{"operation"}, // 'charge', 'refund'
	)

	ledgerCarryforwardsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_carryforwards_total",
			Help: "Balance carryforwards by outcome.",
		},
		[]string{"result"}, // 'written', 'zero', 'multi_host'
	)
)

func IncLedgerPair(kind string, refund bool) {
	r := "false"
	if refund {
		r = "true"
	}
	ledgerPairsTotal.WithLabelValues(norm(kind), r).Inc()
}

func IncInvariantViolation(kind string) {
	ledgerInvariantViolationsTotal.WithLabelValues(norm(kind)).Inc()
}

func IncUnrecordedMovement(operation string) {
	ledgerUnrecordedMovementsTotal.WithLabelValues(norm(operation)).Inc()
}

func IncCarryforward(result string) {
	ledgerCarryforwardsTotal.WithLabelValues(norm(result)).Inc()
}
