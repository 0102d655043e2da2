package reconciliation

import "github.com/prometheus/client_golang/prometheus"

var (
	reconcileAccountsChecked = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sentra",
		Subsystem: "reconciliation",
		Name:      "accounts_checked",
		Help:      "Number of accounts checked in the last sweep.",
	})

	reconcileLedgerMismatches = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sentra",
		Subsystem: "reconciliation",
		Name:      "ledger_mismatches",
		Help:      "Number of ledger balance mismatches found in the last sweep.",
	})

	reconcileStateMismatches = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sentra",
		Subsystem: "reconciliation",
		Name:      "state_mismatches",
		Help:      "Number of account state mismatches found in the last sweep.",
	})

	reconcileDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "sentra",
		Subsystem: "reconciliation",
		Name:      "run_duration_seconds",
		Help:      "Duration of reconciliation sweeps in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	reconcileErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sentra",
		Subsystem: "reconciliation",
		Name:      "errors_total",
		Help:      "Total reconciliation check errors.",
	})
)

func init() {
	prometheus.MustRegister(
		reconcileAccountsChecked,
		reconcileLedgerMismatches,
		reconcileStateMismatches,
		reconcileDuration,
		reconcileErrors,
	)
}
