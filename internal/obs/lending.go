package obs

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/peace-bassey/BitTrust/internal/lending"
)

var (
	loansIssued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bittrust_loans_issued_total",
		Help: "Loans issued.",
	})

	repayments = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bittrust_repayments_total",
		Help: "Repayments accepted, zero-value ones included.",
	})

	loansClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bittrust_loans_closed_total",
			Help: "Loans that reached a terminal status.",
		},
		[]string{"status"},
	)

	treasuryCollateral = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bittrust_treasury_collateral",
		Help: "Collateral currently counted by the protocol treasury.",
	})

	lendingErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bittrust_lending_errors_total",
			Help: "Rejected lending operations by error kind.",
		},
		[]string{"op", "kind"},
	)
)

// LendingMetrics turns committed lending events into metrics.
type LendingMetrics struct{}

var _ lending.EventSink = LendingMetrics{}

func (LendingMetrics) Publish(evt lending.Event) {
	switch evt.Kind {
	case lending.EventLoanIssued:
		loansIssued.Inc()
	case lending.EventRepayment:
		repayments.Inc()
	case lending.EventLoanRepaid:
		loansClosed.WithLabelValues(string(lending.StatusRepaid)).Inc()
	case lending.EventLoanDefaulted:
		loansClosed.WithLabelValues(string(lending.StatusDefaulted)).Inc()
	}
	treasuryCollateral.Set(float64(evt.Treasury))
}

// ObserveLendingError counts a rejected operation.
func ObserveLendingError(op string, err error) {
	if err == nil {
		return
	}
	lendingErrors.WithLabelValues(op, lending.Kind(err)).Inc()
}
