// Package metrics exposes ledger activity as Prometheus counters.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

const namespace = "pawnledger"

type Metrics struct {
	registry *prometheus.Registry

	itemsOriginated    *prometheus.CounterVec
	paymentsApplied    prometheus.Counter
	paymentsRejected   *prometheus.CounterVec
	amountReceived     *prometheus.CounterVec
	interestMismatches prometheus.Counter
}

// New registers the ledger collectors, plus the Go and process collectors,
// on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		itemsOriginated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_originated_total",
			Help:      "Pledged items originated, by category.",
		}, []string{"category"}),
		paymentsApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_applied_total",
			Help:      "Payments accepted into an item ledger.",
		}),
		paymentsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_rejected_total",
			Help:      "Payments refused, by reason.",
		}, []string{"reason"}),
		amountReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "amount_received_total",
			Help:      "Money received, split into interest and principal.",
		}, []string{"component"}),
		interestMismatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interest_mismatches_total",
			Help:      "Payments whose declared interest fell outside the tolerance of the projected figure.",
		}),
	}
	reg.MustRegister(m.itemsOriginated, m.paymentsApplied, m.paymentsRejected, m.amountReceived, m.interestMismatches)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ItemOriginated(category string) {
	m.itemsOriginated.WithLabelValues(category).Inc()
}

func (m *Metrics) PaymentApplied(interestPaid, principalPaid decimal.Decimal) {
	m.paymentsApplied.Inc()
	m.amountReceived.WithLabelValues("interest").Add(interestPaid.InexactFloat64())
	m.amountReceived.WithLabelValues("principal").Add(principalPaid.InexactFloat64())
}

func (m *Metrics) PaymentRejected(reason string) {
	m.paymentsRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) InterestMismatch() {
	m.interestMismatches.Inc()
}
