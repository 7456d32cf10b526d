// Package metrics holds the Prometheus instruments for lookups, credits and payments.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regcheck_lookups_total",
			Help: "Lookups by product and outcome",
		},
		[]string{"product", "outcome"}, // ok, no_entitlement, not_found, upstream_error, ...
	)

	CreditsDebitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regcheck_credits_debited_total",
			Help: "Checks charged, by product and debit source",
		},
		[]string{"product", "source"},
	)

	CreditsGrantedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regcheck_credits_granted_total",
			Help: "Credits added to accounts, by product and kind (purchase or grant)",
		},
		[]string{"product", "kind"},
	)

	PaymentEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regcheck_payment_events_total",
			Help: "Payment webhook events by outcome",
		},
		[]string{"outcome"},
	)

	ProviderCallSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "regcheck_provider_call_seconds",
			Help:    "Latency of vehicle-data provider calls",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		},
		[]string{"endpoint", "outcome"},
	)
)

func RecordLookup(product, outcome string) {
	LookupsTotal.WithLabelValues(product, outcome).Inc()
}

func RecordDebit(product, source string, amount int) {
	CreditsDebitedTotal.WithLabelValues(product, source).Add(float64(amount))
}

func RecordCreditGrant(product, kind string, amount int) {
	CreditsGrantedTotal.WithLabelValues(product, kind).Add(float64(amount))
}

func RecordPaymentEvent(outcome string) {
	PaymentEventsTotal.WithLabelValues(outcome).Inc()
}

// ObserveProviderCall records how long a provider endpoint took since start.
func ObserveProviderCall(endpoint string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	ProviderCallSeconds.WithLabelValues(endpoint, outcome).Observe(time.Since(start).Seconds())
}
