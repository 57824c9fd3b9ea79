// Package metrics exposes Prometheus collectors for the exchange and
// enforcement endpoints.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the collectors shared by both QUIC endpoints.
type Metrics struct {
	ExchangeRequestsTotal     *prometheus.CounterVec
	EnforcementRequestsTotal  *prometheus.CounterVec
	EnforcementOutcomesTotal  *prometheus.CounterVec
	TokenValidationDuration   prometheus.Histogram
	RevocationSetSize         prometheus.Gauge
}

// New creates and registers a Metrics set under namespace. Registration
// errors are ignored, so constructing a second Metrics set against a
// registry that already holds one does not fail; that second set's
// collectors are then left unregistered.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ExchangeRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "exchange_requests_total",
				Help:      "Total token-exchange requests by outcome",
			},
			[]string{"outcome"},
		),
		EnforcementRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "enforcement_requests_total",
				Help:      "Total enforcement requests received",
			},
			[]string{"outcome"},
		),
		EnforcementOutcomesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "enforcement_outcomes_total",
				Help:      "Enforcement outcomes by reason code",
			},
			[]string{"reason"},
		),
		TokenValidationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "token_validation_duration_seconds",
				Help:      "Duration of RTA token signature/context/expiry validation",
				Buckets:   prometheus.DefBuckets,
			},
		),
		RevocationSetSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "revocation_set_size",
				Help:      "Current number of revoked sessions known to this node",
			},
		),
	}

	for _, c := range []prometheus.Collector{
		m.ExchangeRequestsTotal,
		m.EnforcementRequestsTotal,
		m.EnforcementOutcomesTotal,
		m.TokenValidationDuration,
		m.RevocationSetSize,
	} {
		_ = reg.Register(c)
	}

	return m
}
