package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metricsRegistry also serves as the portal.Observer of the session.
type metricsRegistry struct {
	registry        *prometheus.Registry
	claimsTotal     *prometheus.CounterVec
	balanceQueries  *prometheus.CounterVec
	reconciliations *prometheus.CounterVec
	claimInFlight   prometheus.Gauge
}

func newMetricsRegistry() *metricsRegistry {
	claims := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "axal_claims_total",
		Help: "Claim attempts by outcome",
	}, []string{"status"})

	queries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "axal_balance_queries_total",
		Help: "Balance reads against the balance contract",
	}, []string{"result"})

	recon := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "axal_reconciliations_total",
		Help: "Delayed balance reads that replaced an optimistic value",
	}, []string{"result"})

	inFlight := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "axal_claim_in_flight",
		Help: "1 while a claim is awaiting confirmation",
	})

	r := prometheus.NewRegistry()
	r.MustRegister(claims, queries, recon, inFlight)

	return &metricsRegistry{
		registry:        r,
		claimsTotal:     claims,
		balanceQueries:  queries,
		reconciliations: recon,
		claimInFlight:   inFlight,
	}
}

func (m *metricsRegistry) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metricsRegistry) ClaimFinished(status string) {
	m.claimsTotal.WithLabelValues(status).Inc()
}

func (m *metricsRegistry) BalanceQueried(ok bool) {
	m.balanceQueries.WithLabelValues(result(ok)).Inc()
}

func (m *metricsRegistry) Reconciled(ok bool) {
	m.reconciliations.WithLabelValues(result(ok)).Inc()
}

func (m *metricsRegistry) ClaimInFlight(inFlight bool) {
	if inFlight {
		m.claimInFlight.Set(1)
		return
	}
	m.claimInFlight.Set(0)
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
