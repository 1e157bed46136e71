// Package metrics exposes deal-flow counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dealflow"

// Metrics groups the collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry    *prometheus.Registry
	transitions *prometheus.CounterVec
	expired     prometheus.Counter
	webhooks    *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Deal transitions handled, by transition and outcome.",
		}, []string{"transition", "outcome"}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_expired_total",
			Help:      "Listings expired by the sweeper.",
		}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_deliveries_total",
			Help:      "Automation webhook deliveries, by kind and outcome.",
		}, []string{"kind", "outcome"}),
	}
	m.registry.MustRegister(m.transitions, m.expired, m.webhooks)
	m.registry.MustRegister(collectors.NewGoCollector())
	return m
}

func (m *Metrics) Transition(name, outcome string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(name, outcome).Inc()
}

func (m *Metrics) Expired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.expired.Add(float64(n))
}

func (m *Metrics) Webhook(kind, outcome string) {
	if m == nil {
		return
	}
	m.webhooks.WithLabelValues(kind, outcome).Inc()
}

// Handler serves the exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
