// Package metrics exposes transport measurements as Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/jamesprial/gqlauth/internal/graphql"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gqlauth"

// Collector implements graphql.Metrics on a dedicated registry.
type Collector struct {
	registry *prometheus.Registry

	exchanges       *prometheus.CounterVec
	exchangeSeconds *prometheus.HistogramVec
	refreshes       *prometheus.CounterVec
	refreshSeconds  prometheus.Histogram
	refreshInFlight prometheus.Gauge
	queueDepth      prometheus.Gauge
}

// New registers the transport collectors on a fresh registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		exchanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "exchanges_total",
				Help:      "GraphQL exchanges by operation and outcome.",
			},
			[]string{"operation", "outcome"},
		),
		exchangeSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "exchange_duration_seconds",
				Help:      "Duration of GraphQL exchanges.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		refreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "refreshes_total",
				Help:      "Completed credential refreshes by result.",
			},
			[]string{"result"},
		),
		refreshSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Duration of credential refresh exchanges.",
			Buckets:   prometheus.DefBuckets,
		}),
		refreshInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "refresh_in_flight",
			Help:      "1 while a credential refresh is in flight.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Requests waiting for the credential refresh.",
		}),
	}
	c.registry.MustRegister(
		c.exchanges,
		c.exchangeSeconds,
		c.refreshes,
		c.refreshSeconds,
		c.refreshInFlight,
		c.queueDepth,
	)
	return c
}

func (c *Collector) ObserveExchange(operation string, kind graphql.OutcomeKind, elapsed time.Duration) {
	c.exchanges.WithLabelValues(operation, kind.String()).Inc()
	c.exchangeSeconds.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func (c *Collector) RefreshStarted() {
	c.refreshInFlight.Set(1)
}

func (c *Collector) RefreshFinished(ok bool, elapsed time.Duration) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	c.refreshInFlight.Set(0)
	c.refreshes.WithLabelValues(result).Inc()
	c.refreshSeconds.Observe(elapsed.Seconds())
}

func (c *Collector) SetQueueDepth(n int) {
	c.queueDepth.Set(float64(n))
}

// Registry returns the registry holding the collectors.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

var _ graphql.Metrics = (*Collector)(nil)
