// Package metrics exposes Prometheus counters for the onboarding pipeline
// and the HTTP layer.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all Prometheus metrics for the server. Each Collector owns
// its registry so tests can build as many as they like.
type Collector struct {
	registry *prometheus.Registry

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	CardsOnboarded    prometheus.Counter
	IssuesPersisted   prometheus.Counter
	EmbeddingFailures prometheus.Counter
	WebhookOutcomes   *prometheus.CounterVec

	namespace string
}

// NewCollector creates a collector whose metric names are prefixed with namespace.
func NewCollector(namespace string) *Collector {
	c := &Collector{
		registry:  prometheus.NewRegistry(),
		namespace: namespace,
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		CardsOnboarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cards_onboarded_total",
			Help:      "Cards persisted by the onboarding workflow",
		}),
		IssuesPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "issues_persisted_total",
			Help:      "Issues stored with an embedding",
		}),
		EmbeddingFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_failures_total",
			Help:      "Embedding calls that produced no result",
		}),
		WebhookOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_registrations_total",
			Help:      "Issue webhook registration attempts by outcome",
		}, []string{"outcome"}),
	}

	c.registry.MustRegister(
		c.HTTPRequests,
		c.HTTPDuration,
		c.CardsOnboarded,
		c.IssuesPersisted,
		c.EmbeddingFailures,
		c.WebhookOutcomes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the exposition format for this collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// TrackGitHubQuota exports the remaining GitHub request quota, read from
// remaining at scrape time.
func (c *Collector) TrackGitHubQuota(remaining func() int) {
	c.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: c.namespace,
		Name:      "github_rate_limit_remaining",
		Help:      "Last X-RateLimit-Remaining value seen from GitHub",
	}, func() float64 { return float64(remaining()) }))
}

// ObserveRequest records one finished HTTP request.
func (c *Collector) ObserveRequest(method, route, status string, elapsed time.Duration) {
	c.HTTPRequests.WithLabelValues(method, route, status).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObserveOnboarding records the result of one successful card onboarding.
func (c *Collector) ObserveOnboarding(issuesPersisted, embeddingFailures int, webhookOutcome string) {
	c.CardsOnboarded.Inc()
	c.IssuesPersisted.Add(float64(issuesPersisted))
	c.EmbeddingFailures.Add(float64(embeddingFailures))
	c.WebhookOutcomes.WithLabelValues(webhookOutcome).Inc()
}
