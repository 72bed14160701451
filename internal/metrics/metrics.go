package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "engagement"

// Metrics holds all Prometheus collectors for the crawler, notifier and API.
type Metrics struct {
	// Crawler
	PostsCrawled  *prometheus.CounterVec
	CrawlFailures *prometheus.CounterVec
	StoreFailures *prometheus.CounterVec
	FetchRetries  *prometheus.CounterVec

	// Event log
	EventsAppended   *prometheus.CounterVec
	EventsDispatched *prometheus.CounterVec

	// Scoring
	ScoringDuration *prometheus.HistogramVec
	ScoringErrors   *prometheus.CounterVec
	NotifierState   *prometheus.GaugeVec

	// Live stream
	StreamClients prometheus.Gauge
	StreamDropped prometheus.Counter

	registry *prometheus.Registry
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		PostsCrawled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "posts_crawled_total",
			Help:      "Posts upserted by the crawler.",
		}, []string{"platform"}),
		CrawlFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crawl_failures_total",
			Help:      "Account crawls aborted, by reason.",
		}, []string{"platform", "reason"}),
		StoreFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_write_failures_total",
			Help:      "Store writes that failed and were dropped.",
		}, []string{"platform", "kind"}),
		FetchRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_retries_total",
			Help:      "Provider requests retried after a transient failure.",
		}, []string{"platform"}),
		EventsAppended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_appended_total",
			Help:      "Crawl completion events appended to the event log.",
		}, []string{"platform"}),
		EventsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dispatched_total",
			Help:      "Events read by the notifier, by outcome.",
		}, []string{"platform", "outcome"}),
		ScoringDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scoring_duration_seconds",
			Help:      "Time spent computing scores.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"platform", "kind"}),
		ScoringErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scoring_errors_total",
			Help:      "Scoring runs that failed.",
		}, []string{"platform", "kind"}),
		NotifierState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "notifier_state",
			Help:      "1 for the current notifier state, 0 otherwise.",
		}, []string{"platform", "state"}),
		StreamClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_clients",
			Help:      "Connected live stream subscribers.",
		}),
		StreamDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_dropped_clients_total",
			Help:      "Subscribers disconnected for falling behind.",
		}),
		registry: reg,
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.PostsCrawled,
		m.CrawlFailures,
		m.StoreFailures,
		m.FetchRetries,
		m.EventsAppended,
		m.EventsDispatched,
		m.ScoringDuration,
		m.ScoringErrors,
		m.NotifierState,
		m.StreamClients,
		m.StreamDropped,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
