// Package metrics exposes the engine's running counters as Prometheus
// metrics, replacing a hand-rolled text exporter with the standard
// client_golang registry and handler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds every metric the crawler exports.
type Collector struct {
	Registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	ResponsesTotal  *prometheus.CounterVec
	ItemsScraped    prometheus.Counter
	ItemsDropped    prometheus.Counter
	BytesDownloaded prometheus.Counter
	ActiveWorkers   prometheus.Gauge
	QueueDepth      prometheus.Gauge
	ProxyRotations  prometheus.Counter
	ProxyErrors     prometheus.Counter
	FetchDuration   *prometheus.HistogramVec
}

// New builds a Collector and registers every metric on a fresh
// registry, so multiple crawls in one process don't collide on the
// default global registry.
func New() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		Registry: reg,
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "webcrawler",
			Name:      "requests_total",
			Help:      "Total requests dispatched, by outcome.",
		}, []string{"outcome"}),
		ResponsesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "webcrawler",
			Name:      "responses_total",
			Help:      "Total responses received, by status class.",
		}, []string{"class"}),
		ItemsScraped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "webcrawler",
			Name:      "items_scraped_total",
			Help:      "Total items that survived the pipeline.",
		}),
		ItemsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "webcrawler",
			Name:      "items_dropped_total",
			Help:      "Total items dropped by the pipeline.",
		}),
		BytesDownloaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "webcrawler",
			Name:      "bytes_downloaded_total",
			Help:      "Total response bytes downloaded.",
		}),
		ActiveWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "webcrawler",
			Name:      "active_workers",
			Help:      "Current number of busy download workers.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "webcrawler",
			Name:      "queue_depth",
			Help:      "Current number of requests pending in the queue.",
		}),
		ProxyRotations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "webcrawler",
			Name:      "proxy_rotations_total",
			Help:      "Total proxy selections made by the proxy pool.",
		}),
		ProxyErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "webcrawler",
			Name:      "proxy_errors_total",
			Help:      "Total proxy invalidations due to fetch errors.",
		}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "webcrawler",
			Name:      "fetch_duration_seconds",
			Help:      "Time spent fetching a single request, by transport.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"transport"}),
	}

	reg.MustRegister(
		c.RequestsTotal,
		c.ResponsesTotal,
		c.ItemsScraped,
		c.ItemsDropped,
		c.BytesDownloaded,
		c.ActiveWorkers,
		c.QueueDepth,
		c.ProxyRotations,
		c.ProxyErrors,
		c.FetchDuration,
	)

	return c
}

// Handler returns an http.Handler serving this collector's metrics in
// Prometheus text exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.Registry, promhttp.HandlerOpts{})
}
