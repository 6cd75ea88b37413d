// Package metrics backs the circulation MetricsCollector port with
// Prometheus.
package metrics

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "circulation"

// Collector registers one Prometheus vector per metric name on first use.
// Label keys must stay stable per metric name, which holds for all metrics
// the ledger and the HTTP layer emit.
type Collector struct {
	registry *prometheus.Registry

	mu         sync.Mutex
	histograms map[string]*prometheus.HistogramVec
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
}

// NewCollector creates a collector with its own registry, including the
// standard Go and process collectors.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Collector{
		registry:   registry,
		histograms: make(map[string]*prometheus.HistogramVec),
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
	}
}

// Handler returns the scrape endpoint handler for the collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordDuration observes the duration in seconds on a histogram named
// after the metric.
func (c *Collector) RecordDuration(metric string, duration time.Duration, labels map[string]string) {
	c.histogram(metric, labelKeys(labels)).With(labels).Observe(duration.Seconds())
}

// IncrementCounter increments the counter named after the metric.
func (c *Collector) IncrementCounter(metric string, labels map[string]string) {
	c.counter(metric, labelKeys(labels)).With(labels).Inc()
}

// RecordValue sets the gauge named after the metric.
func (c *Collector) RecordValue(metric string, value float64, labels map[string]string) {
	c.gauge(metric, labelKeys(labels)).With(labels).Set(value)
}

func (c *Collector) histogram(metric string, keys []string) *prometheus.HistogramVec {
	c.mu.Lock()
	defer c.mu.Unlock()

	vec, exists := c.histograms[metric]
	if !exists {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      metric + "_seconds",
			Help:      "Duration of " + metric + ".",
			Buckets:   prometheus.DefBuckets,
		}, keys)
		c.registry.MustRegister(vec)
		c.histograms[metric] = vec
	}

	return vec
}

func (c *Collector) counter(metric string, keys []string) *prometheus.CounterVec {
	c.mu.Lock()
	defer c.mu.Unlock()

	vec, exists := c.counters[metric]
	if !exists {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      metric,
			Help:      "Count of " + metric + ".",
		}, keys)
		c.registry.MustRegister(vec)
		c.counters[metric] = vec
	}

	return vec
}

func (c *Collector) gauge(metric string, keys []string) *prometheus.GaugeVec {
	c.mu.Lock()
	defer c.mu.Unlock()

	vec, exists := c.gauges[metric]
	if !exists {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      metric,
			Help:      "Last observed value of " + metric + ".",
		}, keys)
		c.registry.MustRegister(vec)
		c.gauges[metric] = vec
	}

	return vec
}

func labelKeys(labels map[string]string) []string {
	keys := make([]string, 0, len(labels))
	for key := range labels {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	return keys
}
