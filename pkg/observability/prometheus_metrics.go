package observability

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetricsClient implements MetricsClient using the Prometheus client library.
type PrometheusMetricsClient struct {
	namespace string
	subsystem string

	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec

	mu sync.RWMutex

	commonLabels prometheus.Labels
}

// NewPrometheusMetricsClient creates a new Prometheus metrics client for the router.
func NewPrometheusMetricsClient(namespace, subsystem string, commonLabels map[string]string) *PrometheusMetricsClient {
	labels := prometheus.Labels{}
	for k, v := range commonLabels {
		labels[k] = v
	}

	client := &PrometheusMetricsClient{
		namespace:    namespace,
		subsystem:    subsystem,
		counters:     make(map[string]*prometheus.CounterVec),
		gauges:       make(map[string]*prometheus.GaugeVec),
		histograms:   make(map[string]*prometheus.HistogramVec),
		commonLabels: labels,
	}

	client.registerDefaultMetrics()

	return client
}

// registerDefaultMetrics registers a default set of router metric families at
// construction. Of these, only circuit_breaker_transitions_total is recorded
// by the router's components; the others are registered without samples.
func (c *PrometheusMetricsClient) registerDefaultMetrics() {
	c.getOrCreateCounter("routing_decisions_total", "Total routing decisions", []string{"task_type", "complexity", "agent_id"})
	c.getOrCreateHistogram("routing_duration_seconds", "Time spent selecting an agent", []string{"task_type"}, prometheus.DefBuckets)
	c.getOrCreateCounter("routing_errors_total", "Routing errors by kind", []string{"kind"})
	c.getOrCreateCounter("circuit_breaker_transitions_total", "Circuit breaker state transitions", []string{"agent_id", "from", "to"})
	c.getOrCreateGauge("agent_load_ratio", "Current load ratio per agent", []string{"agent_id"})
	c.getOrCreateCounter("outcomes_recorded_total", "Outcomes recorded by success flag", []string{"agent_id", "success"})
	c.getOrCreateGauge("weight_matrix_cell", "Current routing weight per (agent, task key)", []string{"agent_id", "task_key"})
}

// RecordCounter records a counter metric.
func (c *PrometheusMetricsClient) RecordCounter(name string, value float64, labels map[string]string) {
	counter := c.getOrCreateCounter(name, fmt.Sprintf("Counter for %s", name), c.getLabelNames(labels))
	counter.With(c.mergeLabelValues(labels)).Add(value)
}

// RecordGauge records a gauge metric.
func (c *PrometheusMetricsClient) RecordGauge(name string, value float64, labels map[string]string) {
	gauge := c.getOrCreateGauge(name, fmt.Sprintf("Gauge for %s", name), c.getLabelNames(labels))
	gauge.With(c.mergeLabelValues(labels)).Set(value)
}

// RecordHistogram records a histogram metric.
func (c *PrometheusMetricsClient) RecordHistogram(name string, value float64, labels map[string]string) {
	histogram := c.getOrCreateHistogram(name, fmt.Sprintf("Histogram for %s", name), c.getLabelNames(labels), prometheus.DefBuckets)
	histogram.With(c.mergeLabelValues(labels)).Observe(value)
}

// RecordTimer records an already-elapsed duration against a histogram.
func (c *PrometheusMetricsClient) RecordTimer(name string, duration time.Duration, labels map[string]string) {
	c.RecordHistogram(name, duration.Seconds(), labels)
}

// RecordOperation records a component operation's outcome and duration.
func (c *PrometheusMetricsClient) RecordOperation(component, operation string, success bool, durationSeconds float64, labels map[string]string) {
	merged := map[string]string{"component": component, "operation": operation, "status": statusLabel(success)}
	for k, v := range labels {
		merged[k] = v
	}
	c.RecordCounter("component_operations_total", 1, merged)
	c.RecordHistogram("component_operation_duration_seconds", durationSeconds, map[string]string{"component": component, "operation": operation})
}

// StartTimer starts a timer and returns a function that records its elapsed duration.
func (c *PrometheusMetricsClient) StartTimer(name string, labels map[string]string) func() {
	start := time.Now()
	return func() {
		c.RecordTimer(name, time.Since(start), labels)
	}
}

// Close satisfies the MetricsClient interface; Prometheus collectors need no teardown.
func (c *PrometheusMetricsClient) Close() error {
	return nil
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

func (c *PrometheusMetricsClient) getOrCreateCounter(name, help string, labels []string) *prometheus.CounterVec {
	c.mu.RLock()
	if counter, exists := c.counters[name]; exists {
		c.mu.RUnlock()
		return counter
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if counter, exists := c.counters[name]; exists {
		return counter
	}

	counter := promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: c.namespace,
		Subsystem: c.subsystem,
		Name:      name,
		Help:      help,
	}, labels)

	c.counters[name] = counter
	return counter
}

func (c *PrometheusMetricsClient) getOrCreateGauge(name, help string, labels []string) *prometheus.GaugeVec {
	c.mu.RLock()
	if gauge, exists := c.gauges[name]; exists {
		c.mu.RUnlock()
		return gauge
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if gauge, exists := c.gauges[name]; exists {
		return gauge
	}

	gauge := promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: c.namespace,
		Subsystem: c.subsystem,
		Name:      name,
		Help:      help,
	}, labels)

	c.gauges[name] = gauge
	return gauge
}

func (c *PrometheusMetricsClient) getOrCreateHistogram(name, help string, labels []string, buckets []float64) *prometheus.HistogramVec {
	c.mu.RLock()
	if histogram, exists := c.histograms[name]; exists {
		c.mu.RUnlock()
		return histogram
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if histogram, exists := c.histograms[name]; exists {
		return histogram
	}

	histogram := promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: c.namespace,
		Subsystem: c.subsystem,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	}, labels)

	c.histograms[name] = histogram
	return histogram
}

func (c *PrometheusMetricsClient) getLabelNames(labels map[string]string) []string {
	if labels == nil {
		return []string{}
	}

	names := make([]string, 0, len(labels))
	for name := range labels {
		names = append(names, name)
	}
	return names
}

func (c *PrometheusMetricsClient) mergeLabelValues(labels map[string]string) prometheus.Labels {
	merged := prometheus.Labels{}

	for k, v := range c.commonLabels {
		merged[k] = v
	}

	for k, v := range labels {
		merged[k] = v
	}

	return merged
}
