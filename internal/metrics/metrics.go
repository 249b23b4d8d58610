/*
 * Copyright 2025 Cong Wang
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/storeforge/storefront/internal/config"
)

// MetricsProvider is implemented by every metrics backend
type MetricsProvider interface {
	RecordHTTPRequest(method, path string, statusCode int, duration time.Duration)
	IncHTTPRequestsInFlight()
	DecHTTPRequestsInFlight()
	RecordRender(pageType, status string, duration time.Duration)
	RecordSectionFailure(section string)
	RecordCacheLookup(namespace string, hit bool)
	RecordError(component, errorCode, errorType string)
	// Handler serves the collected metrics
	Handler() http.Handler
}

// NewMetricsProvider creates the backend selected by cfg
func NewMetricsProvider(cfg config.MetricsConfig) MetricsProvider {
	if cfg.Backend == "simple" {
		return NewSimpleMetrics()
	}
	return NewMetrics(prometheus.NewRegistry())
}

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Render metrics
	RendersTotal    *prometheus.CounterVec
	RenderDuration  *prometheus.HistogramVec
	SectionFailures *prometheus.CounterVec

	// Cache metrics
	CacheLookups *prometheus.CounterVec

	// Error metrics
	ErrorsTotal *prometheus.CounterVec
}

// NewMetrics creates all Prometheus metrics and registers them with reg
func NewMetrics(reg *prometheus.Registry) *Metrics {
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storefront_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "storefront_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "storefront_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
		),

		RendersTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storefront_renders_total",
				Help: "Total number of page renders by page type and outcome",
			},
			[]string{"page_type", "status"},
		),
		RenderDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "storefront_render_duration_seconds",
				Help:    "Page render duration in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"page_type"},
		),
		SectionFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storefront_section_failures_total",
				Help: "Sections replaced by a placeholder",
			},
			[]string{"section"},
		),

		CacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storefront_cache_lookups_total",
				Help: "Cache lookups by namespace and result",
			},
			[]string{"namespace", "result"},
		),

		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storefront_errors_total",
				Help: "Total number of errors",
			},
			[]string{"component", "error_code", "error_type"},
		),
	}
}

// RecordHTTPRequest records HTTP request metrics
func (m *Metrics) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	statusStr := strconv.Itoa(statusCode)
	m.HTTPRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, statusStr).Observe(duration.Seconds())
}

// IncHTTPRequestsInFlight increments in-flight HTTP requests
func (m *Metrics) IncHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Inc()
}

// DecHTTPRequestsInFlight decrements in-flight HTTP requests
func (m *Metrics) DecHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Dec()
}

// RecordRender records a page render
func (m *Metrics) RecordRender(pageType, status string, duration time.Duration) {
	m.RendersTotal.WithLabelValues(pageType, status).Inc()
	m.RenderDuration.WithLabelValues(pageType).Observe(duration.Seconds())
}

// RecordSectionFailure records a section replaced by a placeholder
func (m *Metrics) RecordSectionFailure(section string) {
	m.SectionFailures.WithLabelValues(section).Inc()
}

// RecordCacheLookup records a cache hit or miss
func (m *Metrics) RecordCacheLookup(namespace string, hit bool) {
	m.CacheLookups.WithLabelValues(namespace, hitLabel(hit)).Inc()
}

// RecordError records error metrics
func (m *Metrics) RecordError(component, errorCode, errorType string) {
	m.ErrorsTotal.WithLabelValues(component, errorCode, errorType).Inc()
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func hitLabel(hit bool) string {
	if hit {
		return "hit"
	}
	return "miss"
}

// Timer provides a convenient way to time operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed duration
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveHistogram observes the elapsed time in a histogram
func (t *Timer) ObserveHistogram(histogram prometheus.Observer) {
	histogram.Observe(t.Duration().Seconds())
}
