// Package metrics exposes receipt service counters to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	generated       *prometheus.CounterVec
	generateErrors  *prometheus.CounterVec
	generateLatency prometheus.Histogram
	verifications   *prometheus.CounterVec
	indexErrors     prometheus.Counter
	httpRequests    *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		generated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "receipts_generated_total",
			Help: "Receipts appended to the log by status",
		}, []string{"status"}),
		generateErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "receipts_generate_errors_total",
			Help: "Failed receipt generations by error kind",
		}, []string{"kind"}),
		generateLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "receipts_generate_duration_seconds",
			Help:    "End to end receipt generation latency",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),
		verifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "receipts_verifications_total",
			Help: "Receipt verifications by outcome",
		}, []string{"valid"}),
		indexErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "receipts_index_errors_total",
			Help: "Receipts that could not be mirrored into the index",
		}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "receipts_http_requests_total",
			Help: "HTTP requests by route and status code",
		}, []string{"route", "code"}),
	}
}

func (m *Metrics) ReceiptGenerated(status string, took time.Duration) {
	m.generated.WithLabelValues(status).Inc()
	m.generateLatency.Observe(took.Seconds())
}

func (m *Metrics) GenerateFailed(kind string) {
	m.generateErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) ReceiptVerified(valid bool) {
	m.verifications.WithLabelValues(strconv.FormatBool(valid)).Inc()
}

func (m *Metrics) IndexFailed() {
	m.indexErrors.Inc()
}

func (m *Metrics) HTTPRequest(route string, code int) {
	m.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
