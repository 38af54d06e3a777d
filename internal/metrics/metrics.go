// Package metrics exposes prometheus collectors for the HTTP surface, the
// capture service and the store.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	ingestTotal         *prometheus.CounterVec
	ingestDuration      prometheus.Histogram
	storeOpDuration     *prometheus.HistogramVec
	storeErrorsTotal    *prometheus.CounterVec
	tailClients         prometheus.Gauge
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"handler", "method"},
		),
		ingestTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hookscope_ingest_total",
				Help: "Captured deliveries by outcome",
			},
			[]string{"result"},
		),
		ingestDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "hookscope_ingest_duration_seconds",
				Help:    "Time from normalization to durable write",
				Buckets: prometheus.DefBuckets,
			},
		),
		storeOpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hookscope_store_operation_duration_seconds",
				Help:    "Capture store operation latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		storeErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hookscope_store_errors_total",
				Help: "Failed capture store operations",
			},
			[]string{"op"},
		),
		tailClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "hookscope_tail_clients",
				Help: "Connected live tail clients",
			},
		),
	}
	m.registry.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.ingestTotal,
		m.ingestDuration,
		m.storeOpDuration,
		m.storeErrorsTotal,
		m.tailClients,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) ObserveIngest(result string, elapsed time.Duration) {
	m.ingestTotal.WithLabelValues(result).Inc()
	if result == "stored" {
		m.ingestDuration.Observe(elapsed.Seconds())
	}
}

func (m *Metrics) ObserveStore(op string, elapsed time.Duration, err error) {
	m.storeOpDuration.WithLabelValues(op).Observe(elapsed.Seconds())
	if err != nil {
		m.storeErrorsTotal.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) TailConnected()    { m.tailClients.Inc() }
func (m *Metrics) TailDisconnected() { m.tailClients.Dec() }

// Instrument wraps a handler with request counting and latency.
func (m *Metrics) Instrument(name string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		method := methodLabel(r.Method)
		m.httpRequestDuration.WithLabelValues(name, method).Observe(time.Since(startTime).Seconds())
		m.httpRequestsTotal.WithLabelValues(name, method, strconv.Itoa(wrapped.statusCode)).Inc()
	})
}

// methodLabel folds nonstandard methods into "other" so producers cannot grow
// the label set.
func methodLabel(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut, http.MethodPatch,
		http.MethodDelete, http.MethodConnect, http.MethodOptions, http.MethodTrace:
		return method
	}
	return "other"
}

// responseWriter captures the status code written by the wrapped handler.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer (websocket hijack, flush).
func (rw *responseWriter) Unwrap() http.ResponseWriter { return rw.ResponseWriter }

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	return h.Hijack()
}
