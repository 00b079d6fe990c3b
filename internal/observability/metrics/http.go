package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	runsStartedTotal *prometheus.CounterVec
	sseStreamsActive prometheus.Gauge
	presignTotal     *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docsorter",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docsorter",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "docsorter",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	runsStartedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docsorter",
			Subsystem: "runs",
			Name:      "started_total",
			Help:      "Total runs accepted for execution by mode.",
		},
		[]string{"service", "mode"},
	)
	sseStreamsActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "docsorter",
			Subsystem: "runs",
			Name:      "sse_streams_active",
			Help:      "Number of open run status streams.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	presignTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docsorter",
			Subsystem: "runs",
			Name:      "presign_total",
			Help:      "Total artifact URL requests by outcome.",
		},
		[]string{"service", "outcome"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		runsStartedTotal,
		sseStreamsActive,
		presignTotal,
	)

	return &HTTPServerMetrics{
		registry:         registry,
		requestTotal:     requestTotal,
		requestDuration:  requestDuration,
		requestInFlight:  requestInFlight,
		runsStartedTotal: runsStartedTotal,
		sseStreamsActive: sseStreamsActive,
		presignTotal:     presignTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// normalizePath keeps run IDs out of the path label.
func normalizePath(path string) string {
	if !strings.HasPrefix(path, "/v1/runs/") {
		return path
	}
	rest := strings.TrimPrefix(path, "/v1/runs/")
	if rest == "" || rest == "dry-run" {
		return path
	}
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		return "/v1/runs/{run_id}/" + rest[i+1:]
	}
	return "/v1/runs/{run_id}"
}

func (m *HTTPServerMetrics) RecordRunStarted(service, mode string) {
	if mode == "" {
		mode = "unknown"
	}
	m.runsStartedTotal.WithLabelValues(service, mode).Inc()
}

func (m *HTTPServerMetrics) StreamOpened() {
	m.sseStreamsActive.Inc()
}

func (m *HTTPServerMetrics) StreamClosed() {
	m.sseStreamsActive.Dec()
}

func (m *HTTPServerMetrics) RecordPresign(service string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.presignTotal.WithLabelValues(service, outcome).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
