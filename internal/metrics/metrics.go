// Package metrics exposes Prometheus metrics for the edge server: HTTP
// traffic, remote store calls, background refreshes and connectivity.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/toollender/toollender/internal/refresh"
	"github.com/toollender/toollender/internal/remote"
)

const namespace = "toollender"

// Metrics holds the collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	httpInFlight        prometheus.Gauge
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	remoteCalls    *prometheus.CounterVec
	remoteDuration *prometheus.HistogramVec

	refreshes        *prometheus.CounterVec
	refreshDuration  *prometheus.HistogramVec
	refreshesRunning prometheus.Gauge

	online    prometheus.Gauge
	buildInfo *prometheus.GaugeVec
}

// New creates and registers every collector, plus the Go and process
// collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_in_flight_requests",
			Help:      "In-flight HTTP requests.",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latencies in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		remoteCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_calls_total",
			Help:      "Remote store calls by operation, read mode and result.",
		}, []string{"op", "mode", "result"}),
		remoteDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "remote_call_duration_seconds",
			Help:      "Remote store round trip latencies in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_refreshes_total",
			Help:      "Background cache refreshes by view and outcome.",
		}, []string{"view", "outcome"}),
		refreshDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cache_refresh_duration_seconds",
			Help:      "Duration of completed background refreshes.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"view"}),
		refreshesRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_refreshes_in_flight",
			Help:      "Background refreshes currently running.",
		}),
		online: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "network_online",
			Help:      "1 while the network is reachable, 0 while offline.",
		}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build information.",
		}, []string{"version"}),
	}
	m.online.Set(1)

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpInFlight, m.httpRequestsTotal, m.httpRequestDuration,
		m.remoteCalls, m.remoteDuration,
		m.refreshes, m.refreshDuration, m.refreshesRunning,
		m.online, m.buildInfo,
	)
	return m
}

// Registry returns the registry, for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// SetBuildInfo sets build_info{version} to 1.
func (m *Metrics) SetBuildInfo(version string) {
	m.buildInfo.WithLabelValues(version).Set(1)
}

// RecordRefresh implements refresh.Recorder.
func (m *Metrics) RecordRefresh(key string, outcome refresh.Outcome, took time.Duration) {
	view := viewLabel(key)
	m.refreshes.WithLabelValues(view, string(outcome)).Inc()
	if outcome == refresh.OutcomeSuccess || outcome == refresh.OutcomeFailure {
		m.refreshDuration.WithLabelValues(view).Observe(took.Seconds())
	}
}

// SetRefreshesInFlight implements refresh.Recorder.
func (m *Metrics) SetRefreshesInFlight(n int) {
	m.refreshesRunning.Set(float64(n))
}

// ObserveRemote implements remote.Observer.
func (m *Metrics) ObserveRemote(op string, mode remote.Mode, took time.Duration, err error) {
	m.remoteCalls.WithLabelValues(op, mode.String(), resultLabel(err)).Inc()
	if mode == remote.ModeServer && took > 0 {
		m.remoteDuration.WithLabelValues(op).Observe(took.Seconds())
	}
}

// OnConnectivity tracks connectivity edges. Pass it to Monitor.Subscribe.
func (m *Metrics) OnConnectivity(online bool) {
	if online {
		m.online.Set(1)
	} else {
		m.online.Set(0)
	}
}

// Instrument records request count, latency and in-flight requests. The
// route label is the chi route pattern, so IDs do not explode cardinality.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		m.httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		m.httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(sw.code)).Inc()
	})
}

// viewLabel keeps the collection and view kind of a refresh key and drops
// entity IDs: "tools:owner:u1" becomes "tools:owner".
func viewLabel(key string) string {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) == 1 {
		return parts[0]
	}
	if parts[1] == "all" || parts[1] == "owner" {
		return parts[0] + ":" + parts[1]
	}
	return parts[0] + ":item"
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, remote.ErrUnavailable):
		return "unavailable"
	case errors.Is(err, remote.ErrNotFound):
		return "not_found"
	case errors.Is(err, remote.ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush lets SSE responses stream through the instrumented writer.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
