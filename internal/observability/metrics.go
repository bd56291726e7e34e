package observability

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yungbote/chatstream-backend/internal/platform/logger"
)

// Metrics holds the service's prometheus collectors. A nil *Metrics is valid
// and records nothing, so callers never need to check whether metrics are on.
type Metrics struct {
	registry *prometheus.Registry

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec
	apiInflight prometheus.Gauge

	streamsStarted  prometheus.Counter
	streamsFinished *prometheus.CounterVec
	streamDuration  *prometheus.HistogramVec
	streamFragments prometheus.Counter
	streamFlushes   prometheus.Counter
	activeProducers prometheus.Gauge
	persistFailures *prometheus.CounterVec
	publishFailures prometheus.Counter
	leasesReaped    prometheus.Counter

	gatewayConnections prometheus.Gauge
	gatewaySessions    *prometheus.CounterVec
	gatewayResyncs     prometheus.Counter
	gatewayStaleDrops  prometheus.Counter

	rateLimited prometheus.Counter
}

// Init builds the process metrics when enabled and returns nil otherwise.
func Init(log *logger.Logger, enabled bool) *Metrics {
	if !enabled {
		return nil
	}
	log.Info("Prometheus metrics enabled")
	return NewMetrics(prometheus.NewRegistry())
}

// NewMetrics registers every collector on reg.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: reg,
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cs_api_requests_total",
			Help: "Total API requests by method/route/status.",
		}, []string{"method", "route", "status"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cs_api_request_duration_seconds",
			Help:    "API request latency in seconds by method/route/status.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"method", "route", "status"}),
		apiInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cs_api_inflight_requests",
			Help: "In-flight API requests.",
		}),
		streamsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cs_streams_started_total",
			Help: "Producers started.",
		}),
		streamsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cs_streams_finished_total",
			Help: "Producers finished by outcome (complete, error, abandoned).",
		}, []string{"outcome"}),
		streamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cs_stream_duration_seconds",
			Help:    "Wall time from producer start to terminal write.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300},
		}, []string{"outcome"}),
		streamFragments: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cs_stream_fragments_total",
			Help: "Fragments received from generation sources.",
		}),
		streamFlushes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cs_stream_flushes_total",
			Help: "Coalesced persist+publish cycles.",
		}),
		activeProducers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cs_stream_active_producers",
			Help: "Producers currently running.",
		}),
		persistFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cs_stream_persist_failures_total",
			Help: "Failed store writes by kind (content, terminal, lease).",
		}, []string{"kind"}),
		publishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cs_stream_publish_failures_total",
			Help: "Notifications that could not be published.",
		}),
		leasesReaped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cs_stream_leases_reaped_total",
			Help: "Streaming messages terminated because their producer lease expired.",
		}),
		gatewayConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cs_gateway_open_connections",
			Help: "Open viewer stream connections.",
		}),
		gatewaySessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cs_gateway_sessions_total",
			Help: "Viewer stream sessions by how they ended.",
		}, []string{"end"}),
		gatewayResyncs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cs_gateway_resyncs_total",
			Help: "Snapshots re-sent after a viewer subscription lagged.",
		}),
		gatewayStaleDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cs_gateway_stale_deltas_total",
			Help: "Deltas skipped because the viewer already had newer content.",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cs_api_rate_limited_total",
			Help: "Requests rejected by the per-viewer rate limiter.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.streamsStarted, m.streamsFinished, m.streamDuration, m.streamFragments, m.streamFlushes,
		m.activeProducers, m.persistFailures, m.publishFailures, m.leasesReaped,
		m.gatewayConnections, m.gatewaySessions, m.gatewayResyncs, m.gatewayStaleDrops,
		m.rateLimited,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer serves /metrics on a dedicated listener until ctx ends.
func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if log != nil {
				log.Error("Metrics server failed", "error", err, "addr", addr)
			}
		}
	}()
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	method, route, status = apiLabels(method, route, status)
	m.apiRequests.WithLabelValues(method, route, status).Inc()
	m.apiLatency.WithLabelValues(method, route, status).Observe(dur.Seconds())
}

// CountAPI records a request without observing its latency.
func (m *Metrics) CountAPI(method, route, status string) {
	if m == nil {
		return
	}
	method, route, status = apiLabels(method, route, status)
	m.apiRequests.WithLabelValues(method, route, status).Inc()
}

func apiLabels(method, route, status string) (string, string, string) {
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	if status == "" {
		status = "0"
	}
	return method, route, status
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) StreamStarted() {
	if m == nil {
		return
	}
	m.streamsStarted.Inc()
	m.activeProducers.Inc()
}

func (m *Metrics) StreamFinished(outcome string, dur time.Duration) {
	if m == nil {
		return
	}
	m.activeProducers.Dec()
	m.streamsFinished.WithLabelValues(outcome).Inc()
	m.streamDuration.WithLabelValues(outcome).Observe(dur.Seconds())
}

func (m *Metrics) AddFragments(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.streamFragments.Add(float64(n))
}

func (m *Metrics) IncFlush() {
	if m == nil {
		return
	}
	m.streamFlushes.Inc()
}

func (m *Metrics) IncPersistFailure(kind string) {
	if m == nil {
		return
	}
	m.persistFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncPublishFailure() {
	if m == nil {
		return
	}
	m.publishFailures.Inc()
}

func (m *Metrics) AddLeasesReaped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.leasesReaped.Add(float64(n))
}

func (m *Metrics) GatewayOpened() {
	if m == nil {
		return
	}
	m.gatewayConnections.Inc()
}

func (m *Metrics) GatewayClosed(end string) {
	if m == nil {
		return
	}
	m.gatewayConnections.Dec()
	m.gatewaySessions.WithLabelValues(end).Inc()
}

func (m *Metrics) IncGatewayResync() {
	if m == nil {
		return
	}
	m.gatewayResyncs.Inc()
}

func (m *Metrics) IncGatewayStaleDrop() {
	if m == nil {
		return
	}
	m.gatewayStaleDrops.Inc()
}

func (m *Metrics) IncRateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}
