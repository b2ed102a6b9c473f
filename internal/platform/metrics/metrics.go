package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the live watcher.
type Metrics struct {
	registry         *prometheus.Registry
	requestsTotal    prometheus.Counter
	errorsTotal      prometheus.Counter
	cacheHitsTotal   prometheus.Counter
	cacheMissesTotal prometheus.Counter
	upstreamErrors   prometheus.Counter
	capturesTotal    *prometheus.CounterVec
	activeCaptures   prometheus.Gauge
	logAccounts      prometheus.Gauge
	chatEventsTotal  prometheus.Counter
}

// New creates and registers Prometheus metrics.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livewatch_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livewatch_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	cacheHitsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livewatch_status_cache_hits_total",
		Help: "Status queries answered from a fresh cache entry",
	})
	cacheMissesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livewatch_status_cache_misses_total",
		Help: "Status queries that required an upstream fetch",
	})
	upstreamErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livewatch_upstream_errors_total",
		Help: "Upstream page fetches that failed",
	})
	capturesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "livewatch_captures_total",
		Help: "Finished captures by outcome (done or failure reason)",
	}, []string{"outcome"})
	activeCaptures := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "livewatch_active_captures",
		Help: "Captures that have not reached a terminal stage",
	})
	logAccounts := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "livewatch_event_log_accounts",
		Help: "Accounts with a retained chat event log",
	})
	chatEventsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livewatch_chat_events_total",
		Help: "Chat events appended to event logs",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		cacheHitsTotal,
		cacheMissesTotal,
		upstreamErrors,
		capturesTotal,
		activeCaptures,
		logAccounts,
		chatEventsTotal,
	)

	return &Metrics{
		registry:         registry,
		requestsTotal:    requestsTotal,
		errorsTotal:      errorsTotal,
		cacheHitsTotal:   cacheHitsTotal,
		cacheMissesTotal: cacheMissesTotal,
		upstreamErrors:   upstreamErrors,
		capturesTotal:    capturesTotal,
		activeCaptures:   activeCaptures,
		logAccounts:      logAccounts,
		chatEventsTotal:  chatEventsTotal,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// IncCacheHit records a status query served from cache.
func (m *Metrics) IncCacheHit() {
	m.cacheHitsTotal.Inc()
}

// IncCacheMiss records a status query that went upstream.
func (m *Metrics) IncCacheMiss() {
	m.cacheMissesTotal.Inc()
}

// IncUpstreamErrors records a failed page fetch.
func (m *Metrics) IncUpstreamErrors() {
	m.upstreamErrors.Inc()
}

// IncCaptures records a finished capture under outcome.
func (m *Metrics) IncCaptures(outcome string) {
	m.capturesTotal.WithLabelValues(outcome).Inc()
}

// SetActiveCaptures sets the active captures gauge.
func (m *Metrics) SetActiveCaptures(n int) {
	m.activeCaptures.Set(float64(n))
}

// SetLogAccounts sets the event log accounts gauge.
func (m *Metrics) SetLogAccounts(n int) {
	m.logAccounts.Set(float64(n))
}

// IncChatEvents increments the chat events counter.
func (m *Metrics) IncChatEvents() {
	m.chatEventsTotal.Inc()
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
