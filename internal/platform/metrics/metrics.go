package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the relay.
type Metrics struct {
	registry               *prometheus.Registry
	requestsTotal          prometheus.Counter
	errorsTotal            prometheus.Counter
	listeners              prometheus.Gauge
	chunksBroadcastTotal   prometheus.Counter
	bytesBroadcastTotal    prometheus.Counter
	sinkEvictionsTotal     prometheus.Counter
	livePushesTotal        prometheus.Counter
	tracksTotal            *prometheus.CounterVec
	catalogTracks          prometheus.Gauge
	catalogRefreshFailures prometheus.Counter
}

// New creates and registers Prometheus metrics for the relay.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
		listeners: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_listeners",
			Help: "Number of currently connected listeners",
		}),
		chunksBroadcastTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_chunks_broadcast_total",
			Help: "Total number of audio chunks fanned out to listeners",
		}),
		bytesBroadcastTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_bytes_broadcast_total",
			Help: "Total number of audio bytes fanned out, counted once per chunk",
		}),
		sinkEvictionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_sink_evictions_total",
			Help: "Listeners removed because a write to them failed",
		}),
		livePushesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_live_pushes_total",
			Help: "Accepted live ingest chunks",
		}),
		tracksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_autodj_tracks_total",
			Help: "AutoDJ track attempts by outcome",
		}, []string{"outcome"}),
		catalogTracks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_catalog_tracks",
			Help: "Number of tracks in the current AutoDJ catalog",
		}),
		catalogRefreshFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_catalog_refresh_failures_total",
			Help: "Catalog refreshes that left the previous catalog in place",
		}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.errorsTotal,
		m.listeners,
		m.chunksBroadcastTotal,
		m.bytesBroadcastTotal,
		m.sinkEvictionsTotal,
		m.livePushesTotal,
		m.tracksTotal,
		m.catalogTracks,
		m.catalogRefreshFailures,
	)

	return m
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// SetListeners sets the connected listeners gauge.
func (m *Metrics) SetListeners(n int) {
	m.listeners.Set(float64(n))
}

// ObserveBroadcast records one fanned-out chunk of size bytes.
func (m *Metrics) ObserveBroadcast(size int) {
	m.chunksBroadcastTotal.Inc()
	m.bytesBroadcastTotal.Add(float64(size))
}

// IncSinkEvictions increments the evicted listener counter.
func (m *Metrics) IncSinkEvictions() {
	m.sinkEvictionsTotal.Inc()
}

// IncLivePushes increments the accepted live chunk counter.
func (m *Metrics) IncLivePushes() {
	m.livePushesTotal.Inc()
}

// IncTrack records one AutoDJ attempt with the given outcome label.
func (m *Metrics) IncTrack(outcome string) {
	m.tracksTotal.WithLabelValues(outcome).Inc()
}

// SetCatalogTracks sets the catalog size gauge.
func (m *Metrics) SetCatalogTracks(n int) {
	m.catalogTracks.Set(float64(n))
}

// IncCatalogRefreshFailures increments the failed refresh counter.
func (m *Metrics) IncCatalogRefreshFailures() {
	m.catalogRefreshFailures.Inc()
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (e.g. listeners).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
