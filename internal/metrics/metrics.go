package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sungo_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sungo_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	resourceCacheRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sungo_resource_cache_requests_total",
			Help: "Resource cache lookups by cache name and result (hit, miss).",
		},
		[]string{"cache", "result"},
	)

	resourceLoads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sungo_resource_loads_total",
			Help: "Underlying resource loads by cache name and outcome (ok, error).",
		},
		[]string{"cache", "outcome"},
	)

	resourceLoadSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sungo_resource_load_duration_seconds",
			Help:    "Duration of underlying resource loads.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"cache"},
	)

	resourceCacheEntries = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sungo_resource_cache_entries",
			Help: "Resolved entries held per resource cache.",
		},
		[]string{"cache"},
	)

	framePopulations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sungo_frame_store_populations_total",
			Help: "Frame store populations by final state (ready, failed, discarded).",
		},
		[]string{"state"},
	)

	framePopulationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sungo_frame_store_population_duration_seconds",
			Help:    "Time from frame store creation to Ready or Failed.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	frameSwaps = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sungo_frame_swaps_total",
			Help: "Texture swaps applied by frame stores.",
		},
	)

	radiusTiers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sungo_metadata_radius_tier_total",
			Help: "Solar radius computations by fallback tier (distance, pixels, ephemeris, failed).",
		},
		[]string{"tier"},
	)

	fetchErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sungo_fetch_errors_total",
			Help: "Upstream fetch errors by API action.",
		},
		[]string{"action"},
	)

	streamConnections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sungo_stream_connections_total",
			Help: "Playback stream connection events (connect, disconnect).",
		},
		[]string{"event"},
	)

	streamsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sungo_streams_active",
			Help: "Playback streams currently open.",
		},
	)

	streamErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sungo_stream_errors_total",
			Help: "Playback stream errors by reason.",
		},
		[]string{"reason"},
	)

	streamMessages = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sungo_stream_messages_total",
			Help: "SSE data messages sent.",
		},
	)

	streamBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sungo_stream_bytes_total",
			Help: "Bytes written to playback streams.",
		},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpDurationSeconds)
	prometheus.MustRegister(resourceCacheRequests)
	prometheus.MustRegister(resourceLoads)
	prometheus.MustRegister(resourceLoadSeconds)
	prometheus.MustRegister(resourceCacheEntries)
	prometheus.MustRegister(framePopulations)
	prometheus.MustRegister(framePopulationSeconds)
	prometheus.MustRegister(frameSwaps)
	prometheus.MustRegister(radiusTiers)
	prometheus.MustRegister(fetchErrors)
	prometheus.MustRegister(streamConnections)
	prometheus.MustRegister(streamsActive)
	prometheus.MustRegister(streamErrors)
	prometheus.MustRegister(streamMessages)
	prometheus.MustRegister(streamBytes)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// IncCacheHit records a resolved-entry hit on the named cache.
func IncCacheHit(cache string) {
	resourceCacheRequests.WithLabelValues(cache, "hit").Inc()
}

// IncCacheMiss records a lookup on the named cache that had to join or start a load.
func IncCacheMiss(cache string) {
	resourceCacheRequests.WithLabelValues(cache, "miss").Inc()
}

// RecordLoad records one underlying load on the named cache.
func RecordLoad(cache string, d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	resourceLoads.WithLabelValues(cache, outcome).Inc()
	resourceLoadSeconds.WithLabelValues(cache).Observe(d.Seconds())
}

// SetCacheEntries publishes the number of resolved entries of the named cache.
func SetCacheEntries(cache string, n int) {
	resourceCacheEntries.WithLabelValues(cache).Set(float64(n))
}

// RecordPopulation records a frame store reaching a terminal population state.
func RecordPopulation(state string, d time.Duration) {
	framePopulations.WithLabelValues(state).Inc()
	framePopulationSeconds.Observe(d.Seconds())
}

// IncFrameSwaps counts one applied texture swap.
func IncFrameSwaps() {
	frameSwaps.Inc()
}

// IncRadiusTier counts which fallback tier produced a solar radius.
func IncRadiusTier(tier string) {
	radiusTiers.WithLabelValues(tier).Inc()
}

// IncFetchErrors counts a failed upstream call for the given API action.
func IncFetchErrors(action string) {
	fetchErrors.WithLabelValues(action).Inc()
}

func IncStreamConnections(event string) {
	streamConnections.WithLabelValues(event).Inc()
}

func IncStreamsActive() { streamsActive.Inc() }

func DecStreamsActive() { streamsActive.Dec() }

// IncStreamErrors counts a stream failure (rate_limit, send_error, populate, swap).
func IncStreamErrors(reason string) {
	streamErrors.WithLabelValues(reason).Inc()
}

func IncStreamMessages() { streamMessages.Inc() }

func AddStreamBytes(n int64) { streamBytes.Add(float64(n)) }

// knownRoutes are the exact paths served; everything else is labelled "other"
// to keep label cardinality bounded.
var knownRoutes = map[string]bool{
	"/healthz":         true,
	"/readyz":          true,
	"/metrics":         true,
	"/api/v1/params":   true,
	"/api/v1/frames":   true,
	"/api/v1/distance": true,
	"/api/v1/sources":  true,

	"/api/v1/stream/frames": true,
}

func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	return "other"
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush lets streaming handlers flush through the wrapper.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		path := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(path, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(path, r.Method).Observe(duration)
	})
}
