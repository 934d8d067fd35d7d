package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	authTokensIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_tokens_issued_total",
			Help: "Access tokens issued, by strategy.",
		},
		[]string{"strategy"},
	)

	authDenied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_denied_total",
			Help: "Requests rejected by the authorization pipeline, by reason.",
		},
		[]string{"reason"},
	)
)

// Init registers all metrics with the default registry. Call once at startup.
func Init() {
	prometheus.MustRegister(
		httpInFlight,
		httpRequestsTotal,
		httpRequestDuration,
		authTokensIssued,
		authDenied,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// TokenIssued records a successful credential issuance.
func TokenIssued(strategy string) {
	authTokensIssued.WithLabelValues(strategy).Inc()
}

// AuthDenied records a rejected request. Reason is one of the error kinds
// (unauthenticated, forbidden, not_found, bad_request, internal).
func AuthDenied(reason string) {
	authDenied.WithLabelValues(reason).Inc()
}

// Instrument wraps a handler with RPS/latency/in-flight measurements.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// CanonicalPath collapses resource ids in known routes so metric labels stay
// low-cardinality.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	for _, prefix := range []string{"/v1/posts/", "/v1/accounts/"} {
		if rest, ok := strings.CutPrefix(path, prefix); ok && rest != "" && !strings.Contains(rest, "/") {
			return prefix + ":id"
		}
	}
	return path
}

// statusWriter captures the response code written by downstream handlers.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
