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

	loginAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_login_attempts_total",
			Help: "Login attempts by outcome.",
		},
		[]string{"result"},
	)

	signupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_signups_total",
			Help: "Completed signups by role.",
		},
		[]string{"role"},
	)

	tokenRejections = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_token_rejections_total",
		Help: "Bearer tokens rejected during request authentication.",
	})
)

// Init registers all metrics with the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		loginAttempts, signupsTotal, tokenRejections,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// CountLogin records a login attempt outcome ("success", "bad_credentials",
// "inaccessible", "error").
func CountLogin(result string) {
	loginAttempts.WithLabelValues(result).Inc()
}

// CountSignup records a completed signup for the given role code.
func CountSignup(role string) {
	signupsTotal.WithLabelValues(role).Inc()
}

// CountTokenRejection records a bearer token rejected at the auth boundary.
func CountTokenRejection() {
	tokenRejections.Inc()
}

// Instrument wraps a handler with RPS, latency and in-flight measurements.
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

// CanonicalPath collapses identifier segments so the path label keeps a
// bounded cardinality.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	segments := strings.Split(path, "/")
	// /users/<id> and /users/<id>/roles style paths.
	for i := 2; i < len(segments); i++ {
		if looksLikeID(segments[i]) {
			segments[i] = ":id"
		}
	}
	return strings.Join(segments, "/")
}

func looksLikeID(segment string) bool {
	if len(segment) < 16 {
		return false
	}
	for _, r := range segment {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r == '-':
		default:
			return false
		}
	}
	return true
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
