package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP-level metrics shared by every endpoint.
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
)

// Auth-domain metrics. Outcome labels mirror the error taxonomy so dashboards
// can tell credential failures from lockouts and infrastructure faults.
var (
	loginAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_login_attempts_total",
			Help: "Authentication attempts by outcome.",
		},
		[]string{"outcome"},
	)

	lockoutsEngaged = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_lockouts_engaged_total",
		Help: "Login attempts rejected because the account was locked out.",
	})

	tokensIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_tokens_issued_total",
			Help: "Access tokens issued by grant type.",
		},
		[]string{"grant"},
	)

	codesVerified = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_codes_verified_total",
			Help: "Verification and reset code checks by purpose and outcome.",
		},
		[]string{"purpose", "outcome"},
	)
)

// Init registers all metrics with the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		loginAttempts, lockoutsEngaged, tokensIssued, codesVerified,
	)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveLogin counts an authentication attempt outcome.
func ObserveLogin(outcome string) {
	loginAttempts.WithLabelValues(outcome).Inc()
}

// ObserveLockout counts a lockout rejection.
func ObserveLockout() {
	lockoutsEngaged.Inc()
}

// ObserveTokenIssued counts an issued access token ("password" or "refresh").
func ObserveTokenIssued(grant string) {
	tokensIssued.WithLabelValues(grant).Inc()
}

// ObserveCodeCheck counts a verification/reset code check.
func ObserveCodeCheck(purpose, outcome string) {
	codesVerified.WithLabelValues(purpose, outcome).Inc()
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

// CanonicalPath normalizes a request path for metric labels: the query string
// is stripped and unknown paths collapse to "/other" to keep cardinality flat.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	switch path {
	case "/", "/healthz", "/readyz", "/metrics", "/openapi.yaml":
		return path
	}
	if strings.HasPrefix(path, "/v1/auth/") {
		return path
	}
	return "/other"
}

// statusWriter records the response code for labeling.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
