package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Общие HTTP-метрики
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
			Buckets: prometheus.DefBuckets, // [0.005..10]
		},
		[]string{"method", "path", "status"},
	)

	// Доменные метрики аутентификации: исходы по операции и типу принципала.
	authSessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_sessions_total",
			Help: "Authentication operations by kind and outcome.",
		},
		[]string{"op", "kind", "outcome"},
	)

	authRotationConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_refresh_rotation_conflicts_total",
		Help: "Refresh redemptions rejected because the stored token moved on.",
	})
)

// Регистрация метрик в default-регистре.
func Init() {
	prometheus.MustRegister(httpInFlight, httpRequestsTotal, httpRequestDuration,
		authSessionsTotal, authRotationConflicts)
}

// Хэндлер Prometheus.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveAuth counts one auth operation outcome (op: signup|signin|refresh|logout).
func ObserveAuth(op, kind, outcome string) {
	authSessionsTotal.WithLabelValues(op, kind, outcome).Inc()
}

// ObserveRotationConflict counts a lost refresh-rotation race.
func ObserveRotationConflict() {
	authRotationConflicts.Inc()
}

// CanonicalPath normalizes a request path for use as a metric label:
// query strings are dropped and the empty path reads as "/". The auth
// surface has no parameterized routes, so no further collapsing is needed.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	return path
}

// Обёртка для измерения RPS/latency/в полёте.
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

// statusWriter — локальная копия, чтобы знать код ответа.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
