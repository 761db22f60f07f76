package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "complyd_http_request_duration_seconds",
	Help:    "HTTP request latency by method, route pattern, and status.",
	Buckets: prometheus.DefBuckets,
}, []string{"method", "path", "status"})

// Latency records a request latency histogram sample per request. Mount it
// after any route-rewriting middleware so the path label is stable.
func Latency() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			requestDuration.WithLabelValues(
				r.Method,
				r.URL.Path,
				strconv.Itoa(sw.status),
			).Observe(time.Since(start).Seconds())
		})
	}
}
