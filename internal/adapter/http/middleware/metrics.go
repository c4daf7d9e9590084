package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/iho/payflow/internal/infrastructure/metrics"
)

// MetricsMiddleware records request counts and latency into the shared
// metrics registry.
type MetricsMiddleware struct {
	metrics *metrics.Metrics
}

// NewMetricsMiddleware creates a new MetricsMiddleware.
func NewMetricsMiddleware(m *metrics.Metrics) *MetricsMiddleware {
	return &MetricsMiddleware{metrics: m}
}

// Wrap wraps an http.Handler with metrics recording.
func (m *MetricsMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &metricsRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		path := normalizePath(r.URL.Path)
		m.metrics.HTTPRequests.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		m.metrics.HTTPDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type metricsRecorder struct {
	http.ResponseWriter

	statusCode int
}

func (r *metricsRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

// normalizePath replaces resource ids with placeholders so metric label
// cardinality stays bounded.
func normalizePath(path string) string {
	for _, prefix := range []string{"/api/v1/payments/", "/api/v1/ledger/accounts/"} {
		if len(path) <= len(prefix) || path[:len(prefix)] != prefix {
			continue
		}

		rest := path[len(prefix):]
		suffix := ""
		for i := 0; i < len(rest); i++ {
			if rest[i] == '/' {
				suffix = rest[i:]
				break
			}
		}

		return prefix + ":id" + suffix
	}

	return path
}
