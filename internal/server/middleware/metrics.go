package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/tgfiles/tgfiles/internal/metrics"
	"github.com/tgfiles/tgfiles/internal/observability"
)

// fixedEndpoints are paths reported as-is when no chi pattern is available.
var fixedEndpoints = map[string]string{
	"/health":         "/health/*",
	"/health/live":    "/health/*",
	"/health/ready":   "/health/*",
	"/health/startup": "/health/*",
	"/version":        "/version",
	"/metrics":        "/metrics",
	"/api/files":      "/api/files",
	"/api/test":       "/api/test",
	"/api/quiz/parse": "/api/quiz/parse",
	"/":               "/",
}

// getEndpointPattern returns a low-cardinality label for r: the chi route
// pattern when routing has happened, otherwise a fixed mapping.
func getEndpointPattern(r *http.Request) string {
	if pattern := chi.RouteContext(r.Context()).RoutePattern(); pattern != "" {
		return pattern
	}

	if endpoint, ok := fixedEndpoints[r.URL.Path]; ok {
		return endpoint
	}
	if strings.HasPrefix(r.URL.Path, "/api/quiz/") {
		return "/api/quiz/{fileRef}"
	}
	return "/unknown"
}

// RequestMetrics records Prometheus request metrics and logs each completed
// request with its request ID.
func RequestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if observability.TelemetrySystem == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		requestSize := max(r.ContentLength, 0)
		endpoint := getEndpointPattern(r)
		duration := time.Since(start)

		metrics.RecordHTTPRequest(metrics.HTTPRequest{
			Method:        r.Method,
			Endpoint:      endpoint,
			Status:        status,
			Duration:      duration,
			RequestBytes:  requestSize,
			ResponseBytes: int64(ww.BytesWritten()),
		})

		if observability.ServerLogger != nil {
			observability.ServerLogger.Info("HTTP request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("endpoint", endpoint),
				zap.Int("status", status),
				zap.Duration("duration", duration),
				zap.Int64("request_size", requestSize),
				zap.Int("response_size", ww.BytesWritten()),
				zap.String("requestID", GetRequestID(r.Context())),
			)
		}
	})
}
