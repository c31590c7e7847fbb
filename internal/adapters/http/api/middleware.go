package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/okian/fedrec/pkg/metrics"
)

// errorKinds labels the statuses the handlers produce on purpose.
var errorKinds = map[int]string{ //nolint:gochecknoglobals // read-only lookup table
	http.StatusBadRequest:            "client_error",
	http.StatusNotFound:              "not_found",
	http.StatusMethodNotAllowed:      "client_error",
	http.StatusConflict:              "conflict",
	http.StatusRequestEntityTooLarge: "too_large",
	http.StatusTooManyRequests:       "rate_limit",
}

// MetricsMiddleware records request count, latency and error class for endpoint.
func MetricsMiddleware(next http.HandlerFunc, endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next(rec, r)
		ms := float64(time.Since(start).Microseconds()) / 1000

		code := strconv.Itoa(rec.status)
		metrics.RecordHTTPRequest(endpoint, r.Method, code)
		metrics.RecordHTTPRequestDuration(endpoint, r.Method, code, ms)
		if rec.status < http.StatusBadRequest {
			return
		}
		kind, severity := classify(rec.status)
		metrics.RecordErrorByEndpoint(endpoint, r.Method, kind)
		metrics.RecordErrorByType(kind, severity)
		metrics.RecordErrorLatency("http", kind, ms)
	}
}

// classify maps an error status to its metric label and severity.
func classify(status int) (kind, severity string) {
	if status >= http.StatusInternalServerError {
		return "server_error", "high"
	}
	if k, ok := errorKinds[status]; ok {
		return k, "medium"
	}
	return "client_error", "medium"
}

// statusRecorder remembers the first status written.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if !s.wroteHeader {
		s.status, s.wroteHeader = code, true
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	s.wroteHeader = true
	return s.ResponseWriter.Write(b) //nolint:wrapcheck // passthrough
}
