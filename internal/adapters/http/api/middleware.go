package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/okian/passwatch/pkg/logger"
	"github.com/okian/passwatch/pkg/metrics"
)

// MetricsMiddleware records request count and latency under endpoint. A
// panicking handler is answered with 500 and counted like any other failure.
func MetricsMiddleware(next http.HandlerFunc, endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		defer func() {
			if p := recover(); p != nil {
				logger.Get().Error(r.Context(), "handler panic",
					logger.String("endpoint", endpoint),
					logger.String("panic", fmt.Sprint(p)))
				if !rw.wrote {
					writeError(rw, http.StatusInternalServerError, "internal", nil)
				}
			}

			code := strconv.Itoa(rw.status)
			metrics.RecordHTTPRequest(endpoint, r.Method, code)
			metrics.RecordHTTPRequestDuration(endpoint, r.Method, code, float64(time.Since(start).Microseconds())/1000)
			if rw.status >= http.StatusBadRequest {
				metrics.RecordErrorByComponent("http", errorClass(rw.status))
			}
		}()

		next(rw, r)
	}
}

// errorClass buckets a failing status code for the error counter.
func errorClass(status int) string {
	switch {
	case status == http.StatusServiceUnavailable:
		return "unavailable"
	case status >= http.StatusInternalServerError:
		return "server_error"
	case status == http.StatusTooManyRequests:
		return "backpressure"
	case status == http.StatusNotFound:
		return "not_found"
	case status >= http.StatusBadRequest:
		return "client_error"
	default:
		return "unknown"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (rw *statusRecorder) WriteHeader(code int) {
	if rw.wrote {
		return
	}
	rw.status = code
	rw.wrote = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	rw.wrote = true
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}
