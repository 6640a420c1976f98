package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"noticeboard/internal/adapters/http/perf"
)

// DefaultSlowRequest is the default threshold for slow request warnings.
const DefaultSlowRequest = 200 * time.Millisecond

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

// WriteHeader captures the status code and delegates to the underlying ResponseWriter.
// PRE: code is a valid HTTP status code
// POST: status stored, header written to underlying ResponseWriter
func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (sw *statusWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}

// statusWriterPool reduces allocations on the hot path.
var statusWriterPool = sync.Pool{
	New: func() any {
		return &statusWriter{}
	},
}

// Timing returns middleware that logs request duration.
// Requests to /static/ and /metrics are excluded.
// Normal requests log at DEBUG; requests at or above threshold log at WARN.
// A nil collector or metrics is skipped.
func Timing(collector *perf.Collector, metrics *perf.Metrics, threshold time.Duration) func(http.Handler) http.Handler {
	if threshold <= 0 {
		threshold = DefaultSlowRequest
	}
	thresholdMs := float64(threshold.Microseconds()) / 1000.0

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			if strings.HasPrefix(path, "/static/") || path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			route := &routeHolder{}
			r = r.WithContext(context.WithValue(r.Context(), routeContextKey, route))
			sw := statusWriterPool.Get().(*statusWriter)
			sw.ResponseWriter = w
			sw.status = http.StatusOK
			defer func() {
				elapsed := time.Since(start)
				durationMs := float64(elapsed.Microseconds()) / 1000.0
				reqID := RequestIDFromContext(r.Context())

				if durationMs >= thresholdMs {
					slog.Warn("slow_request",
						"request_id", reqID,
						"method", r.Method,
						"path", path,
						"status", sw.status,
						"duration_ms", durationMs,
					)
				} else {
					slog.Debug("request",
						"request_id", reqID,
						"method", r.Method,
						"path", path,
						"status", sw.status,
						"duration_ms", durationMs,
					)
				}

				if collector != nil {
					collector.Record(perf.Entry{
						Kind:       perf.KindRequest,
						Path:       r.Method + " " + path,
						StatusCode: sw.status,
						DurationMs: durationMs,
						Timestamp:  start,
					})
				}
				if metrics != nil {
					metrics.ObserveRequest(r.Method, route.label(r), sw.status, elapsed)
				}

				sw.ResponseWriter = nil
				statusWriterPool.Put(sw)
			}()

			next.ServeHTTP(sw, r)
		})
	}
}

const routeContextKey contextKey = "route"

// routeHolder receives the mux pattern that served a request. Middleware
// between Timing and the mux may replace the *http.Request, so the pattern
// the mux records is copied back by CaptureRoute.
type routeHolder struct {
	mu      sync.Mutex
	pattern string
}

// label keeps metric cardinality bounded by the route table rather than by notice IDs.
func (h *routeHolder) label(r *http.Request) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch {
	case h.pattern != "":
		return h.pattern
	case r.Pattern != "":
		return r.Pattern
	}
	return "unmatched"
}

// CaptureRoute wraps the mux so Timing can label metrics by route pattern.
func CaptureRoute(mux http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mux.ServeHTTP(w, r)
		if h, ok := r.Context().Value(routeContextKey).(*routeHolder); ok {
			h.mu.Lock()
			h.pattern = r.Pattern
			h.mu.Unlock()
		}
	})
}
