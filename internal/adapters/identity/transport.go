package identity

import (
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"noticeboard/internal/adapters/http/perf"
)

// timedTransport records every provider call to the perf collector and
// Prometheus. It mirrors storage.TimedDB for outbound HTTP.
type timedTransport struct {
	base      http.RoundTripper
	collector *perf.Collector
	metrics   *perf.Metrics
	slow      time.Duration
}

// RoundTrip implements http.RoundTripper.
func (t *timedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	d := time.Since(start)

	status := 0
	if err == nil {
		status = resp.StatusCode
	}
	op := operationName(req.URL.Path)
	durationMs := float64(d.Microseconds()) / 1000.0
	if d >= t.slow {
		slog.Warn("slow_upstream", "service", "identity", "op", op, "status", status, "duration_ms", durationMs)
	}
	if t.collector != nil {
		t.collector.Record(perf.Entry{
			Kind:       perf.KindUpstream,
			Path:       req.Method + " identity:" + op,
			StatusCode: status,
			DurationMs: durationMs,
			Timestamp:  start,
		})
	}
	t.metrics.ObserveUpstream("identity", op, status, d)
	return resp, err
}

// operationName turns "/v1/accounts:signInWithPassword" into "signInWithPassword"
// and "/v1/token" into "token".
func operationName(p string) string {
	base := path.Base(p)
	if _, after, ok := strings.Cut(base, ":"); ok {
		return after
	}
	return base
}
