package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"noticeboard/internal/adapters/http/perf"
)

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 4 << 20

// DefaultSlowUpstream is the default threshold for slow upstream warnings.
const DefaultSlowUpstream = 500 * time.Millisecond

// Options configures a Client.
type Options struct {
	BaseURL       string
	HTTPClient    *http.Client
	Collector     *perf.Collector
	Metrics       *perf.Metrics
	SlowThreshold time.Duration
}

// Client calls the notice board backend. Each method issues exactly one
// request: no retries and no caching.
type Client struct {
	baseURL   string
	http      *http.Client
	collector *perf.Collector
	metrics   *perf.Metrics
	slow      time.Duration
}

// New creates a Client for the backend at opts.BaseURL.
// PRE: opts.BaseURL is an absolute http(s) URL
// POST: Returns a ready-to-use client or an error describing the bad URL
func New(opts Options) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(opts.BaseURL))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return nil, errors.New("api base URL must be an absolute http(s) URL")
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	slow := opts.SlowThreshold
	if slow <= 0 {
		slow = DefaultSlowUpstream
	}
	return &Client{
		baseURL:   strings.TrimRight(u.String(), "/"),
		http:      hc,
		collector: opts.Collector,
		metrics:   opts.Metrics,
		slow:      slow,
	}, nil
}

// do sends one JSON request and decodes a 2xx body into out.
// A non-2xx status or transport failure is returned as *Error.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, token string, body, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return &Error{Op: op, Err: err}
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.New().String())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.observe(op, method, path, 0, start)
		return &Error{Op: op, Err: err}
	}
	defer resp.Body.Close()
	c.observe(op, method, path, resp.StatusCode, start)

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(op, resp.StatusCode, data)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &Error{Op: op, Status: resp.StatusCode, Detail: "The server sent a response that could not be read.", Err: err}
	}
	return nil
}

// observe records the call to the perf collector and Prometheus, and warns when slow.
func (c *Client) observe(op, method, path string, status int, start time.Time) {
	d := time.Since(start)
	durationMs := float64(d.Microseconds()) / 1000.0

	if d >= c.slow {
		slog.Warn("slow_upstream", "service", "api", "op", op, "status", status, "duration_ms", durationMs)
	} else {
		slog.Debug("upstream", "service", "api", "op", op, "status", status, "duration_ms", durationMs)
	}

	if c.collector != nil {
		c.collector.Record(perf.Entry{
			Kind:       perf.KindUpstream,
			Path:       method + " " + path,
			StatusCode: status,
			DurationMs: durationMs,
			Timestamp:  start,
		})
	}
	c.metrics.ObserveUpstream("api", op, status, d)
}
