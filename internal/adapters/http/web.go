package web

import (
	"context"
	"crypto/rand"
	"embed"
	"encoding/hex"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"noticeboard/internal/adapters/http/middleware"
	"noticeboard/internal/adapters/http/perf"
	auditstore "noticeboard/internal/adapters/storage/audit"
	outboxstore "noticeboard/internal/adapters/storage/outbox"
	"noticeboard/internal/application/orchestrators"
	"noticeboard/internal/application/subcategories"
	"noticeboard/internal/domain/notice"
	"noticeboard/internal/domain/subcategory"
)

//go:embed templates/*.html static/*
var assets embed.FS

// Backend is the notice API as the web layer uses it.
type Backend interface {
	middleware.Backend
	GetNotice(ctx context.Context, token, id string) (notice.Notice, error)
	Subcategories(ctx context.Context, token string) (subcategory.Registry, error)
}

// Options holds the HTTP-facing settings.
type Options struct {
	CSRFKey        []byte
	Secure         bool // cookies and CSRF require HTTPS
	TrustedOrigins []string
	RateLimitRPS   float64
	RateLimitBurst int
	SlowRequest    time.Duration
	ReadyTimeout   time.Duration
}

// Deps holds everything the handlers reach.
type Deps struct {
	API           Backend
	Sessions      *middleware.SessionStore
	Subcategories *subcategories.Lookup
	Audit         auditstore.Store  // optional
	Outbox        outboxstore.Store // optional; queued announcements
	Announcer     *orchestrators.Announcer
	Collector     *perf.Collector
	Metrics       *perf.Metrics
	Options       Options
	// Background bounds goroutines NewMux starts. Nil starts none.
	Background context.Context
}

// LoadCSRFKey decodes a hex-encoded 32-byte CSRF secret. In production the
// key MUST be set; in development a random key is generated per startup.
func LoadCSRFKey(keyHex string, production bool) ([]byte, error) {
	if keyHex != "" {
		key, err := hex.DecodeString(keyHex)
		if err != nil || len(key) != 32 {
			return nil, errors.New("NOTICEBOARD_CSRF_KEY must be 64 hex characters (32 bytes)")
		}
		return key, nil
	}
	if production {
		return nil, errors.New("NOTICEBOARD_CSRF_KEY is required in production")
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	slog.Warn("csrf_key_generated", "detail", "using random CSRF key; forms break across restarts")
	return key, nil
}

// Global dependencies (set by NewMux)
var deps *Deps

// Global session store instance
var sessions *middleware.SessionStore

// timeNow is a variable for testability.
var timeNow = time.Now

// NewMux wires HTTP handlers for the app.
// PRE: d.API, d.Sessions and d.Subcategories are set; d.Options.CSRFKey is 32 bytes
func NewMux(d *Deps) http.Handler {
	deps = d
	sessions = d.Sessions

	mux := http.NewServeMux()
	static, err := fs.Sub(assets, "static")
	if err != nil {
		panic(err)
	}
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(static)))
	registerRoutes(mux)

	limiter := middleware.NewRateLimiter(d.Options.RateLimitRPS, d.Options.RateLimitBurst)
	if d.Background != nil {
		go limiter.Cleanup(d.Background, time.Minute)
	}

	// Recover -> RequestID -> Timing -> RateLimit -> Auth -> CSRF -> SecurityHeaders -> Mux
	return middleware.Chain(middleware.CaptureRoute(mux),
		middleware.SecurityHeaders,
		middleware.CSRF(d.Options.CSRFKey, d.Options.Secure, d.Options.TrustedOrigins),
		sessions.Auth,
		middleware.RateLimit(limiter),
		middleware.Timing(d.Collector, d.Metrics, d.Options.SlowRequest),
		middleware.RequestID,
		middleware.Recover,
	)
}
