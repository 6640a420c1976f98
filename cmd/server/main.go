package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"noticeboard/internal/adapters/api"
	"noticeboard/internal/adapters/email"
	web "noticeboard/internal/adapters/http"
	"noticeboard/internal/adapters/http/middleware"
	"noticeboard/internal/adapters/http/perf"
	"noticeboard/internal/adapters/identity"
	"noticeboard/internal/adapters/markdown"
	"noticeboard/internal/adapters/storage"
	auditStorePkg "noticeboard/internal/adapters/storage/audit"
	outboxStorePkg "noticeboard/internal/adapters/storage/outbox"
	"noticeboard/internal/application/maintenance"
	"noticeboard/internal/application/orchestrators"
	"noticeboard/internal/application/subcategories"
	"noticeboard/internal/config"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("server_failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(newLogger(cfg))
	if err := cfg.Validate(); err != nil {
		return err
	}

	db, err := storage.Open(cfg.Storage.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := storage.MigrateDB(db); err != nil {
		return err
	}

	// Performance instrumentation shared by the database, upstream clients and HTTP
	collector := perf.NewCollector(perf.DefaultRingSize)
	metrics := perf.NewMetrics()
	timedDB := storage.NewTimedDB(db, collector, metrics, cfg.Perf.SlowQuery)

	apiClient, err := api.New(api.Options{
		BaseURL:       cfg.API.BaseURL,
		HTTPClient:    &http.Client{Timeout: cfg.API.Timeout},
		Collector:     collector,
		Metrics:       metrics,
		SlowThreshold: cfg.Perf.SlowUpstream,
	})
	if err != nil {
		return err
	}
	provider, err := identity.NewFirebaseProvider(identity.FirebaseOptions{
		APIKey:        cfg.Identity.APIKey,
		BaseURL:       cfg.Identity.BaseURL,
		TokenURL:      cfg.Identity.TokenURL,
		HTTPClient:    &http.Client{Timeout: cfg.API.Timeout},
		Collector:     collector,
		Metrics:       metrics,
		SlowThreshold: cfg.Perf.SlowUpstream,
	})
	if err != nil {
		return err
	}

	auditStore := auditStorePkg.NewSQLiteStore(timedDB)
	outboxStore := outboxStorePkg.NewSQLiteStore(timedDB)

	var sender email.Sender
	if cfg.Email.ResendKey != "" {
		sender = email.NewResendSender(cfg.Email.ResendKey, cfg.Email.From)
		slog.Info("email_sender_configured", "provider", "resend", "recipients", len(cfg.Email.AnnounceTo))
	} else {
		sender = email.NewNoopSender()
		if cfg.IsProduction() {
			slog.Warn("email_sender_configured", "provider", "noop", "detail", "NOTICEBOARD_RESEND_KEY is not set; announcements are not delivered")
		}
	}
	announcer := &orchestrators.Announcer{
		Sender:     sender,
		Recipients: cfg.Email.AnnounceTo,
		From:       cfg.Email.From,
		BaseURL:    cfg.Email.SiteURL,
		Render:     markdown.ToHTML,
		Queue:      outboxStore,
	}

	sessions := middleware.NewSessionStore(provider, apiClient, cfg.PerPage)
	csrfKey, err := web.LoadCSRFKey(cfg.Security.CSRFKey, cfg.IsProduction())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handler := web.NewMux(&web.Deps{
		API:           apiClient,
		Sessions:      sessions,
		Subcategories: subcategories.New(apiClient),
		Audit:         auditStore,
		Outbox:        outboxStore,
		Announcer:     announcer,
		Collector:     collector,
		Metrics:       metrics,
		Background:    ctx,
		Options: web.Options{
			CSRFKey:        csrfKey,
			Secure:         cfg.IsProduction(),
			TrustedOrigins: cfg.Security.TrustedOrigins,
			RateLimitRPS:   cfg.Security.RateLimitRPS,
			RateLimitBurst: cfg.Security.RateLimitBurst,
			SlowRequest:    cfg.Perf.SlowRequest,
		},
	})

	scheduler := maintenance.NewScheduler(slog.Default())
	jobs := []struct {
		spec string
		job  maintenance.Job
	}{
		{cfg.Storage.PruneSchedule, &maintenance.PruneAuditJob{Store: auditStore, Retention: cfg.Storage.AuditRetention, Now: time.Now}},
		{cfg.Sessions.SweepSchedule, &maintenance.SweepSessionsJob{Sessions: sessions, IdleTTL: cfg.Sessions.IdleTTL, Gauge: metrics, Now: time.Now}},
		{cfg.Email.RetrySchedule, &maintenance.RetryAnnouncementsJob{
			Deps: orchestrators.RetryAnnouncementsDeps{
				Outbox:    outboxStore,
				Sender:    sender,
				BaseDelay: cfg.Email.RetryBaseDelay,
				MaxDelay:  cfg.Email.RetryMaxDelay,
				Now:       time.Now,
			},
			Pruner:    outboxStore,
			Retention: cfg.Email.OutboxRetention,
		}},
	}
	for _, j := range jobs {
		if j.spec == "" {
			continue
		}
		if err := scheduler.Add(j.spec, j.job); err != nil {
			return err
		}
	}
	scheduler.Start()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server_starting", "version", version, "addr", cfg.Addr, "env", cfg.Env,
			"schema", storage.LatestSchemaVersion(), "api", cfg.API.BaseURL)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		slog.Info("server_stopping")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server_shutdown_failed", "error", err)
	}
	if err := scheduler.Stop(shutdownCtx); err != nil {
		slog.Warn("scheduler_stop_timeout", "error", err)
	}
	// Close every remaining session so their background refreshes end.
	closed := sessions.CloseAll()
	slog.Info("server_stopped", "sessions_closed", closed)
	return nil
}

// newLogger writes JSON in production and text otherwise, unless
// NOTICEBOARD_LOG_FORMAT says which.
func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	format := strings.ToLower(cfg.Log.Format)
	if format == "" && cfg.IsProduction() {
		format = "json"
	}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
