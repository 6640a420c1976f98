// Package config loads runtime settings from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	envPrefix = "NOTICEBOARD"
)

type Config struct {
	Env     string
	Addr    string
	PerPage int

	API      APIConfig
	Identity IdentityConfig
	Security SecurityConfig
	Storage  StorageConfig
	Perf     PerfConfig
	Email    EmailConfig
	Log      LogConfig
	Sessions SessionConfig
}

type APIConfig struct {
	BaseURL string
	Timeout time.Duration
}

type IdentityConfig struct {
	APIKey   string
	BaseURL  string
	TokenURL string
}

type SecurityConfig struct {
	CSRFKey        string
	TrustedOrigins []string
	RateLimitRPS   float64
	RateLimitBurst int
}

// StorageConfig covers the local audit database.
type StorageConfig struct {
	DBPath         string
	AuditRetention time.Duration
	PruneSchedule  string
}

// PerfConfig sets the thresholds above which requests and queries log at WARN.
type PerfConfig struct {
	SlowRequest  time.Duration
	SlowQuery    time.Duration
	SlowUpstream time.Duration
}

// EmailConfig configures high-priority notice announcements.
// An empty ResendKey disables delivery. Messages the provider rejects are
// retried on RetrySchedule with exponential backoff.
type EmailConfig struct {
	ResendKey  string
	From       string
	AnnounceTo []string
	SiteURL    string

	RetrySchedule   string
	RetryBaseDelay  time.Duration
	RetryMaxDelay   time.Duration
	OutboxRetention time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

// SessionConfig bounds how long an idle browser session is kept in memory.
type SessionConfig struct {
	IdleTTL       time.Duration
	SweepSchedule string
}

// Load reads .env (if present) and NOTICEBOARD_* environment variables.
// POST: every field holds either the configured value or its default
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Addr = v.GetString("ADDR")
	cfg.PerPage = v.GetInt("PER_PAGE")

	cfg.API = APIConfig{
		BaseURL: strings.TrimRight(v.GetString("API_BASE_URL"), "/"),
		Timeout: parseDuration(v.GetString("API_TIMEOUT"), 15*time.Second),
	}

	cfg.Identity = IdentityConfig{
		APIKey:   v.GetString("IDENTITY_API_KEY"),
		BaseURL:  v.GetString("IDENTITY_BASE_URL"),
		TokenURL: v.GetString("IDENTITY_TOKEN_URL"),
	}

	cfg.Security = SecurityConfig{
		CSRFKey:        v.GetString("CSRF_KEY"),
		TrustedOrigins: splitAndTrim(v.GetString("TRUSTED_ORIGINS")),
		RateLimitRPS:   v.GetFloat64("RATE_LIMIT_RPS"),
		RateLimitBurst: v.GetInt("RATE_LIMIT_BURST"),
	}

	cfg.Storage = StorageConfig{
		DBPath:         v.GetString("DB_PATH"),
		AuditRetention: parseDuration(v.GetString("AUDIT_RETENTION"), 90*24*time.Hour),
		PruneSchedule:  schedule(v, "AUDIT_PRUNE_SCHEDULE"),
	}

	cfg.Perf = PerfConfig{
		SlowRequest:  time.Duration(v.GetInt("SLOW_REQUEST_MS")) * time.Millisecond,
		SlowQuery:    time.Duration(v.GetInt("SLOW_QUERY_MS")) * time.Millisecond,
		SlowUpstream: time.Duration(v.GetInt("SLOW_UPSTREAM_MS")) * time.Millisecond,
	}

	cfg.Email = EmailConfig{
		ResendKey:  v.GetString("RESEND_KEY"),
		From:       v.GetString("RESEND_FROM"),
		AnnounceTo: splitAndTrim(v.GetString("ANNOUNCE_TO")),
		SiteURL:    strings.TrimRight(v.GetString("SITE_URL"), "/"),

		RetrySchedule:   schedule(v, "EMAIL_RETRY_SCHEDULE"),
		RetryBaseDelay:  parseDuration(v.GetString("EMAIL_RETRY_BASE_DELAY"), time.Minute),
		RetryMaxDelay:   parseDuration(v.GetString("EMAIL_RETRY_MAX_DELAY"), time.Hour),
		OutboxRetention: parseDuration(v.GetString("OUTBOX_RETENTION"), 7*24*time.Hour),
	}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Sessions = SessionConfig{
		IdleTTL:       parseDuration(v.GetString("SESSION_IDLE_TTL"), 24*time.Hour),
		SweepSchedule: schedule(v, "SESSION_SWEEP_SCHEDULE"),
	}

	return cfg
}

// IsProduction reports whether ENV is production.
func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// Validate checks settings the server cannot start without.
func (c *Config) Validate() error {
	var problems []string
	if c.API.BaseURL == "" {
		problems = append(problems, "NOTICEBOARD_API_BASE_URL is required")
	}
	if c.Identity.APIKey == "" {
		problems = append(problems, "NOTICEBOARD_IDENTITY_API_KEY is required")
	}
	if c.IsProduction() && c.Security.CSRFKey == "" {
		problems = append(problems, "NOTICEBOARD_CSRF_KEY is required in production")
	}
	if c.PerPage < 1 {
		problems = append(problems, "NOTICEBOARD_PER_PAGE must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("ADDR", ":8080")
	v.SetDefault("PER_PAGE", 10)

	v.SetDefault("API_BASE_URL", "http://localhost:8000")
	v.SetDefault("API_TIMEOUT", "15s")

	v.SetDefault("IDENTITY_API_KEY", "")
	v.SetDefault("IDENTITY_BASE_URL", "https://identitytoolkit.googleapis.com/v1")
	v.SetDefault("IDENTITY_TOKEN_URL", "https://securetoken.googleapis.com/v1/token")

	v.SetDefault("CSRF_KEY", "")
	v.SetDefault("TRUSTED_ORIGINS", "")
	v.SetDefault("RATE_LIMIT_RPS", 10)
	v.SetDefault("RATE_LIMIT_BURST", 30)

	v.SetDefault("DB_PATH", "noticeboard.db")
	v.SetDefault("AUDIT_RETENTION", "2160h")
	v.SetDefault("AUDIT_PRUNE_SCHEDULE", "0 30 3 * * *")

	v.SetDefault("SLOW_REQUEST_MS", 200)
	v.SetDefault("SLOW_QUERY_MS", 50)
	v.SetDefault("SLOW_UPSTREAM_MS", 500)

	v.SetDefault("RESEND_KEY", "")
	v.SetDefault("RESEND_FROM", "Notice Board <noreply@noticeboard.local>")
	v.SetDefault("ANNOUNCE_TO", "")
	v.SetDefault("SITE_URL", "")
	v.SetDefault("EMAIL_RETRY_SCHEDULE", "0 */5 * * * *")
	v.SetDefault("EMAIL_RETRY_BASE_DELAY", "1m")
	v.SetDefault("EMAIL_RETRY_MAX_DELAY", "1h")
	v.SetDefault("OUTBOX_RETENTION", "168h")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "")

	v.SetDefault("SESSION_IDLE_TTL", "24h")
	v.SetDefault("SESSION_SWEEP_SCHEDULE", "0 */15 * * * *")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

// schedule returns a cron spec. An explicitly empty variable disables the
// job, which viper alone cannot express: it treats empty env values as unset.
func schedule(v *viper.Viper, key string) string {
	if raw, ok := os.LookupEnv(envPrefix + "_" + key); ok {
		return strings.TrimSpace(raw)
	}
	return v.GetString(key)
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
