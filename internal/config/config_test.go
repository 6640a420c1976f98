package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoad_Defaults verifies every setting has a usable default.
func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 10, cfg.PerPage)
	assert.Equal(t, 15*time.Second, cfg.API.Timeout)
	assert.Equal(t, "noticeboard.db", cfg.Storage.DBPath)
	assert.Equal(t, 90*24*time.Hour, cfg.Storage.AuditRetention)
	assert.Equal(t, 200*time.Millisecond, cfg.Perf.SlowRequest)
	assert.Equal(t, 50*time.Millisecond, cfg.Perf.SlowQuery)
	assert.Equal(t, 10.0, cfg.Security.RateLimitRPS)
	assert.Nil(t, cfg.Email.AnnounceTo)
	assert.Equal(t, time.Minute, cfg.Email.RetryBaseDelay)
	assert.Equal(t, time.Hour, cfg.Email.RetryMaxDelay)
	assert.Equal(t, 7*24*time.Hour, cfg.Email.OutboxRetention)
	assert.Equal(t, "0 */5 * * * *", cfg.Email.RetrySchedule)
	assert.False(t, cfg.IsProduction())
}

// TestLoad_EnvOverrides verifies NOTICEBOARD_* variables win over defaults.
func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("NOTICEBOARD_ENV", "production")
	t.Setenv("NOTICEBOARD_ADDR", ":9090")
	t.Setenv("NOTICEBOARD_API_BASE_URL", "https://api.example.edu/")
	t.Setenv("NOTICEBOARD_API_TIMEOUT", "3s")
	t.Setenv("NOTICEBOARD_SLOW_QUERY_MS", "75")
	t.Setenv("NOTICEBOARD_ANNOUNCE_TO", "staff@uni.edu, , students@uni.edu")
	t.Setenv("NOTICEBOARD_AUDIT_RETENTION", "not-a-duration")
	t.Setenv("NOTICEBOARD_SITE_URL", "https://notices.uni.edu/")
	t.Setenv("NOTICEBOARD_TRUSTED_ORIGINS", "notices.uni.edu")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "https://api.example.edu", cfg.API.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.API.Timeout)
	assert.Equal(t, 75*time.Millisecond, cfg.Perf.SlowQuery)
	assert.Equal(t, []string{"staff@uni.edu", "students@uni.edu"}, cfg.Email.AnnounceTo)
	assert.Equal(t, 90*24*time.Hour, cfg.Storage.AuditRetention, "bad duration falls back")
	assert.Equal(t, "https://notices.uni.edu", cfg.Email.SiteURL)
	assert.Equal(t, []string{"notices.uni.edu"}, cfg.Security.TrustedOrigins)
}

// TestLoad_EmptyScheduleDisablesJob verifies an explicitly empty schedule
// is kept rather than replaced by the default.
func TestLoad_EmptyScheduleDisablesJob(t *testing.T) {
	t.Setenv("NOTICEBOARD_AUDIT_PRUNE_SCHEDULE", "")
	t.Setenv("NOTICEBOARD_EMAIL_RETRY_SCHEDULE", "")
	t.Setenv("NOTICEBOARD_SESSION_SWEEP_SCHEDULE", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Empty(t, cfg.Storage.PruneSchedule)
	assert.Empty(t, cfg.Email.RetrySchedule)
	assert.Empty(t, cfg.Sessions.SweepSchedule)
}

// TestLoad_ScheduleOverride verifies a schedule can be replaced.
func TestLoad_ScheduleOverride(t *testing.T) {
	t.Setenv("NOTICEBOARD_EMAIL_RETRY_SCHEDULE", "0 0 * * * *")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0 0 * * * *", cfg.Email.RetrySchedule)
	assert.Equal(t, "0 30 3 * * *", cfg.Storage.PruneSchedule)
}

// TestValidate verifies required settings are reported together.
func TestValidate(t *testing.T) {
	cfg := &Config{Env: EnvProduction, PerPage: 0}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOTICEBOARD_API_BASE_URL")
	assert.Contains(t, err.Error(), "NOTICEBOARD_IDENTITY_API_KEY")
	assert.Contains(t, err.Error(), "NOTICEBOARD_CSRF_KEY")
	assert.Contains(t, err.Error(), "NOTICEBOARD_PER_PAGE")

	ok := &Config{
		Env:      EnvDevelopment,
		PerPage:  10,
		API:      APIConfig{BaseURL: "http://localhost:8000"},
		Identity: IdentityConfig{APIKey: "k"},
	}
	assert.NoError(t, ok.Validate())
}

// TestSplitAndTrim verifies blank entries are dropped.
func TestSplitAndTrim(t *testing.T) {
	assert.Nil(t, splitAndTrim(""))
	assert.Equal(t, []string{"a", "b"}, splitAndTrim(" a ,,b "))
}
