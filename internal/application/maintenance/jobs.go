package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"noticeboard/internal/application/orchestrators"
	"noticeboard/internal/domain/audit"
)

// jobTimeout bounds a single run of any job.
const jobTimeout = 30 * time.Second

// AuditPruner deletes audit events older than a cutoff and records what it did.
type AuditPruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
	Save(ctx context.Context, e audit.Event) error
}

// PruneAuditJob removes audit events older than Retention.
type PruneAuditJob struct {
	Store     AuditPruner
	Retention time.Duration
	Now       func() time.Time
}

// Name implements Job.
func (j *PruneAuditJob) Name() string { return "prune_audit" }

// Run implements cron.Job.
func (j *PruneAuditJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	if _, err := j.Execute(ctx); err != nil {
		slog.Error("audit_prune_failed", "error", err)
	}
}

// Execute prunes once. A run that removes rows leaves a system event behind.
// PRE: Retention > 0
// POST: no event older than Now()-Retention remains
func (j *PruneAuditJob) Execute(ctx context.Context) (int64, error) {
	if j.Retention <= 0 {
		return 0, fmt.Errorf("audit retention must be positive, got %s", j.Retention)
	}
	now := j.Now()
	cutoff := now.Add(-j.Retention)
	n, err := j.Store.Prune(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		e := audit.NewEvent("", "", "", audit.CategorySystem, audit.ActionPrune, now).
			WithDescription(fmt.Sprintf("pruned %d events before %s", n, cutoff.Format(time.DateOnly)))
		if err := j.Store.Save(ctx, e); err != nil {
			slog.Warn("audit_save_failed", "action", e.Action, "error", err)
		}
	}
	slog.Info("audit_pruned", "removed", n, "cutoff", cutoff)
	return n, nil
}

// SessionSweeper closes sessions that have not been used since a cutoff.
type SessionSweeper interface {
	SweepIdle(ctx context.Context, before time.Time) int
	Len() int
}

// ActiveSessionGauge receives the live session count after each sweep.
type ActiveSessionGauge interface {
	SetActiveSessions(n int)
}

// SweepSessionsJob closes browser sessions idle for longer than IdleTTL.
type SweepSessionsJob struct {
	Sessions SessionSweeper
	IdleTTL  time.Duration
	Gauge    ActiveSessionGauge // optional
	Now      func() time.Time
}

// Name implements Job.
func (j *SweepSessionsJob) Name() string { return "sweep_sessions" }

// Run implements cron.Job.
func (j *SweepSessionsJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	j.Execute(ctx)
}

// Execute sweeps once and returns how many sessions were closed.
func (j *SweepSessionsJob) Execute(ctx context.Context) int {
	closed := j.Sessions.SweepIdle(ctx, j.Now().Add(-j.IdleTTL))
	remaining := j.Sessions.Len()
	if j.Gauge != nil {
		j.Gauge.SetActiveSessions(remaining)
	}
	if closed > 0 {
		slog.Info("sessions_swept", "closed", closed, "remaining", remaining)
	}
	return closed
}

// OutboxPruner removes finished announcement entries.
type OutboxPruner interface {
	PruneFinished(ctx context.Context, before time.Time) (int64, error)
}

// RetryAnnouncementsJob resends queued announcement emails whose backoff has
// elapsed, then drops finished entries older than Retention.
type RetryAnnouncementsJob struct {
	Deps      orchestrators.RetryAnnouncementsDeps
	Pruner    OutboxPruner // optional
	Retention time.Duration
}

// Name implements Job.
func (j *RetryAnnouncementsJob) Name() string { return "retry_announcements" }

// Run implements cron.Job.
func (j *RetryAnnouncementsJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	if _, err := j.Execute(ctx); err != nil {
		slog.Error("announcement_retry_failed", "error", err)
	}
}

// Execute runs one retry pass followed by the prune.
func (j *RetryAnnouncementsJob) Execute(ctx context.Context) (orchestrators.RetryReport, error) {
	report, err := orchestrators.ExecuteRetryAnnouncements(ctx, j.Deps)
	if err != nil {
		return report, err
	}
	if j.Pruner != nil && j.Retention > 0 {
		n, err := j.Pruner.PruneFinished(ctx, j.Deps.Now().Add(-j.Retention))
		if err != nil {
			return report, fmt.Errorf("prune outbox: %w", err)
		}
		if n > 0 {
			slog.Info("outbox_pruned", "removed", n)
		}
	}
	return report, nil
}
