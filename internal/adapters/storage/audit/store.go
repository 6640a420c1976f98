package audit

import (
	"context"
	"time"

	domain "noticeboard/internal/domain/audit"
)

// Store defines the interface for audit event persistence.
type Store interface {
	// Save persists an audit event.
	// PRE: event is valid
	// POST: Event is persisted
	Save(ctx context.Context, event domain.Event) error

	// List returns audit events with optional filtering.
	// PRE: limit > 0
	// POST: Returns events ordered by timestamp desc
	List(ctx context.Context, filter Filter, limit int) ([]domain.Event, error)

	// GetByID retrieves a specific audit event.
	// PRE: id is non-empty
	// POST: Returns the event or sql.ErrNoRows
	GetByID(ctx context.Context, id string) (domain.Event, error)

	// Prune deletes events older than before and reports how many went.
	Prune(ctx context.Context, before time.Time) (int64, error)

	// CountByAction tallies events per action since the given time.
	CountByAction(ctx context.Context, since time.Time) (map[domain.Action]int, error)
}

// Filter defines query parameters for listing audit events. Zero values match everything.
type Filter struct {
	Category   domain.Category
	Action     domain.Action
	ActorUID   string
	ResourceID string
	Since      time.Time
}

// Ensure SQLiteStore implements Store interface.
var _ Store = (*SQLiteStore)(nil)
