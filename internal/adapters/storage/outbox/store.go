package outbox

import (
	"context"
	"time"

	domain "noticeboard/internal/domain/outbox"
)

// Store defines the interface for queued announcement persistence.
type Store interface {
	// GetByID retrieves an entry.
	// PRE: id is non-empty
	// POST: Returns the entry or sql.ErrNoRows
	GetByID(ctx context.Context, id string) (domain.Entry, error)

	// Save inserts or updates an entry.
	// PRE: entry validates
	Save(ctx context.Context, e domain.Entry) error

	// ListPending returns entries still awaiting delivery, oldest first.
	// PRE: limit > 0
	ListPending(ctx context.Context, limit int) ([]domain.Entry, error)

	// List returns entries in status (all statuses when empty), newest first.
	// PRE: limit > 0
	List(ctx context.Context, status string, limit int) ([]domain.Entry, error)

	// CountByStatus tallies entries per status.
	CountByStatus(ctx context.Context) (map[string]int, error)

	// PruneFinished deletes done and abandoned entries created before the cutoff.
	PruneFinished(ctx context.Context, before time.Time) (int64, error)
}

// Ensure SQLiteStore implements Store interface.
var _ Store = (*SQLiteStore)(nil)
