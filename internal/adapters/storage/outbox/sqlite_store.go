package outbox

import (
	"context"
	"database/sql"
	"time"

	"noticeboard/internal/adapters/storage"
	domain "noticeboard/internal/domain/outbox"
)

// dateLayout is fixed width so stored timestamps sort lexically.
const dateLayout = "2006-01-02T15:04:05.000000000Z07:00"

const entryColumns = `id, kind, notice_id, payload, status, attempts, max_attempts, last_attempted_at, created_at, message_id, error_message`

// SQLiteStore implements the outbox Store interface using SQLite.
type SQLiteStore struct {
	db storage.SQLDB
}

// NewSQLiteStore creates a new outbox store.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateLayout)
}

// GetByID retrieves an entry by its ID.
// PRE: id is non-empty
// POST: Returns the entry or sql.ErrNoRows
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (domain.Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM outbox WHERE id = ?`, id)
	return scanEntry(row)
}

// Save inserts or updates an entry.
// PRE: entry validates
// POST: the row matches e
func (s *SQLiteStore) Save(ctx context.Context, e domain.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO outbox (`+entryColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   status=excluded.status, attempts=excluded.attempts, max_attempts=excluded.max_attempts,
		   last_attempted_at=excluded.last_attempted_at, message_id=excluded.message_id,
		   error_message=excluded.error_message`,
		e.ID, e.Kind, e.NoticeID, e.Payload, e.Status, e.Attempts, e.MaxAttempts,
		formatTime(e.LastAttemptedAt), formatTime(e.CreatedAt), e.MessageID, e.ErrorMessage)
	return err
}

// ListPending returns entries still awaiting delivery, oldest first.
// PRE: limit > 0
func (s *SQLiteStore) ListPending(ctx context.Context, limit int) ([]domain.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM outbox WHERE status IN (?, ?) ORDER BY created_at ASC LIMIT ?`,
		domain.StatusPending, domain.StatusRetrying, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

// List returns entries in status, newest first. An empty status lists everything.
// PRE: limit > 0
func (s *SQLiteStore) List(ctx context.Context, status string, limit int) ([]domain.Entry, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if status != "" {
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+entryColumns+` FROM outbox WHERE status = ? ORDER BY created_at DESC LIMIT ?`, status, limit)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+entryColumns+` FROM outbox ORDER BY created_at DESC LIMIT ?`, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

// CountByStatus tallies entries per status.
func (s *SQLiteStore) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM outbox GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// PruneFinished deletes done and abandoned entries created before the cutoff.
// POST: failed entries stay until an admin retries or abandons them
func (s *SQLiteStore) PruneFinished(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM outbox WHERE status IN (?, ?) AND created_at < ?`,
		domain.StatusDone, domain.StatusAbandoned, formatTime(before))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (domain.Entry, error) {
	var e domain.Entry
	var lastAttemptedAt, createdAt string
	err := row.Scan(&e.ID, &e.Kind, &e.NoticeID, &e.Payload, &e.Status, &e.Attempts, &e.MaxAttempts,
		&lastAttemptedAt, &createdAt, &e.MessageID, &e.ErrorMessage)
	if err != nil {
		return domain.Entry{}, err
	}
	e.CreatedAt, _ = time.Parse(dateLayout, createdAt)
	if lastAttemptedAt != "" {
		e.LastAttemptedAt, _ = time.Parse(dateLayout, lastAttemptedAt)
	}
	return e, nil
}

func scanEntries(rows *sql.Rows) ([]domain.Entry, error) {
	var entries []domain.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
