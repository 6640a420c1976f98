package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"noticeboard/internal/adapters/storage"
	domain "noticeboard/internal/domain/audit"
)

// dateLayout is fixed width so stored timestamps sort lexically.
const dateLayout = "2006-01-02T15:04:05.000000000Z07:00"

const eventColumns = `id, timestamp, category, action, severity, actor_uid, actor_email, actor_role, resource_id, resource_type, description, ip_address, user_agent`

// SQLiteStore implements the audit Store interface using SQLite.
type SQLiteStore struct {
	db storage.SQLDB
}

// NewSQLiteStore creates a new audit event store.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

// Save persists an audit event.
// PRE: event is valid
// POST: Event is persisted
func (s *SQLiteStore) Save(ctx context.Context, event domain.Event) error {
	if err := event.Validate(); err != nil {
		return err
	}
	severity := event.Severity
	if severity == "" {
		severity = domain.SeverityInfo
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_event (`+eventColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, formatTime(event.Timestamp), string(event.Category), string(event.Action),
		string(severity), event.ActorUID, event.ActorEmail, event.ActorRole,
		event.ResourceID, event.ResourceType, event.Description, event.IPAddress, event.UserAgent)
	if err != nil {
		return fmt.Errorf("save audit event: %w", err)
	}
	return nil
}

// List returns audit events with optional filtering.
// PRE: limit > 0
// POST: Returns events ordered by timestamp desc
func (s *SQLiteStore) List(ctx context.Context, filter Filter, limit int) ([]domain.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM audit_event WHERE 1=1`
	args := []any{}

	if filter.Category != "" {
		query += " AND category = ?"
		args = append(args, string(filter.Category))
	}
	if filter.Action != "" {
		query += " AND action = ?"
		args = append(args, string(filter.Action))
	}
	if filter.ActorUID != "" {
		query += " AND actor_uid = ?"
		args = append(args, filter.ActorUID)
	}
	if filter.ResourceID != "" {
		query += " AND resource_id = ?"
		args = append(args, filter.ResourceID)
	}
	if !filter.Since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, formatTime(filter.Since))
	}

	query += " ORDER BY timestamp DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// GetByID retrieves a specific audit event.
// PRE: id is non-empty
// POST: Returns the event or sql.ErrNoRows
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (domain.Event, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM audit_event WHERE id = ?`, id)
	return scanEvent(row)
}

// Prune deletes events with a timestamp strictly before the cutoff.
// POST: Returns the number of rows removed
func (s *SQLiteStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_event WHERE timestamp < ?`, formatTime(before))
	if err != nil {
		return 0, fmt.Errorf("prune audit events: %w", err)
	}
	return res.RowsAffected()
}

// CountByAction tallies events per action recorded at or after since.
func (s *SQLiteStore) CountByAction(ctx context.Context, since time.Time) (map[domain.Action]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT action, COUNT(*) FROM audit_event WHERE timestamp >= ? GROUP BY action`, formatTime(since))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.Action]int)
	for rows.Next() {
		var action string
		var n int
		if err := rows.Scan(&action, &n); err != nil {
			return nil, err
		}
		counts[domain.Action(action)] = n
	}
	return counts, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInto(sc scanner) (domain.Event, error) {
	var e domain.Event
	var timestamp string
	err := sc.Scan(&e.ID, &timestamp, &e.Category, &e.Action, &e.Severity, &e.ActorUID, &e.ActorEmail, &e.ActorRole, &e.ResourceID, &e.ResourceType, &e.Description, &e.IPAddress, &e.UserAgent)
	if err != nil {
		return domain.Event{}, err
	}
	e.Timestamp, _ = time.Parse(dateLayout, timestamp)
	return e, nil
}

func scanEvent(row *sql.Row) (domain.Event, error) {
	return scanInto(row)
}

func scanEvents(rows *sql.Rows) ([]domain.Event, error) {
	events := []domain.Event{}
	for rows.Next() {
		e, err := scanInto(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
