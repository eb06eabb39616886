// Package sqlite persists the login audit trail.
package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/aussiebroadwan/mfagate/internal/mfagate/domain"
	"github.com/aussiebroadwan/mfagate/internal/mfagate/store"
	"github.com/aussiebroadwan/mfagate/pkg/idx"
	_ "modernc.org/sqlite"
)

var _ store.Events = (*Store)(nil)

// DefaultListLimit caps ListEvents when the filter sets no limit.
const DefaultListLimit = 100

type Store struct {
	db *sql.DB
}

// NewStore opens the database at dsn. Call ApplyMigrations before use.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// A single connection keeps ":memory:" databases coherent and serialises
	// writers, which sqlite requires anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(context.Background(), `PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const insertEvent = `
INSERT INTO login_events (id, type, realm, username, method, attempt_fingerprint, detail, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

func (s *Store) RecordEvent(ctx context.Context, e domain.LoginEvent) error {
	if e.ID == "" {
		e.ID = idx.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, insertEvent,
		e.ID, string(e.Type), e.Realm, e.Username, string(e.Method),
		e.AttemptFingerprint, e.Detail, e.CreatedAt.UnixMilli(),
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return store.ErrAlreadyExists
	}
	return err
}

func (s *Store) ListEvents(ctx context.Context, f store.EventFilter) ([]domain.LoginEvent, error) {
	var (
		where []string
		args  []any
	)
	if f.Realm != "" {
		where = append(where, "realm = ?")
		args = append(args, f.Realm)
	}
	if f.Username != "" {
		where = append(where, "username = ?")
		args = append(args, f.Username)
	}
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(f.Type))
	}

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `SELECT id, type, realm, username, method, attempt_fingerprint, detail, created_at FROM login_events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.LoginEvent
	for rows.Next() {
		var (
			e       domain.LoginEvent
			typ     string
			method  string
			created int64
		)
		if err := rows.Scan(&e.ID, &typ, &e.Realm, &e.Username, &method, &e.AttemptFingerprint, &e.Detail, &created); err != nil {
			return nil, err
		}
		e.Type = domain.EventType(typ)
		e.Method = domain.Method(method)
		e.CreatedAt = time.UnixMilli(created).UTC()
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *Store) DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM login_events WHERE created_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
