package postgres

import (
	"context"
	"fmt"

	"github.com/JakeFAU/autoplay-crawler/internal/progress"
)

// DefaultSessionTable is used when no session table is configured.
const DefaultSessionTable = "autoplay_sessions"

// SessionStore tracks crawl sessions from the progress stream. It implements
// progress.Sink: SESSION_START inserts a running row, ITEM_READY bumps the
// item counter and SESSION_DONE / SESSION_ERROR close the row.
type SessionStore struct {
	pool  execCloser
	table string
}

var _ progress.Sink = (*SessionStore)(nil)

// NewSessionStoreWithPool constructs a store from an existing pool.
func NewSessionStoreWithPool(pool execCloser, table string) (*SessionStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = DefaultSessionTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &SessionStore{pool: pool, table: table}, nil
}

// EnsureSchema creates the session table when it does not exist.
func (s *SessionStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id uuid PRIMARY KEY,
	start_id text NOT NULL,
	start_url text NOT NULL DEFAULT '',
	started_at timestamptz NOT NULL,
	finished_at timestamptz,
	status text NOT NULL,
	items integer NOT NULL DEFAULT 0,
	error_message text
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// Session statuses stored in the status column.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Consume applies every event in order.
func (s *SessionStore) Consume(ctx context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		if err := s.apply(ctx, evt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SessionStore) apply(ctx context.Context, evt progress.Event) error {
	var (
		query string
		args  []any
	)
	switch evt.Stage {
	case progress.StageSessionStart:
		query = fmt.Sprintf(`
INSERT INTO %s (id, start_id, start_url, started_at, status)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO NOTHING`, s.table)
		args = []any{evt.SessionUUID(), evt.StartID, evt.URL, evt.TS, StatusRunning}
	case progress.StageItemReady:
		query = fmt.Sprintf(`UPDATE %s SET items = GREATEST(items, $1) WHERE id = $2`, s.table)
		args = []any{evt.Order + 1, evt.SessionUUID()}
	case progress.StageSessionDone:
		query = fmt.Sprintf(`UPDATE %s SET finished_at = $1, status = $2 WHERE id = $3`, s.table)
		args = []any{evt.TS, StatusSucceeded, evt.SessionUUID()}
	case progress.StageSessionError:
		query = fmt.Sprintf(`UPDATE %s SET finished_at = $1, status = $2, error_message = $3 WHERE id = $4`, s.table)
		args = []any{evt.TS, StatusFailed, evt.Note, evt.SessionUUID()}
	default:
		return nil
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("apply %s: %w", evt.Stage, err)
	}
	return nil
}

// Close is a no-op; the pool is owned by the caller.
func (s *SessionStore) Close(context.Context) error {
	return nil
}
