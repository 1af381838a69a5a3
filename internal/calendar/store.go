// Package calendar is the local calendar store that synced entries are
// written to. Calendars and events live in a SQLite database; writes go
// through a transaction-backed batch so a run commits atomically.
package calendar

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/fakeyudi/awcal/internal/reconcile"
)

// ErrDestinationUnresolvable is returned when an event targets a calendar
// that has not been provisioned.
var ErrDestinationUnresolvable = errors.New("calendar not provisioned")

// Calendar is a named collection of events.
type Calendar struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Store is a SQLite-backed calendar store.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	// lockWait bounds how long Begin keeps retrying while another writer
	// holds the database.
	lockWait time.Duration
}

// Open opens (creating if needed) the calendar database at path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(home, path[1:])
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating calendar directory: %w", err)
	}

	db, err := sql.Open("sqlite3", connString(path))
	if err != nil {
		return nil, fmt.Errorf("opening calendar database: %w", err)
	}
	// One connection keeps the write transaction and reads on the same handle.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, logger: logger, lockWait: 30 * time.Second}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating calendar database: %w", err)
	}
	return s, nil
}

func connString(path string) string {
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate"
}

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS calendars (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			created_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			calendar_id TEXT NOT NULL REFERENCES calendars(id),
			title TEXT NOT NULL,
			notes TEXT NOT NULL DEFAULT '',
			start_ms INTEGER NOT NULL,
			end_ms INTEGER NOT NULL,
			updated_ms INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_events_calendar_start ON events(calendar_id, start_ms);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable and writable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return err
	}
	var readOnly int
	if err := s.db.QueryRowContext(ctx, `PRAGMA query_only`).Scan(&readOnly); err != nil {
		return err
	}
	if readOnly != 0 {
		return errors.New("calendar database is read-only")
	}
	return nil
}

// EnsureDestination returns the calendar called name, creating it if missing.
func (s *Store) EnsureDestination(ctx context.Context, name string) (Calendar, error) {
	if strings.TrimSpace(name) == "" {
		return Calendar{}, fmt.Errorf("%w: empty calendar name", ErrDestinationUnresolvable)
	}
	if cal, err := s.calendarByName(ctx, name); err == nil {
		return cal, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return Calendar{}, err
	}

	cal := Calendar{ID: uuid.New().String(), Name: name, CreatedAt: time.Now().UTC()}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO calendars (id, name, created_at) VALUES (?, ?, ?) ON CONFLICT(name) DO NOTHING`,
		cal.ID, cal.Name, cal.CreatedAt.UnixMilli())
	if err != nil {
		return Calendar{}, fmt.Errorf("creating calendar %q: %w", name, err)
	}
	s.logger.Info("created calendar", "name", name)
	return s.calendarByName(ctx, name)
}

func (s *Store) calendarByName(ctx context.Context, name string) (Calendar, error) {
	var cal Calendar
	var created int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM calendars WHERE name = ?`, name).
		Scan(&cal.ID, &cal.Name, &created)
	if err != nil {
		return Calendar{}, err
	}
	cal.CreatedAt = time.UnixMilli(created).UTC()
	return cal, nil
}

// Calendars lists every calendar by name.
func (s *Store) Calendars(ctx context.Context) ([]Calendar, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, created_at FROM calendars ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cals []Calendar
	for rows.Next() {
		var cal Calendar
		var created int64
		if err := rows.Scan(&cal.ID, &cal.Name, &created); err != nil {
			return nil, err
		}
		cal.CreatedAt = time.UnixMilli(created).UTC()
		cals = append(cals, cal)
	}
	return cals, rows.Err()
}

// ListEntries returns the events in the named calendars whose start lies in
// [start, end), ordered by start.
func (s *Store) ListEntries(ctx context.Context, calendars []string, start, end time.Time) ([]reconcile.ExternalEntry, error) {
	if len(calendars) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(calendars)), ",")
	args := make([]any, 0, len(calendars)+2)
	for _, c := range calendars {
		args = append(args, c)
	}
	args = append(args, start.UnixMilli(), end.UnixMilli())

	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, c.name, e.title, e.notes, e.start_ms, e.end_ms
		FROM events e JOIN calendars c ON c.id = e.calendar_id
		WHERE c.name IN (`+placeholders+`) AND e.start_ms >= ? AND e.start_ms < ?
		ORDER BY e.start_ms, e.id
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	defer rows.Close()

	var out []reconcile.ExternalEntry
	for rows.Next() {
		var e reconcile.ExternalEntry
		var startMs, endMs int64
		if err := rows.Scan(&e.ID, &e.Destination, &e.Title, &e.Description, &startMs, &endMs); err != nil {
			return nil, err
		}
		e.Start = time.UnixMilli(startMs).UTC()
		e.End = time.UnixMilli(endMs).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// Count returns how many events in calendar start in [start, end).
func (s *Store) Count(ctx context.Context, calendar string, start, end time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM events e JOIN calendars c ON c.id = e.calendar_id
		WHERE c.name = ? AND e.start_ms >= ? AND e.start_ms < ?
	`, calendar, start.UnixMilli(), end.UnixMilli()).Scan(&n)
	return n, err
}

// Begin opens a write batch. Acquiring the write lock is retried with
// exponential backoff while another process holds it.
func (s *Store) Begin(ctx context.Context) (reconcile.Batch, error) {
	var tx *sql.Tx
	op := func() error {
		var err error
		tx, err = s.db.BeginTx(ctx, nil)
		if err != nil && !errors.Is(err, sqlite3.BUSY) {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = s.lockWait
	notify := func(err error, wait time.Duration) {
		s.logger.Debug("calendar database busy, retrying", "wait", wait, "error", err)
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify); err != nil {
		return nil, fmt.Errorf("starting calendar transaction: %w", err)
	}
	return &batch{tx: tx, calendars: map[string]string{}}, nil
}
