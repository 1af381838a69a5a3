package calendar

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fakeyudi/awcal/internal/reconcile"
)

// batch is a reconcile.Batch over one SQLite transaction.
type batch struct {
	tx        *sql.Tx
	calendars map[string]string // name -> id, resolved lazily
}

func (b *batch) calendarID(ctx context.Context, name string) (string, error) {
	if id, ok := b.calendars[name]; ok {
		return id, nil
	}
	var id string
	err := b.tx.QueryRowContext(ctx, `SELECT id FROM calendars WHERE name = ?`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %q", ErrDestinationUnresolvable, name)
	}
	if err != nil {
		return "", err
	}
	b.calendars[name] = id
	return id, nil
}

func (b *batch) Create(ctx context.Context, item reconcile.SyncItem) (string, error) {
	if !item.End.After(item.Start) {
		return "", fmt.Errorf("event %q ends before it starts", item.Title)
	}
	calID, err := b.calendarID(ctx, item.Destination)
	if err != nil {
		return "", err
	}
	id := uuid.New().String()
	_, err = b.tx.ExecContext(ctx, `
		INSERT INTO events (id, calendar_id, title, notes, start_ms, end_ms, updated_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id, calID, item.Title, item.Description, item.Start.UnixMilli(), item.End.UnixMilli(), time.Now().UnixMilli())
	if err != nil {
		return "", fmt.Errorf("inserting event: %w", err)
	}
	return id, nil
}

func (b *batch) Update(ctx context.Context, id string, end time.Time, description string) error {
	res, err := b.tx.ExecContext(ctx,
		`UPDATE events SET end_ms = ?, notes = ?, updated_ms = ? WHERE id = ?`,
		end.UnixMilli(), description, time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("updating event %s: %w", id, err)
	}
	return expectOneRow(res, id)
}

func (b *batch) Delete(ctx context.Context, id string) error {
	res, err := b.tx.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting event %s: %w", id, err)
	}
	return expectOneRow(res, id)
}

func (b *batch) Commit() error {
	return b.tx.Commit()
}

func (b *batch) Rollback() error {
	err := b.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

func expectOneRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("event %s not found", id)
	}
	return nil
}
