package reconcile

import (
	"context"
	"log/slog"
	"time"
)

// Engine applies reconciliation plans to a Batch. It never fails past its
// own boundary: every failure is logged and counted in Stats.
type Engine struct {
	Logger       *slog.Logger
	EndTolerance time.Duration
	// Now is overridable for tests.
	Now func() time.Time
}

// NewEngine returns an Engine with the default end tolerance.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{Logger: logger, EndTolerance: DefaultEndTolerance, Now: time.Now}
}

// Plan computes the diff without touching the store.
func (e *Engine) Plan(desired []SyncItem, existing []ExternalEntry) Plan {
	return Diff(desired, existing, e.EndTolerance)
}

// Reconcile diffs desired against existing and applies the result to batch,
// committing once at the end.
func (e *Engine) Reconcile(ctx context.Context, batch Batch, desired []SyncItem, existing []ExternalEntry) Stats {
	started := e.Now()
	stats := e.Apply(ctx, batch, e.Plan(desired, existing))
	stats.Duration = e.Now().Sub(started)
	return stats
}

// Apply executes plan against batch. Individual failures are skipped; a
// failed commit is logged and reported through Stats.Committed.
func (e *Engine) Apply(ctx context.Context, batch Batch, plan Plan) Stats {
	var stats Stats
	stats.Unchanged = len(plan.Unchanged)

	for _, item := range plan.Duplicates {
		e.Logger.Warn("duplicate identity key in desired items, skipping",
			"key", item.Key().String())
		stats.Errors++
	}

	for _, item := range plan.Creates {
		id, err := batch.Create(ctx, item)
		if err != nil {
			e.Logger.Warn("create failed", "title", item.Title, "calendar", item.Destination,
				"start", item.Start, "error", err)
			stats.Errors++
			continue
		}
		e.Logger.Debug("created", "id", id, "title", item.Title, "start", item.Start)
		stats.Created++
	}

	for _, u := range plan.Updates {
		if err := batch.Update(ctx, u.Entry.ID, u.Item.End, u.Item.Description); err != nil {
			e.Logger.Warn("update failed", "id", u.Entry.ID, "title", u.Entry.Title, "error", err)
			stats.Errors++
			continue
		}
		stats.Updated++
	}

	for _, ex := range plan.Deletes {
		if err := batch.Delete(ctx, ex.ID); err != nil {
			e.Logger.Warn("delete failed", "id", ex.ID, "title", ex.Title, "error", err)
			stats.Errors++
			continue
		}
		stats.Deleted++
	}

	if err := batch.Commit(); err != nil {
		e.Logger.Error("commit failed", "error", err)
		_ = batch.Rollback()
		return stats
	}
	stats.Committed = true
	return stats
}
