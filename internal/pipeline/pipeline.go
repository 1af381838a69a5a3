// Package pipeline runs one sync pass: fetch activity, aggregate it into
// calendar items and reconcile the calendar store against them.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fakeyudi/awcal/internal/activity"
	"github.com/fakeyudi/awcal/internal/activitywatch"
	"github.com/fakeyudi/awcal/internal/bucket"
	"github.com/fakeyudi/awcal/internal/calendar"
	"github.com/fakeyudi/awcal/internal/config"
	"github.com/fakeyudi/awcal/internal/cursor"
	"github.com/fakeyudi/awcal/internal/reconcile"
	"github.com/fakeyudi/awcal/internal/sessionmerge"
)

// Mode selects the aggregation used for a run.
type Mode string

const (
	ModeBlocks   Mode = "blocks"
	ModeSessions Mode = "sessions"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeBlocks, ModeSessions:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown sync mode %q (want %q or %q)", s, ModeBlocks, ModeSessions)
}

// Source supplies activity for a time window.
type Source interface {
	FetchCategoryRules(ctx context.Context) ([]activitywatch.CategoryRule, error)
	FetchRecords(ctx context.Context, rules []activitywatch.CategoryRule, start, end time.Time) ([]activity.Record, error)
	FetchWindowRecords(ctx context.Context, start, end time.Time) ([]activity.Record, error)
	FetchAwayIntervals(ctx context.Context, start, end time.Time) ([]activity.AwayInterval, error)
}

// CalendarStore is the calendar side of a run.
type CalendarStore interface {
	Ping(ctx context.Context) error
	EnsureDestination(ctx context.Context, name string) (calendar.Calendar, error)
	ListEntries(ctx context.Context, calendars []string, start, end time.Time) ([]reconcile.ExternalEntry, error)
	Begin(ctx context.Context) (reconcile.Batch, error)
}

// Pipeline wires a source, a calendar store and the engines together.
type Pipeline struct {
	Config config.Config
	Source Source
	Store  CalendarStore
	Cursor cursor.Store // session mode only
	Engine *reconcile.Engine
	Logger *slog.Logger
	Now    func() time.Time
}

// New returns a Pipeline with a default engine and clock.
func New(cfg config.Config, source Source, store CalendarStore, cur cursor.Store, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		Config: cfg,
		Source: source,
		Store:  store,
		Cursor: cur,
		Engine: reconcile.NewEngine(logger),
		Logger: logger,
		Now:    time.Now,
	}
}

// Result describes one run.
type Result struct {
	Mode        Mode                 `json:"mode"`
	WindowStart time.Time            `json:"window_start"`
	WindowEnd   time.Time            `json:"window_end"`
	Records     int                  `json:"records"`
	Items       []reconcile.SyncItem `json:"items"`
	Plan        reconcile.Plan       `json:"-"`
	Stats       reconcile.Stats      `json:"stats"`
	DryRun      bool                 `json:"dry_run"`
	CursorSaved bool                 `json:"cursor_saved,omitempty"`
}

// Run executes one pass in mode. Errors returned are *FatalError and mean
// nothing was written.
func (p *Pipeline) Run(ctx context.Context, mode Mode, dryRun bool) (Result, error) {
	switch mode {
	case ModeBlocks:
		return p.SyncBlocks(ctx, dryRun)
	case ModeSessions:
		return p.SyncSessions(ctx, dryRun)
	}
	return Result{}, fatal("mode", fmt.Errorf("unknown sync mode %q", mode))
}

func (p *Pipeline) checkAccess(ctx context.Context) error {
	if err := p.Store.Ping(ctx); err != nil {
		return fatal("access", fmt.Errorf("%w: %v", ErrAccessDenied, err))
	}
	return nil
}

func (p *Pipeline) provision(ctx context.Context, names []string) error {
	for _, name := range names {
		if _, err := p.Store.EnsureDestination(ctx, name); err != nil {
			return fatal("provision", fmt.Errorf("calendar %q: %w", name, err))
		}
	}
	return nil
}

// SyncBlocks reconciles the last SyncDays of categorized activity as
// grid blocks, one calendar per destination.
func (p *Pipeline) SyncBlocks(ctx context.Context, dryRun bool) (Result, error) {
	cfg := p.Config
	now := p.Now().UTC()
	// Blocks of the current slot may start after now.
	res := Result{
		Mode:        ModeBlocks,
		WindowStart: bucket.AlignDown(now.Add(-cfg.SyncWindow()), cfg.SlotWidth()),
		WindowEnd:   now.Add(cfg.SlotWidth()),
		DryRun:      dryRun,
	}
	log := p.Logger.With("mode", ModeBlocks)

	if err := p.checkAccess(ctx); err != nil {
		return res, err
	}
	rules, err := p.Source.FetchCategoryRules(ctx)
	if err != nil {
		return res, fatal("fetch", err)
	}
	records, err := p.Source.FetchRecords(ctx, rules, res.WindowStart, now)
	if err != nil {
		return res, fatal("fetch", err)
	}
	res.Records = len(records)
	log.Info("fetched records", "count", len(records), "rules", len(rules), "since", res.WindowStart)

	routes := cfg.Routes()
	opts := bucket.Options{
		SlotWidth:   cfg.SlotWidth(),
		MinCoverage: cfg.MinCoverage(),
		Padding:     cfg.Padding(),
		Routes:      routes,
		Aliases:     cfg.Aliases(),
	}
	res.Items = inWindow(bucket.Build(records, opts), res.WindowStart, res.WindowEnd)
	log.Info("built blocks", "count", len(res.Items))

	destinations := routes.Destinations()
	return p.reconcile(ctx, log, res, destinations)
}

// SyncSessions reconciles app sessions since the stored cursor into the
// session calendar and advances the cursor.
func (p *Pipeline) SyncSessions(ctx context.Context, dryRun bool) (Result, error) {
	cfg := p.Config
	runStart := p.Now().UTC()
	res := Result{Mode: ModeSessions, WindowEnd: runStart, DryRun: dryRun}
	log := p.Logger.With("mode", ModeSessions)

	// Loading the cursor may create its tracker bucket.
	if err := p.checkAccess(ctx); err != nil {
		return res, err
	}
	last, err := p.Cursor.Load(ctx)
	found := err == nil
	if err != nil && !errors.Is(err, cursor.ErrNoCursor) {
		return res, fatal("cursor", err)
	}
	var fromCursor bool
	res.WindowStart, fromCursor = cursor.WindowStart(last, found, runStart, cfg.Lookback())
	if found && !fromCursor {
		log.Warn("sync cursor is in the future, using default lookback", "cursor", last)
	}
	log.Info("session window", "since", res.WindowStart, "from_cursor", fromCursor)

	records, err := p.Source.FetchWindowRecords(ctx, res.WindowStart, runStart)
	if err != nil {
		return res, fatal("fetch", err)
	}
	res.Records = len(records)
	log.Info("fetched window events", "count", len(records))

	if cfg.IgnoresAFK() && len(records) > 0 {
		away, err := p.Source.FetchAwayIntervals(ctx, res.WindowStart, runStart)
		if err != nil {
			return res, fatal("fetch", err)
		}
		before := len(records)
		records = activity.FilterAway(records, away)
		log.Info("filtered away time", "before", before, "after", len(records))
	}
	before := len(records)
	records = activity.FilterNoise(records, cfg.NoiseThreshold())
	log.Info("filtered noise", "before", before, "after", len(records), "threshold", cfg.NoiseThreshold())

	sessions := sessionmerge.Merge(records, cfg.MergeGapTolerance())
	res.Items = inWindow(sessionmerge.Items(sessions, cfg.MinSession(), cfg.SessionCalendar), res.WindowStart, res.WindowEnd)
	log.Info("merged sessions", "sessions", len(sessions), "items", len(res.Items))

	res, err = p.reconcile(ctx, log, res, []string{cfg.SessionCalendar})
	if err != nil || dryRun || !res.Stats.Committed {
		return res, err
	}

	run := cursor.Run{Start: runStart, Synced: res.Stats.Created + res.Stats.Updated, SyncedAt: p.Now().UTC()}
	if err := p.Cursor.Save(ctx, run); err != nil {
		log.Error("saving sync cursor", "error", err)
		return res, nil
	}
	res.CursorSaved = true
	return res, nil
}

// reconcile provisions destinations, reads their current entries and
// applies the diff. A dry run stops after planning.
func (p *Pipeline) reconcile(ctx context.Context, log *slog.Logger, res Result, destinations []string) (Result, error) {
	if !res.DryRun {
		if err := p.provision(ctx, destinations); err != nil {
			return res, err
		}
	}
	existing, err := p.Store.ListEntries(ctx, destinations, res.WindowStart, res.WindowEnd)
	if err != nil {
		return res, fatal("list", err)
	}

	started := p.Now()
	res.Plan = p.Engine.Plan(res.Items, existing)
	log.Info("reconciling", "desired", len(res.Items), "existing", len(existing),
		"creates", len(res.Plan.Creates), "updates", len(res.Plan.Updates), "deletes", len(res.Plan.Deletes))
	if res.DryRun {
		res.Stats = reconcile.Stats{Unchanged: len(res.Plan.Unchanged)}
		return res, nil
	}

	batch, err := p.Store.Begin(ctx)
	if err != nil {
		return res, fatal("begin", err)
	}
	res.Stats = p.Engine.Apply(ctx, batch, res.Plan)
	res.Stats.Duration = p.Now().Sub(started)
	return res, nil
}

// inWindow keeps items whose start lies in [start, end). Entries outside
// that range are never listed, so syncing them would duplicate on re-runs.
func inWindow(items []reconcile.SyncItem, start, end time.Time) []reconcile.SyncItem {
	out := items[:0:0]
	for _, it := range items {
		if it.Start.Before(start) || !it.Start.Before(end) {
			continue
		}
		out = append(out, it)
	}
	return out
}
