// Package report renders the outcome of a sync run.
package report

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fakeyudi/awcal/internal/pipeline"
	"github.com/fakeyudi/awcal/internal/reconcile"
)

// Renderer serializes a run result to bytes.
type Renderer interface {
	Render(res *pipeline.Result) ([]byte, error)
}

// New returns the renderer for format ("text" or "json").
func New(format string) (Renderer, error) {
	switch format {
	case "", "text":
		return &TextRenderer{}, nil
	case "json":
		return &JSONRenderer{}, nil
	}
	return nil, fmt.Errorf("unknown report format %q", format)
}

// TextRenderer renders the one-screen summary printed after a run.
type TextRenderer struct{}

func (r *TextRenderer) Render(res *pipeline.Result) ([]byte, error) {
	var sb strings.Builder
	if res.DryRun {
		renderPlan(&sb, res)
		return []byte(sb.String()), nil
	}

	s := res.Stats
	if !s.Committed {
		// The batch was rolled back, so the counts are only what was attempted.
		fmt.Fprintf(&sb, "Sync Failed (%.2fs)\n", s.Duration.Seconds())
		sb.WriteString("Commit failed: no changes were saved\n")
		fmt.Fprintf(&sb, "Rolled back: %d creates, %d updates, %d deletes\n", s.Created, s.Updated, s.Deleted)
	} else {
		fmt.Fprintf(&sb, "Sync Done (%.2fs)\n", s.Duration.Seconds())
		fmt.Fprintf(&sb, "Created: %d\nUpdated: %d\nDeleted: %d\n", s.Created, s.Updated, s.Deleted)
	}
	fmt.Fprintf(&sb, "Skipped: %d\n", s.Unchanged)
	if s.Errors > 0 {
		fmt.Fprintf(&sb, "Errors: %d\n", s.Errors)
	}
	return []byte(sb.String()), nil
}

func renderPlan(sb *strings.Builder, res *pipeline.Result) {
	p := res.Plan
	fmt.Fprintf(sb, "Dry run (%s, %s to %s)\n", res.Mode,
		res.WindowStart.Format(time.DateTime), res.WindowEnd.Format(time.DateTime))
	fmt.Fprintf(sb, "Would create: %d\nWould update: %d\nWould delete: %d\nUnchanged: %d\n",
		len(p.Creates), len(p.Updates), len(p.Deletes), len(p.Unchanged))
	if len(p.Duplicates) > 0 {
		fmt.Fprintf(sb, "Duplicates skipped: %d\n", len(p.Duplicates))
	}
	if p.Empty() {
		return
	}
	sb.WriteString("\n")
	for _, it := range p.Creates {
		fmt.Fprintf(sb, "+ %s\n", line(it.Destination, it.Title, it.Start, it.End))
	}
	for _, u := range p.Updates {
		fmt.Fprintf(sb, "~ %s\n", line(u.Entry.Destination, u.Entry.Title, u.Entry.Start, u.Item.End))
	}
	for _, e := range p.Deletes {
		fmt.Fprintf(sb, "- %s\n", line(e.Destination, e.Title, e.Start, e.End))
	}
}

func line(calendar, title string, start, end time.Time) string {
	return fmt.Sprintf("%s–%s  %s  [%s]", start.Local().Format("01-02 15:04"), end.Local().Format("15:04"), title, calendar)
}

// JSONRenderer renders the result and its plan as indented JSON.
type JSONRenderer struct{}

type jsonPlan struct {
	Creates []reconcile.SyncItem      `json:"creates"`
	Updates []reconcile.SyncItem      `json:"updates"`
	Deletes []reconcile.ExternalEntry `json:"deletes"`
}

type jsonReport struct {
	*pipeline.Result
	DurationSeconds float64  `json:"duration_seconds"`
	Plan            jsonPlan `json:"plan"`
}

func (r *JSONRenderer) Render(res *pipeline.Result) ([]byte, error) {
	out := jsonReport{
		Result:          res,
		DurationSeconds: res.Stats.Duration.Seconds(),
		Plan: jsonPlan{
			Creates: nonNil(res.Plan.Creates),
			Updates: make([]reconcile.SyncItem, 0, len(res.Plan.Updates)),
			Deletes: nonNil(res.Plan.Deletes),
		},
	}
	for _, u := range res.Plan.Updates {
		item := u.Item
		item.Start = u.Entry.Start
		out.Plan.Updates = append(out.Plan.Updates, item)
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	return append(data, '\n'), nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
