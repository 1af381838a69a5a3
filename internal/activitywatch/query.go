package activitywatch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/fakeyudi/awcal/internal/activity"
)

// CategoryRule is one user-defined category with its matching rule, as
// configured in the web UI.
type CategoryRule struct {
	Name []string        `json:"name"`
	Rule json.RawMessage `json:"rule"`
}

// Type returns the rule's type, e.g. "regex" or "none".
func (r CategoryRule) Type() string {
	var head struct {
		Type string `json:"type"`
	}
	_ = json.Unmarshal(r.Rule, &head)
	return head.Type
}

// CategoryRules fetches the configured categories, skipping rules of type
// "none" which match nothing. Order is preserved; the server applies rules
// in order.
func (c *Client) CategoryRules(ctx context.Context) ([]CategoryRule, error) {
	body, err := c.request(ctx, http.MethodGet, "/settings/classes", nil)
	if err != nil {
		return nil, fmt.Errorf("fetching category rules: %w", err)
	}
	var all []CategoryRule
	if err := json.Unmarshal(body, &all); err != nil {
		c.Logger.Warn("malformed category rules, categorizing nothing", "error", err)
		return nil, nil
	}
	rules := all[:0]
	for _, r := range all {
		if len(r.Name) == 0 || len(r.Rule) == 0 || r.Type() == "none" {
			continue
		}
		rules = append(rules, r)
	}
	return rules, nil
}

type queryRequest struct {
	TimePeriods []string `json:"timeperiods"`
	Query       []string `json:"query"`
}

// buildQuery assembles the categorize query: each device's window events
// restricted to not-afk periods, phone events unioned in without overlapping
// the desktop, then categorized and sorted.
func buildQuery(src Sources, rules []CategoryRule) ([]string, error) {
	q := []string{
		fmt.Sprintf("desktop = query_bucket(find_bucket(%s));", quote(src.Window)),
	}
	if src.AFK != "" {
		q = append(q,
			fmt.Sprintf("desktop_afk = query_bucket(find_bucket(%s));", quote(src.AFK)),
			"desktop = filter_period_intersect(desktop, filter_keyvals(desktop_afk, \"status\", [\"not-afk\"]));",
		)
	}
	q = append(q, "events = desktop;")
	if src.PhoneWindow != "" {
		q = append(q, fmt.Sprintf("phone = query_bucket(find_bucket(%s));", quote(src.PhoneWindow)))
		if src.PhoneAFK != "" {
			q = append(q,
				fmt.Sprintf("phone_afk = query_bucket(find_bucket(%s));", quote(src.PhoneAFK)),
				"phone = filter_period_intersect(phone, filter_keyvals(phone_afk, \"status\", [\"not-afk\"]));",
			)
		}
		q = append(q, "events = union_no_overlap(events, phone);")
	}

	pairs := make([][2]any, 0, len(rules))
	for _, r := range rules {
		pairs = append(pairs, [2]any{r.Name, r.Rule})
	}
	encoded, err := json.Marshal(pairs)
	if err != nil {
		return nil, fmt.Errorf("encoding category rules: %w", err)
	}
	q = append(q,
		fmt.Sprintf("events = categorize(events, %s);", encoded),
		"RETURN = sort_by_timestamp(events);",
	)
	return q, nil
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// CategorizedRecords runs the categorize query over [start, end) and returns
// the resulting records sorted by timestamp. Records are already restricted
// to not-afk periods by the query.
func (c *Client) CategorizedRecords(ctx context.Context, src Sources, rules []CategoryRule, start, end time.Time) ([]activity.Record, error) {
	query, err := buildQuery(src, rules)
	if err != nil {
		return nil, err
	}
	req := queryRequest{
		TimePeriods: []string{formatTime(start) + "/" + formatTime(end)},
		Query:       query,
	}
	body, err := c.request(ctx, http.MethodPost, "/query/", req)
	if err != nil {
		return nil, fmt.Errorf("running categorize query: %w", err)
	}

	// One result array per time period.
	var periods []json.RawMessage
	if err := json.Unmarshal(body, &periods); err != nil || len(periods) == 0 {
		c.Logger.Warn("malformed query result, treating as empty", "error", err)
		return nil, nil
	}
	events := c.decodeEvents(periods[0], "query")
	records := make([]activity.Record, 0, len(events))
	for _, e := range events {
		records = append(records, e.Record())
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})
	return records, nil
}

// CursorBucketID is the bucket that records sync runs for hostname.
func CursorBucketID(hostname string) string {
	return "aw-sync-awcal-" + strings.TrimSpace(hostname)
}
