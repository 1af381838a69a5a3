package activitywatch

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fakeyudi/awcal/internal/activity"
)

// Event is one bucket event as stored by the server.
type Event struct {
	ID        int64          `json:"id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Duration  float64        `json:"duration"` // seconds
	Data      map[string]any `json:"data"`
}

// End returns the instant the event stops covering.
func (e Event) End() time.Time {
	return e.Timestamp.Add(seconds(e.Duration))
}

func (e Event) str(key string) string {
	s, _ := e.Data[key].(string)
	return s
}

// Record converts the event into an activity record. Categories come from
// the "$category" key set by the server's categorize transform.
func (e Event) Record() activity.Record {
	r := activity.Record{
		Timestamp: e.Timestamp.UTC(),
		Duration:  seconds(e.Duration),
		App:       strings.TrimSpace(e.str("app")),
		Title:     e.str("title"),
	}
	if raw, ok := e.Data["$category"].([]any); ok {
		for _, c := range raw {
			if s, ok := c.(string); ok {
				r.Categories = append(r.Categories, s)
			}
		}
	}
	return r
}

func seconds(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}

// decodeEvents parses a JSON event array. A malformed payload yields no
// events; individual events without a timestamp or with a negative duration
// are dropped.
func (c *Client) decodeEvents(body []byte, source string) []Event {
	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		c.Logger.Warn("malformed event payload, treating as empty", "source", source, "error", err)
		return nil
	}
	events := make([]Event, 0, len(raw))
	skipped := 0
	for _, r := range raw {
		var e Event
		if err := json.Unmarshal(r, &e); err != nil || e.Timestamp.IsZero() || e.Duration < 0 {
			skipped++
			continue
		}
		events = append(events, e)
	}
	if skipped > 0 {
		c.Logger.Warn("skipped malformed events", "source", source, "count", skipped)
	}
	return events
}

// Events returns the events of bucket whose timestamps fall in [start, end).
// A zero end leaves the window open.
func (c *Client) Events(ctx context.Context, bucket string, start, end time.Time) ([]Event, error) {
	q := url.Values{}
	q.Set("limit", "-1")
	if !start.IsZero() {
		q.Set("start", formatTime(start))
	}
	if !end.IsZero() {
		q.Set("end", formatTime(end))
	}
	path := "/buckets/" + url.PathEscape(bucket) + "/events?" + q.Encode()
	body, err := c.request(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching events from %s: %w", bucket, err)
	}
	return c.decodeEvents(body, bucket), nil
}

// LatestEvent returns the most recent event in bucket, or false when the
// bucket is empty.
func (c *Client) LatestEvent(ctx context.Context, bucket string) (Event, bool, error) {
	body, err := c.request(ctx, http.MethodGet, "/buckets/"+url.PathEscape(bucket)+"/events?limit=1", nil)
	if err != nil {
		return Event{}, false, fmt.Errorf("fetching latest event from %s: %w", bucket, err)
	}
	events := c.decodeEvents(body, bucket)
	if len(events) == 0 {
		return Event{}, false, nil
	}
	return events[0], true, nil
}

// InsertEvent appends e to bucket.
func (c *Client) InsertEvent(ctx context.Context, bucket string, e Event) error {
	if _, err := c.request(ctx, http.MethodPost, "/buckets/"+url.PathEscape(bucket)+"/events", []Event{e}); err != nil {
		return fmt.Errorf("inserting event into %s: %w", bucket, err)
	}
	return nil
}

// WindowRecords returns the raw window events of bucket in [start, end) as
// uncategorized activity records.
func (c *Client) WindowRecords(ctx context.Context, bucket string, start, end time.Time) ([]activity.Record, error) {
	events, err := c.Events(ctx, bucket, start, end)
	if err != nil {
		return nil, err
	}
	records := make([]activity.Record, 0, len(events))
	for _, e := range events {
		records = append(records, e.Record())
	}
	return records, nil
}

// AwayIntervals returns the spans in [start, end) during which the afk
// watcher reported the user away.
func (c *Client) AwayIntervals(ctx context.Context, bucket string, start, end time.Time) ([]activity.AwayInterval, error) {
	events, err := c.Events(ctx, bucket, start, end)
	if err != nil {
		return nil, err
	}
	var away []activity.AwayInterval
	for _, e := range events {
		if e.str("status") != "afk" || e.Duration <= 0 {
			continue
		}
		away = append(away, activity.AwayInterval{Start: e.Timestamp.UTC(), End: e.End().UTC()})
	}
	return away, nil
}
