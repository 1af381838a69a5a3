package activitywatch

import (
	"context"
	"time"

	"github.com/fakeyudi/awcal/internal/activity"
)

// Source reads activity for this host from resolved buckets.
type Source struct {
	client  *Client
	buckets Sources
}

// Source resolves the host's buckets and returns a reader over them.
func (c *Client) Source(ctx context.Context) (*Source, error) {
	buckets, err := c.ResolveSources(ctx)
	if err != nil {
		return nil, err
	}
	c.Logger.Debug("resolved buckets", "window", buckets.Window, "afk", buckets.AFK,
		"phone_window", buckets.PhoneWindow, "phone_afk", buckets.PhoneAFK)
	return &Source{client: c, buckets: buckets}, nil
}

// Buckets returns the bucket ids the source reads from.
func (s *Source) Buckets() Sources {
	return s.buckets
}

func (s *Source) FetchCategoryRules(ctx context.Context) ([]CategoryRule, error) {
	return s.client.CategoryRules(ctx)
}

// FetchRecords returns categorized, not-afk records across devices.
func (s *Source) FetchRecords(ctx context.Context, rules []CategoryRule, start, end time.Time) ([]activity.Record, error) {
	return s.client.CategorizedRecords(ctx, s.buckets, rules, start, end)
}

// FetchWindowRecords returns the desktop window events without
// categorization or afk filtering.
func (s *Source) FetchWindowRecords(ctx context.Context, start, end time.Time) ([]activity.Record, error) {
	return s.client.WindowRecords(ctx, s.buckets.Window, start, end)
}

// FetchAwayIntervals returns the desktop away spans. Without an afk bucket
// there are none.
func (s *Source) FetchAwayIntervals(ctx context.Context, start, end time.Time) ([]activity.AwayInterval, error) {
	if s.buckets.AFK == "" {
		return nil, nil
	}
	return s.client.AwayIntervals(ctx, s.buckets.AFK, start, end)
}
