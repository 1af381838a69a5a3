package cursor

import (
	"context"
	"time"

	"github.com/fakeyudi/awcal/internal/activitywatch"
)

const (
	bucketType   = "sync-log"
	bucketClient = "awcal"
)

// bucketStore records runs as events in an ActivityWatch bucket. The event
// timestamp is the run start; the latest event is the cursor.
type bucketStore struct {
	client *activitywatch.Client
	bucket string
}

// NewBucketStore returns a Store backed by the host's sync bucket on the
// ActivityWatch server.
func NewBucketStore(client *activitywatch.Client) Store {
	return &bucketStore{client: client, bucket: activitywatch.CursorBucketID(client.Hostname)}
}

func (b *bucketStore) Load(ctx context.Context) (time.Time, error) {
	if err := b.client.EnsureBucket(ctx, b.bucket, bucketType, bucketClient); err != nil {
		return time.Time{}, err
	}
	last, ok, err := b.client.LatestEvent(ctx, b.bucket)
	if err != nil {
		return time.Time{}, err
	}
	if !ok {
		return time.Time{}, ErrNoCursor
	}
	return last.Timestamp.UTC(), nil
}

func (b *bucketStore) Save(ctx context.Context, run Run) error {
	if err := b.client.EnsureBucket(ctx, b.bucket, bucketType, bucketClient); err != nil {
		return err
	}
	return b.client.InsertEvent(ctx, b.bucket, activitywatch.Event{
		Timestamp: run.Start.UTC(),
		Duration:  0,
		Data: map[string]any{
			"status":        "success",
			"events_synced": run.Synced,
			"synced_at":     run.SyncedAt.UTC().Format(time.RFC3339),
		},
	})
}
