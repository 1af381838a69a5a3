package cursor_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/fakeyudi/awcal/internal/activitywatch"
	"github.com/fakeyudi/awcal/internal/cursor"
)

func TestFileStoreWithoutCursor(t *testing.T) {
	store, err := cursor.NewFileStore(filepath.Join(t.TempDir(), "awcal", "cursor.json"))
	require.NoError(t, err)

	_, err = store.Load(context.Background())
	require.True(t, errors.Is(err, cursor.ErrNoCursor), "got %v", err)
}

// Saving a run and loading it back yields the run start.
func TestFileStoreRoundTrip(t *testing.T) {
	store, err := cursor.NewFileStore(filepath.Join(t.TempDir(), "cursor.json"))
	require.NoError(t, err)
	ctx := context.Background()

	rapid.Check(t, func(rt *rapid.T) {
		start := time.Unix(rapid.Int64Range(0, 4_000_000_000).Draw(rt, "start"), 0).UTC()
		run := cursor.Run{
			Start:    start,
			Synced:   rapid.IntRange(0, 1000).Draw(rt, "synced"),
			SyncedAt: start.Add(time.Duration(rapid.IntRange(0, 600).Draw(rt, "elapsed")) * time.Second),
		}
		if err := store.Save(ctx, run); err != nil {
			rt.Fatalf("Save: %v", err)
		}
		got, err := store.Load(ctx)
		if err != nil {
			rt.Fatalf("Load: %v", err)
		}
		if !got.Equal(start) {
			rt.Fatalf("cursor = %v, want %v", got, start)
		}
	})
}

func TestWindowStart(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	lookback := 24 * time.Hour

	tests := []struct {
		name      string
		cursor    time.Time
		found     bool
		want      time.Time
		fromStore bool
	}{
		{"no cursor", time.Time{}, false, now.Add(-lookback), false},
		{"past cursor", now.Add(-2 * time.Hour), true, now.Add(-2 * time.Hour), true},
		{"future cursor", now.Add(time.Minute), true, now.Add(-lookback), false},
		{"cursor equal to now", now, true, now, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, fromStore := cursor.WindowStart(tt.cursor, tt.found, now, lookback)
			require.True(t, got.Equal(tt.want), "got %v want %v", got, tt.want)
			require.Equal(t, tt.fromStore, fromStore)
		})
	}
}

// fakeServer is an in-memory subset of the ActivityWatch bucket API.
type fakeServer struct {
	mu      sync.Mutex
	buckets map[string][]activitywatch.Event
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rest := strings.TrimPrefix(r.URL.Path, "/api/0/buckets/")
	switch {
	case rest == "" && r.Method == http.MethodGet:
		out := map[string]activitywatch.BucketInfo{}
		for id := range f.buckets {
			out[id] = activitywatch.BucketInfo{ID: id}
		}
		_ = json.NewEncoder(w).Encode(out)
	case !strings.Contains(rest, "/") && r.Method == http.MethodPost:
		f.buckets[rest] = nil
	case strings.HasSuffix(rest, "/events") && r.Method == http.MethodPost:
		var events []activitywatch.Event
		_ = json.NewDecoder(r.Body).Decode(&events)
		id := strings.TrimSuffix(rest, "/events")
		// Newest first, as the server returns them.
		f.buckets[id] = append(events, f.buckets[id]...)
	case strings.HasSuffix(rest, "/events"):
		events := f.buckets[strings.TrimSuffix(rest, "/events")]
		if r.URL.Query().Get("limit") == "1" && len(events) > 1 {
			events = events[:1]
		}
		if events == nil {
			events = []activitywatch.Event{}
		}
		_ = json.NewEncoder(w).Encode(events)
	default:
		http.NotFound(w, r)
	}
}

func TestBucketStoreRecordsRunStart(t *testing.T) {
	fake := &fakeServer{buckets: map[string][]activitywatch.Event{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	client := activitywatch.NewClient(srv.URL+"/api/0", slog.New(slog.NewTextHandler(io.Discard, nil)))
	client.Hostname = "laptop"
	store := cursor.NewBucketStore(client)
	ctx := context.Background()

	_, err := store.Load(ctx)
	require.True(t, errors.Is(err, cursor.ErrNoCursor), "got %v", err)
	require.Contains(t, fake.buckets, "aw-sync-awcal-laptop")

	first := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)
	require.NoError(t, store.Save(ctx, cursor.Run{Start: first, Synced: 0, SyncedAt: first.Add(time.Second)}))
	require.NoError(t, store.Save(ctx, cursor.Run{Start: second, Synced: 4, SyncedAt: second.Add(time.Second)}))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	require.True(t, got.Equal(second), "got %v", got)

	latest := fake.buckets["aw-sync-awcal-laptop"][0]
	require.Equal(t, "success", latest.Data["status"])
	require.EqualValues(t, 4, latest.Data["events_synced"])
}
