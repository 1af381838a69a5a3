package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/fakeyudi/awcal/internal/activitywatch"
	"github.com/fakeyudi/awcal/internal/bucket"
	"github.com/fakeyudi/awcal/internal/config"
)

// executeCommand runs the root command with args and captures combined output.
// Flag variables are reset first since cobra keeps them between runs.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	syncMode, syncDryRun, syncFormat, syncDays = "blocks", false, "", 0
	previewMode, plainOutput = "blocks", false
	configForce, configProject = false, false
	verbose = false

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	_, err := rootCmd.ExecuteC()
	return buf.String(), err
}

// isolate points every config and data path at temp dirs.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_DATA_HOME", filepath.Join(home, "data"))
	t.Setenv("AWCAL_DATABASE_PATH", filepath.Join(home, "data", "calendar.db"))
	t.Setenv("AWCAL_CURSOR_BACKEND", "file")
	t.Setenv("AWCAL_API_URL", "")
	t.Chdir(home)
	return home
}

// fakeTracker serves one categorized event from two hours ago.
func fakeTracker(t *testing.T) time.Time {
	t.Helper()
	start := bucket.AlignDown(time.Now().Add(-2*time.Hour), 15*time.Minute)
	event := activitywatch.Event{
		ID:        1,
		Timestamp: start,
		Duration:  (10 * time.Minute).Seconds(),
		Data: map[string]any{
			"app":       "Code",
			"title":     "main.go",
			"$category": []string{"Work", "Programming"},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/0/buckets/", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]activitywatch.BucketInfo{
			"aw-watcher-window_testhost": {ID: "aw-watcher-window_testhost"},
			"aw-watcher-afk_testhost":    {ID: "aw-watcher-afk_testhost"},
		})
	})
	mux.HandleFunc("/api/0/info", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"hostname":"testhost","version":"v0.13.2","testing":true}`))
	})
	mux.HandleFunc("/api/0/settings/classes", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"name":["Work"],"rule":{"type":"regex","regex":"Code"}}]`))
	})
	mux.HandleFunc("/api/0/query/", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([][]activitywatch.Event{{event}})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	t.Setenv("AWCAL_API_URL", srv.URL+"/api/0")
	return start
}

func TestConfigInitWritesDefaults(t *testing.T) {
	home := isolate(t)

	out, err := executeCommand(t, "config", "init")
	require.NoError(t, err)
	path := filepath.Join(home, ".config", "awcal", config.GlobalFile)
	require.Contains(t, out, path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got config.Config
	require.NoError(t, yaml.Unmarshal(data, &got))
	require.Equal(t, 15, got.SlotMinutes)
	require.Equal(t, "[log] MacBook", got.SessionCalendar)

	_, err = executeCommand(t, "config", "init")
	require.ErrorContains(t, err, "already exists")

	_, err = executeCommand(t, "config", "init", "--force")
	require.NoError(t, err)
}

func TestConfigInitProjectFile(t *testing.T) {
	home := isolate(t)

	_, err := executeCommand(t, "config", "init", "--project")
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(home, config.ProjectFile))
}

func TestConfigShowMergesProjectFile(t *testing.T) {
	home := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(home, config.ProjectFile),
		[]byte("slot_minutes: 30\nsession_calendar: Laptop\n"), 0o644))

	out, err := executeCommand(t, "config", "show")
	require.NoError(t, err)
	require.Contains(t, out, "slot_minutes: 30")
	require.Contains(t, out, "session_calendar: Laptop")
	require.Contains(t, out, "sync_days: 14")
}

func TestBrokenConfigFailsCommands(t *testing.T) {
	home := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(home, config.ProjectFile), []byte("slot_minutes: [\n"), 0o644))

	_, err := executeCommand(t, "status")
	require.ErrorContains(t, err, "loading config")
}

func TestSyncBlocksThenRerunIsIdempotent(t *testing.T) {
	isolate(t)
	fakeTracker(t)

	out, err := executeCommand(t, "sync")
	require.NoError(t, err)
	require.Contains(t, out, "Created: 1\n")

	out, err = executeCommand(t, "sync")
	require.NoError(t, err)
	require.Contains(t, out, "Created: 0\n")
	require.Contains(t, out, "Skipped: 1\n")
}

func TestSyncDryRunWritesNothing(t *testing.T) {
	isolate(t)
	fakeTracker(t)

	out, err := executeCommand(t, "sync", "--dry-run")
	require.NoError(t, err)
	require.Contains(t, out, "Would create: 1\n")

	out, err = executeCommand(t, "sync", "-n")
	require.NoError(t, err)
	require.Contains(t, out, "Would create: 1\n")
}

func TestSyncJSONReport(t *testing.T) {
	isolate(t)
	fakeTracker(t)

	out, err := executeCommand(t, "sync", "--format", "json")
	require.NoError(t, err)
	var got struct {
		Mode  string `json:"mode"`
		Stats struct {
			Created int `json:"created"`
		} `json:"stats"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Equal(t, "blocks", got.Mode)
	require.Equal(t, 1, got.Stats.Created)
}

func TestSyncRejectsUnknownMode(t *testing.T) {
	isolate(t)

	_, err := executeCommand(t, "sync", "--mode", "hourly")
	require.Error(t, err)
}

func TestSyncWithoutTrackerIsFatal(t *testing.T) {
	isolate(t)
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)
	t.Setenv("AWCAL_API_URL", srv.URL+"/api/0")

	_, err := executeCommand(t, "sync")
	require.ErrorContains(t, err, "sync aborted")
}

func TestPreviewPlainListsItems(t *testing.T) {
	isolate(t)
	start := fakeTracker(t)

	out, err := executeCommand(t, "preview", "--plain")
	require.NoError(t, err)
	require.Contains(t, out, "## Items (1)")
	// Blocks are shrunk by one minute on each side.
	padded := start.Add(time.Minute).Local().Format("2006-01-02 15:04") + "–" + start.Add(14*time.Minute).Local().Format("15:04")
	require.Contains(t, out, padded)
	require.Contains(t, out, "[[log] Work/Productivity]")
}

func TestStatusAfterSync(t *testing.T) {
	isolate(t)
	fakeTracker(t)

	_, err := executeCommand(t, "sync")
	require.NoError(t, err)

	out, err := executeCommand(t, "status")
	require.NoError(t, err)
	require.Contains(t, out, "(version v0.13.2)")
	require.Contains(t, out, "  window: aw-watcher-window_testhost\n")
	require.Contains(t, out, "  phone window: -\n")
	require.Contains(t, out, "Cursor: none")
	require.Contains(t, out, "  [log] FIXME: 0 (fallback)\n")
	require.Contains(t, out, "  [log] Work/Productivity: 1\n")
	require.True(t, strings.Contains(out, "  [log] MacBook: 0\n"), out)
}

func TestStatusWithUnreachableTracker(t *testing.T) {
	isolate(t)
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)
	t.Setenv("AWCAL_API_URL", srv.URL+"/api/0")

	out, err := executeCommand(t, "status")
	require.NoError(t, err)
	require.Contains(t, out, "Tracker: unreachable at "+srv.URL+"/api/0")
	require.Contains(t, out, "Calendars:")
}
