package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/awcal/internal/activitywatch"
	"github.com/fakeyudi/awcal/internal/calendar"
	"github.com/fakeyudi/awcal/internal/config"
	"github.com/fakeyudi/awcal/internal/cursor"
	"github.com/fakeyudi/awcal/internal/pipeline"
)

// cfg holds the effective configuration, populated in PersistentPreRunE.
var cfg config.Config

// logger is built from --verbose in PersistentPreRunE.
var logger *slog.Logger

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "awcal",
	Short: "Sync ActivityWatch history into calendar blocks",
	Long: `awcal turns ActivityWatch activity into calendar entries.

"sync" buckets the last days of categorized activity into fixed time blocks,
one calendar per category group, or merges app sessions since the last run.
Every sync reconciles the calendar so re-runs never duplicate entries.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger = newLogger(cmd.ErrOrStderr(), verbose)

		// config init must work even when the existing files are broken.
		if cmd.Name() == "init" {
			cfg = config.Defaults()
			return nil
		}

		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = c
		return nil
	},
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Execute runs the root command. Exits with code 1 on error.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// openCalendar opens the calendar database named in the config.
func openCalendar() (*calendar.Store, error) {
	store, err := calendar.Open(cfg.DatabasePath, logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pipeline.ErrAccessDenied, err)
	}
	return store, nil
}

func newClient() *activitywatch.Client {
	return activitywatch.NewClient(cfg.APIURL, logger)
}

// newCursor returns the cursor store selected by cursor_backend.
func newCursor(client *activitywatch.Client) (cursor.Store, error) {
	if cfg.CursorBackend == "file" {
		return cursor.NewFileStore(cfg.CursorPath)
	}
	return cursor.NewBucketStore(client), nil
}

// buildPipeline resolves the tracker buckets and wires a pipeline over store.
func buildPipeline(ctx context.Context, store *calendar.Store) (*pipeline.Pipeline, error) {
	client := newClient()
	src, err := client.Source(ctx)
	if err != nil {
		return nil, &pipeline.FatalError{Stage: "fetch", Err: err}
	}
	cur, err := newCursor(client)
	if err != nil {
		return nil, err
	}
	return pipeline.New(cfg, src, store, cur, logger), nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log progress and debug detail to stderr")
}
