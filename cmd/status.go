package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/awcal/internal/activitywatch"
	"github.com/fakeyudi/awcal/internal/pipeline"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the tracker, the sync cursor and calendar entry counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openCalendar()
		if err != nil {
			return err
		}
		defer store.Close()

		w := cmd.OutOrStdout()
		client := newClient()
		printTracker(cmd.Context(), w, client)

		cur, err := newCursor(client)
		if err != nil {
			return err
		}
		p := pipeline.New(cfg, nil, store, cur, logger)
		st, err := p.Status(cmd.Context(), store)
		if err != nil {
			return err
		}

		if st.Cursor == nil {
			fmt.Fprintf(w, "Cursor: none (next session sync reads the last %s)\n", cfg.Lookback())
		} else {
			fmt.Fprintf(w, "Cursor: %s (%s ago)\n", st.Cursor.Local().Format(time.RFC3339),
				time.Since(*st.Cursor).Round(time.Second))
		}
		fmt.Fprintf(w, "Window: %s to %s\n", st.WindowStart.Local().Format(time.DateTime), st.WindowEnd.Local().Format(time.DateTime))
		fmt.Fprintf(w, "Database: %s\n", cfg.DatabasePath)
		fmt.Fprintln(w, "Calendars:")
		fallback := cfg.Routes().Fallback()
		for _, c := range st.Calendars {
			mark := ""
			if c.Calendar == fallback {
				mark = " (fallback)"
			}
			fmt.Fprintf(w, "  %s: %d%s\n", c.Calendar, c.Entries, mark)
		}
		return nil
	},
}

// printTracker reports the tracker version and the buckets a sync would
// read. An unreachable tracker is reported, not fatal.
func printTracker(ctx context.Context, w io.Writer, client *activitywatch.Client) {
	info, err := client.Info(ctx)
	if err != nil {
		fmt.Fprintf(w, "Tracker: unreachable at %s (%v)\n", client.BaseURL, err)
		return
	}
	fmt.Fprintf(w, "Tracker: %s (version %v)\n", client.BaseURL, info["version"])

	src, err := client.Source(ctx)
	if err != nil {
		fmt.Fprintf(w, "  buckets: %v\n", err)
		return
	}
	b := src.Buckets()
	for _, row := range [][2]string{
		{"window", b.Window}, {"afk", b.AFK}, {"phone window", b.PhoneWindow}, {"phone afk", b.PhoneAFK},
	} {
		if row[1] == "" {
			row[1] = "-"
		}
		fmt.Fprintf(w, "  %s: %s\n", row[0], row[1])
	}
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
