package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/awcal/internal/pipeline"
	"github.com/fakeyudi/awcal/internal/report"
)

var (
	syncMode   string
	syncDryRun bool
	syncFormat string
	syncDays   int
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile the calendar with recent activity",
	Long: `Reconcile the calendar with recent activity.

--mode blocks (default) buckets the last sync_days of categorized activity
into slot_minutes blocks by majority vote and writes one calendar per
category group. --mode sessions merges same-app window events since the
last session sync into session_calendar and advances the sync cursor.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := pipeline.ParseMode(syncMode)
		if err != nil {
			return err
		}
		if syncDays > 0 {
			cfg.SyncDays = syncDays
		}
		format := cfg.ReportFormat
		if syncFormat != "" {
			format = syncFormat
		}
		renderer, err := report.New(format)
		if err != nil {
			return err
		}

		store, err := openCalendar()
		if err != nil {
			return fmt.Errorf("sync aborted: %w", err)
		}
		defer store.Close()

		p, err := buildPipeline(cmd.Context(), store)
		if err != nil {
			return fmt.Errorf("sync aborted: %w", err)
		}
		res, err := p.Run(cmd.Context(), mode, syncDryRun)
		if err != nil {
			return fmt.Errorf("sync aborted: %w", err)
		}

		out, err := renderer.Render(&res)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

func init() {
	syncCmd.Flags().StringVarP(&syncMode, "mode", "m", string(pipeline.ModeBlocks), "aggregation mode: blocks or sessions")
	syncCmd.Flags().BoolVarP(&syncDryRun, "dry-run", "n", false, "print the planned changes without writing")
	syncCmd.Flags().StringVarP(&syncFormat, "format", "f", "", "report format: text or json (default from config)")
	syncCmd.Flags().IntVar(&syncDays, "days", 0, "override sync_days for block mode")
	rootCmd.AddCommand(syncCmd)
}
