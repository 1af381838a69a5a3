package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"github.com/fakeyudi/awcal/internal/pipeline"
	"github.com/fakeyudi/awcal/internal/report"
	"github.com/fakeyudi/awcal/internal/tui"
)

var (
	previewMode string
	plainOutput bool
)

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Browse the items a sync would write",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := pipeline.ParseMode(previewMode)
		if err != nil {
			return err
		}

		store, err := openCalendar()
		if err != nil {
			return err
		}
		defer store.Close()

		p, err := buildPipeline(cmd.Context(), store)
		if err != nil {
			return err
		}
		res, err := p.Run(cmd.Context(), mode, true)
		if err != nil {
			return fmt.Errorf("preview failed: %w", err)
		}

		if plainOutput || !term.IsTerminal(os.Stdout.Fd()) {
			return printItems(cmd, &res)
		}
		return tui.Run(&res)
	},
}

// printItems writes the planned items and changes as plain text.
func printItems(cmd *cobra.Command, res *pipeline.Result) error {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "## Items (%d)\n", len(res.Items))
	if len(res.Items) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, it := range res.Items {
		fmt.Fprintf(w, "  %s–%s  %s  [%s]\n",
			it.Start.Local().Format("2006-01-02 15:04"), it.End.Local().Format("15:04"), it.Title, it.Destination)
	}
	fmt.Fprintln(w)

	out, err := (&report.TextRenderer{}).Render(res)
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}

func init() {
	previewCmd.Flags().StringVarP(&previewMode, "mode", "m", string(pipeline.ModeBlocks), "aggregation mode: blocks or sessions")
	previewCmd.Flags().BoolVar(&plainOutput, "plain", false, "plain text output instead of TUI")
	rootCmd.AddCommand(previewCmd)
}
