package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tracklens/tracklens/internal/output"
)

var (
	historyLimit int
	historyKeep  int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect persisted recommendation runs",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent recommendation runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}

		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		entries, err := db.RecentRuns(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}

		rendered, err := output.RenderHistory(format, entries)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), rendered)
		return nil
	},
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old runs, keeping the newest",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		deleted, err := db.PruneRuns(cmd.Context(), historyKeep)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d run(s), kept the newest %d.\n", deleted, historyKeep)
		return nil
	},
}

func init() {
	historyListCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum runs to list")
	historyListCmd.Flags().String("output-format", string(output.FormatTable), "Output format: table|json|markdown")

	historyPruneCmd.Flags().IntVar(&historyKeep, "keep", 50, "Number of newest runs to keep")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyPruneCmd)
	rootCmd.AddCommand(historyCmd)
}
