package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tracklens/tracklens/internal/output"
)

var rateLimitResource string

var rateLimitCmd = &cobra.Command{
	Use:   "ratelimit",
	Short: "Manage persisted rate limit state",
}

var rateLimitListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored rate limit snapshots",
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

		states, err := db.ListRateLimitStates(cmd.Context())
		if err != nil {
			return err
		}

		if len(states) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "(no stored rate limit state)")
			return nil
		}

		rendered, err := output.RenderRateLimits(format, states)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), rendered)
		return nil
	},
}

var rateLimitResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete stored rate limit snapshots",
	Long:  "Delete the stored snapshot for one resource (--resource) or for all resources.",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		resource := strings.TrimSpace(rateLimitResource)
		deleted, err := db.ResetRateLimitState(cmd.Context(), resource)
		if err != nil {
			return err
		}

		if resource == "" {
			fmt.Fprintf(cmd.OutOrStdout(), "Reset %d rate limit snapshot(s).\n", deleted)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Reset %d rate limit snapshot(s) for %s.\n", deleted, resource)
		}
		return nil
	},
}

func init() {
	rateLimitListCmd.Flags().String("output-format", string(output.FormatTable), "Output format: table|json|markdown")
	rateLimitResetCmd.Flags().StringVar(&rateLimitResource, "resource", "", "Resource to reset (default: all)")

	rateLimitCmd.AddCommand(rateLimitListCmd)
	rateLimitCmd.AddCommand(rateLimitResetCmd)
	rootCmd.AddCommand(rateLimitCmd)
}
