package cmd

import (
	"errors"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/tracklens/tracklens/internal/config"
	"github.com/tracklens/tracklens/internal/core/engine"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect the result cache configuration",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the effective cache settings",
	Long: `Show the TTL and capacity the result cache will run with, after
clamping the configured values to their supported ranges. The cache itself
is in-memory and lives inside a recommend run or a serve process.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.GetConfig()
		if cfg == nil {
			return errors.New("configuration not loaded")
		}

		cache := engine.NewRecommendationCache(cfg.Cache.TTL, cfg.Cache.Capacity)
		defer cache.Close()

		t := table.NewWriter()
		t.SetStyle(table.StyleRounded)
		t.AppendHeader(table.Row{"Setting", "Configured", "Effective"})
		t.AppendRow(table.Row{"ttl", cfg.Cache.TTL.String(), cache.TTL().String()})
		t.AppendRow(table.Row{"capacity", cfg.Cache.Capacity, cache.Capacity()})

		fmt.Fprintln(cmd.OutOrStdout(), t.Render())
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
	rootCmd.AddCommand(cacheCmd)
}
