package cmd

import (
	"errors"
	"fmt"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/tracklens/tracklens/internal/config"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Inspect configured providers",
}

var providersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured providers",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.GetConfig()
		if cfg == nil {
			return errors.New("configuration not loaded")
		}

		names := make([]string, 0, len(cfg.Providers))
		for name := range cfg.Providers {
			names = append(names, name)
		}
		sort.Strings(names)

		t := table.NewWriter()
		t.SetStyle(table.StyleRounded)
		t.AppendHeader(table.Row{"Name", "Type", "Model", "Enabled", "Base URL", "Rate Limit"})

		for _, name := range names {
			prov := cfg.Providers[name]

			enabled := "no"
			if prov.Enabled {
				enabled = "yes"
			}
			if name == cfg.Engine.DefaultProvider {
				name += " (default)"
			}

			rateLimit := "-"
			if prov.RateLimit.MaxRequests > 0 {
				rateLimit = fmt.Sprintf("%d per %s", prov.RateLimit.MaxRequests, prov.RateLimit.Period)
			}

			t.AppendRow(table.Row{name, prov.Type, prov.Model, enabled, prov.BaseURL, rateLimit})
		}

		fmt.Fprintln(cmd.OutOrStdout(), t.Render())
		return nil
	},
}

func init() {
	providersCmd.AddCommand(providersListCmd)
	rootCmd.AddCommand(providersCmd)
}
