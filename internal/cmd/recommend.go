package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tracklens/tracklens/internal/library"
	"github.com/tracklens/tracklens/internal/observability"
	"github.com/tracklens/tracklens/internal/output"
)

var (
	recommendProvider      string
	recommendModel         string
	recommendTarget        int
	recommendLibrary       string
	recommendBackfill      string
	recommendSensitivity   string
	recommendMaxIterations int
	recommendGuarantee     bool
	recommendExclude       []string
	recommendRefresh       bool
)

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Generate album recommendations",
	Long: `Generate album recommendations from the configured LLM provider.

The library profile (--library or library_file in config) drives the
sampling preview, exclusion list, and cache fingerprint. Results are
persisted to the local store for 'tracklens history'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}
		outPath, outDir, err := resolveOutputTargets(cmd)
		if err != nil {
			return err
		}

		app, err := newApp(ctx, true, observability.CLILogger)
		if err != nil {
			return err
		}
		defer app.close()

		if recommendLibrary != "" {
			profile, err := library.LoadProfile(recommendLibrary)
			if err != nil {
				return err
			}
			app.profile = profile
		}

		result, err := app.run(ctx, runOptions{
			Provider:             recommendProvider,
			Model:                recommendModel,
			TargetCount:          recommendTarget,
			Backfill:             recommendBackfill,
			StopSensitivity:      recommendSensitivity,
			MaxIterations:        recommendMaxIterations,
			GuaranteeExactTarget: recommendGuarantee,
			ExcludeKeys:          recommendExclude,
			Refresh:              recommendRefresh,
		})
		if err != nil {
			return err
		}

		if result.UnderTarget {
			observability.CLILogger.Warn("Run finished under target",
				zap.Int("returned", len(result.Recommendations)),
				zap.String("stop_reason", string(result.StopReason)))
		}

		if outDir != "" {
			outDir, err = ensureOutDir(outDir)
			if err != nil {
				return err
			}
			name := sanitizeFilename(result.Provider + "-" + result.Model)
			outPath = filepath.Join(outDir, fmt.Sprintf("recommend.%s.%s", name, outputExtension(format)))
		}

		sink, err := openSink(outPath)
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		rendered, err := output.NewFormatter(format).FormatResult(result)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(sink.writer, rendered)
		return err
	},
}

func init() {
	rootCmd.AddCommand(recommendCmd)

	recommendCmd.Flags().StringVar(&recommendProvider, "provider", "", "Provider name (default from config)")
	recommendCmd.Flags().StringVar(&recommendModel, "model", "", "Model ID (default from provider config)")
	recommendCmd.Flags().IntVarP(&recommendTarget, "target", "t", 0, "Number of recommendations (default from config)")
	recommendCmd.Flags().StringVar(&recommendLibrary, "library", "", "Library profile YAML (overrides library_file)")
	recommendCmd.Flags().StringVar(&recommendBackfill, "backfill", "", "Backfill strategy: standard|off")
	recommendCmd.Flags().StringVar(&recommendSensitivity, "sensitivity", "", "Stop sensitivity: off|aggressive|normal|strict|lenient")
	recommendCmd.Flags().IntVar(&recommendMaxIterations, "max-iterations", 0, "Refinement round cap (default from config)")
	recommendCmd.Flags().BoolVar(&recommendGuarantee, "exact", false, "Keep iterating until the target count is met")
	recommendCmd.Flags().StringSliceVar(&recommendExclude, "exclude", nil, "Extra exclusion keys (artist or artist|album, lowercase)")
	recommendCmd.Flags().BoolVar(&recommendRefresh, "refresh", false, "Bypass the result cache")
	recommendCmd.Flags().String("output-format", string(output.FormatTable), "Output format: table|json|markdown")
	recommendCmd.Flags().String("out", "", "Write output to a file (default stdout)")
	recommendCmd.Flags().String("out-dir", "", "Write output to a directory")
}
