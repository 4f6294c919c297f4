package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tracklens/tracklens/internal/config"
	"github.com/tracklens/tracklens/internal/core"
	"github.com/tracklens/tracklens/internal/observability"
	"github.com/tracklens/tracklens/internal/provider/driver"
)

var doctorTimeout time.Duration

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long:  "Run diagnostic checks on the installation and test connectivity to every enabled provider.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		log := observability.CLILogger

		log.Info("=== " + appName + " doctor ===")
		log.Info("")
		log.Info("Running diagnostic checks...")
		log.Info("")

		allChecks := true
		totalChecks := 6

		// Check 1: Go version
		goVersion := runtime.Version()
		if goVersion >= "go1.23" {
			log.Info(fmt.Sprintf("[1/%d] Checking Go version... ✅ %s", totalChecks, goVersion), zap.String("go_version", goVersion))
		} else {
			log.Warn(fmt.Sprintf("[1/%d] Checking Go version... ⚠️  %s (recommended: go1.23+)", totalChecks, goVersion), zap.String("go_version", goVersion))
			allChecks = false
		}

		// Check 2: Gofulmen access
		version := crucible.GetVersion()
		if version.Gofulmen != "" {
			log.Info(fmt.Sprintf("[2/%d] Checking Gofulmen access... ✅ v%s", totalChecks, version.Gofulmen), zap.String("gofulmen_version", version.Gofulmen))
		} else {
			log.Error(fmt.Sprintf("[2/%d] Checking Gofulmen access... ❌ Cannot access Gofulmen", totalChecks))
			allChecks = false
		}

		// Check 3: Configuration
		cfg := config.GetConfig()
		if cfg == nil {
			log.Error(fmt.Sprintf("[3/%d] Checking configuration... ❌ not loaded", totalChecks))
			allChecks = false
		} else {
			enabled := cfg.EnabledProviders()
			sort.Strings(enabled)
			if len(enabled) == 0 {
				log.Warn(fmt.Sprintf("[3/%d] Checking configuration... ⚠️  no providers enabled", totalChecks))
				allChecks = false
			} else {
				log.Info(fmt.Sprintf("[3/%d] Checking configuration... ✅ %d provider(s) enabled", totalChecks, len(enabled)),
					zap.Strings("providers", enabled),
					zap.String("default_provider", cfg.Engine.DefaultProvider))
			}
		}

		// Check 4: Store
		if cfg != nil {
			checkStore(ctx, cfg, totalChecks, &allChecks)
		} else {
			log.Warn(fmt.Sprintf("[4/%d] Checking store... ⚠️  skipped (config not loaded)", totalChecks))
		}

		// Check 5: Provider connectivity
		if cfg != nil && len(cfg.EnabledProviders()) > 0 {
			checkProviders(ctx, totalChecks, &allChecks)
		} else {
			log.Warn(fmt.Sprintf("[5/%d] Checking providers... ⚠️  skipped (none enabled)", totalChecks))
		}

		// Check 6: Recent outcomes
		checkOutcomes(ctx, totalChecks)

		log.Info("")
		if allChecks {
			log.Info(fmt.Sprintf("✅ All checks passed! Your %s installation is healthy.", appName))
		} else {
			log.Warn("⚠️  Some checks failed. Review the output above for details.")
		}
		log.Info("")
		log.Info("=== End Diagnostics ===")
	},
}

func checkStore(ctx context.Context, cfg *config.Config, totalChecks int, allChecks *bool) {
	log := observability.CLILogger

	if cfg.Store.URL != "" {
		log.Info(fmt.Sprintf("[4/%d] Checking store... ✅ %s (remote)", totalChecks, cfg.Store.URL),
			zap.String("db_url", cfg.Store.URL))
		return
	}

	dbPath := cfg.Store.Path
	if dbPath == "" {
		dbPath = config.DefaultStorePath()
	}
	absPath, _ := filepath.Abs(dbPath)
	if info, statErr := os.Stat(absPath); statErr == nil {
		log.Info(fmt.Sprintf("[4/%d] Checking store... ✅ %s (%s)", totalChecks, absPath, formatFileSize(info.Size())),
			zap.String("db_path", absPath),
			zap.Int64("db_size", info.Size()))
	} else if os.IsNotExist(statErr) {
		log.Warn(fmt.Sprintf("[4/%d] Checking store... ⚠️  %s (not created yet)", totalChecks, absPath),
			zap.String("db_path", absPath))
	} else {
		log.Warn(fmt.Sprintf("[4/%d] Checking store... ⚠️  %s (error: %v)", totalChecks, absPath, statErr),
			zap.String("db_path", absPath),
			zap.Error(statErr))
		*allChecks = false
	}
}

func checkProviders(ctx context.Context, totalChecks int, allChecks *bool) {
	log := observability.CLILogger

	application, err := newApp(ctx, true, log)
	if err != nil {
		log.Warn(fmt.Sprintf("[5/%d] Checking providers... ⚠️  cannot build engine", totalChecks), zap.Error(err))
		*allChecks = false
		return
	}
	defer application.close()

	names := application.cfg.EnabledProviders()
	sort.Strings(names)

	anyHealthy := false
	for _, name := range names {
		checkCtx, cancel := context.WithTimeout(ctx, doctorTimeout)
		started := time.Now()
		err := application.orch.TestProvider(checkCtx, name)
		latency := time.Since(started)
		cancel()

		if application.db != nil {
			kind := core.ProviderErrorKind("")
			if err != nil {
				kind = core.ErrorKindUnknown
				var provErr *driver.Error
				if errors.As(err, &provErr) {
					kind = provErr.Kind
				}
			}
			if recordErr := application.db.RecordOutcome(ctx, name, err == nil, kind, latency); recordErr != nil {
				log.Debug("Failed to record provider outcome", zap.Error(recordErr))
			}
		}

		if err != nil {
			log.Warn(fmt.Sprintf("[5/%d] Checking provider %s... ⚠️  %v", totalChecks, name, err),
				zap.String("provider", name),
				zap.Duration("latency", latency))
			continue
		}

		anyHealthy = true
		log.Info(fmt.Sprintf("[5/%d] Checking provider %s... ✅ %s (%s)", totalChecks, name,
			application.health.Status(name), latency.Round(time.Millisecond)),
			zap.String("provider", name),
			zap.Duration("latency", latency))
	}

	if !anyHealthy {
		*allChecks = false
	}
}

func checkOutcomes(ctx context.Context, totalChecks int) {
	log := observability.CLILogger

	db, err := openStore(ctx)
	if err != nil {
		log.Warn(fmt.Sprintf("[6/%d] Checking recent outcomes... ⚠️  cannot open store", totalChecks), zap.Error(err))
		return
	}
	defer db.Close() // nolint:errcheck // best-effort cleanup

	summaries, err := db.SummarizeOutcomes(ctx, 24*time.Hour)
	if err != nil {
		log.Warn(fmt.Sprintf("[6/%d] Checking recent outcomes... ⚠️  %v", totalChecks, err))
		return
	}
	if len(summaries) == 0 {
		log.Info(fmt.Sprintf("[6/%d] Checking recent outcomes... ✅ no calls in the last 24h", totalChecks))
		return
	}

	for _, summary := range summaries {
		log.Info(fmt.Sprintf("[6/%d] Checking recent outcomes... %s: %d ok, %d failed, mean %s", totalChecks,
			summary.Provider, summary.Successes, summary.Failures, summary.MeanLatency.Round(time.Millisecond)),
			zap.String("provider", summary.Provider),
			zap.Int("successes", summary.Successes),
			zap.Int("failures", summary.Failures))
	}
}

func formatFileSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}

func init() {
	rootCmd.AddCommand(doctorCmd)

	doctorCmd.Flags().DurationVar(&doctorTimeout, "timeout", 10*time.Second, "per-provider connectivity timeout")
}
