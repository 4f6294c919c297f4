package cmd

import (
	"context"
	"net/http"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tracklens/tracklens/internal/config"
	errwrap "github.com/tracklens/tracklens/internal/errors"
	"github.com/tracklens/tracklens/internal/observability"
	"github.com/tracklens/tracklens/internal/server"
	"github.com/tracklens/tracklens/internal/server/handlers"
)

var (
	serverPort int
	serverHost string
)

// storeHealthChecker pings the libsql store.
type storeHealthChecker struct {
	app *app
}

func (s storeHealthChecker) CheckHealth(ctx context.Context) error {
	if s.app == nil || s.app.db == nil || s.app.db.DB == nil {
		return errwrap.NewDatabaseError("store not initialized")
	}
	if err := s.app.db.DB.PingContext(ctx); err != nil {
		return errwrap.Wrap(ctx, "DATABASE_ERROR", err, "store ping failed")
	}
	return nil
}

// telemetryHealthChecker ensures telemetry system and exporter are available
type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return errwrap.NewInternalError("telemetry system not initialized")
	}
	return nil
}

// providerHealthChecker verifies at least one provider is enabled and none
// of the enabled ones is currently marked unhealthy by the monitor.
type providerHealthChecker struct {
	app *app
}

func (p providerHealthChecker) CheckHealth(ctx context.Context) error {
	names := p.app.cfg.EnabledProviders()
	if len(names) == 0 {
		return errwrap.NewConfigInvalidError("no providers enabled")
	}
	for _, name := range names {
		if !p.app.health.IsHealthy(name) {
			return errwrap.NewProviderUnavailableError("provider " + name + " is unhealthy")
		}
	}
	return nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the HTTP server with graceful shutdown support.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Config reload (placeholder - restart recommended)

The server will cleanly shut down the HTTP server and flush logs on shutdown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.GetConfig()
		if cfg == nil {
			return errwrap.NewConfigInvalidError("configuration not loaded")
		}

		logLevel := cfg.Logging.Level
		observability.InitServerLogger(appName, logLevel)

		if cfg.Metrics.Enabled {
			if err := observability.InitMetrics(appName, cfg.Metrics.Port); err != nil {
				observability.ServerLogger.Error("Failed to initialize metrics",
					zap.Error(err))
				return errwrap.Wrap(cmd.Context(), "INTERNAL_ERROR", err, "metrics initialization failed")
			}
		}

		serverCfg := cfg.Server
		if cmd.Flags().Changed("host") {
			serverCfg.Host = serverHost
		}
		if cmd.Flags().Changed("port") {
			serverCfg.Port = serverPort
		}

		observability.ServerLogger.Info("Initializing server",
			zap.String("service", appName),
			zap.String("version", versionInfo.Version),
			zap.String("host", serverCfg.Host),
			zap.Int("port", serverCfg.Port),
			zap.Int("metrics_port", cfg.Metrics.Port))

		application, err := newApp(cmd.Context(), true, observability.ServerLogger)
		if err != nil {
			return err
		}

		// Initialize health manager
		handlers.InitHealthManager(versionInfo.Version)
		hm := handlers.GetHealthManager()
		hm.RegisterChecker("store", storeHealthChecker{app: application})
		hm.RegisterChecker("providers", providerHealthChecker{app: application})
		if cfg.Metrics.Enabled {
			hm.RegisterChecker("telemetry", telemetryHealthChecker{})
		}

		handlers.SetVersionInfo(appName, versionInfo.Version, versionInfo.Commit, versionInfo.BuildDate)

		srv := server.New(serverCfg, application)

		shutdownTimeout := serverCfg.ShutdownTimeout
		if shutdownTimeout == 0 {
			shutdownTimeout = 10 * time.Second
		}

		// Shutdown handlers run LIFO: HTTP server first, then engine
		// teardown, then the log flush.
		signals.OnShutdown(func(ctx context.Context) error {
			observability.ServerLogger.Info("Flushing logger...")
			if err := observability.ServerLogger.Sync(); err != nil {
				// Sync errors are often benign (stdout/stderr already closed)
				observability.ServerLogger.Warn("Logger sync returned error (may be benign)",
					zap.Error(err))
			}
			return nil
		})

		signals.OnShutdown(func(ctx context.Context) error {
			observability.ServerLogger.Info("Closing engine and store...")
			application.close()
			return nil
		})

		signals.OnShutdown(func(ctx context.Context) error {
			observability.ServerLogger.Info("Shutting down HTTP server...")
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				return errwrap.Wrap(ctx, "INTERNAL_ERROR", err, "server shutdown failed")
			}

			observability.ServerLogger.Info("HTTP server stopped gracefully")
			return nil
		})

		// Register config reload handler (SIGHUP)
		signals.OnReload(func(ctx context.Context) error {
			observability.ServerLogger.Info("Received SIGHUP: attempting config reload")

			if _, err := config.Load(cfgFile); err != nil {
				observability.ServerLogger.Error("Failed to reload config",
					zap.Error(err))
				return errwrap.Wrap(ctx, "CONFIG_INVALID", err, "config reload failed")
			}

			// Engine components keep their construction-time settings;
			// restart to apply provider or cache changes.
			observability.ServerLogger.Info("Configuration reloaded")
			return nil
		})

		// Enable double-tap force quit (Ctrl+C within 2 seconds)
		if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
			Window:  2 * time.Second,
			Message: "Press Ctrl+C again within 2 seconds to force quit",
		}); err != nil {
			observability.ServerLogger.Warn("Failed to enable double-tap force quit",
				zap.Error(err))
		}

		// Start server in background goroutine
		errChan := make(chan error, 1)
		go func() {
			observability.ServerLogger.Info("Starting HTTP server...",
				zap.String("host", serverCfg.Host),
				zap.Int("port", serverCfg.Port))
			if err := srv.Start(); err != nil && err != http.ErrServerClosed {
				errChan <- err
			}
		}()

		// Start signal listener in background
		go func() {
			if err := signals.Listen(cmd.Context()); err != nil {
				observability.ServerLogger.Error("Signal handler error", zap.Error(err))
				errChan <- err
			}
		}()

		// Wait for error or shutdown completion
		if err := <-errChan; err != nil {
			return errwrap.Wrap(cmd.Context(), "INTERNAL_ERROR", err, "server error")
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "127.0.0.1", "server host")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8484, "server port")
}
