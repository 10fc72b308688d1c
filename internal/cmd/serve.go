package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/tgfiles/tgfiles/internal/config"
	"github.com/tgfiles/tgfiles/internal/core/ratelimit"
	errwrap "github.com/tgfiles/tgfiles/internal/errors"
	"github.com/tgfiles/tgfiles/internal/observability"
	"github.com/tgfiles/tgfiles/internal/server"
	"github.com/tgfiles/tgfiles/internal/server/handlers"
)

var (
	serverPort int
	serverHost string
)

// telemetryHealthChecker ensures telemetry system and exporter are available
type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return errwrap.NewInternalError("telemetry system not initialized")
	}
	return nil
}

func rateStoreChecker(rt *relayRuntime) handlers.CheckerFunc {
	return func(ctx context.Context) error {
		if rt.fallback {
			return fmt.Errorf("%s backend unavailable, using memory: %w", rt.cfg.RateLimit.Backend, handlers.ErrDegraded)
		}
		return rt.PingStore(ctx)
	}
}

func telegramChecker(rt *relayRuntime) handlers.CheckerFunc {
	return func(context.Context) error {
		if rt.client == nil {
			return fmt.Errorf("bot token not configured: %w", handlers.ErrDegraded)
		}
		return nil
	}
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP relay",
	Long: `Start the HTTP relay with graceful shutdown support.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Reload rate limits and log level from the config file

Config file edits are also picked up while running.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		identity := GetAppIdentity()
		namespace := identity.TelemetryNamespace()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		observability.InitServerLogger(identity.BinaryName, cfg.Logging.Level, namespace)

		metricsPort := cfg.Metrics.Port
		if metricsPort == 0 {
			metricsPort = observability.DefaultMetricsPort
		}
		if cfg.Metrics.Enabled {
			if err := observability.InitMetrics(identity.BinaryName, metricsPort, namespace); err != nil {
				observability.ServerLogger.Error("Failed to initialize metrics",
					zap.Error(err))
				return errwrap.WrapInternal(cmd.Context(), err, "metrics initialization failed")
			}
		}

		rt, err := buildRuntime(cmd.Context(), cfg)
		if err != nil {
			return errwrap.WrapInternal(cmd.Context(), err, "relay initialization failed")
		}

		sweeper, err := ratelimit.NewSweeper(rt.store, cfg.RateLimit.SweepInterval, nil)
		if err != nil {
			_ = rt.Close()
			return errwrap.WrapInternal(cmd.Context(), err, "rate window sweeper initialization failed")
		}
		sweeper.Start()

		host := viper.GetString("server.host")
		port := viper.GetInt("server.port")

		observability.ServerLogger.Info("Initializing server",
			zap.String("service", identity.BinaryName),
			zap.String("namespace", namespace),
			zap.String("version", versionInfo.Version),
			zap.String("host", host),
			zap.Int("port", port),
			zap.String("files_path", cfg.Server.FilesPath),
			zap.Int("metrics_port", metricsPort),
			zap.String("rate_backend", cfg.RateLimit.Backend),
			zap.Bool("telegram_configured", cfg.Configured()))

		handlers.InitHealthManager(versionInfo.Version)
		hm := handlers.GetHealthManager()
		if cfg.Metrics.Enabled {
			hm.RegisterChecker("telemetry", telemetryHealthChecker{})
		}
		hm.RegisterChecker("rate_store", rateStoreChecker(rt))
		hm.RegisterChecker("telegram", telegramChecker(rt))

		srv := server.New(host, port,
			server.WithFileService(rt.files),
			server.WithQuizService(rt.quiz),
			server.WithServiceName(identity.Description),
			server.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.IdleTimeout),
			server.WithFilesPath(cfg.Server.FilesPath),
			server.WithAdminToken(cfg.Server.AdminToken),
		)

		handlers.SetAppIdentity(identity)
		handlers.SetVersionInfo(versionInfo.Version, versionInfo.Commit, versionInfo.BuildDate)

		shutdownTimeout := cfg.Server.ShutdownTimeout
		if shutdownTimeout == 0 {
			shutdownTimeout = 10 * time.Second
		}

		// Register graceful shutdown handlers (LIFO order - last registered, first executed)
		// Handler 1: Flush logger (executed last)
		signals.OnShutdown(func(ctx context.Context) error {
			observability.ServerLogger.Info("Flushing logger...")
			if err := observability.ServerLogger.Sync(); err != nil {
				// Sync errors are often benign (stdout/stderr already closed)
				observability.ServerLogger.Warn("Logger sync returned error (may be benign)",
					zap.Error(err))
			}
			return nil
		})

		// Handler 2: Stop the sweeper and release window stores
		signals.OnShutdown(func(ctx context.Context) error {
			if err := sweeper.Stop(); err != nil {
				observability.ServerLogger.Warn("Rate window sweeper stop failed", zap.Error(err))
			}
			if err := rt.Close(); err != nil {
				return errwrap.WrapInternal(ctx, err, "rate store close failed")
			}
			return nil
		})

		// Handler 3: Shutdown HTTP server (executed first)
		signals.OnShutdown(func(ctx context.Context) error {
			observability.ServerLogger.Info("Shutting down HTTP server...")
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				return errwrap.WrapInternal(ctx, err, "server shutdown failed")
			}

			observability.ServerLogger.Info("HTTP server stopped gracefully")
			return nil
		})

		signals.OnReload(func(ctx context.Context) error {
			observability.ServerLogger.Info("Received SIGHUP: attempting config reload")

			if err := viper.ReadInConfig(); err != nil {
				if _, ok := err.(viper.ConfigFileNotFoundError); ok {
					observability.ServerLogger.Info("No config file found - using defaults and environment variables")
					return nil
				}
				observability.ServerLogger.Error("Failed to reload config file",
					zap.String("file", viper.ConfigFileUsed()),
					zap.Error(err))
				return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
			}

			if err := applyReload(rt); err != nil {
				return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
			}
			return nil
		})

		if viper.ConfigFileUsed() != "" {
			viper.OnConfigChange(func(e fsnotify.Event) {
				if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
					return
				}
				observability.ServerLogger.Info("Config file changed", zap.String("file", e.Name))
				if err := applyReload(rt); err != nil {
					observability.ServerLogger.Warn("Ignoring invalid config change", zap.Error(err))
				}
			})
			viper.WatchConfig()
		}

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
			return errwrap.WrapInternal(cmd.Context(), err, "server error")
		}

		return nil
	},
}

// applyReload re-decodes the config and applies the settings that can change
// without a restart: route limits and the log level.
func applyReload(rt *relayRuntime) error {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	rt.limiter.SetRoutes(routePolicies(cfg.RateLimit))

	changed, err := observability.ReloadServerLogLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}

	observability.ServerLogger.Info("Configuration reloaded",
		zap.String("file", viper.ConfigFileUsed()),
		zap.Int("routes", len(cfg.RateLimit.Routes)),
		zap.Bool("log_level_changed", changed))
	return nil
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "localhost", "server host")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "server port")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}
