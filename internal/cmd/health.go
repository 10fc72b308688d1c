package cmd

import (
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	errwrap "github.com/tgfiles/tgfiles/internal/errors"
	"github.com/tgfiles/tgfiles/internal/observability"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run self-health check",
	Long: `Run a self-health check to verify the relay can start successfully.

A missing bot token is reported as a warning: the relay still starts and
answers catalog requests with CONFIG_MISSING.`,
	Run: func(cmd *cobra.Command, args []string) {
		// Logger first; everything below reports through it.
		if observability.CLILogger == nil {
			ExitWithCodeStderr(foundry.ExitConfigInvalid, "Logger not initialized", errwrap.NewConfigInvalidError("Logger not initialized"))
			return
		}
		observability.CLILogger.Info("Running health check...")

		if versionInfo.Version == "" {
			observability.CLILogger.Error("❌ FAIL: Version information missing")
			ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Version information missing", errwrap.NewConfigInvalidError("Version information missing"))
			return
		}
		observability.CLILogger.Debug("Version check passed", zap.String("version", versionInfo.Version))
		observability.CLILogger.Info("✅ Version information available")

		cfg, err := loadConfig()
		if err != nil {
			ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Configuration invalid", err)
			return
		}
		observability.CLILogger.Info("✅ Configuration valid")

		if cfg.Configured() {
			observability.CLILogger.Info("✅ Telegram bot token configured")
		} else {
			observability.CLILogger.Warn("⚠️  Telegram bot token not configured")
		}

		rt, err := buildRuntime(cmd.Context(), cfg)
		if err != nil {
			ExitWithCode(observability.CLILogger, foundry.ExitFailure, "Relay initialization failed", err)
			return
		}
		defer rt.Close() // nolint:errcheck // best-effort cleanup

		switch {
		case rt.fallback:
			observability.CLILogger.Warn("⚠️  Rate window backend unavailable, memory fallback in use",
				zap.String("backend", cfg.RateLimit.Backend))
		default:
			if err := rt.PingStore(cmd.Context()); err != nil {
				ExitWithCode(observability.CLILogger, foundry.ExitFailure, "Rate window store unreachable", err)
				return
			}
			observability.CLILogger.Info("✅ Rate window store ready", zap.String("backend", cfg.RateLimit.Backend))
		}

		observability.CLILogger.Info("")
		observability.CLILogger.Info("✅ All health checks passed")
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
