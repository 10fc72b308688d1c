package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fulmenhq/gofulmen/appidentity"
	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/tgfiles/tgfiles/internal/appid"
	"github.com/tgfiles/tgfiles/internal/config"
	"github.com/tgfiles/tgfiles/internal/observability"
)

var (
	cfgFile string
	envFile string
	verbose bool

	appIdentity *appidentity.Identity

	// Version info set by main package
	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}
)

// SetVersionInfo is called by main package to set version information
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// GetAppIdentity returns the loaded app identity (only valid after initConfig)
func GetAppIdentity() *appidentity.Identity {
	return appIdentity
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	// NOTE: initConfig() overwrites these from app identity.
	Use:   filepath.Base(os.Args[0]),
	Short: "Telegram channel file relay",
	Long: `Relay that turns a Telegram bot's recent channel posts into a downloadable
file catalog and parses plain-text quiz documents.

Use the subcommands to perform specific operations.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Disable global telemetry early to prevent config loading from emitting
	// metrics to stdout. Server mode will initialize proper telemetry later.
	disabledConfig := &telemetry.Config{Enabled: false}
	if sys, err := telemetry.NewSystem(disabledConfig); err == nil {
		telemetry.SetGlobalSystem(sys)
	}

	if identity, err := appid.Get(context.Background()); err == nil && identity != nil {
		appIdentity = identity
		if identity.BinaryName != "" {
			rootCmd.Use = identity.BinaryName
		}
	}

	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional; defaults to the XDG config path)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig resolves the app identity, loads .env and points viper at the
// config file before any command runs.
func initConfig() {
	identity, err := appid.Get(context.Background())
	if err != nil {
		ExitWithCodeStderr(foundry.ExitConfigInvalid, "Failed to resolve app identity", err)
	}
	appIdentity = identity

	if f := rootCmd.PersistentFlags().Lookup("config"); f != nil && identity.ConfigName != "" {
		f.Usage = fmt.Sprintf("config file (default is $XDG_CONFIG_HOME/%s/config.yaml)", identity.ConfigName)
	}

	observability.InitCLILogger(identity.BinaryName, verbose)
	log := observability.CLILogger

	// Real environment variables still win over .env entries.
	if err := config.LoadDotEnv(envFile); err != nil {
		log.Warn("Failed to load dotenv file", zap.String("path", envFile), zap.Error(err))
	}

	if err := locateConfig(viper.GetViper(), cfgFile, identity.ConfigName); err != nil {
		ExitWithCode(log, foundry.ExitFileNotFound, "Could not locate a config directory", err)
	}

	config.SetDefaults(viper.GetViper())
	config.BindEnv(viper.GetViper(), identity.EnvPrefix)

	err = viper.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	switch {
	case err == nil:
		log.Debug("Using config file", zap.String("path", viper.ConfigFileUsed()))
	case errors.As(err, &notFound):
		log.Debug("No config file found, using defaults and environment variables")
	default:
		log.Warn("Error reading config file", zap.Error(err))
	}
}

// locateConfig points v at an explicit file, or at config.yaml in the XDG
// app directory and ./config. Without an XDG directory it looks for
// ~/.<name>.yaml instead.
func locateConfig(v *viper.Viper, explicit, name string) error {
	if explicit != "" {
		v.SetConfigFile(explicit)
		return nil
	}

	v.SetConfigType("yaml")
	if dir := gfconfig.GetAppConfigDir(name); dir != "" {
		v.SetConfigName("config")
		v.AddConfigPath(dir)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		v.SetConfigName("." + name)
		v.AddConfigPath(home)
	}
	v.AddConfigPath("./config")
	return nil
}

// loadConfig decodes and validates the layered configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
