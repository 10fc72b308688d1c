// Package config provides centralized configuration management for tgfiles.
// Configuration is layered:
// Layer 1: Built-in defaults (SetDefaults)
// Layer 2: User config file (XDG path or --config) and an optional .env file
// Layer 3: Environment variables (TGFILES_* plus the TELEGRAM_BOT_TOKEN alias)
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	appName = "tgfiles"

	// LegacyTokenEnv is the credential variable used by earlier deployments.
	LegacyTokenEnv = "TELEGRAM_BOT_TOKEN"

	// RouteFiles and RouteQuiz name the rate-limited routes.
	RouteFiles = "files"
	RouteQuiz  = "quiz"
)

var (
	// appConfig holds the current application configuration
	appConfig *Config
	configMu  sync.RWMutex

	validate = validator.New()
)

// SetDefaults registers default values on v.
// Every key must have a default so AutomaticEnv can override it.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.admin_token", "")
	v.SetDefault("server.files_path", "/api/files")

	// Upstream defaults
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.base_url", "https://api.telegram.org")
	v.SetDefault("telegram.default_channel", "")
	v.SetDefault("telegram.channels", []string{})
	v.SetDefault("telegram.poll_limit", 30)
	v.SetDefault("telegram.poll_timeout", "10s")
	v.SetDefault("telegram.resolve_timeout", "5s")
	v.SetDefault("telegram.resolve_concurrency", 4)
	v.SetDefault("telegram.probe_channel", true)

	// Catalog defaults
	v.SetDefault("catalog.date_layout", "2/1/2006, 3:04:05 pm")
	v.SetDefault("catalog.timezone", "Asia/Kolkata")
	v.SetDefault("catalog.order", "newest")

	// Rate limit defaults
	v.SetDefault("rate_limit.backend", "memory")
	v.SetDefault("rate_limit.sweep_interval", "30s")
	v.SetDefault("rate_limit.routes."+RouteFiles+".limit", 30)
	v.SetDefault("rate_limit.routes."+RouteFiles+".window", "1m")
	v.SetDefault("rate_limit.routes."+RouteQuiz+".limit", 20)
	v.SetDefault("rate_limit.routes."+RouteQuiz+".window", "1m")
	v.SetDefault("rate_limit.redis_url", "")
	v.SetDefault("rate_limit.redis_prefix", "tgfiles:rl:")

	// Store defaults
	v.SetDefault("store.driver", "libsql")
	v.SetDefault("store.path", DefaultStorePath())
	v.SetDefault("store.url", "")
	v.SetDefault("store.auth_token", "")

	// Quiz defaults
	v.SetDefault("quiz.max_bytes", 1<<20)
	v.SetDefault("quiz.fetch_timeout", "15s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "structured")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	// Health check defaults
	v.SetDefault("health.enabled", true)

	// Debug defaults
	v.SetDefault("debug.enabled", false)
}

// BindEnv maps {PREFIX}_{SECTION}_{KEY} environment variables onto config keys.
func BindEnv(v *viper.Viper, prefix string) {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), "_")
	if prefix == "" {
		prefix = strings.ToUpper(appName)
	}

	v.SetEnvPrefix(prefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("telegram.token", prefix+"_TELEGRAM_TOKEN", LegacyTokenEnv)
	_ = v.BindEnv("server.admin_token", prefix+"_SERVER_ADMIN_TOKEN", prefix+"_ADMIN_TOKEN")
}

// LoadDotEnv loads KEY=value pairs from the given files into the process
// environment. Missing files are ignored; existing variables win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}

	existing := make([]string, 0, len(paths))
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			existing = append(existing, path)
		}
	}
	if len(existing) == 0 {
		return nil
	}

	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("load dotenv: %w", err)
	}
	return nil
}

// Load decodes the settings held by v into a validated Config and makes it
// the current configuration.
//
// This function is safe to call multiple times (e.g., for config reload)
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		return nil, errors.New("config source is required")
	}

	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	normalize(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	setConfig(cfg)

	return cfg, nil
}

// reservedPaths are routes the server always mounts.
var reservedPaths = map[string]bool{
	"/health":       true,
	"/version":      true,
	"/metrics":      true,
	"/api/test":     true,
	"/admin/signal": true,
}

// Validate checks struct constraints and cross-field rules.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if tz := strings.TrimSpace(cfg.Catalog.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("invalid config: catalog.timezone %q: %w", tz, err)
		}
	}

	for _, route := range []string{RouteFiles, RouteQuiz} {
		if _, ok := cfg.RateLimit.Routes[route]; !ok {
			return fmt.Errorf("invalid config: rate_limit.routes.%s is required", route)
		}
	}

	if reservedPaths[cfg.Server.FilesPath] || hasReservedPrefix(cfg.Server.FilesPath) {
		return fmt.Errorf("invalid config: server.files_path %q collides with a built-in route", cfg.Server.FilesPath)
	}

	if cfg.RateLimit.Backend == "sql" &&
		strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		return errors.New("invalid config: store.path or store.url is required for the sql backend")
	}

	return nil
}

func hasReservedPrefix(path string) bool {
	for _, prefix := range []string{"/health/", "/api/test/", "/api/quiz/"} {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func normalize(cfg *Config) {
	cfg.Telegram.Token = strings.TrimSpace(cfg.Telegram.Token)
	cfg.Telegram.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Telegram.BaseURL), "/")
	cfg.Server.FilesPath = strings.TrimSpace(cfg.Server.FilesPath)
	if len(cfg.Server.FilesPath) > 1 {
		cfg.Server.FilesPath = strings.TrimRight(cfg.Server.FilesPath, "/")
	}

	channels := cfg.Telegram.Channels[:0]
	for _, ch := range cfg.Telegram.Channels {
		if ch = strings.TrimSpace(ch); ch != "" {
			channels = append(channels, ch)
		}
	}
	cfg.Telegram.Channels = channels

	cfg.RateLimit.Backend = strings.ToLower(strings.TrimSpace(cfg.RateLimit.Backend))
	cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	cfg.Logging.Level = strings.ToLower(strings.TrimSpace(cfg.Logging.Level))
	cfg.Catalog.Order = strings.ToLower(strings.TrimSpace(cfg.Catalog.Order))

	if strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = DefaultStorePath()
	}
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// setConfig updates the current configuration (thread-safe)
func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

// DefaultConfigDir returns the XDG-compliant config directory.
func DefaultConfigDir() string {
	return gfconfig.GetAppConfigDir(appName)
}

// DefaultConfigPath returns the XDG-compliant path to the user config file.
func DefaultConfigPath() string {
	configDir := DefaultConfigDir()
	if strings.TrimSpace(configDir) == "" {
		return ""
	}
	return filepath.Join(configDir, "config.yaml")
}

// DefaultStorePath returns the XDG-compliant path to the database file.
func DefaultStorePath() string {
	dataDir := gfconfig.GetAppDataDir(appName)
	if strings.TrimSpace(dataDir) == "" {
		return "./" + appName + ".db"
	}
	return filepath.Join(dataDir, appName+".db")
}
