package config

import (
	"strings"
	"time"
	// Catalog dates default to a named zone; minimal images ship no zoneinfo.
	_ "time/tzdata"
)

// Config represents the complete application configuration.
// Values come from built-in defaults, an optional YAML config file,
// a `.env` file, and TGFILES_* environment variables (highest precedence).
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Store     StoreConfig     `mapstructure:"store"`
	Quiz      QuizConfig      `mapstructure:"quiz"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Health    HealthConfig    `mapstructure:"health"`
	Debug     DebugConfig     `mapstructure:"debug"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port" validate:"min=0,max=65535"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"gte=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"gte=0"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gte=0"`
	AdminToken      string        `mapstructure:"admin_token"`
	FilesPath       string        `mapstructure:"files_path" validate:"required,startswith=/,excludesall={}*"`
}

// TelegramConfig describes the upstream bot API.
//
// Token is deliberately optional: a relay without a token still starts and
// answers every ingestion call with a configuration error.
type TelegramConfig struct {
	Token              string        `mapstructure:"token"`
	BaseURL            string        `mapstructure:"base_url" validate:"required,url"`
	DefaultChannel     string        `mapstructure:"default_channel"`
	Channels           []string      `mapstructure:"channels"`
	PollLimit          int           `mapstructure:"poll_limit" validate:"min=1,max=100"`
	PollTimeout        time.Duration `mapstructure:"poll_timeout" validate:"gt=0"`
	ResolveTimeout     time.Duration `mapstructure:"resolve_timeout" validate:"gt=0"`
	ResolveConcurrency int           `mapstructure:"resolve_concurrency" validate:"min=1,max=64"`
	ProbeChannel       bool          `mapstructure:"probe_channel"`
}

// CatalogConfig controls how normalized file records are presented.
type CatalogConfig struct {
	DateLayout string `mapstructure:"date_layout" validate:"required"`
	Timezone   string `mapstructure:"timezone"`
	Order      string `mapstructure:"order" validate:"oneof=newest oldest"`
}

// RateLimitConfig configures the fixed-window limiter that guards the API.
type RateLimitConfig struct {
	// Backend selects the window store: memory, redis, or sql.
	Backend       string                `mapstructure:"backend" validate:"oneof=memory redis sql"`
	SweepInterval time.Duration         `mapstructure:"sweep_interval" validate:"gt=0"`
	Routes        map[string]RouteLimit `mapstructure:"routes" validate:"dive"`
	RedisURL      string                `mapstructure:"redis_url" validate:"required_if=Backend redis"`
	RedisPrefix   string                `mapstructure:"redis_prefix"`
}

// RouteLimit is the request budget for one logical route.
type RouteLimit struct {
	Limit  int           `mapstructure:"limit" validate:"min=1"`
	Window time.Duration `mapstructure:"window" validate:"gt=0"`
}

// StoreConfig contains SQL configuration for the sql rate limit backend.
type StoreConfig struct {
	// Driver is libsql (local file or Turso) or sqlite (pure Go).
	Driver    string `mapstructure:"driver" validate:"oneof=libsql sqlite"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// QuizConfig bounds remote quiz document retrieval.
type QuizConfig struct {
	MaxBytes     int64         `mapstructure:"max_bytes" validate:"min=1"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout" validate:"gt=0"`
}

// LoggingConfig contains logging configuration
// Supports progressive logging profiles:
// - SIMPLE: Console output only, minimal configuration (CLI tools)
// - STRUCTURED: Structured sinks, correlation IDs (API services)
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level" validate:"omitempty,oneof=trace debug info warn warning error"`

	// Profile selects the logging complexity level
	Profile string `mapstructure:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Port is the dedicated metrics endpoint port (Prometheus format).
	// Metrics are also proxied on the main HTTP port at /metrics.
	Port int `mapstructure:"port" validate:"min=0,max=65535"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// DebugConfig contains debug configuration
type DebugConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Configured reports whether an upstream credential is present.
func (c *Config) Configured() bool {
	return c != nil && strings.TrimSpace(c.Telegram.Token) != ""
}

// Location resolves the catalog display timezone, falling back to UTC.
func (c CatalogConfig) Location() *time.Location {
	name := strings.TrimSpace(c.Timezone)
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Ascending reports whether catalogs are ordered oldest first.
func (c CatalogConfig) Ascending() bool {
	return strings.EqualFold(strings.TrimSpace(c.Order), "oldest")
}
