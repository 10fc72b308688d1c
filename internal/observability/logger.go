package observability

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"
)

var (
	// CLILogger is used for CLI commands (SIMPLE profile)
	CLILogger *logging.Logger

	// ServerLogger is used for HTTP server (STRUCTURED profile)
	ServerLogger *logging.Logger

	serverLoggerMu    sync.Mutex
	serverLoggerLevel string
	serverLoggerName  string
	serverLoggerNS    string
)

// InitCLILogger initializes the CLI logger with SIMPLE profile
func InitCLILogger(serviceName string, verbose bool) {
	logger, err := logging.NewCLI(serviceName)
	if err != nil {
		exitWithCodeStderr(foundry.ExitConfigInvalid, "Failed to initialize CLI logger", err)
	}

	if verbose {
		logger.SetLevel(logging.DEBUG)
	}

	CLILogger = logger
}

// InitServerLogger initializes the server logger with STRUCTURED profile
// Optional namespace parameter for telemetry integration
func InitServerLogger(serviceName string, logLevel string, namespace ...string) {
	ns := ""
	if len(namespace) > 0 {
		ns = namespace[0]
	}

	logger, err := newServerLogger(serviceName, logLevel, ns)
	if err != nil {
		exitWithCodeStderr(foundry.ExitConfigInvalid, "Failed to initialize server logger", err)
	}

	serverLoggerMu.Lock()
	ServerLogger = logger
	serverLoggerLevel = parseLogLevel(logLevel)
	serverLoggerName = serviceName
	serverLoggerNS = ns
	serverLoggerMu.Unlock()
}

// ReloadServerLogLevel rebuilds the server logger when the configured level
// changes. It reports whether a new logger was installed.
func ReloadServerLogLevel(logLevel string) (bool, error) {
	serverLoggerMu.Lock()
	defer serverLoggerMu.Unlock()

	if ServerLogger == nil || parseLogLevel(logLevel) == serverLoggerLevel {
		return false, nil
	}

	logger, err := newServerLogger(serverLoggerName, logLevel, serverLoggerNS)
	if err != nil {
		return false, err
	}

	previous := ServerLogger
	ServerLogger = logger
	serverLoggerLevel = parseLogLevel(logLevel)
	_ = previous.Sync()
	return true, nil
}

// Logger returns the server logger when running as a service, otherwise the
// CLI logger. It returns nil before either is initialized.
func Logger() *logging.Logger {
	if ServerLogger != nil {
		return ServerLogger
	}
	return CLILogger
}

// Warn logs through the active logger when one exists.
func Warn(msg string, fields ...zap.Field) {
	if logger := Logger(); logger != nil {
		logger.Warn(msg, fields...)
	}
}

// Debug logs through the active logger when one exists.
func Debug(msg string, fields ...zap.Field) {
	if logger := Logger(); logger != nil {
		logger.Debug(msg, fields...)
	}
}

// Error logs through the active logger when one exists.
func Error(msg string, fields ...zap.Field) {
	if logger := Logger(); logger != nil {
		logger.Error(msg, fields...)
	}
}

// Info logs through the active logger when one exists.
func Info(msg string, fields ...zap.Field) {
	if logger := Logger(); logger != nil {
		logger.Info(msg, fields...)
	}
}

func newServerLogger(serviceName, logLevel, namespace string) (*logging.Logger, error) {
	staticFields := make(map[string]any)
	if namespace != "" {
		staticFields["namespace"] = namespace
	}

	config := &logging.LoggerConfig{
		Profile:      logging.ProfileStructured,
		DefaultLevel: parseLogLevel(logLevel),
		Service:      serviceName,
		Environment:  "production",
		StaticFields: staticFields,
		Middleware: []logging.MiddlewareConfig{
			{
				Name:    "correlation",
				Enabled: true,
				Order:   100,
				Config:  make(map[string]any),
			},
		},
		Sinks: []logging.SinkConfig{
			{
				Type:   "console",
				Format: "json",
				Console: &logging.ConsoleSinkConfig{
					Stream:   "stderr",
					Colorize: false,
				},
			},
		},
		EnableCaller:     true,
		EnableStacktrace: true,
	}

	return logging.New(config)
}

// parseLogLevel converts string log level to logging severity string
func parseLogLevel(levelStr string) string {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "trace":
		return "TRACE"
	case "debug":
		return "DEBUG"
	case "info":
		return "INFO"
	case "warn", "warning":
		return "WARN"
	case "error":
		return "ERROR"
	default:
		return "INFO"
	}
}

// exitWithCodeStderr exits with a semantic exit code, writing to stderr.
// Used for logger initialization failures before any logger is available.
func exitWithCodeStderr(exitCode foundry.ExitCode, msg string, err error) {
	info, ok := foundry.GetExitCodeInfo(exitCode)
	if !ok {
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: %s: %v (exit code: %d)\n", msg, err, exitCode)
		} else {
			fmt.Fprintf(os.Stderr, "FATAL: %s (exit code: %d)\n", msg, exitCode)
		}
		os.Exit(int(exitCode))
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "FATAL: %s\n", msg)
	}
	fmt.Fprintf(os.Stderr, "Exit Code: %d (%s) - %s\n", info.Code, info.Name, info.Description)

	os.Exit(info.Code)
}
