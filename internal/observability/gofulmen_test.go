package observability_test

import (
	"testing"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/fulmenhq/gofulmen/telemetry"
	telemetrytesting "github.com/fulmenhq/gofulmen/telemetry/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tgfiles/tgfiles/internal/observability"
)

func resetLoggers(t *testing.T) {
	t.Helper()
	cli, server := observability.CLILogger, observability.ServerLogger
	t.Cleanup(func() {
		observability.CLILogger = cli
		observability.ServerLogger = server
	})
	observability.CLILogger = nil
	observability.ServerLogger = nil
}

func TestLoggerSelection(t *testing.T) {
	t.Run("NilSafeBeforeInit", func(t *testing.T) {
		resetLoggers(t)

		assert.Nil(t, observability.Logger())
		// Must not panic without a logger.
		observability.Warn("dropped", zap.String("k", "v"))
		observability.Info("dropped")
		observability.Debug("dropped")
	})

	t.Run("CLIWhenNoServer", func(t *testing.T) {
		resetLoggers(t)

		observability.InitCLILogger("test-cli", true)
		require.NotNil(t, observability.CLILogger)
		assert.Same(t, observability.CLILogger, observability.Logger())
		observability.Debug("verbose CLI message", zap.String("mode", "verbose"))
	})

	t.Run("ServerPreferred", func(t *testing.T) {
		resetLoggers(t)

		observability.InitCLILogger("test-cli", false)
		observability.InitServerLogger("test-service", "info", "tgfiles_test")
		require.NotNil(t, observability.ServerLogger)
		assert.Same(t, observability.ServerLogger, observability.Logger())
		observability.Info("structured message", zap.Int("request_id", 123))
	})
}

func TestReloadServerLogLevel(t *testing.T) {
	resetLoggers(t)

	changed, err := observability.ReloadServerLogLevel("debug")
	require.NoError(t, err)
	assert.False(t, changed, "no server logger installed yet")

	observability.InitServerLogger("reload-test", "info")
	before := observability.ServerLogger

	changed, err = observability.ReloadServerLogLevel("INFO")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Same(t, before, observability.ServerLogger)

	changed, err = observability.ReloadServerLogLevel("debug")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.NotSame(t, before, observability.ServerLogger)
}

func TestUseTelemetry(t *testing.T) {
	original := observability.TelemetrySystem
	t.Cleanup(func() { observability.TelemetrySystem = original })

	collector := telemetrytesting.NewFakeCollector()
	require.NoError(t, observability.UseTelemetry(&telemetry.Config{Enabled: true, Emitter: collector}))
	require.NotNil(t, observability.TelemetrySystem)

	_ = observability.TelemetrySystem.Counter("relay_test_total", 1, nil)
	assert.Equal(t, 1, collector.CountMetricsByName("relay_test_total"))
}

func TestStopMetricsWithoutExporter(t *testing.T) {
	original := observability.PrometheusExporter
	t.Cleanup(func() { observability.PrometheusExporter = original })

	observability.PrometheusExporter = nil
	require.NoError(t, observability.StopMetrics())
}

func TestEmbeddedCrucible(t *testing.T) {
	version := crucible.GetVersion()
	assert.NotEmpty(t, version.Gofulmen)
	assert.NotEmpty(t, version.Crucible)
}
