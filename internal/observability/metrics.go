package observability

import (
	"fmt"
	"net"
	"strconv"

	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/fulmenhq/gofulmen/telemetry/exporters"
)

// DefaultMetricsPort is reported when the exporter address cannot be read.
const DefaultMetricsPort = 9090

var (
	// TelemetrySystem receives relay and HTTP metrics. Nil disables emission.
	TelemetrySystem *telemetry.System

	// PrometheusExporter serves the scrape endpoint that /metrics proxies.
	PrometheusExporter *exporters.PrometheusExporter

	metricsPort int
)

// InitMetrics starts a Prometheus exporter on port (0 picks a free port) and
// routes telemetry to it. Metric names are prefixed with the namespace, or
// the service name when none is given.
func InitMetrics(serviceName string, port int, namespace ...string) error {
	prefix := serviceName
	if len(namespace) > 0 && namespace[0] != "" {
		prefix = namespace[0]
	}

	exporter := exporters.NewPrometheusExporter(prefix, fmt.Sprintf(":%d", max(port, 0)))
	if err := exporter.Start(); err != nil {
		return fmt.Errorf("start prometheus exporter: %w", err)
	}

	if err := UseTelemetry(&telemetry.Config{Enabled: true, Emitter: exporter}); err != nil {
		_ = exporter.Stop()
		return err
	}

	PrometheusExporter = exporter
	metricsPort = boundPort(exporter.GetAddr(), port)
	return nil
}

// UseTelemetry installs a telemetry system built from config. Tests pass a
// fake emitter here to observe relay metrics.
func UseTelemetry(config *telemetry.Config) error {
	sys, err := telemetry.NewSystem(config)
	if err != nil {
		return err
	}
	TelemetrySystem = sys
	return nil
}

// StopMetrics stops the Prometheus exporter if it is running.
func StopMetrics() error {
	if PrometheusExporter == nil {
		return nil
	}
	return PrometheusExporter.Stop()
}

// GetMetricsPort returns the port the Prometheus exporter is listening on.
func GetMetricsPort() int {
	return metricsPort
}

// boundPort reads the port from the exporter's listen address. For a
// requested port of 0 the address is the only source of the real port.
func boundPort(addr string, requested int) int {
	if _, portStr, err := net.SplitHostPort(addr); err == nil {
		if port, err := strconv.Atoi(portStr); err == nil && port > 0 {
			return port
		}
	}
	if requested > 0 {
		return requested
	}
	return DefaultMetricsPort
}
