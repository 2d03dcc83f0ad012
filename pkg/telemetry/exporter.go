// ABOUTME: OpenTelemetry exporter factory for creating metric readers and trace exporters (Prometheus, stdout)
// ABOUTME: Handles configuration and creation of the telemetry export destinations this build ships

package telemetry

import (
	"fmt"

	otelprometheus "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/trace"
)

// createMetricReaders builds one sdk/metric.Reader per configured exporter.
// "prometheus" is pull-based and returns its own Reader; "stdout" is a
// push Exporter wrapped in a PeriodicReader. OTLP is not wired: this build
// carries no gRPC transport dependency to export over (see DESIGN.md).
func createMetricReaders(cfg Config) ([]metric.Reader, error) {
	var readers []metric.Reader

	for _, exporterName := range cfg.Exporters {
		switch exporterName {
		case "prometheus":
			reader, err := createPrometheusReader(cfg)
			if err != nil {
				return nil, fmt.Errorf("failed to create prometheus reader: %w", err)
			}
			readers = append(readers, reader)

		case "stdout":
			reader, err := createStdoutMetricReader()
			if err != nil {
				return nil, fmt.Errorf("failed to create stdout metric reader: %w", err)
			}
			readers = append(readers, reader)

		default:
			// otlp/jaeger name trace-only or unsupported destinations here.
			continue
		}
	}

	if len(readers) == 0 {
		reader, err := createStdoutMetricReader()
		if err != nil {
			return nil, fmt.Errorf("failed to create default stdout metric reader: %w", err)
		}
		readers = append(readers, reader)
	}

	return readers, nil
}

// createTraceExporters creates trace exporters based on configuration.
func createTraceExporters(cfg Config) ([]trace.SpanExporter, error) {
	var exporters []trace.SpanExporter

	for _, exporterName := range cfg.Exporters {
		switch exporterName {
		case "stdout":
			exporter, err := createStdoutTraceExporter()
			if err != nil {
				return nil, fmt.Errorf("failed to create stdout trace exporter: %w", err)
			}
			exporters = append(exporters, exporter)

		default:
			// prometheus doesn't support traces; otlp/jaeger aren't wired in this build.
			continue
		}
	}

	if len(exporters) == 0 {
		exporter, err := createStdoutTraceExporter()
		if err != nil {
			return nil, fmt.Errorf("failed to create default stdout trace exporter: %w", err)
		}
		exporters = append(exporters, exporter)
	}

	return exporters, nil
}

// createPrometheusReader creates a Prometheus metric.Reader. The exporter
// registers itself with the default Prometheus registry; serving it over
// HTTP is the caller's job (TelemetryProvider.PrometheusHandler).
func createPrometheusReader(cfg Config) (metric.Reader, error) {
	return otelprometheus.New()
}

// createStdoutMetricReader creates a stdout metrics reader.
func createStdoutMetricReader() (metric.Reader, error) {
	exporter, err := stdoutmetric.New(
		stdoutmetric.WithPrettyPrint(),
	)
	if err != nil {
		return nil, err
	}
	return metric.NewPeriodicReader(exporter), nil
}

// createStdoutTraceExporter creates a stdout trace exporter.
func createStdoutTraceExporter() (trace.SpanExporter, error) {
	return stdouttrace.New(
		stdouttrace.WithPrettyPrint(),
	)
}
