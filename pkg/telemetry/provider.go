// ABOUTME: OpenTelemetry provider implementation with metric and trace provider setup for pagecache telemetry
// ABOUTME: Handles provider lifecycle, resource detection, instrument caching, and sampling configuration

package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// TelemetryProvider implements the Telemetry interface using the OpenTelemetry SDK.
// Instruments are created lazily and cached by name, since RecordHistogram/
// RecordCounter are called with free-form metric names by callers that
// don't hold a reference to a pre-declared instrument.
type TelemetryProvider struct {
	config         Config
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	meter          metric.Meter
	tracer         oteltrace.Tracer
	promHandler    http.Handler

	histograms sync.Map // string -> metric.Float64Histogram
	counters   sync.Map // string -> metric.Int64Counter
}

// New creates a new TelemetryProvider with the given configuration, or a
// NoopTelemetry if telemetry is disabled.
func New(cfg Config) (Telemetry, error) {
	if !cfg.Enabled {
		return NewNoop(), nil
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry config: %w", err)
	}

	ctx := context.Background()
	res, err := sdkresource.New(ctx, sdkresource.WithAttributes(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to build telemetry resource: %w", err)
	}

	readers, err := createMetricReaders(cfg)
	if err != nil {
		return nil, err
	}
	meterOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	for _, r := range readers {
		meterOpts = append(meterOpts, sdkmetric.WithReader(r))
	}
	meterProvider := sdkmetric.NewMeterProvider(meterOpts...)

	traceExporters, err := createTraceExporters(cfg)
	if err != nil {
		return nil, err
	}
	tracerOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SampleRate)),
	}
	for _, exp := range traceExporters {
		tracerOpts = append(tracerOpts, sdktrace.WithBatcher(exp,
			sdktrace.WithBatchTimeout(cfg.BatchTimeout),
			sdktrace.WithMaxQueueSize(cfg.MaxQueueSize),
			sdktrace.WithMaxExportBatchSize(cfg.MaxExportBatchSize),
		))
	}
	tracerProvider := sdktrace.NewTracerProvider(tracerOpts...)

	p := &TelemetryProvider{
		config:         cfg,
		meterProvider:  meterProvider,
		tracerProvider: tracerProvider,
		meter:          meterProvider.Meter("pagecache"),
		tracer:         tracerProvider.Tracer("pagecache"),
	}
	if cfg.HasExporter("prometheus") {
		p.promHandler = promhttp.Handler()
	}
	return p, nil
}

// PrometheusHandler returns the HTTP handler serving this provider's
// Prometheus exposition, or nil if the "prometheus" exporter isn't
// configured. Callers mount it on their own listener (spec.md names no
// metrics endpoint, so this build doesn't open one unasked).
func (p *TelemetryProvider) PrometheusHandler() http.Handler {
	return p.promHandler
}

func (p *TelemetryProvider) histogram(name string) metric.Float64Histogram {
	if h, ok := p.histograms.Load(name); ok {
		return h.(metric.Float64Histogram)
	}
	h, err := p.meter.Float64Histogram(name)
	if err != nil {
		h, _ = p.meter.Float64Histogram(name + ".fallback")
	}
	actual, _ := p.histograms.LoadOrStore(name, h)
	return actual.(metric.Float64Histogram)
}

func (p *TelemetryProvider) counter(name string) metric.Int64Counter {
	if c, ok := p.counters.Load(name); ok {
		return c.(metric.Int64Counter)
	}
	c, err := p.meter.Int64Counter(name)
	if err != nil {
		c, _ = p.meter.Int64Counter(name + ".fallback")
	}
	actual, _ := p.counters.LoadOrStore(name, c)
	return actual.(metric.Int64Counter)
}

// RecordHistogram records a histogram value with optional attributes.
func (p *TelemetryProvider) RecordHistogram(ctx context.Context, name string, value float64, attrs ...attribute.KeyValue) {
	if ctx == nil {
		ctx = context.Background()
	}
	p.histogram(name).Record(ctx, value, metric.WithAttributes(attrs...))
}

// RecordCounter records a counter increment with optional attributes.
func (p *TelemetryProvider) RecordCounter(ctx context.Context, name string, value int64, attrs ...attribute.KeyValue) {
	if ctx == nil {
		ctx = context.Background()
	}
	p.counter(name).Add(ctx, value, metric.WithAttributes(attrs...))
}

// StartSpan creates a new tracing span with the given name and attributes.
func (p *TelemetryProvider) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, oteltrace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	return p.tracer.Start(ctx, name, oteltrace.WithAttributes(attrs...))
}

// Shutdown flushes and shuts down both providers.
func (p *TelemetryProvider) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := p.tracerProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("tracer provider shutdown: %w", err)
	}
	if err := p.meterProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("meter provider shutdown: %w", err)
	}
	return nil
}
