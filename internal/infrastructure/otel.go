package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.28.0"
	"go.opentelemetry.io/otel/trace"

	"tabtweak/internal/config"
)

const (
	ServiceName = "tabtweak"
	MeterName   = "tabtweak"
)

// OTelConfig holds OpenTelemetry configuration
type OTelConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	EnableTracing  bool
	// TraceWriter receives spans as JSON. Nil keeps spans in-process only.
	TraceWriter io.Writer
	SampleRatio float64
	// Registry receives the Prometheus metrics. Nil uses a fresh registry.
	Registry *prom.Registry
}

// OTelProviders holds the OpenTelemetry providers
type OTelProviders struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	Tracer         trace.Tracer
	Meter          metric.Meter
	PrometheusHTTP http.Handler
	Logger         *slog.Logger
}

// NewOTelConfig derives the exporter setup from the tracing configuration
func NewOTelConfig(cfg config.TracingConfig) *OTelConfig {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development"
	}
	oc := &OTelConfig{
		ServiceName:    ServiceName,
		ServiceVersion: config.AppVersion,
		Environment:    env,
		EnableTracing:  cfg.Enabled,
		SampleRatio:    cfg.SampleRatio,
	}
	if cfg.Stdout {
		oc.TraceWriter = os.Stdout
	}
	return oc
}

// InitializeOTel installs global tracer and meter providers. Metrics are
// always exported through Prometheus.
func InitializeOTel(cfg *OTelConfig, logger *slog.Logger) (*OTelProviders, error) {
	if cfg == nil {
		cfg = NewOTelConfig(config.Default().Tracing)
	}
	if logger == nil {
		logger = GetLogger()
	}
	ctx := context.Background()

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.DeploymentEnvironmentName(cfg.Environment),
	)

	providers := &OTelProviders{Logger: logger}

	if cfg.EnableTracing {
		opts := []sdktrace.TracerProviderOption{
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		}
		if cfg.TraceWriter != nil {
			exporter, err := stdouttrace.New(stdouttrace.WithWriter(cfg.TraceWriter))
			if err != nil {
				return nil, fmt.Errorf("failed to create trace exporter: %w", err)
			}
			opts = append(opts, sdktrace.WithBatcher(exporter))
		}
		tp := sdktrace.NewTracerProvider(opts...)
		providers.TracerProvider = tp
		providers.Tracer = tp.Tracer(MeterName, trace.WithInstrumentationVersion(cfg.ServiceVersion))
		otel.SetTracerProvider(tp)
	} else {
		providers.Tracer = otel.Tracer(MeterName)
	}

	registry := cfg.Registry
	if registry == nil {
		registry = prom.NewRegistry()
	}
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(exporter))
	providers.MeterProvider = mp
	providers.Meter = mp.Meter(MeterName, metric.WithInstrumentationVersion(cfg.ServiceVersion))
	providers.PrometheusHTTP = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	otel.SetMeterProvider(mp)

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.InfoContext(ctx, "OpenTelemetry initialized",
		slog.String("service", cfg.ServiceName),
		slog.Bool("tracing_enabled", cfg.EnableTracing),
		slog.Float64("sample_ratio", cfg.SampleRatio))

	return providers, nil
}

// Shutdown flushes and stops the providers
func (p *OTelProviders) Shutdown(ctx context.Context) error {
	var errs []error
	if p.TracerProvider != nil {
		if err := p.TracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider shutdown: %w", err))
		}
	}
	if p.MeterProvider != nil {
		if err := p.MeterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}

// TweakMetrics holds the application instruments
type TweakMetrics struct {
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram

	PipelineRuns      metric.Int64Counter
	PipelineDuration  metric.Float64Histogram
	PipelineRows      metric.Int64Counter
	OperationsTotal   metric.Int64Counter
	OperationsActive  metric.Int64UpDownCounter
	OperationDuration metric.Float64Histogram

	CacheHits   metric.Int64Counter
	CacheMisses metric.Int64Counter
}

// CreateTweakMetrics registers the application instruments on meter
func CreateTweakMetrics(meter metric.Meter) (*TweakMetrics, error) {
	m := &TweakMetrics{}
	var err error
	counter := func(name, desc string) metric.Int64Counter {
		if err != nil {
			return nil
		}
		var c metric.Int64Counter
		c, err = meter.Int64Counter(name, metric.WithDescription(desc))
		return c
	}
	histogram := func(name, desc string) metric.Float64Histogram {
		if err != nil {
			return nil
		}
		var h metric.Float64Histogram
		h, err = meter.Float64Histogram(name, metric.WithDescription(desc), metric.WithUnit("s"))
		return h
	}

	m.HTTPRequestsTotal = counter("http_requests_total", "Total number of HTTP requests")
	m.HTTPRequestDuration = histogram("http_request_duration_seconds", "HTTP request duration in seconds")
	m.PipelineRuns = counter("tweak_pipeline_runs_total", "Total number of tweak pipeline runs")
	m.PipelineDuration = histogram("tweak_pipeline_duration_seconds", "Tweak pipeline duration in seconds")
	m.PipelineRows = counter("tweak_pipeline_rows_total", "Rows passed through the tweak pipeline")
	m.OperationsTotal = counter("operation_executions_total", "Total number of operation executions")
	m.OperationDuration = histogram("operation_execution_duration_seconds", "Operation execution duration in seconds")
	m.CacheHits = counter("table_cache_hits_total", "Cleaned table cache hits")
	m.CacheMisses = counter("table_cache_misses_total", "Cleaned table cache misses")
	if err == nil {
		m.OperationsActive, err = meter.Int64UpDownCounter("operation_active_operations",
			metric.WithDescription("Number of running operations"))
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// RecordError records an error on the current span
func RecordError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// StatusAttr labels a measurement with its outcome
func StatusAttr(err error) attribute.KeyValue {
	if err != nil {
		return attribute.String("status", "failure")
	}
	return attribute.String("status", "success")
}
