package telemetry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/itsneelabh/gomind-mas/core"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/itsneelabh/gomind-mas"

// Provider implements core.Telemetry with OpenTelemetry.
type Provider struct {
	tracer         trace.Tracer
	meter          metric.Meter
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	instruments    *MetricInstruments
	limiter        *CardinalityLimiter
	logger         core.Logger
}

type providerOptions struct {
	spanExporter   sdktrace.SpanExporter
	metricReader   sdkmetric.Reader
	serviceVersion string
	logger         core.Logger
	limits         map[string]int
}

// Option customises a Provider.
type Option func(*providerOptions)

// WithSpanExporter replaces the exporter chosen from configuration.
func WithSpanExporter(exp sdktrace.SpanExporter) Option {
	return func(o *providerOptions) { o.spanExporter = exp }
}

// WithMetricReader replaces the metric reader chosen from configuration.
func WithMetricReader(r sdkmetric.Reader) Option {
	return func(o *providerOptions) { o.metricReader = r }
}

// WithCardinalityLimits replaces DefaultCardinalityLimits.
func WithCardinalityLimits(limits map[string]int) Option {
	return func(o *providerOptions) { o.limits = limits }
}

// WithServiceVersion sets the service.version resource attribute.
func WithServiceVersion(v string) Option {
	return func(o *providerOptions) { o.serviceVersion = v }
}

// WithLogger sets the logger used for instrument errors.
func WithLogger(l core.Logger) Option {
	return func(o *providerOptions) { o.logger = l }
}

// NewProvider builds tracer and meter providers for cfg.Exporter:
// "stdout" pretty-prints spans, "otlp" ships spans and metrics over HTTP to
// cfg.Endpoint, and "none" keeps everything in process.
func NewProvider(ctx context.Context, cfg core.TelemetryConfig, opts ...Option) (*Provider, error) {
	o := &providerOptions{serviceVersion: "development", limits: DefaultCardinalityLimits}
	for _, opt := range opts {
		opt(o)
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "mas"
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(serviceName),
		semconv.ServiceVersionKey.String(o.serviceVersion),
	)

	spanExporter := o.spanExporter
	metricReader := o.metricReader
	var err error

	switch cfg.Exporter {
	case core.ExporterStdout:
		if spanExporter == nil {
			spanExporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
			if err != nil {
				return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
			}
		}
	case core.ExporterOTLP:
		if spanExporter == nil {
			spanExporter, err = otlptracehttp.New(ctx, traceEndpointOptions(cfg.Endpoint)...)
			if err != nil {
				return nil, fmt.Errorf("failed to create otlp trace exporter: %w", err)
			}
		}
		if metricReader == nil {
			metricExporter, err := otlpmetrichttp.New(ctx, metricEndpointOptions(cfg.Endpoint)...)
			if err != nil {
				return nil, fmt.Errorf("failed to create otlp metric exporter: %w", err)
			}
			metricReader = sdkmetric.NewPeriodicReader(metricExporter)
		}
	case "", core.ExporterNone:
	default:
		return nil, core.NewFrameworkError("telemetry.NewProvider", "configuration",
			fmt.Errorf("unknown exporter %q: %w", cfg.Exporter, core.ErrInvalidConfiguration))
	}

	sampling := cfg.SamplingRate
	if sampling <= 0 || sampling > 1 {
		sampling = 1
	}

	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampling))),
	}
	if spanExporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(spanExporter))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)

	mpOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	if metricReader != nil {
		mpOpts = append(mpOpts, sdkmetric.WithReader(metricReader))
	}
	mp := sdkmetric.NewMeterProvider(mpOpts...)

	meter := mp.Meter(instrumentationName)
	logger := o.logger
	if logger == nil {
		logger = &core.NoOpLogger{}
	}

	return &Provider{
		tracer:         tp.Tracer(instrumentationName),
		meter:          meter,
		tracerProvider: tp,
		meterProvider:  mp,
		instruments:    NewMetricInstruments(meter),
		limiter:        NewCardinalityLimiter(o.limits),
		logger:         core.ComponentLogger(logger, "framework/telemetry"),
	}, nil
}

func traceEndpointOptions(endpoint string) []otlptracehttp.Option {
	if strings.Contains(endpoint, "://") {
		return []otlptracehttp.Option{otlptracehttp.WithEndpointURL(endpoint)}
	}
	return []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint), otlptracehttp.WithInsecure()}
}

func metricEndpointOptions(endpoint string) []otlpmetrichttp.Option {
	if strings.Contains(endpoint, "://") {
		return []otlpmetrichttp.Option{otlpmetrichttp.WithEndpointURL(endpoint)}
	}
	return []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(endpoint), otlpmetrichttp.WithInsecure()}
}

// StartSpan starts a new telemetry span
func (p *Provider) StartSpan(ctx context.Context, name string) (context.Context, core.Span) {
	ctx, span := p.tracer.Start(ctx, name)
	return ctx, &otelSpan{span: span}
}

// RecordMetric records value against the instrument declared for name.
func (p *Provider) RecordMetric(name string, value float64, labels map[string]string) {
	if err := p.instruments.Record(context.Background(), name, value, labelsToAttributes(p.limiter.Apply(name, labels))...); err != nil {
		p.logger.Warn("Failed to record metric", map[string]interface{}{
			"operation": "record_metric",
			"metric":    name,
			"error":     err.Error(),
		})
	}
}

// Shutdown flushes and stops both providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	return errors.Join(
		p.tracerProvider.Shutdown(ctx),
		p.meterProvider.Shutdown(ctx),
	)
}

// otelSpan wraps an OpenTelemetry span to implement core.Span
type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) End() {
	s.span.End()
}

func (s *otelSpan) SetAttribute(key string, value interface{}) {
	switch v := value.(type) {
	case string:
		s.span.SetAttributes(attribute.String(key, v))
	case int:
		s.span.SetAttributes(attribute.Int(key, v))
	case int64:
		s.span.SetAttributes(attribute.Int64(key, v))
	case float64:
		s.span.SetAttributes(attribute.Float64(key, v))
	case bool:
		s.span.SetAttributes(attribute.Bool(key, v))
	case fmt.Stringer:
		s.span.SetAttributes(attribute.String(key, v.String()))
	default:
		s.span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", v)))
	}
}

func (s *otelSpan) RecordError(err error) {
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

// EnableTelemetry installs p on agent.
func EnableTelemetry(agent *core.BaseAgent, p *Provider) {
	agent.SetTelemetry(p)
	agent.Logger.Info("Telemetry enabled", map[string]interface{}{
		"agent": agent.GetName(),
	})
}
