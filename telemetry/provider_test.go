package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/itsneelabh/gomind-mas/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func init() {
	DeclareMetrics("telemetry_test", ModuleConfig{
		Metrics: []MetricDefinition{
			{Name: "test.calls", Type: TypeCounter, Help: "calls", Labels: []string{"outcome"}},
			{Name: "test.delay_ms", Type: TypeHistogram, Help: "delay", Unit: "ms", Buckets: []float64{1, 10, 100}},
		},
	})
}

func newTestProvider(t *testing.T) (*Provider, *tracetest.InMemoryExporter, *sdkmetric.ManualReader) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	reader := sdkmetric.NewManualReader()

	p, err := NewProvider(context.Background(),
		core.TelemetryConfig{Enabled: true, Exporter: core.ExporterNone, ServiceName: "test-service", SamplingRate: 1},
		WithSpanExporter(exporter),
		WithMetricReader(reader),
		WithServiceVersion("test"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })
	return p, exporter, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestProviderImplementsTelemetry(t *testing.T) {
	var _ core.Telemetry = (*Provider)(nil)
}

func TestProviderSpans(t *testing.T) {
	p, exporter, _ := newTestProvider(t)

	ctx, span := p.StartSpan(context.Background(), "bus.broadcast")
	span.SetAttribute("event.type", "urgent_order")
	span.SetAttribute("subscribers", 2)
	span.SetAttribute("accepted", true)
	span.SetAttribute("priority", core.PriorityHigh)
	span.RecordError(errors.New("boom"))

	_, child := p.StartSpan(ctx, "child")
	child.End()
	span.End()

	require.NoError(t, p.tracerProvider.ForceFlush(context.Background()))
	spans := exporter.GetSpans()
	require.Len(t, spans, 2)

	var parent tracetest.SpanStub
	for _, s := range spans {
		if s.Name == "bus.broadcast" {
			parent = s
		}
	}
	require.Equal(t, "bus.broadcast", parent.Name)
	assert.Equal(t, codes.Error, parent.Status.Code)
	assert.Contains(t, parent.Attributes, attribute.String("event.type", "urgent_order"))
	assert.Contains(t, parent.Attributes, attribute.Int("subscribers", 2))
	assert.Contains(t, parent.Attributes, attribute.Bool("accepted", true))
	assert.Contains(t, parent.Attributes, attribute.String("priority", "high"))
	require.Len(t, parent.Events, 1, "RecordError adds an exception event")

	for _, s := range spans {
		if s.Name == "child" {
			assert.Equal(t, parent.SpanContext.TraceID(), s.Parent.TraceID())
		}
	}
}

func TestProviderRecordMetric(t *testing.T) {
	p, _, reader := newTestProvider(t)

	p.RecordMetric("test.calls", 1, map[string]string{"outcome": "ok"})
	p.RecordMetric("test.calls", 2, map[string]string{"outcome": "ok"})
	p.RecordMetric("test.delay_ms", 5, nil)
	p.RecordMetric("test.undeclared", 1, nil)

	metrics := collect(t, reader)

	calls, ok := metrics["test.calls"]
	require.True(t, ok)
	sum, ok := calls.Data.(metricdata.Sum[float64])
	require.True(t, ok, "declared counter should be a sum")
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, 3.0, sum.DataPoints[0].Value)
	outcome, _ := sum.DataPoints[0].Attributes.Value("outcome")
	assert.Equal(t, "ok", outcome.AsString())

	delay, ok := metrics["test.delay_ms"]
	require.True(t, ok)
	hist, ok := delay.Data.(metricdata.Histogram[float64])
	require.True(t, ok, "declared histogram should be a histogram")
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(1), hist.DataPoints[0].Count)
	assert.Equal(t, []float64{1, 10, 100}, hist.DataPoints[0].Bounds)
	assert.Equal(t, "ms", delay.Unit)

	undeclared, ok := metrics["test.undeclared"]
	require.True(t, ok)
	_, ok = undeclared.Data.(metricdata.Sum[float64])
	assert.True(t, ok, "undeclared metrics fall back to counters")
}

func TestNewProviderExporters(t *testing.T) {
	t.Run("none", func(t *testing.T) {
		p, err := NewProvider(context.Background(), core.TelemetryConfig{Exporter: core.ExporterNone})
		require.NoError(t, err)
		assert.NoError(t, p.Shutdown(context.Background()))
	})

	t.Run("stdout", func(t *testing.T) {
		p, err := NewProvider(context.Background(), core.TelemetryConfig{Exporter: core.ExporterStdout})
		require.NoError(t, err)
		assert.NoError(t, p.Shutdown(context.Background()))
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := NewProvider(context.Background(), core.TelemetryConfig{Exporter: "zipkin"})
		require.Error(t, err)
		assert.ErrorIs(t, err, core.ErrInvalidConfiguration)
	})
}

func TestEndpointOptions(t *testing.T) {
	assert.Len(t, traceEndpointOptions("localhost:4318"), 2)
	assert.Len(t, traceEndpointOptions("http://collector:4318"), 1)
	assert.Len(t, metricEndpointOptions("localhost:4318"), 2)
	assert.Len(t, metricEndpointOptions("https://collector:4318"), 1)
}

func TestDeclareMetrics(t *testing.T) {
	def, ok := LookupMetric("test.delay_ms")
	require.True(t, ok)
	assert.Equal(t, TypeHistogram, def.Type)

	_, ok = LookupMetric("never.declared")
	assert.False(t, ok)

	assert.Contains(t, DeclaredModules(), "telemetry_test")
}

func TestEnableTelemetry(t *testing.T) {
	p, _, _ := newTestProvider(t)
	agent := core.NewBaseAgent("resource")
	EnableTelemetry(agent, p)
	assert.Same(t, p, agent.Telemetry)
}
