package telemetry

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricInstruments holds cached metric instruments for efficient recording
type MetricInstruments struct {
	meter      metric.Meter
	counters   map[string]metric.Float64Counter
	histograms map[string]metric.Float64Histogram
	mu         sync.RWMutex
}

// NewMetricInstruments creates an instrument cache on meter.
func NewMetricInstruments(meter metric.Meter) *MetricInstruments {
	return &MetricInstruments{
		meter:      meter,
		counters:   make(map[string]metric.Float64Counter),
		histograms: make(map[string]metric.Float64Histogram),
	}
}

// Record dispatches value to the instrument kind declared for name.
// Undeclared metrics are recorded as counters.
func (m *MetricInstruments) Record(ctx context.Context, name string, value float64, attrs ...attribute.KeyValue) error {
	def, _ := LookupMetric(name)
	if def.Type == TypeHistogram {
		return m.RecordHistogram(ctx, def, name, value, metric.WithAttributes(attrs...))
	}
	return m.RecordCounter(ctx, def, name, value, metric.WithAttributes(attrs...))
}

// RecordCounter increments a counter metric
func (m *MetricInstruments) RecordCounter(ctx context.Context, def MetricDefinition, name string, value float64, opts ...metric.AddOption) error {
	m.mu.RLock()
	counter, exists := m.counters[name]
	m.mu.RUnlock()

	if !exists {
		m.mu.Lock()
		// Double-check after acquiring write lock
		if counter, exists = m.counters[name]; !exists {
			var err error
			counter, err = m.meter.Float64Counter(name,
				metric.WithDescription(def.Help),
				metric.WithUnit(def.Unit),
			)
			if err != nil {
				m.mu.Unlock()
				return fmt.Errorf("failed to create counter %s: %w", name, err)
			}
			m.counters[name] = counter
		}
		m.mu.Unlock()
	}

	counter.Add(ctx, value, opts...)
	return nil
}

// RecordHistogram records a value distribution (like delays)
func (m *MetricInstruments) RecordHistogram(ctx context.Context, def MetricDefinition, name string, value float64, opts ...metric.RecordOption) error {
	m.mu.RLock()
	histogram, exists := m.histograms[name]
	m.mu.RUnlock()

	if !exists {
		m.mu.Lock()
		if histogram, exists = m.histograms[name]; !exists {
			instOpts := []metric.Float64HistogramOption{
				metric.WithDescription(def.Help),
				metric.WithUnit(def.Unit),
			}
			if len(def.Buckets) > 0 {
				instOpts = append(instOpts, metric.WithExplicitBucketBoundaries(def.Buckets...))
			}
			var err error
			histogram, err = m.meter.Float64Histogram(name, instOpts...)
			if err != nil {
				m.mu.Unlock()
				return fmt.Errorf("failed to create histogram %s: %w", name, err)
			}
			m.histograms[name] = histogram
		}
		m.mu.Unlock()
	}

	histogram.Record(ctx, value, opts...)
	return nil
}

// labelsToAttributes converts a label map to string attributes.
func labelsToAttributes(labels map[string]string) []attribute.KeyValue {
	if len(labels) == 0 {
		return nil
	}
	attrs := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		attrs = append(attrs, attribute.String(k, v))
	}
	return attrs
}
