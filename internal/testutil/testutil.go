// Package testutil holds logger and telemetry doubles shared by package tests.
package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/itsneelabh/gomind-mas/core"
)

// LogEntry is one captured log call.
type LogEntry struct {
	Level   string
	Message string
	Fields  map[string]interface{}
}

// TestLogger captures logs for verification
type TestLogger struct {
	mu   sync.Mutex
	logs []LogEntry
}

func (t *TestLogger) record(level, msg string, fields map[string]interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.logs = append(t.logs, LogEntry{Level: level, Message: msg, Fields: fields})
}

func (t *TestLogger) Info(msg string, fields map[string]interface{}) {
	t.record("INFO", msg, fields)
}

func (t *TestLogger) Error(msg string, fields map[string]interface{}) {
	t.record("ERROR", msg, fields)
}

func (t *TestLogger) Warn(msg string, fields map[string]interface{}) {
	t.record("WARN", msg, fields)
}

func (t *TestLogger) Debug(msg string, fields map[string]interface{}) {
	t.record("DEBUG", msg, fields)
}

// Logs returns a copy of every captured entry.
func (t *TestLogger) Logs() []LogEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]LogEntry, len(t.logs))
	copy(out, t.logs)
	return out
}

func (t *TestLogger) GetLogsByOperation(operation string) []LogEntry {
	var result []LogEntry
	for _, log := range t.Logs() {
		if op, exists := log.Fields["operation"]; exists && op == operation {
			result = append(result, log)
		}
	}
	return result
}

func (t *TestLogger) GetLogsByLevel(level string) []LogEntry {
	var result []LogEntry
	for _, log := range t.Logs() {
		if log.Level == level {
			result = append(result, log)
		}
	}
	return result
}

func (t *TestLogger) HasLogWithMessage(message string) bool {
	for _, log := range t.Logs() {
		if strings.Contains(log.Message, message) {
			return true
		}
	}
	return false
}

// MetricPoint is one RecordMetric call.
type MetricPoint struct {
	Name   string
	Value  float64
	Labels map[string]string
}

// RecordedSpan is a span started through RecordingTelemetry.
type RecordedSpan struct {
	Name       string
	Attributes map[string]interface{}
	Errors     []error
	Ended      bool
}

// RecordingTelemetry is an in-memory core.Telemetry.
type RecordingTelemetry struct {
	mu      sync.Mutex
	spans   []*RecordedSpan
	metrics []MetricPoint
}

func (r *RecordingTelemetry) StartSpan(ctx context.Context, name string) (context.Context, core.Span) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := &RecordedSpan{Name: name, Attributes: make(map[string]interface{})}
	r.spans = append(r.spans, s)
	return ctx, &recordingSpan{owner: r, span: s}
}

func (r *RecordingTelemetry) RecordMetric(name string, value float64, labels map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = append(r.metrics, MetricPoint{Name: name, Value: value, Labels: labels})
}

// Metrics returns every point recorded under name.
func (r *RecordingTelemetry) Metrics(name string) []MetricPoint {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []MetricPoint
	for _, m := range r.metrics {
		if m.Name == name {
			out = append(out, m)
		}
	}
	return out
}

// Spans returns every span started under name.
func (r *RecordingTelemetry) Spans(name string) []RecordedSpan {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []RecordedSpan
	for _, s := range r.spans {
		if s.Name == name {
			out = append(out, *s)
		}
	}
	return out
}

type recordingSpan struct {
	owner *RecordingTelemetry
	span  *RecordedSpan
}

func (s *recordingSpan) End() {
	s.owner.mu.Lock()
	defer s.owner.mu.Unlock()
	s.span.Ended = true
}

func (s *recordingSpan) SetAttribute(key string, value interface{}) {
	s.owner.mu.Lock()
	defer s.owner.mu.Unlock()
	s.span.Attributes[key] = value
}

func (s *recordingSpan) RecordError(err error) {
	s.owner.mu.Lock()
	defer s.owner.mu.Unlock()
	s.span.Errors = append(s.span.Errors, err)
}
