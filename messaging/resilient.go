package messaging

import (
	"context"

	"github.com/itsneelabh/gomind-mas/core"
	"github.com/itsneelabh/gomind-mas/resilience"
)

// FallbackFunc handles a message whose primary delivery failed for good.
// Returning nil means the backup path took the message.
type FallbackFunc func(ctx context.Context, target, body string, cause error) error

// ResilientMessenger retries sends through a BackoffExecutor and hands
// terminal failures to an optional fallback.
type ResilientMessenger struct {
	next      Messenger
	executor  *resilience.BackoffExecutor
	fallback  FallbackFunc
	logger    core.Logger
	telemetry core.Telemetry
}

// ResilientOption customises a ResilientMessenger.
type ResilientOption func(*ResilientMessenger)

// WithFallback sets the backup path.
func WithFallback(fn FallbackFunc) ResilientOption {
	return func(m *ResilientMessenger) {
		m.fallback = fn
	}
}

// WithLogger sets the logger, scoped to framework/messaging.
func WithLogger(logger core.Logger) ResilientOption {
	return func(m *ResilientMessenger) {
		m.logger = core.ComponentLogger(logger, "framework/messaging")
	}
}

// WithTelemetry sets the telemetry sink.
func WithTelemetry(t core.Telemetry) ResilientOption {
	return func(m *ResilientMessenger) {
		m.telemetry = core.TelemetryOrNoOp(t)
	}
}

// NewResilientMessenger wraps next with executor.
func NewResilientMessenger(next Messenger, executor *resilience.BackoffExecutor, opts ...ResilientOption) *ResilientMessenger {
	m := &ResilientMessenger{
		next:      next,
		executor:  executor,
		logger:    &core.NoOpLogger{},
		telemetry: &core.NoOpTelemetry{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Send delivers body to target, retrying with exponential backoff. When
// every attempt fails and a fallback is set, the fallback decides the
// outcome; otherwise the error matches core.ErrMaxRetriesExceeded and the
// last *core.CommunicationError.
func (m *ResilientMessenger) Send(ctx context.Context, target, body string) error {
	err := m.executor.Execute(ctx, func() error {
		return m.next.Send(ctx, target, body)
	})
	if err == nil {
		m.record(target, "delivered")
		return nil
	}

	if m.fallback == nil {
		m.logger.Error("Message delivery failed", map[string]interface{}{
			"operation": "send_message",
			"target":    target,
			"error":     err.Error(),
		})
		m.record(target, "failed")
		return err
	}

	m.logger.Warn("Primary delivery exhausted, using fallback", map[string]interface{}{
		"operation": "send_message",
		"target":    target,
		"error":     err.Error(),
	})
	if ferr := m.fallback(ctx, target, body, err); ferr != nil {
		m.record(target, "failed")
		return ferr
	}
	m.record(target, "fallback")
	return nil
}

func (m *ResilientMessenger) record(target, outcome string) {
	m.telemetry.RecordMetric("messaging.sends", 1, map[string]string{
		"target":  target,
		"outcome": outcome,
	})
}
