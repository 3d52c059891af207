package resilience

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/itsneelabh/gomind-mas/core"
)

// BackoffConfig configures exponential backoff.
// Delay before retry n (1-based) is BaseDelay * 2^(n-1), capped at MaxDelay
// when MaxDelay > 0.
type BackoffConfig struct {
	Operation   string
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultBackoffConfig returns four attempts starting at 500ms.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Operation:   "send_message",
		MaxAttempts: 4,
		BaseDelay:   500 * time.Millisecond,
	}
}

// BackoffConfigFrom converts the configuration section into a BackoffConfig.
func BackoffConfigFrom(rc core.RetryConfig) BackoffConfig {
	cfg := DefaultBackoffConfig()
	cfg.MaxAttempts = rc.MaxAttempts
	cfg.BaseDelay = rc.BaseDelay
	cfg.MaxDelay = rc.MaxDelay
	return cfg
}

// Validate checks the bounds NewBackoffExecutor relies on.
func (c BackoffConfig) Validate() error {
	switch {
	case c.MaxAttempts < 1:
		return &core.FrameworkError{
			Op: "resilience.NewBackoffExecutor", Kind: "configuration",
			Message: fmt.Sprintf("max attempts must be >= 1, got %d", c.MaxAttempts),
			Err:     core.ErrInvalidConfiguration,
		}
	case c.BaseDelay < 0:
		return &core.FrameworkError{
			Op: "resilience.NewBackoffExecutor", Kind: "configuration",
			Message: fmt.Sprintf("base delay must be >= 0, got %s", c.BaseDelay),
			Err:     core.ErrInvalidConfiguration,
		}
	case c.MaxDelay < 0:
		return &core.FrameworkError{
			Op: "resilience.NewBackoffExecutor", Kind: "configuration",
			Message: fmt.Sprintf("max delay must be >= 0, got %s", c.MaxDelay),
			Err:     core.ErrInvalidConfiguration,
		}
	}
	return nil
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// BackoffExecutor retries an operation with exponential backoff.
// It holds no per-call state; one executor may serve concurrent callers.
type BackoffExecutor struct {
	config    BackoffConfig
	logger    core.Logger
	telemetry core.Telemetry
	sleep     Sleeper
	retryable func(error) bool
}

// ExecutorOption customises a BackoffExecutor.
type ExecutorOption func(*BackoffExecutor)

// WithLogger sets the logger, scoped to framework/resilience.
func WithLogger(logger core.Logger) ExecutorOption {
	return func(e *BackoffExecutor) {
		e.logger = core.ComponentLogger(logger, "framework/resilience")
	}
}

// WithTelemetry sets the telemetry sink.
func WithTelemetry(t core.Telemetry) ExecutorOption {
	return func(e *BackoffExecutor) {
		e.telemetry = core.TelemetryOrNoOp(t)
	}
}

// WithSleeper replaces the wait between attempts.
func WithSleeper(s Sleeper) ExecutorOption {
	return func(e *BackoffExecutor) {
		if s != nil {
			e.sleep = s
		}
	}
}

// WithRetryable installs a classifier; errors it rejects are returned
// without further attempts.
func WithRetryable(fn func(error) bool) ExecutorOption {
	return func(e *BackoffExecutor) {
		e.retryable = fn
	}
}

// NewBackoffExecutor validates cfg and builds an executor.
func NewBackoffExecutor(cfg BackoffConfig, opts ...ExecutorOption) (*BackoffExecutor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Operation == "" {
		cfg.Operation = "operation"
	}
	e := &BackoffExecutor{
		config:    cfg,
		logger:    &core.NoOpLogger{},
		telemetry: &core.NoOpTelemetry{},
		sleep:     sleepContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the executor configuration.
func (e *BackoffExecutor) Config() BackoffConfig {
	return e.config
}

// Delay returns base * 2^(attempt-1), capped at ceiling when ceiling > 0.
// Attempts below 1 and non-positive bases yield zero.
func Delay(base time.Duration, attempt int, ceiling time.Duration) time.Duration {
	if attempt < 1 || base <= 0 {
		return 0
	}
	d := base
	for i := 1; i < attempt; i++ {
		if ceiling > 0 && d >= ceiling {
			return ceiling
		}
		if d > math.MaxInt64/2 {
			d = math.MaxInt64
			break
		}
		d *= 2
	}
	if ceiling > 0 && d > ceiling {
		return ceiling
	}
	return d
}

// Execute runs op until it succeeds or MaxAttempts is reached.
func (e *BackoffExecutor) Execute(ctx context.Context, op func() error) error {
	_, err := Execute(ctx, e, func() (struct{}, error) {
		return struct{}{}, op()
	})
	return err
}

// Execute runs op through e and returns its value. The operation runs at
// most MaxAttempts times with no wait before the first call. On final
// failure the returned error matches both core.ErrMaxRetriesExceeded and
// the last error from op.
func Execute[T any](ctx context.Context, e *BackoffExecutor, op func() (T, error)) (T, error) {
	var zero T
	cfg := e.config

	ctx, span := e.telemetry.StartSpan(ctx, "resilience.execute")
	defer span.End()
	span.SetAttribute("operation", cfg.Operation)
	span.SetAttribute("max_attempts", cfg.MaxAttempts)

	attempt := 0
	for {
		value, err := op()
		if err == nil {
			span.SetAttribute("attempts", attempt+1)
			e.telemetry.RecordMetric("retry.success", 1, map[string]string{
				"operation":     cfg.Operation,
				"final_attempt": strconv.Itoa(attempt + 1),
			})
			if attempt > 0 {
				e.logger.Info("Operation succeeded after retry", map[string]interface{}{
					"operation": cfg.Operation,
					"attempt":   attempt + 1,
				})
			}
			return value, nil
		}

		attempt++
		span.SetAttribute("attempts", attempt)

		if e.retryable != nil && !e.retryable(err) {
			e.logger.Error("Operation failed with non-retryable error", map[string]interface{}{
				"operation": cfg.Operation,
				"attempt":   attempt,
				"error":     err.Error(),
			})
			e.telemetry.RecordMetric("retry.failures", 1, map[string]string{
				"operation":  cfg.Operation,
				"error_type": "non_retryable",
			})
			span.RecordError(err)
			return zero, err
		}

		if attempt >= cfg.MaxAttempts {
			e.logger.Error("Operation failed after all retry attempts", map[string]interface{}{
				"operation":    cfg.Operation,
				"attempts":     attempt,
				"max_attempts": cfg.MaxAttempts,
				"error":        err.Error(),
			})
			e.telemetry.RecordMetric("retry.failures", 1, map[string]string{
				"operation":  cfg.Operation,
				"error_type": "max_attempts",
			})
			span.RecordError(err)
			return zero, fmt.Errorf("%s failed after %d attempts: %w: %w",
				cfg.Operation, attempt, core.ErrMaxRetriesExceeded, err)
		}

		delay := Delay(cfg.BaseDelay, attempt, cfg.MaxDelay)
		e.logger.Warn("Operation failed, retrying", map[string]interface{}{
			"operation":    cfg.Operation,
			"attempt":      attempt,
			"max_attempts": cfg.MaxAttempts,
			"delay_ms":     delay.Milliseconds(),
			"error":        err.Error(),
		})
		e.telemetry.RecordMetric("retry.attempts", 1, map[string]string{
			"operation":      cfg.Operation,
			"attempt_number": strconv.Itoa(attempt),
		})
		e.telemetry.RecordMetric("retry.backoff_ms", float64(delay.Milliseconds()), map[string]string{
			"operation": cfg.Operation,
		})

		if serr := e.sleep(ctx, delay); serr != nil {
			e.logger.Warn("Retry wait interrupted", map[string]interface{}{
				"operation": cfg.Operation,
				"attempt":   attempt,
				"error":     serr.Error(),
			})
			span.RecordError(serr)
			return zero, fmt.Errorf("%s interrupted after %d attempts (last error: %v): %w: %w",
				cfg.Operation, attempt, err, core.ErrContextCanceled, serr)
		}
	}
}

// sleepContext waits for d or returns ctx.Err() when ctx is done first.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
