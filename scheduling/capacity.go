package scheduling

import (
	"context"
	"fmt"
	"strconv"

	"github.com/itsneelabh/gomind-mas/core"
)

// CapacityExceededError describes a rejected schedule.
type CapacityExceededError struct {
	TotalLoad   int
	MaxCapacity int
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("rejected: over capacity by %d hours (total %d, max %d)",
		e.TotalLoad-e.MaxCapacity, e.TotalLoad, e.MaxCapacity)
}

// Is matches core.ErrCapacityExceeded.
func (e *CapacityExceededError) Is(target error) bool {
	return target == core.ErrCapacityExceeded
}

// CapacityResult is the outcome of one capacity check. Schedule always holds
// what the scheduling function produced; Items returns it only when accepted.
type CapacityResult struct {
	Schedule    Schedule
	TotalLoad   int
	MaxCapacity int
	Accepted    bool
	Excess      int
}

// Items returns the accepted schedule, or an empty non-nil schedule when
// the result was rejected.
func (r *CapacityResult) Items() Schedule {
	if !r.Accepted {
		return Schedule{}
	}
	return r.Schedule
}

// Err returns nil for an accepted result and a *CapacityExceededError otherwise.
func (r *CapacityResult) Err() error {
	if r.Accepted {
		return nil
	}
	return &CapacityExceededError{TotalLoad: r.TotalLoad, MaxCapacity: r.MaxCapacity}
}

// CapacityValidator gates scheduling results against a ceiling in hours.
// It never retries and never repairs a result.
type CapacityValidator struct {
	maxCapacity int
	logger      core.Logger
	telemetry   core.Telemetry
}

// ValidatorOption customises a CapacityValidator.
type ValidatorOption func(*CapacityValidator)

// WithLogger sets the logger, scoped to framework/scheduling.
func WithLogger(logger core.Logger) ValidatorOption {
	return func(v *CapacityValidator) {
		v.logger = core.ComponentLogger(logger, "framework/scheduling")
	}
}

// WithTelemetry sets the telemetry sink.
func WithTelemetry(t core.Telemetry) ValidatorOption {
	return func(v *CapacityValidator) {
		v.telemetry = core.TelemetryOrNoOp(t)
	}
}

// NewCapacityValidator builds a validator with the given ceiling.
func NewCapacityValidator(maxCapacity int, opts ...ValidatorOption) (*CapacityValidator, error) {
	if maxCapacity < 0 {
		return nil, &core.FrameworkError{
			Op:      "scheduling.NewCapacityValidator",
			Kind:    "configuration",
			Message: fmt.Sprintf("max capacity must be >= 0, got %d", maxCapacity),
			Err:     core.ErrInvalidConfiguration,
		}
	}
	v := &CapacityValidator{
		maxCapacity: maxCapacity,
		logger:      &core.NoOpLogger{},
		telemetry:   &core.NoOpTelemetry{},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// MaxCapacity returns the ceiling.
func (v *CapacityValidator) MaxCapacity() int {
	return v.maxCapacity
}

// Check runs fn once and classifies its result. The only error returned is
// one produced by fn itself; an over-capacity result is reported through
// the CapacityResult, not as an error.
func (v *CapacityValidator) Check(ctx context.Context, fn ScheduleFunc) (*CapacityResult, error) {
	ctx, span := v.telemetry.StartSpan(ctx, "scheduling.validate")
	defer span.End()

	schedule, err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		v.logger.Error("Scheduling function failed", map[string]interface{}{
			"operation": "validate_capacity",
			"error":     err.Error(),
		})
		return nil, err
	}

	return v.evaluate(span, schedule), nil
}

// Evaluate classifies an already computed schedule.
func (v *CapacityValidator) Evaluate(schedule Schedule) *CapacityResult {
	return v.evaluate(&core.NoOpSpan{}, schedule)
}

func (v *CapacityValidator) evaluate(span core.Span, schedule Schedule) *CapacityResult {
	total := schedule.TotalLoad()
	result := &CapacityResult{
		Schedule:    schedule,
		TotalLoad:   total,
		MaxCapacity: v.maxCapacity,
		Accepted:    total <= v.maxCapacity,
	}

	decision := "accepted"
	if !result.Accepted {
		decision = "rejected"
		result.Excess = total - v.maxCapacity
		v.logger.Warn("Schedule exceeds capacity, discarding result", map[string]interface{}{
			"operation":    "validate_capacity",
			"total_load":   total,
			"max_capacity": v.maxCapacity,
			"excess":       result.Excess,
			"jobs":         len(schedule),
		})
	} else {
		v.logger.Info("Schedule within capacity", map[string]interface{}{
			"operation":    "validate_capacity",
			"total_load":   total,
			"max_capacity": v.maxCapacity,
			"jobs":         len(schedule),
		})
	}

	span.SetAttribute("total_load", total)
	span.SetAttribute("max_capacity", v.maxCapacity)
	span.SetAttribute("decision", decision)
	v.telemetry.RecordMetric("capacity.decisions", 1, map[string]string{
		"decision":     decision,
		"max_capacity": strconv.Itoa(v.maxCapacity),
	})
	v.telemetry.RecordMetric("capacity.total_load", float64(total), map[string]string{
		"decision": decision,
	})
	return result
}

// Validate runs fn and returns its schedule unchanged when the total load is
// within capacity, or an empty schedule when it is not.
func (v *CapacityValidator) Validate(ctx context.Context, fn ScheduleFunc) (Schedule, error) {
	result, err := v.Check(ctx, fn)
	if err != nil {
		return nil, err
	}
	return result.Items(), nil
}

// Guard wraps fn so every call is gated by v.
func Guard(fn ScheduleFunc, v *CapacityValidator) ScheduleFunc {
	return func(ctx context.Context) (Schedule, error) {
		return v.Validate(ctx, fn)
	}
}
