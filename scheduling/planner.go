package scheduling

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/itsneelabh/gomind-mas/core"
	"github.com/robfig/cron/v3"
)

// PlanHandler receives the result of a planning run. Exactly one of result
// and err is non-nil.
type PlanHandler func(result *CapacityResult, err error)

// Planner runs a scheduling function through a CapacityValidator, either on
// demand or on a cron expression.
type Planner struct {
	fn        ScheduleFunc
	validator *CapacityValidator
	handler   PlanHandler
	timeout   time.Duration
	logger    core.Logger

	parser cron.Parser

	mu      sync.Mutex
	c       *cron.Cron
	entryID cron.EntryID
	cancel  context.CancelFunc
	runs    int
}

// PlannerOption customises a Planner.
type PlannerOption func(*Planner)

// WithPlanHandler sets the callback invoked after every run.
func WithPlanHandler(h PlanHandler) PlannerOption {
	return func(p *Planner) { p.handler = h }
}

// WithRunTimeout bounds each scheduled run. Zero means no bound.
func WithRunTimeout(d time.Duration) PlannerOption {
	return func(p *Planner) { p.timeout = d }
}

// WithPlannerLogger sets the logger, scoped to framework/scheduling.
func WithPlannerLogger(logger core.Logger) PlannerOption {
	return func(p *Planner) {
		p.logger = core.ComponentLogger(logger, "framework/scheduling")
	}
}

// NewPlanner builds a planner for fn gated by validator.
func NewPlanner(fn ScheduleFunc, validator *CapacityValidator, opts ...PlannerOption) *Planner {
	p := &Planner{
		fn:        fn,
		validator: validator,
		logger:    &core.NoOpLogger{},
		parser:    cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RunOnce performs one planning run and reports it to the handler.
func (p *Planner) RunOnce(ctx context.Context) (*CapacityResult, error) {
	result, err := p.validator.Check(ctx, p.fn)

	p.mu.Lock()
	p.runs++
	run := p.runs
	p.mu.Unlock()

	if err != nil {
		p.logger.Error("Planning run failed", map[string]interface{}{
			"operation": "plan",
			"run":       run,
			"error":     err.Error(),
		})
	} else {
		p.logger.Info("Planning run complete", map[string]interface{}{
			"operation":  "plan",
			"run":        run,
			"accepted":   result.Accepted,
			"total_load": result.TotalLoad,
			"jobs":       len(result.Items()),
		})
	}
	if p.handler != nil {
		p.handler(result, err)
	}
	return result, err
}

// Runs returns the number of completed planning runs.
func (p *Planner) Runs() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.runs
}

// Start schedules RunOnce on spec (standard five-field cron or a descriptor
// such as "@weekly"). Runs stop when Stop is called or ctx is done.
func (p *Planner) Start(ctx context.Context, spec string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.c != nil {
		return errors.New("planner already started")
	}

	schedule, err := p.parser.Parse(spec)
	if err != nil {
		return &core.FrameworkError{
			Op:      "Planner.Start",
			Kind:    "configuration",
			ID:      spec,
			Message: fmt.Sprintf("invalid cron expression: %v", err),
			Err:     core.ErrInvalidConfiguration,
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	c := cron.New(cron.WithParser(p.parser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	p.entryID = c.Schedule(schedule, cron.FuncJob(func() {
		jobCtx := runCtx
		if p.timeout > 0 {
			var jobCancel context.CancelFunc
			jobCtx, jobCancel = context.WithTimeout(runCtx, p.timeout)
			defer jobCancel()
		}
		_, _ = p.RunOnce(jobCtx)
	}))
	p.c = c
	p.cancel = cancel
	c.Start()

	p.logger.Info("Planner started", map[string]interface{}{
		"operation": "plan_start",
		"cron":      spec,
		"next_run":  schedule.Next(time.Now()).Format(time.RFC3339),
	})
	return nil
}

// Next returns the next scheduled run, or the zero time when not started.
func (p *Planner) Next() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.c == nil {
		return time.Time{}
	}
	return p.c.Entry(p.entryID).Next
}

// Stop halts scheduled runs and waits for a running one to finish.
func (p *Planner) Stop() {
	p.mu.Lock()
	c, cancel := p.c, p.cancel
	p.c, p.cancel = nil, nil
	p.mu.Unlock()

	if c == nil {
		return
	}
	cancel()
	<-c.Stop().Done()
	p.logger.Info("Planner stopped", map[string]interface{}{
		"operation": "plan_stop",
	})
}
