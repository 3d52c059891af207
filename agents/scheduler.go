package agents

import (
	"context"
	"slices"
	"sync"

	"github.com/itsneelabh/gomind-mas/bus"
	"github.com/itsneelabh/gomind-mas/core"
)

// SchedulerAgent keeps the pending job queue and reorders it whenever an
// urgent order arrives.
type SchedulerAgent struct {
	*core.BaseAgent

	mu              sync.Mutex
	pending         []Job
	strategy        ReoptimizationStrategy
	reoptimizations int
}

// NewSchedulerAgent creates a scheduler with an empty queue. A nil strategy
// selects UrgentFirst.
func NewSchedulerAgent(name string, strategy ReoptimizationStrategy) *SchedulerAgent {
	if name == "" {
		name = "scheduler"
	}
	if strategy == nil {
		strategy = UrgentFirst{}
	}
	return &SchedulerAgent{
		BaseAgent: core.NewBaseAgent(name),
		strategy:  strategy,
	}
}

// ID identifies the agent on the bus.
func (a *SchedulerAgent) ID() string {
	return a.BaseAgent.ID
}

// Strategy returns the reoptimization strategy in use.
func (a *SchedulerAgent) Strategy() ReoptimizationStrategy {
	return a.strategy
}

// Enqueue appends jobs to the back of the queue.
func (a *SchedulerAgent) Enqueue(jobs ...Job) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending = append(a.pending, jobs...)
}

// PendingJobs returns a copy of the queue.
func (a *SchedulerAgent) PendingJobs() []Job {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.pending)
}

// Reoptimizations returns how many times the queue has been reordered.
func (a *SchedulerAgent) Reoptimizations() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reoptimizations
}

// Receive reoptimizes on URGENT_ORDER and ignores everything else.
func (a *SchedulerAgent) Receive(ctx context.Context, event core.Event) (*bus.Reply, error) {
	if event.Type != core.EventUrgentOrder {
		a.Logger.Debug("Event ignored", map[string]interface{}{
			"operation":  "receive",
			"event_id":   event.ID,
			"event_type": string(event.Type),
		})
		return nil, nil
	}

	job := JobFromEvent(event)
	job.Priority = core.PriorityHigh
	queue := a.Reoptimize(ctx, job)

	return &bus.Reply{
		Data: map[string]any{
			"strategy": a.strategy.Name(),
			"queue":    orderIDs(queue),
		},
	}, nil
}

// Reoptimize inserts urgent into the queue according to the strategy and
// returns the new queue. A job already queued for the same order is
// replaced by urgent.
func (a *SchedulerAgent) Reoptimize(ctx context.Context, urgent Job) []Job {
	_, span := a.Telemetry.StartSpan(ctx, "agents.reoptimize")
	defer span.End()

	a.mu.Lock()
	before := len(a.pending)
	requeued := slices.ContainsFunc(a.pending, func(j Job) bool { return j.OrderID == urgent.OrderID })
	a.pending = a.strategy.Reorder(a.pending, urgent)
	a.reoptimizations++
	queue := slices.Clone(a.pending)
	a.mu.Unlock()

	position := slices.IndexFunc(queue, func(j Job) bool { return j.OrderID == urgent.OrderID })

	span.SetAttribute("order_id", urgent.OrderID)
	span.SetAttribute("strategy", a.strategy.Name())
	span.SetAttribute("queue_length", len(queue))

	a.Logger.Info("Reoptimizing pending jobs for urgent order", map[string]interface{}{
		"operation":      "reoptimize",
		"order_id":       urgent.OrderID,
		"strategy":       a.strategy.Name(),
		"pending_before": before,
		"requeued":       requeued,
		"position":       position,
		"queue":          orderIDs(queue),
	})
	a.Telemetry.RecordMetric("agents.reoptimizations", 1, map[string]string{
		"strategy": a.strategy.Name(),
	})
	a.Telemetry.RecordMetric("agents.events", 1, map[string]string{
		"role":       "scheduler",
		"event_type": string(core.EventUrgentOrder),
		"action":     "reoptimized",
	})
	return queue
}
