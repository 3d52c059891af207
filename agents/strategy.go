package agents

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/itsneelabh/gomind-mas/core"
)

// ReoptimizationStrategy decides where an urgent job goes in the pending
// queue. Reorder must not modify pending. It returns the new queue: urgent
// plus every pending job for a different order. An order that was already
// queued is moved, never duplicated.
type ReoptimizationStrategy interface {
	Name() string
	Reorder(pending []Job, urgent Job) []Job
}

// Strategy names accepted by StrategyByName.
const (
	StrategyUrgentFirst            = "urgent_first"
	StrategyEarliestDueDate        = "edd"
	StrategyShortestProcessingTime = "spt"
)

// UrgentFirst places the urgent job after the jobs that are already urgent
// and ahead of everything else. Relative order is otherwise kept.
type UrgentFirst struct{}

func (UrgentFirst) Name() string { return StrategyUrgentFirst }

func (UrgentFirst) Reorder(pending []Job, urgent Job) []Job {
	pending = withoutOrder(pending, urgent.OrderID)
	at := 0
	for at < len(pending) && pending[at].Urgent() {
		at++
	}
	out := make([]Job, 0, len(pending)+1)
	out = append(out, pending[:at]...)
	out = append(out, urgent)
	return append(out, pending[at:]...)
}

// EarliestDueDate orders the queue by deadline. Jobs without a deadline go
// last; ties keep their queue order, with the urgent job behind existing ones.
type EarliestDueDate struct{}

func (EarliestDueDate) Name() string { return StrategyEarliestDueDate }

func (EarliestDueDate) Reorder(pending []Job, urgent Job) []Job {
	out := append(withoutOrder(pending, urgent.OrderID), urgent)
	slices.SortStableFunc(out, func(a, b Job) int {
		switch {
		case a.Deadline.IsZero() && b.Deadline.IsZero():
			return 0
		case a.Deadline.IsZero():
			return 1
		case b.Deadline.IsZero():
			return -1
		}
		return a.Deadline.Compare(b.Deadline)
	})
	return out
}

// ShortestProcessingTime orders the queue by hours, shortest first.
type ShortestProcessingTime struct{}

func (ShortestProcessingTime) Name() string { return StrategyShortestProcessingTime }

func (ShortestProcessingTime) Reorder(pending []Job, urgent Job) []Job {
	out := append(withoutOrder(pending, urgent.OrderID), urgent)
	slices.SortStableFunc(out, func(a, b Job) int {
		return cmp.Compare(a.Hours, b.Hours)
	})
	return out
}

// withoutOrder returns a copy of pending minus any job for orderID.
func withoutOrder(pending []Job, orderID string) []Job {
	out := make([]Job, 0, len(pending)+1)
	for _, j := range pending {
		if j.OrderID != orderID {
			out = append(out, j)
		}
	}
	return out
}

// StrategyByName resolves a configured strategy name. The empty name
// selects UrgentFirst.
func StrategyByName(name string) (ReoptimizationStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", StrategyUrgentFirst:
		return UrgentFirst{}, nil
	case StrategyEarliestDueDate, "earliest_due_date":
		return EarliestDueDate{}, nil
	case StrategyShortestProcessingTime, "shortest_processing_time":
		return ShortestProcessingTime{}, nil
	}
	return nil, &core.FrameworkError{
		Op:      "agents.StrategyByName",
		Kind:    "config",
		ID:      name,
		Message: fmt.Sprintf("unknown reoptimization strategy %q", name),
		Err:     core.ErrInvalidConfiguration,
	}
}
