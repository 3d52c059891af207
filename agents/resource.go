package agents

import (
	"context"
	"sync"

	"github.com/itsneelabh/gomind-mas/bus"
	"github.com/itsneelabh/gomind-mas/core"
)

// ResourceAgent represents one machine. It answers capacity checks and
// becomes busy once allocated.
type ResourceAgent struct {
	*core.BaseAgent

	mu   sync.RWMutex
	busy bool
}

// NewResourceAgent creates an idle resource agent.
func NewResourceAgent(name string) *ResourceAgent {
	if name == "" {
		name = "resource"
	}
	return &ResourceAgent{BaseAgent: core.NewBaseAgent(name)}
}

// ID identifies the agent on the bus.
func (a *ResourceAgent) ID() string {
	return a.BaseAgent.ID
}

// Busy reports whether the resource has been allocated.
func (a *ResourceAgent) Busy() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.busy
}

// Status returns the capacity-check answer for the current state.
func (a *ResourceAgent) Status() core.Status {
	if a.Busy() {
		return core.StatusBusy
	}
	return core.StatusAvailable
}

// Receive answers CAPACITY_CHECK with the current status and marks the
// resource busy on ALLOCATE. Allocating a busy resource is a valid no-op.
// Other event types are ignored.
func (a *ResourceAgent) Receive(ctx context.Context, event core.Event) (*bus.Reply, error) {
	switch event.Type {
	case core.EventCapacityCheck:
		status := a.Status()
		a.Logger.Info("Capacity check answered", map[string]interface{}{
			"operation": "capacity_check",
			"event_id":  event.ID,
			"order_id":  event.Str(core.KeyOrderID),
			"status":    string(status),
		})
		a.recordHandled(event.Type, "answered")
		return &bus.Reply{
			Status: status,
			Data:   map[string]any{"resource": a.Name},
		}, nil

	case core.EventAllocate:
		a.mu.Lock()
		wasBusy := a.busy
		a.busy = true
		a.mu.Unlock()

		a.Logger.Info("Resource allocated", map[string]interface{}{
			"operation":    "allocate",
			"event_id":     event.ID,
			"order_id":     event.Str(core.KeyOrderID),
			"already_busy": wasBusy,
		})
		a.recordHandled(event.Type, "allocated")
		return nil, nil
	}

	a.Logger.Debug("Event ignored", map[string]interface{}{
		"operation":  "receive",
		"event_id":   event.ID,
		"event_type": string(event.Type),
	})
	a.recordHandled(event.Type, "ignored")
	return nil, nil
}

func (a *ResourceAgent) recordHandled(eventType core.EventType, action string) {
	a.Telemetry.RecordMetric("agents.events", 1, map[string]string{
		"role":       "resource",
		"event_type": string(eventType),
		"action":     action,
	})
}
