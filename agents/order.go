package agents

import (
	"context"
	"fmt"

	"github.com/itsneelabh/gomind-mas/bus"
	"github.com/itsneelabh/gomind-mas/core"
)

// OrderAgent is the subject role: it owns an order stream and broadcasts
// order events to the agents subscribed to it.
type OrderAgent struct {
	*bus.Subject
	logger core.Logger
}

// NewOrderAgent creates an order agent whose events carry the sender
// "Order-<order_id>".
func NewOrderAgent(name string, opts ...bus.SubjectOption) *OrderAgent {
	if name == "" {
		name = "order"
	}
	opts = append([]bus.SubjectOption{bus.WithSenderFunc(orderSender)}, opts...)
	return &OrderAgent{
		Subject: bus.NewSubject(name, opts...),
		logger:  &core.NoOpLogger{},
	}
}

func orderSender(payload core.Payload) string {
	return fmt.Sprintf("Order-%v", payload[core.KeyOrderID])
}

// SetLogger installs logger scoped to the agent/<name> component.
func (a *OrderAgent) SetLogger(logger core.Logger) {
	a.logger = core.ComponentLogger(logger, "agent/"+a.Name())
}

// BroadcastEvent validates order and broadcasts it as eventType.
func (a *OrderAgent) BroadcastEvent(ctx context.Context, order core.OrderPayload, eventType core.EventType) (*bus.BroadcastResult, error) {
	if err := order.Validate(); err != nil {
		return nil, &core.FrameworkError{
			Op:   "OrderAgent.BroadcastEvent",
			Kind: "event",
			ID:   order.OrderID,
			Err:  err,
		}
	}
	return a.Broadcast(ctx, eventType, order.ToPayload())
}

// UpdateOrder records a priority change. A high priority order is broadcast
// as URGENT_ORDER; anything else triggers a CAPACITY_CHECK.
func (a *OrderAgent) UpdateOrder(ctx context.Context, order core.OrderPayload, priority core.Priority) (*bus.BroadcastResult, error) {
	order.Priority = priority
	eventType := core.EventCapacityCheck
	if priority >= core.PriorityHigh {
		eventType = core.EventUrgentOrder
	}

	a.logger.Info("Order updated", map[string]interface{}{
		"operation":  "update_order",
		"order_id":   order.OrderID,
		"priority":   priority.String(),
		"event_type": string(eventType),
	})
	return a.BroadcastEvent(ctx, order, eventType)
}

// Registry is anything subscribers can register with.
type Registry interface {
	Register(sub bus.Subscriber) error
}

// Subscribe registers agent with subject.
func Subscribe(agent bus.Subscriber, subject Registry) error {
	return subject.Register(agent)
}
