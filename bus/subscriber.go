// Package bus implements the subject side of the agent event bus: an ordered
// registry of subscribers and synchronous, in-order event delivery.
package bus

import (
	"context"

	"github.com/itsneelabh/gomind-mas/core"
)

// Reply is what a subscriber hands back for an event. A nil *Reply means
// the subscriber had nothing to report.
type Reply struct {
	Status core.Status
	Data   map[string]any
}

// Subscriber receives events from a Subject.
//
// Receive runs synchronously on the broadcasting goroutine and may mutate
// the subscriber's own state. It should pass ctx on to any broadcast it
// triggers so re-entrant delivery on the same subject can be detected.
type Subscriber interface {
	ID() string
	Receive(ctx context.Context, event core.Event) (*Reply, error)
}

// SubscriberFunc adapts a plain function to the receive half of Subscriber.
type SubscriberFunc func(ctx context.Context, event core.Event) (*Reply, error)

type funcSubscriber struct {
	id string
	fn SubscriberFunc
}

// NewFuncSubscriber returns a Subscriber named id that delegates to fn.
func NewFuncSubscriber(id string, fn SubscriberFunc) Subscriber {
	return &funcSubscriber{id: id, fn: fn}
}

func (f *funcSubscriber) ID() string { return f.id }

func (f *funcSubscriber) Receive(ctx context.Context, event core.Event) (*Reply, error) {
	return f.fn(ctx, event)
}
