// Package messaging delivers point-to-point messages between agents, with
// a simulated lossy link and a retrying wrapper around any Messenger.
package messaging

import (
	"context"
	"time"
)

// Messenger sends one message to a named agent.
type Messenger interface {
	Send(ctx context.Context, target, body string) error
}

// Message is a delivered message.
type Message struct {
	Target      string
	Body        string
	DeliveredAt time.Time
}

// MessengerFunc adapts a function to Messenger.
type MessengerFunc func(ctx context.Context, target, body string) error

func (f MessengerFunc) Send(ctx context.Context, target, body string) error {
	return f(ctx, target, body)
}
