package bus

import (
	"errors"
	"fmt"

	"github.com/itsneelabh/gomind-mas/core"
)

// Delivery records one subscriber's handling of a broadcast.
type Delivery struct {
	Position     int // index in the registration snapshot
	SubscriberID string
	Reply        *Reply
	Err          error
}

// BroadcastResult collects every delivery of one event, in registration order.
type BroadcastResult struct {
	Event      core.Event
	Deliveries []Delivery
}

// Replies returns the non-nil replies in delivery order.
func (r *BroadcastResult) Replies() []Reply {
	var out []Reply
	for _, d := range r.Deliveries {
		if d.Reply != nil {
			out = append(out, *d.Reply)
		}
	}
	return out
}

// Failed returns the deliveries whose handler returned an error or panicked.
func (r *BroadcastResult) Failed() []Delivery {
	var out []Delivery
	for _, d := range r.Deliveries {
		if d.Err != nil {
			out = append(out, d)
		}
	}
	return out
}

// Err joins every delivery error, or returns nil when all succeeded.
func (r *BroadcastResult) Err() error {
	var errs []error
	for _, d := range r.Deliveries {
		if d.Err != nil {
			errs = append(errs, d.Err)
		}
	}
	return errors.Join(errs...)
}

// HandlerError wraps a failure raised by a subscriber while handling an event.
// It matches core.ErrHandlerFailed, and core.ErrHandlerPanic when the handler
// panicked.
type HandlerError struct {
	SubscriberID string
	Position     int
	EventID      string
	EventType    core.EventType
	Panic        any
	Err          error
}

func (e *HandlerError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("subscriber %s (position %d) panicked handling %s event %s: %v",
			e.SubscriberID, e.Position, e.EventType, e.EventID, e.Panic)
	}
	return fmt.Sprintf("subscriber %s (position %d) failed handling %s event %s: %v",
		e.SubscriberID, e.Position, e.EventType, e.EventID, e.Err)
}

func (e *HandlerError) Unwrap() []error {
	errs := []error{core.ErrHandlerFailed}
	if e.Panic != nil {
		errs = append(errs, core.ErrHandlerPanic)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}
