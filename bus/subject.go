package bus

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/itsneelabh/gomind-mas/core"
)

// DeliveryPolicy decides what a broadcast does when a subscriber fails.
type DeliveryPolicy int

const (
	// FailFast stops at the first failing subscriber; later subscribers
	// do not see the event.
	FailFast DeliveryPolicy = iota
	// Isolate records the failure and keeps delivering.
	Isolate
)

func (p DeliveryPolicy) String() string {
	switch p {
	case FailFast:
		return core.DeliveryFailFast
	case Isolate:
		return core.DeliveryIsolate
	default:
		return fmt.Sprintf("DeliveryPolicy(%d)", int(p))
	}
}

// ParseDeliveryPolicy maps a configuration value to a DeliveryPolicy.
func ParseDeliveryPolicy(s string) (DeliveryPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", core.DeliveryFailFast:
		return FailFast, nil
	case core.DeliveryIsolate:
		return Isolate, nil
	}
	return FailFast, fmt.Errorf("unknown delivery policy %q: %w", s, core.ErrInvalidConfiguration)
}

// SenderFunc derives the sender identity of an event from its payload.
type SenderFunc func(payload core.Payload) string

// Subject keeps an ordered list of subscribers and delivers events to them
// synchronously, one broadcast at a time.
type Subject struct {
	name string

	mu          sync.RWMutex
	subscribers []Subscriber

	// single delivery slot; deliveries of two events never interleave
	deliver chan struct{}

	policy    DeliveryPolicy
	sender    SenderFunc
	logger    core.Logger
	telemetry core.Telemetry
}

// SubjectOption customises a Subject.
type SubjectOption func(*Subject)

// WithLogger sets the logger, scoped to framework/bus.
func WithLogger(logger core.Logger) SubjectOption {
	return func(s *Subject) {
		s.logger = core.ComponentLogger(logger, "framework/bus")
	}
}

// WithTelemetry sets the telemetry sink.
func WithTelemetry(t core.Telemetry) SubjectOption {
	return func(s *Subject) {
		s.telemetry = core.TelemetryOrNoOp(t)
	}
}

// WithDeliveryPolicy sets the failure policy. The default is FailFast.
func WithDeliveryPolicy(p DeliveryPolicy) SubjectOption {
	return func(s *Subject) {
		s.policy = p
	}
}

// WithSenderFunc sets how the sender of a broadcast event is derived.
// The default uses the subject name.
func WithSenderFunc(fn SenderFunc) SubjectOption {
	return func(s *Subject) {
		if fn != nil {
			s.sender = fn
		}
	}
}

// NewSubject creates a subject with no subscribers.
func NewSubject(name string, opts ...SubjectOption) *Subject {
	s := &Subject{
		name:      name,
		deliver:   make(chan struct{}, 1),
		policy:    FailFast,
		logger:    &core.NoOpLogger{},
		telemetry: &core.NoOpTelemetry{},
	}
	s.sender = func(core.Payload) string { return s.name }
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the subject name.
func (s *Subject) Name() string {
	return s.name
}

// Policy returns the delivery policy.
func (s *Subject) Policy() DeliveryPolicy {
	return s.policy
}

// Register appends sub to the subscriber list. Registering the same
// subscriber twice is allowed and yields two deliveries per broadcast.
// A registration made while a broadcast is running takes effect from the
// next broadcast.
func (s *Subject) Register(sub Subscriber) error {
	if sub == nil {
		return &core.FrameworkError{
			Op:      "Subject.Register",
			Kind:    "bus",
			ID:      s.name,
			Message: "subscriber is nil",
			Err:     core.ErrInvalidConfiguration,
		}
	}
	s.mu.Lock()
	s.subscribers = append(s.subscribers, sub)
	count := len(s.subscribers)
	s.mu.Unlock()

	s.logger.Debug("Subscriber registered", map[string]interface{}{
		"operation":   "register",
		"subject":     s.name,
		"subscriber":  sub.ID(),
		"subscribers": count,
	})
	return nil
}

// Subscribers returns a copy of the subscriber list in registration order.
func (s *Subject) Subscribers() []Subscriber {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Subscriber, len(s.subscribers))
	copy(out, s.subscribers)
	return out
}

// Len returns the number of registrations.
func (s *Subject) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers)
}

// Broadcast builds one event from eventType and payload and delivers it to
// every subscriber. Event construction errors are returned before any
// delivery happens.
func (s *Subject) Broadcast(ctx context.Context, eventType core.EventType, payload core.Payload) (*BroadcastResult, error) {
	event, err := core.NewEvent(eventType, s.sender(payload), payload)
	if err != nil {
		s.logger.Warn("Broadcast rejected", map[string]interface{}{
			"operation":  "broadcast",
			"subject":    s.name,
			"event_type": string(eventType),
			"error":      err.Error(),
		})
		return nil, err
	}
	return s.Publish(ctx, event)
}

// activeDelivery marks the subjects currently delivering on a context chain.
type activeDelivery struct {
	subject *Subject
	parent  *activeDelivery
}

type deliveryKey struct{}

func (s *Subject) deliveringOn(ctx context.Context) bool {
	for active := ctxDelivery(ctx); active != nil; active = active.parent {
		if active.subject == s {
			return true
		}
	}
	return false
}

// Publish delivers a pre-built event to a snapshot of the current
// subscribers, in registration order, exactly once per registration.
//
// Under FailFast the first handler error stops delivery and is returned as
// a *HandlerError alongside the deliveries made so far. Under Isolate every
// subscriber is tried and failures are only recorded in the result.
//
// Concurrent callers queue behind the broadcast in flight. A caller whose
// ctx ends while queued gets an error wrapping core.ErrContextCanceled and
// nothing is delivered.
//
// Publishing on this subject from inside one of its own handlers returns
// core.ErrReentrantBroadcast when the handler passes on the ctx it was
// given, or any context derived from it. A handler that publishes here with
// an unrelated context cannot be told apart from a concurrent caller: it
// queues behind its own broadcast and only returns once that context is
// done. With context.Background() it never returns.
func (s *Subject) Publish(ctx context.Context, event core.Event) (*BroadcastResult, error) {
	if s.deliveringOn(ctx) {
		s.logger.Error("Re-entrant broadcast refused", map[string]interface{}{
			"operation":  "broadcast",
			"subject":    s.name,
			"event_id":   event.ID,
			"event_type": string(event.Type),
		})
		return nil, &core.FrameworkError{
			Op:   "Subject.Publish",
			Kind: "bus",
			ID:   s.name,
			Err:  core.ErrReentrantBroadcast,
		}
	}

	if err := s.acquire(ctx, event); err != nil {
		return nil, err
	}
	defer s.release()

	subscribers := s.Subscribers()

	ctx, span := s.telemetry.StartSpan(ctx, "bus.broadcast")
	defer span.End()
	span.SetAttribute("subject", s.name)
	span.SetAttribute("event.id", event.ID)
	span.SetAttribute("event.type", string(event.Type))
	span.SetAttribute("subscribers", len(subscribers))

	s.logger.Info("Broadcasting event", map[string]interface{}{
		"operation":   "broadcast",
		"subject":     s.name,
		"event_id":    event.ID,
		"event_type":  string(event.Type),
		"sender":      event.Sender,
		"subscribers": len(subscribers),
	})

	dctx := context.WithValue(ctx, deliveryKey{}, &activeDelivery{
		subject: s,
		parent:  ctxDelivery(ctx),
	})

	result := &BroadcastResult{
		Event:      event,
		Deliveries: make([]Delivery, 0, len(subscribers)),
	}

	for i, sub := range subscribers {
		reply, err := s.deliverOne(dctx, i, sub, event)
		result.Deliveries = append(result.Deliveries, Delivery{
			Position:     i,
			SubscriberID: sub.ID(),
			Reply:        reply,
			Err:          err,
		})

		if err != nil && s.policy == FailFast {
			span.RecordError(err)
			s.telemetry.RecordMetric("bus.broadcasts", 1, map[string]string{
				"event_type": string(event.Type),
				"outcome":    "aborted",
			})
			s.logger.Error("Broadcast aborted by failing subscriber", map[string]interface{}{
				"operation":  "broadcast",
				"subject":    s.name,
				"event_id":   event.ID,
				"subscriber": sub.ID(),
				"position":   i,
				"delivered":  i,
				"skipped":    len(subscribers) - i - 1,
				"error":      err.Error(),
			})
			return result, err
		}
	}

	outcome := "ok"
	if failed := len(result.Failed()); failed > 0 {
		outcome = "partial"
		span.SetAttribute("failed", failed)
	}
	s.telemetry.RecordMetric("bus.broadcasts", 1, map[string]string{
		"event_type": string(event.Type),
		"outcome":    outcome,
	})
	return result, nil
}

// acquire takes the delivery slot, waiting for the broadcast in flight
// until ctx is done.
func (s *Subject) acquire(ctx context.Context, event core.Event) error {
	select {
	case s.deliver <- struct{}{}:
		return nil
	default:
	}

	s.logger.Debug("Waiting for in-flight broadcast", map[string]interface{}{
		"operation":  "broadcast",
		"subject":    s.name,
		"event_id":   event.ID,
		"event_type": string(event.Type),
	})
	select {
	case s.deliver <- struct{}{}:
		return nil
	case <-ctx.Done():
		s.logger.Warn("Broadcast abandoned while queued", map[string]interface{}{
			"operation":  "broadcast",
			"subject":    s.name,
			"event_id":   event.ID,
			"event_type": string(event.Type),
			"error":      ctx.Err().Error(),
		})
		return &core.FrameworkError{
			Op:      "Subject.Publish",
			Kind:    "bus",
			ID:      s.name,
			Message: "waiting for in-flight broadcast",
			Err:     fmt.Errorf("%w: %w", core.ErrContextCanceled, ctx.Err()),
		}
	}
}

func (s *Subject) release() {
	<-s.deliver
}

func ctxDelivery(ctx context.Context) *activeDelivery {
	active, _ := ctx.Value(deliveryKey{}).(*activeDelivery)
	return active
}

// deliverOne invokes one handler, converting a panic into a *HandlerError.
func (s *Subject) deliverOne(ctx context.Context, position int, sub Subscriber, event core.Event) (reply *Reply, err error) {
	outcome := "ok"
	defer func() {
		if r := recover(); r != nil {
			herr := &HandlerError{
				SubscriberID: sub.ID(),
				Position:     position,
				EventID:      event.ID,
				EventType:    event.Type,
				Panic:        r,
			}
			if perr, ok := r.(error); ok {
				herr.Err = perr
			}
			reply, err = nil, herr
			outcome = "panic"
		}

		fields := map[string]interface{}{
			"operation":  "deliver",
			"subject":    s.name,
			"event_id":   event.ID,
			"event_type": string(event.Type),
			"subscriber": sub.ID(),
			"position":   position,
			"outcome":    outcome,
		}
		if err != nil {
			fields["error"] = err.Error()
			s.logger.Warn("Subscriber failed to handle event", fields)
		} else {
			fields["replied"] = reply != nil
			s.logger.Debug("Event delivered", fields)
		}
		s.telemetry.RecordMetric("bus.deliveries", 1, map[string]string{
			"event_type": string(event.Type),
			"outcome":    outcome,
		})
	}()

	reply, err = sub.Receive(ctx, event)
	if err != nil {
		outcome = "failed"
		err = &HandlerError{
			SubscriberID: sub.ID(),
			Position:     position,
			EventID:      event.ID,
			EventType:    event.Type,
			Err:          err,
		}
	}
	return reply, err
}
