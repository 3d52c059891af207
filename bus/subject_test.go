package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/itsneelabh/gomind-mas/core"
	"github.com/itsneelabh/gomind-mas/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder is a subscriber that appends its id to a shared trace.
type recorder struct {
	id     string
	trace  *[]string
	events []core.Event
	reply  *Reply
	err    error
}

func (r *recorder) ID() string { return r.id }

func (r *recorder) Receive(_ context.Context, event core.Event) (*Reply, error) {
	*r.trace = append(*r.trace, r.id)
	r.events = append(r.events, event)
	return r.reply, r.err
}

func order(id string) core.Payload {
	return core.Payload{core.KeyOrderID: id}
}

func TestBroadcastDeliversInRegistrationOrder(t *testing.T) {
	var trace []string
	subject := NewSubject("orders")
	subs := []*recorder{
		{id: "a", trace: &trace},
		{id: "b", trace: &trace},
		{id: "c", trace: &trace},
	}
	for _, s := range subs {
		require.NoError(t, subject.Register(s))
	}

	result, err := subject.Broadcast(context.Background(), core.EventCapacityCheck, order("PO-1"))
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, trace)
	require.Len(t, result.Deliveries, 3)
	for i, d := range result.Deliveries {
		assert.Equal(t, i, d.Position)
		assert.Equal(t, subs[i].id, d.SubscriberID)
		assert.NoError(t, d.Err)
	}

	// every subscriber saw the same event
	for _, s := range subs {
		require.Len(t, s.events, 1)
		assert.Equal(t, result.Event.ID, s.events[0].ID)
	}
	assert.Equal(t, "orders", result.Event.Sender)
	assert.Equal(t, core.EventCapacityCheck, result.Event.Type)
}

func TestBroadcastEmptySubject(t *testing.T) {
	subject := NewSubject("orders")
	result, err := subject.Broadcast(context.Background(), core.EventAllocate, order("PO-1"))
	require.NoError(t, err)
	assert.Empty(t, result.Deliveries)
	assert.Empty(t, result.Replies())
}

func TestDuplicateRegistrationDeliversTwice(t *testing.T) {
	var trace []string
	subject := NewSubject("orders")
	r := &recorder{id: "dup", trace: &trace}
	require.NoError(t, subject.Register(r))
	require.NoError(t, subject.Register(r))
	assert.Equal(t, 2, subject.Len())

	_, err := subject.Broadcast(context.Background(), core.EventAllocate, order("PO-1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"dup", "dup"}, trace)
}

func TestRegisterNil(t *testing.T) {
	subject := NewSubject("orders")
	err := subject.Register(nil)
	assert.ErrorIs(t, err, core.ErrInvalidConfiguration)
	assert.Zero(t, subject.Len())
}

func TestSubscribersReturnsCopy(t *testing.T) {
	var trace []string
	subject := NewSubject("orders")
	require.NoError(t, subject.Register(&recorder{id: "a", trace: &trace}))

	subs := subject.Subscribers()
	subs[0] = &recorder{id: "intruder", trace: &trace}

	assert.Equal(t, "a", subject.Subscribers()[0].ID())
}

func TestBroadcastInvalidEvent(t *testing.T) {
	var trace []string
	subject := NewSubject("orders")
	require.NoError(t, subject.Register(&recorder{id: "a", trace: &trace}))

	_, err := subject.Broadcast(context.Background(), core.EventType("cancel"), order("PO-1"))
	assert.ErrorIs(t, err, core.ErrUnknownEventType)

	_, err = subject.Broadcast(context.Background(), core.EventUrgentOrder, core.Payload{})
	assert.ErrorIs(t, err, core.ErrMissingPayloadKey)

	assert.Empty(t, trace, "no delivery happens for an invalid event")
}

func TestBroadcastCollectsReplies(t *testing.T) {
	var trace []string
	subject := NewSubject("orders")
	require.NoError(t, subject.Register(&recorder{id: "silent", trace: &trace}))
	require.NoError(t, subject.Register(&recorder{id: "m1", trace: &trace, reply: &Reply{Status: core.StatusAvailable}}))
	require.NoError(t, subject.Register(&recorder{id: "m2", trace: &trace, reply: &Reply{Status: core.StatusBusy}}))

	result, err := subject.Broadcast(context.Background(), core.EventCapacityCheck, order("PO-1"))
	require.NoError(t, err)

	replies := result.Replies()
	require.Len(t, replies, 2)
	assert.Equal(t, core.StatusAvailable, replies[0].Status)
	assert.Equal(t, core.StatusBusy, replies[1].Status)
	assert.Nil(t, result.Deliveries[0].Reply)
}

func TestFailFastStopsAtFirstFailure(t *testing.T) {
	var trace []string
	boom := errors.New("machine offline")
	subject := NewSubject("orders")
	require.NoError(t, subject.Register(&recorder{id: "a", trace: &trace}))
	require.NoError(t, subject.Register(&recorder{id: "b", trace: &trace, err: boom}))
	require.NoError(t, subject.Register(&recorder{id: "c", trace: &trace}))

	result, err := subject.Broadcast(context.Background(), core.EventAllocate, order("PO-1"))

	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrHandlerFailed)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, core.ErrHandlerPanic)

	var herr *HandlerError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, "b", herr.SubscriberID)
	assert.Equal(t, 1, herr.Position)
	assert.Equal(t, core.EventAllocate, herr.EventType)

	assert.Equal(t, []string{"a", "b"}, trace, "c never sees the event")
	require.NotNil(t, result)
	assert.Len(t, result.Deliveries, 2)
	assert.Len(t, result.Failed(), 1)
}

func TestIsolateContinuesPastFailures(t *testing.T) {
	var trace []string
	boom := errors.New("machine offline")
	subject := NewSubject("orders", WithDeliveryPolicy(Isolate))
	require.NoError(t, subject.Register(&recorder{id: "a", trace: &trace, err: boom}))
	require.NoError(t, subject.Register(NewFuncSubscriber("panicky", func(context.Context, core.Event) (*Reply, error) {
		trace = append(trace, "panicky")
		panic("spindle jammed")
	})))
	require.NoError(t, subject.Register(&recorder{id: "c", trace: &trace, reply: &Reply{Status: core.StatusAvailable}}))

	result, err := subject.Broadcast(context.Background(), core.EventCapacityCheck, order("PO-1"))

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "panicky", "c"}, trace)

	failed := result.Failed()
	require.Len(t, failed, 2)
	assert.ErrorIs(t, failed[0].Err, boom)
	assert.ErrorIs(t, failed[1].Err, core.ErrHandlerPanic)
	assert.ErrorIs(t, failed[1].Err, core.ErrHandlerFailed)
	assert.Contains(t, failed[1].Err.Error(), "spindle jammed")

	assert.Len(t, result.Replies(), 1)
	assert.ErrorIs(t, result.Err(), boom)
}

func TestPanicUnderFailFast(t *testing.T) {
	var trace []string
	subject := NewSubject("orders")
	cause := errors.New("nil spindle")
	require.NoError(t, subject.Register(NewFuncSubscriber("panicky", func(context.Context, core.Event) (*Reply, error) {
		panic(cause)
	})))
	require.NoError(t, subject.Register(&recorder{id: "after", trace: &trace}))

	_, err := subject.Broadcast(context.Background(), core.EventAllocate, order("PO-1"))

	assert.ErrorIs(t, err, core.ErrHandlerPanic)
	assert.ErrorIs(t, err, cause, "a panicked error value stays reachable")
	assert.Empty(t, trace)

	// the subject is still usable afterwards
	_, err = NewSubject("other").Broadcast(context.Background(), core.EventAllocate, order("PO-2"))
	assert.NoError(t, err)
}

func TestReentrantBroadcastIsRefused(t *testing.T) {
	subject := NewSubject("orders")
	other := NewSubject("machines")

	var nestedErr, otherErr error
	require.NoError(t, subject.Register(NewFuncSubscriber("echo", func(ctx context.Context, ev core.Event) (*Reply, error) {
		_, nestedErr = subject.Broadcast(ctx, core.EventAllocate, order(ev.Str(core.KeyOrderID)))
		_, otherErr = other.Broadcast(ctx, core.EventAllocate, order(ev.Str(core.KeyOrderID)))
		return nil, nil
	})))

	_, err := subject.Broadcast(context.Background(), core.EventUrgentOrder, order("PO-1"))
	require.NoError(t, err)
	assert.ErrorIs(t, nestedErr, core.ErrReentrantBroadcast)
	assert.NoError(t, otherErr, "broadcasting on a different subject is allowed")
}

func TestReentrantBroadcastOnDerivedContextIsRefused(t *testing.T) {
	subject := NewSubject("orders")

	var nestedErr error
	require.NoError(t, subject.Register(NewFuncSubscriber("echo", func(ctx context.Context, ev core.Event) (*Reply, error) {
		detached, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		_, nestedErr = subject.Broadcast(detached, core.EventAllocate, order(ev.Str(core.KeyOrderID)))
		return nil, nil
	})))

	_, err := subject.Broadcast(context.Background(), core.EventUrgentOrder, order("PO-1"))
	require.NoError(t, err)
	assert.ErrorIs(t, nestedErr, core.ErrReentrantBroadcast)
}

func TestReentrantBroadcastOnUnrelatedContextEndsWithThatContext(t *testing.T) {
	logger := &testutil.TestLogger{}
	subject := NewSubject("orders", WithLogger(logger))

	var (
		trace     []string
		nestedErr error
	)
	require.NoError(t, subject.Register(NewFuncSubscriber("echo", func(_ context.Context, ev core.Event) (*Reply, error) {
		trace = append(trace, string(ev.Type))
		if ev.Type != core.EventUrgentOrder {
			return nil, nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, nestedErr = subject.Broadcast(ctx, core.EventAllocate, order(ev.Str(core.KeyOrderID)))
		return nil, nil
	})))

	done := make(chan error, 1)
	go func() {
		_, err := subject.Broadcast(context.Background(), core.EventUrgentOrder, order("PO-1"))
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast never returned")
	}

	assert.ErrorIs(t, nestedErr, core.ErrContextCanceled)
	assert.ErrorIs(t, nestedErr, context.DeadlineExceeded)
	assert.Equal(t, []string{string(core.EventUrgentOrder)}, trace, "the queued event is never delivered")
	assert.True(t, logger.HasLogWithMessage("Broadcast abandoned while queued"))

	// the slot is released afterwards
	_, err := subject.Broadcast(context.Background(), core.EventAllocate, order("PO-2"))
	require.NoError(t, err)
	assert.Equal(t, []string{string(core.EventUrgentOrder), string(core.EventAllocate)}, trace)
}

func TestQueuedBroadcastHonoursContext(t *testing.T) {
	subject := NewSubject("orders")
	entered := make(chan struct{})
	unblock := make(chan struct{})
	require.NoError(t, subject.Register(NewFuncSubscriber("slow", func(context.Context, core.Event) (*Reply, error) {
		close(entered)
		<-unblock
		return nil, nil
	})))

	first := make(chan error, 1)
	go func() {
		_, err := subject.Broadcast(context.Background(), core.EventAllocate, order("PO-1"))
		first <- err
	}()
	<-entered

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := subject.Broadcast(ctx, core.EventAllocate, order("PO-2"))
	assert.ErrorIs(t, err, core.ErrContextCanceled)
	assert.ErrorIs(t, err, context.Canceled)

	close(unblock)
	require.NoError(t, <-first)
}

func TestRegistrationDuringBroadcastAppliesToNextBroadcast(t *testing.T) {
	var trace []string
	subject := NewSubject("orders")
	late := &recorder{id: "late", trace: &trace}
	require.NoError(t, subject.Register(NewFuncSubscriber("registrar", func(context.Context, core.Event) (*Reply, error) {
		trace = append(trace, "registrar")
		return nil, subject.Register(late)
	})))

	_, err := subject.Broadcast(context.Background(), core.EventAllocate, order("PO-1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"registrar"}, trace)

	trace = nil
	_, err = subject.Broadcast(context.Background(), core.EventAllocate, order("PO-2"))
	require.NoError(t, err)
	assert.Equal(t, []string{"registrar", "late"}, trace)
}

func TestConcurrentBroadcastsDoNotInterleave(t *testing.T) {
	var (
		mu    sync.Mutex
		trace []string
	)
	subject := NewSubject("orders")
	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("s%d", i)
		require.NoError(t, subject.Register(NewFuncSubscriber(id, func(_ context.Context, ev core.Event) (*Reply, error) {
			mu.Lock()
			trace = append(trace, ev.Str(core.KeyOrderID))
			mu.Unlock()
			return nil, nil
		})))
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := subject.Broadcast(context.Background(), core.EventAllocate, order(fmt.Sprintf("PO-%d", n)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	require.Len(t, trace, 30)
	for i := 0; i < len(trace); i += 3 {
		assert.Equal(t, trace[i], trace[i+1])
		assert.Equal(t, trace[i], trace[i+2])
	}
}

func TestSenderFunc(t *testing.T) {
	var trace []string
	subject := NewSubject("orders", WithSenderFunc(func(p core.Payload) string {
		return fmt.Sprintf("Order-%v", p[core.KeyOrderID])
	}))
	require.NoError(t, subject.Register(&recorder{id: "a", trace: &trace}))

	result, err := subject.Broadcast(context.Background(), core.EventAllocate, order("PO2026001"))
	require.NoError(t, err)
	assert.Equal(t, "Order-PO2026001", result.Event.Sender)
}

func TestPublishPrebuiltEvent(t *testing.T) {
	var trace []string
	subject := NewSubject("orders")
	r := &recorder{id: "a", trace: &trace}
	require.NoError(t, subject.Register(r))

	ev, err := core.NewEvent(core.EventUrgentOrder, "erp", order("PO-9"))
	require.NoError(t, err)

	result, err := subject.Publish(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, ev.ID, result.Event.ID)
	assert.Equal(t, "erp", r.events[0].Sender)
}

func TestParseDeliveryPolicy(t *testing.T) {
	p, err := ParseDeliveryPolicy("fail_fast")
	require.NoError(t, err)
	assert.Equal(t, FailFast, p)

	p, err = ParseDeliveryPolicy("ISOLATE")
	require.NoError(t, err)
	assert.Equal(t, Isolate, p)
	assert.Equal(t, "isolate", p.String())

	p, err = ParseDeliveryPolicy("")
	require.NoError(t, err)
	assert.Equal(t, FailFast, p)

	_, err = ParseDeliveryPolicy("best_effort")
	assert.ErrorIs(t, err, core.ErrInvalidConfiguration)
}

func TestBroadcastObservability(t *testing.T) {
	var trace []string
	logger := &testutil.TestLogger{}
	tel := &testutil.RecordingTelemetry{}
	subject := NewSubject("orders", WithLogger(logger), WithTelemetry(tel), WithDeliveryPolicy(Isolate))
	require.NoError(t, subject.Register(&recorder{id: "a", trace: &trace}))
	require.NoError(t, subject.Register(&recorder{id: "b", trace: &trace, err: errors.New("offline")}))

	result, err := subject.Broadcast(context.Background(), core.EventCapacityCheck, order("PO-1"))
	require.NoError(t, err)

	broadcasts := logger.GetLogsByOperation("broadcast")
	require.Len(t, broadcasts, 1)
	assert.Equal(t, 2, broadcasts[0].Fields["subscribers"])
	assert.Equal(t, result.Event.ID, broadcasts[0].Fields["event_id"])
	assert.Equal(t, "capacity_check", broadcasts[0].Fields["event_type"])

	deliveries := logger.GetLogsByOperation("deliver")
	require.Len(t, deliveries, 2)
	assert.Equal(t, "DEBUG", deliveries[0].Level)
	assert.Equal(t, "WARN", deliveries[1].Level)

	metrics := tel.Metrics("bus.deliveries")
	require.Len(t, metrics, 2)
	assert.Equal(t, "ok", metrics[0].Labels["outcome"])
	assert.Equal(t, "failed", metrics[1].Labels["outcome"])

	b := tel.Metrics("bus.broadcasts")
	require.Len(t, b, 1)
	assert.Equal(t, "partial", b[0].Labels["outcome"])

	spans := tel.Spans("bus.broadcast")
	require.Len(t, spans, 1)
	assert.True(t, spans[0].Ended)
	assert.Equal(t, 2, spans[0].Attributes["subscribers"])
}
