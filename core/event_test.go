package core

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEventType(t *testing.T) {
	tests := []struct {
		in      string
		want    EventType
		wantErr bool
	}{
		{"capacity_check", EventCapacityCheck, false},
		{"ALLOCATE", EventAllocate, false},
		{" URGENT_ORDER ", EventUrgentOrder, false},
		{"cancel", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseEventType(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownEventType)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewEvent(t *testing.T) {
	t.Run("valid event", func(t *testing.T) {
		before := time.Now()
		ev, err := NewEvent(EventUrgentOrder, "Order-O-1", Payload{
			KeyOrderID:  "O-1",
			KeyPriority: PriorityHigh,
		})
		require.NoError(t, err)

		assert.NotEmpty(t, ev.ID)
		assert.Equal(t, EventUrgentOrder, ev.Type)
		assert.Equal(t, "Order-O-1", ev.Sender)
		assert.False(t, ev.OccurredAt.Before(before))
		assert.Equal(t, "O-1", ev.Str(KeyOrderID))
		assert.Equal(t, PriorityHigh, ev.Priority())
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := NewEvent(EventType("cancel"), "x", Payload{KeyOrderID: "O-1"})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnknownEventType)

		var fe *FrameworkError
		require.True(t, errors.As(err, &fe))
		assert.Equal(t, "core.NewEvent", fe.Op)
		assert.Equal(t, "cancel", fe.ID)
	})

	for _, et := range []EventType{EventCapacityCheck, EventAllocate, EventUrgentOrder} {
		t.Run("missing order_id for "+string(et), func(t *testing.T) {
			_, err := NewEvent(et, "x", Payload{})
			assert.ErrorIs(t, err, ErrMissingPayloadKey)

			_, err = NewEvent(et, "x", Payload{KeyOrderID: "  "})
			assert.ErrorIs(t, err, ErrMissingPayloadKey)

			_, err = NewEvent(et, "x", nil)
			assert.ErrorIs(t, err, ErrMissingPayloadKey)
		})
	}

	t.Run("ids are unique", func(t *testing.T) {
		a, err := NewEvent(EventAllocate, "x", Payload{KeyOrderID: "O-1"})
		require.NoError(t, err)
		b, err := NewEvent(EventAllocate, "x", Payload{KeyOrderID: "O-1"})
		require.NoError(t, err)
		assert.NotEqual(t, a.ID, b.ID)
	})
}

func TestEventPayloadIsImmutable(t *testing.T) {
	payload := Payload{KeyOrderID: "O-1", KeyHours: 4}
	ev, err := NewEvent(EventCapacityCheck, "x", payload)
	require.NoError(t, err)

	// mutating the caller's map does not reach the event
	payload[KeyOrderID] = "changed"
	assert.Equal(t, "O-1", ev.Str(KeyOrderID))

	// nor does mutating a copy handed out by Data
	data := ev.Data()
	data[KeyHours] = 99
	hours, ok := ev.Int(KeyHours)
	require.True(t, ok)
	assert.Equal(t, 4, hours)
}

func TestEventAccessors(t *testing.T) {
	deadline := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	ev, err := NewEvent(EventUrgentOrder, "x", Payload{
		KeyOrderID:     "O-7",
		KeyDeadline:    "2024-03-01",
		KeyRequirement: "CNC",
		KeyHours:       "12",
		KeyPriority:    "high",
		"float":        3.0,
	})
	require.NoError(t, err)

	got, ok := ev.Time(KeyDeadline)
	require.True(t, ok)
	assert.True(t, deadline.Equal(got))

	hours, ok := ev.Int(KeyHours)
	require.True(t, ok)
	assert.Equal(t, 12, hours)

	f, ok := ev.Int("float")
	require.True(t, ok)
	assert.Equal(t, 3, f)

	assert.Equal(t, PriorityHigh, ev.Priority())
	assert.Equal(t, "CNC", ev.Str(KeyRequirement))
	assert.Equal(t, "", ev.Str("absent"))

	_, ok = ev.Value("absent")
	assert.False(t, ok)
	_, ok = ev.Time("absent")
	assert.False(t, ok)
}

func TestEventPriorityDefaultsToMedium(t *testing.T) {
	ev, err := NewEvent(EventCapacityCheck, "x", Payload{KeyOrderID: "O-1"})
	require.NoError(t, err)
	assert.Equal(t, PriorityMedium, ev.Priority())

	ev, err = NewEvent(EventCapacityCheck, "x", Payload{KeyOrderID: "O-1", KeyPriority: 9})
	require.NoError(t, err)
	assert.Equal(t, PriorityMedium, ev.Priority())
}

func TestOrderPayload(t *testing.T) {
	deadline := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	order := OrderPayload{
		OrderID:     "O-42",
		Deadline:    deadline,
		Requirement: "lathe",
		Priority:    PriorityHigh,
		Hours:       8,
		Extra:       map[string]any{"customer": "acme", KeyOrderID: "ignored"},
	}
	require.NoError(t, order.Validate())

	p := order.ToPayload()
	assert.Equal(t, "O-42", p[KeyOrderID], "typed fields win over Extra")
	assert.Equal(t, deadline, p[KeyDeadline])
	assert.Equal(t, "lathe", p[KeyRequirement])
	assert.Equal(t, PriorityHigh, p[KeyPriority])
	assert.Equal(t, 8, p[KeyHours])
	assert.Equal(t, "acme", p["customer"])

	minimal := OrderPayload{OrderID: "O-1"}.ToPayload()
	assert.Len(t, minimal, 1)

	assert.ErrorIs(t, OrderPayload{}.Validate(), ErrMissingPayloadKey)
	assert.Error(t, OrderPayload{OrderID: "O-1", Hours: -1}.Validate())
}

func TestPriorityString(t *testing.T) {
	assert.Equal(t, "low", PriorityLow.String())
	assert.Equal(t, "medium", PriorityMedium.String())
	assert.Equal(t, "high", PriorityHigh.String())
	assert.Equal(t, "unknown", Priority(0).String())
}

func TestRequiredKeysReturnsCopy(t *testing.T) {
	keys := RequiredKeys(EventAllocate)
	require.Equal(t, []string{KeyOrderID}, keys)
	keys[0] = "mutated"
	assert.Equal(t, []string{KeyOrderID}, RequiredKeys(EventAllocate))
}
