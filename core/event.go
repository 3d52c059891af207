package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EventType identifies what an agent is being told about.
type EventType string

const (
	EventCapacityCheck EventType = "capacity_check"
	EventAllocate      EventType = "allocate"
	EventUrgentOrder   EventType = "urgent_order"
)

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventCapacityCheck, EventAllocate, EventUrgentOrder:
		return true
	}
	return false
}

func (t EventType) String() string { return string(t) }

// ParseEventType accepts both the wire form ("urgent_order") and the
// upper-case constant form ("URGENT_ORDER").
func ParseEventType(s string) (EventType, error) {
	t := EventType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%q: %w", s, ErrUnknownEventType)
	}
	return t, nil
}

// Status is a resource agent's answer to a capacity check.
type Status string

const (
	StatusAvailable Status = "available"
	StatusBusy      Status = "busy"
)

// Priority ranks orders. Higher values are more urgent.
type Priority int

const (
	PriorityLow    Priority = 1
	PriorityMedium Priority = 2
	PriorityHigh   Priority = 3
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	default:
		return "unknown"
	}
}

// Well-known payload keys.
const (
	KeyOrderID     = "order_id"
	KeyDeadline    = "deadline"
	KeyRequirement = "requirement"
	KeyPriority    = "priority"
	KeyHours       = "hours"
)

// requiredKeys lists the payload keys each event type cannot do without.
var requiredKeys = map[EventType][]string{
	EventCapacityCheck: {KeyOrderID},
	EventAllocate:      {KeyOrderID},
	EventUrgentOrder:   {KeyOrderID},
}

// RequiredKeys returns the payload keys NewEvent enforces for t.
func RequiredKeys(t EventType) []string {
	keys := requiredKeys[t]
	out := make([]string, len(keys))
	copy(out, keys)
	return out
}

// Payload is the open key/value body of an event.
type Payload map[string]any

// Clone returns a shallow copy of p.
func (p Payload) Clone() Payload {
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Require returns ErrMissingPayloadKey for the first key that is absent,
// nil, or an empty string.
func (p Payload) Require(keys ...string) error {
	for _, k := range keys {
		v, ok := p[k]
		if !ok || v == nil {
			return fmt.Errorf("%q: %w", k, ErrMissingPayloadKey)
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			return fmt.Errorf("%q is empty: %w", k, ErrMissingPayloadKey)
		}
	}
	return nil
}

// OrderPayload is the typed form of an order event body.
type OrderPayload struct {
	OrderID     string
	Deadline    time.Time
	Requirement string
	Priority    Priority
	Hours       int
	Extra       map[string]any
}

// Validate checks the fields every order event needs.
func (o OrderPayload) Validate() error {
	if strings.TrimSpace(o.OrderID) == "" {
		return fmt.Errorf("%q: %w", KeyOrderID, ErrMissingPayloadKey)
	}
	if o.Hours < 0 {
		return fmt.Errorf("hours must be >= 0, got %d: %w", o.Hours, ErrInvalidConfiguration)
	}
	return nil
}

// ToPayload flattens the order into an open payload. Zero-valued optional
// fields are omitted; Extra keys never override typed fields.
func (o OrderPayload) ToPayload() Payload {
	p := make(Payload, len(o.Extra)+5)
	for k, v := range o.Extra {
		p[k] = v
	}
	p[KeyOrderID] = o.OrderID
	if !o.Deadline.IsZero() {
		p[KeyDeadline] = o.Deadline
	}
	if o.Requirement != "" {
		p[KeyRequirement] = o.Requirement
	}
	if o.Priority != 0 {
		p[KeyPriority] = o.Priority
	}
	if o.Hours != 0 {
		p[KeyHours] = o.Hours
	}
	return p
}

// Event is a single broadcast. It is immutable once built: the payload is
// cloned on construction and only handed out as copies.
type Event struct {
	ID         string
	Type       EventType
	Sender     string
	OccurredAt time.Time
	payload    Payload
}

// NewEvent validates the type and required payload keys and builds an event.
func NewEvent(eventType EventType, sender string, payload Payload) (Event, error) {
	if !eventType.Valid() {
		return Event{}, &FrameworkError{
			Op:   "core.NewEvent",
			Kind: "event",
			ID:   string(eventType),
			Err:  ErrUnknownEventType,
		}
	}
	if err := payload.Require(requiredKeys[eventType]...); err != nil {
		return Event{}, &FrameworkError{
			Op:   "core.NewEvent",
			Kind: "event",
			ID:   string(eventType),
			Err:  err,
		}
	}
	return Event{
		ID:         uuid.New().String(),
		Type:       eventType,
		Sender:     sender,
		OccurredAt: time.Now(),
		payload:    payload.Clone(),
	}, nil
}

// Data returns a copy of the payload.
func (e Event) Data() Payload {
	return e.payload.Clone()
}

// Value returns the raw payload value for key.
func (e Event) Value(key string) (any, bool) {
	v, ok := e.payload[key]
	return v, ok
}

// Str returns the payload value for key formatted as a string.
func (e Event) Str(key string) string {
	v, ok := e.payload[key]
	if !ok || v == nil {
		return ""
	}
	if s, isStr := v.(string); isStr {
		return s
	}
	return fmt.Sprint(v)
}

// Int returns the payload value for key as an int. Numeric strings are parsed.
func (e Event) Int(key string) (int, bool) {
	switch v := e.payload[key].(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case Priority:
		return int(v), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		return n, err == nil
	}
	return 0, false
}

// Time returns the payload value for key as a time. Strings are accepted in
// RFC 3339 or YYYY-MM-DD form.
func (e Event) Time(key string) (time.Time, bool) {
	switch v := e.payload[key].(type) {
	case time.Time:
		return v, true
	case string:
		for _, layout := range []string{time.RFC3339, time.DateOnly} {
			if t, err := time.Parse(layout, v); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// Priority returns the payload priority, defaulting to PriorityMedium.
func (e Event) Priority() Priority {
	if n, ok := e.Int(KeyPriority); ok && n >= int(PriorityLow) && n <= int(PriorityHigh) {
		return Priority(n)
	}
	if s := strings.ToLower(e.Str(KeyPriority)); s != "" {
		switch s {
		case "low":
			return PriorityLow
		case "high":
			return PriorityHigh
		}
	}
	return PriorityMedium
}
