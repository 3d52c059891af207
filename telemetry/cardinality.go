package telemetry

import "sync"

// OverflowValue replaces label values beyond a label's limit.
const OverflowValue = "other"

// DefaultCardinalityLimits bounds the labels that carry agent or target names.
var DefaultCardinalityLimits = map[string]int{
	"target":     100,
	"subscriber": 100,
}

// CardinalityLimiter prevents unbounded metric cardinality
type CardinalityLimiter struct {
	limits map[string]int

	mu   sync.Mutex
	seen map[string]map[string]struct{} // "<metric>.<label>" -> values
}

// NewCardinalityLimiter creates a limiter. Labels missing from limits pass
// through unchanged.
func NewCardinalityLimiter(limits map[string]int) *CardinalityLimiter {
	copied := make(map[string]int, len(limits))
	for k, v := range limits {
		copied[k] = v
	}
	return &CardinalityLimiter{
		limits: copied,
		seen:   make(map[string]map[string]struct{}),
	}
}

// CheckAndLimit returns value, or OverflowValue once the label already has
// its limit of distinct values for metric.
func (c *CardinalityLimiter) CheckAndLimit(metric, label, value string) string {
	limit, hasLimit := c.limits[label]
	if !hasLimit {
		return value
	}

	key := metric + "." + label
	c.mu.Lock()
	defer c.mu.Unlock()

	values, ok := c.seen[key]
	if !ok {
		values = make(map[string]struct{})
		c.seen[key] = values
	}
	if _, exists := values[value]; exists {
		return value
	}
	if len(values) >= limit {
		return OverflowValue
	}
	values[value] = struct{}{}
	return value
}

// Apply returns a copy of labels with limited values replaced.
func (c *CardinalityLimiter) Apply(metric string, labels map[string]string) map[string]string {
	if len(labels) == 0 {
		return labels
	}
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		out[k] = c.CheckAndLimit(metric, k, v)
	}
	return out
}

// Cardinality returns the distinct values tracked for a metric label.
func (c *CardinalityLimiter) Cardinality(metric, label string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen[metric+"."+label])
}
