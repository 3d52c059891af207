// Package scheduling holds the weekly schedule model, the capacity guard
// that gates scheduling results, and the planner that runs the guarded
// scheduler on a cron expression.
package scheduling

import "context"

// ScheduleItem is one job in a scheduling result. JobID is opaque.
type ScheduleItem struct {
	JobID string `json:"job_id" yaml:"job_id"`
	Hours int    `json:"hours" yaml:"hours"`
}

// Schedule is an ordered scheduling result.
type Schedule []ScheduleItem

// TotalLoad returns the sum of hours across all items.
func (s Schedule) TotalLoad() int {
	total := 0
	for _, item := range s {
		total += item.Hours
	}
	return total
}

// JobIDs returns the job ids in order.
func (s Schedule) JobIDs() []string {
	ids := make([]string, len(s))
	for i, item := range s {
		ids[i] = item.JobID
	}
	return ids
}

// Clone returns a copy that shares no backing array with s.
func (s Schedule) Clone() Schedule {
	if s == nil {
		return nil
	}
	out := make(Schedule, len(s))
	copy(out, s)
	return out
}

// ScheduleFunc computes a scheduling result.
type ScheduleFunc func(ctx context.Context) (Schedule, error)
