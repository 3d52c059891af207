// Package agents implements the three roles of the manufacturing system:
// an order agent that broadcasts, and resource and scheduler agents that
// subscribe to it.
package agents

import (
	"fmt"
	"time"

	"github.com/itsneelabh/gomind-mas/core"
)

// Job is one unit of work waiting in the scheduler queue.
type Job struct {
	OrderID     string
	Deadline    time.Time
	Hours       int
	Priority    core.Priority
	Requirement string
}

// Urgent reports whether the job carries high priority.
func (j Job) Urgent() bool {
	return j.Priority >= core.PriorityHigh
}

func (j Job) String() string {
	if j.Deadline.IsZero() {
		return fmt.Sprintf("%s(%s, %dh)", j.OrderID, j.Priority, j.Hours)
	}
	return fmt.Sprintf("%s(%s, %dh, due %s)", j.OrderID, j.Priority, j.Hours, j.Deadline.Format(time.DateOnly))
}

// JobFromEvent reads a job out of an order event payload. Missing optional
// fields stay at their zero value; priority defaults to medium.
func JobFromEvent(event core.Event) Job {
	job := Job{
		OrderID:     event.Str(core.KeyOrderID),
		Requirement: event.Str(core.KeyRequirement),
		Priority:    event.Priority(),
	}
	if hours, ok := event.Int(core.KeyHours); ok {
		job.Hours = hours
	}
	if deadline, ok := event.Time(core.KeyDeadline); ok {
		job.Deadline = deadline
	}
	return job
}

func orderIDs(jobs []Job) []string {
	ids := make([]string, len(jobs))
	for i, j := range jobs {
		ids[i] = j.OrderID
	}
	return ids
}
