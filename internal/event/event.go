package event

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Priority determines dequeue precedence. Higher values dequeue first.
type Priority int

const (
	PriorityLow      Priority = 1
	PriorityNormal   Priority = 2
	PriorityHigh     Priority = 3
	PriorityCritical Priority = 4
)

// ParsePriority maps the wire labels to priority bands.
// Anything unrecognized (including empty) is NORMAL.
func ParsePriority(label string) Priority {
	switch label {
	case "critical":
		return PriorityCritical
	case "high":
		return PriorityHigh
	case "low":
		return PriorityLow
	default:
		return PriorityNormal
	}
}

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "normal"
	}
}

// seq breaks ties between events created within the same clock tick, so FIFO
// order within a priority band is exact.
var seq atomic.Uint64

// Event is the canonical input model for all incoming module events.
// Immutable after creation.
type Event struct {
	Module    string
	Type      string
	Priority  Priority
	Timestamp time.Time
	Seq       uint64
	Data      Payload
}

// New creates an Event stamped with the current time and a fresh sequence number.
func New(module, eventType string, data Payload, priority Priority) *Event {
	return &Event{
		Module:    module,
		Type:      eventType,
		Priority:  priority,
		Timestamp: time.Now(),
		Seq:       seq.Add(1),
		Data:      data,
	}
}

// Less reports whether e should be dequeued before other:
// higher priority first, then earlier arrival.
func (e *Event) Less(other *Event) bool {
	if e.Priority != other.Priority {
		return e.Priority > other.Priority
	}
	if !e.Timestamp.Equal(other.Timestamp) {
		return e.Timestamp.Before(other.Timestamp)
	}
	return e.Seq < other.Seq
}

func (e *Event) String() string {
	return fmt.Sprintf("%s.%s (%s)", e.Module, e.Type, e.Priority)
}
