// Package queue serializes concurrent inbound events into one-at-a-time
// handler invocations, in strict (priority, arrival) order, with bounded
// memory.
package queue

import (
	"container/heap"
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/majordomo-home/majordomo/internal/event"
	"github.com/majordomo-home/majordomo/internal/metrics"
)

// ErrStopped is returned by Push and Run once the queue has been stopped.
var ErrStopped = errors.New("event queue stopped")

const (
	// DefaultCapacity bounds the queue; Push blocks when it is reached.
	DefaultCapacity = 1000
	// DefaultIdleWait bounds how long the processing loop sleeps with no
	// events, so a stop signal is observed promptly.
	DefaultIdleWait = time.Second
)

// Handler reacts to one event. Handlers run strictly sequentially with
// respect to each other.
type Handler func(ctx context.Context, ev *event.Event) error

type runState int

const (
	stateNotStarted runState = iota
	stateRunning
	stateStopped
)

// Queue is a bounded priority queue with a single-consumer processing loop.
type Queue struct {
	mu       sync.Mutex
	notFull  *sync.Cond
	items    eventHeap
	capacity int
	idleWait time.Duration
	handlers map[string]Handler
	state    runState

	signal chan struct{}
	stop   chan struct{}
	once   sync.Once
	log    *slog.Logger
}

// New creates a Queue. capacity <= 0 and idleWait <= 0 take the defaults.
func New(capacity int, idleWait time.Duration, log *slog.Logger) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if idleWait <= 0 {
		idleWait = DefaultIdleWait
	}
	q := &Queue{
		capacity: capacity,
		idleWait: idleWait,
		handlers: make(map[string]Handler),
		signal:   make(chan struct{}, 1),
		stop:     make(chan struct{}),
		log:      log,
	}
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// RegisterHandler associates the handler for an event type. Re-registration
// replaces the previous handler (last writer wins). This is a
// configuration-time call; it is not meant to race with Run.
func (q *Queue) RegisterHandler(eventType string, h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[eventType] = h
	q.log.Debug("handler registered", "event_type", eventType)
}

// Push inserts an event respecting the priority total order. When the queue
// is full, Push blocks until space frees up; this is the backpressure point
// for the whole pipeline. An event is never silently dropped: the only
// failure is ErrStopped after Stop.
func (q *Queue) Push(ev *event.Event) error {
	q.mu.Lock()
	for len(q.items) >= q.capacity && q.state != stateStopped {
		q.notFull.Wait()
	}
	if q.state == stateStopped {
		q.mu.Unlock()
		return ErrStopped
	}
	heap.Push(&q.items, ev)
	depth := len(q.items)
	q.mu.Unlock()

	metrics.EventsEnqueued.Inc()
	metrics.QueueDepth.Set(float64(depth))
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return nil
}

// Run is the processing loop: it pops the highest-priority, oldest event and
// invokes its handler, one event at a time. Events with no registered handler
// are logged and dropped. A handler error or panic is logged and does not
// abort the loop. There is no per-event timeout: a stuck handler stalls all
// subsequent events.
//
// Run returns nil once Stop is called or ctx is canceled, within one idle
// interval. A Queue runs at most once; there is no restart from stopped.
func (q *Queue) Run(ctx context.Context) error {
	q.mu.Lock()
	if q.state != stateNotStarted {
		q.mu.Unlock()
		return ErrStopped
	}
	q.state = stateRunning
	q.mu.Unlock()
	q.log.Info("event queue running", "capacity", q.capacity)

	for {
		select {
		case <-q.stop:
			return nil
		case <-ctx.Done():
			q.Stop()
			return nil
		default:
		}

		ev := q.pop()
		if ev == nil {
			select {
			case <-q.stop:
				return nil
			case <-ctx.Done():
				q.Stop()
				return nil
			case <-q.signal:
			case <-time.After(q.idleWait):
			}
			continue
		}
		q.process(ctx, ev)
	}
}

// Stop transitions the queue to its terminal state, wakes the processing loop
// and releases any pushers blocked on a full queue.
func (q *Queue) Stop() {
	q.once.Do(func() {
		q.mu.Lock()
		q.state = stateStopped
		q.mu.Unlock()
		close(q.stop)
		q.notFull.Broadcast()
		q.log.Info("event queue stopped")
	})
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int { return q.capacity }

// Utilization returns queue used / capacity (0–1).
func (q *Queue) Utilization() float64 {
	return float64(q.Len()) / float64(q.capacity)
}

func (q *Queue) pop() *event.Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	ev := heap.Pop(&q.items).(*event.Event)
	metrics.QueueDepth.Set(float64(len(q.items)))
	q.notFull.Signal()
	return ev
}

func (q *Queue) process(ctx context.Context, ev *event.Event) {
	q.mu.Lock()
	h, ok := q.handlers[ev.Type]
	q.mu.Unlock()
	if !ok {
		q.log.Warn("no handler registered, event dropped", "event", ev.String())
		metrics.EventsUnhandled.Inc()
		return
	}

	defer func() {
		if r := recover(); r != nil {
			q.log.Error("handler panicked", "event", ev.String(), "panic", r)
			metrics.HandlerFailures.WithLabelValues(ev.Type).Inc()
		}
	}()
	if err := h(ctx, ev); err != nil {
		q.log.Error("handler failed", "event", ev.String(), "err", err)
		metrics.HandlerFailures.WithLabelValues(ev.Type).Inc()
	}
	metrics.EventsProcessed.Inc()
}

// eventHeap orders events by priority descending, then arrival ascending.
type eventHeap []*event.Event

func (h eventHeap) Len() int            { return len(h) }
func (h eventHeap) Less(i, j int) bool  { return h[i].Less(h[j]) }
func (h eventHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *eventHeap) Push(x interface{}) { *h = append(*h, x.(*event.Event)) }
func (h *eventHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return x
}
