package engine

import (
	"sync"

	"github.com/roach88/cellrules/internal/cell"
)

// EventType distinguishes between event kinds.
type EventType int

const (
	// EventTypeCellValue carries a value delivered by the host.
	EventTypeCellValue EventType = iota + 1
	// EventTypeCellChange carries an applied cell change to dispatch.
	EventTypeCellChange
	// EventTypeTimer carries a timer fire.
	EventTypeTimer
	// EventTypeCallback carries a deferred callback (spawn completion etc).
	EventTypeCallback
	// EventTypeRunRules requests a full dispatch pass.
	EventTypeRunRules
	// EventTypeRunRule requests a forced run of a single rule.
	EventTypeRunRule
	// EventTypeCron carries a cron schedule hit for a rule.
	EventTypeCron
)

func (t EventType) String() string {
	switch t {
	case EventTypeCellValue:
		return "cell_value"
	case EventTypeCellChange:
		return "cell_change"
	case EventTypeTimer:
		return "timer"
	case EventTypeCallback:
		return "callback"
	case EventTypeRunRules:
		return "run_rules"
	case EventTypeRunRule:
		return "run_rule"
	case EventTypeCron:
		return "cron"
	default:
		return "unknown"
	}
}

// Event is a unit of work for the event loop.
type Event struct {
	Type     EventType
	Ref      cell.Ref
	Value    cell.Value
	Change   cell.Change
	TimerID  TimerID
	Rule     *Rule
	Source   string
	Callback func()
}

// eventQueue is a thread-safe FIFO queue for events.
//
// The queue is unbounded so that cascading cell changes and timer fires
// never block the goroutine that produces them. The signal channel enables
// context-aware waiting in the Run loop.
type eventQueue struct {
	mu     sync.Mutex
	events []Event
	closed bool
	signal chan struct{} // buffered, size 1
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]Event, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an event to the back of the queue.
// Returns false if the queue is closed.
func (q *eventQueue) Enqueue(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.events = append(q.events, e)

	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes the front event without blocking.
func (q *eventQueue) TryDequeue() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return Event{}, false
	}

	e := q.events[0]
	// Drop the slot so the callback and value can be collected.
	q.events[0] = Event{}

	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}

	return e, true
}

// Wait returns a channel that signals when events may be available.
// The channel is closed when the queue is closed.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Closed reports whether Close was called.
func (q *eventQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close stops accepting events and wakes any waiter.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
