package scan

import (
	"sync"
	"time"
)

// EventKind identifies the kind of a published Event (spec §4.G).
type EventKind string

const (
	EventStarted  EventKind = "started"
	EventProgress EventKind = "progress"
	EventWarning  EventKind = "warning"
	EventFinished EventKind = "finished"
	EventCanceled EventKind = "canceled"
)

// ProgressPayload carries the running counters of a progress event.
type ProgressPayload struct {
	Dirs, Files, BytesLogical, BytesAllocated, Warnings int64
}

// Totals carries the final sums of a finished event.
type Totals struct {
	LogicalSize, AllocatedSize int64
	DirCount, FileCount        int64
	WarningCount               int64
}

// Event is one message on the Event Bus. Exactly the fields relevant to Kind
// are populated.
type Event struct {
	Kind      EventKind
	ScanID    string
	Roots     []string
	StartedAt time.Time

	Progress *ProgressPayload
	Warning  *Warning

	Status     string
	Totals     *Totals
	FinishedAt time.Time
}

// ringSize bounds per-subscriber buffering: once a slow subscriber's buffer
// is full, newly published non-terminal events are dropped for it rather
// than block publishers or grow without bound (spec §4.G, §5: "publishing to
// the event bus never blocks").
const ringSize = 64

// EventBus is a multi-producer, multi-subscriber broadcast channel scoped
// per process (spec §4.G). Subscribers receive events published after they
// subscribe; a subscriber that falls behind loses intermediate progress
// events but never loses terminal (finished/canceled) events, which send on
// a best-effort basis with one retry slot freed by evicting the oldest
// buffered event.
type EventBus struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

// NewEventBus constructs an empty, process-wide EventBus.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[int]chan Event)}
}

// Subscribe registers a new subscriber and returns its channel plus an
// unsubscribe function. The channel is closed by Unsubscribe.
func (b *EventBus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	id := b.next
	b.next++
	ch := make(chan Event, ringSize)
	b.subs[id] = ch
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
		b.mu.Unlock()
	}
}

// Publish broadcasts an event to every current subscriber. It never blocks:
// a non-terminal event is not delivered to a subscriber whose buffer is
// full (the buffered events stay), while a terminal event (finished/canceled)
// evicts that subscriber's oldest buffered event to make room.
func (b *EventBus) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			if isTerminal(e.Kind) {
				// Make room for a terminal event: drop the oldest buffered
				// event and retry once.
				select {
				case <-ch:
				default:
				}
				select {
				case ch <- e:
				default:
				}
			}
		}
	}
}

func isTerminal(k EventKind) bool {
	return k == EventFinished || k == EventCanceled
}
