package engine

import (
	"sync"
	"time"

	"go.lipi.dev/providerd/ulid"
)

// EventType classifies status events. Events are meant for display, the
// Selection is the source of truth.
type EventType string

const (
	EventConnect          EventType = "connect"
	EventDisconnect       EventType = "disconnect"
	EventFallbackSwitched EventType = "fallback-switched"
	EventScanComplete     EventType = "scan-complete"
	EventDegraded         EventType = "degraded"
	EventRegistryReloaded EventType = "registry-reloaded"
)

const (
	recentEvents     = 100
	subscriberBuffer = 32
)

type Event struct {
	ID         string    `json:"id"`
	Time       time.Time `json:"time"`
	Type       EventType `json:"type"`
	Descriptor string    `json:"descriptor,omitempty"`
	Previous   string    `json:"previous,omitempty"`
	Generation uint64    `json:"generation"`
	Message    string    `json:"message"`
}

type eventBus struct {
	mu      sync.Mutex
	recent  []Event
	subs    map[int]chan Event
	nextSub int

	// dropped is called for each event a slow subscriber missed
	dropped func()
}

func newEventBus(dropped func()) *eventBus {
	return &eventBus{
		subs:    map[int]chan Event{},
		dropped: dropped,
	}
}

func (b *eventBus) publish(ev Event) Event {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	if ev.ID == "" {
		ev.ID = ulid.Make(ev.Time)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.recent = append(b.recent, ev)
	if over := len(b.recent) - recentEvents; over > 0 {
		b.recent = append(b.recent[:0:0], b.recent[over:]...)
	}

	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			if b.dropped != nil {
				b.dropped()
			}
		}
	}
	return ev
}

func (b *eventBus) subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextSub
	b.nextSub++
	ch := make(chan Event, subscriberBuffer)
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(ch)
		})
	}
}

// list returns up to n of the most recent events, oldest first. n <= 0
// returns all retained events.
func (b *eventBus) list(n int) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	start := 0
	if n > 0 && n < len(b.recent) {
		start = len(b.recent) - n
	}
	out := make([]Event, len(b.recent)-start)
	copy(out, b.recent[start:])
	return out
}
