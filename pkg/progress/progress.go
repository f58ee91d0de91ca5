// Package progress carries human-readable progress events from the
// deployment engine and the extraction orchestrator to whoever is listening.
//
// Delivery is advisory: a subscriber that does not keep up loses events
// rather than slowing the publisher down.
package progress

import (
	"sync"
	"time"
)

// Kind classifies an event
type Kind int

const (
	KindInfo Kind = iota
	KindWarn
	KindError
	// KindState marks an extraction state transition; State is set
	KindState
)

func (k Kind) String() string {
	switch k {
	case KindInfo:
		return "info"
	case KindWarn:
		return "warn"
	case KindError:
		return "error"
	case KindState:
		return "state"
	default:
		return "unknown"
	}
}

// Event is a single progress message
type Event struct {
	Time    time.Time
	Kind    Kind
	Package string
	Action  string
	Message string
	// State is the extraction state name for KindState events
	State   string
	CycleID string
}

// Reporter receives progress events
type Reporter interface {
	Publish(Event)
}

// Func adapts a plain function to a Reporter
type Func func(Event)

func (f Func) Publish(e Event) { f(e) }

// Discard drops every event
var Discard Reporter = Func(func(Event) {})

// DefaultBuffer is the channel size used by Subscribe when none is given
const DefaultBuffer = 64

// Bus fans events out to any number of subscribers
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	now    func() time.Time
	closed bool
}

// NewBus creates an empty bus
func NewBus() *Bus {
	return &Bus{
		subs: make(map[int]chan Event),
		now:  time.Now,
	}
}

// Subscribe returns a channel receiving every event published from now on
// and a function that ends the subscription and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
}

// Publish delivers e to every subscriber without blocking
func (b *Bus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = b.now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Close ends every subscription
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

// Multi forwards events to several reporters
func Multi(reporters ...Reporter) Reporter {
	return Func(func(e Event) {
		for _, r := range reporters {
			if r != nil {
				r.Publish(e)
			}
		}
	})
}
