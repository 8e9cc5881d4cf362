package updater

import "sync"

// EventChannel is the IPC channel updater events are broadcast on.
const EventChannel = "updater:event"

// EventType names an updater lifecycle event
type EventType string

const (
	EventChecking     EventType = "checking"
	EventAvailable    EventType = "available"
	EventNotAvailable EventType = "not-available"
	EventProgress     EventType = "progress"
	EventDownloaded   EventType = "downloaded"
	EventError        EventType = "error"
	EventCancelled    EventType = "cancelled"
)

// Event is delivered to subscribers and broadcast to IPC targets.
type Event struct {
	Type        EventType `json:"type"`
	Version     string    `json:"version,omitempty"`
	Transferred int64     `json:"transferred,omitempty"`
	Total       int64     `json:"total,omitempty"`
	Percent     float64   `json:"percent,omitempty"`
	Path        string    `json:"path,omitempty"`
	Error       string    `json:"error,omitempty"`
}

const subscriberBuffer = 32

// fanout delivers events to subscriber channels without blocking. A slow
// subscriber loses events rather than stalling a download.
type fanout struct {
	mu     sync.Mutex
	next   int
	subs   map[int]chan Event
	closed bool
}

func newFanout() *fanout {
	return &fanout{subs: make(map[int]chan Event)}
}

func (f *fanout) subscribe() (<-chan Event, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if f.closed {
		close(ch)
		return ch, func() {}
	}

	key := f.next
	f.next++
	f.subs[key] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			if c, ok := f.subs[key]; ok {
				delete(f.subs, key)
				close(c)
			}
		})
	}
}

func (f *fanout) publish(ev Event) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, ch := range f.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (f *fanout) close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true
	for key, ch := range f.subs {
		delete(f.subs, key)
		close(ch)
	}
}
