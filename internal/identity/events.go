package identity

import "sync"

// EventType names the auth-state changes the identity service reports.
type EventType string

const (
	EventSignedIn         EventType = "SIGNED_IN"
	EventSignedOut        EventType = "SIGNED_OUT"
	EventTokenRefreshed   EventType = "TOKEN_REFRESHED"
	EventPasswordRecovery EventType = "PASSWORD_RECOVERY"
)

// Event is one auth-state change. Session is nil for sign-out.
type Event struct {
	Type    EventType
	Session *Session
}

// Broadcaster fans auth events out to subscribers in publish order. Events
// are delivered at most once per subscriber; a subscriber that falls behind
// its buffer loses the oldest-pending guarantee rather than blocking the
// publisher.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

// NewBroadcaster constructs an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan Event)}
}

// Subscribe registers a listener. The returned cancel function must be
// called when the listener goes away; the channel is closed then.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	ch := make(chan Event, 16)
	b.subs[id] = ch
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if ch, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
	}
}

// Publish delivers the event to every subscriber without blocking.
func (b *Broadcaster) Publish(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
}
