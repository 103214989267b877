package sessiongate

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/velatir/sessiongate/httpapi"
)

// EventReason defines a public type used by sessiongate APIs.
//
// EventReason instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type EventReason string

const (
	// EventResolved is an exported constant or variable used by the session manager.
	EventResolved EventReason = "resolved"
	// EventSignedIn is an exported constant or variable used by the session manager.
	EventSignedIn EventReason = "signed_in"
	// EventSignedOut is an exported constant or variable used by the session manager.
	EventSignedOut EventReason = "signed_out"
	// EventRenewed is an exported constant or variable used by the session manager.
	EventRenewed EventReason = "renewed"
	// EventForcedSignOut is an exported constant or variable used by the session manager.
	EventForcedSignOut EventReason = "forced_signout"
	// EventBackgroundUpgrade is an exported constant or variable used by the session manager.
	EventBackgroundUpgrade EventReason = "background_upgrade"
	// EventDeviceTrustChanged is an exported constant or variable used by the session manager.
	EventDeviceTrustChanged EventReason = "device_trust_changed"
)

// Event is a session state notification delivered to subscribers.
//
// Every finished resolution publishes one event carrying the identity
// the check settled on: [EventResolved] for ordinary completions, a
// more specific reason when the completion is also a transition.
// User is nil for the anonymous state. RedirectTo is non-empty only
// when the event asks the host to navigate, such as a forced sign-out
// landing on the sign-in page.
//
//	Docs: docs/resolution.md
type Event struct {
	Reason     EventReason
	User       *httpapi.Identity
	RedirectTo string
	At         time.Time
}

// identityBus fans session events out to subscribers. Delivery is
// best-effort: a subscriber whose channel is full loses the event
// rather than stalling the manager.
type identityBus struct {
	mu     sync.RWMutex
	buffer int
	subs   map[string]chan Event
	closed bool
}

func newIdentityBus(buffer int) *identityBus {
	if buffer <= 0 {
		buffer = 1
	}
	return &identityBus{
		buffer: buffer,
		subs:   make(map[string]chan Event),
	}
}

func (b *identityBus) subscribe() (string, <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan Event)
		close(ch)
		return "", ch
	}

	id := uuid.NewString()
	ch := make(chan Event, b.buffer)
	b.subs[id] = ch
	return id, ch
}

func (b *identityBus) unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subs[id]
	if !ok {
		return
	}
	delete(b.subs, id)
	close(ch)
}

func (b *identityBus) publish(event Event) {
	if b == nil {
		return
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

func (b *identityBus) close() {
	if b == nil {
		return
	}

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
