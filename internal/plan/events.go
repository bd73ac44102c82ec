package plan

import (
	crand "crypto/rand"
	"encoding/hex"
	"sync"

	"github.com/google/uuid"
)

// EventKind identifies what changed in the store.
type EventKind string

const (
	EventProjectCreated EventKind = "project_created"
	EventProjectUpdated EventKind = "project_updated"
	EventProjectDeleted EventKind = "project_deleted"
)

// Event describes one store mutation. UI layers subscribe to drive list
// refreshes; the core never depends on anyone listening.
type Event struct {
	Kind      EventKind `json:"kind"`
	ProjectID uuid.UUID `json:"project_id"`
}

// Notifier fans store events out to any number of subscribers. Publishes
// never block: a subscriber that falls behind misses events rather than
// stalling a mutation.
type Notifier struct {
	mu          sync.Mutex
	subscribers map[string]chan Event
}

// NewNotifier creates an empty notifier.
func NewNotifier() *Notifier {
	return &Notifier{subscribers: make(map[string]chan Event)}
}

// randomID generates a random subscriber ID (8 byte random hex encoded value).
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// Subscribe registers a new buffered event channel. The returned id is used
// to unsubscribe.
func (n *Notifier) Subscribe() (string, <-chan Event) {
	id := randomID()
	ch := make(chan Event, 16)
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (n *Notifier) Unsubscribe(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if ch, ok := n.subscribers[id]; ok {
		close(ch)
		delete(n.subscribers, id)
	}
}

// Publish delivers an event to every subscriber that has buffer room.
func (n *Notifier) Publish(e Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subscribers {
		select {
		case ch <- e:
		default:
			// slow subscriber, skip so mutations never block
		}
	}
}
