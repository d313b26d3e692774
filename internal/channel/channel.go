package channel

import "context"

// Channel opens logical pub/sub topics, one per document. All realtime
// traffic between editor sessions flows through a Handle; sessions never talk
// to each other directly.
type Channel interface {
	// Join subscribes to the document's topic and returns the session's
	// handle. A session holds at most one handle per document.
	Join(ctx context.Context, documentID string) (Handle, error)
}

// Handle is one session's binding to a document topic.
//
// Messages published through Send are delivered to every subscriber of the
// topic, including the sender. Delivery is at-most-once and unordered;
// receivers are expected to filter self-echo and tolerate loss.
type Handle interface {
	DocumentID() string

	// Send publishes an event. Sending on a left handle is a silent no-op:
	// UI actions may race a teardown.
	Send(ctx context.Context, event string, payload interface{}) error

	// On registers a handler for an event name. Handlers for the same handle
	// are invoked sequentially, never concurrently with each other.
	On(event string, fn Handler)

	// Track registers this session in the topic's presence set under the
	// given key, with an arbitrary metadata document. Re-tracking the same
	// key overwrites the metadata and announces it again.
	Track(ctx context.Context, key string, meta interface{}) error

	// Untrack removes this session from the presence set and announces the
	// departure.
	Untrack(ctx context.Context) error

	// Presence returns the full presence set, key to metadata. This is the
	// authoritative reconciliation point for missed join/leave events.
	Presence(ctx context.Context) (map[string][]byte, error)

	// OnPresence registers a handler for presence join/leave announcements.
	OnPresence(fn PresenceHandler)

	// Leave unsubscribes and releases the handle. Idempotent.
	Leave() error
}

// Handler receives the raw payload of a published event.
type Handler func(payload []byte)

type PresenceEventKind int

const (
	PresenceJoin PresenceEventKind = iota
	PresenceLeave
)

type PresenceEvent struct {
	Kind PresenceEventKind
	Key  string
	Meta []byte // set for joins, nil for leaves
}

type PresenceHandler func(ev PresenceEvent)
