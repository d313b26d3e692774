package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemoryChannel is an in-process Channel used by tests and single-node
// deployments. Delivery semantics mirror the Redis binding: every subscriber
// of a topic receives every published message, sender included.
type MemoryChannel struct {
	mu     sync.Mutex
	topics map[string]*memTopic
}

type memTopic struct {
	mu       sync.Mutex
	handles  map[*memHandle]struct{}
	presence map[string][]byte
}

func NewMemoryChannel() *MemoryChannel {
	return &MemoryChannel{topics: make(map[string]*memTopic)}
}

func (c *MemoryChannel) topic(documentID string) *memTopic {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.topics[documentID]
	if !ok {
		t = &memTopic{
			handles:  make(map[*memHandle]struct{}),
			presence: make(map[string][]byte),
		}
		c.topics[documentID] = t
	}
	return t
}

func (c *MemoryChannel) Join(ctx context.Context, documentID string) (Handle, error) {
	t := c.topic(documentID)
	h := &memHandle{
		documentID: documentID,
		topic:      t,
		handlers:   make(map[string][]Handler),
	}
	t.mu.Lock()
	t.handles[h] = struct{}{}
	t.mu.Unlock()
	return h, nil
}

type memHandle struct {
	documentID string
	topic      *memTopic

	mu               sync.Mutex
	handlers         map[string][]Handler
	presenceHandlers []PresenceHandler
	trackedKey       string
	left             bool
}

func (h *memHandle) DocumentID() string { return h.documentID }

func (h *memHandle) Send(ctx context.Context, event string, payload interface{}) error {
	h.mu.Lock()
	left := h.left
	h.mu.Unlock()
	if left {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}
	h.topic.broadcast(event, raw)
	return nil
}

func (t *memTopic) broadcast(event string, raw []byte) {
	t.mu.Lock()
	subs := make([]*memHandle, 0, len(t.handles))
	for s := range t.handles {
		subs = append(subs, s)
	}
	t.mu.Unlock()

	for _, s := range subs {
		s.dispatch(event, raw)
	}
}

func (t *memTopic) announce(ev PresenceEvent) {
	t.mu.Lock()
	subs := make([]*memHandle, 0, len(t.handles))
	for s := range t.handles {
		subs = append(subs, s)
	}
	t.mu.Unlock()

	for _, s := range subs {
		s.mu.Lock()
		fns := append([]PresenceHandler(nil), s.presenceHandlers...)
		s.mu.Unlock()
		for _, fn := range fns {
			fn(ev)
		}
	}
}

func (h *memHandle) dispatch(event string, raw []byte) {
	h.mu.Lock()
	fns := append([]Handler(nil), h.handlers[event]...)
	h.mu.Unlock()
	for _, fn := range fns {
		fn(raw)
	}
}

func (h *memHandle) On(event string, fn Handler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[event] = append(h.handlers[event], fn)
}

func (h *memHandle) OnPresence(fn PresenceHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.presenceHandlers = append(h.presenceHandlers, fn)
}

func (h *memHandle) Track(ctx context.Context, key string, meta interface{}) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal presence meta: %w", err)
	}

	h.topic.mu.Lock()
	h.topic.presence[key] = raw
	h.topic.mu.Unlock()

	h.mu.Lock()
	h.trackedKey = key
	h.mu.Unlock()

	h.topic.announce(PresenceEvent{Kind: PresenceJoin, Key: key, Meta: raw})
	return nil
}

func (h *memHandle) Untrack(ctx context.Context) error {
	h.mu.Lock()
	key := h.trackedKey
	h.trackedKey = ""
	h.mu.Unlock()

	if key == "" {
		return nil
	}

	h.topic.mu.Lock()
	delete(h.topic.presence, key)
	h.topic.mu.Unlock()

	h.topic.announce(PresenceEvent{Kind: PresenceLeave, Key: key})
	return nil
}

func (h *memHandle) Presence(ctx context.Context) (map[string][]byte, error) {
	h.topic.mu.Lock()
	defer h.topic.mu.Unlock()
	out := make(map[string][]byte, len(h.topic.presence))
	for key, meta := range h.topic.presence {
		out[key] = append([]byte(nil), meta...)
	}
	return out, nil
}

func (h *memHandle) Leave() error {
	h.mu.Lock()
	if h.left {
		h.mu.Unlock()
		return nil
	}
	h.left = true
	h.mu.Unlock()

	h.topic.mu.Lock()
	delete(h.topic.handles, h)
	h.topic.mu.Unlock()
	return nil
}
