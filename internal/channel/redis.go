package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Internal envelope events used for presence announcements. They share the
// document topic with regular messages so subscribers need a single
// subscription per document.
const (
	presenceJoinEvent  = "__presence_join"
	presenceLeaveEvent = "__presence_leave"
)

type envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

type presenceAnnounce struct {
	Key  string          `json:"key"`
	Meta json.RawMessage `json:"meta,omitempty"`
}

// RedisChannel implements Channel on top of Redis pub/sub. One Redis topic
// per document carries all message traffic; a Redis hash per document holds
// the presence set.
type RedisChannel struct {
	rdb *redis.Client
}

func NewRedisChannel(rdb *redis.Client) *RedisChannel {
	return &RedisChannel{rdb: rdb}
}

func (c *RedisChannel) Join(ctx context.Context, documentID string) (Handle, error) {
	h := &redisHandle{
		rdb:        c.rdb,
		documentID: documentID,
		topic:      "doc:" + documentID,
		handlers:   make(map[string][]Handler),
	}

	h.pubsub = c.rdb.Subscribe(ctx, h.topic)
	// Wait for the subscription to be established before reporting success,
	// otherwise early sends could be published into the void.
	if _, err := h.pubsub.Receive(ctx); err != nil {
		_ = h.pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", h.topic, err)
	}

	go h.readLoop()

	return h, nil
}

type redisHandle struct {
	rdb        *redis.Client
	documentID string
	topic      string
	pubsub     *redis.PubSub

	mu               sync.Mutex
	handlers         map[string][]Handler
	presenceHandlers []PresenceHandler
	trackedKey       string
	left             bool
}

func (h *redisHandle) DocumentID() string { return h.documentID }

func (h *redisHandle) presenceSet() string { return "presence:" + h.documentID }

func (h *redisHandle) readLoop() {
	for msg := range h.pubsub.Channel() {
		var env envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			log.Printf("channel %s: dropping malformed message: %v", h.topic, err)
			continue
		}

		switch env.Event {
		case presenceJoinEvent, presenceLeaveEvent:
			var ann presenceAnnounce
			if err := json.Unmarshal(env.Payload, &ann); err != nil {
				log.Printf("channel %s: dropping malformed presence event: %v", h.topic, err)
				continue
			}
			ev := PresenceEvent{Kind: PresenceJoin, Key: ann.Key, Meta: ann.Meta}
			if env.Event == presenceLeaveEvent {
				ev = PresenceEvent{Kind: PresenceLeave, Key: ann.Key}
			}
			h.mu.Lock()
			fns := append([]PresenceHandler(nil), h.presenceHandlers...)
			h.mu.Unlock()
			for _, fn := range fns {
				fn(ev)
			}
		default:
			h.mu.Lock()
			fns := append([]Handler(nil), h.handlers[env.Event]...)
			h.mu.Unlock()
			for _, fn := range fns {
				fn(env.Payload)
			}
		}
	}
}

func (h *redisHandle) publish(ctx context.Context, event string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}
	data, err := json.Marshal(envelope{Event: event, Payload: raw})
	if err != nil {
		return err
	}
	return h.rdb.Publish(ctx, h.topic, data).Err()
}

func (h *redisHandle) Send(ctx context.Context, event string, payload interface{}) error {
	h.mu.Lock()
	left := h.left
	h.mu.Unlock()
	if left {
		return nil
	}
	return h.publish(ctx, event, payload)
}

func (h *redisHandle) On(event string, fn Handler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[event] = append(h.handlers[event], fn)
}

func (h *redisHandle) OnPresence(fn PresenceHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.presenceHandlers = append(h.presenceHandlers, fn)
}

func (h *redisHandle) Track(ctx context.Context, key string, meta interface{}) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal presence meta: %w", err)
	}

	if err := h.rdb.HSet(ctx, h.presenceSet(), key, raw).Err(); err != nil {
		return fmt.Errorf("failed to track presence: %w", err)
	}

	h.mu.Lock()
	h.trackedKey = key
	h.mu.Unlock()

	return h.publish(ctx, presenceJoinEvent, presenceAnnounce{Key: key, Meta: raw})
}

func (h *redisHandle) Untrack(ctx context.Context) error {
	h.mu.Lock()
	key := h.trackedKey
	h.trackedKey = ""
	h.mu.Unlock()

	if key == "" {
		return nil
	}

	if err := h.rdb.HDel(ctx, h.presenceSet(), key).Err(); err != nil {
		return fmt.Errorf("failed to untrack presence: %w", err)
	}

	return h.publish(ctx, presenceLeaveEvent, presenceAnnounce{Key: key})
}

func (h *redisHandle) Presence(ctx context.Context) (map[string][]byte, error) {
	entries, err := h.rdb.HGetAll(ctx, h.presenceSet()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read presence set: %w", err)
	}

	out := make(map[string][]byte, len(entries))
	for key, meta := range entries {
		out[key] = []byte(meta)
	}
	return out, nil
}

func (h *redisHandle) Leave() error {
	h.mu.Lock()
	if h.left {
		h.mu.Unlock()
		return nil
	}
	h.left = true
	h.mu.Unlock()

	return h.pubsub.Close()
}
