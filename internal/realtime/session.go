package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"mdcollab/internal/channel"
)

var (
	// ErrNotOwner is returned when a non-owner tries to revoke access
	ErrNotOwner = errors.New("only the document owner can revoke access")

	// ErrRevokeSelf is returned when the owner tries to revoke themselves
	ErrRevokeSelf = errors.New("cannot revoke your own access")

	// ErrNotJoined is returned for operations that need a bound document
	ErrNotJoined = errors.New("no document joined")
)

// Identity is the local user as reported by the identity provider. The
// engine never authenticates; it only reads the current identity.
type Identity struct {
	UserID      string
	DisplayName string
	ImageURL    string
}

type Options struct {
	// FlushDebounce is the quiet window after a local edit before the
	// content broadcast and persistence write fire. Each keystroke re-arms
	// it, coalescing bursts into a single flush.
	FlushDebounce time.Duration

	// MinInboundInterval is the minimum wall-clock gap between accepted
	// inbound content updates. Updates arriving faster are dropped to keep
	// tight broadcast storms from thrashing the local editor.
	MinInboundInterval time.Duration

	// PresenceResyncInterval is how often the registry is reconciled against
	// the channel's authoritative presence set. Zero disables the ticker;
	// a resync still happens on every join.
	PresenceResyncInterval time.Duration

	now func() time.Time
}

const (
	DefaultFlushDebounce          = 400 * time.Millisecond
	DefaultMinInboundInterval     = 150 * time.Millisecond
	DefaultPresenceResyncInterval = 30 * time.Second
)

func (o *Options) applyDefaults() {
	if o.FlushDebounce <= 0 {
		o.FlushDebounce = DefaultFlushDebounce
	}
	if o.MinInboundInterval <= 0 {
		o.MinInboundInterval = DefaultMinInboundInterval
	}
	if o.PresenceResyncInterval < 0 {
		o.PresenceResyncInterval = 0
	} else if o.PresenceResyncInterval == 0 {
		o.PresenceResyncInterval = DefaultPresenceResyncInterval
	}
	if o.now == nil {
		o.now = time.Now
	}
}

// Session is one user's live binding to at most one document. It owns the
// local content snapshot, the presence registry and the cursor map, and it is
// the single entry point for both UI-triggered actions and inbound channel
// messages.
//
// All cross-session effects happen by message passing through the channel;
// a session never mutates another session's state directly.
type Session struct {
	identity Identity
	ch       channel.Channel
	store    Store
	events   Events
	opts     Options

	registry *Registry
	cursors  *CursorMap

	mu            sync.Mutex
	handle        channel.Handle
	documentID    string
	ownerID       string
	mode          Mode
	content       string
	lastInboundAt time.Time
	flushTimer    *time.Timer
	resyncStop    chan struct{}
}

func NewSession(identity Identity, ch channel.Channel, store Store, events Events, opts Options) *Session {
	opts.applyDefaults()
	if events == nil {
		events = NopEvents{}
	}
	return &Session{
		identity: identity,
		ch:       ch,
		store:    store,
		events:   events,
		opts:     opts,
		registry: NewRegistry(),
		cursors:  NewCursorMap(),
	}
}

// Join binds the session to a document. If the session is already bound to
// another document the previous binding is fully released first, so no
// presence or cursor state leaks between documents.
func (s *Session) Join(ctx context.Context, documentID string) error {
	if err := s.Leave(ctx); err != nil {
		log.Printf("sync: leave before rejoin failed: %v", err)
	}

	state, err := s.store.GetDocument(ctx, documentID, s.identity.UserID)
	if err != nil {
		return fmt.Errorf("failed to load document %s: %w", documentID, err)
	}

	h, err := s.ch.Join(ctx, documentID)
	if err != nil {
		return fmt.Errorf("failed to join channel for %s: %w", documentID, err)
	}

	s.mu.Lock()
	s.handle = h
	s.documentID = documentID
	s.ownerID = state.OwnerID
	s.mode = state.Mode
	s.content = state.Content
	s.lastInboundAt = time.Time{}
	s.resyncStop = make(chan struct{})
	stop := s.resyncStop
	s.mu.Unlock()

	h.On(EventContent, func(raw []byte) { s.handleContent(h, raw) })
	h.On(EventCursor, func(raw []byte) { s.handleCursor(h, raw) })
	h.On(EventCursorRemove, func(raw []byte) { s.handleCursorRemove(h, raw) })
	h.On(EventAccessRevoked, func(raw []byte) { s.handleAccessRevoked(h, raw) })
	h.On(EventPresenceUpdate, func(raw []byte) { s.handlePresenceUpdate(h, raw) })
	h.OnPresence(func(ev channel.PresenceEvent) { s.handlePresence(h, ev) })

	if err := h.Track(ctx, s.identity.UserID, s.localParticipant()); err != nil {
		log.Printf("sync: presence track failed: %v", err)
	}

	s.resyncPresence(ctx, h)

	if s.opts.PresenceResyncInterval > 0 {
		go s.resyncLoop(h, stop)
	}

	s.events.AccessChanged(state.Mode, "")
	return nil
}

// Leave releases the current binding: presence is untracked, peers are told
// to drop the local cursor, the channel is unsubscribed and all derived state
// is cleared. Pending flush timers are cancelled so no stray broadcast fires
// against an unbound channel. Idempotent.
func (s *Session) Leave(ctx context.Context) error {
	s.mu.Lock()
	h := s.handle
	if h == nil {
		s.mu.Unlock()
		return nil
	}
	s.handle = nil
	s.documentID = ""
	s.ownerID = ""
	if s.flushTimer != nil {
		s.flushTimer.Stop()
		s.flushTimer = nil
	}
	if s.resyncStop != nil {
		close(s.resyncStop)
		s.resyncStop = nil
	}
	s.mu.Unlock()

	s.registry.Clear()
	s.cursors.Clear()

	if err := h.Untrack(ctx); err != nil {
		log.Printf("sync: presence untrack failed: %v", err)
	}
	if err := h.Send(ctx, EventCursorRemove, CursorRemoveMessage{UserID: s.identity.UserID}); err != nil {
		log.Printf("sync: cursor_remove on leave failed: %v", err)
	}
	return h.Leave()
}

// UpdateContent applies a local edit. The local snapshot is replaced
// immediately so the editor never lags its own input; the broadcast and the
// persistence write are debounced. A no-op while the session cannot edit.
func (s *Session) UpdateContent(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle == nil || !s.mode.CanEdit() {
		return
	}
	s.content = text
	if s.flushTimer != nil {
		s.flushTimer.Stop()
	}
	s.flushTimer = time.AfterFunc(s.opts.FlushDebounce, s.flush)
}

// flush broadcasts the current snapshot and persists it. Runs from the
// debounce timer goroutine.
func (s *Session) flush() {
	s.mu.Lock()
	h := s.handle
	if h == nil || !s.mode.CanEdit() {
		s.mu.Unlock()
		return
	}
	msg := ContentMessage{
		Content:    s.content,
		UserID:     s.identity.UserID,
		Timestamp:  s.opts.now().UnixMilli(),
		DocumentID: s.documentID,
	}
	s.mu.Unlock()

	ctx := context.Background()
	if err := h.Send(ctx, EventContent, msg); err != nil {
		log.Printf("sync: content broadcast failed: %v", err)
	}
	if err := s.store.PatchContent(ctx, msg.DocumentID, msg.Content); err != nil {
		s.events.SaveError(fmt.Errorf("failed to save document: %w", err))
	}
}

// UpdateCursor broadcasts the local cursor position. Skipped entirely while
// the session is read-only: a view-only participant has no cursor to show.
func (s *Session) UpdateCursor(ctx context.Context, x, y float64, isTextCursor bool, sel *Selection) {
	s.mu.Lock()
	h := s.handle
	if h == nil || !s.mode.CanEdit() {
		s.mu.Unlock()
		return
	}
	msg := CursorMessage{
		UserID:       s.identity.UserID,
		UserName:     s.identity.DisplayName,
		X:            x,
		Y:            y,
		IsTextCursor: isTextCursor,
		Selection:    sel,
	}
	s.mu.Unlock()

	if err := h.Send(ctx, EventCursor, msg); err != nil {
		log.Printf("sync: cursor broadcast failed: %v", err)
	}
}

// Revoke downgrades a participant's access to view. The downgrade is
// persisted first; if that write fails nothing is broadcast, so peers are
// never told about a downgrade that did not durably happen.
func (s *Session) Revoke(ctx context.Context, targetUserID string) error {
	s.mu.Lock()
	h := s.handle
	documentID := s.documentID
	ownerID := s.ownerID
	s.mu.Unlock()

	if h == nil {
		return ErrNotJoined
	}
	if s.identity.UserID != ownerID {
		return ErrNotOwner
	}
	if targetUserID == s.identity.UserID {
		return ErrRevokeSelf
	}

	if err := s.store.RevokeAccess(ctx, documentID, targetUserID); err != nil {
		return fmt.Errorf("failed to persist revocation: %w", err)
	}

	msg := AccessRevokedMessage{
		DocumentID:   documentID,
		TargetUserID: targetUserID,
		OwnerID:      s.identity.UserID,
		Mode:         ModeView,
		ForceReload:  false,
	}
	if err := h.Send(ctx, EventAccessRevoked, msg); err != nil {
		return fmt.Errorf("failed to broadcast revocation: %w", err)
	}

	// Reflect the change locally without waiting for the self-echo.
	if s.registry.SetMode(targetUserID, ModeView) {
		s.events.PresenceChanged(s.registry.List())
	}
	return nil
}

// ResyncPresence reconciles the registry against the channel's authoritative
// presence set, healing any missed join or leave events.
func (s *Session) ResyncPresence(ctx context.Context) {
	s.mu.Lock()
	h := s.handle
	s.mu.Unlock()
	if h == nil {
		return
	}
	s.resyncPresence(ctx, h)
}

func (s *Session) resyncPresence(ctx context.Context, h channel.Handle) {
	snapshot, err := h.Presence(ctx)
	if err != nil {
		log.Printf("sync: presence snapshot failed: %v", err)
		return
	}

	ps := make([]Participant, 0, len(snapshot))
	for key, meta := range snapshot {
		var p Participant
		if err := json.Unmarshal(meta, &p); err != nil {
			log.Printf("sync: dropping malformed presence meta for %s: %v", key, err)
			continue
		}
		ps = append(ps, p)
	}

	s.mu.Lock()
	if s.handle != h {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.registry.ReplaceAll(ps)
	s.events.PresenceChanged(s.registry.List())
}

func (s *Session) resyncLoop(h channel.Handle, stop <-chan struct{}) {
	ticker := time.NewTicker(s.opts.PresenceResyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.resyncPresence(context.Background(), h)
		}
	}
}

func (s *Session) localParticipant() Participant {
	return Participant{
		UserID:      s.identity.UserID,
		DisplayName: s.identity.DisplayName,
		ImageURL:    s.identity.ImageURL,
		AccessMode:  s.mode.Wire(),
		IsActive:    true,
		LastSeenAt:  s.opts.now(),
	}
}

// Accessors

func (s *Session) Identity() Identity { return s.identity }

func (s *Session) DocumentID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.documentID
}

func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

func (s *Session) Content() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.content
}

func (s *Session) Participants() []Participant { return s.registry.List() }

func (s *Session) Cursors() []CursorMessage { return s.cursors.List() }
