package realtime

import (
	"context"
	"encoding/json"
	"log"

	"mdcollab/internal/channel"
)

// Inbound handlers. Every handler is idempotent (upsert or delete by key):
// the channel gives no ordering or delivery guarantee, so duplicates and
// reordering must be harmless. Each handler is registered against a concrete
// handle and bails out if the session has since bound a different one, which
// discards stragglers from a just-left channel.

func (s *Session) stale(h channel.Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle != h
}

func (s *Session) handleContent(h channel.Handle, raw []byte) {
	var msg ContentMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Printf("sync: dropping malformed content message: %v", err)
		return
	}

	// Self-echo: the channel delivers our own broadcasts back to us.
	if msg.UserID == s.identity.UserID {
		return
	}

	s.mu.Lock()
	if s.handle != h {
		s.mu.Unlock()
		return
	}
	// Stale message tagged for a document we are no longer bound to.
	if msg.DocumentID != s.documentID {
		s.mu.Unlock()
		return
	}
	// Rate guard: a tight storm of inbound replacements would thrash the
	// local cursor and selection mid-keystroke.
	now := s.opts.now()
	if !s.lastInboundAt.IsZero() && now.Sub(s.lastInboundAt) < s.opts.MinInboundInterval {
		s.mu.Unlock()
		return
	}
	s.content = msg.Content
	s.lastInboundAt = now
	s.mu.Unlock()

	// Last writer wins: full replace, no merge.
	s.events.ContentChanged(msg.Content, msg.UserID)
}

func (s *Session) handleCursor(h channel.Handle, raw []byte) {
	var msg CursorMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Printf("sync: dropping malformed cursor message: %v", err)
		return
	}
	if msg.UserID == s.identity.UserID {
		return
	}
	if s.stale(h) {
		return
	}

	s.cursors.Upsert(msg)
	s.events.CursorUpdated(msg)
}

func (s *Session) handleCursorRemove(h channel.Handle, raw []byte) {
	var msg CursorRemoveMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Printf("sync: dropping malformed cursor_remove message: %v", err)
		return
	}
	if msg.UserID == s.identity.UserID {
		return
	}
	if s.stale(h) {
		return
	}

	if s.cursors.Remove(msg.UserID) {
		s.events.CursorRemoved(msg.UserID)
	}
}

func (s *Session) handleAccessRevoked(h channel.Handle, raw []byte) {
	var msg AccessRevokedMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Printf("sync: dropping malformed access_revoked message: %v", err)
		return
	}

	s.mu.Lock()
	if s.handle != h || msg.DocumentID != s.documentID {
		s.mu.Unlock()
		return
	}

	if msg.TargetUserID == s.identity.UserID {
		// We are the target: force read-only, kill any pending flush so the
		// debounced edit never reaches the wire.
		s.mode = ModeRevoked
		if s.flushTimer != nil {
			s.flushTimer.Stop()
			s.flushTimer = nil
		}
		local := s.localParticipant()
		s.mu.Unlock()

		s.registry.SetMode(s.identity.UserID, ModeView)
		s.events.AccessChanged(ModeRevoked, "Your edit access to this document was revoked by the owner.")
		s.events.PresenceChanged(s.registry.List())

		ctx := context.Background()
		if err := h.Track(ctx, s.identity.UserID, local); err != nil {
			log.Printf("sync: presence republish after revocation failed: %v", err)
		}
		s.rebroadcastDowngrade(ctx, h, msg.TargetUserID)
		return
	}

	// Owner and third-party peers converge the same way: downgrade the
	// target's cached record so the UI reflects the change without waiting
	// for the next full presence sync.
	s.mu.Unlock()
	if s.registry.SetMode(msg.TargetUserID, ModeView) {
		s.events.PresenceChanged(s.registry.List())
	}
	s.rebroadcastDowngrade(context.Background(), h, msg.TargetUserID)
}

// rebroadcastDowngrade fans the downgrade back out as a presence_update.
// Redundant on purpose: with at-most-once unordered delivery, peers that
// missed the original access_revoked converge on whichever copy reaches them
// first. presence_update receipt never re-broadcasts, so the fan-out cannot
// loop.
func (s *Session) rebroadcastDowngrade(ctx context.Context, h channel.Handle, targetUserID string) {
	msg := PresenceUpdateMessage{
		UserID:     targetUserID,
		AccessMode: ModeView,
		Timestamp:  s.opts.now().UnixMilli(),
	}
	if err := h.Send(ctx, EventPresenceUpdate, msg); err != nil {
		log.Printf("sync: presence_update rebroadcast failed: %v", err)
	}
}

func (s *Session) handlePresenceUpdate(h channel.Handle, raw []byte) {
	var msg PresenceUpdateMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Printf("sync: dropping malformed presence_update message: %v", err)
		return
	}
	if s.stale(h) {
		return
	}

	if msg.UserID == s.identity.UserID {
		// A downgrade hint about ourselves covers the case where the
		// original access_revoked was lost.
		s.mu.Lock()
		if msg.AccessMode == ModeView && s.mode.CanEdit() {
			s.mode = ModeView
			if s.flushTimer != nil {
				s.flushTimer.Stop()
				s.flushTimer = nil
			}
			s.mu.Unlock()
			s.registry.SetMode(s.identity.UserID, ModeView)
			s.events.AccessChanged(ModeView, "")
			s.events.PresenceChanged(s.registry.List())
			return
		}
		s.mu.Unlock()
		return
	}

	if s.registry.SetMode(msg.UserID, msg.AccessMode) {
		s.events.PresenceChanged(s.registry.List())
	}
}

func (s *Session) handlePresence(h channel.Handle, ev channel.PresenceEvent) {
	if s.stale(h) {
		return
	}

	switch ev.Kind {
	case channel.PresenceJoin:
		var p Participant
		if err := json.Unmarshal(ev.Meta, &p); err != nil {
			log.Printf("sync: dropping malformed presence join for %s: %v", ev.Key, err)
			return
		}
		isNew := s.registry.Upsert(p)
		if isNew && ev.Key != s.identity.UserID {
			s.events.ParticipantJoined(p)
		}
		s.events.PresenceChanged(s.registry.List())

	case channel.PresenceLeave:
		if ev.Key == s.identity.UserID {
			return
		}
		p, ok := s.registry.Remove(ev.Key)
		// Cascade: a departed participant has no live cursor.
		if s.cursors.Remove(ev.Key) {
			s.events.CursorRemoved(ev.Key)
		}
		if ok {
			s.events.ParticipantLeft(p)
			s.events.PresenceChanged(s.registry.List())
		}
	}
}
