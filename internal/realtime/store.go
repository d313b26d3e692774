package realtime

import "context"

// DocumentState is what the engine needs from the persistent store when a
// session joins: the durable content plus the effective access mode already
// resolved for the joining user (owner > per-user grant > document default).
type DocumentState struct {
	Title   string
	Content string
	OwnerID string
	Mode    Mode
}

// Store is the engine's view of the persistent document store. It is the
// durable fallback: every content sync eventually reconciles against it, and
// access downgrades must land here before they are announced to peers.
type Store interface {
	GetDocument(ctx context.Context, documentID, userID string) (*DocumentState, error)
	PatchContent(ctx context.Context, documentID, content string) error
	RevokeAccess(ctx context.Context, documentID, targetUserID string) error
}

// Events is the callback surface into the UI layer. Implementations must not
// block; they are invoked from engine event handlers.
type Events interface {
	// ContentChanged fires when a remote edit replaced the local snapshot.
	ContentChanged(text, originUserID string)

	CursorUpdated(c CursorMessage)
	CursorRemoved(userID string)

	ParticipantJoined(p Participant)
	ParticipantLeft(p Participant)
	// PresenceChanged fires with the full participant list after any change
	// to the presence set or to a participant's access mode.
	PresenceChanged(participants []Participant)

	// AccessChanged fires when the local session's access mode changes.
	// The notice is non-empty only for a revocation.
	AccessChanged(mode Mode, notice string)

	// SaveError fires when a persistence write failed. Local editing
	// continues; the next debounced flush retries.
	SaveError(err error)
}

// NopEvents discards all callbacks. Embed it to implement only part of the
// Events surface.
type NopEvents struct{}

func (NopEvents) ContentChanged(string, string)     {}
func (NopEvents) CursorUpdated(CursorMessage)       {}
func (NopEvents) CursorRemoved(string)              {}
func (NopEvents) ParticipantJoined(Participant)     {}
func (NopEvents) ParticipantLeft(Participant)       {}
func (NopEvents) PresenceChanged([]Participant)     {}
func (NopEvents) AccessChanged(Mode, string)        {}
func (NopEvents) SaveError(error)                   {}

var _ Events = NopEvents{}
