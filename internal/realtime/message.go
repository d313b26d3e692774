package realtime

import "time"

// Event names published on a document channel. The catalogue is fixed:
// receivers ignore events they do not know, so adding an event is backward
// compatible but renaming one is not.
const (
	EventContent        = "content"
	EventCursor         = "cursor"
	EventCursorRemove   = "cursor_remove"
	EventAccessRevoked  = "access_revoked"
	EventPresenceUpdate = "presence_update"
)

// Mode is a participant's access mode on a document. Revoked is a terminal
// flavor of view reached only through an explicit owner revocation; the
// distinction lets the UI show a one-time "access revoked" notice instead of
// a generic read-only label.
type Mode string

const (
	ModeEdit    Mode = "edit"
	ModeView    Mode = "view"
	ModeRevoked Mode = "revoked"
)

// CanEdit reports whether outbound content and cursor broadcasts are allowed.
func (m Mode) CanEdit() bool { return m == ModeEdit }

// Wire returns the mode as carried in presence payloads. Revoked is a local
// distinction only; on the wire it is plain view.
func (m Mode) Wire() Mode {
	if m == ModeRevoked {
		return ModeView
	}
	return m
}

// Participant is one user's presence record on a document channel. A session
// owns and republishes only its own record; records of other sessions are
// read-only cached copies rebuilt from presence announcements.
type Participant struct {
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	ImageURL    string    `json:"imageUrl,omitempty"`
	AccessMode  Mode      `json:"accessMode"`
	IsActive    bool      `json:"isActive"`
	LastSeenAt  time.Time `json:"lastSeenAt"`
}

type Selection struct {
	Start  int    `json:"start"`
	End    int    `json:"end"`
	Text   string `json:"text"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

type ContentMessage struct {
	Content    string `json:"content"`
	UserID     string `json:"userId"`
	Timestamp  int64  `json:"timestamp"`
	DocumentID string `json:"documentId"`
}

type CursorMessage struct {
	UserID       string     `json:"userId"`
	UserName     string     `json:"userName"`
	X            float64    `json:"x"`
	Y            float64    `json:"y"`
	IsTextCursor bool       `json:"isTextCursor"`
	Selection    *Selection `json:"selection,omitempty"`
}

type CursorRemoveMessage struct {
	UserID string `json:"userId"`
}

type AccessRevokedMessage struct {
	DocumentID   string `json:"documentId"`
	TargetUserID string `json:"targetUserId"`
	OwnerID      string `json:"ownerId"`
	Mode         Mode   `json:"mode"`
	ForceReload  bool   `json:"forceReload"`
}

type PresenceUpdateMessage struct {
	UserID     string `json:"userId"`
	AccessMode Mode   `json:"accessMode"`
	Timestamp  int64  `json:"timestamp"`
}
