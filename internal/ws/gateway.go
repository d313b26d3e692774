package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"mdcollab/internal/channel"
	"mdcollab/internal/middleware"
	"mdcollab/internal/realtime"
	"mdcollab/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Gateway upgrades authenticated connections and runs one realtime session
// per socket. Client frames drive the engine; engine callbacks are written
// back as server frames.
type Gateway struct {
	channel  channel.Channel
	store    realtime.Store
	userRepo repository.UserRepositoryInterface
	opts     realtime.Options
}

func NewGateway(ch channel.Channel, store realtime.Store, userRepo repository.UserRepositoryInterface, opts realtime.Options) *Gateway {
	return &Gateway{channel: ch, store: store, userRepo: userRepo, opts: opts}
}

// Client frame types
type clientFrame struct {
	Type         string              `json:"type"`
	Content      string              `json:"content,omitempty"`
	X            float64             `json:"x,omitempty"`
	Y            float64             `json:"y,omitempty"`
	IsTextCursor bool                `json:"isTextCursor,omitempty"`
	Selection    *realtime.Selection `json:"selection,omitempty"`
	TargetUserID string              `json:"targetUserId,omitempty"`
}

type serverFrame struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Handle serves GET /ws/documents/:id
func (g *Gateway) Handle(c *gin.Context) {
	userIDVal, exists := c.Get(middleware.UserIDKey)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}
	userID, ok := userIDVal.(uuid.UUID)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Invalid user ID format"})
		return
	}

	documentID := c.Param("id")
	if _, err := uuid.Parse(documentID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid document ID format"})
		return
	}

	user, err := g.userRepo.GetByID(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load user"})
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ws: upgrade failed: %v", err)
		return
	}

	writer := &connWriter{conn: conn}
	identity := realtime.Identity{
		UserID:      user.ID.String(),
		DisplayName: user.Name,
		ImageURL:    user.ImageURL,
	}
	session := realtime.NewSession(identity, g.channel, g.store, writer, g.opts)

	g.serve(c, session, conn, writer, documentID)
}

func (g *Gateway) serve(c *gin.Context, session *realtime.Session, conn *websocket.Conn, writer *connWriter, documentID string) {
	defer conn.Close()

	ctx := c.Request.Context()
	if err := session.Join(ctx, documentID); err != nil {
		writer.write(serverFrame{Type: "error", Payload: gin.H{"error": err.Error()}})
		return
	}
	defer func() {
		// The request context is tied to the connection and may already be
		// done here; teardown still has to reach the channel.
		if err := session.Leave(context.Background()); err != nil {
			log.Printf("ws: session leave failed: %v", err)
		}
	}()

	// Initial state so the client can render before any peer activity
	writer.write(serverFrame{Type: "content", Payload: gin.H{
		"content": session.Content(),
		"userId":  "",
	}})
	writer.write(serverFrame{Type: "presence", Payload: session.Participants()})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("ws: read failed: %v", err)
			}
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			writer.write(serverFrame{Type: "error", Payload: gin.H{"error": "malformed frame"}})
			continue
		}

		switch frame.Type {
		case "edit":
			session.UpdateContent(frame.Content)
		case "cursor":
			session.UpdateCursor(ctx, frame.X, frame.Y, frame.IsTextCursor, frame.Selection)
		case "revoke":
			if err := session.Revoke(ctx, frame.TargetUserID); err != nil {
				writer.write(serverFrame{Type: "revoke_error", Payload: gin.H{"error": err.Error()}})
			}
		case "presence_resync":
			session.ResyncPresence(ctx)
		default:
			writer.write(serverFrame{Type: "error", Payload: gin.H{"error": "unknown frame type"}})
		}
	}
}

// connWriter serializes writes to one socket and implements the engine's
// event callbacks. gorilla/websocket allows a single concurrent writer.
type connWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *connWriter) write(frame serverFrame) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.conn.WriteJSON(frame); err != nil {
		log.Printf("ws: write failed: %v", err)
	}
}

func (w *connWriter) ContentChanged(text, originUserID string) {
	w.write(serverFrame{Type: "content", Payload: gin.H{"content": text, "userId": originUserID}})
}

func (w *connWriter) CursorUpdated(c realtime.CursorMessage) {
	w.write(serverFrame{Type: "cursor", Payload: c})
}

func (w *connWriter) CursorRemoved(userID string) {
	w.write(serverFrame{Type: "cursor_remove", Payload: gin.H{"userId": userID}})
}

func (w *connWriter) ParticipantJoined(p realtime.Participant) {
	w.write(serverFrame{Type: "participant_joined", Payload: p})
}

func (w *connWriter) ParticipantLeft(p realtime.Participant) {
	w.write(serverFrame{Type: "participant_left", Payload: p})
}

func (w *connWriter) PresenceChanged(ps []realtime.Participant) {
	w.write(serverFrame{Type: "presence", Payload: ps})
}

func (w *connWriter) AccessChanged(mode realtime.Mode, notice string) {
	w.write(serverFrame{Type: "access_changed", Payload: gin.H{"mode": mode, "notice": notice}})
}

func (w *connWriter) SaveError(err error) {
	w.write(serverFrame{Type: "save_error", Payload: gin.H{"error": err.Error()}})
}

var _ realtime.Events = (*connWriter)(nil)
