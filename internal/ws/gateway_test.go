package ws_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"mdcollab/internal/channel"
	"mdcollab/internal/middleware"
	"mdcollab/internal/model"
	"mdcollab/internal/realtime"
	"mdcollab/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
)

const testSecret = "test-secret-key"

type fakeUserRepo struct {
	users map[uuid.UUID]*model.User
}

func (r *fakeUserRepo) Create(ctx context.Context, user *model.User) error { return nil }

func (r *fakeUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return r.users[id], nil
}

type fakeStore struct {
	mu    sync.Mutex
	docs  map[string]*realtime.DocumentState
	modes map[string]realtime.Mode // per userId override
}

func (s *fakeStore) GetDocument(ctx context.Context, documentID, userID string) (*realtime.DocumentState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[documentID]
	if !ok {
		return nil, errors.New("document not found")
	}
	state := *doc
	if doc.OwnerID == userID {
		state.Mode = realtime.ModeEdit
	} else if mode, ok := s.modes[userID]; ok {
		state.Mode = mode
	}
	return &state, nil
}

func (s *fakeStore) PatchContent(ctx context.Context, documentID, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc, ok := s.docs[documentID]; ok {
		doc.Content = content
	}
	return nil
}

func (s *fakeStore) RevokeAccess(ctx context.Context, documentID, targetUserID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modes[targetUserID] = realtime.ModeView
	return nil
}

func signToken(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	claims := jwt.MapClaims{
		"user_id": userID.String(),
		"exp":     jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	assert.NoError(t, err)
	return token
}

type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// readUntil reads frames until the predicate matches or the deadline expires
func readUntil(t *testing.T, conn *websocket.Conn, want func(frame) bool) (frame, bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			continue
		}
		if want(f) {
			return f, true
		}
	}
	return frame{}, false
}

func setupGatewayServer(t *testing.T) (*httptest.Server, *fakeStore, uuid.UUID, uuid.UUID, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ownerID := uuid.New()
	peerID := uuid.New()
	docID := uuid.New().String()

	users := &fakeUserRepo{users: map[uuid.UUID]*model.User{
		ownerID: {ID: ownerID, Email: "owner@example.com", Name: "Owner"},
		peerID:  {ID: peerID, Email: "peer@example.com", Name: "Peer"},
	}}

	store := &fakeStore{
		docs: map[string]*realtime.DocumentState{
			docID: {Title: "Doc", Content: "initial", OwnerID: ownerID.String(), Mode: realtime.ModeEdit},
		},
		modes: make(map[string]realtime.Mode),
	}

	ch := channel.NewMemoryChannel()
	gateway := ws.NewGateway(ch, store, users, realtime.Options{
		FlushDebounce:          20 * time.Millisecond,
		MinInboundInterval:     10 * time.Millisecond,
		PresenceResyncInterval: -1,
	})

	r := gin.New()
	authorized := r.Group("/")
	authorized.Use(middleware.JWTAuthMiddleware(testSecret))
	authorized.GET("/ws/documents/:id", gateway.Handle)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, store, ownerID, peerID, docID
}

func dial(t *testing.T, srv *httptest.Server, docID string, userID uuid.UUID) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/documents/" + docID + "?token=" + signToken(t, userID)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	assert.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestGateway_EditPropagatesToPeer(t *testing.T) {
	srv, store, ownerID, peerID, docID := setupGatewayServer(t)

	owner := dial(t, srv, docID, ownerID)
	peer := dial(t, srv, docID, peerID)

	// Both clients get the initial snapshot first
	_, ok := readUntil(t, peer, func(f frame) bool { return f.Type == "content" })
	assert.True(t, ok)

	// Owner types; the peer converges on the flushed text
	err := owner.WriteJSON(map[string]interface{}{"type": "edit", "content": "hello from owner"})
	assert.NoError(t, err)

	got, ok := readUntil(t, peer, func(f frame) bool {
		if f.Type != "content" {
			return false
		}
		var p struct {
			Content string `json:"content"`
		}
		return json.Unmarshal(f.Payload, &p) == nil && p.Content == "hello from owner"
	})
	assert.True(t, ok, "peer never received the owner's edit")
	assert.Equal(t, "content", got.Type)

	// The debounced flush also persisted the text
	store.mu.Lock()
	assert.Equal(t, "hello from owner", store.docs[docID].Content)
	store.mu.Unlock()
}

func TestGateway_RevokeForcesPeerReadOnly(t *testing.T) {
	srv, _, ownerID, peerID, docID := setupGatewayServer(t)

	owner := dial(t, srv, docID, ownerID)
	peer := dial(t, srv, docID, peerID)

	_, ok := readUntil(t, peer, func(f frame) bool { return f.Type == "content" })
	assert.True(t, ok)

	err := owner.WriteJSON(map[string]interface{}{"type": "revoke", "targetUserId": peerID.String()})
	assert.NoError(t, err)

	got, ok := readUntil(t, peer, func(f frame) bool {
		if f.Type != "access_changed" {
			return false
		}
		var p struct {
			Mode string `json:"mode"`
		}
		return json.Unmarshal(f.Payload, &p) == nil && p.Mode == string(realtime.ModeRevoked)
	})
	assert.True(t, ok, "peer never received the revocation")
	assert.Equal(t, "access_changed", got.Type)
}

func TestGateway_RejectsUnauthenticated(t *testing.T) {
	srv, _, _, _, docID := setupGatewayServer(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/documents/" + docID
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	assert.Error(t, err)
	if resp != nil {
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
}
