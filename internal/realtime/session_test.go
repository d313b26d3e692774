package realtime_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"mdcollab/internal/channel"
	"mdcollab/internal/realtime"

	"github.com/stretchr/testify/assert"
)

// fakeStore is an in-memory document store
type fakeStore struct {
	mu         sync.Mutex
	docs       map[string]*realtime.DocumentState
	patches    []string
	patchErr   error
	revokeErr  error
	revocation []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: make(map[string]*realtime.DocumentState)}
}

func (s *fakeStore) addDoc(id, content, ownerID string) {
	s.docs[id] = &realtime.DocumentState{Title: "doc", Content: content, OwnerID: ownerID, Mode: realtime.ModeEdit}
}

func (s *fakeStore) GetDocument(ctx context.Context, documentID, userID string) (*realtime.DocumentState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[documentID]
	if !ok {
		return nil, errors.New("document not found")
	}
	state := *doc
	return &state, nil
}

func (s *fakeStore) PatchContent(ctx context.Context, documentID, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.patchErr != nil {
		return s.patchErr
	}
	s.patches = append(s.patches, content)
	if doc, ok := s.docs[documentID]; ok {
		doc.Content = content
	}
	return nil
}

func (s *fakeStore) RevokeAccess(ctx context.Context, documentID, targetUserID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.revokeErr != nil {
		return s.revokeErr
	}
	s.revocation = append(s.revocation, targetUserID)
	return nil
}

func (s *fakeStore) patchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.patches)
}

// recorder captures engine callbacks
type recorder struct {
	realtime.NopEvents
	mu            sync.Mutex
	contents      []string
	accessModes   []realtime.Mode
	notices       []string
	saveErrors    []error
	joined        []string
	left          []string
	cursorRemoved []string
}

func (r *recorder) ContentChanged(text, origin string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contents = append(r.contents, text)
}

func (r *recorder) AccessChanged(mode realtime.Mode, notice string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accessModes = append(r.accessModes, mode)
	r.notices = append(r.notices, notice)
}

func (r *recorder) SaveError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saveErrors = append(r.saveErrors, err)
}

func (r *recorder) ParticipantJoined(p realtime.Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.joined = append(r.joined, p.UserID)
}

func (r *recorder) ParticipantLeft(p realtime.Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.left = append(r.left, p.UserID)
}

func (r *recorder) CursorRemoved(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cursorRemoved = append(r.cursorRemoved, userID)
}

func (r *recorder) contentCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.contents)
}

func (r *recorder) lastContent() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.contents) == 0 {
		return ""
	}
	return r.contents[len(r.contents)-1]
}

func (r *recorder) lastMode() realtime.Mode {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.accessModes) == 0 {
		return ""
	}
	return r.accessModes[len(r.accessModes)-1]
}

func testOptions() realtime.Options {
	return realtime.Options{
		FlushDebounce:          20 * time.Millisecond,
		MinInboundInterval:     60 * time.Millisecond,
		PresenceResyncInterval: -1, // disable ticker in tests
	}
}

func newTestSession(t *testing.T, ch channel.Channel, store realtime.Store, userID string) (*realtime.Session, *recorder) {
	t.Helper()
	rec := &recorder{}
	identity := realtime.Identity{UserID: userID, DisplayName: "User " + userID}
	return realtime.NewSession(identity, ch, store, rec, testOptions()), rec
}

func TestContentSync_LastWriterWins(t *testing.T) {
	// Arrange
	ch := channel.NewMemoryChannel()
	store := newFakeStore()
	store.addDoc("doc-1", "initial", "owner")

	alice, aliceRec := newTestSession(t, ch, store, "alice")
	bob, _ := newTestSession(t, ch, store, "bob")

	ctx := context.Background()
	assert.NoError(t, alice.Join(ctx, "doc-1"))
	assert.NoError(t, bob.Join(ctx, "doc-1"))

	// Act: bob edits twice with enough spacing that neither inbound update
	// is rate filtered on alice's side
	bob.UpdateContent("first version")
	time.Sleep(100 * time.Millisecond)
	bob.UpdateContent("second version")
	time.Sleep(100 * time.Millisecond)

	// Assert: order of arrival determines the outcome
	assert.Equal(t, "second version", alice.Content())
	assert.Equal(t, "second version", aliceRec.lastContent())
	assert.GreaterOrEqual(t, store.patchCount(), 2)
}

func TestContentSync_SelfEchoIgnored(t *testing.T) {
	// Arrange
	ch := channel.NewMemoryChannel()
	store := newFakeStore()
	store.addDoc("doc-1", "initial", "owner")

	alice, aliceRec := newTestSession(t, ch, store, "alice")
	ctx := context.Background()
	assert.NoError(t, alice.Join(ctx, "doc-1"))

	// Act: alice's own broadcast comes back to her through the channel
	alice.UpdateContent("my own edit")
	time.Sleep(100 * time.Millisecond)

	// Assert: no self-echo loop, no remote-content callback
	assert.Equal(t, "my own edit", alice.Content())
	assert.Equal(t, 0, aliceRec.contentCount())
}

func TestContentSync_CrossDocumentIgnored(t *testing.T) {
	// Arrange
	ch := channel.NewMemoryChannel()
	store := newFakeStore()
	store.addDoc("doc-1", "initial", "owner")

	alice, aliceRec := newTestSession(t, ch, store, "alice")
	ctx := context.Background()
	assert.NoError(t, alice.Join(ctx, "doc-1"))

	// Act: inject a content message tagged with another document id
	h, err := ch.Join(ctx, "doc-1")
	assert.NoError(t, err)
	err = h.Send(ctx, realtime.EventContent, realtime.ContentMessage{
		Content:    "stale text",
		UserID:     "bob",
		Timestamp:  time.Now().UnixMilli(),
		DocumentID: "doc-OTHER",
	})
	assert.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	// Assert
	assert.Equal(t, "initial", alice.Content())
	assert.Equal(t, 0, aliceRec.contentCount())
}

func TestContentSync_RateLimitAcceptsOneOfBurst(t *testing.T) {
	// Arrange: a third session observes two peers flushing within the
	// minimum inbound interval
	ch := channel.NewMemoryChannel()
	store := newFakeStore()
	store.addDoc("doc-1", "initial", "owner")

	carol, carolRec := newTestSession(t, ch, store, "carol")
	ctx := context.Background()
	assert.NoError(t, carol.Join(ctx, "doc-1"))

	h, err := ch.Join(ctx, "doc-1")
	assert.NoError(t, err)

	// Act: two content messages back to back, well inside the 60ms window
	first := realtime.ContentMessage{Content: "from alice", UserID: "alice", Timestamp: time.Now().UnixMilli(), DocumentID: "doc-1"}
	second := realtime.ContentMessage{Content: "from bob", UserID: "bob", Timestamp: time.Now().UnixMilli(), DocumentID: "doc-1"}
	assert.NoError(t, h.Send(ctx, realtime.EventContent, first))
	assert.NoError(t, h.Send(ctx, realtime.EventContent, second))
	time.Sleep(50 * time.Millisecond)

	// Assert: exactly one of the two payloads is applied, intact
	assert.Equal(t, 1, carolRec.contentCount())
	assert.Equal(t, "from alice", carol.Content())
}

func TestUpdateContent_DebounceCoalescesBursts(t *testing.T) {
	// Arrange
	ch := channel.NewMemoryChannel()
	store := newFakeStore()
	store.addDoc("doc-1", "", "alice")

	alice, _ := newTestSession(t, ch, store, "alice")
	ctx := context.Background()
	assert.NoError(t, alice.Join(ctx, "doc-1"))

	// Act: a typing burst faster than the debounce window
	alice.UpdateContent("h")
	alice.UpdateContent("he")
	alice.UpdateContent("hel")
	alice.UpdateContent("hello")
	time.Sleep(100 * time.Millisecond)

	// Assert: one flush carrying the final text
	assert.Equal(t, 1, store.patchCount())
	store.mu.Lock()
	assert.Equal(t, "hello", store.patches[0])
	store.mu.Unlock()
}

func TestUpdateContent_SaveErrorSurfacedAndRetried(t *testing.T) {
	// Arrange
	ch := channel.NewMemoryChannel()
	store := newFakeStore()
	store.addDoc("doc-1", "", "alice")
	store.patchErr = errors.New("db down")

	alice, aliceRec := newTestSession(t, ch, store, "alice")
	ctx := context.Background()
	assert.NoError(t, alice.Join(ctx, "doc-1"))

	// Act
	alice.UpdateContent("unsaved")
	time.Sleep(100 * time.Millisecond)

	aliceRec.mu.Lock()
	failures := len(aliceRec.saveErrors)
	aliceRec.mu.Unlock()
	assert.Equal(t, 1, failures)

	// Local editing continues; the next flush retries and succeeds
	store.mu.Lock()
	store.patchErr = nil
	store.mu.Unlock()
	alice.UpdateContent("unsaved but retried")
	time.Sleep(100 * time.Millisecond)

	// Assert
	assert.Equal(t, 1, store.patchCount())
}

func TestRevoke_TargetForcedReadOnlyAndMuted(t *testing.T) {
	// Arrange
	ch := channel.NewMemoryChannel()
	store := newFakeStore()
	store.addDoc("doc-1", "initial", "owner")

	owner, _ := newTestSession(t, ch, store, "owner")
	target, targetRec := newTestSession(t, ch, store, "target")
	peer, _ := newTestSession(t, ch, store, "peer")

	ctx := context.Background()
	assert.NoError(t, owner.Join(ctx, "doc-1"))
	assert.NoError(t, target.Join(ctx, "doc-1"))
	assert.NoError(t, peer.Join(ctx, "doc-1"))

	// Act
	assert.NoError(t, owner.Revoke(ctx, "target"))
	time.Sleep(50 * time.Millisecond)

	// Assert: target is revoked with a one-time notice
	assert.Equal(t, realtime.ModeRevoked, target.Mode())
	assert.Equal(t, realtime.ModeRevoked, targetRec.lastMode())
	targetRec.mu.Lock()
	assert.NotEmpty(t, targetRec.notices[len(targetRec.notices)-1])
	targetRec.mu.Unlock()

	// Every peer's registry shows the target as view
	for _, s := range []*realtime.Session{owner, target, peer} {
		p, ok := findParticipant(s.Participants(), "target")
		assert.True(t, ok)
		assert.Equal(t, realtime.ModeView, p.AccessMode)
	}

	// Target's typing no longer reaches the wire or the store
	before := store.patchCount()
	target.UpdateContent("should be dropped")
	target.UpdateCursor(ctx, 1, 2, false, nil)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, before, store.patchCount())
	assert.Equal(t, "initial", peer.Content())
	assert.Equal(t, 0, len(peer.Cursors()))
}

func TestRevoke_MidDebounceFlushSuppressed(t *testing.T) {
	// Arrange
	ch := channel.NewMemoryChannel()
	store := newFakeStore()
	store.addDoc("doc-1", "initial", "owner")

	owner, _ := newTestSession(t, ch, store, "owner")
	target, _ := newTestSession(t, ch, store, "target")

	ctx := context.Background()
	assert.NoError(t, owner.Join(ctx, "doc-1"))
	assert.NoError(t, target.Join(ctx, "doc-1"))

	// Act: revoke lands while the target's edit is still inside the
	// debounce window
	target.UpdateContent("pending edit")
	assert.NoError(t, owner.Revoke(ctx, "target"))
	time.Sleep(100 * time.Millisecond)

	// Assert: the pending flush never fired
	assert.Equal(t, 0, store.patchCount())
	assert.Equal(t, "initial", owner.Content())
}

func TestRevoke_PersistFailureBlocksBroadcast(t *testing.T) {
	// Arrange
	ch := channel.NewMemoryChannel()
	store := newFakeStore()
	store.addDoc("doc-1", "initial", "owner")
	store.revokeErr = errors.New("db down")

	owner, _ := newTestSession(t, ch, store, "owner")
	target, _ := newTestSession(t, ch, store, "target")

	ctx := context.Background()
	assert.NoError(t, owner.Join(ctx, "doc-1"))
	assert.NoError(t, target.Join(ctx, "doc-1"))

	// Act
	err := owner.Revoke(ctx, "target")
	time.Sleep(50 * time.Millisecond)

	// Assert: the failure is surfaced and peers never hear about the
	// downgrade that did not durably happen
	assert.Error(t, err)
	assert.Equal(t, realtime.ModeEdit, target.Mode())
}

func TestRevoke_OnlyOwnerMay(t *testing.T) {
	ch := channel.NewMemoryChannel()
	store := newFakeStore()
	store.addDoc("doc-1", "initial", "owner")

	bob, _ := newTestSession(t, ch, store, "bob")
	ctx := context.Background()
	assert.NoError(t, bob.Join(ctx, "doc-1"))

	assert.ErrorIs(t, bob.Revoke(ctx, "alice"), realtime.ErrNotOwner)
}

func TestCursor_UpsertAndIdempotentRemove(t *testing.T) {
	// Arrange
	ch := channel.NewMemoryChannel()
	store := newFakeStore()
	store.addDoc("doc-1", "initial", "owner")

	alice, _ := newTestSession(t, ch, store, "alice")
	bob, _ := newTestSession(t, ch, store, "bob")

	ctx := context.Background()
	assert.NoError(t, alice.Join(ctx, "doc-1"))
	assert.NoError(t, bob.Join(ctx, "doc-1"))

	// Act: bob moves his cursor twice, then leaves the cursor behind twice
	bob.UpdateCursor(ctx, 10, 20, false, nil)
	bob.UpdateCursor(ctx, 30, 40, true, &realtime.Selection{Start: 1, End: 5, Text: "tial", Line: 1, Column: 2})
	time.Sleep(50 * time.Millisecond)

	// Assert: one cursor entry, latest payload wins
	cursors := alice.Cursors()
	assert.Len(t, cursors, 1)
	assert.Equal(t, float64(30), cursors[0].X)
	assert.True(t, cursors[0].IsTextCursor)

	// Duplicate removals leave exactly zero entries
	h, err := ch.Join(ctx, "doc-1")
	assert.NoError(t, err)
	for i := 0; i < 3; i++ {
		assert.NoError(t, h.Send(ctx, realtime.EventCursorRemove, realtime.CursorRemoveMessage{UserID: "bob"}))
	}
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, len(alice.Cursors()))
}

func TestJoin_SecondDocumentStartsClean(t *testing.T) {
	// Arrange
	ch := channel.NewMemoryChannel()
	store := newFakeStore()
	store.addDoc("doc-A", "doc A text", "owner")
	store.addDoc("doc-B", "doc B text", "owner")

	alice, _ := newTestSession(t, ch, store, "alice")
	bob, _ := newTestSession(t, ch, store, "bob")

	ctx := context.Background()
	assert.NoError(t, bob.Join(ctx, "doc-A"))
	assert.NoError(t, alice.Join(ctx, "doc-A"))
	bob.UpdateCursor(ctx, 5, 5, false, nil)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, len(alice.Cursors()))
	assert.Equal(t, 2, len(alice.Participants()))

	// Act: rebind to another document
	assert.NoError(t, alice.Join(ctx, "doc-B"))
	time.Sleep(50 * time.Millisecond)

	// Assert: no residue from doc-A
	assert.Equal(t, "doc B text", alice.Content())
	assert.Equal(t, 0, len(alice.Cursors()))
	ps := alice.Participants()
	assert.Len(t, ps, 1)
	assert.Equal(t, "alice", ps[0].UserID)

	// A late doc-A broadcast must not bleed into the new binding
	h, err := ch.Join(ctx, "doc-B")
	assert.NoError(t, err)
	err = h.Send(ctx, realtime.EventContent, realtime.ContentMessage{
		Content:    "ghost of doc A",
		UserID:     "bob",
		Timestamp:  time.Now().UnixMilli(),
		DocumentID: "doc-A",
	})
	assert.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, "doc B text", alice.Content())
}

func TestLeave_NotifiesPeersAndDropsCursor(t *testing.T) {
	// Arrange
	ch := channel.NewMemoryChannel()
	store := newFakeStore()
	store.addDoc("doc-1", "initial", "owner")

	alice, aliceRec := newTestSession(t, ch, store, "alice")
	bob, _ := newTestSession(t, ch, store, "bob")

	ctx := context.Background()
	assert.NoError(t, alice.Join(ctx, "doc-1"))
	assert.NoError(t, bob.Join(ctx, "doc-1"))
	bob.UpdateCursor(ctx, 7, 7, false, nil)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, len(alice.Cursors()))

	// Act
	assert.NoError(t, bob.Leave(ctx))
	time.Sleep(50 * time.Millisecond)

	// Assert
	assert.Equal(t, 0, len(alice.Cursors()))
	_, present := findParticipant(alice.Participants(), "bob")
	assert.False(t, present)
	aliceRec.mu.Lock()
	assert.Contains(t, aliceRec.left, "bob")
	aliceRec.mu.Unlock()
}

func TestPresenceUpdate_ConvergesMissedRevocation(t *testing.T) {
	// Arrange: the target never saw the original access_revoked; a
	// redundant presence_update must still downgrade it
	ch := channel.NewMemoryChannel()
	store := newFakeStore()
	store.addDoc("doc-1", "initial", "owner")

	target, targetRec := newTestSession(t, ch, store, "target")
	ctx := context.Background()
	assert.NoError(t, target.Join(ctx, "doc-1"))
	assert.Equal(t, realtime.ModeEdit, target.Mode())

	h, err := ch.Join(ctx, "doc-1")
	assert.NoError(t, err)

	// Act
	err = h.Send(ctx, realtime.EventPresenceUpdate, realtime.PresenceUpdateMessage{
		UserID:     "target",
		AccessMode: realtime.ModeView,
		Timestamp:  time.Now().UnixMilli(),
	})
	assert.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	// Assert
	assert.Equal(t, realtime.ModeView, target.Mode())
	assert.Equal(t, realtime.ModeView, targetRec.lastMode())
}

func findParticipant(ps []realtime.Participant, userID string) (realtime.Participant, bool) {
	for _, p := range ps {
		if p.UserID == userID {
			return p, true
		}
	}
	return realtime.Participant{}, false
}
