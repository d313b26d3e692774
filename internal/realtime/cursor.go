package realtime

import (
	"sort"
	"sync"
)

// CursorMap holds the latest cursor received per remote user. Cursors are
// ephemeral: each message overwrites the previous one in place, and deletion
// is idempotent so duplicate cursor_remove events are harmless.
type CursorMap struct {
	mu      sync.Mutex
	cursors map[string]CursorMessage
}

func NewCursorMap() *CursorMap {
	return &CursorMap{cursors: make(map[string]CursorMessage)}
}

func (m *CursorMap) Upsert(c CursorMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursors[c.UserID] = c
}

func (m *CursorMap) Remove(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.cursors[userID]
	delete(m.cursors, userID)
	return ok
}

func (m *CursorMap) Get(userID string) (CursorMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cursors[userID]
	return c, ok
}

func (m *CursorMap) List() []CursorMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CursorMessage, 0, len(m.cursors))
	for _, c := range m.cursors {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

func (m *CursorMap) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cursors)
}

func (m *CursorMap) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursors = make(map[string]CursorMessage)
}
