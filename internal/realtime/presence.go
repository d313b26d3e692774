package realtime

import (
	"sort"
	"sync"
)

// Registry holds the presence set of one document channel, keyed by userId.
// All mutation goes through its methods so there is exactly one entry per
// user: duplicate joins overwrite rather than append, and a wholesale
// ReplaceAll heals whatever individual join/leave events were missed.
type Registry struct {
	mu           sync.Mutex
	participants map[string]Participant
}

func NewRegistry() *Registry {
	return &Registry{participants: make(map[string]Participant)}
}

// Upsert adds or overwrites a participant record. It reports whether the
// user was previously absent, so callers can distinguish a join from a
// re-announcement.
func (r *Registry) Upsert(p Participant) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, existed := r.participants[p.UserID]
	r.participants[p.UserID] = p
	return !existed
}

// Remove deletes a participant and returns the removed record.
func (r *Registry) Remove(userID string) (Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[userID]
	if ok {
		delete(r.participants, userID)
	}
	return p, ok
}

// ReplaceAll swaps the whole registry for a presence snapshot. This is the
// authoritative reconciliation point after a join or reconnect.
func (r *Registry) ReplaceAll(ps []Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.participants = make(map[string]Participant, len(ps))
	for _, p := range ps {
		r.participants[p.UserID] = p
	}
}

// SetMode updates one participant's access mode in place. It reports whether
// the participant was present.
func (r *Registry) SetMode(userID string, mode Mode) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[userID]
	if !ok {
		return false
	}
	p.AccessMode = mode
	r.participants[userID] = p
	return true
}

func (r *Registry) Get(userID string) (Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[userID]
	return p, ok
}

// List returns the participants sorted by userId for deterministic output.
func (r *Registry) List() []Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Participant, 0, len(r.participants))
	for _, p := range r.participants {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.participants)
}

// Clear empties the registry. Used on teardown so a later join to another
// document starts from empty state.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.participants = make(map[string]Participant)
}
