package application

import (
	"sync"

	alerts "classroom-sentinel/internal/alerts/domain"
)

// roomEntry pairs one room's rule state with the lock that serializes
// access to it.
type roomEntry struct {
	mu    sync.Mutex
	state alerts.RoomRuleState
}

// StateRegistry holds per-room rule state, created lazily on first
// access. Entries live for the process lifetime.
type StateRegistry struct {
	mu    sync.Mutex
	rooms map[string]*roomEntry
}

// NewStateRegistry constructs an empty registry.
func NewStateRegistry() *StateRegistry {
	return &StateRegistry{rooms: make(map[string]*roomEntry)}
}

// entry returns the state entry for a room, creating it if absent.
// Concurrent first access for the same room yields the same entry.
func (r *StateRegistry) entry(roomID string) *roomEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.rooms[roomID]
	if !ok {
		e = &roomEntry{}
		r.rooms[roomID] = e
	}
	return e
}

// RoomIDs returns a snapshot of the rooms with state.
func (r *StateRegistry) RoomIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.rooms))
	for id := range r.rooms {
		ids = append(ids, id)
	}
	return ids
}

// Len reports how many rooms currently hold state.
func (r *StateRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}
