// Package presence tracks which users are currently online. The map is
// process-wide: entries are created on the first presence event for a user,
// updated on every subsequent one, and cleared only at logout.
package presence

import "sync"

// Map holds user_id → online. Written by the reconciler, read by any
// subscriber.
type Map struct {
	mu    sync.RWMutex
	users map[int64]bool
}

// NewMap creates an empty presence map.
func NewMap() *Map {
	return &Map{users: make(map[int64]bool)}
}

// Set records a user's online state.
func (m *Map) Set(userID int64, online bool) {
	m.mu.Lock()
	m.users[userID] = online
	m.mu.Unlock()
}

// Online reports whether the user is currently considered online. Users
// never seen are offline.
func (m *Map) Online(userID int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.users[userID]
}

// Snapshot returns a copy of the full map.
func (m *Map) Snapshot() map[int64]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[int64]bool, len(m.users))
	for id, online := range m.users {
		out[id] = online
	}
	return out
}

// Reset clears all entries. Called on logout.
func (m *Map) Reset() {
	m.mu.Lock()
	m.users = make(map[int64]bool)
	m.mu.Unlock()
}
