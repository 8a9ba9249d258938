// Package store holds the in-memory ordered message collection for the
// conversation currently open. The sequence is newest-first and keyed by
// message id; order is insertion order, not created_at order, so promoting
// an optimistic message never moves it.
package store

import (
	"sync"
	"time"
)

// Store is the message collection for one conversation. All mutations arrive
// serialized (socket dispatch or a conversation intent), but Snapshot crosses
// the subscription boundary, so access is mutex-guarded anyway.
type Store struct {
	chatID int64

	mu   sync.RWMutex
	msgs []Message // newest-first
	ids  map[int64]struct{}
}

// New creates an empty store for the given conversation.
func New(chatID int64) *Store {
	return &Store{
		chatID: chatID,
		ids:    make(map[int64]struct{}),
	}
}

// ChatID returns the conversation this store belongs to.
func (s *Store) ChatID() int64 {
	return s.chatID
}

// Len returns the number of messages held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.msgs)
}

// Snapshot returns a newest-first copy of the collection.
func (s *Store) Snapshot() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

// Get returns the message with the given id.
func (s *Store) Get(id int64) (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexOf(id); i >= 0 {
		return s.msgs[i], true
	}
	return Message{}, false
}

// InsertNew inserts a message at the head (newest end). A duplicate id is a
// no-op; the store never holds two entries with one id.
func (s *Store) InsertNew(m Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.ids[m.ID]; dup {
		return false
	}
	s.msgs = append([]Message{m}, s.msgs...)
	s.ids[m.ID] = struct{}{}
	return true
}

// MergeOlderPage appends a fetched history page to the tail (older end),
// skipping any id already present. Pages should not overlap, but overlap
// must not corrupt ordering.
func (s *Store) MergeOlderPage(page []Message) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	added := 0
	for _, m := range page {
		if _, dup := s.ids[m.ID]; dup {
			continue
		}
		s.msgs = append(s.msgs, m)
		s.ids[m.ID] = struct{}{}
		added++
	}
	return added
}

// Replace swaps the message with oldID for m, keeping its position in the
// sequence. Used to promote an optimistic message to its server identity.
// If m.ID is already present elsewhere the old entry is removed instead,
// preserving the one-entry-per-id invariant.
func (s *Store) Replace(oldID int64, m Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(oldID)
	if i < 0 {
		return false
	}
	if _, dup := s.ids[m.ID]; dup && m.ID != oldID {
		s.msgs = append(s.msgs[:i], s.msgs[i+1:]...)
		delete(s.ids, oldID)
		return true
	}
	delete(s.ids, oldID)
	s.msgs[i] = m
	s.ids[m.ID] = struct{}{}
	return true
}

// UpdateContent applies an edit in place without changing position.
func (s *Store) UpdateContent(id int64, content string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	s.msgs[i].Content = content
	return true
}

// SetStatus updates the local delivery status of a message.
func (s *Store) SetStatus(id int64, status Status) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	s.msgs[i].Status = status
	return true
}

// Remove deletes the message with the given id.
func (s *Store) Remove(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	s.msgs = append(s.msgs[:i], s.msgs[i+1:]...)
	delete(s.ids, id)
	return true
}

// MarkReadSince sets IsRead on every message authored by someone other than
// readerID with CreatedAt at or before t. Returns the number of messages
// newly marked; applying the same receipt twice marks nothing the second
// time.
func (s *Store) MarkReadSince(readerID int64, t time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	marked := 0
	for i := range s.msgs {
		m := &s.msgs[i]
		if m.SenderID == readerID || m.IsRead || m.CreatedAt.After(t) {
			continue
		}
		m.IsRead = true
		marked++
	}
	return marked
}

// indexOf returns the position of id, or -1. Callers hold the lock.
func (s *Store) indexOf(id int64) int {
	if _, ok := s.ids[id]; !ok {
		return -1
	}
	for i := range s.msgs {
		if s.msgs[i].ID == id {
			return i
		}
	}
	return -1
}
