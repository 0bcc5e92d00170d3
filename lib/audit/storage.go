// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"fmt"
	"sort"
	"sync"
)

// Storage persists audit entries. Implementations must be safe for
// concurrent use and preserve per-session insertion order.
type Storage interface {
	// Store persists an entry and makes it the session's chain head.
	Store(entry *Entry) error

	// Get returns an entry by ID, or ErrEntryNotFound.
	Get(id string) (*Entry, error)

	// ChainHead returns the latest entry for a session, or nil when
	// the session has no entries.
	ChainHead(sessionID string) (*Entry, error)

	// SessionEntries returns all entries for a session in insertion
	// order.
	SessionEntries(sessionID string) ([]*Entry, error)

	// Count returns the total number of entries.
	Count() (int, error)

	// CountSession returns the number of entries for a session.
	CountSession(sessionID string) (int, error)

	// ListSessions returns all session IDs, sorted.
	ListSessions() ([]string, error)
}

// MemoryStorage is an in-memory Storage for tests and ephemeral runs.
type MemoryStorage struct {
	mu       sync.RWMutex
	entries  map[string]*Entry
	sessions map[string][]*Entry
}

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		entries:  make(map[string]*Entry),
		sessions: make(map[string][]*Entry),
	}
}

// Store implements Storage.
func (s *MemoryStorage) Store(entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[entry.ID]; exists {
		return fmt.Errorf("audit: duplicate entry ID %s", entry.ID)
	}
	s.entries[entry.ID] = entry
	s.sessions[entry.SessionID] = append(s.sessions[entry.SessionID], entry)
	return nil
}

// Get implements Storage.
func (s *MemoryStorage) Get(id string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	return entry, nil
}

// ChainHead implements Storage.
func (s *MemoryStorage) ChainHead(sessionID string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.sessions[sessionID]
	if len(entries) == 0 {
		return nil, nil
	}
	return entries[len(entries)-1], nil
}

// SessionEntries implements Storage.
func (s *MemoryStorage) SessionEntries(sessionID string) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.sessions[sessionID]
	result := make([]*Entry, len(entries))
	copy(result, entries)
	return result, nil
}

// Count implements Storage.
func (s *MemoryStorage) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

// CountSession implements Storage.
func (s *MemoryStorage) CountSession(sessionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions[sessionID]), nil
}

// ListSessions implements Storage.
func (s *MemoryStorage) ListSessions() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sessions := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		sessions = append(sessions, id)
	}
	sort.Strings(sessions)
	return sessions, nil
}
