// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

package allowance

import (
	"fmt"
	"sync"
	"time"

	"github.com/aegis-foundation/aegis/lib/action"
	"github.com/aegis-foundation/aegis/lib/signing"
)

// Store holds active allowances, partitioned by scope. Session
// allowances are checked before workspace allowances during lookup.
// All methods are safe for concurrent use.
type Store struct {
	verifier signing.Verifier

	mu        sync.RWMutex
	session   map[string]*Allowance
	workspace map[string]*Allowance
}

// NewStore creates an empty store. The verifier validates signatures
// on Add and Import so an edited state file cannot smuggle in a grant.
func NewStore(verifier signing.Verifier) *Store {
	return &Store{
		verifier:  verifier,
		session:   make(map[string]*Allowance),
		workspace: make(map[string]*Allowance),
	}
}

// Add verifies and stores an allowance, routing it by scope.
func (s *Store) Add(a *Allowance) error {
	if err := a.VerifySignature(s.verifier); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if a.SessionOnly {
		s.session[a.ID] = a
	} else {
		s.workspace[a.ID] = a
	}
	return nil
}

// Get returns the allowance with the given ID, or nil if unknown.
func (s *Store) Get(id string) *Allowance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if a, ok := s.session[id]; ok {
		return a
	}
	return s.workspace[id]
}

// FindAndConsume atomically finds a valid allowance matching the
// action at the current time and consumes one use.
func (s *Store) FindAndConsume(a action.SensitiveAction, workspaceRoot string) *Allowance {
	return s.FindAndConsumeAt(a, workspaceRoot, time.Now())
}

// FindAndConsumeAt is like FindAndConsume but accepts an explicit
// time.
//
// Session allowances are consulted first, then workspace allowances.
// The lookup and the use-count decrement happen under one write lock,
// so two concurrent callers can never both spend the last use of a
// bounded allowance. Expired allowances encountered while the lock is
// held are dropped (lazy expiry); a bounded allowance whose last use
// is consumed here is removed immediately.
//
// Returns a snapshot of the matched allowance as it was before
// consumption, or nil when nothing matches.
func (s *Store) FindAndConsumeAt(a action.SensitiveAction, workspaceRoot string, now time.Time) *Allowance {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dropExpiredLocked(now)

	for _, partition := range []map[string]*Allowance{s.session, s.workspace} {
		for id, candidate := range partition {
			if !candidate.ValidAt(now) {
				continue
			}
			if candidate.WorkspaceRoot != "" && candidate.WorkspaceRoot != workspaceRoot {
				continue
			}
			if !candidate.Pattern.Matches(a, workspaceRoot) {
				continue
			}

			snapshot := *candidate
			if candidate.MaxUses > 0 {
				candidate.UsesRemaining--
				if candidate.UsesRemaining == 0 {
					delete(partition, id)
				}
			}
			return &snapshot
		}
	}
	return nil
}

// dropExpiredLocked removes expired allowances from both partitions.
// Caller holds s.mu.
func (s *Store) dropExpiredLocked(now time.Time) {
	for _, partition := range []map[string]*Allowance{s.session, s.workspace} {
		for id, a := range partition {
			if a.ExpiredAt(now) {
				delete(partition, id)
			}
		}
	}
}

// CleanupExpired removes expired allowances and returns how many were
// dropped.
func (s *Store) CleanupExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := len(s.session) + len(s.workspace)
	s.dropExpiredLocked(now)
	return before - len(s.session) - len(s.workspace)
}

// Revoke removes an allowance by ID. Returns ErrNotFound if no
// allowance has that ID.
func (s *Store) Revoke(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.session[id]; ok {
		delete(s.session, id)
		return nil
	}
	if _, ok := s.workspace[id]; ok {
		delete(s.workspace, id)
		return nil
	}
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}

// ClearSession drops all session-scoped allowances. Called when the
// session ends.
func (s *Store) ClearSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.session)
}

// Count returns the total number of stored allowances, including
// expired ones not yet lazily dropped.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.session) + len(s.workspace)
}

// ExportSession returns the valid session-scoped allowances, for
// persisting across a session suspend/resume.
func (s *Store) ExportSession(now time.Time) []*Allowance {
	return s.export(s.sessionPartition, now)
}

// ExportWorkspace returns the valid workspace-scoped allowances, for
// persisting in the workspace state.
func (s *Store) ExportWorkspace(now time.Time) []*Allowance {
	return s.export(s.workspacePartition, now)
}

func (s *Store) sessionPartition() map[string]*Allowance   { return s.session }
func (s *Store) workspacePartition() map[string]*Allowance { return s.workspace }

func (s *Store) export(partition func() map[string]*Allowance, now time.Time) []*Allowance {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Allowance
	for _, a := range partition() {
		if !a.ValidAt(now) {
			continue
		}
		snapshot := *a
		out = append(out, &snapshot)
	}
	return out
}

// Import merges allowances into the store. Invalid signatures are an
// error; expired or exhausted allowances are silently skipped.
func (s *Store) Import(allowances []*Allowance, now time.Time) error {
	for _, a := range allowances {
		if !a.ValidAt(now) {
			continue
		}
		if err := s.Add(a); err != nil {
			return err
		}
	}
	return nil
}
