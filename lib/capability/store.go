// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

package capability

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aegis-foundation/aegis/lib/action"
	"github.com/aegis-foundation/aegis/lib/signing"
)

// State directory layout. Tokens are one JSON file each; revocation
// and single-use tombstones are empty marker files named by token ID.
const (
	tokensDir  = "tokens"
	revokedDir = "revoked"
	usedDir    = "used"
)

// Store holds capability tokens. Session tokens live only in the
// in-memory map; persistent tokens are additionally written to the
// state directory. All methods are safe for concurrent use.
type Store struct {
	verifier signing.Verifier
	logger   *slog.Logger

	// stateDir is empty for in-memory stores.
	stateDir string

	mu         sync.RWMutex
	session    map[string]*Token
	persistent map[string]*Token
	revoked    map[string]struct{}
	used       map[string]struct{}
}

// NewStore creates an in-memory store with no persistence. Tokens
// minted with ScopePersistent fall back to the in-memory map.
func NewStore(verifier signing.Verifier, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		verifier:   verifier,
		logger:     logger,
		session:    make(map[string]*Token),
		persistent: make(map[string]*Token),
		revoked:    make(map[string]struct{}),
		used:       make(map[string]struct{}),
	}
}

// OpenStore creates a store backed by the given state directory,
// loading existing persistent tokens and tombstones. The directory
// and its layout are created if missing.
func OpenStore(stateDir string, verifier signing.Verifier, logger *slog.Logger) (*Store, error) {
	store := NewStore(verifier, logger)
	store.stateDir = stateDir

	for _, sub := range []string{tokensDir, revokedDir, usedDir} {
		if err := os.MkdirAll(filepath.Join(stateDir, sub), 0700); err != nil {
			return nil, fmt.Errorf("capability: creating state directory: %w", err)
		}
	}
	if err := store.loadTombstones(); err != nil {
		return nil, err
	}
	if err := store.loadTokens(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Store) loadTombstones() error {
	for dir, set := range map[string]map[string]struct{}{
		revokedDir: s.revoked,
		usedDir:    s.used,
	} {
		entries, err := os.ReadDir(filepath.Join(s.stateDir, dir))
		if err != nil {
			return fmt.Errorf("capability: reading %s tombstones: %w", dir, err)
		}
		for _, entry := range entries {
			set[entry.Name()] = struct{}{}
		}
	}
	return nil
}

func (s *Store) loadTokens() error {
	dir := filepath.Join(s.stateDir, tokensDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("capability: reading token directory: %w", err)
	}
	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("capability: reading token file %s: %w", entry.Name(), err)
		}
		var token Token
		if err := json.Unmarshal(data, &token); err != nil {
			// A corrupt token file is skipped, not fatal: the rest of
			// the store remains usable and the failure is visible in
			// the log.
			s.logger.Warn("skipping corrupt capability token file",
				"file", entry.Name(), "error", err)
			continue
		}
		if err := token.rehydrate(); err != nil {
			s.logger.Warn("skipping capability token with invalid resource pattern",
				"file", entry.Name(), "error", err)
			continue
		}
		s.persistent[token.ID] = &token
	}
	return nil
}

// Add validates and stores a token, routing it by scope.
func (s *Store) Add(token *Token) error {
	return s.AddAt(token, time.Now())
}

// AddAt is like Add but accepts an explicit time for expiry checks.
func (s *Store) AddAt(token *Token, now time.Time) error {
	if err := token.Validate(s.verifier, now); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if token.Scope == ScopeSession {
		s.session[token.ID] = token
		return nil
	}

	s.persistent[token.ID] = token
	if s.stateDir == "" {
		return nil
	}
	return s.writeTokenLocked(token)
}

// writeTokenLocked persists a token to the state directory. Caller
// holds s.mu.
func (s *Store) writeTokenLocked(token *Token) error {
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return fmt.Errorf("capability: encoding token %s: %w", token.ID, err)
	}
	path := filepath.Join(s.stateDir, tokensDir, token.ID+".json")
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("capability: writing token %s: %w", token.ID, err)
	}
	return nil
}

// Get returns the token with the given ID, or ErrTokenRevoked if it
// has been revoked, or nil if unknown.
func (s *Store) Get(id string) (*Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, gone := s.revoked[id]; gone {
		return nil, fmt.Errorf("%w: token %s", ErrTokenRevoked, id)
	}
	if token, ok := s.session[id]; ok {
		return token, nil
	}
	if token, ok := s.persistent[id]; ok {
		return token, nil
	}
	return nil, nil
}

// Find returns the best valid token granting the permission on the
// resource at the current time, or nil if none covers it.
func (s *Store) Find(resource string, permission action.Permission, workspaceRoot string) *Token {
	return s.FindAt(resource, permission, workspaceRoot, time.Now())
}

// FindAt is like Find but accepts an explicit time.
//
// When several tokens cover the action, the most specific wins: an
// exact resource match beats any glob, and among globs the longest
// pattern wins. Ties break on earliest expiry so short-lived tokens
// are consumed before long-lived ones.
func (s *Store) FindAt(resource string, permission action.Permission, workspaceRoot string, now time.Time) *Token {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var candidates []*Token
	collect := func(tokens map[string]*Token) {
		for _, token := range tokens {
			if _, gone := s.revoked[token.ID]; gone {
				continue
			}
			if token.SingleUse {
				if _, spent := s.used[token.ID]; spent {
					continue
				}
			}
			if token.ExpiredAt(now, DefaultClockSkew) {
				continue
			}
			if token.Scope == ScopeWorkspace && token.WorkspaceRoot != workspaceRoot {
				continue
			}
			if token.VerifySignature(s.verifier) != nil {
				continue
			}
			if token.Grants(resource, permission) {
				candidates = append(candidates, token)
			}
		}
	}
	collect(s.session)
	collect(s.persistent)

	if len(candidates) == 0 {
		return nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Resource.IsGlob() != b.Resource.IsGlob() {
			return !a.Resource.IsGlob()
		}
		if len(a.ResourceRaw) != len(b.ResourceRaw) {
			return len(a.ResourceRaw) > len(b.ResourceRaw)
		}
		aExp, bExp := a.ExpiresAt, b.ExpiresAt
		switch {
		case aExp.IsZero():
			return false
		case bExp.IsZero():
			return true
		default:
			return aExp.Before(bExp)
		}
	})
	return candidates[0]
}

// Use validates the token and, for single-use tokens, tombstones it.
// This is the consumption path: callers that act on a token must call
// Use, not Get, so replay protection holds.
func (s *Store) Use(id string, now time.Time) (*Token, error) {
	token, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, fmt.Errorf("%w: %s", ErrTokenNotFound, id)
	}
	if err := token.Validate(s.verifier, now); err != nil {
		return nil, err
	}
	if token.SingleUse {
		if err := s.MarkUsed(id); err != nil {
			return nil, err
		}
	}
	return token, nil
}

// MarkUsed tombstones a single-use token. Returns ErrTokenUsed if it
// was already consumed.
func (s *Store) MarkUsed(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, spent := s.used[id]; spent {
		return fmt.Errorf("%w: %s", ErrTokenUsed, id)
	}
	s.used[id] = struct{}{}

	if s.stateDir == "" {
		return nil
	}
	path := filepath.Join(s.stateDir, usedDir, id)
	if err := os.WriteFile(path, nil, 0600); err != nil {
		return fmt.Errorf("capability: writing used tombstone for %s: %w", id, err)
	}
	return nil
}

// Revoke tombstones a token. The token file stays on disk so audit
// entries referencing it can still be resolved; the tombstone makes
// it unusable.
func (s *Store) Revoke(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.revoked[id] = struct{}{}
	delete(s.session, id)

	if s.stateDir == "" {
		return nil
	}
	path := filepath.Join(s.stateDir, revokedDir, id)
	if err := os.WriteFile(path, nil, 0600); err != nil {
		return fmt.Errorf("capability: writing revocation tombstone for %s: %w", id, err)
	}
	return nil
}

// IsRevoked reports whether the token has been revoked.
func (s *Store) IsRevoked(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, gone := s.revoked[id]
	return gone
}

// IsUsed reports whether a single-use token has been consumed.
func (s *Store) IsUsed(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, spent := s.used[id]
	return spent
}

// ClearSession drops all session-scoped tokens. Called when the
// session ends.
func (s *Store) ClearSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.session)
}

// List returns all unrevoked, unexpired tokens at the given time,
// session tokens first.
func (s *Store) List(now time.Time) []*Token {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var tokens []*Token
	for _, source := range []map[string]*Token{s.session, s.persistent} {
		for _, token := range source {
			if _, gone := s.revoked[token.ID]; gone {
				continue
			}
			if token.ExpiredAt(now, 0) {
				continue
			}
			tokens = append(tokens, token)
		}
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].ID < tokens[j].ID })
	return tokens
}

// RemoveExpired deletes expired persistent token files. Session
// tokens expire with the session; persistent files are cleaned here
// so the state directory does not accumulate dead grants.
func (s *Store) RemoveExpired(now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for id, token := range s.persistent {
		if !token.ExpiredAt(now, 0) {
			continue
		}
		delete(s.persistent, id)
		if s.stateDir == "" {
			continue
		}
		path := filepath.Join(s.stateDir, tokensDir, id+".json")
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			if firstErr == nil {
				firstErr = fmt.Errorf("capability: removing expired token %s: %w", id, err)
			}
		}
	}
	return firstErr
}
