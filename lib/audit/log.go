// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aegis-foundation/aegis/lib/action"
	"github.com/aegis-foundation/aegis/lib/clock"
	"github.com/aegis-foundation/aegis/lib/signing"
)

// Log appends signed entries to per-session hash chains. Safe for
// concurrent use; appends are serialized so concurrent entries for
// the same session link cleanly.
type Log struct {
	storage Storage
	key     *signing.KeyPair
	clk     clock.Clock
	logger  *slog.Logger

	mu    sync.Mutex
	heads map[string]signing.Hash
}

// Options configures a Log. Zero values select the real clock and
// slog.Default().
type Options struct {
	Clock  clock.Clock
	Logger *slog.Logger
}

// NewLog creates a log appending to storage, signing with key.
func NewLog(storage Storage, key *signing.KeyPair, opts Options) *Log {
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{
		storage: storage,
		key:     key,
		clk:     clk,
		logger:  logger,
		heads:   make(map[string]signing.Hash),
	}
}

// Append creates, signs, and stores an entry extending the session's
// chain. The returned entry carries the ID that approval-created
// capabilities link back to.
func (l *Log) Append(sessionID string, act action.SensitiveAction, auth Authorization, outcome Outcome) (*Entry, error) {
	envelope, err := action.Encode(act)
	if err != nil {
		return nil, fmt.Errorf("audit: encoding action: %w", err)
	}
	id, err := newEntryID()
	if err != nil {
		return nil, fmt.Errorf("audit: generating entry ID: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	previous, err := l.previousHashLocked(sessionID)
	if err != nil {
		return nil, err
	}

	entry := &Entry{
		ID:            id,
		Timestamp:     l.clk.Now().UTC().Truncate(time.Second),
		SessionID:     sessionID,
		ActionType:    act.ActionType(),
		Action:        envelope,
		Summary:       act.Summary(),
		Authorization: auth,
		Outcome:       outcome,
		PreviousHash:  previous,
		RuntimeKey:    []byte(l.key.Public()),
	}
	payload, err := entry.signingPayload()
	if err != nil {
		return nil, err
	}
	entry.Signature = l.key.Sign(payload)

	if err := l.storage.Store(entry); err != nil {
		return nil, err
	}

	hash, err := entry.ContentHash()
	if err != nil {
		return nil, err
	}
	l.heads[sessionID] = hash

	l.logger.Debug("audit entry appended",
		"entry_id", entry.ID,
		"session_id", sessionID,
		"action", entry.Summary,
		"success", outcome.Success)
	return entry, nil
}

// previousHashLocked returns the chain head hash for a session, the
// zero hash for a new session. Caller holds l.mu.
func (l *Log) previousHashLocked(sessionID string) (signing.Hash, error) {
	if hash, ok := l.heads[sessionID]; ok {
		return hash, nil
	}
	head, err := l.storage.ChainHead(sessionID)
	if err != nil {
		return signing.Hash{}, err
	}
	if head == nil {
		return signing.ZeroHash, nil
	}
	return head.ContentHash()
}

// Get returns an entry by ID.
func (l *Log) Get(id string) (*Entry, error) { return l.storage.Get(id) }

// SessionEntries returns a session's entries in chain order.
func (l *Log) SessionEntries(sessionID string) ([]*Entry, error) {
	return l.storage.SessionEntries(sessionID)
}

// Count returns the total number of entries.
func (l *Log) Count() (int, error) { return l.storage.Count() }

// CountSession returns the number of entries for a session.
func (l *Log) CountSession(sessionID string) (int, error) {
	return l.storage.CountSession(sessionID)
}

// ListSessions returns all session IDs.
func (l *Log) ListSessions() ([]string, error) { return l.storage.ListSessions() }

// VerifyChain verifies the session's chain in this log's storage.
func (l *Log) VerifyChain(sessionID string) (Report, error) {
	return VerifyChain(l.storage, sessionID)
}

// VerifyAll verifies every session chain in this log's storage.
func (l *Log) VerifyAll() ([]SessionReport, error) {
	return VerifyAll(l.storage)
}

// PublicKey returns the runtime public key entries are signed with.
func (l *Log) PublicKey() []byte { return []byte(l.key.Public()) }
