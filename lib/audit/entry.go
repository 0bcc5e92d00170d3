// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aegis-foundation/aegis/lib/codec"
	"github.com/aegis-foundation/aegis/lib/signing"
)

// signingDataVersion is the version embedded in the signing payload.
// Increment when the payload structure changes; verification rejects
// unknown versions rather than guessing.
const signingDataVersion = 1

// Errors returned by entry verification and storage.
var (
	ErrInvalidSignature = errors.New("audit: invalid entry signature")
	ErrEntryNotFound    = errors.New("audit: entry not found")
)

// Authorization records how an audited action was authorized. The
// interceptor maps its proof types onto this flat record; the audit
// package stays independent of the proof sum type so verification
// tools need only this package.
type Authorization struct {
	// Type is the proof kind label: "policy", "capability",
	// "session_approval", "workspace_approval", "user_approval",
	// "allowance", "system", "not_required", or "denied".
	Type string `json:"type"`

	// Reference identifies the authorizing object: a capability token
	// ID, an allowance ID, or the audit entry ID of a prior approval.
	Reference string `json:"reference,omitempty"`

	// KeyID identifies the key of the approving party, when known.
	KeyID string `json:"key_id,omitempty"`

	// Reason explains system, not-required, and denied authorizations.
	Reason string `json:"reason,omitempty"`
}

// Outcome records how an audited action turned out.
type Outcome struct {
	Success bool `json:"success"`

	// Detail optionally elaborates a success ("allowed by capability
	// 3f2a...").
	Detail string `json:"detail,omitempty"`

	// Error carries the failure reason when Success is false.
	Error string `json:"error,omitempty"`
}

// Success returns a bare success outcome.
func Success() Outcome { return Outcome{Success: true} }

// SuccessWith returns a success outcome with a detail string.
func SuccessWith(detail string) Outcome {
	return Outcome{Success: true, Detail: detail}
}

// Failure returns a failure outcome with the given error text.
func Failure(reason string) Outcome {
	return Outcome{Success: false, Error: reason}
}

// Entry is a single audit record. Entries are immutable after
// creation: they are signed at append time and never updated.
type Entry struct {
	// ID is a unique entry identifier (16-byte hex string).
	ID string `json:"id"`

	// Timestamp is when the entry was created, truncated to seconds.
	Timestamp time.Time `json:"timestamp"`

	// SessionID is the session whose chain this entry extends.
	SessionID string `json:"session_id"`

	// ActionType is the stable label of the audited action.
	ActionType string `json:"action_type"`

	// Action is the tagged JSON envelope of the audited action.
	Action json.RawMessage `json:"action"`

	// Summary is the one-line description shown in audit listings.
	Summary string `json:"summary"`

	// Authorization records how the action was authorized.
	Authorization Authorization `json:"authorization"`

	// Outcome records whether the action was allowed or denied.
	Outcome Outcome `json:"outcome"`

	// PreviousHash links to the preceding entry in the session chain.
	// The zero hash marks the genesis entry.
	PreviousHash signing.Hash `json:"previous_hash"`

	// RuntimeKey is the Ed25519 public key that signed this entry.
	// Embedded so chains remain verifiable without key distribution.
	RuntimeKey []byte `json:"runtime_key"`

	// Signature is the Ed25519 signature over the signing payload.
	Signature []byte `json:"signature"`
}

// entrySigningData is the deterministic CBOR payload covered by the
// entry signature. Field numbers are part of the signed format: never
// renumber, only append. The outcome contributes only its success
// flag, matching the chain semantics: the chain proves what was
// decided, not the free-text detail.
type entrySigningData struct {
	Version       int    `cbor:"1,keyasint"`
	ID            string `cbor:"2,keyasint"`
	Timestamp     int64  `cbor:"3,keyasint"`
	SessionID     string `cbor:"4,keyasint"`
	ActionType    string `cbor:"5,keyasint"`
	Action        []byte `cbor:"6,keyasint"`
	AuthType      string `cbor:"7,keyasint"`
	AuthReference string `cbor:"8,keyasint,omitempty"`
	AuthKeyID     string `cbor:"9,keyasint,omitempty"`
	AuthReason    string `cbor:"10,keyasint,omitempty"`
	Success       bool   `cbor:"11,keyasint"`
	PreviousHash  []byte `cbor:"12,keyasint"`
	RuntimeKey    []byte `cbor:"13,keyasint"`
}

func (e *Entry) signingPayload() ([]byte, error) {
	data := entrySigningData{
		Version:       signingDataVersion,
		ID:            e.ID,
		Timestamp:     e.Timestamp.Unix(),
		SessionID:     e.SessionID,
		ActionType:    e.ActionType,
		Action:        []byte(e.Action),
		AuthType:      e.Authorization.Type,
		AuthReference: e.Authorization.Reference,
		AuthKeyID:     e.Authorization.KeyID,
		AuthReason:    e.Authorization.Reason,
		Success:       e.Outcome.Success,
		PreviousHash:  e.PreviousHash[:],
		RuntimeKey:    e.RuntimeKey,
	}
	payload, err := codec.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("audit: encoding signing payload: %w", err)
	}
	return payload, nil
}

// ContentHash returns the entry's stable digest. The next entry in the
// session chain stores this value as its PreviousHash.
func (e *Entry) ContentHash() (signing.Hash, error) {
	payload, err := e.signingPayload()
	if err != nil {
		return signing.Hash{}, err
	}
	return signing.HashAuditEntry(payload), nil
}

// VerifySignature checks the entry signature against the embedded
// runtime key.
func (e *Entry) VerifySignature() error {
	if len(e.RuntimeKey) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: entry %s has malformed runtime key", ErrInvalidSignature, e.ID)
	}
	payload, err := e.signingPayload()
	if err != nil {
		return err
	}
	if !ed25519.Verify(ed25519.PublicKey(e.RuntimeKey), payload, e.Signature) {
		return fmt.Errorf("%w: entry %s", ErrInvalidSignature, e.ID)
	}
	return nil
}

// Follows reports whether this entry chain-links to previous.
func (e *Entry) Follows(previous *Entry) bool {
	hash, err := previous.ContentHash()
	if err != nil {
		return false
	}
	return e.PreviousHash == hash
}

// newEntryID creates a random 16-byte hex string identifying an entry.
func newEntryID() (string, error) {
	var buffer [16]byte
	if _, err := rand.Read(buffer[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(buffer[:]), nil
}
