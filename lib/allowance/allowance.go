// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

package allowance

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aegis-foundation/aegis/lib/codec"
	"github.com/aegis-foundation/aegis/lib/signing"
)

// signingDataVersion is the version byte embedded in the allowance
// signing payload.
const signingDataVersion = 1

// Errors returned by allowance creation and validation.
var (
	ErrInvalidSignature = errors.New("allowance: invalid signature")
	ErrNotFound         = errors.New("allowance: not found")
)

// Allowance is a signed, pre-approved grant for actions matching a
// pattern. Zero MaxUses means unlimited; a zero ExpiresAt means no
// expiry within the scope's lifetime.
type Allowance struct {
	// ID is a unique identifier (16-byte hex string).
	ID string `json:"id"`

	// Pattern describes the covered actions.
	Pattern Pattern `json:"-"`

	// CreatedAt is when the allowance was granted.
	CreatedAt time.Time `json:"created_at"`

	// ExpiresAt is when the allowance stops matching. Zero means no
	// expiry.
	ExpiresAt time.Time `json:"expires_at,omitzero"`

	// MaxUses bounds the total number of matches. Zero means
	// unlimited.
	MaxUses uint32 `json:"max_uses,omitempty"`

	// UsesRemaining counts down from MaxUses. Meaningless when
	// MaxUses is zero.
	UsesRemaining uint32 `json:"uses_remaining,omitempty"`

	// SessionOnly allowances are dropped when the session ends.
	SessionOnly bool `json:"session_only"`

	// WorkspaceRoot scopes a persistent allowance to one workspace.
	// Empty for session allowances.
	WorkspaceRoot string `json:"workspace_root,omitempty"`

	// SignerKeyID identifies the runtime key that signed this
	// allowance.
	SignerKeyID string `json:"signer_key_id"`

	// Signature is the Ed25519 signature over the signing payload.
	Signature []byte `json:"signature"`
}

// Spec carries the parameters for creating an allowance.
type Spec struct {
	Pattern       Pattern
	SessionOnly   bool
	WorkspaceRoot string
	// TTL bounds the allowance lifetime. Zero means no expiry.
	TTL time.Duration
	// MaxUses bounds the number of matches. Zero means unlimited.
	MaxUses uint32
}

// New creates and signs an allowance at the current time.
func New(signer signing.Signer, spec Spec) (*Allowance, error) {
	return NewAt(signer, spec, time.Now())
}

// NewAt is like New but accepts an explicit creation time.
func NewAt(signer signing.Signer, spec Spec, now time.Time) (*Allowance, error) {
	if spec.Pattern == nil {
		return nil, errors.New("allowance: pattern is required")
	}
	if spec.SessionOnly && spec.WorkspaceRoot != "" {
		return nil, errors.New("allowance: session allowance cannot carry a workspace root")
	}

	id, err := newAllowanceID()
	if err != nil {
		return nil, fmt.Errorf("allowance: generating ID: %w", err)
	}

	a := &Allowance{
		ID:            id,
		Pattern:       spec.Pattern,
		CreatedAt:     now.Truncate(time.Second),
		MaxUses:       spec.MaxUses,
		UsesRemaining: spec.MaxUses,
		SessionOnly:   spec.SessionOnly,
		WorkspaceRoot: spec.WorkspaceRoot,
		SignerKeyID:   signer.KeyID(),
	}
	if spec.TTL > 0 {
		a.ExpiresAt = a.CreatedAt.Add(spec.TTL)
	}

	payload, err := a.signingPayload()
	if err != nil {
		return nil, err
	}
	a.Signature = signer.Sign(payload)
	return a, nil
}

// allowanceSigningData is the deterministic CBOR payload covered by
// the allowance signature. UsesRemaining is deliberately excluded:
// consuming a use must not invalidate the signature.
type allowanceSigningData struct {
	Version       int    `cbor:"1,keyasint"`
	ID            string `cbor:"2,keyasint"`
	PatternKind   string `cbor:"3,keyasint"`
	Pattern       string `cbor:"4,keyasint"`
	CreatedAt     int64  `cbor:"5,keyasint"`
	ExpiresAt     int64  `cbor:"6,keyasint,omitempty"`
	MaxUses       uint32 `cbor:"7,keyasint,omitempty"`
	SessionOnly   bool   `cbor:"8,keyasint,omitempty"`
	WorkspaceRoot string `cbor:"9,keyasint,omitempty"`
	SignerKeyID   string `cbor:"10,keyasint"`
}

func (a *Allowance) signingPayload() ([]byte, error) {
	data := allowanceSigningData{
		Version:       signingDataVersion,
		ID:            a.ID,
		PatternKind:   a.Pattern.Kind(),
		Pattern:       a.Pattern.String(),
		CreatedAt:     a.CreatedAt.Unix(),
		MaxUses:       a.MaxUses,
		SessionOnly:   a.SessionOnly,
		WorkspaceRoot: a.WorkspaceRoot,
		SignerKeyID:   a.SignerKeyID,
	}
	if !a.ExpiresAt.IsZero() {
		data.ExpiresAt = a.ExpiresAt.Unix()
	}
	payload, err := codec.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("allowance: encoding signing payload: %w", err)
	}
	return payload, nil
}

// VerifySignature checks the allowance signature.
func (a *Allowance) VerifySignature(verifier signing.Verifier) error {
	payload, err := a.signingPayload()
	if err != nil {
		return err
	}
	if !verifier.Verify(payload, a.Signature) {
		return fmt.Errorf("%w: allowance %s", ErrInvalidSignature, a.ID)
	}
	return nil
}

// ContentHash returns the allowance's stable content digest, used
// when referencing grants from exported state.
func (a *Allowance) ContentHash() (signing.Hash, error) {
	payload, err := a.signingPayload()
	if err != nil {
		return signing.Hash{}, err
	}
	return signing.HashAllowance(payload), nil
}

// ExpiredAt reports whether the allowance is expired at the given
// time.
func (a *Allowance) ExpiredAt(now time.Time) bool {
	return !a.ExpiresAt.IsZero() && now.After(a.ExpiresAt)
}

// HasUsesRemaining reports whether the allowance can still be
// consumed.
func (a *Allowance) HasUsesRemaining() bool {
	return a.MaxUses == 0 || a.UsesRemaining > 0
}

// ValidAt reports whether the allowance is usable at the given time:
// not expired and with uses remaining.
func (a *Allowance) ValidAt(now time.Time) bool {
	return !a.ExpiredAt(now) && a.HasUsesRemaining()
}

// allowanceJSON mirrors Allowance with the pattern as a tagged
// envelope, for export and persistence.
type allowanceJSON struct {
	ID            string          `json:"id"`
	Pattern       json.RawMessage `json:"pattern"`
	CreatedAt     time.Time       `json:"created_at"`
	ExpiresAt     time.Time       `json:"expires_at,omitzero"`
	MaxUses       uint32          `json:"max_uses,omitempty"`
	UsesRemaining uint32          `json:"uses_remaining,omitempty"`
	SessionOnly   bool            `json:"session_only"`
	WorkspaceRoot string          `json:"workspace_root,omitempty"`
	SignerKeyID   string          `json:"signer_key_id"`
	Signature     []byte          `json:"signature"`
}

// MarshalJSON implements json.Marshaler, embedding the pattern as a
// tagged envelope.
func (a *Allowance) MarshalJSON() ([]byte, error) {
	patternData, err := EncodePattern(a.Pattern)
	if err != nil {
		return nil, err
	}
	return json.Marshal(allowanceJSON{
		ID:            a.ID,
		Pattern:       patternData,
		CreatedAt:     a.CreatedAt,
		ExpiresAt:     a.ExpiresAt,
		MaxUses:       a.MaxUses,
		UsesRemaining: a.UsesRemaining,
		SessionOnly:   a.SessionOnly,
		WorkspaceRoot: a.WorkspaceRoot,
		SignerKeyID:   a.SignerKeyID,
		Signature:     a.Signature,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Allowance) UnmarshalJSON(data []byte) error {
	var raw allowanceJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	decoded, err := DecodePattern(raw.Pattern)
	if err != nil {
		return fmt.Errorf("allowance %s: %w", raw.ID, err)
	}
	*a = Allowance{
		ID:            raw.ID,
		Pattern:       decoded,
		CreatedAt:     raw.CreatedAt,
		ExpiresAt:     raw.ExpiresAt,
		MaxUses:       raw.MaxUses,
		UsesRemaining: raw.UsesRemaining,
		SessionOnly:   raw.SessionOnly,
		WorkspaceRoot: raw.WorkspaceRoot,
		SignerKeyID:   raw.SignerKeyID,
		Signature:     raw.Signature,
	}
	return nil
}

// newAllowanceID creates a random 16-byte hex string identifying an
// allowance.
func newAllowanceID() (string, error) {
	var buffer [16]byte
	if _, err := rand.Read(buffer[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(buffer[:]), nil
}
