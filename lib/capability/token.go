// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

package capability

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/aegis-foundation/aegis/lib/action"
	"github.com/aegis-foundation/aegis/lib/codec"
	"github.com/aegis-foundation/aegis/lib/signing"
)

// signingDataVersion is the version byte embedded in the signing
// payload. Increment when the payload structure changes; verification
// rejects unknown versions rather than guessing.
const signingDataVersion = 1

// DefaultClockSkew is the tolerance applied to expiry checks so a
// token minted on one machine is not rejected by another with a
// slightly slow clock.
const DefaultClockSkew = 30 * time.Second

// Scope determines how long a token outlives its creation.
type Scope string

const (
	// ScopeSession tokens live in memory and are dropped when the
	// session ends.
	ScopeSession Scope = "session"
	// ScopeWorkspace tokens persist with the workspace state and are
	// only honored inside the workspace that minted them.
	ScopeWorkspace Scope = "workspace"
	// ScopePersistent tokens are written to the state directory and
	// survive restarts.
	ScopePersistent Scope = "persistent"
)

// Valid reports whether the scope is one of the known values.
func (s Scope) Valid() bool {
	switch s {
	case ScopeSession, ScopeWorkspace, ScopePersistent:
		return true
	}
	return false
}

// Errors returned by token validation.
var (
	ErrInvalidSignature = errors.New("capability: invalid token signature")
	ErrTokenExpired     = errors.New("capability: token has expired")
	ErrTokenRevoked     = errors.New("capability: token has been revoked")
	ErrTokenUsed        = errors.New("capability: single-use token already used")
	ErrTokenNotFound    = errors.New("capability: token not found")
)

// Token is a signed grant of permissions on a resource pattern.
// Immutable after minting: revocation and single-use consumption are
// tracked by the store, not by mutating the token.
type Token struct {
	// ID is a unique token identifier (16-byte hex string).
	ID string `json:"id"`

	// Resource is the pattern this token applies to.
	Resource ResourcePattern `json:"-"`

	// ResourceRaw is the serialized pattern string. Kept alongside
	// Resource so persisted tokens round-trip through JSON.
	ResourceRaw string `json:"resource"`

	// Permissions granted on the resource.
	Permissions []action.Permission `json:"permissions"`

	// IssuedAt is when the token was minted.
	IssuedAt time.Time `json:"issued_at"`

	// ExpiresAt is when the token stops being honored. Zero means no
	// expiry within the scope's lifetime.
	ExpiresAt time.Time `json:"expires_at,omitzero"`

	// Scope is the token's lifetime class.
	Scope Scope `json:"scope"`

	// WorkspaceRoot is the workspace that minted a workspace-scoped
	// token. Empty for session and persistent scopes.
	WorkspaceRoot string `json:"workspace_root,omitempty"`

	// IssuerKeyID identifies the runtime key that signed the token.
	IssuerKeyID string `json:"issuer_key_id"`

	// ApprovalAuditID links to the audit entry recording the human
	// approval that created this token.
	ApprovalAuditID string `json:"approval_audit_id"`

	// SingleUse marks a token that is tombstoned after first use.
	SingleUse bool `json:"single_use,omitempty"`

	// Signature is the Ed25519 signature over the signing payload.
	Signature []byte `json:"signature"`
}

// MintSpec carries the parameters for minting a token.
type MintSpec struct {
	Resource        ResourcePattern
	Permissions     []action.Permission
	Scope           Scope
	WorkspaceRoot   string
	ApprovalAuditID string
	// TTL bounds the token lifetime. Zero means no expiry.
	TTL time.Duration
	// SingleUse tokens are consumed on first use.
	SingleUse bool
}

// Mint creates and signs a token at the current time.
func Mint(signer signing.Signer, spec MintSpec) (*Token, error) {
	return MintAt(signer, spec, time.Now())
}

// MintAt is like Mint but accepts an explicit issue time. This
// supports deterministic testing.
func MintAt(signer signing.Signer, spec MintSpec, now time.Time) (*Token, error) {
	if !spec.Scope.Valid() {
		return nil, fmt.Errorf("capability: invalid scope %q", spec.Scope)
	}
	if len(spec.Permissions) == 0 {
		return nil, errors.New("capability: token must grant at least one permission")
	}
	for _, p := range spec.Permissions {
		if !p.Valid() {
			return nil, fmt.Errorf("capability: unknown permission %q", p)
		}
	}
	if spec.Scope == ScopeWorkspace && spec.WorkspaceRoot == "" {
		return nil, errors.New("capability: workspace-scoped token requires a workspace root")
	}

	id, err := newTokenID()
	if err != nil {
		return nil, fmt.Errorf("capability: generating token ID: %w", err)
	}

	token := &Token{
		ID:              id,
		Resource:        spec.Resource,
		ResourceRaw:     spec.Resource.String(),
		Permissions:     spec.Permissions,
		IssuedAt:        now.Truncate(time.Second),
		Scope:           spec.Scope,
		WorkspaceRoot:   spec.WorkspaceRoot,
		IssuerKeyID:     signer.KeyID(),
		ApprovalAuditID: spec.ApprovalAuditID,
		SingleUse:       spec.SingleUse,
	}
	if spec.TTL > 0 {
		token.ExpiresAt = token.IssuedAt.Add(spec.TTL)
	}

	payload, err := token.signingPayload()
	if err != nil {
		return nil, err
	}
	token.Signature = signer.Sign(payload)
	return token, nil
}

// tokenSigningData is the deterministic CBOR payload covered by the
// token signature. Field numbers are part of the signed format: never
// renumber, only append.
type tokenSigningData struct {
	Version       int      `cbor:"1,keyasint"`
	ID            string   `cbor:"2,keyasint"`
	Resource      string   `cbor:"3,keyasint"`
	Permissions   []string `cbor:"4,keyasint"`
	IssuedAt      int64    `cbor:"5,keyasint"`
	ExpiresAt     int64    `cbor:"6,keyasint,omitempty"`
	Scope         string   `cbor:"7,keyasint"`
	WorkspaceRoot string   `cbor:"8,keyasint,omitempty"`
	IssuerKeyID   string   `cbor:"9,keyasint"`
	ApprovalAudit string   `cbor:"10,keyasint"`
	SingleUse     bool     `cbor:"11,keyasint,omitempty"`
}

func (t *Token) signingPayload() ([]byte, error) {
	permissions := make([]string, len(t.Permissions))
	for i, p := range t.Permissions {
		permissions[i] = string(p)
	}
	data := tokenSigningData{
		Version:       signingDataVersion,
		ID:            t.ID,
		Resource:      t.ResourceRaw,
		Permissions:   permissions,
		IssuedAt:      t.IssuedAt.Unix(),
		Scope:         string(t.Scope),
		WorkspaceRoot: t.WorkspaceRoot,
		IssuerKeyID:   t.IssuerKeyID,
		ApprovalAudit: t.ApprovalAuditID,
		SingleUse:     t.SingleUse,
	}
	if !t.ExpiresAt.IsZero() {
		data.ExpiresAt = t.ExpiresAt.Unix()
	}
	payload, err := codec.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("capability: encoding signing payload: %w", err)
	}
	return payload, nil
}

// VerifySignature checks the token signature against the verifier.
func (t *Token) VerifySignature(verifier signing.Verifier) error {
	payload, err := t.signingPayload()
	if err != nil {
		return err
	}
	if !verifier.Verify(payload, t.Signature) {
		return ErrInvalidSignature
	}
	return nil
}

// ExpiredAt reports whether the token is expired at the given time,
// with the given clock skew tolerance: a token that expired less than
// skew ago is still honored.
func (t *Token) ExpiredAt(now time.Time, skew time.Duration) bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return now.After(t.ExpiresAt.Add(skew))
}

// Validate checks signature and expiry with the default clock skew.
func (t *Token) Validate(verifier signing.Verifier, now time.Time) error {
	if t.ExpiredAt(now, DefaultClockSkew) {
		return fmt.Errorf("%w: token %s", ErrTokenExpired, t.ID)
	}
	return t.VerifySignature(verifier)
}

// Grants reports whether the token covers the given resource with the
// given permission.
func (t *Token) Grants(resource string, permission action.Permission) bool {
	if !t.Resource.Matches(resource) {
		return false
	}
	for _, p := range t.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// ContentHash returns the token's stable content digest, used when
// recording token references in audit entries.
func (t *Token) ContentHash() (signing.Hash, error) {
	payload, err := t.signingPayload()
	if err != nil {
		return signing.Hash{}, err
	}
	return signing.HashCapabilityToken(payload), nil
}

// rehydrate rebuilds the parsed resource pattern after JSON decoding.
func (t *Token) rehydrate() error {
	resource, err := NewResourcePattern(t.ResourceRaw)
	if err != nil {
		return fmt.Errorf("capability: token %s has invalid resource pattern: %w", t.ID, err)
	}
	t.Resource = resource
	return nil
}

// newTokenID creates a random 16-byte hex string identifying a token.
func newTokenID() (string, error) {
	var buffer [16]byte
	if _, err := rand.Read(buffer[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(buffer[:]), nil
}
