// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

package signing

import "crypto/ed25519"

// Signer produces signatures over canonical message bytes. The audit
// log and capability store depend on this interface rather than on
// [KeyPair] directly, so a hardware-backed or remote signer can be
// substituted without touching the callers.
type Signer interface {
	// Sign returns the signature of message.
	Sign(message []byte) []byte

	// KeyID identifies the signing key. Recorded alongside each
	// signature so verifiers can select the right public key.
	KeyID() string
}

// Verifier checks signatures produced by a [Signer].
type Verifier interface {
	// Verify reports whether signature is a valid signature of
	// message.
	Verify(message, signature []byte) bool
}

// PublicKeyVerifier returns a Verifier for a bare Ed25519 public key,
// for verifying chains exported from another process.
func PublicKeyVerifier(public ed25519.PublicKey) Verifier {
	return publicVerifier{public: public}
}

type publicVerifier struct {
	public ed25519.PublicKey
}

func (v publicVerifier) Verify(message, signature []byte) bool {
	return ed25519.Verify(v.public, message, signature)
}
