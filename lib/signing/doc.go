// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

// Package signing provides the cryptographic primitives for the Aegis
// authorization core: Ed25519 signing keypairs and BLAKE3 content
// hashing with domain separation.
//
// [KeyPair] wraps an Ed25519 keypair with state-directory persistence
// (the private key file is 0600) and an 8-byte key ID derived from the
// public key. The [Signer] interface is the seam between the
// authorization layers and the concrete keypair, so tests can
// substitute a deterministic double without touching key files.
//
// [Hash] is a 32-byte BLAKE3 digest. Each hashing context (audit
// entries, capability tokens) uses its own fixed 32-byte domain key,
// so the same input bytes produce different hashes in different
// contexts and cross-domain collisions are impossible.
package signing
