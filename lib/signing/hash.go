// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

package signing

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Hash is a 32-byte BLAKE3 digest. Audit chain links and capability
// token digests are this size.
type Hash [32]byte

// ZeroHash is the all-zero hash. The genesis entry of every audit
// chain carries ZeroHash as its previous-entry link.
var ZeroHash Hash

// domainKey is a 32-byte key for BLAKE3 keyed hashing. Domain
// separation ensures that the same input bytes produce different
// hashes in different contexts, preventing cross-domain collisions.
type domainKey [32]byte

// Domain separation keys. These are fixed constants — changing them
// invalidates all existing hashes in that domain. The byte values
// are the ASCII encoding of the domain name, zero-padded to 32 bytes.
// Using readable ASCII makes the keys inspectable in hex dumps and
// debuggers without sacrificing any cryptographic property (BLAKE3
// keyed mode treats the key as an opaque 32-byte value).
var (
	auditEntryDomainKey = domainKey{
		'a', 'e', 'g', 'i', 's', '.', 'a', 'u', 'd', 'i', 't', '.',
		'e', 'n', 't', 'r', 'y', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}

	capabilityDomainKey = domainKey{
		'a', 'e', 'g', 'i', 's', '.', 'c', 'a', 'p', 'a', 'b', 'i', 'l', 'i', 't', 'y', '.',
		't', 'o', 'k', 'e', 'n', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}

	allowanceDomainKey = domainKey{
		'a', 'e', 'g', 'i', 's', '.', 'a', 'l', 'l', 'o', 'w', 'a', 'n', 'c', 'e',
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}
)

// HashAuditEntry computes the audit-entry-domain BLAKE3 keyed hash of
// the given canonical entry bytes. This is the hash each audit entry
// stores for its predecessor, forming the tamper-evident chain.
func HashAuditEntry(data []byte) Hash {
	return keyedHash(auditEntryDomainKey, data)
}

// HashCapabilityToken computes the capability-domain BLAKE3 keyed
// hash of the given canonical token bytes. Used as the token's stable
// content digest for revocation and single-use tracking.
func HashCapabilityToken(data []byte) Hash {
	return keyedHash(capabilityDomainKey, data)
}

// HashAllowance computes the allowance-domain BLAKE3 keyed hash of
// the given canonical allowance bytes. Used as the allowance's stable
// content digest when grants are referenced from exported state.
func HashAllowance(data []byte) Hash {
	return keyedHash(allowanceDomainKey, data)
}

func keyedHash(key domainKey, data []byte) Hash {
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		panic("signing: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	var result Hash
	copy(result[:], hasher.Sum(nil))
	return result
}

// IsZero reports whether the hash is the all-zero genesis link.
func (h Hash) IsZero() bool {
	return h == ZeroHash
}

// String returns the lowercase hex encoding of the hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// ParseHash decodes a 64-character hex string into a Hash.
func ParseHash(s string) (Hash, error) {
	var h Hash
	if len(s) != 64 {
		return h, fmt.Errorf("hash has %d hex characters, want 64", len(s))
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("decoding hash: %w", err)
	}
	copy(h[:], decoded)
	return h, nil
}
