// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

// Package audit implements the signed, hash-chained audit ledger.
//
// Every authorization decision is recorded as an [Entry]: what action
// was attempted, how it was authorized, and how it turned out. Entries
// within a session form a singly-linked hash chain — each entry
// carries the content hash of its predecessor, and the first entry in
// a session carries the zero hash. Entries are Ed25519-signed by the
// runtime key over a deterministic CBOR payload, so any later edit to
// a stored entry breaks its signature, and any removal or reordering
// breaks the chain.
//
// [Log] is the append interface used by the interceptor; [VerifyChain]
// and [VerifyAll] recompute hashes and signatures from storage and
// collect every issue found rather than stopping at the first.
// Storage is pluggable: [NewMemoryStorage] for tests and
// [OpenFileStorage] for the state directory, which writes
// length-prefixed CBOR records with a one-byte compression tag.
package audit
