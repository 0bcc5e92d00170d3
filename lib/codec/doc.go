// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides deterministic CBOR encoding and decoding for
// Aegis records.
//
// Signing payloads (capability tokens, audit entries) and at-rest
// records all go through this package. The encoder uses Core
// Deterministic Encoding (RFC 8949 §4.2), so the same logical data
// always produces identical bytes — a requirement for signature
// verification and audit chain hashing, where re-encoding a decoded
// record must reproduce the exact signed bytes.
package codec
