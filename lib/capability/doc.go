// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

// Package capability implements signed capability tokens and their
// store. A [Token] grants a set of permissions on a resource pattern,
// is signed by the runtime key, and is linked to the audit entry of
// the approval that created it, so every standing grant can be traced
// back to a human decision.
//
// Tokens are scoped: session tokens live in memory and vanish when
// the session ends; persistent tokens are written to the state
// directory and survive restarts. Revocation tombstones rather than
// deletes — a revoked token stays on disk so audits can still resolve
// it. Single-use tokens are tombstoned after their first use to
// prevent replay.
package capability
