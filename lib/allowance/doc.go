// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

// Package allowance implements pre-approved action grants. An
// [Allowance] covers actions matching a [Pattern], optionally bounded
// by an expiry and a use count, and is signed by the runtime key so a
// persisted allowance cannot be fabricated by editing state files.
//
// Allowances come in two scopes. Session allowances are dropped when
// the session ends. Workspace allowances record the workspace root
// that created them and persist with the workspace; they never match
// actions in a different workspace. The [Store] keeps the two scopes
// in separate collections and always consults session allowances
// first.
//
// Use counting is atomic with matching: [Store.FindAndConsume] holds
// the write lock across the lookup and the decrement, so two
// concurrent callers can never both spend the last use of a bounded
// allowance. Expiry is lazy — expired allowances are dropped during
// lookups, not by a background sweep.
package allowance
