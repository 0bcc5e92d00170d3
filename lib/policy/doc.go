// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

// Package policy implements the admin-configured security policy: the
// hard boundaries an agent action is checked against before any
// capability, allowance, or budget logic runs.
//
// A [SecurityPolicy] partitions actions into three outcomes:
//
//   - Blocked: never allowed, no approval can override.
//   - RequiresApproval: must go to a human, carrying a risk
//     assessment for the approval prompt.
//   - Allowed: passes the policy layer; later layers still apply.
//
// Checks run in a fixed order: blocked tools, path traversal, denied
// paths, denied hosts, argument size, approval-required tools, then
// the per-kind approval flags. Deny rules are always evaluated before
// allow rules, so a path or host on both lists is blocked.
//
// Policies load from YAML or JSONC files with [LoadFile]; fields not
// present in the file keep the [Default] values.
package policy
