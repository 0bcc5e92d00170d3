// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

// Package intercept authorizes sensitive actions before an agent
// runtime executes them.
//
// The Interceptor combines the policy, capability, allowance, and
// budget layers with a human-approval fallback, in a fixed order that
// is the security contract of the whole system:
//
//  1. Policy. A Blocked verdict denies unconditionally, before any
//     budget or token state is touched.
//  2. Capability. An existing valid token authorizes the action; the
//     budget is still charged when the action carries a cost.
//  3. Allowance. An existing session or workspace grant, consumed
//     atomically with the match.
//  4. Budget. Cost-bearing actions must reserve their estimated cost;
//     exceeding either the session or workspace tracker denies.
//  5. Human approval. The caller's Handler is asked; its decision may
//     mint a new allowance or capability token for future calls.
//
// A policy verdict of RequiresApproval rules out the policy-allowed
// short-circuit: the action must be covered by a capability, an
// allowance, or a fresh human approval.
//
// Every authorization, allowed or denied, writes exactly one audit
// entry before returning, and a failed audit append fails the
// authorization. An approval that times out, is cancelled, or has no
// available handler surfaces as a denial, never as a silent allow;
// any budget reservation made for it is refunded.
package intercept
