// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

// Package action defines the taxonomy of sensitive actions an agent
// can attempt. [SensitiveAction] is a closed sum: each variant is a
// struct carrying enough context for a human to make an informed
// allow/deny decision, and the interceptor switches over the variants
// exhaustively.
//
// Every variant reports a stable [SensitiveAction.ActionType] label,
// a baseline [SensitiveAction.DefaultRiskLevel], and a human-readable
// [SensitiveAction.Summary]. The type labels and risk table are part
// of the audit format: changing a label orphans existing audit
// entries for that action type.
//
// [Encode] and [Decode] provide a tagged JSON envelope for shipping
// actions to approval frontends and for audit export.
package action
