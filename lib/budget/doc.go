// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

// Package budget enforces spending limits on agent actions. A
// [Tracker] caps total session spend and the cost of any single
// action; a [WorkspaceTracker] caps cumulative spend across all
// sessions in a workspace.
//
// The enforcement primitive is [Tracker.CheckAndReserve]: the budget
// check and the spend reservation happen in one critical section, so
// two concurrent actions can never both pass the check and then both
// record costs past the cap. If a reserved action is later denied or
// fails, the caller refunds the reservation with [Tracker.Refund].
//
// Costs are USD floats. Negative, NaN, and infinite values are
// rejected everywhere they could move the spend counter, so a
// malicious cost estimate cannot mint budget. Snapshots clamp on
// restore for the same reason.
package budget
