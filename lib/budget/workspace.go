// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

package budget

import (
	"math"
	"sync"
	"time"
)

// WorkspaceTracker tracks cumulative spending across all sessions in
// a workspace. A zero MaxUSD means uncapped: spend is still recorded
// for reporting but never blocks. Safe for concurrent use.
type WorkspaceTracker struct {
	maxUSD        float64
	warnAtPercent int

	mu    sync.Mutex
	spent float64
}

// NewWorkspaceTracker creates a workspace tracker. maxUSD of zero
// means no cap. warnAtPercent above 100 is clamped.
func NewWorkspaceTracker(maxUSD float64, warnAtPercent int) *WorkspaceTracker {
	return &WorkspaceTracker{
		maxUSD:        maxUSD,
		warnAtPercent: min(warnAtPercent, 100),
	}
}

// CheckAndReserve atomically checks an estimated cost against the
// workspace cap and reserves it. With no cap, the cost is recorded
// for reporting and the result is always Allowed.
func (t *WorkspaceTracker) CheckAndReserve(estimatedCost float64) Result {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.maxUSD == 0 {
		if spendable(estimatedCost) {
			t.spent += estimatedCost
		}
		return Result{Decision: Allowed}
	}

	remaining := t.maxUSD - t.spent
	if estimatedCost > remaining {
		return Result{
			Decision:  Exceeded,
			Reason:    ReasonWorkspaceBudget,
			Requested: estimatedCost,
			Available: math.Max(remaining, 0),
		}
	}

	newSpend := t.spent + estimatedCost
	if spendable(estimatedCost) {
		t.spent = newSpend
	}

	if newSpend >= t.maxUSD*float64(t.warnAtPercent)/100 {
		return Result{
			Decision:     WarnAndAllow,
			CurrentSpend: newSpend,
			SessionMax:   t.maxUSD,
			PercentUsed:  newSpend / t.maxUSD * 100,
		}
	}
	return Result{Decision: Allowed}
}

// Record adds an actual cost to the workspace spend. Non-positive and
// non-finite values are ignored.
func (t *WorkspaceTracker) Record(cost float64) {
	if !spendable(cost) {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.spent += cost
}

// Refund returns a previously reserved or recorded cost, clamping at
// zero.
func (t *WorkspaceTracker) Refund(cost float64) {
	if !spendable(cost) {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.spent = math.Max(t.spent-cost, 0)
}

// Spent returns the cumulative workspace spend.
func (t *WorkspaceTracker) Spent() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.spent
}

// WorkspaceSnapshot captures workspace spend for persistence in the
// workspace state.
type WorkspaceSnapshot struct {
	TotalSpentUSD float64   `json:"total_spent_usd"`
	LastUpdated   time.Time `json:"last_updated"`
}

// Snapshot returns the current state for persistence.
func (t *WorkspaceTracker) Snapshot(now time.Time) WorkspaceSnapshot {
	return WorkspaceSnapshot{
		TotalSpentUSD: t.Spent(),
		LastUpdated:   now,
	}
}

// RestoreWorkspace rebuilds a workspace tracker from a snapshot,
// clamping the spend to a non-negative finite value.
func RestoreWorkspace(snapshot WorkspaceSnapshot, maxUSD float64, warnAtPercent int) *WorkspaceTracker {
	tracker := NewWorkspaceTracker(maxUSD, warnAtPercent)
	if spendable(snapshot.TotalSpentUSD) {
		tracker.spent = snapshot.TotalSpentUSD
	}
	return tracker
}
