// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

package budget

import (
	"math"
	"sync"
	"time"
)

// Tracker enforces session and per-action spending limits. Safe for
// concurrent use.
type Tracker struct {
	config Config

	mu    sync.Mutex
	spent float64
}

// NewTracker creates a tracker with the given configuration.
func NewTracker(config Config) *Tracker {
	return &Tracker{config: config}
}

// Check reports whether an estimated cost fits the budget without
// reserving it. Callers on the authorization path use
// [Tracker.CheckAndReserve] instead; Check exists for advisory
// queries (status displays, pre-flight estimates).
func (t *Tracker) Check(estimatedCost float64) Result {
	if estimatedCost > t.config.PerActionMaxUSD {
		return Result{
			Decision:  Exceeded,
			Reason:    ReasonPerActionLimit,
			Requested: estimatedCost,
			Available: t.config.PerActionMaxUSD,
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.evaluateLocked(estimatedCost, false)
}

// CheckAndReserve atomically checks an estimated cost and reserves it
// against the session budget. The check and the reservation share one
// critical section: two concurrent callers can never both pass and
// overshoot the cap. A reservation for an action that is later denied
// or fails must be returned with [Tracker.Refund].
func (t *Tracker) CheckAndReserve(estimatedCost float64) Result {
	if estimatedCost > t.config.PerActionMaxUSD {
		return Result{
			Decision:  Exceeded,
			Reason:    ReasonPerActionLimit,
			Requested: estimatedCost,
			Available: t.config.PerActionMaxUSD,
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.evaluateLocked(estimatedCost, true)
}

// evaluateLocked checks the session cap and warning threshold, and
// reserves the cost when reserve is set. Caller holds t.mu.
func (t *Tracker) evaluateLocked(estimatedCost float64, reserve bool) Result {
	remaining := t.config.SessionMaxUSD - t.spent
	if estimatedCost > remaining {
		return Result{
			Decision:  Exceeded,
			Reason:    ReasonSessionBudget,
			Requested: estimatedCost,
			Available: remaining,
		}
	}

	newSpend := t.spent + estimatedCost
	if reserve && spendable(estimatedCost) {
		t.spent = newSpend
	}

	if newSpend >= t.config.WarnThresholdUSD() {
		return Result{
			Decision:     WarnAndAllow,
			CurrentSpend: newSpend,
			SessionMax:   t.config.SessionMaxUSD,
			PercentUsed:  newSpend / t.config.SessionMaxUSD * 100,
		}
	}
	return Result{Decision: Allowed}
}

// Record adds an actual cost to the session spend. Non-positive and
// non-finite values are ignored so a hostile cost report cannot move
// the counter backwards.
func (t *Tracker) Record(actualCost float64) {
	if !spendable(actualCost) {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.spent += actualCost
}

// Refund returns a previously reserved or recorded cost, clamping at
// zero.
func (t *Tracker) Refund(actualCost float64) {
	if !spendable(actualCost) {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.spent = math.Max(t.spent-actualCost, 0)
}

// Remaining returns the unspent session budget, clamped at zero.
func (t *Tracker) Remaining() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return math.Max(t.config.SessionMaxUSD-t.spent, 0)
}

// Spent returns the total recorded session spend.
func (t *Tracker) Spent() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.spent
}

// Config returns the tracker's configuration.
func (t *Tracker) Config() Config { return t.config }

// Reset zeroes the session spend.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.spent = 0
}

// Snapshot captures the tracker state for persistence.
type Snapshot struct {
	SessionSpentUSD float64   `json:"session_spent_usd"`
	Config          Config    `json:"config"`
	LastUpdated     time.Time `json:"last_updated"`
}

// Snapshot returns the current state for persistence.
func (t *Tracker) Snapshot(now time.Time) Snapshot {
	return Snapshot{
		SessionSpentUSD: t.Spent(),
		Config:          t.config,
		LastUpdated:     now,
	}
}

// Restore rebuilds a tracker from a snapshot. The spent amount is
// clamped to a non-negative finite value: a tampered snapshot with
// negative or NaN spend must not mint budget.
func Restore(snapshot Snapshot) *Tracker {
	tracker := NewTracker(snapshot.Config)
	if spendable(snapshot.SessionSpentUSD) {
		tracker.spent = snapshot.SessionSpentUSD
	}
	return tracker
}

// spendable reports whether a value may move a spend counter:
// positive and finite.
func spendable(cost float64) bool {
	return cost > 0 && !math.IsInf(cost, 0) && !math.IsNaN(cost)
}
