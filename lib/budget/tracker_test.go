// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

package budget

import (
	"math"
	"sync"
	"testing"
	"time"
)

func TestCheckAndReserveBasics(t *testing.T) {
	tracker := NewTracker(NewConfig(10, 5))

	result := tracker.CheckAndReserve(1)
	if result.Decision != Allowed {
		t.Errorf("small cost: %v, want Allowed", result)
	}
	if tracker.Spent() != 1 {
		t.Errorf("Spent() = %v, want 1", tracker.Spent())
	}
	if tracker.Remaining() != 9 {
		t.Errorf("Remaining() = %v, want 9", tracker.Remaining())
	}
}

func TestPerActionLimit(t *testing.T) {
	tracker := NewTracker(NewConfig(100, 5))

	result := tracker.CheckAndReserve(6)
	if !result.Exceeded() || result.Reason != ReasonPerActionLimit {
		t.Errorf("over-limit action: %v, want Exceeded per-action", result)
	}
	if tracker.Spent() != 0 {
		t.Error("denied action still reserved budget")
	}
}

func TestSessionBudgetExceeded(t *testing.T) {
	tracker := NewTracker(NewConfig(10, 10))
	tracker.Record(8)

	result := tracker.CheckAndReserve(3)
	if !result.Exceeded() || result.Reason != ReasonSessionBudget {
		t.Errorf("over-budget action: %v, want Exceeded session", result)
	}
	if result.Available != 2 {
		t.Errorf("Available = %v, want 2", result.Available)
	}
}

func TestWarnThreshold(t *testing.T) {
	tracker := NewTracker(NewConfig(10, 10))

	result := tracker.CheckAndReserve(8)
	if result.Decision != WarnAndAllow {
		t.Fatalf("cost crossing 80%%: %v, want WarnAndAllow", result)
	}
	if result.PercentUsed != 80 {
		t.Errorf("PercentUsed = %v, want 80", result.PercentUsed)
	}
	if !result.Allowed() {
		t.Error("WarnAndAllow must still allow")
	}
}

func TestCheckDoesNotReserve(t *testing.T) {
	tracker := NewTracker(NewConfig(10, 10))
	if result := tracker.Check(5); !result.Allowed() {
		t.Fatalf("Check(5): %v", result)
	}
	if tracker.Spent() != 0 {
		t.Error("Check reserved budget")
	}
}

func TestConcurrentNoDoubleSpend(t *testing.T) {
	// 100 goroutines each try to reserve $1 against a $50 budget.
	// Exactly 50 must succeed.
	tracker := NewTracker(NewConfig(50, 1))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tracker.CheckAndReserve(1).Allowed() {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if granted != 50 {
		t.Errorf("%d concurrent reservations granted, want exactly 50", granted)
	}
	if tracker.Spent() != 50 {
		t.Errorf("Spent() = %v, want 50", tracker.Spent())
	}
}

func TestRefund(t *testing.T) {
	tracker := NewTracker(NewConfig(10, 10))
	tracker.Record(5)
	tracker.Refund(3)
	if tracker.Spent() != 2 {
		t.Errorf("Spent() after refund = %v, want 2", tracker.Spent())
	}

	// Refund past zero clamps.
	tracker.Refund(100)
	if tracker.Spent() != 0 {
		t.Errorf("Spent() after over-refund = %v, want 0", tracker.Spent())
	}
}

func TestHostileCostsIgnored(t *testing.T) {
	tracker := NewTracker(NewConfig(10, 10))
	tracker.Record(5)

	tracker.Record(-3)
	tracker.Record(math.NaN())
	tracker.Record(math.Inf(1))
	tracker.Refund(-2)
	tracker.Refund(math.NaN())

	if tracker.Spent() != 5 {
		t.Errorf("Spent() after hostile inputs = %v, want 5", tracker.Spent())
	}
}

func TestSnapshotRestore(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tracker := NewTracker(NewConfig(10, 5))
	tracker.Record(4)

	snapshot := tracker.Snapshot(now)
	restored := Restore(snapshot)

	if restored.Spent() != 4 {
		t.Errorf("restored Spent() = %v, want 4", restored.Spent())
	}
	if restored.Config() != tracker.Config() {
		t.Error("restored config differs")
	}
}

func TestRestoreClampsTamperedSnapshot(t *testing.T) {
	for _, spent := range []float64{-50, math.NaN(), math.Inf(-1)} {
		restored := Restore(Snapshot{
			SessionSpentUSD: spent,
			Config:          NewConfig(10, 5),
		})
		if restored.Spent() != 0 {
			t.Errorf("Restore with spent=%v: Spent() = %v, want 0", spent, restored.Spent())
		}
	}
}

func TestWorkspaceTrackerCap(t *testing.T) {
	tracker := NewWorkspaceTracker(20, 80)

	if result := tracker.CheckAndReserve(10); !result.Allowed() {
		t.Fatalf("first reservation: %v", result)
	}
	result := tracker.CheckAndReserve(15)
	if !result.Exceeded() || result.Reason != ReasonWorkspaceBudget {
		t.Errorf("over-cap reservation: %v, want Exceeded workspace", result)
	}
	if result.Available != 10 {
		t.Errorf("Available = %v, want 10", result.Available)
	}
}

func TestWorkspaceTrackerUncapped(t *testing.T) {
	tracker := NewWorkspaceTracker(0, 80)

	for i := 0; i < 10; i++ {
		if result := tracker.CheckAndReserve(1000); !result.Allowed() {
			t.Fatalf("uncapped tracker blocked: %v", result)
		}
	}
	// Spend is still recorded for reporting.
	if tracker.Spent() != 10000 {
		t.Errorf("Spent() = %v, want 10000", tracker.Spent())
	}
}

func TestWorkspaceSnapshotRestore(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tracker := NewWorkspaceTracker(100, 80)
	tracker.Record(30)

	restored := RestoreWorkspace(tracker.Snapshot(now), 100, 80)
	if restored.Spent() != 30 {
		t.Errorf("restored Spent() = %v, want 30", restored.Spent())
	}

	clamped := RestoreWorkspace(WorkspaceSnapshot{TotalSpentUSD: math.Inf(1)}, 100, 80)
	if clamped.Spent() != 0 {
		t.Errorf("restored Spent() from tampered snapshot = %v, want 0", clamped.Spent())
	}
}
