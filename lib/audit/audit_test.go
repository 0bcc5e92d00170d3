// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"fmt"
	"testing"
	"time"

	"github.com/aegis-foundation/aegis/lib/action"
	"github.com/aegis-foundation/aegis/lib/clock"
	"github.com/aegis-foundation/aegis/lib/signing"
)

func newTestLog(t *testing.T, storage Storage) (*Log, *clock.FakeClock) {
	t.Helper()
	key, err := signing.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	clk := clock.Fake(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	return NewLog(storage, key, Options{Clock: clk}), clk
}

func systemAuth() Authorization {
	return Authorization{Type: "system", Reason: "test"}
}

func TestAppendAndRetrieve(t *testing.T) {
	log, _ := newTestLog(t, NewMemoryStorage())

	entry, err := log.Append("session-1",
		action.FileDelete{Path: "/tmp/scratch"}, systemAuth(), Success())
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := log.Get(entry.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ActionType != action.TypeFileDelete {
		t.Errorf("ActionType = %q, want %q", got.ActionType, action.TypeFileDelete)
	}
	if got.Summary != "Delete file: /tmp/scratch" {
		t.Errorf("Summary = %q", got.Summary)
	}
	if !got.PreviousHash.IsZero() {
		t.Error("genesis entry must carry the zero hash")
	}
	if err := got.VerifySignature(); err != nil {
		t.Errorf("VerifySignature: %v", err)
	}

	// The stored action envelope round-trips.
	decoded, err := action.Decode(got.Action)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.(action.FileDelete).Path != "/tmp/scratch" {
		t.Errorf("decoded action = %+v", decoded)
	}
}

func TestChainVerification(t *testing.T) {
	log, clk := newTestLog(t, NewMemoryStorage())

	for i := 0; i < 5; i++ {
		_, err := log.Append("session-1",
			action.ToolCall{Server: "test", Tool: fmt.Sprintf("tool_%d", i)},
			systemAuth(), Success())
		if err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
		clk.Advance(time.Second)
	}

	report, err := log.VerifyChain("session-1")
	if err != nil {
		t.Fatalf("VerifyChain: %v", err)
	}
	if !report.Valid {
		t.Errorf("chain invalid: %v", report.Issues)
	}
	if report.EntriesVerified != 5 {
		t.Errorf("EntriesVerified = %d, want 5", report.EntriesVerified)
	}
}

func TestVerifyEmptySession(t *testing.T) {
	storage := NewMemoryStorage()
	report, err := VerifyChain(storage, "no-such-session")
	if err != nil {
		t.Fatalf("VerifyChain: %v", err)
	}
	if !report.Valid || report.EntriesVerified != 0 {
		t.Errorf("empty session: %+v", report)
	}
}

func TestTamperDetection(t *testing.T) {
	storage := NewMemoryStorage()
	log, _ := newTestLog(t, storage)

	var middle *Entry
	for i := 0; i < 3; i++ {
		entry, err := log.Append("session-1",
			action.FileRead{Path: fmt.Sprintf("/data/%d", i)}, systemAuth(), Success())
		if err != nil {
			t.Fatal(err)
		}
		if i == 1 {
			middle = entry
		}
	}

	// Flip the recorded outcome of the middle entry after signing.
	middle.Outcome.Success = false

	report, err := log.VerifyChain("session-1")
	if err != nil {
		t.Fatalf("VerifyChain: %v", err)
	}
	if report.Valid {
		t.Fatal("tampered chain reported valid")
	}

	var sawSignature, sawLink bool
	for _, issue := range report.Issues {
		switch issue.Kind {
		case IssueInvalidSignature:
			sawSignature = issue.EntryID == middle.ID
		case IssueBrokenLink:
			sawLink = true
		}
	}
	if !sawSignature {
		t.Errorf("no invalid-signature issue for tampered entry: %v", report.Issues)
	}
	// The tampered entry's content hash changed, so its successor no
	// longer links to it.
	if !sawLink {
		t.Errorf("no broken-link issue after tampering: %v", report.Issues)
	}
}

func TestSessionsChainIndependently(t *testing.T) {
	storage := NewMemoryStorage()
	log, _ := newTestLog(t, storage)

	for _, session := range []string{"session-a", "session-b"} {
		for i := 0; i < 2; i++ {
			if _, err := log.Append(session,
				action.CommandExec{Command: "ls"}, systemAuth(), Success()); err != nil {
				t.Fatal(err)
			}
		}
	}

	for _, session := range []string{"session-a", "session-b"} {
		entries, err := log.SessionEntries(session)
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) != 2 {
			t.Fatalf("%s has %d entries, want 2", session, len(entries))
		}
		if !entries[0].PreviousHash.IsZero() {
			t.Errorf("%s genesis does not carry the zero hash", session)
		}
	}

	reports, err := log.VerifyAll()
	if err != nil {
		t.Fatalf("VerifyAll: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("VerifyAll returned %d reports, want 2", len(reports))
	}
	for _, report := range reports {
		if !report.Report.Valid {
			t.Errorf("session %s invalid: %v", report.SessionID, report.Report.Issues)
		}
	}
}

func TestCounts(t *testing.T) {
	log, _ := newTestLog(t, NewMemoryStorage())

	for i := 0; i < 3; i++ {
		if _, err := log.Append("session-1",
			action.FileRead{Path: "/data"}, systemAuth(), Success()); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := log.Append("session-2",
		action.FileRead{Path: "/data"}, systemAuth(), Failure("denied")); err != nil {
		t.Fatal(err)
	}

	if n, _ := log.Count(); n != 4 {
		t.Errorf("Count() = %d, want 4", n)
	}
	if n, _ := log.CountSession("session-1"); n != 3 {
		t.Errorf("CountSession(session-1) = %d, want 3", n)
	}
	sessions, _ := log.ListSessions()
	if len(sessions) != 2 {
		t.Errorf("ListSessions() = %v, want 2 sessions", sessions)
	}
}

func TestOutcomeConstructors(t *testing.T) {
	if o := SuccessWith("detail"); !o.Success || o.Detail != "detail" {
		t.Errorf("SuccessWith = %+v", o)
	}
	if o := Failure("boom"); o.Success || o.Error != "boom" {
		t.Errorf("Failure = %+v", o)
	}
}
