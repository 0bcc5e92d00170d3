// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

package allowance

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/aegis-foundation/aegis/lib/action"
	"github.com/aegis-foundation/aegis/lib/signing"
)

var testTime = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func testKey(t *testing.T) *signing.KeyPair {
	t.Helper()
	pair, err := signing.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	return pair
}

func newTest(t *testing.T, key *signing.KeyPair, spec Spec) *Allowance {
	t.Helper()
	a, err := NewAt(key, spec, testTime)
	if err != nil {
		t.Fatalf("NewAt: %v", err)
	}
	return a
}

func TestSignatureRoundTrip(t *testing.T) {
	key := testKey(t)
	a := newTest(t, key, Spec{
		Pattern:     CommandPattern{Command: "git"},
		SessionOnly: true,
		TTL:         time.Hour,
		MaxUses:     3,
	})

	if err := a.VerifySignature(key); err != nil {
		t.Errorf("fresh allowance failed verification: %v", err)
	}

	// Widening the pattern after signing must break the signature.
	a.Pattern = CommandPattern{Command: "*"}
	if err := a.VerifySignature(key); err == nil {
		t.Error("tampered allowance verified")
	}
}

func TestConsumingDoesNotBreakSignature(t *testing.T) {
	key := testKey(t)
	store := NewStore(key)
	a := newTest(t, key, Spec{
		Pattern:     CommandPattern{Command: "git"},
		SessionOnly: true,
		MaxUses:     5,
	})
	if err := store.Add(a); err != nil {
		t.Fatalf("Add: %v", err)
	}

	store.FindAndConsumeAt(action.CommandExec{Command: "git"}, "", testTime)

	remaining := store.Get(a.ID)
	if remaining == nil {
		t.Fatal("allowance vanished after one use")
	}
	if err := remaining.VerifySignature(key); err != nil {
		t.Errorf("allowance signature broken by consumption: %v", err)
	}
}

func TestStoreRejectsBadSignature(t *testing.T) {
	key := testKey(t)
	otherKey := testKey(t)
	store := NewStore(otherKey)

	a := newTest(t, key, Spec{
		Pattern:     CommandPattern{Command: "git"},
		SessionOnly: true,
	})
	if err := store.Add(a); err == nil {
		t.Error("store accepted an allowance signed by a different key")
	}
}

func TestFindAndConsumeSessionFirst(t *testing.T) {
	key := testKey(t)
	store := NewStore(key)

	workspaceScoped := newTest(t, key, Spec{
		Pattern:       CommandPattern{Command: "git"},
		WorkspaceRoot: "/project",
		MaxUses:       1,
	})
	sessionScoped := newTest(t, key, Spec{
		Pattern:     CommandPattern{Command: "git"},
		SessionOnly: true,
	})
	for _, a := range []*Allowance{workspaceScoped, sessionScoped} {
		if err := store.Add(a); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	found := store.FindAndConsumeAt(action.CommandExec{Command: "git"}, "/project", testTime)
	if found == nil {
		t.Fatal("FindAndConsumeAt found nothing")
	}
	if found.ID != sessionScoped.ID {
		t.Errorf("matched workspace allowance %s before the session one", found.ID)
	}

	// The workspace allowance's single use must not have been spent.
	if remaining := store.Get(workspaceScoped.ID); remaining == nil || remaining.UsesRemaining != 1 {
		t.Error("workspace allowance consumed while a session allowance matched")
	}
}

func TestBoundedUsesExact(t *testing.T) {
	key := testKey(t)
	store := NewStore(key)

	const uses = 5
	a := newTest(t, key, Spec{
		Pattern:     CommandPattern{Command: "git"},
		SessionOnly: true,
		MaxUses:     uses,
	})
	if err := store.Add(a); err != nil {
		t.Fatalf("Add: %v", err)
	}

	exec := action.CommandExec{Command: "git"}
	for i := 0; i < uses; i++ {
		if store.FindAndConsumeAt(exec, "", testTime) == nil {
			t.Fatalf("use %d failed before the limit", i+1)
		}
	}
	if store.FindAndConsumeAt(exec, "", testTime) != nil {
		t.Error("allowance matched past its use limit")
	}
	if store.Get(a.ID) != nil {
		t.Error("exhausted allowance not removed")
	}
}

func TestBoundedUsesConcurrent(t *testing.T) {
	key := testKey(t)
	store := NewStore(key)

	const uses = 8
	a := newTest(t, key, Spec{
		Pattern:     CommandPattern{Command: "git"},
		SessionOnly: true,
		MaxUses:     uses,
	})
	if err := store.Add(a); err != nil {
		t.Fatalf("Add: %v", err)
	}

	const callers = 32
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if store.FindAndConsumeAt(action.CommandExec{Command: "git"}, "", testTime) != nil {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if granted != uses {
		t.Errorf("%d concurrent grants, want exactly %d", granted, uses)
	}
}

func TestLazyExpiry(t *testing.T) {
	key := testKey(t)
	store := NewStore(key)

	a := newTest(t, key, Spec{
		Pattern:     CommandPattern{Command: "git"},
		SessionOnly: true,
		TTL:         time.Minute,
	})
	if err := store.Add(a); err != nil {
		t.Fatalf("Add: %v", err)
	}

	later := testTime.Add(time.Hour)
	if store.FindAndConsumeAt(action.CommandExec{Command: "git"}, "", later) != nil {
		t.Error("expired allowance matched")
	}
	// The lookup dropped it.
	if store.Count() != 0 {
		t.Error("expired allowance not lazily removed")
	}
}

func TestWorkspaceIsolation(t *testing.T) {
	key := testKey(t)
	store := NewStore(key)

	a := newTest(t, key, Spec{
		Pattern:       CommandPattern{Command: "make"},
		WorkspaceRoot: "/project-a",
	})
	if err := store.Add(a); err != nil {
		t.Fatalf("Add: %v", err)
	}

	exec := action.CommandExec{Command: "make"}
	if store.FindAndConsumeAt(exec, "/project-b", testTime) != nil {
		t.Error("allowance from /project-a matched in /project-b")
	}
	if store.FindAndConsumeAt(exec, "/project-a", testTime) == nil {
		t.Error("allowance did not match in its own workspace")
	}
}

func TestClearSession(t *testing.T) {
	key := testKey(t)
	store := NewStore(key)

	session := newTest(t, key, Spec{
		Pattern:     CommandPattern{Command: "git"},
		SessionOnly: true,
	})
	workspace := newTest(t, key, Spec{
		Pattern:       CommandPattern{Command: "make"},
		WorkspaceRoot: "/project",
	})
	for _, a := range []*Allowance{session, workspace} {
		if err := store.Add(a); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	store.ClearSession()

	if store.FindAndConsumeAt(action.CommandExec{Command: "git"}, "/project", testTime) != nil {
		t.Error("session allowance survived ClearSession")
	}
	if store.FindAndConsumeAt(action.CommandExec{Command: "make"}, "/project", testTime) == nil {
		t.Error("workspace allowance dropped by ClearSession")
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	key := testKey(t)
	store := NewStore(key)

	session := newTest(t, key, Spec{
		Pattern:     ExactTool{Server: "github", Tool: "create_issue"},
		SessionOnly: true,
		MaxUses:     2,
	})
	workspace := newTest(t, key, Spec{
		Pattern:       FilePattern{Pattern: "/project/**", Permission: action.PermissionRead},
		WorkspaceRoot: "/project",
		TTL:           24 * time.Hour,
	})
	for _, a := range []*Allowance{session, workspace} {
		if err := store.Add(a); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	exportedSession := store.ExportSession(testTime)
	exportedWorkspace := store.ExportWorkspace(testTime)
	if len(exportedSession) != 1 || len(exportedWorkspace) != 1 {
		t.Fatalf("export sizes = %d session, %d workspace, want 1 and 1",
			len(exportedSession), len(exportedWorkspace))
	}

	// Round trip through JSON, as the persistence layer would.
	data, err := json.Marshal(exportedSession[0])
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var restored Allowance
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	fresh := NewStore(key)
	if err := fresh.Import([]*Allowance{&restored}, testTime); err != nil {
		t.Fatalf("Import: %v", err)
	}
	found := fresh.FindAndConsumeAt(action.ToolCall{Server: "github", Tool: "create_issue"}, "", testTime)
	if found == nil {
		t.Fatal("imported allowance did not match")
	}
	if found.MaxUses != 2 {
		t.Errorf("imported MaxUses = %d, want 2", found.MaxUses)
	}
}

func TestImportSkipsExpired(t *testing.T) {
	key := testKey(t)
	expired := newTest(t, key, Spec{
		Pattern:     CommandPattern{Command: "git"},
		SessionOnly: true,
		TTL:         time.Minute,
	})

	store := NewStore(key)
	if err := store.Import([]*Allowance{expired}, testTime.Add(time.Hour)); err != nil {
		t.Fatalf("Import: %v", err)
	}
	if store.Count() != 0 {
		t.Error("expired allowance imported")
	}
}
