// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aegis-foundation/aegis/lib/action"
)

func TestFileStorageRoundTrip(t *testing.T) {
	dir := t.TempDir()

	storage, err := OpenFileStorage(dir, FileStorageOptions{})
	if err != nil {
		t.Fatalf("OpenFileStorage: %v", err)
	}
	log, _ := newTestLog(t, storage)

	var lastID string
	for i := 0; i < 4; i++ {
		entry, err := log.Append("session-1",
			action.NetworkRequest{Host: "api.example.com", Port: 443},
			systemAuth(), Success())
		if err != nil {
			t.Fatal(err)
		}
		lastID = entry.ID
	}

	// Reopen from disk: entries, order, and chain all survive.
	reopened, err := OpenFileStorage(dir, FileStorageOptions{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if n, _ := reopened.Count(); n != 4 {
		t.Fatalf("Count after reopen = %d, want 4", n)
	}
	head, err := reopened.ChainHead("session-1")
	if err != nil || head == nil {
		t.Fatalf("ChainHead after reopen: %v, %v", head, err)
	}
	if head.ID != lastID {
		t.Errorf("chain head = %s, want %s", head.ID, lastID)
	}

	report, err := VerifyChain(reopened, "session-1")
	if err != nil {
		t.Fatalf("VerifyChain: %v", err)
	}
	if !report.Valid {
		t.Errorf("reloaded chain invalid: %v", report.Issues)
	}
}

func TestFileStorageRejectsUnsafeSessionID(t *testing.T) {
	storage, err := OpenFileStorage(t.TempDir(), FileStorageOptions{})
	if err != nil {
		t.Fatal(err)
	}
	log, _ := newTestLog(t, storage)

	for _, sessionID := range []string{"", "../evil", "a/b", "a.b"} {
		if _, err := log.Append(sessionID,
			action.FileRead{Path: "/data"}, systemAuth(), Success()); err == nil {
			t.Errorf("Append with session ID %q succeeded, want error", sessionID)
		}
	}
}

func TestRecordCompressionRoundTrip(t *testing.T) {
	log, _ := newTestLog(t, NewMemoryStorage())

	// A large repetitive detail compresses well, exercising the zstd
	// path; a short entry stays raw.
	big, err := log.Append("session-1",
		action.FileRead{Path: "/data"}, systemAuth(),
		SuccessWith(strings.Repeat("allowed by capability 3f2a; ", 200)))
	if err != nil {
		t.Fatal(err)
	}

	record, err := encodeRecord(big)
	if err != nil {
		t.Fatalf("encodeRecord: %v", err)
	}
	if tag := CompressionTag(record[0]); tag != CompressionZstd {
		t.Errorf("compressible record tag = %v, want zstd", tag)
	}

	decoded, err := readRecord(bufio.NewReader(bytes.NewReader(record)))
	if err != nil {
		t.Fatalf("readRecord: %v", err)
	}
	if decoded.ID != big.ID || decoded.Outcome.Detail != big.Outcome.Detail {
		t.Error("record did not round-trip")
	}
	if err := decoded.VerifySignature(); err != nil {
		t.Errorf("decoded entry signature: %v", err)
	}
}

func TestTruncatedFileKeepsPrefix(t *testing.T) {
	dir := t.TempDir()
	storage, err := OpenFileStorage(dir, FileStorageOptions{})
	if err != nil {
		t.Fatal(err)
	}
	log, _ := newTestLog(t, storage)

	for i := 0; i < 3; i++ {
		if _, err := log.Append("session-1",
			action.FileRead{Path: "/data"}, systemAuth(), Success()); err != nil {
			t.Fatal(err)
		}
	}

	// Chop bytes off the end, simulating a torn write.
	path := filepath.Join(dir, "session-1.audit")
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Truncate(path, info.Size()-7); err != nil {
		t.Fatal(err)
	}

	reopened, err := OpenFileStorage(dir, FileStorageOptions{})
	if err != nil {
		t.Fatalf("reopen after truncation: %v", err)
	}
	n, _ := reopened.CountSession("session-1")
	if n != 2 {
		t.Fatalf("CountSession after truncation = %d, want 2", n)
	}
	// The surviving prefix is still a valid chain.
	report, err := VerifyChain(reopened, "session-1")
	if err != nil {
		t.Fatal(err)
	}
	if !report.Valid {
		t.Errorf("surviving prefix invalid: %v", report.Issues)
	}
}
