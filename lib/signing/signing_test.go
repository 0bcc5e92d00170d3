// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

package signing

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestKeyPairSignVerify(t *testing.T) {
	pair, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}

	message := []byte("authorize file_write /workspace/main.go")
	signature := pair.Sign(message)

	if !pair.Verify(message, signature) {
		t.Error("valid signature rejected")
	}
	if pair.Verify([]byte("different message"), signature) {
		t.Error("signature accepted for different message")
	}

	tampered := bytes.Clone(signature)
	tampered[0] ^= 0xff
	if pair.Verify(message, tampered) {
		t.Error("tampered signature accepted")
	}
}

func TestKeyPairRoundTrip(t *testing.T) {
	dir := t.TempDir()

	pair, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	if err := pair.Save(dir); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := LoadKeyPair(dir)
	if err != nil {
		t.Fatalf("LoadKeyPair: %v", err)
	}
	if !bytes.Equal(loaded.Public(), pair.Public()) {
		t.Error("loaded public key differs from saved key")
	}
	if loaded.KeyID() != pair.KeyID() {
		t.Errorf("loaded KeyID = %q, want %q", loaded.KeyID(), pair.KeyID())
	}

	message := []byte("cross-process verification")
	if !loaded.Verify(message, pair.Sign(message)) {
		t.Error("loaded keypair rejects signature from original")
	}
}

func TestLoadOrGenerateKeyPair(t *testing.T) {
	dir := t.TempDir()

	first, generated, err := LoadOrGenerateKeyPair(dir)
	if err != nil {
		t.Fatalf("LoadOrGenerateKeyPair (first): %v", err)
	}
	if !generated {
		t.Error("first call did not report generation")
	}

	second, generated, err := LoadOrGenerateKeyPair(dir)
	if err != nil {
		t.Fatalf("LoadOrGenerateKeyPair (second): %v", err)
	}
	if generated {
		t.Error("second call regenerated an existing keypair")
	}
	if !bytes.Equal(first.Public(), second.Public()) {
		t.Error("second call returned a different keypair")
	}
}

func TestLoadKeyPairBadSize(t *testing.T) {
	dir := t.TempDir()
	pair, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	if err := pair.Save(dir); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Truncate the private key file.
	path := filepath.Join(dir, privateKeyFile)
	if err := os.WriteFile(path, []byte("short"), 0600); err != nil {
		t.Fatalf("truncating key file: %v", err)
	}
	if _, err := LoadKeyPair(dir); err == nil {
		t.Error("LoadKeyPair accepted truncated private key")
	}
}

func TestDomainSeparation(t *testing.T) {
	data := []byte("identical input bytes")
	if HashAuditEntry(data) == HashCapabilityToken(data) {
		t.Error("audit and capability domains produced the same hash")
	}
}

func TestHashDeterministic(t *testing.T) {
	data := []byte("some canonical bytes")
	if HashAuditEntry(data) != HashAuditEntry(data) {
		t.Error("HashAuditEntry is not deterministic")
	}
	if HashAuditEntry(data) == HashAuditEntry([]byte("other bytes")) {
		t.Error("different inputs produced the same hash")
	}
}

func TestHashHexRoundTrip(t *testing.T) {
	h := HashAuditEntry([]byte("round trip"))
	parsed, err := ParseHash(h.String())
	if err != nil {
		t.Fatalf("ParseHash: %v", err)
	}
	if parsed != h {
		t.Errorf("ParseHash(%q) = %v, want %v", h.String(), parsed, h)
	}

	if _, err := ParseHash("abc"); err == nil {
		t.Error("ParseHash accepted a short string")
	}
}

func TestZeroHash(t *testing.T) {
	if !ZeroHash.IsZero() {
		t.Error("ZeroHash.IsZero() = false")
	}
	if HashAuditEntry([]byte("x")).IsZero() {
		t.Error("real hash reported as zero")
	}
}
