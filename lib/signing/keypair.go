// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

package signing

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

const (
	privateKeyFile = "aegis-signing-key"
	publicKeyFile  = "aegis-signing-key.pub"
)

// KeyPair is an Ed25519 keypair used to sign audit entries and
// capability tokens. The zero value is not usable; construct one with
// [GenerateKeyPair], [LoadKeyPair], or [LoadOrGenerateKeyPair].
type KeyPair struct {
	public  ed25519.PublicKey
	private ed25519.PrivateKey
}

// GenerateKeyPair creates a new Ed25519 keypair.
func GenerateKeyPair() (*KeyPair, error) {
	public, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating Ed25519 keypair: %w", err)
	}
	return &KeyPair{public: public, private: private}, nil
}

// Save writes the keypair to the state directory. The private key
// file has 0600 permissions; the public key file has 0644.
func (k *KeyPair) Save(stateDir string) error {
	privatePath := filepath.Join(stateDir, privateKeyFile)
	if err := os.WriteFile(privatePath, k.private, 0600); err != nil {
		return fmt.Errorf("writing private key: %w", err)
	}

	publicPath := filepath.Join(stateDir, publicKeyFile)
	if err := os.WriteFile(publicPath, k.public, 0644); err != nil {
		return fmt.Errorf("writing public key: %w", err)
	}

	return nil
}

// LoadKeyPair loads an Ed25519 keypair from the state directory.
// Returns an error if either file is missing or has an unexpected
// size.
func LoadKeyPair(stateDir string) (*KeyPair, error) {
	privatePath := filepath.Join(stateDir, privateKeyFile)
	privateBytes, err := os.ReadFile(privatePath)
	if err != nil {
		return nil, fmt.Errorf("reading private key: %w", err)
	}
	if len(privateBytes) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("private key has %d bytes, want %d", len(privateBytes), ed25519.PrivateKeySize)
	}

	publicPath := filepath.Join(stateDir, publicKeyFile)
	publicBytes, err := os.ReadFile(publicPath)
	if err != nil {
		return nil, fmt.Errorf("reading public key: %w", err)
	}
	if len(publicBytes) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public key has %d bytes, want %d", len(publicBytes), ed25519.PublicKeySize)
	}

	return &KeyPair{
		public:  ed25519.PublicKey(publicBytes),
		private: ed25519.PrivateKey(privateBytes),
	}, nil
}

// LoadOrGenerateKeyPair loads an existing keypair from stateDir, or
// generates and saves a new one if the files don't exist. Returns the
// keypair and whether it was newly generated.
func LoadOrGenerateKeyPair(stateDir string) (*KeyPair, bool, error) {
	pair, err := LoadKeyPair(stateDir)
	if err == nil {
		return pair, false, nil
	}

	// Check if the error is due to missing files (expected on first boot)
	// vs corruption or permissions (unexpected).
	privatePath := filepath.Join(stateDir, privateKeyFile)
	if _, statErr := os.Stat(privatePath); statErr == nil {
		// File exists but couldn't be loaded — corruption or bad size.
		return nil, false, err
	}

	pair, err = GenerateKeyPair()
	if err != nil {
		return nil, false, err
	}

	if err := pair.Save(stateDir); err != nil {
		return nil, false, err
	}

	return pair, true, nil
}

// Public returns the verifying key.
func (k *KeyPair) Public() ed25519.PublicKey { return k.public }

// KeyID returns the hex encoding of the first 8 bytes of the public
// key. Key IDs identify which key signed an audit entry or token;
// they are locators, not security boundaries — verification always
// checks the full signature against the full public key.
func (k *KeyPair) KeyID() string {
	return hex.EncodeToString(k.public[:8])
}

// Sign signs the message with the private key.
func (k *KeyPair) Sign(message []byte) []byte {
	return ed25519.Sign(k.private, message)
}

// Verify reports whether signature is a valid signature of message by
// this keypair's public key.
func (k *KeyPair) Verify(message, signature []byte) bool {
	return ed25519.Verify(k.public, message, signature)
}
