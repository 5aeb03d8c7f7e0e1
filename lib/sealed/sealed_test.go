// Copyright 2026 The Tagmesh Authors
// SPDX-License-Identifier: Apache-2.0

package sealed_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"filippo.io/age"

	"github.com/tagmesh/tagmesh/lib/sealed"
)

func TestSealUnsealRoundTrip(t *testing.T) {
	keypair, err := sealed.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}

	document := []byte(`{ "core:title": "Q3 Report" }` + "\n")
	ciphertext, err := sealed.Seal(document, []string{keypair.PublicKey})
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if !sealed.IsSealed(ciphertext) {
		t.Error("IsSealed = false for sealed output")
	}
	if sealed.IsSealed(document) {
		t.Error("IsSealed = true for plain document")
	}

	identity, err := age.ParseX25519Identity(keypair.PrivateKey)
	if err != nil {
		t.Fatalf("ParseX25519Identity: %v", err)
	}
	plaintext, err := sealed.Unseal(ciphertext, []age.Identity{identity})
	if err != nil {
		t.Fatalf("Unseal: %v", err)
	}
	if !bytes.Equal(plaintext, document) {
		t.Errorf("round trip = %q, want %q", plaintext, document)
	}
}

func TestSealMultipleRecipients(t *testing.T) {
	first, err := sealed.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	second, err := sealed.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}

	document := []byte("shared export")
	ciphertext, err := sealed.Seal(document, []string{first.PublicKey, second.PublicKey})
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	// Either recipient alone can unseal.
	for _, keypair := range []sealed.Keypair{first, second} {
		identity, err := age.ParseX25519Identity(keypair.PrivateKey)
		if err != nil {
			t.Fatalf("ParseX25519Identity: %v", err)
		}
		plaintext, err := sealed.Unseal(ciphertext, []age.Identity{identity})
		if err != nil {
			t.Fatalf("Unseal with %s: %v", keypair.PublicKey, err)
		}
		if !bytes.Equal(plaintext, document) {
			t.Errorf("plaintext = %q, want %q", plaintext, document)
		}
	}
}

func TestUnsealWrongIdentity(t *testing.T) {
	owner, err := sealed.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	stranger, err := sealed.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}

	ciphertext, err := sealed.Seal([]byte("private"), []string{owner.PublicKey})
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	identity, err := age.ParseX25519Identity(stranger.PrivateKey)
	if err != nil {
		t.Fatalf("ParseX25519Identity: %v", err)
	}
	if _, err := sealed.Unseal(ciphertext, []age.Identity{identity}); err == nil {
		t.Error("Unseal with wrong identity succeeded, want error")
	}
}

func TestSealRejectsInvalidRecipient(t *testing.T) {
	if _, err := sealed.Seal([]byte("x"), []string{"not-an-age-key"}); err == nil {
		t.Error("Seal with invalid recipient succeeded, want error")
	}
	if _, err := sealed.Seal([]byte("x"), nil); err == nil {
		t.Error("Seal with no recipients succeeded, want error")
	}
}

func TestLoadIdentities(t *testing.T) {
	keypair, err := sealed.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}

	path := filepath.Join(t.TempDir(), "identity.txt")
	content := "# created for test\n" + keypair.PrivateKey + "\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	identities, err := sealed.LoadIdentities(path)
	if err != nil {
		t.Fatalf("LoadIdentities: %v", err)
	}
	if len(identities) != 1 {
		t.Fatalf("len(identities) = %d, want 1", len(identities))
	}

	ciphertext, err := sealed.Seal([]byte("doc"), []string{keypair.PublicKey})
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	plaintext, err := sealed.Unseal(ciphertext, identities)
	if err != nil {
		t.Fatalf("Unseal: %v", err)
	}
	if string(plaintext) != "doc" {
		t.Errorf("plaintext = %q, want %q", plaintext, "doc")
	}
}
