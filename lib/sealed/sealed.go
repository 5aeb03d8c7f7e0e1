// Copyright 2026 The Tagmesh Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"filippo.io/age"
)

// ageIntro is the first line of the binary age v1 format. Sealed
// documents are detected by this prefix.
const ageIntro = "age-encryption.org/v1"

// Keypair is an age x25519 keypair. The private key grants access to
// every document sealed to the public key; treat it like any other
// key file (mode 0600, never logged).
type Keypair struct {
	// PublicKey is the recipient string in age1... format. Safe to
	// publish.
	PublicKey string

	// PrivateKey is the identity string in AGE-SECRET-KEY-1...
	// format.
	PrivateKey string
}

// GenerateKeypair generates a new age x25519 keypair.
func GenerateKeypair() (Keypair, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return Keypair{}, fmt.Errorf("sealed: generating keypair: %w", err)
	}
	return Keypair{
		PublicKey:  identity.Recipient().String(),
		PrivateKey: identity.String(),
	}, nil
}

// Seal encrypts a document to one or more recipients given as age
// public key strings (age1... format). At least one recipient is
// required. The result is the binary age v1 format.
func Seal(plaintext []byte, recipientKeys []string) ([]byte, error) {
	if len(recipientKeys) == 0 {
		return nil, fmt.Errorf("sealed: at least one recipient is required")
	}
	recipients := make([]age.Recipient, 0, len(recipientKeys))
	for _, key := range recipientKeys {
		recipient, err := age.ParseX25519Recipient(key)
		if err != nil {
			return nil, fmt.Errorf("sealed: parsing recipient key %q: %w", key, err)
		}
		recipients = append(recipients, recipient)
	}

	var ciphertext bytes.Buffer
	writer, err := age.Encrypt(&ciphertext, recipients...)
	if err != nil {
		return nil, fmt.Errorf("sealed: creating age encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return nil, fmt.Errorf("sealed: writing plaintext: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("sealed: finalizing encryption: %w", err)
	}
	return ciphertext.Bytes(), nil
}

// Unseal decrypts a sealed document with the given identities. Any
// one matching identity suffices.
func Unseal(ciphertext []byte, identities []age.Identity) ([]byte, error) {
	if len(identities) == 0 {
		return nil, fmt.Errorf("sealed: at least one identity is required")
	}
	reader, err := age.Decrypt(bytes.NewReader(ciphertext), identities...)
	if err != nil {
		return nil, fmt.Errorf("sealed: decrypting: %w", err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("sealed: reading plaintext: %w", err)
	}
	return plaintext, nil
}

// IsSealed reports whether data looks like a sealed document (binary
// age v1 format).
func IsSealed(data []byte) bool {
	return bytes.HasPrefix(data, []byte(ageIntro))
}

// LoadIdentities reads age identities from a key file: one
// AGE-SECRET-KEY-1... line per identity, comments and blank lines
// permitted (the format written by age-keygen).
func LoadIdentities(path string) ([]age.Identity, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sealed: opening identity file: %w", err)
	}
	defer file.Close()

	identities, err := age.ParseIdentities(file)
	if err != nil {
		return nil, fmt.Errorf("sealed: parsing identity file %s: %w", path, err)
	}
	return identities, nil
}
