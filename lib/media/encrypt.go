// Copyright 2026 The Tagmesh Authors
// SPDX-License-Identifier: Apache-2.0

package media

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// KeySize is the size in bytes of the store master key and every
// derived per-blob key.
const KeySize = 32

// hkdfInfoBlob is the HKDF-SHA256 info string for per-blob key
// derivation. Changing it invalidates every encrypted blob.
var hkdfInfoBlob = []byte("tagmesh.media.blob.v1")

// deriveBlobKey derives the encryption key for one blob from the
// store master key and the blob's content ref. The same content under
// the same master key always derives the same key, so deduplicated
// blobs stay deduplicated.
func deriveBlobKey(masterKey []byte, ref ContentRef) ([]byte, error) {
	info := make([]byte, len(hkdfInfoBlob)+RefSize)
	copy(info, hkdfInfoBlob)
	copy(info[len(hkdfInfoBlob):], ref[:])

	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, masterKey, nil, info), key); err != nil {
		return nil, fmt.Errorf("media: deriving blob key: %w", err)
	}
	return key, nil
}

// encryptBlob encrypts a blob body with XChaCha20-Poly1305:
//
//	[nonce: 24 bytes (random)] [ciphertext+tag: N+16 bytes]
//
// The additional authenticated data binds the ciphertext to the blob
// header, so tampering with the stored format byte or compression tag
// fails authentication rather than decoding garbage.
func encryptBlob(key, plaintext, additionalData []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("media: creating cipher: %w", err)
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("media: generating nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, additionalData), nil
}

// decryptBlob reverses encryptBlob. Authentication failure means the
// blob was tampered with or the master key is wrong.
func decryptBlob(key, blob, additionalData []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("media: creating cipher: %w", err)
	}
	if len(blob) < chacha20poly1305.NonceSizeX+chacha20poly1305.Overhead {
		return nil, fmt.Errorf("media: encrypted blob too short (%d bytes)", len(blob))
	}
	nonce, ciphertext := blob[:chacha20poly1305.NonceSizeX], blob[chacha20poly1305.NonceSizeX:]
	plaintext, err := aead.Open(nil, nonce, ciphertext, additionalData)
	if err != nil {
		return nil, fmt.Errorf("media: decrypting blob: %w", err)
	}
	return plaintext, nil
}
