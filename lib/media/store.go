// Copyright 2026 The Tagmesh Authors
// SPDX-License-Identifier: Apache-2.0

package media

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// Store is the content-storage collaborator the tag core consumes.
// The core only ever holds ContentRefs; a Store turns bytes into refs
// and refs back into bytes.
type Store interface {
	// Put stores the content read from r and returns its ref and
	// size. Storing the same content twice is a cheap no-op (content
	// addressing deduplicates).
	Put(ctx context.Context, r io.Reader) (ContentRef, int64, error)

	// Open returns a reader for previously stored content.
	// ErrNotFound when the ref is unknown.
	Open(ctx context.Context, ref ContentRef) (io.ReadCloser, error)
}

// ErrNotFound reports that a ref has no stored content.
var ErrNotFound = errors.New("media: content not found")

// Blob format bytes. The format byte leads every stored blob and is
// authenticated as AAD for encrypted blobs.
const (
	blobFormatPlain     byte = 0x01
	blobFormatEncrypted byte = 0x02
)

// DirStoreConfig holds the parameters for opening a DirStore.
type DirStoreConfig struct {
	// Dir is the root directory. Created if absent.
	Dir string

	// Compression is applied to stored blobs. Blobs that do not
	// shrink are stored uncompressed regardless. Default
	// CompressionNone.
	Compression Compression

	// MasterKey enables encryption at rest: every blob is sealed
	// with XChaCha20-Poly1305 under a key derived from MasterKey and
	// the blob's ref. Must be exactly KeySize bytes when set; nil
	// stores plaintext.
	MasterKey []byte

	// Logger receives operational messages. Nil discards.
	Logger *slog.Logger
}

// DirStore is a content-addressed directory store: each blob lives at
// <dir>/<first two hex chars>/<full hex ref>. Writes go through a
// temp file and rename, so a crashed Put never leaves a partial blob
// under its final name.
type DirStore struct {
	dir         string
	compression Compression
	masterKey   []byte
	logger      *slog.Logger
}

var _ Store = (*DirStore)(nil)

// NewDirStore opens (creating if needed) a directory store.
func NewDirStore(cfg DirStoreConfig) (*DirStore, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("media: Dir is required")
	}
	if cfg.MasterKey != nil && len(cfg.MasterKey) != KeySize {
		return nil, fmt.Errorf("media: master key has %d bytes, want %d", len(cfg.MasterKey), KeySize)
	}
	if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("media: creating store directory: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &DirStore{
		dir:         cfg.Dir,
		compression: cfg.Compression,
		masterKey:   cfg.MasterKey,
		logger:      logger,
	}, nil
}

// Put stores content. The whole blob is buffered in memory: content
// must be hashed before its storage path is known.
func (s *DirStore) Put(ctx context.Context, r io.Reader) (ContentRef, int64, error) {
	if err := ctx.Err(); err != nil {
		return ContentRef{}, 0, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return ContentRef{}, 0, fmt.Errorf("media: reading content: %w", err)
	}
	ref := HashContent(data)
	rawSize := int64(len(data))

	path := s.blobPath(ref)
	if _, err := os.Stat(path); err == nil {
		return ref, rawSize, nil
	}

	blob, err := s.encodeBlob(ref, data)
	if err != nil {
		return ContentRef{}, 0, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return ContentRef{}, 0, fmt.Errorf("media: creating fan-out directory: %w", err)
	}
	temp, err := os.CreateTemp(filepath.Dir(path), ".put-*")
	if err != nil {
		return ContentRef{}, 0, fmt.Errorf("media: creating temp file: %w", err)
	}
	tempName := temp.Name()
	if _, err := temp.Write(blob); err != nil {
		temp.Close()
		os.Remove(tempName)
		return ContentRef{}, 0, fmt.Errorf("media: writing blob: %w", err)
	}
	if err := temp.Close(); err != nil {
		os.Remove(tempName)
		return ContentRef{}, 0, fmt.Errorf("media: closing blob: %w", err)
	}
	if err := os.Rename(tempName, path); err != nil {
		os.Remove(tempName)
		return ContentRef{}, 0, fmt.Errorf("media: renaming blob into place: %w", err)
	}

	s.logger.Debug("stored content",
		"ref", ref.String(),
		"raw_size", rawSize,
		"stored_size", len(blob),
	)
	return ref, rawSize, nil
}

// Open retrieves content by ref. The returned reader serves from
// memory; Close is a no-op.
func (s *DirStore) Open(ctx context.Context, ref ContentRef) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ref.IsZero() {
		return nil, fmt.Errorf("media: zero ref: %w", ErrNotFound)
	}
	blob, err := os.ReadFile(s.blobPath(ref))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("media: %s: %w", ref, ErrNotFound)
		}
		return nil, fmt.Errorf("media: reading blob: %w", err)
	}
	data, err := s.decodeBlob(ref, blob)
	if err != nil {
		return nil, err
	}
	// Content addressing makes integrity checking free: the ref is
	// the hash, so recompute and compare.
	if got := HashContent(data); got != ref {
		return nil, fmt.Errorf("media: blob %s failed integrity check (hash %s)", ref, got)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// encodeBlob builds the stored form:
//
//	[format: 1 byte] [compression: 1 byte] [raw size: uvarint] [body]
//
// For encrypted blobs the body is nonce+ciphertext of the compressed
// bytes, with the header as AAD.
func (s *DirStore) encodeBlob(ref ContentRef, data []byte) ([]byte, error) {
	compression := s.compression
	compressed, err := compress(data, compression)
	if errors.Is(err, errIncompressible) {
		compression = CompressionNone
		compressed = data
	} else if err != nil {
		return nil, err
	}

	format := blobFormatPlain
	if s.masterKey != nil {
		format = blobFormatEncrypted
	}
	header := make([]byte, 2, 2+binary.MaxVarintLen64)
	header[0] = format
	header[1] = byte(compression)
	header = binary.AppendUvarint(header, uint64(len(data)))

	body := compressed
	if s.masterKey != nil {
		key, err := deriveBlobKey(s.masterKey, ref)
		if err != nil {
			return nil, err
		}
		body, err = encryptBlob(key, compressed, header)
		if err != nil {
			return nil, err
		}
	}
	return append(header, body...), nil
}

// decodeBlob reverses encodeBlob.
func (s *DirStore) decodeBlob(ref ContentRef, blob []byte) ([]byte, error) {
	if len(blob) < 3 {
		return nil, fmt.Errorf("media: blob %s too short (%d bytes)", ref, len(blob))
	}
	format := blob[0]
	compression := Compression(blob[1])
	rawSize, varintLen := binary.Uvarint(blob[2:])
	if varintLen <= 0 {
		return nil, fmt.Errorf("media: blob %s has malformed size header", ref)
	}
	header := blob[:2+varintLen]
	body := blob[2+varintLen:]

	switch format {
	case blobFormatPlain:
	case blobFormatEncrypted:
		if s.masterKey == nil {
			return nil, fmt.Errorf("media: blob %s is encrypted and no master key is configured", ref)
		}
		key, err := deriveBlobKey(s.masterKey, ref)
		if err != nil {
			return nil, err
		}
		body, err = decryptBlob(key, body, header)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("media: blob %s has unknown format byte 0x%02x", ref, format)
	}

	return decompress(body, compression, int(rawSize))
}

// blobPath returns <dir>/<hex[0:2]>/<hex> for a ref. Two-level
// fan-out keeps directory sizes manageable for large stores.
func (s *DirStore) blobPath(ref ContentRef) string {
	hexRef := ref.String()
	return filepath.Join(s.dir, hexRef[:2], hexRef)
}
