// Copyright 2026 The Tagmesh Authors
// SPDX-License-Identifier: Apache-2.0

package media

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/zeebo/blake3"
)

// RefSize is the size in bytes of a content reference: a BLAKE3-256
// digest.
const RefSize = 32

// ContentRef is the opaque content handle carried by a node: the
// BLAKE3 hash of the content bytes. The tag core never dereferences
// it; only a media.Store can turn it back into bytes.
//
// The canonical external form is lowercase hex. The zero value means
// "no content attached" and marshals as the empty string.
type ContentRef [RefSize]byte

// HashContent computes the ContentRef of a byte slice.
func HashContent(data []byte) ContentRef {
	return ContentRef(blake3.Sum256(data))
}

// HashReader computes the ContentRef of a stream, returning the ref
// and the number of bytes read.
func HashReader(r io.Reader) (ContentRef, int64, error) {
	hasher := blake3.New()
	size, err := io.Copy(hasher, r)
	if err != nil {
		return ContentRef{}, 0, fmt.Errorf("media: hashing content: %w", err)
	}
	var ref ContentRef
	hasher.Digest().Read(ref[:])
	return ref, size, nil
}

// ParseRef parses the lowercase hex form of a ContentRef. The empty
// string parses to the zero ref.
func ParseRef(s string) (ContentRef, error) {
	if s == "" {
		return ContentRef{}, nil
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return ContentRef{}, fmt.Errorf("media: invalid content ref %q: %w", s, err)
	}
	if len(decoded) != RefSize {
		return ContentRef{}, fmt.Errorf("media: content ref %q has %d bytes, want %d", s, len(decoded), RefSize)
	}
	var ref ContentRef
	copy(ref[:], decoded)
	return ref, nil
}

// IsZero reports whether this is the "no content" zero ref.
func (ref ContentRef) IsZero() bool {
	return ref == ContentRef{}
}

// String returns the lowercase hex form, satisfying fmt.Stringer.
// The zero ref returns the empty string.
func (ref ContentRef) String() string {
	if ref.IsZero() {
		return ""
	}
	return hex.EncodeToString(ref[:])
}

// MarshalText implements encoding.TextMarshaler.
func (ref ContentRef) MarshalText() ([]byte, error) {
	return []byte(ref.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Empty input
// produces the zero ref, mirroring MarshalText.
func (ref *ContentRef) UnmarshalText(data []byte) error {
	parsed, err := ParseRef(string(data))
	if err != nil {
		return err
	}
	*ref = parsed
	return nil
}
