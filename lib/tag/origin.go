// Copyright 2026 The Tagmesh Authors
// SPDX-License-Identifier: Apache-2.0

package tag

import "fmt"

// maxOriginLength bounds origin identifiers. Long enough for a
// hostname or a plugin path, short enough to index comfortably.
const maxOriginLength = 128

// Origin identifies the peer or plugin that asserted a tag. Origins
// are plain comparable strings so they can key version vectors and
// wire maps directly; validity is enforced at the boundaries
// (document decode, delta validation, session setup) via Validate.
//
// Origins order lexicographically. The default read policy depends on
// that order being identical on every peer, so the allowed alphabet
// is restricted to printable ASCII with no spaces.
type Origin string

// NewOrigin validates s and returns it as an Origin.
func NewOrigin(s string) (Origin, error) {
	o := Origin(s)
	if err := o.Validate(); err != nil {
		return "", err
	}
	return o, nil
}

// Validate checks that the origin is nonempty, within length bounds,
// and uses only printable ASCII without spaces.
func (o Origin) Validate() error {
	if o == "" {
		return fmt.Errorf("origin is empty")
	}
	if len(o) > maxOriginLength {
		return fmt.Errorf("origin %q exceeds %d bytes", truncate(string(o)), maxOriginLength)
	}
	for i := 0; i < len(o); i++ {
		c := o[i]
		if c <= 0x20 || c >= 0x7f {
			return fmt.Errorf("origin %q contains invalid byte 0x%02x at offset %d", truncate(string(o)), c, i)
		}
	}
	return nil
}

// IsZero reports whether the origin is empty.
func (o Origin) IsZero() bool { return o == "" }

// String returns the origin identifier, satisfying fmt.Stringer.
func (o Origin) String() string { return string(o) }

// truncate shortens a string for inclusion in error messages.
func truncate(s string) string {
	const max = 40
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
