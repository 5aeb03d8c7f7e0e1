// Copyright 2026 The Tagmesh Authors
// SPDX-License-Identifier: Apache-2.0

package tag

import (
	"bytes"
	"fmt"

	"github.com/google/uuid"
)

// NodeID is the stable identifier of a tracked node. IDs are assigned
// at creation, globally unique, and never reused; the canonical
// external form is the RFC 4122 string representation.
//
// NodeID is comparable and usable as a map key. The zero value is
// invalid and marshals as the empty string.
type NodeID struct {
	id uuid.UUID
}

// NewNodeID generates a fresh random NodeID.
func NewNodeID() (NodeID, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return NodeID{}, fmt.Errorf("generate node ID: %w", err)
	}
	return NodeID{id: id}, nil
}

// ParseNodeID parses the canonical string form of a NodeID.
func ParseNodeID(s string) (NodeID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return NodeID{}, fmt.Errorf("invalid node ID %q: %w", s, err)
	}
	if id == uuid.Nil {
		return NodeID{}, fmt.Errorf("invalid node ID %q: nil UUID", s)
	}
	return NodeID{id: id}, nil
}

// String returns the canonical string form, satisfying fmt.Stringer.
// The zero NodeID returns the empty string.
func (n NodeID) String() string {
	if n.IsZero() {
		return ""
	}
	return n.id.String()
}

// IsZero reports whether this is an uninitialized zero-value NodeID.
func (n NodeID) IsZero() bool { return n.id == uuid.Nil }

// Compare orders NodeIDs bytewise, which matches the lexicographic
// order of their string forms. Returns -1, 0, or +1.
func (n NodeID) Compare(other NodeID) int {
	return bytes.Compare(n.id[:], other.id[:])
}

// MarshalText implements encoding.TextMarshaler. The zero NodeID
// marshals as the empty string.
func (n NodeID) MarshalText() ([]byte, error) {
	return []byte(n.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Empty input
// produces the zero NodeID, mirroring MarshalText.
func (n *NodeID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*n = NodeID{}
		return nil
	}
	parsed, err := ParseNodeID(string(data))
	if err != nil {
		return err
	}
	*n = parsed
	return nil
}

// Node is one tracked item: a stable identifier, an opaque handle to
// the item's content, and the node's tag state.
//
// Content is owned by the external storage collaborator. The tag core
// never dereferences it; an empty string means no content is attached
// (tags can exist for a node before its content does).
type Node struct {
	ID      NodeID
	Content string
	Tags    *TagSet
}
