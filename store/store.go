// Copyright 2026 The Tagmesh Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/tagmesh/tagmesh/lib/tag"
	"github.com/tagmesh/tagmesh/lib/vclock"
)

// NameKey is the conventional display-name tag ("core:name"). Query
// name filters match against it.
var NameKey = tag.TagRef{Namespace: tag.CoreNamespace, Key: "name"}

// ErrNodeNotFound reports a lookup of an unknown node.
var ErrNodeNotFound = errors.New("store: node not found")

// ErrClosed reports an operation on a closed store.
var ErrClosed = errors.New("store: closed")

// Store is a peer's authoritative tag state. Implementations are safe
// for concurrent use; operations on different nodes proceed in
// parallel, operations on one node serialize.
type Store interface {
	// Origin is the identity stamped on local edits.
	Origin() tag.Origin

	// CreateNode registers a new node with a fresh ID. content is
	// the opaque content handle; empty means no content attached.
	CreateNode(ctx context.Context, content string) (tag.Node, error)

	// Node returns a snapshot of one node: the returned TagSet is a
	// copy the caller owns. ErrNodeNotFound for unknown IDs.
	Node(ctx context.Context, id tag.NodeID) (tag.Node, error)

	// Nodes returns every known node ID, sorted.
	Nodes(ctx context.Context) ([]tag.NodeID, error)

	// PutLocal asserts a tag locally: stamps the store's origin and
	// next clock for the node, applies, and returns the delta for
	// broadcast. The node must exist.
	PutLocal(ctx context.Context, id tag.NodeID, ref tag.TagRef, value tag.Value) (tag.Delta, error)

	// RemoveLocal retracts this origin's assertion for ref. The
	// returned delta is produced (and the clock advanced) even when
	// the assertion was absent, so retraction replicates regardless.
	RemoveLocal(ctx context.Context, id tag.NodeID, ref tag.TagRef) (tag.Delta, error)

	// ApplyDelta merges a replicated delta. applied is false for
	// stale deltas (discarded silently per the merge rules; never an
	// error). Unknown nodes are created implicitly: tags can arrive
	// for a node before its content does.
	ApplyDelta(ctx context.Context, d tag.Delta) (applied bool, err error)

	// Clock returns a copy of the node's version vector. An unknown
	// node has an empty vector.
	Clock(ctx context.Context, id tag.NodeID) (vclock.Vector, error)

	// Resolve returns the node's presentation view: one tag per
	// (namespace, key), chosen by policy (nil means
	// tag.DefaultReadPolicy).
	Resolve(ctx context.Context, id tag.NodeID, policy tag.ReadPolicy) ([]tag.Tag, error)

	// Find returns the IDs of nodes matching the query, sorted.
	Find(ctx context.Context, q Query) ([]tag.NodeID, error)

	// Close releases the store's resources.
	Close() error
}

// Query selects nodes by their resolved tags. Zero fields do not
// constrain. All set fields must match (conjunction).
type Query struct {
	// Namespace keeps nodes carrying at least one tag in this
	// namespace.
	Namespace string

	// HasTag keeps nodes carrying an assertion for this (namespace,
	// key), any value, any origin.
	HasTag *tag.TagRef

	// NameIs keeps nodes whose resolved core:name equals this
	// string.
	NameIs string

	// NameContains keeps nodes whose resolved core:name contains
	// this substring (case-insensitive).
	NameContains string

	// Limit caps the result count; zero means unlimited. Offset
	// skips leading results. Both apply after sorting, so paging is
	// stable.
	Limit  int
	Offset int
}

// matches evaluates the query against one node's tag set. Name
// filters use the resolved view (default read policy), so every peer
// with the same state finds the same nodes.
func (q Query) matches(set *tag.TagSet) bool {
	if q.Namespace != "" {
		found := false
		for _, ref := range set.Refs() {
			if ref.Namespace == q.Namespace {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if q.HasTag != nil {
		if len(set.TagsFor(*q.HasTag)) == 0 {
			return false
		}
	}
	if q.NameIs != "" || q.NameContains != "" {
		candidates := set.TagsFor(NameKey)
		if len(candidates) == 0 {
			return false
		}
		name := tag.DefaultReadPolicy(candidates).Value.Text()
		if q.NameIs != "" && name != q.NameIs {
			return false
		}
		if q.NameContains != "" && !strings.Contains(strings.ToLower(name), strings.ToLower(q.NameContains)) {
			return false
		}
	}
	return true
}

// page applies sorting, offset, and limit to a result set.
func (q Query) page(ids []tag.NodeID) []tag.NodeID {
	sort.Slice(ids, func(i, j int) bool { return ids[i].Compare(ids[j]) < 0 })
	if q.Offset > 0 {
		if q.Offset >= len(ids) {
			return nil
		}
		ids = ids[q.Offset:]
	}
	if q.Limit > 0 && len(ids) > q.Limit {
		ids = ids[:q.Limit]
	}
	return ids
}
