// Copyright 2026 The Tagmesh Authors
// SPDX-License-Identifier: Apache-2.0

package vclock

import "github.com/tagmesh/tagmesh/lib/tag"

// Frontier tracks the highest clock seen per (node, origin) pair.
// Clocks are scoped to a node: origin P stamps clock 1 on its first
// edit of every node it touches, so a single per-origin vector cannot
// say which deltas a peer holds. A frontier carries one vector per
// node and answers that question exactly.
//
// The zero value (nil map) is a valid empty frontier for reads; use
// NewFrontier or Observe (on a non-nil frontier) to build one up.
type Frontier map[tag.NodeID]Vector

// NewFrontier returns an empty frontier.
func NewFrontier() Frontier {
	return make(Frontier)
}

// Get returns origin's component for node, zero when absent. Nil-safe.
func (f Frontier) Get(node tag.NodeID, origin tag.Origin) uint64 {
	return f[node].Get(origin)
}

// Observe records clock for (node, origin) if it exceeds the current
// component. Returns true when the frontier advanced.
func (f Frontier) Observe(node tag.NodeID, origin tag.Origin, clock uint64) bool {
	v, ok := f[node]
	if !ok {
		v = New()
		f[node] = v
	}
	return v.Observe(origin, clock)
}

// Equal reports componentwise equality, treating absent nodes and
// origins as zero.
func (f Frontier) Equal(other Frontier) bool {
	for node, v := range f {
		if !v.Equal(other[node]) {
			return false
		}
	}
	for node, v := range other {
		if !v.Equal(f[node]) {
			return false
		}
	}
	return true
}
