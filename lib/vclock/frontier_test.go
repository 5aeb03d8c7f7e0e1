// Copyright 2026 The Tagmesh Authors
// SPDX-License-Identifier: Apache-2.0

package vclock_test

import (
	"testing"

	"github.com/tagmesh/tagmesh/lib/tag"
	"github.com/tagmesh/tagmesh/lib/vclock"
)

func newNodeID(t *testing.T) tag.NodeID {
	t.Helper()
	id, err := tag.NewNodeID()
	if err != nil {
		t.Fatalf("NewNodeID: %v", err)
	}
	return id
}

func TestFrontierTracksNodesSeparately(t *testing.T) {
	nodeA := newNodeID(t)
	nodeB := newNodeID(t)

	f := vclock.NewFrontier()
	if !f.Observe(nodeA, "laptop", 5) {
		t.Error("Observe(nodeA, laptop, 5) on empty frontier = false")
	}
	if !f.Observe(nodeB, "laptop", 1) {
		t.Error("Observe(nodeB, laptop, 1) = false")
	}

	// The same origin's clocks stay independent per node.
	if f.Get(nodeA, "laptop") != 5 {
		t.Errorf("Get(nodeA, laptop) = %d, want 5", f.Get(nodeA, "laptop"))
	}
	if f.Get(nodeB, "laptop") != 1 {
		t.Errorf("Get(nodeB, laptop) = %d, want 1", f.Get(nodeB, "laptop"))
	}
	if f.Observe(nodeB, "laptop", 1) {
		t.Error("Observe(nodeB, laptop, 1) twice advanced the frontier")
	}
}

func TestFrontierNilReads(t *testing.T) {
	var f vclock.Frontier
	if f.Get(newNodeID(t), "laptop") != 0 {
		t.Error("Get on nil frontier != 0")
	}
}

func TestFrontierEqual(t *testing.T) {
	nodeA := newNodeID(t)
	nodeB := newNodeID(t)

	a := vclock.NewFrontier()
	a.Observe(nodeA, "laptop", 2)
	a.Observe(nodeB, "serverA", 4)

	b := vclock.NewFrontier()
	b.Observe(nodeB, "serverA", 4)
	b.Observe(nodeA, "laptop", 2)

	if !a.Equal(b) {
		t.Error("identical frontiers compare unequal")
	}
	b.Observe(nodeA, "laptop", 3)
	if a.Equal(b) {
		t.Error("diverged frontiers compare equal")
	}
	if !vclock.NewFrontier().Equal(nil) {
		t.Error("empty frontier != nil frontier")
	}
}
