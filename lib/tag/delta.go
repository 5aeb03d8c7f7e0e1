// Copyright 2026 The Tagmesh Authors
// SPDX-License-Identifier: Apache-2.0

package tag

import "fmt"

// Delta is one origin's clock-stamped batch of tag edits for one
// node: the unit of replication between peers.
//
// Clock is the origin's logical clock value at which the batch was
// produced, starting at 1 for the origin's first edit to the node.
// A store applies a delta only if the clock exceeds what it has
// already recorded for (node, origin); see the store packages for
// the full merge rules.
//
// Every inserted tag carries the delta's own origin, and removals
// target only the delta origin's assertions. A delta can never touch
// another origin's tags, which is what makes cross-origin application
// order irrelevant.
type Delta struct {
	Node     NodeID
	Origin   Origin
	Clock    uint64
	Inserted []Tag
	Removed  []TagRef
}

// Validate checks the delta's shape: a real node and origin, a
// nonzero clock, well-formed insertions all carrying the delta's
// origin, and well-formed removal references. An empty edit list is
// legal (a delta may exist purely to advance the clock).
func (d Delta) Validate() error {
	if d.Node.IsZero() {
		return fmt.Errorf("delta has no node")
	}
	if err := d.Origin.Validate(); err != nil {
		return fmt.Errorf("delta origin: %w", err)
	}
	if d.Clock == 0 {
		return fmt.Errorf("delta clock is zero")
	}
	for i, t := range d.Inserted {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("inserted tag %d: %w", i, err)
		}
		if t.Origin != d.Origin {
			return fmt.Errorf("inserted tag %d: origin %q does not match delta origin %q", i, t.Origin, d.Origin)
		}
	}
	for i, r := range d.Removed {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("removed ref %d: %w", i, err)
		}
	}
	return nil
}

// Apply performs the delta's edits against a TagSet: insertions
// overwrite this origin's earlier assertion for the same (namespace,
// key), removals delete this origin's assertion if present and are
// no-ops otherwise. Apply does not consult or advance clocks; the
// store's staleness check gates the call.
func (d Delta) Apply(set *TagSet) error {
	for _, t := range d.Inserted {
		if err := set.Put(t); err != nil {
			return fmt.Errorf("apply delta: %w", err)
		}
	}
	for _, r := range d.Removed {
		set.Remove(r, d.Origin)
	}
	return nil
}
