// Copyright 2026 The Tagmesh Authors
// SPDX-License-Identifier: Apache-2.0

// Package tag defines the canonical tag data model: nodes, origins,
// generalized values, tag sets, and the versioned deltas that carry
// tag edits between peers.
//
// A [Node] is one tracked item. Its metadata lives in a [TagSet]: a
// mapping from (namespace, key, origin) to a generalized [Value]. The
// origin dimension is what makes the model multi-writer safe: two
// peers may assert different values for the same namespace and key,
// and both assertions are retained side by side. Nothing in this
// package ever collapses one origin's value into another's.
//
// Presentation code that needs a single value per (namespace, key)
// applies a [ReadPolicy] via [Resolve]. The default policy picks
// the lexicographically smallest origin, which is deterministic
// across peers without coordination.
//
// A [Delta] is the unit of replication: one origin's clock-stamped
// batch of insertions and removals for one node. Delta application
// semantics (staleness, overwrite, clock advance) live in the store
// packages; this package only defines the shapes and their validity
// rules.
//
// This package has no dependencies beyond UUID generation for node
// identifiers.
package tag
