// Copyright 2026 The Tagmesh Authors
// SPDX-License-Identifier: Apache-2.0

// Package store holds a peer's authoritative tag state: every node,
// its tag set, and a per-node version vector tracking the highest
// clock seen from each origin.
//
// Two implementations share the [Store] interface and the same merge
// semantics: [Memory] for tests and ephemeral peers, [SQLite] for
// durable storage.
//
// # Merge rules
//
// ApplyDelta is the single write path for replicated edits:
//
//  1. If the node's vector component for the delta's origin is
//     already >= the delta's clock, the delta is stale (a duplicate
//     or retransmission) and is discarded without touching state.
//  2. Insertions overwrite the same origin's earlier assertion for
//     the same (namespace, key); removals delete this origin's
//     assertion if present, no-op otherwise.
//  3. Assertions from different origins for the same (namespace,
//     key) always coexist. Collapsing them to one displayed value is
//     a read-time concern (see Resolve and tag.ReadPolicy), never a
//     merge-time one.
//  4. The vector component for the origin advances to the delta's
//     clock.
//
// Step 1 makes application idempotent; the origin-scoping in step 2
// makes deltas from different origins commute. Together they make the
// merged state independent of delta arrival order, which is what lets
// a peer sync from several servers with no ordering authority between
// them.
//
// Local edits (PutLocal, RemoveLocal) stamp the store's own origin
// and next clock value, apply immediately, and return the delta for
// broadcast. Re-applying a returned delta is a no-op by rule 1.
package store
