// Copyright 2026 The Tagmesh Authors
// SPDX-License-Identifier: Apache-2.0

// Package mesh runs a peer's sync engine: one [Engine] wrapping the
// local store, with one [Session] per connected peer.
//
// Sessions feed received deltas into a single inbound queue; the
// engine's dispatcher merges them through the store, journals what
// applied, notifies subscribers, and relays to the other live
// sessions. Local edits enter through [Engine.Put] and [Engine.Remove]
// and fan out the same way. There is no ordering authority anywhere in
// this path: the store's merge rules make the result independent of
// which peer delivered what first.
//
// Each session starts with a capability handshake. The resulting
// tri-partition filters the delta stream in both directions: tags in
// rejected namespaces never travel, everything else flows (degraded
// namespaces as opaque values). A handshake that times out degrades
// the session rather than failing it, unless the engine is configured
// to close on timeout.
package mesh
