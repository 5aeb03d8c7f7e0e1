// Copyright 2026 The Tagmesh Authors
// SPDX-License-Identifier: Apache-2.0

// Package capability models what a peer can interpret and computes
// what two peers can exchange.
//
// A [Descriptor] declares support for one tag namespace (one plugin)
// at a version. A [Set] is one peer's full declaration: at most one
// descriptor per namespace. Sets are always passed explicitly into
// negotiation rather than read from process-global state, so
// concurrent sessions with different remote peers stay independent.
//
// [Negotiate] compares two sets and produces a [Partition], the
// session's tri-partition of namespaces:
//
//   - Common: both sides support the namespace at compatible
//     versions. Tags flow with full fidelity at the lower minor
//     version.
//   - Degraded: one side supports the namespace and does not require
//     the other to. Tags still flow, carried as opaque values the
//     unsupporting peer stores and forwards without interpretation.
//   - Rejected: one side requires the namespace and the other lacks
//     it, or both sides have it at incomparable versions. Tags in
//     the namespace are withheld from the session's delta stream and
//     a [Mismatch] warning is attached to the partition.
//
// Rejection is per namespace and never per session: a peer with a
// strict subset of plugins always connects and exchanges whatever
// both sides agree on.
package capability
