// Copyright 2026 The Tagmesh Authors
// SPDX-License-Identifier: Apache-2.0

// Package protocol defines the peer wire protocol: message framing,
// the typed messages, and the capability handshake.
//
// The transport layer delivers an ordered, reliable byte stream;
// everything above that is this package's job. Each message is a
// 5-byte header (1 byte type + 4 byte big-endian payload length)
// followed by a CBOR payload in Core Deterministic Encoding.
//
// A session speaks exactly one offer/reply handshake before any
// delta traffic:
//
//	initiator                     responder
//	    |------ CapabilityOffer ------>|
//	    |<----- CapabilityReply -------|
//	    |<===== DeltaRequest/Delta ===>|
//
// The handshake computes the session's capability partition (see
// lib/capability). It never blocks indefinitely: a missing or
// malformed counterpart message times out to ErrNegotiationTimeout,
// and the caller decides between closing the session and proceeding
// with capability.Degrade. Timeouts run on an injected clock so
// tests control them deterministically.
//
// Reads go through a [Receiver], a single pump goroutine feeding a
// channel. Abandoning a timed-out wait abandons only the wait: the
// pump keeps the stream intact, so a session that proceeds degraded
// after a handshake timeout still receives whatever the slow peer
// eventually sends (a late reply is simply discarded by the session
// loop).
package protocol
