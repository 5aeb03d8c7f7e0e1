// Copyright 2026 The Tagmesh Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport provides the byte streams peers sync over. A
// transport delivers an ordered, reliable stream and nothing else:
// message framing belongs to the protocol package, and peer identity
// is established by the capability handshake that runs on top.
//
// Two interfaces cover both directions: [Listener] accepts inbound
// connections (Accept, Address, Close) and [Dialer] opens outbound
// ones (DialContext). Four implementations ship:
//
//   - TCP ([TCPListener], [TCPDialer]) for directly reachable peers,
//     the development and same-LAN default.
//   - WebSocket ([WebSocketListener], [WebSocketDialer]) for peers
//     behind HTTP-only ingress.
//   - WebRTC ([WebRTCTransport]) data channels for NAT'd home
//     servers, with signaling abstracted behind [Signaler]
//     ([MemorySignaler] is the in-process implementation).
//   - In-memory ([Network]) for tests and the purely local case of a
//     client syncing with a server in the same process.
//
// Transport security is out of scope here; deploy TLS or an
// authenticated tunnel around the transport when peers cross trust
// boundaries.
package transport
