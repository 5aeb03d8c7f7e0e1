// Copyright 2026 The Tagmesh Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import "context"

// Signaler exchanges WebRTC session descriptions between peers. The
// model is vanilla ICE: every candidate is gathered before the SDP is
// published, so establishment needs exactly one round-trip (offer,
// then answer).
//
// Peers are identified by the name they signal under, which is also
// the WebRTC transport's dial address. The signaling channel itself
// is deployment-specific: [MemorySignaler] works in-process; a
// rendezvous service or shared store can implement the same
// interface.
type Signaler interface {
	// PublishOffer stores a complete SDP offer from peer "from"
	// directed at peer "to".
	PublishOffer(ctx context.Context, from, to, sdp string) error

	// PublishAnswer stores a complete SDP answer for the offer "from"
	// published to "to". The (from, to) pair matches the offer's.
	PublishAnswer(ctx context.Context, from, to, sdp string) error

	// PollOffers returns the unprocessed offers directed at name.
	PollOffers(ctx context.Context, name string) ([]SignalMessage, error)

	// PollAnswers returns the unprocessed answers to offers that name
	// published.
	PollAnswers(ctx context.Context, name string) ([]SignalMessage, error)
}

// SignalMessage is one offer or answer. Peer names the other party:
// the offerer for received offers, the answerer for received answers.
type SignalMessage struct {
	Peer string
	SDP  string
}
