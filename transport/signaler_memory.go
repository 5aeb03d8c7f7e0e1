// Copyright 2026 The Tagmesh Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"strings"
	"sync"
)

// Compile-time interface check.
var _ Signaler = (*MemorySignaler)(nil)

// MemorySignaler is an in-process Signaler. Two WebRTC transports
// sharing one MemorySignaler can establish peer connections with no
// external signaling channel, which is how tests and single-process
// deployments run. Signals are consumed by the first matching poll.
type MemorySignaler struct {
	mu      sync.Mutex
	offers  map[string]SignalMessage // key: "from|to"
	answers map[string]SignalMessage
}

// NewMemorySignaler creates an empty in-process signaler.
func NewMemorySignaler() *MemorySignaler {
	return &MemorySignaler{
		offers:  make(map[string]SignalMessage),
		answers: make(map[string]SignalMessage),
	}
}

func (s *MemorySignaler) PublishOffer(_ context.Context, from, to, sdp string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offers[from+"|"+to] = SignalMessage{Peer: from, SDP: sdp}
	return nil
}

func (s *MemorySignaler) PublishAnswer(_ context.Context, from, to, sdp string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers[from+"|"+to] = SignalMessage{Peer: from, SDP: sdp}
	return nil
}

func (s *MemorySignaler) PollOffers(_ context.Context, name string) ([]SignalMessage, error) {
	return s.take(s.offers, name), nil
}

func (s *MemorySignaler) PollAnswers(_ context.Context, name string) ([]SignalMessage, error) {
	return s.take(s.answers, name), nil
}

// take removes and returns every signal addressed to name.
func (s *MemorySignaler) take(store map[string]SignalMessage, name string) []SignalMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	var messages []SignalMessage
	for key, message := range store {
		if strings.HasSuffix(key, "|"+name) {
			messages = append(messages, message)
			delete(store, key)
		}
	}
	return messages
}
