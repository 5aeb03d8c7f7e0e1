// Copyright 2026 The Tagmesh Authors
// SPDX-License-Identifier: Apache-2.0

package mesh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/tagmesh/tagmesh/lib/capability"
	"github.com/tagmesh/tagmesh/lib/tag"
	"github.com/tagmesh/tagmesh/protocol"
)

// ErrSessionClosed reports a send on a closed session.
var ErrSessionClosed = errors.New("mesh: session closed")

// Session is one live peer connection: a completed handshake, its
// capability partition, and the reader/writer loops moving deltas.
// Sessions are fully independent; one peer's stalled handshake or
// slow stream never blocks another's.
type Session struct {
	engine    *Engine
	conn      io.ReadWriteCloser
	receiver  *protocol.Receiver
	initiator bool

	// outbound carries framed messages to the writer loop. Broadcast
	// deltas drop when it is full (catch-up recovers them); replay
	// traffic blocks instead.
	outbound chan protocol.Message

	closed    chan struct{}
	closeOnce sync.Once

	mu        sync.Mutex
	peer      tag.Origin
	partition *capability.Partition
}

func newSession(e *Engine, conn io.ReadWriteCloser, initiator bool) *Session {
	return &Session{
		engine:    e,
		conn:      conn,
		receiver:  protocol.NewReceiver(conn),
		initiator: initiator,
		outbound:  make(chan protocol.Message, e.queueSize),
		closed:    make(chan struct{}),
	}
}

// Peer returns the remote peer's declared origin. Empty until a reply
// or offer carried it (a degraded session may never learn it).
func (s *Session) Peer() tag.Origin {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peer
}

// Partition returns the session's capability partition. Nil only
// before the handshake resolves.
func (s *Session) Partition() *capability.Partition {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.partition
}

// Warnings returns the capability mismatches raised during this
// session's negotiation. Warnings are informational; the session
// carries every non-rejected namespace regardless.
func (s *Session) Warnings() []capability.Mismatch {
	return s.Partition().Mismatches()
}

// Close tears the session down. Idempotent; safe from any goroutine.
// A session closed mid-handshake discards its partial negotiation
// state; nothing reaches the store except through the dispatcher.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.receiver.Close()
		s.conn.Close()
		s.engine.removeSession(s)
	})
}

// handshake runs the capability exchange and installs the partition.
// The partition is installed only when the handshake fully resolved:
// completed, or deliberately degraded per policy. Cancelling ctx
// aborts the exchange.
func (s *Session) handshake(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mesh: handshake: %w", err)
	}
	// Cancellation closes the connection, failing whichever read or
	// write the exchange is blocked on.
	stop := context.AfterFunc(ctx, func() { s.conn.Close() })
	defer stop()

	e := s.engine
	if s.initiator {
		offer := protocol.CapabilityOffer{
			Protocol:     protocol.Version,
			Peer:         e.store.Origin(),
			Capabilities: e.capabilities.All(),
		}
		message, err := protocol.EncodeOffer(offer)
		if err != nil {
			return fmt.Errorf("mesh: handshake: %w", err)
		}
		if err := protocol.WriteMessage(s.conn, message); err != nil {
			return s.handshakeFailed(ctx, err)
		}

		message, err = s.receiver.Next(e.clock, e.negotiationTimeout)
		if err != nil {
			if ctx.Err() == nil && errors.Is(err, protocol.ErrNegotiationTimeout) {
				return s.resolveWithoutPeer("peer reply timed out")
			}
			return s.handshakeFailed(ctx, err)
		}
		reply, err := protocol.DecodeReply(message)
		if err != nil {
			return s.degrade("malformed capability reply", err)
		}
		remote, err := capability.NewSet(reply.Capabilities...)
		if err != nil {
			return s.degrade("invalid peer capability declaration", err)
		}
		s.install(reply.Peer, capability.Negotiate(e.capabilities, remote, reply.Unsupported))
		return nil
	}

	message, err := s.receiver.Next(e.clock, e.negotiationTimeout)
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, protocol.ErrNegotiationTimeout) {
			return s.resolveWithoutPeer("peer offer timed out")
		}
		return s.handshakeFailed(ctx, err)
	}
	offer, err := protocol.DecodeOffer(message)
	if err != nil {
		return s.degrade("malformed capability offer", err)
	}
	if offer.Protocol != protocol.Version {
		return fmt.Errorf("mesh: handshake: peer speaks protocol %d, want %d", offer.Protocol, protocol.Version)
	}
	remote, err := capability.NewSet(offer.Capabilities...)
	if err != nil {
		return s.degrade("invalid peer capability declaration", err)
	}

	var unsupported []string
	for _, namespace := range remote.Namespaces() {
		if _, ok := e.capabilities.Get(namespace); !ok {
			unsupported = append(unsupported, namespace)
		}
	}
	reply := protocol.CapabilityReply{
		Peer:         e.store.Origin(),
		Capabilities: e.capabilities.All(),
		Unsupported:  unsupported,
	}
	message, err = protocol.EncodeReply(reply)
	if err != nil {
		return fmt.Errorf("mesh: handshake: %w", err)
	}
	if err := protocol.WriteMessage(s.conn, message); err != nil {
		return s.handshakeFailed(ctx, err)
	}
	s.install(offer.Peer, capability.Negotiate(e.capabilities, remote, nil))
	return nil
}

// handshakeFailed distinguishes a cancelled handshake from a stream
// failure: cancellation closes the connection, so the I/O error it
// produces would otherwise mask the cancellation.
func (s *Session) handshakeFailed(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("mesh: handshake: %w", ctxErr)
	}
	return fmt.Errorf("mesh: handshake: %w", err)
}

// resolveWithoutPeer applies the timeout policy: close the session,
// or proceed with no knowledge of the peer's capabilities.
func (s *Session) resolveWithoutPeer(reason string) error {
	if s.engine.closeOnTimeout {
		return fmt.Errorf("mesh: handshake: %s: %w", reason, protocol.ErrNegotiationTimeout)
	}
	s.engine.logger.Warn("capability handshake timed out, session degraded", "reason", reason)
	s.install("", capability.Degrade(s.engine.capabilities))
	return nil
}

// degrade resolves a malformed handshake by proceeding with no common
// namespaces. The peer sent something, just nothing usable.
func (s *Session) degrade(reason string, cause error) error {
	s.engine.logger.Warn("capability handshake failed, session degraded",
		"reason", reason,
		"error", cause,
	)
	s.install("", capability.Degrade(s.engine.capabilities))
	return nil
}

func (s *Session) install(peer tag.Origin, partition *capability.Partition) {
	s.mu.Lock()
	s.peer = peer
	s.partition = partition
	s.mu.Unlock()
	for _, mismatch := range partition.Mismatches() {
		s.engine.logger.Warn("capability mismatch",
			"peer", string(peer),
			"namespace", mismatch.Namespace,
			"reason", mismatch.Reason,
		)
	}
}

// start launches the reader and writer loops and requests catch-up
// from the peer.
func (s *Session) start() {
	go s.writeLoop()
	go s.readLoop()
	s.requestCatchUp()
}

// requestCatchUp asks the peer for every delta past what this peer's
// journal already holds.
func (s *Session) requestCatchUp() {
	request := protocol.DeltaRequest{}
	if s.engine.log != nil {
		frontier, err := s.engine.log.Frontier()
		if err != nil {
			s.engine.logger.Warn("reading journal frontier failed, requesting full replay", "error", err)
		} else {
			request = protocol.NewDeltaRequest(frontier)
		}
	}
	message, err := protocol.EncodeDeltaRequest(request)
	if err != nil {
		s.engine.logger.Warn("encoding delta request failed", "error", err)
		return
	}
	s.send(message)
}

func (s *Session) writeLoop() {
	for {
		select {
		case message := <-s.outbound:
			if err := protocol.WriteMessage(s.conn, message); err != nil {
				s.engine.logger.Debug("session write failed",
					"peer", string(s.Peer()),
					"error", err,
				)
				s.Close()
				return
			}
		case <-s.closed:
			return
		}
	}
}

func (s *Session) readLoop() {
	for {
		message, err := s.receiver.Next(s.engine.clock, 0)
		if err != nil {
			select {
			case <-s.closed:
			default:
				s.engine.logger.Info("session stream ended",
					"peer", string(s.Peer()),
					"error", err,
				)
			}
			s.Close()
			return
		}
		switch message.Type {
		case protocol.MessageTypeDelta:
			s.handleDelta(message)
		case protocol.MessageTypeDeltaRequest:
			s.handleDeltaRequest(message)
		default:
			s.engine.logger.Warn("unexpected message after handshake",
				"peer", string(s.Peer()),
				"type", fmt.Sprintf("0x%02x", message.Type),
			)
		}
	}
}

func (s *Session) handleDelta(message protocol.Message) {
	wire, err := protocol.DecodeDelta(message)
	if err != nil {
		s.engine.logger.Warn("malformed delta from peer",
			"peer", string(s.Peer()),
			"error", err,
		)
		return
	}
	d, err := wire.Delta()
	if err != nil {
		s.engine.logger.Warn("invalid delta from peer",
			"peer", string(s.Peer()),
			"error", err,
		)
		return
	}

	// Inbound filtering mirrors outbound: a peer that sends tags in a
	// namespace this session rejected gets them dropped, not merged.
	kept, dropped := filterDelta(s.Partition(), d)
	if dropped > 0 {
		s.engine.logger.Warn("dropped tags in rejected namespace from peer",
			"peer", string(s.Peer()),
			"node", d.Node.String(),
			"dropped", dropped,
		)
	}
	if len(kept.Inserted) == 0 && len(kept.Removed) == 0 {
		return
	}
	s.engine.enqueue(inbound{delta: kept, from: s})
}

// handleDeltaRequest serves the peer's catch-up request from the
// journal, filtered through this session's partition.
func (s *Session) handleDeltaRequest(message protocol.Message) {
	request, err := protocol.DecodeDeltaRequest(message)
	if err != nil {
		s.engine.logger.Warn("malformed delta request from peer",
			"peer", string(s.Peer()),
			"error", err,
		)
		return
	}
	if s.engine.log == nil {
		s.engine.logger.Debug("peer requested replay but no journal is configured",
			"peer", string(s.Peer()),
		)
		return
	}
	err = s.engine.log.Replay(request.Frontier(), func(d tag.Delta) error {
		kept, _ := filterDelta(s.Partition(), d)
		if len(kept.Inserted) == 0 && len(kept.Removed) == 0 {
			return nil
		}
		framed, err := protocol.EncodeDelta(protocol.NewDeltaMessage(kept))
		if err != nil {
			return err
		}
		if !s.send(framed) {
			return ErrSessionClosed
		}
		return nil
	})
	if err != nil && !errors.Is(err, ErrSessionClosed) {
		s.engine.logger.Warn("serving delta request failed",
			"peer", string(s.Peer()),
			"error", err,
		)
	}
}

// sendDelta queues a delta for the peer, filtered through the
// partition. A full queue drops the delta: the peer's next catch-up
// request recovers it from the journal.
func (s *Session) sendDelta(d tag.Delta) {
	kept, _ := filterDelta(s.Partition(), d)
	if len(kept.Inserted) == 0 && len(kept.Removed) == 0 {
		return
	}
	message, err := protocol.EncodeDelta(protocol.NewDeltaMessage(kept))
	if err != nil {
		s.engine.logger.Warn("encoding delta failed",
			"origin", string(d.Origin),
			"clock", d.Clock,
			"error", err,
		)
		return
	}
	select {
	case s.outbound <- message:
	case <-s.closed:
	default:
		s.engine.logger.Warn("outbound queue full, delta dropped",
			"peer", string(s.Peer()),
			"origin", string(d.Origin),
			"clock", d.Clock,
		)
	}
}

// send queues a message, blocking until there is room. Returns false
// if the session closed first.
func (s *Session) send(message protocol.Message) bool {
	select {
	case s.outbound <- message:
		return true
	case <-s.closed:
		return false
	}
}

// filterDelta strips edits in namespaces the partition rejects,
// keeping the delta's identity and clock. Common and degraded
// namespaces pass through untouched; degraded values travel opaque by
// construction, since nothing on this path interprets them.
func filterDelta(p *capability.Partition, d tag.Delta) (kept tag.Delta, dropped int) {
	kept = tag.Delta{Node: d.Node, Origin: d.Origin, Clock: d.Clock}
	for _, t := range d.Inserted {
		if p.Allows(t.Namespace) {
			kept.Inserted = append(kept.Inserted, t)
		} else {
			dropped++
		}
	}
	for _, r := range d.Removed {
		if p.Allows(r.Namespace) {
			kept.Removed = append(kept.Removed, r)
		} else {
			dropped++
		}
	}
	return kept, dropped
}
