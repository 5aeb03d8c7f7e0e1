// Copyright 2026 The Tagmesh Authors
// SPDX-License-Identifier: Apache-2.0

package mesh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/tagmesh/tagmesh/lib/capability"
	"github.com/tagmesh/tagmesh/lib/clock"
	"github.com/tagmesh/tagmesh/lib/deltalog"
	"github.com/tagmesh/tagmesh/lib/tag"
	"github.com/tagmesh/tagmesh/store"
)

// ErrClosed reports an operation on a closed engine.
var ErrClosed = errors.New("mesh: engine closed")

// DefaultQueueSize bounds the inbound queue and each session's
// outbound queue when Config.QueueSize is zero.
const DefaultQueueSize = 256

// DefaultNegotiationTimeout bounds the handshake wait when
// Config.NegotiationTimeout is zero.
const DefaultNegotiationTimeout = 10 * time.Second

// Event announces one merged delta: a local edit or a remote delta
// that applied. Stale deltas produce no event.
type Event struct {
	Node   tag.NodeID
	Origin tag.Origin
	Clock  uint64
}

// Subscription is one subscriber's event feed. C is closed when the
// subscription or the engine closes.
type Subscription struct {
	// C delivers events. A subscriber that falls behind its buffer
	// misses events rather than stalling the engine; resync through
	// the store if completeness matters.
	C <-chan Event

	engine *Engine
	c      chan Event
	once   sync.Once
}

// Close cancels the subscription.
func (s *Subscription) Close() {
	s.once.Do(func() { s.engine.unsubscribe(s.c) })
}

// Config holds the parameters for an engine.
type Config struct {
	// Store is the peer's authoritative tag state. Required.
	Store store.Store

	// Log journals every delta this peer applies or originates, and
	// serves peers' catch-up requests. Optional: without it the peer
	// still merges live traffic but cannot replay history.
	Log *deltalog.Log

	// Capabilities is this peer's namespace declaration for
	// handshakes. Nil declares nothing: every namespace degrades.
	Capabilities *capability.Set

	// Clock drives handshake timeouts. Nil means the real clock.
	Clock clock.Clock

	// Logger receives operational messages. Nil discards.
	Logger *slog.Logger

	// QueueSize bounds the inbound queue and per-session outbound
	// queues. Zero means DefaultQueueSize.
	QueueSize int

	// NegotiationTimeout bounds the wait for the peer's handshake
	// message. Zero means DefaultNegotiationTimeout.
	NegotiationTimeout time.Duration

	// CloseOnTimeout closes a session whose handshake times out
	// instead of degrading it.
	CloseOnTimeout bool
}

// inbound is one received delta queued for the dispatcher, tagged
// with the session it arrived on so relaying skips the sender.
type inbound struct {
	delta tag.Delta
	from  *Session
}

// Engine is a peer's sync engine. One engine per store; one session
// per connected peer. All methods are safe for concurrent use.
type Engine struct {
	store              store.Store
	log                *deltalog.Log
	capabilities       *capability.Set
	clock              clock.Clock
	logger             *slog.Logger
	queueSize          int
	negotiationTimeout time.Duration
	closeOnTimeout     bool

	inbound chan inbound
	stop    chan struct{}
	done    chan struct{}

	mu          sync.Mutex
	closed      bool
	sessions    map[*Session]struct{}
	subscribers map[chan Event]struct{}
}

// NewEngine starts an engine over the given store.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("mesh: Config.Store is required")
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	timeout := cfg.NegotiationTimeout
	if timeout <= 0 {
		timeout = DefaultNegotiationTimeout
	}
	e := &Engine{
		store:              cfg.Store,
		log:                cfg.Log,
		capabilities:       cfg.Capabilities,
		clock:              clk,
		logger:             logger,
		queueSize:          queueSize,
		negotiationTimeout: timeout,
		closeOnTimeout:     cfg.CloseOnTimeout,
		inbound:            make(chan inbound, queueSize),
		stop:               make(chan struct{}),
		done:               make(chan struct{}),
		sessions:           make(map[*Session]struct{}),
		subscribers:        make(map[chan Event]struct{}),
	}
	go e.dispatch()
	return e, nil
}

// Origin returns the identity this engine's store stamps on local
// edits.
func (e *Engine) Origin() tag.Origin { return e.store.Origin() }

// Store returns the engine's underlying store, for reads and node
// creation. Writes that should replicate go through LocalPut and
// LocalRemove instead.
func (e *Engine) Store() store.Store { return e.store }

// LocalPut asserts a tag on the local store and fans the resulting
// delta out to every live session.
func (e *Engine) LocalPut(ctx context.Context, id tag.NodeID, ref tag.TagRef, value tag.Value) (tag.Delta, error) {
	d, err := e.store.PutLocal(ctx, id, ref, value)
	if err != nil {
		return tag.Delta{}, err
	}
	e.journal(d)
	e.publish(Event{Node: d.Node, Origin: d.Origin, Clock: d.Clock})
	e.relay(d, nil)
	return d, nil
}

// LocalRemove retracts this peer's assertion and fans the resulting
// delta out to every live session.
func (e *Engine) LocalRemove(ctx context.Context, id tag.NodeID, ref tag.TagRef) (tag.Delta, error) {
	d, err := e.store.RemoveLocal(ctx, id, ref)
	if err != nil {
		return tag.Delta{}, err
	}
	e.journal(d)
	e.publish(Event{Node: d.Node, Origin: d.Origin, Clock: d.Clock})
	e.relay(d, nil)
	return d, nil
}

// Subscribe registers an event feed with the given buffer (minimum 1).
func (e *Engine) Subscribe(buffer int) *Subscription {
	if buffer < 1 {
		buffer = 1
	}
	c := make(chan Event, buffer)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		close(c)
	} else {
		e.subscribers[c] = struct{}{}
	}
	return &Subscription{C: c, engine: e, c: c}
}

func (e *Engine) unsubscribe(c chan Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.subscribers[c]; ok {
		delete(e.subscribers, c)
		close(c)
	}
}

// Connect starts a session as the handshake initiator. Cancelling
// ctx aborts an in-flight handshake and closes the connection.
func (e *Engine) Connect(ctx context.Context, conn io.ReadWriteCloser) (*Session, error) {
	return e.startSession(ctx, conn, true)
}

// Accept starts a session as the handshake responder. Cancelling ctx
// aborts an in-flight handshake and closes the connection.
func (e *Engine) Accept(ctx context.Context, conn io.ReadWriteCloser) (*Session, error) {
	return e.startSession(ctx, conn, false)
}

func (e *Engine) startSession(ctx context.Context, conn io.ReadWriteCloser, initiator bool) (*Session, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		conn.Close()
		return nil, ErrClosed
	}
	e.mu.Unlock()

	s := newSession(e, conn, initiator)
	if err := s.handshake(ctx); err != nil {
		s.Close()
		return nil, err
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		s.Close()
		return nil, ErrClosed
	}
	e.sessions[s] = struct{}{}
	e.mu.Unlock()

	s.start()
	return s, nil
}

// Sessions returns the live sessions.
func (e *Engine) Sessions() []*Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	sessions := make([]*Session, 0, len(e.sessions))
	for s := range e.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

// Close shuts the engine down: every session closes, the dispatcher
// drains, and subscriber channels close. The store and delta log are
// not closed; the engine does not own them.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	sessions := make([]*Session, 0, len(e.sessions))
	for s := range e.sessions {
		sessions = append(sessions, s)
	}
	subscribers := e.subscribers
	e.subscribers = make(map[chan Event]struct{})
	e.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	close(e.stop)
	<-e.done
	for c := range subscribers {
		close(c)
	}
	return nil
}

// dispatch is the single merge loop: every received delta, from every
// session, passes through here in arrival order.
func (e *Engine) dispatch() {
	defer close(e.done)
	for {
		select {
		case in := <-e.inbound:
			e.merge(in)
		case <-e.stop:
			return
		}
	}
}

func (e *Engine) merge(in inbound) {
	applied, err := e.store.ApplyDelta(context.Background(), in.delta)
	if err != nil {
		e.logger.Warn("merge failed",
			"node", in.delta.Node.String(),
			"origin", string(in.delta.Origin),
			"clock", in.delta.Clock,
			"error", err,
		)
		return
	}
	if !applied {
		return
	}
	e.journal(in.delta)
	e.publish(Event{Node: in.delta.Node, Origin: in.delta.Origin, Clock: in.delta.Clock})
	e.relay(in.delta, in.from)
}

// journal records an applied delta. Journal failures are logged, not
// fatal: the store already holds the merge, only replay history is
// affected.
func (e *Engine) journal(d tag.Delta) {
	if e.log == nil {
		return
	}
	if err := e.log.Append(d); err != nil {
		e.logger.Error("journaling delta failed",
			"origin", string(d.Origin),
			"clock", d.Clock,
			"error", err,
		)
	}
}

func (e *Engine) publish(event Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for c := range e.subscribers {
		select {
		case c <- event:
		default:
			e.logger.Debug("dropped event for slow subscriber",
				"node", event.Node.String(),
				"origin", string(event.Origin),
				"clock", event.Clock,
			)
		}
	}
}

// relay forwards a merged delta to every live session except the one
// it arrived on. Each session applies its own partition filter.
func (e *Engine) relay(d tag.Delta, from *Session) {
	e.mu.Lock()
	sessions := make([]*Session, 0, len(e.sessions))
	for s := range e.sessions {
		if s != from {
			sessions = append(sessions, s)
		}
	}
	e.mu.Unlock()
	for _, s := range sessions {
		s.sendDelta(d)
	}
}

func (e *Engine) removeSession(s *Session) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.sessions, s)
}

// enqueue hands a received delta to the dispatcher. Returns false if
// the engine is shutting down.
func (e *Engine) enqueue(in inbound) bool {
	select {
	case e.inbound <- in:
		return true
	case <-e.stop:
		return false
	}
}
