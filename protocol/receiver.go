// Copyright 2026 The Tagmesh Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/tagmesh/tagmesh/lib/clock"
)

// ErrNegotiationTimeout reports that the peer did not produce its
// handshake message within the negotiation timeout. It is never
// fatal: the caller proceeds with capability.Degrade or closes the
// session, per policy.
var ErrNegotiationTimeout = errors.New("protocol: negotiation timed out")

// ErrReceiverClosed reports that Next was called on a closed
// Receiver.
var ErrReceiverClosed = errors.New("protocol: receiver closed")

// Receiver pumps framed messages from a byte stream into a channel
// through a single goroutine. Waiting for a message can be abandoned
// on timeout without disturbing the stream: the in-flight read stays
// pending inside the pump and the message is delivered to whichever
// Next call comes later.
//
// The pump exits when the underlying reader fails (including the
// error produced by closing the connection) or when Close is called.
// Next is safe for use from one goroutine at a time.
type Receiver struct {
	messages chan Message
	stop     chan struct{}
	stopOnce sync.Once

	// err is the terminal stream error, written by the pump before
	// it closes messages.
	err error
}

// NewReceiver starts a pump reading framed messages from r, which
// should be the read side of a transport connection.
func NewReceiver(r io.Reader) *Receiver {
	receiver := &Receiver{
		messages: make(chan Message),
		stop:     make(chan struct{}),
	}
	go receiver.run(r)
	return receiver
}

func (receiver *Receiver) run(r io.Reader) {
	defer close(receiver.messages)
	for {
		message, err := ReadMessage(r)
		if err != nil {
			receiver.err = err
			return
		}
		select {
		case receiver.messages <- message:
		case <-receiver.stop:
			return
		}
	}
}

// Next returns the next message. A timeout > 0 bounds the wait on
// the given clock and yields ErrNegotiationTimeout when it elapses;
// timeout <= 0 waits until a message arrives or the stream ends.
// After the stream ends, Next returns the terminal stream error.
func (receiver *Receiver) Next(clk clock.Clock, timeout time.Duration) (Message, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		expired = clk.After(timeout)
	}
	select {
	case message, ok := <-receiver.messages:
		if !ok {
			if receiver.err != nil {
				return Message{}, receiver.err
			}
			return Message{}, ErrReceiverClosed
		}
		return message, nil
	case <-expired:
		return Message{}, ErrNegotiationTimeout
	}
}

// Close stops the pump. The underlying connection must be closed
// separately to unblock a read pending inside the pump.
func (receiver *Receiver) Close() {
	receiver.stopOnce.Do(func() { close(receiver.stop) })
}
