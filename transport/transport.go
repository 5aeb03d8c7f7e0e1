// Copyright 2026 The Tagmesh Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"io"
)

// ErrClosed reports an Accept or Dial on a closed transport.
var ErrClosed = errors.New("transport: closed")

// Conn is one peer connection: an ordered, reliable byte stream. The
// protocol package frames messages on top; the transport adds
// nothing.
type Conn = io.ReadWriteCloser

// Listener accepts inbound peer connections.
type Listener interface {
	// Accept blocks until a peer connects, the context is cancelled,
	// or the listener closes (ErrClosed).
	Accept(ctx context.Context) (Conn, error)

	// Address is the dialable address peers use to reach this
	// listener. The format is transport-specific.
	Address() string

	// Close stops accepting. Idempotent.
	Close() error
}

// Dialer opens outbound peer connections. The address format matches
// what the corresponding Listener's Address returns.
type Dialer interface {
	DialContext(ctx context.Context, address string) (Conn, error)
}
