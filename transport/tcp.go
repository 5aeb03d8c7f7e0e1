// Copyright 2026 The Tagmesh Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// Compile-time interface checks.
var (
	_ Listener = (*TCPListener)(nil)
	_ Dialer   = (*TCPDialer)(nil)
)

// TCPListener accepts inbound TCP connections. This is the transport
// for peers with direct reachability; NAT'd peers use WebRTC.
type TCPListener struct {
	listener net.Listener
}

// NewTCPListener listens on the given address (e.g. ":7630" or
// "192.168.1.10:7630"). Use ":0" for a random available port.
func NewTCPListener(address string) (*TCPListener, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("transport: %w", err)
	}
	return &TCPListener{listener: listener}, nil
}

// Accept blocks until a peer connects. Cancelling ctx closes the
// listener to unblock the pending accept.
func (l *TCPListener) Accept(ctx context.Context) (Conn, error) {
	if deadline, ok := ctx.Deadline(); ok {
		if tcp, isTCP := l.listener.(*net.TCPListener); isTCP {
			tcp.SetDeadline(deadline)
		}
	}
	stop := context.AfterFunc(ctx, func() { l.listener.Close() })
	defer stop()

	conn, err := l.listener.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, net.ErrClosed) {
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("transport: accept: %w", err)
	}
	return conn, nil
}

// Address returns the listening address in "host:port" form.
func (l *TCPListener) Address() string {
	return l.listener.Addr().String()
}

// Close stops the listener.
func (l *TCPListener) Close() error {
	return l.listener.Close()
}

// TCPDialer opens TCP connections to peers.
type TCPDialer struct {
	// Timeout bounds connection establishment independently of the
	// context deadline. Zero means only the context applies.
	Timeout time.Duration
}

// DialContext opens a TCP connection to address (host:port).
func (d *TCPDialer) DialContext(ctx context.Context, address string) (Conn, error) {
	conn, err := (&net.Dialer{Timeout: d.Timeout}).DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", address, err)
	}
	return conn, nil
}
