// Copyright 2026 The Tagmesh Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
)

// Compile-time interface checks.
var (
	_ Listener = (*MemoryListener)(nil)
	_ Dialer   = (*Network)(nil)
)

// Network is an in-process transport: listeners register under a
// name, dials connect synchronously through a pipe. It serves tests
// and the purely local case of a client syncing with a server in the
// same process, with no sockets involved.
type Network struct {
	mu        sync.Mutex
	listeners map[string]*MemoryListener
}

// NewNetwork creates an empty in-process network.
func NewNetwork() *Network {
	return &Network{listeners: make(map[string]*MemoryListener)}
}

// Listen registers a listener under the given name.
func (n *Network) Listen(address string) (*MemoryListener, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, taken := n.listeners[address]; taken {
		return nil, fmt.Errorf("transport: address %q already in use", address)
	}
	l := &MemoryListener{
		network:  n,
		address:  address,
		incoming: make(chan Conn),
		closed:   make(chan struct{}),
	}
	n.listeners[address] = l
	return l, nil
}

// DialContext connects to the listener registered under address.
func (n *Network) DialContext(ctx context.Context, address string) (Conn, error) {
	n.mu.Lock()
	l, ok := n.listeners[address]
	n.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("transport: no listener at %q", address)
	}

	local, remote := net.Pipe()
	select {
	case l.incoming <- remote:
		return local, nil
	case <-l.closed:
		local.Close()
		return nil, ErrClosed
	case <-ctx.Done():
		local.Close()
		return nil, ctx.Err()
	}
}

func (n *Network) remove(address string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.listeners, address)
}

// MemoryListener is one named endpoint on a Network.
type MemoryListener struct {
	network  *Network
	address  string
	incoming chan Conn

	closeOnce sync.Once
	closed    chan struct{}
}

// Accept blocks until a dial arrives.
func (l *MemoryListener) Accept(ctx context.Context) (Conn, error) {
	select {
	case conn := <-l.incoming:
		return conn, nil
	case <-l.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Address returns the name the listener registered under.
func (l *MemoryListener) Address() string { return l.address }

// Close deregisters the listener. Idempotent.
func (l *MemoryListener) Close() error {
	l.closeOnce.Do(func() {
		close(l.closed)
		l.network.remove(l.address)
	})
	return nil
}
