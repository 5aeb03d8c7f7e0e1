// Copyright 2026 The Tagmesh Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Compile-time interface checks.
var (
	_ Listener = (*WebSocketListener)(nil)
	_ Dialer   = (*WebSocketDialer)(nil)
)

// WebSocketListener accepts peer connections upgraded from HTTP, for
// peers reachable only through HTTP-capable ingress (reverse proxies,
// tunnels). Each accepted socket is bridged to a stream Conn; binary
// websocket messages carry the byte stream.
type WebSocketListener struct {
	listener net.Listener
	server   *http.Server
	incoming chan Conn

	closeOnce sync.Once
	closed    chan struct{}
}

// NewWebSocketListener listens for websocket upgrades on the given
// TCP address. Use ":0" for a random available port.
func NewWebSocketListener(address string) (*WebSocketListener, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("transport: %w", err)
	}
	l := &WebSocketListener{
		listener: listener,
		incoming: make(chan Conn),
		closed:   make(chan struct{}),
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  32 * 1024,
		WriteBufferSize: 32 * 1024,
		// Peer identity comes from the capability handshake, not the
		// HTTP origin.
		CheckOrigin: func(*http.Request) bool { return true },
	}
	l.server = &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			socket, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			conn := newWebSocketConn(socket)
			select {
			case l.incoming <- conn:
			case <-l.closed:
				conn.Close()
			case <-r.Context().Done():
				conn.Close()
			}
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go l.server.Serve(listener)
	return l, nil
}

// Accept blocks until a peer completes a websocket upgrade.
func (l *WebSocketListener) Accept(ctx context.Context) (Conn, error) {
	select {
	case conn := <-l.incoming:
		return conn, nil
	case <-l.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Address returns the listening TCP address in "host:port" form.
func (l *WebSocketListener) Address() string {
	return l.listener.Addr().String()
}

// Close stops the HTTP server and the listener. Idempotent.
func (l *WebSocketListener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.closed)
		err = l.server.Close()
	})
	return err
}

// WebSocketDialer opens websocket connections to peers.
type WebSocketDialer struct {
	// HandshakeTimeout bounds the upgrade handshake. Zero uses the
	// websocket library default.
	HandshakeTimeout time.Duration
}

// DialContext connects to address, which is either a ws:// or wss://
// URL or a bare "host:port" (dialed as ws://host:port/).
func (d *WebSocketDialer) DialContext(ctx context.Context, address string) (Conn, error) {
	url := address
	if !strings.HasPrefix(url, "ws://") && !strings.HasPrefix(url, "wss://") {
		url = "ws://" + url + "/"
	}
	dialer := websocket.Dialer{HandshakeTimeout: d.HandshakeTimeout}
	socket, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", address, err)
	}
	return newWebSocketConn(socket), nil
}

// webSocketConn bridges a message-oriented websocket to the stream
// Conn the protocol expects. Writes become binary messages; reads
// drain messages in order. The websocket's own framing preserves
// ordering, so the result is an ordered reliable stream.
type webSocketConn struct {
	socket *websocket.Conn

	readMu  sync.Mutex
	reader  io.Reader
	writeMu sync.Mutex
}

func newWebSocketConn(socket *websocket.Conn) *webSocketConn {
	return &webSocketConn{socket: socket}
}

func (c *webSocketConn) Read(p []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()
	for {
		if c.reader == nil {
			messageType, reader, err := c.socket.NextReader()
			if err != nil {
				return 0, err
			}
			if messageType != websocket.BinaryMessage {
				continue
			}
			c.reader = reader
		}
		n, err := c.reader.Read(p)
		if err == io.EOF {
			// Current message drained; the next Read pulls the next
			// message.
			c.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (c *webSocketConn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.socket.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *webSocketConn) Close() error {
	c.writeMu.Lock()
	c.socket.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.socket.Close()
}
