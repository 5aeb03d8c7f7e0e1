// Copyright 2026 The Tagmesh Authors
// SPDX-License-Identifier: Apache-2.0

// Package integration_test exercises whole-system paths: engines over
// real transports, catch-up from the journal, and document round-trips
// between peers. Unit behavior lives with the packages; these tests
// only cover what needs several packages wired together.
package integration_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/tagmesh/tagmesh/lib/capability"
	"github.com/tagmesh/tagmesh/lib/deltalog"
	"github.com/tagmesh/tagmesh/lib/tag"
	"github.com/tagmesh/tagmesh/lib/testutil"
	"github.com/tagmesh/tagmesh/mesh"
	"github.com/tagmesh/tagmesh/store"
	"github.com/tagmesh/tagmesh/transport"
)

const waitTimeout = 10 * time.Second

func descriptor(namespace string) capability.Descriptor {
	return capability.Descriptor{Namespace: namespace, Version: capability.Version{Major: 1}}
}

func capabilitySet(t *testing.T, namespaces ...string) *capability.Set {
	t.Helper()
	descriptors := make([]capability.Descriptor, 0, len(namespaces))
	for _, namespace := range namespaces {
		descriptors = append(descriptors, descriptor(namespace))
	}
	set, err := capability.NewSet(descriptors...)
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}
	return set
}

// newPeer builds an engine over the given store backend ("memory" or
// "sqlite") with an in-memory journal.
func newPeer(t *testing.T, origin tag.Origin, backend string, capabilities *capability.Set) *mesh.Engine {
	t.Helper()
	var s store.Store
	var err error
	switch backend {
	case "memory":
		s, err = store.NewMemory(store.MemoryConfig{Origin: origin})
	case "sqlite":
		s, err = store.NewSQLite(store.SQLiteConfig{
			Path:   filepath.Join(t.TempDir(), "tags.db"),
			Origin: origin,
		})
	default:
		t.Fatalf("unknown backend %q", backend)
	}
	if err != nil {
		t.Fatalf("opening %s store: %v", backend, err)
	}

	journal, err := deltalog.Open(deltalog.Config{InMemory: true})
	if err != nil {
		t.Fatalf("deltalog.Open: %v", err)
	}
	t.Cleanup(func() { journal.Close() })

	e, err := mesh.NewEngine(mesh.Config{
		Store:        s,
		Log:          journal,
		Capabilities: capabilities,
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

// serveOn accepts connections for an engine until the listener closes.
func serveOn(t *testing.T, e *mesh.Engine, listener transport.Listener) {
	t.Helper()
	t.Cleanup(func() { listener.Close() })
	go func() {
		for {
			conn, err := listener.Accept(context.Background())
			if err != nil {
				return
			}
			go e.Accept(context.Background(), conn)
		}
	}()
}

// dial connects one engine to an address and fails the test if the
// handshake does not resolve.
func dial(t *testing.T, e *mesh.Engine, dialer transport.Dialer, address string) *mesh.Session {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	conn, err := dialer.DialContext(ctx, address)
	if err != nil {
		t.Fatalf("dialing %s: %v", address, err)
	}
	session, err := e.Connect(ctx, conn)
	if err != nil {
		t.Fatalf("Connect to %s: %v", address, err)
	}
	return session
}

// waitForTag polls events until the node resolves ref to want.
func waitForTag(t *testing.T, e *mesh.Engine, sub *mesh.Subscription, node tag.NodeID, ref tag.TagRef, want tag.Value) {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		if hasResolvedTag(e, node, ref, want) {
			return
		}
		select {
		case <-sub.C:
		case <-deadline:
			t.Fatalf("node %s never resolved %s to %s", node, ref, want)
		}
	}
}

func hasResolvedTag(e *mesh.Engine, node tag.NodeID, ref tag.TagRef, want tag.Value) bool {
	resolved, err := e.Store().Resolve(context.Background(), node, nil)
	if err != nil {
		return false
	}
	for _, t := range resolved {
		if t.Ref() == ref && t.Value.Equal(want) {
			return true
		}
	}
	return false
}

// TestConvergenceOverMemoryTransport connects two peers with different
// capability sets over the in-memory transport and checks that
// concurrent edits from both sides converge, including a namespace
// only one side interprets (it degrades and travels opaque).
func TestConvergenceOverMemoryTransport(t *testing.T) {
	t.Parallel()

	laptop := newPeer(t, "laptop", "memory", capabilitySet(t, "core", "photo"))
	server := newPeer(t, "serverA", "sqlite", capabilitySet(t, "core"))

	network := transport.NewNetwork()
	listener, err := network.Listen("serverA")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	serveOn(t, server, listener)

	laptopSub := laptop.Subscribe(16)
	defer laptopSub.Close()
	serverSub := server.Subscribe(16)
	defer serverSub.Close()

	dial(t, laptop, network, "serverA")

	ctx := context.Background()
	node, err := laptop.Store().CreateNode(ctx, "")
	if err != nil {
		t.Fatalf("CreateNode: %v", err)
	}

	nameRef := tag.TagRef{Namespace: tag.CoreNamespace, Key: "name"}
	cameraRef := tag.TagRef{Namespace: "photo", Key: "camera"}
	ratingRef := tag.TagRef{Namespace: tag.CoreNamespace, Key: "rating"}

	// Concurrent edits: the laptop names the node and tags the
	// camera; the server rates it as soon as the node appears.
	if _, err := laptop.LocalPut(ctx, node.ID, nameRef, tag.StringValue("sunset.jpg")); err != nil {
		t.Fatalf("LocalPut name: %v", err)
	}
	if _, err := laptop.LocalPut(ctx, node.ID, cameraRef, tag.StringValue("X100V")); err != nil {
		t.Fatalf("LocalPut camera: %v", err)
	}
	waitForTag(t, server, serverSub, node.ID, nameRef, tag.StringValue("sunset.jpg"))

	if _, err := server.LocalPut(ctx, node.ID, ratingRef, tag.NumberValue(5)); err != nil {
		t.Fatalf("LocalPut rating: %v", err)
	}

	// Both peers converge on the full view, cross-origin tags
	// coexisting.
	waitForTag(t, laptop, laptopSub, node.ID, ratingRef, tag.NumberValue(5))
	waitForTag(t, server, serverSub, node.ID, cameraRef, tag.StringValue("X100V"))

	// The server never declared photo; the tag arrived opaque with
	// its value intact.
	serverNode, err := server.Store().Node(ctx, node.ID)
	if err != nil {
		t.Fatalf("Node: %v", err)
	}
	if value, ok := serverNode.Tags.Get(cameraRef, "laptop"); !ok || !value.Equal(tag.StringValue("X100V")) {
		t.Errorf("server photo:camera = %v (present %t), want X100V", value, ok)
	}
}

// TestOfflineEditsCatchUpOverTCP edits on a disconnected peer, then
// connects it to a hub over real TCP and checks the hub replays its
// own history while receiving the offline edits.
func TestOfflineEditsCatchUpOverTCP(t *testing.T) {
	t.Parallel()

	hub := newPeer(t, "hub", "memory", capabilitySet(t, "core"))
	archivist := newPeer(t, "archivist", "sqlite", capabilitySet(t, "core"))

	ctx := context.Background()
	nameRef := tag.TagRef{Namespace: tag.CoreNamespace, Key: "name"}
	archiveRef := tag.TagRef{Namespace: tag.CoreNamespace, Key: "archived"}

	// Both sides edit before any connection exists.
	hubNode, err := hub.Store().CreateNode(ctx, "")
	if err != nil {
		t.Fatalf("CreateNode: %v", err)
	}
	if _, err := hub.LocalPut(ctx, hubNode.ID, nameRef, tag.StringValue("report.pdf")); err != nil {
		t.Fatalf("LocalPut: %v", err)
	}
	if _, err := archivist.LocalPut(ctx, hubNode.ID, archiveRef, tag.BoolValue(true)); err == nil {
		t.Fatal("LocalPut on unknown node succeeded, want error")
	}
	archivistNode, err := archivist.Store().CreateNode(ctx, "")
	if err != nil {
		t.Fatalf("CreateNode: %v", err)
	}
	if _, err := archivist.LocalPut(ctx, archivistNode.ID, nameRef, tag.StringValue("ledger.ods")); err != nil {
		t.Fatalf("LocalPut: %v", err)
	}

	listener, err := transport.NewTCPListener("127.0.0.1:0")
	if err != nil {
		t.Fatalf("NewTCPListener: %v", err)
	}
	serveOn(t, hub, listener)

	hubSub := hub.Subscribe(16)
	defer hubSub.Close()
	archivistSub := archivist.Subscribe(16)
	defer archivistSub.Close()

	dial(t, archivist, &transport.TCPDialer{}, listener.Address())

	// Catch-up flows both directions: the hub's pre-connect history
	// reaches the archivist and vice versa.
	waitForTag(t, archivist, archivistSub, hubNode.ID, nameRef, tag.StringValue("report.pdf"))
	waitForTag(t, hub, hubSub, archivistNode.ID, nameRef, tag.StringValue("ledger.ods"))
}

// TestRelayThroughHubOverWebSocket connects two leaves to a hub over
// WebSocket and checks an edit on one leaf reaches the other through
// the hub, which relays deltas it applied.
func TestRelayThroughHubOverWebSocket(t *testing.T) {
	t.Parallel()

	hub := newPeer(t, "hub", "memory", capabilitySet(t, "core"))
	phone := newPeer(t, "phone", "memory", capabilitySet(t, "core"))
	laptop := newPeer(t, "laptop", "memory", capabilitySet(t, "core"))

	listener, err := transport.NewWebSocketListener("127.0.0.1:0")
	if err != nil {
		t.Fatalf("NewWebSocketListener: %v", err)
	}
	serveOn(t, hub, listener)

	phoneSub := phone.Subscribe(16)
	defer phoneSub.Close()

	dialer := &transport.WebSocketDialer{}
	dial(t, phone, dialer, listener.Address())
	dial(t, laptop, dialer, listener.Address())

	ctx := context.Background()
	node, err := laptop.Store().CreateNode(ctx, "")
	if err != nil {
		t.Fatalf("CreateNode: %v", err)
	}
	nameRef := tag.TagRef{Namespace: tag.CoreNamespace, Key: "name"}
	if _, err := laptop.LocalPut(ctx, node.ID, nameRef, tag.StringValue("notes.md")); err != nil {
		t.Fatalf("LocalPut: %v", err)
	}

	waitForTag(t, phone, phoneSub, node.ID, nameRef, tag.StringValue("notes.md"))
}

// TestEngineRejectsSessionsAfterClose checks the closed-engine path
// surfaces mesh.ErrClosed rather than hanging a dialer.
func TestEngineRejectsSessionsAfterClose(t *testing.T) {
	t.Parallel()

	peer := newPeer(t, "loner", "memory", capabilitySet(t, "core"))
	if err := peer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	network := transport.NewNetwork()
	listener, err := network.Listen("loner")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer listener.Close()
	go func() {
		conn, err := network.DialContext(context.Background(), "loner")
		if err == nil {
			conn.Close()
		}
	}()
	conn := testutil.RequireReceive(t, acceptChan(listener), waitTimeout, "waiting for pipe")

	if _, err := peer.Accept(context.Background(), conn); !errors.Is(err, mesh.ErrClosed) {
		t.Errorf("Accept on closed engine = %v, want mesh.ErrClosed", err)
	}
}

func acceptChan(listener transport.Listener) chan transport.Conn {
	c := make(chan transport.Conn, 1)
	go func() {
		conn, err := listener.Accept(context.Background())
		if err == nil {
			c <- conn
		}
	}()
	return c
}
