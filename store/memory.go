// Copyright 2026 The Tagmesh Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/tagmesh/tagmesh/lib/tag"
	"github.com/tagmesh/tagmesh/lib/vclock"
)

// MemoryConfig holds the parameters for an in-memory store.
type MemoryConfig struct {
	// Origin is the identity stamped on local edits. Required.
	Origin tag.Origin

	// Logger receives operational messages. Nil discards.
	Logger *slog.Logger
}

// Memory is the in-memory store. The node map is guarded by a
// read-write mutex; each node carries its own mutex, so merges for
// different nodes run fully in parallel while one node's merges
// serialize.
type Memory struct {
	origin tag.Origin
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	nodes  map[tag.NodeID]*memoryNode
}

type memoryNode struct {
	mu      sync.Mutex
	content string
	tags    *tag.TagSet
	clock   vclock.Vector
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory(cfg MemoryConfig) (*Memory, error) {
	if err := cfg.Origin.Validate(); err != nil {
		return nil, fmt.Errorf("store: origin: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Memory{
		origin: cfg.Origin,
		logger: logger,
		nodes:  make(map[tag.NodeID]*memoryNode),
	}, nil
}

// Origin returns the identity stamped on local edits.
func (m *Memory) Origin() tag.Origin { return m.origin }

// CreateNode registers a new node with a fresh ID.
func (m *Memory) CreateNode(ctx context.Context, content string) (tag.Node, error) {
	id, err := tag.NewNodeID()
	if err != nil {
		return tag.Node{}, fmt.Errorf("store: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return tag.Node{}, ErrClosed
	}
	m.nodes[id] = &memoryNode{
		content: content,
		tags:    tag.NewTagSet(),
		clock:   vclock.New(),
	}
	return tag.Node{ID: id, Content: content, Tags: tag.NewTagSet()}, nil
}

// Node returns a snapshot of one node.
func (m *Memory) Node(ctx context.Context, id tag.NodeID) (tag.Node, error) {
	node, err := m.lookup(id)
	if err != nil {
		return tag.Node{}, err
	}
	node.mu.Lock()
	defer node.mu.Unlock()
	return tag.Node{ID: id, Content: node.content, Tags: node.tags.Clone()}, nil
}

// Nodes returns every known node ID, sorted.
func (m *Memory) Nodes(ctx context.Context) ([]tag.NodeID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	ids := make([]tag.NodeID, 0, len(m.nodes))
	for id := range m.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Compare(ids[j]) < 0 })
	return ids, nil
}

// PutLocal asserts a tag locally and returns the broadcast delta.
func (m *Memory) PutLocal(ctx context.Context, id tag.NodeID, ref tag.TagRef, value tag.Value) (tag.Delta, error) {
	node, err := m.lookup(id)
	if err != nil {
		return tag.Delta{}, err
	}
	node.mu.Lock()
	defer node.mu.Unlock()

	d := tag.Delta{
		Node:   id,
		Origin: m.origin,
		Clock:  node.clock.Next(m.origin),
		Inserted: []tag.Tag{
			{Namespace: ref.Namespace, Key: ref.Key, Origin: m.origin, Value: value},
		},
	}
	if err := d.Validate(); err != nil {
		return tag.Delta{}, fmt.Errorf("store: %w", err)
	}
	if err := d.Apply(node.tags); err != nil {
		return tag.Delta{}, fmt.Errorf("store: %w", err)
	}
	node.clock.Observe(m.origin, d.Clock)
	return d, nil
}

// RemoveLocal retracts this origin's assertion and returns the
// broadcast delta.
func (m *Memory) RemoveLocal(ctx context.Context, id tag.NodeID, ref tag.TagRef) (tag.Delta, error) {
	node, err := m.lookup(id)
	if err != nil {
		return tag.Delta{}, err
	}
	node.mu.Lock()
	defer node.mu.Unlock()

	d := tag.Delta{
		Node:    id,
		Origin:  m.origin,
		Clock:   node.clock.Next(m.origin),
		Removed: []tag.TagRef{ref},
	}
	if err := d.Validate(); err != nil {
		return tag.Delta{}, fmt.Errorf("store: %w", err)
	}
	if err := d.Apply(node.tags); err != nil {
		return tag.Delta{}, fmt.Errorf("store: %w", err)
	}
	node.clock.Observe(m.origin, d.Clock)
	return d, nil
}

// ApplyDelta merges a replicated delta per the package merge rules.
func (m *Memory) ApplyDelta(ctx context.Context, d tag.Delta) (bool, error) {
	if err := d.Validate(); err != nil {
		return false, fmt.Errorf("store: %w", err)
	}
	node, err := m.lookupOrCreate(d.Node)
	if err != nil {
		return false, err
	}
	node.mu.Lock()
	defer node.mu.Unlock()

	if node.clock.Get(d.Origin) >= d.Clock {
		m.logger.Debug("discarded stale delta",
			"node", d.Node.String(),
			"origin", string(d.Origin),
			"clock", d.Clock,
			"seen", node.clock.Get(d.Origin),
		)
		return false, nil
	}
	if err := d.Apply(node.tags); err != nil {
		return false, fmt.Errorf("store: %w", err)
	}
	node.clock.Observe(d.Origin, d.Clock)
	return true, nil
}

// Clock returns a copy of the node's version vector.
func (m *Memory) Clock(ctx context.Context, id tag.NodeID) (vclock.Vector, error) {
	node, err := m.lookup(id)
	if err != nil {
		if err == ErrNodeNotFound {
			return vclock.New(), nil
		}
		return nil, err
	}
	node.mu.Lock()
	defer node.mu.Unlock()
	return node.clock.Clone(), nil
}

// Resolve returns the node's presentation view.
func (m *Memory) Resolve(ctx context.Context, id tag.NodeID, policy tag.ReadPolicy) ([]tag.Tag, error) {
	node, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	node.mu.Lock()
	defer node.mu.Unlock()
	return tag.Resolve(node.tags, policy), nil
}

// Find returns the IDs of nodes matching the query, sorted.
func (m *Memory) Find(ctx context.Context, q Query) ([]tag.NodeID, error) {
	ids, err := m.Nodes(ctx)
	if err != nil {
		return nil, err
	}
	var matched []tag.NodeID
	for _, id := range ids {
		node, err := m.lookup(id)
		if err != nil {
			continue
		}
		node.mu.Lock()
		ok := q.matches(node.tags)
		node.mu.Unlock()
		if ok {
			matched = append(matched, id)
		}
	}
	return q.page(matched), nil
}

// Close marks the store closed. Idempotent.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *Memory) lookup(id tag.NodeID) (*memoryNode, error) {
	if id.IsZero() {
		return nil, fmt.Errorf("store: zero node ID")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	node, ok := m.nodes[id]
	if !ok {
		return nil, ErrNodeNotFound
	}
	return node, nil
}

func (m *Memory) lookupOrCreate(id tag.NodeID) (*memoryNode, error) {
	if id.IsZero() {
		return nil, fmt.Errorf("store: zero node ID")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	node, ok := m.nodes[id]
	if !ok {
		node = &memoryNode{tags: tag.NewTagSet(), clock: vclock.New()}
		m.nodes[id] = node
	}
	return node, nil
}
