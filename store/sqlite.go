// Copyright 2026 The Tagmesh Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/tagmesh/tagmesh/lib/codec"
	"github.com/tagmesh/tagmesh/lib/sqlitepool"
	"github.com/tagmesh/tagmesh/lib/tag"
	"github.com/tagmesh/tagmesh/lib/vclock"
)

// sqliteSchema is created on every connection. Tag values are stored
// as CBOR of their generalized any-tree, so values from namespaces
// this peer cannot interpret persist byte-exact.
const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS nodes (
		id          TEXT PRIMARY KEY,
		content_ref TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS tags (
		node_id   TEXT NOT NULL,
		namespace TEXT NOT NULL,
		key       TEXT NOT NULL,
		origin    TEXT NOT NULL,
		value     BLOB NOT NULL,
		PRIMARY KEY (node_id, namespace, key, origin)
	);

	CREATE INDEX IF NOT EXISTS tags_by_namespace ON tags (namespace, node_id);

	CREATE TABLE IF NOT EXISTS clocks (
		node_id TEXT NOT NULL,
		origin  TEXT NOT NULL,
		clock   INTEGER NOT NULL,
		PRIMARY KEY (node_id, origin)
	);
`

// SQLiteConfig holds the parameters for opening a SQLite store.
type SQLiteConfig struct {
	// Path is the database file. Required.
	Path string

	// Origin is the identity stamped on local edits. Required.
	Origin tag.Origin

	// PoolSize is the connection pool size. Zero means the pool
	// default.
	PoolSize int

	// Logger receives operational messages. Nil discards.
	Logger *slog.Logger
}

// SQLite is the durable store. Writes run in IMMEDIATE transactions,
// so a failed apply never leaves partial state; SQLite's single
// writer serializes merges, satisfying the per-node ordering
// requirement.
type SQLite struct {
	pool   *sqlitepool.Pool
	origin tag.Origin
	logger *slog.Logger
}

var _ Store = (*SQLite)(nil)

// NewSQLite opens (creating if needed) a SQLite store.
func NewSQLite(cfg SQLiteConfig) (*SQLite, error) {
	if err := cfg.Origin.Validate(); err != nil {
		return nil, fmt.Errorf("store: origin: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		PoolSize: cfg.PoolSize,
		Logger:   logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, sqliteSchema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	return &SQLite{pool: pool, origin: cfg.Origin, logger: logger}, nil
}

// Origin returns the identity stamped on local edits.
func (s *SQLite) Origin() tag.Origin { return s.origin }

// CreateNode registers a new node with a fresh ID.
func (s *SQLite) CreateNode(ctx context.Context, content string) (tag.Node, error) {
	id, err := tag.NewNodeID()
	if err != nil {
		return tag.Node{}, fmt.Errorf("store: %w", err)
	}
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return tag.Node{}, fmt.Errorf("store: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `INSERT INTO nodes (id, content_ref) VALUES (?, ?)`, &sqlitex.ExecOptions{
		Args: []any{id.String(), content},
	})
	if err != nil {
		return tag.Node{}, fmt.Errorf("store: creating node: %w", err)
	}
	return tag.Node{ID: id, Content: content, Tags: tag.NewTagSet()}, nil
}

// Node returns a snapshot of one node.
func (s *SQLite) Node(ctx context.Context, id tag.NodeID) (tag.Node, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return tag.Node{}, fmt.Errorf("store: %w", err)
	}
	defer s.pool.Put(conn)

	content, found, err := nodeContent(conn, id)
	if err != nil {
		return tag.Node{}, err
	}
	if !found {
		return tag.Node{}, ErrNodeNotFound
	}
	set, err := loadTagSet(conn, id)
	if err != nil {
		return tag.Node{}, err
	}
	return tag.Node{ID: id, Content: content, Tags: set}, nil
}

// Nodes returns every known node ID, sorted. Node IDs are UUID
// strings, so SQL text order matches NodeID.Compare order.
func (s *SQLite) Nodes(ctx context.Context) ([]tag.NodeID, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	defer s.pool.Put(conn)

	var ids []tag.NodeID
	err = sqlitex.Execute(conn, `SELECT id FROM nodes ORDER BY id`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			id, err := tag.ParseNodeID(stmt.ColumnText(0))
			if err != nil {
				return err
			}
			ids = append(ids, id)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("store: listing nodes: %w", err)
	}
	return ids, nil
}

// PutLocal asserts a tag locally and returns the broadcast delta.
func (s *SQLite) PutLocal(ctx context.Context, id tag.NodeID, ref tag.TagRef, value tag.Value) (tag.Delta, error) {
	d := tag.Delta{
		Node:   id,
		Origin: s.origin,
		Inserted: []tag.Tag{
			{Namespace: ref.Namespace, Key: ref.Key, Origin: s.origin, Value: value},
		},
	}
	return s.localEdit(ctx, d)
}

// RemoveLocal retracts this origin's assertion and returns the
// broadcast delta.
func (s *SQLite) RemoveLocal(ctx context.Context, id tag.NodeID, ref tag.TagRef) (tag.Delta, error) {
	d := tag.Delta{
		Node:    id,
		Origin:  s.origin,
		Removed: []tag.TagRef{ref},
	}
	return s.localEdit(ctx, d)
}

// localEdit fills in the next clock for the store's origin, applies
// the edit, and advances the clock, all in one transaction.
func (s *SQLite) localEdit(ctx context.Context, d tag.Delta) (_ tag.Delta, err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return tag.Delta{}, fmt.Errorf("store: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return tag.Delta{}, fmt.Errorf("store: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	_, found, err := nodeContent(conn, d.Node)
	if err != nil {
		return tag.Delta{}, err
	}
	if !found {
		return tag.Delta{}, ErrNodeNotFound
	}

	seen, err := originClock(conn, d.Node, s.origin)
	if err != nil {
		return tag.Delta{}, err
	}
	d.Clock = seen + 1
	if err := d.Validate(); err != nil {
		return tag.Delta{}, fmt.Errorf("store: %w", err)
	}
	if err := applyEdits(conn, d); err != nil {
		return tag.Delta{}, err
	}
	if err := setOriginClock(conn, d.Node, s.origin, d.Clock); err != nil {
		return tag.Delta{}, err
	}
	return d, nil
}

// ApplyDelta merges a replicated delta per the package merge rules.
func (s *SQLite) ApplyDelta(ctx context.Context, d tag.Delta) (_ bool, err error) {
	if err := d.Validate(); err != nil {
		return false, fmt.Errorf("store: %w", err)
	}
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return false, fmt.Errorf("store: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return false, fmt.Errorf("store: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	seen, err := originClock(conn, d.Node, d.Origin)
	if err != nil {
		return false, err
	}
	if seen >= d.Clock {
		s.logger.Debug("discarded stale delta",
			"node", d.Node.String(),
			"origin", string(d.Origin),
			"clock", d.Clock,
			"seen", seen,
		)
		return false, nil
	}

	// Implicit node creation: tags can arrive before content.
	err = sqlitex.Execute(conn, `INSERT OR IGNORE INTO nodes (id) VALUES (?)`, &sqlitex.ExecOptions{
		Args: []any{d.Node.String()},
	})
	if err != nil {
		return false, fmt.Errorf("store: creating node: %w", err)
	}
	if err := applyEdits(conn, d); err != nil {
		return false, err
	}
	if err := setOriginClock(conn, d.Node, d.Origin, d.Clock); err != nil {
		return false, err
	}
	return true, nil
}

// Clock returns a copy of the node's version vector.
func (s *SQLite) Clock(ctx context.Context, id tag.NodeID) (vclock.Vector, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	defer s.pool.Put(conn)

	vector := vclock.New()
	err = sqlitex.Execute(conn, `SELECT origin, clock FROM clocks WHERE node_id = ?`, &sqlitex.ExecOptions{
		Args: []any{id.String()},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			vector.Observe(tag.Origin(stmt.ColumnText(0)), uint64(stmt.ColumnInt64(1)))
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("store: loading clock: %w", err)
	}
	return vector, nil
}

// Resolve returns the node's presentation view.
func (s *SQLite) Resolve(ctx context.Context, id tag.NodeID, policy tag.ReadPolicy) ([]tag.Tag, error) {
	node, err := s.Node(ctx, id)
	if err != nil {
		return nil, err
	}
	return tag.Resolve(node.Tags, policy), nil
}

// Find returns the IDs of nodes matching the query, sorted. The
// namespace filter narrows in SQL; the remaining predicates need the
// resolved view, which is computed in Go.
func (s *SQLite) Find(ctx context.Context, q Query) ([]tag.NodeID, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	defer s.pool.Put(conn)

	query := `SELECT id FROM nodes ORDER BY id`
	args := []any{}
	if q.Namespace != "" {
		query = `SELECT DISTINCT node_id FROM tags WHERE namespace = ? ORDER BY node_id`
		args = append(args, q.Namespace)
	}

	var candidates []tag.NodeID
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			id, err := tag.ParseNodeID(stmt.ColumnText(0))
			if err != nil {
				return err
			}
			candidates = append(candidates, id)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("store: query: %w", err)
	}

	var matched []tag.NodeID
	for _, id := range candidates {
		set, err := loadTagSet(conn, id)
		if err != nil {
			return nil, err
		}
		if q.matches(set) {
			matched = append(matched, id)
		}
	}
	return q.page(matched), nil
}

// Close closes the connection pool.
func (s *SQLite) Close() error {
	return s.pool.Close()
}

// applyEdits performs the delta's insertions and removals. The caller
// holds the transaction and has already passed the staleness check.
func applyEdits(conn *sqlite.Conn, d tag.Delta) error {
	for _, t := range d.Inserted {
		value, err := codec.Marshal(t.Value.Interface())
		if err != nil {
			return fmt.Errorf("store: encoding tag value: %w", err)
		}
		err = sqlitex.Execute(conn, `
			INSERT INTO tags (node_id, namespace, key, origin, value)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (node_id, namespace, key, origin) DO UPDATE SET value = excluded.value`,
			&sqlitex.ExecOptions{
				Args: []any{d.Node.String(), t.Namespace, t.Key, string(t.Origin), value},
			})
		if err != nil {
			return fmt.Errorf("store: inserting tag %s: %w", t.Ref(), err)
		}
	}
	for _, ref := range d.Removed {
		err := sqlitex.Execute(conn, `
			DELETE FROM tags WHERE node_id = ? AND namespace = ? AND key = ? AND origin = ?`,
			&sqlitex.ExecOptions{
				Args: []any{d.Node.String(), ref.Namespace, ref.Key, string(d.Origin)},
			})
		if err != nil {
			return fmt.Errorf("store: removing tag %s: %w", ref, err)
		}
	}
	return nil
}

// loadTagSet reads a node's complete tag set.
func loadTagSet(conn *sqlite.Conn, id tag.NodeID) (*tag.TagSet, error) {
	set := tag.NewTagSet()
	err := sqlitex.Execute(conn, `SELECT namespace, key, origin, value FROM tags WHERE node_id = ?`, &sqlitex.ExecOptions{
		Args: []any{id.String()},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			encoded := make([]byte, stmt.ColumnLen(3))
			stmt.ColumnBytes(3, encoded)
			var raw any
			if err := codec.Unmarshal(encoded, &raw); err != nil {
				return fmt.Errorf("decoding tag value: %w", err)
			}
			value, err := tag.FromInterface(raw)
			if err != nil {
				return err
			}
			return set.Put(tag.Tag{
				Namespace: stmt.ColumnText(0),
				Key:       stmt.ColumnText(1),
				Origin:    tag.Origin(stmt.ColumnText(2)),
				Value:     value,
			})
		},
	})
	if err != nil {
		return nil, fmt.Errorf("store: loading tags for %s: %w", id, err)
	}
	return set, nil
}

// nodeContent reads a node's content ref, reporting whether the node
// exists.
func nodeContent(conn *sqlite.Conn, id tag.NodeID) (string, bool, error) {
	var content string
	var found bool
	err := sqlitex.Execute(conn, `SELECT content_ref FROM nodes WHERE id = ?`, &sqlitex.ExecOptions{
		Args: []any{id.String()},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			content = stmt.ColumnText(0)
			found = true
			return nil
		},
	})
	if err != nil {
		return "", false, fmt.Errorf("store: reading node %s: %w", id, err)
	}
	return content, found, nil
}

// originClock reads one component of a node's version vector.
func originClock(conn *sqlite.Conn, id tag.NodeID, origin tag.Origin) (uint64, error) {
	var clock uint64
	err := sqlitex.Execute(conn, `SELECT clock FROM clocks WHERE node_id = ? AND origin = ?`, &sqlitex.ExecOptions{
		Args: []any{id.String(), string(origin)},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			clock = uint64(stmt.ColumnInt64(0))
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("store: reading clock: %w", err)
	}
	return clock, nil
}

// setOriginClock advances one component of a node's version vector.
func setOriginClock(conn *sqlite.Conn, id tag.NodeID, origin tag.Origin, clock uint64) error {
	err := sqlitex.Execute(conn, `
		INSERT INTO clocks (node_id, origin, clock) VALUES (?, ?, ?)
		ON CONFLICT (node_id, origin) DO UPDATE SET clock = excluded.clock`,
		&sqlitex.ExecOptions{
			Args: []any{id.String(), string(origin), int64(clock)},
		})
	if err != nil {
		return fmt.Errorf("store: advancing clock: %w", err)
	}
	return nil
}
