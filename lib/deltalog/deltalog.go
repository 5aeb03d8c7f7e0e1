// Copyright 2026 The Tagmesh Authors
// SPDX-License-Identifier: Apache-2.0

// Package deltalog is the append-only journal of deltas a peer has
// applied or originated. It is what lets a reconnecting peer catch
// up: a delta request carries the requester's frontier, and the
// journal replays exactly the suffix the requester has not seen.
//
// Storage is a badger key-value store. Keys are
// "origin\x00node\x00<clock big-endian uint64>", so badger's sorted
// iteration yields deltas grouped by origin, then node, in ascending
// clock order — the order replay promises. Clocks are scoped per
// (node, origin) pair, so the node must be part of the key: one
// origin's first edits of two nodes both carry clock 1. Values are
// the CBOR-encoded delta.
package deltalog

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/tagmesh/tagmesh/lib/codec"
	"github.com/tagmesh/tagmesh/lib/tag"
	"github.com/tagmesh/tagmesh/lib/vclock"
)

// ErrCorrupt reports that a journal entry could not be decoded.
var ErrCorrupt = errors.New("deltalog: corrupt journal entry")

// Config holds the parameters for opening a delta log.
type Config struct {
	// Dir is the journal directory. Created if absent. Ignored when
	// InMemory is set.
	Dir string

	// InMemory keeps the journal in memory only (tests, ephemeral
	// peers). Contents are lost on Close.
	InMemory bool

	// SyncWrites fsyncs every append. Slower, but an applied delta
	// is then never lost to a process crash.
	SyncWrites bool

	// Logger receives operational messages. Nil discards.
	Logger *slog.Logger
}

// Log is an append-only delta journal. Safe for concurrent use.
type Log struct {
	db     *badger.DB
	logger *slog.Logger
}

// record is the stored form of one delta. Values travel as
// generalized any-trees, same as the wire, so tags from namespaces
// this peer cannot interpret journal and replay intact.
type record struct {
	Node     tag.NodeID   `cbor:"node"`
	Clock    uint64       `cbor:"clock"`
	Inserted []recordTag  `cbor:"inserted,omitempty"`
	Removed  []tag.TagRef `cbor:"removed,omitempty"`
}

type recordTag struct {
	Namespace string `cbor:"namespace"`
	Key       string `cbor:"key"`
	Value     any    `cbor:"value"`
}

// Open opens (creating if needed) a delta log.
func Open(cfg Config) (*Log, error) {
	var options badger.Options
	if cfg.InMemory {
		options = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Dir == "" {
			return nil, fmt.Errorf("deltalog: Dir is required")
		}
		if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
			return nil, fmt.Errorf("deltalog: creating journal directory: %w", err)
		}
		options = badger.DefaultOptions(cfg.Dir)
	}
	options = options.WithSyncWrites(cfg.SyncWrites)
	// Badger's own logging is noisy at INFO; operational messages go
	// through our logger instead.
	options = options.WithLogger(nil)

	db, err := badger.Open(options)
	if err != nil {
		return nil, fmt.Errorf("deltalog: opening journal: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Log{db: db, logger: logger}, nil
}

// Append journals one delta. Appending the same (node, origin, clock)
// twice overwrites with identical content, so replayed appends are
// harmless.
func (l *Log) Append(d tag.Delta) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("deltalog: %w", err)
	}
	value, err := codec.Marshal(encodeRecord(d))
	if err != nil {
		return fmt.Errorf("deltalog: encoding delta: %w", err)
	}
	key := journalKey(d.Origin, d.Node, d.Clock)
	err = l.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
	if err != nil {
		return fmt.Errorf("deltalog: appending delta: %w", err)
	}
	return nil
}

// Replay calls fn for every journaled delta strictly after since,
// grouped by origin then node in ascending clock order. A delta is
// after since when its clock exceeds since's (node, origin)
// component. fn returning an error stops the replay and propagates.
func (l *Log) Replay(since vclock.Frontier, fn func(tag.Delta) error) error {
	return l.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		iterator := txn.NewIterator(options)
		defer iterator.Close()

		for iterator.Rewind(); iterator.Valid(); iterator.Next() {
			item := iterator.Item()
			origin, node, clock, err := parseJournalKey(item.Key())
			if err != nil {
				return err
			}
			if clock <= since.Get(node, origin) {
				continue
			}
			var d tag.Delta
			err = item.Value(func(value []byte) error {
				decoded, err := decodeRecord(node, origin, value)
				if err != nil {
					return err
				}
				d = decoded
				return nil
			})
			if err != nil {
				return err
			}
			if err := fn(d); err != nil {
				return err
			}
		}
		return nil
	})
}

// Frontier returns the highest journaled clock per (node, origin)
// pair: exactly what a catch-up request needs to advertise.
func (l *Log) Frontier() (vclock.Frontier, error) {
	frontier := vclock.NewFrontier()
	err := l.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		iterator := txn.NewIterator(options)
		defer iterator.Close()

		for iterator.Rewind(); iterator.Valid(); iterator.Next() {
			origin, node, clock, err := parseJournalKey(iterator.Item().Key())
			if err != nil {
				return err
			}
			frontier.Observe(node, origin, clock)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return frontier, nil
}

// Close closes the journal. Outstanding Replay calls must have
// returned.
func (l *Log) Close() error {
	if err := l.db.Close(); err != nil {
		return fmt.Errorf("deltalog: closing journal: %w", err)
	}
	return nil
}

// nodeTextLength is the length of a NodeID's RFC 4122 string form,
// the fixed-width middle segment of every journal key.
const nodeTextLength = 36

// journalKey builds "origin\x00node\x00<clock big-endian>". Origins
// are printable ASCII with no control bytes and node IDs are RFC 4122
// text, so the NUL separators cannot collide, and big-endian clocks
// sort numerically under bytewise order.
func journalKey(origin tag.Origin, node tag.NodeID, clock uint64) []byte {
	nodeText := node.String()
	key := make([]byte, 0, len(origin)+1+len(nodeText)+1+8)
	key = append(key, origin...)
	key = append(key, 0)
	key = append(key, nodeText...)
	key = append(key, 0)
	key = binary.BigEndian.AppendUint64(key, clock)
	return key
}

func parseJournalKey(key []byte) (tag.Origin, tag.NodeID, uint64, error) {
	if len(key) < 1+1+nodeTextLength+1+8 ||
		key[len(key)-9] != 0 || key[len(key)-(nodeTextLength+10)] != 0 {
		return "", tag.NodeID{}, 0, fmt.Errorf("%w: malformed key %q", ErrCorrupt, key)
	}
	clock := binary.BigEndian.Uint64(key[len(key)-8:])
	node, err := tag.ParseNodeID(string(key[len(key)-9-nodeTextLength : len(key)-9]))
	if err != nil {
		return "", tag.NodeID{}, 0, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	origin := tag.Origin(key[:len(key)-(nodeTextLength+10)])
	if err := origin.Validate(); err != nil {
		return "", tag.NodeID{}, 0, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return origin, node, clock, nil
}

func encodeRecord(d tag.Delta) record {
	r := record{Node: d.Node, Clock: d.Clock, Removed: d.Removed}
	for _, t := range d.Inserted {
		r.Inserted = append(r.Inserted, recordTag{Namespace: t.Namespace, Key: t.Key, Value: t.Value.Interface()})
	}
	return r
}

func decodeRecord(node tag.NodeID, origin tag.Origin, value []byte) (tag.Delta, error) {
	var r record
	if err := codec.Unmarshal(value, &r); err != nil {
		return tag.Delta{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if r.Node != node {
		return tag.Delta{}, fmt.Errorf("%w: key names node %s, record carries %s", ErrCorrupt, node, r.Node)
	}
	d := tag.Delta{Node: r.Node, Origin: origin, Clock: r.Clock, Removed: r.Removed}
	for _, rt := range r.Inserted {
		v, err := tag.FromInterface(rt.Value)
		if err != nil {
			return tag.Delta{}, fmt.Errorf("%w: tag %s:%s: %v", ErrCorrupt, rt.Namespace, rt.Key, err)
		}
		d.Inserted = append(d.Inserted, tag.Tag{Namespace: rt.Namespace, Key: rt.Key, Origin: origin, Value: v})
	}
	if err := d.Validate(); err != nil {
		return tag.Delta{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return d, nil
}
