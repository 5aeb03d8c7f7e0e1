// Copyright 2026 The Tagmesh Authors
// SPDX-License-Identifier: Apache-2.0

package tag_test

import (
	"testing"

	"github.com/tagmesh/tagmesh/lib/tag"
)

func newNodeID(t *testing.T) tag.NodeID {
	t.Helper()
	id, err := tag.NewNodeID()
	if err != nil {
		t.Fatalf("NewNodeID: %v", err)
	}
	return id
}

func TestDeltaValidate(t *testing.T) {
	node := newNodeID(t)
	valid := tag.Delta{
		Node:   node,
		Origin: "server-a",
		Clock:  1,
		Inserted: []tag.Tag{
			{Namespace: "core", Key: "title", Origin: "server-a", Value: tag.StringValue("x")},
		},
		Removed: []tag.TagRef{{Namespace: "photo", Key: "rating"}},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() on valid delta: %v", err)
	}

	empty := tag.Delta{Node: node, Origin: "server-a", Clock: 3}
	if err := empty.Validate(); err != nil {
		t.Fatalf("Validate() on empty edit list: %v", err)
	}

	tests := []struct {
		name  string
		delta tag.Delta
	}{
		{name: "zero-node", delta: tag.Delta{Origin: "a", Clock: 1}},
		{name: "zero-clock", delta: tag.Delta{Node: node, Origin: "a"}},
		{name: "empty-origin", delta: tag.Delta{Node: node, Clock: 1}},
		{
			name: "foreign-origin-insert",
			delta: tag.Delta{
				Node: node, Origin: "server-a", Clock: 1,
				Inserted: []tag.Tag{{Namespace: "core", Key: "k", Origin: "server-b", Value: tag.BoolValue(true)}},
			},
		},
		{
			name: "invalid-removed-ref",
			delta: tag.Delta{
				Node: node, Origin: "server-a", Clock: 1,
				Removed: []tag.TagRef{{Namespace: "BAD", Key: "k"}},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.delta.Validate(); err == nil {
				t.Errorf("Validate() succeeded, want error")
			}
		})
	}
}

func TestDeltaApply(t *testing.T) {
	node := newNodeID(t)
	set := tag.NewTagSet()
	mustPut(t, set, "core", "title", "server-a", tag.StringValue("old"))
	mustPut(t, set, "core", "title", "server-b", tag.StringValue("other"))
	mustPut(t, set, "photo", "rating", "server-a", tag.NumberValue(2))

	delta := tag.Delta{
		Node:   node,
		Origin: "server-a",
		Clock:  2,
		Inserted: []tag.Tag{
			{Namespace: "core", Key: "title", Origin: "server-a", Value: tag.StringValue("new")},
		},
		Removed: []tag.TagRef{
			{Namespace: "photo", Key: "rating"},
			{Namespace: "photo", Key: "absent"},
		},
	}
	if err := delta.Apply(set); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	title := tag.TagRef{Namespace: "core", Key: "title"}
	got, _ := set.Get(title, "server-a")
	if got.Text() != "new" {
		t.Errorf("own insertion did not overwrite: got %s", got)
	}
	other, _ := set.Get(title, "server-b")
	if other.Text() != "other" {
		t.Errorf("apply touched another origin's assertion: got %s", other)
	}
	if _, ok := set.Get(tag.TagRef{Namespace: "photo", Key: "rating"}, "server-a"); ok {
		t.Error("removal did not delete the origin's assertion")
	}
}
