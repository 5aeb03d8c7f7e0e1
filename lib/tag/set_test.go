// Copyright 2026 The Tagmesh Authors
// SPDX-License-Identifier: Apache-2.0

package tag_test

import (
	"testing"

	"github.com/tagmesh/tagmesh/lib/tag"
)

func mustPut(t *testing.T, set *tag.TagSet, namespace, key string, origin tag.Origin, value tag.Value) {
	t.Helper()
	err := set.Put(tag.Tag{Namespace: namespace, Key: key, Origin: origin, Value: value})
	if err != nil {
		t.Fatalf("Put(%s:%s@%s): %v", namespace, key, origin, err)
	}
}

func TestTagSetPutOverwritesSameOrigin(t *testing.T) {
	set := tag.NewTagSet()
	ref := tag.TagRef{Namespace: "core", Key: "title"}
	mustPut(t, set, "core", "title", "server-a", tag.StringValue("first"))
	mustPut(t, set, "core", "title", "server-a", tag.StringValue("second"))

	if set.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", set.Len())
	}
	got, ok := set.Get(ref, "server-a")
	if !ok {
		t.Fatal("Get() missing after Put")
	}
	if got.Text() != "second" {
		t.Errorf("Get() = %s, want %q", got, "second")
	}
}

func TestTagSetRetainsAllOrigins(t *testing.T) {
	set := tag.NewTagSet()
	ref := tag.TagRef{Namespace: "core", Key: "title"}
	mustPut(t, set, "core", "title", "server-b", tag.StringValue("Quarterly Report"))
	mustPut(t, set, "core", "title", "server-a", tag.StringValue("Q3 Report"))

	if set.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", set.Len())
	}
	tags := set.TagsFor(ref)
	if len(tags) != 2 {
		t.Fatalf("TagsFor() returned %d tags, want 2", len(tags))
	}
	if tags[0].Origin != "server-a" || tags[1].Origin != "server-b" {
		t.Errorf("TagsFor() order = [%s %s], want origins sorted", tags[0].Origin, tags[1].Origin)
	}
}

func TestTagSetRemove(t *testing.T) {
	set := tag.NewTagSet()
	ref := tag.TagRef{Namespace: "photo", Key: "rating"}
	mustPut(t, set, "photo", "rating", "server-a", tag.NumberValue(5))
	mustPut(t, set, "photo", "rating", "server-b", tag.NumberValue(3))

	if !set.Remove(ref, "server-a") {
		t.Fatal("Remove() = false for present assertion")
	}
	if set.Remove(ref, "server-a") {
		t.Error("Remove() = true for absent assertion")
	}
	if _, ok := set.Get(ref, "server-b"); !ok {
		t.Error("Remove() of one origin dropped another origin's assertion")
	}
	if set.Len() != 1 {
		t.Errorf("Len() = %d, want 1", set.Len())
	}
}

func TestTagSetAllSorted(t *testing.T) {
	set := tag.NewTagSet()
	mustPut(t, set, "photo", "rating", "b", tag.NumberValue(1))
	mustPut(t, set, "core", "title", "b", tag.StringValue("x"))
	mustPut(t, set, "core", "title", "a", tag.StringValue("y"))
	mustPut(t, set, "core", "name", "a", tag.StringValue("z"))

	all := set.All()
	wantOrder := []string{
		"core:name@a",
		"core:title@a",
		"core:title@b",
		"photo:rating@b",
	}
	if len(all) != len(wantOrder) {
		t.Fatalf("All() returned %d tags, want %d", len(all), len(wantOrder))
	}
	for i, tg := range all {
		got := tg.Ref().String() + "@" + string(tg.Origin)
		if got != wantOrder[i] {
			t.Errorf("All()[%d] = %s, want %s", i, got, wantOrder[i])
		}
	}

	refs := set.Refs()
	if len(refs) != 3 {
		t.Fatalf("Refs() returned %d refs, want 3", len(refs))
	}
	if refs[0].String() != "core:name" || refs[2].String() != "photo:rating" {
		t.Errorf("Refs() order = %v", refs)
	}
}

func TestTagSetCloneIndependent(t *testing.T) {
	set := tag.NewTagSet()
	mustPut(t, set, "core", "title", "a", tag.StringValue("x"))

	clone := set.Clone()
	if !clone.Equal(set) {
		t.Fatal("Clone() not equal to original")
	}
	mustPut(t, clone, "core", "title", "b", tag.StringValue("y"))
	if set.Len() != 1 {
		t.Error("mutating the clone changed the original")
	}
	if clone.Len() != 2 {
		t.Error("clone mutation lost")
	}
}

func TestTagSetEqual(t *testing.T) {
	a := tag.NewTagSet()
	b := tag.NewTagSet()
	if !a.Equal(b) {
		t.Error("two empty sets not equal")
	}

	mustPut(t, a, "core", "title", "x", tag.StringValue("v"))
	if a.Equal(b) {
		t.Error("sets of different size compare equal")
	}

	mustPut(t, b, "core", "title", "x", tag.StringValue("w"))
	if a.Equal(b) {
		t.Error("sets with different values compare equal")
	}

	mustPut(t, b, "core", "title", "x", tag.StringValue("v"))
	if !a.Equal(b) {
		t.Error("identical sets compare unequal")
	}

	var nilSet *tag.TagSet
	if !nilSet.Equal(tag.NewTagSet()) {
		t.Error("nil set not equal to empty set")
	}
	if nilSet.Len() != 0 {
		t.Error("nil set Len() != 0")
	}
}
