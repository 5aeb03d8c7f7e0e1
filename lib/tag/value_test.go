// Copyright 2026 The Tagmesh Authors
// SPDX-License-Identifier: Apache-2.0

package tag_test

import (
	"math"
	"testing"

	"github.com/tagmesh/tagmesh/lib/tag"
)

func TestValueKinds(t *testing.T) {
	tests := []struct {
		name string
		v    tag.Value
		want tag.Kind
	}{
		{name: "zero", v: tag.Value{}, want: tag.KindInvalid},
		{name: "string", v: tag.StringValue("a"), want: tag.KindString},
		{name: "number", v: tag.NumberValue(5), want: tag.KindNumber},
		{name: "bool", v: tag.BoolValue(true), want: tag.KindBool},
		{name: "sequence", v: tag.SequenceValue(tag.StringValue("a")), want: tag.KindSequence},
		{name: "mapping", v: tag.MappingValue(nil), want: tag.KindMapping},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.v.Kind(); got != tt.want {
				t.Errorf("Kind() = %v, want %v", got, tt.want)
			}
			if gotZero := tt.v.IsZero(); gotZero != (tt.want == tag.KindInvalid) {
				t.Errorf("IsZero() = %v for kind %v", gotZero, tt.want)
			}
		})
	}
}

func TestValueAccessors(t *testing.T) {
	if got := tag.StringValue("hello").Text(); got != "hello" {
		t.Errorf("Text() = %q, want %q", got, "hello")
	}
	if got := tag.NumberValue(4.5).Number(); got != 4.5 {
		t.Errorf("Number() = %v, want 4.5", got)
	}
	if got := tag.BoolValue(true).Bool(); got != true {
		t.Errorf("Bool() = %v, want true", got)
	}
	items := tag.SequenceValue(tag.NumberValue(1), tag.NumberValue(2)).Items()
	if len(items) != 2 || items[0].Number() != 1 || items[1].Number() != 2 {
		t.Errorf("Items() = %v, want [1 2]", items)
	}
	fields := tag.MappingValue(map[string]tag.Value{"k": tag.BoolValue(false)}).Fields()
	if len(fields) != 1 || fields["k"].Bool() != false {
		t.Errorf("Fields() = %v, want map[k:false]", fields)
	}
}

func TestValueAccessorPanicsOnWrongKind(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("Text() on a number value did not panic")
		}
	}()
	tag.NumberValue(1).Text()
}

func TestValueImmutability(t *testing.T) {
	source := map[string]tag.Value{"a": tag.NumberValue(1)}
	v := tag.MappingValue(source)
	source["b"] = tag.NumberValue(2)
	if len(v.Fields()) != 1 {
		t.Error("MappingValue did not copy its input")
	}

	got := v.Fields()
	got["c"] = tag.NumberValue(3)
	if len(v.Fields()) != 1 {
		t.Error("Fields() did not return a copy")
	}

	items := []tag.Value{tag.StringValue("x")}
	seq := tag.SequenceValue(items...)
	items[0] = tag.StringValue("y")
	if seq.Items()[0].Text() != "x" {
		t.Error("SequenceValue did not copy its input")
	}
}

func TestValueEqual(t *testing.T) {
	mapping := func(k string, v tag.Value) tag.Value {
		return tag.MappingValue(map[string]tag.Value{k: v})
	}
	tests := []struct {
		name string
		a, b tag.Value
		want bool
	}{
		{name: "equal-strings", a: tag.StringValue("x"), b: tag.StringValue("x"), want: true},
		{name: "unequal-strings", a: tag.StringValue("x"), b: tag.StringValue("y"), want: false},
		{name: "kind-mismatch", a: tag.StringValue("1"), b: tag.NumberValue(1), want: false},
		{name: "equal-numbers", a: tag.NumberValue(2.5), b: tag.NumberValue(2.5), want: true},
		{name: "equal-bools", a: tag.BoolValue(true), b: tag.BoolValue(true), want: true},
		{
			name: "equal-sequences",
			a:    tag.SequenceValue(tag.StringValue("a"), tag.NumberValue(1)),
			b:    tag.SequenceValue(tag.StringValue("a"), tag.NumberValue(1)),
			want: true,
		},
		{
			name: "sequence-order-matters",
			a:    tag.SequenceValue(tag.StringValue("a"), tag.StringValue("b")),
			b:    tag.SequenceValue(tag.StringValue("b"), tag.StringValue("a")),
			want: false,
		},
		{
			name: "sequence-length-differs",
			a:    tag.SequenceValue(tag.StringValue("a")),
			b:    tag.SequenceValue(tag.StringValue("a"), tag.StringValue("a")),
			want: false,
		},
		{name: "equal-mappings", a: mapping("k", tag.NumberValue(1)), b: mapping("k", tag.NumberValue(1)), want: true},
		{name: "mapping-key-differs", a: mapping("k", tag.NumberValue(1)), b: mapping("j", tag.NumberValue(1)), want: false},
		{name: "zero-values", a: tag.Value{}, b: tag.Value{}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Equal(tt.b); got != tt.want {
				t.Errorf("Equal() = %v, want %v", got, tt.want)
			}
			if got := tt.b.Equal(tt.a); got != tt.want {
				t.Errorf("Equal() reversed = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValueString(t *testing.T) {
	tests := []struct {
		name string
		v    tag.Value
		want string
	}{
		{name: "string", v: tag.StringValue("hi"), want: `"hi"`},
		{name: "integral-number", v: tag.NumberValue(42), want: "42"},
		{name: "fractional-number", v: tag.NumberValue(0.5), want: "0.5"},
		{name: "bool", v: tag.BoolValue(false), want: "false"},
		{
			name: "sequence",
			v:    tag.SequenceValue(tag.StringValue("a"), tag.NumberValue(1)),
			want: `["a", 1]`,
		},
		{
			name: "mapping-sorted",
			v: tag.MappingValue(map[string]tag.Value{
				"b": tag.NumberValue(2),
				"a": tag.NumberValue(1),
			}),
			want: `{"a": 1, "b": 2}`,
		},
		{name: "zero", v: tag.Value{}, want: "<invalid>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.v.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFromInterfaceRoundTrip(t *testing.T) {
	original := tag.MappingValue(map[string]tag.Value{
		"title": tag.StringValue("Q3 Report"),
		"stars": tag.NumberValue(5),
		"draft": tag.BoolValue(true),
		"tags":  tag.SequenceValue(tag.StringValue("vacation"), tag.StringValue("2023")),
	})
	converted, err := tag.FromInterface(original.Interface())
	if err != nil {
		t.Fatalf("FromInterface: %v", err)
	}
	if !converted.Equal(original) {
		t.Errorf("round trip mismatch:\n got %s\nwant %s", converted, original)
	}
}

func TestFromInterfaceIntegerTypes(t *testing.T) {
	// The CBOR decoder hands back int64 and uint64 for wire integers;
	// both must land as numbers.
	for _, input := range []any{int64(7), uint64(7), int(7), float64(7)} {
		v, err := tag.FromInterface(input)
		if err != nil {
			t.Fatalf("FromInterface(%T): %v", input, err)
		}
		if v.Kind() != tag.KindNumber || v.Number() != 7 {
			t.Errorf("FromInterface(%T) = %s, want 7", input, v)
		}
	}
}

func TestFromInterfaceRejects(t *testing.T) {
	tests := []struct {
		name  string
		input any
	}{
		{name: "null", input: nil},
		{name: "nan", input: math.NaN()},
		{name: "positive-infinity", input: math.Inf(1)},
		{name: "nested-null", input: []any{"a", nil}},
		{name: "struct", input: struct{ X int }{X: 1}},
		{name: "byte-slice", input: []byte("raw")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tag.FromInterface(tt.input); err == nil {
				t.Errorf("FromInterface(%#v) succeeded, want error", tt.input)
			}
		})
	}
}
