// Copyright 2026 The Tagmesh Authors
// SPDX-License-Identifier: Apache-2.0

package tag

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Kind discriminates the representable value shapes.
type Kind uint8

const (
	// KindInvalid is the kind of the zero Value. It is never stored in
	// a TagSet and never travels on the wire.
	KindInvalid Kind = iota
	KindString
	KindNumber
	KindBool
	KindSequence
	KindMapping
)

// String returns the kind name, satisfying fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindSequence:
		return "sequence"
	case KindMapping:
		return "mapping"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is a generalized tag value: a string, a number, a boolean, an
// ordered sequence of values, or a string-keyed mapping of values.
// The shape mirrors what the document format can express, so any
// value is representable in both the textual and the wire encoding.
//
// Values are immutable. Constructors copy their container arguments
// and accessors return copies, so a Value handed to a TagSet cannot
// be changed behind the set's back.
//
// The zero Value has KindInvalid and is not a legal tag value.
type Value struct {
	kind   Kind
	str    string
	num    float64
	b      bool
	seq    []Value
	fields map[string]Value
}

// StringValue returns a Value holding a string.
func StringValue(s string) Value {
	return Value{kind: KindString, str: s}
}

// NumberValue returns a Value holding a number. Tag numbers are IEEE
// 754 doubles, matching the document format's number grammar.
func NumberValue(n float64) Value {
	return Value{kind: KindNumber, num: n}
}

// BoolValue returns a Value holding a boolean.
func BoolValue(b bool) Value {
	return Value{kind: KindBool, b: b}
}

// SequenceValue returns a Value holding an ordered sequence. The
// items are copied.
func SequenceValue(items ...Value) Value {
	copied := make([]Value, len(items))
	copy(copied, items)
	return Value{kind: KindSequence, seq: copied}
}

// MappingValue returns a Value holding a string-keyed mapping. The
// fields are copied.
func MappingValue(fields map[string]Value) Value {
	copied := make(map[string]Value, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	return Value{kind: KindMapping, fields: copied}
}

// Kind returns the value's kind.
func (v Value) Kind() Kind { return v.kind }

// IsZero reports whether this is the zero (invalid) Value.
func (v Value) IsZero() bool { return v.kind == KindInvalid }

// Text returns the string payload. It panics unless the kind is
// KindString.
func (v Value) Text() string {
	if v.kind != KindString {
		panic("tag: Text called on " + v.kind.String() + " value")
	}
	return v.str
}

// Number returns the numeric payload. It panics unless the kind is
// KindNumber.
func (v Value) Number() float64 {
	if v.kind != KindNumber {
		panic("tag: Number called on " + v.kind.String() + " value")
	}
	return v.num
}

// Bool returns the boolean payload. It panics unless the kind is
// KindBool.
func (v Value) Bool() bool {
	if v.kind != KindBool {
		panic("tag: Bool called on " + v.kind.String() + " value")
	}
	return v.b
}

// Items returns a copy of the sequence payload. It panics unless the
// kind is KindSequence.
func (v Value) Items() []Value {
	if v.kind != KindSequence {
		panic("tag: Items called on " + v.kind.String() + " value")
	}
	copied := make([]Value, len(v.seq))
	copy(copied, v.seq)
	return copied
}

// Fields returns a copy of the mapping payload. It panics unless the
// kind is KindMapping.
func (v Value) Fields() map[string]Value {
	if v.kind != KindMapping {
		panic("tag: Fields called on " + v.kind.String() + " value")
	}
	copied := make(map[string]Value, len(v.fields))
	for k, f := range v.fields {
		copied[k] = f
	}
	return copied
}

// Equal reports structural equality. Sequences compare element by
// element in order; mappings compare per key regardless of insertion
// order; numbers compare with ==, so NaN never equals anything
// (codecs reject NaN before it can enter a set).
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindInvalid:
		return true
	case KindString:
		return v.str == other.str
	case KindNumber:
		return v.num == other.num
	case KindBool:
		return v.b == other.b
	case KindSequence:
		if len(v.seq) != len(other.seq) {
			return false
		}
		for i := range v.seq {
			if !v.seq[i].Equal(other.seq[i]) {
				return false
			}
		}
		return true
	case KindMapping:
		if len(v.fields) != len(other.fields) {
			return false
		}
		for k, f := range v.fields {
			of, ok := other.fields[k]
			if !ok || !f.Equal(of) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// String renders the value for logs and diagnostics: strings quoted,
// sequences bracketed, mapping keys sorted. Not a serialization
// format; the document codec owns that.
func (v Value) String() string {
	switch v.kind {
	case KindInvalid:
		return "<invalid>"
	case KindString:
		return strconv.Quote(v.str)
	case KindNumber:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindSequence:
		var sb strings.Builder
		sb.WriteByte('[')
		for i, item := range v.seq {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(item.String())
		}
		sb.WriteByte(']')
		return sb.String()
	case KindMapping:
		keys := make([]string, 0, len(v.fields))
		for k := range v.fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var sb strings.Builder
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(strconv.Quote(k))
			sb.WriteString(": ")
			sb.WriteString(v.fields[k].String())
		}
		sb.WriteByte('}')
		return sb.String()
	default:
		return "<" + v.kind.String() + ">"
	}
}

// Interface converts the value to the equivalent any-tree: string,
// float64, bool, []any, or map[string]any. The zero Value converts to
// nil. This is the bridge to encoding/json and the CBOR codec, both
// of which understand exactly these shapes.
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindSequence:
		items := make([]any, len(v.seq))
		for i, item := range v.seq {
			items[i] = item.Interface()
		}
		return items
	case KindMapping:
		fields := make(map[string]any, len(v.fields))
		for k, f := range v.fields {
			fields[k] = f.Interface()
		}
		return fields
	default:
		return nil
	}
}

// FromInterface converts an any-tree produced by encoding/json or the
// CBOR codec into a Value. Accepted shapes: string, bool, any Go
// integer or float type, []any, and map[string]any. Nulls have no tag
// value representation and are rejected, as are NaN and infinities
// (the document format cannot express them).
func FromInterface(x any) (Value, error) {
	switch t := x.(type) {
	case string:
		return StringValue(t), nil
	case bool:
		return BoolValue(t), nil
	case float64:
		return numberFrom(t)
	case float32:
		return numberFrom(float64(t))
	case int:
		return NumberValue(float64(t)), nil
	case int8:
		return NumberValue(float64(t)), nil
	case int16:
		return NumberValue(float64(t)), nil
	case int32:
		return NumberValue(float64(t)), nil
	case int64:
		return NumberValue(float64(t)), nil
	case uint:
		return NumberValue(float64(t)), nil
	case uint8:
		return NumberValue(float64(t)), nil
	case uint16:
		return NumberValue(float64(t)), nil
	case uint32:
		return NumberValue(float64(t)), nil
	case uint64:
		return NumberValue(float64(t)), nil
	case []any:
		items := make([]Value, len(t))
		for i, raw := range t {
			item, err := FromInterface(raw)
			if err != nil {
				return Value{}, fmt.Errorf("sequence index %d: %w", i, err)
			}
			items[i] = item
		}
		return Value{kind: KindSequence, seq: items}, nil
	case map[string]any:
		fields := make(map[string]Value, len(t))
		for k, raw := range t {
			field, err := FromInterface(raw)
			if err != nil {
				return Value{}, fmt.Errorf("field %q: %w", k, err)
			}
			fields[k] = field
		}
		return Value{kind: KindMapping, fields: fields}, nil
	case nil:
		return Value{}, fmt.Errorf("null has no tag value representation")
	default:
		return Value{}, fmt.Errorf("unsupported value type %T", x)
	}
}

func numberFrom(f float64) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{}, fmt.Errorf("number %v is not representable", f)
	}
	return NumberValue(f), nil
}
