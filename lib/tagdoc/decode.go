// Copyright 2026 The Tagmesh Authors
// SPDX-License-Identifier: Apache-2.0

package tagdoc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/tidwall/jsonc"

	"github.com/tagmesh/tagmesh/lib/tag"
)

// DefaultMaxDepth is the nesting limit applied by Decode. Hand-written
// tag values are rarely more than a few levels deep; the limit guards
// against pathological input, not legitimate use.
const DefaultMaxDepth = 32

// Decode parses a tag document and returns a TagSet attributing every
// assertion to origin. Errors are *SchemaError except for an invalid
// origin argument, which is a caller bug rather than a document
// problem.
func Decode(data []byte, origin tag.Origin) (*tag.TagSet, error) {
	return DecodeDepth(data, origin, DefaultMaxDepth)
}

// DecodeDepth is Decode with an explicit nesting limit: values nested
// more than maxDepth containers deep are rejected with ErrCodeDepth.
func DecodeDepth(data []byte, origin tag.Origin, maxDepth int) (*tag.TagSet, error) {
	if err := origin.Validate(); err != nil {
		return nil, fmt.Errorf("tagdoc: invalid origin: %w", err)
	}
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}

	// jsonc handles comments and trailing commas; bare object keys
	// are the one legibility feature it leaves alone.
	stripped := quoteBareKeys(jsonc.ToJSON(data))

	decoder := json.NewDecoder(bytes.NewReader(stripped))
	decoder.UseNumber()

	opening, err := decoder.Token()
	if err != nil {
		return nil, &SchemaError{Code: ErrCodeSyntax, Message: err.Error()}
	}
	if delim, ok := opening.(json.Delim); !ok || delim != '{' {
		return nil, &SchemaError{Code: ErrCodeTopLevel, Message: fmt.Sprintf("document top level is %v, want an object", opening)}
	}

	set := tag.NewTagSet()
	seen := make(map[tag.TagRef]bool)
	for decoder.More() {
		keyToken, err := decoder.Token()
		if err != nil {
			return nil, &SchemaError{Code: ErrCodeSyntax, Message: err.Error()}
		}
		rawKey, ok := keyToken.(string)
		if !ok {
			return nil, &SchemaError{Code: ErrCodeSyntax, Message: fmt.Sprintf("unexpected token %v in key position", keyToken)}
		}
		ref, err := tag.ParseTagRef(rawKey)
		if err != nil {
			return nil, &SchemaError{Code: ErrCodeKey, Message: err.Error(), Path: rawKey}
		}
		if seen[ref] {
			return nil, &SchemaError{Code: ErrCodeDuplicateKey, Message: "entry appears twice, asserting origin is ambiguous", Path: rawKey}
		}
		seen[ref] = true

		value, err := walkValue(decoder, 1, maxDepth, rawKey)
		if err != nil {
			return nil, err
		}
		putErr := set.Put(tag.Tag{Namespace: ref.Namespace, Key: ref.Key, Origin: origin, Value: value})
		if putErr != nil {
			return nil, &SchemaError{Code: ErrCodeValue, Message: putErr.Error(), Path: rawKey}
		}
	}
	if _, err := decoder.Token(); err != nil {
		return nil, &SchemaError{Code: ErrCodeSyntax, Message: err.Error()}
	}
	if _, err := decoder.Token(); err != io.EOF {
		return nil, &SchemaError{Code: ErrCodeSyntax, Message: "trailing data after document"}
	}
	return set, nil
}

// walkValue consumes one value from the token stream. depth is the
// value's own nesting level, 1 for top-level entry values.
func walkValue(decoder *json.Decoder, depth, maxDepth int, path string) (tag.Value, error) {
	token, err := decoder.Token()
	if err != nil {
		return tag.Value{}, &SchemaError{Code: ErrCodeSyntax, Message: err.Error(), Path: path}
	}
	switch t := token.(type) {
	case json.Delim:
		if depth >= maxDepth {
			return tag.Value{}, &SchemaError{Code: ErrCodeDepth, Message: fmt.Sprintf("value nests deeper than %d levels", maxDepth), Path: path}
		}
		switch t {
		case '{':
			fields := make(map[string]tag.Value)
			for decoder.More() {
				keyToken, err := decoder.Token()
				if err != nil {
					return tag.Value{}, &SchemaError{Code: ErrCodeSyntax, Message: err.Error(), Path: path}
				}
				key, ok := keyToken.(string)
				if !ok {
					return tag.Value{}, &SchemaError{Code: ErrCodeSyntax, Message: fmt.Sprintf("unexpected token %v in key position", keyToken), Path: path}
				}
				field, err := walkValue(decoder, depth+1, maxDepth, path+"."+key)
				if err != nil {
					return tag.Value{}, err
				}
				fields[key] = field
			}
			if _, err := decoder.Token(); err != nil {
				return tag.Value{}, &SchemaError{Code: ErrCodeSyntax, Message: err.Error(), Path: path}
			}
			return tag.MappingValue(fields), nil
		case '[':
			var items []tag.Value
			for decoder.More() {
				item, err := walkValue(decoder, depth+1, maxDepth, path+"["+strconv.Itoa(len(items))+"]")
				if err != nil {
					return tag.Value{}, err
				}
				items = append(items, item)
			}
			if _, err := decoder.Token(); err != nil {
				return tag.Value{}, &SchemaError{Code: ErrCodeSyntax, Message: err.Error(), Path: path}
			}
			return tag.SequenceValue(items...), nil
		default:
			return tag.Value{}, &SchemaError{Code: ErrCodeSyntax, Message: fmt.Sprintf("unexpected delimiter %v", t), Path: path}
		}
	case string:
		return tag.StringValue(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return tag.Value{}, &SchemaError{Code: ErrCodeValue, Message: fmt.Sprintf("number %s out of range", t), Path: path}
		}
		return tag.NumberValue(f), nil
	case bool:
		return tag.BoolValue(t), nil
	case nil:
		return tag.Value{}, &SchemaError{Code: ErrCodeValue, Message: "null is not a tag value", Path: path}
	default:
		return tag.Value{}, &SchemaError{Code: ErrCodeSyntax, Message: fmt.Sprintf("unexpected token %v", token), Path: path}
	}
}

// quoteBareKeys rewrites unquoted object keys to quoted form so the
// standard JSON decoder can consume the document. Only object key
// position is touched; bare words in value position (true, false,
// null) pass through for the decoder to judge. Malformed input passes
// through unchanged and surfaces as a syntax error downstream.
func quoteBareKeys(data []byte) []byte {
	var out bytes.Buffer
	out.Grow(len(data) + 16)

	var stack []byte
	inString := false
	escaped := false
	expectKey := false
	for i := 0; i < len(data); i++ {
		c := data[i]
		if inString {
			out.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch {
		case c == '"':
			inString = true
			expectKey = false
			out.WriteByte(c)
		case c == '{':
			stack = append(stack, '{')
			expectKey = true
			out.WriteByte(c)
		case c == '[':
			stack = append(stack, '[')
			expectKey = false
			out.WriteByte(c)
		case c == '}' || c == ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			expectKey = false
			out.WriteByte(c)
		case c == ',':
			expectKey = len(stack) > 0 && stack[len(stack)-1] == '{'
			out.WriteByte(c)
		case c == ':':
			expectKey = false
			out.WriteByte(c)
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			out.WriteByte(c)
		case expectKey && isIdentStart(c):
			end := i
			for end < len(data) && isIdentPart(data[end]) {
				end++
			}
			out.WriteByte('"')
			out.Write(data[i:end])
			out.WriteByte('"')
			i = end - 1
			expectKey = false
		default:
			out.WriteByte(c)
		}
	}
	return out.Bytes()
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
