// Copyright 2026 The Tagmesh Authors
// SPDX-License-Identifier: Apache-2.0

package tagdoc

import (
	"errors"
	"fmt"
)

// SchemaError reports a malformed or ambiguous tag document. It is
// always recoverable: the offending document is rejected whole and
// nothing is partially applied anywhere. Callers can use errors.As
// to extract the structured information:
//
//	var schemaErr *tagdoc.SchemaError
//	if errors.As(err, &schemaErr) {
//	    if schemaErr.Code == tagdoc.ErrCodeDuplicateKey { ... }
//	}
type SchemaError struct {
	// Code classifies the failure (ErrCode* constants).
	Code string
	// Message is the human-readable description.
	Message string
	// Path locates the failure within the document: a top-level
	// "namespace:key" entry, possibly extended with ".field" and
	// "[index]" segments. Empty when the failure has no location
	// (document-level syntax errors).
	Path string
}

func (e *SchemaError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("tagdoc: %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("tagdoc: %s at %s: %s", e.Code, e.Path, e.Message)
}

// Schema error codes.
const (
	// ErrCodeSyntax: the document is not parseable at all.
	ErrCodeSyntax = "syntax"
	// ErrCodeTopLevel: the document parses but its top level is not
	// an object.
	ErrCodeTopLevel = "top-level"
	// ErrCodeDuplicateKey: the same namespace:key entry appears
	// twice at the top level, making the asserting origin ambiguous.
	ErrCodeDuplicateKey = "duplicate-key"
	// ErrCodeKey: a top-level key is not a valid "namespace:key"
	// reference.
	ErrCodeKey = "key"
	// ErrCodeValue: a value is not representable as a tag value
	// (null, or an out-of-range number).
	ErrCodeValue = "value"
	// ErrCodeDepth: a value nests deeper than the configured limit.
	ErrCodeDepth = "depth"
)

// IsSchemaError checks whether err is a *SchemaError with the given
// code.
func IsSchemaError(err error, code string) bool {
	var schemaErr *SchemaError
	if errors.As(err, &schemaErr) {
		return schemaErr.Code == code
	}
	return false
}
