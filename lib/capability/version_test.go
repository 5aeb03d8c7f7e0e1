// Copyright 2026 The Tagmesh Authors
// SPDX-License-Identifier: Apache-2.0

package capability_test

import (
	"testing"

	"github.com/tagmesh/tagmesh/lib/capability"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    capability.Version
		wantErr bool
	}{
		{name: "simple", input: "1.2", want: capability.Version{Major: 1, Minor: 2}},
		{name: "zero", input: "0.0", want: capability.Version{}},
		{name: "large", input: "12.34", want: capability.Version{Major: 12, Minor: 34}},
		{name: "no-dot", input: "1", wantErr: true},
		{name: "trailing-dot", input: "1.", wantErr: true},
		{name: "negative", input: "-1.0", wantErr: true},
		{name: "alpha", input: "1.x", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := capability.ParseVersion(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseVersion(%q) = %v, want error", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseVersion(%q): %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseVersion(%q) = %v, want %v", tt.input, got, tt.want)
			}
			if got.String() != tt.input {
				t.Errorf("String() = %q, want %q", got.String(), tt.input)
			}
		})
	}
}

func TestVersionCompatibility(t *testing.T) {
	v10 := capability.Version{Major: 1, Minor: 0}
	v13 := capability.Version{Major: 1, Minor: 3}
	v20 := capability.Version{Major: 2, Minor: 0}

	if !v10.Compatible(v13) {
		t.Error("same-major versions not compatible")
	}
	if v10.Compatible(v20) {
		t.Error("cross-major versions compatible")
	}
	if got := v13.Effective(v10); got != v10 {
		t.Errorf("Effective = %v, want lower minor %v", got, v10)
	}
	if got := v10.Effective(v13); got != v10 {
		t.Errorf("Effective = %v, want lower minor %v", got, v10)
	}
}
