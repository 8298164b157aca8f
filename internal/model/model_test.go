// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package model

import (
	"errors"
	"testing"
)

func TestConnectionStateString(t *testing.T) {
	tests := []struct {
		state ConnectionState
		want  string
	}{
		{Passive, "passive"},
		{Active, "active"},
		{Connected, "connected"},
		{ConnectionState(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("ConnectionState(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestToolErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	te := WrapToolError(KindTimeout, "waited too long", cause)

	if !errors.Is(te, cause) {
		t.Errorf("expected errors.Is to find wrapped cause")
	}
	var asTool *ToolError
	if !errors.As(te, &asTool) {
		t.Fatalf("expected errors.As to match *ToolError")
	}
	if asTool.Kind != KindTimeout {
		t.Errorf("Kind = %v, want %v", asTool.Kind, KindTimeout)
	}
}

func TestTextResultAndErrResult(t *testing.T) {
	ok := TextResult("done")
	if ok.IsError {
		t.Error("TextResult should not set IsError")
	}
	if len(ok.Content) != 1 || ok.Content[0].Text != "done" {
		t.Errorf("unexpected content: %+v", ok.Content)
	}

	bad := ErrResult("nope")
	if !bad.IsError {
		t.Error("ErrResult should set IsError")
	}
}

func TestImageContent(t *testing.T) {
	c := ImageContent("QUJD", "image/png")
	if c.Type != "image" || c.Data != "QUJD" || c.MimeType != "image/png" {
		t.Errorf("unexpected image content: %+v", c)
	}
}
