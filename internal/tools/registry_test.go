// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/robmacrae/surfbroker/internal/connection"
)

func TestNewRegistryCompilesEveryTool(t *testing.T) {
	r := NewRegistry()
	tools := r.Tools()
	if len(tools) == 0 {
		t.Fatal("expected a non-empty tool catalog")
	}
	seen := map[string]bool{}
	for _, tool := range tools {
		if seen[tool.Name] {
			t.Errorf("duplicate tool name: %s", tool.Name)
		}
		seen[tool.Name] = true
	}
	for _, want := range []string{"browser_navigate", "browser_interact", "browser_evaluate", "secure_fill"} {
		if !seen[want] {
			t.Errorf("expected catalog to include %s", want)
		}
	}
}

func TestCallRejectsMissingRequiredField(t *testing.T) {
	r := NewRegistry()
	hc := &connection.HandlerContext{}

	result := r.Call(context.Background(), hc, "browser_navigate", json.RawMessage(`{}`), true)
	if !result.IsError {
		t.Error("expected schema validation to reject a missing required field")
	}
}

func TestCallRejectsUnknownTool(t *testing.T) {
	r := NewRegistry()
	hc := &connection.HandlerContext{}

	result := r.Call(context.Background(), hc, "browser_does_not_exist", json.RawMessage(`{}`), true)
	if !result.IsError {
		t.Error("expected an error for an unknown tool name")
	}
}

func TestCallDispatchesToHandler(t *testing.T) {
	r := NewRegistry()
	hc := &connection.HandlerContext{}

	result := r.Call(context.Background(), hc, "browser_navigate", json.RawMessage(`{"action":"url","url":"https://example.com"}`), true)
	if !result.IsError {
		t.Fatal("expected an error because no extension is connected")
	}
}
