// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package tools

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/robmacrae/surfbroker/internal/model"
)

func TestDecodeEmptyArgsIsNoop(t *testing.T) {
	var v struct{ X int }
	if err := decode(nil, &v); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestDecodePopulatesStruct(t *testing.T) {
	var v struct {
		Selector string `json:"selector"`
	}
	if err := decode(json.RawMessage(`{"selector":"#go"}`), &v); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Selector != "#go" {
		t.Errorf("Selector = %q, want #go", v.Selector)
	}
}

func TestFromErrorPreservesToolErrorKind(t *testing.T) {
	te := model.NewToolError(model.KindTimeout, "waited too long")
	result := fromError(te)
	if !result.IsError {
		t.Error("expected IsError to be true")
	}
	if len(result.Content) != 1 || !strings.Contains(result.Content[0].Text, "waited too long") {
		t.Errorf("unexpected content: %+v", result.Content)
	}
}

func TestFromErrorAppendsExtensionConflictHint(t *testing.T) {
	te := model.NewToolError(model.KindExtensionConflict, "Another debugger is already attached to this target")
	result := fromError(te)
	if !strings.Contains(result.Content[0].Text, "Close it and try again") {
		t.Errorf("expected troubleshooting hint, got: %s", result.Content[0].Text)
	}
}

func TestFromErrorPlainError(t *testing.T) {
	result := fromError(errors.New("boom"))
	if !result.IsError || result.Content[0].Text != "boom" {
		t.Errorf("unexpected result: %+v", result)
	}
}
