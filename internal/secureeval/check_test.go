// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package secureeval

import (
	"testing"

	"github.com/robmacrae/surfbroker/internal/model"
)

func TestCheckBlocksBareIdentifier(t *testing.T) {
	tests := []string{
		`fetch("https://evil.example")`,
		`new XMLHttpRequest()`,
		`new WebSocket("wss://evil.example")`,
		`eval("1+1")`,
	}
	for _, expr := range tests {
		err := Check(expr)
		if err == nil {
			t.Errorf("Check(%q) = nil, want blocked", expr)
			continue
		}
		if err.Kind != model.KindBlocked {
			t.Errorf("Check(%q) kind = %v, want KindBlocked", expr, err.Kind)
		}
	}
}

func TestCheckBlocksMemberPaths(t *testing.T) {
	tests := []string{
		`document.cookie`,
		`document.cookie = "x=1"`,
		`localStorage.getItem("x")`,
		`window.localStorage.getItem("x")`,
	}
	for _, expr := range tests {
		if err := Check(expr); err == nil {
			t.Errorf("Check(%q) = nil, want blocked", expr)
		}
	}
}

func TestCheckAllowsBenignExpressions(t *testing.T) {
	tests := []string{
		`document.title`,
		`1 + 1`,
		`document.querySelector(".foo").innerText`,
		`Array.from(document.querySelectorAll("a")).map(a => a.href)`,
	}
	for _, expr := range tests {
		if err := Check(expr); err != nil {
			t.Errorf("Check(%q) = %v, want allowed", expr, err)
		}
	}
}

func TestCheckIgnoresParseErrors(t *testing.T) {
	if err := Check("this is not { valid js :::"); err != nil {
		t.Errorf("Check on unparseable input should defer to real evaluation, got %v", err)
	}
}
