// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestTrailTruncatesLongTokens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trail.log")
	tr, err := Open(path, ModeTruncate)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer tr.Close()

	longToken := "value=" + strings.Repeat("no-base64-chars-", 20)
	tr.Logf("%s", longToken)
	tr.Close()

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if strings.Contains(string(b), longToken) {
		t.Error("expected long token to be shortened, found verbatim")
	}
	if !strings.Contains(string(b), "…") {
		t.Error("expected truncation marker in output")
	}
}

func TestTrailRedactsBase64ishPayload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trail.log")
	tr, err := Open(path, ModeTruncate)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer tr.Close()

	blob := strings.Repeat("QUJDREVGR0hJSktMTU5PUA==", 10)
	tr.Logf("payload %s", blob)
	tr.Close()

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if strings.Contains(string(b), blob) {
		t.Error("expected base64-looking payload to be redacted")
	}
	if !strings.Contains(string(b), "[base64") {
		t.Errorf("expected redaction marker, got: %s", string(b))
	}
}

func TestTrailFullModeKeepsPayload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trail.log")
	tr, err := Open(path, ModeFull)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer tr.Close()

	long := strings.Repeat("b", 300)
	tr.Logf("value=%s", long)
	tr.Close()

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(b), long) {
		t.Error("expected full-mode log to retain the payload verbatim")
	}
}

func TestRegistryGetLoggerFallsBackToServer(t *testing.T) {
	reg, err := NewRegistry(t.TempDir(), ModeTruncate)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	defer reg.Close()

	if reg.GetLogger("") != reg.Server() {
		t.Error("expected empty session ID to return the server logger")
	}

	a := reg.GetLogger("session-1")
	b := reg.GetLogger("session-1")
	if a != b {
		t.Error("expected the same session ID to return the same logger")
	}
	if a == reg.Server() {
		t.Error("expected a non-empty session ID to return a distinct logger")
	}
}
