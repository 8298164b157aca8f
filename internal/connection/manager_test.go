// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/robmacrae/surfbroker/internal/logging"
	"github.com/robmacrae/surfbroker/internal/model"
)

type fakeDispatcher struct {
	tools  []ToolSchema
	called string
}

func (f *fakeDispatcher) Tools() []ToolSchema { return f.tools }

func (f *fakeDispatcher) Call(ctx context.Context, hc *HandlerContext, name string, args json.RawMessage, rawResult bool) model.ToolResult {
	f.called = name
	return model.TextResult("ok")
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	reg, err := logging.NewRegistry(t.TempDir(), logging.ModeTruncate)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	t.Cleanup(reg.Close)
	return NewManager(Config{Port: 0}, reg)
}

func TestManagerStartsPassive(t *testing.T) {
	mgr := newTestManager(t)
	if mgr.State() != model.Passive {
		t.Errorf("State() = %v, want Passive", mgr.State())
	}
}

func TestCallToolGatesOnState(t *testing.T) {
	mgr := newTestManager(t)
	disp := &fakeDispatcher{}
	mgr.SetDispatcher(disp)

	result := mgr.CallTool(context.Background(), "browser_navigate", json.RawMessage(`{}`), false)
	if !result.IsError {
		t.Error("expected an error result while Passive")
	}
	if disp.called != "" {
		t.Error("dispatcher should not be reached while Passive")
	}
}

func TestDisableResetsToPassive(t *testing.T) {
	mgr := newTestManager(t)
	mgr.SetExperiment("secure_eval", false)
	result := mgr.Disable()
	if mgr.State() != model.Passive {
		t.Errorf("State() = %v, want Passive", mgr.State())
	}
	if result.IsError {
		t.Error("Disable() should not report an error when already Passive")
	}
}

func TestExperimentDefaultsAndToggle(t *testing.T) {
	mgr := newTestManager(t)
	if !mgr.ExperimentEnabled("secure_eval") {
		t.Error("expected secure_eval to default to enabled")
	}
	mgr.SetExperiment("secure_eval", false)
	if mgr.ExperimentEnabled("secure_eval") {
		t.Error("expected secure_eval to be disabled after SetExperiment(false)")
	}
}

func TestStatusHeaderReflectsState(t *testing.T) {
	mgr := newTestManager(t)
	header := mgr.StatusHeader()
	want := fmt.Sprintf("🔴 Free v%s | Disabled", Version)
	if !strings.HasPrefix(header, want) {
		t.Errorf("StatusHeader() = %q, want prefix %q", header, want)
	}
}

func TestEnableGeneratesClientIDWhenEmpty(t *testing.T) {
	mgr := newTestManager(t)
	result := mgr.Enable(context.Background(), "")
	if result.IsError {
		t.Fatalf("unexpected error: %+v", result)
	}
	if mgr.clientID == "" {
		t.Error("expected Enable to mint a client ID when none was supplied")
	}
	if mgr.State() != model.Active {
		t.Errorf("State() = %v, want Active", mgr.State())
	}
	mgr.Disable()
}

func TestListToolsIncludesConnectionTools(t *testing.T) {
	mgr := newTestManager(t)
	mgr.SetDispatcher(&fakeDispatcher{tools: []ToolSchema{{Name: "browser_navigate"}}})

	names := map[string]bool{}
	for _, tool := range mgr.ListTools() {
		names[tool.Name] = true
	}
	for _, want := range []string{"enable", "disable", "status"} {
		if !names[want] {
			t.Errorf("expected %q among connection tools", want)
		}
	}
}
