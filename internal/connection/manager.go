// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

// Package connection owns the broker's state machine (passive / active /
// connected), the status header formatter, and tool-availability gating.
// Browser-tool dispatch itself is delegated to a Dispatcher supplied by
// the caller (internal/tools), keeping this package free of a direct
// dependency on the tool catalog.
package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/robmacrae/surfbroker/internal/bridge"
	"github.com/robmacrae/surfbroker/internal/cdp"
	"github.com/robmacrae/surfbroker/internal/logging"
	"github.com/robmacrae/surfbroker/internal/model"
)

const Version = "0.1.0"

// ToolSchema is a single catalog entry the Dispatcher exposes.
type ToolSchema struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	ReadOnly    bool
	Destructive bool
	OpenWorld   bool
}

// HandlerContext is threaded through every browser-tool handler.
type HandlerContext struct {
	Ext     *bridge.Bridge
	CDP     *cdp.Primitives
	Manager *Manager
}

// Dispatcher routes a validated tool call to its handler. Implemented by
// internal/tools.Registry and wired in from cmd/surfbroker so this
// package never imports the tool catalog directly.
type Dispatcher interface {
	Tools() []ToolSchema
	Call(ctx context.Context, hc *HandlerContext, name string, args json.RawMessage, rawResult bool) model.ToolResult
}

// Config holds the broker's static, process-lifetime configuration.
type Config struct {
	Port      int
	DebugMode model.DebugMode
}

// Manager is the process-wide BrokerContext singleton.
type Manager struct {
	mu sync.RWMutex

	cfg   Config
	state model.ConnectionState

	ext                    *bridge.Bridge
	clientID               string
	connectedBrowserName   string
	buildTimestamp         string
	attachedTab            *model.TabInfo
	stealth                bool
	experiments            map[string]bool

	dispatcher Dispatcher
	log        *logging.Registry

	onToolsChanged func()
}

func NewManager(cfg Config, log *logging.Registry) *Manager {
	experiments := map[string]bool{"secure_eval": true}
	for _, name := range strings.Split(os.Getenv("SURFBROKER_EXPERIMENTS"), ",") {
		if name = strings.TrimSpace(name); name != "" {
			experiments[name] = true
		}
	}
	return &Manager{
		cfg:         cfg,
		state:       model.Passive,
		experiments: experiments,
		log:         log,
	}
}

func (m *Manager) SetDispatcher(d Dispatcher) { m.dispatcher = d }

func (m *Manager) SetOnToolsChanged(f func()) { m.onToolsChanged = f }

func (m *Manager) notifyToolsChanged() {
	if m.onToolsChanged != nil {
		m.onToolsChanged()
	}
}

func (m *Manager) State() model.ConnectionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Manager) HandlerContext() *HandlerContext {
	m.mu.RLock()
	ext := m.ext
	m.mu.RUnlock()
	if ext == nil {
		return &HandlerContext{Manager: m}
	}
	return &HandlerContext{Ext: ext, CDP: cdp.New(ext), Manager: m}
}

func (m *Manager) ExperimentEnabled(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.experiments[name]
}

func (m *Manager) SetExperiment(name string, on bool) {
	m.mu.Lock()
	m.experiments[name] = on
	m.mu.Unlock()
}

func (m *Manager) AttachedTab() *model.TabInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.attachedTab
}

func (m *Manager) SetAttachedTab(t *model.TabInfo) {
	m.mu.Lock()
	m.attachedTab = t
	m.mu.Unlock()
}

func (m *Manager) SetStealth(on bool) {
	m.mu.Lock()
	m.stealth = on
	m.mu.Unlock()
}

func (m *Manager) SetConnectedBrowser(name string) {
	m.mu.Lock()
	m.connectedBrowserName = name
	m.mu.Unlock()
}

// Enable transitions Passive -> Active, starting the bridge. Calling it
// again while already Active/Connected is a no-op content result, not an
// error.
func (m *Manager) Enable(ctx context.Context, clientID string) model.ToolResult {
	if clientID == "" {
		clientID = uuid.NewString()
	}

	m.mu.Lock()
	if m.state != model.Passive {
		m.mu.Unlock()
		return model.TextResult(m.statusHeaderLocked() + "\n\nBrowser automation is already enabled.")
	}

	ext := bridge.New(fmt.Sprintf("127.0.0.1:%d", m.cfg.Port), m.log.GetLogger(clientID))
	ext.OnHandshake = func(browser, buildTS string) {
		m.mu.Lock()
		m.state = model.Connected
		m.connectedBrowserName = browser
		m.buildTimestamp = buildTS
		m.mu.Unlock()
		m.notifyToolsChanged()
	}
	ext.OnDisconnect = func() {
		m.mu.Lock()
		if m.state == model.Connected {
			m.state = model.Active
		}
		m.connectedBrowserName = ""
		m.attachedTab = nil
		m.mu.Unlock()
		m.notifyToolsChanged()
	}
	ext.OnReconnect = func() {
		m.mu.Lock()
		m.state = model.Active
		m.attachedTab = nil
		m.mu.Unlock()
	}
	ext.OnTabInfoUpdate = func(t model.TabInfo) {
		m.SetAttachedTab(&t)
	}

	m.ext = ext
	m.clientID = clientID
	m.state = model.Active
	m.mu.Unlock()

	if err := ext.Start(ctx); err != nil {
		m.mu.Lock()
		m.state = model.Passive
		m.ext = nil
		m.mu.Unlock()
		return model.ErrResult(fmt.Sprintf("Failed to start browser bridge: %v", err))
	}

	m.notifyToolsChanged()
	return model.TextResult(m.StatusHeader() + "\n\nBrowser automation enabled. Waiting for the extension to connect.")
}

func (m *Manager) Disable() model.ToolResult {
	m.mu.Lock()
	ext := m.ext
	m.ext = nil
	m.state = model.Passive
	m.attachedTab = nil
	m.connectedBrowserName = ""
	m.mu.Unlock()

	if ext != nil {
		ext.Stop()
	}
	m.notifyToolsChanged()
	return model.TextResult("Browser automation disabled.")
}

func (m *Manager) Status() model.ToolResult {
	return model.TextResult(m.StatusHeader())
}

// ListTools returns the full catalog. Browser tools are always listed;
// availability is enforced at call time, matching 4.C.
func (m *Manager) ListTools() []ToolSchema {
	tools := []ToolSchema{
		{Name: "enable", Description: "Enable browser automation and start waiting for the extension to connect."},
		{Name: "disable", Description: "Disable browser automation and release the bridge."},
		{Name: "status", Description: "Report the current connection state."},
		{Name: "experimental_features", Description: "List or toggle experimental features."},
	}
	if m.cfg.DebugMode != model.DebugOff {
		tools = append(tools, ToolSchema{Name: "reload_mcp", Description: "Restart the broker process (debug builds only)."})
	}
	if m.dispatcher != nil {
		tools = append(tools, m.dispatcher.Tools()...)
	}
	return tools
}

// CallTool handles connection-management tools directly and forwards
// everything else to the Dispatcher, gated on connection state.
func (m *Manager) CallTool(ctx context.Context, name string, args json.RawMessage, rawResult bool) model.ToolResult {
	switch name {
	case "enable":
		var p struct {
			ClientID string `json:"client_id"`
		}
		_ = json.Unmarshal(args, &p)
		return m.Enable(ctx, p.ClientID)
	case "disable":
		return m.Disable()
	case "status":
		return m.Status()
	case "experimental_features":
		return m.handleExperiments(args)
	case "reload_mcp":
		if m.cfg.DebugMode == model.DebugOff {
			return model.ErrResult("reload_mcp is only available in debug builds")
		}
		return m.handleReload()
	}

	state := m.State()
	if state == model.Passive {
		if rawResult {
			return model.ToolResult{Raw: map[string]interface{}{"success": false, "error": "not_enabled"}}
		}
		return model.ErrResult("Browser automation is not enabled. Call \"enable\" first.")
	}
	if state == model.Active {
		return model.ErrResult("Waiting for the browser extension to connect. No browser is attached yet.")
	}
	if m.dispatcher == nil {
		return model.ErrResult("No tool dispatcher configured.")
	}
	return m.dispatcher.Call(ctx, m.HandlerContext(), name, args, rawResult)
}

func (m *Manager) handleExperiments(args json.RawMessage) model.ToolResult {
	var p struct {
		Name    string `json:"name"`
		Enabled *bool  `json:"enabled"`
	}
	_ = json.Unmarshal(args, &p)
	if p.Name == "" {
		m.mu.RLock()
		defer m.mu.RUnlock()
		var lines []string
		for k, v := range m.experiments {
			lines = append(lines, fmt.Sprintf("%s: %v", k, v))
		}
		return model.TextResult(strings.Join(lines, "\n"))
	}
	if p.Enabled != nil {
		m.SetExperiment(p.Name, *p.Enabled)
		m.notifyToolsChanged()
	}
	return model.TextResult(fmt.Sprintf("%s: %v", p.Name, m.ExperimentEnabled(p.Name)))
}

// handleReload signals the hot-reload wrapper by exiting with code 42.
// The actual os.Exit call is performed by watchReload in cmd/surfbroker,
// which polls ReloadRequested and waits briefly so this content result
// can be flushed to the agent first.
var ReloadRequested = false

func (m *Manager) handleReload() model.ToolResult {
	ReloadRequested = true
	return model.TextResult("Reloading broker process…")
}

func (m *Manager) statusHeaderLocked() string {
	var parts []string

	glyph := "🔴"
	var state string
	switch m.state {
	case model.Active:
		glyph, state = "🟡", "Waiting for extension"
	case model.Connected:
		glyph = "🟢"
	default:
		state = "Disabled"
	}
	parts = append(parts, fmt.Sprintf("%s Free v%s", glyph, Version))
	if state != "" {
		parts = append(parts, state)
	}

	if m.state == model.Connected && m.connectedBrowserName != "" {
		parts = append(parts, "🌐 "+m.connectedBrowserName)
	}
	if m.attachedTab != nil {
		url := m.attachedTab.URL
		if len(url) > 60 {
			url = url[:57] + "…"
		}
		parts = append(parts, fmt.Sprintf("📄 Tab #%d: %s", m.attachedTab.Index, url))
	}
	if m.stealth {
		parts = append(parts, "🥷 Stealth")
	}
	if m.cfg.DebugMode != model.DebugOff {
		parts = append(parts, nowHHMMSS())
	}
	return strings.Join(parts, " | ")
}

// StatusHeader renders the canonical one-line state summary prepended to
// content results.
func (m *Manager) StatusHeader() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.statusHeaderLocked()
}
