// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/robmacrae/surfbroker/internal/connection"
	"github.com/robmacrae/surfbroker/internal/model"
)

func init() {
	register("browser_tabs", "List, open, attach to, or close browser tabs.", `{
		"type": "object",
		"properties": {
			"action": {"type": "string", "enum": ["list", "new", "attach", "close"]},
			"url": {"type": "string"},
			"index": {"type": "integer"},
			"activate": {"type": "boolean"},
			"stealth": {"type": "boolean"}
		},
		"required": ["action"]
	}`, handleBrowserTabs, false)

	register("browser_navigate", "Navigate the attached tab.", `{
		"type": "object",
		"properties": {
			"action": {"type": "string", "enum": ["url", "back", "forward", "reload", "test_page"]},
			"url": {"type": "string"},
			"screenshot": {"type": "boolean"}
		},
		"required": ["action"]
	}`, handleBrowserNavigate, true)
}

type tabsArgs struct {
	Action   string `json:"action"`
	URL      string `json:"url"`
	Index    int    `json:"index"`
	Activate bool   `json:"activate"`
	Stealth  bool   `json:"stealth"`
}

func handleBrowserTabs(ctx context.Context, hc *connection.HandlerContext, args json.RawMessage, rawResult bool) model.ToolResult {
	var a tabsArgs
	if err := decode(args, &a); err != nil {
		return fromError(err)
	}

	var method string
	params := map[string]interface{}{}
	switch a.Action {
	case "list":
		method = "getTabs"
	case "new":
		method = "createTab"
		params["url"] = a.URL
		params["activate"] = a.Activate
	case "attach":
		method = "selectTab"
		params["index"] = a.Index
	case "close":
		method = "closeTab"
		params["index"] = a.Index
	default:
		return model.ErrResult(fmt.Sprintf("unknown browser_tabs action: %s", a.Action))
	}

	raw, err := callExtension(ctx, hc, method, params)
	if err != nil {
		return fromError(err)
	}

	switch a.Action {
	case "list":
		var tabs []model.TabInfo
		_ = unmarshalInto(raw, &tabs)
		if rawResult {
			return model.ToolResult{Raw: tabs}
		}
		b, _ := json.MarshalIndent(tabs, "", "  ")
		return model.TextResult(string(b))

	case "new", "attach":
		var tab model.TabInfo
		_ = unmarshalInto(raw, &tab)
		hc.Manager.SetAttachedTab(&tab)
		hc.Manager.SetStealth(a.Stealth)
		if rawResult {
			return model.ToolResult{Raw: tab}
		}
		return model.TextResult(fmt.Sprintf("Attached to tab #%d: %s", tab.Index, tab.URL))

	case "close":
		if hc.Manager.AttachedTab() != nil && hc.Manager.AttachedTab().Index == a.Index {
			hc.Manager.SetAttachedTab(nil)
		}
		if rawResult {
			return model.ToolResult{Raw: map[string]bool{"closed": true}}
		}
		return model.TextResult(fmt.Sprintf("Closed tab #%d", a.Index))
	}
	return model.TextResult("ok")
}

type navigateArgs struct {
	Action string `json:"action"`
	URL    string `json:"url"`
}

func handleBrowserNavigate(ctx context.Context, hc *connection.HandlerContext, args json.RawMessage, rawResult bool) model.ToolResult {
	var a navigateArgs
	if err := decode(args, &a); err != nil {
		return fromError(err)
	}

	switch a.Action {
	case "url":
		if a.URL == "" {
			return model.ErrResult("url is required for action=url")
		}
		if _, err := callExtension(ctx, hc, "navigate", map[string]interface{}{"action": "url", "url": a.URL}); err != nil {
			return fromError(err)
		}
		awaitLoad(ctx, hc)
		if tab := hc.Manager.AttachedTab(); tab != nil {
			tab.URL = a.URL
			hc.Manager.SetAttachedTab(tab)
		}
		return model.TextResult(fmt.Sprintf("Navigated to %s", a.URL))

	case "back", "forward":
		expr := "history.back()"
		if a.Action == "forward" {
			expr = "history.forward()"
		}
		if _, err := hc.CDP.Eval(ctx, expr, false); err != nil {
			return fromError(err)
		}
		awaitLoad(ctx, hc)
		return model.TextResult("Navigated " + a.Action)

	case "reload":
		if _, err := hc.CDP.Eval(ctx, "location.reload()", false); err != nil {
			return fromError(err)
		}
		awaitLoad(ctx, hc)
		return model.TextResult("Reloaded")

	case "test_page":
		if _, err := callExtension(ctx, hc, "navigate", map[string]interface{}{"action": "test_page"}); err != nil {
			return fromError(err)
		}
		awaitLoad(ctx, hc)
		return model.TextResult("Navigated to the built-in test page")

	default:
		return model.ErrResult(fmt.Sprintf("unknown browser_navigate action: %s", a.Action))
	}
}

// awaitLoad uses the extension's waitForReady when the smart_waiting
// experiment is on, otherwise falls back to a fixed settle sleep.
func awaitLoad(ctx context.Context, hc *connection.HandlerContext) {
	if hc.Manager.ExperimentEnabled("smart_waiting") {
		_, err := callExtensionTimeout(ctx, hc, "waitForReady", nil, 10*time.Second)
		if err == nil {
			return
		}
	}
	_ = hc.CDP.Sleep(ctx, 1500*time.Millisecond)
}
