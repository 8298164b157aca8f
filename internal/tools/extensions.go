// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package tools

import (
	"context"
	"encoding/json"

	"github.com/robmacrae/surfbroker/internal/connection"
	"github.com/robmacrae/surfbroker/internal/model"
)

func init() {
	register("browser_list_extensions", "List installed browser extensions.", `{
		"type": "object",
		"properties": {}
	}`, handleListExtensions, false)

	register("browser_reload_extensions", "Reload one or all browser extensions.", `{
		"type": "object",
		"properties": {
			"extensionName": {"type": "string"}
		}
	}`, handleReloadExtensions, false)

	register("browser_performance_metrics", "Report page load and paint timing metrics.", `{
		"type": "object",
		"properties": {}
	}`, handlePerformanceMetrics, false)
}

func handleListExtensions(ctx context.Context, hc *connection.HandlerContext, args json.RawMessage, rawResult bool) model.ToolResult {
	raw, err := callExtension(ctx, hc, "listExtensions", map[string]interface{}{})
	if err != nil {
		return fromError(err)
	}
	var v interface{}
	_ = unmarshalInto(raw, &v)
	if rawResult {
		return model.ToolResult{Raw: v}
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	return model.TextResult(string(b))
}

func handleReloadExtensions(ctx context.Context, hc *connection.HandlerContext, args json.RawMessage, rawResult bool) model.ToolResult {
	var a struct {
		ExtensionName string `json:"extensionName"`
	}
	if err := decode(args, &a); err != nil {
		return fromError(err)
	}
	if _, err := callExtension(ctx, hc, "reloadExtension", map[string]interface{}{"extensionName": a.ExtensionName}); err != nil {
		return fromError(err)
	}
	if rawResult {
		return model.ToolResult{Raw: map[string]bool{"reloaded": true}}
	}
	return model.TextResult("Extension(s) reloaded.")
}

func handlePerformanceMetrics(ctx context.Context, hc *connection.HandlerContext, args json.RawMessage, rawResult bool) model.ToolResult {
	pageMetrics, err := hc.CDP.Eval(ctx, `(function(){
		var nav = performance.getEntriesByType("navigation")[0] || {};
		var paints = {};
		performance.getEntriesByType("paint").forEach(function(p){ paints[p.name] = p.startTime; });
		return {
			ttfb: nav.responseStart,
			domContentLoaded: nav.domContentLoadedEventEnd,
			load: nav.loadEventEnd,
			firstPaint: paints["first-paint"],
			firstContentfulPaint: paints["first-contentful-paint"]
		};
	})()`, false)
	if err != nil {
		return fromError(err)
	}

	extRaw, err := callExtension(ctx, hc, "performanceMetrics", map[string]interface{}{})
	var extMetrics interface{}
	if err == nil {
		_ = unmarshalInto(extRaw, &extMetrics)
	}

	merged := map[string]interface{}{"page": pageMetrics, "cdp": extMetrics}
	if rawResult {
		return model.ToolResult{Raw: merged}
	}
	b, _ := json.MarshalIndent(merged, "", "  ")
	return model.TextResult(string(b))
}
