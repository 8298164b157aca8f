// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/robmacrae/surfbroker/internal/connection"
	"github.com/robmacrae/surfbroker/internal/model"
)

func init() {
	register("browser_snapshot", "Capture an accessibility-tree-derived structural snapshot of the page.", `{
		"type": "object",
		"properties": {}
	}`, handleBrowserSnapshot, false)

	register("browser_lookup", "Find elements on the page by visible text.", `{
		"type": "object",
		"properties": {
			"text": {"type": "string"},
			"limit": {"type": "integer"}
		},
		"required": ["text"]
	}`, handleBrowserLookup, false)

	register("browser_extract_content", "Extract page content as text or markdown.", `{
		"type": "object",
		"properties": {
			"mode": {"type": "string", "enum": ["auto", "full", "selector"]},
			"selector": {"type": "string"},
			"max_lines": {"type": "integer"},
			"offset": {"type": "integer"}
		}
	}`, handleBrowserExtractContent, false)
}

func handleBrowserSnapshot(ctx context.Context, hc *connection.HandlerContext, args json.RawMessage, rawResult bool) model.ToolResult {
	raw, err := callExtension(ctx, hc, "captureSnapshot", map[string]interface{}{})
	if err != nil {
		return fromError(err)
	}
	var out struct {
		Snapshot string `json:"snapshot"`
	}
	_ = unmarshalInto(raw, &out)
	if rawResult {
		return model.ToolResult{Raw: out.Snapshot}
	}
	return model.TextResult(out.Snapshot)
}

type lookupArgs struct {
	Text  string `json:"text"`
	Limit int    `json:"limit"`
}

func handleBrowserLookup(ctx context.Context, hc *connection.HandlerContext, args json.RawMessage, rawResult bool) model.ToolResult {
	var a lookupArgs
	if err := decode(args, &a); err != nil {
		return fromError(err)
	}
	limit := a.Limit
	if limit <= 0 {
		limit = 10
	}
	candidates, err := hc.CDP.FindAlternativeSelectors(ctx, a.Text, limit)
	if err != nil {
		return fromError(err)
	}
	if rawResult {
		return model.ToolResult{Raw: candidates}
	}
	if len(candidates) == 0 {
		return model.TextResult(fmt.Sprintf("No elements found containing %q", a.Text))
	}
	b, _ := json.MarshalIndent(candidates, "", "  ")
	return model.TextResult(string(b))
}

type extractArgs struct {
	Mode     string `json:"mode"`
	Selector string `json:"selector"`
	MaxLines int    `json:"max_lines"`
	Offset   int    `json:"offset"`
}

func handleBrowserExtractContent(ctx context.Context, hc *connection.HandlerContext, args json.RawMessage, rawResult bool) model.ToolResult {
	var a extractArgs
	if err := decode(args, &a); err != nil {
		return fromError(err)
	}
	if a.Mode == "" {
		a.Mode = "auto"
	}
	if a.MaxLines <= 0 {
		a.MaxLines = 500
	}
	if a.Mode == "selector" && a.Selector == "" {
		return model.ErrResult("selector is required for mode=selector")
	}

	raw, err := callExtension(ctx, hc, "extractContent", map[string]interface{}{
		"mode": a.Mode, "selector": a.Selector, "max_lines": a.MaxLines, "offset": a.Offset,
	})
	if err != nil {
		return fromError(err)
	}
	var out struct {
		Content    string `json:"content"`
		TotalLines int    `json:"totalLines"`
	}
	_ = unmarshalInto(raw, &out)
	if rawResult {
		return model.ToolResult{Raw: out}
	}
	text := out.Content
	if out.TotalLines > 0 {
		text += fmt.Sprintf("\n\n(%d total lines, offset %d)", out.TotalLines, a.Offset)
	}
	return model.TextResult(text)
}
