// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/robmacrae/surfbroker/internal/connection"
	"github.com/robmacrae/surfbroker/internal/model"
)

func init() {
	register("browser_console_messages", "List captured browser console messages.", `{
		"type": "object",
		"properties": {
			"level": {"type": "string"},
			"text": {"type": "string"},
			"url": {"type": "string"},
			"limit": {"type": "integer"},
			"offset": {"type": "integer"}
		}
	}`, handleConsoleMessages, false)

	register("browser_network_requests", "List, inspect, replay, or clear captured network requests.", `{
		"type": "object",
		"properties": {
			"action": {"type": "string", "enum": ["list", "details", "replay", "clear"]},
			"urlPattern": {"type": "string"},
			"method": {"type": "string"},
			"status": {"type": "integer"},
			"resourceType": {"type": "string"},
			"limit": {"type": "integer"},
			"offset": {"type": "integer"},
			"requestId": {"type": "string"},
			"jsonPath": {"type": "string"}
		},
		"required": ["action"]
	}`, handleNetworkRequests, false)
}

type consoleMessage struct {
	Level string `json:"level"`
	Text  string `json:"text"`
	URL   string `json:"url"`
}

type consoleArgs struct {
	Level  string `json:"level"`
	Text   string `json:"text"`
	URL    string `json:"url"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

func handleConsoleMessages(ctx context.Context, hc *connection.HandlerContext, args json.RawMessage, rawResult bool) model.ToolResult {
	var a consoleArgs
	if err := decode(args, &a); err != nil {
		return fromError(err)
	}
	if a.Limit <= 0 {
		a.Limit = 50
	}

	raw, err := callExtension(ctx, hc, "consoleMessages", map[string]interface{}{})
	if err != nil {
		return fromError(err)
	}
	var all []consoleMessage
	_ = unmarshalInto(raw, &all)

	var filtered []consoleMessage
	for _, m := range all {
		if a.Level != "" && m.Level != a.Level {
			continue
		}
		if a.Text != "" && !strings.Contains(m.Text, a.Text) {
			continue
		}
		if a.URL != "" && !strings.Contains(m.URL, a.URL) {
			continue
		}
		filtered = append(filtered, m)
	}
	page := paginate(filtered, a.Offset, a.Limit)

	if rawResult {
		return model.ToolResult{Raw: page}
	}
	b, _ := json.MarshalIndent(page, "", "  ")
	return model.TextResult(fmt.Sprintf("%d of %d messages\n%s", len(page), len(filtered), b))
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

type networkRequest struct {
	ID           string `json:"id"`
	URL          string `json:"url"`
	Method       string `json:"method"`
	Status       int    `json:"status"`
	ResourceType string `json:"resourceType"`
}

type networkArgs struct {
	Action       string `json:"action"`
	URLPattern   string `json:"urlPattern"`
	Method       string `json:"method"`
	Status       int    `json:"status"`
	ResourceType string `json:"resourceType"`
	Limit        int    `json:"limit"`
	Offset       int    `json:"offset"`
	RequestID    string `json:"requestId"`
	JSONPath     string `json:"jsonPath"`
}

func handleNetworkRequests(ctx context.Context, hc *connection.HandlerContext, args json.RawMessage, rawResult bool) model.ToolResult {
	var a networkArgs
	if err := decode(args, &a); err != nil {
		return fromError(err)
	}
	if a.Limit <= 0 {
		a.Limit = 20
	}

	switch a.Action {
	case "clear":
		if _, err := callExtension(ctx, hc, "clearNetwork", map[string]interface{}{}); err != nil {
			return fromError(err)
		}
		return model.TextResult("Network log cleared.")

	case "details":
		if a.RequestID == "" {
			return model.ErrResult("requestId is required for action=details")
		}
		raw, err := callExtension(ctx, hc, "networkRequests", map[string]interface{}{"action": "details", "requestId": a.RequestID})
		if err != nil {
			return fromError(err)
		}
		if rawResult {
			var v interface{}
			_ = unmarshalInto(raw, &v)
			return model.ToolResult{Raw: v}
		}
		return model.TextResult(string(raw))

	case "replay":
		if a.RequestID == "" {
			return model.ErrResult("requestId is required for action=replay")
		}
		return replayRequest(ctx, hc, a, rawResult)

	case "list", "":
		raw, err := callExtension(ctx, hc, "networkRequests", map[string]interface{}{"action": "list"})
		if err != nil {
			return fromError(err)
		}
		var all []networkRequest
		_ = unmarshalInto(raw, &all)
		var filtered []networkRequest
		for _, r := range all {
			if a.URLPattern != "" && !strings.Contains(r.URL, a.URLPattern) {
				continue
			}
			if a.Method != "" && r.Method != a.Method {
				continue
			}
			if a.Status != 0 && r.Status != a.Status {
				continue
			}
			if a.ResourceType != "" && r.ResourceType != a.ResourceType {
				continue
			}
			filtered = append(filtered, r)
		}
		page := paginate(filtered, a.Offset, a.Limit)
		if rawResult {
			return model.ToolResult{Raw: page}
		}
		b, _ := json.MarshalIndent(page, "", "  ")
		return model.TextResult(fmt.Sprintf("%d of %d requests\n%s", len(page), len(filtered), b))

	default:
		return model.ErrResult("unknown browser_network_requests action: " + a.Action)
	}
}

func replayRequest(ctx context.Context, hc *connection.HandlerContext, a networkArgs, rawResult bool) model.ToolResult {
	detailsRaw, err := callExtension(ctx, hc, "networkRequests", map[string]interface{}{"action": "details", "requestId": a.RequestID})
	if err != nil {
		return fromError(err)
	}
	var details struct {
		URL    string            `json:"url"`
		Method string            `json:"method"`
		Body   string            `json:"body"`
		Headers map[string]string `json:"headers"`
	}
	_ = unmarshalInto(detailsRaw, &details)

	expr := fmt.Sprintf(`(async function(){
		var resp = await fetch(%s, {method: %s, body: %s});
		var text = await resp.text();
		return {status: resp.status, statusText: resp.statusText, body: text.slice(0, 2000)};
	})()`, strconv.Quote(details.URL), strconv.Quote(details.Method), strconv.Quote(details.Body))

	v, err := hc.CDP.Eval(ctx, expr, true)
	if err != nil {
		return fromError(err)
	}
	if rawResult {
		return model.ToolResult{Raw: v}
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	return model.TextResult(string(b))
}
