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
	register("browser_window", "Resize, minimize, maximize, or close the browser window.", `{
		"type": "object",
		"properties": {
			"action": {"type": "string", "enum": ["resize", "close", "minimize", "maximize"]},
			"width": {"type": "integer"},
			"height": {"type": "integer"},
			"screenshot": {"type": "boolean"}
		},
		"required": ["action"]
	}`, handleWindow, true)

	register("browser_handle_dialog", "Accept or dismiss a pending JavaScript dialog.", `{
		"type": "object",
		"properties": {
			"accept": {"type": "boolean"},
			"text": {"type": "string"},
			"screenshot": {"type": "boolean"}
		}
	}`, handleDialog, true)
}

type windowArgs struct {
	Action string `json:"action"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

func handleWindow(ctx context.Context, hc *connection.HandlerContext, args json.RawMessage, rawResult bool) model.ToolResult {
	var a windowArgs
	if err := decode(args, &a); err != nil {
		return fromError(err)
	}
	raw, err := callExtension(ctx, hc, "window", map[string]interface{}{
		"action": a.Action, "width": a.Width, "height": a.Height,
	})
	if err != nil {
		return fromError(err)
	}
	if rawResult {
		var v interface{}
		_ = unmarshalInto(raw, &v)
		return model.ToolResult{Raw: v}
	}
	return model.TextResult(fmt.Sprintf("Window %s applied.", a.Action))
}

type dialogArgs struct {
	Accept bool   `json:"accept"`
	Text   string `json:"text"`
}

func handleDialog(ctx context.Context, hc *connection.HandlerContext, args json.RawMessage, rawResult bool) model.ToolResult {
	var a dialogArgs
	if err := decode(args, &a); err != nil {
		return fromError(err)
	}
	if _, err := callExtension(ctx, hc, "dialog", map[string]interface{}{
		"accept": a.Accept, "text": a.Text,
	}); err != nil {
		return fromError(err)
	}
	if rawResult {
		return model.ToolResult{Raw: map[string]bool{"handled": true}}
	}
	verb := "Dismissed"
	if a.Accept {
		verb = "Accepted"
	}
	return model.TextResult(verb + " dialog.")
}
