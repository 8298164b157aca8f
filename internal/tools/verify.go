// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/robmacrae/surfbroker/internal/cdp"
	"github.com/robmacrae/surfbroker/internal/connection"
	"github.com/robmacrae/surfbroker/internal/model"
)

func init() {
	register("browser_verify_text_visible", "Assert that text appears on the page.", `{
		"type": "object",
		"properties": {"text": {"type": "string"}},
		"required": ["text"]
	}`, handleVerifyText, false)

	register("browser_verify_element_visible", "Assert that an element is present and visible.", `{
		"type": "object",
		"properties": {"selector": {"type": "string"}},
		"required": ["selector"]
	}`, handleVerifyElement, false)
}

func handleVerifyText(ctx context.Context, hc *connection.HandlerContext, args json.RawMessage, rawResult bool) model.ToolResult {
	var a struct {
		Text string `json:"text"`
	}
	if err := decode(args, &a); err != nil {
		return fromError(err)
	}
	v, err := hc.CDP.Eval(ctx, fmt.Sprintf("document.body.innerText.indexOf(%s) !== -1", strconv.Quote(a.Text)), false)
	if err != nil {
		return fromError(err)
	}
	found, _ := v.(bool)
	if rawResult {
		return model.ToolResult{Raw: map[string]bool{"visible": found}, IsError: !found}
	}
	if found {
		return model.TextResult(fmt.Sprintf("Text %q is visible.", a.Text))
	}
	return model.ErrResult(fmt.Sprintf("Text %q was not found on the page.", a.Text))
}

func handleVerifyElement(ctx context.Context, hc *connection.HandlerContext, args json.RawMessage, rawResult bool) model.ToolResult {
	var a struct {
		Selector string `json:"selector"`
	}
	if err := decode(args, &a); err != nil {
		return fromError(err)
	}
	expr := fmt.Sprintf(`(function(){
		var el = %s;
		if (!el) return false;
		var style = window.getComputedStyle(el);
		var rect = el.getBoundingClientRect();
		return style.display !== "none" && style.visibility !== "hidden" && rect.width > 0 && rect.height > 0;
	})()`, cdp.SelectorExpression(a.Selector))
	v, err := hc.CDP.Eval(ctx, expr, false)
	if err != nil {
		return fromError(err)
	}
	visible, _ := v.(bool)
	if rawResult {
		return model.ToolResult{Raw: map[string]bool{"visible": visible}, IsError: !visible}
	}
	if visible {
		return model.TextResult(fmt.Sprintf("Element %q is visible.", a.Selector))
	}
	return model.ErrResult(fmt.Sprintf("Element %q is not visible.", a.Selector))
}
