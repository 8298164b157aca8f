// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/robmacrae/surfbroker/internal/cdp"
	"github.com/robmacrae/surfbroker/internal/connection"
	"github.com/robmacrae/surfbroker/internal/model"
)

func init() {
	register("browser_fill_form", "Fill multiple form fields by selector in one call.", `{
		"type": "object",
		"properties": {
			"fields": {
				"type": "array",
				"items": {
					"type": "object",
					"properties": {
						"selector": {"type": "string"},
						"value": {"type": "string"}
					},
					"required": ["selector", "value"]
				}
			},
			"screenshot": {"type": "boolean"}
		},
		"required": ["fields"]
	}`, handleFillForm, true)

	register("browser_drag", "Drag from one element to another.", `{
		"type": "object",
		"properties": {
			"fromSelector": {"type": "string"},
			"toSelector": {"type": "string"},
			"screenshot": {"type": "boolean"}
		},
		"required": ["fromSelector", "toSelector"]
	}`, handleDrag, true)
}

type formField struct {
	Selector string `json:"selector"`
	Value    string `json:"value"`
}

type fillFormArgs struct {
	Fields []formField `json:"fields"`
}

func handleFillForm(ctx context.Context, hc *connection.HandlerContext, args json.RawMessage, rawResult bool) model.ToolResult {
	var a fillFormArgs
	if err := decode(args, &a); err != nil {
		return fromError(err)
	}

	var filled []string
	for _, f := range a.Fields {
		expr := fmt.Sprintf(`(function(){
			var el = %s;
			if (!el) return false;
			var proto = el.tagName === "TEXTAREA" ? window.HTMLTextAreaElement.prototype : el.tagName === "SELECT" ? window.HTMLSelectElement.prototype : window.HTMLInputElement.prototype;
			var setter = Object.getOwnPropertyDescriptor(proto, "value");
			if (setter && setter.set) setter.set.call(el, %s); else el.value = %s;
			el.dispatchEvent(new Event("input", {bubbles:true}));
			el.dispatchEvent(new Event("change", {bubbles:true}));
			return true;
		})()`, cdp.SelectorExpression(f.Selector), strconv.Quote(f.Value), strconv.Quote(f.Value))

		v, err := hc.CDP.Eval(ctx, expr, false)
		if err != nil {
			return fromError(err)
		}
		if b, _ := v.(bool); !b {
			return fromError(model.NewToolError(model.KindElementNotFound, "element not found: "+f.Selector))
		}
		filled = append(filled, f.Selector)
	}

	if rawResult {
		return model.ToolResult{Raw: map[string]interface{}{"filled": filled}}
	}
	return model.TextResult(fmt.Sprintf("Filled %d field(s): %v", len(filled), filled))
}

type dragArgs struct {
	FromSelector string `json:"fromSelector"`
	ToSelector   string `json:"toSelector"`
}

func handleDrag(ctx context.Context, hc *connection.HandlerContext, args json.RawMessage, rawResult bool) model.ToolResult {
	var a dragArgs
	if err := decode(args, &a); err != nil {
		return fromError(err)
	}

	fx, fy, err := hc.CDP.ElementCenter(ctx, a.FromSelector)
	if err != nil {
		return fromError(err)
	}
	tx, ty, err := hc.CDP.ElementCenter(ctx, a.ToSelector)
	if err != nil {
		return fromError(err)
	}

	if _, err := hc.CDP.CDP(ctx, "Input.dispatchMouseEvent", map[string]interface{}{
		"type": "mouseMoved", "x": fx, "y": fy,
	}); err != nil {
		return fromError(err)
	}
	if _, err := hc.CDP.CDP(ctx, "Input.dispatchMouseEvent", map[string]interface{}{
		"type": "mousePressed", "x": fx, "y": fy, "button": "left", "clickCount": 1,
	}); err != nil {
		return fromError(err)
	}

	const steps = 10
	for i := 1; i <= steps; i++ {
		x := fx + (tx-fx)*i/steps
		y := fy + (ty-fy)*i/steps
		if _, err := hc.CDP.CDP(ctx, "Input.dispatchMouseEvent", map[string]interface{}{
			"type": "mouseMoved", "x": x, "y": y,
		}); err != nil {
			return fromError(err)
		}
		_ = hc.CDP.Sleep(ctx, 15*time.Millisecond)
	}

	if _, err := hc.CDP.CDP(ctx, "Input.dispatchMouseEvent", map[string]interface{}{
		"type": "mouseReleased", "x": tx, "y": ty, "button": "left", "clickCount": 1,
	}); err != nil {
		return fromError(err)
	}

	if rawResult {
		return model.ToolResult{Raw: map[string]bool{"dragged": true}}
	}
	return model.TextResult(fmt.Sprintf("Dragged %s to %s", a.FromSelector, a.ToSelector))
}
