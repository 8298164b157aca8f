// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/robmacrae/surfbroker/internal/cdp"
	"github.com/robmacrae/surfbroker/internal/connection"
	"github.com/robmacrae/surfbroker/internal/model"
)

func init() {
	register("browser_interact", "Run an ordered list of page interactions (click, type, hover, scroll, …).", `{
		"type": "object",
		"properties": {
			"actions": {
				"type": "array",
				"items": {
					"type": "object",
					"properties": {
						"type": {"type": "string", "enum": [
							"click", "type", "clear", "press_key", "hover", "wait",
							"mouse_move", "mouse_click", "scroll_to", "scroll_by",
							"scroll_into_view", "select_option", "file_upload",
							"force_pseudo_state"
						]},
						"selector": {"type": "string"},
						"x": {"type": "number"},
						"y": {"type": "number"},
						"text": {"type": "string"},
						"key": {"type": "string"},
						"timeout": {"type": "integer"},
						"dx": {"type": "number"},
						"dy": {"type": "number"},
						"value": {"type": "string"},
						"files": {"type": "array", "items": {"type": "string"}},
						"pseudoClasses": {"type": "array", "items": {"type": "string"}},
						"button": {"type": "string"},
						"clickCount": {"type": "integer"}
					},
					"required": ["type"]
				}
			},
			"onError": {"type": "string", "enum": ["stop", "ignore"]},
			"screenshot": {"type": "boolean"}
		},
		"required": ["actions"]
	}`, handleBrowserInteract, true)
}

type interactAction struct {
	Type          string   `json:"type"`
	Selector      string   `json:"selector"`
	X             *float64 `json:"x"`
	Y             *float64 `json:"y"`
	Text          string   `json:"text"`
	Key           string   `json:"key"`
	Timeout       int      `json:"timeout"`
	DX            float64  `json:"dx"`
	DY            float64  `json:"dy"`
	Value         string   `json:"value"`
	Files         []string `json:"files"`
	PseudoClasses []string `json:"pseudoClasses"`
	Button        string   `json:"button"`
	ClickCount    int      `json:"clickCount"`
}

type interactArgs struct {
	Actions []interactAction `json:"actions"`
	OnError string           `json:"onError"`
}

type actionOutcome struct {
	Index int    `json:"index"`
	Type  string `json:"type"`
	OK    bool   `json:"ok"`
	Info  string `json:"info,omitempty"`
}

func handleBrowserInteract(ctx context.Context, hc *connection.HandlerContext, args json.RawMessage, rawResult bool) model.ToolResult {
	var a interactArgs
	if err := decode(args, &a); err != nil {
		return fromError(err)
	}
	stop := a.OnError != "ignore"

	var outcomes []actionOutcome
	var failed bool
	for i, act := range a.Actions {
		info, err := runAction(ctx, hc, act)
		out := actionOutcome{Index: i, Type: act.Type, OK: err == nil, Info: info}
		if err != nil {
			out.Info = err.Error()
			failed = true
		}
		outcomes = append(outcomes, out)
		if err != nil && stop {
			break
		}
	}

	if rawResult {
		return model.ToolResult{Raw: outcomes, IsError: failed}
	}

	var lines []string
	for _, o := range outcomes {
		mark := "✓"
		if !o.OK {
			mark = "✗"
		}
		line := fmt.Sprintf("%s [%d] %s", mark, o.Index, o.Type)
		if o.Info != "" {
			line += ": " + o.Info
		}
		lines = append(lines, line)
	}
	res := model.TextResult(strings.Join(lines, "\n"))
	res.IsError = failed
	return res
}

func runAction(ctx context.Context, hc *connection.HandlerContext, act interactAction) (string, error) {
	switch act.Type {
	case "click":
		return "", doClick(ctx, hc, act)
	case "type":
		if err := doType(ctx, hc, act); err != nil {
			return "", err
		}
		target := "document.activeElement"
		if act.Selector != "" {
			target = cdp.SelectorExpression(act.Selector)
		}
		v, err := hc.CDP.Eval(ctx, fmt.Sprintf(`(function(){var el=%s; return el && "value" in el ? String(el.value) : null;})()`, target), false)
		if err != nil || v == nil {
			return "", nil
		}
		return fmt.Sprintf("value: %v", v), nil
	case "clear":
		return "", doClear(ctx, hc, act)
	case "press_key":
		return "", doPressKey(ctx, hc, act)
	case "hover":
		x, y, err := resolveXY(ctx, hc, act)
		if err != nil {
			return "", err
		}
		return "", moveCursor(ctx, hc, x, y)
	case "wait":
		return doWait(ctx, hc, act)
	case "mouse_move":
		x, y, err := requireXY(act)
		if err != nil {
			return "", err
		}
		return "", moveCursor(ctx, hc, x, y)
	case "mouse_click":
		x, y, err := requireXY(act)
		if err != nil {
			return "", err
		}
		return "", clickAt(ctx, hc, x, y, act)
	case "scroll_to":
		_, err := hc.CDP.Eval(ctx, fmt.Sprintf("window.scrollTo(%f, %f)", derefOr(act.X, 0), derefOr(act.Y, 0)), false)
		return "", err
	case "scroll_by":
		_, err := hc.CDP.Eval(ctx, fmt.Sprintf("window.scrollBy(%f, %f)", act.DX, act.DY), false)
		return "", err
	case "scroll_into_view":
		expr := fmt.Sprintf(`(function(){var el=%s; if(!el) return false; el.scrollIntoView({block:"center", behavior:"smooth"}); return true;})()`, cdp.SelectorExpression(act.Selector))
		v, err := hc.CDP.Eval(ctx, expr, false)
		if err != nil {
			return "", err
		}
		if b, _ := v.(bool); !b {
			return "", model.NewToolError(model.KindElementNotFound, "element not found: "+act.Selector)
		}
		return "", nil
	case "select_option":
		return doSelectOption(ctx, hc, act)
	case "file_upload":
		return "", doFileUpload(ctx, hc, act)
	case "force_pseudo_state":
		return "", doForcePseudoState(ctx, hc, act)
	default:
		return "", fmt.Errorf("unknown action type: %s", act.Type)
	}
}

func derefOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

func requireXY(act interactAction) (int, int, error) {
	if act.X == nil || act.Y == nil {
		return 0, 0, fmt.Errorf("x and y are required")
	}
	return int(*act.X), int(*act.Y), nil
}

func resolveXY(ctx context.Context, hc *connection.HandlerContext, act interactAction) (int, int, error) {
	if act.X != nil && act.Y != nil {
		return int(*act.X), int(*act.Y), nil
	}
	if act.Selector == "" {
		return 0, 0, fmt.Errorf("selector or x/y required")
	}
	return hc.CDP.ElementCenter(ctx, act.Selector)
}

func moveCursor(ctx context.Context, hc *connection.HandlerContext, x, y int) error {
	_, err := hc.CDP.CDP(ctx, "Input.dispatchMouseEvent", map[string]interface{}{
		"type": "mouseMoved", "x": x, "y": y,
	})
	return err
}

func clickAt(ctx context.Context, hc *connection.HandlerContext, x, y int, act interactAction) error {
	button := act.Button
	if button == "" {
		button = "left"
	}
	clickCount := act.ClickCount
	if clickCount == 0 {
		clickCount = 1
	}
	if err := moveCursor(ctx, hc, x, y); err != nil {
		return err
	}
	holdMillis := 78 + rand.Intn(141-78+1)
	if _, err := hc.CDP.CDP(ctx, "Input.dispatchMouseEvent", map[string]interface{}{
		"type": "mousePressed", "x": x, "y": y, "button": button, "clickCount": clickCount,
	}); err != nil {
		return err
	}
	_ = hc.CDP.Sleep(ctx, time.Duration(holdMillis)*time.Millisecond)
	_, err := hc.CDP.CDP(ctx, "Input.dispatchMouseEvent", map[string]interface{}{
		"type": "mouseReleased", "x": x, "y": y, "button": button, "clickCount": clickCount,
	})
	return err
}

func doClick(ctx context.Context, hc *connection.HandlerContext, act interactAction) error {
	x, y, err := resolveXY(ctx, hc, act)
	if err != nil {
		return err
	}
	return clickAt(ctx, hc, x, y, act)
}

func doType(ctx context.Context, hc *connection.HandlerContext, act interactAction) error {
	if act.Selector != "" {
		expr := fmt.Sprintf(`(function(){var el=%s; if(!el) return false; el.focus(); return true;})()`, cdp.SelectorExpression(act.Selector))
		v, err := hc.CDP.Eval(ctx, expr, false)
		if err != nil {
			return err
		}
		if b, _ := v.(bool); !b {
			return model.NewToolError(model.KindElementNotFound, "element not found: "+act.Selector)
		}
	}
	for _, r := range act.Text {
		if _, err := hc.CDP.CDP(ctx, "Input.dispatchKeyEvent", map[string]interface{}{
			"type": "char", "text": string(r),
		}); err != nil {
			return err
		}
		_ = hc.CDP.Sleep(ctx, time.Duration(12+rand.Intn(40))*time.Millisecond)
	}
	return nil
}

func doClear(ctx context.Context, hc *connection.HandlerContext, act interactAction) error {
	expr := fmt.Sprintf(`(function(){
		var el = %s;
		if (!el) return false;
		el.value = "";
		el.dispatchEvent(new Event("input", {bubbles:true}));
		el.dispatchEvent(new Event("change", {bubbles:true}));
		return true;
	})()`, cdp.SelectorExpression(act.Selector))
	v, err := hc.CDP.Eval(ctx, expr, false)
	if err != nil {
		return err
	}
	if b, _ := v.(bool); !b {
		return model.NewToolError(model.KindElementNotFound, "element not found: "+act.Selector)
	}
	return nil
}

type keySpec struct {
	Key     string
	Code    string
	KeyCode int
	Text    string
}

var namedKeys = map[string]keySpec{
	"Enter":     {"Enter", "Enter", 13, "\r"},
	"Tab":       {"Tab", "Tab", 9, ""},
	"Escape":    {"Escape", "Escape", 27, ""},
	"Backspace": {"Backspace", "Backspace", 8, ""},
	"Delete":    {"Delete", "Delete", 46, ""},
	"ArrowUp":   {"ArrowUp", "ArrowUp", 38, ""},
	"ArrowDown": {"ArrowDown", "ArrowDown", 40, ""},
	"ArrowLeft": {"ArrowLeft", "ArrowLeft", 37, ""},
	"ArrowRight": {"ArrowRight", "ArrowRight", 39, ""},
	"Space":     {" ", "Space", 32, " "},
	"Home":      {"Home", "Home", 36, ""},
	"End":       {"End", "End", 35, ""},
	"PageUp":    {"PageUp", "PageUp", 33, ""},
	"PageDown":  {"PageDown", "PageDown", 34, ""},
}

func doPressKey(ctx context.Context, hc *connection.HandlerContext, act interactAction) error {
	spec, ok := namedKeys[act.Key]
	if !ok {
		if len([]rune(act.Key)) == 1 {
			spec = keySpec{Key: act.Key, Code: "Key" + strings.ToUpper(act.Key), KeyCode: int(act.Key[0]), Text: act.Key}
		} else {
			return fmt.Errorf("unrecognized key: %s", act.Key)
		}
	}
	params := map[string]interface{}{"key": spec.Key, "code": spec.Code, "windowsVirtualKeyCode": spec.KeyCode}
	if spec.Text != "" {
		params["text"] = spec.Text
	}
	down := map[string]interface{}{"type": "keyDown"}
	up := map[string]interface{}{"type": "keyUp"}
	for k, v := range params {
		down[k] = v
		up[k] = v
	}
	if _, err := hc.CDP.CDP(ctx, "Input.dispatchKeyEvent", down); err != nil {
		return err
	}
	_, err := hc.CDP.CDP(ctx, "Input.dispatchKeyEvent", up)
	return err
}

func doWait(ctx context.Context, hc *connection.HandlerContext, act interactAction) (string, error) {
	timeout := time.Duration(act.Timeout) * time.Millisecond
	if act.Timeout == 0 {
		timeout = 30 * time.Second
	}
	if act.Selector == "" {
		_ = hc.CDP.Sleep(ctx, timeout)
		return "", nil
	}
	deadline := time.Now().Add(timeout)
	expr := fmt.Sprintf("!!(%s)", cdp.SelectorExpression(act.Selector))
	for {
		v, err := hc.CDP.Eval(ctx, expr, false)
		if err != nil {
			return "", err
		}
		if b, _ := v.(bool); b {
			return "found", nil
		}
		if time.Now().After(deadline) {
			return "", model.NewToolError(model.KindElementNotFound, "timed out waiting for: "+act.Selector)
		}
		_ = hc.CDP.Sleep(ctx, 100*time.Millisecond)
	}
}

func doSelectOption(ctx context.Context, hc *connection.HandlerContext, act interactAction) (string, error) {
	expr := fmt.Sprintf(`(function(){
		var el = %s;
		if (!el || !el.options) return null;
		var target = %s;
		var found = null;
		for (var i = 0; i < el.options.length; i++) {
			if (el.options[i].value === target) { found = el.options[i]; break; }
		}
		if (!found) {
			var lower = target.toLowerCase();
			for (var i = 0; i < el.options.length; i++) {
				if (el.options[i].text.toLowerCase() === lower) { found = el.options[i]; break; }
			}
		}
		if (!found) return null;
		var setter = Object.getOwnPropertyDescriptor(window.HTMLSelectElement.prototype, "value").set;
		setter.call(el, found.value);
		el.dispatchEvent(new Event("input", {bubbles:true}));
		el.dispatchEvent(new Event("change", {bubbles:true}));
		return found.text;
	})()`, cdp.SelectorExpression(act.Selector), strconv.Quote(act.Value))

	v, err := hc.CDP.Eval(ctx, expr, false)
	if err != nil {
		return "", err
	}
	text, ok := v.(string)
	if !ok {
		return "", model.NewToolError(model.KindElementNotFound, "option not found: "+act.Value)
	}
	return "selected " + text, nil
}

func doFileUpload(ctx context.Context, hc *connection.HandlerContext, act interactAction) error {
	expr := cdp.SelectorExpression(act.Selector)
	raw, err := hc.CDP.CDP(ctx, "Runtime.evaluate", map[string]interface{}{
		"expression": expr, "objectGroup": "console",
	})
	if err != nil {
		return err
	}
	var out struct {
		Result struct {
			ObjectID string `json:"objectId"`
		} `json:"result"`
	}
	if err := unmarshalInto(raw, &out); err != nil {
		return err
	}
	if out.Result.ObjectID == "" {
		return model.NewToolError(model.KindElementNotFound, "element not found: "+act.Selector)
	}
	describeRaw, err := hc.CDP.CDP(ctx, "DOM.describeNode", map[string]interface{}{"objectId": out.Result.ObjectID})
	if err != nil {
		return err
	}
	var described struct {
		Node struct {
			NodeID int `json:"nodeId"`
		} `json:"node"`
	}
	if err := unmarshalInto(describeRaw, &described); err != nil {
		return err
	}
	_, err = hc.CDP.CDP(ctx, "DOM.setFileInputFiles", map[string]interface{}{
		"files": act.Files, "nodeId": described.Node.NodeID,
	})
	return err
}

func doForcePseudoState(ctx context.Context, hc *connection.HandlerContext, act interactAction) error {
	nodeID, err := resolveNodeID(ctx, hc, act.Selector)
	if err != nil {
		return err
	}
	_, err = hc.CDP.CDP(ctx, "CSS.forcePseudoState", map[string]interface{}{
		"nodeId": nodeID, "forcedPseudoClasses": act.PseudoClasses,
	})
	return err
}

func resolveNodeID(ctx context.Context, hc *connection.HandlerContext, selector string) (int, error) {
	docRaw, err := hc.CDP.CDP(ctx, "DOM.getDocument", map[string]interface{}{})
	if err != nil {
		return 0, err
	}
	var doc struct {
		Root struct {
			NodeID int `json:"nodeId"`
		} `json:"root"`
	}
	if err := unmarshalInto(docRaw, &doc); err != nil {
		return 0, err
	}
	qRaw, err := hc.CDP.CDP(ctx, "DOM.querySelector", map[string]interface{}{
		"nodeId": doc.Root.NodeID, "selector": selector,
	})
	if err != nil {
		return 0, err
	}
	var q struct {
		NodeID int `json:"nodeId"`
	}
	if err := unmarshalInto(qRaw, &q); err != nil {
		return 0, err
	}
	if q.NodeID == 0 {
		return 0, model.NewToolError(model.KindElementNotFound, "element not found: "+selector)
	}
	return q.NodeID, nil
}
