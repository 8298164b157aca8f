// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

// Package cdp provides the small set of primitives every tool handler is
// built from: raw CDP forwarding, page-context evaluation, sleeping, and
// selector/element resolution (including the non-standard :has-text()
// suffix and the "did you mean?" fallback search).
package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robmacrae/surfbroker/internal/model"
)

// Sender is the subset of *bridge.Bridge the primitives need.
type Sender interface {
	SendCmdTimeout(ctx context.Context, method string, params interface{}, timeout time.Duration) (json.RawMessage, error)
}

type Primitives struct {
	Ext Sender
}

func New(ext Sender) *Primitives { return &Primitives{Ext: ext} }

// CDP forwards method/params through the extension's single
// forwardCDPCommand envelope.
func (p *Primitives) CDP(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	return p.Ext.SendCmdTimeout(ctx, "forwardCDPCommand", map[string]interface{}{
		"method": method,
		"params": params,
	}, 30*time.Second)
}

type evalResult struct {
	Result struct {
		Value interface{} `json:"value"`
	} `json:"result"`
	ExceptionDetails *exceptionDetails `json:"exceptionDetails"`
}

type exceptionDetails struct {
	Text      string `json:"text"`
	Exception *struct {
		Description string `json:"description"`
		ClassName   string `json:"className"`
	} `json:"exception"`
}

func (e *exceptionDetails) message() string {
	if e.Exception != nil && e.Exception.Description != "" {
		return e.Exception.Description
	}
	if e.Text != "" {
		return e.Text
	}
	if e.Exception != nil && e.Exception.ClassName != "" {
		return e.Exception.ClassName
	}
	return "JavaScript execution error"
}

// Eval runs expression in the page and returns its value.
func (p *Primitives) Eval(ctx context.Context, expression string, awaitPromise bool) (interface{}, error) {
	raw, err := p.CDP(ctx, "Runtime.evaluate", map[string]interface{}{
		"expression":    expression,
		"returnByValue": true,
		"awaitPromise":  awaitPromise,
		"userGesture":   true,
	})
	if err != nil {
		return nil, err
	}
	var out evalResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("cdp: decode evaluate response: %w", err)
	}
	if out.ExceptionDetails != nil {
		return nil, model.NewToolError(model.KindScriptError, out.ExceptionDetails.message())
	}
	return out.Result.Value, nil
}

func (p *Primitives) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var hasTextRe = regexp.MustCompile(`^(.*):has-text\("(.*)"\)$`)

// SelectorExpression turns a user-supplied selector into a JS expression
// evaluating to an Element or null, understanding the non-standard
// :has-text("…") suffix.
func SelectorExpression(sel string) string {
	if m := hasTextRe.FindStringSubmatch(sel); m != nil {
		base, text := m[1], m[2]
		if base == "" {
			base = "*"
		}
		return fmt.Sprintf(`(function(){
			var base = %s;
			var needle = %s;
			var els = document.querySelectorAll(base);
			for (var i = 0; i < els.length; i++) {
				if (els[i].textContent && els[i].textContent.indexOf(needle) !== -1) return els[i];
			}
			return null;
		})()`, strconv.Quote(base), strconv.Quote(text))
	}
	return fmt.Sprintf("document.querySelector(%s)", strconv.Quote(sel))
}

// ElementCenter resolves sel and returns the integer midpoint of its
// bounding rect, with a "did you mean?" fallback baked into the error
// when the element cannot be found.
func (p *Primitives) ElementCenter(ctx context.Context, sel string) (x, y int, err error) {
	expr := fmt.Sprintf(`(function(){
		var el = %s;
		if (!el) return null;
		var r = el.getBoundingClientRect();
		return {x: Math.round(r.left + r.width/2), y: Math.round(r.top + r.height/2)};
	})()`, SelectorExpression(sel))

	v, err := p.Eval(ctx, expr, false)
	if err != nil {
		return 0, 0, err
	}
	if v == nil {
		msg := fmt.Sprintf("element not found: %s", sel)
		if suggestions, serr := p.findAlternativeSelectors(ctx, extractNeedle(sel)); serr == nil && len(suggestions) > 0 {
			msg += "\n\nDid you mean?\n" + strings.Join(suggestions, "\n")
		}
		return 0, 0, model.NewToolError(model.KindElementNotFound, msg)
	}
	obj, ok := v.(map[string]interface{})
	if !ok {
		return 0, 0, fmt.Errorf("cdp: unexpected element-center shape")
	}
	xf, _ := obj["x"].(float64)
	yf, _ := obj["y"].(float64)
	return int(xf), int(yf), nil
}

func extractNeedle(sel string) string {
	if m := hasTextRe.FindStringSubmatch(sel); m != nil {
		return m[2]
	}
	return sel
}

// Candidate is one fallback match surfaced in a "did you mean?" list.
type Candidate struct {
	Selector string `json:"selector"`
	Visible  bool   `json:"visible"`
	Text     string `json:"text"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
}

const scanScript = `(function(needle){
	needle = (needle || "").toLowerCase();
	var out = [];
	var all = document.querySelectorAll("*");
	for (var i = 0; i < all.length; i++) {
		var el = all[i];
		var own = "";
		for (var c = 0; c < el.childNodes.length; c++) {
			var n = el.childNodes[c];
			if (n.nodeType === 3) own += n.textContent;
		}
		own = own.trim();
		if (!own) continue;
		if (needle && own.toLowerCase().indexOf(needle) === -1) continue;

		var sel;
		if (el.id) sel = "#" + el.id;
		else if (el.className && typeof el.className === "string" && el.className.trim()) {
			sel = "." + el.className.trim().split(/\s+/).slice(0, 2).join(".");
		} else if (el.getAttribute("role")) sel = "[role=" + el.getAttribute("role") + "]";
		else sel = el.tagName.toLowerCase();

		var style = window.getComputedStyle(el);
		var rect = el.getBoundingClientRect();
		var visible = style.display !== "none" && style.visibility !== "hidden" &&
			parseFloat(style.opacity) !== 0 && rect.width > 0 && rect.height > 0;

		out.push({selector: sel, visible: visible, text: own.slice(0, 80), x: Math.round(rect.left), y: Math.round(rect.top)});
	}
	return out;
})(%s)`

func (p *Primitives) findAlternativeSelectors(ctx context.Context, needle string) ([]string, error) {
	v, err := p.Eval(ctx, fmt.Sprintf(scanScript, strconv.Quote(needle)), false)
	if err != nil {
		return nil, err
	}
	raw, ok := v.([]interface{})
	if !ok {
		return nil, nil
	}
	var visible, hidden []Candidate
	for _, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		c := Candidate{
			Selector: fmt.Sprint(m["selector"]),
			Text:     fmt.Sprint(m["text"]),
		}
		if b, ok := m["visible"].(bool); ok {
			c.Visible = b
		}
		if xf, ok := m["x"].(float64); ok {
			c.X = int(xf)
		}
		if yf, ok := m["y"].(float64); ok {
			c.Y = int(yf)
		}
		if c.Visible {
			if len(visible) < 3 {
				visible = append(visible, c)
			}
		} else if len(hidden) < 2 {
			hidden = append(hidden, c)
		}
	}
	var lines []string
	n := 1
	for _, c := range visible {
		lines = append(lines, fmt.Sprintf("%d. %s — %q (visible)", n, c.Selector, c.Text))
		n++
	}
	for _, c := range hidden {
		lines = append(lines, fmt.Sprintf("%d. %s — %q (hidden)", n, c.Selector, c.Text))
		n++
	}
	return lines, nil
}

// FindAlternativeSelectors is the exported entry point used directly by
// browser_lookup, which always runs the scan rather than only on failure.
// Visible matches are listed before hidden ones.
func (p *Primitives) FindAlternativeSelectors(ctx context.Context, needle string, limit int) ([]Candidate, error) {
	v, err := p.Eval(ctx, fmt.Sprintf(scanScript, strconv.Quote(needle)), false)
	if err != nil {
		return nil, err
	}
	raw, ok := v.([]interface{})
	if !ok {
		return nil, nil
	}
	var visible, hidden []Candidate
	for _, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		c := Candidate{Selector: fmt.Sprint(m["selector"]), Text: fmt.Sprint(m["text"])}
		if b, ok := m["visible"].(bool); ok {
			c.Visible = b
		}
		if xf, ok := m["x"].(float64); ok {
			c.X = int(xf)
		}
		if yf, ok := m["y"].(float64); ok {
			c.Y = int(yf)
		}
		if c.Visible {
			visible = append(visible, c)
		} else {
			hidden = append(hidden, c)
		}
	}
	out := append(visible, hidden...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
