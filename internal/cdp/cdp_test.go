// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/robmacrae/surfbroker/internal/model"
)

type fakeSender struct {
	resp json.RawMessage
	err  error
	last string
}

func (f *fakeSender) SendCmdTimeout(ctx context.Context, method string, params interface{}, timeout time.Duration) (json.RawMessage, error) {
	f.last = method
	return f.resp, f.err
}

func TestSelectorExpressionPlain(t *testing.T) {
	expr := SelectorExpression("#submit")
	if !strings.Contains(expr, `document.querySelector("#submit")`) {
		t.Errorf("unexpected expression: %s", expr)
	}
}

func TestSelectorExpressionHasText(t *testing.T) {
	expr := SelectorExpression(`button:has-text("Sign in")`)
	if !strings.Contains(expr, "Sign in") || !strings.Contains(expr, "querySelectorAll") {
		t.Errorf("unexpected expression: %s", expr)
	}
}

func TestEvalReturnsValue(t *testing.T) {
	sender := &fakeSender{resp: json.RawMessage(`{"result":{"value":42}}`)}
	p := New(sender)

	v, err := p.Eval(context.Background(), "21*2", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != float64(42) {
		t.Errorf("Eval() = %v, want 42", v)
	}
	if sender.last != "forwardCDPCommand" {
		t.Errorf("expected forwarded command, got %q", sender.last)
	}
}

func TestEvalSurfacesScriptError(t *testing.T) {
	sender := &fakeSender{resp: json.RawMessage(`{"exceptionDetails":{"text":"Uncaught ReferenceError: x is not defined"}}`)}
	p := New(sender)

	_, err := p.Eval(context.Background(), "x.y", false)
	if err == nil {
		t.Fatal("expected error")
	}
	var toolErr *model.ToolError
	if !errors.As(err, &toolErr) {
		t.Fatalf("expected *model.ToolError, got %T", err)
	}
	if toolErr.Kind != model.KindScriptError {
		t.Errorf("Kind = %v, want KindScriptError", toolErr.Kind)
	}
}

func TestElementCenterNotFoundSuggestsAlternatives(t *testing.T) {
	calls := 0
	sender := &fakeSenderSeq{
		responses: []json.RawMessage{
			json.RawMessage(`{"result":{"value":null}}`),
			json.RawMessage(`{"result":{"value":[{"selector":"#login","visible":true,"text":"Log in","x":10,"y":20}]}}`),
		},
		onCall: func() { calls++ },
	}
	p := New(sender)

	_, _, err := p.ElementCenter(context.Background(), "#nonexistent")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "Did you mean?") {
		t.Errorf("expected did-you-mean suggestion, got: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 eval calls, got %d", calls)
	}
}

type fakeSenderSeq struct {
	responses []json.RawMessage
	idx       int
	onCall    func()
}

func (f *fakeSenderSeq) SendCmdTimeout(ctx context.Context, method string, params interface{}, timeout time.Duration) (json.RawMessage, error) {
	if f.onCall != nil {
		f.onCall()
	}
	r := f.responses[f.idx]
	if f.idx < len(f.responses)-1 {
		f.idx++
	}
	return r, nil
}
