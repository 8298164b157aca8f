// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/robmacrae/surfbroker/internal/connection"
	"github.com/robmacrae/surfbroker/internal/model"
	"github.com/robmacrae/surfbroker/internal/secureeval"
)

func init() {
	register("browser_evaluate", "Execute JavaScript in the page and return the result.", `{
		"type": "object",
		"properties": {
			"function": {"type": "string"},
			"expression": {"type": "string"}
		}
	}`, handleEvaluate, false)
}

type evaluateArgs struct {
	Function   string `json:"function"`
	Expression string `json:"expression"`
}

const membraneWrapperTemplate = `(function(){
	var blocked = ["fetch", "XMLHttpRequest", "WebSocket", "eval", "Function"];
	return (function() {
		with (new Proxy({}, {
			has: function() { return true; },
			get: function(target, prop) {
				if (blocked.indexOf(prop) !== -1) {
					throw new Error("evaluate blocked by secure_eval: reference to '" + prop + "' is not permitted");
				}
				return window[prop];
			}
		})) {
			return (%s);
		}
	})();
})()`

func handleEvaluate(ctx context.Context, hc *connection.HandlerContext, args json.RawMessage, rawResult bool) model.ToolResult {
	var a evaluateArgs
	if err := decode(args, &a); err != nil {
		return fromError(err)
	}
	expr := a.Expression
	if expr == "" {
		expr = a.Function
	}
	if expr == "" {
		return model.ErrResult("either \"function\" or \"expression\" is required")
	}

	if hc.Manager.ExperimentEnabled("secure_eval") {
		if te := secureeval.Check(expr); te != nil {
			return fromError(te)
		}
		if raw, err := callExtension(ctx, hc, "validateEval", map[string]interface{}{"expression": expr}); err == nil {
			var verdict struct {
				Allowed *bool  `json:"allowed"`
				Reason  string `json:"reason"`
			}
			if len(raw) > 0 && json.Unmarshal(raw, &verdict) == nil && verdict.Allowed != nil && !*verdict.Allowed {
				reason := verdict.Reason
				if reason == "" {
					reason = "rejected by the extension-side membrane"
				}
				return fromError(model.NewToolError(model.KindBlocked, "evaluate blocked by secure_eval: "+reason))
			}
		}
		// err != nil means the command is unsupported or unreachable, which
		// is not itself a rejection; layers 1 and 3 still protect.
		expr = fmt.Sprintf(membraneWrapperTemplate, expr)
	}

	v, err := hc.CDP.Eval(ctx, expr, true)
	if err != nil {
		return fromError(err)
	}
	if rawResult {
		return model.ToolResult{Raw: v}
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return model.TextResult(fmt.Sprint(v))
	}
	return model.TextResult(string(b))
}
