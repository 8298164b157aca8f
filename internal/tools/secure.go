// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/robmacrae/surfbroker/internal/connection"
	"github.com/robmacrae/surfbroker/internal/model"
)

func init() {
	register("secure_fill", "Fill a field with a credential read from a server-side environment variable, never exposed to the agent.", `{
		"type": "object",
		"properties": {
			"selector": {"type": "string"},
			"credential_env": {"type": "string"}
		},
		"required": ["selector", "credential_env"]
	}`, handleSecureFill, false)
}

type secureFillArgs struct {
	Selector      string `json:"selector"`
	CredentialEnv string `json:"credential_env"`
}

func handleSecureFill(ctx context.Context, hc *connection.HandlerContext, args json.RawMessage, rawResult bool) model.ToolResult {
	var a secureFillArgs
	if err := decode(args, &a); err != nil {
		return fromError(err)
	}
	value, ok := os.LookupEnv(a.CredentialEnv)
	if !ok {
		return model.ErrResult(fmt.Sprintf("environment variable %s is not set", a.CredentialEnv))
	}

	// The credential value is sent directly to the extension for
	// char-by-char typing with randomized delays; it is never logged or
	// echoed back to the agent at normal verbosity.
	if _, err := callExtension(ctx, hc, "secureType", map[string]interface{}{
		"selector": a.Selector, "value": value,
	}); err != nil {
		return fromError(err)
	}

	if rawResult {
		return model.ToolResult{Raw: map[string]bool{"filled": true}}
	}
	return model.TextResult(fmt.Sprintf("Filled %s from $%s.", a.Selector, a.CredentialEnv))
}
