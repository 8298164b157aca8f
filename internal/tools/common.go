// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robmacrae/surfbroker/internal/connection"
	"github.com/robmacrae/surfbroker/internal/model"
)

func decode(args json.RawMessage, v interface{}) error {
	if len(args) == 0 {
		return nil
	}
	return json.Unmarshal(args, v)
}

// fromError converts any error into a ToolResult, preserving a
// *model.ToolError's classification when present and appending the
// extension-conflict troubleshooting hint when the peer message suggests
// a debugger-attachment clash.
func fromError(err error) model.ToolResult {
	var te *model.ToolError
	msg := err.Error()
	if errors.As(err, &te) {
		msg = te.Error()
		if isExtensionConflict(msg) {
			msg += "\n\nThis usually means another DevTools session (or a previous broker instance) is still attached to the tab. Close it and try again."
		}
	}
	return model.ErrResult(msg)
}

func isExtensionConflict(msg string) bool {
	for _, needle := range []string{"Another debugger", "already attached", "cannot access a chrome", "Cannot attach"} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}

func callExtension(ctx context.Context, hc *connection.HandlerContext, method string, params interface{}) (json.RawMessage, error) {
	if hc.Ext == nil {
		return nil, model.NewToolError(model.KindNotConnected, "no extension connected")
	}
	return hc.Ext.SendCmd(ctx, method, params)
}

func callExtensionTimeout(ctx context.Context, hc *connection.HandlerContext, method string, params interface{}, timeout time.Duration) (json.RawMessage, error) {
	if hc.Ext == nil {
		return nil, model.NewToolError(model.KindNotConnected, "no extension connected")
	}
	return hc.Ext.SendCmdTimeout(ctx, method, params, timeout)
}

func unmarshalInto(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("tools: decode extension response: %w", err)
	}
	return nil
}
