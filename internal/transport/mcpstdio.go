// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

// Package transport implements the two agent-facing surfaces: MCP over
// stdio (built on mark3labs/mcp-go) and the line-delimited JSON-RPC
// "script mode" alternative.
package transport

import (
	"context"
	"encoding/json"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/robmacrae/surfbroker/internal/connection"
	"github.com/robmacrae/surfbroker/internal/logging"
	"github.com/robmacrae/surfbroker/internal/model"
)

// MCPStdio adapts the connection manager's tool catalog onto an MCP
// stdio server, re-registering tools whenever the manager reports the
// available set may have changed.
type MCPStdio struct {
	mgr    *connection.Manager
	server *mcpserver.MCPServer
	log    *logging.Trail
}

func NewMCPStdio(mgr *connection.Manager, log *logging.Trail) *MCPStdio {
	s := mcpserver.NewMCPServer("surfbroker", connection.Version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithLogging(),
		mcpserver.WithRecovery(),
	)
	t := &MCPStdio{mgr: mgr, server: s, log: log}
	t.registerAll()
	mgr.SetOnToolsChanged(t.registerAll)
	return t
}

func (t *MCPStdio) registerAll() {
	for _, schema := range t.mgr.ListTools() {
		raw := schema.InputSchema
		if len(raw) == 0 {
			raw = json.RawMessage(`{"type":"object","properties":{}}`)
		}
		tool := mcp.NewToolWithRawSchema(schema.Name, schema.Description, raw)
		t.server.AddTool(tool, t.wrap(schema.Name))
	}
}

func (t *MCPStdio) wrap(name string) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := json.Marshal(request.GetArguments())
		if err != nil {
			args = json.RawMessage("{}")
		}
		result := t.mgr.CallTool(ctx, name, args, false)
		t.log.LogJSON("mcp tool call "+name, map[string]interface{}{"args": request.GetArguments()})
		return toMCPResult(result), nil
	}
}

func toMCPResult(r model.ToolResult) *mcp.CallToolResult {
	var content []mcp.Content
	for _, c := range r.Content {
		switch c.Type {
		case "image":
			content = append(content, mcp.NewImageContent(c.Data, c.MimeType))
		default:
			content = append(content, mcp.NewTextContent(c.Text))
		}
	}
	return &mcp.CallToolResult{Content: content, IsError: r.IsError}
}

// Serve blocks until stdin closes or ctx is cancelled.
func (t *MCPStdio) Serve(ctx context.Context) error {
	stdio := mcpserver.NewStdioServer(t.server)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}
