// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/robmacrae/surfbroker/internal/connection"
	"github.com/robmacrae/surfbroker/internal/logging"
	"github.com/robmacrae/surfbroker/internal/model"
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *rpcError   `json:"error,omitempty"`
}

// ScriptMode reads line-delimited JSON-RPC 2.0 from in and writes
// line-delimited responses to out, one line per request or per element
// of a batch array.
type ScriptMode struct {
	mgr    *connection.Manager
	log    *logging.Trail
	outMu  sync.Mutex
}

func NewScriptMode(mgr *connection.Manager, log *logging.Trail) *ScriptMode {
	return &ScriptMode{mgr: mgr, log: log}
}

func (s *ScriptMode) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 1<<20), 10<<20)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		s.handleLine(ctx, append([]byte(nil), line...), out)
	}
	return scanner.Err()
}

func (s *ScriptMode) handleLine(ctx context.Context, line []byte, out io.Writer) {
	trimmed := trimLeadingSpace(line)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var batch []json.RawMessage
		if err := json.Unmarshal(trimmed, &batch); err != nil {
			s.writeResponse(out, rpcResponse{JSONRPC: "2.0", Error: &rpcError{Code: -32700, Message: "parse error"}})
			return
		}
		for _, item := range batch {
			s.handleSingle(ctx, item, out)
		}
		return
	}
	s.handleSingle(ctx, trimmed, out)
}

func trimLeadingSpace(b []byte) []byte {
	i := 0
	for i < len(b) && (b[i] == ' ' || b[i] == '\t') {
		i++
	}
	return b[i:]
}

func (s *ScriptMode) handleSingle(ctx context.Context, raw json.RawMessage, out io.Writer) {
	var req rpcRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		// Well-formed JSON of the wrong shape (e.g. a non-string method)
		// is an invalid request, not a parse error.
		if json.Valid(raw) {
			s.writeResponse(out, rpcResponse{JSONRPC: "2.0", Error: &rpcError{Code: -32600, Message: "invalid request"}})
			return
		}
		s.writeResponse(out, rpcResponse{JSONRPC: "2.0", Error: &rpcError{Code: -32700, Message: "parse error"}})
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		s.writeResponse(out, rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: -32600, Message: "invalid request"}})
		return
	}

	result := s.mgr.CallTool(ctx, req.Method, req.Params, true)
	s.log.LogJSON("script-mode call "+req.Method, req)

	if result.IsError {
		msg := "tool error"
		if len(result.Content) > 0 {
			msg = result.Content[0].Text
		}
		s.writeResponse(out, rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: -32000, Message: msg}})
		return
	}

	var payload interface{} = result.Raw
	if payload == nil {
		payload = contentToPlain(result)
	}
	s.writeResponse(out, rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: payload})
}

func contentToPlain(r model.ToolResult) interface{} {
	if len(r.Content) == 0 {
		return nil
	}
	if len(r.Content) == 1 && r.Content[0].Type == "text" {
		return r.Content[0].Text
	}
	return r.Content
}

func (s *ScriptMode) writeResponse(out io.Writer, resp rpcResponse) {
	b, err := json.Marshal(resp)
	if err != nil {
		b = []byte(fmt.Sprintf(`{"jsonrpc":"2.0","error":{"code":-32000,"message":%q}}`, err.Error()))
	}
	s.outMu.Lock()
	defer s.outMu.Unlock()
	out.Write(b)
	out.Write([]byte("\n"))
	if f, ok := out.(interface{ Flush() error }); ok {
		_ = f.Flush()
	}
}
