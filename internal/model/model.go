// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

// Package model holds the value types shared between the bridge, the
// connection state machine, and the tool handlers.
package model

import (
	"encoding/json"
	"time"
)

// ConnectionState is the broker's top-level lifecycle state.
type ConnectionState int

const (
	Passive ConnectionState = iota
	Active
	Connected
)

func (s ConnectionState) String() string {
	switch s {
	case Passive:
		return "passive"
	case Active:
		return "active"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// TabInfo describes the single attached browser tab, if any.
type TabInfo struct {
	Index  int    `json:"index"`
	ID     string `json:"id"`
	URL    string `json:"url"`
	Title  string `json:"title"`
	Active bool   `json:"active"`
}

// DebugMode controls trail-log verbosity.
type DebugMode int

const (
	DebugOff DebugMode = iota
	DebugTruncate
	DebugFull
)

// Content is a single block of a tool result: text or an inline image.
type Content struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

func TextContent(s string) Content { return Content{Type: "text", Text: s} }

func ImageContent(base64Data, mimeType string) Content {
	return Content{Type: "image", Data: base64Data, MimeType: mimeType}
}

// ToolResult is what every handler produces. Raw is populated only in
// script-mode dispatch, where callers want a plain JSON value instead of
// MCP content blocks.
type ToolResult struct {
	Content []Content   `json:"content,omitempty"`
	IsError bool        `json:"isError,omitempty"`
	Raw     interface{} `json:"-"`
}

func ErrResult(msg string) ToolResult {
	return ToolResult{Content: []Content{TextContent(msg)}, IsError: true}
}

func TextResult(msg string) ToolResult {
	return ToolResult{Content: []Content{TextContent(msg)}}
}

// ErrorKind classifies handler failures for error-surfacing and logging.
type ErrorKind int

const (
	KindUnspecified ErrorKind = iota
	KindNotEnabled
	KindNotConnected
	KindInvalidArguments
	KindElementNotFound
	KindTimeout
	KindPeerError
	KindDisconnected
	KindScriptError
	KindBlocked
	KindSandbox
	KindExtensionConflict
)

// ToolError is the typed error every handler and primitive should prefer
// over a bare fmt.Errorf so the dispatcher can shape it without string
// sniffing (aside from the one documented exception: ExtensionConflict
// detection, which necessarily inspects the peer's free-text message).
type ToolError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *ToolError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ToolError) Unwrap() error { return e.Err }

func NewToolError(kind ErrorKind, msg string) *ToolError {
	return &ToolError{Kind: kind, Message: msg}
}

func WrapToolError(kind ErrorKind, msg string, err error) *ToolError {
	return &ToolError{Kind: kind, Message: msg, Err: err}
}

// PendingCall is one outstanding correlated request awaiting a response
// from the extension.
type PendingCall struct {
	ResultCh chan PendingResult
	Created  time.Time
}

// PendingResult is what arrives (or is synthesized) to settle a PendingCall.
type PendingResult struct {
	Value json.RawMessage
	Err   error
}
