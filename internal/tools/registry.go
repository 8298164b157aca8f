// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

// Package tools implements the static browser-tool catalog and its
// handlers. Each descriptor's input schema is compiled once at startup
// and validated before the matching handler runs.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/robmacrae/surfbroker/internal/connection"
	"github.com/robmacrae/surfbroker/internal/model"
)

// HandlerFunc implements one tool. rawResult is true in script mode,
// where callers want Result.Raw populated instead of content blocks.
type HandlerFunc func(ctx context.Context, hc *connection.HandlerContext, args json.RawMessage, rawResult bool) model.ToolResult

type descriptor struct {
	schema  connection.ToolSchema
	handler HandlerFunc
	compiled *jsonschema.Schema
	// screenshotEligible marks tools whose args may carry a "screenshot"
	// flag that triggers post-hoc inline-image composition (4.F).
	screenshotEligible bool
}

type Registry struct {
	byName map[string]*descriptor
	order  []string
}

// NewRegistry compiles every tool's schema and returns the ready-to-use
// catalog. A schema compile failure is a programming error (the schemas
// are static), so it panics rather than returning an error a caller
// could plausibly ignore.
func NewRegistry() *Registry {
	r := &Registry{byName: map[string]*descriptor{}}
	for _, def := range toolDefs {
		compiler := jsonschema.NewCompiler()
		schemaURL := "mem://" + def.schema.Name
		if err := compiler.AddResource(schemaURL, mustJSON(def.schema.InputSchema)); err != nil {
			panic(fmt.Sprintf("tools: bad schema for %s: %v", def.schema.Name, err))
		}
		compiled, err := compiler.Compile(schemaURL)
		if err != nil {
			panic(fmt.Sprintf("tools: compile schema for %s: %v", def.schema.Name, err))
		}
		d := &descriptor{schema: def.schema, handler: def.handler, compiled: compiled, screenshotEligible: def.screenshotEligible}
		r.byName[def.schema.Name] = d
		r.order = append(r.order, def.schema.Name)
	}
	return r
}

func mustJSON(raw json.RawMessage) interface{} {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		panic(err)
	}
	return v
}

func (r *Registry) Tools() []connection.ToolSchema {
	out := make([]connection.ToolSchema, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name].schema)
	}
	return out
}

func (r *Registry) Call(ctx context.Context, hc *connection.HandlerContext, name string, args json.RawMessage, rawResult bool) model.ToolResult {
	d, ok := r.byName[name]
	if !ok {
		return model.ErrResult(fmt.Sprintf("unknown tool: %s", name))
	}

	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	var v interface{}
	if err := json.Unmarshal(args, &v); err != nil {
		return model.ErrResult(fmt.Sprintf("invalid arguments for %s: %v", name, err))
	}
	if err := d.compiled.Validate(v); err != nil {
		return model.ErrResult(fmt.Sprintf("invalid arguments for %s: %v", name, err))
	}

	result := d.handler(ctx, hc, args, rawResult)

	if !rawResult {
		result = decorateWithStatusHeader(hc, result)
		if d.screenshotEligible && !result.IsError {
			result = maybeAppendScreenshot(ctx, hc, args, result)
		}
	}
	return result
}

func decorateWithStatusHeader(hc *connection.HandlerContext, result model.ToolResult) model.ToolResult {
	if len(result.Content) == 0 {
		return result
	}
	header := hc.Manager.StatusHeader()
	first := result.Content[0]
	if first.Type == "text" {
		first.Text = header + "\n\n" + first.Text
		result.Content[0] = first
	} else {
		result.Content = append([]model.Content{model.TextContent(header)}, result.Content...)
	}
	return result
}

// maybeAppendScreenshot implements the "args.screenshot == true" inline
// capture convention shared by interact/navigate/fill_form/drag/
// handle_dialog/window.
func maybeAppendScreenshot(ctx context.Context, hc *connection.HandlerContext, args json.RawMessage, result model.ToolResult) model.ToolResult {
	var p struct {
		Screenshot bool `json:"screenshot"`
	}
	_ = json.Unmarshal(args, &p)
	if !p.Screenshot {
		return result
	}
	shot, err := captureScreenshot(ctx, hc, screenshotArgs{Type: "png", Quality: 80})
	if err != nil {
		return result
	}
	result.Content = append(result.Content, model.ImageContent(shot.base64, "image/"+shot.format))
	return result
}

type toolDef struct {
	schema             connection.ToolSchema
	handler            HandlerFunc
	screenshotEligible bool
}

// toolDefs is populated by the per-theme files via init()-time append so
// each theme file stays self-contained.
var toolDefs []toolDef

func register(name, description, schemaJSON string, handler HandlerFunc, screenshotEligible bool) {
	toolDefs = append(toolDefs, toolDef{
		schema: connection.ToolSchema{
			Name:        name,
			Description: description,
			InputSchema: json.RawMessage(schemaJSON),
		},
		handler:            handler,
		screenshotEligible: screenshotEligible,
	})
}
