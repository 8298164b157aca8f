// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

// Package secureeval implements the first of the three secure_eval
// layers: a static, server-side AST pattern check over agent-supplied
// evaluate expressions. It parses the snippet with goja's ECMAScript
// parser (goja's runtime is never instantiated here — this is a linter,
// not an executor; the snippet still runs in the page via
// Runtime.evaluate) and walks the resulting tree looking for references
// to a fixed set of blocked globals and member paths.
package secureeval

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/file"
	"github.com/dop251/goja/parser"

	"github.com/robmacrae/surfbroker/internal/model"
)

// blockedIdentifiers are bare globals the agent must not reference.
var blockedIdentifiers = map[string]bool{
	"fetch":          true,
	"XMLHttpRequest": true,
	"WebSocket":      true,
	"eval":           true,
	"Function":       true,
	"importScripts":  true,
}

// blockedMemberPaths are dotted member accesses, matched against the
// longest dotted prefix we can statically resolve (e.g. "document.cookie").
// A leading "window.", "self." or "globalThis." is ignored when matching.
var blockedMemberPaths = map[string]bool{
	"document.cookie": true,
	"localStorage":    true,
	"sessionStorage":  true,
	"indexedDB":       true,
}

// Check parses expr and returns a non-nil *model.ToolError (Kind
// KindBlocked) if a blocked pattern is referenced. A parse error is NOT
// itself a block: it is left for the real evaluation to surface as a
// ScriptError, since a snippet that doesn't parse will simply fail in
// the page.
func Check(expr string) *model.ToolError {
	fset := file.NewFileSet()
	prog, err := parser.ParseFile(fset, "evaluate.js", expr, 0)
	if err != nil {
		return nil
	}

	var blocked string
	walk(reflect.ValueOf(prog), map[uintptr]bool{}, func(n ast.Node) bool {
		switch v := n.(type) {
		case *ast.Identifier:
			if blockedIdentifiers[string(v.Name)] {
				blocked = string(v.Name)
				return true
			}
		case *ast.DotExpression:
			if path, ok := dottedPath(v); ok && matchesBlockedPath(path) {
				blocked = path
				return true
			}
		}
		return false
	})

	if blocked != "" {
		return model.NewToolError(model.KindBlocked,
			fmt.Sprintf("evaluate blocked by secure_eval: reference to %q is not permitted", blocked))
	}
	return nil
}

func matchesBlockedPath(path string) bool {
	for _, root := range []string{"window.", "self.", "globalThis."} {
		path = strings.TrimPrefix(path, root)
	}
	if blockedMemberPaths[path] {
		return true
	}
	for prefix := range blockedMemberPaths {
		if path == prefix || strings.HasPrefix(path, prefix+".") {
			return true
		}
	}
	return false
}

// dottedPath reconstructs "a.b.c" from a chain of DotExpressions whose
// root is a plain Identifier. Returns ok=false for anything else (e.g. a
// call result as the base), which the checker simply can't resolve
// statically and lets pass to the next secure_eval layer.
func dottedPath(d *ast.DotExpression) (string, bool) {
	var parts []string
	parts = append(parts, string(d.Identifier.Name))

	cur := d.Left
	for {
		switch v := cur.(type) {
		case *ast.Identifier:
			parts = append(parts, string(v.Name))
			rev := make([]string, len(parts))
			for i, p := range parts {
				rev[len(parts)-1-i] = p
			}
			return strings.Join(rev, "."), true
		case *ast.DotExpression:
			parts = append(parts, string(v.Identifier.Name))
			cur = v.Left
		default:
			return "", false
		}
	}
}

// walk generically traverses the AST via reflection so the checker does
// not need an exhaustive, hand-maintained type switch over every
// statement and expression kind the ECMAScript grammar defines. visit
// returns true to stop the walk early (a match was found).
func walk(v reflect.Value, seen map[uintptr]bool, visit func(ast.Node) bool) bool {
	if !v.IsValid() {
		return false
	}
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface:
		if v.IsNil() {
			return false
		}
		if v.Kind() == reflect.Ptr {
			ptr := v.Pointer()
			if seen[ptr] {
				return false
			}
			seen[ptr] = true
		}
		if n, ok := v.Interface().(ast.Node); ok {
			if visit(n) {
				return true
			}
		}
		return walk(v.Elem(), seen, visit)
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			f := v.Type().Field(i)
			if f.PkgPath != "" { // unexported
				continue
			}
			if walk(v.Field(i), seen, visit) {
				return true
			}
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			if walk(v.Index(i), seen, visit) {
				return true
			}
		}
	}
	return false
}
