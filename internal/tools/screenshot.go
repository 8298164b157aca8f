// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package tools

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"

	"github.com/disintegration/imaging"

	"github.com/robmacrae/surfbroker/internal/cdp"
	"github.com/robmacrae/surfbroker/internal/connection"
	"github.com/robmacrae/surfbroker/internal/model"
	"github.com/robmacrae/surfbroker/internal/pathsafe"
)

const screenshotMaxDimension = 2000

func init() {
	register("browser_take_screenshot", "Capture a screenshot of the page or an element.", `{
		"type": "object",
		"properties": {
			"type": {"type": "string", "enum": ["png", "jpeg"]},
			"quality": {"type": "integer"},
			"fullPage": {"type": "boolean"},
			"path": {"type": "string"},
			"highlightClickables": {"type": "boolean"},
			"clip_x": {"type": "number"},
			"clip_y": {"type": "number"},
			"clip_width": {"type": "number"},
			"clip_height": {"type": "number"},
			"selector": {"type": "string"}
		}
	}`, handleTakeScreenshot, false)

	register("browser_pdf_save", "Render the page to a PDF file.", `{
		"type": "object",
		"properties": {
			"path": {"type": "string"}
		}
	}`, handlePDFSave, false)
}

type screenshotArgs struct {
	Type                 string  `json:"type"`
	Quality              int     `json:"quality"`
	FullPage             bool    `json:"fullPage"`
	Path                 string  `json:"path"`
	HighlightClickables  bool    `json:"highlightClickables"`
	ClipX                float64 `json:"clip_x"`
	ClipY                float64 `json:"clip_y"`
	ClipWidth            float64 `json:"clip_width"`
	ClipHeight           float64 `json:"clip_height"`
	Selector             string  `json:"selector"`
}

type capturedShot struct {
	base64 string
	format string
	path   string
	width  int
	height int
}

const highlightStyleCSS = `a,button,input,select,textarea,[onclick],[role="button"]{outline:2px solid #22c55e !important;}`

func captureScreenshot(ctx context.Context, hc *connection.HandlerContext, a screenshotArgs) (*capturedShot, error) {
	if a.Type == "" {
		a.Type = "png"
	}
	if a.Quality == 0 {
		a.Quality = 80
	}

	if a.HighlightClickables {
		styleExpr := fmt.Sprintf(`(function(){
			var s = document.createElement("style");
			s.id = "__surfbroker_highlight";
			s.textContent = %q;
			document.head.appendChild(s);
		})()`, highlightStyleCSS)
		_, _ = hc.CDP.Eval(ctx, styleExpr, false)
		_ = hc.CDP.Sleep(ctx, 100_000_000) // 100ms
		defer func() {
			_, _ = hc.CDP.Eval(ctx, `(function(){var s=document.getElementById("__surfbroker_highlight"); if(s) s.remove();})()`, false)
		}()
	}

	if a.Selector != "" {
		x, y, err := hc.CDP.ElementCenter(ctx, a.Selector)
		if err != nil {
			return nil, err
		}
		rect, rerr := hc.CDP.Eval(ctx, fmt.Sprintf(`(function(){var el=%s; var r=el.getBoundingClientRect(); return {x:r.left,y:r.top,width:r.width,height:r.height};})()`, cdp.SelectorExpression(a.Selector)), false)
		if rerr == nil {
			if m, ok := rect.(map[string]interface{}); ok {
				a.ClipX, _ = m["x"].(float64)
				a.ClipY, _ = m["y"].(float64)
				a.ClipWidth, _ = m["width"].(float64)
				a.ClipHeight, _ = m["height"].(float64)
			}
		}
		_ = x
		_ = y
	}

	params := map[string]interface{}{"format": a.Type, "fullPage": a.FullPage}
	if a.Type == "jpeg" {
		params["quality"] = a.Quality
	}
	if a.ClipWidth > 0 && a.ClipHeight > 0 {
		params["clip"] = map[string]float64{"x": a.ClipX, "y": a.ClipY, "width": a.ClipWidth, "height": a.ClipHeight}
	}

	raw, err := callExtension(ctx, hc, "screenshot", params)
	if err != nil {
		return nil, err
	}
	var out struct {
		Data string `json:"data"`
	}
	if err := unmarshalInto(raw, &out); err != nil {
		return nil, err
	}

	decoded, err := base64.StdEncoding.DecodeString(out.Data)
	if err != nil {
		return nil, fmt.Errorf("tools: decode screenshot: %w", err)
	}

	if a.Path != "" {
		resolved, err := pathsafe.Resolve(a.Path)
		if err != nil {
			return nil, model.NewToolError(model.KindSandbox, "Permission denied")
		}
		if err := pathsafe.EnsureParent(resolved); err != nil {
			return nil, err
		}
		if err := os.WriteFile(resolved, decoded, 0o644); err != nil {
			return nil, fmt.Errorf("tools: write screenshot: %w", err)
		}
		return &capturedShot{path: resolved, format: a.Type}, nil
	}

	decoded, format, w, h, err := downscaleIfNeeded(decoded, a.Type, a.Quality)
	if err != nil {
		return nil, err
	}
	return &capturedShot{
		base64: base64.StdEncoding.EncodeToString(decoded),
		format: format, width: w, height: h,
	}, nil
}

func downscaleIfNeeded(data []byte, format string, quality int) ([]byte, string, int, int, error) {
	img, decodedFormat, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return data, format, 0, 0, nil // not decodable (shouldn't happen); pass through verbatim
	}
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= screenshotMaxDimension && h <= screenshotMaxDimension {
		return data, format, w, h, nil
	}

	resized := imaging.Resize(img, minInt(w, screenshotMaxDimension), 0, imaging.Lanczos)
	if resized.Bounds().Dy() > screenshotMaxDimension {
		resized = imaging.Resize(img, 0, screenshotMaxDimension, imaging.Lanczos)
	}

	var buf bytes.Buffer
	switch decodedFormat {
	case "jpeg":
		err = jpeg.Encode(&buf, resized, &jpeg.Options{Quality: quality})
	default:
		err = png.Encode(&buf, resized)
	}
	if err != nil {
		return data, format, w, h, fmt.Errorf("tools: re-encode screenshot: %w", err)
	}
	nb := resized.Bounds()
	return buf.Bytes(), format, nb.Dx(), nb.Dy(), nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func handleTakeScreenshot(ctx context.Context, hc *connection.HandlerContext, args json.RawMessage, rawResult bool) model.ToolResult {
	var a screenshotArgs
	if err := decode(args, &a); err != nil {
		return fromError(err)
	}
	shot, err := captureScreenshot(ctx, hc, a)
	if err != nil {
		return fromError(err)
	}
	if shot.path != "" {
		if rawResult {
			return model.ToolResult{Raw: map[string]string{"path": shot.path}}
		}
		return model.TextResult("Screenshot saved to " + shot.path)
	}
	if rawResult {
		return model.ToolResult{Raw: map[string]interface{}{"data": shot.base64, "width": shot.width, "height": shot.height}}
	}
	return model.ToolResult{Content: []model.Content{model.ImageContent(shot.base64, "image/"+shot.format)}}
}

func handlePDFSave(ctx context.Context, hc *connection.HandlerContext, args json.RawMessage, rawResult bool) model.ToolResult {
	var a struct {
		Path string `json:"path"`
	}
	if err := decode(args, &a); err != nil {
		return fromError(err)
	}
	if a.Path == "" {
		a.Path = "page.pdf"
	}
	raw, err := hc.CDP.CDP(ctx, "Page.printToPDF", map[string]interface{}{})
	if err != nil {
		return fromError(err)
	}
	var out struct {
		Data string `json:"data"`
	}
	if err := unmarshalInto(raw, &out); err != nil {
		return fromError(err)
	}
	decoded, err := base64.StdEncoding.DecodeString(out.Data)
	if err != nil {
		return fromError(fmt.Errorf("tools: decode pdf: %w", err))
	}
	resolved, err := pathsafe.Resolve(a.Path)
	if err != nil {
		return fromError(model.NewToolError(model.KindSandbox, "Permission denied"))
	}
	if err := pathsafe.EnsureParent(resolved); err != nil {
		return fromError(err)
	}
	if err := os.WriteFile(resolved, decoded, 0o644); err != nil {
		return fromError(fmt.Errorf("tools: write pdf: %w", err))
	}
	if rawResult {
		return model.ToolResult{Raw: map[string]interface{}{"path": resolved, "size": len(decoded)}}
	}
	return model.TextResult(fmt.Sprintf("PDF saved to %s (%d bytes)", resolved, len(decoded)))
}
