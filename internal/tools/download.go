// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robmacrae/surfbroker/internal/connection"
	"github.com/robmacrae/surfbroker/internal/model"
	"github.com/robmacrae/surfbroker/internal/pathsafe"
)

func init() {
	register("browser_download", "Download a URL through the browser's native download stack.", `{
		"type": "object",
		"properties": {
			"url": {"type": "string"},
			"filename": {"type": "string"},
			"destination": {"type": "string"}
		},
		"required": ["url"]
	}`, handleDownload, false)
}

type downloadArgs struct {
	URL         string `json:"url"`
	Filename    string `json:"filename"`
	Destination string `json:"destination"`
}

func handleDownload(ctx context.Context, hc *connection.HandlerContext, args json.RawMessage, rawResult bool) model.ToolResult {
	var a downloadArgs
	if err := decode(args, &a); err != nil {
		return fromError(err)
	}

	raw, err := callExtensionTimeout(ctx, hc, "download", map[string]interface{}{
		"url": a.URL, "filename": a.Filename,
	}, 5*time.Minute)
	if err != nil {
		return fromError(err)
	}
	var out struct {
		Path     string `json:"path"`
		Filename string `json:"filename"`
	}
	_ = unmarshalInto(raw, &out)

	finalPath := out.Path
	if a.Destination != "" {
		resolved, err := pathsafe.Resolve(a.Destination)
		if err != nil {
			return fromError(model.NewToolError(model.KindSandbox, "Permission denied"))
		}
		if strings.HasSuffix(a.Destination, string(filepath.Separator)) || isDir(resolved) {
			base := out.Filename
			if base == "" {
				base = filepath.Base(out.Path)
			}
			resolved = filepath.Join(resolved, base)
		}
		if err := pathsafe.EnsureParent(resolved); err != nil {
			return fromError(err)
		}
		if err := moveFile(out.Path, resolved); err != nil {
			return fromError(err)
		}
		finalPath = resolved
	}

	if rawResult {
		return model.ToolResult{Raw: map[string]string{"path": finalPath}}
	}
	return model.TextResult(fmt.Sprintf("Downloaded to %s", finalPath))
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// moveFile renames when possible, falling back to copy-then-unlink for
// cross-device moves (EXDEV).
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("tools: open download source: %w", err)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("tools: create download destination: %w", err)
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("tools: copy download: %w", err)
	}
	_ = os.Remove(src)
	return nil
}
