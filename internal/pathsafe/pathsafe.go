// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

// Package pathsafe resolves agent-supplied output paths against the
// user's home directory and rejects anything that would escape it.
package pathsafe

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Resolve turns an agent-supplied path into an absolute path rooted at
// $HOME. Absolute input paths are reinterpreted as relative to $HOME
// (stripping the leading separator) rather than rejected outright, so
// "/etc/foo" becomes "$HOME/etc/foo". The result is always verified to
// still live under $HOME before being returned.
func Resolve(userPath string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("pathsafe: resolve home: %w", err)
	}
	home = filepath.Clean(home)

	rel := userPath
	if filepath.IsAbs(rel) {
		rel = strings.TrimPrefix(rel, string(filepath.Separator))
	}
	joined := filepath.Join(home, rel)

	if joined != home && !strings.HasPrefix(joined, home+string(filepath.Separator)) {
		return "", fmt.Errorf("pathsafe: resolved path escapes home directory")
	}
	return joined, nil
}

// EnsureParent makes sure the parent directory of path exists.
func EnsureParent(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}
