// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/jeranaias/rigrun-relay/internal/kvstore"
	"github.com/jeranaias/rigrun-relay/internal/sandbox"
)

// ExecContext carries the per-session environment every tool executes
// against. Threading it explicitly keeps executors free of package-level
// state and makes tests trivial to isolate.
type ExecContext struct {
	// WorkDir is the root all relative paths resolve against.
	WorkDir string

	// SessionID scopes work-context storage.
	SessionID string

	// Log is the structured logger for this session.
	Log logrus.FieldLogger

	// Store persists work context across invocations.
	Store kvstore.Store

	// Sandbox is the remote execution client for execute_code. May be an
	// unconfigured client; executors check IsConfigured.
	Sandbox *sandbox.Client
}

// resolvePath turns a tool-supplied path into an absolute path under the
// working directory. Absolute paths are accepted as-is: file tools operate
// on the user's machine at the user's request, and the safety policy governs
// command execution, not file addressing.
func (ec ExecContext) resolvePath(path string) string {
	if path == "" {
		return ec.WorkDir
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Clean(filepath.Join(ec.WorkDir, path))
}

// validateDeletePath applies the stricter addressing rules for destructive
// file tools: only simple relative paths inside the working directory.
//
// SECURITY: deletion never accepts absolute paths, parent traversal, or
// drive-rooted paths, regardless of what they would resolve to.
func (ec ExecContext) validateDeletePath(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("path is required")
	}
	if filepath.IsAbs(path) {
		return fmt.Errorf("refusing to delete absolute path %q", path)
	}
	// Windows drive-rooted forms (C:\... or C:/...) are not IsAbs on other
	// platforms, so check the drive-letter shape directly.
	if len(path) >= 2 && path[1] == ':' {
		return fmt.Errorf("refusing to delete drive-rooted path %q", path)
	}
	// Inspect the raw segments, not the cleaned path: Clean folds interior
	// traversal like "sub/../file.txt" away before it can be seen.
	for _, seg := range strings.Split(strings.ReplaceAll(path, `\`, "/"), "/") {
		if seg == ".." {
			return fmt.Errorf("refusing to delete path with parent traversal: %q", path)
		}
	}
	return nil
}

func (ec ExecContext) logger() logrus.FieldLogger {
	if ec.Log != nil {
		return ec.Log
	}
	return logrus.StandardLogger()
}
