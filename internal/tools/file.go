// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jeranaias/rigrun-relay/internal/util"
)

// MaxReadSize caps how much of a file read_file will return.
// PERFORMANCE: model context is finite; huge files get windowed via
// offset/limit instead of streamed whole.
const MaxReadSize = 512 * 1024

// ExecReadFile returns file content wrapped in a fenced block, optionally
// windowed to a line range.
func ExecReadFile(_ context.Context, ec ExecContext, p ReadFileParams) (string, error) {
	if p.Path == "" {
		return "", fmt.Errorf("path is required")
	}
	abs := ec.resolvePath(p.Path)

	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("file not found: %s", p.Path)
		}
		return "", fmt.Errorf("failed to read %s: %w", p.Path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory, use list_directory", p.Path)
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", p.Path, err)
	}

	content := string(data)
	truncated := false

	if p.Offset > 0 || p.Limit > 0 {
		lines := strings.Split(content, "\n")
		start := 0
		if p.Offset > 0 {
			start = p.Offset - 1
		}
		if start >= len(lines) {
			return "", fmt.Errorf("offset %d is past the end of %s (%d lines)", p.Offset, p.Path, len(lines))
		}
		end := len(lines)
		if p.Limit > 0 && start+p.Limit < end {
			end = start + p.Limit
			truncated = true
		}
		content = strings.Join(lines[start:end], "\n")
	}

	if len(content) > MaxReadSize {
		content = content[:MaxReadSize]
		truncated = true
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "File: %s\n", p.Path)
	sb.WriteString("```")
	sb.WriteString(languageHint(abs))
	sb.WriteString("\n")
	sb.WriteString(content)
	if !strings.HasSuffix(content, "\n") {
		sb.WriteString("\n")
	}
	sb.WriteString("```")
	if truncated {
		sb.WriteString("\n[content truncated]")
	}
	return sb.String(), nil
}

// ExecWriteFile replaces the file at path with content, creating parent
// directories as needed. Writes are atomic: a crash never leaves a
// half-written file behind.
func ExecWriteFile(_ context.Context, ec ExecContext, p WriteFileParams) (string, error) {
	if p.Path == "" {
		return "", fmt.Errorf("path is required")
	}
	abs := ec.resolvePath(p.Path)

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", fmt.Errorf("failed to create parent directory for %s: %w", p.Path, err)
	}
	if err := util.AtomicWriteFile(abs, []byte(p.Content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", p.Path, err)
	}

	ec.logger().WithField("path", p.Path).WithField("bytes", len(p.Content)).Debug("wrote file")
	return fmt.Sprintf("Wrote %d bytes to %s", len(p.Content), p.Path), nil
}

// ExecListDirectory returns the entries of a directory, each tagged with its
// kind, directories first.
func ExecListDirectory(_ context.Context, ec ExecContext, p ListDirectoryParams) (string, error) {
	abs := ec.resolvePath(p.Path)
	shown := p.Path
	if shown == "" {
		shown = "."
	}

	entries, err := os.ReadDir(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("directory not found: %s", shown)
		}
		return "", fmt.Errorf("failed to list %s: %w", shown, err)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir() != entries[j].IsDir() {
			return entries[i].IsDir()
		}
		return entries[i].Name() < entries[j].Name()
	})

	var sb strings.Builder
	fmt.Fprintf(&sb, "Contents of %s (%d entries):\n", shown, len(entries))
	for _, e := range entries {
		tag := "[file]"
		if e.IsDir() {
			tag = "[dir] "
		}
		fmt.Fprintf(&sb, "%s %s\n", tag, e.Name())
	}
	if len(entries) == 0 {
		sb.WriteString("(empty)\n")
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

// ExecCreateDirectory recursively creates a directory. Already existing is
// not an error.
func ExecCreateDirectory(_ context.Context, ec ExecContext, p CreateDirectoryParams) (string, error) {
	if p.Path == "" {
		return "", fmt.Errorf("path is required")
	}
	abs := ec.resolvePath(p.Path)
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", p.Path, err)
	}
	return fmt.Sprintf("Created directory %s", p.Path), nil
}

// ExecMoveFile renames source to destination, creating the destination's
// parent directories first.
func ExecMoveFile(_ context.Context, ec ExecContext, p MoveFileParams) (string, error) {
	if p.Source == "" || p.Destination == "" {
		return "", fmt.Errorf("source and destination are required")
	}
	src := ec.resolvePath(p.Source)
	dst := ec.resolvePath(p.Destination)

	if _, err := os.Stat(src); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("source not found: %s", p.Source)
		}
		return "", fmt.Errorf("failed to stat %s: %w", p.Source, err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("failed to create parent directory for %s: %w", p.Destination, err)
	}
	if err := os.Rename(src, dst); err != nil {
		return "", fmt.Errorf("failed to move %s to %s: %w", p.Source, p.Destination, err)
	}
	return fmt.Sprintf("Moved %s to %s", p.Source, p.Destination), nil
}

// ExecDeleteFile removes a single file. Addressing is deliberately stricter
// than the other file tools: see validateDeletePath.
func ExecDeleteFile(_ context.Context, ec ExecContext, p DeleteFileParams) (string, error) {
	if err := ec.validateDeletePath(p.Path); err != nil {
		return "", err
	}
	abs := ec.resolvePath(p.Path)

	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("file not found: %s", p.Path)
		}
		return "", fmt.Errorf("failed to stat %s: %w", p.Path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory, refusing to delete", p.Path)
	}
	if err := os.Remove(abs); err != nil {
		return "", fmt.Errorf("failed to delete %s: %w", p.Path, err)
	}

	ec.logger().WithField("path", p.Path).Info("deleted file")
	return fmt.Sprintf("Deleted %s", p.Path), nil
}

// languageHint maps a file extension to a fence language tag.
func languageHint(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".go":
		return "go"
	case ".py":
		return "python"
	case ".js", ".mjs":
		return "javascript"
	case ".ts", ".tsx":
		return "typescript"
	case ".rs":
		return "rust"
	case ".sh", ".bash":
		return "bash"
	case ".json":
		return "json"
	case ".toml":
		return "toml"
	case ".yaml", ".yml":
		return "yaml"
	case ".md":
		return "markdown"
	case ".html":
		return "html"
	case ".css":
		return "css"
	case ".sql":
		return "sql"
	default:
		return ""
	}
}
