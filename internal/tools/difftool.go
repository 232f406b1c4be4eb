// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jeranaias/rigrun-relay/internal/diff"
	"github.com/jeranaias/rigrun-relay/internal/execrun"
	"github.com/jeranaias/rigrun-relay/internal/util"
)

// ExecDiffFiles compares two inputs and renders a unified diff. Each input
// is dual-mode: a readable file path is read from disk, anything else is
// diffed as literal inline content, so callers can compare two snippets as
// easily as two files.
func ExecDiffFiles(_ context.Context, ec ExecContext, p DiffFilesParams) (string, error) {
	if p.File1 == "" || p.File2 == "" {
		return "", fmt.Errorf("file1 and file2 are required")
	}

	oldContent, oldName := ec.diffInput(p.File1, "input 1")
	newContent, newName := ec.diffInput(p.File2, "input 2")

	contextLines := p.Context
	if contextLines <= 0 {
		contextLines = 3
	}

	result := diff.Compute(oldName, newName, oldContent, newContent, contextLines)
	if result.Identical() {
		return fmt.Sprintf("%s and %s are identical", oldName, newName), nil
	}

	return fmt.Sprintf("%s\n\n%s", result.Summary(), diff.FormatUnified(result)), nil
}

// diffInput resolves one diff_files argument: the content of the file it
// names when that file is readable, otherwise the argument itself as inline
// content under the fallback label.
func (ec ExecContext) diffInput(arg, fallbackLabel string) (content, label string) {
	abs := ec.resolvePath(arg)
	if info, err := os.Stat(abs); err == nil && info.Mode().IsRegular() {
		if data, err := os.ReadFile(abs); err == nil {
			return string(data), arg
		}
	}
	return arg, fallbackLabel
}

// ExecGitDiff renders repository changes via the git CLI, optionally scoped
// to staged changes or specific files, and optionally saved to a file.
func ExecGitDiff(ctx context.Context, ec ExecContext, p GitDiffParams) (string, error) {
	argv := []string{"git", "diff"}
	if p.Staged {
		argv = append(argv, "--cached")
	}
	if len(p.Files) > 0 {
		argv = append(argv, "--")
		argv = append(argv, p.Files...)
	}

	out, err := execrun.Run(ctx, execrun.Spec{
		Argv:      argv,
		Dir:       ec.WorkDir,
		MaxOutput: 400_000,
	})
	if err != nil {
		return "", fmt.Errorf("git diff failed: %w", err)
	}

	if out.ExitCode != 0 {
		stderr := strings.TrimSpace(out.Stderr)
		// git exits 128/129 when run outside a work tree; give that case a
		// clearer message than the raw exit code.
		if strings.Contains(stderr, "not a git repository") || out.ExitCode == 128 || out.ExitCode == 129 {
			return "", fmt.Errorf("%s is not inside a git repository", ec.WorkDir)
		}
		return "", fmt.Errorf("git diff exited with code %d: %s", out.ExitCode, stderr)
	}

	body := strings.TrimRight(out.Stdout, "\n")
	if body == "" {
		scope := "working tree"
		if p.Staged {
			scope = "staged changes"
		}
		return fmt.Sprintf("No changes in %s", scope), nil
	}

	if p.SaveToFile != "" {
		abs := ec.resolvePath(p.SaveToFile)
		if err := util.AtomicWriteFile(abs, []byte(body+"\n"), 0o644); err != nil {
			return "", fmt.Errorf("failed to save diff to %s: %w", p.SaveToFile, err)
		}
		return fmt.Sprintf("Saved diff (%d bytes) to %s", len(body)+1, p.SaveToFile), nil
	}

	if out.Truncated {
		body += "\n[output truncated]"
	}
	return body, nil
}
