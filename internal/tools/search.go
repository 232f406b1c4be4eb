// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/jeranaias/rigrun-relay/internal/execrun"
)

// ExecGrepSearch runs a recursive content search under the working
// directory. An empty result set is a success, not a failure: grep-family
// tools exit 1 for "no matches" and that convention is honored here.
func ExecGrepSearch(ctx context.Context, ec ExecContext, p GrepSearchParams) (string, error) {
	if p.Pattern == "" {
		return "", fmt.Errorf("pattern is required")
	}
	root := p.Path
	if root == "" {
		root = "."
	}

	argv := []string{"grep", "-rn"}
	if !p.CaseSensitive {
		argv = append(argv, "-i")
	}
	if p.FilePattern != "" {
		argv = append(argv, "--include="+p.FilePattern)
	}
	argv = append(argv, "-e", p.Pattern, "--", root)

	out, err := execrun.Run(ctx, execrun.Spec{
		Argv: argv,
		Dir:  ec.WorkDir,
	})
	if err != nil {
		return "", fmt.Errorf("search failed: %w", err)
	}

	switch out.ExitCode {
	case 0:
		result := strings.TrimRight(out.Stdout, "\n")
		count := strings.Count(result, "\n") + 1
		header := fmt.Sprintf("Found %d matching lines for %q:\n", count, p.Pattern)
		if out.Truncated {
			return header + result + "\n[output truncated]", nil
		}
		return header + result, nil
	case 1:
		return fmt.Sprintf("No matches for %q in %s", p.Pattern, root), nil
	default:
		return "", fmt.Errorf("search exited with code %d: %s", out.ExitCode, strings.TrimSpace(out.Stderr))
	}
}

// ExecFindFiles locates files by name pattern under the working directory.
// Like grep_search, zero matches is a success.
func ExecFindFiles(ctx context.Context, ec ExecContext, p FindFilesParams) (string, error) {
	if p.Pattern == "" {
		return "", fmt.Errorf("pattern is required")
	}
	root := p.Path
	if root == "" {
		root = "."
	}
	kind := "f"
	if p.Type == "directory" || p.Type == "dir" {
		kind = "d"
	}

	out, err := execrun.Run(ctx, execrun.Spec{
		Argv: []string{"find", root, "-type", kind, "-name", p.Pattern},
		Dir:  ec.WorkDir,
	})
	if err != nil {
		return "", fmt.Errorf("find failed: %w", err)
	}
	// find exits 1 when some subdirectories were unreadable; any paths it
	// did print are still useful.
	if out.ExitCode > 1 {
		return "", fmt.Errorf("find exited with code %d: %s", out.ExitCode, strings.TrimSpace(out.Stderr))
	}

	result := strings.TrimSpace(out.Stdout)
	if result == "" {
		return fmt.Sprintf("No files matching %q in %s", p.Pattern, root), nil
	}
	count := strings.Count(result, "\n") + 1
	return fmt.Sprintf("Found %d entries matching %q:\n%s", count, p.Pattern, result), nil
}
