// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"strings"
	"testing"
)

// TestExecGrepSearch verifies matching lines are found and zero matches is
// a success, not a failure.
func TestExecGrepSearch(t *testing.T) {
	skipOnWindows(t)
	ec := testContext(t)
	ctx := context.Background()

	if _, err := ExecWriteFile(ctx, ec, WriteFileParams{Path: "notes.txt", Content: "alpha\nneedle here\nomega\n"}); err != nil {
		t.Fatal(err)
	}

	out, err := ExecGrepSearch(ctx, ec, GrepSearchParams{Pattern: "needle"})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if !strings.Contains(out, "needle here") {
		t.Errorf("match missing from output: %q", out)
	}

	out, err = ExecGrepSearch(ctx, ec, GrepSearchParams{Pattern: "definitely-absent-token"})
	if err != nil {
		t.Fatalf("no-match search must succeed, got: %v", err)
	}
	if !strings.Contains(out, "No matches") {
		t.Errorf("expected no-matches message, got %q", out)
	}
}

// TestExecGrepSearch_CaseSensitivity verifies the flag is honored.
func TestExecGrepSearch_CaseSensitivity(t *testing.T) {
	skipOnWindows(t)
	ec := testContext(t)
	ctx := context.Background()

	if _, err := ExecWriteFile(ctx, ec, WriteFileParams{Path: "f.txt", Content: "Mixed\n"}); err != nil {
		t.Fatal(err)
	}

	out, err := ExecGrepSearch(ctx, ec, GrepSearchParams{Pattern: "mixed"})
	if err != nil || !strings.Contains(out, "Mixed") {
		t.Errorf("case-insensitive default should match: %v %q", err, out)
	}

	out, err = ExecGrepSearch(ctx, ec, GrepSearchParams{Pattern: "mixed", CaseSensitive: true})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if !strings.Contains(out, "No matches") {
		t.Errorf("case-sensitive search should miss: %q", out)
	}
}

// TestExecFindFiles verifies glob matching and the no-matches success rule.
func TestExecFindFiles(t *testing.T) {
	skipOnWindows(t)
	ec := testContext(t)
	ctx := context.Background()

	for _, p := range []string{"a.go", "b.go", "c.txt", "nested/d.go"} {
		if _, err := ExecWriteFile(ctx, ec, WriteFileParams{Path: p, Content: "x"}); err != nil {
			t.Fatal(err)
		}
	}

	out, err := ExecFindFiles(ctx, ec, FindFilesParams{Pattern: "*.go"})
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	for _, want := range []string{"a.go", "b.go", "d.go"} {
		if !strings.Contains(out, want) {
			t.Errorf("find missing %s: %q", want, out)
		}
	}
	if strings.Contains(out, "c.txt") {
		t.Errorf("find matched a non-matching file: %q", out)
	}

	out, err = ExecFindFiles(ctx, ec, FindFilesParams{Pattern: "*.nothing"})
	if err != nil {
		t.Fatalf("no-match find must succeed, got: %v", err)
	}
	if !strings.Contains(out, "No files") {
		t.Errorf("expected no-files message, got %q", out)
	}
}

// TestExecSearch_MissingPattern verifies pattern validation.
func TestExecSearch_MissingPattern(t *testing.T) {
	ec := testContext(t)
	ctx := context.Background()
	if _, err := ExecGrepSearch(ctx, ec, GrepSearchParams{}); err == nil {
		t.Error("grep without a pattern should fail")
	}
	if _, err := ExecFindFiles(ctx, ec, FindFilesParams{}); err == nil {
		t.Error("find without a pattern should fail")
	}
}
