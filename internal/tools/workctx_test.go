// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/jeranaias/rigrun-relay/internal/kvstore"
)

// TestWorkContext_SetGet verifies the round trip through the store.
func TestWorkContext_SetGet(t *testing.T) {
	ec := testContext(t)
	ec.Store = kvstore.NewMemory()
	ctx := context.Background()

	out, err := ExecGetWorkContext(ctx, ec, GetWorkContextParams{})
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !strings.Contains(out, "No work context") {
		t.Errorf("empty store should report no context: %q", out)
	}

	if _, err := ExecSetWorkContext(ctx, ec, SetWorkContextParams{
		Goal:        "refactor the parser",
		Description: "split the lexer out of parse.go",
		Files:       []string{"parse.go", "lex.go"},
		Status:      "in-progress",
	}); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	out, err = ExecGetWorkContext(ctx, ec, GetWorkContextParams{})
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	for _, want := range []string{"refactor the parser", "in-progress", "split the lexer", "parse.go, lex.go"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %q", want, out)
		}
	}
}

// TestWorkContext_WireShape verifies the executor accepts the parameters as
// they arrive on the wire: goal required, description/files optional, status
// defaulting to "starting".
func TestWorkContext_WireShape(t *testing.T) {
	ec := testContext(t)
	ec.Store = kvstore.NewMemory()
	ctx := context.Background()

	raw := json.RawMessage(`{"goal":"refactor parser","status":"starting","files":["a.go"]}`)
	var p SetWorkContextParams
	if err := DecodeParams(raw, &p); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	out, err := ExecSetWorkContext(ctx, ec, p)
	if err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if !strings.Contains(out, "refactor parser") {
		t.Errorf("confirmation missing goal: %q", out)
	}

	// Goal alone is enough; status falls back to "starting".
	if err := DecodeParams(json.RawMessage(`{"goal":"write docs"}`), &p); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	p.Files, p.Status, p.Description = nil, "", ""
	out, err = ExecSetWorkContext(ctx, ec, p)
	if err != nil {
		t.Fatalf("goal-only set failed: %v", err)
	}
	if !strings.Contains(out, "starting") {
		t.Errorf("default status not applied: %q", out)
	}
}

// TestWorkContext_History verifies earlier goals appear in history, newest
// first.
func TestWorkContext_History(t *testing.T) {
	ec := testContext(t)
	ec.Store = kvstore.NewMemory()
	ctx := context.Background()

	for _, goal := range []string{"first task", "second task", "third task"} {
		if _, err := ExecSetWorkContext(ctx, ec, SetWorkContextParams{Goal: goal}); err != nil {
			t.Fatalf("set %q failed: %v", goal, err)
		}
	}

	out, err := ExecGetWorkContext(ctx, ec, GetWorkContextParams{IncludeHistory: true})
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !strings.Contains(out, "third task") || !strings.Contains(out, "first task") {
		t.Errorf("history incomplete: %q", out)
	}
	if strings.Index(out, "third task") > strings.Index(out, "first task") {
		// "third task" appears as both current and newest history entry;
		// either way it must come before "first task".
		t.Errorf("history not newest-first: %q", out)
	}
}

// TestWorkContext_SessionIsolation verifies sessions don't see each other's
// context.
func TestWorkContext_SessionIsolation(t *testing.T) {
	store := kvstore.NewMemory()
	ctx := context.Background()

	ecA := testContext(t)
	ecA.SessionID = "session-a"
	ecA.Store = store
	ecB := testContext(t)
	ecB.SessionID = "session-b"
	ecB.Store = store

	if _, err := ExecSetWorkContext(ctx, ecA, SetWorkContextParams{Goal: "session A work"}); err != nil {
		t.Fatal(err)
	}

	out, err := ExecGetWorkContext(ctx, ecB, GetWorkContextParams{})
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if strings.Contains(out, "session A work") {
		t.Errorf("context leaked across sessions: %q", out)
	}
}

// TestWorkContext_Validation verifies a blank goal and a missing store are
// failures.
func TestWorkContext_Validation(t *testing.T) {
	ec := testContext(t)
	ec.Store = kvstore.NewMemory()
	ctx := context.Background()

	if _, err := ExecSetWorkContext(ctx, ec, SetWorkContextParams{Goal: "  "}); err == nil {
		t.Error("blank goal should fail")
	}

	ec.Store = nil
	if _, err := ExecSetWorkContext(ctx, ec, SetWorkContextParams{Goal: "x"}); err == nil {
		t.Error("missing store should fail")
	}
	if _, err := ExecGetWorkContext(ctx, ec, GetWorkContextParams{}); err == nil {
		t.Error("missing store should fail")
	}
}
