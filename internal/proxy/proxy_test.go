// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/jeranaias/rigrun-relay/internal/kvstore"
	"github.com/jeranaias/rigrun-relay/internal/protocol"
	"github.com/jeranaias/rigrun-relay/internal/tools"
)

func testProxy(t *testing.T) *Proxy {
	t.Helper()
	return New(tools.ExecContext{
		WorkDir:   t.TempDir(),
		SessionID: "proxy-test",
		Store:     kvstore.NewMemory(),
	})
}

// TestExecuteToolCalls_OrderAndIDs verifies N calls in yield exactly N
// results out, in order, with matching ids.
func TestExecuteToolCalls_OrderAndIDs(t *testing.T) {
	p := testProxy(t)

	var calls []protocol.ToolCall
	for i := 0; i < 6; i++ {
		params, _ := json.Marshal(map[string]string{
			"path":    fmt.Sprintf("f%d.txt", i),
			"content": fmt.Sprintf("content %d", i),
		})
		calls = append(calls, protocol.ToolCall{
			ID:         fmt.Sprintf("call-%d", i),
			ToolName:   string(tools.WriteFile),
			Parameters: params,
		})
	}

	results := p.ExecuteToolCalls(context.Background(), calls)
	if len(results) != len(calls) {
		t.Fatalf("got %d results, want %d", len(results), len(calls))
	}
	for i, r := range results {
		if r.ID != calls[i].ID {
			t.Errorf("results[%d].ID = %q, want %q", i, r.ID, calls[i].ID)
		}
		if !r.Success {
			t.Errorf("results[%d] failed: %s", i, r.Error)
		}
	}
}

// TestExecuteToolCalls_FailureIsolation verifies a failing call does not
// stop subsequent calls from executing.
func TestExecuteToolCalls_FailureIsolation(t *testing.T) {
	p := testProxy(t)

	calls := []protocol.ToolCall{
		{ID: "ok-1", ToolName: string(tools.CreateDirectory), Parameters: json.RawMessage(`{"path":"d1"}`)},
		{ID: "bad", ToolName: string(tools.ReadFile), Parameters: json.RawMessage(`{"path":"missing.txt"}`)},
		{ID: "ok-2", ToolName: string(tools.CreateDirectory), Parameters: json.RawMessage(`{"path":"d2"}`)},
	}

	results := p.ExecuteToolCalls(context.Background(), calls)
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if !results[0].Success || !results[2].Success {
		t.Errorf("healthy calls failed: %+v", results)
	}
	if results[1].Success {
		t.Error("missing-file read should fail")
	}
	if results[1].Error == "" {
		t.Error("failure result must carry a non-empty error")
	}
}

// TestExecuteToolCall_UnknownTool verifies an unknown name is a failure
// result, not a panic or dropped call.
func TestExecuteToolCall_UnknownTool(t *testing.T) {
	p := testProxy(t)
	r := p.ExecuteToolCall(context.Background(), protocol.ToolCall{
		ID:       "x",
		ToolName: "teleport_to_production",
	})
	if r.Success {
		t.Fatal("unknown tool must fail")
	}
	if !strings.Contains(r.Error, "unknown tool") || !strings.Contains(r.Error, "teleport_to_production") {
		t.Errorf("error should name the tool: %q", r.Error)
	}
	if r.ID != "x" {
		t.Errorf("result id = %q, want x", r.ID)
	}
}

// TestExecuteToolCall_PanicIsolation verifies a panicking executor becomes
// a failure result for that call only.
func TestExecuteToolCall_PanicIsolation(t *testing.T) {
	p := testProxy(t)
	p.dispatchFn = func(ctx context.Context, call protocol.ToolCall) (string, error) {
		if call.ID == "boom" {
			panic("executor exploded")
		}
		return "fine", nil
	}

	results := p.ExecuteToolCalls(context.Background(), []protocol.ToolCall{
		{ID: "a"}, {ID: "boom"}, {ID: "b"},
	})
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if !results[0].Success || !results[2].Success {
		t.Error("calls around the panic must still succeed")
	}
	if results[1].Success {
		t.Fatal("panicking call must fail")
	}
	if !strings.Contains(results[1].Error, "executor exploded") {
		t.Errorf("panic detail lost: %q", results[1].Error)
	}
}

// TestExecuteToolCall_BadParameters verifies malformed parameter JSON is a
// per-call failure.
func TestExecuteToolCall_BadParameters(t *testing.T) {
	p := testProxy(t)
	r := p.ExecuteToolCall(context.Background(), protocol.ToolCall{
		ID:         "bad-params",
		ToolName:   string(tools.ReadFile),
		Parameters: json.RawMessage(`{"path": 42}`),
	})
	if r.Success {
		t.Fatal("bad parameters must fail")
	}
	if !strings.Contains(r.Error, "invalid parameters") {
		t.Errorf("error = %q, want invalid parameters", r.Error)
	}
}

// TestExecuteToolCalls_Empty verifies an empty batch yields an empty, non-nil
// result list.
func TestExecuteToolCalls_Empty(t *testing.T) {
	p := testProxy(t)
	results := p.ExecuteToolCalls(context.Background(), nil)
	if results == nil || len(results) != 0 {
		t.Errorf("got %v, want empty slice", results)
	}
}
