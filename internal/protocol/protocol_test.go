// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package protocol

import (
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func quietLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// TestExtractToolCalls_NoMarkers verifies text without markers passes
// through untouched.
func TestExtractToolCalls_NoMarkers(t *testing.T) {
	input := "Just a normal answer.\nNothing to execute here.\n"
	ext := ExtractToolCalls(input, quietLogger())

	if ext.Found {
		t.Error("Found = true for text without markers")
	}
	if ext.VisibleText != input {
		t.Errorf("VisibleText changed: %q", ext.VisibleText)
	}
}

// TestExtractToolCalls_WellFormed verifies a framed batch is decoded and
// the framing stripped from the visible text.
func TestExtractToolCalls_WellFormed(t *testing.T) {
	batch := `{"type":"tool_calls_required","toolCalls":[{"id":"t1","type":"tool_call","toolName":"list_directory","parameters":{"path":"."}},{"id":"t2","type":"tool_call","toolName":"read_file","parameters":{"path":"go.mod"}}],"sessionId":"s1"}`
	input := "Sure, let me look.\n" + StartMarker + "\n" + batch + "\n" + EndMarker + "\nDone soon.\n"

	ext := ExtractToolCalls(input, quietLogger())
	if !ext.Found {
		t.Fatal("Found = false for a well-formed batch")
	}
	if ext.Batch.SessionID != "s1" {
		t.Errorf("SessionID = %q, want s1", ext.Batch.SessionID)
	}
	if len(ext.Batch.ToolCalls) != 2 {
		t.Fatalf("got %d calls, want 2", len(ext.Batch.ToolCalls))
	}
	if ext.Batch.ToolCalls[0].ID != "t1" || ext.Batch.ToolCalls[0].ToolName != "list_directory" {
		t.Errorf("first call = %+v", ext.Batch.ToolCalls[0])
	}

	var params struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(ext.Batch.ToolCalls[1].Parameters, &params); err != nil || params.Path != "go.mod" {
		t.Errorf("parameters did not round-trip: %v %+v", err, params)
	}

	for _, leaked := range []string{StartMarker, EndMarker, "toolName", "{"} {
		if strings.Contains(ext.VisibleText, leaked) {
			t.Errorf("visible text leaked %q:\n%s", leaked, ext.VisibleText)
		}
	}
	if !strings.Contains(ext.VisibleText, "Sure, let me look.") {
		t.Errorf("visible text lost surrounding prose: %q", ext.VisibleText)
	}
}

// TestExtractToolCalls_MalformedJSON verifies a bad payload fails closed:
// nothing to execute, original text shown verbatim.
func TestExtractToolCalls_MalformedJSON(t *testing.T) {
	input := "Before.\n" + StartMarker + "\n{not json at all\n" + EndMarker + "\nAfter.\n"
	ext := ExtractToolCalls(input, quietLogger())

	if ext.Found {
		t.Error("malformed batch must not be executable")
	}
	if ext.VisibleText != input {
		t.Errorf("malformed batch must show original text verbatim, got %q", ext.VisibleText)
	}
}

// TestExtractToolCalls_UnterminatedFrame verifies a missing end marker is
// treated as no batch.
func TestExtractToolCalls_UnterminatedFrame(t *testing.T) {
	input := "Text.\n" + StartMarker + "\n{\"toolCalls\":[]}\n"
	ext := ExtractToolCalls(input, quietLogger())
	if ext.Found {
		t.Error("unterminated frame must not be executable")
	}
	if ext.VisibleText != input {
		t.Error("unterminated frame must show original text verbatim")
	}
}

// TestExtractToolCalls_EmptyBatch verifies a batch with zero calls is not
// actionable, and that the frame still stays out of the visible text.
func TestExtractToolCalls_EmptyBatch(t *testing.T) {
	input := "Done.\n" + StartMarker + "\n{\"type\":\"tool_calls_required\",\"toolCalls\":[],\"sessionId\":\"s\"}\n" + EndMarker + "\n"
	ext := ExtractToolCalls(input, quietLogger())
	if ext.Found {
		t.Error("empty batch must not be actionable")
	}
	for _, leak := range []string{StartMarker, EndMarker, "toolCalls", "{"} {
		if strings.Contains(ext.VisibleText, leak) {
			t.Errorf("frame leaked %q into visible text: %q", leak, ext.VisibleText)
		}
	}
	if !strings.Contains(ext.VisibleText, "Done.") {
		t.Errorf("surrounding text lost: %q", ext.VisibleText)
	}
}

// TestExtractToolCalls_StripsWaitingStatus verifies transient status lines
// around the frame are removed from the visible text.
func TestExtractToolCalls_StripsWaitingStatus(t *testing.T) {
	batch := `{"toolCalls":[{"id":"t1","toolName":"list_directory","parameters":{}}],"sessionId":"s"}`
	input := "Answer.\n" + StartMarker + "\n" + batch + "\n" + EndMarker + "\n[Waiting for tool execution...]\n"

	ext := ExtractToolCalls(input, quietLogger())
	if !ext.Found {
		t.Fatal("batch not found")
	}
	if strings.Contains(strings.ToLower(ext.VisibleText), "waiting for tool execution") {
		t.Errorf("status line leaked: %q", ext.VisibleText)
	}
}

// TestEncodeExtract_RoundTrip verifies EncodeBatch output is accepted by
// ExtractToolCalls with the calls intact.
func TestEncodeExtract_RoundTrip(t *testing.T) {
	in := &ToolCallsMessage{
		ToolCalls: []ToolCall{
			{ID: "a", Type: TypeToolCall, ToolName: "read_file", Parameters: json.RawMessage(`{"path":"x"}`)},
		},
		SessionID: "sess",
	}
	framed, err := EncodeBatch(in)
	if err != nil {
		t.Fatalf("EncodeBatch failed: %v", err)
	}

	ext := ExtractToolCalls("prefix\n"+framed+"\nsuffix", quietLogger())
	if !ext.Found {
		t.Fatal("round-trip batch not found")
	}
	if ext.Batch.SessionID != "sess" || len(ext.Batch.ToolCalls) != 1 || ext.Batch.ToolCalls[0].ID != "a" {
		t.Errorf("round-trip mismatch: %+v", ext.Batch)
	}
}

// TestBuildContinuationRequest verifies the envelope shape.
func TestBuildContinuationRequest(t *testing.T) {
	results := []ToolResult{
		{ID: "t1", Success: true, Result: "ok"},
		{ID: "t2", Success: false, Error: "boom"},
	}
	req := BuildContinuationRequest("s9", results, "original question")

	if req.Type != TypeContinuation {
		t.Errorf("Type = %q", req.Type)
	}
	if req.SessionID != "s9" || len(req.ToolResults) != 2 || req.OriginalMessage != "original question" {
		t.Errorf("unexpected request: %+v", req)
	}

	// The wire form must omit empty result/error fields.
	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	s := string(data)
	if strings.Contains(s, `"error":""`) || strings.Contains(s, `"result":""`) {
		t.Errorf("empty fields not omitted: %s", s)
	}
}
