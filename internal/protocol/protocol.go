// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package protocol defines the continuation protocol wire types and the
// codec that frames tool-call batches inside streamed model output.
//
// A batch is embedded between literal sentinel markers:
//
//	---TOOL_CALLS---
//	{"type":"tool_calls_required","toolCalls":[...],"sessionId":"..."}
//	---END_TOOL_CALLS---
//
// The markers were chosen to be vanishingly unlikely in natural model
// output; both this codec and the remote prompt contract must agree on the
// exact token strings.
package protocol

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
)

// Sentinel markers framing an embedded tool-call batch.
const (
	StartMarker = "---TOOL_CALLS---"
	EndMarker   = "---END_TOOL_CALLS---"
)

// Message type tags used on the wire.
const (
	TypeToolCallsRequired = "tool_calls_required"
	TypeToolCall          = "tool_call"
	TypeContinuation      = "continuation"
)

// =============================================================================
// WIRE TYPES
// =============================================================================

// ToolCall is one requested operation. Parameters stay raw JSON until the
// proxy decodes them into the tool's typed parameter struct, so a bad
// parameter shape is a per-call failure instead of a batch parse failure.
type ToolCall struct {
	ID         string          `json:"id"`
	Type       string          `json:"type,omitempty"`
	ToolName   string          `json:"toolName"`
	Parameters json.RawMessage `json:"parameters"`
}

// ToolResult is the outcome of executing one ToolCall. Exactly one of
// Result/Error is populated, matching Success.
type ToolResult struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Result  string `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ToolCallsMessage is the batch envelope parsed out of a response stream.
// Execution order is insertion order.
type ToolCallsMessage struct {
	Type      string     `json:"type"`
	ToolCalls []ToolCall `json:"toolCalls"`
	SessionID string     `json:"sessionId"`
}

// ContinuationRequest is the outbound envelope carrying results back to the
// remote side. Built once per batch and sent once; retrying the whole turn
// is the caller's decision.
type ContinuationRequest struct {
	Type            string       `json:"type"`
	SessionID       string       `json:"sessionId"`
	ToolResults     []ToolResult `json:"toolResults"`
	OriginalMessage string       `json:"originalMessage,omitempty"`
}

// =============================================================================
// EXTRACTION
// =============================================================================

// Extraction is the result of scanning a response for an embedded batch.
type Extraction struct {
	Found       bool
	Batch       *ToolCallsMessage
	VisibleText string
}

// waitingStatusRe matches the transient "waiting for execution" status lines
// some model turns emit next to the framed batch. They are protocol noise,
// not content, so extraction strips them from the visible text.
var waitingStatusRe = regexp.MustCompile(`(?mi)^[ \t]*(?:⏳[ \t]*)?(?:\[)?(?:waiting for tool execution|executing tools?)[^\n]*(?:\])?[ \t]*$`)

// ExtractToolCalls scans responseText for a marker-framed batch.
//
// No markers: Found=false and VisibleText is the input unchanged. Malformed
// JSON between the markers: Found=false, the error is logged, and the
// original text is returned verbatim (fail open on display, fail closed on
// execution).
func ExtractToolCalls(responseText string, log logrus.FieldLogger) Extraction {
	start := strings.Index(responseText, StartMarker)
	if start < 0 {
		return Extraction{Found: false, VisibleText: responseText}
	}
	rest := responseText[start+len(StartMarker):]
	end := strings.Index(rest, EndMarker)
	if end < 0 {
		// Unterminated frame, likely a truncated stream. Treat as no batch.
		if log != nil {
			log.Warn("tool-call start marker without end marker, showing text verbatim")
		}
		return Extraction{Found: false, VisibleText: responseText}
	}

	payload := strings.TrimSpace(rest[:end])

	var batch ToolCallsMessage
	if err := json.Unmarshal([]byte(payload), &batch); err != nil {
		if log != nil {
			log.WithError(err).Warn("malformed tool-call batch, showing text verbatim")
		}
		return Extraction{Found: false, VisibleText: responseText}
	}

	visible := stripFrame(responseText[:start] + rest[end+len(EndMarker):])

	if len(batch.ToolCalls) == 0 {
		// A well-formed frame with nothing to execute: there is no batch to
		// run, but the frame is protocol noise and stays out of the visible
		// text all the same.
		if log != nil {
			log.Warn("tool-call batch contained no calls")
		}
		return Extraction{Found: false, VisibleText: visible}
	}

	return Extraction{Found: true, Batch: &batch, VisibleText: visible}
}

// stripFrame tidies the text surrounding a removed frame: status lines the
// model emits around the batch go too, and all-whitespace remainders become
// empty.
func stripFrame(visible string) string {
	visible = waitingStatusRe.ReplaceAllString(visible, "")
	visible = strings.TrimRight(visible, " \t\n") + "\n"
	if strings.TrimSpace(visible) == "" {
		return ""
	}
	return visible
}

// BuildContinuationRequest assembles the outbound results envelope.
func BuildContinuationRequest(sessionID string, results []ToolResult, originalMessage string) *ContinuationRequest {
	return &ContinuationRequest{
		Type:            TypeContinuation,
		SessionID:       sessionID,
		ToolResults:     results,
		OriginalMessage: originalMessage,
	}
}

// EncodeBatch renders a ToolCallsMessage in its framed wire form. The relay
// itself only decodes batches; this is for tests and fixtures.
func EncodeBatch(batch *ToolCallsMessage) (string, error) {
	if batch.Type == "" {
		batch.Type = TypeToolCallsRequired
	}
	data, err := json.Marshal(batch)
	if err != nil {
		return "", fmt.Errorf("failed to encode batch: %w", err)
	}
	return StartMarker + "\n" + string(data) + "\n" + EndMarker, nil
}
