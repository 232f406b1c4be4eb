// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package proxy executes tool-call batches. It is the single point where
// tool names are dispatched, parameters are decoded, and every outcome
// (success, executor error, bad parameters, unknown tool, panic) is
// normalized into a protocol.ToolResult.
//
// Batches run sequentially in order. One failing call never aborts the
// batch: the result list always has exactly one entry per call, in the same
// order, with matching IDs.
package proxy

import (
	"context"
	"fmt"
	"time"

	"github.com/jeranaias/rigrun-relay/internal/protocol"
	"github.com/jeranaias/rigrun-relay/internal/tools"
)

// PerCallTimeout bounds a single tool call so one hung executor cannot
// stall the whole batch. Executors with their own tighter budgets (like
// run_command) still honor theirs.
const PerCallTimeout = 5 * time.Minute

// Proxy executes batches against one session's ExecContext.
type Proxy struct {
	ec tools.ExecContext

	// dispatchFn is swappable in tests to exercise isolation paths.
	dispatchFn func(ctx context.Context, call protocol.ToolCall) (string, error)
}

// New builds a Proxy for the given execution context.
func New(ec tools.ExecContext) *Proxy {
	p := &Proxy{ec: ec}
	p.dispatchFn = p.dispatch
	return p
}

// ExecuteToolCalls runs every call in the batch in order. The returned slice
// is exactly len(calls) long; results[i].ID == calls[i].ID.
func (p *Proxy) ExecuteToolCalls(ctx context.Context, calls []protocol.ToolCall) []protocol.ToolResult {
	results := make([]protocol.ToolResult, 0, len(calls))
	for _, call := range calls {
		results = append(results, p.ExecuteToolCall(ctx, call))
	}
	return results
}

// ExecuteToolCall runs one call and normalizes its outcome. It never panics:
// a panicking executor becomes a failure result for that call only.
func (p *Proxy) ExecuteToolCall(ctx context.Context, call protocol.ToolCall) (result protocol.ToolResult) {
	start := time.Now()
	log := p.ec.Log
	if log != nil {
		log = log.WithField("tool", call.ToolName).WithField("call_id", call.ID)
	}

	// RELIABILITY: error isolation. Whatever happens inside the executor,
	// the batch keeps its one-result-per-call shape.
	defer func() {
		if r := recover(); r != nil {
			if log != nil {
				log.WithField("panic", r).Error("tool executor panicked")
			}
			result = failure(call.ID, fmt.Sprintf("internal error executing %s: %v", call.ToolName, r))
		}
		if log != nil {
			log.WithField("success", result.Success).
				WithField("duration", time.Since(start).Round(time.Millisecond).String()).
				Debug("tool call finished")
		}
	}()

	callCtx, cancel := context.WithTimeout(ctx, PerCallTimeout)
	defer cancel()

	out, err := p.dispatchFn(callCtx, call)
	if err != nil {
		return failure(call.ID, err.Error())
	}
	return protocol.ToolResult{ID: call.ID, Success: true, Result: out}
}

// dispatch decodes the call's parameters into the tool's typed struct and
// invokes the executor. This switch is the only place tool names are mapped
// to code.
func (p *Proxy) dispatch(ctx context.Context, call protocol.ToolCall) (string, error) {
	name := tools.Name(call.ToolName)
	if !tools.Known(name) {
		return "", fmt.Errorf("unknown tool: %s", call.ToolName)
	}

	switch name {
	case tools.ReadFile:
		var params tools.ReadFileParams
		if err := tools.DecodeParams(call.Parameters, &params); err != nil {
			return "", err
		}
		return tools.ExecReadFile(ctx, p.ec, params)

	case tools.WriteFile:
		var params tools.WriteFileParams
		if err := tools.DecodeParams(call.Parameters, &params); err != nil {
			return "", err
		}
		return tools.ExecWriteFile(ctx, p.ec, params)

	case tools.ListDirectory:
		var params tools.ListDirectoryParams
		if err := tools.DecodeParams(call.Parameters, &params); err != nil {
			return "", err
		}
		return tools.ExecListDirectory(ctx, p.ec, params)

	case tools.CreateDirectory:
		var params tools.CreateDirectoryParams
		if err := tools.DecodeParams(call.Parameters, &params); err != nil {
			return "", err
		}
		return tools.ExecCreateDirectory(ctx, p.ec, params)

	case tools.MoveFile:
		var params tools.MoveFileParams
		if err := tools.DecodeParams(call.Parameters, &params); err != nil {
			return "", err
		}
		return tools.ExecMoveFile(ctx, p.ec, params)

	case tools.DeleteFile:
		var params tools.DeleteFileParams
		if err := tools.DecodeParams(call.Parameters, &params); err != nil {
			return "", err
		}
		return tools.ExecDeleteFile(ctx, p.ec, params)

	case tools.GrepSearch:
		var params tools.GrepSearchParams
		if err := tools.DecodeParams(call.Parameters, &params); err != nil {
			return "", err
		}
		return tools.ExecGrepSearch(ctx, p.ec, params)

	case tools.FindFiles:
		var params tools.FindFilesParams
		if err := tools.DecodeParams(call.Parameters, &params); err != nil {
			return "", err
		}
		return tools.ExecFindFiles(ctx, p.ec, params)

	case tools.ExecuteCode:
		var params tools.ExecuteCodeParams
		if err := tools.DecodeParams(call.Parameters, &params); err != nil {
			return "", err
		}
		return tools.ExecExecuteCode(ctx, p.ec, params)

	case tools.RunCommand:
		var params tools.RunCommandParams
		if err := tools.DecodeParams(call.Parameters, &params); err != nil {
			return "", err
		}
		return tools.ExecRunCommand(ctx, p.ec, params)

	case tools.DiffFiles:
		var params tools.DiffFilesParams
		if err := tools.DecodeParams(call.Parameters, &params); err != nil {
			return "", err
		}
		return tools.ExecDiffFiles(ctx, p.ec, params)

	case tools.GitDiff:
		var params tools.GitDiffParams
		if err := tools.DecodeParams(call.Parameters, &params); err != nil {
			return "", err
		}
		return tools.ExecGitDiff(ctx, p.ec, params)

	case tools.SetWorkContext:
		var params tools.SetWorkContextParams
		if err := tools.DecodeParams(call.Parameters, &params); err != nil {
			return "", err
		}
		return tools.ExecSetWorkContext(ctx, p.ec, params)

	case tools.GetWorkContext:
		var params tools.GetWorkContextParams
		if err := tools.DecodeParams(call.Parameters, &params); err != nil {
			return "", err
		}
		return tools.ExecGetWorkContext(ctx, p.ec, params)

	default:
		return "", fmt.Errorf("unknown tool: %s", call.ToolName)
	}
}

func failure(id, msg string) protocol.ToolResult {
	return protocol.ToolResult{ID: id, Success: false, Error: msg}
}
