// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tools implements the executors behind every tool the relay can be
// asked to run: file operations, searching, command and code execution,
// diffing, and session work-context tracking.
//
// # Key Types
//
//   - Name: the closed enum of supported tool names.
//   - ExecContext: the explicit per-session environment (working directory,
//     logger, store, sandbox client) every executor receives. No executor
//     reads ambient process state.
//   - One typed parameter struct per tool (ReadFileParams, RunCommandParams,
//     ...), decoded from the raw JSON of a tool call.
//
// # Usage
//
// Executors are plain functions with the shape
//
//	func(ctx context.Context, ec ExecContext, p XxxParams) (string, error)
//
// A nil error means success and the string is the tool result; a non-nil
// error becomes the failure message in the corresponding ToolResult. The
// proxy package owns dispatch and normalization; nothing in this package
// panics outward or writes to the wire.
package tools
