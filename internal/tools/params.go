// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"encoding/json"
	"fmt"
)

// Name identifies a tool. The set is closed; unknown names are rejected at
// dispatch, not silently ignored.
type Name string

// All supported tools.
const (
	ReadFile        Name = "read_file"
	WriteFile       Name = "write_file"
	ListDirectory   Name = "list_directory"
	CreateDirectory Name = "create_directory"
	MoveFile        Name = "move_file"
	DeleteFile      Name = "delete_file"
	GrepSearch      Name = "grep_search"
	FindFiles       Name = "find_files"
	ExecuteCode     Name = "execute_code"
	RunCommand      Name = "run_command"
	DiffFiles       Name = "diff_files"
	GitDiff         Name = "git_diff"
	SetWorkContext  Name = "set_work_context"
	GetWorkContext  Name = "get_work_context"
)

var knownNames = map[Name]bool{
	ReadFile:        true,
	WriteFile:       true,
	ListDirectory:   true,
	CreateDirectory: true,
	MoveFile:        true,
	DeleteFile:      true,
	GrepSearch:      true,
	FindFiles:       true,
	ExecuteCode:     true,
	RunCommand:      true,
	DiffFiles:       true,
	GitDiff:         true,
	SetWorkContext:  true,
	GetWorkContext:  true,
}

// Known reports whether n names a supported tool.
func Known(n Name) bool {
	return knownNames[n]
}

// Names returns the supported tool names, for help output.
func Names() []Name {
	out := make([]Name, 0, len(knownNames))
	for n := range knownNames {
		out = append(out, n)
	}
	return out
}

// =============================================================================
// PARAMETER STRUCTS
// =============================================================================
//
// Each tool has its own typed parameter struct decoded from the raw JSON in
// the tool call. Unknown fields are tolerated; missing required fields are
// validated by the executor.

// ReadFileParams selects a file and an optional line window.
type ReadFileParams struct {
	Path   string `json:"path"`
	Offset int    `json:"offset,omitempty"` // 1-based first line, 0 = start
	Limit  int    `json:"limit,omitempty"`  // max lines, 0 = all
}

// WriteFileParams carries full replacement content for a path.
type WriteFileParams struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// ListDirectoryParams names a directory, defaulting to the working root.
type ListDirectoryParams struct {
	Path string `json:"path,omitempty"`
}

// CreateDirectoryParams names a directory to create, parents included.
type CreateDirectoryParams struct {
	Path string `json:"path"`
}

// MoveFileParams renames source to destination.
type MoveFileParams struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
}

// DeleteFileParams names a single file to remove.
type DeleteFileParams struct {
	Path string `json:"path"`
}

// GrepSearchParams is a content search rooted at the working directory.
type GrepSearchParams struct {
	Pattern       string `json:"pattern"`
	Path          string `json:"path,omitempty"`
	FilePattern   string `json:"filePattern,omitempty"`
	CaseSensitive bool   `json:"caseSensitive,omitempty"`
}

// FindFilesParams is a filename glob search.
type FindFilesParams struct {
	Pattern string `json:"pattern"`
	Path    string `json:"path,omitempty"`
	Type    string `json:"type,omitempty"` // "file" (default) or "directory"
}

// ExecuteCodeParams runs a snippet in the remote sandbox.
type ExecuteCodeParams struct {
	Language string `json:"language"`
	Code     string `json:"code"`
	Input    string `json:"input,omitempty"`
}

// RunCommandParams runs a shell command subject to the safety policy.
type RunCommandParams struct {
	Command    string `json:"command"`
	WorkingDir string `json:"workingDir,omitempty"`
	TimeoutMS  int    `json:"timeout,omitempty"` // milliseconds
}

// DiffFilesParams compares two inputs. Each of File1/File2 is either a
// readable path or, when it does not name a readable file, a literal string
// to diff as inline content.
type DiffFilesParams struct {
	File1   string `json:"file1"`
	File2   string `json:"file2"`
	Context int    `json:"context,omitempty"`
}

// GitDiffParams renders repository changes.
type GitDiffParams struct {
	Staged     bool     `json:"staged,omitempty"`
	Files      []string `json:"files,omitempty"`
	SaveToFile string   `json:"saveToFile,omitempty"`
}

// SetWorkContextParams records what the session is working on.
type SetWorkContextParams struct {
	Goal        string   `json:"goal"`
	Description string   `json:"description,omitempty"`
	Files       []string `json:"files,omitempty"`
	Status      string   `json:"status,omitempty"` // defaults to "starting"
}

// GetWorkContextParams optionally includes recent history.
type GetWorkContextParams struct {
	IncludeHistory bool `json:"includeHistory,omitempty"`
}

// DecodeParams unmarshals raw into dst, tolerating null/empty raw for tools
// whose parameters are all optional.
func DecodeParams(raw json.RawMessage, dst any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("invalid parameters: %w", err)
	}
	return nil
}
