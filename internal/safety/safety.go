// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package safety implements the shell command safety policy for rigrun-relay.
//
// The policy is stateless and deterministic: deny-patterns are matched
// against the whole command string first (they catch dangerous substrings
// anywhere, including after pipes), then the leading command token is
// checked against an allowlist. This is a pragmatic guardrail, not a
// cryptographically sound sandbox.
package safety

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	shellwords "github.com/mattn/go-shellwords"
	"golang.org/x/text/unicode/norm"
)

// Verdict is the outcome of evaluating one command string.
type Verdict struct {
	Safe   bool
	Reason string // populated when Safe is false
}

// PolicyError reports a command rejected by the safety policy.
type PolicyError struct {
	Command string
	Reason  string
}

func (e *PolicyError) Error() string {
	return "command blocked by safety policy: " + e.Reason
}

// =============================================================================
// DENY PATTERNS
// =============================================================================

// DenyPattern pairs a compiled pattern with a human-readable description.
// The description ends up in the failure result the model sees, so it should
// say what was matched, not dump the regex.
type DenyPattern struct {
	Pattern     *regexp.Regexp
	Description string
}

// DenyPatterns are checked in order against the full normalized command
// string; first match wins. The literal set is a deployment decision, this
// is the default shipped with the relay.
var DenyPatterns = []DenyPattern{
	// Privilege escalation
	{regexp.MustCompile(`(?i)^\s*(sudo|su|doas|pkexec)\b`), "privilege escalation (sudo/su/doas/pkexec)"},

	// Recursive force-delete of root, home, or everything
	{regexp.MustCompile(`(?i)\brm\s+(-[a-z]*[rf][a-z]*\s+)+(/|/\*|~|~/|\$HOME|\.\.?)(\s|$)`), "recursive force-delete of a root or home path"},
	{regexp.MustCompile(`(?i)\brm\b.*--no-preserve-root`), "rm --no-preserve-root"},

	// Piping a network download into an interpreter
	{regexp.MustCompile(`(?i)\b(curl|wget)\b[^|;&]*\|\s*(ba|z|da|k)?sh\b`), "piping a download into a shell interpreter"},
	{regexp.MustCompile(`(?i)\b(curl|wget)\b[^|;&]*\|\s*(python3?|perl|ruby|node)\b`), "piping a download into an interpreter"},
	{regexp.MustCompile(`(?i)\b(ba|z|da|k)?sh\s+<\(\s*(curl|wget)\b`), "process-substituting a download into a shell"},

	// Writes to device files and raw block devices
	{regexp.MustCompile(`(?i)>\s*/dev/(sd|hd|vd|nvme|xvd)`), "write to a raw block device"},
	{regexp.MustCompile(`(?i)\bdd\b.*\bof=/dev/`), "dd output to a device file"},

	// Disk formatting and partitioning utilities
	{regexp.MustCompile(`(?i)\b(mkfs(\.\w+)?|mke2fs|mkswap|fdisk|gdisk|parted|sfdisk|cfdisk|wipefs|diskpart)\b`), "disk formatting or partitioning utility"},

	// Writes into core system directories
	{regexp.MustCompile(`(?i)(>|>>|\btee\b)\s*/(etc|boot|sys|proc)/`), "write to a core system directory"},
	{regexp.MustCompile(`(?i)\brm\s+(-[a-z]+\s+)*/(etc|boot|bin|sbin|usr|var)(/|\s|$)`), "delete under a core system directory"},

	// Fork bombs
	{regexp.MustCompile(`:\(\)\s*\{.*\|.*&.*\}\s*;?\s*:`), "fork bomb"},

	// Reverse shells and raw TCP/UDP redirects
	{regexp.MustCompile(`(?i)/dev/(tcp|udp)/`), "shell TCP/UDP redirection"},
	{regexp.MustCompile(`(?i)\b(nc|ncat|netcat)\b.*\s-[a-z]*e\b`), "netcat with command execution"},

	// Command substitution smuggling a payload past the allowlist
	{regexp.MustCompile("`"), "backtick command substitution"},
	{regexp.MustCompile(`\$\(`), "command substitution"},

	// History and credential tampering
	{regexp.MustCompile(`(?i)>\s*~?/\.(bash|zsh)_history`), "shell history truncation"},
	{regexp.MustCompile(`(?i)\b(cat|cp|scp)\b.*/etc/(shadow|sudoers|gshadow)\b`), "read of a protected credential file"},
}

// =============================================================================
// ALLOWLIST
// =============================================================================

// AllowedCommands is the allowlist of base commands: interpreters, build
// tools, VCS, and common Unix utilities. Only the leading command token is
// constrained so legitimate compound commands (git log | head) pass as long
// as no deny-pattern matches the full string.
var AllowedCommands = map[string]bool{
	// Interpreters and runtimes
	"python": true, "python3": true, "node": true, "deno": true, "bun": true,
	"ruby": true, "perl": true, "php": true, "lua": true,

	// Build tools and package managers
	"go": true, "cargo": true, "rustc": true, "gcc": true, "g++": true,
	"clang": true, "make": true, "cmake": true, "ninja": true, "javac": true,
	"java": true, "mvn": true, "gradle": true, "npm": true, "npx": true,
	"yarn": true, "pnpm": true, "pip": true, "pip3": true, "poetry": true,
	"dotnet": true, "swift": true, "tsc": true,

	// Version control
	"git": true, "hg": true, "svn": true,

	// Common Unix utilities
	"ls": true, "cat": true, "head": true, "tail": true, "grep": true,
	"egrep": true, "fgrep": true, "rg": true, "find": true, "fd": true,
	"wc": true, "sort": true, "uniq": true, "cut": true, "tr": true,
	"sed": true, "awk": true, "diff": true, "cmp": true, "file": true,
	"which": true, "echo": true, "printf": true, "pwd": true, "cd": true,
	"mkdir": true, "cp": true, "mv": true, "touch": true, "ln": true,
	"basename": true, "dirname": true, "realpath": true, "stat": true,
	"du": true, "df": true, "date": true, "env": true, "uname": true,
	"whoami": true, "hostname": true, "ps": true, "tar": true, "gzip": true,
	"gunzip": true, "zip": true, "unzip": true, "xargs": true, "tee": true,
	"test": true, "true": true, "false": true, "sleep": true, "jq": true,
	"curl": true, "wget": true,
}

// =============================================================================
// EVALUATION
// =============================================================================

// Evaluate applies the safety policy to a shell command string.
//
// Order matters: deny-patterns run against the whole normalized string
// before the allowlist looks at the leading token, so a dangerous substring
// after a pipe is caught even when the base command is allowed.
func Evaluate(command string) Verdict {
	// NFKC normalization first, so unicode homoglyphs cannot slip a blocked
	// token past the pattern checks.
	normalized := norm.NFKC.String(command)
	trimmed := strings.TrimSpace(normalized)

	if trimmed == "" {
		return Verdict{Safe: false, Reason: "empty command"}
	}

	for _, dp := range DenyPatterns {
		if dp.Pattern.MatchString(normalized) {
			return Verdict{Safe: false, Reason: "blocked pattern: " + dp.Description}
		}
	}

	base, err := baseCommand(trimmed)
	if err != nil {
		return Verdict{Safe: false, Reason: fmt.Sprintf("cannot parse command: %v", err)}
	}
	if base == "" {
		return Verdict{Safe: false, Reason: "empty base command"}
	}
	if !AllowedCommands[base] {
		return Verdict{Safe: false, Reason: fmt.Sprintf("command %q is not on the allowed list", base)}
	}

	return Verdict{Safe: true}
}

// Check is Evaluate with an error-shaped result for callers that gate
// execution on it.
func Check(command string) error {
	v := Evaluate(command)
	if !v.Safe {
		return &PolicyError{Command: command, Reason: v.Reason}
	}
	return nil
}

// baseCommand extracts the first token, skipping leading VAR=value
// assignments, and reduces it to its basename so /usr/bin/git and git are
// judged the same.
func baseCommand(command string) (string, error) {
	parser := shellwords.NewParser()
	tokens, err := parser.Parse(command)
	if err != nil {
		return "", err
	}
	for _, tok := range tokens {
		if isEnvAssignment(tok) {
			continue
		}
		return strings.ToLower(filepath.Base(tok)), nil
	}
	return "", nil
}

// isEnvAssignment reports whether a token looks like NAME=value.
func isEnvAssignment(tok string) bool {
	idx := strings.Index(tok, "=")
	if idx <= 0 {
		return false
	}
	for _, r := range tok[:idx] {
		if !(r == '_' || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}

// Extend appends deployment-specific entries to the policy. Extra allowed
// commands are lowercased; extra blocked patterns are compiled as
// case-insensitive regexes and take effect after the built-in set.
func Extend(allowed []string, blockedPatterns []string) error {
	for _, c := range allowed {
		AllowedCommands[strings.ToLower(strings.TrimSpace(c))] = true
	}
	for _, p := range blockedPatterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return fmt.Errorf("invalid blocked pattern %q: %w", p, err)
		}
		DenyPatterns = append(DenyPatterns, DenyPattern{Pattern: re, Description: "deployment pattern: " + p})
	}
	return nil
}
