// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package diff computes line-level diffs and renders them in unified format.
package diff

import (
	"fmt"
	"strings"
)

// =============================================================================
// LINE TYPES
// =============================================================================

// LineType classifies a diff line.
type LineType int

const (
	// LineContext represents an unchanged line
	LineContext LineType = iota
	// LineAdded represents an added line
	LineAdded
	// LineRemoved represents a removed line
	LineRemoved
)

// Prefix returns the unified-diff marker for this line type.
func (t LineType) Prefix() string {
	switch t {
	case LineAdded:
		return "+"
	case LineRemoved:
		return "-"
	default:
		return " "
	}
}

// Line is a single line of a computed diff.
type Line struct {
	Type    LineType
	Content string
	OldLine int // line number in the old content, 0 if added
	NewLine int // line number in the new content, 0 if removed
}

// Hunk is a contiguous run of changes plus surrounding context.
type Hunk struct {
	OldStart int
	OldCount int
	NewStart int
	NewCount int
	Lines    []Line
}

// Result is a complete diff between two inputs.
type Result struct {
	OldName   string
	NewName   string
	Hunks     []Hunk
	Additions int
	Deletions int
}

// Identical reports whether the diff found no changes.
func (r *Result) Identical() bool {
	return r.Additions == 0 && r.Deletions == 0
}

// =============================================================================
// COMPUTATION
// =============================================================================

// Compute diffs old against new content line by line, grouping changes into
// hunks with the given number of context lines (3 gives standard unified
// output).
func Compute(oldName, newName, oldContent, newContent string, context int) *Result {
	if context < 0 {
		context = 0
	}

	r := &Result{OldName: oldName, NewName: newName}

	lines := lineDiff(splitLines(oldContent), splitLines(newContent))
	for _, l := range lines {
		switch l.Type {
		case LineAdded:
			r.Additions++
		case LineRemoved:
			r.Deletions++
		}
	}
	r.Hunks = groupHunks(lines, context)
	return r
}

// splitLines splits content into lines without a trailing empty entry for a
// final newline.
func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	lines := strings.Split(content, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// lineDiff walks both inputs against their longest common subsequence.
func lineDiff(oldLines, newLines []string) []Line {
	var out []Line

	common := lcs(oldLines, newLines)

	oi, ni, ci := 0, 0, 0
	for oi < len(oldLines) || ni < len(newLines) {
		switch {
		case ci < len(common) && oi < len(oldLines) && ni < len(newLines) &&
			oldLines[oi] == common[ci] && newLines[ni] == common[ci]:
			out = append(out, Line{Type: LineContext, Content: oldLines[oi], OldLine: oi + 1, NewLine: ni + 1})
			oi++
			ni++
			ci++
		case oi < len(oldLines) && (ci >= len(common) || oldLines[oi] != common[ci]):
			out = append(out, Line{Type: LineRemoved, Content: oldLines[oi], OldLine: oi + 1})
			oi++
		case ni < len(newLines):
			out = append(out, Line{Type: LineAdded, Content: newLines[ni], NewLine: ni + 1})
			ni++
		}
	}
	return out
}

// lcs computes the longest common subsequence of two line slices using the
// standard dynamic-programming table. Inputs here are interactive-scale
// (files a model is editing), so the quadratic table is fine.
func lcs(a, b []string) []string {
	m, n := len(a), len(b)
	if m == 0 || n == 0 {
		return nil
	}

	dp := make([][]int, m+1)
	for i := range dp {
		dp[i] = make([]int, n+1)
	}
	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			if a[i-1] == b[j-1] {
				dp[i][j] = dp[i-1][j-1] + 1
			} else if dp[i-1][j] >= dp[i][j-1] {
				dp[i][j] = dp[i-1][j]
			} else {
				dp[i][j] = dp[i][j-1]
			}
		}
	}

	seq := make([]string, 0, dp[m][n])
	for i, j := m, n; i > 0 && j > 0; {
		if a[i-1] == b[j-1] {
			seq = append(seq, a[i-1])
			i--
			j--
		} else if dp[i-1][j] > dp[i][j-1] {
			i--
		} else {
			j--
		}
	}
	// Reverse: backtracking collected the sequence tail-first.
	for l, r := 0, len(seq)-1; l < r; l, r = l+1, r-1 {
		seq[l], seq[r] = seq[r], seq[l]
	}
	return seq
}

// groupHunks splits the flat line list into hunks, keeping up to context
// unchanged lines on each side of a change and merging runs that overlap.
func groupHunks(lines []Line, context int) []Hunk {
	if len(lines) == 0 {
		return nil
	}

	// Mark which indexes are within context distance of a change.
	keep := make([]bool, len(lines))
	for i, l := range lines {
		if l.Type == LineContext {
			continue
		}
		lo := i - context
		if lo < 0 {
			lo = 0
		}
		hi := i + context
		if hi > len(lines)-1 {
			hi = len(lines) - 1
		}
		for j := lo; j <= hi; j++ {
			keep[j] = true
		}
	}

	var hunks []Hunk
	var cur *Hunk
	for i, l := range lines {
		if !keep[i] {
			if cur != nil {
				hunks = append(hunks, *cur)
				cur = nil
			}
			continue
		}
		if cur == nil {
			cur = &Hunk{}
			if l.OldLine > 0 {
				cur.OldStart = l.OldLine
			} else {
				cur.OldStart = prevOldLine(lines, i) + 1
			}
			if l.NewLine > 0 {
				cur.NewStart = l.NewLine
			} else {
				cur.NewStart = prevNewLine(lines, i) + 1
			}
		}
		cur.Lines = append(cur.Lines, l)
		if l.OldLine > 0 {
			cur.OldCount++
		}
		if l.NewLine > 0 {
			cur.NewCount++
		}
	}
	if cur != nil {
		hunks = append(hunks, *cur)
	}
	return hunks
}

func prevOldLine(lines []Line, i int) int {
	for j := i - 1; j >= 0; j-- {
		if lines[j].OldLine > 0 {
			return lines[j].OldLine
		}
	}
	return 0
}

func prevNewLine(lines []Line, i int) int {
	for j := i - 1; j >= 0; j-- {
		if lines[j].NewLine > 0 {
			return lines[j].NewLine
		}
	}
	return 0
}

// =============================================================================
// UNIFIED FORMAT
// =============================================================================

// FormatUnified renders the diff with ---/+++ headers and @@ hunk markers.
func FormatUnified(r *Result) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("--- %s\n", r.OldName))
	sb.WriteString(fmt.Sprintf("+++ %s\n", r.NewName))

	for _, h := range r.Hunks {
		sb.WriteString(fmt.Sprintf("@@ -%d,%d +%d,%d @@\n", h.OldStart, h.OldCount, h.NewStart, h.NewCount))
		for _, l := range h.Lines {
			sb.WriteString(l.Type.Prefix())
			sb.WriteString(l.Content)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// Summary returns a short "+N -M" style description.
func (r *Result) Summary() string {
	parts := []string{}
	if r.Additions > 0 {
		parts = append(parts, fmt.Sprintf("+%d", r.Additions))
	}
	if r.Deletions > 0 {
		parts = append(parts, fmt.Sprintf("-%d", r.Deletions))
	}
	if len(parts) == 0 {
		return "no changes"
	}
	return strings.Join(parts, " ")
}
