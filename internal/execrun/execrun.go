// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package execrun runs subprocesses with bounded output and hard timeouts.
//
// Every shell-backed tool in the relay goes through Run so the limits live
// in one place instead of being duplicated per tool.
package execrun

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strconv"
	"time"
)

// Default limits applied when a Spec leaves them zero.
const (
	DefaultTimeout   = 30 * time.Second
	MaxTimeout       = 10 * time.Minute
	DefaultMaxOutput = 100_000 // bytes per stream
)

// ErrTimedOut reports that the subprocess hit its deadline and was killed.
var ErrTimedOut = errors.New("command timed out")

// Spec describes one subprocess invocation. Exactly one of Command (run via
// the shell) or Argv (run directly) must be set.
type Spec struct {
	Command   string   // shell command line, run as sh -c
	Argv      []string // direct argv, no shell
	Dir       string   // working directory
	Stdin     string   // optional stdin payload
	Timeout   time.Duration
	MaxOutput int // max captured bytes per stream
}

// Output is the captured result of a subprocess run.
type Output struct {
	Stdout    string
	Stderr    string
	ExitCode  int
	Truncated bool
	TimedOut  bool
	Duration  time.Duration
}

// Combined merges stdout and stderr for display, appending a truncation
// notice when either stream hit the capture limit.
func (o *Output) Combined() string {
	var sb bytes.Buffer
	if o.Stdout != "" {
		sb.WriteString(o.Stdout)
	}
	if o.Stderr != "" {
		if sb.Len() > 0 {
			sb.WriteString("\n\nSTDERR:\n")
		}
		sb.WriteString(o.Stderr)
	}
	if sb.Len() == 0 {
		return "(no output)"
	}
	if o.Truncated {
		sb.WriteString("\n\n[output truncated]")
	}
	return sb.String()
}

// boundedBuffer captures up to limit bytes and discards the rest, so a
// runaway subprocess cannot grow memory without bound.
type boundedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	remaining := b.limit - b.buf.Len()
	if remaining <= 0 {
		b.truncated = true
		return len(p), nil // keep the pipe drained
	}
	if len(p) > remaining {
		b.buf.Write(p[:remaining])
		b.truncated = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

// Run executes the spec. A non-zero exit code is not an error here (callers
// inspect Output.ExitCode), but a timeout returns ErrTimedOut alongside
// whatever output was captured before the kill.
func Run(ctx context.Context, spec Spec) (*Output, error) {
	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if timeout > MaxTimeout {
		timeout = MaxTimeout
	}
	maxOutput := spec.MaxOutput
	if maxOutput <= 0 {
		maxOutput = DefaultMaxOutput
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var cmd *exec.Cmd
	if len(spec.Argv) > 0 {
		cmd = exec.CommandContext(runCtx, spec.Argv[0], spec.Argv[1:]...)
	} else {
		cmd = exec.CommandContext(runCtx, "sh", "-c", spec.Command)
	}
	if spec.Dir != "" {
		cmd.Dir = spec.Dir
	}
	if spec.Stdin != "" {
		cmd.Stdin = bytes.NewBufferString(spec.Stdin)
	}

	stdout := &boundedBuffer{limit: maxOutput}
	stderr := &boundedBuffer{limit: maxOutput}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	out := &Output{
		Stdout:    stdout.buf.String(),
		Stderr:    stderr.buf.String(),
		Truncated: stdout.truncated || stderr.truncated,
		Duration:  duration,
	}

	if runCtx.Err() == context.DeadlineExceeded {
		out.TimedOut = true
		out.ExitCode = -1
		return out, ErrTimedOut
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			out.ExitCode = exitErr.ExitCode()
			return out, nil
		}
		// Spawn failure (binary missing, permission denied).
		return out, err
	}

	out.ExitCode = 0
	return out, nil
}

// FormatExit renders an exit code for result messages.
func FormatExit(code int) string {
	return "exit code " + strconv.Itoa(code)
}
