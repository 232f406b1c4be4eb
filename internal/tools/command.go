// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeranaias/rigrun-relay/internal/execrun"
	"github.com/jeranaias/rigrun-relay/internal/safety"
)

// ExecRunCommand runs a shell command under the safety policy.
//
// SECURITY: the policy check happens before any subprocess is created. A
// blocked command fails with the policy's reason and never spawns.
func ExecRunCommand(ctx context.Context, ec ExecContext, p RunCommandParams) (string, error) {
	if strings.TrimSpace(p.Command) == "" {
		return "", fmt.Errorf("command is required")
	}
	if err := safety.Check(p.Command); err != nil {
		ec.logger().WithField("command", p.Command).Warn("command blocked by safety policy")
		return "", err
	}

	dir := ec.WorkDir
	if p.WorkingDir != "" {
		if filepath.IsAbs(p.WorkingDir) {
			dir = filepath.Clean(p.WorkingDir)
		} else {
			dir = filepath.Clean(filepath.Join(ec.WorkDir, p.WorkingDir))
		}
	}

	timeout := execrun.DefaultTimeout
	if p.TimeoutMS > 0 {
		timeout = time.Duration(p.TimeoutMS) * time.Millisecond
	}

	out, err := execrun.Run(ctx, execrun.Spec{
		Command: p.Command,
		Dir:     dir,
		Timeout: timeout,
	})
	if err != nil {
		if errors.Is(err, execrun.ErrTimedOut) {
			return "", fmt.Errorf("command timed out after %s; partial output:\n%s", timeout, out.Combined())
		}
		return "", fmt.Errorf("failed to run command: %w", err)
	}

	if out.ExitCode != 0 {
		// Non-zero exit is a failure, but the captured output is the whole
		// point for diagnosis, so it rides along in the error text.
		return "", fmt.Errorf("%s\n%s", execrun.FormatExit(out.ExitCode), out.Combined())
	}
	return out.Combined(), nil
}
