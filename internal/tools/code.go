// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jeranaias/rigrun-relay/internal/sandbox"
)

const sandboxEnablementHint = `Code execution is not enabled: no sandbox API key is configured.

To enable it, set sandbox_api_key in ~/.rigrun-relay/config.toml or export
SANDBOX_API_KEY, then restart the relay. Until then, consider run_command
for shell-level tasks.`

// ExecExecuteCode runs a snippet in the remote sandbox.
//
// A missing credential is NOT a failure: the session should keep flowing, so
// the tool succeeds with a clearly labeled "capability unavailable" message
// telling the user how to turn it on. Any other remote problem is a normal
// failure.
func ExecExecuteCode(ctx context.Context, ec ExecContext, p ExecuteCodeParams) (string, error) {
	if ec.Sandbox == nil || !ec.Sandbox.IsConfigured() {
		return sandboxEnablementHint, nil
	}
	if p.Language == "" {
		return "", fmt.Errorf("language is required")
	}
	if strings.TrimSpace(p.Code) == "" {
		return "", fmt.Errorf("code is required")
	}

	exec, err := ec.Sandbox.Execute(ctx, p.Language, p.Code, p.Input)
	if err != nil {
		if errors.Is(err, sandbox.ErrNotConfigured) {
			return sandboxEnablementHint, nil
		}
		return "", fmt.Errorf("code execution failed: %w", err)
	}

	out := exec.Combined()
	if exec.ExitCode != 0 {
		return "", fmt.Errorf("code exited with status %d\n%s", exec.ExitCode, out)
	}
	return out, nil
}
