// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Work-context retention. The current pointer outlives a work week; the
// history trail is kept a month.
const (
	currentContextTTL = 7 * 24 * time.Hour
	historyTTL        = 30 * 24 * time.Hour
	maxHistoryShown   = 10
)

const currentKey = "current"

type workContextEntry struct {
	Goal        string    `json:"goal"`
	Description string    `json:"description,omitempty"`
	Files       []string  `json:"files,omitempty"`
	Status      string    `json:"status"`
	SetAt       time.Time `json:"setAt"`
}

func workContextNamespace(sessionID string) string {
	if sessionID == "" {
		sessionID = "default"
	}
	return "workctx:" + sessionID
}

// ExecSetWorkContext records what the session is currently working on. The
// previous value is preserved in a history trail.
func ExecSetWorkContext(_ context.Context, ec ExecContext, p SetWorkContextParams) (string, error) {
	goal := strings.TrimSpace(p.Goal)
	if goal == "" {
		return "", fmt.Errorf("goal is required")
	}
	if ec.Store == nil {
		return "", fmt.Errorf("work context storage is not available")
	}
	status := strings.TrimSpace(p.Status)
	if status == "" {
		status = "starting"
	}

	ns := workContextNamespace(ec.SessionID)
	now := time.Now().UTC()
	entry, err := json.Marshal(workContextEntry{
		Goal:        goal,
		Description: strings.TrimSpace(p.Description),
		Files:       p.Files,
		Status:      status,
		SetAt:       now,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode work context: %w", err)
	}

	if err := ec.Store.Put(ns, currentKey, string(entry), currentContextTTL); err != nil {
		return "", fmt.Errorf("failed to store work context: %w", err)
	}
	// History keys sort by timestamp; uuid suffix keeps same-instant writes
	// from colliding.
	historyKey := fmt.Sprintf("history:%s:%s", now.Format(time.RFC3339Nano), uuid.NewString())
	if err := ec.Store.Put(ns, historyKey, string(entry), historyTTL); err != nil {
		ec.logger().WithError(err).Warn("failed to append work context history")
	}

	return fmt.Sprintf("Work context set: %s (status: %s)", goal, status), nil
}

// ExecGetWorkContext reports the current work context, optionally with the
// most recent history entries.
func ExecGetWorkContext(_ context.Context, ec ExecContext, p GetWorkContextParams) (string, error) {
	if ec.Store == nil {
		return "", fmt.Errorf("work context storage is not available")
	}
	ns := workContextNamespace(ec.SessionID)

	raw, ok, err := ec.Store.Get(ns, currentKey)
	if err != nil {
		return "", fmt.Errorf("failed to load work context: %w", err)
	}

	var sb strings.Builder
	if !ok {
		sb.WriteString("No work context set for this session")
	} else {
		var cur workContextEntry
		if err := json.Unmarshal([]byte(raw), &cur); err != nil {
			return "", fmt.Errorf("corrupt work context entry: %w", err)
		}
		fmt.Fprintf(&sb, "Current work context (set %s):\nGoal: %s\nStatus: %s", cur.SetAt.Format(time.RFC3339), cur.Goal, cur.Status)
		if cur.Description != "" {
			fmt.Fprintf(&sb, "\n%s", cur.Description)
		}
		if len(cur.Files) > 0 {
			fmt.Fprintf(&sb, "\nFiles: %s", strings.Join(cur.Files, ", "))
		}
	}

	if p.IncludeHistory {
		entries, err := ec.Store.List(ns, "history:")
		if err != nil {
			return "", fmt.Errorf("failed to load work context history: %w", err)
		}
		if len(entries) > 0 {
			// List returns ascending key order; show newest first.
			sort.Slice(entries, func(i, j int) bool { return entries[i].Key > entries[j].Key })
			if len(entries) > maxHistoryShown {
				entries = entries[:maxHistoryShown]
			}
			sb.WriteString("\n\nRecent history:")
			for _, e := range entries {
				var h workContextEntry
				if err := json.Unmarshal([]byte(e.Value), &h); err != nil {
					continue
				}
				fmt.Fprintf(&sb, "\n- [%s] %s (%s)", h.SetAt.Format("2006-01-02 15:04"), h.Goal, h.Status)
			}
		}
	}

	return sb.String(), nil
}
