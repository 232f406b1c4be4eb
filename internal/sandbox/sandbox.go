// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package sandbox is a thin client for the remote code-execution service
// backing the execute_code tool. Code snippets run in an isolated remote
// sandbox, never on the local machine.
package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultBaseURL is the production sandbox endpoint.
	DefaultBaseURL = "https://sandbox.rigrun.dev/v1"

	// DefaultTimeout bounds one execution round-trip, including queue time
	// on the remote side.
	DefaultTimeout = 60 * time.Second

	// MaxResponseSize caps how much of a sandbox response we will read.
	// PERFORMANCE: prevents a misbehaving endpoint from exhausting memory.
	MaxResponseSize = 4 * 1024 * 1024
)

// ErrNotConfigured is returned when no sandbox API key is available.
var ErrNotConfigured = errors.New("sandbox: no API key configured")

// SupportedLanguages lists the runtimes the sandbox service accepts.
var SupportedLanguages = map[string]bool{
	"python":     true,
	"javascript": true,
	"typescript": true,
	"go":         true,
	"rust":       true,
	"bash":       true,
	"ruby":       true,
}

// Client talks to the sandbox API. The zero value is not usable; construct
// with New.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	log        logrus.FieldLogger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the sandbox endpoint, mainly for tests.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

// WithHTTPClient substitutes the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New builds a sandbox client. An empty apiKey is allowed; the client exists
// but IsConfigured reports false and Execute fails with ErrNotConfigured.
func New(apiKey string, log logrus.FieldLogger, opts ...Option) *Client {
	c := &Client{
		apiKey:  apiKey,
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		log: log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsConfigured reports whether a credential is present.
func (c *Client) IsConfigured() bool {
	return c != nil && c.apiKey != ""
}

type executeRequest struct {
	Language string `json:"language"`
	Code     string `json:"code"`
	Input    string `json:"input,omitempty"`
}

type executeResponse struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exitCode"`
	Error    string `json:"error,omitempty"`
}

// Execution is the outcome of one remote run.
type Execution struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Combined renders stdout and stderr the way tool output expects.
func (e *Execution) Combined() string {
	var sb strings.Builder
	if e.Stdout != "" {
		sb.WriteString(e.Stdout)
	}
	if e.Stderr != "" {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("STDERR:\n")
		sb.WriteString(e.Stderr)
	}
	if sb.Len() == 0 {
		sb.WriteString("(no output)")
	}
	return sb.String()
}

// Execute runs code in the remote sandbox and returns its output.
func (c *Client) Execute(ctx context.Context, language, code, input string) (*Execution, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}
	if !SupportedLanguages[strings.ToLower(language)] {
		return nil, fmt.Errorf("sandbox: unsupported language %q", language)
	}

	body, err := json.Marshal(executeRequest{
		Language: strings.ToLower(language),
		Code:     code,
		Input:    input,
	})
	if err != nil {
		return nil, fmt.Errorf("sandbox: failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("sandbox: failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sandbox: request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("sandbox: failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if c.log != nil {
			c.log.WithField("status", resp.StatusCode).Warn("sandbox execution rejected")
		}
		return nil, fmt.Errorf("sandbox: server returned %d: %s", resp.StatusCode, truncateForError(data))
	}

	var out executeResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("sandbox: malformed response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("sandbox: %s", out.Error)
	}

	return &Execution{Stdout: out.Stdout, Stderr: out.Stderr, ExitCode: out.ExitCode}, nil
}

func truncateForError(data []byte) string {
	const max = 200
	s := strings.TrimSpace(string(data))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
