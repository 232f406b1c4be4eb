// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package continuation drives one tool-call turn end to end: parse the
// streamed response for an embedded batch, execute it through the proxy, and
// POST the results back to the remote endpoint.
//
// # Key Types
//
//   - Client: the HTTP side. One POST per batch, hard timeout, typed error
//     classification (ErrTimeout, ErrRateLimited, TransportError). No
//     automatic retry; the caller owns turn-level retry decisions.
//   - FlowResult: what HandleToolCallFlow hands back, including the cleaned
//     user-visible text with all protocol framing stripped.
package continuation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/jeranaias/rigrun-relay/internal/protocol"
	"github.com/jeranaias/rigrun-relay/internal/proxy"
)

const (
	// DefaultTimeout is the hard bound on one continuation POST.
	DefaultTimeout = 30 * time.Second

	// MaxResponseSize caps how much of the remote response body is read.
	MaxResponseSize = 10 * 1024 * 1024

	// Continuation POSTs are interactive and low-volume; the limiter exists
	// to stop a misbehaving loop from hammering the remote side.
	defaultRatePerSecond = 2
	defaultRateBurst     = 5
)

// Typed transport failures. The caller decides whether to retry the turn.
var (
	// ErrTimeout means the POST exceeded its hard deadline.
	ErrTimeout = errors.New("continuation request timed out")

	// ErrRateLimited means the remote returned 429; the caller should slow
	// down before retrying.
	ErrRateLimited = errors.New("rate limited by remote endpoint, slow down before retrying")
)

// TransportError is any non-2xx, non-429 response from the remote endpoint.
type TransportError struct {
	Status int
	Body   string
}

func (e *TransportError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("continuation request failed with status %d", e.Status)
	}
	return fmt.Sprintf("continuation request failed with status %d: %s", e.Status, e.Body)
}

// sharedTransport is pooled across all clients.
// PERFORMANCE: connection reuse matters for back-to-back turns against the
// same endpoint.
var (
	sharedTransport     *http.Transport
	sharedTransportOnce sync.Once
)

func transport() *http.Transport {
	sharedTransportOnce.Do(func() {
		sharedTransport = &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 5,
			IdleConnTimeout:     90 * time.Second,
		}
	})
	return sharedTransport
}

// Client posts continuation requests to one remote endpoint.
type Client struct {
	endpoint   string
	credential string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        logrus.FieldLogger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the per-request hard timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimit overrides the outbound request limiter.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

// NewClient builds a continuation client for the given endpoint and bearer
// credential.
func NewClient(endpoint, credential string, log logrus.FieldLogger, opts ...Option) *Client {
	c := &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		credential: credential,
		httpClient: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: transport(),
		},
		limiter: rate.NewLimiter(rate.Limit(defaultRatePerSecond), defaultRateBurst),
		log:     log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send POSTs one ContinuationRequest and returns the remote response body.
// Exactly one request is issued per call; classification of failures is the
// only retry support this layer provides.
func (c *Client) Send(ctx context.Context, req *protocol.ContinuationRequest) (string, error) {
	if c.endpoint == "" {
		return "", errors.New("no continuation endpoint configured")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("continuation rate limiter: %w", err)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to encode continuation request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build continuation request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.credential)
	// Mirrors the body's sessionId so header-only proxies can route.
	httpReq.Header.Set("x-session-id", req.SessionID)

	if c.log != nil {
		c.log.WithField("session_id", req.SessionID).
			WithField("results", len(req.ToolResults)).
			WithField("credential", maskCredential(c.credential)).
			Debug("sending continuation request")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if isTimeout(err) {
			return "", ErrTimeout
		}
		return "", fmt.Errorf("continuation request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return "", fmt.Errorf("failed to read continuation response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := truncateBody(data)
		if c.log != nil {
			c.log.WithField("status", resp.StatusCode).
				WithField("body", snippet).
				Warn("continuation request rejected")
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return "", ErrRateLimited
		}
		return "", &TransportError{Status: resp.StatusCode, Body: snippet}
	}

	return string(data), nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func truncateBody(data []byte) string {
	const max = 500
	s := strings.TrimSpace(string(data))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}

// maskCredential keeps logs useful without leaking secrets.
func maskCredential(key string) string {
	if key == "" {
		return "(none)"
	}
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// =============================================================================
// FLOW
// =============================================================================

// FlowResult is the outcome of one tool-call turn.
type FlowResult struct {
	// NeedsContinuation reports whether a batch was found and executed.
	NeedsContinuation bool

	// ContinuationResponse is the remote response body to the results POST,
	// set only when NeedsContinuation is true and the POST succeeded.
	ContinuationResponse string

	// CleanedResponse is the user-visible text with protocol framing
	// stripped. When no batch is present it equals the input.
	CleanedResponse string

	// Results are the executed tool results, for display and audit.
	Results []protocol.ToolResult
}

// Handler wires the codec, proxy, and client into the per-turn state
// machine: Parse, then either done (no batch) or Execute, Build, Transmit.
type Handler struct {
	proxy  *proxy.Proxy
	client *Client
	log    logrus.FieldLogger
}

// NewHandler builds a Handler.
func NewHandler(p *proxy.Proxy, c *Client, log logrus.FieldLogger) *Handler {
	return &Handler{proxy: p, client: c, log: log}
}

// HandleToolCallFlow processes one streamed response. If the text embeds a
// tool-call batch, the batch is executed to completion and exactly one
// continuation POST carries the results back. A transmit failure is returned
// alongside the executed results so the caller can decide what to do with
// the completed work.
func (h *Handler) HandleToolCallFlow(ctx context.Context, responseText, originalMessage string) (*FlowResult, error) {
	ext := protocol.ExtractToolCalls(responseText, h.log)
	if !ext.Found {
		return &FlowResult{NeedsContinuation: false, CleanedResponse: ext.VisibleText}, nil
	}

	batch := ext.Batch
	if h.log != nil {
		h.log.WithField("session_id", batch.SessionID).
			WithField("calls", len(batch.ToolCalls)).
			Info("executing tool-call batch")
	}

	results := h.proxy.ExecuteToolCalls(ctx, batch.ToolCalls)
	req := protocol.BuildContinuationRequest(batch.SessionID, results, originalMessage)

	resp, err := h.client.Send(ctx, req)
	if err != nil {
		return &FlowResult{
			NeedsContinuation: true,
			CleanedResponse:   ext.VisibleText,
			Results:           results,
		}, err
	}

	return &FlowResult{
		NeedsContinuation:    true,
		ContinuationResponse: resp,
		CleanedResponse:      ext.VisibleText,
		Results:              results,
	}, nil
}
