// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backend provides the HTTP client for the streaming chat backend.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig holds configuration options for the backend client.
type ClientConfig struct {
	// BaseURL is the chat backend base URL (default: http://127.0.0.1:8000)
	BaseURL string

	// ResponseTimeout bounds the wait for response headers (default: 60s).
	// The body is streamed without a deadline.
	ResponseTimeout time.Duration

	// ReadBuffer is the size of each body read (default: 4096)
	ReadBuffer int

	// LenientUTF8 replaces invalid bytes instead of failing the stream
	LenientUTF8 bool
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:         "http://127.0.0.1:8000",
		ResponseTimeout: 60 * time.Second,
		ReadBuffer:      DefaultReadBuffer,
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client sends chat requests and opens response streams.
// One attempt is made per request; there are no retries.
//
// The Client is safe for concurrent use.
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
	log        *zap.SugaredLogger
}

// NewClient creates a client. A nil config uses DefaultConfig and a nil
// logger discards output.
func NewClient(config *ClientConfig, log *zap.SugaredLogger) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultConfig().BaseURL
	}
	if config.ResponseTimeout == 0 {
		config.ResponseTimeout = DefaultConfig().ResponseTimeout
	}
	if config.ReadBuffer <= 0 {
		config.ReadBuffer = DefaultReadBuffer
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = config.ResponseTimeout

	return &Client{
		config:     config,
		httpClient: &http.Client{Transport: transport},
		log:        log,
	}
}

// BaseURL returns the configured backend URL.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// Send posts req to the /chat endpoint and returns the response stream.
// A non-success status is returned as a transport error carrying the
// backend's detail; the stream is never opened in that case.
func (c *Client) Send(ctx context.Context, req *ChatRequest) (*Stream, error) {
	var body bytes.Buffer
	// Only Assemble raises configuration errors; failures from here on
	// belong to an exchange that is already open.
	contentType, err := req.Encode(&body)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeTransport, Message: "failed to build request", Cause: err}
	}

	url := strings.TrimRight(c.config.BaseURL, "/") + "/chat"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeTransport, Message: "invalid backend URL", Cause: err}
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set(HeaderAPIKey, req.Credential())

	c.log.Debugw("sending chat request",
		"url", url,
		"model", req.ModelName,
		"history_turns", len(req.History),
		"attachment", req.Attachment != nil,
	)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		msg := "could not reach chat backend"
		if IsTimeout(err) {
			msg = "request timed out"
		}
		return nil, &ClientError{Type: ErrTypeTransport, Message: msg, Cause: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer drainAndClose(resp.Body)
		detail := readErrorDetail(resp.Body)
		c.log.Warnw("chat backend returned error", "status", resp.StatusCode, "detail", detail)
		return nil, &ClientError{Type: ErrTypeTransport, Message: detail, Status: resp.StatusCode}
	}

	return &Stream{
		Status: resp.StatusCode,
		body:   resp.Body,
		dec: NewStreamDecoder(resp.Body,
			WithReadBuffer(c.config.ReadBuffer),
			WithLenientUTF8(c.config.LenientUTF8),
		),
	}, nil
}

// readErrorDetail extracts the "detail" string of an error body.
func readErrorDetail(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 64<<10))
	if err != nil {
		return DetailUnparsable
	}

	var payload any
	if err := json.Unmarshal(data, &payload); err != nil {
		return DetailUnparsable
	}
	if obj, ok := payload.(map[string]any); ok {
		if detail, ok := obj["detail"].(string); ok && detail != "" {
			return detail
		}
	}
	return DetailMissing
}

// Helper to drain response body
func drainAndClose(r io.ReadCloser) {
	io.Copy(io.Discard, r)
	r.Close()
}

// =============================================================================
// STREAM
// =============================================================================

// Stream is an open response body being decoded into text fragments.
type Stream struct {
	Status int

	body io.ReadCloser
	dec  *StreamDecoder
}

// NewStream wraps an arbitrary body, for callers that obtain the response
// some other way.
func NewStream(body io.ReadCloser, opts ...DecoderOption) *Stream {
	return &Stream{Status: http.StatusOK, body: body, dec: NewStreamDecoder(body, opts...)}
}

// Next returns the next decoded fragment, io.EOF at the end of the
// response, or a stream error.
func (s *Stream) Next() (string, error) {
	return s.dec.Next()
}

// Close releases the underlying connection.
func (s *Stream) Close() error {
	return s.body.Close()
}
