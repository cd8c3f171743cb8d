// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// FieldText is the form field carrying a document for /ingest.
const FieldText = "text"

// ErrNoText is returned by Ingest for blank documents.
var ErrNoText = &ClientError{Type: ErrTypeConfiguration, Message: "text is required"}

// Ingest posts a document to the backend's knowledge store and returns the
// backend's confirmation message.
func (c *Client) Ingest(ctx context.Context, credential, text string) (string, error) {
	if credential == "" {
		return "", ErrNoCredential
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrNoText
	}

	form := url.Values{FieldText: {text}}
	endpoint := strings.TrimRight(c.config.BaseURL, "/") + "/ingest"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", &ClientError{Type: ErrTypeConfiguration, Message: "invalid backend URL", Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set(HeaderAPIKey, credential)

	c.log.Debugw("sending ingest request", "url", endpoint, "bytes", len(text))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		msg := "could not reach chat backend"
		if IsTimeout(err) {
			msg = "request timed out"
		}
		return "", &ClientError{Type: ErrTypeTransport, Message: msg, Cause: err}
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := readErrorDetail(resp.Body)
		c.log.Warnw("ingest rejected", "status", resp.StatusCode, "detail", detail)
		return "", &ClientError{Type: ErrTypeTransport, Message: detail, Status: resp.StatusCode}
	}

	var ack struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&ack); err != nil {
		return "", &ClientError{Type: ErrTypeStream, Message: "invalid ingest response", Cause: err}
	}
	return ack.Message, nil
}
