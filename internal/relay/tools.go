// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/generative-ai-go/genai"
)

// ============================================================================
// MCP CLIENT
// ============================================================================

const (
	listToolsTimeout = 10 * time.Second
	callToolTimeout  = 30 * time.Second

	// DefaultMaxToolRounds bounds function-call round trips per reply.
	DefaultMaxToolRounds = 5
)

// ErrToolRounds is returned when the model keeps calling tools past the
// configured number of rounds.
var ErrToolRounds = errors.New("too many tool calls")

// ToolDefinition is one tool advertised by an MCP server.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// ToolProvider lists and invokes the tools offered to the model.
type ToolProvider interface {
	ListTools(ctx context.Context) ([]ToolDefinition, error)
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)
}

// MCPClient speaks MCP JSON-RPC over plain HTTP POST, one request per
// call. The API key, if any, is sent as the apikey query parameter.
type MCPClient struct {
	endpoint string
	http     *http.Client
	ids      atomic.Uint64
}

// NewMCPClient creates a client for the server at rawURL. A nil httpClient
// uses http.DefaultClient.
func NewMCPClient(rawURL, apiKey string, httpClient *http.Client) (*MCPClient, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("mcp: invalid server URL %q", rawURL)
	}
	if apiKey != "" {
		q := u.Query()
		q.Set("apikey", apiKey)
		u.RawQuery = q.Encode()
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &MCPClient{endpoint: u.String(), http: httpClient}, nil
}

// ListTools fetches the server's tools, following pagination cursors.
func (c *MCPClient) ListTools(ctx context.Context) ([]ToolDefinition, error) {
	ctx, cancel := context.WithTimeout(ctx, listToolsTimeout)
	defer cancel()

	var (
		cursor string
		tools  []ToolDefinition
	)
	for {
		params := map[string]any{}
		if cursor != "" {
			params["cursor"] = cursor
		}
		var resp struct {
			Tools      []ToolDefinition `json:"tools"`
			NextCursor string           `json:"nextCursor,omitempty"`
		}
		if err := c.call(ctx, "tools/list", params, &resp); err != nil {
			return nil, err
		}
		tools = append(tools, resp.Tools...)
		if strings.TrimSpace(resp.NextCursor) == "" {
			return tools, nil
		}
		cursor = resp.NextCursor
	}
}

type toolContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type toolResult struct {
	Content []toolContent `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

// CallTool invokes name and returns its text output. A result without text
// parts is returned as its raw JSON.
func (c *MCPClient) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", errors.New("mcp: tool name is required")
	}
	ctx, cancel := context.WithTimeout(ctx, callToolTimeout)
	defer cancel()

	params := map[string]any{"name": name}
	if len(args) > 0 {
		params["arguments"] = args
	}

	var raw json.RawMessage
	if err := c.call(ctx, "tools/call", params, &raw); err != nil {
		return "", err
	}
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}

	var result toolResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("mcp: decode result: %w", err)
	}

	var texts []string
	for _, part := range result.Content {
		if part.Type == "text" && strings.TrimSpace(part.Text) != "" {
			texts = append(texts, part.Text)
		}
	}
	out := strings.Join(texts, "\n")
	if out == "" {
		out = string(raw)
	}
	if result.IsError {
		return "", fmt.Errorf("mcp: tool %s failed: %s", name, out)
	}
	return out, nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
}

func (c *MCPClient) call(ctx context.Context, method string, params, out any) error {
	id := strconv.FormatUint(c.ids.Add(1), 10)
	payload, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("mcp: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("mcp: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("mcp %s: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, DefaultMaxRequestBytes))
	if err != nil {
		return fmt.Errorf("mcp %s: read response: %w", method, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("mcp %s: unexpected status %d", method, resp.StatusCode)
	}

	var env rpcResponse
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("mcp %s: decode response: %w", method, err)
	}
	if env.Error != nil {
		return fmt.Errorf("mcp %s: %s (code %d)", method, env.Error.Message, env.Error.Code)
	}
	if out != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("mcp %s: decode result: %w", method, err)
		}
	}
	return nil
}

// ============================================================================
// FUNCTION DECLARATIONS
// ============================================================================

var functionName = regexp.MustCompile(`^[A-Za-z0-9_-]{1,63}$`)

// jsonSchema is the subset of JSON Schema that maps onto genai.Schema.
type jsonSchema struct {
	Type        json.RawMessage        `json:"type,omitempty"`
	Format      string                 `json:"format,omitempty"`
	Description string                 `json:"description,omitempty"`
	Enum        []any                  `json:"enum,omitempty"`
	Items       *jsonSchema            `json:"items,omitempty"`
	Properties  map[string]*jsonSchema `json:"properties,omitempty"`
	Required    []string               `json:"required,omitempty"`
}

// FunctionDeclarations converts MCP tools to Gemini declarations. Tools
// whose names Gemini rejects are skipped.
func FunctionDeclarations(defs []ToolDefinition) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(defs))
	for _, def := range defs {
		if !functionName.MatchString(def.Name) {
			continue
		}
		decl := &genai.FunctionDeclaration{
			Name:        def.Name,
			Description: def.Description,
		}
		if len(def.InputSchema) > 0 {
			var js jsonSchema
			if err := json.Unmarshal(def.InputSchema, &js); err == nil {
				// An object with no properties is rejected by the API.
				if s := js.toGenai(); s != nil && (s.Type != genai.TypeObject || len(s.Properties) > 0) {
					decl.Parameters = s
				}
			}
		}
		decls = append(decls, decl)
	}
	return decls
}

func (js *jsonSchema) toGenai() *genai.Schema {
	if js == nil {
		return nil
	}
	typ, nullable := js.schemaType()
	s := &genai.Schema{
		Type:        typ,
		Description: js.Description,
		Nullable:    nullable,
	}

	switch typ {
	case genai.TypeString:
		if js.Format == "enum" || js.Format == "date-time" {
			s.Format = js.Format
		}
		for _, v := range js.Enum {
			s.Enum = append(s.Enum, fmt.Sprint(v))
		}
		if len(s.Enum) > 0 {
			s.Format = "enum"
		}
	case genai.TypeNumber:
		if js.Format == "float" || js.Format == "double" {
			s.Format = js.Format
		}
	case genai.TypeInteger:
		if js.Format == "int32" || js.Format == "int64" {
			s.Format = js.Format
		}
	case genai.TypeArray:
		s.Items = js.Items.toGenai()
		if s.Items == nil {
			s.Items = &genai.Schema{Type: genai.TypeString}
		}
	case genai.TypeObject:
		if len(js.Properties) > 0 {
			s.Properties = make(map[string]*genai.Schema, len(js.Properties))
			for name, prop := range js.Properties {
				if ps := prop.toGenai(); ps != nil {
					s.Properties[name] = ps
				}
			}
			for _, name := range js.Required {
				if _, ok := s.Properties[name]; ok {
					s.Required = append(s.Required, name)
				}
			}
		}
	}
	return s
}

// schemaType reads "type" as a string or a list such as ["string","null"].
// Untyped schemas become objects when they have properties, strings otherwise.
func (js *jsonSchema) schemaType() (genai.Type, bool) {
	var names []string
	var one string
	if err := json.Unmarshal(js.Type, &one); err == nil {
		names = []string{one}
	} else {
		_ = json.Unmarshal(js.Type, &names)
	}

	nullable := false
	for _, name := range names {
		if name == "null" {
			nullable = true
		}
	}
	for _, name := range names {
		switch name {
		case "string":
			return genai.TypeString, nullable
		case "number":
			return genai.TypeNumber, nullable
		case "integer":
			return genai.TypeInteger, nullable
		case "boolean":
			return genai.TypeBoolean, nullable
		case "array":
			return genai.TypeArray, nullable
		case "object":
			return genai.TypeObject, nullable
		}
	}
	if len(js.Properties) > 0 {
		return genai.TypeObject, nullable
	}
	return genai.TypeString, nullable
}
