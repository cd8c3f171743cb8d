// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/Homobonus-Projects/Gemini-Stock-Chatbot/internal/model"
)

// DefaultEmbeddingModel is used for ingest and retrieval.
const DefaultEmbeddingModel = "text-embedding-004"

// Image is an uploaded image forwarded to the model.
type Image struct {
	MIMEType string
	Data     []byte
}

// Prompt is one generation request.
type Prompt struct {
	APIKey            string
	Model             string
	SystemInstruction string
	History           []model.Turn
	Text              string
	Image             *Image
}

// Generator streams a model reply. emit is called once per text chunk; an
// error from emit aborts generation and is returned.
type Generator interface {
	Generate(ctx context.Context, p Prompt, emit func(chunk string) error) error
}

// Embedder turns text into an embedding vector.
type Embedder interface {
	Embed(ctx context.Context, apiKey, text string) ([]float32, error)
}

// =============================================================================
// GEMINI GENERATOR
// =============================================================================

// GeminiGenerator generates with the Gemini API. A client is created per
// request because every request carries its own API key.
type GeminiGenerator struct {
	opts      []option.ClientOption
	tools     ToolProvider
	maxRounds int
	log       *zap.SugaredLogger
}

// NewGeminiGenerator creates a generator. Extra client options are applied
// after the per-request API key.
func NewGeminiGenerator(opts ...option.ClientOption) *GeminiGenerator {
	return &GeminiGenerator{opts: opts, log: zap.NewNop().Sugar()}
}

// WithTools offers the provider's tools to the model on every request.
// maxRounds <= 0 selects DefaultMaxToolRounds.
func (g *GeminiGenerator) WithTools(tools ToolProvider, maxRounds int, log *zap.SugaredLogger) *GeminiGenerator {
	if maxRounds <= 0 {
		maxRounds = DefaultMaxToolRounds
	}
	if log != nil {
		g.log = log
	}
	g.tools = tools
	g.maxRounds = maxRounds
	return g
}

// Generate implements Generator.
func (g *GeminiGenerator) Generate(ctx context.Context, p Prompt, emit func(string) error) error {
	client, err := newGeminiClient(ctx, p.APIKey, g.opts)
	if err != nil {
		return err
	}
	defer client.Close()

	gm := client.GenerativeModel(p.Model)
	if si := strings.TrimSpace(p.SystemInstruction); si != "" {
		gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(si)}}
	}
	gm.Tools = g.toolConfig(ctx)

	cs := gm.StartChat()
	cs.History = toContents(p.History)

	var parts []genai.Part
	if p.Text != "" {
		parts = append(parts, genai.Text(p.Text))
	}
	if p.Image != nil {
		parts = append(parts, genai.Blob{MIMEType: p.Image.MIMEType, Data: p.Image.Data})
	}

	var tools ToolProvider
	if gm.Tools != nil {
		tools = g.tools
	}
	return runToolLoop(ctx, geminiChat{cs}, parts, tools, g.maxRounds, g.log, emit)
}

// toolConfig lists the provider's tools for one request. A provider that
// cannot be reached leaves the model without tools.
func (g *GeminiGenerator) toolConfig(ctx context.Context) []*genai.Tool {
	if g.tools == nil {
		return nil
	}
	defs, err := g.tools.ListTools(ctx)
	if err != nil {
		g.log.Warnw("tool list unavailable, continuing without tools", "error", err)
		return nil
	}
	decls := FunctionDeclarations(defs)
	if len(decls) == 0 {
		return nil
	}
	g.log.Debugw("tools offered", "count", len(decls))
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// chatTurn sends one turn of a chat, streams the reply's text through emit
// and returns any function calls the reply made.
type chatTurn interface {
	SendTurn(ctx context.Context, parts []genai.Part, emit func(string) error) ([]genai.FunctionCall, error)
}

type geminiChat struct {
	cs *genai.ChatSession
}

func (c geminiChat) SendTurn(ctx context.Context, parts []genai.Part, emit func(string) error) ([]genai.FunctionCall, error) {
	var calls []genai.FunctionCall
	iter := c.cs.SendMessageStream(ctx, parts...)
	for {
		resp, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return calls, nil
		}
		if err != nil {
			return nil, fmt.Errorf("gemini generate: %w", err)
		}
		for _, cand := range resp.Candidates {
			if cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				switch v := part.(type) {
				case genai.Text:
					if v == "" {
						continue
					}
					if err := emit(string(v)); err != nil {
						return nil, err
					}
				case genai.FunctionCall:
					calls = append(calls, v)
				}
			}
		}
	}
}

// runToolLoop sends parts and answers the model's function calls through
// tools until a reply makes no calls. Tool failures are reported to the
// model as {"error": ...} rather than ending the reply.
func runToolLoop(ctx context.Context, chat chatTurn, parts []genai.Part, tools ToolProvider, maxRounds int, log *zap.SugaredLogger, emit func(string) error) error {
	for round := 0; ; round++ {
		calls, err := chat.SendTurn(ctx, parts, emit)
		if err != nil {
			return err
		}
		if len(calls) == 0 || tools == nil {
			return nil
		}
		if round >= maxRounds {
			return fmt.Errorf("%w: stopped after %d rounds", ErrToolRounds, maxRounds)
		}

		parts = make([]genai.Part, 0, len(calls))
		for _, fc := range calls {
			log.Infow("model called tool", "tool", fc.Name, "args", fc.Args)
			out, err := tools.CallTool(ctx, fc.Name, fc.Args)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Warnw("tool call failed", "tool", fc.Name, "error", err)
				parts = append(parts, genai.FunctionResponse{Name: fc.Name, Response: map[string]any{"error": err.Error()}})
				continue
			}
			parts = append(parts, genai.FunctionResponse{Name: fc.Name, Response: map[string]any{"result": out}})
		}
	}
}

// toContents maps wire turns to Gemini contents. Any role other than
// "user" is sent as "model".
func toContents(turns []model.Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		role := "model"
		if t.Role == "user" {
			role = "user"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(t.Text)},
		})
	}
	return contents
}

// =============================================================================
// GEMINI EMBEDDER
// =============================================================================

// GeminiEmbedder embeds text with a Gemini embedding model.
type GeminiEmbedder struct {
	model string
	opts  []option.ClientOption
}

// NewGeminiEmbedder creates an embedder. An empty model selects
// DefaultEmbeddingModel.
func NewGeminiEmbedder(model string, opts ...option.ClientOption) *GeminiEmbedder {
	if model == "" {
		model = DefaultEmbeddingModel
	}
	return &GeminiEmbedder{model: model, opts: opts}
}

// Embed implements Embedder.
func (e *GeminiEmbedder) Embed(ctx context.Context, apiKey, text string) ([]float32, error) {
	client, err := newGeminiClient(ctx, apiKey, e.opts)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	resp, err := client.EmbeddingModel(e.model).EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	if resp == nil || resp.Embedding == nil || len(resp.Embedding.Values) == 0 {
		return nil, errors.New("gemini embed: empty embedding")
	}
	return resp.Embedding.Values, nil
}

func newGeminiClient(ctx context.Context, apiKey string, extra []option.ClientOption) (*genai.Client, error) {
	opts := append([]option.ClientOption{option.WithAPIKey(apiKey)}, extra...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gemini init: %w", err)
	}
	return client, nil
}
