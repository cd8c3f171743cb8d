// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Homobonus-Projects/Gemini-Stock-Chatbot/internal/knowledge"
	"github.com/Homobonus-Projects/Gemini-Stock-Chatbot/internal/relay"
)

func serveCmd(flags *globalFlags) *cobra.Command {
	var addr, knowledgeDB, mcpURL string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat backend relay in front of Gemini",
		Long: "Run an HTTP server that accepts chat requests and streams Gemini\n" +
			"responses back as plain text. Each request carries its own API key\n" +
			"in the X-Gemini-Api-Key header.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := flags.load(false)
			if err != nil {
				return err
			}
			defer e.log.Sync()

			if addr != "" {
				e.cfg.Relay.Addr = addr
			}
			if knowledgeDB != "" {
				e.cfg.Relay.KnowledgeDB = knowledgeDB
			}
			if mcpURL != "" {
				e.cfg.Relay.MCPURL = mcpURL
			}

			gen, err := newGenerator(e)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ln, err := net.Listen("tcp", e.cfg.Relay.Addr)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", e.cfg.Relay.Addr, err)
			}
			return runServe(ctx, e, ln, gen, relay.NewGeminiEmbedder(e.cfg.Relay.EmbeddingModel))
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default relay.addr, :8000)")
	cmd.Flags().StringVar(&knowledgeDB, "knowledge-db", "", "SQLite file for ingested documents")
	cmd.Flags().StringVar(&mcpURL, "mcp-url", "", "MCP server whose tools the model may call")
	return cmd
}

// newGenerator builds the Gemini generator, with MCP tools when
// relay.mcp_url is set.
func newGenerator(e *env) (*relay.GeminiGenerator, error) {
	gen := relay.NewGeminiGenerator()
	rc := e.cfg.Relay
	if rc.MCPURL == "" {
		return gen, nil
	}
	tools, err := relay.NewMCPClient(rc.MCPURL, rc.MCPAPIKey, nil)
	if err != nil {
		return nil, err
	}
	e.log.Infow("model tools enabled", "mcp_url", rc.MCPURL, "max_rounds", rc.MaxToolRounds)
	return gen.WithTools(tools, rc.MaxToolRounds, e.log), nil
}

// runServe serves the relay on ln until ctx is done. The knowledge store
// is opened only when relay.knowledge_db is set.
func runServe(ctx context.Context, e *env, ln net.Listener, gen relay.Generator, embedder relay.Embedder) error {
	rc := e.cfg.Relay
	srv := relay.New(relay.Options{
		Addr:              rc.Addr,
		SystemInstruction: rc.SystemInstruction,
		RequestsPerMinute: rc.RequestsPerMinute,
		Burst:             rc.Burst,
		KnowledgeResults:  rc.KnowledgeResults,
	}, gen, e.log)

	if rc.KnowledgeDB != "" {
		store, err := knowledge.Open(rc.KnowledgeDB)
		if err != nil {
			ln.Close()
			return err
		}
		defer store.Close()

		if n, err := store.Count(ctx); err == nil {
			e.log.Infow("knowledge store opened", "path", rc.KnowledgeDB, "documents", n)
		}
		srv.WithKnowledge(store, embedder)
	}

	return srv.Serve(ctx, ln)
}
