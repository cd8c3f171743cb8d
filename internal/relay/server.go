// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Homobonus-Projects/Gemini-Stock-Chatbot/internal/backend"
	"github.com/Homobonus-Projects/Gemini-Stock-Chatbot/internal/knowledge"
	"github.com/Homobonus-Projects/Gemini-Stock-Chatbot/internal/model"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultAddr matches the client's default backend URL.
	DefaultAddr = ":8000"

	// DefaultMaxRequestBytes bounds a /chat or /ingest body.
	DefaultMaxRequestBytes = 16 << 20

	// multipartMemory is kept in memory before spilling to disk.
	multipartMemory = 8 << 20

	// Engine is reported by GET /.
	Engine = "google-genai"
)

// Wire messages.
const (
	DetailMissingKey   = "X-Gemini-Api-Key header is required."
	DetailRateLimited  = "Rate limit exceeded. Try again later."
	DetailEmptyMessage = "A message or an image is required."
	DetailEmptyText    = "Text is required."
	DetailTooLarge     = "Request body is too large."
	DetailBadForm      = "Invalid form data."
	DetailNoKnowledge  = "Knowledge store is not configured."

	// InBandErrorPrefix precedes an error written after streaming started.
	InBandErrorPrefix = "An error occurred: "

	// NoContentText is written when the model produced nothing.
	NoContentText = "Error: The model returned no content."

	// KnowledgeAdded is the /ingest success message.
	KnowledgeAdded = "Knowledge added."
)

// relayModels are the models the relay forwards; anything else falls back
// to model.DefaultModel.
var relayModels = map[string]bool{
	"gemini-2.5-flash": true,
	"gemini-2.5-pro":   true,
}

// KnowledgeBase stores and retrieves ingested documents.
type KnowledgeBase interface {
	Add(ctx context.Context, text string, embedding []float32) (int64, error)
	Search(ctx context.Context, query []float32, limit int) ([]knowledge.Result, error)
}

// Options configures a Server.
type Options struct {
	Addr              string
	SystemInstruction string

	// RequestsPerMinute per API key; 0 disables limiting.
	RequestsPerMinute int
	Burst             int

	// KnowledgeResults is how many documents are added to the instruction.
	KnowledgeResults int

	MaxRequestBytes int64
}

// ============================================================================
// SERVER
// ============================================================================

// Server relays chat requests to a Generator and streams replies back as
// plain text.
type Server struct {
	opts      Options
	gen       Generator
	kb        KnowledgeBase
	embedder  Embedder
	limiter   *keyLimiter
	log       *zap.SugaredLogger
	mux       *http.ServeMux
	server    *http.Server
	startTime time.Time
}

// New creates a Server.
func New(opts Options, gen Generator, log *zap.SugaredLogger) *Server {
	if opts.Addr == "" {
		opts.Addr = DefaultAddr
	}
	if opts.MaxRequestBytes <= 0 {
		opts.MaxRequestBytes = DefaultMaxRequestBytes
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	s := &Server{
		opts:      opts,
		gen:       gen,
		limiter:   newKeyLimiter(opts.RequestsPerMinute, opts.Burst),
		log:       log,
		mux:       http.NewServeMux(),
		startTime: time.Now(),
	}
	s.setupRoutes()
	return s
}

// WithKnowledge enables /ingest and retrieval on /chat.
func (s *Server) WithKnowledge(kb KnowledgeBase, embedder Embedder) *Server {
	s.kb = kb
	s.embedder = embedder
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("GET /{$}", s.handleRoot)
	s.mux.HandleFunc("POST /chat", s.handleChat)
	s.mux.HandleFunc("POST /ingest", s.handleIngest)
}

// Handler returns the routed handler wrapped in middleware.
func (s *Server) Handler() http.Handler {
	return Chain(
		RecoveryMiddleware(s.log),
		LoggingMiddleware(s.log),
		CORSMiddleware(DefaultCORSConfig()),
	)(s.mux)
}

// ============================================================================
// HANDLERS
// ============================================================================

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status": "running",
		"engine": Engine,
		"uptime": time.Since(s.startTime).Round(time.Second).String(),
	})
}

// handleChat handles POST /chat.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	key, ok := s.admit(w, r)
	if !ok {
		return
	}

	prompt := Prompt{
		APIKey:            key,
		Model:             relayModel(r.FormValue(backend.FieldModelName)),
		SystemInstruction: s.opts.SystemInstruction,
		History:           parseHistory(r.FormValue(backend.FieldHistory)),
		Text:              r.FormValue(backend.FieldMessage),
	}

	img, err := readImage(r)
	if err != nil {
		s.log.Warnw("failed to read upload", "error", err)
		s.writeDetail(w, http.StatusBadRequest, DetailBadForm)
		return
	}
	prompt.Image = img

	if strings.TrimSpace(prompt.Text) == "" && prompt.Image == nil {
		s.writeDetail(w, http.StatusBadRequest, DetailEmptyMessage)
		return
	}

	ctx := r.Context()
	if extra := s.retrieve(ctx, key, prompt.Text); extra != "" {
		prompt.SystemInstruction += "\n\nAdditional information from the knowledge base that may help:\n" +
			extra + "\nUse it if it is relevant to the question."
	}

	s.log.Debugw("chat",
		"model", prompt.Model,
		"history", len(prompt.History),
		"image", prompt.Image != nil,
	)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	chunks := 0
	err = s.gen.Generate(ctx, prompt, func(chunk string) error {
		if _, err := io.WriteString(w, chunk); err != nil {
			return err
		}
		chunks++
		// Flush errors only mean the writer buffers; the chunk still arrives.
		_ = rc.Flush()
		return nil
	})

	switch {
	case err != nil && ctx.Err() != nil:
		s.log.Debugw("client went away", "chunks", chunks)
	case err != nil:
		s.log.Errorw("generation failed", "model", prompt.Model, "chunks", chunks, "error", err)
		io.WriteString(w, InBandErrorPrefix+err.Error())
	case chunks == 0:
		s.log.Warnw("model returned no content", "model", prompt.Model)
		io.WriteString(w, NoContentText)
	}
}

// handleIngest handles POST /ingest.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	key, ok := s.admit(w, r)
	if !ok {
		return
	}

	if s.kb == nil || s.embedder == nil {
		s.writeDetail(w, http.StatusServiceUnavailable, DetailNoKnowledge)
		return
	}

	text := strings.TrimSpace(r.FormValue("text"))
	if text == "" {
		s.writeDetail(w, http.StatusBadRequest, DetailEmptyText)
		return
	}

	ctx := r.Context()
	emb, err := s.embedder.Embed(ctx, key, text)
	if err != nil {
		s.log.Errorw("embedding failed", "error", err)
		s.writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	id, err := s.kb.Add(ctx, text, emb)
	if err != nil {
		s.log.Errorw("failed to store document", "error", err)
		s.writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.log.Infow("knowledge added", "id", id, "chars", len(text))
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"message": KnowledgeAdded,
	})
}

// admit checks the API key, the rate limit and parses the form. It writes
// the error response itself and reports whether to continue.
func (s *Server) admit(w http.ResponseWriter, r *http.Request) (string, bool) {
	key := strings.TrimSpace(r.Header.Get(backend.HeaderAPIKey))
	if key == "" {
		s.writeDetail(w, http.StatusBadRequest, DetailMissingKey)
		return "", false
	}

	if !s.limiter.Allow(key) {
		w.Header().Set("Retry-After", strconv.Itoa(s.limiter.retryAfter()))
		s.writeDetail(w, http.StatusTooManyRequests, DetailRateLimited)
		return "", false
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxRequestBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeDetail(w, http.StatusRequestEntityTooLarge, DetailTooLarge)
			return "", false
		}
		s.log.Warnw("invalid form", "error", err)
		s.writeDetail(w, http.StatusBadRequest, DetailBadForm)
		return "", false
	}
	return key, true
}

// retrieve returns stored documents related to text, one per line. Any
// failure is logged and yields "".
func (s *Server) retrieve(ctx context.Context, key, text string) string {
	if s.kb == nil || s.embedder == nil || s.opts.KnowledgeResults <= 0 || strings.TrimSpace(text) == "" {
		return ""
	}

	emb, err := s.embedder.Embed(ctx, key, text)
	if err != nil {
		s.log.Warnw("retrieval embedding failed", "error", err)
		return ""
	}
	results, err := s.kb.Search(ctx, emb, s.opts.KnowledgeResults)
	if err != nil {
		s.log.Warnw("retrieval search failed", "error", err)
		return ""
	}
	if len(results) == 0 {
		return ""
	}

	docs := make([]string, len(results))
	for i, res := range results {
		docs[i] = res.Text
	}
	s.log.Debugw("knowledge context", "documents", len(docs))
	return strings.Join(docs, "\n")
}

// ============================================================================
// LIFECYCLE
// ============================================================================

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infow("relay listening", "addr", ln.Addr().String(), "engine", Engine)
		errCh <- s.server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.log.Infow("relay shutting down")
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

// ListenAndServe listens on the configured address and serves until ctx
// is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.opts.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// ============================================================================
// HELPERS
// ============================================================================

func relayModel(name string) string {
	if relayModels[name] {
		return name
	}
	return model.DefaultModel
}

// parseHistory decodes the history field. Invalid JSON yields no history.
func parseHistory(raw string) []model.Turn {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var turns []model.Turn
	if err := json.Unmarshal([]byte(raw), &turns); err != nil {
		return nil
	}
	return turns
}

// readImage returns the uploaded file when its content type names an
// image, nil otherwise.
func readImage(r *http.Request) (*Image, error) {
	f, hdr, err := r.FormFile(backend.FieldFile)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	ct := hdr.Header.Get("Content-Type")
	if !strings.Contains(ct, "image") {
		return nil, nil
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return &Image{MIMEType: ct, Data: data}, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Debugw("failed to write response", "error", err)
	}
}

// writeDetail writes {"detail": message}, the error shape clients parse.
func (s *Server) writeDetail(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"detail": message})
}
