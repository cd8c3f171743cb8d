// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Homobonus-Projects/Gemini-Stock-Chatbot/internal/backend"
	"github.com/Homobonus-Projects/Gemini-Stock-Chatbot/internal/knowledge"
	"github.com/Homobonus-Projects/Gemini-Stock-Chatbot/internal/model"
)

// =============================================================================
// FAKES
// =============================================================================

type fakeGenerator struct {
	mu      sync.Mutex
	prompts []Prompt
	chunks  []string
	err     error
}

func (g *fakeGenerator) Generate(ctx context.Context, p Prompt, emit func(string) error) error {
	g.mu.Lock()
	g.prompts = append(g.prompts, p)
	chunks, err := g.chunks, g.err
	g.mu.Unlock()

	for _, c := range chunks {
		if err := emit(c); err != nil {
			return err
		}
	}
	return err
}

func (g *fakeGenerator) last(t *testing.T) Prompt {
	t.Helper()
	g.mu.Lock()
	defer g.mu.Unlock()
	require.NotEmpty(t, g.prompts)
	return g.prompts[len(g.prompts)-1]
}

func (g *fakeGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

// keywordEmbedder maps text onto three axes: nvidia, inflation, other.
type keywordEmbedder struct {
	err error
}

func (e keywordEmbedder) Embed(_ context.Context, _ string, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	t := strings.ToLower(text)
	v := []float32{0.05, 0.05, 0.05}
	if strings.Contains(t, "nvidia") {
		v[0] = 1
	}
	if strings.Contains(t, "inflation") {
		v[1] = 1
	}
	return v, nil
}

// =============================================================================
// HELPERS
// =============================================================================

type upload struct {
	name        string
	contentType string
	data        []byte
}

func newTestServer(t *testing.T, opts Options, gen Generator) (*Server, *httptest.Server) {
	t.Helper()
	srv := New(opts, gen, zaptest.NewLogger(t).Sugar())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func postMultipart(t *testing.T, target, key string, fields map[string]string, file *upload) *http.Response {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if file != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="file"; filename="`+file.name+`"`)
		h.Set("Content-Type", file.contentType)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(file.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, target, &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if key != "" {
		req.Header.Set(backend.HeaderAPIKey, key)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}

func detailOf(t *testing.T, resp *http.Response) string {
	t.Helper()
	var payload map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return payload["detail"]
}

// =============================================================================
// TESTS
// =============================================================================

func TestRoot(t *testing.T) {
	_, ts := newTestServer(t, Options{}, &fakeGenerator{})

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var payload map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Equal(t, "running", payload["status"])
	assert.Equal(t, Engine, payload["engine"])

	resp2, err := http.Get(ts.URL + "/unknown")
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
}

func TestChat_StreamsChunks(t *testing.T) {
	gen := &fakeGenerator{chunks: []string{"Hel", "lo", ", zażółć!"}}
	_, ts := newTestServer(t, Options{SystemInstruction: "be brief"}, gen)

	history := `[{"role":"user","text":"Hi"},{"role":"model","text":"Hello!"}]`
	resp := postMultipart(t, ts.URL+"/chat", "key-1", map[string]string{
		"message":    "How is AAPL?",
		"model_name": "gemini-2.5-pro",
		"history":    history,
	}, nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/plain; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Equal(t, "Hello, zażółć!", readBody(t, resp))

	p := gen.last(t)
	assert.Equal(t, "key-1", p.APIKey)
	assert.Equal(t, "gemini-2.5-pro", p.Model)
	assert.Equal(t, "be brief", p.SystemInstruction)
	assert.Equal(t, "How is AAPL?", p.Text)
	assert.Equal(t, []model.Turn{{Role: "user", Text: "Hi"}, {Role: "model", Text: "Hello!"}}, p.History)
	assert.Nil(t, p.Image)
}

func TestChat_MissingKey(t *testing.T) {
	gen := &fakeGenerator{chunks: []string{"x"}}
	_, ts := newTestServer(t, Options{}, gen)

	resp := postMultipart(t, ts.URL+"/chat", "", map[string]string{"message": "hi"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, DetailMissingKey, detailOf(t, resp))
	assert.Zero(t, gen.calls())
}

func TestChat_ModelFallback(t *testing.T) {
	for _, name := range []string{"", "gemini-pro-vision", "gpt-4"} {
		gen := &fakeGenerator{chunks: []string{"ok"}}
		_, ts := newTestServer(t, Options{}, gen)

		resp := postMultipart(t, ts.URL+"/chat", "k", map[string]string{
			"message":    "hi",
			"model_name": name,
		}, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, model.DefaultModel, gen.last(t).Model, "model %q", name)
	}
}

func TestChat_InvalidHistoryIgnored(t *testing.T) {
	gen := &fakeGenerator{chunks: []string{"ok"}}
	_, ts := newTestServer(t, Options{}, gen)

	resp := postMultipart(t, ts.URL+"/chat", "k", map[string]string{
		"message": "hi",
		"history": "{not json",
	}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, gen.last(t).History)
}

func TestChat_ImageFiltering(t *testing.T) {
	gen := &fakeGenerator{chunks: []string{"ok"}}
	_, ts := newTestServer(t, Options{}, gen)

	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	resp := postMultipart(t, ts.URL+"/chat", "k", map[string]string{"message": "chart?"},
		&upload{name: "chart.png", contentType: "image/png", data: png})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	img := gen.last(t).Image
	require.NotNil(t, img)
	assert.Equal(t, "image/png", img.MIMEType)
	assert.Equal(t, png, img.Data)

	resp = postMultipart(t, ts.URL+"/chat", "k", map[string]string{"message": "notes?"},
		&upload{name: "notes.txt", contentType: "text/plain", data: []byte("hello")})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Nil(t, gen.last(t).Image)
}

func TestChat_EmptyMessage(t *testing.T) {
	gen := &fakeGenerator{}
	_, ts := newTestServer(t, Options{}, gen)

	resp := postMultipart(t, ts.URL+"/chat", "k", map[string]string{"message": "  "}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, DetailEmptyMessage, detailOf(t, resp))
	assert.Zero(t, gen.calls())
}

func TestChat_ErrorAfterStreamIsInBand(t *testing.T) {
	gen := &fakeGenerator{chunks: []string{"Partial "}, err: errors.New("quota exceeded")}
	_, ts := newTestServer(t, Options{}, gen)

	resp := postMultipart(t, ts.URL+"/chat", "k", map[string]string{"message": "hi"}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Partial "+InBandErrorPrefix+"quota exceeded", readBody(t, resp))
}

func TestChat_NoContent(t *testing.T) {
	_, ts := newTestServer(t, Options{}, &fakeGenerator{})

	resp := postMultipart(t, ts.URL+"/chat", "k", map[string]string{"message": "hi"}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, NoContentText, readBody(t, resp))
}

func TestChat_RateLimitPerKey(t *testing.T) {
	gen := &fakeGenerator{chunks: []string{"ok"}}
	_, ts := newTestServer(t, Options{RequestsPerMinute: 1, Burst: 1}, gen)

	resp := postMultipart(t, ts.URL+"/chat", "alice", map[string]string{"message": "hi"}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = postMultipart(t, ts.URL+"/chat", "alice", map[string]string{"message": "again"}, nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "60", resp.Header.Get("Retry-After"))
	assert.Equal(t, DetailRateLimited, detailOf(t, resp))

	resp = postMultipart(t, ts.URL+"/chat", "bob", map[string]string{"message": "hi"}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, gen.calls())
}

func TestCORSPreflight(t *testing.T) {
	_, ts := newTestServer(t, Options{}, &fakeGenerator{})

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/chat", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), backend.HeaderAPIKey)
}

func TestIngestAndRetrieve(t *testing.T) {
	kb, err := knowledge.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { kb.Close() })

	gen := &fakeGenerator{chunks: []string{"ok"}}
	srv, ts := newTestServer(t, Options{SystemInstruction: "base", KnowledgeResults: 1}, gen)
	srv.WithKnowledge(kb, keywordEmbedder{})

	// Form-encoded, as simple feeders send it.
	for _, fact := range []string{
		"NVIDIA announced a 10-for-1 stock split.",
		"Euro area inflation fell to 2.4% in April.",
	} {
		req, err := http.NewRequest(http.MethodPost, ts.URL+"/ingest",
			strings.NewReader(url.Values{"text": {fact}}.Encode()))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set(backend.HeaderAPIKey, "k")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)

		var payload map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "ok", payload["status"])
		assert.Equal(t, KnowledgeAdded, payload["message"])
	}

	n, err := kb.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	resp := postMultipart(t, ts.URL+"/chat", "k", map[string]string{"message": "Should I buy Nvidia?"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	si := gen.last(t).SystemInstruction
	assert.True(t, strings.HasPrefix(si, "base\n\n"))
	assert.Contains(t, si, "10-for-1 stock split")
	assert.NotContains(t, si, "inflation")
}

func TestIngest_Errors(t *testing.T) {
	_, ts := newTestServer(t, Options{}, &fakeGenerator{})
	resp := postMultipart(t, ts.URL+"/ingest", "k", map[string]string{"text": "fact"}, nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, DetailNoKnowledge, detailOf(t, resp))

	kb, err := knowledge.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { kb.Close() })

	srv, ts2 := newTestServer(t, Options{}, &fakeGenerator{})
	srv.WithKnowledge(kb, keywordEmbedder{err: errors.New("invalid api key")})

	resp = postMultipart(t, ts2.URL+"/ingest", "", map[string]string{"text": "fact"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postMultipart(t, ts2.URL+"/ingest", "k", map[string]string{"text": " "}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, DetailEmptyText, detailOf(t, resp))

	resp = postMultipart(t, ts2.URL+"/ingest", "k", map[string]string{"text": "fact"}, nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "invalid api key", detailOf(t, resp))
}

func TestRetrievalFailureIsIgnored(t *testing.T) {
	kb, err := knowledge.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { kb.Close() })

	gen := &fakeGenerator{chunks: []string{"ok"}}
	srv, ts := newTestServer(t, Options{SystemInstruction: "base", KnowledgeResults: 3}, gen)
	srv.WithKnowledge(kb, keywordEmbedder{err: errors.New("embedding down")})

	resp := postMultipart(t, ts.URL+"/chat", "k", map[string]string{"message": "hi"}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", readBody(t, resp))
	assert.Equal(t, "base", gen.last(t).SystemInstruction)
}

// The relay speaks the same wire contract the backend client expects.
func TestClientRoundTrip(t *testing.T) {
	gen := &fakeGenerator{chunks: []string{"Hel", "lo!"}}
	_, ts := newTestServer(t, Options{}, gen)

	client := backend.NewClient(&backend.ClientConfig{BaseURL: ts.URL, ReadBuffer: 2}, zaptest.NewLogger(t).Sugar())

	req, err := backend.Assemble(backend.RequestInput{
		Text:       "Hi",
		Model:      "gemini-2.5-flash",
		History:    []model.Turn{{Role: "user", Text: "earlier"}, {Role: "model", Text: "reply"}},
		Credential: "secret",
	})
	require.NoError(t, err)

	stream, err := client.Send(context.Background(), req)
	require.NoError(t, err)
	defer stream.Close()

	var got strings.Builder
	for {
		frag, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got.WriteString(frag)
	}
	assert.Equal(t, "Hello!", got.String())

	p := gen.last(t)
	assert.Equal(t, "secret", p.APIKey)
	assert.Equal(t, []model.Turn{{Role: "user", Text: "earlier"}, {Role: "model", Text: "reply"}}, p.History)

	// Errors before the stream surface the relay's detail through the client.
	_, limited := newTestServer(t, Options{RequestsPerMinute: 1, Burst: 1}, gen)
	lc := backend.NewClient(&backend.ClientConfig{BaseURL: limited.URL}, nil)

	first, err := lc.Send(context.Background(), req)
	require.NoError(t, err)
	first.Close()

	_, err = lc.Send(context.Background(), req)
	require.Error(t, err)
	assert.True(t, backend.IsTransport(err))
	assert.Equal(t, DetailRateLimited, backend.Reason(err))
}

func TestKeyLimiter(t *testing.T) {
	var unlimited *keyLimiter
	assert.True(t, unlimited.Allow("x"))
	assert.Nil(t, newKeyLimiter(0, 5))

	l := newKeyLimiter(60, 2)
	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"))
	assert.Equal(t, 1, l.retryAfter())
}
