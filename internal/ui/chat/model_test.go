// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Homobonus-Projects/Gemini-Stock-Chatbot/internal/attachment"
	"github.com/Homobonus-Projects/Gemini-Stock-Chatbot/internal/backend"
	"github.com/Homobonus-Projects/Gemini-Stock-Chatbot/internal/config"
	"github.com/Homobonus-Projects/Gemini-Stock-Chatbot/internal/locale"
	"github.com/Homobonus-Projects/Gemini-Stock-Chatbot/internal/model"
	"github.com/Homobonus-Projects/Gemini-Stock-Chatbot/internal/session"
	"github.com/Homobonus-Projects/Gemini-Stock-Chatbot/internal/ui/styles"
)

const pngHeader = "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"

// scriptedTransport replies with body. When gate is set, Send waits for it
// to close or for ctx to end.
type scriptedTransport struct {
	body string
	gate chan struct{}
}

func (s *scriptedTransport) Send(ctx context.Context, req *backend.ChatRequest) (*backend.Stream, error) {
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return backend.NewStream(io.NopCloser(strings.NewReader(s.body))), nil
}

type harness struct {
	m        *Model
	mgr      *session.Manager
	registry *attachment.Registry
	store    *config.Store
}

func newHarness(t *testing.T, tr session.Transport, mutate func(*config.Config)) *harness {
	t.Helper()
	log := zaptest.NewLogger(t).Sugar()

	cfg := config.Default()
	cfg.UI.Theme = "dark"
	if mutate != nil {
		mutate(cfg)
	}
	store := config.NewStore(cfg)
	mgr := session.NewManager(tr, nil, log)
	registry := attachment.NewRegistry(attachment.DefaultMaxBytes, log)

	m := New(Options{
		Manager:     mgr,
		Registry:    registry,
		Config:      store,
		Log:         log,
		RawMarkdown: true,
	})
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	t.Cleanup(m.shutdown)

	return &harness{m: m, mgr: mgr, registry: registry, store: store}
}

func (h *harness) typeAndSubmit(text string) tea.Cmd {
	h.m.input.SetValue(text)
	_, cmd := h.m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return cmd
}

func withKey(c *config.Config) { c.APIKey = "test-key" }

func writePNG(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(pngHeader+"chart-bytes"), 0o600))
	return path
}

// =============================================================================
// SUBMISSION
// =============================================================================

func TestSubmit_StreamsIntoView(t *testing.T) {
	h := newHarness(t, &scriptedTransport{body: "Hello from Gemini!"}, withKey)

	cmd := h.typeAndSubmit("Hi")
	require.NotNil(t, cmd)
	assert.Empty(t, h.m.input.Value())

	done, ok := cmd().(ExchangeDoneMsg)
	require.True(t, ok)
	require.NoError(t, done.Err)

	snap := h.mgr.Transcript().Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "Hi", snap[0].Text)
	assert.Equal(t, "Hello from Gemini!", snap[1].Text)

	h.m.Update(TranscriptChangedMsg{})
	view := h.m.View()
	assert.Contains(t, view, "Hello from Gemini!")
	assert.Contains(t, view, "Gemini")
}

func TestSubmit_MissingKeyBlocks(t *testing.T) {
	h := newHarness(t, &scriptedTransport{body: "x"}, nil)

	cmd := h.typeAndSubmit("Hi")
	assert.Nil(t, cmd)
	assert.Zero(t, h.mgr.Transcript().Len())
	assert.True(t, h.m.noticeError)
	assert.Contains(t, h.m.notice, locale.For("en").T(locale.EnterAPIKey))
	assert.Equal(t, "Hi", h.m.input.Value(), "input is kept for the retry")

	h.typeAndSubmit("/key abc123")
	assert.Equal(t, "abc123", h.store.Get().APIKey)

	cmd = h.typeAndSubmit("Hi")
	require.NotNil(t, cmd)
	cmd()
	assert.Equal(t, 2, h.mgr.Transcript().Len())
}

func TestSubmit_EmptyInput(t *testing.T) {
	h := newHarness(t, &scriptedTransport{body: "x"}, withKey)

	assert.Nil(t, h.typeAndSubmit("   "))
	assert.Equal(t, locale.For("en").T(locale.NoContent), h.m.notice)
	assert.Zero(t, h.mgr.Transcript().Len())
}

func TestBusyAndCancel(t *testing.T) {
	tr := &scriptedTransport{body: "late", gate: make(chan struct{})}
	h := newHarness(t, tr, withKey)

	cmd := h.typeAndSubmit("first")
	require.NotNil(t, cmd)
	results := make(chan tea.Msg, 1)
	go func() { results <- cmd() }()

	assert.Nil(t, h.typeAndSubmit("second"))
	assert.Equal(t, locale.For("en").T(locale.Busy), h.m.notice)
	assert.Equal(t, 2, h.mgr.Transcript().Len())

	_, quit := h.m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.Nil(t, quit)

	var done ExchangeDoneMsg
	select {
	case msg := <-results:
		done = msg.(ExchangeDoneMsg)
	case <-time.After(5 * time.Second):
		t.Fatal("exchange did not stop after cancel")
	}
	assert.True(t, errors.Is(done.Err, context.Canceled))

	select {
	case f := <-h.m.events.failures:
		h.m.Update(FailureMsg{Failure: f})
	case <-time.After(time.Second):
		t.Fatal("no failure delivered")
	}
	assert.Equal(t, locale.For("en").T(locale.Cancelled), h.m.notice)
	assert.False(t, h.mgr.Busy())

	snap := h.mgr.Transcript().Snapshot()
	require.Len(t, snap, 2)
	assert.True(t, snap[1].Failed)
}

func TestFailureNotice(t *testing.T) {
	h := newHarness(t, &scriptedTransport{}, withKey)

	h.m.Update(FailureMsg{Failure: session.Failure{
		Err:     &backend.ClientError{Type: backend.ErrTypeTransport, Status: 500, Message: "Quota exceeded"},
		Partial: true,
	}})
	assert.True(t, h.m.noticeError)
	assert.Equal(t, "The response failed: Quota exceeded", h.m.notice)
}

func TestCtrlC(t *testing.T) {
	h := newHarness(t, &scriptedTransport{body: "x"}, withKey)

	_, cmd := h.m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

// =============================================================================
// ATTACHMENTS
// =============================================================================

func TestAttachmentLifecycle(t *testing.T) {
	h := newHarness(t, &scriptedTransport{body: "A rising wedge."}, withKey)
	path := writePNG(t, "chart.png")

	h.typeAndSubmit("/attach " + path)
	require.NotNil(t, h.m.pending.Peek())
	assert.Equal(t, 1, h.registry.Live())
	assert.Contains(t, h.m.View(), "[image] chart.png")

	cmd := h.typeAndSubmit("What pattern is this?")
	require.NotNil(t, cmd)
	assert.Nil(t, h.m.pending.Peek())
	cmd()

	assert.Zero(t, h.registry.Live())
	snap := h.mgr.Transcript().Snapshot()
	require.NotNil(t, snap[0].Attachment)
	assert.Equal(t, "chart.png", snap[0].Attachment.Name)
}

func TestAttachmentKeptOnRejectedSubmit(t *testing.T) {
	h := newHarness(t, &scriptedTransport{body: "x"}, nil)
	path := writePNG(t, "chart.png")

	h.typeAndSubmit("/attach " + path)
	handle := h.m.pending.Peek()
	require.NotNil(t, handle)

	assert.Nil(t, h.typeAndSubmit(""))
	assert.Same(t, handle, h.m.pending.Peek())
	assert.False(t, handle.Released())

	h.typeAndSubmit("/detach")
	assert.Nil(t, h.m.pending.Peek())
	assert.Zero(t, h.registry.Live())
}

func TestAttachRejectsNonImage(t *testing.T) {
	h := newHarness(t, &scriptedTransport{}, withKey)
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("AAPL up 2%"), 0o600))

	h.typeAndSubmit("/attach " + path)
	assert.Nil(t, h.m.pending.Peek())
	assert.True(t, h.m.noticeError)
	assert.Zero(t, h.registry.Live())
}

// =============================================================================
// COMMANDS AND PREFERENCES
// =============================================================================

func TestCommands(t *testing.T) {
	h := newHarness(t, &scriptedTransport{}, withKey)

	h.typeAndSubmit("/model gemini-2.5-pro")
	assert.Equal(t, "gemini-2.5-pro", h.store.Get().Model)

	h.typeAndSubmit("/model gpt-4")
	assert.True(t, h.m.noticeError)
	assert.Equal(t, "gemini-2.5-pro", h.store.Get().Model)

	h.typeAndSubmit("/lang pt-BR")
	assert.Equal(t, "pt", h.m.cat.Lang())
	assert.Equal(t, "pt", h.store.Get().UI.Locale)

	h.typeAndSubmit("/theme light")
	assert.Equal(t, styles.ModeLight, h.m.theme.Mode)

	h.typeAndSubmit("/bogus")
	assert.Equal(t, h.m.cat.T(locale.UnknownCommand), h.m.notice)

	h.typeAndSubmit("/help")
	assert.Contains(t, h.m.notice, "/attach")

	cmd := h.typeAndSubmit("/quit")
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestExportCommand(t *testing.T) {
	h := newHarness(t, &scriptedTransport{body: "Buy the dip."}, withKey)

	cmd := h.typeAndSubmit("Should I buy?")
	require.NotNil(t, cmd)
	cmd()

	path := filepath.Join(t.TempDir(), "session.md")
	h.typeAndSubmit("/export " + path)
	assert.False(t, h.m.noticeError, h.m.notice)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Should I buy?")
	assert.Contains(t, string(data), "Buy the dip.")

	h.typeAndSubmit("/export " + filepath.Join(t.TempDir(), "session.pdf"))
	assert.True(t, h.m.noticeError)
}

func TestConfigReloadKeepsSessionKey(t *testing.T) {
	h := newHarness(t, &scriptedTransport{}, withKey)

	next := config.Default()
	next.Model = "gemini-2.5-pro"
	next.UI.Locale = "de"
	next.UI.Theme = "light"

	h.m.Update(ConfigReloadedMsg{Config: next})

	cfg := h.store.Get()
	assert.Equal(t, "gemini-2.5-pro", cfg.Model)
	assert.Equal(t, "test-key", cfg.APIKey)
	assert.Equal(t, "de", h.m.cat.Lang())
	assert.Equal(t, locale.For("de").T(locale.ConfigReloaded), h.m.notice)
}

// =============================================================================
// RENDERING
// =============================================================================

func TestRenderer(t *testing.T) {
	th := styles.NewTheme("dark")
	r := newRenderer(th, locale.For("en"), 80, true, 0)

	welcome := r.Render(nil, "")
	assert.Contains(t, welcome, locale.For("en").T(locale.WelcomeMessage))

	msgs := []model.Message{
		{Role: model.RoleUser, Text: "Is NVDA overbought?"},
		{Role: model.RoleAssistant, Open: true},
	}
	out := r.Render(msgs, "* Thinking...")
	assert.Contains(t, out, "Is NVDA overbought?")
	assert.Contains(t, out, "Thinking...")

	msgs[1] = model.Message{Role: model.RoleAssistant, Text: "Error: stream interrupted", Failed: true}
	out = r.Render(msgs, "* Thinking...")
	assert.Contains(t, out, "Error: stream interrupted")
	assert.NotContains(t, out, "Thinking...")
	assert.Len(t, r.cache, 2)
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512 B", formatSize(512))
	assert.Equal(t, "1.5 KB", formatSize(1536))
	assert.Equal(t, "2.0 MB", formatSize(2<<20))
}

func TestBridgeNeverBlocks(t *testing.T) {
	b := newBridge()
	b.notifyChanged()
	b.notifyChanged()
	assert.Len(t, b.changed, 1)

	b.notifyConfig(ConfigErrorMsg{Err: errors.New("old")})
	b.notifyConfig(ConfigErrorMsg{Err: errors.New("new")})
	msg := b.waitConfig(context.Background())()
	assert.Equal(t, "new", msg.(ConfigErrorMsg).Err.Error())
}
