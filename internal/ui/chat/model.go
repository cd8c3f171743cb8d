// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/Homobonus-Projects/Gemini-Stock-Chatbot/internal/attachment"
	"github.com/Homobonus-Projects/Gemini-Stock-Chatbot/internal/backend"
	"github.com/Homobonus-Projects/Gemini-Stock-Chatbot/internal/config"
	"github.com/Homobonus-Projects/Gemini-Stock-Chatbot/internal/locale"
	"github.com/Homobonus-Projects/Gemini-Stock-Chatbot/internal/session"
	"github.com/Homobonus-Projects/Gemini-Stock-Chatbot/internal/ui/styles"
)

// Options configures the chat model.
type Options struct {
	Manager  *session.Manager
	Registry *attachment.Registry
	Config   *config.Store

	// ConfigPath is watched for preference changes; empty disables it.
	ConfigPath string

	// RawMarkdown shows assistant text as is instead of rendering it.
	RawMarkdown bool

	Log *zap.SugaredLogger
}

// =============================================================================
// CHAT MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat screen. It reads the
// conversation only through Transcript.Snapshot.
type Model struct {
	ctx    context.Context
	cancel context.CancelFunc

	manager  *session.Manager
	registry *attachment.Registry
	pending  *attachment.Pending
	cfg      *config.Store
	cfgPath  string
	log      *zap.SugaredLogger
	events   *bridge

	theme  *styles.Theme
	cat    locale.Catalog
	render *renderer
	keys   KeyMap

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	width  int
	height int
	ready  bool

	notice      string
	noticeError bool
}

// New creates the chat model and subscribes it to the session.
func New(opts Options) *Model {
	log := opts.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	registry := opts.Registry
	if registry == nil {
		registry = attachment.NewRegistry(attachment.DefaultMaxBytes, log)
	}

	cfg := opts.Config.Get()
	theme := styles.NewTheme(cfg.UI.Theme)
	cat := locale.For(cfg.UI.Locale)

	input := textinput.New()
	input.Prompt = "> "
	input.Placeholder = cat.T(locale.InputPlaceholder)
	input.CharLimit = 8000
	input.PromptStyle = theme.InputPrompt
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = theme.Thinking

	ctx, cancel := context.WithCancel(context.Background())
	m := &Model{
		ctx:      ctx,
		cancel:   cancel,
		manager:  opts.Manager,
		registry: registry,
		pending:  &attachment.Pending{},
		cfg:      opts.Config,
		cfgPath:  opts.ConfigPath,
		log:      log,
		events:   newBridge(),
		theme:    theme,
		cat:      cat,
		render:   newRenderer(theme, cat, 80, opts.RawMarkdown, cfg.UI.WordWrap),
		keys:     DefaultKeyMap(),
		input:    input,
		spinner:  sp,
	}

	opts.Manager.Transcript().Subscribe(m.events.notifyChanged)
	opts.Manager.OnFailure(m.events.notifyFailure)
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		textinput.Blink,
		m.spinner.Tick,
		m.events.waitChanged(m.ctx),
		m.events.waitFailure(m.ctx),
	}
	if m.cfgPath != "" {
		cmds = append(cmds, m.watchConfig(), m.events.waitConfig(m.ctx))
	}
	return tea.Batch(cmds...)
}

// watchConfig runs the file watcher until the model shuts down.
func (m *Model) watchConfig() tea.Cmd {
	return func() tea.Msg {
		err := config.Watch(m.ctx, m.cfgPath, config.DefaultWatchDebounce,
			func(c *config.Config) { m.events.notifyConfig(ConfigReloadedMsg{Config: c}) },
			func(err error) { m.events.notifyConfig(ConfigErrorMsg{Err: err}) },
		)
		if err != nil {
			m.log.Warnw("config watch stopped", "path", m.cfgPath, "error", err)
		}
		return nil
	}
}

// =============================================================================
// UPDATE
// =============================================================================

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		if !m.ready {
			m.viewport = viewport.New(msg.Width, 1)
			m.ready = true
		}
		m.viewport.Width = msg.Width
		m.input.Width = msg.Width - 4
		m.render.resize(msg.Width)
		m.layout()
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case TranscriptChangedMsg:
		m.refresh()
		return m, m.events.waitChanged(m.ctx)

	case FailureMsg:
		m.showFailure(msg.Failure)
		return m, m.events.waitFailure(m.ctx)

	case ExchangeDoneMsg:
		m.log.Debugw("exchange returned", "exchange", msg.ExchangeID, "error", msg.Err)
		m.refresh()
		return m, nil

	case ConfigReloadedMsg:
		m.applyReload(msg.Config)
		return m, m.events.waitConfig(m.ctx)

	case ConfigErrorMsg:
		m.setNotice(msg.Err.Error(), true)
		return m, m.events.waitConfig(m.ctx)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.manager.Busy() {
			m.refresh()
		}
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.manager.Cancel() {
			return m, nil
		}
		m.shutdown()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Cancel):
		m.manager.Cancel()
		return m, nil

	case key.Matches(msg, m.keys.Submit):
		return m, m.submit()

	case key.Matches(msg, m.keys.PageUp):
		m.viewport.HalfViewUp()
		return m, nil

	case key.Matches(msg, m.keys.PageDown):
		m.viewport.HalfViewDown()
		return m, nil

	case key.Matches(msg, m.keys.Top):
		m.viewport.GotoTop()
		return m, nil

	case key.Matches(msg, m.keys.Bottom):
		m.viewport.GotoBottom()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit starts an exchange from the input line, or runs a slash command.
func (m *Model) submit() tea.Cmd {
	raw := m.input.Value()
	text := strings.TrimSpace(raw)

	if strings.HasPrefix(text, "/") {
		m.input.Reset()
		return m.runCommand(text)
	}

	if m.manager.Busy() {
		m.setNotice(m.cat.T(locale.Busy), false)
		return nil
	}

	cfg := m.cfg.Get()
	sub := session.Submission{Text: text}
	h := m.pending.Take()
	if h != nil {
		sub.Attachment = h
	}

	ex, err := m.manager.Begin(sub, session.Settings{Model: cfg.Model, Credential: cfg.APIKey})
	if err != nil {
		// The attachment stays with the user for the next try.
		if h != nil {
			m.pending.Set(h)
		}
		m.setNotice(m.submitError(err), true)
		return nil
	}

	m.input.Reset()
	m.setNotice("", false)
	m.viewport.GotoBottom()

	ctx := m.ctx
	return func() tea.Msg {
		return ExchangeDoneMsg{ExchangeID: ex.ID, Err: ex.Run(ctx)}
	}
}

func (m *Model) submitError(err error) string {
	switch {
	case errors.Is(err, backend.ErrNoCredential):
		return m.cat.T(locale.EnterAPIKey) + " (/key <api-key>)"
	case errors.Is(err, backend.ErrNoContent):
		return m.cat.T(locale.NoContent)
	case errors.Is(err, session.ErrBusy):
		return m.cat.T(locale.Busy)
	default:
		return err.Error()
	}
}

func (m *Model) showFailure(f session.Failure) {
	if errors.Is(f.Err, context.Canceled) {
		m.setNotice(m.cat.T(locale.Cancelled), false)
		return
	}
	m.setNotice(m.cat.T(locale.ResponseFailed)+": "+backend.Reason(f.Err), true)
}

// applyReload takes preferences from a reloaded file. An API key set in
// this session is kept when the file has none.
func (m *Model) applyReload(next *config.Config) {
	err := m.cfg.Update(func(c *config.Config) {
		c.Model = next.Model
		c.UI.Theme = next.UI.Theme
		c.UI.Locale = next.UI.Locale
		if next.APIKey != "" {
			c.APIKey = next.APIKey
		}
	})
	if err != nil {
		m.setNotice(err.Error(), true)
		return
	}
	cfg := m.cfg.Get()
	m.applyTheme(cfg.UI.Theme)
	m.applyLocale(cfg.UI.Locale)
	m.setNotice(m.cat.T(locale.ConfigReloaded), false)
}

func (m *Model) applyTheme(mode string) {
	if mode == m.theme.Mode && mode != styles.ModeAuto {
		return
	}
	m.theme = styles.NewTheme(mode)
	m.input.PromptStyle = m.theme.InputPrompt
	m.spinner.Style = m.theme.Thinking
	m.render.setTheme(m.theme)
	m.refresh()
}

func (m *Model) applyLocale(tag string) {
	cat := locale.For(tag)
	if cat.Lang() == m.cat.Lang() {
		return
	}
	m.cat = cat
	m.input.Placeholder = cat.T(locale.InputPlaceholder)
	m.render.setCatalog(cat)
	m.refresh()
}

// shutdown stops background work and releases the pending attachment.
func (m *Model) shutdown() {
	m.manager.Cancel()
	m.pending.Clear()
	m.cancel()
}

// =============================================================================
// LAYOUT
// =============================================================================

func (m *Model) setNotice(text string, isError bool) {
	m.notice = text
	m.noticeError = isError
	m.layout()
}

// layout gives the viewport whatever the header and footer leave.
func (m *Model) layout() {
	if !m.ready {
		return
	}
	h := m.height - lipgloss.Height(m.headerView()) - lipgloss.Height(m.footerView())
	if h < 1 {
		h = 1
	}
	m.viewport.Height = h
}

// refresh re-renders the transcript, following the bottom if the user was
// already there.
func (m *Model) refresh() {
	if !m.ready {
		return
	}
	follow := m.viewport.AtBottom()
	thinking := m.spinner.View() + " " + m.cat.T(locale.Thinking)
	m.viewport.SetContent(m.render.Render(m.manager.Transcript().Snapshot(), thinking))
	if follow {
		m.viewport.GotoBottom()
	}
}

// =============================================================================
// VIEW
// =============================================================================

// View implements tea.Model.
func (m *Model) View() string {
	if !m.ready {
		return "\n  " + m.cat.T(locale.Title)
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.headerView(),
		m.viewport.View(),
		m.footerView(),
	)
}

func (m *Model) headerView() string {
	cfg := m.cfg.Get()
	title := m.theme.HeaderTitle.Render(m.cat.T(locale.Title))
	sub := m.theme.HeaderSubtitle.Render("  " + cfg.Model)
	return m.theme.Header.Width(m.width).MaxWidth(m.width).Render(title + sub)
}

func (m *Model) footerView() string {
	var lines []string
	if h := m.pending.Peek(); h != nil {
		label := styles.Truncate(attachmentLabel(h.Ref()), m.width-4)
		lines = append(lines, m.theme.Attachment.Render(label))
	}
	if m.notice != "" {
		style := m.theme.Notice
		if m.noticeError {
			style = m.theme.NoticeError
		}
		lines = append(lines, style.Width(m.width).Render(m.notice))
	}
	lines = append(lines, m.input.View(), m.statusView())
	return strings.Join(lines, "\n")
}

func (m *Model) statusView() string {
	state := m.manager.State()
	parts := []string{
		m.theme.StatusKey.Render("state ") + m.theme.StatusValue.Render(strings.ToLower(state.String())),
		m.theme.StatusKey.Render("lang ") + m.theme.StatusValue.Render(m.cat.Lang()),
	}
	for _, b := range m.keys.ShortHelp() {
		parts = append(parts, m.theme.StatusKey.Render(fmt.Sprintf("%s %s", b.Help().Key, b.Help().Desc)))
	}
	return m.theme.StatusBar.MaxWidth(m.width).Render(strings.Join(parts, "  "))
}
