// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/Homobonus-Projects/Gemini-Stock-Chatbot/internal/util"
)

// Theme modes accepted by NewTheme.
const (
	ModeAuto  = "auto"
	ModeDark  = "dark"
	ModeLight = "light"
)

// Theme holds the styled components for the chat screen.
type Theme struct {
	Mode         string
	IsDark       bool
	ColorProfile termenv.Profile

	Header         lipgloss.Style
	HeaderTitle    lipgloss.Style
	HeaderSubtitle lipgloss.Style

	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	UserText       lipgloss.Style
	ErrorText      lipgloss.Style
	Attachment     lipgloss.Style
	Timestamp      lipgloss.Style

	Notice      lipgloss.Style
	NoticeError lipgloss.Style
	Thinking    lipgloss.Style

	InputPrompt lipgloss.Style
	StatusBar   lipgloss.Style
	StatusKey   lipgloss.Style
	StatusValue lipgloss.Style
	Help        lipgloss.Style
}

// NewTheme builds a theme. "dark" and "light" force the background;
// anything else asks the terminal.
func NewTheme(mode string) *Theme {
	mode = strings.ToLower(strings.TrimSpace(mode))

	var isDark bool
	switch mode {
	case ModeDark:
		isDark = true
	case ModeLight:
		isDark = false
	default:
		mode = ModeAuto
		isDark = termenv.HasDarkBackground()
	}
	// AdaptiveColor resolves against lipgloss' notion of the background.
	lipgloss.SetHasDarkBackground(isDark)

	t := &Theme{
		Mode:         mode,
		IsDark:       isDark,
		ColorProfile: termenv.ColorProfile(),
	}
	t.initStyles()
	return t
}

func (t *Theme) initStyles() {
	t.Header = lipgloss.NewStyle().
		Background(SurfaceDim).
		BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).
		BorderForeground(Overlay).
		Padding(0, 1)

	t.HeaderTitle = lipgloss.NewStyle().
		Bold(true).
		Foreground(Purple)

	t.HeaderSubtitle = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Italic(true)

	t.UserLabel = lipgloss.NewStyle().Bold(true).Foreground(Cyan)
	t.AssistantLabel = lipgloss.NewStyle().Bold(true).Foreground(Purple)
	t.UserText = lipgloss.NewStyle().Foreground(UserText).PaddingLeft(2)
	t.ErrorText = lipgloss.NewStyle().Foreground(Rose).PaddingLeft(2)
	t.Attachment = lipgloss.NewStyle().Foreground(Amber).PaddingLeft(2)
	t.Timestamp = lipgloss.NewStyle().Foreground(TextMuted)

	t.Notice = lipgloss.NewStyle().Foreground(TextSecondary).Italic(true)
	t.NoticeError = lipgloss.NewStyle().Foreground(Rose).Bold(true)
	t.Thinking = lipgloss.NewStyle().Foreground(Purple).Italic(true).PaddingLeft(2)

	t.InputPrompt = lipgloss.NewStyle().Foreground(Cyan).Bold(true)
	t.StatusBar = lipgloss.NewStyle().Foreground(TextMuted).Padding(0, 1)
	t.StatusKey = lipgloss.NewStyle().Foreground(TextSecondary)
	t.StatusValue = lipgloss.NewStyle().Foreground(TextPrimary).Bold(true)
	t.Help = lipgloss.NewStyle().Foreground(TextSecondary).PaddingLeft(2)
}

// GlamourStyle names the glamour standard style matching the theme.
func (t *Theme) GlamourStyle() string {
	switch {
	case t.ColorProfile == termenv.Ascii:
		return "notty"
	case t.IsDark:
		return "dark"
	default:
		return "light"
	}
}

// Truncate shortens s to width terminal cells.
func Truncate(s string, width int) string {
	return util.TruncateWidth(s, width)
}
