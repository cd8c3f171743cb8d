// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/Homobonus-Projects/Gemini-Stock-Chatbot/internal/locale"
	"github.com/Homobonus-Projects/Gemini-Stock-Chatbot/internal/model"
	"github.com/Homobonus-Projects/Gemini-Stock-Chatbot/internal/ui/styles"
)

// renderer turns transcript snapshots into viewport content. Sealed
// messages are cached by index since their text no longer changes.
type renderer struct {
	theme *styles.Theme
	cat   locale.Catalog
	width int
	plain bool

	// maxWrap caps the markdown wrap column; 0 means the window width.
	maxWrap int

	md    *glamour.TermRenderer
	cache map[int]cachedBlock
}

type cachedBlock struct {
	text string
	out  string
}

func newRenderer(theme *styles.Theme, cat locale.Catalog, width int, plain bool, maxWrap int) *renderer {
	r := &renderer{theme: theme, cat: cat, plain: plain, maxWrap: maxWrap}
	r.resize(width)
	return r
}

// resize rebuilds the markdown renderer and drops the cache.
func (r *renderer) resize(width int) {
	if width < 20 {
		width = 20
	}
	r.width = width
	r.cache = make(map[int]cachedBlock)
	r.md = nil

	if r.plain {
		return
	}
	wrap := width - 4
	if r.maxWrap > 0 && wrap > r.maxWrap {
		wrap = r.maxWrap
	}
	md, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(r.theme.GlamourStyle()),
		glamour.WithWordWrap(wrap),
	)
	if err == nil {
		r.md = md
	}
}

func (r *renderer) setTheme(theme *styles.Theme) {
	r.theme = theme
	r.resize(r.width)
}

func (r *renderer) setCatalog(cat locale.Catalog) {
	r.cat = cat
	r.cache = make(map[int]cachedBlock)
}

// Render draws the whole transcript. thinking is drawn inside an open
// assistant message that has no text yet.
func (r *renderer) Render(msgs []model.Message, thinking string) string {
	if len(msgs) == 0 {
		return r.theme.Notice.Render(r.cat.T(locale.WelcomeMessage)) + "\n" +
			r.theme.Notice.Render(r.cat.T(locale.WelcomeInstruction))
	}

	blocks := make([]string, 0, len(msgs))
	for i, msg := range msgs {
		if !msg.Open {
			if c, ok := r.cache[i]; ok && c.text == msg.Text {
				blocks = append(blocks, c.out)
				continue
			}
		}
		out := r.renderMessage(msg, thinking)
		if !msg.Open {
			r.cache[i] = cachedBlock{text: msg.Text, out: out}
		}
		blocks = append(blocks, out)
	}
	return strings.Join(blocks, "\n\n")
}

func (r *renderer) renderMessage(msg model.Message, thinking string) string {
	th := r.theme

	var b strings.Builder
	if msg.Role == model.RoleUser {
		b.WriteString(th.UserLabel.Render(r.cat.T(locale.You)))
	} else {
		b.WriteString(th.AssistantLabel.Render(r.cat.T(locale.Assistant)))
	}
	if !msg.Timestamp.IsZero() {
		b.WriteString(th.Timestamp.Render(" · " + msg.Timestamp.Format("15:04")))
	}
	b.WriteString("\n")

	body := r.width - 2
	switch {
	case msg.Role == model.RoleUser:
		if msg.Text != "" {
			b.WriteString(th.UserText.Width(body).Render(msg.Text))
		}
		if msg.Attachment != nil {
			if msg.Text != "" {
				b.WriteString("\n")
			}
			b.WriteString(th.Attachment.Render(attachmentLabel(msg.Attachment)))
		}
	case msg.Open && msg.Text == "":
		b.WriteString(th.Thinking.Render(thinking))
	case msg.Failed:
		b.WriteString(th.ErrorText.Width(body).Render(msg.Text))
	default:
		b.WriteString(r.markdown(msg.Text))
	}
	return b.String()
}

func (r *renderer) markdown(text string) string {
	if r.md != nil {
		if out, err := r.md.Render(text); err == nil {
			return strings.Trim(out, "\n")
		}
	}
	return lipgloss.NewStyle().PaddingLeft(2).Width(r.width - 2).Render(text)
}

func attachmentLabel(ref *model.AttachmentRef) string {
	return fmt.Sprintf("[image] %s (%s)", ref.Name, formatSize(ref.Size))
}

func formatSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
