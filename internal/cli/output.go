// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"

	"github.com/Homobonus-Projects/Gemini-Stock-Chatbot/internal/backend"
	"github.com/Homobonus-Projects/Gemini-Stock-Chatbot/internal/locale"
	"github.com/Homobonus-Projects/Gemini-Stock-Chatbot/internal/model"
)

// streamPrinter writes the growing assistant reply to out as fragments
// arrive. It is registered as a transcript observer.
type streamPrinter struct {
	mu         sync.Mutex
	out        io.Writer
	transcript *model.Transcript
	printed    string
}

func newStreamPrinter(out io.Writer, t *model.Transcript) *streamPrinter {
	p := &streamPrinter{out: out, transcript: t}
	t.Subscribe(p.update)
	return p
}

// reset starts a new reply.
func (p *streamPrinter) reset() {
	p.mu.Lock()
	p.printed = ""
	p.mu.Unlock()
}

// update prints whatever the tail assistant message gained since the last
// call. A replaced text is printed on its own line.
func (p *streamPrinter) update() {
	text, ok := p.transcript.LatestAssistantText()
	if !ok {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case text == p.printed:
		return
	case strings.HasPrefix(text, p.printed):
		io.WriteString(p.out, text[len(p.printed):])
	default:
		io.WriteString(p.out, "\n"+text)
	}
	p.printed = text
}

// finish terminates the reply line if anything was printed.
func (p *streamPrinter) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.printed != "" && !strings.HasSuffix(p.printed, "\n") {
		io.WriteString(p.out, "\n")
	}
}

// failureText formats an exchange error for the terminal.
func failureText(cat locale.Catalog, err error) string {
	if errors.Is(err, context.Canceled) {
		return cat.T(locale.Cancelled)
	}
	return fmt.Sprintf("%s: %s", cat.T(locale.ResponseFailed), backend.Reason(err))
}

// renderMarkdown renders text for a terminal of the given width. On any
// renderer error the text is returned unchanged.
func renderMarkdown(text string, width int) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return text
	}
	out, err := r.Render(text)
	if err != nil {
		return text
	}
	return out
}
