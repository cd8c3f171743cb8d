// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"
)

// =============================================================================
// HTML EXPORTER
// =============================================================================

// HTMLExporter exports conversations to a standalone HTML page.
type HTMLExporter struct {
	options *Options
}

// NewHTMLExporter creates a new HTML exporter.
func NewHTMLExporter(opts *Options) *HTMLExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &HTMLExporter{options: opts}
}

type htmlMessage struct {
	Role       string
	Label      string
	Time       string
	Attachment string
	Paragraphs []string
	Failed     bool
}

type htmlPage struct {
	Title    string
	Model    string
	Exported string
	Count    int
	Theme    string
	Metadata bool
	Messages []htmlMessage
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<meta name="generator" content="stockchat">
<title>{{.Title}}</title>
<style>
.dark-theme { --bg: #1a1b26; --panel: #24283b; --text: #c0caf5; --muted: #565f89; --user: #7aa2f7; --assistant: #bb9af7; --error: #f7768e; }
.light-theme { --bg: #ffffff; --panel: #f7f8fa; --text: #24292e; --muted: #6a737d; --user: #0366d6; --assistant: #6f42c1; --error: #d73a49; }
body { font-family: -apple-system, "Segoe UI", Roboto, sans-serif; line-height: 1.6; background: var(--bg); color: var(--text); margin: 0; padding: 20px; }
.container { max-width: 900px; margin: 0 auto; background: var(--panel); border-radius: 12px; padding: 24px 32px; }
.metadata { color: var(--muted); font-size: 14px; }
.message { border-top: 1px solid var(--muted); padding: 16px 0; }
.role-label { font-weight: 700; }
.user-message .role-label { color: var(--user); }
.assistant-message .role-label { color: var(--assistant); }
.failed .message-content { color: var(--error); }
.timestamp, .attachment { color: var(--muted); font-size: 13px; margin-left: 8px; }
.message-content p { margin: 8px 0; white-space: pre-wrap; }
</style>
</head>
<body class="{{.Theme}}-theme">
<div class="container">
<header>
<h1>{{.Title}}</h1>
{{- if .Metadata}}
<p class="metadata">Model: {{.Model}} | Messages: {{.Count}} | Exported: {{.Exported}}</p>
{{- end}}
</header>
<main class="conversation">
{{- range .Messages}}
<div class="message {{.Role}}-message{{if .Failed}} failed{{end}}">
<div class="message-header"><span class="role-label">{{.Label}}</span>
{{- if .Time}}<span class="timestamp">{{.Time}}</span>{{end}}
{{- if .Attachment}}<span class="attachment">{{.Attachment}}</span>{{end}}</div>
<div class="message-content">
{{- range .Paragraphs}}
<p>{{.}}</p>
{{- end}}
</div>
</div>
{{- end}}
</main>
</div>
</body>
</html>
`))

// Export converts a conversation to HTML. Message text is escaped, not
// rendered as markdown.
func (e *HTMLExporter) Export(conv *Conversation) ([]byte, error) {
	if err := conv.validate(); err != nil {
		return nil, err
	}

	theme := e.options.Theme
	if theme != "light" {
		theme = "dark"
	}
	page := htmlPage{
		Title:    conv.Title,
		Model:    conv.Model,
		Exported: conv.ExportedAt.Format(time.RFC3339),
		Count:    len(conv.Messages),
		Theme:    theme,
		Metadata: e.options.IncludeMetadata,
	}
	for _, msg := range conv.Messages {
		hm := htmlMessage{
			Role:       msg.Role.String(),
			Label:      roleLabel(msg.Role),
			Attachment: attachmentNote(msg.Attachment),
			Paragraphs: paragraphs(msg.Text),
			Failed:     msg.Failed,
		}
		if e.options.IncludeTimestamps && !msg.Timestamp.IsZero() {
			hm.Time = formatTimestamp(msg.Timestamp)
		}
		page.Messages = append(page.Messages, hm)
	}

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, page); err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}
	return buf.Bytes(), nil
}

// FileExtension returns the file extension for HTML.
func (e *HTMLExporter) FileExtension() string {
	return ".html"
}

// paragraphs splits text on blank lines.
func paragraphs(text string) []string {
	var out []string
	for _, p := range strings.Split(strings.TrimSpace(text), "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
