// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/Homobonus-Projects/Gemini-Stock-Chatbot/internal/model"
	"github.com/Homobonus-Projects/Gemini-Stock-Chatbot/internal/util"
)

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Exporter converts a conversation to one file format.
type Exporter interface {
	Export(conv *Conversation) ([]byte, error)

	// FileExtension returns the extension including the dot.
	FileExtension() string
}

// ErrEmpty is returned when there is nothing to export.
var ErrEmpty = errors.New("conversation has no messages")

// =============================================================================
// CONVERSATION
// =============================================================================

// titleLength bounds the title derived from the first question.
const titleLength = 60

// Conversation is a transcript snapshot with export metadata.
type Conversation struct {
	Title      string          `json:"title"`
	Model      string          `json:"model"`
	ExportedAt time.Time       `json:"exported_at"`
	Messages   []model.Message `json:"messages"`
}

// FromTranscript builds a Conversation from a transcript snapshot. The
// title is the first user question.
func FromTranscript(msgs []model.Message, modelID string) *Conversation {
	title := "Conversation"
	for _, m := range msgs {
		if m.Role == model.RoleUser && strings.TrimSpace(m.Text) != "" {
			title = util.FirstLine(m.Preview(titleLength))
			break
		}
	}
	return &Conversation{
		Title:      title,
		Model:      modelID,
		ExportedAt: time.Now(),
		Messages:   msgs,
	}
}

func (c *Conversation) validate() error {
	if c == nil || len(c.Messages) == 0 {
		return ErrEmpty
	}
	return nil
}

// =============================================================================
// OPTIONS
// =============================================================================

// Options configures export behavior.
type Options struct {
	// IncludeMetadata adds the front matter or header block.
	IncludeMetadata bool

	// IncludeTimestamps adds per-message times.
	IncludeTimestamps bool

	// Theme for HTML export ("light" or "dark").
	Theme string
}

// DefaultOptions returns default export options.
func DefaultOptions() *Options {
	return &Options{
		IncludeMetadata:   true,
		IncludeTimestamps: true,
		Theme:             "dark",
	}
}

// =============================================================================
// EXPORT FUNCTIONS
// =============================================================================

// ForPath returns the exporter for path's extension.
func ForPath(path string, opts *Options) (Exporter, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return NewMarkdownExporter(opts), nil
	case ".json":
		return NewJSONExporter(), nil
	case ".html", ".htm":
		return NewHTMLExporter(opts), nil
	default:
		return nil, fmt.Errorf("unsupported export format %q (use .md, .json or .html)", filepath.Ext(path))
	}
}

// WriteFile exports conv to path in the format given by its extension.
// A nil opts uses DefaultOptions.
func WriteFile(conv *Conversation, path string, opts *Options) error {
	exporter, err := ForPath(path, opts)
	if err != nil {
		return err
	}
	content, err := exporter.Export(conv)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	if err := util.AtomicWriteFile(path, content, 0644); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func roleLabel(r model.Role) string {
	return r.DisplayName()
}

func formatTimestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

func attachmentNote(ref *model.AttachmentRef) string {
	if ref == nil {
		return ""
	}
	return fmt.Sprintf("[image] %s (%s, %d bytes)", ref.Name, ref.ContentType, ref.Size)
}
