// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"time"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Gemini"
	default:
		return string(r)
	}
}

// WireRole returns the role name the chat backend expects in history.
func (r Role) WireRole() string {
	if r == RoleAssistant {
		return "model"
	}
	return "user"
}

// =============================================================================
// ATTACHMENT REFERENCE
// =============================================================================

// AttachmentRef describes an image sent with a user message.
// The payload itself is not kept in the transcript.
type AttachmentRef struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single transcript entry.
type Message struct {
	Role       Role           `json:"role"`
	Text       string         `json:"text"`
	Attachment *AttachmentRef `json:"attachment,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`

	// Open is true while the owning exchange is still streaming into it.
	Open bool `json:"-"`

	// Failed marks an assistant message whose exchange ended in an error.
	Failed bool `json:"failed,omitempty"`
}

// NewUserMessage creates a user message with optional attachment.
func NewUserMessage(text string, att *AttachmentRef) Message {
	return Message{
		Role:       RoleUser,
		Text:       text,
		Attachment: att,
		Timestamp:  time.Now(),
	}
}

// newPlaceholder creates the empty assistant message paired with a submission.
func newPlaceholder() Message {
	return Message{
		Role:      RoleAssistant,
		Timestamp: time.Now(),
		Open:      true,
	}
}

// IsEmpty returns true if the message has no text.
func (m Message) IsEmpty() bool {
	return m.Text == ""
}

// HasAttachment reports whether the message carries an image reference.
func (m Message) HasAttachment() bool {
	return m.Attachment != nil
}

// clone returns a deep copy safe to hand to readers.
func (m Message) clone() Message {
	if m.Attachment != nil {
		att := *m.Attachment
		m.Attachment = &att
	}
	return m
}

// Preview returns a truncated preview of the message text.
// Uses rune-based truncation to handle Unicode correctly.
func (m Message) Preview(maxLen int) string {
	runes := []rune(m.Text)
	if len(runes) <= maxLen || maxLen < 4 {
		return m.Text
	}
	return string(runes[:maxLen-3]) + "..."
}
