// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// Turn is one entry of the conversation history sent with a request.
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// ProjectHistory converts messages to wire history, preserving order.
// Messages with empty text are skipped: attachment-only user messages and
// assistant placeholders contribute nothing. Attachments are never carried
// into history.
func ProjectHistory(msgs []Message) []Turn {
	turns := make([]Turn, 0, len(msgs))
	for _, msg := range msgs {
		if msg.Text == "" {
			continue
		}
		turns = append(turns, Turn{
			Role: msg.Role.WireRole(),
			Text: msg.Text,
		})
	}
	return turns
}
