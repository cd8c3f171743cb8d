// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes a chat transcript to a file.
//
// # Supported Formats
//
//   - Markdown (.md): YAML front matter and one section per message
//   - JSON (.json): the transcript messages with metadata
//   - HTML (.html): a standalone page with embedded styles
//
// The format is chosen from the file extension:
//
//	conv := export.FromTranscript(manager.Transcript().Snapshot(), cfg.Model)
//	err := export.WriteFile(conv, "session.md", nil)
package export
