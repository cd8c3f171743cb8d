// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the lipgloss theme for the chat TUI.
//
// Colors are lipgloss.AdaptiveColor values. NewTheme("dark") or
// NewTheme("light") pins the background; "auto" asks the terminal through
// termenv. GlamourStyle picks the markdown style that matches.
package styles
