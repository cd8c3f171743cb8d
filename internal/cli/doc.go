// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the stockchat command line.
//
// Commands:
//
//	stockchat              full-screen chat (line REPL with --plain or without a TTY)
//	stockchat ask          one question, answer printed to stdout
//	stockchat repl         line-based chat with history
//	stockchat serve        HTTP relay in front of Gemini
//	stockchat ingest       add documents to a relay's knowledge store
//	stockchat config       show, path, set, keys
//	stockchat version      build information
//
// Global flags --config, --model, --backend and --log-level override the
// config file and environment for one run.
package cli
