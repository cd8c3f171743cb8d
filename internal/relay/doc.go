// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package relay serves the chat backend that stockchat clients talk to.
//
// # Endpoints
//
//   - GET  /        - status
//   - POST /chat    - multipart message, history, model and optional image;
//     the reply streams back as plain UTF-8 text
//   - POST /ingest  - adds a document to the knowledge store
//
// The API key travels per request in X-Gemini-Api-Key. Errors before the
// stream starts are JSON {"detail": ...}; errors after it starts are
// written into the text stream.
//
// When an MCP server is configured, its tools are offered to the model on
// every request and function calls are answered before the text reply.
package relay
