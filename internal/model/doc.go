// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// # Key Types
//
//   - Transcript: ordered, append-only message list with a single open
//     assistant tail that receives streamed fragments
//   - Message: one transcript entry (role, text, optional attachment ref)
//   - Turn: a {role, text} pair of request history
//   - ModelInfo: an entry of the fixed model allow-list
//
// # Usage
//
//	tr := model.NewTranscript()
//	history := model.ProjectHistory(tr.Snapshot())
//	tr.AppendExchangeStart(model.NewUserMessage("Hi", nil))
//	tr.AppendToLatestAssistant("Hel")
//	tr.AppendToLatestAssistant("lo!")
//	tr.Seal(false)
package model
