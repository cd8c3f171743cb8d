// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session drives request/response exchanges against the chat
// backend and reconciles streamed text into the transcript.
//
// # Lifecycle
//
// Every exchange moves through IDLE, SENDING, STREAMING and ends in
// COMPLETED or FAILED. The Manager admits one open exchange at a time; a
// submission while another exchange is SENDING or STREAMING fails with
// ErrBusy and leaves the transcript untouched.
//
// # Failures
//
// When an exchange fails before any text arrived, the assistant message is
// replaced with "Error: <reason>". When partial text had arrived it is kept
// and the failure is reported only through OnFailure observers and
// Exchange.Err.
//
// # Usage
//
//	mgr := session.NewManager(client, model.NewTranscript(), log)
//	ex, err := mgr.Begin(session.Submission{Text: "Hi"}, settings)
//	if err != nil {
//	    // ErrBusy or a configuration error
//	}
//	err = ex.Run(ctx)
package session
