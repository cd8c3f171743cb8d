// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat provides the full-screen chat UI.

The Model never touches messages directly. It subscribes to the session
transcript and re-renders from Transcript.Snapshot whenever a
TranscriptChangedMsg arrives, so every streamed fragment shows up as it is
appended. Core callbacks run on exchange goroutines; they only signal
buffered channels (see bridge) and never call into Bubble Tea.

# Rendering

Assistant text goes through glamour with the theme's standard style. User
text is plain. Messages sealed after a failure use the error style. Sealed
messages are cached per index.

# Commands

	/attach <path>   attach an image to the next message
	/detach          drop the pending attachment
	/model [id]      show or select the model
	/key <api-key>   set the API key for this session
	/theme <mode>    dark, light or auto
	/lang <code>     en, pl, pt, cs, es, de
	/help, /quit

Esc or Ctrl+C cancels a streaming answer. Ctrl+C quits when idle.
*/
package chat
