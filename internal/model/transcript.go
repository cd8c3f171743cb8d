// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"sync"
)

// =============================================================================
// TRANSCRIPT
// =============================================================================

// Transcript is the ordered, append-only list of messages in a session.
//
// At most one message is open for streaming at a time: the tail assistant
// message of the running exchange. Every mutation reads the current tail
// under the lock, so concurrent fragment deliveries compose by append and
// never overwrite each other.
//
// The Transcript is safe for concurrent use.
type Transcript struct {
	mu        sync.RWMutex
	messages  []Message
	tail      strings.Builder // text of the open tail message
	version   uint64
	observers []func()
}

// NewTranscript creates an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{}
}

// =============================================================================
// MUTATIONS
// =============================================================================

// AppendExchangeStart appends the user message and an empty assistant
// placeholder in one step and returns the placeholder's index.
// Observers never see the user message without its placeholder.
func (t *Transcript) AppendExchangeStart(user Message) int {
	t.mu.Lock()
	t.closeTailLocked()
	user.Role = RoleUser
	user.Open = false
	t.messages = append(t.messages, user.clone(), newPlaceholder())
	t.tail.Reset()
	idx := len(t.messages) - 1
	t.version++
	t.mu.Unlock()

	t.notify()
	return idx
}

// AppendToLatestAssistant appends fragment to the tail message.
// It is a no-op if the tail is not an open assistant message.
func (t *Transcript) AppendToLatestAssistant(fragment string) {
	if fragment == "" {
		return
	}

	t.mu.Lock()
	last := t.tailLocked()
	if last == nil || last.Role != RoleAssistant || !last.Open {
		t.mu.Unlock()
		return
	}
	t.tail.WriteString(fragment)
	last.Text = t.tail.String()
	t.version++
	t.mu.Unlock()

	t.notify()
}

// ReplaceLatestAssistantText overwrites the text of the tail assistant
// message. Used to substitute an error indicator for an empty response.
func (t *Transcript) ReplaceLatestAssistantText(text string) {
	t.mu.Lock()
	last := t.tailLocked()
	if last == nil || last.Role != RoleAssistant {
		t.mu.Unlock()
		return
	}
	last.Text = text
	t.tail.Reset()
	t.tail.WriteString(text)
	t.version++
	t.mu.Unlock()

	t.notify()
}

// Seal closes the tail assistant message. After Seal the message is
// immutable. failed marks the message as ending in an error.
func (t *Transcript) Seal(failed bool) {
	t.mu.Lock()
	last := t.tailLocked()
	if last == nil || last.Role != RoleAssistant || !last.Open {
		t.mu.Unlock()
		return
	}
	last.Failed = failed
	t.closeTailLocked()
	t.version++
	t.mu.Unlock()

	t.notify()
}

// closeTailLocked marks any open tail as closed. Caller holds mu.
func (t *Transcript) closeTailLocked() {
	if last := t.tailLocked(); last != nil && last.Open {
		last.Open = false
	}
	t.tail.Reset()
}

// tailLocked returns a pointer to the last message. Caller holds mu.
func (t *Transcript) tailLocked() *Message {
	if len(t.messages) == 0 {
		return nil
	}
	return &t.messages[len(t.messages)-1]
}

// =============================================================================
// READS
// =============================================================================

// Snapshot returns a copy of the ordered message sequence.
// Mutating the result does not affect the transcript.
func (t *Transcript) Snapshot() []Message {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Message, len(t.messages))
	for i, m := range t.messages {
		out[i] = m.clone()
	}
	return out
}

// Len returns the number of messages.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

// Version returns a counter incremented on every mutation.
func (t *Transcript) Version() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.version
}

// LatestAssistantText returns the text of the tail message if it is an
// assistant message.
func (t *Transcript) LatestAssistantText() (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	last := t.tailLocked()
	if last == nil || last.Role != RoleAssistant {
		return "", false
	}
	return last.Text, true
}

// =============================================================================
// OBSERVERS
// =============================================================================

// Subscribe registers fn to be called after every mutation.
// fn runs on the mutating goroutine and must not block.
func (t *Transcript) Subscribe(fn func()) {
	if fn == nil {
		return
	}
	t.mu.Lock()
	t.observers = append(t.observers, fn)
	t.mu.Unlock()
}

func (t *Transcript) notify() {
	t.mu.RLock()
	observers := make([]func(), len(t.observers))
	copy(observers, t.observers)
	t.mu.RUnlock()

	for _, fn := range observers {
		fn()
	}
}
