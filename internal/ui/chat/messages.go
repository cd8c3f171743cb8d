// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Homobonus-Projects/Gemini-Stock-Chatbot/internal/config"
	"github.com/Homobonus-Projects/Gemini-Stock-Chatbot/internal/session"
)

// =============================================================================
// MESSAGES
// =============================================================================

// TranscriptChangedMsg is sent after the transcript was mutated. Several
// mutations may collapse into one message.
type TranscriptChangedMsg struct{}

// FailureMsg reports a failed exchange.
type FailureMsg struct {
	Failure session.Failure
}

// ExchangeDoneMsg is sent when an exchange's Run returns.
type ExchangeDoneMsg struct {
	ExchangeID string
	Err        error
}

// ConfigReloadedMsg carries a configuration reloaded from disk.
type ConfigReloadedMsg struct {
	Config *config.Config
}

// ConfigErrorMsg reports a failed reload.
type ConfigErrorMsg struct {
	Err error
}

// =============================================================================
// EVENT BRIDGE
// =============================================================================

// bridge moves callbacks from core goroutines into the Bubble Tea loop.
// Senders never block: a pending transcript signal absorbs later ones, and
// failures beyond the buffer are dropped (the transcript still shows them).
type bridge struct {
	changed  chan struct{}
	failures chan session.Failure
	configs  chan tea.Msg
}

func newBridge() *bridge {
	return &bridge{
		changed:  make(chan struct{}, 1),
		failures: make(chan session.Failure, 8),
		configs:  make(chan tea.Msg, 1),
	}
}

func (b *bridge) notifyChanged() {
	select {
	case b.changed <- struct{}{}:
	default:
	}
}

func (b *bridge) notifyFailure(f session.Failure) {
	select {
	case b.failures <- f:
	default:
	}
}

// notifyConfig keeps only the newest pending config message.
func (b *bridge) notifyConfig(msg tea.Msg) {
	for {
		select {
		case b.configs <- msg:
			return
		default:
		}
		select {
		case <-b.configs:
		default:
		}
	}
}

func (b *bridge) waitChanged(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		select {
		case <-b.changed:
			return TranscriptChangedMsg{}
		case <-ctx.Done():
			return nil
		}
	}
}

func (b *bridge) waitFailure(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		select {
		case f := <-b.failures:
			return FailureMsg{Failure: f}
		case <-ctx.Done():
			return nil
		}
	}
}

func (b *bridge) waitConfig(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-b.configs:
			return msg
		case <-ctx.Done():
			return nil
		}
	}
}
