// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/Homobonus-Projects/Gemini-Stock-Chatbot/internal/backend"
	"github.com/Homobonus-Projects/Gemini-Stock-Chatbot/internal/model"
)

// ErrBusy is returned when a submission arrives while an exchange is open.
var ErrBusy = errors.New("a response is still streaming")

// =============================================================================
// INPUTS
// =============================================================================

// Transport opens a response stream for a request.
// *backend.Client implements Transport.
type Transport interface {
	Send(ctx context.Context, req *backend.ChatRequest) (*backend.Stream, error)
}

// Attachment is an image handle owned by an exchange once submitted.
type Attachment interface {
	backend.Attachment
	Ref() *model.AttachmentRef
	Release()
}

// Settings are the per-request session preferences. They are read-only
// inside the session.
type Settings struct {
	Model      string
	Credential string
}

// Submission is one user action.
type Submission struct {
	Text       string
	Attachment Attachment // optional
}

// Failure is delivered to OnFailure observers when an exchange fails.
type Failure struct {
	ExchangeID string
	Err        error
	// Partial is true when streamed text was kept in the transcript and
	// the error is reported only here.
	Partial bool
}

// =============================================================================
// SESSION MANAGER
// =============================================================================

// Manager owns the transcript and admits one exchange at a time.
type Manager struct {
	mu sync.Mutex

	transcript *model.Transcript
	transport  Transport
	log        *zap.SugaredLogger

	active *Exchange

	// Callbacks, guarded by obsMu so they can fire while mu is held
	obsMu     sync.RWMutex
	onFailure []func(Failure)
	onState   []func(*Exchange, State)
}

// NewManager creates a session manager. A nil transcript starts empty and a
// nil logger discards output.
func NewManager(transport Transport, transcript *model.Transcript, log *zap.SugaredLogger) *Manager {
	if transcript == nil {
		transcript = model.NewTranscript()
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Manager{
		transcript: transcript,
		transport:  transport,
		log:        log,
	}
}

// Transcript returns the session transcript.
func (m *Manager) Transcript() *model.Transcript {
	return m.transcript
}

// OnFailure registers fn to receive failures. fn must not block.
func (m *Manager) OnFailure(fn func(Failure)) {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()
	m.onFailure = append(m.onFailure, fn)
}

// OnStateChange registers fn to receive every exchange transition.
// fn must not block.
func (m *Manager) OnStateChange(fn func(*Exchange, State)) {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()
	m.onState = append(m.onState, fn)
}

// State returns the state of the current exchange, or StateIdle.
func (m *Manager) State() State {
	m.mu.Lock()
	active := m.active
	m.mu.Unlock()

	if active == nil {
		return StateIdle
	}
	return active.State()
}

// Busy reports whether an exchange is SENDING or STREAMING.
func (m *Manager) Busy() bool {
	return !m.State().Terminal()
}

// Active returns the most recent exchange, or nil.
func (m *Manager) Active() *Exchange {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Cancel aborts the open exchange, if any.
func (m *Manager) Cancel() bool {
	ex := m.Active()
	if ex == nil || ex.State().Terminal() {
		return false
	}
	ex.Cancel()
	return true
}

// =============================================================================
// SUBMISSION
// =============================================================================

// Begin admits a submission and starts an exchange.
//
// The history is projected from the transcript as it stood before this
// submission. The request is assembled before anything is appended, so a
// configuration error leaves the transcript untouched and the attachment
// with the caller. On success the user message and its empty assistant
// placeholder are appended together, and the exchange owns the attachment.
func (m *Manager) Begin(sub Submission, s Settings) (*Exchange, error) {
	m.mu.Lock()
	if m.active != nil && !m.active.State().Terminal() {
		m.mu.Unlock()
		return nil, ErrBusy
	}

	in := backend.RequestInput{
		Text:       sub.Text,
		Model:      s.Model,
		History:    model.ProjectHistory(m.transcript.Snapshot()),
		Credential: s.Credential,
	}
	var ref *model.AttachmentRef
	if sub.Attachment != nil {
		in.Attachment = sub.Attachment
		ref = sub.Attachment.Ref()
	}

	req, err := backend.Assemble(in)
	if err != nil {
		m.mu.Unlock()
		m.log.Debugw("submission rejected", "error", err)
		return nil, err
	}

	m.transcript.AppendExchangeStart(model.NewUserMessage(sub.Text, ref))
	ex := newExchange(m, req, sub.Attachment)
	m.active = ex
	m.mu.Unlock()

	m.log.Infow("exchange started",
		"exchange", ex.ID,
		"model", req.ModelName,
		"history_turns", len(req.History),
		"attachment", ref != nil,
	)
	m.notifyState(ex, StateSending)
	return ex, nil
}

// Submit begins an exchange and runs it to completion.
func (m *Manager) Submit(ctx context.Context, sub Submission, s Settings) (*Exchange, error) {
	ex, err := m.Begin(sub, s)
	if err != nil {
		return nil, err
	}
	return ex, ex.Run(ctx)
}

func (m *Manager) notifyState(ex *Exchange, st State) {
	m.log.Debugw("exchange state", "exchange", ex.ID, "state", st.String())

	m.obsMu.RLock()
	observers := append([]func(*Exchange, State){}, m.onState...)
	m.obsMu.RUnlock()

	for _, fn := range observers {
		fn(ex, st)
	}
}

func (m *Manager) notifyFailure(f Failure) {
	m.obsMu.RLock()
	observers := append([]func(Failure){}, m.onFailure...)
	m.obsMu.RUnlock()

	for _, fn := range observers {
		fn(f)
	}
}
