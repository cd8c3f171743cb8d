// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Homobonus-Projects/Gemini-Stock-Chatbot/internal/backend"
)

// ErrAlreadyRun is returned by a second call to Exchange.Run.
var ErrAlreadyRun = errors.New("exchange has already run")

// =============================================================================
// STATE
// =============================================================================

// State is the lifecycle position of an exchange.
type State int

const (
	StateIdle State = iota
	StateSending
	StateStreaming
	StateCompleted
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateSending:
		return "SENDING"
	case StateStreaming:
		return "STREAMING"
	case StateCompleted:
		return "COMPLETED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether no exchange is open in this state.
func (s State) Terminal() bool {
	return s == StateIdle || s == StateCompleted || s == StateFailed
}

// =============================================================================
// EXCHANGE
// =============================================================================

// Exchange is one user submission and the response streamed for it.
type Exchange struct {
	ID string

	mgr *Manager
	req *backend.ChatRequest
	att Attachment

	mu        sync.Mutex
	state     State
	err       error
	cancel    context.CancelFunc
	cancelled bool
	started   bool
	fragments int
	done      chan struct{}
}

func newExchange(m *Manager, req *backend.ChatRequest, att Attachment) *Exchange {
	return &Exchange{
		ID:    uuid.NewString(),
		mgr:   m,
		req:   req,
		att:   att,
		state: StateSending,
		done:  make(chan struct{}),
	}
}

// Request returns the assembled request.
func (e *Exchange) Request() *backend.ChatRequest {
	return e.req
}

// State returns the current state.
func (e *Exchange) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Err returns the failure, or nil.
func (e *Exchange) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// Done is closed when the exchange reaches COMPLETED or FAILED.
func (e *Exchange) Done() <-chan struct{} {
	return e.done
}

// Cancel aborts the exchange. The exchange ends FAILED unless it has
// already finished.
func (e *Exchange) Cancel() {
	e.mu.Lock()
	e.cancelled = true
	cancel := e.cancel
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Run sends the request and streams the response into the transcript.
// It blocks until the stream ends, fails, or ctx is cancelled, and returns
// the failure, if any.
func (e *Exchange) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return ErrAlreadyRun
	}
	e.started = true
	e.cancel = cancel
	if e.cancelled {
		cancel()
	}
	e.mu.Unlock()

	start := time.Now()
	stream, err := e.mgr.transport.Send(ctx, e.req)
	e.releaseAttachment()
	if err != nil {
		return e.fail(ctx, err)
	}
	defer stream.Close()

	e.transition(StateStreaming)

	for {
		frag, err := stream.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return e.complete(time.Since(start))
			}
			return e.fail(ctx, err)
		}
		e.mgr.transcript.AppendToLatestAssistant(frag)

		e.mu.Lock()
		e.fragments++
		e.mu.Unlock()
	}
}

func (e *Exchange) transition(st State) {
	e.mu.Lock()
	e.state = st
	e.mu.Unlock()
	e.mgr.notifyState(e, st)
}

func (e *Exchange) releaseAttachment() {
	if e.att != nil {
		e.att.Release()
	}
}

func (e *Exchange) complete(elapsed time.Duration) error {
	e.mgr.transcript.Seal(false)
	e.finish(StateCompleted, nil)

	e.mgr.log.Infow("exchange completed",
		"exchange", e.ID,
		"fragments", e.fragmentCount(),
		"elapsed", elapsed,
	)
	return nil
}

// fail seals the assistant message and reports err. Empty text is
// replaced with an error indicator; partial text is kept.
func (e *Exchange) fail(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		err = &backend.ClientError{Type: backend.ErrTypeStream, Message: "response cancelled", Cause: context.Canceled}
	}

	tr := e.mgr.transcript
	text, _ := tr.LatestAssistantText()
	partial := text != ""
	if !partial {
		tr.ReplaceLatestAssistantText("Error: " + backend.Reason(err))
	}
	tr.Seal(true)
	e.finish(StateFailed, err)

	e.mgr.log.Warnw("exchange failed",
		"exchange", e.ID,
		"kind", backend.TypeOf(err).String(),
		"partial", partial,
		"error", err,
	)
	e.mgr.notifyFailure(Failure{ExchangeID: e.ID, Err: err, Partial: partial})
	return err
}

// finish records the terminal state. The transcript must already be sealed
// so a following submission cannot see this exchange's message open.
func (e *Exchange) finish(st State, err error) {
	e.mu.Lock()
	e.state = st
	e.err = err
	e.mu.Unlock()

	close(e.done)
	e.mgr.notifyState(e, st)
}

func (e *Exchange) fragmentCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fragments
}
