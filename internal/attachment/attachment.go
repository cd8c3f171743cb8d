// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package attachment manages image payloads selected for sending.
//
// Each payload is a scoped resource: a Handle is acquired from a Registry
// when the user picks a file and released when it is replaced, detached, or
// sent. Registry.Live reports outstanding handles so leaks are observable.
package attachment

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/Homobonus-Projects/Gemini-Stock-Chatbot/internal/model"
)

// DefaultMaxBytes is the largest accepted attachment.
const DefaultMaxBytes = 10 << 20

var (
	ErrNotImage  = errors.New("attachment is not an image")
	ErrTooLarge  = errors.New("attachment is too large")
	ErrReleased  = errors.New("attachment has been released")
	ErrEmptyFile = errors.New("attachment is empty")
)

// =============================================================================
// REGISTRY
// =============================================================================

// Registry creates handles and tracks which are still live.
type Registry struct {
	mu       sync.Mutex
	live     map[uint64]*Handle
	nextID   uint64
	maxBytes int64
	log      *zap.SugaredLogger
}

// NewRegistry creates a registry. maxBytes <= 0 uses DefaultMaxBytes.
func NewRegistry(maxBytes int64, log *zap.SugaredLogger) *Registry {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Registry{
		live:     make(map[uint64]*Handle),
		maxBytes: maxBytes,
		log:      log,
	}
}

// Open reads the image at path into a new handle.
func (r *Registry) Open(path string) (*Handle, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("open attachment: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("open attachment: %s is a directory", path)
	}
	if info.Size() > r.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrTooLarge, info.Size(), r.maxBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read attachment: %w", err)
	}
	return r.FromBytes(filepath.Base(path), data)
}

// FromBytes wraps an in-memory image in a new handle.
func (r *Registry) FromBytes(name string, data []byte) (*Handle, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}
	if int64(len(data)) > r.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrTooLarge, len(data), r.maxBytes)
	}

	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotImage, name, contentType)
	}

	r.mu.Lock()
	r.nextID++
	h := &Handle{
		reg:         r,
		id:          r.nextID,
		name:        name,
		contentType: contentType,
		data:        data,
	}
	r.live[h.id] = h
	r.mu.Unlock()

	r.log.Debugw("attachment acquired", "name", name, "type", contentType, "bytes", len(data))
	return h, nil
}

// Live returns the number of handles not yet released.
func (r *Registry) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

func (r *Registry) release(h *Handle) {
	r.mu.Lock()
	delete(r.live, h.id)
	r.mu.Unlock()
	r.log.Debugw("attachment released", "name", h.name)
}

// =============================================================================
// HANDLE
// =============================================================================

// Handle owns one image payload until Release is called.
type Handle struct {
	reg         *Registry
	id          uint64
	name        string
	contentType string

	mu       sync.Mutex
	data     []byte
	released bool
}

// Name returns the file name.
func (h *Handle) Name() string { return h.name }

// ContentType returns the sniffed MIME type.
func (h *Handle) ContentType() string { return h.contentType }

// Size returns the payload size in bytes, or 0 once released.
func (h *Handle) Size() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return int64(len(h.data))
}

// Open returns a reader over the payload.
func (h *Handle) Open() (io.Reader, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return nil, ErrReleased
	}
	return bytes.NewReader(h.data), nil
}

// Ref returns the transcript reference for this attachment.
func (h *Handle) Ref() *model.AttachmentRef {
	return &model.AttachmentRef{
		Name:        h.name,
		ContentType: h.contentType,
		Size:        h.Size(),
	}
}

// Release drops the payload. Safe to call more than once.
func (h *Handle) Release() {
	if h == nil {
		return
	}
	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		return
	}
	h.released = true
	h.data = nil
	h.mu.Unlock()

	h.reg.release(h)
}

// Released reports whether Release has been called.
func (h *Handle) Released() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released
}

// =============================================================================
// PENDING SLOT
// =============================================================================

// Pending holds the attachment chosen for the next submission.
type Pending struct {
	mu sync.Mutex
	h  *Handle
}

// Set makes h the pending attachment, releasing any previous one.
func (p *Pending) Set(h *Handle) {
	p.mu.Lock()
	prev := p.h
	p.h = h
	p.mu.Unlock()

	if prev != nil && prev != h {
		prev.Release()
	}
}

// Clear releases and removes the pending attachment.
func (p *Pending) Clear() {
	p.Set(nil)
}

// Take removes the pending attachment without releasing it. The caller
// becomes responsible for Release.
func (p *Pending) Take() *Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	h := p.h
	p.h = nil
	return h
}

// Peek returns the pending attachment without removing it.
func (p *Pending) Peek() *Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.h
}
