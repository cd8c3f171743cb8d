// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"errors"
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// DefaultReadBuffer is the number of bytes requested per transport read.
const DefaultReadBuffer = 4096

// =============================================================================
// STREAM DECODER
// =============================================================================

// StreamDecoder turns a byte stream into UTF-8 text fragments.
//
// A multi-byte character split across reads is held back until the rest
// arrives, so every fragment is complete text. Fragments come out in the
// order the bytes arrived. A StreamDecoder belongs to one stream and cannot
// be restarted.
type StreamDecoder struct {
	r       io.Reader
	t       transform.Transformer
	buf     []byte // read buffer
	pending []byte // bytes not yet decoded
	dst     []byte
	done    bool
	err     error
}

// DecoderOption configures a StreamDecoder.
type DecoderOption func(*StreamDecoder)

// WithLenientUTF8 replaces invalid bytes with U+FFFD instead of failing
// the stream.
func WithLenientUTF8(lenient bool) DecoderOption {
	return func(d *StreamDecoder) {
		if lenient {
			d.t = unicode.UTF8.NewDecoder()
		} else {
			d.t = encoding.UTF8Validator
		}
	}
}

// WithReadBuffer sets the size of each transport read.
func WithReadBuffer(size int) DecoderOption {
	return func(d *StreamDecoder) {
		if size > 0 {
			d.buf = make([]byte, size)
		}
	}
}

// NewStreamDecoder creates a decoder reading from r. Decoding is strict by
// default: invalid UTF-8 ends the stream with a decode error.
func NewStreamDecoder(r io.Reader, opts ...DecoderOption) *StreamDecoder {
	d := &StreamDecoder{
		r: r,
		t: encoding.UTF8Validator,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.buf == nil {
		d.buf = make([]byte, DefaultReadBuffer)
	}
	d.t.Reset()
	return d
}

// Next blocks until the next fragment is available.
// It returns io.EOF after the last fragment, or a stream error. Once an
// error has been returned, every later call returns the same error.
func (d *StreamDecoder) Next() (string, error) {
	for {
		if d.err != nil {
			return "", d.err
		}
		if d.done {
			return "", io.EOF
		}

		n, rerr := d.r.Read(d.buf)
		atEOF := errors.Is(rerr, io.EOF)
		if rerr != nil && !atEOF {
			d.err = readError(rerr)
		}

		text, derr := d.decode(d.buf[:n], atEOF)
		if derr != nil {
			d.err = derr
		}
		if atEOF && d.err == nil {
			d.done = true
		}

		// Text decoded before a failure is still delivered; the error
		// surfaces on the following call.
		if text != "" {
			return text, nil
		}
	}
}

// decode appends chunk to the pending bytes and transforms as much as
// forms complete characters. An incomplete trailing sequence stays pending
// unless atEOF is set.
func (d *StreamDecoder) decode(chunk []byte, atEOF bool) (string, error) {
	d.pending = append(d.pending, chunk...)
	if len(d.pending) == 0 {
		return "", nil
	}

	var out []byte
	src := d.pending
	for {
		// U+FFFD is three bytes, so lenient decoding can triple the input.
		if want := len(src)*3 + utf8.UTFMax; cap(d.dst) < want {
			d.dst = make([]byte, want)
		}

		nDst, nSrc, err := d.t.Transform(d.dst[:cap(d.dst)], src, atEOF)
		out = append(out, d.dst[:nDst]...)
		src = src[nSrc:]

		switch {
		case err == nil:
		case errors.Is(err, transform.ErrShortSrc):
			// Incomplete character; wait for more input.
		case errors.Is(err, transform.ErrShortDst):
			if nDst == 0 && nSrc == 0 {
				d.dst = make([]byte, 2*cap(d.dst))
			}
			continue
		default:
			d.pending = d.pending[:0]
			return string(out), decodeError(err)
		}
		break
	}

	d.pending = d.pending[:copy(d.pending, src)]
	return string(out), nil
}
