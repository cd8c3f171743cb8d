// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkReader returns one chunk per Read call, then err.
type chunkReader struct {
	chunks [][]byte
	err    error
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(c.chunks) == 0 {
		if c.err != nil {
			return 0, c.err
		}
		return 0, io.EOF
	}
	n := copy(p, c.chunks[0])
	c.chunks[0] = c.chunks[0][n:]
	if len(c.chunks[0]) == 0 {
		c.chunks = c.chunks[1:]
	}
	return n, nil
}

func collect(t *testing.T, d *StreamDecoder) (string, error) {
	t.Helper()
	var sb strings.Builder
	for {
		frag, err := d.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return sb.String(), nil
			}
			return sb.String(), err
		}
		require.NotEmpty(t, frag, "decoder must not emit empty fragments")
		sb.WriteString(frag)
	}
}

// =============================================================================
// DECODE BOUNDARY TESTS
// =============================================================================

func TestStreamDecoder_SplitMultiByteCharacter(t *testing.T) {
	whole := []byte("zł€😀")

	// Split at every byte offset and compare against one-chunk decoding.
	for i := 1; i < len(whole); i++ {
		r := &chunkReader{chunks: [][]byte{
			append([]byte(nil), whole[:i]...),
			append([]byte(nil), whole[i:]...),
		}}
		got, err := collect(t, NewStreamDecoder(r))
		require.NoError(t, err, "split at %d", i)
		assert.Equal(t, string(whole), got, "split at %d", i)
	}
}

func TestStreamDecoder_FragmentsHoldBackPartialRune(t *testing.T) {
	euro := []byte("€") // e2 82 ac
	r := &chunkReader{chunks: [][]byte{
		{'a', euro[0]},
		{euro[1]},
		{euro[2], 'b'},
	}}
	d := NewStreamDecoder(r)

	frag, err := d.Next()
	require.NoError(t, err)
	assert.Equal(t, "a", frag)

	frag, err = d.Next()
	require.NoError(t, err)
	assert.Equal(t, "€b", frag)

	_, err = d.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestStreamDecoder_SmallReadBuffer(t *testing.T) {
	text := "Cześć, jak się masz? 你好"
	d := NewStreamDecoder(strings.NewReader(text), WithReadBuffer(1))

	got, err := collect(t, d)
	require.NoError(t, err)
	assert.Equal(t, text, got)
}

// =============================================================================
// DECODE ERROR TESTS
// =============================================================================

func TestStreamDecoder_StrictRejectsInvalidUTF8(t *testing.T) {
	r := &chunkReader{chunks: [][]byte{[]byte("ok "), {0xff, 'x'}}}
	got, err := collect(t, NewStreamDecoder(r))

	assert.Equal(t, "ok ", got)
	require.Error(t, err)
	assert.True(t, IsStream(err))
	assert.True(t, IsDecode(err))
}

func TestStreamDecoder_StrictRejectsTruncatedTail(t *testing.T) {
	r := &chunkReader{chunks: [][]byte{{'a', 0xe2, 0x82}}}
	got, err := collect(t, NewStreamDecoder(r))

	assert.Equal(t, "a", got)
	assert.True(t, IsDecode(err))
}

func TestStreamDecoder_LenientReplacesInvalidBytes(t *testing.T) {
	r := &chunkReader{chunks: [][]byte{{'a', 0xff, 'b'}, {0xe2, 0x82}}}
	got, err := collect(t, NewStreamDecoder(r, WithLenientUTF8(true)))

	require.NoError(t, err)
	// The truncated tail is one maximal invalid prefix.
	assert.Equal(t, "a\uFFFDb\uFFFD", got)
}

func TestStreamDecoder_LenientReplacesEachInvalidByte(t *testing.T) {
	r := &chunkReader{chunks: [][]byte{{'x', 0xff, 0xfe, 'y'}}}
	got, err := collect(t, NewStreamDecoder(r, WithLenientUTF8(true)))

	require.NoError(t, err)
	assert.Equal(t, "x\uFFFD\uFFFDy", got)
}

func TestStreamDecoder_ReadErrorAfterText(t *testing.T) {
	boom := errors.New("connection reset")
	r := &chunkReader{chunks: [][]byte{[]byte("Hel"), []byte("lo")}, err: boom}
	d := NewStreamDecoder(r)

	got, err := collect(t, d)
	assert.Equal(t, "Hello", got)
	require.Error(t, err)
	assert.True(t, IsStream(err))
	assert.False(t, IsDecode(err))
	assert.ErrorIs(t, err, boom)

	// The error is sticky.
	_, again := d.Next()
	assert.Equal(t, err, again)
}

func TestStreamDecoder_EmptyStream(t *testing.T) {
	d := NewStreamDecoder(strings.NewReader(""))
	_, err := d.Next()
	assert.ErrorIs(t, err, io.EOF)
	_, err = d.Next()
	assert.ErrorIs(t, err, io.EOF)
}
