// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Homobonus-Projects/Gemini-Stock-Chatbot/internal/model"
)

type memAttachment struct {
	name, contentType string
	data              []byte
}

func (m memAttachment) Name() string             { return m.name }
func (m memAttachment) ContentType() string      { return m.contentType }
func (m memAttachment) Size() int64              { return int64(len(m.data)) }
func (m memAttachment) Open() (io.Reader, error) { return bytes.NewReader(m.data), nil }

func TestAssemble_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name string
		in   RequestInput
		want error
	}{
		{
			name: "missing credential",
			in:   RequestInput{Text: "Hi", Model: model.DefaultModel},
			want: ErrNoCredential,
		},
		{
			name: "blank credential",
			in:   RequestInput{Text: "Hi", Model: model.DefaultModel, Credential: "  "},
			want: ErrNoCredential,
		},
		{
			name: "no content",
			in:   RequestInput{Text: "   ", Model: model.DefaultModel, Credential: "key"},
			want: ErrNoContent,
		},
		{
			name: "unknown model",
			in:   RequestInput{Text: "Hi", Model: "gpt-4o", Credential: "key"},
			want: ErrUnknownModel,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req, err := Assemble(tc.in)
			assert.Nil(t, req)
			assert.ErrorIs(t, err, tc.want)
			assert.True(t, IsConfiguration(err))
		})
	}
}

func TestAssemble_AttachmentOnly(t *testing.T) {
	req, err := Assemble(RequestInput{
		Attachment: memAttachment{name: "chart.png", contentType: "image/png", data: []byte{1, 2, 3}},
		Model:      "gemini-2.5-pro",
		Credential: "key",
	})
	require.NoError(t, err)
	assert.Empty(t, req.Message)
	assert.Equal(t, []model.Turn{}, req.History)
}

func TestChatRequest_Encode(t *testing.T) {
	req, err := Assemble(RequestInput{
		Text:       "What about AAPL?",
		Model:      "gemini-2.5-flash",
		History:    []model.Turn{{Role: "user", Text: "Hi"}, {Role: "model", Text: "Hello!"}},
		Attachment: memAttachment{name: "chart.png", contentType: "image/png", data: []byte("PNGDATA")},
		Credential: "secret",
	})
	require.NoError(t, err)

	var body bytes.Buffer
	contentType, err := req.Encode(&body)
	require.NoError(t, err)

	mediaType, params, err := mime.ParseMediaType(contentType)
	require.NoError(t, err)
	require.Equal(t, "multipart/form-data", mediaType)

	form, err := multipart.NewReader(&body, params["boundary"]).ReadForm(1 << 20)
	require.NoError(t, err)

	assert.Equal(t, []string{"What about AAPL?"}, form.Value[FieldMessage])
	assert.Equal(t, []string{"gemini-2.5-flash"}, form.Value[FieldModelName])

	var history []model.Turn
	require.NoError(t, json.Unmarshal([]byte(form.Value[FieldHistory][0]), &history))
	assert.Equal(t, req.History, history)

	files := form.File[FieldFile]
	require.Len(t, files, 1)
	assert.Equal(t, "chart.png", files[0].Filename)
	assert.Equal(t, "image/png", files[0].Header.Get("Content-Type"))

	f, err := files[0].Open()
	require.NoError(t, err)
	defer f.Close()
	data, _ := io.ReadAll(f)
	assert.Equal(t, "PNGDATA", string(data))
}

func TestChatRequest_EncodeEmptyHistory(t *testing.T) {
	req, err := Assemble(RequestInput{Text: "Hi", Model: model.DefaultModel, Credential: "k"})
	require.NoError(t, err)

	var body bytes.Buffer
	_, err = req.Encode(&body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(body.String(), "\r\n\r\n[]\r\n"), "history must encode as an empty JSON array")
}
