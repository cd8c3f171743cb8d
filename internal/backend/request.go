// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strings"

	"github.com/Homobonus-Projects/Gemini-Stock-Chatbot/internal/model"
)

// Multipart field names and headers understood by the chat backend.
const (
	FieldMessage   = "message"
	FieldModelName = "model_name"
	FieldHistory   = "history"
	FieldFile      = "file"

	HeaderAPIKey = "X-Gemini-Api-Key"
)

// Attachment is an image payload sent with a request.
type Attachment interface {
	Name() string
	ContentType() string
	Size() int64
	Open() (io.Reader, error)
}

// =============================================================================
// REQUEST ASSEMBLY
// =============================================================================

// RequestInput is everything needed to build one chat request.
type RequestInput struct {
	Text       string
	Attachment Attachment // optional
	Model      string
	History    []model.Turn
	Credential string
}

// ChatRequest is a validated outbound request.
type ChatRequest struct {
	Message    string
	ModelName  string
	History    []model.Turn
	Attachment Attachment
	credential string
}

// Assemble validates in and builds a ChatRequest.
// It fails with a configuration error if the credential is missing, if
// there is neither text nor attachment, or if the model is not allowed.
func Assemble(in RequestInput) (*ChatRequest, error) {
	if strings.TrimSpace(in.Credential) == "" {
		return nil, ErrNoCredential
	}
	if strings.TrimSpace(in.Text) == "" && in.Attachment == nil {
		return nil, ErrNoContent
	}
	if !model.IsAllowedModel(in.Model) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, in.Model)
	}

	history := in.History
	if history == nil {
		history = []model.Turn{}
	}

	return &ChatRequest{
		Message:    in.Text,
		ModelName:  in.Model,
		History:    history,
		Attachment: in.Attachment,
		credential: strings.TrimSpace(in.Credential),
	}, nil
}

// Credential returns the key sent in the X-Gemini-Api-Key header.
func (r *ChatRequest) Credential() string {
	return r.credential
}

// Encode writes the multipart body to w and returns its content type.
func (r *ChatRequest) Encode(w io.Writer) (string, error) {
	mw := multipart.NewWriter(w)

	historyJSON, err := json.Marshal(r.History)
	if err != nil {
		return "", fmt.Errorf("encode history: %w", err)
	}

	fields := []struct{ name, value string }{
		{FieldMessage, r.Message},
		{FieldModelName, r.ModelName},
		{FieldHistory, string(historyJSON)},
	}
	for _, f := range fields {
		if err := mw.WriteField(f.name, f.value); err != nil {
			return "", fmt.Errorf("write field %s: %w", f.name, err)
		}
	}

	if r.Attachment != nil {
		if err := writeFilePart(mw, r.Attachment); err != nil {
			return "", err
		}
	}

	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart body: %w", err)
	}
	return mw.FormDataContentType(), nil
}

func writeFilePart(mw *multipart.Writer, att Attachment) error {
	src, err := att.Open()
	if err != nil {
		return fmt.Errorf("open attachment %s: %w", att.Name(), err)
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, FieldFile, att.Name()))
	h.Set("Content-Type", att.ContentType())

	part, err := mw.CreatePart(h)
	if err != nil {
		return fmt.Errorf("create file part: %w", err)
	}
	if _, err := io.Copy(part, src); err != nil {
		return fmt.Errorf("write attachment %s: %w", att.Name(), err)
	}
	return nil
}
