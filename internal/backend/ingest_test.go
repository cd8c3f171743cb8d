// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Ingest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ingest", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get(HeaderAPIKey))
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "NVIDIA split 10-for-1.", r.PostForm.Get(FieldText))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","message":"Knowledge added."}`))
	}))
	defer server.Close()

	msg, err := newTestClient(t, server.URL+"/").Ingest(context.Background(), "test-key", "NVIDIA split 10-for-1.")
	require.NoError(t, err)
	assert.Equal(t, "Knowledge added.", msg)
}

func TestClient_IngestErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"detail":"embedding failed"}`))
	}))
	defer server.Close()
	c := newTestClient(t, server.URL)

	_, err := c.Ingest(context.Background(), "", "text")
	assert.ErrorIs(t, err, ErrNoCredential)

	_, err = c.Ingest(context.Background(), "k", "   ")
	assert.ErrorIs(t, err, ErrNoText)

	_, err = c.Ingest(context.Background(), "k", "text")
	require.Error(t, err)
	assert.True(t, IsTransport(err))
	assert.Equal(t, "embedding failed", Reason(err))
}
