// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package knowledge

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_AddAndSearch(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.Add(ctx, "NVIDIA announced a 10-for-1 stock split.", []float32{1, 0, 0})
	require.NoError(t, err)
	_, err = s.Add(ctx, "Euro area inflation fell to 2.4% in April.", []float32{0, 1, 0})
	require.NoError(t, err)
	_, err = s.Add(ctx, "Mixed signal.", []float32{0.7, 0.7, 0})
	require.NoError(t, err)
	_, err = s.Add(ctx, "Different embedding model.", []float32{1, 0})
	require.NoError(t, err)

	results, err := s.Search(ctx, []float32{0.9, 0.1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Contains(t, results[0].Text, "NVIDIA")
	assert.Equal(t, "Mixed signal.", results[1].Text)
	assert.Greater(t, results[0].Score, results[1].Score)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestStore_Rejects(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.Add(ctx, "   ", []float32{1})
	assert.ErrorIs(t, err, ErrEmptyText)
	_, err = s.Add(ctx, "text", nil)
	assert.ErrorIs(t, err, ErrEmptyEmbedding)
	_, err = s.Search(ctx, nil, 3)
	assert.ErrorIs(t, err, ErrEmptyEmbedding)
}

func TestStore_PersistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "kb", "knowledge.db")

	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.Add(ctx, "fact", []float32{0.5, 0.5})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.Add(ctx, "after close", []float32{1, 1})
	assert.ErrorIs(t, err, ErrClosed)

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCosineSimilarity(t *testing.T) {
	assert.Equal(t, 0.0, CosineSimilarity(nil, nil))
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, 0.0, CosineSimilarity([]float32{0, 0}, []float32{1, 1}))
}

func TestVectorEncoding(t *testing.T) {
	v := []float32{0, -1.5, float32(math.Pi), math.MaxFloat32}
	assert.Equal(t, v, decodeVector(encodeVector(v)))
}
