// Copyright 2026 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ai_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/docsearch/ai"
	"github.com/poiesic/docsearch/ai/mock"
)

const testDimensions = 8

func TestEmbedBatch_AllSucceed(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.Dimensions = testDimensions

	fb := ai.NewFallbackEmbedder(embedder, time.Second, testDimensions)
	texts := []string{"eins", "zwei", "drei"}

	vectors, failed := fb.EmbedBatch(context.Background(), texts)
	require.Len(t, vectors, len(texts))
	assert.Zero(t, failed)
	for _, v := range vectors {
		assert.Len(t, v, testDimensions)
		assert.False(t, ai.IsZeroVector(v))
	}
}

func TestEmbedBatch_PartialFailureKeepsPositions(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.Dimensions = testDimensions
	// Fail the batch call so every item is retried individually, then fail
	// exactly one item on retry.
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, errors.New("batch too large")
	}
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		if text == "drei" {
			return nil, errors.New("model refused")
		}
		return []float32{1, 2, 3, 4, 5, 6, 7, 8}, nil
	}

	fb := ai.NewFallbackEmbedder(embedder, time.Second, testDimensions)
	texts := []string{"eins", "zwei", "drei", "vier", "fuenf"}

	vectors, failed := fb.EmbedBatch(context.Background(), texts)
	require.Len(t, vectors, 5, "output length must match input length")
	assert.Equal(t, 1, failed)

	for i, v := range vectors {
		require.Len(t, v, testDimensions)
		if i == 2 {
			assert.True(t, ai.IsZeroVector(v), "failed item must be a zero vector at its position")
		} else {
			assert.False(t, ai.IsZeroVector(v))
		}
	}
}

func TestEmbedBatch_TotalFailure(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, errors.New("connection refused")
	}
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("connection refused")
	}

	fb := ai.NewFallbackEmbedder(embedder, time.Second, testDimensions)
	texts := []string{"eins", "zwei"}

	vectors, failed := fb.EmbedBatch(context.Background(), texts)
	require.Len(t, vectors, 2)
	assert.Equal(t, len(texts), failed, "total failure is signalled by failed == len(texts)")
	for _, v := range vectors {
		assert.True(t, ai.IsZeroVector(v))
		assert.Len(t, v, testDimensions)
	}
}

func TestEmbedBatch_ShortBatchResultTriggersItemRetry(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.Dimensions = testDimensions
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		// Wrong length without an error must not be trusted.
		return [][]float32{{1, 0, 0, 0, 0, 0, 0, 0}}, nil
	}

	fb := ai.NewFallbackEmbedder(embedder, time.Second, testDimensions)
	vectors, failed := fb.EmbedBatch(context.Background(), []string{"eins", "zwei", "drei"})
	require.Len(t, vectors, 3)
	assert.Zero(t, failed, "item retries use the default embedder and succeed")
}

func TestEmbedBatch_EmptyInput(t *testing.T) {
	fb := ai.NewFallbackEmbedder(mock.NewMockEmbedder(), time.Second, testDimensions)
	vectors, failed := fb.EmbedBatch(context.Background(), nil)
	assert.Nil(t, vectors)
	assert.Zero(t, failed)
}

func TestEmbedQuery(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		embedder := mock.NewMockEmbedder()
		embedder.Dimensions = testDimensions

		fb := ai.NewFallbackEmbedder(embedder, time.Second, testDimensions)
		vector, err := fb.EmbedQuery(context.Background(), "hallo welt")
		require.NoError(t, err)
		assert.Len(t, vector, testDimensions)
	})

	t.Run("failure reports unavailable", func(t *testing.T) {
		embedder := mock.NewMockEmbedder()
		cause := errors.New("timeout")
		embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
			return nil, cause
		}

		fb := ai.NewFallbackEmbedder(embedder, time.Second, testDimensions)
		_, err := fb.EmbedQuery(context.Background(), "hallo welt")
		assert.ErrorIs(t, err, ai.ErrEmbeddingUnavailable)
		assert.ErrorIs(t, err, cause, "the underlying cause stays inspectable")
	})

	t.Run("empty vector reports unavailable", func(t *testing.T) {
		embedder := mock.NewMockEmbedder()
		embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
			return nil, nil
		}

		fb := ai.NewFallbackEmbedder(embedder, time.Second, testDimensions)
		_, err := fb.EmbedQuery(context.Background(), "hallo welt")
		assert.ErrorIs(t, err, ai.ErrEmbeddingUnavailable)
	})
}

func TestIsZeroVector(t *testing.T) {
	assert.True(t, ai.IsZeroVector(nil))
	assert.True(t, ai.IsZeroVector([]float32{0, 0, 0}))
	assert.False(t, ai.IsZeroVector([]float32{0, 0.001, 0}))
}
