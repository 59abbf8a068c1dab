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

package ingestion

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/docsearch/ai"
	"github.com/poiesic/docsearch/ai/mock"
	"github.com/poiesic/docsearch/core"
	"github.com/poiesic/docsearch/storage"
	"github.com/poiesic/docsearch/storage/badger"
)

const testDimensions = 16

func testConfig() *ai.Config {
	return ai.NewConfig(
		ai.WithDimensions(testDimensions),
		ai.WithTimeout(time.Second),
	)
}

func setupPipeline(t *testing.T, provider ai.Provider, opts ...Option) (*Pipeline, storage.DocumentRepository, storage.ChunkRepository, storage.VectorRepository) {
	t.Helper()

	docs, chunks, vectors, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() {
		vectors.Close()
		chunks.Close()
		docs.Close()
		backend.Close()
	})

	opts = append([]Option{WithPoolSize(1), WithChunking(8, 2)}, opts...)
	pipeline, err := NewPipeline(docs, chunks, vectors, provider, testConfig(), opts...)
	require.NoError(t, err)
	t.Cleanup(pipeline.Release)

	return pipeline, docs, chunks, vectors
}

func newTestProvider() (*mock.MockProvider, *mock.MockEmbedder) {
	embedder := mock.NewMockEmbedder()
	embedder.Dimensions = testDimensions
	return mock.NewMockProviderWith(embedder), embedder
}

func TestNewPipeline_RequiredDependencies(t *testing.T) {
	docs, chunks, vectors, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() {
		vectors.Close()
		chunks.Close()
		docs.Close()
		backend.Close()
	})
	provider, _ := newTestProvider()

	tests := []struct {
		name    string
		build   func() (*Pipeline, error)
		wantErr error
	}{
		{"missing documents", func() (*Pipeline, error) {
			return NewPipeline(nil, chunks, vectors, provider, nil)
		}, ErrDocumentRepositoryRequired},
		{"missing chunks", func() (*Pipeline, error) {
			return NewPipeline(docs, nil, vectors, provider, nil)
		}, ErrChunkRepositoryRequired},
		{"missing vectors", func() (*Pipeline, error) {
			return NewPipeline(docs, chunks, nil, provider, nil)
		}, ErrVectorRepositoryRequired},
		{"missing provider", func() (*Pipeline, error) {
			return NewPipeline(docs, chunks, vectors, nil, nil)
		}, ErrAIProviderRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.build()
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestIngest(t *testing.T) {
	provider, _ := newTestProvider()
	pipeline, docs, chunks, vectors := setupPipeline(t, provider)
	ctx := context.Background()

	// 20 words, window 8, overlap 2: windows at 0, 6 and 12.
	text := strings.Repeat("hallo welt wie geht ", 5)
	result, err := pipeline.Ingest(ctx, "Vertrieb", core.VisibilityRestricted, text, &IngestOptions{
		Title:    "Begruessung",
		Language: "de",
	})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.Duplicate)
	assert.Equal(t, 3, result.ChunkCount)

	pipeline.Wait()

	doc, err := docs.GetDocument(ctx, result.DocumentId)
	require.NoError(t, err)
	assert.Equal(t, core.StatusEmbedded, doc.Status)
	assert.Equal(t, "Begruessung", doc.Title)
	assert.Equal(t, "de", doc.Language)

	stored, err := chunks.GetDocumentChunks(ctx, result.DocumentId)
	require.NoError(t, err)
	require.Len(t, stored, 3)
	for i, chunk := range stored {
		assert.Equal(t, i, chunk.Index)
		assert.NotEmpty(t, chunk.Text)
	}

	query, err := provider.MockEmbedder().EmbedText(ctx, stored[0].Text)
	require.NoError(t, err)
	matches, err := vectors.FindSimilar(ctx, query, testConfig().EmbeddingModel, nil, 10)
	require.NoError(t, err)
	assert.Len(t, matches, 3, "every chunk has a stored embedding")
}

func TestIngest_Duplicate(t *testing.T) {
	provider, _ := newTestProvider()
	pipeline, _, chunks, _ := setupPipeline(t, provider)
	ctx := context.Background()

	text := strings.Repeat("doppelter inhalt bleibt gleich ", 4)
	first, err := pipeline.Ingest(ctx, "Vertrieb", core.VisibilityAll, text, nil)
	require.NoError(t, err)
	pipeline.Wait()

	second, err := pipeline.Ingest(ctx, "Marketing", core.VisibilityRestricted, text, nil)
	require.NoError(t, err, "duplicates are reported, not failed")
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.DocumentId, second.DocumentId)
	assert.Equal(t, first.ChunkCount, second.ChunkCount)

	count, err := chunks.CountDocumentChunks(ctx, first.DocumentId)
	require.NoError(t, err)
	assert.Equal(t, first.ChunkCount, count, "no chunks are added for a duplicate")
}

func TestIngest_EmptyText(t *testing.T) {
	provider, _ := newTestProvider()
	pipeline, docs, _, _ := setupPipeline(t, provider)
	ctx := context.Background()

	for _, text := range []string{"", "   \n\t  ", "\x00\x07 \x1b"} {
		_, err := pipeline.Ingest(ctx, "Vertrieb", core.VisibilityAll, text, nil)
		assert.ErrorIs(t, err, ErrEmptyText)
	}

	stored := 0
	err := docs.ForEachDocument(ctx, func(doc *core.Document) (bool, error) {
		stored++
		return true, nil
	})
	require.NoError(t, err)
	assert.Zero(t, stored, "rejected text never reaches the store")
}

func TestIngest_AllEmbeddingsFail(t *testing.T) {
	provider, embedder := newTestProvider()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, errors.New("service down")
	}
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("service down")
	}

	pipeline, docs, _, vectors := setupPipeline(t, provider)
	ctx := context.Background()

	text := strings.Repeat("nicht einbettbarer inhalt ", 8)
	result, err := pipeline.Ingest(ctx, "Vertrieb", core.VisibilityAll, text, nil)
	require.NoError(t, err, "embedding failures never fail the ingestion itself")

	pipeline.Wait()

	doc, err := docs.GetDocument(ctx, result.DocumentId)
	require.NoError(t, err)
	assert.Equal(t, core.StatusEmbeddingFailed, doc.Status)

	query := make([]float32, testDimensions)
	query[0] = 1
	matches, err := vectors.FindSimilar(ctx, query, testConfig().EmbeddingModel, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, matches, "zero vectors are never persisted")
}

func TestIngest_PartialEmbeddingFailure(t *testing.T) {
	provider, embedder := newTestProvider()
	var failedText string
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, errors.New("batch rejected")
	}
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		if failedText == "" {
			failedText = text
			return nil, errors.New("model refused")
		}
		vector := make([]float32, testDimensions)
		vector[0] = 1
		return vector, nil
	}

	pipeline, docs, _, vectors := setupPipeline(t, provider)
	ctx := context.Background()

	text := strings.Repeat("teilweise einbettbarer inhalt hier ", 5)
	result, err := pipeline.Ingest(ctx, "Vertrieb", core.VisibilityAll, text, nil)
	require.NoError(t, err)
	require.Equal(t, 3, result.ChunkCount)

	pipeline.Wait()

	doc, err := docs.GetDocument(ctx, result.DocumentId)
	require.NoError(t, err)
	assert.Equal(t, core.StatusEmbedded, doc.Status,
		"a partial batch still counts as embedded")

	query := make([]float32, testDimensions)
	query[0] = 1
	matches, err := vectors.FindSimilar(ctx, query, testConfig().EmbeddingModel, nil, 10)
	require.NoError(t, err)
	assert.Len(t, matches, 2, "only the chunks that embedded are stored")
}
