package badger

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/poiesic/docsearch/core"
	"github.com/poiesic/docsearch/storage"
)

const testModel = "embeddinggemma"

func setupRepositories(t *testing.T) (storage.DocumentRepository, storage.ChunkRepository, storage.VectorRepository) {
	t.Helper()

	docs, chunks, vectors, backend, err := NewMemoryRepositories()
	require.NoError(t, err)

	t.Cleanup(func() {
		vectors.Close()
		chunks.Close()
		docs.Close()
		backend.Close()
	})

	return docs, chunks, vectors
}

func addTestDocument(t *testing.T, repo storage.DocumentRepository, text, department string, visibility core.Visibility) *core.Document {
	t.Helper()

	doc, err := repo.AddDocument(context.Background(), &core.Document{
		Department: department,
		Visibility: visibility,
		RawText:    text,
	})
	require.NoError(t, err)
	return doc
}

func addTestChunks(t *testing.T, repo storage.ChunkRepository, docID core.ID, texts ...string) []*core.Chunk {
	t.Helper()

	chunks := make([]*core.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = &core.Chunk{
			DocumentId: docID,
			Index:      i,
			Text:       text,
			WordCount:  len(text),
		}
	}

	stored, err := repo.AddChunks(context.Background(), chunks...)
	require.NoError(t, err)
	require.Len(t, stored, len(texts))
	return stored
}

func addTestEmbedding(t *testing.T, repo storage.VectorRepository, chunk *core.Chunk, vector []float32) {
	t.Helper()

	err := repo.UpsertEmbeddings(context.Background(), &core.Embedding{
		ChunkId:    chunk.Id,
		DocumentId: chunk.DocumentId,
		Model:      testModel,
		Seq:        chunk.Seq,
		Vector:     vector,
	})
	require.NoError(t, err)
}

// uniqueText returns document text that no other call produced, so tests do
// not trip the content-hash dedup unintentionally.
var uniqueCounter int

func uniqueText(prefix string) string {
	uniqueCounter++
	return fmt.Sprintf("%s %d", prefix, uniqueCounter)
}
