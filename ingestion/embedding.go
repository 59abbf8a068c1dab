package ingestion

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/docsearch/ai"
	"github.com/poiesic/docsearch/core"
	"github.com/poiesic/docsearch/storage"
)

// embeddingProcessor generates and stores embeddings for document chunks.
type embeddingProcessor struct {
	documents storage.DocumentRepository
	vectors   storage.VectorRepository
	embedder  *ai.FallbackEmbedder
	model     string
	logger    *slog.Logger
}

// newEmbeddingProcessor creates a new embedding processor.
func newEmbeddingProcessor(documents storage.DocumentRepository, vectors storage.VectorRepository, embedder *ai.FallbackEmbedder, model string, logger *slog.Logger) (*embeddingProcessor, error) {
	if documents == nil {
		return nil, fmt.Errorf("document repository required")
	}
	if vectors == nil {
		return nil, fmt.Errorf("vector repository required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &embeddingProcessor{
		documents: documents,
		vectors:   vectors,
		embedder:  embedder,
		model:     model,
		logger:    logger.With("processor", "embeddings"),
	}, nil
}

// process embeds the given chunks and stores the resulting vectors.
// Zero vectors from the fallback path are dropped rather than stored, so
// a partially failed batch still leaves the document searchable through
// the chunks that did embed. The document ends up embedding_failed only
// when every chunk in the batch failed.
func (ep *embeddingProcessor) process(ctx context.Context, documentID core.ID, chunks []*core.Chunk) error {
	ep.logger.Info("embedding document chunks", "document", documentID, "chunks", len(chunks))

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	vectors, failed := ep.embedder.EmbedBatch(ctx, texts)
	if failed == len(texts) {
		ep.logger.Error("all chunk embeddings failed", "document", documentID, "chunks", len(chunks))
		return ep.documents.SetStatus(ctx, documentID, core.StatusEmbeddingFailed)
	}

	embeddings := make([]*core.Embedding, 0, len(chunks))
	for i, vector := range vectors {
		if ai.IsZeroVector(vector) {
			continue
		}
		embeddings = append(embeddings, &core.Embedding{
			ChunkId:    chunks[i].Id,
			DocumentId: documentID,
			Model:      ep.model,
			Seq:        chunks[i].Seq,
			Vector:     vector,
		})
	}

	if err := ep.vectors.UpsertEmbeddings(ctx, embeddings...); err != nil {
		ep.logger.Error("error storing embeddings", "document", documentID, "err", err)
		return err
	}

	if failed > 0 {
		ep.logger.Warn("document embedded partially", "document", documentID,
			"embedded", len(embeddings), "failed", failed)
	}
	return ep.documents.SetStatus(ctx, documentID, core.StatusEmbedded)
}
