package reprocess

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/docsearch/ai"
	"github.com/poiesic/docsearch/chunker"
	"github.com/poiesic/docsearch/core"
	"github.com/poiesic/docsearch/storage"
)

// BatchProcessor re-chunks and re-embeds documents.
type BatchProcessor struct {
	documents      storage.DocumentRepository
	chunks         storage.ChunkRepository
	vectors        storage.VectorRepository
	embedder       ai.Embedder
	model          string
	targetWords    int
	overlapWords   int
	maxRetries     int
	retryBaseDelay time.Duration
	logger         *slog.Logger
}

// NewBatchProcessor creates a new batch processor.
// maxRetries: maximum number of retry attempts for embedding API calls
// retryBaseDelay: base delay for exponential backoff
func NewBatchProcessor(
	documents storage.DocumentRepository,
	chunks storage.ChunkRepository,
	vectors storage.VectorRepository,
	embedder ai.Embedder,
	model string,
	targetWords, overlapWords int,
	maxRetries int,
	retryBaseDelay time.Duration,
) *BatchProcessor {
	return &BatchProcessor{
		documents:      documents,
		chunks:         chunks,
		vectors:        vectors,
		embedder:       embedder,
		model:          model,
		targetWords:    targetWords,
		overlapWords:   overlapWords,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
		logger:         slog.Default().With("component", "reprocess"),
	}
}

// ProcessDocument re-chunks one document from its stored raw text, swaps the
// chunk set atomically and re-embeds the new chunks.
// Returns the number of chunks created.
func (bp *BatchProcessor) ProcessDocument(ctx context.Context, doc *core.Document) (int, error) {
	if err := bp.documents.SetStatus(ctx, doc.Id, core.StatusReprocessing); err != nil {
		return 0, err
	}

	records := chunker.Chunk(doc.RawText, bp.targetWords, bp.overlapWords)
	if len(records) == 0 {
		// Leave the document in its prior status rather than stuck in
		// reprocessing.
		if statusErr := bp.documents.SetStatus(ctx, doc.Id, doc.Status); statusErr != nil {
			bp.logger.Error("error restoring document status", "document", doc.Id, "err", statusErr)
		}
		return 0, fmt.Errorf("document %d has no words to chunk", doc.Id)
	}

	chunks := make([]*core.Chunk, len(records))
	for i, record := range records {
		chunks[i] = &core.Chunk{
			DocumentId: doc.Id,
			Index:      i,
			Text:       record.Text,
			WordCount:  record.WordCount,
		}
	}

	// Old chunks and embeddings go away in the same transaction that writes
	// the new chunks, so concurrent retrieval sees a consistent set.
	stored, err := bp.chunks.ReplaceChunks(ctx, doc.Id, chunks...)
	if err != nil {
		return 0, fmt.Errorf("failed to replace chunks: %w", err)
	}

	texts := make([]string, len(stored))
	for i, chunk := range stored {
		texts[i] = chunk.Text
	}

	// Generate embeddings with retry
	var vectors [][]float32
	err = RetryWithBackoff(ctx, func() error {
		var err error
		vectors, err = bp.embedder.EmbedTexts(ctx, texts)
		return err
	}, bp.maxRetries, bp.retryBaseDelay)

	if err != nil {
		if statusErr := bp.documents.SetStatus(ctx, doc.Id, core.StatusEmbeddingFailed); statusErr != nil {
			bp.logger.Error("error marking document embedding_failed", "document", doc.Id, "err", statusErr)
		}
		return len(stored), fmt.Errorf("failed to generate embeddings after %d attempts: %w", bp.maxRetries, err)
	}

	if len(vectors) != len(stored) {
		return len(stored), fmt.Errorf("embedding count mismatch: expected %d, got %d", len(stored), len(vectors))
	}

	// Normalize vectors, drop any that embed to zero
	embeddings := make([]*core.Embedding, 0, len(stored))
	for i, chunk := range stored {
		vector := NormalizeVector(vectors[i])
		if ai.IsZeroVector(vector) {
			continue
		}
		embeddings = append(embeddings, &core.Embedding{
			ChunkId:    chunk.Id,
			DocumentId: doc.Id,
			Model:      bp.model,
			Seq:        chunk.Seq,
			Vector:     vector,
		})
	}

	if len(embeddings) == 0 {
		if statusErr := bp.documents.SetStatus(ctx, doc.Id, core.StatusEmbeddingFailed); statusErr != nil {
			bp.logger.Error("error marking document embedding_failed", "document", doc.Id, "err", statusErr)
		}
		return len(stored), fmt.Errorf("all %d chunk embeddings were empty", len(stored))
	}

	if err := bp.vectors.UpsertEmbeddings(ctx, embeddings...); err != nil {
		return len(stored), fmt.Errorf("failed to store embeddings: %w", err)
	}

	if err := bp.documents.SetStatus(ctx, doc.Id, core.StatusEmbedded); err != nil {
		return len(stored), err
	}
	return len(stored), nil
}

// Process reprocesses a batch of documents with per-document isolation: a
// failure is logged and counted but does not abort the rest of the batch.
// Context cancellation does abort.
func (bp *BatchProcessor) Process(ctx context.Context, docs []*core.Document) (chunksCreated, failed int, err error) {
	for _, doc := range docs {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return chunksCreated, failed, ctxErr
		}

		created, procErr := bp.ProcessDocument(ctx, doc)
		if procErr != nil {
			bp.logger.Error("error reprocessing document", "document", doc.Id, "err", procErr)
			failed++
			continue
		}
		chunksCreated += created
	}
	return chunksCreated, failed, nil
}
