package ai

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrEmbeddingUnavailable indicates the embedding service failed or timed
// out for an entire request. Callers degrade to lexical-only behavior rather
// than failing the surrounding operation.
var ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

// FallbackEmbedder wraps an Embedder with a per-call timeout and positional
// fallback semantics: a batch result always has the same length and order as
// the input, with zero vectors standing in for failed items. Callers rely on
// that positional correspondence to line results up with chunks, so the list
// is never shortened.
type FallbackEmbedder struct {
	inner      Embedder
	timeout    time.Duration
	dimensions int
	logger     *slog.Logger
}

// NewFallbackEmbedder wraps inner with timeout and zero-vector fallback.
// dimensions is the fixed vector length used for fallback vectors.
func NewFallbackEmbedder(inner Embedder, timeout time.Duration, dimensions int) *FallbackEmbedder {
	return &FallbackEmbedder{
		inner:      inner,
		timeout:    timeout,
		dimensions: dimensions,
		logger:     slog.Default().With("component", "fallback-embedder"),
	}
}

// EmbedBatch embeds texts and returns one vector per input, plus the number
// of inputs that fell back to a zero vector. If the batch call fails, each
// text is retried individually so one bad item cannot sink the rest; items
// that still fail are padded with zero vectors. EmbedBatch never returns an
// error: failed == len(texts) is the signal that nothing was embedded.
func (f *FallbackEmbedder) EmbedBatch(ctx context.Context, texts []string) (vectors [][]float32, failed int) {
	if len(texts) == 0 {
		return nil, 0
	}

	batchCtx, cancel := f.withTimeout(ctx)
	embeddings, err := f.inner.EmbedTexts(batchCtx, texts)
	cancel()
	if err == nil && len(embeddings) == len(texts) {
		return embeddings, 0
	}
	if err != nil {
		f.logger.Warn("batch embedding failed, retrying items individually", "count", len(texts), "err", err)
	} else {
		f.logger.Warn("batch embedding returned wrong length, retrying items individually",
			"expected", len(texts), "received", len(embeddings))
	}

	vectors = make([][]float32, len(texts))
	for i, text := range texts {
		itemCtx, cancel := f.withTimeout(ctx)
		vector, err := f.inner.EmbedText(itemCtx, text)
		cancel()
		if err != nil || len(vector) == 0 {
			vectors[i] = make([]float32, f.dimensions)
			failed++
			continue
		}
		vectors[i] = vector
	}

	if failed > 0 {
		f.logger.Warn("embedding batch degraded", "total", len(texts), "failed", failed)
	}
	return vectors, failed
}

// EmbedQuery embeds a single query under the configured timeout. Unlike
// EmbedBatch there is no useful fallback for a query vector, so failures are
// reported as ErrEmbeddingUnavailable.
func (f *FallbackEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	queryCtx, cancel := f.withTimeout(ctx)
	defer cancel()

	vector, err := f.inner.EmbedText(queryCtx, text)
	if err != nil {
		f.logger.Warn("query embedding failed", "err", err)
		return nil, errors.Join(ErrEmbeddingUnavailable, err)
	}
	if len(vector) == 0 {
		return nil, ErrEmbeddingUnavailable
	}
	return vector, nil
}

func (f *FallbackEmbedder) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if f.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, f.timeout)
}

// IsZeroVector reports whether every component of v is zero. Zero vectors
// are fallback placeholders and are never persisted to the vector index.
func IsZeroVector(v []float32) bool {
	for _, f := range v {
		if f != 0 {
			return false
		}
	}
	return true
}
