package ingestion

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/docsearch/ai"
	"github.com/poiesic/docsearch/chunker"
	"github.com/poiesic/docsearch/core"
	"github.com/poiesic/docsearch/storage"
)

// Pipeline orchestrates document ingestion: deduplication, chunking and
// asynchronous embedding generation.
type Pipeline struct {
	documents     storage.DocumentRepository
	chunks        storage.ChunkRepository
	vectors       storage.VectorRepository
	embedPool     *ants.Pool
	embeddingProc *embeddingProcessor
	targetWords   int
	overlapWords  int
	wg            sync.WaitGroup
	logger        *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the worker pool size for concurrent embedding.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}

		if p.embedPool != nil {
			p.embedPool.Release()
		}

		embedPool, err := ants.NewPool(size)
		if err != nil {
			return err
		}

		p.embedPool = embedPool
		return nil
	}
}

// WithChunking overrides the window geometry used to split documents.
// Out-of-range values fall back to the chunker defaults.
func WithChunking(targetWords, overlapWords int) Option {
	return func(p *Pipeline) error {
		p.targetWords = targetWords
		p.overlapWords = overlapWords
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(
	documents storage.DocumentRepository,
	chunks storage.ChunkRepository,
	vectors storage.VectorRepository,
	provider ai.Provider,
	config *ai.Config,
	opts ...Option,
) (*Pipeline, error) {
	if documents == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if vectors == nil {
		return nil, ErrVectorRepositoryRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}
	if config == nil {
		config = ai.DefaultConfig()
	}

	// Default logger
	logger := slog.Default()

	// Default pool size
	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}

	embedPool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	// Create pipeline with defaults
	p := &Pipeline{
		documents:    documents,
		chunks:       chunks,
		vectors:      vectors,
		embedPool:    embedPool,
		targetWords:  chunker.DefaultTargetWords,
		overlapWords: chunker.DefaultOverlapWords,
		logger:       logger,
	}

	// Apply options (may override defaults)
	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}

	fallback := ai.NewFallbackEmbedder(provider.Embedder(), config.Timeout, config.Dimensions)
	embeddingProc, err := newEmbeddingProcessor(documents, vectors, fallback, config.EmbeddingModel, p.logger)
	if err != nil {
		p.Release()
		return nil, err
	}
	p.embeddingProc = embeddingProc

	return p, nil
}

// IngestOptions holds optional parameters for ingestion.
type IngestOptions struct {
	Title              string   // Optional display title
	Language           string   // Optional ISO language tag
	AllowedDepartments []string // Extra departments granted read access
}

// IngestResult reports the outcome of an ingestion.
type IngestResult struct {
	DocumentId core.ID
	Duplicate  bool
	ChunkCount int
}

// Ingest stores a document, splits it into chunks and schedules embedding
// generation. If a document with identical content already exists, no new
// document or chunks are created and the existing document's ID is returned
// with Duplicate set.
// Errors during async embedding are logged but do not fail the ingestion;
// they surface through the document status instead.
func (p *Pipeline) Ingest(ctx context.Context, department string, visibility core.Visibility, text string, opts *IngestOptions) (*IngestResult, error) {
	if opts == nil {
		opts = &IngestOptions{}
	}

	if !chunker.HasWords(text) {
		return nil, ErrEmptyText
	}

	doc := &core.Document{
		Title:              opts.Title,
		Department:         department,
		Visibility:         visibility,
		AllowedDepartments: opts.AllowedDepartments,
		RawText:            text,
		Language:           opts.Language,
	}

	added, err := p.documents.AddDocument(ctx, doc)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateContent) {
			count, countErr := p.chunks.CountDocumentChunks(ctx, added.Id)
			if countErr != nil {
				count = 0
			}
			p.logger.Info("skipping duplicate document", "document", added.Id, "hash", added.ContentHash)
			return &IngestResult{DocumentId: added.Id, Duplicate: true, ChunkCount: count}, nil
		}
		return nil, err
	}

	// Duplicates never reach this point, so known content is not re-chunked.
	records := chunker.Chunk(text, p.targetWords, p.overlapWords)
	chunks := make([]*core.Chunk, len(records))
	for i, record := range records {
		chunks[i] = &core.Chunk{
			DocumentId: added.Id,
			Index:      i,
			Text:       record.Text,
			WordCount:  record.WordCount,
		}
	}

	stored, err := p.chunks.AddChunks(ctx, chunks...)
	if err != nil {
		return nil, err
	}
	if err := p.documents.SetStatus(ctx, added.Id, core.StatusIndexed); err != nil {
		return nil, err
	}

	// Submit for async embedding
	p.wg.Add(1)
	submitErr := p.embedPool.Submit(func() {
		defer p.wg.Done()
		if err := p.embeddingProc.process(context.Background(), added.Id, stored); err != nil {
			p.logger.Error("error processing embeddings", "document", added.Id, "err", err)
		}
	})
	if submitErr != nil {
		p.wg.Done()
		p.logger.Error("error scheduling embedding job", "document", added.Id, "err", submitErr)
	}

	return &IngestResult{DocumentId: added.Id, Duplicate: false, ChunkCount: len(stored)}, nil
}

// Wait blocks until all scheduled embedding jobs have finished.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// Release releases resources including the worker pool.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.embedPool != nil {
		p.embedPool.Release()
	}
}
