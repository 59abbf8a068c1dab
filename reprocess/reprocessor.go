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


package reprocess

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/poiesic/docsearch/ai"
	"github.com/poiesic/docsearch/chunker"
	"github.com/poiesic/docsearch/core"
	"github.com/poiesic/docsearch/storage"
)

// Config holds configuration for the reprocessing operation.
type Config struct {
	// TargetWords is the chunk window size applied during re-chunking.
	// Zero selects the chunker default.
	TargetWords int

	// OverlapWords is the window overlap applied during re-chunking.
	// Zero selects the chunker default.
	OverlapWords int

	// BatchSize is the number of documents to process in each batch
	BatchSize int

	// ReportInterval is how often to report progress (number of documents)
	ReportInterval int

	// MaxRetries is the maximum number of retry attempts for failed operations
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		TargetWords:    chunker.DefaultTargetWords,
		OverlapWords:   chunker.DefaultOverlapWords,
		BatchSize:      100,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
	}
}

// Summary reports the outcome of a reprocessing run.
type Summary struct {
	Documents     int
	Failed        int
	ChunksCreated int
}

// Reprocessor orchestrates re-chunking and re-embedding of stored documents.
// It is the path through which new chunking parameters or a new embedding
// model take effect on already ingested content.
type Reprocessor struct {
	documents storage.DocumentRepository
	config    *Config
	progress  io.Writer
	processor *BatchProcessor
	iterator  *DocumentIterator
}

// NewReprocessor creates a new reprocessor.
// progress: where to write progress output (typically os.Stderr)
func NewReprocessor(
	documents storage.DocumentRepository,
	chunks storage.ChunkRepository,
	vectors storage.VectorRepository,
	embedder ai.Embedder,
	model string,
	config *Config,
	progress io.Writer,
) (*Reprocessor, error) {
	if documents == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if vectors == nil {
		return nil, ErrVectorRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if progress == nil {
		progress = io.Discard
	}

	processor := NewBatchProcessor(documents, chunks, vectors, embedder, model,
		config.TargetWords, config.OverlapWords, config.MaxRetries, config.RetryDelay)
	iterator := NewDocumentIterator(documents, config.BatchSize)

	return &Reprocessor{
		documents: documents,
		config:    config,
		progress:  progress,
		processor: processor,
		iterator:  iterator,
	}, nil
}

// ReprocessDocument re-chunks and re-embeds a single document.
// Returns the number of chunks created.
func (r *Reprocessor) ReprocessDocument(ctx context.Context, id core.ID) (int, error) {
	doc, err := r.documents.GetDocument(ctx, id)
	if err != nil {
		return 0, err
	}
	return r.processor.ProcessDocument(ctx, doc)
}

// Run reprocesses every stored document.
// Individual document failures are counted in the summary but do not stop
// the run. Progress is reported to the configured writer.
func (r *Reprocessor) Run(ctx context.Context) (*Summary, error) {
	totalDocuments, err := r.iterator.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}

	if totalDocuments == 0 {
		fmt.Fprintf(r.progress, "No documents found in database (0 documents)\n")
		return &Summary{}, nil
	}

	fmt.Fprintf(r.progress, "Starting reprocessing of %d documents (batch size: %d)\n",
		totalDocuments, r.config.BatchSize)

	// Initialize progress tracker
	tracker := NewProgressTracker(r.progress, totalDocuments, r.config.ReportInterval)
	tracker.Start()

	summary := &Summary{}

	// Process all documents in batches
	err = r.iterator.ForEach(ctx, func(docs []*core.Document) error {
		created, failed, procErr := r.processor.Process(ctx, docs)
		if procErr != nil {
			return procErr
		}

		summary.Documents += len(docs) - failed
		summary.Failed += failed
		summary.ChunksCreated += created

		tracker.Increment(len(docs))
		return nil
	})

	if err != nil {
		return summary, err
	}

	// Finish progress tracking
	tracker.Finish()

	elapsed := tracker.Elapsed()
	fmt.Fprintf(r.progress, "Reprocessing complete. Processed %d documents (%d failed) in %v (%.1f documents/sec)\n",
		summary.Documents, summary.Failed, elapsed.Round(time.Second), float64(totalDocuments)/elapsed.Seconds())

	return summary, nil
}
