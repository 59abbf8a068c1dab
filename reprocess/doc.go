// Package reprocess provides functionality for re-chunking and re-embedding
// stored documents after chunking parameters or the embedding model change.
//
// This package supports batch processing of documents, progress tracking,
// retry logic with exponential backoff, and vector normalization to ensure
// compatibility with cosine similarity search. Chunk replacement is atomic
// per document, so retrieval never observes a half-reprocessed chunk set.
package reprocess
