// Package ingestion provides pipeline orchestration for adding documents.
//
// The Pipeline type manages the ingestion workflow for documents, including:
//   - Content hash deduplication (identical content is stored once)
//   - Splitting documents into overlapping word windows
//   - Generating and storing chunk embeddings asynchronously
//
// Embedding is performed concurrently using a worker pool. Errors during
// async embedding are logged and reflected in the document status but do
// not fail the ingestion operation.
package ingestion
