package storage

import (
	"context"

	"github.com/poiesic/docsearch/core"
)

// Repository provides common storage operations shared across all repositories.
// Implementations must be thread-safe and support concurrent access.
type Repository interface {
	// Close closes the storage backend and releases resources.
	Close() error
}

// DocumentRepository provides operations for managing documents.
type DocumentRepository interface {
	Repository
	// AddDocument adds a document to storage.
	// For documents with Id=0, generates a new ID from sequence.
	// Computes and indexes the content hash of RawText.
	// If a document with the same content hash already exists, no new
	// document is created; the existing document is returned together
	// with ErrDuplicateContent. Concurrent inserts of identical content
	// converge on a single stored document.
	// Sets InsertedAt timestamp if not already set.
	AddDocument(ctx context.Context, doc *core.Document) (*core.Document, error)

	// UpdateDocument updates an existing document in place.
	// Updates the UpdatedAt timestamp automatically.
	// Returns ErrNotFound if the document doesn't exist.
	UpdateDocument(ctx context.Context, doc *core.Document) (*core.Document, error)

	// GetDocument retrieves a single document by ID.
	// Returns ErrNotFound if the document doesn't exist.
	GetDocument(ctx context.Context, id core.ID) (*core.Document, error)

	// FindByContentHash finds a document by its content hash.
	// Returns ErrNotFound if no matching document exists.
	FindByContentHash(ctx context.Context, hash string) (*core.Document, error)

	// SetStatus updates only the status of a document.
	// Returns ErrNotFound if the document doesn't exist.
	SetStatus(ctx context.Context, id core.ID, status core.DocumentStatus) error

	// DeleteDocument removes a document along with its chunks, embeddings
	// and the content hash index entry, all in one transaction.
	// Returns ErrNotFound if the document doesn't exist.
	DeleteDocument(ctx context.Context, id core.ID) error

	// ForEachDocument iterates over all stored documents in key order.
	// Iteration stops when fn returns false or an error.
	ForEachDocument(ctx context.Context, fn func(doc *core.Document) (bool, error)) error
}

// ChunkRepository provides operations for managing document chunks.
type ChunkRepository interface {
	Repository
	// AddChunks adds one or more chunks to storage.
	// Assigns each chunk a content-based ID and a global insertion
	// sequence number used for deterministic tie-breaking.
	// Sets InsertedAt timestamp if not already set.
	AddChunks(ctx context.Context, chunks ...*core.Chunk) ([]*core.Chunk, error)

	// ReplaceChunks atomically replaces all chunks of a document.
	// Existing chunks and their embeddings are removed and the new
	// chunks are written in the same transaction, so readers never
	// observe a mix of old and new chunks.
	ReplaceChunks(ctx context.Context, documentID core.ID, chunks ...*core.Chunk) ([]*core.Chunk, error)

	// GetChunk retrieves a single chunk by ID.
	// Returns ErrNotFound if the chunk doesn't exist.
	GetChunk(ctx context.Context, id core.ID) (*core.Chunk, error)

	// GetDocumentChunks retrieves all chunks of a document, ordered by index.
	GetDocumentChunks(ctx context.Context, documentID core.ID) ([]*core.Chunk, error)

	// CountDocumentChunks returns the number of chunks stored for a document.
	CountDocumentChunks(ctx context.Context, documentID core.ID) (int, error)

	// ForEachChunk iterates over all stored chunks in key order.
	// Iteration stops when fn returns false or an error.
	ForEachChunk(ctx context.Context, fn func(chunk *core.Chunk) (bool, error)) error
}

// VectorRepository provides operations for managing chunk embeddings and
// running vector similarity search.
type VectorRepository interface {
	Repository
	// UpsertEmbeddings stores or replaces embeddings keyed by chunk and model.
	// Zero vectors must be rejected by callers; implementations may also
	// refuse them to protect search quality.
	UpsertEmbeddings(ctx context.Context, embeddings ...*core.Embedding) error

	// FindSimilar finds chunks whose embeddings are similar to the query vector.
	// Only embeddings produced by the given model are considered, and only
	// chunks whose document passes the allowed predicate are scored.
	// Results are ordered by similarity (highest first), ties broken by
	// the chunk insertion sequence. Returns up to limit results.
	FindSimilar(ctx context.Context, vector []float32, model string, allowed func(core.ID) bool, limit int) ([]*core.ChunkMatch, error)

	// DeleteByDocument removes all embeddings belonging to a document.
	DeleteByDocument(ctx context.Context, documentID core.ID) error
}
