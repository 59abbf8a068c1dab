package badger

import (
	"context"
	"math"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docsearch/core"
	"github.com/poiesic/docsearch/storage"
)

// VectorRepository implements storage.VectorRepository for BadgerDB.
type VectorRepository struct {
	backend *Backend
}

var _ storage.VectorRepository = (*VectorRepository)(nil)

// NewVectorRepository creates a new VectorRepository.
func NewVectorRepository(backend *Backend) (*VectorRepository, error) {
	return &VectorRepository{
		backend: backend,
	}, nil
}

// Close releases resources. VectorRepository has no resources to release.
func (r *VectorRepository) Close() error {
	return nil
}

// UpsertEmbeddings stores or replaces embeddings keyed by document, chunk
// and model. Zero vectors are rejected.
func (r *VectorRepository) UpsertEmbeddings(ctx context.Context, embeddings ...*core.Embedding) error {
	for _, embedding := range embeddings {
		if len(embedding.Vector) == 0 || isZero(embedding.Vector) {
			return storage.ErrInvalidQuery
		}
	}

	return r.backend.WithTx(func(tx *badger.Txn) error {
		for _, embedding := range embeddings {
			key := makeEmbeddingKey(embedding.DocumentId, embedding.ChunkId, embedding.Model)
			if err := tx.Set(key, storage.MarshalEmbedding(embedding)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// FindSimilar finds chunks whose embeddings are similar to the query vector.
// The access predicate is applied while scanning, before any limit, so a
// restricted corpus never starves the caller of reachable results.
func (r *VectorRepository) FindSimilar(ctx context.Context, vector []float32, model string, allowed func(core.ID) bool, limit int) ([]*core.ChunkMatch, error) {
	if len(vector) == 0 || limit <= 0 {
		return nil, storage.ErrInvalidQuery
	}

	var results []*core.ChunkMatch

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(embeddingPrefix + ":")
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			var embedding *core.Embedding
			err := iter.Item().Value(func(val []byte) error {
				var err error
				embedding, err = storage.UnmarshalEmbedding(val)
				return err
			})
			if err != nil {
				return err
			}
			if embedding == nil || embedding.Model != model {
				continue
			}
			if len(embedding.Vector) == 0 {
				continue
			}
			if allowed != nil && !allowed(embedding.DocumentId) {
				continue
			}

			score := cosineSimilarity(vector, embedding.Vector)
			results = append(results, &core.ChunkMatch{
				ChunkId:    embedding.ChunkId,
				DocumentId: embedding.DocumentId,
				Score:      score,
				Seq:        embedding.Seq,
			})
		}
		return nil
	}, false)

	if err != nil {
		return nil, err
	}

	// Sort by similarity descending, ties by insertion order
	slices.SortFunc(results, func(a, b *core.ChunkMatch) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		if a.Seq < b.Seq {
			return -1
		}
		if a.Seq > b.Seq {
			return 1
		}
		return 0
	})

	if len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}

// DeleteByDocument removes all embeddings belonging to a document.
func (r *VectorRepository) DeleteByDocument(ctx context.Context, documentID core.ID) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		if err := deleteDocumentEmbeddings(tx, documentID); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// Helper methods

// deleteDocumentEmbeddings removes all embedding records of a document
// within the given transaction.
func deleteDocumentEmbeddings(tx *badger.Txn, documentID core.ID) error {
	startKey := makePartialEmbeddingKey(documentID)

	// Collect first; mutating while iterating invalidates the iterator.
	var keys [][]byte

	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	iter := tx.NewIterator(opts)
	for iter.Seek(startKey); iter.Valid(); iter.Next() {
		key := iter.Item().Key()
		if len(key) < len(startKey) || slices.Compare(key[:len(startKey)], startKey) != 0 {
			break
		}
		keys = append(keys, iter.Item().KeyCopy(nil))
	}
	iter.Close()

	for _, key := range keys {
		if err := tx.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

// cosineSimilarity computes cosine similarity clamped to [0, 1].
// Mismatched dimensions score against the shared prefix; a zero norm
// on either side scores 0.
func cosineSimilarity(a, b []float32) float64 {
	minLen := len(a)
	if len(b) < minLen {
		minLen = len(b)
	}

	var dot, normA, normB float64
	for i := 0; i < minLen; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	score := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// isZero reports whether every component of the vector is zero.
func isZero(vector []float32) bool {
	for _, v := range vector {
		if v != 0 {
			return false
		}
	}
	return true
}
