package badger

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docsearch/core"
	"github.com/poiesic/docsearch/storage"
)

// ChunkRepository implements storage.ChunkRepository for BadgerDB.
type ChunkRepository struct {
	backend *Backend
	seq     *badger.Sequence
}

var _ storage.ChunkRepository = (*ChunkRepository)(nil)

// NewChunkRepository creates a new ChunkRepository.
func NewChunkRepository(backend *Backend) (*ChunkRepository, error) {
	seq, err := backend.GetSequence(chunkSeq)
	if err != nil {
		return nil, err
	}

	return &ChunkRepository{
		backend: backend,
		seq:     seq,
	}, nil
}

// Close releases the insertion sequence.
func (r *ChunkRepository) Close() error {
	return r.seq.Release()
}

// chunkContentID derives a content-based chunk ID from its position tuple
// and text. Reprocessing with identical content yields identical IDs.
func chunkContentID(chunk *core.Chunk) core.ID {
	return core.IDFromContent(fmt.Sprintf("(%d,%d,%s)", chunk.DocumentId, chunk.Index, chunk.Text))
}

// AddChunks adds one or more chunks to storage.
func (r *ChunkRepository) AddChunks(ctx context.Context, chunks ...*core.Chunk) ([]*core.Chunk, error) {
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		if err := r.writeChunks(tx, chunks); err != nil {
			return err
		}
		return tx.Commit()
	}, true)

	return chunks, err
}

// ReplaceChunks atomically replaces all chunks of a document.
// The delete of the old chunks, their index entries and embeddings and
// the write of the new chunks share one transaction, so concurrent
// readers see either the old set or the new set, never a mix.
func (r *ChunkRepository) ReplaceChunks(ctx context.Context, documentID core.ID, chunks ...*core.Chunk) ([]*core.Chunk, error) {
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		if err := deleteDocumentChunks(tx, documentID); err != nil {
			return err
		}
		if err := deleteDocumentEmbeddings(tx, documentID); err != nil {
			return err
		}
		if err := r.writeChunks(tx, chunks); err != nil {
			return err
		}
		return tx.Commit()
	}, true)

	return chunks, err
}

// GetChunk retrieves a single chunk by ID.
func (r *ChunkRepository) GetChunk(ctx context.Context, id core.ID) (*core.Chunk, error) {
	var result *core.Chunk
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readChunk(tx, makeChunkKey(id))
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// GetDocumentChunks retrieves all chunks of a document, ordered by index.
func (r *ChunkRepository) GetDocumentChunks(ctx context.Context, documentID core.ID) ([]*core.Chunk, error) {
	var results []*core.Chunk
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		startKey := makePartialChunkDocKey(documentID)
		iter := tx.NewIterator(badger.DefaultIteratorOptions)
		defer iter.Close()

		for iter.Seek(startKey); iter.Valid(); iter.Next() {
			key := iter.Item().Key()
			if len(key) < len(startKey) || slices.Compare(key[:len(startKey)], startKey) != 0 {
				break
			}

			// Read the chunk ID from the index
			var chunkID core.ID
			if err := iter.Item().Value(func(val []byte) error {
				var err error
				chunkID, err = storage.UnmarshalID(val)
				return err
			}); err != nil {
				return err
			}

			// Look up the full chunk
			chunk, err := readChunk(tx, makeChunkKey(chunkID))
			if err != nil {
				return err
			}
			if chunk != nil {
				results = append(results, chunk)
			}
		}
		return nil
	}, false)

	return results, err
}

// CountDocumentChunks returns the number of chunks stored for a document.
func (r *ChunkRepository) CountDocumentChunks(ctx context.Context, documentID core.ID) (int, error) {
	count := 0
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		startKey := makePartialChunkDocKey(documentID)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Seek(startKey); iter.Valid(); iter.Next() {
			key := iter.Item().Key()
			if len(key) < len(startKey) || slices.Compare(key[:len(startKey)], startKey) != 0 {
				break
			}
			count++
		}
		return nil
	}, false)

	return count, err
}

// ForEachChunk iterates over all stored chunks.
func (r *ChunkRepository) ForEachChunk(ctx context.Context, fn func(chunk *core.Chunk) (bool, error)) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(chunkRecordPrefix + ":")
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			var chunk *core.Chunk
			err := iter.Item().Value(func(val []byte) error {
				var err error
				chunk, err = storage.UnmarshalChunk(val)
				return err
			})
			if err != nil {
				return err
			}
			if chunk == nil {
				continue
			}

			keepGoing, err := fn(chunk)
			if err != nil {
				return err
			}
			if !keepGoing {
				return nil
			}
		}
		return nil
	}, false)
}

// Helper methods

// writeChunks assigns IDs, sequence numbers and timestamps and writes the
// chunks plus their per-document index entries into the transaction.
func (r *ChunkRepository) writeChunks(tx *badger.Txn, chunks []*core.Chunk) error {
	for _, chunk := range chunks {
		if err := core.ValidateChunk(chunk); err != nil {
			return err
		}

		if chunk.Id == 0 {
			chunk.Id = chunkContentID(chunk)
		}
		if chunk.Seq == 0 {
			next, err := r.seq.Next()
			if err != nil {
				return err
			}
			if next == 0 {
				next, err = r.seq.Next()
				if err != nil {
					return err
				}
			}
			chunk.Seq = next
		}
		if chunk.InsertedAt.IsZero() {
			chunk.InsertedAt = time.Now().UTC()
		}

		if err := tx.Set(makeChunkKey(chunk.Id), storage.MarshalChunk(chunk)); err != nil {
			return err
		}
		if err := tx.Set(makeChunkDocKey(chunk.DocumentId, chunk.Index), storage.MarshalID(chunk.Id)); err != nil {
			return err
		}
	}
	return nil
}

// readChunk reads a chunk from the transaction.
func readChunk(tx *badger.Txn, key []byte) (*core.Chunk, error) {
	item, err := tx.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	var chunk *core.Chunk
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		chunk, unmarshalErr = storage.UnmarshalChunk(val)
		return unmarshalErr
	})
	return chunk, err
}

// deleteDocumentChunks removes all chunks of a document and their index
// entries within the given transaction.
func deleteDocumentChunks(tx *badger.Txn, documentID core.ID) error {
	startKey := makePartialChunkDocKey(documentID)

	// Collect first; mutating while iterating invalidates the iterator.
	var indexKeys [][]byte
	var chunkIDs []core.ID

	iter := tx.NewIterator(badger.DefaultIteratorOptions)
	for iter.Seek(startKey); iter.Valid(); iter.Next() {
		key := iter.Item().Key()
		if len(key) < len(startKey) || slices.Compare(key[:len(startKey)], startKey) != 0 {
			break
		}
		indexKeys = append(indexKeys, iter.Item().KeyCopy(nil))

		var chunkID core.ID
		if err := iter.Item().Value(func(val []byte) error {
			var err error
			chunkID, err = storage.UnmarshalID(val)
			return err
		}); err != nil {
			iter.Close()
			return err
		}
		chunkIDs = append(chunkIDs, chunkID)
	}
	iter.Close()

	for _, key := range indexKeys {
		if err := tx.Delete(key); err != nil {
			return err
		}
	}
	for _, id := range chunkIDs {
		if err := tx.Delete(makeChunkKey(id)); err != nil {
			return err
		}
	}
	return nil
}
