package badger

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docsearch/core"
	"github.com/poiesic/docsearch/storage"
)

// DocumentRepository implements storage.DocumentRepository for BadgerDB.
type DocumentRepository struct {
	backend *Backend
	idSeq   *badger.Sequence
}

var _ storage.DocumentRepository = (*DocumentRepository)(nil)

// NewDocumentRepository creates a new DocumentRepository.
func NewDocumentRepository(backend *Backend) (*DocumentRepository, error) {
	idSeq, err := backend.GetSequence(documentIDSeq)
	if err != nil {
		return nil, err
	}

	return &DocumentRepository{
		backend: backend,
		idSeq:   idSeq,
	}, nil
}

// Close releases the ID sequence.
func (r *DocumentRepository) Close() error {
	return r.idSeq.Release()
}

// AddDocument adds a document to storage with content hash deduplication.
// The hash index lookup and the insert happen in the same transaction, so
// two concurrent inserts of identical content conflict at commit time and
// the loser observes the winner's document on retry.
func (r *DocumentRepository) AddDocument(ctx context.Context, doc *core.Document) (*core.Document, error) {
	if doc.ContentHash == "" {
		doc.ContentHash = core.ContentHash([]byte(doc.RawText))
	}
	if err := core.ValidateDocument(doc); err != nil {
		return nil, err
	}

	for {
		existing, err := r.tryAddDocument(doc)
		if err == nil {
			if existing != nil {
				return existing, storage.ErrDuplicateContent
			}
			return doc, nil
		}
		if !errors.Is(err, badger.ErrConflict) {
			return nil, err
		}
		// Lost the race against a concurrent insert of the same content.
		// Re-run; the hash index check will now see the winner.
	}
}

// tryAddDocument performs one dedup-checked insert attempt.
// Returns (existing, nil) when a document with the same hash is already
// stored, (nil, nil) on successful insert.
func (r *DocumentRepository) tryAddDocument(doc *core.Document) (*core.Document, error) {
	var existing *core.Document
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		hashKey := makeDocumentHashKey(doc.ContentHash)
		item, err := tx.Get(hashKey)
		if err == nil {
			var existingID core.ID
			if err := item.Value(func(val []byte) error {
				var idErr error
				existingID, idErr = storage.UnmarshalID(val)
				return idErr
			}); err != nil {
				return err
			}
			existing, err = r.readDocument(tx, makeDocumentKey(existingID))
			if err != nil {
				return err
			}
			if existing == nil {
				return storage.ErrNotFound
			}
			return nil
		}
		if err != badger.ErrKeyNotFound {
			return err
		}

		if doc.Id == 0 {
			nextID, err := r.idSeq.Next()
			if err != nil {
				return err
			}
			// BadgerDB sequences can return 0 on first call, so we skip it
			if nextID == 0 {
				nextID, err = r.idSeq.Next()
				if err != nil {
					return err
				}
			}
			doc.Id = core.ID(nextID)
		}

		if doc.Status == 0 {
			doc.Status = core.StatusPending
		}
		if doc.InsertedAt.IsZero() {
			doc.InsertedAt = time.Now().UTC()
		}
		doc.UpdatedAt = doc.InsertedAt

		if err := tx.Set(makeDocumentKey(doc.Id), storage.MarshalDocument(doc)); err != nil {
			return err
		}
		if err := tx.Set(hashKey, storage.MarshalID(doc.Id)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)

	return existing, err
}

// UpdateDocument updates an existing document.
func (r *DocumentRepository) UpdateDocument(ctx context.Context, doc *core.Document) (*core.Document, error) {
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeDocumentKey(doc.Id)

		old, err := r.readDocument(tx, key)
		if err != nil {
			return err
		}
		if old == nil {
			return storage.ErrNotFound
		}

		doc.UpdatedAt = time.Now().UTC()

		if err := tx.Set(key, storage.MarshalDocument(doc)); err != nil {
			return err
		}

		// Update hash index if content changed
		if old.ContentHash != doc.ContentHash {
			if err := tx.Delete(makeDocumentHashKey(old.ContentHash)); err != nil {
				return err
			}
			if err := tx.Set(makeDocumentHashKey(doc.ContentHash), storage.MarshalID(doc.Id)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)

	return doc, err
}

// GetDocument retrieves a single document by ID.
func (r *DocumentRepository) GetDocument(ctx context.Context, id core.ID) (*core.Document, error) {
	var result *core.Document
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = r.readDocument(tx, makeDocumentKey(id))
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

// FindByContentHash finds a document by its content hash.
func (r *DocumentRepository) FindByContentHash(ctx context.Context, hash string) (*core.Document, error) {
	var result *core.Document
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeDocumentHashKey(hash))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return storage.ErrNotFound
			}
			return err
		}

		var id core.ID
		if err := item.Value(func(val []byte) error {
			var idErr error
			id, idErr = storage.UnmarshalID(val)
			return idErr
		}); err != nil {
			return err
		}

		result, err = r.readDocument(tx, makeDocumentKey(id))
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

// SetStatus updates only the status of a document.
func (r *DocumentRepository) SetStatus(ctx context.Context, id core.ID, status core.DocumentStatus) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeDocumentKey(id)
		doc, err := r.readDocument(tx, key)
		if err != nil {
			return err
		}
		if doc == nil {
			return storage.ErrNotFound
		}

		doc.Status = status
		doc.UpdatedAt = time.Now().UTC()

		if err := tx.Set(key, storage.MarshalDocument(doc)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// DeleteDocument removes a document, its hash index entry, its chunks and
// their index entries, and its embeddings in one transaction.
func (r *DocumentRepository) DeleteDocument(ctx context.Context, id core.ID) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeDocumentKey(id)
		doc, err := r.readDocument(tx, key)
		if err != nil {
			return err
		}
		if doc == nil {
			return storage.ErrNotFound
		}

		if err := tx.Delete(makeDocumentHashKey(doc.ContentHash)); err != nil {
			return err
		}

		if err := deleteDocumentChunks(tx, id); err != nil {
			return err
		}
		if err := deleteDocumentEmbeddings(tx, id); err != nil {
			return err
		}

		if err := tx.Delete(key); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// ForEachDocument iterates over all stored documents.
func (r *DocumentRepository) ForEachDocument(ctx context.Context, fn func(doc *core.Document) (bool, error)) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(documentRecordPrefix + ":")
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			var doc *core.Document
			err := iter.Item().Value(func(val []byte) error {
				var err error
				doc, err = storage.UnmarshalDocument(val)
				return err
			})
			if err != nil {
				return err
			}
			if doc == nil {
				continue
			}

			keepGoing, err := fn(doc)
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

// readDocument reads a document from the transaction.
func (r *DocumentRepository) readDocument(tx *badger.Txn, key []byte) (*core.Document, error) {
	item, err := tx.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	var doc *core.Document
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		doc, unmarshalErr = storage.UnmarshalDocument(val)
		return unmarshalErr
	})
	return doc, err
}
