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

	"github.com/poiesic/docsearch/core"
	"github.com/poiesic/docsearch/storage"
)

const (
	// DefaultBatchSize is the default number of documents to process in each batch
	DefaultBatchSize = 100
)

// DocumentIterator iterates over all documents in batches.
type DocumentIterator struct {
	repo      storage.DocumentRepository
	batchSize int
}

// NewDocumentIterator creates a new document iterator.
// batchSize: number of documents to hand to fn in each batch (must be > 0)
func NewDocumentIterator(repo storage.DocumentRepository, batchSize int) *DocumentIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &DocumentIterator{
		repo:      repo,
		batchSize: batchSize,
	}
}

// Count returns the number of stored documents.
func (it *DocumentIterator) Count(ctx context.Context) (int, error) {
	count := 0
	err := it.repo.ForEachDocument(ctx, func(*core.Document) (bool, error) {
		count++
		return true, nil
	})
	return count, err
}

// ForEach iterates over all documents, calling fn for each batch.
// Iteration stops on first error from fn or when all documents are processed.
// Context cancellation is checked between batches.
func (it *DocumentIterator) ForEach(ctx context.Context, fn func([]*core.Document) error) error {
	batch := make([]*core.Document, 0, it.batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := fn(batch); err != nil {
			return err
		}
		batch = batch[:0]

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			return nil
		}
	}

	err := it.repo.ForEachDocument(ctx, func(doc *core.Document) (bool, error) {
		batch = append(batch, doc)
		if len(batch) >= it.batchSize {
			if err := flush(); err != nil {
				return false, err
			}
		}
		return true, nil
	})
	if err != nil {
		return err
	}

	return flush()
}
