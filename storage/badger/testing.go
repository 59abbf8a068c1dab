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


package badger

import "github.com/poiesic/docsearch/storage"

// NewRepositories creates document, chunk and vector repositories backed by
// a shared BadgerDB instance at the given path.
// Caller must close all repos and the backend when done.
func NewRepositories(path string) (storage.DocumentRepository, storage.ChunkRepository, storage.VectorRepository, *Backend, error) {
	return newRepositories(path, false)
}

// NewMemoryRepositories creates in-memory document, chunk and vector
// repositories for testing.
// Caller must close all repos and the backend when done.
func NewMemoryRepositories() (storage.DocumentRepository, storage.ChunkRepository, storage.VectorRepository, *Backend, error) {
	return newRepositories("", true)
}

func newRepositories(path string, inMemory bool) (storage.DocumentRepository, storage.ChunkRepository, storage.VectorRepository, *Backend, error) {
	backend, err := OpenBackend(path, inMemory)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	docs, err := NewDocumentRepository(backend)
	if err != nil {
		backend.Close()
		return nil, nil, nil, nil, err
	}

	chunks, err := NewChunkRepository(backend)
	if err != nil {
		docs.Close()
		backend.Close()
		return nil, nil, nil, nil, err
	}

	vectors, err := NewVectorRepository(backend)
	if err != nil {
		chunks.Close()
		docs.Close()
		backend.Close()
		return nil, nil, nil, nil, err
	}

	return docs, chunks, vectors, backend, nil
}
