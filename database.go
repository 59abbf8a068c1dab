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


package docsearch

import (
	"io"
	"log/slog"

	"github.com/poiesic/docsearch/ai"
	"github.com/poiesic/docsearch/ai/openai"
	"github.com/poiesic/docsearch/ingestion"
	"github.com/poiesic/docsearch/reprocess"
	"github.com/poiesic/docsearch/search"
	"github.com/poiesic/docsearch/storage"
	"github.com/poiesic/docsearch/storage/badger"
)

// Database bundles the storage repositories and the AI provider behind one
// handle and acts as the factory for ingestion, retrieval and reprocessing.
type Database struct {
	backend      *badger.Backend
	documentRepo storage.DocumentRepository
	chunkRepo    storage.ChunkRepository
	vectorRepo   storage.VectorRepository
	provider     ai.Provider
	aiConfig     *ai.Config
	logger       *slog.Logger
}

// DatabaseOption configures a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	aiConfig *ai.Config
	provider ai.Provider
}

// WithAIConfig sets the AI service configuration.
func WithAIConfig(config *ai.Config) DatabaseOption {
	return func(o *databaseOptions) {
		if config != nil {
			o.aiConfig = config
		}
	}
}

// WithProvider injects a pre-built AI provider instead of constructing the
// default OpenAI-compatible one. Used by tests to substitute mocks.
func WithProvider(provider ai.Provider) DatabaseOption {
	return func(o *databaseOptions) {
		o.provider = provider
	}
}

func NewDatabase(filePath string, opts ...DatabaseOption) (*Database, error) {
	// Apply options
	options := &databaseOptions{
		aiConfig: ai.DefaultConfig(), // Default if not provided
	}
	for _, opt := range opts {
		opt(options)
	}
	// Open backend
	backend, err := badger.OpenBackend(filePath, false)
	if err != nil {
		return nil, err
	}
	return newDatabase(backend, options)
}

// NewMemoryDatabase creates a fully in-memory database for testing.
func NewMemoryDatabase(opts ...DatabaseOption) (*Database, error) {
	options := &databaseOptions{
		aiConfig: ai.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(options)
	}
	backend, err := badger.OpenBackend("", true)
	if err != nil {
		return nil, err
	}
	return newDatabase(backend, options)
}

func newDatabase(backend *badger.Backend, options *databaseOptions) (*Database, error) {
	// Create document repository
	documentRepo, err := badger.NewDocumentRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	// Create chunk repository
	chunkRepo, err := badger.NewChunkRepository(backend)
	if err != nil {
		documentRepo.Close()
		backend.Close()
		return nil, err
	}

	// Create vector repository
	vectorRepo, err := badger.NewVectorRepository(backend)
	if err != nil {
		chunkRepo.Close()
		documentRepo.Close()
		backend.Close()
		return nil, err
	}

	// Create AI provider with configured settings unless one was injected
	provider := options.provider
	if provider == nil {
		provider, err = openai.NewProvider(options.aiConfig)
		if err != nil {
			vectorRepo.Close()
			chunkRepo.Close()
			documentRepo.Close()
			backend.Close()
			return nil, err
		}
	}

	return &Database{
		backend:      backend,
		documentRepo: documentRepo,
		chunkRepo:    chunkRepo,
		vectorRepo:   vectorRepo,
		provider:     provider,
		aiConfig:     options.aiConfig,
		logger:       slog.Default(),
	}, nil
}

func (db *Database) Close() error {
	// Close AI provider first
	if err := db.provider.Close(); err != nil {
		db.logger.Error("error closing AI provider", "err", err)
	}

	// Close repositories
	if err := db.vectorRepo.Close(); err != nil {
		db.logger.Error("error closing vector repository", "err", err)
		return err
	}
	if err := db.chunkRepo.Close(); err != nil {
		db.logger.Error("error closing chunk repository", "err", err)
		return err
	}
	if err := db.documentRepo.Close(); err != nil {
		db.logger.Error("error closing document repository", "err", err)
		return err
	}

	// Close backend
	if err := db.backend.Close(); err != nil {
		db.logger.Error("error closing backend storage", "err", err)
		return err
	}
	return nil
}

func (db *Database) DocumentRepository() storage.DocumentRepository {
	return db.documentRepo
}

func (db *Database) ChunkRepository() storage.ChunkRepository {
	return db.chunkRepo
}

func (db *Database) VectorRepository() storage.VectorRepository {
	return db.vectorRepo
}

func (db *Database) NewIngestionPipeline(opts ...ingestion.Option) (*ingestion.Pipeline, error) {
	return ingestion.NewPipeline(db.documentRepo, db.chunkRepo, db.vectorRepo, db.provider, db.aiConfig, opts...)
}

func (db *Database) NewRetriever(opts ...search.Option) (*search.Retriever, error) {
	return search.NewRetriever(db.documentRepo, db.chunkRepo, db.vectorRepo, db.provider, db.aiConfig, opts...)
}

func (db *Database) NewReprocessor(config *reprocess.Config, progress io.Writer) (*reprocess.Reprocessor, error) {
	return reprocess.NewReprocessor(db.documentRepo, db.chunkRepo, db.vectorRepo,
		db.provider.Embedder(), db.aiConfig.EmbeddingModel, config, progress)
}
