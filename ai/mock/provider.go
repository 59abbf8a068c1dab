package mock

import "github.com/poiesic/docsearch/ai"

// MockProvider is a test double for ai.Provider wrapping a MockEmbedder.
type MockProvider struct {
	embedder *MockEmbedder
}

var _ ai.Provider = (*MockProvider)(nil)

// NewMockProvider creates a provider backed by a default MockEmbedder.
func NewMockProvider() *MockProvider {
	return &MockProvider{embedder: NewMockEmbedder()}
}

// NewMockProviderWith creates a provider backed by the given embedder.
func NewMockProviderWith(embedder *MockEmbedder) *MockProvider {
	return &MockProvider{embedder: embedder}
}

// Embedder returns the underlying embedder as ai.Embedder.
func (p *MockProvider) Embedder() ai.Embedder {
	return p.embedder
}

// MockEmbedder returns the concrete embedder for test assertions.
func (p *MockProvider) MockEmbedder() *MockEmbedder {
	return p.embedder
}

// Close is a no-op.
func (p *MockProvider) Close() error {
	return nil
}
