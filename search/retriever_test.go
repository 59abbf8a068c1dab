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

package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/docsearch/ai"
	"github.com/poiesic/docsearch/ai/mock"
	"github.com/poiesic/docsearch/core"
	"github.com/poiesic/docsearch/ingestion"
	"github.com/poiesic/docsearch/storage"
	"github.com/poiesic/docsearch/storage/badger"
)

const testDimensions = 16

func testConfig() *ai.Config {
	return ai.NewConfig(
		ai.WithDimensions(testDimensions),
		ai.WithTimeout(time.Second),
	)
}

type retrievalFixture struct {
	retriever *Retriever
	embedder  *mock.MockEmbedder
	docs      storage.DocumentRepository
	chunks    storage.ChunkRepository
	vectors   storage.VectorRepository
}

func setupRetriever(t *testing.T, opts ...Option) *retrievalFixture {
	t.Helper()

	docs, chunks, vectors, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() {
		vectors.Close()
		chunks.Close()
		docs.Close()
		backend.Close()
	})

	embedder := mock.NewMockEmbedder()
	embedder.Dimensions = testDimensions
	provider := mock.NewMockProviderWith(embedder)

	retriever, err := NewRetriever(docs, chunks, vectors, provider, testConfig(), opts...)
	require.NoError(t, err)

	return &retrievalFixture{
		retriever: retriever,
		embedder:  embedder,
		docs:      docs,
		chunks:    chunks,
		vectors:   vectors,
	}
}

// addDocument stores a document with one chunk per text and an embedding
// derived from the mock's deterministic vectors, so semantic queries for the
// exact chunk text score 1.0.
func (f *retrievalFixture) addDocument(t *testing.T, title, department string, visibility core.Visibility, allowed []string, texts ...string) *core.Document {
	t.Helper()
	ctx := context.Background()

	doc, err := f.docs.AddDocument(ctx, &core.Document{
		Title:              title,
		Department:         department,
		Visibility:         visibility,
		AllowedDepartments: allowed,
		RawText:            strings.Join(texts, " "),
	})
	require.NoError(t, err)

	chunks := make([]*core.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = &core.Chunk{DocumentId: doc.Id, Index: i, Text: text, WordCount: len(strings.Fields(text))}
	}
	stored, err := f.chunks.AddChunks(ctx, chunks...)
	require.NoError(t, err)

	for _, chunk := range stored {
		vector, err := f.embedder.EmbedText(ctx, chunk.Text)
		require.NoError(t, err)
		err = f.vectors.UpsertEmbeddings(ctx, &core.Embedding{
			ChunkId:    chunk.Id,
			DocumentId: doc.Id,
			Model:      testConfig().EmbeddingModel,
			Seq:        chunk.Seq,
			Vector:     vector,
		})
		require.NoError(t, err)
	}

	require.NoError(t, f.docs.SetStatus(ctx, doc.Id, core.StatusEmbedded))
	return doc
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		input   string
		want    Mode
		wantErr bool
	}{
		{"", ModeHybrid, false},
		{"hybrid", ModeHybrid, false},
		{"semantic", ModeSemantic, false},
		{"lexical", ModeLexical, false},
		{"blend", ModeBlend, false},
		{" Hybrid ", ModeHybrid, false},
		{"vector", ModeSemantic, false},
		{"keyword", ModeLexical, false},
		{"Keyword", ModeLexical, false},
		{"fuzzy", "", true},
	}

	for _, tt := range tests {
		mode, err := ParseMode(tt.input)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrUnknownMode, tt.input)
			continue
		}
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.want, mode, tt.input)
	}
}

func TestRetrieve_Validation(t *testing.T) {
	f := setupRetriever(t)
	ctx := context.Background()
	requester := &core.Requester{Department: "Vertrieb"}

	tests := []struct {
		name      string
		requester *core.Requester
		req       Request
		wantErr   error
	}{
		{"nil requester", nil, Request{Query: "hallo", Limit: 5}, ErrRequesterRequired},
		{"unknown mode", requester, Request{Query: "hallo", Mode: "fuzzy", Limit: 5}, ErrUnknownMode},
		{"zero limit", requester, Request{Query: "hallo"}, ErrInvalidLimit},
		{"negative limit", requester, Request{Query: "hallo", Limit: -1}, ErrInvalidLimit},
		{"negative offset", requester, Request{Query: "hallo", Limit: 5, Offset: -1}, ErrInvalidOffset},
		{"empty query", requester, Request{Query: "   ", Limit: 5}, ErrEmptyQuery},
		{"punctuation-only query", requester, Request{Query: "?! ...", Limit: 5}, ErrEmptyQuery},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.retriever.Retrieve(ctx, tt.requester, tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRetrieve_LexicalMode(t *testing.T) {
	f := setupRetriever(t)
	ctx := context.Background()

	f.addDocument(t, "Handbuch", "Support", core.VisibilityAll, nil,
		"hallo welt dies ist der anfang",
		"hallo allein genuegt nicht ganz",
		"voellig anderes thema ohne treffer",
	)

	results, err := f.retriever.Retrieve(ctx, &core.Requester{Department: "Marketing"}, Request{
		Query: "hallo welt",
		Mode:  ModeLexical,
		Limit: 10,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.InDelta(t, 1.0, results[0].Score, 1e-12)
	assert.Contains(t, results[0].Snippet, "hallo welt")
	assert.InDelta(t, 0.5, results[1].Score, 1e-12)
	for _, r := range results {
		assert.Equal(t, "lexical", r.Source)
		assert.Equal(t, "Handbuch", r.DocumentTitle)
	}
}

func TestRetrieve_SemanticMode(t *testing.T) {
	f := setupRetriever(t)
	ctx := context.Background()

	f.addDocument(t, "Wissensbasis", "Support", core.VisibilityAll, nil,
		"kuendigungsfristen im arbeitsvertrag",
		"urlaubsanspruch und resturlaub",
	)

	// The mock embedder is deterministic, so querying with the exact chunk
	// text puts that chunk at the top with a perfect score.
	results, err := f.retriever.Retrieve(ctx, &core.Requester{Department: "Marketing"}, Request{
		Query: "urlaubsanspruch und resturlaub",
		Mode:  ModeSemantic,
		Limit: 10,
	})
	require.NoError(t, err)
	require.NotEmpty(t, results)

	assert.Contains(t, results[0].Snippet, "urlaubsanspruch")
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	assert.Equal(t, "semantic", results[0].Source)
}

func TestRetrieve_HybridPrefersChunksInBothPaths(t *testing.T) {
	f := setupRetriever(t)
	ctx := context.Background()

	f.addDocument(t, "Bericht", "Support", core.VisibilityAll, nil,
		"umsatzbericht quartal drei",
		"anwesenheitsliste ohne bezug",
	)

	results, err := f.retriever.Retrieve(ctx, &core.Requester{Department: "Marketing"}, Request{
		Query: "umsatzbericht quartal drei",
		Mode:  ModeHybrid,
		Limit: 10,
	})
	require.NoError(t, err)
	require.NotEmpty(t, results)

	assert.Contains(t, results[0].Snippet, "umsatzbericht")
	assert.Equal(t, "both", results[0].Source,
		"a chunk found by both paths is fused to the top")
}

func TestRetrieve_AccessIsolation(t *testing.T) {
	f := setupRetriever(t)
	ctx := context.Background()

	internal := f.addDocument(t, "Interner Vermerk", "Vertrieb", core.VisibilityRestricted, nil,
		"vertrauliche umsatzzahlen hallo welt")
	shared := f.addDocument(t, "Freigegebener Vermerk", "Vertrieb", core.VisibilityRestricted, []string{"Support"},
		"freigegebene umsatzzahlen hallo welt")
	public := f.addDocument(t, "Rundschreiben", "Vertrieb", core.VisibilityAll, nil,
		"oeffentliche mitteilung hallo welt")

	req := Request{Query: "hallo welt", Mode: ModeLexical, Limit: 10}

	collect := func(requester *core.Requester) map[core.ID]bool {
		results, err := f.retriever.Retrieve(ctx, requester, req)
		require.NoError(t, err)
		seen := make(map[core.ID]bool, len(results))
		for _, r := range results {
			seen[r.DocumentId] = true
		}
		return seen
	}

	t.Run("owning department sees everything it owns", func(t *testing.T) {
		seen := collect(&core.Requester{Department: "Vertrieb"})
		assert.True(t, seen[internal.Id])
		assert.True(t, seen[shared.Id])
		assert.True(t, seen[public.Id])
	})

	t.Run("allowed department sees shared and public", func(t *testing.T) {
		seen := collect(&core.Requester{Department: "Support"})
		assert.False(t, seen[internal.Id])
		assert.True(t, seen[shared.Id])
		assert.True(t, seen[public.Id])
	})

	t.Run("unrelated department sees only public", func(t *testing.T) {
		seen := collect(&core.Requester{Department: "Marketing"})
		assert.False(t, seen[internal.Id])
		assert.False(t, seen[shared.Id])
		assert.True(t, seen[public.Id])
	})

	t.Run("superuser sees everything", func(t *testing.T) {
		seen := collect(&core.Requester{IsSuperuser: true})
		assert.Len(t, seen, 3)
	})
}

func TestRetrieve_DegradesToLexicalWhenEmbeddingFails(t *testing.T) {
	f := setupRetriever(t)
	ctx := context.Background()

	f.addDocument(t, "Handbuch", "Support", core.VisibilityAll, nil,
		"hallo welt als rueckfalltreffer")

	f.embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("service down")
	}

	t.Run("hybrid falls back to lexical", func(t *testing.T) {
		results, err := f.retriever.Retrieve(ctx, &core.Requester{Department: "Marketing"}, Request{
			Query: "hallo welt",
			Mode:  ModeHybrid,
			Limit: 10,
		})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "lexical", results[0].Source)
	})

	t.Run("semantic mode surfaces the failure", func(t *testing.T) {
		_, err := f.retriever.Retrieve(ctx, &core.Requester{Department: "Marketing"}, Request{
			Query: "hallo welt",
			Mode:  ModeSemantic,
			Limit: 10,
		})
		assert.ErrorIs(t, err, ai.ErrEmbeddingUnavailable)
	})
}

func TestRetrieve_Pagination(t *testing.T) {
	f := setupRetriever(t)
	ctx := context.Background()

	f.addDocument(t, "Liste", "Support", core.VisibilityAll, nil,
		"treffer eins hallo",
		"treffer zwei hallo",
		"treffer drei hallo",
		"treffer vier hallo",
	)

	requester := &core.Requester{Department: "Marketing"}

	page := func(offset, limit int) []*core.RetrievedChunk {
		results, err := f.retriever.Retrieve(ctx, requester, Request{
			Query:  "hallo",
			Mode:   ModeLexical,
			Limit:  limit,
			Offset: offset,
		})
		require.NoError(t, err)
		return results
	}

	first := page(0, 2)
	second := page(2, 2)
	require.Len(t, first, 2)
	require.Len(t, second, 2)
	assert.NotEqual(t, first[0].ChunkId, second[0].ChunkId)
	assert.NotEqual(t, first[1].ChunkId, second[1].ChunkId)

	assert.Empty(t, page(100, 2), "offset beyond the result set yields an empty page")
}

func TestRetrieve_SnippetTruncation(t *testing.T) {
	f := setupRetriever(t)
	ctx := context.Background()

	long := "hallo welt " + strings.Repeat("fuellwoerter ohne ende ", 30)
	f.addDocument(t, "Langtext", "Support", core.VisibilityAll, nil, long)

	results, err := f.retriever.Retrieve(ctx, &core.Requester{Department: "Marketing"}, Request{
		Query: "hallo welt",
		Mode:  ModeLexical,
		Limit: 1,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)

	snippet := results[0].Snippet
	assert.LessOrEqual(t, len(snippet), snippetLength+len("…"))
	assert.True(t, strings.HasSuffix(snippet, "…"), "truncated snippets carry an ellipsis")
	assert.NotContains(t, strings.TrimSuffix(snippet, "…"), "  ",
		"the cut lands on a word boundary")
}

func TestRetrieve_KeywordOverLongDocument(t *testing.T) {
	f := setupRetriever(t)
	ctx := context.Background()

	pipeline, err := ingestion.NewPipeline(
		f.docs, f.chunks, f.vectors,
		mock.NewMockProviderWith(f.embedder), testConfig(),
		ingestion.WithPoolSize(1),
	)
	require.NoError(t, err)
	defer pipeline.Release()

	// 3746 equal-length words split into eight full 512-word windows at the
	// default geometry, every window containing the query term.
	words := make([]string, 3746)
	for i := range words {
		words[i] = fmt.Sprintf("bericht%04d", i)
	}
	result, err := pipeline.Ingest(ctx, "Vertrieb", core.VisibilityRestricted, strings.Join(words, " "), nil)
	require.NoError(t, err)
	pipeline.Wait()
	require.Equal(t, 8, result.ChunkCount)

	chunks, err := f.chunks.GetDocumentChunks(ctx, result.DocumentId)
	require.NoError(t, err)
	require.Len(t, chunks, 8)

	results, err := f.retriever.Retrieve(ctx, &core.Requester{Department: "Vertrieb"}, Request{
		Query: "bericht",
		Mode:  "keyword",
		Limit: 5,
	})
	require.NoError(t, err)
	require.Len(t, results, 5)

	for i, res := range results {
		assert.InDelta(t, 1.0, res.Score, 1e-9, "window %d covers the term fully", i)
		assert.Equal(t, chunks[i].Id, res.ChunkId, "equal scores fall back to insertion order")
		assert.Equal(t, "lexical", res.Source)
	}
}

func TestSnippet_CutsAtRuneBoundary(t *testing.T) {
	// 300 three-byte runes and no space, so the byte cut lands inside a rune.
	long := strings.Repeat("€", 300)

	got := snippet(long)

	assert.True(t, utf8.ValidString(got), "snippet must stay valid UTF-8")
	assert.True(t, strings.HasSuffix(got, "…"))
	assert.LessOrEqual(t, len(got), snippetLength+len("…"))
	assert.Equal(t, strings.Repeat("€", 66), strings.TrimSuffix(got, "…"))
}

func TestRetrieve_BlendMode(t *testing.T) {
	f := setupRetriever(t)
	ctx := context.Background()

	f.addDocument(t, "Bericht", "Support", core.VisibilityAll, nil,
		"umsatz und absatz im ueberblick",
		"etwas voellig unverwandtes kapitel",
	)

	results, err := f.retriever.Retrieve(ctx, &core.Requester{Department: "Marketing"}, Request{
		Query: "umsatz und absatz im ueberblick",
		Mode:  ModeBlend,
		Limit: 10,
	})
	require.NoError(t, err)
	require.NotEmpty(t, results)

	// Perfect semantic similarity plus full term coverage.
	assert.Contains(t, results[0].Snippet, "umsatz")
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	assert.Equal(t, "both", results[0].Source)
}
