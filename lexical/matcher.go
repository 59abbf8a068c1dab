package lexical

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/poiesic/docsearch/core"
)

// ChunkScanner provides sequential access to all stored chunks.
// Implemented by the chunk repository.
type ChunkScanner interface {
	ForEachChunk(ctx context.Context, fn func(chunk *core.Chunk) (bool, error)) error
}

// Matcher scores chunk text against query terms.
//
// The default scorer is term coverage: the fraction of distinct query terms
// found as case-insensitive substrings of the chunk text, in [0,1]. A higher
// score always means more relevant; anything replacing this scorer must keep
// that shape.
type Matcher struct {
	chunks ChunkScanner
	logger *slog.Logger
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Matcher) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewMatcher creates a lexical matcher over the given chunk scanner.
func NewMatcher(chunks ChunkScanner, opts ...Option) (*Matcher, error) {
	if chunks == nil {
		return nil, ErrChunkScannerRequired
	}

	m := &Matcher{
		chunks: chunks,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Terms tokenizes a query into distinct lowercase terms. Punctuation is
// trimmed from token edges the way the verbatim matcher in search does it.
func Terms(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	seen := make(map[string]bool, len(fields))
	terms := make([]string, 0, len(fields))
	for _, field := range fields {
		cleaned := strings.Trim(field, ".,!?;:'\"-()[]{}")
		if cleaned == "" || seen[cleaned] {
			continue
		}
		seen[cleaned] = true
		terms = append(terms, cleaned)
	}
	return terms
}

// Search scans all chunks, scores each against the query terms and returns
// up to limit matches with score > 0, ordered by score descending. The
// allowed predicate is applied during the scan, before any truncation, so
// visible results are never under-filled by inaccessible candidates.
//
// Ties are broken by shorter chunk first, then by insertion order.
func (m *Matcher) Search(ctx context.Context, terms []string, allowed func(core.ID) bool, limit int) ([]core.ChunkMatch, error) {
	if len(terms) == 0 || limit <= 0 {
		return nil, nil
	}

	type scored struct {
		match   core.ChunkMatch
		textLen int
	}
	var results []scored

	err := m.chunks.ForEachChunk(ctx, func(chunk *core.Chunk) (bool, error) {
		if allowed != nil && !allowed(chunk.DocumentId) {
			return true, nil
		}

		score := Coverage(chunk.Text, terms)
		if score == 0 {
			return true, nil
		}

		results = append(results, scored{
			match: core.ChunkMatch{
				ChunkId:    chunk.Id,
				DocumentId: chunk.DocumentId,
				Score:      score,
				Seq:        chunk.Seq,
			},
			textLen: len(chunk.Text),
		})
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].match.Score != results[j].match.Score {
			return results[i].match.Score > results[j].match.Score
		}
		if results[i].textLen != results[j].textLen {
			return results[i].textLen < results[j].textLen
		}
		return results[i].match.Seq < results[j].match.Seq
	})

	if len(results) > limit {
		results = results[:limit]
	}

	matches := make([]core.ChunkMatch, len(results))
	for i, r := range results {
		matches[i] = r.match
	}

	m.logger.Debug("lexical search finished", "terms", len(terms), "hits", len(matches))
	return matches, nil
}

// Coverage returns the fraction of distinct query terms found as
// case-insensitive substrings of text, in [0,1].
func Coverage(text string, terms []string) float64 {
	if len(terms) == 0 {
		return 0
	}

	lower := strings.ToLower(text)
	found := 0
	for _, term := range terms {
		if strings.Contains(lower, term) {
			found++
		}
	}
	return float64(found) / float64(len(terms))
}
