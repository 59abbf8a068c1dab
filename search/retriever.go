package search

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/poiesic/docsearch/access"
	"github.com/poiesic/docsearch/ai"
	"github.com/poiesic/docsearch/core"
	"github.com/poiesic/docsearch/fusion"
	"github.com/poiesic/docsearch/lexical"
	"github.com/poiesic/docsearch/storage"
)

// Mode selects the retrieval strategy.
type Mode string

const (
	// ModeHybrid runs the semantic and lexical paths and fuses them with
	// Reciprocal Rank Fusion. This is the default.
	ModeHybrid Mode = "hybrid"
	// ModeSemantic runs vector similarity search only.
	ModeSemantic Mode = "semantic"
	// ModeLexical runs term coverage matching only.
	ModeLexical Mode = "lexical"
	// ModeBlend fuses both paths by weighted raw-score sum instead of RRF.
	ModeBlend Mode = "blend"
)

// ParseMode maps a textual mode name to a Mode. An empty string selects
// ModeHybrid. "vector" and "keyword" are accepted as aliases of the
// semantic and lexical paths.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeHybrid:
		return ModeHybrid, nil
	case ModeSemantic, "vector":
		return ModeSemantic, nil
	case ModeLexical, "keyword":
		return ModeLexical, nil
	case ModeBlend:
		return ModeBlend, nil
	default:
		return "", ErrUnknownMode
	}
}

// snippetLength is the maximum snippet size in bytes, cut at a word boundary.
const snippetLength = 200

// overFetchFactor widens store scans beyond offset+limit so that rank
// fusion has enough distinct candidates from both paths.
const overFetchFactor = 2

// Request carries the parameters of one retrieval.
type Request struct {
	Query  string
	Mode   Mode
	Limit  int
	Offset int
}

// Retriever provides access-filtered hybrid retrieval over document chunks.
type Retriever struct {
	documents      storage.DocumentRepository
	chunks         storage.ChunkRepository
	vectors        storage.VectorRepository
	matcher        *lexical.Matcher
	embedder       *ai.FallbackEmbedder
	model          string
	fusionK        int
	semanticWeight float64
	lexicalWeight  float64
	logger         *slog.Logger
}

// Option configures a Retriever.
type Option func(*Retriever) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Retriever) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// WithFusionK overrides the RRF damping constant.
func WithFusionK(k int) Option {
	return func(r *Retriever) error {
		if k > 0 {
			r.fusionK = k
		}
		return nil
	}
}

// WithBlendWeights overrides the raw-score weights used by ModeBlend.
func WithBlendWeights(semantic, lexical float64) Option {
	return func(r *Retriever) error {
		r.semanticWeight = semantic
		r.lexicalWeight = lexical
		return nil
	}
}

// NewRetriever creates a new retriever.
func NewRetriever(
	documents storage.DocumentRepository,
	chunks storage.ChunkRepository,
	vectors storage.VectorRepository,
	provider ai.Provider,
	config *ai.Config,
	opts ...Option,
) (*Retriever, error) {
	if documents == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if vectors == nil {
		return nil, ErrVectorRepositoryRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}
	if config == nil {
		config = ai.DefaultConfig()
	}

	matcher, err := lexical.NewMatcher(chunks)
	if err != nil {
		return nil, err
	}

	r := &Retriever{
		documents:      documents,
		chunks:         chunks,
		vectors:        vectors,
		matcher:        matcher,
		embedder:       ai.NewFallbackEmbedder(provider.Embedder(), config.Timeout, config.Dimensions),
		model:          config.EmbeddingModel,
		fusionK:        fusion.DefaultK,
		semanticWeight: fusion.DefaultSemanticWeight,
		lexicalWeight:  fusion.DefaultLexicalWeight,
		logger:         slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// Retrieve searches for chunks matching the request, visible to the requester.
// Results are ranked by relevance and paginated by the request's offset and limit.
func (r *Retriever) Retrieve(ctx context.Context, requester *core.Requester, req Request) ([]*core.RetrievedChunk, error) {
	return r.RetrieveWithMonitor(ctx, requester, req, nil)
}

// RetrieveWithMonitor searches with monitoring callbacks at each stage.
//
// The access filter is constructed per call and applied inside the store
// scans, before any ranking or truncation. In hybrid and blend modes an
// unavailable embedding service degrades the request to the lexical path
// instead of failing it; in semantic mode the failure is returned.
func (r *Retriever) RetrieveWithMonitor(ctx context.Context, requester *core.Requester, req Request, monitor RetrievalMonitor) ([]*core.RetrievedChunk, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}

	if requester == nil {
		return nil, ErrRequesterRequired
	}
	mode, err := ParseMode(string(req.Mode))
	if err != nil {
		return nil, err
	}
	if req.Limit <= 0 {
		return nil, ErrInvalidLimit
	}
	if req.Offset < 0 {
		return nil, ErrInvalidOffset
	}
	terms := lexical.Terms(req.Query)
	if len(terms) == 0 {
		return nil, ErrEmptyQuery
	}

	monitor.Start(req.Query, mode)

	filter := access.NewFilter(requester, r.documents.GetDocument)
	allowed := filter.Predicate(ctx)
	fetch := overFetchFactor * (req.Offset + req.Limit)

	// 1. Semantic path
	var vectorMatches []core.ChunkMatch
	if mode != ModeLexical {
		queryVector, err := r.embedder.EmbedQuery(ctx, req.Query)
		switch {
		case err == nil:
			matches, err := r.vectors.FindSimilar(ctx, queryVector, r.model, allowed, fetch)
			if err != nil {
				r.logger.Error("error querying for similar chunks", "err", err)
				return nil, err
			}
			vectorMatches = make([]core.ChunkMatch, len(matches))
			for i, match := range matches {
				vectorMatches[i] = *match
			}
			monitor.AfterSemanticSearch(matchIds(vectorMatches))
		case errors.Is(err, ai.ErrEmbeddingUnavailable) && mode != ModeSemantic:
			r.logger.Warn("embedding unavailable, degrading to lexical retrieval", "err", err)
			monitor.DegradedToLexical(err)
			mode = ModeLexical
		default:
			r.logger.Error("error embedding query", "err", err)
			return nil, err
		}
	}

	// 2. Lexical path
	var lexicalMatches []core.ChunkMatch
	if mode != ModeSemantic {
		lexicalMatches, err = r.matcher.Search(ctx, terms, allowed, fetch)
		if err != nil {
			r.logger.Error("error running lexical search", "err", err)
			return nil, err
		}
		monitor.AfterLexicalSearch(matchIds(lexicalMatches))
	}

	// 3. Fuse
	var ranked []core.ChunkMatch
	switch mode {
	case ModeHybrid:
		ranked = fusion.RRF(vectorMatches, lexicalMatches, r.fusionK)
	case ModeBlend:
		ranked = fusion.WeightedBlend(vectorMatches, lexicalMatches, r.semanticWeight, r.lexicalWeight)
	case ModeSemantic:
		ranked = vectorMatches
	case ModeLexical:
		ranked = lexicalMatches
	}
	monitor.AfterFusion(matchIds(ranked))

	// 4. Paginate
	if req.Offset >= len(ranked) {
		monitor.Finish(nil)
		return []*core.RetrievedChunk{}, nil
	}
	ranked = ranked[req.Offset:]
	if len(ranked) > req.Limit {
		ranked = ranked[:req.Limit]
	}

	// 5. Hydrate
	inVector := make(map[core.ID]bool, len(vectorMatches))
	for _, match := range vectorMatches {
		inVector[match.ChunkId] = true
	}
	inLexical := make(map[core.ID]bool, len(lexicalMatches))
	for _, match := range lexicalMatches {
		inLexical[match.ChunkId] = true
	}

	results := make([]*core.RetrievedChunk, 0, len(ranked))
	for _, match := range ranked {
		chunk, err := r.chunks.GetChunk(ctx, match.ChunkId)
		if err != nil {
			r.logger.Warn("ranked chunk vanished during hydration", "chunk", match.ChunkId, "err", err)
			continue
		}
		doc, err := r.documents.GetDocument(ctx, match.DocumentId)
		if err != nil {
			r.logger.Warn("ranked document vanished during hydration", "document", match.DocumentId, "err", err)
			continue
		}

		results = append(results, &core.RetrievedChunk{
			DocumentId:    match.DocumentId,
			ChunkId:       match.ChunkId,
			Snippet:       snippet(chunk.Text),
			Score:         match.Score,
			DocumentTitle: doc.Title,
			Source:        source(inVector[match.ChunkId], inLexical[match.ChunkId]),
		})
	}

	monitor.Finish(results)
	return results, nil
}

// matchIds extracts chunk IDs for monitor callbacks.
func matchIds(matches []core.ChunkMatch) []uint64 {
	ids := make([]uint64, len(matches))
	for i, match := range matches {
		ids[i] = uint64(match.ChunkId)
	}
	return ids
}

// source names the path or paths that produced a ranked chunk.
func source(inVector, inLexical bool) string {
	switch {
	case inVector && inLexical:
		return "both"
	case inVector:
		return "semantic"
	default:
		return "lexical"
	}
}

// snippet truncates chunk text to snippetLength bytes at a word boundary.
// Text with no space in the first snippetLength bytes is cut at a rune
// boundary instead so the snippet stays valid UTF-8.
func snippet(text string) string {
	if len(text) <= snippetLength {
		return text
	}
	cut := text[:snippetLength]
	if idx := strings.LastIndexByte(cut, ' '); idx > 0 {
		cut = cut[:idx]
	} else {
		for len(cut) > 0 {
			if r, size := utf8.DecodeLastRuneInString(cut); r != utf8.RuneError || size > 1 {
				break
			}
			cut = cut[:len(cut)-1]
		}
	}
	return cut + "…"
}
