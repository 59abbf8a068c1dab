package fusion

import (
	"sort"

	"github.com/poiesic/docsearch/core"
)

const (
	// DefaultK is the RRF damping constant. It keeps a single rank-1 hit from
	// dominating the fused list while still rewarding top ranks.
	DefaultK = 60

	// DefaultSemanticWeight and DefaultLexicalWeight are the raw-score blend
	// weights. The blend is a separate strategy from RRF, never a variant of it.
	DefaultSemanticWeight = 0.7
	DefaultLexicalWeight  = 0.3
)

// RRF merges two independently ranked lists via Reciprocal Rank Fusion: a
// chunk at 1-based rank r in a list contributes 1/(k+r); chunks absent from
// a list contribute 0 from it. The fused list is ordered by accumulated
// score descending, so a chunk present in both lists outranks one present in
// only one. Fusing by rank rather than raw score avoids mixing the
// incomparable scales of cosine similarity and lexical term coverage.
//
// Ties are broken by the best single-list rank, then by chunk insertion
// sequence, keeping the output deterministic.
func RRF(vector, lexical []core.ChunkMatch, k int) []core.ChunkMatch {
	if k <= 0 {
		k = DefaultK
	}

	type fused struct {
		match    core.ChunkMatch
		score    float64
		bestRank int
	}

	merged := make(map[core.ID]*fused)

	accumulate := func(list []core.ChunkMatch) {
		for i, match := range list {
			rank := i + 1
			entry, ok := merged[match.ChunkId]
			if !ok {
				entry = &fused{match: match, bestRank: rank}
				merged[match.ChunkId] = entry
			}
			entry.score += 1.0 / float64(k+rank)
			if rank < entry.bestRank {
				entry.bestRank = rank
			}
		}
	}
	accumulate(vector)
	accumulate(lexical)

	results := make([]core.ChunkMatch, 0, len(merged))
	order := make(map[core.ID]int, len(merged))
	for _, entry := range merged {
		entry.match.Score = entry.score
		results = append(results, entry.match)
		order[entry.match.ChunkId] = entry.bestRank
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		ri, rj := order[results[i].ChunkId], order[results[j].ChunkId]
		if ri != rj {
			return ri < rj
		}
		return results[i].Seq < results[j].Seq
	})

	return results
}

// WeightedBlend merges the two lists by summing weighted raw scores instead
// of rank reciprocals. It assumes both paths score in [0,1]. This is a
// distinct strategy from RRF with different semantics; callers must opt into
// it explicitly.
func WeightedBlend(vector, lexical []core.ChunkMatch, semanticWeight, lexicalWeight float64) []core.ChunkMatch {
	merged := make(map[core.ID]*core.ChunkMatch)

	accumulate := func(list []core.ChunkMatch, weight float64) {
		for _, match := range list {
			entry, ok := merged[match.ChunkId]
			if !ok {
				copied := match
				copied.Score = 0
				merged[match.ChunkId] = &copied
				entry = merged[match.ChunkId]
			}
			entry.Score += weight * match.Score
		}
	}
	accumulate(vector, semanticWeight)
	accumulate(lexical, lexicalWeight)

	results := make([]core.ChunkMatch, 0, len(merged))
	for _, entry := range merged {
		results = append(results, *entry)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Seq < results[j].Seq
	})

	return results
}
