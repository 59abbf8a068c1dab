package search

import (
	"github.com/poiesic/docsearch/core"
)

// RetrievalMonitor provides hooks to observe the retrieval process.
// Implement this interface to track intermediate steps and results during retrieval.
type RetrievalMonitor interface {
	Start(query string, mode Mode)
	AfterSemanticSearch(ids []uint64)
	AfterLexicalSearch(ids []uint64)
	DegradedToLexical(reason error)
	AfterFusion(ids []uint64)
	Finish(results []*core.RetrievedChunk)
}

// noopMonitor is a no-op implementation of RetrievalMonitor
type noopMonitor struct{}

var _ RetrievalMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string, _ Mode)          {}
func (n *noopMonitor) AfterSemanticSearch(_ []uint64)  {}
func (n *noopMonitor) AfterLexicalSearch(_ []uint64)   {}
func (n *noopMonitor) DegradedToLexical(_ error)       {}
func (n *noopMonitor) AfterFusion(_ []uint64)          {}
func (n *noopMonitor) Finish(_ []*core.RetrievedChunk) {}
