package access

import (
	"context"
	"slices"

	"github.com/poiesic/docsearch/core"
)

// Allowed reports whether the requester may read the document. Rules are
// evaluated in precedence order, first match wins:
//
//  1. requester is a superuser
//  2. document visibility is "all"
//  3. requester belongs to the owning department
//  4. requester's department is in the document's allowed-department set
//
// Anything else is denied. Allowed is pure and must be re-evaluated per
// request; department assignments may change between requests, so decisions
// are never cached across them.
func Allowed(requester *core.Requester, doc *core.Document) bool {
	if requester == nil || doc == nil {
		return false
	}
	if requester.IsSuperuser {
		return true
	}
	if doc.Visibility == core.VisibilityAll {
		return true
	}
	if requester.Department != "" && requester.Department == doc.Department {
		return true
	}
	return slices.Contains(doc.AllowedDepartments, requester.Department)
}

// DocumentLookup resolves a document id to its record. Implemented by the
// document repository.
type DocumentLookup func(ctx context.Context, id core.ID) (*core.Document, error)

// Filter narrows search candidates to documents the requester may read.
// Decisions are memoized for the lifetime of one request only; a Filter must
// not be reused across requests. Not safe for concurrent use.
type Filter struct {
	requester *core.Requester
	lookup    DocumentLookup
	memo      map[core.ID]bool
}

// NewFilter creates a per-request access filter.
func NewFilter(requester *core.Requester, lookup DocumentLookup) *Filter {
	return &Filter{
		requester: requester,
		lookup:    lookup,
		memo:      make(map[core.ID]bool),
	}
}

// AllowedDocument reports whether the requester may read the document with
// the given id. Lookup failures deny access rather than leaking existence.
func (f *Filter) AllowedDocument(ctx context.Context, id core.ID) bool {
	if decision, ok := f.memo[id]; ok {
		return decision
	}

	doc, err := f.lookup(ctx, id)
	decision := err == nil && Allowed(f.requester, doc)
	f.memo[id] = decision
	return decision
}

// Predicate returns a candidate filter suitable for passing into store
// scans. The predicate must be applied while scanning, before any truncation
// to a result limit, so that visible results are never under-filled.
func (f *Filter) Predicate(ctx context.Context) func(core.ID) bool {
	return func(id core.ID) bool {
		return f.AllowedDocument(ctx, id)
	}
}
