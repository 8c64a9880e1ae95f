// Package resolver implements the C8 reference resolver: it answers
// find_references and goto_definition from the Symbol DB's AST-located
// identifier table, never falling back to text search (spec §4.8).
package resolver

import (
	"context"
	"sort"

	engerrors "github.com/codeintel-go/engine/internal/errors"
	"github.com/codeintel-go/engine/internal/store"
)

// Resolver wraps a MetadataStore to serve reference/definition lookups.
type Resolver struct {
	metadata store.MetadataStore
}

// New creates a Resolver over the given metadata store.
func New(metadata store.MetadataStore) *Resolver {
	return &Resolver{metadata: metadata}
}

// ResolvedReference is one located mention of a symbol, surfaced to the
// find_references tool with enough position data for a caller to jump
// straight to it.
type ResolvedReference struct {
	Name          string
	ReferenceType store.ReferenceRole
	FilePath      string
	Line          int
	Column        int
	StartByte     int
	EndByte       int
	ContextLine   string
}

// FindReferences resolves every occurrence of name in projectID, backed
// entirely by the identifier-occurrence table populated at index time.
func (r *Resolver) FindReferences(ctx context.Context, projectID, name string, caseSensitive bool) ([]ResolvedReference, error) {
	if name == "" {
		return nil, engerrors.New(engerrors.CodeValidationError, "symbol name is required", nil)
	}

	occs, err := r.metadata.FindReferences(ctx, projectID, name, caseSensitive)
	if err != nil {
		return nil, engerrors.Wrap(engerrors.CodeSearchError, err)
	}
	if len(occs) == 0 {
		return nil, engerrors.New(engerrors.CodeSymbolNotFound, "no references found for symbol", nil).
			WithDetail("symbol", name)
	}

	refs := make([]ResolvedReference, len(occs))
	for i, o := range occs {
		refs[i] = ResolvedReference{
			Name:          o.Name,
			ReferenceType: o.Role,
			FilePath:      o.FilePath,
			Line:          o.Line,
			Column:        o.Column,
			StartByte:     o.StartByte,
			EndByte:       o.EndByte,
			ContextLine:   o.ContextLine,
		}
	}

	sort.Slice(refs, func(i, j int) bool {
		if refs[i].FilePath != refs[j].FilePath {
			return refs[i].FilePath < refs[j].FilePath
		}
		return refs[i].Line < refs[j].Line
	})

	return refs, nil
}

// GroupByFile groups resolved references by their file path, preserving
// line order within each file, for the find_references tool's
// group_by_file option.
func GroupByFile(refs []ResolvedReference) map[string][]ResolvedReference {
	out := make(map[string][]ResolvedReference)
	for _, r := range refs {
		out[r.FilePath] = append(out[r.FilePath], r)
	}
	return out
}

// GotoDefinition resolves symbol to its declaring Symbol DB entry. If
// multiple symbols share the name (overloads, same name in different
// files), all are returned; callers pick by workspace/path context.
func (r *Resolver) GotoDefinition(ctx context.Context, projectID, symbol string, caseSensitive bool) ([]*store.Symbol, error) {
	if symbol == "" {
		return nil, engerrors.New(engerrors.CodeValidationError, "symbol name is required", nil)
	}

	symbols, err := r.metadata.GetSymbolsByName(ctx, projectID, symbol, caseSensitive)
	if err != nil {
		return nil, engerrors.Wrap(engerrors.CodeSearchError, err)
	}
	if len(symbols) == 0 {
		return nil, engerrors.New(engerrors.CodeSymbolNotFound, "symbol not found", nil).
			WithDetail("symbol", symbol)
	}

	sort.Slice(symbols, func(i, j int) bool {
		if symbols[i].FilePath != symbols[j].FilePath {
			return symbols[i].FilePath < symbols[j].FilePath
		}
		return symbols[i].StartLine < symbols[j].StartLine
	})

	return symbols, nil
}
