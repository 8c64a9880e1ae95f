package resolver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	engerrors "github.com/codeintel-go/engine/internal/errors"
	"github.com/codeintel-go/engine/internal/store"
)

// fakeMetadata embeds the MetadataStore interface so each test only needs
// to override the one or two methods it exercises.
type fakeMetadata struct {
	store.MetadataStore
	FindReferencesFn   func(ctx context.Context, projectID, name string, caseSensitive bool) ([]*store.IdentifierOccurrence, error)
	GetSymbolsByNameFn func(ctx context.Context, projectID, name string, caseSensitive bool) ([]*store.Symbol, error)
}

func (f *fakeMetadata) FindReferences(ctx context.Context, projectID, name string, caseSensitive bool) ([]*store.IdentifierOccurrence, error) {
	return f.FindReferencesFn(ctx, projectID, name, caseSensitive)
}

func (f *fakeMetadata) GetSymbolsByName(ctx context.Context, projectID, name string, caseSensitive bool) ([]*store.Symbol, error) {
	return f.GetSymbolsByNameFn(ctx, projectID, name, caseSensitive)
}

func TestFindReferences_EmptyName_ReturnsValidationError(t *testing.T) {
	r := New(&fakeMetadata{})
	_, err := r.FindReferences(context.Background(), "proj", "", false)
	require.Error(t, err)
	var ee *engerrors.EngineError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, engerrors.CodeValidationError, ee.Code)
}

func TestFindReferences_NoOccurrences_ReturnsSymbolNotFound(t *testing.T) {
	m := &fakeMetadata{FindReferencesFn: func(ctx context.Context, projectID, name string, caseSensitive bool) ([]*store.IdentifierOccurrence, error) {
		return nil, nil
	}}
	r := New(m)
	_, err := r.FindReferences(context.Background(), "proj", "Widget", false)
	require.Error(t, err)
	var ee *engerrors.EngineError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, engerrors.CodeSymbolNotFound, ee.Code)
}

func TestFindReferences_SortsByFileThenLine(t *testing.T) {
	m := &fakeMetadata{FindReferencesFn: func(ctx context.Context, projectID, name string, caseSensitive bool) ([]*store.IdentifierOccurrence, error) {
		return []*store.IdentifierOccurrence{
			{Name: "Widget", FilePath: "b.go", Line: 1},
			{Name: "Widget", FilePath: "a.go", Line: 9},
			{Name: "Widget", FilePath: "a.go", Line: 2},
		}, nil
	}}
	r := New(m)
	refs, err := r.FindReferences(context.Background(), "proj", "Widget", false)
	require.NoError(t, err)
	require.Len(t, refs, 3)
	assert.Equal(t, "a.go", refs[0].FilePath)
	assert.Equal(t, 2, refs[0].Line)
	assert.Equal(t, "a.go", refs[1].FilePath)
	assert.Equal(t, 9, refs[1].Line)
	assert.Equal(t, "b.go", refs[2].FilePath)
}

func TestGroupByFile_PreservesOrderWithinFile(t *testing.T) {
	refs := []ResolvedReference{
		{FilePath: "a.go", Line: 1},
		{FilePath: "a.go", Line: 5},
		{FilePath: "b.go", Line: 2},
	}
	grouped := GroupByFile(refs)
	require.Len(t, grouped["a.go"], 2)
	assert.Equal(t, 1, grouped["a.go"][0].Line)
	assert.Equal(t, 5, grouped["a.go"][1].Line)
	require.Len(t, grouped["b.go"], 1)
}

func TestGotoDefinition_EmptySymbol_ReturnsValidationError(t *testing.T) {
	r := New(&fakeMetadata{})
	_, err := r.GotoDefinition(context.Background(), "proj", "", false)
	require.Error(t, err)
	var ee *engerrors.EngineError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, engerrors.CodeValidationError, ee.Code)
}

func TestGotoDefinition_NoMatches_ReturnsSymbolNotFound(t *testing.T) {
	m := &fakeMetadata{GetSymbolsByNameFn: func(ctx context.Context, projectID, name string, caseSensitive bool) ([]*store.Symbol, error) {
		return nil, nil
	}}
	r := New(m)
	_, err := r.GotoDefinition(context.Background(), "proj", "Widget", false)
	require.Error(t, err)
	var ee *engerrors.EngineError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, engerrors.CodeSymbolNotFound, ee.Code)
}

func TestGotoDefinition_SortsByFileThenStartLine(t *testing.T) {
	m := &fakeMetadata{GetSymbolsByNameFn: func(ctx context.Context, projectID, name string, caseSensitive bool) ([]*store.Symbol, error) {
		return []*store.Symbol{
			{Name: "Widget", FilePath: "b.go", StartLine: 1},
			{Name: "Widget", FilePath: "a.go", StartLine: 10},
			{Name: "Widget", FilePath: "a.go", StartLine: 3},
		}, nil
	}}
	r := New(m)
	syms, err := r.GotoDefinition(context.Background(), "proj", "Widget", false)
	require.NoError(t, err)
	require.Len(t, syms, 3)
	assert.Equal(t, "a.go", syms[0].FilePath)
	assert.Equal(t, 3, syms[0].StartLine)
	assert.Equal(t, "a.go", syms[1].FilePath)
	assert.Equal(t, 10, syms[1].StartLine)
	assert.Equal(t, "b.go", syms[2].FilePath)
}
