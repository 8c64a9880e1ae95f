package mcp

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeintel-go/engine/internal/store"
)

// ============================================================================
// search_and_replace
// ============================================================================

func TestSearchAndReplace_MissingPattern_ReturnsError(t *testing.T) {
	srv := newTestServer(t)
	_, _, err := srv.mcpSearchAndReplaceHandler(context.Background(), nil, SearchAndReplaceInput{})
	require.Error(t, err)
}

func TestSearchAndReplace_DryRun_DoesNotWriteToDisk(t *testing.T) {
	metadata := &MockMetadataStore{Files: []*store.File{{Path: "a.go"}}}
	srv := newTestServerWith(t, metadata, nil, nil)
	path := filepath.Join(srv.rootPath, "a.go")
	require.NoError(t, os.WriteFile(path, []byte("foo := 1\nfoo += 2\n"), 0o644))

	_, out, err := srv.mcpSearchAndReplaceHandler(context.Background(), nil, SearchAndReplaceInput{
		Pattern: "foo", Replacement: "bar", DryRun: true,
	})
	require.NoError(t, err)
	assert.True(t, out.DryRun)
	require.Len(t, out.Files, 1)
	assert.Contains(t, out.Files[0].After, "bar")

	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(onDisk), "foo", "dry_run must not touch disk")
}

func TestSearchAndReplace_Applied_WritesToDisk(t *testing.T) {
	metadata := &MockMetadataStore{Files: []*store.File{{Path: "a.go"}}}
	srv := newTestServerWith(t, metadata, nil, nil)
	path := filepath.Join(srv.rootPath, "a.go")
	require.NoError(t, os.WriteFile(path, []byte("foo := 1\n"), 0o644))

	_, out, err := srv.mcpSearchAndReplaceHandler(context.Background(), nil, SearchAndReplaceInput{
		Pattern: "foo", Replacement: "bar", DryRun: false,
	})
	require.NoError(t, err)
	assert.False(t, out.DryRun)
	require.Len(t, out.Files, 1)
	assert.True(t, out.Files[0].Applied)

	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(onDisk), "bar")
}

func TestSearchAndReplace_RegexMode(t *testing.T) {
	metadata := &MockMetadataStore{Files: []*store.File{{Path: "a.go"}}}
	srv := newTestServerWith(t, metadata, nil, nil)
	path := filepath.Join(srv.rootPath, "a.go")
	require.NoError(t, os.WriteFile(path, []byte("v1 := 1\nv2 := 2\n"), 0o644))

	_, out, err := srv.mcpSearchAndReplaceHandler(context.Background(), nil, SearchAndReplaceInput{
		Pattern: `v\d`, Replacement: "x", Regex: true, DryRun: true,
	})
	require.NoError(t, err)
	require.Len(t, out.Files, 1)
	assert.Equal(t, "x := 1\nx := 2\n", out.Files[0].After)
}

func TestSearchAndReplace_FileGlobFilter(t *testing.T) {
	metadata := &MockMetadataStore{Files: []*store.File{{Path: "a.go"}, {Path: "b.md"}}}
	srv := newTestServerWith(t, metadata, nil, nil)
	require.NoError(t, os.WriteFile(filepath.Join(srv.rootPath, "a.go"), []byte("foo\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(srv.rootPath, "b.md"), []byte("foo\n"), 0o644))

	_, out, err := srv.mcpSearchAndReplaceHandler(context.Background(), nil, SearchAndReplaceInput{
		Pattern: "foo", Replacement: "bar", FileGlob: "*.go", DryRun: true,
	})
	require.NoError(t, err)
	require.Len(t, out.Files, 1)
	assert.Equal(t, "a.go", out.Files[0].Path)
}

// ============================================================================
// smart_refactor
// ============================================================================

func TestSmartRefactor_UnknownOperation_ReturnsError(t *testing.T) {
	srv := newTestServer(t)
	_, _, err := srv.mcpSmartRefactorHandler(context.Background(), nil, SmartRefactorInput{Operation: "bogus"})
	require.Error(t, err)
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
}

func TestSmartRefactor_RenameSymbol_SameName_IsNoOp(t *testing.T) {
	srv := newTestServer(t)
	_, out, err := srv.mcpSmartRefactorHandler(context.Background(), nil, SmartRefactorInput{
		Operation: "rename_symbol", SymbolName: "Foo", NewName: "Foo",
	})
	require.NoError(t, err)
	assert.Contains(t, out.Summary, "no-op")
}

func TestSmartRefactor_RenameSymbol_RewritesReferences(t *testing.T) {
	metadata := &MockMetadataStore{}
	srv := newTestServerWith(t, metadata, nil, nil)
	path := "types.go"
	fullPath := filepath.Join(srv.rootPath, path)
	content := "type OldName struct{}\n"
	require.NoError(t, os.WriteFile(fullPath, []byte(content), 0o644))

	start := len("type ")
	metadata.FindReferencesFn = func(ctx context.Context, projectID, name string, caseSensitive bool) ([]*store.IdentifierOccurrence, error) {
		return []*store.IdentifierOccurrence{
			{Name: "OldName", FilePath: path, Line: 1, StartByte: start, EndByte: start + len("OldName")},
		}, nil
	}

	_, out, err := srv.mcpSmartRefactorHandler(context.Background(), nil, SmartRefactorInput{
		Operation: "rename_symbol", SymbolName: "OldName", NewName: "NewName", DryRun: false,
	})
	require.NoError(t, err)
	require.Len(t, out.Files, 1)
	assert.Contains(t, out.Files[0].After, "NewName")

	onDisk, err := os.ReadFile(fullPath)
	require.NoError(t, err)
	assert.Contains(t, string(onDisk), "NewName")
}

func TestSmartRefactor_ExtractToFile_TargetExists_ReturnsError(t *testing.T) {
	metadata := &MockMetadataStore{
		Symbols: []*store.Symbol{
			{Name: "Widget", FilePath: "a.go", StartLine: 1, EndLine: 3},
		},
	}
	srv := newTestServerWith(t, metadata, nil, nil)
	require.NoError(t, os.WriteFile(filepath.Join(srv.rootPath, "a.go"), []byte("type Widget struct{}\nfunc (w Widget) X() {}\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(srv.rootPath, "target.go"), []byte("package x\n"), 0o644))

	_, _, err := srv.mcpSmartRefactorHandler(context.Background(), nil, SmartRefactorInput{
		Operation: "extract_to_file", SymbolName: "Widget", TargetPath: "target.go",
	})
	require.Error(t, err)
}

func TestSmartRefactor_ExtractInterface_NonGoFile_ReturnsError(t *testing.T) {
	metadata := &MockMetadataStore{
		Symbols: []*store.Symbol{
			{Name: "Widget", FilePath: "a.txt", StartLine: 1, EndLine: 1},
		},
	}
	srv := newTestServerWith(t, metadata, nil, nil)
	require.NoError(t, os.WriteFile(filepath.Join(srv.rootPath, "a.txt"), []byte("x"), 0o644))

	_, _, err := srv.mcpSmartRefactorHandler(context.Background(), nil, SmartRefactorInput{
		Operation: "extract_interface", SymbolName: "Widget", TargetPath: "doer.go", InterfaceName: "Doer",
	})
	require.Error(t, err)
}

func TestSmartRefactor_ExtractInterface_FindsExportedMethods(t *testing.T) {
	metadata := &MockMetadataStore{
		Symbols: []*store.Symbol{
			{Name: "Widget", FilePath: "widget.go", StartLine: 1, EndLine: 4},
		},
	}
	srv := newTestServerWith(t, metadata, nil, nil)
	require.NoError(t, os.WriteFile(filepath.Join(srv.rootPath, "widget.go"), []byte(
		"package main\n\nfunc (w *Widget) Do() error { return nil }\nfunc (w *Widget) Name() string { return \"\" }\n",
	), 0o644))

	_, out, err := srv.mcpSmartRefactorHandler(context.Background(), nil, SmartRefactorInput{
		Operation: "extract_interface", SymbolName: "Widget", TargetPath: "doer.go", InterfaceName: "Doer", DryRun: true,
	})
	require.NoError(t, err)
	require.Len(t, out.Files, 1)
	assert.Contains(t, out.Files[0].After, "Doer")
}

// ============================================================================
// replace_lines / delete_lines
// ============================================================================

func TestReplaceLines_MissingPath_ReturnsError(t *testing.T) {
	srv := newTestServer(t)
	_, _, err := srv.mcpReplaceLinesHandler(context.Background(), nil, ReplaceLinesInput{})
	require.Error(t, err)
}

func TestReplaceLines_InvalidPath_Rejected(t *testing.T) {
	srv := newTestServer(t)
	_, _, err := srv.mcpReplaceLinesHandler(context.Background(), nil, ReplaceLinesInput{
		Path: "../../etc/passwd", StartLine: 1, EndLine: 1, Content: "x",
	})
	require.Error(t, err)
}

func TestReplaceLines_ReplacesRange(t *testing.T) {
	srv := newTestServer(t)
	path := "sample.txt"
	fullPath := filepath.Join(srv.rootPath, path)
	require.NoError(t, os.WriteFile(fullPath, []byte("a\nb\nc\nd\n"), 0o644))

	_, out, err := srv.mcpReplaceLinesHandler(context.Background(), nil, ReplaceLinesInput{
		Path: path, StartLine: 2, EndLine: 3, Content: "x\ny\nz",
	})
	require.NoError(t, err)
	assert.Equal(t, path, out.Path)
	assert.Equal(t, 2, out.Deleted)

	onDisk, err := os.ReadFile(fullPath)
	require.NoError(t, err)
	assert.Equal(t, "a\nx\ny\nz\nd\n", string(onDisk))
}

func TestReplaceLines_PreservesIndentation(t *testing.T) {
	srv := newTestServer(t)
	path := "sample.go"
	fullPath := filepath.Join(srv.rootPath, path)
	require.NoError(t, os.WriteFile(fullPath, []byte("func f() {\n\told := 1\n}\n"), 0o644))

	_, _, err := srv.mcpReplaceLinesHandler(context.Background(), nil, ReplaceLinesInput{
		Path: path, StartLine: 2, EndLine: 2, Content: "new := 2", PreserveIndentation: true,
	})
	require.NoError(t, err)

	onDisk, err := os.ReadFile(fullPath)
	require.NoError(t, err)
	assert.Contains(t, string(onDisk), "\tnew := 2")
}

func TestDeleteLines_DeletesRange(t *testing.T) {
	srv := newTestServer(t)
	path := "sample.txt"
	fullPath := filepath.Join(srv.rootPath, path)
	require.NoError(t, os.WriteFile(fullPath, []byte("a\nb\nc\nd\n"), 0o644))

	_, out, err := srv.mcpDeleteLinesHandler(context.Background(), nil, DeleteLinesInput{
		Path: path, StartLine: 2, EndLine: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Deleted)

	onDisk, err := os.ReadFile(fullPath)
	require.NoError(t, err)
	assert.Equal(t, "a\nd\n", string(onDisk))
}

func TestDeleteLines_OutOfBounds_ReturnsError(t *testing.T) {
	srv := newTestServer(t)
	path := "sample.txt"
	fullPath := filepath.Join(srv.rootPath, path)
	require.NoError(t, os.WriteFile(fullPath, []byte("a\nb\n"), 0o644))

	_, _, err := srv.mcpDeleteLinesHandler(context.Background(), nil, DeleteLinesInput{
		Path: path, StartLine: 5, EndLine: 6,
	})
	require.Error(t, err)
}

func TestDeleteLines_MissingFile_ReturnsFileNotFound(t *testing.T) {
	srv := newTestServer(t)
	_, _, err := srv.mcpDeleteLinesHandler(context.Background(), nil, DeleteLinesInput{
		Path: "nope.txt", StartLine: 1, EndLine: 1,
	})
	require.Error(t, err)
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeFileNotFound, mcpErr.Code)
}

// ============================================================================
// index_workspace
// ============================================================================

func TestIndexWorkspace_NotConfigured(t *testing.T) {
	srv := newTestServer(t)
	_, out, err := srv.mcpIndexWorkspaceHandler(context.Background(), nil, IndexWorkspaceInput{})
	require.NoError(t, err)
	assert.Equal(t, "not_configured", out.Status)
	assert.False(t, out.Indexing)
}
