// Package mcp implements the Model Context Protocol (MCP) server exposing
// the C2-C8 pipeline as the spec §6 tool surface: text_search, file_search,
// directory_search, recent_files, goto_definition, find_references,
// search_and_replace, smart_refactor, replace_lines, delete_lines, and
// index_workspace.
package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/codeintel-go/engine/internal/async"
	"github.com/codeintel-go/engine/internal/config"
	"github.com/codeintel-go/engine/internal/fileedit"
	"github.com/codeintel-go/engine/internal/query"
	"github.com/codeintel-go/engine/internal/refactor"
	"github.com/codeintel-go/engine/internal/resolver"
	"github.com/codeintel-go/engine/internal/scorer"
	"github.com/codeintel-go/engine/internal/shaper"
	"github.com/codeintel-go/engine/internal/store"
	"github.com/codeintel-go/engine/internal/telemetry"
	"github.com/codeintel-go/engine/pkg/version"
)

// Server is the MCP server bridging AI clients (Claude Code, Cursor) with
// the tiered query planner (C2) and refactor executor (C7).
type Server struct {
	mcp           *mcp.Server
	planner       *query.Planner
	executor      *refactor.Executor
	resolver      *resolver.Resolver
	editor        *fileedit.Editor
	metadata      store.MetadataStore
	resourceStore *shaper.ResourceStore
	config        *config.Config
	logger        *slog.Logger

	projectID string
	rootPath  string

	indexer       *async.BackgroundIndexer
	indexProgress *async.IndexProgress

	metrics *telemetry.QueryMetrics

	mu sync.RWMutex
}

// NewServer creates a new MCP server. planner, executor, metadata, and
// editor are required; the rest of the C2-C8 pipeline is reached through
// them. editor must be the same *fileedit.Editor instance used to build
// executor, so replace_lines/delete_lines serialize against the same
// per-path locks as smart_refactor/search_and_replace.
func NewServer(planner *query.Planner, executor *refactor.Executor, metadata store.MetadataStore, editor *fileedit.Editor, cfg *config.Config, projectID, rootPath string) (*Server, error) {
	if planner == nil {
		return nil, errors.New("query planner is required")
	}
	if metadata == nil {
		return nil, errors.New("metadata store is required")
	}
	if editor == nil {
		return nil, errors.New("file editor is required")
	}
	if cfg == nil {
		cfg = config.NewConfig()
	}

	s := &Server{
		planner:       planner,
		executor:      executor,
		resolver:      resolver.New(metadata),
		editor:        editor,
		metadata:      metadata,
		resourceStore: shaper.NewResourceStore(),
		config:        cfg,
		projectID:     projectID,
		rootPath:      rootPath,
		logger:        slog.Default(),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "codeintel",
			Version: version.Version,
		},
		nil,
	)

	s.registerTools()
	return s, nil
}

// SetIndexer wires the background indexer that backs index_workspace.
// fn performs the actual scan/chunk/embed/commit work; it is constructed
// by cmd/codeintel, which owns the concrete index.Runner dependencies.
func (s *Server) SetIndexer(dataDir string, fn async.IndexFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexer = async.NewBackgroundIndexer(async.IndexerConfig{DataDir: dataDir})
	s.indexer.IndexFunc = fn
	s.indexProgress = s.indexer.Progress()
}

// SetMetrics sets the query metrics collector for telemetry. When set, a
// query_metrics resource is registered.
func (s *Server) SetMetrics(m *telemetry.QueryMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = m
	s.registerQueryMetricsResource()
}

func (s *Server) responseBudget() int {
	return 4000
}

// currentIndexingProgress reports the in-flight index_workspace run, if
// any, so every tool call can surface it instead of returning silently
// stale or partial results while a commit is in progress.
func (s *Server) currentIndexingProgress() *IndexingProgress {
	s.mu.RLock()
	progress := s.indexProgress
	s.mu.RUnlock()
	if progress == nil || !progress.IsIndexing() {
		return nil
	}
	snap := progress.Snapshot()
	return &IndexingProgress{
		Status: snap.Status, Stage: snap.Stage,
		FilesTotal: snap.FilesTotal, FilesProcessed: snap.FilesProcessed,
		ChunksIndexed: snap.ChunksIndexed, ProgressPct: snap.ProgressPct,
		ElapsedSeconds: snap.ElapsedSeconds, ErrorMessage: snap.ErrorMessage,
	}
}

func (s *Server) registerTools() {
	s.logger.Debug("registering MCP tools")

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "text_search",
		Description: "Primary search tool: routes a query across the symbol DB, inverted index, and (when available) semantic index, automatically picking the cheapest tier that answers it. Use for most lookups instead of grep.",
	}, s.mcpTextSearchHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "file_search",
		Description: "Finds indexed files by glob pattern against their relative path, e.g. **/*_test.go.",
	}, s.mcpFileSearchHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "directory_search",
		Description: "Finds directories under the workspace matching a substring pattern.",
	}, s.mcpDirectorySearchHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "recent_files",
		Description: "Lists recently modified files, optionally filtered by extension.",
	}, s.mcpRecentFilesHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "goto_definition",
		Description: "Resolves a symbol name to its declaration site via the symbol DB.",
	}, s.mcpGotoDefinitionHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "find_references",
		Description: "Finds every occurrence of a symbol via the identifier-occurrence table, never via text search.",
	}, s.mcpFindReferencesHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_and_replace",
		Description: "Finds and replaces literal text or a regular expression across indexed files, bounded by configured file/match limits. Defaults to dry_run.",
	}, s.mcpSearchAndReplaceHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "smart_refactor",
		Description: "Symbol-aware refactors: rename_symbol, extract_to_file, move_symbol_to_file, extract_interface. Defaults to dry_run.",
	}, s.mcpSmartRefactorHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "replace_lines",
		Description: "Replaces a 1-based inclusive line range in a file with new content, optionally reindenting to match surrounding code.",
	}, s.mcpReplaceLinesHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "delete_lines",
		Description: "Deletes a 1-based inclusive line range from a file.",
	}, s.mcpDeleteLinesHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index_workspace",
		Description: "Starts (or reports progress on) building the workspace index in the background.",
	}, s.mcpIndexWorkspaceHandler)

	s.logger.Info("MCP tools registered", slog.Int("count", 11))
}

// --- search-family handlers ------------------------------------------------

func (s *Server) mcpTextSearchHandler(ctx context.Context, req *mcp.CallToolRequest, input TextSearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	if input.Query == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query is required")
	}
	qr := query.Request{
		ProjectID: s.projectID, Mode: query.Mode(orDefault(input.Mode, string(query.ModeAuto))),
		Text: input.Query, CaseSensitive: input.CaseSensitive, Limit: input.Limit,
		CacheBypass: input.CacheBypass,
	}
	start := time.Now()
	result, err := s.planner.Plan(ctx, qr)
	if err != nil {
		return nil, SearchOutput{}, MapError(err)
	}
	s.recordQueryMetrics(input.Query, result, time.Since(start))
	budget := input.ResponseBudget
	if budget <= 0 {
		budget = s.responseBudget()
	}
	shaped := shaper.Shape(result.Hits, budget, shaper.ResponseMode(input.ResponseMode), s.resourceStore)
	for _, h := range shaped.Hits {
		if h.ResourceURI != "" {
			s.registerShapedHitResource(h.ResourceURI)
		}
	}
	return nil, toSearchOutput(shaped, result), nil
}

// recordQueryMetrics feeds a completed text_search into the telemetry
// collector, when one is configured via SetMetrics. The tier that actually
// answered the query (tier2 lexical, tier3 semantic, or a tier2+tier3
// merge) maps directly onto the metrics collector's query-type buckets.
func (s *Server) recordQueryMetrics(queryText string, result *query.Result, elapsed time.Duration) {
	s.mu.RLock()
	metrics := s.metrics
	s.mu.RUnlock()
	if metrics == nil {
		return
	}
	qt := telemetry.QueryTypeLexical
	switch result.Source {
	case "tier3":
		qt = telemetry.QueryTypeSemantic
	case "tier2+tier3":
		qt = telemetry.QueryTypeMixed
	}
	metrics.Record(telemetry.QueryEvent{
		Query: queryText, QueryType: qt, ResultCount: len(result.Hits),
		Latency: elapsed, Timestamp: time.Now(),
	})
}

func (s *Server) mcpFileSearchHandler(ctx context.Context, req *mcp.CallToolRequest, input FileSearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	if input.Pattern == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("pattern is required")
	}
	limit := input.Limit
	if limit <= 0 {
		limit = 100
	}

	var hits []scorer.Hit
	cursor := ""
	for len(hits) < limit {
		files, next, err := s.metadata.ListFiles(ctx, s.projectID, cursor, 500)
		if err != nil {
			return nil, SearchOutput{}, MapError(err)
		}
		for _, f := range files {
			if ok, _ := filepath.Match(input.Pattern, f.Path); ok {
				hits = append(hits, scorer.Hit{FilePath: f.Path, Language: f.Language, ModTime: f.ModTime, Source: "tier1", Score: 1.0})
				if len(hits) >= limit {
					break
				}
			}
		}
		if next == "" || len(files) == 0 {
			break
		}
		cursor = next
	}

	shaped := shaper.Shape(hits, s.responseBudget(), shaper.ModeFull, s.resourceStore)
	return nil, toSearchOutput(shaped, &query.Result{Total: len(hits), Source: "tier1"}), nil
}

func (s *Server) mcpDirectorySearchHandler(ctx context.Context, req *mcp.CallToolRequest, input DirectorySearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	qr := query.Request{
		ProjectID: s.projectID, Operation: "directory_search",
		DirPattern: input.Pattern, IncludeHidden: input.IncludeHidden, Limit: input.Limit,
	}
	result, err := s.planner.Plan(ctx, qr)
	if err != nil {
		return nil, SearchOutput{}, MapError(err)
	}
	shaped := shaper.Shape(result.Hits, s.responseBudget(), shaper.ModeFull, s.resourceStore)
	return nil, toSearchOutput(shaped, result), nil
}

func (s *Server) mcpRecentFilesHandler(ctx context.Context, req *mcp.CallToolRequest, input RecentFilesInput) (*mcp.CallToolResult, SearchOutput, error) {
	qr := query.Request{
		ProjectID: s.projectID, Operation: "recent_files",
		SinceUnix: input.SinceUnix, ExtFilter: input.ExtFilter, Limit: input.Limit,
	}
	result, err := s.planner.Plan(ctx, qr)
	if err != nil {
		return nil, SearchOutput{}, MapError(err)
	}
	shaped := shaper.Shape(result.Hits, s.responseBudget(), shaper.ModeFull, s.resourceStore)
	return nil, toSearchOutput(shaped, result), nil
}

func (s *Server) mcpGotoDefinitionHandler(ctx context.Context, req *mcp.CallToolRequest, input GotoDefinitionInput) (*mcp.CallToolResult, SearchOutput, error) {
	if input.Symbol == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("symbol is required")
	}
	qr := query.Request{
		ProjectID: s.projectID, Operation: "goto_definition",
		Text: input.Symbol, CaseSensitive: input.CaseSensitive,
	}
	result, err := s.planner.Plan(ctx, qr)
	if err != nil {
		return nil, SearchOutput{}, MapError(err)
	}
	shaped := shaper.Shape(result.Hits, s.responseBudget(), shaper.ModeFull, s.resourceStore)
	return nil, toSearchOutput(shaped, result), nil
}

func (s *Server) mcpFindReferencesHandler(ctx context.Context, req *mcp.CallToolRequest, input FindReferencesInput) (*mcp.CallToolResult, FindReferencesOutput, error) {
	if input.Symbol == "" {
		return nil, FindReferencesOutput{}, NewInvalidParamsError("symbol is required")
	}
	refs, err := s.resolver.FindReferences(ctx, s.projectID, input.Symbol, input.CaseSensitive)
	if err != nil {
		return nil, FindReferencesOutput{}, MapError(err)
	}

	out := FindReferencesOutput{Total: len(refs)}
	if input.GroupByFile {
		grouped := resolver.GroupByFile(refs)
		out.GroupedBy = make(map[string][]ReferenceOutput, len(grouped))
		for path, rs := range grouped {
			out.GroupedBy[path] = toReferenceOutputs(rs)
		}
	} else {
		out.References = toReferenceOutputs(refs)
	}
	return nil, out, nil
}

// --- write-family handlers --------------------------------------------------

func (s *Server) mcpSearchAndReplaceHandler(ctx context.Context, req *mcp.CallToolRequest, input SearchAndReplaceInput) (*mcp.CallToolResult, PlanOutput, error) {
	if s.executor == nil {
		return nil, PlanOutput{}, NewInvalidParamsError("refactor executor is not configured")
	}
	if input.Pattern == "" {
		return nil, PlanOutput{}, NewInvalidParamsError("pattern is required")
	}
	plan, err := s.executor.SearchAndReplace(ctx, s.projectID, refactor.SearchAndReplaceOptions{
		Pattern: input.Pattern, Replacement: input.Replacement, Regex: input.Regex,
		CaseSensitive: input.CaseSensitive, FileGlob: input.FileGlob,
	}, input.DryRun)
	if err != nil {
		return nil, PlanOutput{}, MapError(err)
	}
	return nil, toPlanOutput(plan), nil
}

func (s *Server) mcpSmartRefactorHandler(ctx context.Context, req *mcp.CallToolRequest, input SmartRefactorInput) (*mcp.CallToolResult, PlanOutput, error) {
	if s.executor == nil {
		return nil, PlanOutput{}, NewInvalidParamsError("refactor executor is not configured")
	}
	dryRun := input.DryRun

	var plan *refactor.Plan
	var err error
	switch input.Operation {
	case "rename_symbol":
		plan, err = s.executor.RenameSymbol(ctx, s.projectID, input.SymbolName, input.NewName, dryRun)
	case "extract_to_file":
		plan, err = s.executor.ExtractToFile(ctx, s.projectID, input.SymbolName, input.TargetPath, dryRun)
	case "move_symbol_to_file":
		plan, err = s.executor.MoveSymbolToFile(ctx, s.projectID, input.SymbolName, input.TargetPath, dryRun)
	case "extract_interface":
		plan, err = s.executor.ExtractInterface(ctx, s.projectID, input.SymbolName, input.InterfaceName, input.TargetPath, dryRun)
	default:
		return nil, PlanOutput{}, NewInvalidParamsError(fmt.Sprintf("unknown smart_refactor operation: %q", input.Operation))
	}
	if err != nil {
		return nil, PlanOutput{}, MapError(err)
	}
	return nil, toPlanOutput(plan), nil
}

func (s *Server) mcpReplaceLinesHandler(ctx context.Context, req *mcp.CallToolRequest, input ReplaceLinesInput) (*mcp.CallToolResult, EditOutput, error) {
	if input.Path == "" {
		return nil, EditOutput{}, NewInvalidParamsError("path is required")
	}
	fullPath, ok := s.resolveWorkspacePath(input.Path)
	if !ok {
		return nil, EditOutput{}, NewInvalidParamsError("invalid path")
	}
	result, err := s.editor.ReplaceLines(fullPath, input.StartLine, input.EndLine, input.Content, input.PreserveIndentation)
	if err != nil {
		return nil, EditOutput{}, MapError(err)
	}
	return nil, EditOutput{Path: input.Path, Deleted: result.Deleted}, nil
}

func (s *Server) mcpDeleteLinesHandler(ctx context.Context, req *mcp.CallToolRequest, input DeleteLinesInput) (*mcp.CallToolResult, EditOutput, error) {
	if input.Path == "" {
		return nil, EditOutput{}, NewInvalidParamsError("path is required")
	}
	fullPath, ok := s.resolveWorkspacePath(input.Path)
	if !ok {
		return nil, EditOutput{}, NewInvalidParamsError("invalid path")
	}
	result, err := s.editor.DeleteLines(fullPath, input.StartLine, input.EndLine)
	if err != nil {
		return nil, EditOutput{}, MapError(err)
	}
	return nil, EditOutput{Path: input.Path, Deleted: result.Deleted}, nil
}

func (s *Server) mcpIndexWorkspaceHandler(ctx context.Context, req *mcp.CallToolRequest, input IndexWorkspaceInput) (*mcp.CallToolResult, IndexWorkspaceOutput, error) {
	s.mu.Lock()
	indexer := s.indexer
	s.mu.Unlock()

	if indexer == nil {
		return nil, IndexWorkspaceOutput{Status: "not_configured"}, nil
	}
	if indexer.IsRunning() {
		return nil, IndexWorkspaceOutput{Status: "already_running", Indexing: s.currentIndexingProgress()}, nil
	}

	indexer.Start(ctx)
	return nil, IndexWorkspaceOutput{Status: "started", Indexing: s.currentIndexingProgress()}, nil
}

// --- conversion helpers -----------------------------------------------------

func toSearchOutput(shaped shaper.ShapedResponse, result *query.Result) SearchOutput {
	out := SearchOutput{
		Hits:     make([]HitOutput, len(shaped.Hits)),
		Total:    shaped.Total,
		Insights: shaped.Insights,
		Actions:  shaped.Actions,
	}
	if result != nil {
		out.Source = result.Source
		out.Reason = result.Reason
		out.FromCache = result.FromCache
	}
	for i, h := range shaped.Hits {
		out.Hits[i] = HitOutput{
			FilePath: h.FilePath, StartLine: h.StartLine, EndLine: h.EndLine,
			Snippet: h.Snippet, Symbol: h.Symbol, SymbolType: h.SymbolType,
			Score: h.Score, Source: h.Source, Truncated: h.Truncated,
			ResourceURI: h.ResourceURI, Highlights: h.Highlights,
		}
	}
	return out
}

func toReferenceOutputs(refs []resolver.ResolvedReference) []ReferenceOutput {
	out := make([]ReferenceOutput, len(refs))
	for i, r := range refs {
		out[i] = ReferenceOutput{
			FilePath: r.FilePath, Line: r.Line, Column: r.Column,
			Role: string(r.ReferenceType), ContextLine: r.ContextLine,
		}
	}
	return out
}

func toPlanOutput(plan *refactor.Plan) PlanOutput {
	out := PlanOutput{DryRun: plan.DryRun, Summary: plan.Summary, Warnings: plan.Warnings}
	out.Files = make([]FileChangeOutput, len(plan.Files))
	for i, f := range plan.Files {
		out.Files[i] = FileChangeOutput{Path: f.Path, Before: f.Before, After: f.After, Applied: f.Applied, Warnings: f.Warnings}
	}
	return out
}

// resolveWorkspacePath joins a relative path against rootPath after
// validating it cannot escape the workspace, mirroring
// handleReadResource's path-traversal guard in resources.go.
func (s *Server) resolveWorkspacePath(relPath string) (string, bool) {
	if !s.isValidPath(relPath) {
		return "", false
	}
	return filepath.Join(s.rootPath, relPath), true
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// Serve starts the server with the specified transport.
func (s *Server) Serve(ctx context.Context, transport, addr string) error {
	s.logger.Info("starting MCP server", slog.String("transport", transport), slog.String("addr", addr))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && err != context.Canceled {
			s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
		} else {
			s.logger.Info("MCP server stopped gracefully")
		}
		return err
	case "sse":
		return fmt.Errorf("SSE transport not yet implemented")
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// Close releases server resources.
func (s *Server) Close() error {
	return nil
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
