package mcp

// Input/output schemas for the spec §6 tool surface. Every search-family
// tool returns hits already shaped by C4 (internal/shaper): truncated
// hits carry a resource_uri a caller can dereference via ReadResource.

// TextSearchInput is the input schema for text_search.
type TextSearchInput struct {
	Query          string `json:"query" jsonschema:"the search text"`
	Mode           string `json:"mode,omitempty" jsonschema:"auto, exact, fuzzy, regex, symbol, or semantic; default auto"`
	CaseSensitive  bool   `json:"case_sensitive,omitempty" jsonschema:"match case exactly, default false"`
	Limit          int    `json:"limit,omitempty" jsonschema:"maximum hits before shaping, default 50"`
	ResponseMode   string `json:"response_mode,omitempty" jsonschema:"summary, adaptive, or full; default adaptive"`
	ResponseBudget int    `json:"response_budget,omitempty" jsonschema:"approximate token budget for the response, default 4000"`
	CacheBypass    bool   `json:"cache_bypass,omitempty" jsonschema:"skip the result cache for this request"`
}

// FileSearchInput is the input schema for file_search.
type FileSearchInput struct {
	Pattern string `json:"pattern" jsonschema:"glob pattern to match against file paths, e.g. **/*_test.go"`
	Limit   int    `json:"limit,omitempty" jsonschema:"maximum matches, default 100"`
}

// DirectorySearchInput is the input schema for directory_search.
type DirectorySearchInput struct {
	Pattern       string `json:"pattern,omitempty" jsonschema:"substring to match within directory paths"`
	IncludeHidden bool   `json:"include_hidden,omitempty" jsonschema:"include dot-directories, default false"`
	Limit         int    `json:"limit,omitempty" jsonschema:"maximum matches, default 200"`
}

// RecentFilesInput is the input schema for recent_files.
type RecentFilesInput struct {
	SinceUnix int64  `json:"since_unix,omitempty" jsonschema:"only files modified after this unix timestamp; default last 30 days"`
	ExtFilter string `json:"ext_filter,omitempty" jsonschema:"only files with this extension, e.g. .go"`
	Limit     int    `json:"limit,omitempty" jsonschema:"maximum files, default 50"`
}

// GotoDefinitionInput is the input schema for goto_definition.
type GotoDefinitionInput struct {
	Symbol        string `json:"symbol" jsonschema:"the symbol name to locate"`
	CaseSensitive bool   `json:"case_sensitive,omitempty" jsonschema:"match case exactly, default true"`
}

// FindReferencesInput is the input schema for find_references.
type FindReferencesInput struct {
	Symbol        string `json:"symbol" jsonschema:"the symbol name to find references to"`
	CaseSensitive bool   `json:"case_sensitive,omitempty" jsonschema:"match case exactly, default true"`
	GroupByFile   bool   `json:"group_by_file,omitempty" jsonschema:"group references by file path"`
}

// SearchAndReplaceInput is the input schema for search_and_replace.
type SearchAndReplaceInput struct {
	Pattern       string `json:"pattern" jsonschema:"literal text or regular expression to find"`
	Replacement   string `json:"replacement" jsonschema:"replacement text"`
	Regex         bool   `json:"regex,omitempty" jsonschema:"treat pattern as a regular expression"`
	CaseSensitive bool   `json:"case_sensitive,omitempty" jsonschema:"match case exactly, default true"`
	FileGlob      string `json:"file_glob,omitempty" jsonschema:"only touch files whose base name matches this glob"`
	DryRun        bool   `json:"dry_run,omitempty" jsonschema:"preview the change without writing, default true"`
}

// SmartRefactorInput is the input schema for smart_refactor, a single tool
// dispatching to C7's named operations by the operation field.
type SmartRefactorInput struct {
	Operation     string `json:"operation" jsonschema:"rename_symbol, extract_to_file, move_symbol_to_file, or extract_interface"`
	SymbolName    string `json:"symbol_name,omitempty" jsonschema:"symbol to rename, extract, move, or derive an interface from"`
	NewName       string `json:"new_name,omitempty" jsonschema:"new name for rename_symbol"`
	TargetPath    string `json:"target_path,omitempty" jsonschema:"destination file for extract_to_file/move_symbol_to_file/extract_interface"`
	InterfaceName string `json:"interface_name,omitempty" jsonschema:"name for extract_interface's generated interface"`
	DryRun        bool   `json:"dry_run,omitempty" jsonschema:"preview the change without writing, default true"`
}

// ReplaceLinesInput is the input schema for replace_lines.
type ReplaceLinesInput struct {
	Path                string `json:"path" jsonschema:"file path relative to the workspace root"`
	StartLine           int    `json:"start_line" jsonschema:"first line to replace, 1-based inclusive"`
	EndLine             int    `json:"end_line" jsonschema:"last line to replace, 1-based inclusive"`
	Content             string `json:"content" jsonschema:"replacement text"`
	PreserveIndentation bool   `json:"preserve_indentation,omitempty" jsonschema:"reindent replacement lines to match surrounding code"`
}

// DeleteLinesInput is the input schema for delete_lines.
type DeleteLinesInput struct {
	Path      string `json:"path" jsonschema:"file path relative to the workspace root"`
	StartLine int    `json:"start_line" jsonschema:"first line to delete, 1-based inclusive"`
	EndLine   int    `json:"end_line" jsonschema:"last line to delete, 1-based inclusive"`
}

// IndexWorkspaceInput is the input schema for index_workspace.
type IndexWorkspaceInput struct {
	Force bool `json:"force,omitempty" jsonschema:"re-index even if an index already exists"`
}

// HitOutput is one shaped search hit returned to the caller.
type HitOutput struct {
	FilePath    string   `json:"file_path"`
	StartLine   int      `json:"start_line,omitempty"`
	EndLine     int      `json:"end_line,omitempty"`
	Snippet     string   `json:"snippet,omitempty"`
	Symbol      string   `json:"symbol,omitempty"`
	SymbolType  string   `json:"symbol_type,omitempty"`
	Score       float64  `json:"score"`
	Source      string   `json:"source,omitempty"`
	Truncated   bool     `json:"truncated,omitempty"`
	ResourceURI string   `json:"resource_uri,omitempty"`
	Highlights  []string `json:"highlights,omitempty"`
}

// SearchOutput is the common shaped-response envelope for every
// search-family tool (spec §4.4's ShapedResponse).
type SearchOutput struct {
	Hits      []HitOutput `json:"hits"`
	Total     int         `json:"total"`
	Source    string      `json:"source,omitempty"`
	Reason    string      `json:"reason,omitempty"`
	FromCache bool        `json:"from_cache,omitempty"`
	Insights  []string    `json:"insights,omitempty"`
	Actions   []string    `json:"actions,omitempty"`
}

// ReferenceOutput is one located reference returned by find_references.
type ReferenceOutput struct {
	FilePath    string `json:"file_path"`
	Line        int    `json:"line"`
	Column      int    `json:"column"`
	Role        string `json:"role"`
	ContextLine string `json:"context_line,omitempty"`
}

// FindReferencesOutput is the output schema for find_references.
type FindReferencesOutput struct {
	References []ReferenceOutput            `json:"references,omitempty"`
	GroupedBy  map[string][]ReferenceOutput `json:"grouped_by_file,omitempty"`
	Total      int                          `json:"total"`
}

// FileChangeOutput mirrors refactor.FileChange for MCP serialization.
type FileChangeOutput struct {
	Path     string   `json:"path"`
	Before   string   `json:"before,omitempty"`
	After    string   `json:"after,omitempty"`
	Applied  bool     `json:"applied"`
	Warnings []string `json:"warnings,omitempty"`
}

// PlanOutput mirrors refactor.Plan for MCP serialization.
type PlanOutput struct {
	DryRun   bool               `json:"dry_run"`
	Summary  string             `json:"summary"`
	Files    []FileChangeOutput `json:"files,omitempty"`
	Warnings []string           `json:"warnings,omitempty"`
}

// EditOutput is the output schema for replace_lines and delete_lines.
type EditOutput struct {
	Path    string `json:"path"`
	Deleted int    `json:"lines_affected"`
}

// IndexWorkspaceOutput is the output schema for index_workspace.
type IndexWorkspaceOutput struct {
	Status   string            `json:"status"` // "started", "already_running", "not_configured"
	Indexing *IndexingProgress `json:"indexing,omitempty"`
}

// ProjectInfo describes the detected project (teacher's project.go
// ProjectDetector; kept for index_workspace's workspace identification).
type ProjectInfo struct {
	Name     string `json:"name"`
	RootPath string `json:"root_path"`
	Type     string `json:"type"`
}

// IndexingProgress reports the state of a background index_workspace run,
// surfaced on any tool call made while a commit is in flight (spec §3
// supplemented feature: index progress / background indexing status).
type IndexingProgress struct {
	Status         string  `json:"status"` // "indexing", "ready", or "error"
	Stage          string  `json:"stage,omitempty"`
	FilesTotal     int     `json:"files_total"`
	FilesProcessed int     `json:"files_processed"`
	ChunksIndexed  int     `json:"chunks_indexed"`
	ProgressPct    float64 `json:"progress_pct"`
	ElapsedSeconds int     `json:"elapsed_seconds"`
	ErrorMessage   string  `json:"error_message,omitempty"`
}
