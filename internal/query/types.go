// Package query implements the C2 tiered query planner: it turns a Query
// Request into 1-3 calls against the workspace store (C1), merges and
// falls back between tiers per spec §4.2, then hands the merged hits to
// C3 (scorer) and C4 (shaper) before returning a shaped response.
package query

import (
	"github.com/codeintel-go/engine/internal/scorer"
)

// Mode selects how the planner routes a query across tiers.
type Mode string

const (
	ModeAuto    Mode = "auto"
	ModeExact   Mode = "exact"
	ModeFuzzy   Mode = "fuzzy"
	ModeRegex   Mode = "regex"
	ModeSymbol  Mode = "symbol"
	ModeSemantic Mode = "semantic"
)

// Request is the opaque-to-the-caller query request the spec names;
// internally it is fully structured before it reaches the planner.
type Request struct {
	ProjectID     string
	Mode          Mode
	Text          string
	CaseSensitive bool
	Limit         int
	ResponseBudget int
	CacheBypass   bool

	// Operation narrows which Tier 1 path applies when set; empty means a
	// plain text/symbol query. One of "goto_definition", "recent_files",
	// "directory_search", "" (default text search).
	Operation string

	// Operation-specific parameters.
	ExtFilter      string   // recent_files
	SinceUnix      int64    // recent_files
	DirPattern     string   // directory_search
	IncludeHidden  bool     // directory_search
	FileGlob       string   // file_search
}

// Result is the planner's merged, scored, shaped output for one request.
type Result struct {
	Hits        []scorer.Hit
	Total       int
	Source      string // "tier1", "tier2", "tier2+tier3", "tier3"
	Reason      string // Smart Query Preprocessor's human-readable explanation (Auto mode)
	FromCache   bool
	Elapsed     int64 // microseconds
}
