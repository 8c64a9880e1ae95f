// Package scorer implements the C3 multi-factor re-ranker: a set of
// monotone, bounded scoring factors applied additively on top of a tier's
// base relevance score (spec §4.3). Every factor is deterministic and
// clamped so the combined score never goes negative.
package scorer

import (
	"path"
	"strings"
	"time"

	"github.com/codeintel-go/engine/internal/config"
)

// Hit is the common result shape threaded through C2 (Query Planner), C3
// (this package), and C4 (Response Shaper). Tier1/Tier2/Tier3 all produce
// Hits; the scorer only ever adjusts Score.
type Hit struct {
	ChunkID    string
	FilePath   string
	StartLine  int
	EndLine    int
	Content    string
	Snippet    string
	Symbol     string
	SymbolType string
	Language   string
	ModTime    time.Time
	Score      float64
	Source     string // "tier1", "tier2", "tier3"
	Highlights []string
}

// ScoringQuery carries the request-side context a factor needs: the raw
// query text and, for interface/implementation deboost, whether the query
// looks like an interface name.
type ScoringQuery struct {
	Text          string
	InterfaceHint bool
}

// sourceExtensions are boosted by the file-type factor; everything else
// (binary/data formats) is left alone or deboosted.
var sourceExtensions = map[string]bool{
	".go": true, ".ts": true, ".tsx": true, ".js": true, ".jsx": true,
	".py": true, ".rs": true, ".java": true, ".c": true, ".cpp": true,
	".h": true, ".hpp": true, ".rb": true, ".cs": true, ".swift": true,
	".kt": true, ".md": true,
}

var binaryDataExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".ico": true,
	".woff": true, ".woff2": true, ".ttf": true, ".zip": true, ".tar": true,
	".gz": true, ".exe": true, ".so": true, ".dylib": true, ".lock": true,
}

var deboostPathSegments = []string{
	"/test/", "/tests/", "/__tests__/", "/mock/", "/mocks/", "/.git/",
	"/node_modules/", "/dist/", "/build/", "/out/", "/vendor/",
}

var testMockNamePattern = []string{"mock", "fake", "stub", "test"}

const recencyHalfLifeDays = 90.0

// Rerank applies every scoring factor additively to each hit's base score,
// clamps the result at zero, and returns a new slice sorted by
// (score desc, path asc, start_line asc) per spec §8's tie-break contract.
func Rerank(hits []Hit, q ScoringQuery, weights config.ScoringConfig) []Hit {
	out := make([]Hit, len(hits))
	copy(out, hits)

	for i := range out {
		h := &out[i]
		delta := 0.0
		delta += pathFactor(h.FilePath, weights.PathWeight)
		delta += filenameFactor(h.FilePath, q.Text, weights.FilenameWeight)
		delta += fileTypeFactor(h.FilePath, weights.FileTypeWeight)
		delta += recencyFactor(h.ModTime, weights.RecencyWeight)
		delta += exactMatchFactor(h.Content, q.Text, weights.ExactPhraseBoost)
		delta += interfaceFactor(h.Symbol, h.SymbolType, q, weights.TestMockDeboost)

		h.Score += delta
		if h.Score < 0 {
			h.Score = 0
		}
	}

	sortHits(out)
	return out
}

// pathFactor deboosts hits under conventionally-noisy directories (tests,
// mocks, vendored/build output) so primary implementation files surface first.
func pathFactor(filePath string, weight float64) float64 {
	norm := "/" + strings.ReplaceAll(filePath, "\\", "/")
	lower := strings.ToLower(norm)
	for _, seg := range deboostPathSegments {
		if strings.Contains(lower, seg) {
			return -weight
		}
	}
	return 0
}

// filenameFactor boosts hits whose filename (without extension) contains
// a query term, on the theory that "parser" matching parser.go is a
// stronger signal than matching it deep in unrelated content.
func filenameFactor(filePath, query string, weight float64) float64 {
	if query == "" {
		return 0
	}
	base := strings.ToLower(path.Base(filePath))
	base = strings.TrimSuffix(base, path.Ext(base))
	terms := strings.Fields(strings.ToLower(query))
	for _, t := range terms {
		if len(t) >= 2 && strings.Contains(base, t) {
			return weight
		}
	}
	return 0
}

// fileTypeFactor boosts known source extensions and deboosts binary/data
// formats that should rarely outrank real source hits.
func fileTypeFactor(filePath string, weight float64) float64 {
	ext := strings.ToLower(path.Ext(filePath))
	if sourceExtensions[ext] {
		return weight
	}
	if binaryDataExtensions[ext] {
		return -weight
	}
	return 0
}

// recencyFactor monotonically boosts more recently modified files,
// saturating around recencyHalfLifeDays so very old files are not
// penalized indefinitely.
func recencyFactor(modTime time.Time, weight float64) float64 {
	if modTime.IsZero() || weight == 0 {
		return 0
	}
	days := time.Since(modTime).Hours() / 24
	if days < 0 {
		days = 0
	}
	// Exponential decay toward 0, saturating near recencyHalfLifeDays.
	ratio := 1.0
	if days > 0 {
		ratio = 1.0 / (1.0 + days/recencyHalfLifeDays)
	}
	return weight * ratio
}

// exactMatchFactor boosts hits containing the literal query phrase, which
// is a strong relevance signal independent of whichever tier found the hit.
func exactMatchFactor(content, query string, weight float64) float64 {
	if query == "" || content == "" {
		return 0
	}
	if strings.Contains(strings.ToLower(content), strings.ToLower(query)) {
		return weight
	}
	return 0
}

// interfaceFactor deboosts mock/test/stub-named symbols when the query
// looks like it is hunting for an interface's real implementation, not
// its test doubles.
func interfaceFactor(symbol, symbolType string, q ScoringQuery, weight float64) float64 {
	if !q.InterfaceHint || symbol == "" {
		return 0
	}
	lower := strings.ToLower(symbol)
	for _, marker := range testMockNamePattern {
		if strings.Contains(lower, marker) {
			return weight // weight is configured negative (TestMockDeboost)
		}
	}
	return 0
}

func sortHits(hits []Hit) {
	// Simple insertion sort variant via stable comparison; result sets are
	// small (tens to low hundreds) so this is not a hot loop.
	for i := 1; i < len(hits); i++ {
		j := i
		for j > 0 && less(hits[j], hits[j-1]) {
			hits[j], hits[j-1] = hits[j-1], hits[j]
			j--
		}
	}
}

func less(a, b Hit) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.FilePath != b.FilePath {
		return a.FilePath < b.FilePath
	}
	return a.StartLine < b.StartLine
}

// LooksLikeInterfaceQuery is a cheap heuristic the query planner can use to
// populate ScoringQuery.InterfaceHint: queries naming an "I"-prefixed or
// "-er"-suffixed identifier are plausibly interface lookups.
func LooksLikeInterfaceQuery(query string) bool {
	q := strings.TrimSpace(query)
	if q == "" {
		return false
	}
	if len(q) >= 2 && q[0] == 'I' && q[1] >= 'A' && q[1] <= 'Z' {
		return true
	}
	return strings.HasSuffix(q, "er") || strings.HasSuffix(q, "Interface")
}
