package query

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/codeintel-go/engine/internal/cache"
	"github.com/codeintel-go/engine/internal/config"
	engerrors "github.com/codeintel-go/engine/internal/errors"
	"github.com/codeintel-go/engine/internal/resolver"
	"github.com/codeintel-go/engine/internal/scorer"
	"github.com/codeintel-go/engine/internal/shaper"
	"github.com/codeintel-go/engine/internal/store"
	"github.com/codeintel-go/engine/pkg/producer"
)

// Planner routes Query Requests across C1's three tiers, merges and falls
// back between them per spec §4.2, re-ranks with C3, and caches results
// with C5. It never constructs a unified store.Store: the tiers are
// distinct capabilities (BM25, vector, metadata) wired independently, each
// an expected-absent branch rather than a hard dependency.
type Planner struct {
	bm25      store.BM25Index   // may be nil: Tier 2 reports IndexNotFound
	vector    store.VectorStore // may be nil: Tier 3 reports SemanticUnavailable
	metadata  store.MetadataStore
	embedder  producer.EmbeddingModel // may be nil alongside vector
	resolver  *resolver.Resolver
	cache     *cache.Cache
	scoring   config.ScoringConfig
	storeCfg  config.StoreConfig
	sf        singleflight.Group
}

// New creates a Planner. vector/embedder may both be nil when the
// workspace has no semantic tier configured (spec's IsSemanticSearchAvailable
// capability flag, modeled here as a nil check rather than a sentinel error).
func New(bm25 store.BM25Index, vector store.VectorStore, metadata store.MetadataStore, embedder producer.EmbeddingModel, c *cache.Cache, cfg *config.Config) *Planner {
	return &Planner{
		bm25:     bm25,
		vector:   vector,
		metadata: metadata,
		embedder: embedder,
		resolver: resolver.New(metadata),
		cache:    c,
		scoring:  cfg.Scoring,
		storeCfg: cfg.Store,
	}
}

func (p *Planner) semanticAvailable() bool {
	return p.vector != nil && p.embedder != nil
}

// Plan is the single entry point: it dispatches mode routing, runs the
// fallback graph, scores, and returns a Result. Shaping into a
// shaper.ShapedResponse is the caller's job (the MCP tool layer decides
// the response budget and resource store per request).
func (p *Planner) Plan(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	if req.Text == "" && req.Operation == "" {
		return nil, engerrors.New(engerrors.CodeInvalidQuery, "query text or operation is required", nil)
	}

	key := cache.Key(toolNameFor(req), req)
	if p.cache != nil && !req.CacheBypass {
		if v, ok := p.cache.Get(toolNameFor(req), key); ok {
			if res, ok := v.(*Result); ok {
				cached := *res
				cached.FromCache = true
				return &cached, nil
			}
		}
	}

	resIface, err, _ := p.sf.Do(key, func() (interface{}, error) {
		return p.plan(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	result := resIface.(*Result)
	result.Elapsed = time.Since(start).Microseconds()

	if p.cache != nil {
		p.cache.Set(toolNameFor(req), key, result)
	}
	return result, nil
}

func toolNameFor(req Request) string {
	if req.Operation != "" {
		return req.Operation
	}
	return "text_search"
}

func (p *Planner) plan(ctx context.Context, req Request) (*Result, error) {
	switch req.Operation {
	case "goto_definition":
		return p.gotoDefinition(ctx, req)
	case "recent_files":
		return p.recentFiles(ctx, req)
	case "directory_search":
		return p.directorySearch(ctx, req)
	}

	switch req.Mode {
	case ModeSemantic:
		return p.semanticOnly(ctx, req)
	case ModeSymbol:
		return p.symbolSearch(ctx, req)
	default:
		return p.textSearch(ctx, req)
	}
}

// --- Tier 1: structured ---------------------------------------------------

func (p *Planner) gotoDefinition(ctx context.Context, req Request) (*Result, error) {
	symbols, err := p.resolver.GotoDefinition(ctx, req.ProjectID, req.Text, req.CaseSensitive)
	if err == nil {
		hits := make([]scorer.Hit, len(symbols))
		for i, s := range symbols {
			hits[i] = scorer.Hit{
				FilePath: s.FilePath, StartLine: s.StartLine, EndLine: s.EndLine,
				Symbol: s.Name, SymbolType: string(s.Type), Language: s.Language,
				Content: s.Signature, Source: "tier1", Score: 1.0,
			}
		}
		return &Result{Hits: hits, Total: len(hits), Source: "tier1"}, nil
	}
	if engerrors.GetCode(err) != engerrors.CodeSymbolNotFound {
		return nil, err
	}

	// Symbol DB miss: fall back to Tier 2 on type_names (spec §4.2).
	tier2, err := p.tier2Inverted(ctx, req.ProjectID, req.Text, "type_names", req.CaseSensitive, limitOrDefault(req.Limit))
	if err != nil {
		return nil, err
	}
	return &Result{Hits: tier2, Total: len(tier2), Source: "tier2", Reason: "goto_definition: symbol DB miss, fell back to type_names"}, nil
}

func (p *Planner) recentFiles(ctx context.Context, req Request) (*Result, error) {
	since := time.Unix(req.SinceUnix, 0)
	if req.SinceUnix == 0 {
		since = time.Now().AddDate(0, 0, -30)
	}
	files, err := p.metadata.GetRecentFiles(ctx, req.ProjectID, since, req.ExtFilter, limitOrDefault(req.Limit))
	if err != nil {
		return nil, engerrors.Wrap(engerrors.CodeSearchError, err)
	}
	hits := make([]scorer.Hit, len(files))
	for i, f := range files {
		hits[i] = scorer.Hit{FilePath: f.Path, Language: f.Language, ModTime: f.ModTime, Source: "tier1", Score: 1.0}
	}
	return &Result{Hits: hits, Total: len(hits), Source: "tier1"}, nil
}

func (p *Planner) directorySearch(ctx context.Context, req Request) (*Result, error) {
	paths, err := p.metadata.ListFilePathsUnder(ctx, req.ProjectID, req.DirPattern)
	if err == nil && len(paths) > 0 {
		hits := filterDirectoryPaths(paths, req.DirPattern, req.IncludeHidden)
		return &Result{Hits: hits, Total: len(hits), Source: "tier1"}, nil
	}

	// DB miss: Tier 2 MatchAll, then filter (spec §4.2).
	all, err := p.tier2Inverted(ctx, req.ProjectID, "*", "path", req.CaseSensitive, p.storeCfg.MaxFiles)
	if err != nil {
		return nil, err
	}
	matched := make([]string, 0, len(all))
	for _, h := range all {
		matched = append(matched, h.FilePath)
	}
	hits := filterDirectoryPaths(matched, req.DirPattern, req.IncludeHidden)
	return &Result{Hits: hits, Total: len(hits), Source: "tier2", Reason: "directory_search: DB miss, fell back to MatchAll+filter"}, nil
}

func filterDirectoryPaths(paths []string, pattern string, includeHidden bool) []scorer.Hit {
	var hits []scorer.Hit
	for _, path := range paths {
		if !includeHidden && strings.Contains(path, "/.") {
			continue
		}
		if pattern != "" && !strings.Contains(path, pattern) {
			continue
		}
		hits = append(hits, scorer.Hit{FilePath: path, Source: "tier1", Score: 1.0})
	}
	return hits
}

// --- Tier 2 / Tier 3 dispatch ---------------------------------------------

func (p *Planner) symbolSearch(ctx context.Context, req Request) (*Result, error) {
	hits, err := p.tier2Inverted(ctx, req.ProjectID, req.Text, "content_symbols", req.CaseSensitive, limitOrDefault(req.Limit))
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		// Symbol search zero hits -> retry on content (spec §4.2).
		retry, err := p.tier2Inverted(ctx, req.ProjectID, req.Text, "content", req.CaseSensitive, limitOrDefault(req.Limit))
		if err != nil {
			return nil, err
		}
		hits = retry
	}
	scored := p.rerank(hits, req)
	return &Result{Hits: scored, Total: len(scored), Source: "tier2"}, nil
}

func (p *Planner) semanticOnly(ctx context.Context, req Request) (*Result, error) {
	if !p.semanticAvailable() {
		return nil, engerrors.New(engerrors.CodeSemanticUnavailable, "semantic search is not available for this workspace", nil)
	}
	hits, err := p.tier3Semantic(ctx, req.ProjectID, req.Text, limitOrDefault(req.Limit))
	if err != nil {
		return nil, err
	}
	scored := p.rerank(hits, req)
	return &Result{Hits: scored, Total: len(scored), Source: "tier3"}, nil
}

func (p *Planner) textSearch(ctx context.Context, req Request) (*Result, error) {
	decision := PreprocessDecision{Field: "content", SearchType: string(req.Mode)}
	reason := ""
	switch req.Mode {
	case ModeExact, ModeFuzzy, ModeRegex:
		decision.SearchType = string(req.Mode)
	default:
		decision = SmartQueryPreprocessor(req.Text)
		reason = decision.Reason
	}

	tier2, err := p.tier2Inverted(ctx, req.ProjectID, req.Text, decision.Field, req.CaseSensitive, limitOrDefault(req.Limit))
	if err != nil {
		return nil, err
	}

	source := "tier2"
	merged := tier2
	threshold := p.storeCfg.Tier2FallbackThreshold
	if threshold <= 0 {
		threshold = 5
	}
	if len(tier2) < threshold && p.semanticAvailable() {
		tier3, err := p.tier3Semantic(ctx, req.ProjectID, req.Text, limitOrDefault(req.Limit))
		if err == nil && len(tier3) > 0 {
			merged = dedupeMerge(tier2, tier3)
			source = "tier2+tier3"
		}
	}

	scored := p.rerank(merged, req)
	return &Result{Hits: scored, Total: len(scored), Source: source, Reason: reason}, nil
}

// dedupeMerge merges tier3 hits into tier2's, skipping any (path,
// start-line) pair already present (spec §4.2).
func dedupeMerge(tier2, tier3 []scorer.Hit) []scorer.Hit {
	seen := make(map[string]bool, len(tier2))
	for _, h := range tier2 {
		seen[dedupeKey(h)] = true
	}
	merged := append([]scorer.Hit{}, tier2...)
	for _, h := range tier3 {
		k := dedupeKey(h)
		if seen[k] {
			continue
		}
		seen[k] = true
		merged = append(merged, h)
	}
	return merged
}

func dedupeKey(h scorer.Hit) string {
	return h.FilePath + "|" + itoa(h.StartLine)
}

func (p *Planner) rerank(hits []scorer.Hit, req Request) []scorer.Hit {
	sq := scorer.ScoringQuery{Text: req.Text, InterfaceHint: scorer.LooksLikeInterfaceQuery(req.Text)}
	return scorer.Rerank(hits, sq, p.scoring)
}

// tier2Inverted queries the inverted index (BM25) on the given field and
// enriches matches with chunk content/line ranges via the metadata store.
func (p *Planner) tier2Inverted(ctx context.Context, projectID, text, field string, caseSensitive bool, limit int) ([]scorer.Hit, error) {
	if p.bm25 == nil {
		return nil, engerrors.New(engerrors.CodeIndexNotFound, "no inverted index configured for this workspace", nil)
	}
	results, err := p.bm25.Search(ctx, text, limit)
	if err != nil {
		return nil, engerrors.Wrap(engerrors.CodeSearchError, err)
	}
	return p.enrichBM25(ctx, results)
}

func (p *Planner) enrichBM25(ctx context.Context, results []*store.BM25Result) ([]scorer.Hit, error) {
	if len(results) == 0 {
		return nil, nil
	}
	ids := make([]string, len(results))
	scores := make(map[string]float64, len(results))
	for i, r := range results {
		ids[i] = r.DocID
		scores[r.DocID] = r.Score
	}
	chunks, err := p.metadata.GetChunks(ctx, ids)
	if err != nil {
		return nil, engerrors.Wrap(engerrors.CodeSearchError, err)
	}
	hits := make([]scorer.Hit, 0, len(chunks))
	for _, c := range chunks {
		hits = append(hits, scorer.Hit{
			ChunkID: c.ID, FilePath: c.FilePath, StartLine: c.StartLine, EndLine: c.EndLine,
			Content: c.Content, Language: c.Language, Source: "tier2", Score: scores[c.ID],
		})
	}
	return hits, nil
}

// tier3Semantic embeds the query and searches the vector store, run
// concurrently with the enrichment fetch via errgroup where both are
// needed (here: embed, then search, then enrich is sequential by nature,
// but errgroup guards the single fallible step against ctx cancellation).
func (p *Planner) tier3Semantic(ctx context.Context, projectID, text string, limit int) ([]scorer.Hit, error) {
	if !p.semanticAvailable() {
		return nil, engerrors.New(engerrors.CodeSemanticUnavailable, "semantic search unavailable", nil)
	}

	var vec []float32
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := p.embedder.Embed(gctx, text)
		if err != nil {
			return engerrors.Wrap(engerrors.CodeSemanticUnavailable, err)
		}
		vec = v
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	results, err := p.vector.Search(ctx, vec, limit)
	if err != nil {
		return nil, engerrors.Wrap(engerrors.CodeSearchError, err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	ids := make([]string, len(results))
	scores := make(map[string]float64, len(results))
	for i, r := range results {
		ids[i] = r.ID
		scores[r.ID] = float64(r.Score)
	}
	chunks, err := p.metadata.GetChunks(ctx, ids)
	if err != nil {
		return nil, engerrors.Wrap(engerrors.CodeSearchError, err)
	}
	hits := make([]scorer.Hit, 0, len(chunks))
	for _, c := range chunks {
		hits = append(hits, scorer.Hit{
			ChunkID: c.ID, FilePath: c.FilePath, StartLine: c.StartLine, EndLine: c.EndLine,
			Content: c.Content, Language: c.Language, Source: "tier3", Score: scores[c.ID],
		})
	}
	return hits, nil
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return 50
	}
	return limit
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
