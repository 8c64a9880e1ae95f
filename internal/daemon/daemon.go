package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/codeintel-go/engine/internal/config"
	"github.com/codeintel-go/engine/internal/embed"
	"github.com/codeintel-go/engine/internal/search"
	"github.com/codeintel-go/engine/internal/store"
)

// Daemon is the long-running process behind `codeintel daemon start`: it
// keeps the embedder and a bounded LRU of per-project search engines resident
// in memory so CLI searches skip the embedder's cold-start cost.
type Daemon struct {
	cfg           Config
	embedder      embed.Embedder
	compactionCfg config.CompactionConfig
	started       time.Time

	mu       sync.RWMutex
	projects map[string]*projectState

	server    *Server
	pidFile   *PIDFile
	compactor *CompactionManager
}

// projectState holds the opened stores and search engine for one project
// root. Loaded lazily on first search, evicted LRU-style past MaxProjects.
type projectState struct {
	rootPath string
	metadata store.MetadataStore
	bm25     store.BM25Index
	vector   store.VectorStore
	engine   *search.Engine
	loadedAt time.Time
	lastUsed time.Time
}

// Close releases every store the project opened. Safe to call with any
// field left nil (e.g. in tests that construct a bare projectState).
func (p *projectState) Close() error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if p.vector != nil {
		record(p.vector.Close())
	}
	if p.bm25 != nil {
		record(p.bm25.Close())
	}
	if p.metadata != nil {
		record(p.metadata.Close())
	}
	return firstErr
}

// DaemonOption configures optional Daemon dependencies at construction time.
type DaemonOption func(*Daemon)

// WithEmbedder overrides the embedder used for query embedding. Tests use
// this to avoid depending on a real Ollama/MLX/hugot backend.
func WithEmbedder(e embed.Embedder) DaemonOption {
	return func(d *Daemon) {
		d.embedder = e
	}
}

// WithCompaction enables FEAT-AI3 background compaction of each project's
// HNSW vector index once the daemon starts.
func WithCompaction(cfg config.CompactionConfig) DaemonOption {
	return func(d *Daemon) {
		d.compactionCfg = cfg
	}
}

// NewDaemon validates cfg and constructs a Daemon. The embedder defaults to
// nil (status reports "unavailable") until WithEmbedder supplies one.
func NewDaemon(cfg Config, opts ...DaemonOption) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	d := &Daemon{
		cfg:      cfg,
		projects: make(map[string]*projectState),
		pidFile:  NewPIDFile(cfg.PIDPath),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Start runs the daemon until ctx is cancelled: writes the PID file, listens
// on the Unix socket, and optionally drives background compaction. Returns
// ctx.Err() on a clean shutdown.
func (d *Daemon) Start(ctx context.Context) error {
	if err := d.cfg.EnsureDir(); err != nil {
		return err
	}

	if err := d.pidFile.Write(); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	defer func() { _ = d.pidFile.Remove() }()

	d.started = time.Now()
	defer d.cleanup()

	server, err := NewServer(d.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	server.SetHandler(d)
	d.server = server

	if d.compactionCfg.Enabled {
		d.compactor = NewCompactionManager(d, d.compactionCfg)
		d.compactor.Start(ctx)
		defer d.compactor.Stop()
	}

	return server.ListenAndServe(ctx)
}

// HandleSearch implements RequestHandler: loads (or reuses) the project's
// search engine and runs the query through it.
func (d *Daemon) HandleSearch(ctx context.Context, params SearchParams) ([]SearchResult, error) {
	if d.compactor != nil {
		d.compactor.InterruptCompaction(params.RootPath)
	}

	state, err := d.getOrLoadProject(params.RootPath)
	if err != nil {
		return nil, err
	}

	opts := search.SearchOptions{
		Limit:    params.Limit,
		Filter:   params.Filter,
		Language: params.Language,
		Scopes:   params.Scopes,
		BM25Only: params.BM25Only,
		Explain:  params.Explain,
	}

	results, err := state.engine.Search(ctx, params.Query, opts)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	if d.compactor != nil {
		d.compactor.OnSearchComplete(params.RootPath)
	}

	return toDaemonResults(results), nil
}

func toDaemonResults(results []*search.SearchResult) []SearchResult {
	out := make([]SearchResult, 0, len(results))
	for _, r := range results {
		sr := SearchResult{
			Score:     r.Score,
			BM25Score: r.BM25Score,
			VecScore:  r.VecScore,
			BM25Rank:  r.BM25Rank,
			VecRank:   r.VecRank,
		}
		if r.Chunk != nil {
			sr.FilePath = r.Chunk.FilePath
			sr.StartLine = r.Chunk.StartLine
			sr.EndLine = r.Chunk.EndLine
			sr.Content = r.Chunk.Content
			sr.Language = r.Chunk.Language
		}
		out = append(out, sr)
	}
	return out
}

// GetStatus implements RequestHandler.
func (d *Daemon) GetStatus() StatusResult {
	d.mu.RLock()
	projectsLoaded := len(d.projects)
	d.mu.RUnlock()

	status := StatusResult{
		Running:        true,
		PID:            os.Getpid(),
		Uptime:         time.Since(d.started).Round(time.Second).String(),
		ProjectsLoaded: projectsLoaded,
	}

	if d.embedder == nil {
		status.EmbedderType = "unavailable"
		status.EmbedderStatus = "unavailable"
		return status
	}

	status.EmbedderType = d.embedder.ModelName()
	status.EmbedderStatus = "ready"
	return status
}

// getOrLoadProject returns the cached project state for rootPath, loading
// it (and evicting the LRU entry if at MaxProjects) on a cache miss.
func (d *Daemon) getOrLoadProject(rootPath string) (*projectState, error) {
	d.mu.Lock()
	if st, ok := d.projects[rootPath]; ok {
		st.lastUsed = time.Now()
		d.mu.Unlock()
		return st, nil
	}
	d.mu.Unlock()

	st, err := d.loadProject(rootPath)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	if len(d.projects) >= d.cfg.MaxProjects {
		d.mu.Unlock()
		d.evictLRU()
		d.mu.Lock()
	}
	d.projects[rootPath] = st
	d.mu.Unlock()

	return st, nil
}

// loadProject opens the metadata/BM25/vector stores for rootPath's
// .codeintel data directory. Returns an error if the project hasn't been
// indexed yet.
func (d *Daemon) loadProject(rootPath string) (*projectState, error) {
	dataDir := filepath.Join(rootPath, ".codeintel")
	metadataPath := filepath.Join(dataDir, "metadata.db")

	if _, err := os.Stat(metadataPath); err != nil {
		return nil, fmt.Errorf("no index found for %s: run `codeintel index` first", rootPath)
	}

	metadata, err := store.NewSQLiteStore(metadataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata store: %w", err)
	}

	bm25BasePath := filepath.Join(dataDir, "bm25")
	bm25, err := store.NewBM25IndexWithBackend(bm25BasePath, store.DefaultBM25Config(), "sqlite")
	if err != nil {
		_ = metadata.Close()
		return nil, fmt.Errorf("failed to open BM25 index: %w", err)
	}

	dims := 768
	if d.embedder != nil {
		dims = d.embedder.Dimensions()
	}
	vectorPath := filepath.Join(dataDir, "vectors.hnsw")
	if onDiskDims, err := store.ReadHNSWStoreDimensions(vectorPath); err == nil {
		dims = onDiskDims
	}

	vector, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(dims))
	if err != nil {
		_ = bm25.Close()
		_ = metadata.Close()
		return nil, fmt.Errorf("failed to create vector store: %w", err)
	}
	if _, err := os.Stat(vectorPath); err == nil {
		_ = vector.Load(vectorPath)
	}

	engine, err := search.NewEngine(bm25, vector, d.embedder, metadata, search.DefaultConfig())
	if err != nil {
		_ = vector.Close()
		_ = bm25.Close()
		_ = metadata.Close()
		return nil, fmt.Errorf("failed to construct search engine: %w", err)
	}

	now := time.Now()
	return &projectState{
		rootPath: rootPath,
		metadata: metadata,
		bm25:     bm25,
		vector:   vector,
		engine:   engine,
		loadedAt: now,
		lastUsed: now,
	}, nil
}

// evictLRU closes and drops the least-recently-used project. A no-op when
// no projects are loaded.
func (d *Daemon) evictLRU() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.projects) == 0 {
		return
	}

	var oldestPath string
	var oldestTime time.Time
	first := true
	for path, st := range d.projects {
		if first || st.lastUsed.Before(oldestTime) {
			oldestPath = path
			oldestTime = st.lastUsed
			first = false
		}
	}

	if st, ok := d.projects[oldestPath]; ok {
		if err := st.Close(); err != nil {
			slog.Warn("error closing evicted project", slog.String("project", oldestPath), slog.String("error", err.Error()))
		}
		delete(d.projects, oldestPath)
	}
}

// cleanup closes every loaded project and releases the embedder, run on
// daemon shutdown.
func (d *Daemon) cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for path, st := range d.projects {
		if err := st.Close(); err != nil {
			slog.Warn("error closing project", slog.String("project", path), slog.String("error", err.Error()))
		}
	}
	d.projects = make(map[string]*projectState)
	d.embedder = nil
}

var _ RequestHandler = (*Daemon)(nil)
