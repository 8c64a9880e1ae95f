package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/codeintel-go/engine/internal/async"
	"github.com/codeintel-go/engine/internal/cache"
	"github.com/codeintel-go/engine/internal/chunk"
	"github.com/codeintel-go/engine/internal/config"
	"github.com/codeintel-go/engine/internal/embed"
	"github.com/codeintel-go/engine/internal/fileedit"
	"github.com/codeintel-go/engine/internal/index"
	"github.com/codeintel-go/engine/internal/logging"
	"github.com/codeintel-go/engine/internal/mcp"
	"github.com/codeintel-go/engine/internal/query"
	"github.com/codeintel-go/engine/internal/refactor"
	"github.com/codeintel-go/engine/internal/store"
	"github.com/codeintel-go/engine/internal/telemetry"
	"github.com/codeintel-go/engine/internal/ui"
	"github.com/codeintel-go/engine/internal/watcher"
)

// mcpLogLevel is the slog level used for MCP-safe (file-only) logging,
// set to "debug" by serve's --debug flag. Plain "info" otherwise.
var mcpLogLevel = "info"

func newServeCmd() *cobra.Command {
	var (
		serveDebug     bool
		serveTransport string
		serveSession   string
		servePort      int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the MCP server, exposing the C2-C8 code intelligence pipeline
(text_search, goto_definition, smart_refactor, and the rest of the spec §6
tool surface) over the requested transport.

stdio is the default and only transport an MCP client expects to pipe
JSON-RPC into; it is an error to run with --transport stdio against an
interactive terminal (use an MCP client, not a shell).`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if serveDebug {
				mcpLogLevel = "debug"
			}
			if serveSession != "" {
				return runServeWithSessionName(cmd.Context(), serveSession, serveTransport, servePort)
			}
			return runServe(cmd.Context(), serveTransport, servePort)
		},
	}

	cmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug logging to file (never to stdout/stderr)")
	cmd.Flags().StringVar(&serveTransport, "transport", "stdio", "Transport to serve on: stdio or sse")
	cmd.Flags().StringVar(&serveSession, "session", "", "Resume a saved session by name instead of the current directory")
	cmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (sse transport only)")

	return cmd
}

// verifyStdinForMCP rejects an interactive stdio invocation. An MCP client
// pipes JSON-RPC into stdin; a human at a terminal almost certainly meant
// to run a different subcommand (BUG-034/BUG-035 history: codeintel used to
// hang silently when launched this way).
func verifyStdinForMCP() error {
	if isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		return fmt.Errorf("stdin is a terminal, not a pipe: the stdio transport expects an MCP client to pipe JSON-RPC into stdin, not a human typing at a terminal")
	}
	return nil
}

// runServe starts the MCP server rooted at the current project directory.
func runServe(ctx context.Context, transport string, port int) error {
	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, _ = os.Getwd()
	}
	return serveWorkspace(ctx, root, transport, port)
}

// runServeWithSession starts the MCP server rooted at a saved session's
// project path. name/rootPath/transport/port mirror the signature resume.go
// has always called this with.
func runServeWithSession(ctx context.Context, name, rootPath, transport string, port int) error {
	_ = name // identifies which saved session asked for this; logged once MCP-safe logging is up
	return serveWorkspace(ctx, rootPath, transport, port)
}

// runServeWithSessionName looks up a saved session by name and resumes it.
// Used when `serve --session <name>` is invoked directly rather than via
// `codeintel resume <name>`.
func runServeWithSessionName(ctx context.Context, name, transport string, port int) error {
	mgr, err := getSessionManager()
	if err != nil {
		return fmt.Errorf("failed to open session manager: %w", err)
	}

	sess, err := mgr.Get(name)
	if err != nil {
		return fmt.Errorf("session %q not found: %w", name, err)
	}

	return runServeWithSession(ctx, name, sess.ProjectPath, transport, port)
}

// serveWorkspace wires the full C1-C8 pipeline for rootPath and blocks
// serving until ctx is cancelled. Per BUG-034/BUG-035, nothing here may
// write to stdout/stderr once MCP-safe logging is installed, and watcher
// startup must never delay the point at which the server is ready to
// accept the MCP handshake.
func serveWorkspace(ctx context.Context, rootPath, transport string, port int) error {
	if transport == "stdio" {
		if err := verifyStdinForMCP(); err != nil {
			return err
		}
	}

	loggingCleanup, err := logging.SetupMCPModeWithLevel(mcpLogLevel)
	if err != nil {
		return fmt.Errorf("failed to set up MCP-safe logging: %w", err)
	}
	defer loggingCleanup()

	cfg, err := config.Load(rootPath)
	if err != nil {
		cfg = config.NewConfig()
	}

	dataDir := filepath.Join(rootPath, ".codeintel")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	metadataPath := filepath.Join(dataDir, "metadata.db")
	metadata, err := store.NewSQLiteStore(metadataPath)
	if err != nil {
		return fmt.Errorf("failed to open metadata store: %w", err)
	}
	defer func() { _ = metadata.Close() }()

	bm25BasePath := filepath.Join(dataDir, "bm25")
	bm25, err := store.NewBM25IndexWithBackend(bm25BasePath, store.DefaultBM25Config(), cfg.Search.BM25Backend)
	if err != nil {
		return fmt.Errorf("failed to open BM25 index: %w", err)
	}
	defer func() { _ = bm25.Close() }()

	embed.SetThermalConfig(embed.ThermalConfig{
		TimeoutProgression:     cfg.Embeddings.TimeoutProgression,
		RetryTimeoutMultiplier: cfg.Embeddings.RetryTimeoutMultiplier,
	})
	embed.SetMLXConfig(embed.MLXServerConfig{
		Endpoint: cfg.Embeddings.MLXEndpoint,
		Model:    cfg.Embeddings.MLXModel,
	})

	var embedder embed.Embedder
	vectorPath := filepath.Join(dataDir, "vectors.hnsw")
	dims, dimErr := store.ReadHNSWStoreDimensions(vectorPath)
	if dimErr != nil {
		// No vector store on disk yet: fall back to the configured
		// embedder's own reported dimensions so a first index_workspace
		// run can create one.
		embedCtx, embedCancel := context.WithTimeout(ctx, 15*time.Second)
		provider := embed.ParseProvider(cfg.Embeddings.Provider)
		embedder, err = embed.NewEmbedder(embedCtx, provider, cfg.Embeddings.Model)
		embedCancel()
		if err != nil {
			embedder = embed.NewStaticEmbedder768()
		}
		dims = embedder.Dimensions()
	} else {
		embedCtx, embedCancel := context.WithTimeout(ctx, 15*time.Second)
		provider := embed.ParseProvider(cfg.Embeddings.Provider)
		embedder, err = embed.NewEmbedder(embedCtx, provider, cfg.Embeddings.Model)
		embedCancel()
		if err != nil {
			embedder = embed.NewStaticEmbedder768()
		}
	}
	defer func() { _ = embedder.Close() }()

	vectorCfg := store.DefaultVectorStoreConfig(dims)
	vector, err := store.NewHNSWStore(vectorCfg)
	if err != nil {
		return fmt.Errorf("failed to create vector store: %w", err)
	}
	if _, statErr := os.Stat(vectorPath); statErr == nil {
		_ = vector.Load(vectorPath)
	}
	defer func() { _ = vector.Close() }()

	c := cache.New(cfg.Cache)
	editor := fileedit.NewEditor()
	planner := query.New(bm25, vector, metadata, embedder, c, cfg)
	executor := refactor.New(metadata, editor, c, cfg.Refactor)

	projectID := hashString(rootPath)
	server, err := mcp.NewServer(planner, executor, metadata, editor, cfg, projectID, rootPath)
	if err != nil {
		return fmt.Errorf("failed to construct MCP server: %w", err)
	}

	server.SetIndexer(dataDir, newIndexFunc(rootPath, dataDir, cfg, metadata, bm25, vector, embedder))

	if metricsStore, metricsErr := telemetry.NewSQLiteMetricsStore(metadata.DB()); metricsErr == nil {
		metrics := telemetry.NewQueryMetrics(metricsStore)
		defer func() { _ = metrics.Close() }()
		server.SetMetrics(metrics)
	}

	if err := server.RegisterResources(ctx); err != nil {
		// Not fatal: an empty/fresh workspace has nothing to register yet.
		_ = err
	}

	startBackgroundWatcher(ctx, rootPath, c)

	addr := fmt.Sprintf(":%d", port)
	return server.Serve(ctx, transport, addr)
}

// newIndexFunc builds the async.IndexFunc the background indexer invokes
// for index_workspace. It drives an index.Runner against a headless
// renderer: stdout is reserved for the MCP JSON-RPC stream, so progress
// can't go to a TUI the way `codeintel index` shows one interactively.
func newIndexFunc(rootPath, dataDir string, cfg *config.Config, metadata store.MetadataStore, bm25 store.BM25Index, vector store.VectorStore, embedder embed.Embedder) async.IndexFunc {
	return func(ctx context.Context, progress *async.IndexProgress) error {
		progress.SetStage(async.StageScanning, 0)

		renderer := ui.NewRenderer(ui.NewConfig(io.Discard, ui.WithForcePlain(true), ui.WithProjectDir(rootPath)))
		if err := renderer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start indexing renderer: %w", err)
		}
		defer func() { _ = renderer.Stop() }()

		runner, err := index.NewRunner(index.RunnerDependencies{
			Renderer:        renderer,
			Config:          cfg,
			Metadata:        metadata,
			BM25:            bm25,
			Vector:          vector,
			Embedder:        embedder,
			CodeChunker:     chunk.NewCodeChunker(),
			MarkdownChunker: chunk.NewMarkdownChunker(),
		})
		if err != nil {
			return fmt.Errorf("failed to construct index runner: %w", err)
		}
		defer func() { _ = runner.Close() }()

		progress.SetStage(async.StageIndexing, 0)
		result, err := runner.Run(ctx, index.RunnerConfig{
			RootDir: rootPath,
			DataDir: dataDir,
		})
		if err != nil {
			return fmt.Errorf("index run failed: %w", err)
		}

		progress.SetStage(async.StageIndexing, result.Files)
		progress.UpdateFiles(result.Files)
		progress.SetChunksTotal(result.Chunks)
		progress.UpdateChunks(result.Chunks)
		return nil
	}
}

// startBackgroundWatcher launches a file watcher that invalidates C5's
// result cache on workspace changes, entirely off the startup path: the
// MCP handshake must never wait on the watcher's initial directory scan
// (BUG-035). A watcher that fails to initialize just means changes go
// unnoticed until the next index_workspace call, not a server failure.
func startBackgroundWatcher(ctx context.Context, rootPath string, c *cache.Cache) {
	go func() {
		w, err := watcher.NewHybridWatcher(watcher.DefaultOptions())
		if err != nil {
			return
		}

		go func() {
			for range w.Events() {
				// Cache keys aren't indexed by path (see cache.Cache.Invalidate),
				// so any workspace change drops the whole result cache rather
				// than targeting the changed file.
				c.Invalidate()
			}
		}()
		go func() {
			for range w.Errors() {
				// Non-fatal: the watcher degrades to missed invalidations,
				// not a server crash.
			}
		}()

		_ = w.Start(ctx, rootPath)
	}()
}
