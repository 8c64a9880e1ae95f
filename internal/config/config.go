package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ProjectType represents the type of project detected.
type ProjectType string

const (
	ProjectTypeGo      ProjectType = "go"
	ProjectTypeNode    ProjectType = "node"
	ProjectTypePython  ProjectType = "python"
	ProjectTypeUnknown ProjectType = "unknown"
)

// Config is the complete configuration for the code intelligence engine.
type Config struct {
	Version     int               `yaml:"version" json:"version"`
	Paths       PathsConfig       `yaml:"paths" json:"paths"`
	Store       StoreConfig       `yaml:"store" json:"store"`
	Scoring     ScoringConfig     `yaml:"scoring" json:"scoring"`
	Cache       CacheConfig       `yaml:"cache" json:"cache"`
	Refactor    RefactorConfig    `yaml:"refactor" json:"refactor"`
	Server      ServerConfig      `yaml:"server" json:"server"`
	Search      SearchConfig      `yaml:"search" json:"search"`
	Embeddings  EmbeddingsConfig  `yaml:"embeddings" json:"embeddings"`
	Performance PerformanceConfig `yaml:"performance" json:"performance"`
	Contextual  ContextualConfig  `yaml:"contextual" json:"contextual"`
	Compaction  CompactionConfig  `yaml:"compaction" json:"compaction"`
}

// PathsConfig configures which paths to include and exclude when indexing.
type PathsConfig struct {
	Include []string `yaml:"include" json:"include"`
	Exclude []string `yaml:"exclude" json:"exclude"`
}

// StoreConfig configures the workspace store (C1): the inverted index
// backend and the optional vector index.
type StoreConfig struct {
	// BM25Backend selects the inverted index backend.
	// Options: "sqlite" (default, concurrent multi-process access via FTS5/WAL)
	// or "bleve" (single-process, custom code analyzer).
	BM25Backend string `yaml:"bm25_backend" json:"bm25_backend"`

	ChunkSize    int `yaml:"chunk_size" json:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap" json:"chunk_overlap"`
	MaxFiles     int `yaml:"max_files" json:"max_files"`

	// Embeddings enables the optional Tier 3 semantic index. The embedding
	// model itself is an external dependency (pkg/producer.EmbeddingModel);
	// when unavailable the store reports IsSemanticSearchAvailable=false
	// rather than failing.
	EmbeddingsEnabled bool   `yaml:"embeddings_enabled" json:"embeddings_enabled"`
	VectorDimensions  int    `yaml:"vector_dimensions" json:"vector_dimensions"`
	VectorMetric      string `yaml:"vector_metric" json:"vector_metric"` // "cosine" or "euclidean"
	HNSWM             int    `yaml:"hnsw_m" json:"hnsw_m"`
	HNSWEfSearch      int    `yaml:"hnsw_ef_search" json:"hnsw_ef_search"`

	IndexWorkers  int    `yaml:"index_workers" json:"index_workers"`
	WatchDebounce string `yaml:"watch_debounce" json:"watch_debounce"`
	SQLiteCacheMB int    `yaml:"sqlite_cache_mb" json:"sqlite_cache_mb"`

	// Tier2FallbackThreshold: when Tier 2 (inverted index) returns fewer
	// than this many hits, supplement with Tier 3 semantic hits (spec §3).
	Tier2FallbackThreshold int `yaml:"tier2_fallback_threshold" json:"tier2_fallback_threshold"`
}

// ScoringConfig configures the C3 multi-factor scorer's weights. The spec
// fixes the factors and their direction, not the constants; these are
// tunable per workspace.
type ScoringConfig struct {
	PathWeight      float64 `yaml:"path_weight" json:"path_weight"`
	FilenameWeight  float64 `yaml:"filename_weight" json:"filename_weight"`
	RecencyWeight   float64 `yaml:"recency_weight" json:"recency_weight"`
	ExactPhraseBoost float64 `yaml:"exact_phrase_boost" json:"exact_phrase_boost"`
	FileTypeWeight  float64 `yaml:"file_type_weight" json:"file_type_weight"`
	TestMockDeboost float64 `yaml:"test_mock_deboost" json:"test_mock_deboost"`
	RRFConstant     int     `yaml:"rrf_constant" json:"rrf_constant"`
}

// CacheConfig configures the C5 result cache: capacity and per-tool TTLs.
type CacheConfig struct {
	MaxEntries int `yaml:"max_entries" json:"max_entries"`

	TextSearchTTL     time.Duration `yaml:"text_search_ttl" json:"text_search_ttl"`
	RecentFilesTTL    time.Duration `yaml:"recent_files_ttl" json:"recent_files_ttl"`
	GotoDefinitionTTL time.Duration `yaml:"goto_definition_ttl" json:"goto_definition_ttl"`
	DirectorySearchTTL time.Duration `yaml:"directory_search_ttl" json:"directory_search_ttl"`
}

// RefactorConfig bounds the blast radius of bulk operations (C7).
type RefactorConfig struct {
	MaxFiles   int `yaml:"max_files" json:"max_files"`
	MaxMatches int `yaml:"max_matches" json:"max_matches"`
}

// ServerConfig configures the MCP server and the background daemon.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport"`
	Port      int    `yaml:"port" json:"port"`
	LogLevel  string `yaml:"log_level" json:"log_level"`

	// DaemonSocket and DaemonPIDFile back internal/daemon's supplemented
	// long-running indexing process (SPEC_FULL.md §3).
	DaemonSocket  string `yaml:"daemon_socket" json:"daemon_socket"`
	DaemonPIDFile string `yaml:"daemon_pid_file" json:"daemon_pid_file"`
}

// SearchConfig configures the `codeintel search` CLI path and the
// CLI-local BM25/semantic fusion it runs outside the MCP server (the
// C2 query.Planner used by `serve` has its own tiering and doesn't read
// these fields; this is the standalone internal/search.Engine path that
// backs `search`/`doctor`/`status`).
type SearchConfig struct {
	BM25Backend    string  `yaml:"bm25_backend" json:"bm25_backend"`
	ChunkSize      int     `yaml:"chunk_size" json:"chunk_size"`
	MaxResults     int     `yaml:"max_results" json:"max_results"`
	BM25Weight     float64 `yaml:"bm25_weight" json:"bm25_weight"`
	SemanticWeight float64 `yaml:"semantic_weight" json:"semantic_weight"`
	RRFConstant    int     `yaml:"rrf_constant" json:"rrf_constant"`
}

// EmbeddingsConfig selects and tunes the embedding provider (internal/embed)
// used by both `index`/`serve`'s Tier 3 commit path and the standalone
// `search` CLI path.
type EmbeddingsConfig struct {
	Provider string `yaml:"provider" json:"provider"`
	Model    string `yaml:"model" json:"model"`

	// MLXEndpoint/MLXModel configure the MLX server embed.Embedder talks to
	// when Provider is "mlx".
	MLXEndpoint string `yaml:"mlx_endpoint" json:"mlx_endpoint"`
	MLXModel    string `yaml:"mlx_model" json:"mlx_model"`

	// OllamaHost configures the Ollama server embed.Embedder (and the CR-1
	// contextual-retrieval LLM generator) talk to when Provider is "ollama".
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`

	// TimeoutProgression/RetryTimeoutMultiplier back embed.ThermalConfig:
	// successive embedding calls grow their timeout by this factor on
	// retry, reflecting thermal-throttling behavior observed on local
	// embedder backends under sustained batch load.
	TimeoutProgression     float64 `yaml:"timeout_progression" json:"timeout_progression"`
	RetryTimeoutMultiplier float64 `yaml:"retry_timeout_multiplier" json:"retry_timeout_multiplier"`

	// InterBatchDelay is a duration string (e.g. "200ms") inserted between
	// embedding batches to avoid saturating a local embedder backend.
	InterBatchDelay string `yaml:"inter_batch_delay" json:"inter_batch_delay"`
}

// SubmoduleConfig configures git submodule discovery during scanning.
// Passed by value/pointer to internal/scanner's DiscoverSubmodules rather
// than embedded in Config itself, since only workspaces with submodules
// opt into it.
type SubmoduleConfig struct {
	Enabled   bool     `yaml:"enabled" json:"enabled"`
	Recursive bool     `yaml:"recursive" json:"recursive"`
	Include   []string `yaml:"include" json:"include"`
	Exclude   []string `yaml:"exclude" json:"exclude"`
}

// PerformanceConfig tunes resource usage for the indexing pipeline.
type PerformanceConfig struct {
	SQLiteCacheMB int `yaml:"sqlite_cache_mb" json:"sqlite_cache_mb"`
}

// ContextualConfig configures CR-1 contextual retrieval: LLM-generated
// per-chunk context prepended before embedding, which improves retrieval
// precision at the cost of an extra indexing pass.
type ContextualConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// FallbackOnly skips the LLM generator entirely and always uses the
	// pattern-based fallback (no network dependency on Ollama).
	FallbackOnly bool `yaml:"fallback_only" json:"fallback_only"`

	// CodeChunks enables contextual enrichment for code chunks, not just
	// documentation/markdown chunks (code context is more expensive to
	// generate well and is off by default).
	CodeChunks bool   `yaml:"code_chunks" json:"code_chunks"`
	Model      string `yaml:"model" json:"model"`

	// Timeout is a duration string (e.g. "5s"), matching
	// ContextGeneratorConfig.Timeout.
	Timeout   string `yaml:"timeout" json:"timeout"`
	BatchSize int    `yaml:"batch_size" json:"batch_size"`
}

// CompactionConfig tunes FEAT-AI3 lazy background compaction of the HNSW
// vector index: orphaned vectors (superseded by re-indexing) accumulate
// until a project goes idle, then get compacted away in the background.
type CompactionConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// OrphanThreshold is the fraction of orphaned vectors (0-1) that
	// triggers compaction once MinOrphanCount is also met.
	OrphanThreshold float64 `yaml:"orphan_threshold" json:"orphan_threshold"`
	MinOrphanCount  int     `yaml:"min_orphan_count" json:"min_orphan_count"`

	// IdleTimeout and Cooldown are duration strings (e.g. "30s", "1h"),
	// parsed with time.ParseDuration by internal/daemon's CompactionManager.
	IdleTimeout string `yaml:"idle_timeout" json:"idle_timeout"`
	Cooldown    string `yaml:"cooldown" json:"cooldown"`
}

// defaultExcludePatterns are always excluded from indexing.
var defaultExcludePatterns = []string{
	"**/.git/**", "**/.svn/**", "**/.hg/**", "**/.vs/**", "**/.vscode/**",
	"**/.idea/**", "**/bin/**", "**/obj/**", "**/node_modules/**",
	"**/packages/**", "**/dist/**", "**/build/**", "**/out/**",
	"**/target/**", "**/.next/**", "**/.nuxt/**", "**/vendor/**",
	"**/__pycache__/**", "**/*.min.js", "**/*.min.css",
	"**/package-lock.json", "**/yarn.lock", "**/pnpm-lock.yaml", "**/go.sum",
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			Include: []string{},
			Exclude: defaultExcludePatterns,
		},
		Store: StoreConfig{
			BM25Backend:            "sqlite",
			ChunkSize:              1500,
			ChunkOverlap:           200,
			MaxFiles:               100000,
			EmbeddingsEnabled:      false,
			VectorDimensions:       0,
			VectorMetric:           "cosine",
			HNSWM:                  16,
			HNSWEfSearch:           64,
			IndexWorkers:           runtime.NumCPU(),
			WatchDebounce:          "500ms",
			SQLiteCacheMB:          64,
			Tier2FallbackThreshold: 5,
		},
		Scoring: ScoringConfig{
			PathWeight:       1.0,
			FilenameWeight:   2.0,
			RecencyWeight:    0.5,
			ExactPhraseBoost: 1.5,
			FileTypeWeight:   0.5,
			TestMockDeboost:  -1.0,
			RRFConstant:      60,
		},
		Cache: CacheConfig{
			MaxEntries:         1000,
			TextSearchTTL:      15 * time.Minute,
			RecentFilesTTL:     5 * time.Minute,
			GotoDefinitionTTL:  10 * time.Minute,
			DirectorySearchTTL: 5 * time.Minute,
		},
		Refactor: RefactorConfig{
			MaxFiles:   500,
			MaxMatches: 1000,
		},
		Server: ServerConfig{
			Transport:     "stdio",
			Port:          8765,
			LogLevel:      "info",
			DaemonSocket:  defaultDaemonSocket(),
			DaemonPIDFile: defaultDaemonPIDFile(),
		},
		Search: SearchConfig{
			BM25Backend:    "sqlite",
			ChunkSize:      1500,
			MaxResults:     10,
			BM25Weight:     0.65,
			SemanticWeight: 0.35,
			RRFConstant:    60,
		},
		Embeddings: EmbeddingsConfig{
			Provider:               "hugot",
			Model:                  "embeddinggemma",
			MLXEndpoint:            "http://localhost:8000",
			MLXModel:               "",
			OllamaHost:             "http://localhost:11434",
			TimeoutProgression:     1.5,
			RetryTimeoutMultiplier: 2.0,
			InterBatchDelay:        "200ms",
		},
		Performance: PerformanceConfig{
			SQLiteCacheMB: 64,
		},
		Contextual: ContextualConfig{
			Enabled:      false,
			FallbackOnly: false,
			CodeChunks:   false,
			Model:        "qwen3:0.6b",
			Timeout:      "5s",
			BatchSize:    8,
		},
		Compaction: CompactionConfig{
			Enabled:         true,
			OrphanThreshold: 0.2,
			MinOrphanCount:  100,
			IdleTimeout:     "30s",
			Cooldown:        "1h",
		},
	}
}

func defaultDaemonSocket() string {
	return filepath.Join(os.TempDir(), "codeintel", "daemon.sock")
}

func defaultDaemonPIDFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".codeintel", "daemon.pid")
	}
	return filepath.Join(home, ".codeintel", "daemon.pid")
}

// GetUserConfigPath returns the path to the user/global configuration file,
// following the XDG Base Directory specification.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "codeintel", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "codeintel", "config.yaml")
	}
	return filepath.Join(home, ".config", "codeintel", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// loadUserConfig loads the user/global configuration file if it exists.
// Returns nil config and nil error if the file doesn't exist (that's OK).
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()
	if !fileExists(configPath) {
		return nil, nil
	}

	cfg := NewConfig()
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}
	return cfg, nil
}

// Load loads configuration from the specified directory, applying
// overrides in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/codeintel/config.yaml)
//  3. Project config (.codeintel.yaml in the workspace root)
//  4. Environment variables (CODEINTEL_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile attempts to load configuration from .codeintel.yaml or .codeintel.yml.
func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".codeintel.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return c.loadYAML(yamlPath)
	}

	ymlPath := filepath.Join(dir, ".codeintel.yml")
	if _, err := os.Stat(ymlPath); err == nil {
		return c.loadYAML(ymlPath)
	}

	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if len(other.Paths.Include) > 0 {
		c.Paths.Include = other.Paths.Include
	}
	if len(other.Paths.Exclude) > 0 {
		c.Paths.Exclude = append(c.Paths.Exclude, other.Paths.Exclude...)
	}

	if other.Store.BM25Backend != "" {
		c.Store.BM25Backend = other.Store.BM25Backend
	}
	if other.Store.ChunkSize != 0 {
		c.Store.ChunkSize = other.Store.ChunkSize
	}
	if other.Store.ChunkOverlap != 0 {
		c.Store.ChunkOverlap = other.Store.ChunkOverlap
	}
	if other.Store.MaxFiles != 0 {
		c.Store.MaxFiles = other.Store.MaxFiles
	}
	if other.Store.EmbeddingsEnabled {
		c.Store.EmbeddingsEnabled = true
	}
	if other.Store.VectorDimensions != 0 {
		c.Store.VectorDimensions = other.Store.VectorDimensions
	}
	if other.Store.VectorMetric != "" {
		c.Store.VectorMetric = other.Store.VectorMetric
	}
	if other.Store.HNSWM != 0 {
		c.Store.HNSWM = other.Store.HNSWM
	}
	if other.Store.HNSWEfSearch != 0 {
		c.Store.HNSWEfSearch = other.Store.HNSWEfSearch
	}
	if other.Store.IndexWorkers != 0 {
		c.Store.IndexWorkers = other.Store.IndexWorkers
	}
	if other.Store.WatchDebounce != "" {
		c.Store.WatchDebounce = other.Store.WatchDebounce
	}
	if other.Store.SQLiteCacheMB != 0 {
		c.Store.SQLiteCacheMB = other.Store.SQLiteCacheMB
	}
	if other.Store.Tier2FallbackThreshold != 0 {
		c.Store.Tier2FallbackThreshold = other.Store.Tier2FallbackThreshold
	}

	if other.Scoring.PathWeight != 0 {
		c.Scoring.PathWeight = other.Scoring.PathWeight
	}
	if other.Scoring.FilenameWeight != 0 {
		c.Scoring.FilenameWeight = other.Scoring.FilenameWeight
	}
	if other.Scoring.RecencyWeight != 0 {
		c.Scoring.RecencyWeight = other.Scoring.RecencyWeight
	}
	if other.Scoring.ExactPhraseBoost != 0 {
		c.Scoring.ExactPhraseBoost = other.Scoring.ExactPhraseBoost
	}
	if other.Scoring.FileTypeWeight != 0 {
		c.Scoring.FileTypeWeight = other.Scoring.FileTypeWeight
	}
	if other.Scoring.TestMockDeboost != 0 {
		c.Scoring.TestMockDeboost = other.Scoring.TestMockDeboost
	}
	if other.Scoring.RRFConstant != 0 {
		c.Scoring.RRFConstant = other.Scoring.RRFConstant
	}

	if other.Cache.MaxEntries != 0 {
		c.Cache.MaxEntries = other.Cache.MaxEntries
	}
	if other.Cache.TextSearchTTL != 0 {
		c.Cache.TextSearchTTL = other.Cache.TextSearchTTL
	}
	if other.Cache.RecentFilesTTL != 0 {
		c.Cache.RecentFilesTTL = other.Cache.RecentFilesTTL
	}
	if other.Cache.GotoDefinitionTTL != 0 {
		c.Cache.GotoDefinitionTTL = other.Cache.GotoDefinitionTTL
	}
	if other.Cache.DirectorySearchTTL != 0 {
		c.Cache.DirectorySearchTTL = other.Cache.DirectorySearchTTL
	}

	if other.Refactor.MaxFiles != 0 {
		c.Refactor.MaxFiles = other.Refactor.MaxFiles
	}
	if other.Refactor.MaxMatches != 0 {
		c.Refactor.MaxMatches = other.Refactor.MaxMatches
	}

	if other.Server.Transport != "" {
		c.Server.Transport = other.Server.Transport
	}
	if other.Server.Port != 0 {
		c.Server.Port = other.Server.Port
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
	if other.Server.DaemonSocket != "" {
		c.Server.DaemonSocket = other.Server.DaemonSocket
	}
	if other.Server.DaemonPIDFile != "" {
		c.Server.DaemonPIDFile = other.Server.DaemonPIDFile
	}

	if other.Search.BM25Backend != "" {
		c.Search.BM25Backend = other.Search.BM25Backend
	}
	if other.Search.ChunkSize != 0 {
		c.Search.ChunkSize = other.Search.ChunkSize
	}
	if other.Search.MaxResults != 0 {
		c.Search.MaxResults = other.Search.MaxResults
	}
	if other.Search.BM25Weight != 0 {
		c.Search.BM25Weight = other.Search.BM25Weight
	}
	if other.Search.SemanticWeight != 0 {
		c.Search.SemanticWeight = other.Search.SemanticWeight
	}
	if other.Search.RRFConstant != 0 {
		c.Search.RRFConstant = other.Search.RRFConstant
	}

	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.MLXEndpoint != "" {
		c.Embeddings.MLXEndpoint = other.Embeddings.MLXEndpoint
	}
	if other.Embeddings.MLXModel != "" {
		c.Embeddings.MLXModel = other.Embeddings.MLXModel
	}
	if other.Embeddings.OllamaHost != "" {
		c.Embeddings.OllamaHost = other.Embeddings.OllamaHost
	}
	if other.Embeddings.TimeoutProgression != 0 {
		c.Embeddings.TimeoutProgression = other.Embeddings.TimeoutProgression
	}
	if other.Embeddings.RetryTimeoutMultiplier != 0 {
		c.Embeddings.RetryTimeoutMultiplier = other.Embeddings.RetryTimeoutMultiplier
	}
	if other.Embeddings.InterBatchDelay != "" {
		c.Embeddings.InterBatchDelay = other.Embeddings.InterBatchDelay
	}

	if other.Performance.SQLiteCacheMB != 0 {
		c.Performance.SQLiteCacheMB = other.Performance.SQLiteCacheMB
	}

	if other.Contextual.Enabled {
		c.Contextual.Enabled = true
	}
	if other.Contextual.FallbackOnly {
		c.Contextual.FallbackOnly = true
	}
	if other.Contextual.CodeChunks {
		c.Contextual.CodeChunks = true
	}
	if other.Contextual.Model != "" {
		c.Contextual.Model = other.Contextual.Model
	}
	if other.Contextual.Timeout != "" {
		c.Contextual.Timeout = other.Contextual.Timeout
	}
	if other.Contextual.BatchSize != 0 {
		c.Contextual.BatchSize = other.Contextual.BatchSize
	}

	if other.Compaction.Enabled {
		c.Compaction.Enabled = true
	}
	if other.Compaction.OrphanThreshold != 0 {
		c.Compaction.OrphanThreshold = other.Compaction.OrphanThreshold
	}
	if other.Compaction.MinOrphanCount != 0 {
		c.Compaction.MinOrphanCount = other.Compaction.MinOrphanCount
	}
	if other.Compaction.IdleTimeout != "" {
		c.Compaction.IdleTimeout = other.Compaction.IdleTimeout
	}
	if other.Compaction.Cooldown != "" {
		c.Compaction.Cooldown = other.Compaction.Cooldown
	}
}

// applyEnvOverrides applies CODEINTEL_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CODEINTEL_BM25_BACKEND"); v != "" {
		c.Store.BM25Backend = v
	}
	if v := os.Getenv("CODEINTEL_RRF_CONSTANT"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Scoring.RRFConstant = k
		}
	}
	if v := os.Getenv("CODEINTEL_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("CODEINTEL_TRANSPORT"); v != "" {
		c.Server.Transport = v
	}
	if v := os.Getenv("CODEINTEL_MAX_FILES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Refactor.MaxFiles = n
		}
	}
	if v := os.Getenv("CODEINTEL_MAX_MATCHES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Refactor.MaxMatches = n
		}
	}
	if v := os.Getenv("CODEINTEL_EMBEDDINGS_ENABLED"); v != "" {
		c.Store.EmbeddingsEnabled = strings.ToLower(v) == "true" || v == "1"
	}
	if v := os.Getenv("CODEINTEL_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("CODEINTEL_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("CODEINTEL_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
}

// parseFloat64 parses a string to float64, used for config parsing.
func parseFloat64(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(strings.TrimSpace(s), "%f", &f)
	return f, err
}

// DetectProjectType detects the project type based on marker files.
func DetectProjectType(dir string) ProjectType {
	if fileExists(filepath.Join(dir, "go.mod")) {
		return ProjectTypeGo
	}
	if fileExists(filepath.Join(dir, "package.json")) {
		return ProjectTypeNode
	}
	if fileExists(filepath.Join(dir, "pyproject.toml")) ||
		fileExists(filepath.Join(dir, "requirements.txt")) {
		return ProjectTypePython
	}
	return ProjectTypeUnknown
}

// FindProjectRoot finds the project root by walking up from startDir
// looking for a .git directory or a .codeintel.yaml/.yml file.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	currentDir := absDir
	for {
		if dirExists(filepath.Join(currentDir, ".git")) {
			return currentDir, nil
		}
		if fileExists(filepath.Join(currentDir, ".codeintel.yaml")) ||
			fileExists(filepath.Join(currentDir, ".codeintel.yml")) {
			return currentDir, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return absDir, nil
		}
		currentDir = parentDir
	}
}

// DiscoverSourceDirs discovers common source directories in the project.
func DiscoverSourceDirs(dir string) []string {
	commonSourceDirs := []string{"src", "lib", "pkg", "internal", "cmd"}
	frameworkDirs := []string{"app", "pages"}

	var found []string
	for _, d := range commonSourceDirs {
		if dirExists(filepath.Join(dir, d)) {
			found = append(found, d)
		}
	}

	if isNextJS(dir) {
		for _, d := range frameworkDirs {
			if dirExists(filepath.Join(dir, d)) {
				found = append(found, d)
			}
		}
	}

	return found
}

// DiscoverDocsDirs discovers documentation directories in the project.
func DiscoverDocsDirs(dir string) []string {
	commonDocDirs := []string{"docs", "doc"}
	commonDocFiles := []string{"README.md", "readme.md", "README.markdown"}

	var found []string
	for _, d := range commonDocDirs {
		if dirExists(filepath.Join(dir, d)) {
			found = append(found, d)
		}
	}
	for _, f := range commonDocFiles {
		if fileExists(filepath.Join(dir, f)) {
			found = append(found, f)
			break
		}
	}

	return found
}

// isNextJS checks if the project is a Next.js project.
func isNextJS(dir string) bool {
	pkgPath := filepath.Join(dir, "package.json")
	if !fileExists(pkgPath) {
		return false
	}

	data, err := os.ReadFile(pkgPath)
	if err != nil {
		return false
	}

	var pkg struct {
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return false
	}

	_, hasNext := pkg.Dependencies["next"]
	_, hasNextDev := pkg.DevDependencies["next"]
	return hasNext || hasNextDev
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// dirExists checks if a directory exists.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// String returns a string representation of ProjectType.
func (p ProjectType) String() string {
	return string(p)
}

// IsKnown returns true if the project type is known (not unknown).
func (p ProjectType) IsKnown() bool {
	return p != ProjectTypeUnknown
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Refactor.MaxFiles < 0 {
		return fmt.Errorf("refactor.max_files must be non-negative, got %d", c.Refactor.MaxFiles)
	}
	if c.Refactor.MaxMatches < 0 {
		return fmt.Errorf("refactor.max_matches must be non-negative, got %d", c.Refactor.MaxMatches)
	}
	if c.Store.ChunkSize < 0 {
		return fmt.Errorf("store.chunk_size must be non-negative, got %d", c.Store.ChunkSize)
	}

	validBackends := map[string]bool{"sqlite": true, "bleve": true}
	if !validBackends[strings.ToLower(c.Store.BM25Backend)] {
		return fmt.Errorf("store.bm25_backend must be 'sqlite' or 'bleve', got %s", c.Store.BM25Backend)
	}

	validMetrics := map[string]bool{"cosine": true, "euclidean": true}
	if !validMetrics[strings.ToLower(c.Store.VectorMetric)] {
		return fmt.Errorf("store.vector_metric must be 'cosine' or 'euclidean', got %s", c.Store.VectorMetric)
	}

	validTransports := map[string]bool{"stdio": true, "sse": true}
	if !validTransports[strings.ToLower(c.Server.Transport)] {
		return fmt.Errorf("server.transport must be 'stdio' or 'sse', got %s", c.Server.Transport)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	sum := math.Abs(c.Scoring.PathWeight) + math.Abs(c.Scoring.FilenameWeight)
	if sum < 0 {
		return fmt.Errorf("scoring weights must be finite")
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadUserConfig loads the user configuration file.
// Returns nil config and nil error if the file doesn't exist.
func LoadUserConfig() (*Config, error) {
	return loadUserConfig()
}
