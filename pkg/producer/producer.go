// Package producer defines the narrow, dependency-free contracts the C2
// query planner's Tier 3 (semantic) path needs from an embedding backend
// and a raw document source, so internal/query never imports internal/embed
// or internal/index directly. Concrete adapters live next to their
// implementations and are satisfied structurally — no explicit assertion
// is required of internal/embed.Embedder, which already implements
// EmbeddingModel's full method set.
package producer

import "context"

// EmbeddingModel produces vector embeddings for query text. Its method set
// mirrors internal/embed.Embedder exactly so existing embedder backends
// (local ONNX, OpenAI, static) satisfy it with no adapter code.
type EmbeddingModel interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	ModelName() string
	Available(ctx context.Context) bool
	Close() error
	SetBatchIndex(idx int)
	SetFinalBatch(isFinal bool)
}

// RawDocument is one unit of content a RawIndexer can hand back for a
// fallback scan, used when neither the inverted nor vector index has
// enough coverage to answer a query (spec §4.2's Tier 2 fallback path).
type RawDocument struct {
	Path    string
	Content string
}

// RawIndexer supplies raw file content for a project outside of the
// BM25/vector indexes, letting Tier 3 supplement sparse results with a
// direct scan instead of reporting a miss.
type RawIndexer interface {
	ListDocuments(ctx context.Context, projectID string) ([]RawDocument, error)
}
