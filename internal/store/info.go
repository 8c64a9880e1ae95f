package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// EmbedderInfoInput carries the currently configured embedder's identity so
// GetIndexInfo can report whether it still matches what the on-disk index
// was built with.
type EmbedderInfoInput struct {
	Model      string
	Backend    string
	Dimensions int
}

// GetIndexInfo assembles an IndexInfo for the `codeintel index info` command:
// project stats and embedder metadata stored at index time, storage sizes on
// disk, and a compatibility check against the currently configured embedder.
// dataDir is the project's ".codeintel" directory; current may be nil if no
// embedder could be constructed.
func GetIndexInfo(ctx context.Context, metadata MetadataStore, dataDir string, current *EmbedderInfoInput) (*IndexInfo, error) {
	root := filepath.Dir(dataDir)
	info := &IndexInfo{
		Location:    dataDir,
		ProjectRoot: root,
	}

	if project, err := metadata.GetProject(ctx, hashProjectPath(root)); err == nil && project != nil {
		info.ChunkCount = project.ChunkCount
		info.DocumentCount = project.FileCount
		info.CreatedAt = project.IndexedAt
		info.UpdatedAt = project.IndexedAt
	}

	if model, err := metadata.GetState(ctx, StateKeyIndexModel); err == nil && model != "" {
		info.IndexModel = model
		info.IndexBackend = inferBackendFromModel(model)
	}
	if dimStr, err := metadata.GetState(ctx, StateKeyIndexDimension); err == nil && dimStr != "" {
		if dim, convErr := strconv.Atoi(dimStr); convErr == nil {
			info.IndexDimensions = dim
		}
	}

	info.BM25SizeBytes = bm25StorageSize(dataDir)
	info.VectorSizeBytes = getFileSize(filepath.Join(dataDir, "vectors.hnsw"))
	info.IndexSizeBytes = info.BM25SizeBytes + info.VectorSizeBytes

	if current != nil {
		info.CurrentModel = current.Model
		info.CurrentBackend = current.Backend
		info.CurrentDimensions = current.Dimensions
		info.Compatible = info.IndexDimensions == 0 || info.IndexDimensions == current.Dimensions
	}

	return info, nil
}

// hashProjectPath returns the project ID used as the primary key for a
// project's metadata row: the first 16 hex characters of the SHA256 hash of
// its absolute root path.
func hashProjectPath(root string) string {
	h := sha256.Sum256([]byte(root))
	return hex.EncodeToString(h[:])[:16]
}

// bm25StorageSize reports the on-disk size of the BM25 index, checking both
// the SQLite-backed single file and the Bleve-backed directory layout.
func bm25StorageSize(dataDir string) int64 {
	if size := getFileSize(filepath.Join(dataDir, "bm25.db")); size > 0 {
		return size
	}
	return getDirSize(filepath.Join(dataDir, "bm25.bleve"))
}

// getFileSize returns the size of a file in bytes, or 0 if it doesn't exist.
func getFileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// getDirSize returns the total size of all files under a directory,
// recursing into subdirectories. Returns 0 for a missing or empty directory.
func getDirSize(path string) int64 {
	var size int64
	_ = filepath.Walk(path, func(_ string, fi os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !fi.IsDir() {
			size += fi.Size()
		}
		return nil
	})
	return size
}

// FormatBytes renders a byte count as a human-readable string (B/KB/MB/GB/TB).
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	units := []string{"KB", "MB", "GB", "TB"}
	return fmt.Sprintf("%.1f %s", float64(bytes)/float64(div), units[exp])
}

// FormatTime renders a timestamp for display, or "unknown" for a zero time.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.Format("2006-01-02 15:04:05")
}

// containsAny reports whether s contains any of the given substrings.
func containsAny(s string, substrings []string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// inferBackendFromModel guesses which embedder backend produced a model name
// when the index predates explicit backend tracking.
func inferBackendFromModel(model string) string {
	if strings.HasPrefix(model, "static") {
		return "static"
	}
	if filepath.IsAbs(model) || containsAny(model, []string{"mlx-community/", "mlx-"}) {
		return "mlx"
	}
	return "ollama"
}
