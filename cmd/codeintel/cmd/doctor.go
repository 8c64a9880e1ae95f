package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/codeintel-go/engine/internal/config"
	"github.com/codeintel-go/engine/internal/store"
)

func newDoctorCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check index health and diagnose issues",
		Long: `Run diagnostics against the project's .codeintel index.

Checks:
  - metadata.db opens and reports a known project
  - BM25 index is present and reports a chunk count
  - vector store is present and its dimensions match the configured embedder
  - project file/chunk counts are non-zero after an index has been run

Use --json for machine-readable output.`,
		Example: `  # Run diagnostics
  codeintel doctor

  # JSON output for scripting
  codeintel doctor --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

// DoctorCheck is one diagnostic result.
type DoctorCheck struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "pass", "warn", "fail"
	Message string `json:"message"`
}

// DoctorReport is the full diagnostic output.
type DoctorReport struct {
	ProjectRoot string        `json:"project_root"`
	Checks      []DoctorCheck `json:"checks"`
}

func runDoctor(cmd *cobra.Command, jsonOutput bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, _ = os.Getwd()
	}

	report := DoctorReport{ProjectRoot: root}
	dataDir := filepath.Join(root, ".codeintel")

	metadataPath := filepath.Join(dataDir, "metadata.db")
	if !fileExists(metadataPath) {
		report.Checks = append(report.Checks, DoctorCheck{
			Name: "metadata.db", Status: "fail",
			Message: "no index found; run 'codeintel index' first",
		})
		return emitDoctorReport(cmd, report, jsonOutput)
	}

	metadata, err := store.NewSQLiteStore(metadataPath)
	if err != nil {
		report.Checks = append(report.Checks, DoctorCheck{
			Name: "metadata.db", Status: "fail",
			Message: fmt.Sprintf("failed to open: %v", err),
		})
		return emitDoctorReport(cmd, report, jsonOutput)
	}
	defer func() { _ = metadata.Close() }()

	report.Checks = append(report.Checks, DoctorCheck{
		Name: "metadata.db", Status: "pass", Message: "opened",
	})

	projectID := hashString(root)
	project, err := metadata.GetProject(ctx, projectID)
	if err != nil || project == nil {
		report.Checks = append(report.Checks, DoctorCheck{
			Name: "project", Status: "warn",
			Message: "no project record; index may be empty",
		})
	} else {
		status := "pass"
		if project.FileCount == 0 {
			status = "warn"
		}
		report.Checks = append(report.Checks, DoctorCheck{
			Name: "project", Status: status,
			Message: fmt.Sprintf("%d files, %d chunks, indexed %s", project.FileCount, project.ChunkCount, project.IndexedAt.Format("2006-01-02 15:04:05")),
		})
	}

	cfg, err := config.Load(root)
	if err != nil {
		cfg = config.NewConfig()
	}

	bm25BasePath := filepath.Join(dataDir, "bm25")
	bm25, err := store.NewBM25IndexWithBackend(bm25BasePath, store.DefaultBM25Config(), cfg.Search.BM25Backend)
	if err != nil {
		report.Checks = append(report.Checks, DoctorCheck{
			Name: "bm25", Status: "fail", Message: fmt.Sprintf("failed to open: %v", err),
		})
	} else {
		report.Checks = append(report.Checks, DoctorCheck{
			Name: "bm25", Status: "pass", Message: "opened",
		})
		_ = bm25.Close()
	}

	vectorPath := filepath.Join(dataDir, "vectors.hnsw")
	if dims, err := store.ReadHNSWStoreDimensions(vectorPath); err != nil {
		report.Checks = append(report.Checks, DoctorCheck{
			Name: "vector store", Status: "warn",
			Message: "no vector store found; semantic search unavailable",
		})
	} else {
		report.Checks = append(report.Checks, DoctorCheck{
			Name: "vector store", Status: "pass",
			Message: fmt.Sprintf("%d dimensions", dims),
		})
	}

	return emitDoctorReport(cmd, report, jsonOutput)
}

func emitDoctorReport(cmd *cobra.Command, report DoctorReport, jsonOutput bool) error {
	if jsonOutput {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(report); err != nil {
			return err
		}
	} else {
		cmd.Printf("Project: %s\n\n", report.ProjectRoot)
		for _, c := range report.Checks {
			cmd.Printf("[%-4s] %-14s %s\n", c.Status, c.Name, c.Message)
		}
	}

	for _, c := range report.Checks {
		if c.Status == "fail" {
			return &doctorError{message: "system check failed"}
		}
	}
	return nil
}

// doctorError is a custom error for doctor command failures.
type doctorError struct {
	message string
}

func (e *doctorError) Error() string {
	return e.message
}
