// Package indexer implements the indexing stage: it chunks the source
// document, embeds the chunks, and persists them as the job's fact index.
package indexer

import (
	"context"
	"fmt"
	"log/slog"

	"papercast/internal/capability"
	"papercast/internal/config"
	"papercast/internal/index"
	"papercast/internal/ingest"
	"papercast/internal/jobs"
	"papercast/internal/logging"
	"papercast/internal/services"
	"papercast/internal/stage"
)

// Stage integrates fact indexing with the workflow manager.
type Stage struct {
	cfg      *config.Config
	store    *jobs.Store
	embedder capability.Embedder
	logger   *slog.Logger
}

// NewStage constructs the indexing stage.
func NewStage(cfg *config.Config, store *jobs.Store, embedder capability.Embedder, logger *slog.Logger) *Stage {
	return &Stage{cfg: cfg, store: store, embedder: embedder, logger: logging.NewComponentLogger(logger, "indexer")}
}

// SetLogger routes stage logs into the job-scoped log.
func (s *Stage) SetLogger(logger *slog.Logger) {
	if s == nil {
		return
	}
	s.logger = logging.NewComponentLogger(logger, "indexer")
}

// Prepare primes progress fields before executing the stage.
func (s *Stage) Prepare(_ context.Context, job *jobs.Job) error {
	if s == nil || s.embedder == nil {
		return services.Wrap(services.ErrConfiguration, "index", "prepare", "Indexing stage is not configured", nil)
	}
	job.InitProgress("Indexing", "Building fact index")
	return nil
}

// Execute chunks and embeds the job's source document. Chunks persisted by
// an earlier attempt keep their embeddings, so resume skips the embedding
// calls already paid for.
func (s *Stage) Execute(ctx context.Context, job *jobs.Job) error {
	doc, err := s.store.GetDocument(ctx, job.DocumentID)
	if err != nil {
		return services.Wrap(services.ErrTransient, "index", "load document", "Failed to load document row", err)
	}
	if doc == nil {
		return services.Wrap(services.ErrFatal, "index", "load document",
			fmt.Sprintf("Document %d not found", job.DocumentID), nil)
	}

	chunks, err := index.DecodeChunks(doc.ChunksJSON)
	if err != nil {
		return services.Wrap(services.ErrFatal, "index", "decode chunks", "Persisted chunks are corrupt", err)
	}
	if len(chunks) == 0 {
		sourcePath := doc.StagedPath
		if sourcePath == "" {
			sourcePath = doc.SourcePath
		}
		loaded, err := ingest.Load(sourcePath)
		if err != nil {
			return err
		}
		chunker := index.Chunker{Size: s.cfg.Index.ChunkSize, Overlap: s.cfg.Index.ChunkOverlap}
		chunks = chunker.Split(doc.ID, loaded.Content)
		doc.Pages = loaded.Pages
		doc.WordCount = loaded.WordCount
	}

	if len(chunks) == 0 {
		return services.Wrap(services.ErrContent, "index", "chunk document",
			"Document produced no indexable chunks", nil)
	}

	job.SetProgress("Indexing", fmt.Sprintf("Embedding %d chunks", len(chunks)), 25)
	facts, chunks, err := index.BuildFacts(ctx, s.embedder, doc.ID, chunks)
	if err != nil {
		marker := services.ErrTransient
		if capability.IsAuthError(err) {
			marker = services.ErrFatal
		}
		return services.Wrap(marker, "index", "embed chunks", "Failed to embed document chunks", err)
	}
	if facts.Len() == 0 {
		return services.Wrap(services.ErrContent, "index", "build facts", "Fact index is empty", nil)
	}

	if _, err := index.LoadPatterns(job.Style); err != nil {
		return services.Wrap(services.ErrConfiguration, "index", "load style",
			fmt.Sprintf("Unknown episode style %q", job.Style), err)
	}

	encoded, err := index.EncodeChunks(chunks)
	if err != nil {
		return services.Wrap(services.ErrFatal, "index", "encode chunks", "Failed to serialize chunks", err)
	}
	doc.ChunksJSON = encoded
	if err := s.store.UpdateDocument(ctx, doc); err != nil {
		return services.Wrap(services.ErrTransient, "index", "persist chunks", "Failed to persist chunk embeddings", err)
	}

	s.logger.Info("fact index built",
		logging.Int64(logging.FieldDocumentID, doc.ID),
		logging.Int("chunks", facts.Len()),
		logging.Int("pages", doc.Pages),
	)
	job.SetProgressComplete("Indexing", fmt.Sprintf("Indexed %d chunks", facts.Len()))
	return nil
}

// HealthCheck verifies the embedding capability is reachable.
func (s *Stage) HealthCheck(ctx context.Context) stage.Health {
	if s == nil || s.embedder == nil {
		return stage.Unhealthy("indexer", "embedding capability unavailable")
	}
	if hc, ok := s.embedder.(capability.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return stage.Unhealthy("indexer", err.Error())
		}
	}
	return stage.Healthy("indexer")
}
