// Copyright (C) 2025 Kodiak Labs (eng@kodiaklabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package pipeline runs the document ingestion flow: extract, classify,
// chunk, embed, upsert.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/kodiak-ai/kodiak/services/embedding"
	"github.com/kodiak-ai/kodiak/services/ingest/blobstore"
	"github.com/kodiak-ai/kodiak/services/ingest/chunker"
	"github.com/kodiak-ai/kodiak/services/ingest/extract"
	"github.com/kodiak-ai/kodiak/services/orchestrator/datatypes"
	"github.com/kodiak-ai/kodiak/services/orchestrator/policy"
)

var tracer = otel.Tracer("kodiak.ingest")

// DefaultEmbedBatchSize bounds how many chunks go to the embeddings
// provider per call. Kept small to stay under provider rate limits.
const DefaultEmbedBatchSize = 16

// IndexUploadError is returned when an index batch write fails. It aborts
// the document's remaining batches: partial silent success would corrupt
// chunk provenance.
type IndexUploadError struct {
	Path    string
	Message string
}

// Error implements the error interface for IndexUploadError.
func (e *IndexUploadError) Error() string {
	return fmt.Sprintf("index upload failed for %s: %s", e.Path, e.Message)
}

// IsIndexUploadError checks if an error is an *IndexUploadError.
func IsIndexUploadError(err error) bool {
	_, ok := err.(*IndexUploadError)
	return ok
}

// Options tunes the pipeline. Zero values take the package defaults.
type Options struct {
	ChunkSize      int
	ChunkOverlap   int
	EmbedBatchSize int
}

// Pipeline wires the ingestion collaborators together. Construct with New;
// all dependencies are required except the store, which only batch
// ingestion uses.
type Pipeline struct {
	store     blobstore.Store
	extractor extract.TextExtractor
	embedder  embedding.Embedder
	indexer   Indexer
	opts      Options
}

// New creates a Pipeline.
func New(store blobstore.Store, extractor extract.TextExtractor, embedder embedding.Embedder, indexer Indexer, opts Options) *Pipeline {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = chunker.DefaultSize
	}
	if opts.ChunkOverlap <= 0 {
		opts.ChunkOverlap = chunker.DefaultOverlap
	}
	if opts.ChunkOverlap >= opts.ChunkSize {
		opts.ChunkOverlap = opts.ChunkSize / 4
	}
	if opts.EmbedBatchSize <= 0 {
		opts.EmbedBatchSize = DefaultEmbedBatchSize
	}
	return &Pipeline{
		store:     store,
		extractor: extractor,
		embedder:  embedder,
		indexer:   indexer,
		opts:      opts,
	}
}

// BatchResult summarizes one IngestBatch run.
type BatchResult struct {
	FilesProcessed int
	ChunksUploaded int
	// Failures records per-document extraction problems that did not
	// abort the run, as "name: reason" strings for action hints.
	Failures []string
}

// IngestBatch lists documents under prefix (bounded by maxFiles) and runs
// each through the per-document pipeline sequentially.
//
// Extraction failures are recorded and skipped; an index upload failure is
// fatal for the whole run.
func (p *Pipeline) IngestBatch(ctx context.Context, prefix string, maxFiles int) (BatchResult, error) {
	ctx, span := tracer.Start(ctx, "ingest.IngestBatch")
	defer span.End()

	var result BatchResult
	if p.store == nil {
		return result, fmt.Errorf("no document store configured")
	}

	names, err := p.store.List(ctx, prefix, maxFiles)
	if err != nil {
		return result, fmt.Errorf("failed to list documents under %s: %w", prefix, err)
	}
	slog.Info("Starting batch ingestion", "prefix", prefix, "documents", len(names))

	for _, name := range names {
		content, err := p.store.Download(ctx, name)
		if err != nil {
			slog.Error("Failed to download document", "name", name, "error", err)
			result.Failures = append(result.Failures, fmt.Sprintf("%s: download failed", name))
			continue
		}

		chunks, err := p.ingestDocument(ctx, name, content)
		switch {
		case err == nil:
			result.FilesProcessed++
			result.ChunksUploaded += chunks
		case IsIndexUploadError(err):
			return result, err
		case extract.IsUnsupportedFileType(err):
			slog.Warn("Skipping unsupported document", "name", name)
			result.Failures = append(result.Failures, fmt.Sprintf("%s: unsupported file type", name))
		default:
			slog.Error("Failed to ingest document", "name", name, "error", err)
			result.Failures = append(result.Failures, fmt.Sprintf("%s: %v", name, err))
		}
	}

	slog.Info("Batch ingestion finished",
		"prefix", prefix,
		"files", result.FilesProcessed,
		"chunks", result.ChunksUploaded,
		"failures", len(result.Failures))
	return result, nil
}

// IngestSingle runs the per-document pipeline for one in-memory document.
// Unsupported or empty-after-extraction input returns (0, 0, nil): nothing
// to index is a normal outcome on the event-driven path.
func (p *Pipeline) IngestSingle(ctx context.Context, fileName string, raw []byte) (int, int, error) {
	ctx, span := tracer.Start(ctx, "ingest.IngestSingle")
	defer span.End()

	chunks, err := p.ingestDocument(ctx, fileName, raw)
	if err != nil {
		if extract.IsUnsupportedFileType(err) {
			slog.Warn("Skipping unsupported document", "name", fileName)
			return 0, 0, nil
		}
		return 0, 0, err
	}
	if chunks == 0 {
		return 0, 0, nil
	}
	return 1, chunks, nil
}

// ingestDocument is the shared per-document flow. Returns the number of
// chunks uploaded.
func (p *Pipeline) ingestDocument(ctx context.Context, name string, raw []byte) (int, error) {
	text, err := p.extractor.Extract(ctx, name, raw)
	if err != nil {
		return 0, err
	}
	if strings.TrimSpace(text) == "" {
		slog.Debug("Document produced no text", "name", name)
		return 0, nil
	}

	classification := policy.ClassifyPath(name)
	if classification == policy.Unknown {
		slog.Warn("Document path has no classification prefix, indexing as unknown",
			"name", name)
	}

	chunks := chunker.ChunkByChars(text, p.opts.ChunkSize, p.opts.ChunkOverlap)
	if len(chunks) == 0 {
		return 0, nil
	}
	slog.Info("Chunked document", "name", name,
		"classification", classification.Tag(), "chunks", len(chunks))

	now := time.Now()
	uploaded := 0
	for start := 0; start < len(chunks); start += p.opts.EmbedBatchSize {
		end := start + p.opts.EmbedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		vectors, err := p.embedder.EmbedBatch(ctx, batch)
		if err != nil {
			return uploaded, fmt.Errorf("failed to embed chunks %d-%d of %s: %w",
				start, end-1, name, err)
		}

		records := make([]datatypes.ChunkRecord, len(batch))
		for i, chunk := range batch {
			idx := start + i
			records[i] = datatypes.ChunkRecord{
				ID:             datatypes.ChunkID(name, idx),
				Content:        chunk,
				Source:         path.Base(name),
				Path:           name,
				ChunkIndex:     idx,
				CreatedAt:      now,
				Classification: classification.Tag(),
				Vector:         vectors[i],
			}
		}

		if err := p.indexer.UpsertBatch(ctx, records); err != nil {
			return uploaded, &IndexUploadError{Path: name, Message: err.Error()}
		}
		uploaded += len(records)
	}

	return uploaded, nil
}
