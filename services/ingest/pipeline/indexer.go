// Copyright (C) 2025 Kodiak Labs (eng@kodiaklabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-openapi/strfmt"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/kodiak-ai/kodiak/services/orchestrator/datatypes"
)

// Indexer writes chunk records to the document index. Writes are upserts
// keyed by the record's deterministic id.
type Indexer interface {
	UpsertBatch(ctx context.Context, records []datatypes.ChunkRecord) error
}

// WeaviateIndexer implements Indexer over the Weaviate batch API.
type WeaviateIndexer struct {
	client *weaviate.Client
}

// NewWeaviateIndexer creates an indexer.
func NewWeaviateIndexer(client *weaviate.Client) *WeaviateIndexer {
	return &WeaviateIndexer{client: client}
}

// UpsertBatch implements Indexer. Any per-item failure fails the whole
// batch; callers treat that as fatal for the document.
func (w *WeaviateIndexer) UpsertBatch(ctx context.Context, records []datatypes.ChunkRecord) error {
	if len(records) == 0 {
		return nil
	}

	objects := make([]*models.Object, len(records))
	for i, rec := range records {
		objects[i] = &models.Object{
			Class:      datatypes.ChunkClassName,
			ID:         strfmt.UUID(rec.ID),
			Vector:     rec.Vector,
			Properties: rec.Properties(),
		}
	}

	resp, err := w.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return fmt.Errorf("batch write failed: %w", err)
	}

	for _, item := range resp {
		if item.Result == nil || item.Result.Status == nil || *item.Result.Status != "SUCCESS" {
			if item.Result != nil && item.Result.Errors != nil && len(item.Result.Errors.Error) > 0 {
				return fmt.Errorf("batch item rejected: %s", item.Result.Errors.Error[0].Message)
			}
			return fmt.Errorf("batch item did not succeed")
		}
	}

	slog.Debug("Upserted chunk batch", "count", len(records))
	return nil
}
