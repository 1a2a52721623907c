// Copyright (C) 2025 Kodiak Labs (eng@kodiaklabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

// ChunkClassName is the Weaviate class holding ingested document chunks.
const ChunkClassName = "DocumentChunk"

// ChunkRecord is the indexed unit: one embedded slice of one document.
// Classification is inferred at ingestion time and immutable until the
// path is re-ingested.
type ChunkRecord struct {
	ID             string
	Content        string
	Source         string
	Path           string
	ChunkIndex     int
	Page           int
	CreatedAt      time.Time
	Classification string
	Vector         []float32
}

// ChunkID derives the deterministic chunk identity from (path, chunkIndex).
// Re-ingesting the same document at the same chunk boundaries produces the
// same UUID, turning every upload into an upsert.
func ChunkID(path string, chunkIndex int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s#%d", path, chunkIndex)))
	id, _ := uuid.FromBytes(sum[:16])
	return id.String()
}

// Properties converts the record to the map shape Weaviate's batcher wants.
func (c *ChunkRecord) Properties() map[string]interface{} {
	return map[string]interface{}{
		"content":        c.Content,
		"source":         c.Source,
		"path":           c.Path,
		"chunk_index":    c.ChunkIndex,
		"page":           c.Page,
		"created_at":     c.CreatedAt.UnixMilli(),
		"classification": c.Classification,
	}
}

// GetChunkSchema returns the DocumentChunk class definition. Vectorizer is
// "none": vectors are computed by the embedding client and supplied on
// upload.
func GetChunkSchema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:       ChunkClassName,
		Description: "A security-classified, embedded slice of an ingested document.",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{
				Name:         "content",
				DataType:     []string{"text"},
				Description:  "The chunk text.",
				Tokenization: "word",
			},
			{
				Name:            "source",
				DataType:        []string{"text"},
				Description:     "Human-readable source label (file name).",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "path",
				DataType:        []string{"text"},
				Description:     "Full storage path the chunk was ingested from.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "chunk_index",
				DataType:        []string{"int"},
				Description:     "Zero-based position of the chunk within its document.",
				IndexFilterable: indexFilterable,
			},
			{
				Name:            "page",
				DataType:        []string{"int"},
				Description:     "Source page number where known (PDF), else 0.",
				IndexFilterable: indexFilterable,
			},
			{
				Name:            "created_at",
				DataType:        []string{"number"},
				Description:     "Unix ms timestamp of the ingestion run.",
				IndexFilterable: indexFilterable,
			},
			{
				Name:            "classification",
				DataType:        []string{"text"},
				Description:     "Lowercase classification tag inferred from the path prefix.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
		},
	}
}

// EnsureChunkSchema creates the DocumentChunk class if it does not exist.
// Existing classes are left untouched so re-deploys never clobber data.
func EnsureChunkSchema(ctx context.Context, client *weaviate.Client) error {
	exists, err := client.Schema().ClassExistenceChecker().
		WithClassName(ChunkClassName).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to check %s schema: %w", ChunkClassName, err)
	}
	if exists {
		slog.Debug("Weaviate schema already present", "class", ChunkClassName)
		return nil
	}

	if err := client.Schema().ClassCreator().WithClass(GetChunkSchema()).Do(ctx); err != nil {
		return fmt.Errorf("failed to create %s schema: %w", ChunkClassName, err)
	}
	slog.Info("Created Weaviate schema", "class", ChunkClassName)
	return nil
}

// ParseGraphQLResponse converts Weaviate's dynamic GraphQL response into a
// typed struct via a marshal/unmarshal round trip. T must carry json tags
// matching the response shape.
func ParseGraphQLResponse[T any](resp *models.GraphQLResponse) (*T, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil GraphQL response")
	}

	respBytes, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GraphQL response data: %w", err)
	}

	var result T
	if err := json.Unmarshal(respBytes, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal into target type: %w", err)
	}

	return &result, nil
}

// ChunkQueryResponse is the typed shape of a DocumentChunk Get query.
type ChunkQueryResponse struct {
	Get struct {
		DocumentChunk []ChunkResult `json:"DocumentChunk"`
	} `json:"Get"`
}

// ChunkResult is a single retrieved chunk with its hybrid-search metadata.
// The hybrid score arrives as a string; parsing is the retrieval client's
// concern.
type ChunkResult struct {
	Content        string `json:"content"`
	Source         string `json:"source"`
	Path           string `json:"path"`
	ChunkIndex     *int   `json:"chunk_index"`
	Classification string `json:"classification"`
	Additional     struct {
		ID    string `json:"id"`
		Score string `json:"score"`
	} `json:"_additional"`
}
