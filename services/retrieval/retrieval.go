// Copyright (C) 2025 Kodiak Labs (eng@kodiaklabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package retrieval queries the document index for evidence, always inside
// a classification filter.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"go.opentelemetry.io/otel"

	"github.com/kodiak-ai/kodiak/services/embedding"
	"github.com/kodiak-ai/kodiak/services/orchestrator/datatypes"
)

var tracer = otel.Tracer("kodiak.retrieval")

// Searcher is the evidence-retrieval interface the chat pipeline consumes.
//
// allowedTags is the expanded classification filter and is mandatory: a
// query with no tags matches nothing rather than everything.
type Searcher interface {
	Search(ctx context.Context, query string, allowedTags []string, topK int) (datatypes.EvidenceBundle, error)
}

// WeaviateSearcher runs hybrid (keyword + vector) queries over the
// DocumentChunk class.
//
// The query vector comes from the embedder; if embedding fails the search
// degrades to keyword-only rather than failing, since some evidence beats
// none.
type WeaviateSearcher struct {
	client   *weaviate.Client
	embedder embedding.Embedder
}

// NewWeaviateSearcher creates a searcher. embedder may be nil for
// keyword-only retrieval.
func NewWeaviateSearcher(client *weaviate.Client, embedder embedding.Embedder) *WeaviateSearcher {
	return &WeaviateSearcher{client: client, embedder: embedder}
}

// Search implements Searcher.
func (s *WeaviateSearcher) Search(ctx context.Context, query string, allowedTags []string, topK int) (datatypes.EvidenceBundle, error) {
	ctx, span := tracer.Start(ctx, "retrieval.Search")
	defer span.End()

	if len(allowedTags) == 0 {
		slog.Warn("Retrieval called with an empty classification filter, returning nothing")
		return datatypes.EvidenceBundle{}, nil
	}
	if topK <= 0 {
		topK = 4
	}

	hybrid := s.client.GraphQL().HybridArgumentBuilder().WithQuery(query)
	if s.embedder != nil {
		if vector, err := s.embedder.Embed(ctx, query); err != nil {
			slog.Warn("Query embedding failed, degrading to keyword-only search", "error", err)
		} else {
			hybrid = hybrid.WithVector(vector)
		}
	}

	where := filters.Where().
		WithPath([]string{"classification"}).
		WithOperator(filters.ContainsAny).
		WithValueText(allowedTags...)

	fields := []graphql.Field{
		{Name: "content"},
		{Name: "source"},
		{Name: "path"},
		{Name: "chunk_index"},
		{Name: "classification"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "id"},
			{Name: "score"},
		}},
	}

	result, err := s.client.GraphQL().Get().
		WithClassName(datatypes.ChunkClassName).
		WithFields(fields...).
		WithWhere(where).
		WithHybrid(hybrid).
		WithLimit(topK).
		Do(ctx)
	if err != nil {
		return datatypes.EvidenceBundle{}, fmt.Errorf("weaviate hybrid search failed: %w", err)
	}
	if len(result.Errors) > 0 {
		return datatypes.EvidenceBundle{}, fmt.Errorf("weaviate hybrid search failed: %s", result.Errors[0].Message)
	}

	parsed, err := datatypes.ParseGraphQLResponse[datatypes.ChunkQueryResponse](result)
	if err != nil {
		return datatypes.EvidenceBundle{}, fmt.Errorf("failed to parse search results: %w", err)
	}

	bundle := toBundle(parsed.Get.DocumentChunk)
	slog.Debug("Retrieved internal evidence",
		"hits", len(bundle.Citations), "tags", strings.Join(allowedTags, ","))
	return bundle, nil
}

// toBundle normalizes raw index hits into the pipeline's evidence shape.
// Context blocks carry the source label so the model can cite by title.
func toBundle(hits []datatypes.ChunkResult) datatypes.EvidenceBundle {
	var bundle datatypes.EvidenceBundle
	var ctx strings.Builder

	for _, hit := range hits {
		if strings.TrimSpace(hit.Content) == "" {
			continue
		}
		if ctx.Len() > 0 {
			ctx.WriteString("\n\n")
		}
		fmt.Fprintf(&ctx, "[%s]\n%s", hit.Source, hit.Content)

		bundle.Citations = append(bundle.Citations, datatypes.Citation{
			Title:   hit.Source,
			Source:  chunkLocator(hit),
			Snippet: snippet(hit.Content),
			Score:   ParseScore(hit.Additional.Score),
		})
	}
	bundle.Context = ctx.String()
	return bundle
}

func chunkLocator(hit datatypes.ChunkResult) string {
	if hit.ChunkIndex != nil {
		return fmt.Sprintf("%s#%d", hit.Path, *hit.ChunkIndex)
	}
	return hit.Path
}

const snippetLimit = 240

func snippet(content string) string {
	runes := []rune(strings.TrimSpace(content))
	if len(runes) <= snippetLimit {
		return string(runes)
	}
	return string(runes[:snippetLimit]) + "…"
}

// ParseScore reads the hybrid score the index returns as a string. Absent
// or unparseable scores count as zero, which downstream treats as weak.
func ParseScore(raw string) float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	score, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return score
}
