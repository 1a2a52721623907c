// Copyright (C) 2025 Kodiak Labs (eng@kodiaklabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package websearch wraps the external web-search provider behind the same
// evidence shape internal retrieval produces.
package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/kodiak-ai/kodiak/services/orchestrator/datatypes"
)

var tracer = otel.Tracer("kodiak.websearch")

// Searcher is the web-evidence interface the chat pipeline consumes.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) (datatypes.EvidenceBundle, error)
}

// searchResponse is the provider's wire shape.
type searchResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Snippet string `json:"snippet"`
	} `json:"results"`
}

// HTTPSearcher calls a JSON search endpoint: GET {endpoint}?q=...&count=N
// with the API key in the X-API-Key header.
type HTTPSearcher struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPSearcher creates a searcher for the configured endpoint. Returns
// nil when no endpoint is configured; callers treat a nil searcher as
// "web search unavailable".
func NewHTTPSearcher(endpoint, apiKey string) *HTTPSearcher {
	if strings.TrimSpace(endpoint) == "" {
		return nil
	}
	return &HTTPSearcher{
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Search implements Searcher.
func (s *HTTPSearcher) Search(ctx context.Context, query string, maxResults int) (datatypes.EvidenceBundle, error) {
	ctx, span := tracer.Start(ctx, "websearch.Search")
	defer span.End()

	if maxResults <= 0 {
		maxResults = 3
	}

	reqURL := fmt.Sprintf("%s?q=%s&count=%s",
		s.endpoint, url.QueryEscape(query), strconv.Itoa(maxResults))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return datatypes.EvidenceBundle{}, fmt.Errorf("failed to build search request: %w", err)
	}
	if s.apiKey != "" {
		req.Header.Set("X-API-Key", s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return datatypes.EvidenceBundle{}, &datatypes.ProviderError{
			Provider: "websearch", Message: err.Error(), Retryable: true,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return datatypes.EvidenceBundle{}, &datatypes.ProviderError{
			Provider:   "websearch",
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
			Retryable:  resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500,
		}
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return datatypes.EvidenceBundle{}, &datatypes.ProviderError{
			Provider: "websearch", Message: "unexpected response shape: " + err.Error(),
		}
	}

	bundle := toBundle(parsed)
	slog.Debug("Web search returned results", "count", len(bundle.Citations))
	return bundle, nil
}

func toBundle(parsed searchResponse) datatypes.EvidenceBundle {
	var bundle datatypes.EvidenceBundle
	var ctx strings.Builder

	for _, r := range parsed.Results {
		if strings.TrimSpace(r.Snippet) == "" && strings.TrimSpace(r.Title) == "" {
			continue
		}
		if ctx.Len() > 0 {
			ctx.WriteString("\n\n")
		}
		fmt.Fprintf(&ctx, "[%s]\n%s", r.Title, r.Snippet)

		bundle.Citations = append(bundle.Citations, datatypes.Citation{
			Title:   r.Title,
			Source:  r.URL,
			Snippet: r.Snippet,
		})
	}
	bundle.Context = ctx.String()
	return bundle
}
