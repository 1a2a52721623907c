// Copyright (C) 2025 Kodiak Labs (eng@kodiaklabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/kodiak-ai/kodiak/services/orchestrator/datatypes"
)

const (
	maxAttempts    = 6
	initialBackoff = 500 * time.Millisecond
	maxBackoff     = 30 * time.Second
)

// OpenAIEmbedder calls an OpenAI-compatible embeddings endpoint.
//
// Transient failures (429, 5xx) are retried with exponential backoff up to
// maxAttempts. A dimensionality mismatch is never retried: the model or
// the index is misconfigured and retrying would only mask it.
type OpenAIEmbedder struct {
	client *openai.Client
	model  openai.EmbeddingModel
	dim    int
}

// Options configures NewOpenAIEmbedder. Dim is the dimensionality every
// returned vector must have; it must match the index schema.
type Options struct {
	APIKey  string
	Model   string
	BaseURL string
	Dim     int
}

// NewOpenAIEmbedder builds the embedder. Defaults: text-embedding-3-small
// at 1536 dimensions.
func NewOpenAIEmbedder(opts Options) (*OpenAIEmbedder, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("embeddings api key is not configured")
	}
	if opts.Model == "" {
		opts.Model = string(openai.SmallEmbedding3)
	}
	if opts.Dim <= 0 {
		opts.Dim = 1536
	}

	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	slog.Info("Initializing embeddings client", "model", opts.Model, "dim", opts.Dim)
	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(cfg),
		model:  openai.EmbeddingModel(opts.Model),
		dim:    opts.Dim,
	}, nil
}

// Embed implements Embedder.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch implements Embedder. Responses are reassembled by the
// provider's explicit index field rather than trusting response order.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := e.createWithRetry(ctx, texts)
	if err != nil {
		return nil, err
	}

	if len(resp.Data) != len(texts) {
		return nil, &datatypes.ProviderError{
			Provider: "embeddings",
			Message: fmt.Sprintf("expected %d embeddings, got %d",
				len(texts), len(resp.Data)),
		}
	}

	vectors := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(texts) {
			return nil, &datatypes.ProviderError{
				Provider: "embeddings",
				Message:  fmt.Sprintf("embedding index %d out of range", item.Index),
			}
		}
		if len(item.Embedding) != e.dim {
			return nil, &datatypes.ProviderError{
				Provider: "embeddings",
				Message: fmt.Sprintf("vector dimensionality %d, expected %d",
					len(item.Embedding), e.dim),
			}
		}
		vectors[item.Index] = item.Embedding
	}
	for i, v := range vectors {
		if v == nil {
			return nil, &datatypes.ProviderError{
				Provider: "embeddings",
				Message:  fmt.Sprintf("no embedding returned for input %d", i),
			}
		}
	}
	return vectors, nil
}

func (e *OpenAIEmbedder) createWithRetry(ctx context.Context, texts []string) (openai.EmbeddingResponse, error) {
	req := openai.EmbeddingRequest{Model: e.model, Input: texts}

	backoff := initialBackoff
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err := e.client.CreateEmbeddings(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		status := 0
		var apiErr *openai.APIError
		var reqErr *openai.RequestError
		switch {
		case errors.As(err, &apiErr):
			status = apiErr.HTTPStatusCode
		case errors.As(err, &reqErr):
			status = reqErr.HTTPStatusCode
		}
		// status 0 means a transport-level failure, which is transient.
		if status != 0 && status != 429 && status < 500 {
			return openai.EmbeddingResponse{}, &datatypes.ProviderError{
				Provider:   "embeddings",
				StatusCode: status,
				Message:    err.Error(),
			}
		}
		if attempt == maxAttempts {
			break
		}

		slog.Warn("Embeddings call failed, backing off",
			"attempt", attempt, "status", status, "backoff", backoff)
		select {
		case <-ctx.Done():
			return openai.EmbeddingResponse{}, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}

	return openai.EmbeddingResponse{}, &datatypes.ProviderError{
		Provider:  "embeddings",
		Message:   fmt.Sprintf("exhausted %d attempts: %v", maxAttempts, lastErr),
		Retryable: true,
	}
}
