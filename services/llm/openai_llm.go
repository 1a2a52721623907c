// Copyright (C) 2025 Kodiak Labs (eng@kodiaklabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/kodiak-ai/kodiak/services/orchestrator/datatypes"
)

const defaultSystemPrompt = "You are a helpful assistant."

// OpenAIClient talks to an OpenAI-compatible chat-completion endpoint.
// All settings arrive through the constructor; nothing is read from the
// process environment.
type OpenAIClient struct {
	client       *openai.Client
	model        string
	systemPrompt string
}

// OpenAIOptions configures NewOpenAIClient. BaseURL is optional and exists
// for compatible self-hosted endpoints and for tests.
type OpenAIOptions struct {
	APIKey       string
	Model        string
	BaseURL      string
	SystemPrompt string
}

// NewOpenAIClient builds the client. A missing API key is an error; a
// missing model falls back to gpt-4o-mini.
func NewOpenAIClient(opts OpenAIOptions) (*OpenAIClient, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("openai api key is not configured")
	}
	if opts.Model == "" {
		opts.Model = "gpt-4o-mini"
		slog.Warn("LLM model not configured, defaulting", "model", opts.Model)
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = defaultSystemPrompt
	}

	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	slog.Info("Initializing OpenAI completion client", "model", opts.Model)
	return &OpenAIClient{
		client:       openai.NewClientWithConfig(cfg),
		model:        opts.Model,
		systemPrompt: opts.SystemPrompt,
	}, nil
}

// Name implements Client.
func (o *OpenAIClient) Name() string { return "openai/" + o.model }

// Generate implements Client. Provider failures come back as
// *datatypes.ProviderError so the pipeline can distinguish rate limiting
// from everything else.
func (o *OpenAIClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: o.systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.TopP != nil {
		req.TopP = *params.TopP
	}
	if params.MaxTokens != nil {
		req.MaxCompletionTokens = *params.MaxTokens
	}
	if len(params.Stop) > 0 {
		req.Stop = params.Stop
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		slog.Error("OpenAI completion call failed", "model", o.model, "error", err)
		return "", toProviderError(err)
	}
	if len(resp.Choices) == 0 {
		return "", &datatypes.ProviderError{
			Provider: "openai",
			Message:  "completion returned no choices",
		}
	}
	slog.Debug("Received completion", "model", o.model,
		"finish_reason", resp.Choices[0].FinishReason)
	return resp.Choices[0].Message.Content, nil
}

func toProviderError(err error) *datatypes.ProviderError {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		status := apiErr.HTTPStatusCode
		return &datatypes.ProviderError{
			Provider:   "openai",
			StatusCode: status,
			Message:    apiErr.Message,
			Retryable:  status == 429 || status >= 500,
		}
	}
	return &datatypes.ProviderError{Provider: "openai", Message: err.Error(), Retryable: true}
}
