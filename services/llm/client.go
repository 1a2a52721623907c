// Copyright (C) 2025 Kodiak Labs (eng@kodiaklabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm defines the completion-provider interface and its OpenAI
// implementation.
package llm

import "context"

// GenerationParams tunes a single completion call. Nil fields keep the
// provider's defaults.
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// Client is the interface any completion backend must satisfy.
type Client interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
	Name() string
}
