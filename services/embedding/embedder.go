// Copyright (C) 2025 Kodiak Labs (eng@kodiaklabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package embedding defines the vector-embedding interface and its OpenAI
// implementation.
package embedding

import "context"

// Embedder turns text into fixed-dimensionality vectors.
//
// EmbedBatch is order-preserving: vectors[i] always corresponds to
// texts[i], and the returned slice has exactly len(texts) entries on
// success.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}
