// Copyright (C) 2025 Kodiak Labs (eng@kodiaklabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Retrieval.TopK)
	assert.InDelta(t, 0.01, cfg.Retrieval.MinScore, 1e-9)
	assert.Equal(t, 1200, cfg.Ingest.ChunkSize)
	assert.Equal(t, 150, cfg.Ingest.ChunkOverlap)
	assert.False(t, cfg.WebSearch.Enabled)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kodiak.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9999
  token_secret: from-file
retrieval:
  top_k: 8
websearch:
  enabled: true
  endpoint: https://search.internal
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "from-file", cfg.Server.TokenSecret)
	assert.Equal(t, 8, cfg.Retrieval.TopK)
	assert.True(t, cfg.WebSearch.Enabled)
	assert.Equal(t, 1200, cfg.Ingest.ChunkSize, "untouched sections keep defaults")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kodiak.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  token_secret: from-file\n"), 0o644))

	t.Setenv("KODIAK_TOKEN_SECRET", "from-env")
	t.Setenv("KODIAK_PORT", "7070")
	t.Setenv("KODIAK_WEBSEARCH_ENABLED", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Server.TokenSecret)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.True(t, cfg.WebSearch.Enabled)
}

func TestLoad_MissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.Validate(), "missing token secret must fail")

	cfg.Server.TokenSecret = "s3cret"
	assert.NoError(t, cfg.Validate())

	cfg.Ingest.ChunkOverlap = cfg.Ingest.ChunkSize
	assert.Error(t, cfg.Validate())
}
