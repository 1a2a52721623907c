// Copyright (C) 2025 Kodiak Labs (eng@kodiaklabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads the orchestrator's configuration: a YAML file with
// environment-variable overrides, resolved once at process start.
//
// Components receive the loaded struct through their constructors and
// never read the process environment directly.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Weaviate  WeaviateConfig  `yaml:"weaviate"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	WebSearch WebSearchConfig `yaml:"websearch"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// TokenSecret signs web-search confirmation tokens. Required.
	TokenSecret string        `yaml:"token_secret"`
	TokenTTL    time.Duration `yaml:"token_ttl"`
	// DefaultBoundary applies when a request names no data boundary.
	DefaultBoundary string `yaml:"default_boundary"`
}

type WeaviateConfig struct {
	Host   string `yaml:"host"`
	Scheme string `yaml:"scheme"`
}

type OpenAIConfig struct {
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	BaseURL        string `yaml:"base_url,omitempty"`
	EmbeddingModel string `yaml:"embedding_model"`
	EmbeddingDim   int    `yaml:"embedding_dim"`
	SystemPrompt   string `yaml:"system_prompt,omitempty"`
}

type RetrievalConfig struct {
	TopK     int     `yaml:"top_k"`
	MinScore float64 `yaml:"min_score"`
}

type WebSearchConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Endpoint   string `yaml:"endpoint"`
	APIKey     string `yaml:"api_key"`
	MaxResults int    `yaml:"max_results"`
}

type IngestConfig struct {
	Bucket         string `yaml:"bucket"`
	CredentialsKey string `yaml:"credentials_key,omitempty"`
	DropDir        string `yaml:"drop_dir,omitempty"`
	DocAnalysisURL string `yaml:"doc_analysis_url,omitempty"`
	DocAnalysisKey string `yaml:"doc_analysis_key,omitempty"`
	ChunkSize      int    `yaml:"chunk_size"`
	ChunkOverlap   int    `yaml:"chunk_overlap"`
	EmbedBatchSize int    `yaml:"embed_batch_size"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint,omitempty"`
	ServiceName  string `yaml:"service_name"`
}

// Default returns the configuration used when no file and no overrides are
// present. The token secret is deliberately empty so an unconfigured
// deployment fails Validate instead of signing with a known value.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: 10 * time.Second,
			TokenTTL:        5 * time.Minute,
			DefaultBoundary: "Public",
		},
		Weaviate:  WeaviateConfig{Host: "localhost:8090", Scheme: "http"},
		OpenAI:    OpenAIConfig{Model: "gpt-4o-mini", EmbeddingModel: "text-embedding-3-small", EmbeddingDim: 1536},
		Retrieval: RetrievalConfig{TopK: 4, MinScore: 0.01},
		WebSearch: WebSearchConfig{MaxResults: 3},
		Ingest:    IngestConfig{ChunkSize: 1200, ChunkOverlap: 150, EmbedBatchSize: 16},
		Telemetry: TelemetryConfig{ServiceName: "kodiak-orchestrator"},
	}
}

// Load reads path (optional), then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

// applyEnvOverrides maps the deployment environment onto config fields.
// Secrets normally arrive this way rather than through the YAML file.
func applyEnvOverrides(cfg *Config) {
	setString(&cfg.Server.TokenSecret, "KODIAK_TOKEN_SECRET")
	setInt(&cfg.Server.Port, "KODIAK_PORT")
	setString(&cfg.Server.DefaultBoundary, "KODIAK_DEFAULT_BOUNDARY")

	setString(&cfg.Weaviate.Host, "KODIAK_WEAVIATE_HOST")
	setString(&cfg.Weaviate.Scheme, "KODIAK_WEAVIATE_SCHEME")

	setString(&cfg.OpenAI.APIKey, "KODIAK_OPENAI_API_KEY")
	setString(&cfg.OpenAI.Model, "KODIAK_OPENAI_MODEL")
	setString(&cfg.OpenAI.BaseURL, "KODIAK_OPENAI_BASE_URL")

	setString(&cfg.WebSearch.Endpoint, "KODIAK_WEBSEARCH_ENDPOINT")
	setString(&cfg.WebSearch.APIKey, "KODIAK_WEBSEARCH_API_KEY")
	setBool(&cfg.WebSearch.Enabled, "KODIAK_WEBSEARCH_ENABLED")

	setString(&cfg.Ingest.Bucket, "KODIAK_INGEST_BUCKET")
	setString(&cfg.Ingest.DropDir, "KODIAK_INGEST_DROP_DIR")
	setString(&cfg.Ingest.DocAnalysisURL, "KODIAK_DOC_ANALYSIS_URL")
	setString(&cfg.Ingest.DocAnalysisKey, "KODIAK_DOC_ANALYSIS_KEY")

	setString(&cfg.Telemetry.OTLPEndpoint, "KODIAK_OTLP_ENDPOINT")
}

// Validate rejects configurations the service cannot run with.
func (c Config) Validate() error {
	if c.Server.TokenSecret == "" {
		return fmt.Errorf("server.token_secret is required (or set KODIAK_TOKEN_SECRET)")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive")
	}
	if c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		return fmt.Errorf("ingest.chunk_overlap must be smaller than ingest.chunk_size")
	}
	return nil
}

func setString(target *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*target = v
	}
}

func setInt(target *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(v); err == nil {
			*target = parsed
		}
	}
}

func setBool(target *bool, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(v); err == nil {
			*target = parsed
		}
	}
}
