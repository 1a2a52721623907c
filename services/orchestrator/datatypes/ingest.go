// Copyright (C) 2025 Kodiak Labs (eng@kodiaklabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"fmt"
	"strings"
)

// Bounds for IngestRequest.MaxFiles.
const (
	MinIngestFiles     = 1
	MaxIngestFiles     = 200
	DefaultIngestFiles = 20
)

// allowedIngestPrefixes are the classification roots a batch run may scan.
var allowedIngestPrefixes = []string{"public/", "internal/", "confidential/", "restricted/"}

// IngestRequest is the inbound body for POST /v1/ingest.
type IngestRequest struct {
	Prefix   string `json:"prefix"`
	MaxFiles int    `json:"maxFiles"`
}

// Normalize validates the prefix against the classification roots
// (case-insensitive, trailing slash optional) and clamps MaxFiles to
// [MinIngestFiles, MaxIngestFiles], defaulting when unset.
func (r *IngestRequest) Normalize() error {
	prefix := strings.ToLower(strings.TrimSpace(r.Prefix))
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	found := false
	for _, allowed := range allowedIngestPrefixes {
		if prefix == allowed {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("prefix must be one of %s", strings.Join(allowedIngestPrefixes, ", "))
	}
	r.Prefix = prefix

	if r.MaxFiles == 0 {
		r.MaxFiles = DefaultIngestFiles
	}
	if r.MaxFiles < MinIngestFiles {
		r.MaxFiles = MinIngestFiles
	}
	if r.MaxFiles > MaxIngestFiles {
		r.MaxFiles = MaxIngestFiles
	}
	return nil
}

// IngestResponse is the body for POST /v1/ingest replies.
type IngestResponse struct {
	Status         string   `json:"status"`
	RequestID      string   `json:"requestId"`
	Prefix         string   `json:"prefix"`
	MaxFiles       int      `json:"maxFiles"`
	FilesProcessed int      `json:"filesProcessed"`
	ChunksUploaded int      `json:"chunksUploaded"`
	ElapsedMs      int64    `json:"elapsedMs"`
	ActionHints    []string `json:"actionHints"`
}

// SourceDocument is the ephemeral per-run unit of ingestion: a blob name,
// its stable source id and the extracted text. It is discarded once chunks
// are produced.
type SourceDocument struct {
	BlobName string
	SourceID string
	Content  string
}
