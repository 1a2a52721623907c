// Copyright (C) 2025 Kodiak Labs (eng@kodiaklabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kodiak-ai/kodiak/services/ingest/extract"
	"github.com/kodiak-ai/kodiak/services/ingest/pipeline"
	"github.com/kodiak-ai/kodiak/services/orchestrator/datatypes"
	"github.com/kodiak-ai/kodiak/services/orchestrator/middleware"
)

type fakeStore struct {
	objects map[string][]byte
}

func (f *fakeStore) List(ctx context.Context, prefix string, max int) ([]string, error) {
	var names []string
	for name := range f.objects {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	return names, nil
}

func (f *fakeStore) Download(ctx context.Context, name string) ([]byte, error) {
	content, ok := f.objects[name]
	if !ok {
		return nil, fmt.Errorf("no such object: %s", name)
	}
	return content, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1}, nil
}

func (fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1}
	}
	return out, nil
}

type fakeIndexer struct {
	upserted int
}

func (f *fakeIndexer) UpsertBatch(ctx context.Context, records []datatypes.ChunkRecord) error {
	f.upserted += len(records)
	return nil
}

func newIngestRouter(store *fakeStore) (*gin.Engine, *fakeIndexer) {
	gin.SetMode(gin.TestMode)
	indexer := &fakeIndexer{}
	p := pipeline.New(store, extract.New(nil), fakeEmbedder{}, indexer, pipeline.Options{})

	r := gin.New()
	r.Use(middleware.Correlation())
	r.POST("/v1/ingest", HandleIngest(p, nil))
	return r, indexer
}

func TestHandleIngest_BatchRun(t *testing.T) {
	r, indexer := newIngestRouter(&fakeStore{objects: map[string][]byte{
		"public/a.txt": []byte("alpha body text"),
		"public/b.txt": []byte("beta body text"),
	}})

	w := postJSON(t, r, "/v1/ingest", `{"prefix": "Public", "maxFiles": 5}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp datatypes.IngestResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "completed", resp.Status)
	assert.Equal(t, "public/", resp.Prefix, "prefix is normalized")
	assert.Equal(t, 2, resp.FilesProcessed)
	assert.Equal(t, 2, resp.ChunksUploaded)
	assert.Equal(t, indexer.upserted, resp.ChunksUploaded)
	assert.NotEmpty(t, resp.RequestID)
}

func TestHandleIngest_RejectsUnknownPrefix(t *testing.T) {
	r, _ := newIngestRouter(&fakeStore{objects: map[string][]byte{}})

	w := postJSON(t, r, "/v1/ingest", `{"prefix": "secrets/"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var errResp datatypes.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &errResp))
	assert.Equal(t, CodeValidationError, errResp.Code)
}

func TestHandleIngest_MissingBody(t *testing.T) {
	r, _ := newIngestRouter(&fakeStore{objects: map[string][]byte{}})

	w := postJSON(t, r, "/v1/ingest", "")
	require.Equal(t, http.StatusBadRequest, w.Code)

	var errResp datatypes.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &errResp))
	assert.Equal(t, CodeMissingBody, errResp.Code)
}

func TestHandleIngest_ClampsMaxFiles(t *testing.T) {
	r, _ := newIngestRouter(&fakeStore{objects: map[string][]byte{}})

	w := postJSON(t, r, "/v1/ingest", `{"prefix": "public/", "maxFiles": 9999}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp datatypes.IngestResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, datatypes.MaxIngestFiles, resp.MaxFiles)
}
