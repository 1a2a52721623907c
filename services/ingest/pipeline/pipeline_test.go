// Copyright (C) 2025 Kodiak Labs (eng@kodiaklabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kodiak-ai/kodiak/services/ingest/extract"
	"github.com/kodiak-ai/kodiak/services/orchestrator/datatypes"
)

// === test doubles ===

type memStore struct {
	objects map[string][]byte
}

func (m *memStore) List(ctx context.Context, prefix string, max int) ([]string, error) {
	var names []string
	for name := range m.objects {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
		if max > 0 && len(names) == max {
			break
		}
	}
	return names, nil
}

func (m *memStore) Download(ctx context.Context, name string) ([]byte, error) {
	content, ok := m.objects[name]
	if !ok {
		return nil, fmt.Errorf("no such object: %s", name)
	}
	return content, nil
}

type stubEmbedder struct {
	batchSizes []int
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 2, 3}, nil
}

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	s.batchSizes = append(s.batchSizes, len(texts))
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 2, 3}
	}
	return out, nil
}

type memIndexer struct {
	records []datatypes.ChunkRecord
	failAt  int // fail on the Nth batch (1-based), 0 = never
	calls   int
}

func (m *memIndexer) UpsertBatch(ctx context.Context, records []datatypes.ChunkRecord) error {
	m.calls++
	if m.failAt > 0 && m.calls == m.failAt {
		return fmt.Errorf("index unavailable")
	}
	m.records = append(m.records, records...)
	return nil
}

func newTestPipeline(store *memStore, indexer *memIndexer, opts Options) (*Pipeline, *stubEmbedder) {
	emb := &stubEmbedder{}
	return New(store, extract.New(nil), emb, indexer, opts), emb
}

func TestIngestSingle_ThreeChunksWithClassification(t *testing.T) {
	indexer := &memIndexer{}
	p, _ := newTestPipeline(nil, indexer, Options{ChunkSize: 1200, ChunkOverlap: 150})

	doc := strings.Repeat("a", 3000)
	files, chunks, err := p.IngestSingle(context.Background(), "internal/runbooks/vpn.txt", []byte(doc))
	require.NoError(t, err)

	assert.Equal(t, 1, files)
	assert.Equal(t, 3, chunks, "3000 chars at size 1200 / overlap 150 is 3 windows")
	require.Len(t, indexer.records, 3)
	for i, rec := range indexer.records {
		assert.Equal(t, "internal", rec.Classification)
		assert.Equal(t, i, rec.ChunkIndex)
		assert.Equal(t, "vpn.txt", rec.Source)
		assert.Len(t, rec.Vector, 3)
	}
}

func TestIngestSingle_IdempotentChunkIDs(t *testing.T) {
	run := func() []string {
		indexer := &memIndexer{}
		p, _ := newTestPipeline(nil, indexer, Options{})
		_, _, err := p.IngestSingle(context.Background(), "public/guide.txt",
			[]byte(strings.Repeat("text ", 600)))
		require.NoError(t, err)
		ids := make([]string, len(indexer.records))
		for i, rec := range indexer.records {
			ids[i] = rec.ID
		}
		return ids
	}

	first, second := run(), run()
	require.NotEmpty(t, first)
	assert.Equal(t, first, second, "re-ingesting identical input upserts the same ids")
}

func TestIngestSingle_UnsupportedAndEmptyAreNormal(t *testing.T) {
	indexer := &memIndexer{}
	p, _ := newTestPipeline(nil, indexer, Options{})

	files, chunks, err := p.IngestSingle(context.Background(), "image.png", []byte{1})
	require.NoError(t, err, "unsupported input is not an error on this path")
	assert.Zero(t, files)
	assert.Zero(t, chunks)

	files, chunks, err = p.IngestSingle(context.Background(), "public/blank.txt", []byte("   \n "))
	require.NoError(t, err)
	assert.Zero(t, files)
	assert.Zero(t, chunks)
}

func TestIngestSingle_UnclassifiedPathIndexedAsUnknown(t *testing.T) {
	indexer := &memIndexer{}
	p, _ := newTestPipeline(nil, indexer, Options{})

	_, _, err := p.IngestSingle(context.Background(), "scratch/notes.txt", []byte("hello world"))
	require.NoError(t, err)
	require.NotEmpty(t, indexer.records)
	assert.Equal(t, "unknown", indexer.records[0].Classification,
		"unrecognized prefixes must never inherit a real classification")
}

func TestIngestSingle_EmbedBatchesAreBounded(t *testing.T) {
	indexer := &memIndexer{}
	p, emb := newTestPipeline(nil, indexer, Options{
		ChunkSize: 10, ChunkOverlap: 2, EmbedBatchSize: 16,
	})

	_, chunks, err := p.IngestSingle(context.Background(), "public/big.txt",
		[]byte(strings.Repeat("x", 400)))
	require.NoError(t, err)
	require.Greater(t, chunks, 16)

	for _, size := range emb.batchSizes {
		assert.LessOrEqual(t, size, 16)
	}
	assert.Greater(t, len(emb.batchSizes), 1, "large documents embed in several batches")
}

func TestIngestSingle_UploadFailureIsFatal(t *testing.T) {
	indexer := &memIndexer{failAt: 2}
	p, _ := newTestPipeline(nil, indexer, Options{
		ChunkSize: 10, ChunkOverlap: 2, EmbedBatchSize: 4,
	})

	_, _, err := p.IngestSingle(context.Background(), "public/big.txt",
		[]byte(strings.Repeat("x", 200)))
	require.Error(t, err)
	assert.True(t, IsIndexUploadError(err))
}

func TestIngestBatch_SkipsFailuresAndContinues(t *testing.T) {
	store := &memStore{objects: map[string][]byte{
		"public/a.txt": []byte("alpha document body"),
		"public/b.png": {1, 2, 3},
		"public/c.txt": []byte("gamma document body"),
	}}
	indexer := &memIndexer{}
	p, _ := newTestPipeline(store, indexer, Options{})

	result, err := p.IngestBatch(context.Background(), "public/", 10)
	require.NoError(t, err)

	assert.Equal(t, 2, result.FilesProcessed)
	assert.Equal(t, 2, result.ChunksUploaded)
	require.Len(t, result.Failures, 1)
	assert.Contains(t, result.Failures[0], "b.png")
}

func TestIngestBatch_UploadFailureAbortsRun(t *testing.T) {
	store := &memStore{objects: map[string][]byte{
		"public/a.txt": []byte("alpha document body"),
		"public/b.txt": []byte("beta document body"),
	}}
	indexer := &memIndexer{failAt: 1}
	p, _ := newTestPipeline(store, indexer, Options{})

	_, err := p.IngestBatch(context.Background(), "public/", 10)
	require.Error(t, err)
	assert.True(t, IsIndexUploadError(err))
}
