// Copyright (C) 2025 Kodiak Labs (eng@kodiaklabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package blobstore lists and downloads source documents from object
// storage, and watches a local drop directory for incremental ingestion.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// Store is the document-source interface ingestion consumes.
type Store interface {
	// List returns up to max object names under prefix, in listing order.
	List(ctx context.Context, prefix string, max int) ([]string, error)
	// Download returns the full content of one object.
	Download(ctx context.Context, name string) ([]byte, error)
}

// GCSStore reads source documents from a Google Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
}

// NewGCSStore creates a store for bucket. saKeyPath is optional; when
// empty the client falls back to application default credentials.
func NewGCSStore(ctx context.Context, bucket, saKeyPath string) (*GCSStore, error) {
	if bucket == "" {
		return nil, errors.New("bucket name is not configured")
	}

	var opts []option.ClientOption
	if saKeyPath != "" {
		opts = append(opts, option.WithCredentialsFile(saKeyPath))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket}, nil
}

// List implements Store.
func (s *GCSStore) List(ctx context.Context, prefix string, max int) ([]string, error) {
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: prefix})

	var names []string
	for max <= 0 || len(names) < max {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list gs://%s/%s: %w", s.bucket, prefix, err)
		}
		if attrs.Name == "" || attrs.Name == prefix {
			continue
		}
		names = append(names, attrs.Name)
	}
	return names, nil
}

// Download implements Store.
func (s *GCSStore) Download(ctx context.Context, name string) ([]byte, error) {
	reader, err := s.client.Bucket(s.bucket).Object(name).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open gs://%s/%s: %w", s.bucket, name, err)
	}
	defer reader.Close()

	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read gs://%s/%s: %w", s.bucket, name, err)
	}
	return content, nil
}

// Close releases the underlying client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
