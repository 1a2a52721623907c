// Copyright (C) 2025 Kodiak Labs (eng@kodiaklabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package blobstore

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// watchedExtensions are the document types the drop directory accepts.
// Anything else is silently skipped.
var watchedExtensions = map[string]struct{}{
	".pdf":  {},
	".docx": {},
	".txt":  {},
}

// DropHandler receives a newly dropped file. name is the path relative to
// the drop directory, so classification prefixes survive.
type DropHandler func(ctx context.Context, name string, content []byte)

// DropWatcher ingests documents the moment they land in a local directory.
// It is the event-driven counterpart to batch ingestion over the bucket.
type DropWatcher struct {
	watcher *fsnotify.Watcher
	dir     string
	handler DropHandler
}

// NewDropWatcher creates a watcher on dir and its immediate
// classification subdirectories.
func NewDropWatcher(dir string, handler DropHandler) (*DropWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err == nil {
		for _, entry := range entries {
			if entry.IsDir() {
				if err := w.Add(filepath.Join(dir, entry.Name())); err != nil {
					slog.Warn("Failed to watch subdirectory", "dir", entry.Name(), "error", err)
				}
			}
		}
	}

	return &DropWatcher{watcher: w, dir: dir, handler: handler}, nil
}

// Run processes events until ctx is cancelled. Call in a goroutine.
func (d *DropWatcher) Run(ctx context.Context) {
	slog.Info("Watching drop directory for documents", "dir", d.dir)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) {
				continue
			}
			d.handle(ctx, event.Name)
		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("Drop watcher error", "error", err)
		}
	}
}

func (d *DropWatcher) handle(ctx context.Context, path string) {
	ext := strings.ToLower(filepath.Ext(path))
	if _, ok := watchedExtensions[ext]; !ok {
		return
	}

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}

	content, err := os.ReadFile(path)
	if err != nil {
		slog.Error("Failed to read dropped file", "path", path, "error", err)
		return
	}

	name, err := filepath.Rel(d.dir, path)
	if err != nil {
		name = filepath.Base(path)
	}
	name = filepath.ToSlash(name)

	slog.Info("Ingesting dropped document", "name", name, "bytes", len(content))
	d.handler(ctx, name, content)
}

// Close stops the underlying watcher.
func (d *DropWatcher) Close() error {
	return d.watcher.Close()
}
