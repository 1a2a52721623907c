// Copyright (C) 2025 Kodiak Labs (eng@kodiaklabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package chunker splits extracted document text into fixed-size
// overlapping windows ahead of embedding.
//
// Unlike separator-aware splitters, these windows are exact: stripping the
// overlap from every window after the first and concatenating reconstructs
// the input byte for byte. That property is what makes chunk identities
// stable across re-ingestion runs.
package chunker

import "strings"

const (
	// DefaultSize is the window length in characters.
	DefaultSize = 1200

	// DefaultOverlap is how many characters consecutive windows share.
	DefaultOverlap = 150
)

// ChunkByChars splits text into windows of size characters where each
// window after the first repeats the last overlap characters of its
// predecessor. The final window may be shorter. Blank input produces no
// windows. If overlap >= size the step is clamped to 1 so the walk always
// advances.
func ChunkByChars(text string, size, overlap int) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if size <= 0 {
		size = DefaultSize
	}
	if overlap < 0 {
		overlap = 0
	}

	step := size - overlap
	if step < 1 {
		step = 1
	}

	runes := []rune(text)
	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			break
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}

// Reassemble inverts ChunkByChars for a given overlap: the first window is
// kept whole and every subsequent window contributes its suffix past the
// shared overlap. Used by tests to prove the reconstruction invariant;
// exported because ingestion diagnostics reuse it to spot-check uploads.
func Reassemble(chunks []string, overlap int) string {
	if len(chunks) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(chunks[0])
	for _, chunk := range chunks[1:] {
		runes := []rune(chunk)
		if overlap >= len(runes) {
			continue
		}
		b.WriteString(string(runes[overlap:]))
	}
	return b.String()
}
