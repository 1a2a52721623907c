// Copyright (C) 2025 Kodiak Labs (eng@kodiaklabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package extract turns raw document bytes into plain text, dispatching on
// file extension.
package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// UnsupportedFileTypeError is returned for extensions the extractor cannot
// handle. Batch ingestion skips these rather than failing the run.
type UnsupportedFileTypeError struct {
	FileName string
}

// Error implements the error interface for UnsupportedFileTypeError.
func (e *UnsupportedFileTypeError) Error() string {
	return fmt.Sprintf("unsupported file type: %s", e.FileName)
}

// IsUnsupportedFileType checks if an error is an *UnsupportedFileTypeError.
func IsUnsupportedFileType(err error) bool {
	_, ok := err.(*UnsupportedFileTypeError)
	return ok
}

// TextExtractor is the capability interface ingestion consumes.
type TextExtractor interface {
	Extract(ctx context.Context, fileName string, content []byte) (string, error)
}

// Extractor dispatches by extension: plain text and markdown decode
// directly, docx parses paragraph text nodes, pdf delegates to the
// document-analysis service.
type Extractor struct {
	pdf *PDFAnalyzer
}

// New creates an Extractor. pdf may be nil, in which case .pdf files are
// reported as unsupported.
func New(pdf *PDFAnalyzer) *Extractor {
	return &Extractor{pdf: pdf}
}

// Extract implements TextExtractor.
func (e *Extractor) Extract(ctx context.Context, fileName string, content []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".txt", ".md":
		return string(content), nil
	case ".docx":
		return extractDocx(content)
	case ".pdf":
		if e.pdf == nil {
			return "", &UnsupportedFileTypeError{FileName: fileName}
		}
		return e.pdf.Analyze(ctx, fileName, content)
	default:
		return "", &UnsupportedFileTypeError{FileName: fileName}
	}
}

// extractDocx pulls paragraph text out of the OOXML main document part.
// Paragraphs become newline-separated lines; all styling is discarded.
func extractDocx(content []byte) (string, error) {
	reader, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("failed to open docx container: %w", err)
	}

	var doc io.ReadCloser
	for _, f := range reader.File {
		if f.Name == "word/document.xml" {
			doc, err = f.Open()
			if err != nil {
				return "", fmt.Errorf("failed to open document part: %w", err)
			}
			break
		}
	}
	if doc == nil {
		return "", fmt.Errorf("docx container has no word/document.xml")
	}
	defer doc.Close()

	var sb strings.Builder
	decoder := xml.NewDecoder(doc)
	inTextNode := false
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to parse document xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inTextNode = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inTextNode = false
			case "p":
				sb.WriteString("\n")
			}
		case xml.CharData:
			if inTextNode {
				sb.Write(t)
			}
		}
	}
	return strings.TrimSpace(sb.String()), nil
}
