// Copyright (C) 2025 Kodiak Labs (eng@kodiaklabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kodiak-ai/kodiak/services/ingest/pipeline"
	"github.com/kodiak-ai/kodiak/services/orchestrator/datatypes"
	"github.com/kodiak-ai/kodiak/services/orchestrator/middleware"
	"github.com/kodiak-ai/kodiak/services/orchestrator/observability"
)

// HandleIngest serves POST /v1/ingest: a bounded batch run over one
// classification prefix.
func HandleIngest(p *pipeline.Pipeline, metrics *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := middleware.CorrelationID(c)

		var req datatypes.IngestRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			code := CodeInvalidJSON
			if errors.Is(err, io.EOF) {
				code = CodeMissingBody
			}
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{
				Error: "request body must be JSON with a prefix field",
				Code:  code, RequestID: requestID,
			})
			return
		}
		if err := req.Normalize(); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{
				Error: err.Error(), Code: CodeValidationError, RequestID: requestID,
			})
			return
		}

		start := time.Now()
		result, err := p.IngestBatch(c.Request.Context(), req.Prefix, req.MaxFiles)
		if err != nil {
			slog.Error("Batch ingestion failed", "prefix", req.Prefix,
				"error", err, "requestId", requestID)
			c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{
				Error: "ingestion failed", Code: CodeInternalError, RequestID: requestID,
			})
			return
		}

		if metrics != nil {
			metrics.IngestDocumentsTotal.WithLabelValues("indexed").
				Add(float64(result.FilesProcessed))
			metrics.IngestDocumentsTotal.WithLabelValues("failed").
				Add(float64(len(result.Failures)))
			metrics.IngestChunksTotal.Add(float64(result.ChunksUploaded))
		}

		c.JSON(http.StatusOK, datatypes.IngestResponse{
			Status:         "completed",
			RequestID:      requestID,
			Prefix:         req.Prefix,
			MaxFiles:       req.MaxFiles,
			FilesProcessed: result.FilesProcessed,
			ChunksUploaded: result.ChunksUploaded,
			ElapsedMs:      time.Since(start).Milliseconds(),
			ActionHints:    result.Failures,
		})
	}
}
