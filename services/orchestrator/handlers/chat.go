// Copyright (C) 2025 Kodiak Labs (eng@kodiaklabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers exposes the orchestrator's HTTP endpoints over Gin.
//
// Handlers only translate between HTTP and the service layer: binding,
// status codes and error bodies live here, business rules do not.
package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/kodiak-ai/kodiak/services/orchestrator/datatypes"
	"github.com/kodiak-ai/kodiak/services/orchestrator/middleware"
	"github.com/kodiak-ai/kodiak/services/orchestrator/services"
)

// Error codes carried in 4xx/5xx bodies.
const (
	CodeMissingBody     = "MissingBody"
	CodeInvalidJSON     = "InvalidJson"
	CodeValidationError = "ValidationError"
	CodeInternalError   = "InternalError"
)

// HandleChat serves POST /v1/chat.
func HandleChat(chat *services.ChatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := middleware.CorrelationID(c)

		var req datatypes.ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			if errors.Is(err, io.EOF) {
				c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{
					Error: "request body is required", Code: CodeMissingBody, RequestID: requestID,
				})
				return
			}
			// Binding "required" violations read better as validation errors.
			var ve validator.ValidationErrors
			if errors.As(err, &ve) {
				c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{
					Error: "message is required", Code: CodeValidationError, RequestID: requestID,
				})
				return
			}
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{
				Error: "request body is not valid JSON",
				Code:  CodeInvalidJSON, RequestID: requestID,
			})
			return
		}

		resp, err := chat.Process(c.Request.Context(), &req, requestID)
		if err != nil {
			if services.IsValidationError(err) {
				c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{
					Error: err.Error(), Code: CodeValidationError, RequestID: requestID,
				})
				return
			}
			slog.Error("Chat pipeline failed", "error", err, "requestId", requestID)
			c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{
				Error: "an internal error occurred", Code: CodeInternalError, RequestID: requestID,
			})
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}
