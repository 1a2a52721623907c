// Copyright (C) 2025 Kodiak Labs (eng@kodiaklabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package middleware provides HTTP middleware for the orchestrator service.
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CorrelationHeader is the wire name of the correlation id, inbound and
// outbound.
const CorrelationHeader = "x-correlation-id"

// correlationKey is the Gin context key for the resolved correlation id.
const correlationKey = "correlationId"

// Correlation preserves an inbound x-correlation-id or generates one, puts
// it on the Gin context, and always echoes it on the response so every
// reply is traceable through logs regardless of what the caller sent.
func Correlation() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(CorrelationHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(correlationKey, id)
		c.Header(CorrelationHeader, id)
		c.Next()
	}
}

// CorrelationID returns the request's correlation id, or "" when the
// middleware did not run.
func CorrelationID(c *gin.Context) string {
	return c.GetString(correlationKey)
}
