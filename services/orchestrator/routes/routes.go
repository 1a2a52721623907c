// Copyright (C) 2025 Kodiak Labs (eng@kodiaklabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package routes wires the orchestrator's HTTP surface.
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kodiak-ai/kodiak/services/ingest/pipeline"
	"github.com/kodiak-ai/kodiak/services/orchestrator/handlers"
	"github.com/kodiak-ai/kodiak/services/orchestrator/middleware"
	"github.com/kodiak-ai/kodiak/services/orchestrator/observability"
	"github.com/kodiak-ai/kodiak/services/orchestrator/services"
)

// SetupRoutes registers every endpoint. ingestPipeline may be nil when the
// deployment serves chat only; the ingest route is then omitted.
func SetupRoutes(router *gin.Engine, chat *services.ChatService, ingestPipeline *pipeline.Pipeline, metrics *observability.Metrics, registry *prometheus.Registry) {
	router.Use(middleware.Correlation())

	router.GET("/health", handlers.HealthCheck)
	if registry != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}

	v1 := router.Group("/v1")
	{
		v1.POST("/chat", handlers.HandleChat(chat))
		if ingestPipeline != nil {
			v1.POST("/ingest", handlers.HandleIngest(ingestPipeline, metrics))
		}
	}
}
