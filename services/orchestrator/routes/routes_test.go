// Copyright (C) 2025 Kodiak Labs (eng@kodiaklabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	"github.com/kodiak-ai/kodiak/services/llm"
	"github.com/kodiak-ai/kodiak/services/orchestrator/datatypes"
	"github.com/kodiak-ai/kodiak/services/orchestrator/observability"
	"github.com/kodiak-ai/kodiak/services/orchestrator/services"
	"github.com/kodiak-ai/kodiak/services/orchestrator/token"
)

type noopRetriever struct{}

func (noopRetriever) Search(ctx context.Context, query string, allowedTags []string, topK int) (datatypes.EvidenceBundle, error) {
	return datatypes.EvidenceBundle{}, nil
}

type noopLLM struct{}

func (noopLLM) Generate(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
	return "ok", nil
}

func (noopLLM) Name() string { return "noop" }

func TestSetupRoutes_Endpoints(t *testing.T) {
	gin.SetMode(gin.TestMode)

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	chat := services.NewChatService(noopRetriever{}, nil, noopLLM{},
		token.NewSigner([]byte("s"), time.Minute), metrics, services.ChatConfig{})

	router := gin.New()
	SetupRoutes(router, chat, nil, metrics, registry)

	cases := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodPost, "/v1/chat", http.StatusBadRequest}, // empty body
		{http.MethodPost, "/v1/ingest", http.StatusNotFound}, // not wired without a pipeline
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, nil))
		assert.Equal(t, tc.want, w.Code, "%s %s", tc.method, tc.path)
	}
}

func TestSetupRoutes_CorrelationOnEveryRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)

	chat := services.NewChatService(noopRetriever{}, nil, noopLLM{},
		token.NewSigner([]byte("s"), time.Minute), nil, services.ChatConfig{})

	router := gin.New()
	SetupRoutes(router, chat, nil, nil, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.NotEmpty(t, w.Header().Get("x-correlation-id"))
}
