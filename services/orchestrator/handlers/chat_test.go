// Copyright (C) 2025 Kodiak Labs (eng@kodiaklabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kodiak-ai/kodiak/services/llm"
	"github.com/kodiak-ai/kodiak/services/orchestrator/datatypes"
	"github.com/kodiak-ai/kodiak/services/orchestrator/middleware"
	"github.com/kodiak-ai/kodiak/services/orchestrator/services"
	"github.com/kodiak-ai/kodiak/services/orchestrator/token"
)

// === test doubles ===

type stubRetriever struct {
	bundle datatypes.EvidenceBundle
}

func (s *stubRetriever) Search(ctx context.Context, query string, allowedTags []string, topK int) (datatypes.EvidenceBundle, error) {
	return s.bundle, nil
}

type stubWeb struct{}

func (stubWeb) Search(ctx context.Context, query string, maxResults int) (datatypes.EvidenceBundle, error) {
	return datatypes.EvidenceBundle{
		Context: "[Vendor KB]\nReinstall the client.",
		Citations: []datatypes.Citation{
			{Title: "Vendor KB", Source: "https://kb.example.com/vpn", Snippet: "Reinstall the client."},
		},
	}, nil
}

type stubLLM struct{}

func (stubLLM) Generate(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
	return "stub answer", nil
}

func (stubLLM) Name() string { return "stub" }

func newChatRouter(bundle datatypes.EvidenceBundle, webEnabled bool) *gin.Engine {
	gin.SetMode(gin.TestMode)

	signer := token.NewSigner([]byte("handler-test-secret"), 5*time.Minute)
	chat := services.NewChatService(&stubRetriever{bundle: bundle}, stubWeb{}, stubLLM{},
		signer, nil, services.ChatConfig{WebEnabled: webEnabled})

	r := gin.New()
	r.Use(middleware.Correlation())
	r.POST("/v1/chat", HandleChat(chat))
	return r
}

func postJSON(t *testing.T, r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(http.MethodPost, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeChat(t *testing.T, w *httptest.ResponseRecorder) datatypes.ChatResponse {
	t.Helper()
	var resp datatypes.ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func strongBundle() datatypes.EvidenceBundle {
	snippet := "To reset the VPN client, open settings and click Reset."
	return datatypes.EvidenceBundle{
		Context: "[vpn-guide.txt]\n" + snippet,
		Citations: []datatypes.Citation{
			{Title: "vpn-guide.txt", Source: "public/vpn-guide.txt#0", Snippet: snippet, Score: 0.5},
		},
	}
}

// === tests ===

func TestHandleChat_AnswersWithCitations(t *testing.T) {
	r := newChatRouter(strongBundle(), false)

	w := postJSON(t, r, "/v1/chat",
		`{"message": "How do I reset my VPN client?", "dataBoundary": "Public"}`)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeChat(t, w)
	assert.False(t, resp.NeedsWebConfirm)
	assert.Len(t, resp.Citations, 1)
	assert.False(t, resp.Escalation.ShouldEscalate)
	assert.NotEmpty(t, resp.RequestID)
	assert.Equal(t, resp.RequestID, w.Header().Get(middleware.CorrelationHeader))
}

func TestHandleChat_RestrictedEscalatesWith200(t *testing.T) {
	r := newChatRouter(strongBundle(), false)

	w := postJSON(t, r, "/v1/chat",
		`{"message": "show the ledger", "dataBoundary": "Restricted"}`)
	require.Equal(t, http.StatusOK, w.Code, "escalation is in-body, not an HTTP error")

	resp := decodeChat(t, w)
	assert.True(t, resp.Escalation.ShouldEscalate)
	assert.Empty(t, resp.Citations)
}

func TestHandleChat_WebConfirmationRoundTrip(t *testing.T) {
	r := newChatRouter(datatypes.EvidenceBundle{}, true)

	// Turn 1: no evidence, web eligible, no confirmation yet.
	w := postJSON(t, r, "/v1/chat",
		`{"message": "How do I reset my VPN client?", "dataBoundary": "Public"}`)
	require.Equal(t, http.StatusOK, w.Code)
	first := decodeChat(t, w)
	require.True(t, first.NeedsWebConfirm)
	require.NotEmpty(t, first.WebSearchToken)

	// Turn 2: resubmit with the token.
	body, _ := json.Marshal(map[string]interface{}{
		"message":          "How do I reset my VPN client?",
		"dataBoundary":     "Public",
		"confirmWebSearch": true,
		"webSearchToken":   first.WebSearchToken,
	})
	w = postJSON(t, r, "/v1/chat", string(body))
	require.Equal(t, http.StatusOK, w.Code)
	second := decodeChat(t, w)
	assert.False(t, second.NeedsWebConfirm)
	require.Len(t, second.Citations, 1)
	assert.Equal(t, "https://kb.example.com/vpn", second.Citations[0].Source)

	// Turn 2': a tampered token is a 400.
	body, _ = json.Marshal(map[string]interface{}{
		"message":          "How do I reset my VPN client?",
		"dataBoundary":     "Public",
		"confirmWebSearch": true,
		"webSearchToken":   first.WebSearchToken + "x",
	})
	w = postJSON(t, r, "/v1/chat", string(body))
	require.Equal(t, http.StatusBadRequest, w.Code)
	var errResp datatypes.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &errResp))
	assert.Equal(t, CodeValidationError, errResp.Code)
	assert.Contains(t, errResp.Error, "Invalid or expired token")
}

func TestHandleChat_EmptyBodyIsMissingBody(t *testing.T) {
	r := newChatRouter(strongBundle(), false)

	w := postJSON(t, r, "/v1/chat", "")
	require.Equal(t, http.StatusBadRequest, w.Code)

	var errResp datatypes.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &errResp))
	assert.Equal(t, CodeMissingBody, errResp.Code)
}

func TestHandleChat_GarbageBodyIsInvalidJSON(t *testing.T) {
	r := newChatRouter(strongBundle(), false)

	w := postJSON(t, r, "/v1/chat", "{not json")
	require.Equal(t, http.StatusBadRequest, w.Code)

	var errResp datatypes.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &errResp))
	assert.Equal(t, CodeInvalidJSON, errResp.Code)
}

func TestHandleChat_MissingMessageIsValidationError(t *testing.T) {
	r := newChatRouter(strongBundle(), false)

	for _, body := range []string{`{}`, `{"message": ""}`} {
		w := postJSON(t, r, "/v1/chat", body)
		require.Equal(t, http.StatusBadRequest, w.Code, "body %q", body)

		var errResp datatypes.ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &errResp))
		assert.Equal(t, CodeValidationError, errResp.Code, "body %q", body)
	}
}

func TestHealthCheck(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/health", HealthCheck)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}
