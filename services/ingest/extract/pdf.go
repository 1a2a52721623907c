// Copyright (C) 2025 Kodiak Labs (eng@kodiaklabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kodiak-ai/kodiak/services/orchestrator/datatypes"
)

const (
	defaultPollAttempts = 30
	defaultPollInterval = time.Second
)

// PDFAnalyzer submits a PDF to the document-analysis service and polls
// until the asynchronous job finishes.
//
// Wire contract: POST {endpoint}/analyze with the raw bytes returns
// {"operationId": ...}; GET {endpoint}/analyze/{id} returns
// {"status": "running"|"succeeded"|"failed", "pages": [{"text": ...}]}.
type PDFAnalyzer struct {
	endpoint     string
	apiKey       string
	httpClient   *http.Client
	pollAttempts int
	pollInterval time.Duration
}

// NewPDFAnalyzer creates an analyzer. Returns nil when no endpoint is
// configured, which disables PDF support.
func NewPDFAnalyzer(endpoint, apiKey string) *PDFAnalyzer {
	if strings.TrimSpace(endpoint) == "" {
		return nil
	}
	return &PDFAnalyzer{
		endpoint:     strings.TrimSuffix(endpoint, "/"),
		apiKey:       apiKey,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		pollAttempts: defaultPollAttempts,
		pollInterval: defaultPollInterval,
	}
}

type submitResponse struct {
	OperationID string `json:"operationId"`
}

type statusResponse struct {
	Status string `json:"status"`
	Pages  []struct {
		Text string `json:"text"`
	} `json:"pages"`
	Error string `json:"error"`
}

// Analyze runs the submit-then-poll cycle and returns the concatenated
// page text.
func (p *PDFAnalyzer) Analyze(ctx context.Context, fileName string, content []byte) (string, error) {
	opID, err := p.submit(ctx, content)
	if err != nil {
		return "", err
	}
	slog.Debug("Submitted PDF for analysis", "file", fileName, "operation", opID)

	for attempt := 1; attempt <= p.pollAttempts; attempt++ {
		status, err := p.poll(ctx, opID)
		if err != nil {
			return "", err
		}
		switch status.Status {
		case "succeeded":
			var sb strings.Builder
			for i, page := range status.Pages {
				if i > 0 {
					sb.WriteString("\n\n")
				}
				sb.WriteString(page.Text)
			}
			return sb.String(), nil
		case "failed":
			return "", &datatypes.ProviderError{
				Provider: "docanalysis",
				Message:  fmt.Sprintf("analysis of %s failed: %s", fileName, status.Error),
			}
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(p.pollInterval):
		}
	}

	return "", &datatypes.ProviderError{
		Provider:  "docanalysis",
		Message:   fmt.Sprintf("analysis of %s did not finish within %d polls", fileName, p.pollAttempts),
		Retryable: true,
	}
}

func (p *PDFAnalyzer) submit(ctx context.Context, content []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.endpoint+"/analyze", bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("failed to build analyze request: %w", err)
	}
	req.Header.Set("Content-Type", "application/pdf")
	if p.apiKey != "" {
		req.Header.Set("X-API-Key", p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", &datatypes.ProviderError{Provider: "docanalysis", Message: err.Error(), Retryable: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &datatypes.ProviderError{
			Provider:   "docanalysis",
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
			Retryable:  resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500,
		}
	}

	var parsed submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil || parsed.OperationID == "" {
		return "", &datatypes.ProviderError{Provider: "docanalysis", Message: "submit returned no operation id"}
	}
	return parsed.OperationID, nil
}

func (p *PDFAnalyzer) poll(ctx context.Context, opID string) (*statusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		p.endpoint+"/analyze/"+opID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build poll request: %w", err)
	}
	if p.apiKey != "" {
		req.Header.Set("X-API-Key", p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, &datatypes.ProviderError{Provider: "docanalysis", Message: err.Error(), Retryable: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &datatypes.ProviderError{
			Provider:   "docanalysis",
			StatusCode: resp.StatusCode,
			Message:    "poll failed",
			Retryable:  resp.StatusCode >= 500,
		}
	}

	var parsed statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &datatypes.ProviderError{Provider: "docanalysis", Message: "unexpected poll response shape"}
	}
	return &parsed, nil
}
