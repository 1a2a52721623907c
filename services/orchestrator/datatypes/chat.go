// Copyright (C) 2025 Kodiak Labs (eng@kodiaklabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes defines the request/response DTOs shared by the
// orchestrator's handlers, services and provider clients, plus the Weaviate
// schema and chunk record for the document index.
package datatypes

import (
	"errors"
	"strings"
)

// ChatRequest is the inbound body for POST /v1/chat.
//
// DataBoundary falls back to the legacy RequestType field, then to the
// configured default, then to Public. Resolution happens in the pipeline,
// not here, so the raw fields stay available for logging.
type ChatRequest struct {
	Message          string `json:"message" binding:"required"`
	IssueType        string `json:"issueType"`
	DataBoundary     string `json:"dataBoundary"`
	RequestType      string `json:"requestType"` // legacy alias for DataBoundary
	UserRole         string `json:"userRole"`
	UserGroup        string `json:"userGroup"`
	ConversationID   string `json:"conversationId"`
	ConfirmWebSearch bool   `json:"confirmWebSearch"`
	WebSearchToken   string `json:"webSearchToken"`
}

// EnsureDefaults fills optional fields the rest of the pipeline assumes.
func (r *ChatRequest) EnsureDefaults() {
	if strings.TrimSpace(r.IssueType) == "" {
		r.IssueType = "General"
	}
	if strings.TrimSpace(r.UserRole) == "" {
		r.UserRole = "Customer"
	}
}

// Validate enforces semantics the binding tags cannot express.
func (r *ChatRequest) Validate() error {
	if strings.TrimSpace(r.Message) == "" {
		return errors.New("message must not be empty")
	}
	return nil
}

// BoundaryInput returns the requested boundary string, honoring the legacy
// requestType alias, or "" when the caller left both blank.
func (r *ChatRequest) BoundaryInput() string {
	if strings.TrimSpace(r.DataBoundary) != "" {
		return r.DataBoundary
	}
	return r.RequestType
}

// ExplicitBoundary reports whether the caller named a boundary at all.
// Implicit (defaulted) boundaries downgrade silently; explicit ones may
// escalate instead.
func (r *ChatRequest) ExplicitBoundary() bool {
	return strings.TrimSpace(r.BoundaryInput()) != ""
}

// Citation is the provenance unit attached to every piece of evidence
// surfaced to the model and to the caller.
type Citation struct {
	Title   string  `json:"title"`
	Source  string  `json:"source"` // URL for web hits, chunk path for internal hits
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score,omitempty"`
}

// EvidenceBundle is the normalized {context, citations} shape produced
// identically by the internal retrieval path and the web-search path, so
// downstream stages treat both uniformly.
type EvidenceBundle struct {
	Context   string
	Citations []Citation
}

// Empty reports whether the bundle carries no usable evidence.
func (b EvidenceBundle) Empty() bool {
	return len(b.Citations) == 0 && strings.TrimSpace(b.Context) == ""
}

// Escalation communicates that a request must be handled by a human or an
// authorized process rather than answered directly.
type Escalation struct {
	ShouldEscalate bool   `json:"shouldEscalate"`
	Reason         string `json:"reason,omitempty"`
}

// ChatMode records which providers actually ran, for observability.
type ChatMode struct {
	Retrieval string `json:"retrieval"`
	LLM       string `json:"llm"`
}

// ChatResponse is the body of every 200 from POST /v1/chat, including
// escalations and ask-for-confirmation turns.
type ChatResponse struct {
	Answer          string     `json:"answer"`
	Citations       []Citation `json:"citations"`
	ActionHints     []string   `json:"actionHints"`
	NeedsWebConfirm bool       `json:"needsWebConfirmation"`
	WebSearchToken  string     `json:"webSearchToken,omitempty"`
	RequestID       string     `json:"requestId"`
	Escalation      Escalation `json:"escalation"`
	Mode            ChatMode   `json:"mode"`
}

// ErrorResponse is the body of 400/500 replies.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId"`
}
