// Copyright (C) 2025 Kodiak Labs (eng@kodiaklabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package services provides the business logic behind the orchestrator's
// HTTP handlers.
//
// Services are designed to be:
//   - Testable: dependencies are injected via constructors
//   - Traceable: all methods accept context for distributed tracing
//   - Stateless: nothing survives between requests except what travels
//     inside the signed confirmation token
package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/kodiak-ai/kodiak/services/llm"
	"github.com/kodiak-ai/kodiak/services/orchestrator/datatypes"
	"github.com/kodiak-ai/kodiak/services/orchestrator/evidence"
	"github.com/kodiak-ai/kodiak/services/orchestrator/observability"
	"github.com/kodiak-ai/kodiak/services/orchestrator/policy"
	"github.com/kodiak-ai/kodiak/services/orchestrator/prompt"
	"github.com/kodiak-ai/kodiak/services/orchestrator/token"
	"github.com/kodiak-ai/kodiak/services/retrieval"
	"github.com/kodiak-ai/kodiak/services/websearch"
)

var chatTracer = otel.Tracer("kodiak.orchestrator.services.chat")

// escalationAnswer is the fixed human-handoff message. The model is never
// invoked for escalated requests.
const escalationAnswer = "This request has been routed to a human specialist for review. " +
	"No automated answer is provided for this classification."

// webConfirmAnswer asks the caller to confirm before any web search runs.
const webConfirmAnswer = "Internal sources did not sufficiently cover this question. " +
	"Resubmit with confirmWebSearch=true and the provided token to allow a web search."

// ValidationError marks user-fixable input problems discovered after
// binding, such as a missing or invalid confirmation token. Handlers map
// it to HTTP 400.
type ValidationError struct {
	Message string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string { return e.Message }

// IsValidationError checks if an error is a *ValidationError.
func IsValidationError(err error) bool {
	_, ok := err.(*ValidationError)
	return ok
}

// ChatConfig is the read-only tuning the service needs per process.
type ChatConfig struct {
	DefaultBoundary string
	TopK            int
	MinScore        float64
	WebEnabled      bool
	WebMaxResults   int
}

// ChatService runs the chat pipeline: policy gate, retrieval, evidence
// assessment, optional confirmed web search, prompting, generation.
//
// ChatService is safe for concurrent use; all fields are read-only after
// construction.
type ChatService struct {
	retriever retrieval.Searcher
	web       websearch.Searcher
	generator llm.Client
	signer    *token.Signer
	metrics   *observability.Metrics
	cfg       ChatConfig
}

// NewChatService wires the pipeline. web may be nil (web search
// unavailable); metrics may be nil in tests.
func NewChatService(retriever retrieval.Searcher, web websearch.Searcher, generator llm.Client, signer *token.Signer, metrics *observability.Metrics, cfg ChatConfig) *ChatService {
	if cfg.TopK <= 0 {
		cfg.TopK = 4
	}
	if cfg.MinScore <= 0 {
		cfg.MinScore = evidence.DefaultMinScore
	}
	if cfg.WebMaxResults <= 0 {
		cfg.WebMaxResults = 3
	}
	if cfg.DefaultBoundary == "" {
		cfg.DefaultBoundary = string(policy.Public)
	}
	return &ChatService{
		retriever: retriever,
		web:       web,
		generator: generator,
		signer:    signer,
		metrics:   metrics,
		cfg:       cfg,
	}
}

// Process runs one chat request through the pipeline. The returned error
// is either a *ValidationError (HTTP 400) or an unexpected internal
// failure (HTTP 500); every policy outcome, including escalation, is a
// normal response.
func (s *ChatService) Process(ctx context.Context, req *datatypes.ChatRequest, requestID string) (*datatypes.ChatResponse, error) {
	ctx, span := chatTracer.Start(ctx, "chat.Process")
	defer span.End()

	req.EnsureDefaults()
	if err := req.Validate(); err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}

	var hints []string
	hint := func(format string, args ...interface{}) {
		hints = append(hints, fmt.Sprintf(format, args...))
	}

	// --- policy gate ---
	role := policy.NormalizeRole(req.UserRole)
	boundaryInput := req.BoundaryInput()
	if !req.ExplicitBoundary() {
		boundaryInput = s.cfg.DefaultBoundary
		hint("boundary_defaulted:%s", s.cfg.DefaultBoundary)
	}
	requested := policy.NormalizeBoundary(boundaryInput)

	if escalate, reason := policy.RequiresEscalation(role, requested); escalate {
		slog.Info("Escalating chat request",
			"role", role, "boundary", requested, "reason", reason, "requestId", requestID)
		s.countOutcome("escalated")
		return &datatypes.ChatResponse{
			Answer:      escalationAnswer,
			Citations:   []datatypes.Citation{},
			ActionHints: append(hints, "policy_gate:escalated"),
			RequestID:   requestID,
			Escalation:  datatypes.Escalation{ShouldEscalate: true, Reason: reason},
			Mode:        datatypes.ChatMode{Retrieval: "none", LLM: "none"},
		}, nil
	}

	effective := policy.DecideEffectiveBoundary(role, requested)
	if effective != requested {
		hint("boundary_downgraded:%s->%s", requested, effective)
	}
	span.SetAttributes(
		attribute.String("chat.role", string(role)),
		attribute.String("chat.boundary", string(effective)),
	)

	// --- retrieval ---
	mode := datatypes.ChatMode{Retrieval: "weaviate"}
	bundle := s.retrieve(ctx, req.Message, effective, hint)

	// --- evidence assessment ---
	assessment := evidence.Assess(req.Message, bundle, s.cfg.MinScore)
	hint("evidence:best_score=%.3f top_k=%d", assessment.BestScore, s.cfg.TopK)
	if assessment.NoEvidence {
		hint("evidence:none")
	}
	if assessment.WeakEvidence {
		hint("evidence:weak")
	}
	if assessment.LowOverlap {
		hint("evidence:low_overlap")
	}

	citations := evidence.FilterCitations(assessment, bundle.Citations)
	internalContext := bundle.Context
	if assessment.WeakEvidence || assessment.LowOverlap {
		// Off-topic hits counted toward the needWeb decision but must not
		// leak into the prompt or the response.
		internalContext = ""
		hint("evidence:internal_citations_dropped")
	}

	// --- web gate ---
	webEligible := effective == policy.Public && s.web != nil && s.cfg.WebEnabled
	var webBundle datatypes.EvidenceBundle

	switch {
	case assessment.NeedWeb && webEligible && !req.ConfirmWebSearch:
		tok, err := s.signer.Mint(req.Message)
		if err != nil {
			return nil, fmt.Errorf("failed to mint confirmation token: %w", err)
		}
		s.countOutcome("need_confirmation")
		return &datatypes.ChatResponse{
			Answer:          webConfirmAnswer,
			Citations:       emptyIfNil(citations),
			ActionHints:     append(hints, "websearch:confirmation_required"),
			NeedsWebConfirm: true,
			WebSearchToken:  tok,
			RequestID:       requestID,
			Mode:            datatypes.ChatMode{Retrieval: mode.Retrieval, LLM: "none"},
		}, nil

	case assessment.NeedWeb && webEligible && req.ConfirmWebSearch:
		if strings.TrimSpace(req.WebSearchToken) == "" {
			return nil, &ValidationError{Message: "webSearchToken is required when confirmWebSearch is set"}
		}
		if err := s.signer.Validate(req.WebSearchToken, req.Message); err != nil {
			slog.Warn("Rejected web-search token", "error", err, "requestId", requestID)
			return nil, &ValidationError{Message: "Invalid or expired token"}
		}
		webBundle = s.searchWeb(ctx, req.Message, hint)
		if !webBundle.Empty() {
			mode.Retrieval = mode.Retrieval + "+web"
		}

	case assessment.NeedWeb && !webEligible:
		if effective != policy.Public {
			hint("websearch:not_eligible_boundary=%s", effective.Tag())
		} else {
			hint("websearch:disabled")
		}

	default:
		hint("websearch:skipped_sufficient_evidence")
	}

	// --- prompting + generation ---
	answer := s.generate(ctx, prompt.Build(prompt.Params{
		Message:        req.Message,
		IssueType:      req.IssueType,
		Boundary:       string(effective),
		Role:           string(role),
		Group:          req.UserGroup,
		ConversationID: req.ConversationID,
		Context:        internalContext,
		WebContext:     webBundle.Context,
	}), &mode, hint)

	s.countOutcome("answered")
	return &datatypes.ChatResponse{
		Answer:      answer,
		Citations:   emptyIfNil(append(citations, webBundle.Citations...)),
		ActionHints: hints,
		RequestID:   requestID,
		Mode:        mode,
	}, nil
}

// retrieve queries the index, degrading to empty evidence on provider
// failure: availability beats completeness on this stage.
func (s *ChatService) retrieve(ctx context.Context, message string, boundary policy.Classification, hint func(string, ...interface{})) datatypes.EvidenceBundle {
	start := time.Now()
	bundle, err := s.retriever.Search(ctx, message,
		policy.BuildClassificationFilter(boundary), s.cfg.TopK)
	s.observeStage("retrieval", start)

	if err != nil {
		slog.Error("Retrieval failed, continuing without internal evidence", "error", err)
		s.countProviderError("weaviate")
		hint("retrieval:degraded")
		return datatypes.EvidenceBundle{}
	}
	return bundle
}

// searchWeb runs the confirmed web search, degrading to empty evidence on
// failure.
func (s *ChatService) searchWeb(ctx context.Context, message string, hint func(string, ...interface{})) datatypes.EvidenceBundle {
	start := time.Now()
	bundle, err := s.web.Search(ctx, message, s.cfg.WebMaxResults)
	s.observeStage("websearch", start)

	if err != nil {
		slog.Error("Web search failed, continuing with internal evidence only", "error", err)
		s.countProviderError("websearch")
		hint("websearch:degraded")
		return datatypes.EvidenceBundle{}
	}
	hint("websearch:results=%d", len(bundle.Citations))
	return bundle
}

// generate calls the completion provider. Provider failures surface as a
// bounded inline answer so citations and hints still reach the caller.
func (s *ChatService) generate(ctx context.Context, groundingPrompt string, mode *datatypes.ChatMode, hint func(string, ...interface{})) string {
	if s.generator == nil {
		mode.LLM = "none"
		hint("generation:no_provider")
		return "No completion provider is configured. The citations below may still help."
	}

	start := time.Now()
	answer, err := s.generator.Generate(ctx, groundingPrompt, llm.GenerationParams{})
	s.observeStage("generation", start)

	if err != nil {
		s.countProviderError("openai")
		mode.LLM = "error"
		if pe := datatypes.AsProviderError(err); pe != nil && pe.StatusCode == 429 {
			hint("generation:rate_limited")
			return "The answer provider is currently rate limited. Please retry shortly; the citations below may still help."
		}
		hint("generation:provider_error")
		slog.Error("Completion provider failed", "error", err)
		return "The answer could not be generated due to a provider error. The citations below may still help."
	}

	mode.LLM = s.generator.Name()
	return answer
}

func (s *ChatService) countOutcome(outcome string) {
	if s.metrics != nil {
		s.metrics.ChatRequestsTotal.WithLabelValues(outcome).Inc()
	}
}

func (s *ChatService) countProviderError(provider string) {
	if s.metrics != nil {
		s.metrics.ProviderErrorsTotal.WithLabelValues(provider).Inc()
	}
}

func (s *ChatService) observeStage(stage string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ChatStageSeconds.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}
}

// emptyIfNil keeps the citations field a JSON array rather than null.
func emptyIfNil(citations []datatypes.Citation) []datatypes.Citation {
	if citations == nil {
		return []datatypes.Citation{}
	}
	return citations
}
