// Copyright (C) 2025 Kodiak Labs (eng@kodiaklabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the orchestrator.
//
// Metrics are exposed via the /metrics endpoint. All operations are
// thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "kodiak"

// Metrics holds the orchestrator's Prometheus collectors. Initialize once
// at startup via NewMetrics.
type Metrics struct {
	// ChatRequestsTotal counts chat requests by outcome.
	// Labels: outcome (answered, escalated, need_confirmation, bad_request, internal_error)
	ChatRequestsTotal *prometheus.CounterVec

	// ChatStageSeconds measures per-stage latency inside the chat pipeline.
	// Labels: stage (retrieval, websearch, generation)
	ChatStageSeconds *prometheus.HistogramVec

	// ProviderErrorsTotal counts upstream provider failures.
	// Labels: provider (weaviate, openai, embeddings, websearch, docanalysis)
	ProviderErrorsTotal *prometheus.CounterVec

	// IngestDocumentsTotal counts ingested documents by result.
	// Labels: result (indexed, skipped, failed)
	IngestDocumentsTotal *prometheus.CounterVec

	// IngestChunksTotal counts chunks upserted into the index.
	IngestChunksTotal prometheus.Counter
}

// NewMetrics registers the collectors with reg. Pass a fresh registry in
// tests to avoid duplicate-registration panics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ChatRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "chat",
			Name:      "requests_total",
			Help:      "Chat requests by outcome.",
		}, []string{"outcome"}),

		ChatStageSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "chat",
			Name:      "stage_seconds",
			Help:      "Latency of chat pipeline stages.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),

		ProviderErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "provider_errors_total",
			Help:      "Upstream provider failures.",
		}, []string{"provider"}),

		IngestDocumentsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "ingest",
			Name:      "documents_total",
			Help:      "Documents seen by the ingestion pipeline, by result.",
		}, []string{"result"}),

		IngestChunksTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "ingest",
			Name:      "chunks_total",
			Help:      "Chunks upserted into the document index.",
		}),
	}
}
