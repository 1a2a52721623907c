// Copyright (C) 2025 Kodiak Labs (eng@kodiaklabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command orchestrator runs the Kodiak RAG orchestration service: a
// policy-gated chat endpoint over a classified document index, plus the
// ingestion pipeline that fills that index.
//
// # Usage
//
//	# Serve HTTP (chat, ingest, health, metrics)
//	orchestrator serve --config config.yaml
//
//	# One-shot batch ingestion from the configured bucket
//	orchestrator ingest public/ --max-files 50
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/kodiak-ai/kodiak/services/embedding"
	"github.com/kodiak-ai/kodiak/services/ingest/blobstore"
	"github.com/kodiak-ai/kodiak/services/ingest/extract"
	"github.com/kodiak-ai/kodiak/services/ingest/pipeline"
	"github.com/kodiak-ai/kodiak/services/llm"
	"github.com/kodiak-ai/kodiak/services/orchestrator/config"
	"github.com/kodiak-ai/kodiak/services/orchestrator/datatypes"
	"github.com/kodiak-ai/kodiak/services/orchestrator/observability"
	"github.com/kodiak-ai/kodiak/services/orchestrator/routes"
	"github.com/kodiak-ai/kodiak/services/orchestrator/services"
	"github.com/kodiak-ai/kodiak/services/orchestrator/token"
	"github.com/kodiak-ai/kodiak/services/retrieval"
	"github.com/kodiak-ai/kodiak/services/websearch"
)

var configPath string

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	root := &cobra.Command{
		Use:           "orchestrator",
		Short:         "Policy-gated RAG orchestration service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to the YAML config file")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		RunE:  runServe,
	}

	ingest := &cobra.Command{
		Use:   "ingest <prefix>",
		Short: "Run one batch ingestion over a classification prefix and exit",
		Args:  cobra.ExactArgs(1),
		RunE:  runIngest,
	}
	ingest.Flags().Int("max-files", datatypes.DefaultIngestFiles, "maximum documents to process")

	root.AddCommand(serve, ingest)
	if err := root.Execute(); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

// initTracer wires the OTLP gRPC exporter. Returns a no-op cleanup when no
// collector endpoint is configured.
func initTracer(cfg config.TelemetryConfig) (func(context.Context), error) {
	if cfg.OTLPEndpoint == "" {
		slog.Info("No OTLP endpoint configured, tracing stays local")
		return func(context.Context) {}, nil
	}
	ctx := context.Background()

	conn, err := grpc.NewClient(cfg.OTLPEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to dial the OTLP collector: %w", err)
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create the OTLP exporter: %w", err)
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(cfg.ServiceName)))
	if err != nil {
		return nil, fmt.Errorf("failed to build the trace resource: %w", err)
	}

	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(traceExporter)))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("Failed to shut down the OTLP exporter", "error", err)
		}
	}, nil
}

// deps holds the wiring shared by the serve and ingest subcommands.
type deps struct {
	cfg      config.Config
	weaviate *weaviate.Client
	embedder *embedding.OpenAIEmbedder
	ingest   *pipeline.Pipeline
	metrics  *observability.Metrics
	registry *prometheus.Registry
}

func buildDeps(ctx context.Context) (*deps, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	weaviateClient, err := weaviate.NewClient(weaviate.Config{
		Host:   cfg.Weaviate.Host,
		Scheme: cfg.Weaviate.Scheme,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create the Weaviate client: %w", err)
	}
	if err := datatypes.EnsureChunkSchema(ctx, weaviateClient); err != nil {
		// The index may simply not be up yet; queries will surface it.
		slog.Warn("Could not verify the Weaviate schema at startup", "error", err)
	}

	embedder, err := embedding.NewOpenAIEmbedder(embedding.Options{
		APIKey:  cfg.OpenAI.APIKey,
		Model:   cfg.OpenAI.EmbeddingModel,
		BaseURL: cfg.OpenAI.BaseURL,
		Dim:     cfg.OpenAI.EmbeddingDim,
	})
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	var store blobstore.Store
	if cfg.Ingest.Bucket != "" {
		gcs, err := blobstore.NewGCSStore(ctx, cfg.Ingest.Bucket, cfg.Ingest.CredentialsKey)
		if err != nil {
			return nil, err
		}
		store = gcs
	}

	extractor := extract.New(extract.NewPDFAnalyzer(
		cfg.Ingest.DocAnalysisURL, cfg.Ingest.DocAnalysisKey))
	indexer := pipeline.NewWeaviateIndexer(weaviateClient)
	ingestPipeline := pipeline.New(store, extractor, embedder, indexer, pipeline.Options{
		ChunkSize:      cfg.Ingest.ChunkSize,
		ChunkOverlap:   cfg.Ingest.ChunkOverlap,
		EmbedBatchSize: cfg.Ingest.EmbedBatchSize,
	})

	return &deps{
		cfg:      cfg,
		weaviate: weaviateClient,
		embedder: embedder,
		ingest:   ingestPipeline,
		metrics:  metrics,
		registry: registry,
	}, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	d, err := buildDeps(ctx)
	if err != nil {
		return err
	}

	cleanup, err := initTracer(d.cfg.Telemetry)
	if err != nil {
		return err
	}
	defer cleanup(context.Background())

	generator, err := llm.NewOpenAIClient(llm.OpenAIOptions{
		APIKey:       d.cfg.OpenAI.APIKey,
		Model:        d.cfg.OpenAI.Model,
		BaseURL:      d.cfg.OpenAI.BaseURL,
		SystemPrompt: d.cfg.OpenAI.SystemPrompt,
	})
	if err != nil {
		return err
	}

	signer := token.NewSigner([]byte(d.cfg.Server.TokenSecret), d.cfg.Server.TokenTTL)
	retriever := retrieval.NewWeaviateSearcher(d.weaviate, d.embedder)

	// Assign through the concrete type check so an unconfigured searcher
	// stays a nil interface and disables the web path end to end.
	var web websearch.Searcher
	if searcher := websearch.NewHTTPSearcher(
		d.cfg.WebSearch.Endpoint, d.cfg.WebSearch.APIKey); searcher != nil {
		web = searcher
	}

	chat := services.NewChatService(retriever, web, generator, signer, d.metrics,
		services.ChatConfig{
			DefaultBoundary: d.cfg.Server.DefaultBoundary,
			TopK:            d.cfg.Retrieval.TopK,
			MinScore:        d.cfg.Retrieval.MinScore,
			WebEnabled:      d.cfg.WebSearch.Enabled,
			WebMaxResults:   d.cfg.WebSearch.MaxResults,
		})

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(d.cfg.Telemetry.ServiceName))
	routes.SetupRoutes(router, chat, d.ingest, d.metrics, d.registry)

	serveCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if d.cfg.Ingest.DropDir != "" {
		watcher, err := blobstore.NewDropWatcher(d.cfg.Ingest.DropDir,
			func(ctx context.Context, name string, content []byte) {
				files, chunks, err := d.ingest.IngestSingle(ctx, name, content)
				if err != nil {
					slog.Error("Drop ingestion failed", "name", name, "error", err)
					d.metrics.IngestDocumentsTotal.WithLabelValues("failed").Inc()
					return
				}
				if files == 0 {
					d.metrics.IngestDocumentsTotal.WithLabelValues("skipped").Inc()
					return
				}
				d.metrics.IngestDocumentsTotal.WithLabelValues("indexed").Inc()
				d.metrics.IngestChunksTotal.Add(float64(chunks))
			})
		if err != nil {
			return fmt.Errorf("failed to watch the drop directory: %w", err)
		}
		defer watcher.Close()
		go watcher.Run(serveCtx)
		slog.Info("Watching drop directory", "dir", d.cfg.Ingest.DropDir)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", d.cfg.Server.Port),
		Handler: router,
	}
	go func() {
		slog.Info("Starting the orchestrator server", "port", d.cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			stop()
		}
	}()

	<-serveCtx.Done()
	slog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), d.cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	d, err := buildDeps(ctx)
	if err != nil {
		return err
	}

	maxFiles, _ := cmd.Flags().GetInt("max-files")
	req := datatypes.IngestRequest{Prefix: args[0], MaxFiles: maxFiles}
	if err := req.Normalize(); err != nil {
		return err
	}

	start := time.Now()
	result, err := d.ingest.IngestBatch(ctx, req.Prefix, req.MaxFiles)
	if err != nil {
		return err
	}

	slog.Info("Ingestion complete",
		"prefix", req.Prefix,
		"files", result.FilesProcessed,
		"chunks", result.ChunksUploaded,
		"failures", len(result.Failures),
		"elapsed", time.Since(start).Round(time.Millisecond))
	for _, failure := range result.Failures {
		slog.Warn("Document skipped", "detail", failure)
	}
	return nil
}
