// Package main implements the document pipeline worker: it pulls
// tickets off the work queue and drives each one through OCR,
// classification, extraction, summarization, PII detection, embedding,
// and indexing.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/WessleyAI/wessley-mvp/internal/adapter/classifier"
	"github.com/WessleyAI/wessley-mvp/internal/adapter/engineclient"
	"github.com/WessleyAI/wessley-mvp/internal/adapter/lexical"
	"github.com/WessleyAI/wessley-mvp/internal/adapter/llm"
	"github.com/WessleyAI/wessley-mvp/internal/adapter/ocr"
	"github.com/WessleyAI/wessley-mvp/internal/adapter/vector"
	"github.com/WessleyAI/wessley-mvp/internal/config"
	"github.com/WessleyAI/wessley-mvp/internal/domain"
	"github.com/WessleyAI/wessley-mvp/internal/jobregistry"
	"github.com/WessleyAI/wessley-mvp/internal/orchestrator"
	"github.com/WessleyAI/wessley-mvp/internal/queue"
	"github.com/WessleyAI/wessley-mvp/internal/registry"
	"github.com/WessleyAI/wessley-mvp/internal/stage"
	"github.com/WessleyAI/wessley-mvp/pkg/metrics"
	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"google.golang.org/genai"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := config.Load()

	if err := run(cfg, logger); err != nil {
		logger.Error("worker exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- OCR engine ---
	ocrConn, err := grpc.NewClient(cfg.OCRBackendAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("dial ocr backend: %w", err)
	}
	defer ocrConn.Close()
	ocrAdapter := ocr.New(engineclient.NewOCRClient(ocrConn))

	// --- Classifier engine ---
	classifierConn, err := grpc.NewClient(cfg.ClassifierBackendAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("dial classifier backend: %w", err)
	}
	defer classifierConn.Close()
	classifierAdapter := classifier.New(engineclient.NewClassifierClient(classifierConn), cfg.ClassifierEnabled)

	// --- LLM (Gemini) ---
	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return fmt.Errorf("genai client: %w", err)
	}
	llmClient := llm.New(genaiClient,
		llm.WithModel(cfg.LLMModel),
		llm.WithEmbeddingModel(cfg.EmbeddingModel),
		llm.WithLogger(logger),
	)

	// --- Lexical index (Elasticsearch) ---
	lexicalIndex, err := lexical.New(cfg.LexicalURL, cfg.LexicalIndex)
	if err != nil {
		return fmt.Errorf("lexical connect: %w", err)
	}
	if err := lexicalIndex.EnsureIndex(ctx); err != nil {
		return fmt.Errorf("lexical ensure index: %w", err)
	}

	// --- Vector index (Qdrant) ---
	vectorAddr := fmt.Sprintf("%s:%d", cfg.VectorHost, cfg.VectorPort)
	vectorStore, err := vector.New(vectorAddr, cfg.VectorCollection)
	if err != nil {
		return fmt.Errorf("vector connect: %w", err)
	}
	defer vectorStore.Close()
	if err := vectorStore.EnsureCollection(ctx, cfg.VectorDimension); err != nil {
		return fmt.Errorf("vector ensure collection: %w", err)
	}

	// --- Job registry (Neo4j) ---
	neo4jDriver, err := neo4j.NewDriverWithContext(cfg.Neo4jURL, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPass, ""))
	if err != nil {
		return fmt.Errorf("neo4j driver: %w", err)
	}
	defer neo4jDriver.Close(ctx)
	jobReg := jobregistry.New(neo4jDriver)

	// --- Prompt/schema registry ---
	assetReg := registry.New()

	// --- Stages ---
	stages := orchestrator.Stages{
		OCR:          stage.NewOCR(ocrAdapter),
		Classify:     stage.NewClassify(classifierAdapter),
		Extract:      stage.NewExtract(assetReg, llmClient),
		Summarize:    stage.NewSummarize(assetReg, llmClient),
		DetectPII:    stage.NewDetectPII(assetReg, llmClient),
		Embed:        stage.NewEmbed(llmClient),
		IndexLexical: stage.NewIndexLexical(lexicalIndex),
		IndexVector:  stage.NewIndexVector(vectorStore),
	}

	// --- Metrics (Prometheus text registry, served over HTTP) ---
	met := metrics.New()
	metricsPort, _ := strconv.Atoi(cfg.MetricsPort)
	met.ServeAsync(metricsPort)

	orch := orchestrator.New(stages, jobReg, logger, orchestrator.WithMetrics(met))

	// --- Work queue (NATS JetStream) ---
	nc, err := nats.Connect(cfg.BrokerURL)
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Close()

	qcfg := queue.Config{
		Workers:     cfg.WorkerConcurrency,
		MaxRetries:  cfg.MaxRetries,
		BackoffBase: cfg.RetryBackoffBase,
		BackoffCap:  cfg.RetryBackoffCap,
		AckWait:     cfg.JobDeadline,
	}
	rt, err := queue.New(ctx, nc, qcfg, logger, met, jobReg)
	if err != nil {
		return fmt.Errorf("queue runtime: %w", err)
	}

	logger.Info("worker starting", "concurrency", cfg.WorkerConcurrency, "broker", cfg.BrokerURL)
	return rt.Run(ctx, func(jobCtx context.Context, ticket domain.Ticket) error {
		_, err := orch.Run(jobCtx, ticket)
		return err
	})
}
