// Package config loads process configuration from the environment, with
// fallbacks for local development — the same envOr pattern the API and
// ingest entrypoints use.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds every environment-backed setting the worker and status API
// entrypoints need.
type Config struct {
	BrokerURL string

	Neo4jURL  string
	Neo4jUser string
	Neo4jPass string

	LexicalURL     string
	LexicalAdminKey string
	LexicalIndex   string

	VectorHost       string
	VectorPort       int
	VectorCollection string
	VectorDimension  int

	LLMBaseURL        string
	LLMModel          string
	LLMTimeout        time.Duration
	EmbeddingModel    string

	OCRBackendAddr        string
	ClassifierBackendAddr string
	ClassifierEnabled     bool

	WorkerConcurrency int
	MaxRetries        int
	RetryBackoffBase  time.Duration
	RetryBackoffCap   time.Duration
	JobDeadline       time.Duration

	StatusAPIPort string
	MetricsPort   string
	CORSOrigin    string
}

// Load populates Config from the environment, falling back to
// development-friendly defaults for anything unset.
func Load() Config {
	return Config{
		BrokerURL: envOr("BROKER_URL", "nats://localhost:4222"),

		Neo4jURL:  envOr("NEO4J_URL", "neo4j://localhost:7687"),
		Neo4jUser: envOr("NEO4J_USER", "neo4j"),
		Neo4jPass: envOr("NEO4J_PASS", "password"),

		LexicalURL:      envOr("LEXICAL_URL", "http://localhost:9200"),
		LexicalAdminKey: envOr("LEXICAL_ADMIN_KEY", ""),
		LexicalIndex:    envOr("LEXICAL_INDEX", "documents"),

		VectorHost:       envOr("VECTOR_HOST", "localhost"),
		VectorPort:       envOrInt("VECTOR_PORT", 6334),
		VectorCollection: envOr("VECTOR_COLLECTION", "documents"),
		VectorDimension:  envOrInt("VECTOR_DIMENSION", 768),

		LLMBaseURL:     envOr("LLM_BASE_URL", "http://localhost:11434"),
		LLMModel:       envOr("LLM_MODEL", "gemini-2.0-flash"),
		LLMTimeout:     envOrDuration("LLM_TIMEOUT", 30*time.Second),
		EmbeddingModel: envOr("EMBEDDING_MODEL", "text-embedding-004"),

		OCRBackendAddr:        envOr("OCR_BACKEND_ADDR", "localhost:50051"),
		ClassifierBackendAddr: envOr("CLASSIFIER_BACKEND_ADDR", "localhost:50052"),
		ClassifierEnabled:     envOrBool("CLASSIFIER_ENABLED", false),

		WorkerConcurrency: envOrInt("WORKER_CONCURRENCY", 8),
		MaxRetries:        envOrInt("MAX_RETRIES", 3),
		RetryBackoffBase:  envOrDuration("RETRY_BACKOFF_BASE", time.Second),
		RetryBackoffCap:   envOrDuration("RETRY_BACKOFF_CAP", 60*time.Second),
		JobDeadline:       envOrDuration("JOB_DEADLINE", 15*time.Minute),

		StatusAPIPort: envOr("STATUS_API_PORT", "8090"),
		MetricsPort:   envOr("METRICS_PORT", "9090"),
		CORSOrigin:    envOr("CORS_ORIGIN", "*"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envOrDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
