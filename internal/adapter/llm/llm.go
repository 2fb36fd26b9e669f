// Package llm wraps a Gemini-compatible generative model for both text
// completion (used through the guarded JSON decoder by the extract,
// summarize and PII stages) and embeddings, following the functional-options
// client-wrapper shape used elsewhere in the codebase for thin adapters
// around a single external transport.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/WessleyAI/wessley-mvp/internal/adapter/common"
	"github.com/WessleyAI/wessley-mvp/internal/errkind"
	"github.com/WessleyAI/wessley-mvp/pkg/resilience"
	"google.golang.org/genai"
)

// MaxEmbedChars bounds how much text is sent to the embedding endpoint;
// inputs longer than this are truncated rather than rejected.
const MaxEmbedChars = 8000

// Option configures a Client.
type Option func(*Client)

// WithModel overrides the generation model name.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithEmbeddingModel overrides the embedding model name.
func WithEmbeddingModel(model string) Option {
	return func(c *Client) { c.embedModel = model }
}

// WithLogger attaches a logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// Client is a thin wrapper around genai.Client exposing the two calls the
// pipeline needs: Complete and Embed.
type Client struct {
	gc         *genai.Client
	model      string
	embedModel string
	breaker    *resilience.Breaker
	log        *slog.Logger
}

// New constructs a Client against an existing genai.Client (already
// configured with API key / project via the caller, the same way
// cmd/worker wires a single shared gRPC connection at startup).
func New(gc *genai.Client, opts ...Option) *Client {
	c := &Client{
		gc:         gc,
		model:      "gemini-2.0-flash",
		embedModel: "text-embedding-004",
		breaker:    common.NewBreaker(),
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Complete sends prompt to the generation model and returns the raw text
// response. Temperature is pinned to 0 — the guard's repair loop depends
// on deterministic, not creative, output.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := common.WithTimeout(ctx, 0)
	defer cancel()

	temp := float32(0)
	var text string
	err := c.breaker.Call(ctx, func(ctx context.Context) error {
		resp, err := c.gc.Models.GenerateContent(ctx, c.model,
			genai.Text(prompt),
			&genai.GenerateContentConfig{Temperature: &temp},
		)
		if err != nil {
			return err
		}
		text = extractText(resp)
		if text == "" {
			return fmt.Errorf("empty response")
		}
		return nil
	})
	if err != nil {
		return "", errkind.New(errkind.Transient, fmt.Errorf("llm: generate: %w", err))
	}
	return text, nil
}

// Embed returns the embedding vector for text. An empty input returns an
// empty vector without making a network call — the caller (the Embed
// stage) treats that as "skip vector indexing for this job", not a
// failure.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	if len(text) > MaxEmbedChars {
		text = text[:MaxEmbedChars]
	}

	ctx, cancel := common.WithTimeout(ctx, 0)
	defer cancel()

	resp, err := c.gc.Models.EmbedContent(ctx, c.embedModel, []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}, nil)
	if err != nil {
		return nil, errkind.New(errkind.Transient, fmt.Errorf("llm: embed: %w", err))
	}
	if len(resp.Embeddings) == 0 {
		return nil, nil
	}
	return resp.Embeddings[0].Values, nil
}

func extractText(resp *genai.GenerateContentResponse) string {
	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}
