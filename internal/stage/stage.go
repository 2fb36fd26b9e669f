// Package stage implements the eight pipeline stage functions, each an
// fn.Stage[domain.JobContext, domain.JobContext] touching only the fields
// the orchestrator assigns it. No stage retries internally — retry is the
// work queue's job, not the stage's.
package stage

import (
	"context"
	"log/slog"
	"time"

	"github.com/WessleyAI/wessley-mvp/internal/adapter/classifier"
	"github.com/WessleyAI/wessley-mvp/internal/adapter/lexical"
	"github.com/WessleyAI/wessley-mvp/internal/adapter/ocr"
	"github.com/WessleyAI/wessley-mvp/internal/adapter/vector"
	"github.com/WessleyAI/wessley-mvp/internal/domain"
	"github.com/WessleyAI/wessley-mvp/internal/errkind"
	"github.com/WessleyAI/wessley-mvp/internal/guard"
	"github.com/WessleyAI/wessley-mvp/internal/registry"
	"github.com/WessleyAI/wessley-mvp/pkg/fn"
	"github.com/google/uuid"
)

// Generator is the LLM call surface the stages need: text completion and
// embedding.
type Generator interface {
	guard.Generator
	Embed(ctx context.Context, text string) ([]float32, error)
}

// NewOCR builds the OCR stage.
func NewOCR(adapter *ocr.Adapter) fn.Stage[domain.JobContext, domain.JobContext] {
	return func(ctx context.Context, jc domain.JobContext) fn.Result[domain.JobContext] {
		text, err := adapter.Extract(ctx, jc.FilePath, jc.MimeType)
		if err != nil {
			return fn.Err[domain.JobContext](err)
		}
		if text == "" {
			// No text detected is a degraded success, not a failure —
			// downstream stages run against an empty raw_text.
			jc.Degrade("ocr")
		}
		jc.RawText = text
		return fn.Ok(jc)
	}
}

// NewClassify builds the classification stage. A NotAvailable classifier,
// or one that can't offer a confident prediction, degrades the job to
// doc_type=unknown rather than failing it. Empty raw_text (a degraded
// OCR result) skips the classifier outright — there is nothing for it to
// read — so Extract never runs against a blank document.
func NewClassify(adapter *classifier.Adapter) fn.Stage[domain.JobContext, domain.JobContext] {
	return func(ctx context.Context, jc domain.JobContext) fn.Result[domain.JobContext] {
		if jc.RawText == "" {
			jc.DocType = domain.DocUnknown
			jc.Confidence = 0
			jc.Degrade("classify")
			return fn.Ok(jc)
		}

		dt, conf, err := adapter.Classify(ctx, jc.RawText)
		if err != nil {
			if errkind.Of(err) == errkind.NotAvailable {
				jc.DocType = domain.DocUnknown
				jc.Confidence = 0
				jc.Degrade("classify")
				return fn.Ok(jc)
			}
			return fn.Err[domain.JobContext](err)
		}
		jc.DocType = dt
		jc.Confidence = conf
		if dt == domain.DocUnknown {
			jc.Degrade("classify")
		}
		return fn.Ok(jc)
	}
}

// NewExtract builds the structured-extraction stage. Only doc types with
// a registered prompt/schema pair are extracted; anything else (notably
// unknown) is skipped without error. Any LLM failure — transport error or
// guard repair exhaustion alike — degrades to {} rather than failing the
// job: the orchestrator never retries a single stage, only the queue
// retries the whole job, so a stage-level Transient here would otherwise
// make a down LLM un-degradable.
func NewExtract(reg *registry.Registry, llm Generator) fn.Stage[domain.JobContext, domain.JobContext] {
	return func(ctx context.Context, jc domain.JobContext) fn.Result[domain.JobContext] {
		if !domain.ExtractableDocTypes[jc.DocType] {
			return fn.Ok(jc)
		}

		prompt, err := reg.ExtractionPrompt(jc.DocType, jc.RawText)
		if err != nil {
			return fn.Err[domain.JobContext](err)
		}
		schema, err := reg.Schema(jc.DocType)
		if err != nil {
			return fn.Err[domain.JobContext](err)
		}

		obj, err := guard.Decode(ctx, llm, prompt, schema, guard.DefaultRepairAttempts)
		if err != nil || obj == nil {
			jc.Degrade("extract")
			return fn.Ok(jc)
		}
		jc.StructuredData = obj
		return fn.Ok(jc)
	}
}

// NewSummarize builds the summarization stage. Any LLM failure — down
// transport or guard repair exhaustion — degrades to an empty summary
// rather than failing the job.
func NewSummarize(reg *registry.Registry, llm Generator) fn.Stage[domain.JobContext, domain.JobContext] {
	return func(ctx context.Context, jc domain.JobContext) fn.Result[domain.JobContext] {
		prompt, err := reg.Prompt(registry.TaskSummarize, jc.RawText)
		if err != nil {
			return fn.Err[domain.JobContext](err)
		}
		obj, err := guard.Decode(ctx, llm, prompt, summarySchema, guard.DefaultRepairAttempts)
		if err != nil || obj == nil {
			jc.Summary = ""
			jc.Degrade("summarize")
			return fn.Ok(jc)
		}
		summary, _ := obj["summary"].(string)
		if summary == "" {
			jc.Summary = ""
			jc.Degrade("summarize")
			return fn.Ok(jc)
		}
		jc.Summary = summary
		return fn.Ok(jc)
	}
}

// NewDetectPII builds the PII-detection stage, merging the LLM's findings
// with a local regex pass. Any LLM failure falls back to the regex-only
// result rather than failing the job, matching the original pipeline's
// detect_pii, which swallows every LLM exception and returns the regex
// list alone.
func NewDetectPII(reg *registry.Registry, llm Generator) fn.Stage[domain.JobContext, domain.JobContext] {
	return func(ctx context.Context, jc domain.JobContext) fn.Result[domain.JobContext] {
		prompt, err := reg.Prompt(registry.TaskPII, jc.RawText)
		if err != nil {
			return fn.Err[domain.JobContext](err)
		}

		findings := RegexFindings(jc.RawText)

		obj, err := guard.Decode(ctx, llm, prompt, piiSchema, guard.DefaultRepairAttempts)
		if err != nil || obj == nil {
			jc.Degrade("pii")
		} else {
			findings = mergeFindings(findings, parsePIIObject(obj))
		}

		jc.PIIFindings = findings
		return fn.Ok(jc)
	}
}

// NewEmbed builds the embedding stage. An empty embedding is not an
// error; the downstream vector-index stage simply skips. A transport
// failure degrades the same way a degraded-empty embedding does, rather
// than failing the job — an unreachable embedding endpoint shouldn't
// block the lexical record from being written.
func NewEmbed(llm Generator) fn.Stage[domain.JobContext, domain.JobContext] {
	return func(ctx context.Context, jc domain.JobContext) fn.Result[domain.JobContext] {
		emb, err := llm.Embed(ctx, jc.RawText)
		if err != nil {
			jc.Degrade("embed")
			return fn.Ok(jc)
		}
		if len(emb) == 0 {
			jc.Degrade("embed")
		}
		jc.Embedding = emb
		return fn.Ok(jc)
	}
}

// NewIndexLexical builds the lexical-index stage.
func NewIndexLexical(idx *lexical.Index) fn.Stage[domain.JobContext, domain.JobContext] {
	return func(ctx context.Context, jc domain.JobContext) fn.Result[domain.JobContext] {
		if err := idx.Upsert(ctx, jc.LexicalPayload()); err != nil {
			return fn.Err[domain.JobContext](err)
		}
		return fn.Ok(jc)
	}
}

// NewIndexVector builds the vector-index stage. A job whose embedding
// step degraded to empty is skipped here unconditionally — it never
// attempts a zero-length upsert.
func NewIndexVector(store *vector.Store) fn.Stage[domain.JobContext, domain.JobContext] {
	return func(ctx context.Context, jc domain.JobContext) fn.Result[domain.JobContext] {
		if len(jc.Embedding) == 0 {
			return fn.Ok(jc)
		}
		id := uuid.NewSHA1(uuid.NameSpaceURL, []byte(jc.JobID)).String()
		if err := store.Upsert(ctx, id, jc.Embedding, jc.VectorPayload()); err != nil {
			return fn.Err[domain.JobContext](err)
		}
		return fn.Ok(jc)
	}
}

// LoggedTap returns a pass-through stage that logs stage entry. It logs
// no exit and records no timing; Timed does that.
func LoggedTap(name string, log *slog.Logger) fn.Stage[domain.JobContext, domain.JobContext] {
	return func(_ context.Context, jc domain.JobContext) fn.Result[domain.JobContext] {
		log.Info("stage.enter", "stage", name, "job_id", jc.JobID)
		return fn.Ok(jc)
	}
}

// Timed wraps a stage, recording its elapsed duration into
// StageTimings[name].
func Timed(name string, log *slog.Logger, next fn.Stage[domain.JobContext, domain.JobContext]) fn.Stage[domain.JobContext, domain.JobContext] {
	return func(ctx context.Context, jc domain.JobContext) fn.Result[domain.JobContext] {
		start := time.Now()
		res := next(ctx, jc)
		elapsed := time.Since(start)
		log.Info("stage.exit", "stage", name, "duration", elapsed)

		out, err := res.Unwrap()
		if err != nil {
			return fn.Err[domain.JobContext](err)
		}
		if out.StageTimings == nil {
			out.StageTimings = make(map[string]time.Duration)
		}
		out.StageTimings[name] = elapsed
		return fn.Ok(out)
	}
}

var summarySchema = []byte(`{"type":"object","properties":{"summary":{"type":"string"}},"required":["summary"]}`)
var piiSchema = []byte(`{"type":"object","properties":{"findings":{"type":"array","items":{"type":"object"}}},"required":["findings"]}`)

func parsePIIObject(obj map[string]any) []domain.PIIFinding {
	raw, _ := obj["findings"].([]any)
	out := make([]domain.PIIFinding, 0, len(raw))
	for _, r := range raw {
		m, ok := r.(map[string]any)
		if !ok {
			continue
		}
		t, _ := m["type"].(string)
		text, _ := m["text"].(string)
		if t == "" || text == "" {
			continue
		}
		out = append(out, domain.PIIFinding{Type: t, Text: text})
	}
	return out
}

func mergeFindings(a, b []domain.PIIFinding) []domain.PIIFinding {
	seen := make(map[string]bool, len(a))
	out := make([]domain.PIIFinding, 0, len(a)+len(b))
	for _, f := range a {
		key := f.Type + "|" + f.Text
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, f)
	}
	for _, f := range b {
		key := f.Type + "|" + f.Text
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, f)
	}
	return out
}
