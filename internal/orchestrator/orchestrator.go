// Package orchestrator drives one JobContext through the document
// pipeline's DAG: OCR and Classify run sequentially, Extract/Summarize/
// DetectPII/Embed fan out over the shared raw text, and the two index
// writes fan back in once every fan-out branch has returned.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/WessleyAI/wessley-mvp/internal/domain"
	"github.com/WessleyAI/wessley-mvp/internal/errkind"
	"github.com/WessleyAI/wessley-mvp/pkg/fn"
)

// Registry is the job-state persistence surface the orchestrator writes
// terminal outcomes through — an adaptation of the generic Neo4j
// repository to JobRecord rows.
type Registry interface {
	Put(ctx context.Context, rec domain.JobRecord) error
}

// Stages bundles the eight stage functions the orchestrator sequences.
// Each is an fn.Stage[domain.JobContext, domain.JobContext]; Extract,
// Summarize, DetectPII and Embed share that exact signature, which is
// what makes them eligible for fn.FanOut below — a direct reuse of
// the same fan-out/fan-in combinator the ingestion pipeline already uses
// for independent stages, generalized from "N chunks of the same
// document" to "N independent analyses of the same document".
type Stages struct {
	OCR          fn.Stage[domain.JobContext, domain.JobContext]
	Classify     fn.Stage[domain.JobContext, domain.JobContext]
	Extract      fn.Stage[domain.JobContext, domain.JobContext]
	Summarize    fn.Stage[domain.JobContext, domain.JobContext]
	DetectPII    fn.Stage[domain.JobContext, domain.JobContext]
	Embed        fn.Stage[domain.JobContext, domain.JobContext]
	IndexLexical fn.Stage[domain.JobContext, domain.JobContext]
	IndexVector  fn.Stage[domain.JobContext, domain.JobContext]
}

// Orchestrator runs jobs through Stages and persists terminal state
// through a Registry.
type Orchestrator struct {
	stages   Stages
	registry Registry
	log      *slog.Logger
	metrics  *pipelineMetrics
}

// New constructs an Orchestrator.
func New(stages Stages, registry Registry, log *slog.Logger, opts ...Option) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	o := &Orchestrator{stages: stages, registry: registry, log: log}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run drives ticket through the full pipeline. A nil error means the job
// reached SUCCEEDED (possibly with one or more stages degraded); a
// non-nil error is already classified via errkind — Permanent means the
// job is terminally FAILED, Transient means the caller should retry the
// delivery.
func (o *Orchestrator) Run(ctx context.Context, ticket domain.Ticket) (domain.JobContext, error) {
	jc := domain.NewJobContext(ticket)

	running := domain.JobRecord{JobID: jc.JobID, State: domain.StateRunning, CreatedAt: jc.StartedAt}
	if err := o.registry.Put(ctx, running); err != nil {
		o.log.Error("orchestrator: persist running state failed", "job_id", jc.JobID, "error", err)
	}

	jc, err := o.runSequential(ctx, "ocr", o.stages.OCR, jc)
	if err != nil {
		return jc, o.finish(ctx, jc, err)
	}

	jc, err = o.runSequential(ctx, "classify", o.stages.Classify, jc)
	if err != nil {
		return jc, o.finish(ctx, jc, err)
	}

	jc, err = o.runFanOut(ctx, jc)
	if err != nil {
		return jc, o.finish(ctx, jc, err)
	}

	jc, err = o.runSequential(ctx, "index_lexical", o.stages.IndexLexical, jc)
	if err != nil {
		return jc, o.finish(ctx, jc, err)
	}

	jc, err = o.runSequential(ctx, "index_vector", o.stages.IndexVector, jc)
	if err != nil {
		return jc, o.finish(ctx, jc, err)
	}

	return jc, o.finish(ctx, jc, nil)
}

// runSequential executes one stage, timing it and applying the per-stage
// policy on failure. A degraded outcome returns (jc, nil) — the caller
// proceeds as if the stage had succeeded.
func (o *Orchestrator) runSequential(ctx context.Context, name string, s fn.Stage[domain.JobContext, domain.JobContext], jc domain.JobContext) (domain.JobContext, error) {
	start := time.Now()
	res := s(ctx, jc)
	elapsed := time.Since(start)
	o.log.Info("stage.exit", "stage", name, "job_id", jc.JobID, "duration", elapsed)
	o.metrics.stageDuration(name, elapsed.Seconds())

	out, stageErr := res.Unwrap()
	if out.StageTimings == nil {
		out.StageTimings = jc.StageTimings
	}
	out.StageTimings[name] = elapsed

	if stageErr == nil {
		return out, nil
	}

	switch resolve(name, stageErr) {
	case outcomeDegrade:
		jc.Degrade(name)
		jc.StageTimings[name] = elapsed
		o.metrics.stageDegraded(name)
		return jc, nil
	case outcomeFail:
		return jc, errkind.New(errkind.Permanent, fmt.Errorf("%s: %w", name, stageErr))
	default:
		return jc, errkind.New(errkind.Transient, fmt.Errorf("%s: %w", name, stageErr))
	}
}

// runFanOut runs Extract, Summarize, DetectPII and Embed concurrently
// against the shared immutable raw_text, then merges each branch's own
// fields back onto a single JobContext. Each branch failure is resolved
// through the same per-stage policy as a sequential stage; the fan-out as
// a whole fails only if at least one branch resolves to fail or retry.
func (o *Orchestrator) runFanOut(ctx context.Context, jc domain.JobContext) (domain.JobContext, error) {
	type branch struct {
		name  string
		stage fn.Stage[domain.JobContext, domain.JobContext]
	}
	branches := []branch{
		{"extract", o.stages.Extract},
		{"summarize", o.stages.Summarize},
		{"pii", o.stages.DetectPII},
		{"embed", o.stages.Embed},
	}

	fns := make([]func() fn.Result[domain.JobContext], len(branches))
	for i, b := range branches {
		b := b
		fns[i] = func() fn.Result[domain.JobContext] {
			start := time.Now()
			res := b.stage(ctx, jc)
			elapsed := time.Since(start)
			o.log.Info("stage.exit", "stage", b.name, "job_id", jc.JobID, "duration", elapsed)
			o.metrics.stageDuration(b.name, elapsed.Seconds())
			return res
		}
	}

	results := fn.FanOut(fns...)

	merged := jc
	var firstErr error
	for i, res := range results {
		out, stageErr := res.Unwrap()
		if stageErr == nil {
			merged = mergeBranch(merged, branches[i].name, out)
			continue
		}
		switch resolve(branches[i].name, stageErr) {
		case outcomeDegrade:
			merged.Degrade(branches[i].name)
			o.metrics.stageDegraded(branches[i].name)
		case outcomeFail:
			if firstErr == nil {
				firstErr = errkind.New(errkind.Permanent, fmt.Errorf("%s: %w", branches[i].name, stageErr))
			}
		default:
			if firstErr == nil {
				firstErr = errkind.New(errkind.Transient, fmt.Errorf("%s: %w", branches[i].name, stageErr))
			}
		}
	}
	return merged, firstErr
}

// mergeBranch copies the field(s) one fan-out branch is responsible for
// from out onto base.
func mergeBranch(base domain.JobContext, name string, out domain.JobContext) domain.JobContext {
	switch name {
	case "extract":
		base.StructuredData = out.StructuredData
	case "summarize":
		base.Summary = out.Summary
	case "pii":
		base.PIIFindings = out.PIIFindings
	case "embed":
		base.Embedding = out.Embedding
	}
	for k, v := range out.StageTimings {
		base.StageTimings[k] = v
	}
	if len(out.Degraded) > 0 {
		base.Degraded = append(base.Degraded, out.Degraded...)
	}
	return base
}

// finish persists the terminal JobRecord (success or permanent failure)
// and deletes the uploaded file regardless of outcome. A Transient err
// is not terminal — finish leaves the job record untouched so a
// redelivery can still find it QUEUED/RUNNING — but still removes
// nothing, since the file must survive for the retry to re-read it.
func (o *Orchestrator) finish(ctx context.Context, jc domain.JobContext, runErr error) error {
	if runErr != nil && errkind.Of(runErr) == errkind.Transient {
		return runErr
	}

	rec := domain.JobRecord{
		JobID:     jc.JobID,
		CreatedAt: jc.StartedAt,
		UpdatedAt: time.Now(),
	}
	if runErr == nil {
		rec.State = domain.StateSucceeded
		result := jc.LexicalPayload()
		rec.Result = &result
		o.metrics.jobsTotal("succeeded")
	} else {
		rec.State = domain.StateFailed
		rec.Error = runErr.Error()
		o.metrics.jobsTotal("failed")
	}

	if err := o.registry.Put(ctx, rec); err != nil {
		o.log.Error("orchestrator: persist job record failed", "job_id", jc.JobID, "error", err)
	}

	removeUploadedFile(jc.FilePath, o.log)

	return runErr
}
