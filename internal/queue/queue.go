// Package queue wraps NATS JetStream as the work queue runtime: a
// durable pull consumer whose native redelivery (AckWait as the
// visibility timeout, NumDelivered as the retry counter) replaces the
// core-NATS header-counting and DLQ-subject plumbing the ingestion
// engine originally rolled by hand.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/WessleyAI/wessley-mvp/internal/domain"
	"github.com/WessleyAI/wessley-mvp/internal/errkind"
	"github.com/WessleyAI/wessley-mvp/pkg/metrics"
	"github.com/WessleyAI/wessley-mvp/pkg/natsutil"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.opentelemetry.io/otel"
)

const (
	// Stream is the JetStream stream backing all ticket subjects.
	Stream = "DOCPIPE"
	// TicketSubject is the subject new and redelivered tickets publish to.
	TicketSubject = "jobs.ticket"
	// Durable is the durable consumer name workers share.
	Durable = "docpipe-workers"
)

// Handler processes one ticket and returns an error classified via
// errkind: nil means success (Ack), errkind.Permanent/NotAvailable means
// give up (Term), anything else means retry (Nak with backoff).
type Handler func(ctx context.Context, ticket domain.Ticket) error

// FailRegistry is the terminal-state store the runtime writes a FAILED
// record through when it gives up on a job without a redelivery —
// either because the failure was classified Permanent/NotAvailable, or
// because a Transient failure exhausted its retries. The orchestrator
// itself never publishes a terminal record for a Transient failure (so a
// redelivery can still find the job RUNNING); once the runtime decides
// there will be no redelivery, it must publish FAILED itself or the job
// would be stuck RUNNING forever.
type FailRegistry interface {
	Get(ctx context.Context, jobID string) (domain.JobRecord, error)
	Put(ctx context.Context, rec domain.JobRecord) error
}

// Runtime owns the JetStream stream/consumer lifecycle and drives a pool
// of worker goroutines pulling from it.
type Runtime struct {
	js       jetstream.JetStream
	nc       *nats.Conn
	cfg      Config
	log      *slog.Logger
	metrics  *metrics.Registry
	registry FailRegistry
}

// Config configures retry/backoff and consumer behavior.
type Config struct {
	Workers      int
	MaxRetries   int
	BackoffBase  time.Duration
	BackoffCap   time.Duration
	AckWait      time.Duration
}

// DefaultConfig mirrors the original pipeline's retry policy: up to 3
// retries (4 deliveries in all), exponential backoff capped at 60s.
var DefaultConfig = Config{
	Workers:     8,
	MaxRetries:  3,
	BackoffBase: time.Second,
	BackoffCap:  60 * time.Second,
	AckWait:     15 * time.Minute,
}

// New constructs a Runtime over an existing NATS connection and ensures
// the backing stream exists. failReg may be nil, in which case the
// runtime logs but does not persist terminal FAILED records it would
// otherwise write on give-up.
func New(ctx context.Context, nc *nats.Conn, cfg Config, log *slog.Logger, metricsReg *metrics.Registry, failReg FailRegistry) (*Runtime, error) {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Workers <= 0 {
		cfg = DefaultConfig
	}

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("queue: jetstream: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     Stream,
		Subjects: []string{TicketSubject, TicketSubject + ".>"},
		Storage:  jetstream.FileStorage,
	})
	if err != nil {
		return nil, fmt.Errorf("queue: create stream: %w", err)
	}

	return &Runtime{js: js, nc: nc, cfg: cfg, log: log, metrics: metricsReg, registry: failReg}, nil
}

// Enqueue publishes a new ticket, injecting the caller's trace context
// into the message headers the same way pkg/natsutil's core-NATS
// Publish does, so a span started by the ingress HTTP handler continues
// across the broker into the worker that eventually dequeues it.
func (r *Runtime) Enqueue(ctx context.Context, ticket domain.Ticket) error {
	data, err := json.Marshal(ticket)
	if err != nil {
		return fmt.Errorf("queue: encode ticket: %w", err)
	}
	hdr := make(nats.Header)
	otel.GetTextMapPropagator().Inject(ctx, natsutil.HeaderCarrier(hdr))
	_, err = r.js.PublishMsg(ctx, &nats.Msg{Subject: TicketSubject, Data: data, Header: hdr})
	if err != nil {
		return fmt.Errorf("queue: enqueue %s: %w", ticket.JobID, err)
	}
	return nil
}

// Run starts cfg.Workers goroutines pulling from the durable consumer
// and blocks until ctx is cancelled.
func (r *Runtime) Run(ctx context.Context, handle Handler) error {
	stream, err := r.js.Stream(ctx, Stream)
	if err != nil {
		return fmt.Errorf("queue: get stream: %w", err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       Durable,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       r.cfg.AckWait,
		MaxDeliver:    r.cfg.MaxRetries + 1,
		FilterSubject: TicketSubject,
	})
	if err != nil {
		return fmt.Errorf("queue: create consumer: %w", err)
	}

	msgs, err := cons.Messages(jetstream.PullMaxMessages(r.cfg.Workers))
	if err != nil {
		return fmt.Errorf("queue: open message iterator: %w", err)
	}
	defer msgs.Stop()

	sem := make(chan struct{}, r.cfg.Workers)
	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		msgs.Stop()
		close(done)
	}()

	for {
		msg, err := msgs.Next()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			r.log.Warn("queue: message iterator error", "error", err)
			continue
		}
		if msg == nil {
			return nil
		}

		sem <- struct{}{}
		go func(msg jetstream.Msg) {
			defer func() { <-sem }()
			r.process(ctx, msg, handle)
		}(msg)
	}
}

func (r *Runtime) process(ctx context.Context, msg jetstream.Msg, handle Handler) {
	var ticket domain.Ticket
	if err := json.Unmarshal(msg.Data(), &ticket); err != nil {
		r.log.Error("queue: malformed ticket, terminating", "error", err)
		_ = msg.Term()
		return
	}

	meta, _ := msg.Metadata()
	delivered := 1
	if meta != nil {
		delivered = int(meta.NumDelivered)
	}

	stop := r.heartbeat(msg)
	defer stop()

	traceCtx := otel.GetTextMapPropagator().Extract(ctx, natsutil.HeaderCarrier(msg.Headers()))
	jobCtx, cancel := context.WithTimeout(traceCtx, r.cfg.AckWait)
	defer cancel()

	err := handle(jobCtx, ticket)
	if err == nil {
		_ = msg.Ack()
		return
	}

	kind := errkind.Of(err)
	switch kind {
	case errkind.Permanent, errkind.NotAvailable:
		r.log.Error("queue: terminating job", "job_id", ticket.JobID, "error", err)
		r.dlqTotal(string(kind))
		r.failTerminal(ctx, ticket, err)
		_ = msg.Term()
	case errkind.Cancelled:
		// Shutdown in progress; Nak without delay so redelivery picks
		// this job back up. The redelivery still counts toward
		// MaxDeliver like any other.
		_ = msg.NakWithDelay(0)
	default:
		if delivered > r.cfg.MaxRetries {
			r.log.Error("queue: exhausted retries, terminating", "job_id", ticket.JobID, "attempts", delivered, "error", err)
			r.dlqTotal("retries_exhausted")
			r.failTerminal(ctx, ticket, err)
			_ = msg.Term()
			return
		}
		backoff := r.backoff(delivered)
		r.log.Warn("queue: retrying job", "job_id", ticket.JobID, "attempt", delivered, "backoff", backoff, "error", err)
		_ = msg.NakWithDelay(backoff)
	}
}

// failTerminal persists a terminal FAILED record for a job the runtime is
// giving up on. The orchestrator already publishes FAILED for its own
// Permanent/NotAvailable decisions, so this is a no-op in that case
// (Get reports the row already terminal); it's load-bearing for the
// retries-exhausted path, where the orchestrator deliberately left the
// job RUNNING so a redelivery could still find it, and the runtime has
// just decided there will be no redelivery.
func (r *Runtime) failTerminal(ctx context.Context, ticket domain.Ticket, err error) {
	if r.registry == nil {
		return
	}
	if existing, getErr := r.registry.Get(ctx, ticket.JobID); getErr == nil && existing.State.Terminal() {
		return
	}
	rec := domain.JobRecord{
		JobID: ticket.JobID,
		State: domain.StateFailed,
		Error: err.Error(),
	}
	if putErr := r.registry.Put(ctx, rec); putErr != nil {
		r.log.Error("queue: persist terminal failure failed", "job_id", ticket.JobID, "error", putErr)
	}
}

// dlqTotal increments the terminated-without-success counter, labeled by
// the reason the job never got a chance to succeed.
func (r *Runtime) dlqTotal(reason string) {
	if r.metrics == nil {
		return
	}
	r.metrics.Counter(metrics.WithLabels("docpipe_dlq_total", "reason", reason), "Total jobs terminated without reaching SUCCEEDED").Inc()
}

// backoff computes exponential delay capped at cfg.BackoffCap, matching
// the original pipeline's retry_backoff_max=60.
func (r *Runtime) backoff(attempt int) time.Duration {
	d := time.Duration(float64(r.cfg.BackoffBase) * math.Pow(2, float64(attempt-1)))
	if d > r.cfg.BackoffCap {
		d = r.cfg.BackoffCap
	}
	return d
}

// heartbeat periodically calls InProgress so a job whose stages run
// longer than AckWait doesn't get redelivered out from under itself.
func (r *Runtime) heartbeat(msg jetstream.Msg) func() {
	ticker := time.NewTicker(r.cfg.AckWait / 3)
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				_ = msg.InProgress()
			case <-stop:
				ticker.Stop()
				return
			}
		}
	}()
	return func() { close(stop) }
}
