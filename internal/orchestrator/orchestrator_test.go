package orchestrator

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/WessleyAI/wessley-mvp/internal/domain"
	"github.com/WessleyAI/wessley-mvp/internal/errkind"
	"github.com/WessleyAI/wessley-mvp/pkg/fn"
)

type fakeRegistry struct {
	records map[string]domain.JobRecord
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{records: make(map[string]domain.JobRecord)}
}

func (f *fakeRegistry) Put(_ context.Context, rec domain.JobRecord) error {
	f.records[rec.JobID] = rec
	return nil
}

func okStage() fn.Stage[domain.JobContext, domain.JobContext] {
	return func(_ context.Context, jc domain.JobContext) fn.Result[domain.JobContext] {
		return fn.Ok(jc)
	}
}

func erringStage(kind errkind.Kind) fn.Stage[domain.JobContext, domain.JobContext] {
	return func(_ context.Context, jc domain.JobContext) fn.Result[domain.JobContext] {
		return fn.Err[domain.JobContext](errkind.New(kind, fmt.Errorf("boom")))
	}
}

func happyStages() Stages {
	return Stages{
		OCR:          okStage(),
		Classify:     okStage(),
		Extract:      okStage(),
		Summarize:    okStage(),
		DetectPII:    okStage(),
		Embed:        okStage(),
		IndexLexical: okStage(),
		IndexVector:  okStage(),
	}
}

func TestRun_HappyPathSucceeds(t *testing.T) {
	reg := newFakeRegistry()
	o := New(happyStages(), reg, nil)

	jc, err := o.Run(context.Background(), domain.Ticket{JobID: "job-1", FilePath: ""})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reg.records["job-1"].State != domain.StateSucceeded {
		t.Fatalf("expected SUCCEEDED, got %v", reg.records["job-1"].State)
	}
	_ = jc
}

func TestRun_OCRPermanentFailureIsTerminal(t *testing.T) {
	reg := newFakeRegistry()
	stages := happyStages()
	stages.OCR = erringStage(errkind.Permanent)
	o := New(stages, reg, nil)

	_, err := o.Run(context.Background(), domain.Ticket{JobID: "job-2"})
	if err == nil {
		t.Fatal("expected error")
	}
	if errkind.Of(err) != errkind.Permanent {
		t.Fatalf("expected permanent, got %v", errkind.Of(err))
	}
	if reg.records["job-2"].State != domain.StateFailed {
		t.Fatalf("expected FAILED, got %v", reg.records["job-2"].State)
	}
}

func TestRun_TransientFailureDoesNotWriteTerminalRecord(t *testing.T) {
	reg := newFakeRegistry()
	stages := happyStages()
	stages.OCR = erringStage(errkind.Transient)
	o := New(stages, reg, nil)

	_, err := o.Run(context.Background(), domain.Ticket{JobID: "job-3"})
	if errkind.Of(err) != errkind.Transient {
		t.Fatalf("expected transient, got %v", errkind.Of(err))
	}
	if rec, ok := reg.records["job-3"]; ok && rec.State.Terminal() {
		t.Fatal("transient failures must not persist a terminal record")
	}
}

func TestRun_ClassifierNotAvailableDegrades(t *testing.T) {
	reg := newFakeRegistry()
	stages := happyStages()
	stages.Classify = erringStage(errkind.NotAvailable)
	o := New(stages, reg, nil)

	_, err := o.Run(context.Background(), domain.Ticket{JobID: "job-4"})
	if err != nil {
		t.Fatalf("expected degrade-to-success, got error: %v", err)
	}
	if reg.records["job-4"].State != domain.StateSucceeded {
		t.Fatalf("expected SUCCEEDED after degrade, got %v", reg.records["job-4"].State)
	}
}

func TestRun_FanOutPermanentFailureDegradesNotFails(t *testing.T) {
	reg := newFakeRegistry()
	stages := happyStages()
	stages.Summarize = erringStage(errkind.Permanent)
	o := New(stages, reg, nil)

	// summarize's policy degrades on Permanent, so the fan-out branch
	// failure must not fail the job.
	_, err := o.Run(context.Background(), domain.Ticket{JobID: "job-5"})
	if err != nil {
		t.Fatalf("summarize permanent failures degrade by policy, got error: %v", err)
	}
	rec := reg.records["job-5"]
	if rec.State != domain.StateSucceeded {
		t.Fatalf("expected degraded success, got %v", rec.State)
	}
}

func TestRun_VectorIndexPermanentFailureDegrades(t *testing.T) {
	reg := newFakeRegistry()
	stages := happyStages()
	stages.IndexVector = erringStage(errkind.Permanent)
	o := New(stages, reg, nil)

	_, err := o.Run(context.Background(), domain.Ticket{JobID: "job-7"})
	if err != nil {
		t.Fatalf("index_vector permanent failures degrade by policy, got error: %v", err)
	}
	rec := reg.records["job-7"]
	if rec.State != domain.StateSucceeded {
		t.Fatalf("expected degraded success, got %v", rec.State)
	}
}

func TestRun_PersistsRunningStateBeforeStages(t *testing.T) {
	reg := newFakeRegistry()
	var sawRunning bool
	stages := happyStages()
	stages.OCR = func(_ context.Context, jc domain.JobContext) fn.Result[domain.JobContext] {
		sawRunning = reg.records["job-8"].State == domain.StateRunning
		return fn.Ok(jc)
	}
	o := New(stages, reg, nil)

	if _, err := o.Run(context.Background(), domain.Ticket{JobID: "job-8"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sawRunning {
		t.Fatal("expected RUNNING state to be persisted before the first stage runs")
	}
}

func TestRun_FileRemovedOnTerminalOutcome(t *testing.T) {
	reg := newFakeRegistry()
	o := New(happyStages(), reg, nil)

	tmp := t.TempDir() + "/upload.bin"
	if err := os.WriteFile(tmp, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := o.Run(context.Background(), domain.Ticket{JobID: "job-6", FilePath: tmp})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, statErr := os.Stat(tmp); statErr == nil {
		t.Fatal("expected uploaded file to be removed after terminal outcome")
	}
}
