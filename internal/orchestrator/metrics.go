package orchestrator

import "github.com/WessleyAI/wessley-mvp/pkg/metrics"

// pipelineMetrics are the orchestrator's job/stage counters and
// histograms, registered lazily against a shared metrics.Registry — the
// same per-label-value Counter/Histogram accessor pattern cmd/ingest's
// package-level metric variables use, generalized into an injectable
// struct instead of package globals.
type pipelineMetrics struct {
	reg *metrics.Registry
}

func (m *pipelineMetrics) jobsTotal(outcome string) {
	if m == nil || m.reg == nil {
		return
	}
	m.reg.Counter(metrics.WithLabels("docpipe_jobs_total", "outcome", outcome), "Total jobs reaching a terminal state").Inc()
}

func (m *pipelineMetrics) stageDuration(stage string, seconds float64) {
	if m == nil || m.reg == nil {
		return
	}
	m.reg.Histogram(metrics.WithLabels("docpipe_stage_duration_seconds", "stage", stage), "Per-stage duration", nil).Observe(seconds)
}

func (m *pipelineMetrics) stageDegraded(stage string) {
	if m == nil || m.reg == nil {
		return
	}
	m.reg.Counter(metrics.WithLabels("docpipe_stage_degraded_total", "stage", stage), "Total stages completing in a degraded state").Inc()
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMetrics registers orchestrator counters/histograms against reg.
func WithMetrics(reg *metrics.Registry) Option {
	return func(o *Orchestrator) { o.metrics = &pipelineMetrics{reg: reg} }
}
