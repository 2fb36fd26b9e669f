package orchestrator

import "github.com/WessleyAI/wessley-mvp/internal/errkind"

// outcome is what the orchestrator does after a stage returns an error.
type outcome string

const (
	outcomeFail     outcome = "fail"     // terminal FAILED, no retry
	outcomeRetry    outcome = "retry"    // transient, let the queue redeliver
	outcomeDegrade  outcome = "degrade"  // continue the pipeline with a partial result
)

// policy is a stage-name → kind → outcome lookup, replacing scattered
// per-stage conditionals with one table a reviewer can read top to
// bottom.
var policy = map[string]map[errkind.Kind]outcome{
	"ocr": {
		errkind.Permanent: outcomeFail,
		errkind.Transient: outcomeRetry,
	},
	"classify": {
		errkind.NotAvailable: outcomeDegrade,
		errkind.Transient:    outcomeRetry,
	},
	"extract": {
		errkind.Transient: outcomeRetry,
		errkind.Permanent: outcomeDegrade,
	},
	"summarize": {
		errkind.Transient: outcomeRetry,
		errkind.Permanent: outcomeDegrade,
	},
	"pii": {
		errkind.Transient: outcomeRetry,
		errkind.Permanent: outcomeDegrade,
	},
	"embed": {
		errkind.Transient: outcomeRetry,
		errkind.Permanent: outcomeDegrade,
	},
	"index_lexical": {
		errkind.Transient: outcomeRetry,
	},
	"index_vector": {
		errkind.Transient: outcomeRetry,
		errkind.Permanent: outcomeDegrade,
	},
}

// resolve looks up the outcome for a stage's error, defaulting to retry
// for an unclassified transient error and fail for anything permanent —
// matching errkind.Of's own fail-safe-toward-retry default.
func resolve(stage string, err error) outcome {
	kind := errkind.Of(err)
	if kind == errkind.Cancelled {
		return outcomeFail
	}
	if table, ok := policy[stage]; ok {
		if o, ok := table[kind]; ok {
			return o
		}
	}
	if kind == errkind.Permanent {
		return outcomeFail
	}
	return outcomeRetry
}
