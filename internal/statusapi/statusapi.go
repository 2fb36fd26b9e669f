// Package statusapi exposes a read-only HTTP surface over the job
// registry, built with the same middleware chain the rest of the
// codebase's HTTP servers use.
package statusapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/WessleyAI/wessley-mvp/internal/domain"
	"github.com/WessleyAI/wessley-mvp/internal/jobregistry"
	"github.com/WessleyAI/wessley-mvp/pkg/mid"
)

// Reader is the read-side of the job registry.
type Reader interface {
	Get(ctx context.Context, jobID string) (domain.JobRecord, error)
}

// NewHandler builds the status API's http.Handler: GET /v1/jobs/{job_id}.
func NewHandler(reg Reader, corsOrigin string, log *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/jobs/{job_id}", handleGetJob(reg, log))
	mux.HandleFunc("GET /healthz", handleHealth)

	return mid.Chain(mux,
		mid.Recover(log),
		mid.Logger(log),
		mid.CORS(corsOrigin),
	)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// jobResponse is the wire shape for a job status lookup; in-flight vs.
// terminal is carried entirely by State, matching the three-way read
// contract (QUEUED/RUNNING in flight, SUCCEEDED/FAILED terminal).
type jobResponse struct {
	JobID   string         `json:"job_id"`
	State   domain.State   `json:"state"`
	Result  *domain.Record `json:"result,omitempty"`
	Error   string         `json:"error,omitempty"`
}

func handleGetJob(reg Reader, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := r.PathValue("job_id")
		if jobID == "" {
			http.Error(w, `{"error":"job_id required"}`, http.StatusBadRequest)
			return
		}

		rec, err := reg.Get(r.Context(), jobID)
		if err != nil {
			if errors.Is(err, jobregistry.ErrNotFound) {
				http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
				return
			}
			log.Error("statusapi: get job failed", "job_id", jobID, "error", err)
			http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(jobResponse{
			JobID:  rec.JobID,
			State:  rec.State,
			Result: rec.Result,
			Error:  rec.Error,
		})
	}
}
