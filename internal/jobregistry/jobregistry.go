// Package jobregistry persists job state through Neo4j, built on the
// same generic repository the knowledge-graph store uses for Component
// nodes (pkg/repo.Neo4jRepo), generalized here to a JobRecord node and
// its Upsert method so redelivery overwrites a job's row instead of
// duplicating it.
package jobregistry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/WessleyAI/wessley-mvp/internal/domain"
	"github.com/WessleyAI/wessley-mvp/pkg/repo"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

// ErrNotFound is returned when a job_id has no registry row.
var ErrNotFound = errors.New("jobregistry: job not found")

// Registry is the job-state store backing both the orchestrator's
// terminal writes and the status API's reads.
type Registry struct {
	repo *repo.Neo4jRepo[domain.JobRecord, string]
}

// New constructs a Registry over an existing Neo4j driver, shared by both
// cmd/worker (writes) and cmd/statusapi (reads).
func New(driver neo4j.DriverWithContext) *Registry {
	return &Registry{
		repo: repo.NewNeo4jRepo[domain.JobRecord, string](
			driver,
			"JobRecord",
			jobRecordToMap,
			jobRecordFromRecord,
			repo.WithIDKey[domain.JobRecord, string]("job_id"),
		),
	}
}

// Put upserts a JobRecord by job_id, MERGEing rather than CREATEing so a
// retried delivery's terminal write replaces the prior attempt's row
// instead of appending a sibling node.
func (r *Registry) Put(ctx context.Context, rec domain.JobRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	rec.UpdatedAt = time.Now().UTC()
	if _, err := r.repo.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("jobregistry: put %s: %w", rec.JobID, err)
	}
	return nil
}

// Get returns the JobRecord for job_id, or ErrNotFound if no row exists.
func (r *Registry) Get(ctx context.Context, jobID string) (domain.JobRecord, error) {
	rec, err := r.repo.Get(ctx, jobID)
	if err != nil {
		return domain.JobRecord{}, ErrNotFound
	}
	return rec, nil
}

func jobRecordToMap(rec domain.JobRecord) map[string]any {
	m := map[string]any{
		"job_id":     rec.JobID,
		"state":      string(rec.State),
		"error":      rec.Error,
		"retries":    rec.Retries,
		"created_at": rec.CreatedAt.Format(time.RFC3339),
		"updated_at": rec.UpdatedAt.Format(time.RFC3339),
	}
	if rec.Result != nil {
		if b, err := json.Marshal(rec.Result); err == nil {
			m["result"] = string(b)
		}
	}
	return m
}

func jobRecordFromRecord(rec *neo4j.Record) (domain.JobRecord, error) {
	node, _, err := neo4j.GetRecordValue[dbtype.Node](rec, "n")
	if err != nil {
		return domain.JobRecord{}, err
	}
	props := node.Props

	out := domain.JobRecord{
		JobID: strProp(props, "job_id"),
		State: domain.State(strProp(props, "state")),
		Error: strProp(props, "error"),
	}
	if n, ok := props["retries"].(int64); ok {
		out.Retries = int(n)
	}
	if s := strProp(props, "result"); s != "" {
		var result domain.Record
		if err := json.Unmarshal([]byte(s), &result); err == nil {
			out.Result = &result
		}
	}
	if t, err := time.Parse(time.RFC3339, strProp(props, "created_at")); err == nil {
		out.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, strProp(props, "updated_at")); err == nil {
		out.UpdatedAt = t
	}
	return out, nil
}

func strProp(props map[string]any, key string) string {
	if v, ok := props[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
