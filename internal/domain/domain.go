// Package domain defines the core types that flow through the document
// processing pipeline: job tickets, in-flight job context, and the
// persisted document record.
package domain

import "time"

// DocType is the closed set of document classifications the pipeline
// recognizes.
type DocType string

const (
	DocInvoice  DocType = "invoice"
	DocReceipt  DocType = "receipt"
	DocContract DocType = "contract"
	DocReport   DocType = "report"
	DocResume   DocType = "resume"
	DocUnknown  DocType = "unknown"
)

// ValidDocTypes is the set of recognized document types.
var ValidDocTypes = map[DocType]bool{
	DocInvoice: true, DocReceipt: true, DocContract: true,
	DocReport: true, DocResume: true, DocUnknown: true,
}

// ExtractableDocTypes is the subset of doc types that have a registered
// extraction prompt/schema pair; DocUnknown and any unrecognized type
// skip C3 extraction rather than fail it.
var ExtractableDocTypes = map[DocType]bool{
	DocInvoice: true, DocReceipt: true, DocContract: true,
	DocReport: true, DocResume: true,
}

// State is the closed set of job lifecycle states.
type State string

const (
	StateQueued    State = "QUEUED"
	StateRunning   State = "RUNNING"
	StateSucceeded State = "SUCCEEDED"
	StateFailed    State = "FAILED"
)

// Terminal reports whether s is a terminal state.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Ticket is the message delivered over the work queue to start or redeliver
// a job. It is the only data that survives a worker crash.
type Ticket struct {
	JobID      string    `json:"job_id"`
	FilePath   string    `json:"file_path"`
	Filename   string    `json:"filename"`
	MimeType   string    `json:"mime_type"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	Deadline   time.Time `json:"deadline"`
}

// PIIFinding is a single detected instance of personally identifiable
// information.
type PIIFinding struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Start int    `json:"start,omitempty"`
}

// JobContext is the mutable working state for one job, owned exclusively
// by the goroutine processing it. No field is read or written by any
// other goroutine while the job is in flight.
type JobContext struct {
	JobID    string
	FilePath string
	Filename string
	MimeType string

	RawText        string
	DocType        DocType
	Confidence     float64
	StructuredData map[string]any
	Summary        string
	PIIFindings    []PIIFinding
	Embedding      []float32

	StageTimings map[string]time.Duration
	Degraded     []string // names of stages that degraded instead of failing

	StartedAt time.Time
}

// NewJobContext seeds a JobContext from a Ticket.
func NewJobContext(t Ticket) JobContext {
	return JobContext{
		JobID:        t.JobID,
		FilePath:     t.FilePath,
		Filename:     t.Filename,
		MimeType:     t.MimeType,
		DocType:      DocUnknown,
		StageTimings: make(map[string]time.Duration),
		StartedAt:    time.Now(),
	}
}

// Degrade records that a stage produced a degraded-but-successful result
// rather than failing the job outright.
func (j *JobContext) Degrade(stage string) {
	j.Degraded = append(j.Degraded, stage)
}

// Record is the persisted, indexable view of a completed job — what gets
// written to the lexical index, the vector index, and the job registry.
type Record struct {
	JobID          string         `json:"job_id"`
	Filename       string         `json:"filename"`
	RawText        string         `json:"content"`
	DocType        DocType        `json:"doc_type"`
	Confidence     float64        `json:"doc_confidence"`
	StructuredData map[string]any `json:"extracted_data"`
	Summary        string         `json:"summary"`
	PIICount       int            `json:"pii_count"`
	VectorIndexed  bool           `json:"vector_indexed"`
	CreatedAt      time.Time      `json:"created_at"`
}

// LexicalPayload builds the document sent to the lexical (keyword) index.
// VectorIndexed reflects whether IndexVector actually wrote a point —
// false whenever the embedding came back empty or the vector write
// itself degraded — so a caller reading the lexical record alone can
// tell a vector lookup by this job_id will come back empty.
func (j JobContext) LexicalPayload() Record {
	return Record{
		JobID:          j.JobID,
		Filename:       j.Filename,
		RawText:        j.RawText,
		DocType:        j.DocType,
		Confidence:     j.Confidence,
		StructuredData: j.StructuredData,
		Summary:        j.Summary,
		PIICount:       len(j.PIIFindings),
		VectorIndexed:  len(j.Embedding) > 0 && !j.degraded("index_vector"),
		CreatedAt:      j.StartedAt,
	}
}

// degraded reports whether the named stage is recorded as degraded.
func (j JobContext) degraded(stage string) bool {
	for _, s := range j.Degraded {
		if s == stage {
			return true
		}
	}
	return false
}

// VectorPayload builds the metadata payload attached to the embedding
// upserted into the vector index. The embedding itself travels alongside,
// not inside, the payload.
func (j JobContext) VectorPayload() map[string]any {
	return map[string]any{
		"filename":   j.Filename,
		"doc_type":   string(j.DocType),
		"summary":    j.Summary,
		"lexical_id": j.JobID,
	}
}

// JobRecord is the job-registry row backing the status API, persisted via
// the graph repository keyed by JobID.
type JobRecord struct {
	JobID       string    `json:"job_id"`
	State       State     `json:"state"`
	Result      *Record   `json:"result,omitempty"`
	Error       string    `json:"error,omitempty"`
	Retries     int       `json:"retries"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
