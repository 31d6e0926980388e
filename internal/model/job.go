package model

import "time"

// JobType identifies the kind of background operation a job runs.
type JobType string

const (
	JobTypeEmailSearch JobType = "email_search"
	JobTypeEmailSync   JobType = "email_sync"
	JobTypeEmailImport JobType = "email_import"
	JobTypeEnrichment  JobType = "job_enrichment"
)

// JobStatus is the lifecycle state of a background job. Transitions are
// monotonic: queued → processing → completed|failed, never out of a
// terminal state.
type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Terminal reports whether the status is an end state.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// BackgroundJob is an asynchronous, pollable unit of work (search, sync,
// import, enrichment). Distinct from a job application record.
type BackgroundJob struct {
	ID     string    `json:"id"`
	Type   JobType   `json:"type"`
	Status JobStatus `json:"status"`

	// Progress is 0-100 and never decreases while processing.
	Progress int `json:"progress"`

	// Message is the latest human-readable step description.
	Message string `json:"message"`

	// Result holds the type-specific payload once completed.
	Result any `json:"result,omitempty"`

	// Error is set verbatim iff the job failed.
	Error string `json:"error,omitempty"`

	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// ImportStats summarizes one import batch. Per-candidate failures are
// recorded here rather than failing the batch.
type ImportStats struct {
	Applications  ImportCounter `json:"applications"`
	StatusUpdates ImportCounter `json:"status_updates"`
	Responses     ImportCounter `json:"responses"`

	// Errors lists per-candidate failures, in candidate order.
	Errors []string `json:"errors,omitempty"`
}

// ImportCounter counts outcomes for one candidate kind.
type ImportCounter struct {
	Added     int `json:"added,omitempty"`
	Processed int `json:"processed,omitempty"`
	Skipped   int `json:"skipped,omitempty"`
}

// SearchResult is the payload of a completed email_search job.
type SearchResult struct {
	Candidates []CandidateItem `json:"candidates"`

	// FoldersScanned counts the folders that were opened successfully.
	FoldersScanned int `json:"folders_scanned"`

	// FolderErrors maps folder name to the error that made the engine
	// skip it. Skipped folders never fail the job.
	FolderErrors map[string]string `json:"folder_errors,omitempty"`

	// Messages is the number of messages examined.
	Messages int `json:"messages"`
}

// SyncResult is the payload of a completed email_sync job.
type SyncResult struct {
	Stats ImportStats `json:"stats"`

	// PendingEnrichments counts items handed to the enrichment worker
	// but not yet processed when the sync completed.
	PendingEnrichments int `json:"pending_enrichments"`

	FoldersScanned int               `json:"folders_scanned"`
	FolderErrors   map[string]string `json:"folder_errors,omitempty"`
	Messages       int               `json:"messages"`
}

// EnrichmentResult is the payload of a completed job_enrichment job.
type EnrichmentResult struct {
	// Queued is how many pending records were handed to the worker.
	Queued int `json:"queued"`
}
