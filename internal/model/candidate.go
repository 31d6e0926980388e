package model

import "time"

// CandidateType classifies what kind of event an email represents.
type CandidateType string

const (
	CandidateApplication  CandidateType = "application"
	CandidateStatusUpdate CandidateType = "status_update"
	CandidateResponse     CandidateType = "response"
)

// CandidateItem is a provisional record extracted from one email by the
// classifier. It is never persisted on its own: it is either imported into
// an Application or discarded.
type CandidateItem struct {
	// Type is the event kind this candidate represents.
	Type CandidateType `json:"type"`

	JobTitle        string `json:"job_title"`
	Company         string `json:"company"`
	CompanyLocation string `json:"company_location,omitempty"`

	// Date is the event timestamp: appliedAt for applications, the
	// status-check date for status updates, respondedAt for responses.
	Date time.Time `json:"date"`

	// ResponseValue holds the Response* status for response candidates.
	ResponseValue string `json:"response_value,omitempty"`

	// ExternalJobID and Website are extracted from posting links in the
	// message body, when present.
	ExternalJobID string `json:"external_job_id,omitempty"`
	Website       string `json:"website,omitempty"`

	// Notes carries the source subject line for status-update candidates.
	Notes string `json:"notes,omitempty"`

	// SourceMessageID is the Message-ID header of the originating email.
	SourceMessageID string `json:"source_message_id"`

	// Exists is set by the deduplicator when the candidate matches a
	// stored application. The deduplicator is the only writer.
	Exists bool `json:"exists"`
}
