package model

import "time"

// Response status vocabulary for a tracked application. ResponseNone is the
// default until a response email is imported or the user records one manually.
const (
	ResponseNone       = "No Response"
	ResponseRejected   = "Rejected"
	ResponseInterview  = "Interview"
	ResponseAssessment = "Assessment"
	ResponseOffer      = "Offer"
	ResponseWithdrawn  = "Withdrawn"
)

// Application is a single tracked job application. It is created by manual
// entry or by the email ingestion engine, and later mutated by status
// updates, responses found in mail, or page enrichment.
type Application struct {
	// ID is the internal unique identifier for this application.
	ID string `json:"id" db:"id"`

	// JobTitle is the position applied for.
	JobTitle string `json:"job_title" db:"job_title"`

	// Company is the employer name as extracted or entered.
	Company string `json:"company" db:"company"`

	// CompanyLocation is the free-form location string, when known.
	CompanyLocation string `json:"company_location" db:"company_location"`

	// AppliedAt is when the application was submitted.
	AppliedAt time.Time `json:"applied_at" db:"applied_at"`

	// RespondedAt is when the employer last responded, if ever.
	RespondedAt *time.Time `json:"responded_at" db:"responded_at"`

	// Response is the current response status (use Response* constants).
	Response string `json:"response" db:"response"`

	// ExternalJobID is the posting's identifier on the source job board.
	ExternalJobID string `json:"external_job_id" db:"external_job_id"`

	// Website is the URL of the job posting, when known. A non-empty
	// website with an empty Description marks the record as pending
	// enrichment.
	Website string `json:"website" db:"website"`

	// Enrichment fields, filled by the enrichment worker.
	Description    string `json:"description" db:"description"`
	Wages          string `json:"wages" db:"wages"`
	EmploymentType string `json:"employment_type" db:"employment_type"`
	LocationType   string `json:"location_type" db:"location_type"`

	// StatusChecks is the ordered history of status-update events,
	// oldest first. Populated by join queries.
	StatusChecks []StatusCheck `json:"status_checks,omitempty" db:"-"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// PendingEnrichment reports whether this record still needs page enrichment.
func (a *Application) PendingEnrichment() bool {
	return a.Website != "" && a.Description == ""
}

// StatusCheck is one "your application is being reviewed"-style event
// attached to an application.
type StatusCheck struct {
	ID            string    `json:"id" db:"id"`
	ApplicationID string    `json:"application_id" db:"application_id"`
	CheckedAt     time.Time `json:"checked_at" db:"checked_at"`
	Notes         string    `json:"notes" db:"notes"`
}
