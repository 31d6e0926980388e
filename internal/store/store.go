package store

import (
	"context"
	"errors"
	"time"

	"github.com/beastmp/job-tracking/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ApplicationFilter controls filtering and pagination for application queries.
type ApplicationFilter struct {
	Company  *string
	Response *string
	Limit    int
	Offset   int
}

// Enrichment carries the scraped page fields written back onto a record.
type Enrichment struct {
	Description    string
	Wages          string
	EmploymentType string
	LocationType   string
}

// Store defines the persistence interface for applications, their status
// history, and email credential configurations.
type Store interface {
	// === Applications ===

	CreateApplication(ctx context.Context, app *model.Application) error
	UpdateApplication(ctx context.Context, app *model.Application) error
	GetApplicationByID(ctx context.Context, id string) (*model.Application, error)
	GetApplications(ctx context.Context, opts ApplicationFilter) ([]model.Application, error)
	DeleteApplication(ctx context.Context, id string) error

	// UpdateResponse sets the response status and timestamp for a record.
	UpdateResponse(ctx context.Context, id, response string, respondedAt time.Time) error

	// UpdateEnrichment writes the scraped page fields onto a record.
	UpdateEnrichment(ctx context.Context, id string, e Enrichment) error

	// ListPendingEnrichment returns applications that carry a website
	// but no description yet, oldest first.
	ListPendingEnrichment(ctx context.Context) ([]model.Application, error)

	// === Status checks ===

	AddStatusCheck(ctx context.Context, check model.StatusCheck) error
	GetStatusChecks(ctx context.Context, applicationID string) ([]model.StatusCheck, error)

	// === Email credentials ===

	CreateCredential(ctx context.Context, cred *model.EmailCredential) error
	UpdateCredential(ctx context.Context, cred *model.EmailCredential) error
	GetCredentialByID(ctx context.Context, id string) (*model.EmailCredential, error)
	GetCredentials(ctx context.Context) ([]model.EmailCredential, error)
	DeleteCredential(ctx context.Context, id string) error
	SetLastImport(ctx context.Context, id string, at time.Time) error

	Close() error
}
