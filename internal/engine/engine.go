// Package engine wires the mailbox, classifier, importer, job runner,
// and enrichment worker into the operations the API exposes.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/beastmp/job-tracking/internal/classify"
	"github.com/beastmp/job-tracking/internal/credential"
	"github.com/beastmp/job-tracking/internal/enrich"
	"github.com/beastmp/job-tracking/internal/ingest"
	"github.com/beastmp/job-tracking/internal/mailbox"
	"github.com/beastmp/job-tracking/internal/model"
	"github.com/beastmp/job-tracking/internal/runner"
	"github.com/beastmp/job-tracking/internal/store"
)

// MessageScanner is the iterator a mailbox scan yields. Satisfied by
// *mailbox.Scanner.
type MessageScanner interface {
	Scan() bool
	Message() mailbox.Message
	Err() error
	FoldersScanned() int
	FolderErrors() map[string]string
	Close() error
}

// MailboxClient is the slice of the mailbox client the engine uses.
type MailboxClient interface {
	ListFolders(ctx context.Context) ([]string, error)
	Scan(ctx context.Context, since time.Time, folders []string) (MessageScanner, error)
}

// Engine drives the email ingestion and enrichment operations.
type Engine struct {
	store      store.Store
	runner     *runner.Runner
	worker     *enrich.Worker
	importer   *ingest.Importer
	classifier classify.Classifier
	log        zerolog.Logger

	// dialMailbox and getPassword are swappable seams for tests.
	dialMailbox func(cred model.EmailCredential, password string) MailboxClient
	getPassword func(credentialID string) (string, error)
}

// New creates an engine over the given collaborators.
func New(
	st store.Store,
	rn *runner.Runner,
	worker *enrich.Worker,
	importer *ingest.Importer,
	classifier classify.Classifier,
	log zerolog.Logger,
) *Engine {
	return &Engine{
		store:      st,
		runner:     rn,
		worker:     worker,
		importer:   importer,
		classifier: classifier,
		log:        log,
		dialMailbox: func(cred model.EmailCredential, password string) MailboxClient {
			return imapMailbox{client: mailbox.NewClient(cred, password)}
		},
		getPassword: func(credentialID string) (string, error) {
			return credential.Get(credential.Key(credentialID))
		},
	}
}

// imapMailbox adapts mailbox.Client to the MailboxClient interface.
type imapMailbox struct {
	client *mailbox.Client
}

func (m imapMailbox) ListFolders(ctx context.Context) ([]string, error) {
	return m.client.ListFolders(ctx)
}

func (m imapMailbox) Scan(
	ctx context.Context, since time.Time, folders []string,
) (MessageScanner, error) {
	sc, err := m.client.Scan(ctx, since, folders)
	if err != nil {
		return nil, err
	}
	return sc, nil
}

// ListFolders connects to the credential's mailbox and returns its
// selectable folders. Zero folders is a valid answer, not an error.
func (e *Engine) ListFolders(ctx context.Context, credentialID string) ([]string, error) {
	cred, err := e.store.GetCredentialByID(ctx, credentialID)
	if err != nil {
		return nil, err
	}

	password, err := e.getPassword(cred.ID)
	if err != nil {
		return nil, fmt.Errorf("loading mailbox password: %w", err)
	}

	folders, err := e.dialMailbox(*cred, password).ListFolders(ctx)
	if err != nil {
		return nil, err
	}
	if folders == nil {
		folders = []string{}
	}
	return folders, nil
}

// EnrichURL hands a single posting URL to the enrichment worker.
func (e *Engine) EnrichURL(url string) bool {
	return e.worker.EnqueueURL(url)
}

// EnrichmentStatus reports the enrichment worker's state.
func (e *Engine) EnrichmentStatus() enrich.Status {
	return e.worker.Status()
}

// Reconcile rebuilds the enrichment queue from records still pending
// enrichment. The queue is not persisted, so this runs once at startup.
func (e *Engine) Reconcile(ctx context.Context) error {
	queued, err := e.queuePendingEnrichments(ctx)
	if err != nil {
		return err
	}
	if queued > 0 {
		e.log.Info().Int("count", queued).Msg("requeued pending enrichments")
	}
	return nil
}

// queuePendingEnrichments enqueues every application that has a website
// but no description yet, and returns how many are pending.
func (e *Engine) queuePendingEnrichments(ctx context.Context) (int, error) {
	pending, err := e.store.ListPendingEnrichment(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading pending enrichments: %w", err)
	}
	for i := range pending {
		e.worker.EnqueueRecord(pending[i].ID, pending[i].Website)
	}
	return len(pending), nil
}

// sinceDate computes the scan window start: the configured timeframe,
// advanced to the last import when one is recorded and not ignored.
func sinceDate(cred model.EmailCredential, ignorePrevious bool, now time.Time) time.Time {
	since := now.AddDate(0, 0, -cred.SearchTimeframeDays)
	if !ignorePrevious && cred.LastImportAt != nil && cred.LastImportAt.After(since) {
		since = *cred.LastImportAt
	}
	return since
}
