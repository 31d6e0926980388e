package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/beastmp/job-tracking/internal/metrics"
	"github.com/beastmp/job-tracking/internal/model"
	"github.com/beastmp/job-tracking/internal/runner"
)

// StartSearch creates an email_search job: scan, classify, and resolve
// candidates without importing anything. The credential must exist; all
// other failures surface on the job itself.
func (e *Engine) StartSearch(
	ctx context.Context, credentialID string, ignorePrevious bool,
) (string, error) {
	cred, err := e.store.GetCredentialByID(ctx, credentialID)
	if err != nil {
		return "", err
	}

	c := *cred
	jobID := e.runner.Create(model.JobTypeEmailSearch,
		func(ctx context.Context, rep *runner.Reporter) (any, error) {
			return e.runSearch(ctx, rep, c, ignorePrevious)
		})
	return jobID, nil
}

// StartSync creates an email_sync job: scan, classify, import, and hand
// pending enrichments to the worker.
func (e *Engine) StartSync(
	ctx context.Context, credentialID string, ignorePrevious bool,
) (string, error) {
	cred, err := e.store.GetCredentialByID(ctx, credentialID)
	if err != nil {
		return "", err
	}

	c := *cred
	jobID := e.runner.Create(model.JobTypeEmailSync,
		func(ctx context.Context, rep *runner.Reporter) (any, error) {
			return e.runSync(ctx, rep, c, ignorePrevious)
		})
	return jobID, nil
}

// StartImport creates an email_import job applying candidates a client
// previewed with search and chose to keep.
func (e *Engine) StartImport(
	ctx context.Context, credentialID string, items []model.CandidateItem,
) (string, error) {
	if _, err := e.store.GetCredentialByID(ctx, credentialID); err != nil {
		return "", err
	}

	jobID := e.runner.Create(model.JobTypeEmailImport,
		func(ctx context.Context, rep *runner.Reporter) (any, error) {
			return e.runImport(ctx, rep, items)
		})
	return jobID, nil
}

// StartEnrichment creates a job_enrichment job that queues every
// pending application for the worker. The job completes once the batch
// is queued; the worker drains it at its own pace.
func (e *Engine) StartEnrichment() string {
	return e.runner.Create(model.JobTypeEnrichment,
		func(ctx context.Context, rep *runner.Reporter) (any, error) {
			rep.Progress(20, "collecting pending applications")
			queued, err := e.queuePendingEnrichments(ctx)
			if err != nil {
				return nil, err
			}
			rep.Progress(90, "enrichment queued")
			return &model.EnrichmentResult{Queued: queued}, nil
		})
}

func (e *Engine) runSearch(
	ctx context.Context,
	rep *runner.Reporter,
	cred model.EmailCredential,
	ignorePrevious bool,
) (any, error) {
	out, err := e.scanAndClassify(ctx, rep, cred, ignorePrevious, 80)
	if err != nil {
		return nil, err
	}

	rep.Progress(85, "resolving candidates")
	resolved, err := e.importer.Resolve(ctx, out.candidates)
	if err != nil {
		return nil, err
	}
	if resolved == nil {
		resolved = []model.CandidateItem{}
	}

	return &model.SearchResult{
		Candidates:     resolved,
		FoldersScanned: out.foldersScanned,
		FolderErrors:   out.folderErrors,
		Messages:       out.messages,
	}, nil
}

func (e *Engine) runSync(
	ctx context.Context,
	rep *runner.Reporter,
	cred model.EmailCredential,
	ignorePrevious bool,
) (any, error) {
	syncStart := time.Now().UTC()

	out, err := e.scanAndClassify(ctx, rep, cred, ignorePrevious, 70)
	if err != nil {
		return nil, err
	}

	rep.Progress(75, "importing candidates")
	stats, err := e.importer.Import(ctx, out.candidates)
	if err != nil {
		return nil, err
	}
	recordImportMetrics(stats)

	// The window start, not the end: messages that arrived mid-sync are
	// picked up next time.
	if err := e.store.SetLastImport(ctx, cred.ID, syncStart); err != nil {
		e.log.Warn().Err(err).Str("credential_id", cred.ID).
			Msg("recording last import time failed")
	}

	rep.Progress(90, "queueing enrichments")
	pending, err := e.queuePendingEnrichments(ctx)
	if err != nil {
		e.log.Warn().Err(err).Msg("queueing enrichments failed")
		pending = 0
	}

	return &model.SyncResult{
		Stats:              *stats,
		PendingEnrichments: pending,
		FoldersScanned:     out.foldersScanned,
		FolderErrors:       out.folderErrors,
		Messages:           out.messages,
	}, nil
}

func (e *Engine) runImport(
	ctx context.Context, rep *runner.Reporter, items []model.CandidateItem,
) (any, error) {
	rep.Progress(10, "importing candidates")
	stats, err := e.importer.Import(ctx, items)
	if err != nil {
		return nil, err
	}
	recordImportMetrics(stats)

	rep.Progress(80, "queueing enrichments")
	pending, err := e.queuePendingEnrichments(ctx)
	if err != nil {
		e.log.Warn().Err(err).Msg("queueing enrichments failed")
		pending = 0
	}

	return &model.SyncResult{
		Stats:              *stats,
		PendingEnrichments: pending,
	}, nil
}

// scanOutcome is what one mailbox pass produces.
type scanOutcome struct {
	candidates     []model.CandidateItem
	messages       int
	foldersScanned int
	folderErrors   map[string]string
}

// scanAndClassify walks the credential's folders and classifies every
// message. Progress climbs from 10 to progressCap with folder
// completion, which is the only real total the lazy scan offers.
func (e *Engine) scanAndClassify(
	ctx context.Context,
	rep *runner.Reporter,
	cred model.EmailCredential,
	ignorePrevious bool,
	progressCap int,
) (*scanOutcome, error) {
	cred.Normalize()
	rep.Progress(5, "connecting to mailbox")

	password, err := e.getPassword(cred.ID)
	if err != nil {
		return nil, fmt.Errorf("loading mailbox password: %w", err)
	}

	since := sinceDate(cred, ignorePrevious, time.Now())
	client := e.dialMailbox(cred, password)

	sc, err := client.Scan(ctx, since, cred.SearchFolders)
	if err != nil {
		return nil, err
	}
	defer sc.Close()

	out := &scanOutcome{}
	totalFolders := len(cred.SearchFolders)
	for sc.Scan() {
		msg := sc.Message()
		out.messages++

		if item := e.classifier.Classify(msg); item != nil {
			out.candidates = append(out.candidates, *item)
		}

		progress := 10
		if totalFolders > 0 {
			progress += (progressCap - 10) * sc.FoldersScanned() / totalFolders
		}
		rep.Progress(progress, fmt.Sprintf(
			"scanning folders (%d messages examined)", out.messages,
		))
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	out.foldersScanned = sc.FoldersScanned()
	out.folderErrors = sc.FolderErrors()
	return out, nil
}

func recordImportMetrics(stats *model.ImportStats) {
	metrics.CandidatesImported.
		WithLabelValues(string(model.CandidateApplication)).
		Add(float64(stats.Applications.Added))
	metrics.CandidatesImported.
		WithLabelValues(string(model.CandidateStatusUpdate)).
		Add(float64(stats.StatusUpdates.Processed))
	metrics.CandidatesImported.
		WithLabelValues(string(model.CandidateResponse)).
		Add(float64(stats.Responses.Processed))
}
