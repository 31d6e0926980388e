package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/beastmp/job-tracking/internal/model"
	"github.com/beastmp/job-tracking/internal/store"
)

// Importer applies candidate items to the application store. It is safe
// for concurrent use; imports are serialized internally so two syncs
// running at once cannot double-import the same message.
type Importer struct {
	store  store.Store
	window time.Duration
	log    zerolog.Logger

	mu sync.Mutex
}

// NewImporter creates an importer with the given dedup window.
func NewImporter(st store.Store, window time.Duration, log zerolog.Logger) *Importer {
	return &Importer{store: st, window: window, log: log}
}

// Resolve marks each candidate that already matches a stored
// application. The input order is preserved; candidates are not
// modified beyond the Exists flag.
func (im *Importer) Resolve(
	ctx context.Context, candidates []model.CandidateItem,
) ([]model.CandidateItem, error) {
	existing, err := im.store.GetApplications(ctx, store.ApplicationFilter{})
	if err != nil {
		return nil, fmt.Errorf("loading applications for resolve: %w", err)
	}

	set := newMatchSet(existing, im.window)
	resolved := make([]model.CandidateItem, len(candidates))
	for i, item := range candidates {
		item.Exists = set.match(item) != nil
		resolved[i] = item
	}

	return resolved, nil
}

// Import applies candidates in order and reports per-type statistics.
// A candidate that fails to write is recorded in the stats and does not
// stop the rest of the batch; only a cancelled context ends the run
// early.
func (im *Importer) Import(
	ctx context.Context, candidates []model.CandidateItem,
) (*model.ImportStats, error) {
	im.mu.Lock()
	defer im.mu.Unlock()

	stats := &model.ImportStats{}

	existing, err := im.store.GetApplications(ctx, store.ApplicationFilter{})
	if err != nil {
		return stats, fmt.Errorf("loading applications for import: %w", err)
	}
	set := newMatchSet(existing, im.window)

	for _, item := range candidates {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		switch item.Type {
		case model.CandidateApplication:
			im.importApplication(ctx, set, item, stats)
		case model.CandidateStatusUpdate:
			im.importStatusUpdate(ctx, set, item, stats)
		case model.CandidateResponse:
			im.importResponse(ctx, set, item, stats)
		default:
			stats.Errors = append(stats.Errors, fmt.Sprintf(
				"unknown candidate type %q (message %s)",
				item.Type, item.SourceMessageID,
			))
		}
	}

	return stats, nil
}

func (im *Importer) importApplication(
	ctx context.Context,
	set *matchSet,
	item model.CandidateItem,
	stats *model.ImportStats,
) {
	if set.match(item) != nil {
		stats.Applications.Skipped++
		return
	}

	app := &model.Application{
		JobTitle:        item.JobTitle,
		Company:         item.Company,
		CompanyLocation: item.CompanyLocation,
		AppliedAt:       item.Date,
		Response:        model.ResponseNone,
		ExternalJobID:   item.ExternalJobID,
		Website:         item.Website,
	}

	if err := im.store.CreateApplication(ctx, app); err != nil {
		im.recordError(stats, item, err)
		return
	}

	set.add(app)
	stats.Applications.Added++
}

func (im *Importer) importStatusUpdate(
	ctx context.Context,
	set *matchSet,
	item model.CandidateItem,
	stats *model.ImportStats,
) {
	app := set.match(item)
	if app == nil {
		// No matching application is a no-op, not an error.
		stats.StatusUpdates.Skipped++
		return
	}

	check := model.StatusCheck{
		ApplicationID: app.ID,
		CheckedAt:     item.Date,
		Notes:         item.Notes,
	}
	if err := im.store.AddStatusCheck(ctx, check); err != nil {
		im.recordError(stats, item, err)
		return
	}

	stats.StatusUpdates.Processed++
}

func (im *Importer) importResponse(
	ctx context.Context,
	set *matchSet,
	item model.CandidateItem,
	stats *model.ImportStats,
) {
	app := set.match(item)
	if app == nil {
		stats.Responses.Skipped++
		return
	}

	// Older responses never overwrite newer state.
	if app.RespondedAt != nil && item.Date.Before(*app.RespondedAt) {
		stats.Responses.Skipped++
		return
	}

	if err := im.store.UpdateResponse(ctx, app.ID, item.ResponseValue, item.Date); err != nil {
		im.recordError(stats, item, err)
		return
	}

	respondedAt := item.Date
	app.Response = item.ResponseValue
	app.RespondedAt = &respondedAt
	stats.Responses.Processed++
}

func (im *Importer) recordError(
	stats *model.ImportStats, item model.CandidateItem, err error,
) {
	im.log.Warn().
		Err(err).
		Str("type", string(item.Type)).
		Str("company", item.Company).
		Str("job_title", item.JobTitle).
		Msg("import candidate failed")

	stats.Errors = append(stats.Errors, fmt.Sprintf(
		"%s %q at %q: %v", item.Type, item.JobTitle, item.Company, err,
	))
}
