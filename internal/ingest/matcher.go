// Package ingest resolves classified candidates against stored
// applications and imports the new ones.
package ingest

import (
	"strings"
	"time"

	"github.com/beastmp/job-tracking/internal/model"
)

// matchSet is the working set candidates are matched against: the stored
// applications at the start of a run plus any created during it, so a
// response can land on an application imported moments earlier in the
// same batch.
//
// The matching rule lives here and nowhere else. Tie-break order: an
// exact external job id wins; otherwise company and title compare
// case-insensitively and the candidate date must line up with the
// record's appliedAt. Application candidates must fall within the dedup
// window on either side. Status updates and responses only need to be
// no older than appliedAt minus the window, since an employer can reply
// months after the application.
type matchSet struct {
	records []*model.Application
	window  time.Duration
}

func newMatchSet(existing []model.Application, window time.Duration) *matchSet {
	records := make([]*model.Application, len(existing))
	for i := range existing {
		records[i] = &existing[i]
	}
	return &matchSet{records: records, window: window}
}

// match returns the first stored application the candidate corresponds
// to, or nil.
func (s *matchSet) match(item model.CandidateItem) *model.Application {
	if item.ExternalJobID != "" {
		for _, app := range s.records {
			if app.ExternalJobID != "" && app.ExternalJobID == item.ExternalJobID {
				return app
			}
		}
	}

	if item.Company == "" || item.JobTitle == "" {
		return nil
	}

	for _, app := range s.records {
		if !strings.EqualFold(app.Company, item.Company) {
			continue
		}
		if !strings.EqualFold(app.JobTitle, item.JobTitle) {
			continue
		}
		if s.dateMatches(item, app) {
			return app
		}
	}

	return nil
}

// add puts a freshly created application into the working set.
func (s *matchSet) add(app *model.Application) {
	s.records = append(s.records, app)
}

func (s *matchSet) dateMatches(item model.CandidateItem, app *model.Application) bool {
	if item.Type == model.CandidateApplication {
		diff := item.Date.Sub(app.AppliedAt)
		if diff < 0 {
			diff = -diff
		}
		return diff <= s.window
	}
	return !item.Date.Before(app.AppliedAt.Add(-s.window))
}
