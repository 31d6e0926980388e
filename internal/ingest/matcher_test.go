package ingest

import (
	"testing"
	"time"

	"github.com/beastmp/job-tracking/internal/model"
)

func TestExternalIDWinsOverNameMatch(t *testing.T) {
	applied := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	byName := model.Application{
		ID: "name", Company: "Acme", JobTitle: "Engineer", AppliedAt: applied,
	}
	byID := model.Application{
		ID: "ext", Company: "Globex", JobTitle: "Analyst",
		AppliedAt: applied, ExternalJobID: "4021868110",
	}

	set := newMatchSet([]model.Application{byName, byID}, 3*24*time.Hour)

	got := set.match(model.CandidateItem{
		Type:          model.CandidateApplication,
		Company:       "Acme",
		JobTitle:      "Engineer",
		Date:          applied,
		ExternalJobID: "4021868110",
	})
	if got == nil || got.ID != "ext" {
		t.Fatalf("external id should win the tie-break, got %+v", got)
	}
}

func TestApplicationWindowIsTwoSided(t *testing.T) {
	applied := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	set := newMatchSet([]model.Application{
		{ID: "a", Company: "Acme", JobTitle: "Engineer", AppliedAt: applied},
	}, 3*24*time.Hour)

	cases := []struct {
		name string
		date time.Time
		want bool
	}{
		{"same day", applied, true},
		{"three days later", applied.AddDate(0, 0, 3), true},
		{"three days earlier", applied.AddDate(0, 0, -3), true},
		{"four days later", applied.AddDate(0, 0, 4), false},
		{"four days earlier", applied.AddDate(0, 0, -4), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := set.match(model.CandidateItem{
				Type:     model.CandidateApplication,
				Company:  "acme",
				JobTitle: "engineer",
				Date:     tc.date,
			})
			if (got != nil) != tc.want {
				t.Fatalf("match=%v, want %v", got != nil, tc.want)
			}
		})
	}
}

// A response can arrive long after the application; only mail predating
// the application (beyond the window) is rejected.
func TestResponseWindowIsLowerBoundOnly(t *testing.T) {
	applied := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	set := newMatchSet([]model.Application{
		{ID: "a", Company: "Acme", JobTitle: "Engineer", AppliedAt: applied},
	}, 3*24*time.Hour)

	late := set.match(model.CandidateItem{
		Type:     model.CandidateResponse,
		Company:  "Acme",
		JobTitle: "Engineer",
		Date:     applied.AddDate(0, 2, 0),
	})
	if late == nil {
		t.Fatal("response two months after applying should match")
	}

	early := set.match(model.CandidateItem{
		Type:     model.CandidateResponse,
		Company:  "Acme",
		JobTitle: "Engineer",
		Date:     applied.AddDate(0, 0, -10),
	})
	if early != nil {
		t.Fatal("response predating the application should not match")
	}
}

func TestMatchRequiresCompanyAndTitle(t *testing.T) {
	set := newMatchSet([]model.Application{
		{ID: "a", Company: "Acme", JobTitle: "Engineer",
			AppliedAt: time.Now().UTC()},
	}, 3*24*time.Hour)

	if got := set.match(model.CandidateItem{
		Type: model.CandidateResponse, Company: "Acme", Date: time.Now().UTC(),
	}); got != nil {
		t.Fatal("candidate without a title must not match")
	}
}

// Records created mid-batch become matchable for later candidates.
func TestAddExtendsWorkingSet(t *testing.T) {
	set := newMatchSet(nil, 3*24*time.Hour)
	applied := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)

	item := model.CandidateItem{
		Type: model.CandidateResponse, Company: "Acme", JobTitle: "Engineer",
		Date: applied.AddDate(0, 0, 5),
	}
	if set.match(item) != nil {
		t.Fatal("empty set should not match")
	}

	set.add(&model.Application{
		ID: "new", Company: "Acme", JobTitle: "Engineer", AppliedAt: applied,
	})
	if got := set.match(item); got == nil || got.ID != "new" {
		t.Fatal("freshly added record should match")
	}
}
