package enrich

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/beastmp/job-tracking/internal/model"
	"github.com/beastmp/job-tracking/internal/store"
	"github.com/beastmp/job-tracking/tests/testutil"
)

func testConfig() model.EnrichmentConfig {
	return model.EnrichmentConfig{
		RequestsPerMinute:      600,
		MaxConsecutiveFailures: 3,
		StandardDelayMs:        1,
		BackoffDelayMs:         500,
		RequestTimeoutSec:      5,
		MaxRedirects:           3,
	}
}

func startWorker(t *testing.T, st store.Store, cfg model.EnrichmentConfig) *Worker {
	t.Helper()

	w := NewWorker(st, cfg, zerolog.Nop())
	w.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = w.Stop(ctx)
	})
	return w
}

func seedApplication(t *testing.T, st store.Store, website string) *model.Application {
	t.Helper()

	app := &model.Application{
		Company:   "Acme",
		JobTitle:  "Engineer",
		AppliedAt: time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC),
		Website:   website,
	}
	if err := st.CreateApplication(context.Background(), app); err != nil {
		t.Fatalf("create application: %v", err)
	}
	return app
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition never satisfied")
}

func TestWorkerEnrichesQueuedRecord(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(jsonLDPage))
		}))
	defer srv.Close()

	st := testutil.NewTestStore(t)
	app := seedApplication(t, st, srv.URL)
	w := startWorker(t, st, testConfig())

	if !w.EnqueueRecord(app.ID, app.Website) {
		t.Fatal("enqueue rejected")
	}

	waitUntil(t, 5*time.Second, func() bool {
		got, err := st.GetApplicationByID(context.Background(), app.ID)
		return err == nil && got.Description != ""
	})

	got, err := st.GetApplicationByID(context.Background(), app.ID)
	if err != nil {
		t.Fatalf("get application: %v", err)
	}
	if got.EmploymentType != "Full-time" || got.LocationType != "Remote" {
		t.Fatalf("unexpected enrichment: %+v", got)
	}
	if got.PendingEnrichment() {
		t.Fatal("record still pending after enrichment")
	}

	status := w.Status()
	if status.QueueSize != 0 || status.IsProcessing {
		t.Fatalf("expected idle worker, got %+v", status)
	}
}

// A bare URL submitted by hand is matched against stored websites when
// it reaches the front of the queue.
func TestWorkerMatchesBareURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(jsonLDPage))
		}))
	defer srv.Close()

	st := testutil.NewTestStore(t)
	app := seedApplication(t, st, srv.URL)
	w := startWorker(t, st, testConfig())

	if !w.EnqueueURL(srv.URL) {
		t.Fatal("enqueue rejected")
	}

	waitUntil(t, 5*time.Second, func() bool {
		got, err := st.GetApplicationByID(context.Background(), app.ID)
		return err == nil && got.Description != ""
	})
}

func TestEnqueueURLValidation(t *testing.T) {
	st := testutil.NewTestStore(t)
	w := NewWorker(st, testConfig(), zerolog.Nop())

	if w.EnqueueURL("not a url") {
		t.Fatal("accepted a non-url")
	}
	if w.EnqueueURL("ftp://example.com/job") {
		t.Fatal("accepted a non-http scheme")
	}
	if !w.EnqueueURL("https://example.com/jobs/1") {
		t.Fatal("rejected a valid url")
	}

	// Re-queueing the same URL is a no-op, not a second entry.
	if !w.EnqueueURL("https://example.com/jobs/1") {
		t.Fatal("duplicate enqueue should still report queued")
	}
	if size := w.Status().QueueSize; size != 1 {
		t.Fatalf("expected queue size 1, got %d", size)
	}
}

// After maxConsecutiveFailures the worker pauses for the backoff window:
// nothing is fetched, the queue holds steady, and isProcessing is false.
func TestBreakerPausesConsumption(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			requests.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
		}))
	defer srv.Close()

	st := testutil.NewTestStore(t)
	appA := seedApplication(t, st, srv.URL+"/a")
	appB := seedApplication(t, st, srv.URL+"/b")

	cfg := testConfig()
	cfg.MaxConsecutiveFailures = 2
	w := startWorker(t, st, cfg)

	w.EnqueueRecord(appA.ID, appA.Website)
	w.EnqueueRecord(appB.ID, appB.Website)

	// Two failures trip the breaker; both items are requeued with one
	// attempt each.
	waitUntil(t, 5*time.Second, func() bool { return requests.Load() == 2 })

	// Mid-backoff: no new request starts and the queue holds both items.
	time.Sleep(150 * time.Millisecond)
	if n := requests.Load(); n != 2 {
		t.Fatalf("request started during backoff: %d", n)
	}
	status := w.Status()
	if status.IsProcessing {
		t.Fatal("isProcessing true while backing off")
	}
	if status.QueueSize != 2 {
		t.Fatalf("expected both items queued through backoff, got %d", status.QueueSize)
	}

	// After the backoff window the counter is reset and consumption
	// resumes; the second round of failures exhausts both items.
	waitUntil(t, 5*time.Second, func() bool { return requests.Load() == 4 })
	waitUntil(t, 5*time.Second, func() bool { return w.Status().QueueSize == 0 })
}

func TestStopAbortsInFlightFetch(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			<-release
		}))
	defer srv.Close()
	defer close(release)

	st := testutil.NewTestStore(t)
	app := seedApplication(t, st, srv.URL)
	w := startWorker(t, st, testConfig())

	w.EnqueueRecord(app.ID, app.Website)
	waitUntil(t, 5*time.Second, func() bool { return w.Status().IsProcessing })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := w.Stop(ctx); err != nil {
		t.Fatalf("stop did not abort the in-flight fetch: %v", err)
	}
}
