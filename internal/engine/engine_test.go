package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/beastmp/job-tracking/internal/classify"
	"github.com/beastmp/job-tracking/internal/enrich"
	"github.com/beastmp/job-tracking/internal/ingest"
	"github.com/beastmp/job-tracking/internal/mailbox"
	"github.com/beastmp/job-tracking/internal/model"
	"github.com/beastmp/job-tracking/internal/runner"
	"github.com/beastmp/job-tracking/internal/store"
	"github.com/beastmp/job-tracking/tests/testutil"
)

// fakeScanner replays a fixed message list through the MessageScanner
// contract.
type fakeScanner struct {
	messages []mailbox.Message
	idx      int
	folders  int
	errs     map[string]string
}

func (f *fakeScanner) Scan() bool {
	if f.idx >= len(f.messages) {
		return false
	}
	f.idx++
	return true
}

func (f *fakeScanner) Message() mailbox.Message        { return f.messages[f.idx-1] }
func (f *fakeScanner) Err() error                      { return nil }
func (f *fakeScanner) FoldersScanned() int             { return f.folders }
func (f *fakeScanner) FolderErrors() map[string]string { return f.errs }
func (f *fakeScanner) Close() error                    { return nil }

type fakeMailbox struct {
	folders  []string
	messages []mailbox.Message
	scanErr  error
}

func (f *fakeMailbox) ListFolders(ctx context.Context) ([]string, error) {
	return f.folders, nil
}

func (f *fakeMailbox) Scan(
	ctx context.Context, since time.Time, folders []string,
) (MessageScanner, error) {
	if f.scanErr != nil {
		return nil, f.scanErr
	}
	return &fakeScanner{messages: f.messages, folders: len(folders)}, nil
}

type testEngine struct {
	engine  *Engine
	runner  *runner.Runner
	store   store.Store
	worker  *enrich.Worker
	mailbox *fakeMailbox
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()

	st := testutil.NewTestStore(t)
	rn := runner.New(time.Minute, zerolog.Nop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = rn.Stop(ctx)
	})

	cfg := model.EnrichmentConfig{
		RequestsPerMinute:      600,
		MaxConsecutiveFailures: 3,
		StandardDelayMs:        1,
		BackoffDelayMs:         100,
		RequestTimeoutSec:      5,
		MaxRedirects:           3,
	}
	worker := enrich.NewWorker(st, cfg, zerolog.Nop())

	importer := ingest.NewImporter(st, 3*24*time.Hour, zerolog.Nop())
	eng := New(st, rn, worker, importer, classify.NewRuleClassifier(), zerolog.Nop())

	fake := &fakeMailbox{folders: []string{"INBOX"}}
	eng.dialMailbox = func(model.EmailCredential, string) MailboxClient { return fake }
	eng.getPassword = func(string) (string, error) { return "hunter2", nil }

	return &testEngine{engine: eng, runner: rn, store: st, worker: worker, mailbox: fake}
}

func (te *testEngine) credential(t *testing.T, days int) *model.EmailCredential {
	t.Helper()

	cred := model.EmailCredential{
		Address:             "me@example.com",
		Host:                "imap.example.com",
		SearchTimeframeDays: days,
	}
	if err := te.store.CreateCredential(context.Background(), &cred); err != nil {
		t.Fatalf("create credential: %v", err)
	}
	return &cred
}

func (te *testEngine) waitJob(t *testing.T, id string) model.BackgroundJob {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := te.runner.GetStatus(id)
		if err != nil {
			t.Fatalf("get status: %v", err)
		}
		if job.Status.Terminal() {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("job never finished")
	return model.BackgroundJob{}
}

func message(subject, text string, date time.Time) mailbox.Message {
	return mailbox.Message{
		Folder:    "INBOX",
		Subject:   subject,
		From:      "Acme Careers",
		Date:      date,
		TextBody:  text,
		MessageID: "<" + subject + "@test>",
	}
}

// The mailbox scenario from one account: an application confirmation and,
// five days later, a rejection for the same position. One sync must
// produce one record with its response set.
func TestSyncImportsApplicationAndResponse(t *testing.T) {
	te := newTestEngine(t)
	cred := te.credential(t, 90)

	applied := time.Now().UTC().AddDate(0, 0, -20)
	te.mailbox.messages = []mailbox.Message{
		message(
			"Your application was sent to Acme",
			"Position: Engineer\nWe received your application.",
			applied,
		),
		message(
			"Your application to Acme",
			"We regret to inform you that we will not be moving forward "+
				"with your application for the Engineer position at Acme.",
			applied.AddDate(0, 0, 5),
		),
	}

	jobID, err := te.engine.StartSync(context.Background(), cred.ID, false)
	if err != nil {
		t.Fatalf("start sync: %v", err)
	}

	job := te.waitJob(t, jobID)
	if job.Status != model.JobCompleted {
		t.Fatalf("sync failed: %s", job.Error)
	}

	result, ok := job.Result.(*model.SyncResult)
	if !ok {
		t.Fatalf("unexpected result type %T", job.Result)
	}
	if result.Stats.Applications.Added != 1 {
		t.Fatalf("expected 1 application added, got %+v", result.Stats)
	}
	if result.Stats.Responses.Processed != 1 {
		t.Fatalf("expected 1 response processed, got %+v", result.Stats)
	}
	if result.Messages != 2 || result.FoldersScanned != 1 {
		t.Fatalf("unexpected scan counters: %+v", result)
	}

	apps, err := te.store.GetApplications(context.Background(), store.ApplicationFilter{})
	if err != nil {
		t.Fatalf("get applications: %v", err)
	}
	if len(apps) != 1 {
		t.Fatalf("expected 1 record, got %d", len(apps))
	}
	if apps[0].Response != model.ResponseRejected {
		t.Fatalf("expected Rejected, got %q", apps[0].Response)
	}
	if apps[0].RespondedAt == nil ||
		!apps[0].RespondedAt.Equal(applied.AddDate(0, 0, 5)) {
		t.Fatalf("unexpected respondedAt: %v", apps[0].RespondedAt)
	}

	// A sync advances the import watermark.
	after, err := te.store.GetCredentialByID(context.Background(), cred.ID)
	if err != nil {
		t.Fatalf("get credential: %v", err)
	}
	if after.LastImportAt == nil {
		t.Fatal("sync did not record lastImportAt")
	}
}

// Search resolves candidates but imports nothing and leaves the
// watermark untouched.
func TestSearchIsReadOnly(t *testing.T) {
	te := newTestEngine(t)
	cred := te.credential(t, 90)

	te.mailbox.messages = []mailbox.Message{
		message(
			"Your application was sent to Acme",
			"Position: Engineer",
			time.Now().UTC().AddDate(0, 0, -2),
		),
	}

	jobID, err := te.engine.StartSearch(context.Background(), cred.ID, false)
	if err != nil {
		t.Fatalf("start search: %v", err)
	}

	job := te.waitJob(t, jobID)
	if job.Status != model.JobCompleted {
		t.Fatalf("search failed: %s", job.Error)
	}

	result, ok := job.Result.(*model.SearchResult)
	if !ok {
		t.Fatalf("unexpected result type %T", job.Result)
	}
	if len(result.Candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(result.Candidates))
	}
	if result.Candidates[0].Exists {
		t.Fatal("candidate marked existing with an empty store")
	}

	apps, err := te.store.GetApplications(context.Background(), store.ApplicationFilter{})
	if err != nil {
		t.Fatalf("get applications: %v", err)
	}
	if len(apps) != 0 {
		t.Fatal("search must not import")
	}

	after, err := te.store.GetCredentialByID(context.Background(), cred.ID)
	if err != nil {
		t.Fatalf("get credential: %v", err)
	}
	if after.LastImportAt != nil {
		t.Fatal("search must not advance lastImportAt")
	}
}

func TestSyncConnectionErrorFailsJob(t *testing.T) {
	te := newTestEngine(t)
	cred := te.credential(t, 90)

	te.mailbox.scanErr = &mailbox.ConnectionError{
		Addr: "imap.example.com:993", Message: "authentication failed",
	}

	jobID, err := te.engine.StartSync(context.Background(), cred.ID, false)
	if err != nil {
		t.Fatalf("start sync: %v", err)
	}

	job := te.waitJob(t, jobID)
	if job.Status != model.JobFailed {
		t.Fatalf("expected failed job, got %s", job.Status)
	}
	if job.Error == "" {
		t.Fatal("expected the connection error on the job")
	}
}

func TestStartSyncUnknownCredential(t *testing.T) {
	te := newTestEngine(t)

	if _, err := te.engine.StartSync(context.Background(), "missing", false); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSinceDateWindow(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	lastImport := time.Date(2025, 2, 20, 0, 0, 0, 0, time.UTC)

	cred := model.EmailCredential{SearchTimeframeDays: 90}

	// No previous import: the whole timeframe.
	if got := sinceDate(cred, false, now); !got.Equal(now.AddDate(0, 0, -90)) {
		t.Fatalf("expected full timeframe, got %v", got)
	}

	// A recorded import inside the timeframe narrows the window.
	cred.LastImportAt = &lastImport
	if got := sinceDate(cred, false, now); !got.Equal(lastImport) {
		t.Fatalf("expected lastImportAt, got %v", got)
	}

	// ignorePreviousImport forces the full re-scan.
	if got := sinceDate(cred, true, now); !got.Equal(now.AddDate(0, 0, -90)) {
		t.Fatalf("expected full timeframe with ignore flag, got %v", got)
	}

	// An import older than the timeframe does not widen the window.
	old := now.AddDate(0, 0, -120)
	cred.LastImportAt = &old
	if got := sinceDate(cred, false, now); !got.Equal(now.AddDate(0, 0, -90)) {
		t.Fatalf("stale lastImportAt must not widen the window, got %v", got)
	}
}

func TestListFoldersEmptyMailbox(t *testing.T) {
	te := newTestEngine(t)
	cred := te.credential(t, 90)
	te.mailbox.folders = nil

	folders, err := te.engine.ListFolders(context.Background(), cred.ID)
	if err != nil {
		t.Fatalf("list folders: %v", err)
	}
	if folders == nil || len(folders) != 0 {
		t.Fatalf("expected empty slice, got %#v", folders)
	}
}

// Sync queues the fresh record for enrichment when it carries a posting
// URL; the count surfaces on the job result.
func TestSyncQueuesPendingEnrichment(t *testing.T) {
	te := newTestEngine(t)
	cred := te.credential(t, 90)

	te.mailbox.messages = []mailbox.Message{{
		Folder:    "INBOX",
		Subject:   "Your application was sent to Acme",
		From:      "LinkedIn",
		Date:      time.Now().UTC().AddDate(0, 0, -1),
		TextBody:  "Position: Engineer",
		HTMLBody:  `<a href="https://www.linkedin.com/jobs/view/4021868110/">View job</a>`,
		MessageID: "<app@test>",
	}}

	jobID, err := te.engine.StartSync(context.Background(), cred.ID, false)
	if err != nil {
		t.Fatalf("start sync: %v", err)
	}

	job := te.waitJob(t, jobID)
	if job.Status != model.JobCompleted {
		t.Fatalf("sync failed: %s", job.Error)
	}

	result := job.Result.(*model.SyncResult)
	if result.PendingEnrichments != 1 {
		t.Fatalf("expected 1 pending enrichment, got %d", result.PendingEnrichments)
	}
	// The worker was never started, so the item stays queued.
	if status := te.worker.Status(); status.QueueSize != 1 {
		t.Fatalf("expected queued item, got %+v", status)
	}
}

// Reconcile rebuilds the worker queue from pending records at startup.
func TestReconcileRequeuesPending(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	app := &model.Application{
		Company: "Acme", JobTitle: "Engineer",
		AppliedAt: time.Now().UTC().AddDate(0, 0, -5),
		Website:   "https://example.com/jobs/1",
	}
	if err := te.store.CreateApplication(ctx, app); err != nil {
		t.Fatalf("create application: %v", err)
	}

	if err := te.engine.Reconcile(ctx); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if status := te.worker.Status(); status.QueueSize != 1 {
		t.Fatalf("expected 1 reconciled item, got %+v", status)
	}
}
