package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/beastmp/job-tracking/internal/classify"
	"github.com/beastmp/job-tracking/internal/engine"
	"github.com/beastmp/job-tracking/internal/enrich"
	"github.com/beastmp/job-tracking/internal/ingest"
	"github.com/beastmp/job-tracking/internal/model"
	"github.com/beastmp/job-tracking/internal/runner"
	"github.com/beastmp/job-tracking/internal/store"
	"github.com/beastmp/job-tracking/tests/testutil"
)

type testAPI struct {
	server    *httptest.Server
	store     store.Store
	passwords map[string]string
}

func newTestAPI(t *testing.T) *testAPI {
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
	eng := engine.New(st, rn, worker, importer, classify.NewRuleClassifier(), zerolog.Nop())

	api := New(eng, rn, st, zerolog.Nop())
	passwords := make(map[string]string)
	api.setPassword = func(id, password string) error {
		passwords[id] = password
		return nil
	}
	api.deletePassword = func(id string) error {
		delete(passwords, id)
		return nil
	}

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &testAPI{server: srv, store: st, passwords: passwords}
}

func (ta *testAPI) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req, err := http.NewRequest(method, ta.server.URL+path, &buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestCredentialLifecycle(t *testing.T) {
	ta := newTestAPI(t)

	resp := ta.do(t, http.MethodPost, "/api/credentials", map[string]any{
		"address":  "me@example.com",
		"host":     "imap.example.com",
		"password": "hunter2",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: status %d", resp.StatusCode)
	}

	var created struct {
		ID                  string   `json:"id"`
		Port                int      `json:"port"`
		SearchTimeframeDays int      `json:"search_timeframe_days"`
		SearchFolders       []string `json:"search_folders"`
	}
	decodeBody(t, resp, &created)
	if created.ID == "" {
		t.Fatal("expected an id")
	}
	if created.Port != 993 {
		t.Fatalf("expected default port, got %d", created.Port)
	}
	if len(created.SearchFolders) != 1 || created.SearchFolders[0] != "INBOX" {
		t.Fatalf("expected INBOX default, got %v", created.SearchFolders)
	}
	if ta.passwords[created.ID] != "hunter2" {
		t.Fatal("password not handed to the secret store")
	}

	// Update without a password leaves the secret unchanged.
	resp = ta.do(t, http.MethodPut, "/api/credentials/"+created.ID, map[string]any{
		"search_timeframe_days": 30,
		"search_folders":        []string{"INBOX", "Archive"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update: status %d", resp.StatusCode)
	}
	if ta.passwords[created.ID] != "hunter2" {
		t.Fatal("empty password must mean unchanged")
	}

	var listed []model.EmailCredential
	resp = ta.do(t, http.MethodGet, "/api/credentials", nil)
	decodeBody(t, resp, &listed)
	if len(listed) != 1 || listed[0].SearchTimeframeDays != 30 {
		t.Fatalf("unexpected list: %+v", listed)
	}

	resp = ta.do(t, http.MethodDelete, "/api/credentials/"+created.ID, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: status %d", resp.StatusCode)
	}
	if _, ok := ta.passwords[created.ID]; ok {
		t.Fatal("keyring entry survived credential deletion")
	}
}

// No credential response may ever carry a password field.
func TestPasswordIsNeverEchoed(t *testing.T) {
	ta := newTestAPI(t)

	resp := ta.do(t, http.MethodPost, "/api/credentials", map[string]any{
		"address":  "me@example.com",
		"host":     "imap.example.com",
		"password": "s3cret",
	})

	var raw bytes.Buffer
	if _, err := raw.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	if strings.Contains(raw.String(), "s3cret") ||
		strings.Contains(raw.String(), "password") {
		t.Fatalf("response leaks the password: %s", raw.String())
	}
}

func TestCreateCredentialValidation(t *testing.T) {
	ta := newTestAPI(t)

	resp := ta.do(t, http.MethodPost, "/api/credentials", map[string]any{
		"address": "me@example.com",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestGetJobNotFound(t *testing.T) {
	ta := newTestAPI(t)

	resp := ta.do(t, http.MethodGet, "/api/jobs/unknown", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestListJobsEmpty(t *testing.T) {
	ta := newTestAPI(t)

	resp := ta.do(t, http.MethodGet, "/api/jobs", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var jobs []model.BackgroundJob
	decodeBody(t, resp, &jobs)
	if len(jobs) != 0 {
		t.Fatalf("expected no jobs, got %d", len(jobs))
	}
}

func TestSyncRequiresCredential(t *testing.T) {
	ta := newTestAPI(t)

	resp := ta.do(t, http.MethodPost, "/api/email/sync", map[string]any{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing credential_id, got %d", resp.StatusCode)
	}

	resp = ta.do(t, http.MethodPost, "/api/email/sync", map[string]any{
		"credential_id": "unknown",
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown credential, got %d", resp.StatusCode)
	}
}

func TestEnrichURLEndpoint(t *testing.T) {
	ta := newTestAPI(t)

	resp := ta.do(t, http.MethodPost, "/api/enrichment/url", map[string]any{
		"url": "https://www.linkedin.com/jobs/view/4021868110/",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var queued struct {
		Queued bool `json:"queued"`
	}
	decodeBody(t, resp, &queued)
	if !queued.Queued {
		t.Fatal("expected queued=true")
	}

	resp = ta.do(t, http.MethodPost, "/api/enrichment/url", map[string]any{
		"url": "not a url",
	})
	decodeBody(t, resp, &queued)
	if queued.Queued {
		t.Fatal("expected queued=false for an invalid url")
	}

	status := ta.do(t, http.MethodGet, "/api/enrichment/status", nil)
	var st struct {
		IsProcessing bool `json:"is_processing"`
		QueueSize    int  `json:"queue_size"`
	}
	decodeBody(t, status, &st)
	if st.IsProcessing {
		t.Fatal("worker is not started, nothing should be processing")
	}
	if st.QueueSize != 1 {
		t.Fatalf("expected 1 queued item, got %d", st.QueueSize)
	}
}

func TestEnrichmentJob(t *testing.T) {
	ta := newTestAPI(t)

	resp := ta.do(t, http.MethodPost, "/api/enrichment", nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	var accepted struct {
		JobID string `json:"job_id"`
	}
	decodeBody(t, resp, &accepted)
	if accepted.JobID == "" {
		t.Fatal("expected a job id")
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp := ta.do(t, http.MethodGet, "/api/jobs/"+accepted.JobID, nil)
		var job model.BackgroundJob
		decodeBody(t, resp, &job)
		if job.Status.Terminal() {
			if job.Status != model.JobCompleted {
				t.Fatalf("enrichment job failed: %s", job.Error)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("enrichment job never finished")
}

func TestHealth(t *testing.T) {
	ta := newTestAPI(t)

	resp := ta.do(t, http.MethodGet, "/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
