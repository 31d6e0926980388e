// Package api exposes the engine's operations over HTTP for the UI
// layer to consume.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/beastmp/job-tracking/internal/credential"
	"github.com/beastmp/job-tracking/internal/engine"
	"github.com/beastmp/job-tracking/internal/mailbox"
	"github.com/beastmp/job-tracking/internal/runner"
	"github.com/beastmp/job-tracking/internal/store"
)

// Server wires the HTTP surface to the engine, runner, and store.
type Server struct {
	engine *engine.Engine
	runner *runner.Runner
	store  store.Store
	log    zerolog.Logger

	// setPassword and deletePassword default to the system keyring and
	// are swappable seams for tests.
	setPassword    func(credentialID, password string) error
	deletePassword func(credentialID string) error
}

// New creates an API server over the given collaborators.
func New(eng *engine.Engine, rn *runner.Runner, st store.Store, log zerolog.Logger) *Server {
	return &Server{
		engine: eng,
		runner: rn,
		store:  st,
		log:    log,
		setPassword: func(credentialID, password string) error {
			return credential.Set(credential.Key(credentialID), password)
		},
		deletePassword: func(credentialID string) error {
			return credential.Delete(credential.Key(credentialID))
		},
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/credentials", s.handleCreateCredential)
	mux.HandleFunc("GET /api/credentials", s.handleListCredentials)
	mux.HandleFunc("PUT /api/credentials/{id}", s.handleUpdateCredential)
	mux.HandleFunc("DELETE /api/credentials/{id}", s.handleDeleteCredential)

	mux.HandleFunc("POST /api/email/search", s.handleSearch)
	mux.HandleFunc("POST /api/email/sync", s.handleSync)
	mux.HandleFunc("POST /api/email/import", s.handleImport)
	mux.HandleFunc("POST /api/email/folders", s.handleFolders)

	mux.HandleFunc("GET /api/jobs", s.handleListJobs)
	mux.HandleFunc("GET /api/jobs/{id}", s.handleGetJob)
	mux.HandleFunc("DELETE /api/jobs/{id}", s.handleCancelJob)

	mux.HandleFunc("POST /api/enrichment", s.handleEnrichment)
	mux.HandleFunc("POST /api/enrichment/url", s.handleEnrichURL)
	mux.HandleFunc("GET /api/enrichment/status", s.handleEnrichmentStatus)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", promhttp.Handler())

	return s.accessLog(mux)
}

// accessLog logs one line per request.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// decode parses a JSON request body into dst.
func decode(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// fail maps engine and store errors onto HTTP statuses.
func (s *Server) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, runner.ErrJobNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case mailbox.IsConnectionError(err):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		s.log.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
