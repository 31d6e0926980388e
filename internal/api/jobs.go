package api

import (
	"net/http"
	"strings"

	"github.com/beastmp/job-tracking/internal/model"
)

// mailRequest is the shared body of the search and sync endpoints.
type mailRequest struct {
	CredentialID string `json:"credential_id"`

	// IgnorePreviousImport forces a full re-scan of the configured
	// timeframe instead of resuming from the last import.
	IgnorePreviousImport bool `json:"ignore_previous_import"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req mailRequest
	if err := decode(r, &req); err != nil || req.CredentialID == "" {
		writeError(w, http.StatusBadRequest, "credential_id is required")
		return
	}

	jobID, err := s.engine.StartSearch(r.Context(), req.CredentialID, req.IgnorePreviousImport)
	if err != nil {
		s.fail(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var req mailRequest
	if err := decode(r, &req); err != nil || req.CredentialID == "" {
		writeError(w, http.StatusBadRequest, "credential_id is required")
		return
	}

	jobID, err := s.engine.StartSync(r.Context(), req.CredentialID, req.IgnorePreviousImport)
	if err != nil {
		s.fail(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CredentialID string                `json:"credential_id"`
		Items        []model.CandidateItem `json:"items"`
	}
	if err := decode(r, &req); err != nil || req.CredentialID == "" {
		writeError(w, http.StatusBadRequest, "credential_id is required")
		return
	}

	jobID, err := s.engine.StartImport(r.Context(), req.CredentialID, req.Items)
	if err != nil {
		s.fail(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

// handleFolders lists the selectable folders of a mailbox. It is
// synchronous and doubles as the connectivity probe for a credential.
func (s *Server) handleFolders(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CredentialID string `json:"credential_id"`
	}
	if err := decode(r, &req); err != nil || req.CredentialID == "" {
		writeError(w, http.StatusBadRequest, "credential_id is required")
		return
	}

	folders, err := s.engine.ListFolders(r.Context(), req.CredentialID)
	if err != nil {
		s.fail(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string][]string{"folders": folders})
}

func (s *Server) handleListJobs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.runner.ListActive())
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.runner.GetStatus(r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	if err := s.runner.Cancel(r.PathValue("id")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEnrichment(w http.ResponseWriter, _ *http.Request) {
	jobID := s.engine.StartEnrichment()
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

func (s *Server) handleEnrichURL(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := decode(r, &req); err != nil || strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	queued := s.engine.EnrichURL(req.URL)
	writeJSON(w, http.StatusOK, map[string]bool{"queued": queued})
}

func (s *Server) handleEnrichmentStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.EnrichmentStatus())
}
