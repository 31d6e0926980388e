package api

import (
	"net/http"
	"strings"

	"github.com/beastmp/job-tracking/internal/model"
)

// credentialRequest is the write shape for credential endpoints. The
// password is accepted here, stored in the keyring, and never appears in
// any response.
type credentialRequest struct {
	Address             string   `json:"address"`
	Password            string   `json:"password"`
	Host                string   `json:"host"`
	Port                int      `json:"port"`
	UseTLS              *bool    `json:"use_tls"`
	RejectUnauthorized  *bool    `json:"reject_unauthorized"`
	SearchTimeframeDays int      `json:"search_timeframe_days"`
	SearchFolders       []string `json:"search_folders"`
}

func (s *Server) handleCreateCredential(w http.ResponseWriter, r *http.Request) {
	var req credentialRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Address = strings.TrimSpace(req.Address)
	req.Host = strings.TrimSpace(req.Host)
	if req.Address == "" || req.Host == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "address, host, and password are required")
		return
	}
	if req.Port == 0 {
		req.Port = 993
	}

	cred := model.EmailCredential{
		Address:             req.Address,
		Host:                req.Host,
		Port:                req.Port,
		UseTLS:              true,
		RejectUnauthorized:  true,
		SearchTimeframeDays: req.SearchTimeframeDays,
		SearchFolders:       req.SearchFolders,
	}
	if req.UseTLS != nil {
		cred.UseTLS = *req.UseTLS
	}
	if req.RejectUnauthorized != nil {
		cred.RejectUnauthorized = *req.RejectUnauthorized
	}

	if err := s.store.CreateCredential(r.Context(), &cred); err != nil {
		s.fail(w, err)
		return
	}

	if err := s.setPassword(cred.ID, req.Password); err != nil {
		// Roll back the metadata so a retry starts clean.
		_ = s.store.DeleteCredential(r.Context(), cred.ID)
		s.fail(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, cred)
}

func (s *Server) handleListCredentials(w http.ResponseWriter, r *http.Request) {
	creds, err := s.store.GetCredentials(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	if creds == nil {
		creds = []model.EmailCredential{}
	}
	writeJSON(w, http.StatusOK, creds)
}

func (s *Server) handleUpdateCredential(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	cred, err := s.store.GetCredentialByID(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}

	var req credentialRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if v := strings.TrimSpace(req.Address); v != "" {
		cred.Address = v
	}
	if v := strings.TrimSpace(req.Host); v != "" {
		cred.Host = v
	}
	if req.Port != 0 {
		cred.Port = req.Port
	}
	if req.UseTLS != nil {
		cred.UseTLS = *req.UseTLS
	}
	if req.RejectUnauthorized != nil {
		cred.RejectUnauthorized = *req.RejectUnauthorized
	}
	if req.SearchTimeframeDays != 0 {
		cred.SearchTimeframeDays = req.SearchTimeframeDays
	}
	if req.SearchFolders != nil {
		cred.SearchFolders = req.SearchFolders
	}

	if err := s.store.UpdateCredential(r.Context(), cred); err != nil {
		s.fail(w, err)
		return
	}

	// An empty password means unchanged.
	if req.Password != "" {
		if err := s.setPassword(cred.ID, req.Password); err != nil {
			s.fail(w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, cred)
}

func (s *Server) handleDeleteCredential(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := s.store.DeleteCredential(r.Context(), id); err != nil {
		s.fail(w, err)
		return
	}

	if err := s.deletePassword(id); err != nil {
		// The metadata is already gone; an orphaned keyring entry is
		// harmless but worth a log line.
		s.log.Warn().Err(err).Str("credential_id", id).
			Msg("removing keyring entry failed")
	}

	w.WriteHeader(http.StatusNoContent)
}
