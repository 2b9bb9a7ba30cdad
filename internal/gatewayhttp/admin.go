package gatewayhttp

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/kirogate/kirogate/internal/credentials"
	"github.com/kirogate/kirogate/internal/gatewayerr"
)

func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, gatewayerr.NewInvalidRequest("invalid credential id %q", raw)
	}
	return id, nil
}

func (s *Server) handleAdminList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"credentials": s.admin.ListCredentials(),
	})
}

type addCredentialRequest struct {
	RefreshToken     string                 `json:"refresh_token"`
	AuthMethod       credentials.AuthMethod `json:"auth_method"`
	OIDCClientID     string                 `json:"oidc_client_id"`
	OIDCClientSecret string                 `json:"oidc_client_secret"`
	Region           string                 `json:"region"`
	MachineID        string                 `json:"machine_id"`
	Priority         uint32                 `json:"priority"`
}

func (s *Server) handleAdminAdd(w http.ResponseWriter, r *http.Request) {
	var req addCredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, gatewayerr.NewInvalidRequest("malformed JSON body: %v", err))
		return
	}

	id, err := s.admin.AddCredential(credentials.Credential{
		RefreshToken:     req.RefreshToken,
		AuthMethod:       req.AuthMethod,
		OIDCClientID:     req.OIDCClientID,
		OIDCClientSecret: req.OIDCClientSecret,
		Region:           req.Region,
		MachineID:        req.MachineID,
		Priority:         req.Priority,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"id": id})
}

func (s *Server) handleAdminDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.admin.DeleteCredential(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

type setDisabledRequest struct {
	Disabled bool `json:"disabled"`
}

func (s *Server) handleAdminSetDisabled(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req setDisabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, gatewayerr.NewInvalidRequest("malformed JSON body: %v", err))
		return
	}
	if err := s.admin.SetDisabled(id, req.Disabled); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type setPriorityRequest struct {
	Priority uint32 `json:"priority"`
}

func (s *Server) handleAdminSetPriority(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req setPriorityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, gatewayerr.NewInvalidRequest("malformed JSON body: %v", err))
		return
	}
	if err := s.admin.SetPriority(id, req.Priority); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleAdminReset(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.admin.ResetAndEnable(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleAdminRefresh(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.admin.RefreshToken(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleAdminBalance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	balance, err := s.admin.GetBalance(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

type batchImportRequest struct {
	Tokens      []string `json:"tokens"`
	SkipInvalid bool     `json:"skip_invalid"`
}

func (s *Server) handleAdminBatchImport(w http.ResponseWriter, r *http.Request) {
	var req batchImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, gatewayerr.NewInvalidRequest("malformed JSON body: %v", err))
		return
	}

	summary, err := s.admin.BatchImport(r.Context(), req.Tokens, req.SkipInvalid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
