package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/soyeahso/voicesquad/internal/auth"
	"github.com/soyeahso/voicesquad/internal/domain"
)

// maxBodyBytes caps REST request bodies.
const maxBodyBytes = 1 << 20

type apiError struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (s *Server) apiFail(w http.ResponseWriter, r *http.Request, err error) {
	status := httpStatus(err)
	if status >= http.StatusInternalServerError {
		s.log.Warn().Err(err).
			Str("requestId", traceFrom(r.Context()).ID).
			Str("path", r.URL.Path).
			Msg("api request failed")
	}
	writeJSON(w, status, apiError{Error: err.Error(), Code: errorCode(err)})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid body: " + err.Error(), Code: "invalid_params"})
		return false
	}
	return true
}

func (s *Server) apiMe(w http.ResponseWriter, r *http.Request) {
	sess := auth.FromContext(r.Context())
	writeJSON(w, http.StatusOK, sessionPayload{User: sess.User, ExpiresAt: sess.ExpiresAt})
}

func (s *Server) apiListAgents(w http.ResponseWriter, r *http.Request) {
	list, err := s.repo.ListAgents(r.Context())
	if err != nil {
		s.apiFail(w, r, err)
		return
	}
	if list == nil {
		list = []domain.Agent{}
	}
	writeJSON(w, http.StatusOK, AgentsChanged{Agents: list})
}

func (s *Server) apiCreateAgent(w http.ResponseWriter, r *http.Request) {
	var in domain.NewAgent
	if !decodeBody(w, r, &in) {
		return
	}
	a, err := s.repo.CreateAgent(r.Context(), in)
	if err != nil {
		s.apiFail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) apiUpdateAgent(w http.ResponseWriter, r *http.Request) {
	var patch domain.AgentPatch
	if !decodeBody(w, r, &patch) {
		return
	}
	a, err := s.repo.UpdateAgent(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		s.apiFail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) apiDeleteAgent(w http.ResponseWriter, r *http.Request) {
	if err := s.repo.DeleteAgent(r.Context(), r.PathValue("id")); err != nil {
		s.apiFail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type reorderBody struct {
	IDs []string `json:"ids"`
}

func (s *Server) apiReorderAgents(w http.ResponseWriter, r *http.Request) {
	var body reorderBody
	if !decodeBody(w, r, &body) {
		return
	}
	if err := s.repo.ReorderAgents(r.Context(), body.IDs); err != nil {
		s.apiFail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleIndex answers signed-in browsers with their session and the
// console endpoint.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	sess := auth.FromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"user":    sess.User,
		"console": "/ws",
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.gate.ClearCookie(w)
	w.WriteHeader(http.StatusNoContent)
}
