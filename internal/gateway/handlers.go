package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/soyeahso/voicesquad/internal/agents"
	"github.com/soyeahso/voicesquad/internal/board"
	"github.com/soyeahso/voicesquad/internal/voice"
)

// HealthResponse is returned by health endpoints. The public HTTP endpoint
// only populates Status; the authenticated RPC handler populates all fields.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Clients int    `json:"clients,omitempty"`
	Users   int    `json:"users,omitempty"`
	Uptime  int64  `json:"uptimeSeconds,omitempty"`
}

// handleHealth returns the server health status. Only status is exposed
// publicly; detailed info is available via the authenticated RPC health method.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// handleNotFound returns a 404 for unknown routes.
func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "not found",
		"path":  r.URL.Path,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// RequestHandler processes an incoming RPC request frame from a console.
type RequestHandler func(ctx *RequestContext)

// RequestContext carries everything a handler needs.
type RequestContext struct {
	Client  *Client
	Console *Console
	Frame   Frame
	Server  *Server
}

// Respond sends a success response.
func (rc *RequestContext) Respond(payload any) {
	if err := rc.Client.Respond(rc.Frame.ID, payload); err != nil {
		rc.Server.log.Warn().Err(err).Str("method", rc.Frame.Method).Msg("failed to send response")
	}
}

// RespondError sends an error response.
func (rc *RequestContext) RespondError(code, message string) {
	rc.Client.RespondError(rc.Frame.ID, ErrorShape{
		Code:    code,
		Message: message,
	})
}

// Fail answers with the error shape matching err.
func (rc *RequestContext) Fail(err error) {
	rc.Client.RespondError(rc.Frame.ID, errorShape(err))
}

// Params unmarshals the request params into target. Absent params leave
// target untouched.
func (rc *RequestContext) Params(target any) error {
	if err := rc.Frame.decodeParams(target); err != nil && !errors.Is(err, errNoParams) {
		return err
	}
	return nil
}

func errorShape(err error) ErrorShape {
	code := errorCode(err)
	return ErrorShape{
		Code:      code,
		Message:   err.Error(),
		Retryable: code == "persistence" || code == "unavailable",
	}
}

// errorCode classifies err for error frames.
func errorCode(err error) string {
	switch {
	case errors.Is(err, agents.ErrValidation):
		return "validation"
	case errors.Is(err, agents.ErrNotFound), errors.Is(err, board.ErrUnknownAgent):
		return "not_found"
	case errors.Is(err, board.ErrOutOfRange):
		return "invalid_params"
	case errors.Is(err, agents.ErrPersistence):
		return "persistence"
	case errors.Is(err, voice.ErrBusy):
		return "busy"
	case errors.Is(err, voice.ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, voice.ErrUnavailable):
		return "unavailable"
	case errors.Is(err, voice.ErrClosed):
		return "closed"
	default:
		return "internal"
	}
}

// httpStatus maps repository errors onto REST status codes.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, agents.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, agents.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, agents.ErrPersistence):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
