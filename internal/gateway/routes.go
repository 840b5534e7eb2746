package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/soyeahso/voicesquad/internal/auth"
	"github.com/soyeahso/voicesquad/internal/board"
	"github.com/soyeahso/voicesquad/internal/panel"
)

// rpcTimeout bounds repository work done on the read loop.
const rpcTimeout = 30 * time.Second

// publicMethods can be called on a signed-out console.
var publicMethods = map[string]bool{
	"health":       true,
	"auth.whoami":  true,
	"auth.refresh": true,
}

// registerHTTPRoutes sets up all HTTP routes on the server mux.
func (s *Server) registerHTTPRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	api := func(h http.HandlerFunc) http.Handler { return s.gate.RequireAPI(signedIn(h)) }
	mux.Handle("GET /api/me", api(s.apiMe))
	mux.Handle("GET /api/agents", api(s.apiListAgents))
	mux.Handle("POST /api/agents", api(s.apiCreateAgent))
	mux.Handle("PATCH /api/agents/{id}", api(s.apiUpdateAgent))
	mux.Handle("DELETE /api/agents/{id}", api(s.apiDeleteAgent))
	mux.Handle("PUT /api/agents/order", api(s.apiReorderAgents))

	if s.oauth != nil {
		mux.HandleFunc("GET /auth/login", s.oauth.Login)
		mux.HandleFunc("GET /auth/callback", s.oauth.Callback)
	}
	mux.HandleFunc("POST /auth/logout", s.handleLogout)
	mux.Handle("GET /{$}", s.gate.RequireBrowser(http.HandlerFunc(s.handleIndex)))

	// Catch-all for unknown routes
	mux.HandleFunc("/", handleNotFound)
}

// registerRPCHandlers sets up all JSON-RPC method handlers.
func (s *Server) registerRPCHandlers() {
	s.Handle("health", s.rpcHealth)

	s.Handle("auth.whoami", rpcWhoami)
	s.Handle("auth.refresh", s.rpcAuthRefresh)
	s.Handle("auth.signout", rpcSignout)

	s.Handle("agents.list", rpcAgentsList)
	s.Handle("agents.reload", rpcAgentsReload)
	s.Handle("agents.move", rpcAgentsMove)
	s.Handle("agents.hide", rpcAgentsHide)

	s.Handle("panel.state", rpcPanelState)
	s.Handle("panel.draft", rpcPanelDraft)
	s.Handle("panel.submit", rpcPanelSubmit)
	s.Handle("panel.edit", rpcPanelEdit)
	s.Handle("panel.cancel", rpcPanelCancel)
	s.Handle("panel.remove", rpcPanelRemove)

	s.Handle("voice.connect", rpcVoiceConnect)
	s.Handle("voice.disconnect", rpcVoiceDisconnect)
	s.Handle("voice.state", rpcVoiceState)
	s.Handle("microphone.result", rpcMicrophoneResult)
}

func rpcContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), rpcTimeout)
}

type idParams struct {
	ID string `json:"id"`
}

// idParam decodes {id} and answers invalid_params when it is missing.
func (rc *RequestContext) idParam() (string, bool) {
	var p idParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return "", false
	}
	if p.ID == "" {
		rc.RespondError("invalid_params", "id is required")
		return "", false
	}
	return p.ID, true
}

func (s *Server) rpcHealth(rc *RequestContext) {
	rc.Respond(HealthResponse{
		Status:  "ok",
		Version: s.version,
		Clients: s.clients.Count(),
		Users:   len(s.clients.SignedIn()),
		Uptime:  int64(s.uptime() / time.Second),
	})
}

// Auth

type sessionPayload struct {
	User      auth.User `json:"user"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func rpcWhoami(rc *RequestContext) {
	sess := rc.Console.Session()
	if sess == nil {
		rc.RespondError("unauthorized", "signed out")
		return
	}
	rc.Respond(sessionPayload{User: sess.User, ExpiresAt: sess.ExpiresAt})
}

type refreshParams struct {
	Token string `json:"token"`
}

func (s *Server) rpcAuthRefresh(rc *RequestContext) {
	var p refreshParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	if p.Token == "" {
		rc.RespondError("invalid_params", "token is required")
		return
	}
	sess, err := s.verifier.Verify(p.Token)
	if err != nil {
		rc.RespondError("unauthorized", err.Error())
		return
	}
	rc.Console.SetSession(sess)
	rc.Respond(sessionPayload{User: sess.User, ExpiresAt: sess.ExpiresAt})
}

func rpcSignout(rc *RequestContext) {
	rc.Console.SetSession(nil)
	rc.Respond(struct{}{})
}

// Agents

func rpcAgentsList(rc *RequestContext) {
	rc.Respond(AgentsChanged{Agents: rc.Console.board.Visible()})
}

func rpcAgentsReload(rc *RequestContext) {
	ctx, cancel := rpcContext()
	defer cancel()
	if err := rc.Console.board.Refresh(ctx); err != nil {
		rc.Fail(err)
		return
	}
	rc.Respond(AgentsChanged{Agents: rc.Console.board.Visible()})
}

// moveParams is either a drag-end pair of ids or a pair of positions in
// the visible list.
type moveParams struct {
	ActiveID string `json:"activeId"`
	OverID   string `json:"overId"`
	From     *int   `json:"from"`
	To       *int   `json:"to"`
}

func rpcAgentsMove(rc *RequestContext) {
	var p moveParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}

	active, over := p.ActiveID, p.OverID
	if active == "" {
		if p.From == nil || p.To == nil {
			rc.RespondError("invalid_params", "activeId/overId or from/to is required")
			return
		}
		visible := rc.Console.board.Visible()
		from, to := *p.From, *p.To
		if from < 0 || from >= len(visible) || to < 0 || to >= len(visible) {
			rc.Fail(fmt.Errorf("move %d -> %d of %d: %w", from, to, len(visible), board.ErrOutOfRange))
			return
		}
		active, over = visible[from].ID, visible[to].ID
	}

	ctx, cancel := rpcContext()
	defer cancel()
	if err := rc.Console.board.MoveByID(ctx, active, over); err != nil {
		rc.Fail(err)
		return
	}
	rc.Respond(AgentsChanged{Agents: rc.Console.board.Visible()})
}

func rpcAgentsHide(rc *RequestContext) {
	id, ok := rc.idParam()
	if !ok {
		return
	}
	if !rc.Console.board.Hide(id) {
		rc.Fail(fmt.Errorf("%s: %w", id, board.ErrUnknownAgent))
		return
	}
	rc.Respond(AgentsChanged{Agents: rc.Console.board.Visible()})
}

// Panel

func rpcPanelState(rc *RequestContext) {
	rc.Respond(rc.Console.panel.State())
}

func rpcPanelDraft(rc *RequestContext) {
	var d panel.Draft
	if err := rc.Params(&d); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	rc.Console.panel.SetDraft(d)
	rc.Respond(rc.Console.panel.State())
}

func rpcPanelSubmit(rc *RequestContext) {
	var d *panel.Draft
	if err := rc.Params(&d); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	if d != nil {
		rc.Console.panel.SetDraft(*d)
	}

	ctx, cancel := rpcContext()
	defer cancel()
	saved, err := rc.Console.panel.Submit(ctx)
	if err != nil {
		rc.Fail(err)
		return
	}
	rc.Respond(saved)
}

func rpcPanelEdit(rc *RequestContext) {
	id, ok := rc.idParam()
	if !ok {
		return
	}
	a, found := rc.Console.board.Get(id)
	if !found {
		rc.Fail(fmt.Errorf("%s: %w", id, board.ErrUnknownAgent))
		return
	}
	rc.Console.panel.Edit(a)
	rc.Respond(rc.Console.panel.State())
}

func rpcPanelCancel(rc *RequestContext) {
	rc.Console.panel.Cancel()
	rc.Respond(rc.Console.panel.State())
}

func rpcPanelRemove(rc *RequestContext) {
	id, ok := rc.idParam()
	if !ok {
		return
	}
	ctx, cancel := rpcContext()
	defer cancel()
	if err := rc.Console.panel.Remove(ctx, id); err != nil {
		rc.Fail(err)
		return
	}
	rc.Respond(rc.Console.panel.State())
}

// Voice

func rpcVoiceConnect(rc *RequestContext) {
	id, ok := rc.idParam()
	if !ok {
		return
	}
	st, err := rc.Console.Connect(id)
	if err != nil {
		rc.Fail(err)
		return
	}
	rc.Respond(VoiceState{ID: id, State: st})
}

func rpcVoiceDisconnect(rc *RequestContext) {
	id, ok := rc.idParam()
	if !ok {
		return
	}
	ctx, cancel := rpcContext()
	defer cancel()
	st, err := rc.Console.Disconnect(ctx, id)
	if err != nil {
		rc.Fail(err)
		return
	}
	rc.Respond(VoiceState{ID: id, State: st})
}

func rpcVoiceState(rc *RequestContext) {
	id, ok := rc.idParam()
	if !ok {
		return
	}
	ctrl, found := rc.Console.Card(id)
	if !found {
		rc.Fail(fmt.Errorf("%s: %w", id, board.ErrUnknownAgent))
		return
	}
	rc.Respond(VoiceState{ID: id, State: ctrl.State()})
}

type microphoneParams struct {
	Granted bool `json:"granted"`
}

func rpcMicrophoneResult(rc *RequestContext) {
	var p microphoneParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	if !rc.Console.asker.Answer(p.Granted) {
		rc.RespondError("invalid_params", "no microphone prompt pending")
		return
	}
	rc.Respond(microphoneParams{Granted: p.Granted})
}
