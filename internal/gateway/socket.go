package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/soyeahso/voicesquad/internal/auth"
	"github.com/soyeahso/voicesquad/internal/version"
)

const (
	maxPayload       = 1 << 20
	maxBufferedBytes = 16 << 20
	handshakeTimeout = 10 * time.Second
	tickInterval     = 30 * time.Second
)

// challenge opens every socket. The console answers with a connect request.
type challenge struct {
	Nonce string `json:"nonce"`
	TS    int64  `json:"ts"`
}

// handshakeError is reported to the peer before the socket is dropped.
type handshakeError struct {
	reqID string
	shape ErrorShape
	cause error
}

func (e *handshakeError) Error() string { return e.shape.Code + ": " + e.cause.Error() }
func (e *handshakeError) Unwrap() error { return e.cause }

func reject(reqID, code, message string, cause error) error {
	return &handshakeError{reqID: reqID, shape: ErrorShape{Code: code, Message: message}, cause: cause}
}

// handleWebSocket serves /ws: the handshake, then one Console for the life
// of the socket.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.allow(r.RemoteAddr) {
		s.log.Warn().Str("remote", r.RemoteAddr).Msg("too many failed handshakes")
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxPayload)

	client, sess, err := s.handshake(conn, r)
	if err != nil {
		var he *handshakeError
		if errors.As(err, &he) {
			_ = conn.WriteJSON(NewErrorResponse(he.reqID, he.shape))
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, he.shape.Code),
				time.Now().Add(closeGrace))
		}
		s.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("handshake failed")
		s.limiter.fail(r.RemoteAddr)
		conn.Close()
		return
	}

	console := newConsole(s, client.ConnID, client.Emit)
	s.clients.Add(client, console)
	defer func() {
		s.clients.Remove(client.ConnID)
		console.Close()
		client.Close(websocket.CloseNormalClosure, "")
	}()

	extend := func(string) error { return conn.SetReadDeadline(time.Now().Add(2 * s.tick)) }
	conn.SetPongHandler(extend)
	extend("")
	ctx, stop := context.WithCancel(r.Context())
	defer stop()
	go s.keepalive(ctx, client)

	console.Start(sess)
	s.readLoop(client, console)
}

// handshake runs challenge, connect and hello-ok under handshakeTimeout.
func (s *Server) handshake(conn *websocket.Conn, r *http.Request) (*Client, *auth.Session, error) {
	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))

	hi, err := NewEvent(EventChallenge, challenge{Nonce: uuid.NewString(), TS: time.Now().UnixMilli()}, 0)
	if err != nil {
		return nil, nil, err
	}
	if err := conn.WriteJSON(hi); err != nil {
		return nil, nil, fmt.Errorf("sending challenge: %w", err)
	}

	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil, nil, fmt.Errorf("reading connect: %w", err)
	}
	var frame Frame
	if err := json.Unmarshal(msg, &frame); err != nil {
		return nil, nil, reject("", "protocol_error", "malformed frame", err)
	}
	if frame.Type != FrameTypeRequest || frame.Method != "connect" {
		return nil, nil, reject(frame.ID, "protocol_error", "expected connect request",
			fmt.Errorf("got %s %q", frame.Type, frame.Method))
	}

	var params ConnectParams
	if err := frame.decodeParams(&params); err != nil {
		return nil, nil, reject(frame.ID, "invalid_params", "invalid connect params", err)
	}
	if !params.speaks(ProtocolVersion) {
		return nil, nil, reject(frame.ID, "protocol_mismatch",
			fmt.Sprintf("server speaks protocol %d", ProtocolVersion),
			fmt.Errorf("client speaks %d-%d", params.MinProtocol, params.MaxProtocol))
	}

	res := Authorize(s.verifier, r, s.gate.CookieName, params.Auth)
	if !res.OK {
		return nil, nil, reject(frame.ID, "unauthorized", res.Reason, errors.New(res.Reason))
	}

	conn.SetReadDeadline(time.Time{})
	client := NewClient(conn, params.Client, res.Method)

	hello := HelloOK{
		Protocol: ProtocolVersion,
		Server:   ServerInfo{Version: s.version, Commit: version.Commit, ConnID: client.ConnID},
		Features: Features{Methods: s.Methods(), Events: consoleEvents},
		Policy: ServerPolicy{
			MaxPayload:       maxPayload,
			MaxBufferedBytes: maxBufferedBytes,
			TickIntervalMs:   int(s.tick / time.Millisecond),
		},
		User:      res.Session.User,
		ExpiresAt: res.Session.ExpiresAt,
	}
	if err := client.Respond(frame.ID, hello); err != nil {
		return nil, nil, fmt.Errorf("sending hello: %w", err)
	}

	s.log.Info().
		Str("connId", client.ConnID).
		Str("client", params.Client.ID).
		Str("clientVersion", params.Client.Version).
		Str("authMethod", res.Method).
		Str("email", res.Session.User.Email).
		Msg("console signed in")
	return client, res.Session, nil
}

// keepalive pings every tick. Each pong pushes the read deadline out by two
// ticks, so a console that stops answering ends its own read loop.
func (s *Server) keepalive(ctx context.Context, client *Client) {
	t := time.NewTicker(s.tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := client.ping(); err != nil {
				return
			}
		}
	}
}

func (s *Server) readLoop(client *Client, console *Console) {
	log := s.log.With("connId", client.ConnID)
	for {
		frame, err := client.ReadFrame()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Msg("console closed socket")
			} else {
				log.Warn().Err(err).Msg("socket read failed")
			}
			return
		}
		if frame.Type != FrameTypeRequest {
			log.Debug().Str("type", frame.Type).Msg("ignoring non-request frame")
			continue
		}
		s.dispatch(client, console, frame)
	}
}

// dispatch runs one request. Handlers reply through the RequestContext.
func (s *Server) dispatch(client *Client, console *Console, frame Frame) {
	handler, ok := s.handlers[frame.Method]
	switch {
	case !ok:
		client.RespondError(frame.ID, ErrorShape{Code: "method_not_found", Message: "unknown method: " + frame.Method})
		return
	case !publicMethods[frame.Method] && console.Session() == nil:
		client.RespondError(frame.ID, ErrorShape{Code: "unauthorized", Message: "sign in required"})
		return
	}

	start := time.Now()
	handler(&RequestContext{Client: client, Console: console, Frame: frame, Server: s})
	s.log.Trace().Str("method", frame.Method).Dur("duration", time.Since(start)).Msg("rpc handled")
}
