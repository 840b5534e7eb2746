package elevenlabs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/soyeahso/voicesquad/internal/logging"
	"github.com/soyeahso/voicesquad/internal/voice"
)

const writeWait = 5 * time.Second

// session is one ElevenLabs conversation socket.
type session struct {
	conn *websocket.Conn
	ev   voice.Events
	hold time.Duration
	log  *logging.Logger

	writeMu sync.Mutex

	mu       sync.Mutex
	id       string
	status   voice.Status
	speaking bool
	quiet    *time.Timer
	closing  bool
	reason   string

	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}
	closeOnce sync.Once
}

func newSession(conn *websocket.Conn, ev voice.Events, hold time.Duration, log *logging.Logger) *session {
	return &session{
		conn:   conn,
		ev:     ev,
		hold:   hold,
		log:    log,
		status: voice.StatusConnecting,
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (s *session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func (s *session) Status() voice.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *session) IsSpeaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking
}

// Close ends the conversation and waits for the read loop to exit or ctx
// to expire.
func (s *session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closing = true
		s.mu.Unlock()

		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
			time.Now().Add(writeWait))
		s.writeMu.Unlock()
		_ = s.conn.Close()
	})

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *session) readLoop() {
	defer s.finish()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.readFailed(err)
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.log.Debug().Err(err).Msg("ignoring malformed message")
			continue
		}
		s.handle(msg)
	}
}

func (s *session) handle(msg serverMessage) {
	switch msg.Type {
	case typeInitiationMetadata:
		s.mu.Lock()
		if msg.Metadata != nil {
			s.id = msg.Metadata.ConversationID
		}
		s.status = voice.StatusConnected
		s.mu.Unlock()
		s.readyOnce.Do(func() { close(s.ready) })

	case typePing:
		var id int64
		if msg.Ping != nil {
			id = msg.Ping.EventID
		}
		if err := s.writeJSON(context.Background(), pongMessage{Type: typePong, EventID: id}); err != nil {
			s.log.Debug().Err(err).Msg("sending pong")
		}

	case typeAudio:
		s.setSpeaking(true)
		s.mu.Lock()
		if s.quiet != nil {
			s.quiet.Stop()
		}
		s.quiet = time.AfterFunc(s.hold, func() { s.setSpeaking(false) })
		s.mu.Unlock()

	case typeInterruption:
		s.stopQuietTimer()
		s.setSpeaking(false)

	case typeUserTranscript:
		if msg.UserTranscript != nil && s.ev.OnMessage != nil {
			s.ev.OnMessage(voice.Message{Source: "user", Text: msg.UserTranscript.Text})
		}

	case typeAgentResponse:
		if msg.AgentResponse != nil && s.ev.OnMessage != nil {
			s.ev.OnMessage(voice.Message{Source: "ai", Text: msg.AgentResponse.Text})
		}

	case typeError:
		err := errors.New(msg.errorText())
		s.log.Warn().Err(err).Msg("server error")
		if s.ev.OnError != nil {
			s.ev.OnError(err)
		}

	default:
		s.log.Trace().Str("type", msg.Type).Msg("unhandled message")
	}
}

func (s *session) readFailed(err error) {
	s.mu.Lock()
	closing := s.closing
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		s.reason = fmt.Sprintf("code=%d msg=%s", closeErr.Code, strings.TrimSpace(closeErr.Text))
	} else {
		s.reason = strings.TrimSpace(err.Error())
	}
	s.mu.Unlock()

	if closing {
		return
	}
	if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		s.log.Warn().Err(err).Msg("conversation socket failed")
		select {
		case <-s.ready:
			if s.ev.OnError != nil {
				s.ev.OnError(err)
			}
		default:
		}
	}
}

// finish marks the session disconnected and reports it once.
func (s *session) finish() {
	s.stopQuietTimer()

	s.mu.Lock()
	s.status = voice.StatusDisconnected
	wasSpeaking := s.speaking
	s.speaking = false
	s.mu.Unlock()

	_ = s.conn.Close()
	close(s.done)

	select {
	case <-s.ready:
	default:
		// Open reports the failure; the caller never saw a session.
		return
	}

	if wasSpeaking && s.ev.OnModeChange != nil {
		s.ev.OnModeChange(false)
	}
	s.log.Debug().Str("conversation", s.ID()).Str("reason", s.closeReason()).Msg("conversation ended")
	if s.ev.OnDisconnect != nil {
		s.ev.OnDisconnect()
	}
}

func (s *session) setSpeaking(v bool) {
	s.mu.Lock()
	if s.speaking == v || s.status != voice.StatusConnected {
		s.mu.Unlock()
		return
	}
	s.speaking = v
	s.mu.Unlock()

	if s.ev.OnModeChange != nil {
		s.ev.OnModeChange(v)
	}
}

func (s *session) stopQuietTimer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.quiet != nil {
		s.quiet.Stop()
		s.quiet = nil
	}
}

func (s *session) closeReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reason == "" {
		return "closed"
	}
	return s.reason
}

func (s *session) writeJSON(ctx context.Context, payload any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = s.conn.SetWriteDeadline(deadline)
	} else {
		_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	}
	return s.conn.WriteJSON(payload)
}
