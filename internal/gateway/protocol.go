package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/soyeahso/voicesquad/internal/auth"
	"github.com/soyeahso/voicesquad/internal/domain"
	"github.com/soyeahso/voicesquad/internal/voice"
)

// Frame kinds on the console socket.
const (
	FrameTypeRequest  = "req"
	FrameTypeResponse = "res"
	FrameTypeEvent    = "event"
)

// Frame is the envelope of every console message; Type tells requests,
// responses and events apart.
type Frame struct {
	Type string `json:"type"`

	// Request fields
	ID     string          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`

	// Response fields
	OK      *bool           `json:"ok,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`

	// Event fields
	Event string `json:"event,omitempty"`
	Seq   int64  `json:"seq,omitempty"`

	// Error (response only)
	Error *ErrorShape `json:"error,omitempty"`
}

// ErrorShape is the error of a failed response. Retryable marks failures
// the console may simply try again, such as a lost database write.
type ErrorShape struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

// errNoParams is returned when a frame that needs params has none.
var errNoParams = errors.New("params are required")

// decodeParams unmarshals f.Params into v.
func (f Frame) decodeParams(v any) error {
	if len(f.Params) == 0 {
		return errNoParams
	}
	return json.Unmarshal(f.Params, v)
}

// ConnectParams are sent by the console in its connect request.
type ConnectParams struct {
	MinProtocol int          `json:"minProtocol"`
	MaxProtocol int          `json:"maxProtocol"`
	Client      ClientInfo   `json:"client"`
	Auth        *ConnectAuth `json:"auth,omitempty"`
}

// speaks reports whether the console accepts protocol version v. Consoles
// that send no range are assumed current.
func (p ConnectParams) speaks(v int) bool {
	if p.MaxProtocol == 0 {
		return true
	}
	return p.MinProtocol <= v && v <= p.MaxProtocol
}

// ClientInfo identifies the console build.
type ClientInfo struct {
	ID       string `json:"id"`
	Version  string `json:"version"`
	Platform string `json:"platform,omitempty"`
}

// ConnectAuth carries the session token in the connect request. When it
// is absent the session cookie of the upgrade request is used.
type ConnectAuth struct {
	Token string `json:"token,omitempty"`
}

// HelloOK answers a successful connect. ExpiresAt tells the console when
// its session will lapse.
type HelloOK struct {
	Protocol  int          `json:"protocol"`
	Server    ServerInfo   `json:"server"`
	Features  Features     `json:"features"`
	Policy    ServerPolicy `json:"policy"`
	User      auth.User    `json:"user"`
	ExpiresAt time.Time    `json:"expiresAt"`
}

type ServerInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`
	ConnID  string `json:"connId"`
}

// Features advertises available RPC methods and events.
type Features struct {
	Methods []string `json:"methods"`
	Events  []string `json:"events"`
}

// ServerPolicy communicates protocol limits to the client.
type ServerPolicy struct {
	MaxPayload       int `json:"maxPayload"`
	MaxBufferedBytes int `json:"maxBufferedBytes"`
	TickIntervalMs   int `json:"tickIntervalMs"`
}

// Console events.
const (
	EventChallenge        = "connect.challenge"
	EventNotification     = "notification"
	EventAgentsChanged    = "agents.changed"
	EventVoiceState       = "voice.state"
	EventVoiceMessage     = "voice.message"
	EventMicrophonePrompt = "microphone.prompt"
	EventAuthRequired     = "auth.required"
)

// consoleEvents is advertised in hello-ok.
var consoleEvents = []string{
	EventChallenge,
	EventNotification,
	EventAgentsChanged,
	EventVoiceState,
	EventVoiceMessage,
	EventMicrophonePrompt,
	EventAuthRequired,
}

// AgentsChanged is the payload of agents.changed.
type AgentsChanged struct {
	Agents []domain.Agent `json:"agents"`
}

// VoiceState is the payload of voice.state and the voice.* responses.
type VoiceState struct {
	ID    string      `json:"id"`
	State voice.State `json:"state"`
}

// VoiceMessage is the payload of voice.message.
type VoiceMessage struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Text   string `json:"text"`
}

// NewRequest builds a request frame. Consoles and tests use it; the
// server only answers.
func NewRequest(id, method string, params any) (Frame, error) {
	return withBody(Frame{Type: FrameTypeRequest, ID: id, Method: method}, params)
}

// NewResponse answers request id with payload.
func NewResponse(id string, payload any) (Frame, error) {
	return withBody(Frame{Type: FrameTypeResponse, ID: id, OK: flag(true)}, payload)
}

func NewErrorResponse(id string, e ErrorShape) Frame {
	return Frame{Type: FrameTypeResponse, ID: id, OK: flag(false), Error: &e}
}

// NewEvent builds an event frame. The handshake challenge carries seq 0.
func NewEvent(event string, payload any, seq int64) (Frame, error) {
	return withBody(Frame{Type: FrameTypeEvent, Event: event, Seq: seq}, payload)
}

// withBody encodes v as the frame's params or payload.
func withBody(f Frame, v any) (Frame, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Frame{}, fmt.Errorf("encoding %s frame: %w", f.Type, err)
	}
	if f.Type == FrameTypeRequest {
		f.Params = raw
	} else {
		f.Payload = raw
	}
	return f, nil
}

func flag(b bool) *bool { return &b }

// ProtocolVersion is the console protocol this server speaks.
const ProtocolVersion = 1
