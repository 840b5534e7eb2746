package elevenlabs

import "encoding/json"

// Message types exchanged on the conversation socket.
const (
	typeInitiationClientData = "conversation_initiation_client_data"
	typeInitiationMetadata   = "conversation_initiation_metadata"
	typePing                 = "ping"
	typePong                 = "pong"
	typeAudio                = "audio"
	typeInterruption         = "interruption"
	typeUserTranscript       = "user_transcript"
	typeAgentResponse        = "agent_response"
	typeError                = "error"
)

type initiationMessage struct {
	Type string `json:"type"`
}

// serverMessage is the envelope of every message sent by the service. Only
// the event matching Type is populated.
type serverMessage struct {
	Type string `json:"type"`

	Metadata *struct {
		ConversationID string `json:"conversation_id"`
	} `json:"conversation_initiation_metadata_event,omitempty"`

	Ping *struct {
		EventID int64 `json:"event_id"`
		PingMS  int64 `json:"ping_ms"`
	} `json:"ping_event,omitempty"`

	UserTranscript *struct {
		Text string `json:"user_transcript"`
	} `json:"user_transcription_event,omitempty"`

	AgentResponse *struct {
		Text string `json:"agent_response"`
	} `json:"agent_response_event,omitempty"`

	Message string          `json:"message,omitempty"`
	Error   json.RawMessage `json:"error,omitempty"`
}

type pongMessage struct {
	Type    string `json:"type"`
	EventID int64  `json:"event_id"`
}

// errorText extracts a human-readable reason from an error message.
func (m serverMessage) errorText() string {
	if m.Message != "" {
		return m.Message
	}
	if len(m.Error) == 0 {
		return "unknown error"
	}
	var s string
	if err := json.Unmarshal(m.Error, &s); err == nil && s != "" {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(m.Error, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	return string(m.Error)
}
