// Package voice drives a conversational voice session for one agent card:
// microphone permission, connect, speaking/listening and disconnect.
package voice

import (
	"context"
	"errors"
)

var (
	// ErrBusy is returned by Connect when a session is pending or open.
	ErrBusy = errors.New("voice session busy")
	// ErrPermissionDenied is returned when the microphone was not granted.
	ErrPermissionDenied = errors.New("microphone permission denied")
	// ErrClosed is returned after the controller was closed.
	ErrClosed = errors.New("voice controller closed")
	// ErrUnavailable is returned by a gateway that cannot open sessions.
	ErrUnavailable = errors.New("voice provider unavailable")
)

// Status is the connection status reported by a Session.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
)

// Message is a transcript line produced during a session.
type Message struct {
	Source string `json:"source"` // "user" or "ai"
	Text   string `json:"text"`
}

// Events are the callbacks a gateway invokes for one session. Any field
// may be nil. Callbacks may run on the gateway's own goroutines.
type Events struct {
	OnConnect    func()
	OnDisconnect func()
	OnError      func(err error)
	OnMessage    func(m Message)
	OnModeChange func(speaking bool)
}

func (e Events) connect() {
	if e.OnConnect != nil {
		e.OnConnect()
	}
}

func (e Events) disconnect() {
	if e.OnDisconnect != nil {
		e.OnDisconnect()
	}
}

func (e Events) error(err error) {
	if e.OnError != nil {
		e.OnError(err)
	}
}

func (e Events) message(m Message) {
	if e.OnMessage != nil {
		e.OnMessage(m)
	}
}

func (e Events) modeChange(speaking bool) {
	if e.OnModeChange != nil {
		e.OnModeChange(speaking)
	}
}

// Session is one open conversation.
type Session interface {
	ID() string
	Status() Status
	IsSpeaking() bool
	Close(ctx context.Context) error
}

// Gateway opens sessions with the conversational service.
type Gateway interface {
	// Open starts a session for the external agent id and returns once it
	// is connected.
	Open(ctx context.Context, agentID string, ev Events) (Session, error)
}

// Unavailable is a Gateway for deployments without a voice provider.
type Unavailable struct{}

// Open always fails with ErrUnavailable.
func (Unavailable) Open(context.Context, string, Events) (Session, error) {
	return nil, ErrUnavailable
}
